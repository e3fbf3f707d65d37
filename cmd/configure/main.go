package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/planforge/planforge/cmd/configure/commands"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "planforge-configure",
		Short: "Configuration tool for the PlanForge API",
		Long:  "CLI tool for configuring OIDC providers, CORS, rate limits, and AI feature routes",
	}

	rootCmd.AddCommand(commands.NewOIDCCmd())
	rootCmd.AddCommand(commands.NewCorsCmd())
	rootCmd.AddCommand(commands.NewRatelimitCmd())
	rootCmd.AddCommand(commands.NewRoutesCmd())
	rootCmd.AddCommand(commands.NewListCmd())
	rootCmd.AddCommand(commands.NewTestCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
