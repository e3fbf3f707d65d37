package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/planforge/planforge/internal/config"
	"github.com/planforge/planforge/internal/database"
	"github.com/planforge/planforge/internal/models"
)

// NewRoutesCmd creates the routes configuration command
func NewRoutesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "routes",
		Short: "Manage AI feature routes",
		Long:  "List, seed, or toggle the provider/model routes used to serve assistant requests.",
	}
	cmd.AddCommand(newRoutesListCmd())
	cmd.AddCommand(newRoutesSeedCmd())
	cmd.AddCommand(newRoutesEnableCmd())
	return cmd
}

// routesFile is the yaml layout accepted by 'routes seed'
type routesFile struct {
	Providers []struct {
		Name    string `yaml:"name"`
		Enabled bool   `yaml:"enabled"`
		Models  []struct {
			Key               string `yaml:"key"`
			Enabled           bool   `yaml:"enabled"`
			MaxContextTokens  int    `yaml:"max_context_tokens"`
			MaxOutputTokens   int    `yaml:"max_output_tokens"`
			SupportsStreaming bool   `yaml:"supports_streaming"`
		} `yaml:"models"`
	} `yaml:"providers"`
	Routes []struct {
		FeatureKey        string   `yaml:"feature_key"`
		SurfaceType       string   `yaml:"surface_type,omitempty"`
		ProjectID         string   `yaml:"project_id,omitempty"`
		Provider          string   `yaml:"provider"`
		ModelKey          string   `yaml:"model_key"`
		Enabled           bool     `yaml:"enabled"`
		Priority          int      `yaml:"priority"`
		Fallback          bool     `yaml:"fallback"`
		AllowedIntents    []string `yaml:"allowed_intents,omitempty"`
		DisallowedIntents []string `yaml:"disallowed_intents,omitempty"`
	} `yaml:"routes"`
}

func newRoutesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured AI feature routes",
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, closeDB, err := routeRepo()
			if err != nil {
				return err
			}
			defer closeDB()

			routes, err := repo.ListRoutes(context.Background())
			if err != nil {
				return fmt.Errorf("list routes: %w", err)
			}
			if len(routes) == 0 {
				fmt.Println("No routes configured. The resolver will use the built-in default route.")
				return nil
			}
			for _, route := range routes {
				scope := "any surface"
				if route.SurfaceType != nil {
					scope = string(*route.SurfaceType)
				}
				if route.ProjectID != nil {
					scope += " project=" + route.ProjectID.String()
				}
				fmt.Printf("  %s  %s -> %s/%s  priority=%d enabled=%v fallback=%v (%s)\n",
					route.ID, route.FeatureKey, route.Provider, route.ModelKey,
					route.Priority, route.Enabled, route.Fallback, scope)
			}
			return nil
		},
	}
}

func newRoutesSeedCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed providers, models, and routes from a yaml file",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read routes file: %w", err)
			}
			var spec routesFile
			if err := yaml.Unmarshal(data, &spec); err != nil {
				return fmt.Errorf("parse routes file: %w", err)
			}

			repo, closeDB, err := routeRepo()
			if err != nil {
				return err
			}
			defer closeDB()

			ctx := context.Background()
			providerIDs := make(map[string]uuid.UUID)
			modelIDs := make(map[string]uuid.UUID)

			for _, p := range spec.Providers {
				providerID, err := repo.UpsertProvider(ctx, p.Name, p.Enabled)
				if err != nil {
					return fmt.Errorf("upsert provider %s: %w", p.Name, err)
				}
				providerIDs[p.Name] = providerID
				for _, m := range p.Models {
					modelID, err := repo.UpsertModel(ctx, providerID, models.AIModelRow{
						Key:               m.Key,
						Enabled:           m.Enabled,
						MaxContextTokens:  m.MaxContextTokens,
						MaxOutputTokens:   m.MaxOutputTokens,
						SupportsStreaming: m.SupportsStreaming,
					})
					if err != nil {
						return fmt.Errorf("upsert model %s/%s: %w", p.Name, m.Key, err)
					}
					modelIDs[p.Name+"/"+m.Key] = modelID
				}
				fmt.Printf("Provider %s: %d model(s)\n", p.Name, len(p.Models))
			}

			for _, r := range spec.Routes {
				providerID, ok := providerIDs[r.Provider]
				if !ok {
					return fmt.Errorf("route %s references unknown provider %s", r.FeatureKey, r.Provider)
				}
				modelID, ok := modelIDs[r.Provider+"/"+r.ModelKey]
				if !ok {
					return fmt.Errorf("route %s references unknown model %s/%s", r.FeatureKey, r.Provider, r.ModelKey)
				}

				route := &models.AIFeatureRoute{
					FeatureKey: r.FeatureKey,
					Provider:   r.Provider,
					ModelKey:   r.ModelKey,
					Enabled:    r.Enabled,
					Priority:   r.Priority,
					Fallback:   r.Fallback,
					Constraints: models.RouteConstraints{
						AllowedIntents:    r.AllowedIntents,
						DisallowedIntents: r.DisallowedIntents,
					},
				}
				if r.SurfaceType != "" {
					if !models.ValidSurfaceType(r.SurfaceType) {
						return fmt.Errorf("route %s has invalid surface_type %q", r.FeatureKey, r.SurfaceType)
					}
					st := models.SurfaceType(r.SurfaceType)
					route.SurfaceType = &st
				}
				if r.ProjectID != "" {
					projectID, err := uuid.Parse(r.ProjectID)
					if err != nil {
						return fmt.Errorf("route %s has invalid project_id: %w", r.FeatureKey, err)
					}
					route.ProjectID = &projectID
				}

				if err := repo.CreateRoute(ctx, route, providerID, modelID); err != nil {
					return fmt.Errorf("create route %s: %w", r.FeatureKey, err)
				}
				fmt.Printf("Route %s -> %s/%s (priority %d)\n", r.FeatureKey, r.Provider, r.ModelKey, r.Priority)
			}

			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "Path to the routes yaml file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newRoutesEnableCmd() *cobra.Command {
	var enable bool
	cmd := &cobra.Command{
		Use:   "enable <route-id>",
		Short: "Enable or disable a route",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			routeID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid route id: %w", err)
			}

			repo, closeDB, err := routeRepo()
			if err != nil {
				return err
			}
			defer closeDB()

			if err := repo.SetRouteEnabled(context.Background(), routeID, enable); err != nil {
				return fmt.Errorf("set route enabled: %w", err)
			}
			fmt.Printf("Route %s enabled=%v\n", routeID, enable)
			return nil
		},
	}
	cmd.Flags().BoolVar(&enable, "enabled", true, "Whether the route should be enabled")
	return cmd
}

func routeRepo() (*database.RouteRepository, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	return database.NewRouteRepository(db), func() { _ = db.Close() }, nil
}
