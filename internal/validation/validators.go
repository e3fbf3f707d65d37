package validation

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/planforge/planforge/internal/models"
)

var (
	// Validate is a shared validator instance
	Validate *validator.Validate
)

func init() {
	Validate = validator.New()

	// Register custom validators for enums
	// These should never fail in normal operation, but log if they do
	if err := Validate.RegisterValidation("surface_type", validateSurfaceType); err != nil {
		panic(fmt.Sprintf("failed to register surface_type validator: %v", err))
	}
	if err := Validate.RegisterValidation("draft_type", validateDraftType); err != nil {
		panic(fmt.Sprintf("failed to register draft_type validator: %v", err))
	}
	if err := Validate.RegisterValidation("draft_status", validateDraftStatus); err != nil {
		panic(fmt.Sprintf("failed to register draft_status validator: %v", err))
	}
	if err := Validate.RegisterValidation("intent", validateIntent); err != nil {
		panic(fmt.Sprintf("failed to register intent validator: %v", err))
	}
}

// validateSurfaceType validates that a string is a valid SurfaceType enum value
func validateSurfaceType(fl validator.FieldLevel) bool {
	return models.ValidSurfaceType(fl.Field().String())
}

// validateDraftType validates that a string is a known DraftType enum value
func validateDraftType(fl validator.FieldLevel) bool {
	return models.ValidDraftType(fl.Field().String())
}

// validateDraftStatus validates that a string is a known DraftStatus enum value
func validateDraftStatus(fl validator.FieldLevel) bool {
	return models.ValidDraftStatus(fl.Field().String())
}

// validateIntent validates that a string is a declared assistant intent
func validateIntent(fl validator.FieldLevel) bool {
	return models.ValidIntent(fl.Field().String())
}

// SanitizeText sanitizes text input by trimming whitespace and removing control characters
func SanitizeText(text string) string {
	// Trim whitespace
	text = strings.TrimSpace(text)

	// Remove control characters except newline and tab
	var sanitized strings.Builder
	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		sanitized.WriteRune(r)
	}

	return sanitized.String()
}

// ValidateSurfaceType validates a SurfaceType string value
func ValidateSurfaceType(value string) error {
	if !models.ValidSurfaceType(value) {
		return fmt.Errorf("invalid surface_type: %s (must be 'project', 'personal', or 'shared')", value)
	}
	return nil
}

// ValidateDraftType validates a DraftType string value
func ValidateDraftType(value string) error {
	if !models.ValidDraftType(value) {
		return fmt.Errorf("invalid draft type: %s", value)
	}
	return nil
}

// ValidateIntent validates an assistant intent string value
func ValidateIntent(value string) error {
	if !models.ValidIntent(value) {
		return fmt.Errorf("invalid intent: %s", value)
	}
	return nil
}
