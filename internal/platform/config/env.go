// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/caarlos0/env/v11"
)

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// MissingError reports required configuration that is absent at startup.
type MissingError struct {
	Names []string
}

// Error implements the error interface.
func (e *MissingError) Error() string {
	return "missing required configuration: " + strings.Join(e.Names, ", ")
}

// RequireValues returns a MissingError naming every empty value in required.
// Keys are env var names, values are the loaded settings.
func RequireValues(required map[string]string) error {
	var missing []string
	for name, value := range required {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return &MissingError{Names: missing}
}
