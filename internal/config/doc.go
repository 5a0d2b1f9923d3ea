// Package config loads the service configuration.
//
// Precedence, lowest first:
//   - Defaults from Default()
//   - YAML file named by HPV_CONFIG (default config.yaml, skipped when absent)
//   - HPV_* environment variables
//
// The merged result is checked by Validate before use.
package config
