// Package config loads and validates the server's YAML configuration.
// Values support ${VAR} environment expansion; missing fields fall
// back to defaults.
package config
