// Package config loads and validates the sync run configuration.
//
// The canonical format is TOML; JSON and YAML files with the same structure
// are accepted so that configs can be generated by other tooling.
package config
