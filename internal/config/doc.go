// Package config loads, normalizes, and validates the bookforge TOML
// configuration file.
package config
