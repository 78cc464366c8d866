// Package config loads botstream configuration from YAML.
package config
