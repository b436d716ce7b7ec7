// Package config provides centralized configuration management for the
// TravelPlanner runtime. Configuration is loaded from a YAML file whose path
// is taken from the command line, the TRAVEL_CONFIG environment variable, or
// a built-in default, with sensible fallbacks applied for every section.
package config
