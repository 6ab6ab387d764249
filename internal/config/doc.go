// Package config provides the configuration for deamp: command line options,
// the optional .deamp YAML file with markers, ignore seeds and fetch
// settings, and the XDG directories used for the settings database.
package config
