// Package config loads the filedrop process configuration from the environment.
package config
