// Package config loads contestauth-server settings from .env files, an
// optional config file and the environment.
package config
