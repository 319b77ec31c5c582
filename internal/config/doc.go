// Package config provides type-safe environment variable loading using
// Go generics, built on github.com/caarlos0/env/v11. Each configuration
// type is loaded once and cached for subsequent calls, matching the
// teacher foundation's core/config package.
//
// Basic usage:
//
//	type Config struct {
//		Version string `env:"EDITOR_VERSION" envDefault:"stable"`
//	}
//
//	var cfg Config
//	if err := config.Load(&cfg); err != nil {
//		log.Fatal(err)
//	}
package config
