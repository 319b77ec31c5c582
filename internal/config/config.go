package config

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
)

var (
	cacheMu sync.Mutex
	cache   = map[reflect.Type]any{}
)

// Load populates cfg from environment variables using struct `env` tags,
// caching the result per concrete type so repeated calls for the same
// type return the same value without re-parsing the environment.
func Load[T any](cfg *T) error {
	cacheMu.Lock()
	defer cacheMu.Unlock()

	t := reflect.TypeOf(*cfg)
	if cached, ok := cache[t]; ok {
		*cfg = *(cached.(*T))
		return nil
	}

	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", t, err)
	}

	stored := *cfg
	cache[t] = &stored
	return nil
}

// MustLoad is Load but panics on error, for use during process startup
// where a misconfigured environment should fail fast.
func MustLoad[T any](cfg *T) {
	if err := Load(cfg); err != nil {
		panic(err)
	}
}

// Reset clears the cache. Intended for tests that reload configuration
// across subtests with different environment variables.
func Reset() {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	cache = map[reflect.Type]any{}
}
