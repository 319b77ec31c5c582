package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrew-w-ross/vscode-test-pool/internal/config"
)

type testConfig struct {
	Name    string        `env:"CONFIG_TEST_NAME" envDefault:"default"`
	Timeout time.Duration `env:"CONFIG_TEST_TIMEOUT" envDefault:"5s"`
}

func TestLoad_AppliesDefaultsWhenUnset(t *testing.T) {
	config.Reset()

	var cfg testConfig
	require.NoError(t, config.Load(&cfg))

	assert.Equal(t, "default", cfg.Name)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
}

func TestLoad_ReadsFromEnvironment(t *testing.T) {
	config.Reset()
	t.Setenv("CONFIG_TEST_NAME", "from-env")
	t.Setenv("CONFIG_TEST_TIMEOUT", "10s")

	var cfg testConfig
	require.NoError(t, config.Load(&cfg))

	assert.Equal(t, "from-env", cfg.Name)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
}

func TestLoad_CachesByConcreteType(t *testing.T) {
	config.Reset()
	t.Setenv("CONFIG_TEST_NAME", "first-load")

	var first testConfig
	require.NoError(t, config.Load(&first))

	t.Setenv("CONFIG_TEST_NAME", "second-load")

	var second testConfig
	require.NoError(t, config.Load(&second))

	assert.Equal(t, "first-load", second.Name, "second Load should return the cached value, not re-parse")
}

func TestReset_ClearsCacheForSubsequentLoad(t *testing.T) {
	config.Reset()
	t.Setenv("CONFIG_TEST_NAME", "before-reset")

	var first testConfig
	require.NoError(t, config.Load(&first))

	config.Reset()
	t.Setenv("CONFIG_TEST_NAME", "after-reset")

	var second testConfig
	require.NoError(t, config.Load(&second))

	assert.Equal(t, "after-reset", second.Name)
}

func TestMustLoad_PanicsOnParseError(t *testing.T) {
	config.Reset()
	t.Setenv("CONFIG_TEST_TIMEOUT", "not-a-duration")

	assert.Panics(t, func() {
		var cfg testConfig
		config.MustLoad(&cfg)
	})
}
