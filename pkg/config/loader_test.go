package config

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, contents interface{}) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.json")

	data, err := json.Marshal(contents)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	return path
}

func TestLoadAppliesFileOverDefaults(t *testing.T) {
	path := writeConfigFile(t, map[string]interface{}{
		"browser_port":    9090,
		"max_in_flight":   4,
		"homebase_allowed_ips": []string{"10.0.0.1"},
	})

	cfg, err := Load(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.BrowserPort)
	assert.Equal(t, 4, cfg.MaxInFlight)
	assert.Equal(t, []string{"10.0.0.1"}, cfg.HomebaseAllowedIPs)
	// Fields absent from the file keep DefaultConfig's value.
	assert.Equal(t, 200, cfg.MaxQueue)
}

func TestLoadReturnsErrorOnMissingFile(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestLoadAppliesLogLevelEnvOverride(t *testing.T) {
	path := writeConfigFile(t, map[string]interface{}{"logging": map[string]string{"level": "info"}})

	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadAppliesDebugEnvOverride(t *testing.T) {
	path := writeConfigFile(t, map[string]interface{}{})

	t.Setenv("DEBUG", "true")

	cfg, err := Load(context.Background(), path)
	require.NoError(t, err)

	assert.True(t, cfg.Logging.Debug)
}

func TestLoadAppliesHomebaseAllowedIPsEnvOverride(t *testing.T) {
	path := writeConfigFile(t, map[string]interface{}{"homebase_allowed_ips": []string{"10.0.0.1"}})

	t.Setenv("HOMEBASE_ALLOWED_IPS", " 10.0.0.2, 10.0.0.3 ,")

	cfg, err := Load(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, []string{"10.0.0.2", "10.0.0.3"}, cfg.HomebaseAllowedIPs)
}

func TestParseEnvBoolRecognizesCommonSpellings(t *testing.T) {
	assert.True(t, parseEnvBool("true"))
	assert.True(t, parseEnvBool("1"))
	assert.True(t, parseEnvBool("Yes"))
	assert.True(t, parseEnvBool("ON"))
	assert.False(t, parseEnvBool("false"))
	assert.False(t, parseEnvBool("nonsense"))
}
