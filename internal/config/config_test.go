package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsWithNoConfigPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "vitalpipe", cfg.ServiceName)
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NATSURL)
	assert.Equal(t, 900, cfg.RollingWindow15MSeconds)
	assert.Equal(t, 100.0, cfg.Thresholds.HRMax)
}

func TestLoadEnvVarOverridesDefault(t *testing.T) {
	t.Setenv("VITALPIPE_NATS_URL", "nats://override:4222")
	t.Setenv("VITALPIPE_HR_MAX", "110")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "nats://override:4222", cfg.NATSURL)
	assert.Equal(t, 110.0, cfg.Thresholds.HRMax)
}

func TestLoadYAMLFileLayersUnderEnvVars(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/config.yaml"
	require.NoError(t, os.WriteFile(path, []byte("spo2_min: 93\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 93.0, cfg.Thresholds.SpO2Min)
}
