package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Flags(t *testing.T) {
	cfg, err := Load([]string{
		"--api", "https://api.example.com/",
		"--accounts", "abc123, def456,",
		"--pollinterval", "5s",
		"--stakeperiods", "30,90",
		"--defaultapy", "12.5",
	})
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com", cfg.APIBase)
	assert.Equal(t, []string{"abc123", "def456"}, cfg.Accounts)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.Equal(t, []int{30, 90}, cfg.StakePeriods)
	assert.True(t, cfg.DefaultAPY.Equal(decimal.RequireFromString("12.5")))
	assert.Equal(t, 2*time.Second, cfg.LoginRedirectDelay)
	assert.Equal(t, defaultHealthRetries, cfg.HealthRetries)
}

func TestLoad_InvalidFlags(t *testing.T) {
	_, err := Load([]string{"--stakeperiods", "30,abc"})
	assert.Error(t, err)

	_, err = Load([]string{"--defaultapy", "lots"})
	assert.Error(t, err)

	_, err = Load([]string{"--pollinterval", "0s"})
	assert.Error(t, err)
}

func TestLoad_YamlWithEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dyosync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api_base: https://yaml.example.com
accounts: [abc123]
poll_interval: 30s
default_apy: "9.75"
stake_periods: [90, 180]
`), 0o644))

	t.Setenv("DYOSYNC_API_TOKEN", "secret")
	t.Setenv("DYOSYNC_ACCOUNTS", "zzz, yyy")
	t.Setenv("DYOSYNC_POLL_INTERVAL", "1m")
	t.Setenv("DYOSYNC_TLS_DOMAINS", "sync.example.com, ")

	cfg, err := Load([]string{"--config", path})
	require.NoError(t, err)

	assert.Equal(t, "https://yaml.example.com", cfg.APIBase)
	assert.Equal(t, "secret", cfg.APIToken)
	assert.Equal(t, []string{"zzz", "yyy"}, cfg.Accounts)
	assert.Equal(t, time.Minute, cfg.PollInterval)
	assert.Equal(t, []int{90, 180}, cfg.StakePeriods)
	assert.True(t, cfg.DefaultAPY.Equal(decimal.RequireFromString("9.75")))
	assert.Equal(t, defaultSnapshotWALDir, cfg.SnapshotWALDir)
	assert.Equal(t, []string{"sync.example.com"}, cfg.TLSDomains)
	assert.Equal(t, defaultTLSCacheDir, cfg.TLSCacheDir)
}

func TestLoad_BadYamlDecimal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("default_apy: twelve\n"), 0o644))

	_, err := Load([]string{"--config", path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "default_apy")
}

func TestSave_RoundTripWithoutToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dyosync.yaml")
	cfg := Defaults()
	cfg.APIBase = "https://api.example.com"
	cfg.APIToken = "never-written"
	cfg.Accounts = []string{"abc123"}
	cfg.DefaultAPY = decimal.RequireFromString("7")

	require.NoError(t, Save(path, cfg))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "never-written")

	loaded, err := Load([]string{"--config", path})
	require.NoError(t, err)
	assert.Equal(t, cfg.Accounts, loaded.Accounts)
	assert.True(t, loaded.DefaultAPY.Equal(cfg.DefaultAPY))
	assert.Empty(t, loaded.APIToken)
}
