package setup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/dyosync/config"
)

type fakeTokenStore struct {
	token string
	err   error
}

func (f *fakeTokenStore) SetToken(token string) error {
	if f.err != nil {
		return f.err
	}
	f.token = token
	return nil
}

func validAnswers() Answers {
	a := defaultAnswers()
	a.Accounts = "abc123,\ndef456"
	return a
}

func TestBuildConfig(t *testing.T) {
	a := validAnswers()
	a.APIBase = " https://api.example.com/ "
	a.PollInterval = "30s"
	a.StakePeriods = "90, 365"
	a.DefaultAPY = "8.5"

	cfg, err := BuildConfig(a)
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com", cfg.APIBase)
	assert.Equal(t, []string{"abc123", "def456"}, cfg.Accounts)
	assert.Equal(t, 30*time.Second, cfg.PollInterval)
	assert.Equal(t, []int{90, 365}, cfg.StakePeriods)
	assert.True(t, cfg.DefaultAPY.Equal(decimal.RequireFromString("8.5")))
	assert.Equal(t, ":8090", cfg.WebAddr)
	assert.Empty(t, cfg.APIToken)
}

func TestBuildConfig_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(a *Answers)
	}{
		{"bad url", func(a *Answers) { a.APIBase = "ftp://host" }},
		{"no accounts", func(a *Answers) { a.Accounts = " , " }},
		{"bad interval", func(a *Answers) { a.PollInterval = "soon" }},
		{"zero interval", func(a *Answers) { a.PollInterval = "0s" }},
		{"bad periods", func(a *Answers) { a.StakePeriods = "30,-1" }},
		{"empty periods", func(a *Answers) { a.StakePeriods = "" }},
		{"bad apy", func(a *Answers) { a.DefaultAPY = "high" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := validAnswers()
			tt.mutate(&a)
			_, err := BuildConfig(a)
			assert.Error(t, err)
		})
	}
}

func TestValidators(t *testing.T) {
	assert.NoError(t, validateURL("http://localhost:8080"))
	assert.Error(t, validateURL("localhost:8080"))

	assert.NoError(t, validateDuration("1m"))
	assert.Error(t, validateDuration("-5s"))

	assert.NoError(t, validateAPY("0"))
	assert.Error(t, validateAPY("-1"))

	periods, err := parsePeriods(" 30 ,,180")
	require.NoError(t, err)
	assert.Equal(t, []int{30, 180}, periods)
}

func TestSave_WritesConfigAndToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultConfigFile)
	store := &fakeTokenStore{}
	a := validAnswers()
	a.Token = " secret-token "

	require.NoError(t, Save(path, a, store))
	assert.Equal(t, "secret-token", store.token)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret-token")

	cfg, err := config.Load([]string{"--config", path})
	require.NoError(t, err)
	assert.Equal(t, []string{"abc123", "def456"}, cfg.Accounts)
}

func TestSave_TokenStoreFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultConfigFile)
	a := validAnswers()
	a.Token = "secret"

	err := Save(path, a, &fakeTokenStore{err: errors.New("disk full")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store API token")
}

func TestSave_WithoutTokenSkipsStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultConfigFile)
	store := &fakeTokenStore{err: errors.New("must not be called")}

	require.NoError(t, Save(path, validAnswers(), store))
	assert.Empty(t, store.token)
}
