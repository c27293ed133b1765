package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	defaultAPIBase            = "http://localhost:8080"
	defaultPollInterval       = 15 * time.Second
	defaultHTTPTimeout        = 10 * time.Second
	defaultLoginRedirectDelay = 2 * time.Second
	defaultStatusResetDelay   = 3 * time.Second
	defaultWebAddr            = ":8090"
	defaultSnapshotWALDir     = "./wal/balance"
	defaultActionWALDir       = "./wal/actions"
	defaultHealthRetries      = 5
	defaultTLSCacheDir        = "cert-cache"
)

var defaultStakePeriods = []int{30, 90, 180, 365}

type Config struct {
	APIBase            string
	APIToken           string
	Accounts           []string
	PollInterval       time.Duration
	HTTPTimeout        time.Duration
	LoginRedirectDelay time.Duration
	StatusResetDelay   time.Duration
	StakePeriods       []int
	DefaultAPY         decimal.Decimal
	SnapshotWALDir     string
	ActionWALDir       string
	SessionFile        string
	WebAddr            string
	// TLSDomains switches the dashboard to HTTPS with ACME certificates.
	TLSDomains    []string
	TLSCacheDir   string
	HealthRetries int
	Debug         bool
}

// ConfigTmp is the on-disk YAML shape. Decimals are kept as strings.
type ConfigTmp struct {
	APIBase            string        `yaml:"api_base"`
	Accounts           []string      `yaml:"accounts"`
	PollInterval       time.Duration `yaml:"poll_interval,omitempty"`
	HTTPTimeout        time.Duration `yaml:"http_timeout,omitempty"`
	LoginRedirectDelay time.Duration `yaml:"login_redirect_delay,omitempty"`
	StatusResetDelay   time.Duration `yaml:"status_reset_delay,omitempty"`
	StakePeriods       []int         `yaml:"stake_periods,omitempty"`
	DefaultAPYStr      string        `yaml:"default_apy,omitempty"`
	SnapshotWALDir     string        `yaml:"snapshot_wal_dir,omitempty"`
	ActionWALDir       string        `yaml:"action_wal_dir,omitempty"`
	SessionFile        string        `yaml:"session_file,omitempty"`
	WebAddr            string        `yaml:"web_addr,omitempty"`
	TLSDomains         []string      `yaml:"tls_domains,omitempty"`
	TLSCacheDir        string        `yaml:"tls_cache_dir,omitempty"`
	HealthRetries      int           `yaml:"health_retries,omitempty"`
	Debug              bool          `yaml:"debug,omitempty"`
}

// envOverrides are applied last; unset variables leave the value untouched.
type envOverrides struct {
	APIBase      string        `env:"DYOSYNC_API_BASE"`
	APIToken     string        `env:"DYOSYNC_API_TOKEN"`
	Accounts     []string      `env:"DYOSYNC_ACCOUNTS" envSeparator:","`
	PollInterval time.Duration `env:"DYOSYNC_POLL_INTERVAL"`
	HTTPTimeout  time.Duration `env:"DYOSYNC_HTTP_TIMEOUT"`
	SessionFile  string        `env:"DYOSYNC_SESSION_FILE"`
	WebAddr      string        `env:"DYOSYNC_WEB_ADDR"`
	TLSDomains   []string      `env:"DYOSYNC_TLS_DOMAINS" envSeparator:","`
	Debug        bool          `env:"DYOSYNC_DEBUG"`
}

// Get reads configuration from the process arguments and environment.
func Get() (Config, error) {
	return Load(os.Args[1:])
}

// Load parses args (either --config or individual flags) and applies env overrides.
func Load(args []string) (Config, error) {
	fs := flag.NewFlagSet("dyosync", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to yaml config")
	apiBase := fs.String("api", defaultAPIBase, "platform API base URL")
	accounts := fs.String("accounts", "", "comma separated account identifiers to sync")
	pollInterval := fs.Duration("pollinterval", defaultPollInterval, "balance poll interval")
	httpTimeout := fs.Duration("httptimeout", defaultHTTPTimeout, "API request timeout")
	stakePeriods := fs.String("stakeperiods", "30,90,180,365", "allowed staking periods in days")
	defaultAPY := fs.String("defaultapy", "0", "APY shown when the server does not report one")
	webAddr := fs.String("web", defaultWebAddr, "dashboard listen address")
	debug := fs.Bool("debug", false, "enable debug logging")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	var (
		cfg Config
		err error
	)
	if *configPath != "" {
		cfg, err = getYaml(*configPath)
		if err != nil {
			return Config{}, err
		}
	} else {
		cfg, err = getFromCLI(*apiBase, *accounts, *stakePeriods, *defaultAPY, *webAddr, *pollInterval, *httpTimeout, *debug)
		if err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks values that would make the client misbehave.
func (c Config) Validate() error {
	if c.APIBase == "" {
		return errors.New("api base URL is required")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("invalid poll interval %s", c.PollInterval)
	}
	if c.DefaultAPY.IsNegative() {
		return fmt.Errorf("invalid default APY %s", c.DefaultAPY)
	}
	for _, p := range c.StakePeriods {
		if p <= 0 {
			return fmt.Errorf("invalid staking period %d", p)
		}
	}
	return nil
}

func getFromCLI(apiBase, accounts, periods, apy, webAddr string,
	pollInterval, httpTimeout time.Duration, debug bool) (Config, error) {
	stakePeriods, err := parsePeriods(periods)
	if err != nil {
		return Config{}, fmt.Errorf("invalid --stakeperiods provided, --stakeperiods=%s: %w", periods, err)
	}
	defaultAPY, err := decimal.NewFromString(apy)
	if err != nil {
		return Config{}, fmt.Errorf("invalid --defaultapy provided, --defaultapy=%s", apy)
	}

	cfg := Defaults()
	cfg.APIBase = strings.TrimRight(apiBase, "/")
	cfg.Accounts = splitList(accounts)
	cfg.PollInterval = pollInterval
	cfg.HTTPTimeout = httpTimeout
	cfg.StakePeriods = stakePeriods
	cfg.DefaultAPY = defaultAPY
	cfg.WebAddr = webAddr
	cfg.Debug = debug

	return cfg, nil
}

func getYaml(path string) (Config, error) {
	var c ConfigTmp

	f, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(f, &c); err != nil {
		return Config{}, errors.Wrap(err, "parse yaml config")
	}

	cfg := Defaults()
	if c.APIBase != "" {
		cfg.APIBase = strings.TrimRight(c.APIBase, "/")
	}
	cfg.Accounts = c.Accounts
	if c.PollInterval > 0 {
		cfg.PollInterval = c.PollInterval
	}
	if c.HTTPTimeout > 0 {
		cfg.HTTPTimeout = c.HTTPTimeout
	}
	if c.LoginRedirectDelay > 0 {
		cfg.LoginRedirectDelay = c.LoginRedirectDelay
	}
	if c.StatusResetDelay > 0 {
		cfg.StatusResetDelay = c.StatusResetDelay
	}
	if len(c.StakePeriods) > 0 {
		cfg.StakePeriods = c.StakePeriods
	}
	if c.DefaultAPYStr != "" {
		apy, err := decimal.NewFromString(c.DefaultAPYStr)
		if err != nil {
			return Config{}, fmt.Errorf("incorrect 'default_apy' param in yaml config (must be a decimal), error: %w", err)
		}
		cfg.DefaultAPY = apy
	}
	if c.SnapshotWALDir != "" {
		cfg.SnapshotWALDir = c.SnapshotWALDir
	}
	if c.ActionWALDir != "" {
		cfg.ActionWALDir = c.ActionWALDir
	}
	cfg.SessionFile = c.SessionFile
	if c.WebAddr != "" {
		cfg.WebAddr = c.WebAddr
	}
	cfg.TLSDomains = c.TLSDomains
	if c.TLSCacheDir != "" {
		cfg.TLSCacheDir = c.TLSCacheDir
	}
	if c.HealthRetries > 0 {
		cfg.HealthRetries = c.HealthRetries
	}
	cfg.Debug = c.Debug

	return cfg, nil
}

// Save writes cfg as YAML to path. The API token is never written.
func Save(path string, cfg Config) error {
	tmp := ConfigTmp{
		APIBase:            cfg.APIBase,
		Accounts:           cfg.Accounts,
		PollInterval:       cfg.PollInterval,
		HTTPTimeout:        cfg.HTTPTimeout,
		LoginRedirectDelay: cfg.LoginRedirectDelay,
		StatusResetDelay:   cfg.StatusResetDelay,
		StakePeriods:       cfg.StakePeriods,
		DefaultAPYStr:      cfg.DefaultAPY.String(),
		SnapshotWALDir:     cfg.SnapshotWALDir,
		ActionWALDir:       cfg.ActionWALDir,
		SessionFile:        cfg.SessionFile,
		WebAddr:            cfg.WebAddr,
		TLSDomains:         cfg.TLSDomains,
		TLSCacheDir:        cfg.TLSCacheDir,
		HealthRetries:      cfg.HealthRetries,
		Debug:              cfg.Debug,
	}

	data, err := yaml.Marshal(tmp)
	if err != nil {
		return errors.Wrap(err, "marshal config")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "create config dir")
		}
	}
	return os.WriteFile(path, data, 0o644)
}

func applyEnv(cfg *Config) error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return errors.Wrap(err, "parse environment")
	}

	if o.APIBase != "" {
		cfg.APIBase = strings.TrimRight(o.APIBase, "/")
	}
	if o.APIToken != "" {
		cfg.APIToken = o.APIToken
	}
	if len(o.Accounts) > 0 {
		cfg.Accounts = splitList(strings.Join(o.Accounts, ","))
	}
	if o.PollInterval > 0 {
		cfg.PollInterval = o.PollInterval
	}
	if o.HTTPTimeout > 0 {
		cfg.HTTPTimeout = o.HTTPTimeout
	}
	if o.SessionFile != "" {
		cfg.SessionFile = o.SessionFile
	}
	if o.WebAddr != "" {
		cfg.WebAddr = o.WebAddr
	}
	if len(o.TLSDomains) > 0 {
		cfg.TLSDomains = splitList(strings.Join(o.TLSDomains, ","))
	}
	if o.Debug {
		cfg.Debug = true
	}
	return nil
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() Config {
	return Config{
		APIBase:            defaultAPIBase,
		PollInterval:       defaultPollInterval,
		HTTPTimeout:        defaultHTTPTimeout,
		LoginRedirectDelay: defaultLoginRedirectDelay,
		StatusResetDelay:   defaultStatusResetDelay,
		StakePeriods:       append([]int(nil), defaultStakePeriods...),
		DefaultAPY:         decimal.Zero,
		SnapshotWALDir:     defaultSnapshotWALDir,
		ActionWALDir:       defaultActionWALDir,
		WebAddr:            defaultWebAddr,
		TLSCacheDir:        defaultTLSCacheDir,
		HealthRetries:      defaultHealthRetries,
	}
}

func parsePeriods(raw string) ([]int, error) {
	var periods []int
	for _, p := range splitList(raw) {
		days, err := strconv.Atoi(p)
		if err != nil {
			return nil, err
		}
		periods = append(periods, days)
	}
	return periods, nil
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
