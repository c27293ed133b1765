package setup

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/dyosync/config"
)

// DefaultConfigFile is where the wizard writes its result.
const DefaultConfigFile = "config.gen.yaml"

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

// Answers are the raw wizard inputs.
type Answers struct {
	APIBase      string
	Token        string
	Accounts     string
	PollInterval string
	StakePeriods string
	DefaultAPY   string
	WebAddr      string
}

func defaultAnswers() Answers {
	return Answers{
		APIBase:      "http://localhost:8080",
		PollInterval: "15s",
		StakePeriods: "30,90,180,365",
		DefaultAPY:   "12",
		WebAddr:      ":8090",
	}
}

type tokenStore interface {
	SetToken(token string) error
}

// RunTUI launches the terminal configuration wizard, writes the YAML config
// to path and stores the API token in the session.
func RunTUI(path string, session tokenStore) error {
	a := defaultAnswers()
	var confirm bool

	step := func(title string) {
		fmt.Print("\033[H\033[2J")
		fmt.Println(headerStyle.Render("DYOSYNC SETUP"))
		fmt.Println(stepStyle.Render(title))
	}

	step("STEP 1: PLATFORM API")
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Where balances and staking live.\n"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("API base URL").
				Value(&a.APIBase).
				Validate(validateURL),
			huh.NewInput().
				Title("API token").
				Description("Optional; balances load without it, staking needs it").
				Value(&a.Token).
				EchoMode(huh.EchoModePassword),
		),
	).Run()
	if err != nil {
		return err
	}

	step("STEP 2: ACCOUNTS")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewText().
				Title("Accounts to sync").
				Description("Wallet addresses or user ids, comma or newline separated").
				Value(&a.Accounts).
				Validate(validateAccounts),
			huh.NewInput().
				Title("Poll interval").
				Description("Duration string (e.g. 15s, 1m)").
				Value(&a.PollInterval).
				Validate(validateDuration),
		),
	).Run()
	if err != nil {
		return err
	}

	step("STEP 3: STAKING")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Staking periods (days)").
				Value(&a.StakePeriods).
				Validate(func(s string) error {
					_, err := parsePeriods(s)
					return err
				}),
			huh.NewInput().
				Title("Default APY %").
				Description("Shown, marked as fallback, when the server reports none").
				Value(&a.DefaultAPY).
				Validate(validateAPY),
			huh.NewInput().
				Title("Dashboard address").
				Value(&a.WebAddr),
		),
	).Run()
	if err != nil {
		return err
	}

	step("FINAL CONFIRMATION")
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary(a)))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save configuration?").
				Affirmative("Yes, save and start").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return err
	}
	if !confirm {
		return fmt.Errorf("setup cancelled by user")
	}

	if err := Save(path, a, session); err != nil {
		return err
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(fmt.Sprintf("\n✓ Configuration saved to %s\nStarting sync...", path)))
	time.Sleep(1500 * time.Millisecond)
	return nil
}

// Save converts answers into a config file and stores the token, if any.
func Save(path string, a Answers, session tokenStore) error {
	cfg, err := BuildConfig(a)
	if err != nil {
		return err
	}
	if err := config.Save(path, cfg); err != nil {
		return errors.Wrap(err, "failed to save config file")
	}
	if token := strings.TrimSpace(a.Token); token != "" && session != nil {
		if err := session.SetToken(token); err != nil {
			return errors.Wrap(err, "failed to store API token")
		}
	}
	return nil
}

// BuildConfig validates answers and turns them into a Config.
func BuildConfig(a Answers) (config.Config, error) {
	if err := validateURL(a.APIBase); err != nil {
		return config.Config{}, err
	}
	if err := validateAccounts(a.Accounts); err != nil {
		return config.Config{}, err
	}
	poll, err := time.ParseDuration(strings.TrimSpace(a.PollInterval))
	if err != nil || poll <= 0 {
		return config.Config{}, fmt.Errorf("invalid poll interval %q", a.PollInterval)
	}
	periods, err := parsePeriods(a.StakePeriods)
	if err != nil {
		return config.Config{}, err
	}
	apy, err := decimal.NewFromString(strings.TrimSpace(a.DefaultAPY))
	if err != nil {
		return config.Config{}, fmt.Errorf("invalid default APY %q", a.DefaultAPY)
	}

	defaults := config.Defaults()
	defaults.APIBase = strings.TrimRight(strings.TrimSpace(a.APIBase), "/")
	defaults.Accounts = splitAccounts(a.Accounts)
	defaults.PollInterval = poll
	defaults.StakePeriods = periods
	defaults.DefaultAPY = apy
	if addr := strings.TrimSpace(a.WebAddr); addr != "" {
		defaults.WebAddr = addr
	}
	return defaults, nil
}

func summary(a Answers) string {
	token := "not set"
	if a.Token != "" {
		token = "set"
	}
	return fmt.Sprintf(
		"API: %s\nToken: %s\nAccounts: %s\nInterval: %s\nPeriods: %s\nDefault APY: %s%%\n",
		a.APIBase, token, strings.Join(splitAccounts(a.Accounts), ", "), a.PollInterval, a.StakePeriods, a.DefaultAPY,
	)
}

func validateURL(s string) error {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("must be an http(s) URL")
	}
	return nil
}

func validateAccounts(s string) error {
	if len(splitAccounts(s)) == 0 {
		return fmt.Errorf("at least one account is required")
	}
	return nil
}

func validateDuration(s string) error {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return err
	}
	if d <= 0 {
		return fmt.Errorf("must be positive")
	}
	return nil
}

func validateAPY(s string) error {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("must be a valid number")
	}
	if d.IsNegative() {
		return fmt.Errorf("must not be negative")
	}
	return nil
}

func parsePeriods(s string) ([]int, error) {
	var periods []int
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		days, err := strconv.Atoi(p)
		if err != nil || days <= 0 {
			return nil, fmt.Errorf("invalid period %q", p)
		}
		periods = append(periods, days)
	}
	if len(periods) == 0 {
		return nil, fmt.Errorf("at least one period is required")
	}
	return periods, nil
}

func splitAccounts(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '\n' || r == ' ' })
}
