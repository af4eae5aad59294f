// Package config loads the operator configuration: a JSON file plus
// environment overrides for the secrets.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/example/visa-watch/internal/portal"
	"github.com/example/visa-watch/internal/selection"
)

type Config struct {
	Account   AccountConfig              `json:"account"`
	Target    TargetConfig               `json:"target"`
	Timing    TimingConfig               `json:"timing"`
	WebDriver WebDriverConfig            `json:"webdriver"`
	Run       RunConfig                  `json:"run"`
	Notify    map[string]json.RawMessage `json:"notify"`
	Journal   JournalConfig              `json:"journal"`
	Paths     PathsConfig                `json:"paths"`
}

type AccountConfig struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	ScheduleID string `json:"scheduleId"`
	Embassy    string `json:"embassy"`
}

type TargetConfig struct {
	WindowStart string `json:"windowStart"`
	WindowEnd   string `json:"windowEnd"`
	// AssignCutoff optionally forces notify-only for any candidate date
	// strictly before it.
	AssignCutoff  string `json:"assignCutoff"`
	CASFacilityID string `json:"casFacilityId"`
	UpdateCAS     bool   `json:"updateCas"`
}

// TimingConfig mirrors the operator-facing knobs. The retry bounds stay
// strings on purpose: a malformed bound falls back to a fixed interval at
// runtime instead of failing the load.
type TimingConfig struct {
	RetryLowerSec     string  `json:"retryLowerSec"`
	RetryUpperSec     string  `json:"retryUpperSec"`
	WorkLimitHours    float64 `json:"workLimitHours"`
	WorkCooldownHours float64 `json:"workCooldownHours"`
	BanCooldownHours  float64 `json:"banCooldownHours"`
}

type WebDriverConfig struct {
	HubAddress string `json:"hubAddress"`
	Headless   bool   `json:"headless"`
	UserAgent  string `json:"userAgent"`
}

type RunConfig struct {
	DryRun     bool `json:"dryRun"`
	SingleShot bool `json:"singleShot"`
}

type JournalConfig struct {
	DatabaseURL string `json:"databaseUrl"`
}

type PathsConfig struct {
	LogDir      string `json:"logDir"`
	ArtifactDir string `json:"artifactDir"`
	SessionFile string `json:"sessionFile"`
}

func DefaultConfig() *Config {
	return &Config{
		Timing: TimingConfig{
			RetryLowerSec:     "30",
			RetryUpperSec:     "90",
			WorkLimitHours:    1.0,
			WorkCooldownHours: 0.5,
			BanCooldownHours:  3.0,
		},
		WebDriver: WebDriverConfig{
			HubAddress: "http://localhost:9515",
			Headless:   true,
		},
		Paths: PathsConfig{
			LogDir:      ".",
			ArtifactDir: ".",
			SessionFile: ".visawatch-session",
		},
	}
}

func LoadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()
	return LoadFromReader(f)
}

// LoadFromReader decodes config over the defaults, applies env overrides,
// and validates.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()
	if err := json.NewDecoder(r).Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides lets secrets come from the environment instead of the
// file.
func applyEnvOverrides(cfg *Config) {
	envMap := map[string]*string{
		"VISAWATCH_ACCOUNT_EMAIL":    &cfg.Account.Email,
		"VISAWATCH_ACCOUNT_PASSWORD": &cfg.Account.Password,
		"VISAWATCH_WEBDRIVER_HUB":    &cfg.WebDriver.HubAddress,
		"VISAWATCH_DATABASE_URL":     &cfg.Journal.DatabaseURL,
	}
	for env, ptr := range envMap {
		if val := os.Getenv(env); val != "" {
			*ptr = val
		}
	}
}

// Validate catches configuration errors before the loop starts; all of these
// are fatal at startup.
func (c *Config) Validate() error {
	if c.Account.Email == "" || c.Account.Password == "" {
		return fmt.Errorf("config: account email and password are required")
	}
	if c.Account.ScheduleID == "" {
		return fmt.Errorf("config: account scheduleId is required")
	}
	if _, err := portal.LookupEmbassy(c.Account.Embassy); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := c.Window(); err != nil {
		return err
	}
	if _, err := c.Cutoff(); err != nil {
		return err
	}
	return nil
}

// Window parses the target acceptance range.
func (c *Config) Window() (selection.Window, error) {
	start, err := time.Parse(portal.DateFormat, c.Target.WindowStart)
	if err != nil {
		return selection.Window{}, fmt.Errorf("config: windowStart: %w", err)
	}
	end, err := time.Parse(portal.DateFormat, c.Target.WindowEnd)
	if err != nil {
		return selection.Window{}, fmt.Errorf("config: windowEnd: %w", err)
	}
	w := selection.Window{Start: start, End: end}
	if err := w.Validate(); err != nil {
		return selection.Window{}, fmt.Errorf("config: %w", err)
	}
	return w, nil
}

// Cutoff parses the assign cutoff; a zero time means none is configured.
func (c *Config) Cutoff() (time.Time, error) {
	if c.Target.AssignCutoff == "" {
		return time.Time{}, nil
	}
	d, err := time.Parse(portal.DateFormat, c.Target.AssignCutoff)
	if err != nil {
		return time.Time{}, fmt.Errorf("config: assignCutoff: %w", err)
	}
	return d, nil
}

func (c *Config) Embassy() portal.Embassy {
	e, _ := portal.LookupEmbassy(c.Account.Embassy)
	return e
}

func hours(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}

func (t TimingConfig) WorkLimit() time.Duration    { return hours(t.WorkLimitHours) }
func (t TimingConfig) WorkCooldown() time.Duration { return hours(t.WorkCooldownHours) }
func (t TimingConfig) BanCooldown() time.Duration  { return hours(t.BanCooldownHours) }
