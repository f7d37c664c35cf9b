// ABOUTME: Layered configuration: defaults, YAML file, .env, then environment
// ABOUTME: Validates required credentials and checks bearer token expiry before a run
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/harperreed/latecancel/db"
	"github.com/harperreed/latecancel/sheets"
)

type Momence struct {
	AccessToken     string  `yaml:"-"`
	Cookies         string  `yaml:"-"`
	HostID          int64   `yaml:"host_id"`
	APIBase         string  `yaml:"api_base"`
	ReadonlyAPIBase string  `yaml:"readonly_api_base"`
	TargetTagIDs    []int64 `yaml:"target_tag_ids"`
	LateCancelTagID int64   `yaml:"late_cancel_tag_id"`
	PageSize        int     `yaml:"page_size"`
}

type Google struct {
	SheetID         string `yaml:"sheet_id"`
	ClientID        string `yaml:"-"`
	ClientSecret    string `yaml:"-"`
	RefreshToken    string `yaml:"-"`
	MemberSheet     string `yaml:"member_sheet"`
	LateCancelSheet string `yaml:"late_cancel_sheet"`
}

type Run struct {
	PropagationDelay time.Duration `yaml:"propagation_delay"`
	MemberBatchSize  int           `yaml:"member_batch_size"`
	MemberPause      time.Duration `yaml:"member_pause"`
	BookingBatchSize int           `yaml:"booking_batch_size"`
	TagPause         time.Duration `yaml:"tag_pause"`
	ReportPolls      int           `yaml:"report_polls"`
	ReportPollEvery  time.Duration `yaml:"report_poll_every"`
	Interval         time.Duration `yaml:"interval"`
	StaleRunAfter    time.Duration `yaml:"stale_run_after"`
	LedgerPath       string        `yaml:"ledger_path"`
}

type Server struct {
	ListenAddress string        `yaml:"listen_address"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
}

type Config struct {
	Momence  Momence `yaml:"momence"`
	Google   Google  `yaml:"google"`
	Run      Run     `yaml:"run"`
	Server   Server  `yaml:"server"`
	LogLevel string  `yaml:"log_level"`
}

// ErrTokenExpired means the Momence bearer token is a JWT past its expiry.
var ErrTokenExpired = errors.New("momence access token has expired")

// MissingError lists every required setting that has no value.
type MissingError struct {
	Keys []string
}

func (e *MissingError) Error() string {
	return "missing required configuration: " + strings.Join(e.Keys, ", ")
}

// Defaults returns the production settings before any file or env is applied.
func Defaults() *Config {
	return &Config{
		Momence: Momence{
			HostID:          13752,
			APIBase:         "https://api.momence.com",
			ReadonlyAPIBase: "https://readonly-api.momence.com",
			TargetTagIDs:    []int64{166700, 164561},
			LateCancelTagID: 164561,
			PageSize:        200,
		},
		Google: Google{
			MemberSheet:     "MembersCancellation",
			LateCancelSheet: "Late Cancelled",
		},
		Run: Run{
			PropagationDelay: 5 * time.Second,
			MemberBatchSize:  8,
			MemberPause:      500 * time.Millisecond,
			BookingBatchSize: 3,
			TagPause:         200 * time.Millisecond,
			ReportPolls:      10,
			ReportPollEvery:  2 * time.Second,
			Interval:         15 * time.Minute,
			StaleRunAfter:    time.Hour,
		},
		Server: Server{
			ListenAddress: ":8080",
			ReadTimeout:   10 * time.Second,
			WriteTimeout:  15 * time.Minute,
		},
		LogLevel: "info",
	}
}

// DefaultPath is the config file read when no --config is given.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, "latecancel", "config.yml")
}

// LoadOptions control where Load reads from. Zero values use the real
// environment, ./.env, and the saved OAuth token.
type LoadOptions struct {
	Path      string
	EnvFile   string
	Getenv    func(string) string
	LoadToken func() (string, error)
}

// Load builds the configuration. An explicit Path must exist; the default
// path is optional.
func Load(opts LoadOptions) (*Config, error) {
	c := Defaults()

	path, explicit := opts.Path, opts.Path != ""
	if !explicit {
		path = DefaultPath()
	}
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case explicit || !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("read config: %w", err)
	}

	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	dotenv, err := godotenv.Read(envFile)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", envFile, err)
	}

	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	lookup := func(key string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return strings.TrimSpace(dotenv[key])
	}

	if err := c.applyEnv(lookup); err != nil {
		return nil, err
	}

	if c.Google.RefreshToken == "" {
		loadToken := opts.LoadToken
		if loadToken == nil {
			loadToken = savedRefreshToken
		}
		if tok, err := loadToken(); err == nil {
			c.Google.RefreshToken = tok
		}
	}

	if c.Run.LedgerPath == "" {
		c.Run.LedgerPath = db.DefaultPath()
	}
	return c, nil
}

func savedRefreshToken() (string, error) {
	tok, err := sheets.LoadToken(sheets.TokenPath())
	if err != nil {
		return "", err
	}
	return tok.RefreshToken, nil
}

func (c *Config) applyEnv(lookup func(string) string) error {
	strs := map[string]*string{
		"MOMENCE_ACCESS_TOKEN":      &c.Momence.AccessToken,
		"MOMENCE_ALL_COOKIES":       &c.Momence.Cookies,
		"MOMENCE_API_BASE":          &c.Momence.APIBase,
		"MOMENCE_READONLY_API_BASE": &c.Momence.ReadonlyAPIBase,
		"GOOGLE_SHEET_ID":           &c.Google.SheetID,
		"GOOGLE_CLIENT_ID":          &c.Google.ClientID,
		"GOOGLE_CLIENT_SECRET":      &c.Google.ClientSecret,
		"GOOGLE_REFRESH_TOKEN":      &c.Google.RefreshToken,
		"LATECANCEL_LOG_LEVEL":      &c.LogLevel,
		"LATECANCEL_LEDGER_PATH":    &c.Run.LedgerPath,
	}
	for key, dst := range strs {
		if v := lookup(key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int64{
		"MOMENCE_HOST_ID":            &c.Momence.HostID,
		"MOMENCE_LATE_CANCEL_TAG_ID": &c.Momence.LateCancelTagID,
	}
	for key, dst := range ints {
		v := lookup(key)
		if v == "" {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, v, err)
		}
		*dst = n
	}

	if v := lookup("MOMENCE_TARGET_TAG_IDS"); v != "" {
		ids, err := parseIDs(v)
		if err != nil {
			return fmt.Errorf("invalid MOMENCE_TARGET_TAG_IDS: %w", err)
		}
		c.Momence.TargetTagIDs = ids
	}
	return nil
}

func parseIDs(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, n)
	}
	return ids, nil
}

// Validate reports every missing required setting at once.
func (c *Config) Validate() error {
	required := []struct {
		key   string
		value string
	}{
		{"MOMENCE_ACCESS_TOKEN", c.Momence.AccessToken},
		{"MOMENCE_ALL_COOKIES", c.Momence.Cookies},
		{"GOOGLE_SHEET_ID", c.Google.SheetID},
		{"GOOGLE_CLIENT_ID", c.Google.ClientID},
		{"GOOGLE_CLIENT_SECRET", c.Google.ClientSecret},
		{"GOOGLE_REFRESH_TOKEN", c.Google.RefreshToken},
	}
	var missing []string
	for _, r := range required {
		if r.value == "" {
			missing = append(missing, r.key)
		}
	}
	if len(c.Momence.TargetTagIDs) == 0 {
		missing = append(missing, "MOMENCE_TARGET_TAG_IDS")
	}
	if len(missing) > 0 {
		return &MissingError{Keys: missing}
	}
	return nil
}

// CheckTokenExpiry fails when the access token is a JWT whose exp claim is
// before now. Tokens that are not JWTs, or carry no exp, pass.
func (c *Config) CheckTokenExpiry(now time.Time) error {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(c.Momence.AccessToken, claims); err != nil {
		return nil
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	if now.After(exp.Time) {
		return fmt.Errorf("%w (expired %s)", ErrTokenExpired, exp.Time.UTC().Format(time.RFC3339))
	}
	return nil
}
