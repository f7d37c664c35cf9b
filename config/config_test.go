package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/adrg/xdg"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/latecancel/db"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func noToken() (string, error) { return "", os.ErrNotExist }

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0600))
	return p
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "config.yml", `
momence:
  host_id: 1
  page_size: 50
  target_tag_ids: [1, 2]
google:
  sheet_id: from-yaml
  member_sheet: Members
run:
  member_pause: 2s
  interval: 30m
  report_polls: 20
log_level: warn
`)
	envPath := writeFile(t, dir, ".env", "GOOGLE_SHEET_ID=from-dotenv\nMOMENCE_HOST_ID=2\nMOMENCE_ALL_COOKIES=cookie=1\n")

	c, err := Load(LoadOptions{
		Path:    cfgPath,
		EnvFile: envPath,
		Getenv: envMap(map[string]string{
			"MOMENCE_HOST_ID":        "3",
			"MOMENCE_TARGET_TAG_IDS": "10, 20,30",
			"LATECANCEL_LOG_LEVEL":   "debug",
		}),
		LoadToken: noToken,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(3), c.Momence.HostID, "env beats .env and yaml")
	assert.Equal(t, "from-dotenv", c.Google.SheetID, ".env beats yaml")
	assert.Equal(t, "cookie=1", c.Momence.Cookies)
	assert.Equal(t, 50, c.Momence.PageSize, "yaml beats defaults")
	assert.Equal(t, []int64{10, 20, 30}, c.Momence.TargetTagIDs)
	assert.Equal(t, "Members", c.Google.MemberSheet)
	assert.Equal(t, "Late Cancelled", c.Google.LateCancelSheet)
	assert.Equal(t, 2*time.Second, c.Run.MemberPause)
	assert.Equal(t, 30*time.Minute, c.Run.Interval)
	assert.Equal(t, 3, c.Run.BookingBatchSize)
	assert.Equal(t, 20, c.Run.ReportPolls)
	assert.Equal(t, 2*time.Second, c.Run.ReportPollEvery)
	assert.Equal(t, "debug", c.LogLevel)
	assert.Equal(t, db.DefaultPath(), c.Run.LedgerPath)
}

func TestLoadMissingFiles(t *testing.T) {
	dir := t.TempDir()
	origHome := xdg.ConfigHome
	xdg.ConfigHome = dir
	defer func() { xdg.ConfigHome = origHome }()

	_, err := Load(LoadOptions{Path: filepath.Join(dir, "nope.yml"), EnvFile: filepath.Join(dir, ".env"), Getenv: envMap(nil), LoadToken: noToken})
	assert.Error(t, err, "explicit config path must exist")

	c, err := Load(LoadOptions{EnvFile: filepath.Join(dir, ".env"), Getenv: envMap(nil), LoadToken: noToken})
	require.NoError(t, err)
	assert.Equal(t, int64(13752), c.Momence.HostID)
	assert.Equal(t, []int64{166700, 164561}, c.Momence.TargetTagIDs)
}

func TestLoadRejectsBadNumbers(t *testing.T) {
	_, err := Load(LoadOptions{
		EnvFile:   filepath.Join(t.TempDir(), ".env"),
		Getenv:    envMap(map[string]string{"MOMENCE_HOST_ID": "abc"}),
		LoadToken: noToken,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MOMENCE_HOST_ID")
}

func TestRefreshTokenFallback(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	saved := func() (string, error) { return "saved-token", nil }

	c, err := Load(LoadOptions{EnvFile: envFile, Getenv: envMap(nil), LoadToken: saved})
	require.NoError(t, err)
	assert.Equal(t, "saved-token", c.Google.RefreshToken)

	c, err = Load(LoadOptions{EnvFile: envFile, Getenv: envMap(map[string]string{"GOOGLE_REFRESH_TOKEN": "env-token"}), LoadToken: saved})
	require.NoError(t, err)
	assert.Equal(t, "env-token", c.Google.RefreshToken)
}

func TestValidateListsAllMissingKeys(t *testing.T) {
	c := Defaults()
	c.Google.SheetID = "sheet"

	err := c.Validate()
	var missing *MissingError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, []string{
		"MOMENCE_ACCESS_TOKEN",
		"MOMENCE_ALL_COOKIES",
		"GOOGLE_CLIENT_ID",
		"GOOGLE_CLIENT_SECRET",
		"GOOGLE_REFRESH_TOKEN",
	}, missing.Keys)

	c.Momence.AccessToken = "t"
	c.Momence.Cookies = "c"
	c.Google.ClientID = "id"
	c.Google.ClientSecret = "secret"
	c.Google.RefreshToken = "r"
	assert.NoError(t, c.Validate())

	c.Momence.TargetTagIDs = nil
	require.True(t, errors.As(c.Validate(), &missing))
	assert.Equal(t, []string{"MOMENCE_TARGET_TAG_IDS"}, missing.Keys)
}

func TestCheckTokenExpiry(t *testing.T) {
	now := time.Date(2025, 10, 10, 0, 0, 0, 0, time.UTC)
	sign := func(claims jwt.MapClaims) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
		require.NoError(t, err)
		return s
	}

	tests := []struct {
		name    string
		token   string
		expired bool
	}{
		{name: "opaque token", token: "not-a-jwt"},
		{name: "no exp", token: sign(jwt.MapClaims{"sub": "host"})},
		{name: "future exp", token: sign(jwt.MapClaims{"exp": now.Add(time.Hour).Unix()})},
		{name: "past exp", token: sign(jwt.MapClaims{"exp": now.Add(-time.Hour).Unix()}), expired: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Defaults()
			c.Momence.AccessToken = tt.token
			err := c.CheckTokenExpiry(now)
			if tt.expired {
				assert.ErrorIs(t, err, ErrTokenExpired)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
