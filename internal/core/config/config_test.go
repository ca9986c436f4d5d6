package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hay-kot/criterio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func fieldNames(t *testing.T, err error) []string {
	t.Helper()
	var fieldErrs criterio.FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	names := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		names = append(names, fe.Field)
	}
	return names
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	dataDir := t.TempDir()

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), dataDir)
	require.NoError(t, err)

	want := DefaultConfig()
	want.DataDir = dataDir
	assert.Equal(t, want, *cfg)
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("", "/data")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000", cfg.Server)
	assert.True(t, cfg.Sync.Journal)
	assert.Equal(t, "/data", cfg.DataDir)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server: https://photos.example.com
sync:
  debounce: 50ms
  retry_initial: 1s
  retry_max: 1m
  journal: false
csrf:
  cookie: xsrf
serve:
  addr: 127.0.0.1:9000
theme: gruvbox
`)

	cfg, err := Load(path, t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "https://photos.example.com", cfg.Server)
	assert.Equal(t, 50*time.Millisecond, cfg.Sync.Debounce)
	assert.Equal(t, time.Second, cfg.Sync.RetryInitial)
	assert.Equal(t, time.Minute, cfg.Sync.RetryMax)
	assert.False(t, cfg.Sync.Journal)
	assert.Equal(t, "xsrf", cfg.CSRF.Cookie)
	assert.Equal(t, "127.0.0.1:9000", cfg.Serve.Addr)
	assert.Equal(t, "gruvbox", cfg.Theme)

	// untouched fields keep their defaults
	defaults := DefaultConfig()
	assert.Equal(t, defaults.Sync.CommitTimeout, cfg.Sync.CommitTimeout)
	assert.Equal(t, defaults.CSRF.Header, cfg.CSRF.Header)
}

func TestLoad_ZeroValuesGetDefaults(t *testing.T) {
	path := writeConfig(t, `
sync:
  debounce: 0s
csrf:
  header: ""
`)

	cfg, err := Load(path, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Sync.Debounce, cfg.Sync.Debounce)
	assert.Equal(t, DefaultConfig().CSRF.Header, cfg.CSRF.Header)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "server: http://from-file:8000\n")
	t.Setenv("VGLOSS_SERVER", "http://from-env:8000")
	t.Setenv("VGLOSS_SYNC_COMMIT_TIMEOUT", "3s")
	t.Setenv("VGLOSS_SYNC_JOURNAL", "false")

	cfg, err := Load(path, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "http://from-env:8000", cfg.Server)
	assert.Equal(t, 3*time.Second, cfg.Sync.CommitTimeout)
	assert.False(t, cfg.Sync.Journal)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		env     map[string]string
	}{
		{name: "bad yaml", content: "server: [\n"},
		{name: "bad duration", content: "sync:\n  debounce: soon\n"},
		{name: "invalid result", content: "server: ftp://example.com\n"},
		{name: "bad env duration", content: "", env: map[string]string{"VGLOSS_SYNC_RETRY_MAX": "later"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(writeConfig(t, tt.content), t.TempDir())
			assert.Error(t, err)
		})
	}
}

func TestLoad_DirectoryAsConfig(t *testing.T) {
	_, err := Load(t.TempDir(), t.TempDir())
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		fields []string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:   "empty server",
			mutate: func(c *Config) { c.Server = "" },
			fields: []string{"server"},
		},
		{
			name:   "server without scheme",
			mutate: func(c *Config) { c.Server = "localhost:8000" },
			fields: []string{"server"},
		},
		{
			name:   "server without host",
			mutate: func(c *Config) { c.Server = "http://" },
			fields: []string{"server"},
		},
		{
			name:   "missing data dir",
			mutate: func(c *Config) { c.DataDir = " " },
			fields: []string{"data_dir"},
		},
		{
			name: "blank csrf names",
			mutate: func(c *Config) {
				c.CSRF.Cookie = ""
				c.CSRF.Header = ""
			},
			fields: []string{"csrf.cookie", "csrf.header"},
		},
		{
			name:   "unknown theme",
			mutate: func(c *Config) { c.Theme = "solarized" },
			fields: []string{"theme"},
		},
		{
			name:   "negative debounce",
			mutate: func(c *Config) { c.Sync.Debounce = -time.Second },
			fields: []string{"sync.debounce"},
		},
		{
			name: "retry max below initial",
			mutate: func(c *Config) {
				c.Sync.RetryInitial = time.Minute
				c.Sync.RetryMax = time.Second
			},
			fields: []string{"sync.retry_max"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.DataDir = t.TempDir()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if len(tt.fields) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ElementsMatch(t, tt.fields, fieldNames(t, err))
		})
	}
}

func TestSyncerConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server = "http://gallery:8000"
	cfg.Sync.Debounce = time.Second

	sc := cfg.SyncerConfig()
	assert.Equal(t, "http://gallery:8000", sc.Server)
	assert.Equal(t, time.Second, sc.Debounce)
	assert.Equal(t, cfg.Sync.RetryMax, sc.RetryMax)
}
