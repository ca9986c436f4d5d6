package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/hay-kot/criterio"

	"github.com/hay-kot/vgloss/internal/core/styles"
)

// Validate checks that the configuration is valid. Field problems are
// collected and returned together as criterio.FieldErrors.
func (c *Config) Validate() error {
	return criterio.ValidateStruct(
		criterio.Run("server", c.Server, serverURL),
		criterio.Run("data_dir", c.DataDir, notBlank),
		criterio.Run("csrf.cookie", c.CSRF.Cookie, notBlank),
		criterio.Run("csrf.header", c.CSRF.Header, notBlank),
		criterio.Run("serve.addr", c.Serve.Addr, notBlank),
		criterio.Run("theme", c.Theme, knownTheme),
		c.Sync.validate(),
	)
}

func (s SyncConfig) validate() error {
	var errs criterio.FieldErrorsBuilder

	durations := []struct {
		field string
		value time.Duration
	}{
		{"sync.debounce", s.Debounce},
		{"sync.commit_timeout", s.CommitTimeout},
		{"sync.retry_initial", s.RetryInitial},
		{"sync.retry_max", s.RetryMax},
	}
	for _, d := range durations {
		if d.value <= 0 {
			errs = errs.Append(d.field, fmt.Errorf("must be positive, got %s", d.value))
		}
	}

	if s.RetryInitial > 0 && s.RetryMax > 0 && s.RetryMax < s.RetryInitial {
		errs = errs.Append("sync.retry_max", fmt.Errorf("must not be less than sync.retry_initial (%s)", s.RetryInitial))
	}

	return errs.ToError()
}

func serverURL(v string) error {
	if v == "" {
		return fmt.Errorf("cannot be empty")
	}
	u, err := url.Parse(v)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host in %q", v)
	}
	return nil
}

func knownTheme(v string) error {
	if _, ok := styles.GetPalette(v); !ok {
		return fmt.Errorf("unknown theme %q, available: %s", v, strings.Join(styles.ThemeNames(), ", "))
	}
	return nil
}

func notBlank(v string) error {
	if strings.TrimSpace(v) == "" {
		return fmt.Errorf("cannot be empty")
	}
	return nil
}
