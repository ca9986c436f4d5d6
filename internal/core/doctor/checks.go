package doctor

import (
	"context"
	"fmt"
	"os"

	"github.com/hay-kot/vgloss/internal/core/config"
	"github.com/hay-kot/vgloss/internal/core/kv"
	"github.com/hay-kot/vgloss/internal/data/stores"
	"github.com/hay-kot/vgloss/internal/syncer"
)

// ConfigCheck reports where configuration came from and the sync settings
// in effect.
type ConfigCheck struct {
	cfg        *config.Config
	configPath string
}

// NewConfigCheck creates a new config check.
func NewConfigCheck(cfg *config.Config, configPath string) *ConfigCheck {
	return &ConfigCheck{cfg: cfg, configPath: configPath}
}

func (c *ConfigCheck) Name() string {
	return "Configuration"
}

func (c *ConfigCheck) Run(_ context.Context) Result {
	result := Result{Name: c.Name()}

	if _, err := os.Stat(c.configPath); err != nil {
		result.Items = append(result.Items, CheckItem{
			Label:  "config file",
			Status: StatusWarn,
			Detail: "not found, using defaults",
		})
	} else {
		result.Items = append(result.Items, CheckItem{
			Label:  "config file",
			Status: StatusPass,
			Detail: c.configPath,
		})
	}

	if c.cfg.Sync.Journal {
		result.Items = append(result.Items, CheckItem{Label: "journal", Status: StatusPass, Detail: "enabled"})
	} else {
		result.Items = append(result.Items, CheckItem{
			Label:  "journal",
			Status: StatusWarn,
			Detail: "disabled, undelivered actions are lost on exit",
		})
	}

	return result
}

// Backend is the transport used to probe the gallery backend.
type Backend interface {
	syncer.Transport
	CSRFToken(rawURL string) string
}

// BackendCheck verifies the gallery backend answers and issues a CSRF
// cookie, which every commit needs.
type BackendCheck struct {
	client Backend
	server string
}

// NewBackendCheck creates a new backend check.
func NewBackendCheck(client Backend, server string) *BackendCheck {
	return &BackendCheck{client: client, server: server}
}

func (c *BackendCheck) Name() string {
	return "Backend"
}

func (c *BackendCheck) Run(ctx context.Context) Result {
	result := Result{Name: c.Name()}

	b, err := syncer.LoadBootstrap(ctx, c.client, c.server)
	if err != nil {
		result.Items = append(result.Items, CheckItem{
			Label:  c.server,
			Status: StatusFail,
			Detail: err.Error(),
		})
		return result
	}
	result.Items = append(result.Items, CheckItem{
		Label:  c.server,
		Status: StatusPass,
		Detail: fmt.Sprintf("%d tags, %d folders", len(b.Tags), len(b.Folders)),
	})

	if c.client.CSRFToken(c.server) == "" {
		result.Items = append(result.Items, CheckItem{
			Label:  "csrf cookie",
			Status: StatusFail,
			Detail: "not issued, commits will be rejected",
		})
	} else {
		result.Items = append(result.Items, CheckItem{Label: "csrf cookie", Status: StatusPass})
	}

	return result
}

// JournalCheck warns about actions that were never delivered.
type JournalCheck struct {
	store kv.KV
}

// NewJournalCheck creates a new journal check.
func NewJournalCheck(store kv.KV) *JournalCheck {
	return &JournalCheck{store: store}
}

func (c *JournalCheck) Name() string {
	return "Journal"
}

func (c *JournalCheck) Run(ctx context.Context) Result {
	result := Result{Name: c.Name()}

	servers, err := stores.JournaledServers(ctx, c.store)
	if err != nil {
		result.Items = append(result.Items, CheckItem{Label: "journal", Status: StatusFail, Detail: err.Error()})
		return result
	}
	if len(servers) == 0 {
		result.Items = append(result.Items, CheckItem{Label: "journal", Status: StatusPass, Detail: "no undelivered actions"})
		return result
	}

	for _, server := range servers {
		queue, err := stores.NewQueueJournal(c.store, server).Load(ctx)
		if err != nil {
			result.Items = append(result.Items, CheckItem{Label: server, Status: StatusFail, Detail: err.Error()})
			continue
		}
		result.Items = append(result.Items, CheckItem{
			Label:  server,
			Status: StatusWarn,
			Detail: fmt.Sprintf("%d undelivered action(s), run 'vgloss sync'", len(queue)),
		})
	}
	return result
}
