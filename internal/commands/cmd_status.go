package commands

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/vgloss/internal/core/action"
	"github.com/hay-kot/vgloss/internal/core/styles"
	"github.com/hay-kot/vgloss/internal/data/stores"
	"github.com/hay-kot/vgloss/internal/vgloss"
	"github.com/hay-kot/vgloss/pkg/iojson"
)

type StatusCmd struct {
	flags *Flags
	app   *vgloss.App

	// flags
	jsonOutput bool
}

// JournalStatus summarizes the undelivered actions kept for one server.
type JournalStatus struct {
	Server  string         `json:"server"`
	Actions int            `json:"actions"`
	Kinds   map[string]int `json:"kinds"`
}

// NewStatusCmd creates a new status command
func NewStatusCmd(flags *Flags, app *vgloss.App) *StatusCmd {
	return &StatusCmd{flags: flags, app: app}
}

// Register adds the status command to the application
func (cmd *StatusCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "status",
		Usage:     "Show undelivered actions",
		UsageText: "vgloss status [--json]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "output as JSON lines",
				Destination: &cmd.jsonOutput,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *StatusCmd) run(ctx context.Context, c *cli.Command) error {
	journals, err := cmd.journals(ctx)
	if err != nil {
		return err
	}

	out := c.Root().Writer
	if cmd.jsonOutput {
		for _, j := range journals {
			if err := iojson.WriteLine(out, j); err != nil {
				return fmt.Errorf("encode status: %w", err)
			}
		}
		return nil
	}

	cmd.render(out, journals)
	return nil
}

func (cmd *StatusCmd) journals(ctx context.Context) ([]JournalStatus, error) {
	servers, err := stores.JournaledServers(ctx, cmd.app.KV)
	if err != nil {
		return nil, fmt.Errorf("list journals: %w", err)
	}

	journals := make([]JournalStatus, 0, len(servers))
	for _, server := range servers {
		queue, err := stores.NewQueueJournal(cmd.app.KV, server).Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("load journal for %s: %w", server, err)
		}
		js := JournalStatus{Server: server, Actions: len(queue), Kinds: map[string]int{}}
		for _, env := range queue {
			js.Kinds[string(env.Kind)]++
		}
		journals = append(journals, js)
	}
	return journals, nil
}

func (cmd *StatusCmd) render(w io.Writer, journals []JournalStatus) {
	cfg := cmd.app.Config
	journal := styles.SuccessStyle.Render("enabled")
	if !cfg.Sync.Journal {
		journal = styles.WarningStyle.Render("disabled")
	}

	_, _ = fmt.Fprintln(w, styles.HeaderStyle.Render("vgloss"))
	_, _ = fmt.Fprintln(w, styles.LabelStyle.Render("server")+styles.ValueStyle.Render(cfg.Server))
	_, _ = fmt.Fprintln(w, styles.LabelStyle.Render("data dir")+styles.ValueStyle.Render(cfg.DataDir))
	_, _ = fmt.Fprintln(w, styles.LabelStyle.Render("journal")+journal)
	_, _ = fmt.Fprintln(w)

	if len(journals) == 0 {
		_, _ = fmt.Fprintln(w, styles.SuccessStyle.Render("All actions delivered"))
		return
	}

	_, _ = fmt.Fprintln(w, styles.HeaderStyle.Render("Undelivered"))
	for _, j := range journals {
		kinds := make([]string, 0, len(j.Kinds))
		for _, k := range action.Kinds() {
			if n := j.Kinds[string(k)]; n > 0 {
				kinds = append(kinds, fmt.Sprintf("%s x%d", k, n))
			}
		}
		_, _ = fmt.Fprintf(w, "%s %s %s\n",
			styles.WarningStyle.Render(fmt.Sprintf("%3d", j.Actions)),
			styles.ValueStyle.Render(j.Server),
			styles.MutedStyle.Render("("+strings.Join(kinds, ", ")+")"),
		)
	}
}
