package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/vgloss/internal/core/logging"
	"github.com/hay-kot/vgloss/internal/vgloss"
)

type SyncCmd struct {
	flags *Flags
	app   *vgloss.App
}

// NewSyncCmd creates a new sync command
func NewSyncCmd(flags *Flags, app *vgloss.App) *SyncCmd {
	return &SyncCmd{flags: flags, app: app}
}

// Register adds the sync command to the application
func (cmd *SyncCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "sync",
		Usage:     "Deliver journaled actions",
		UsageText: "vgloss sync",
		Description: `Replays the actions an earlier command could not deliver to the
configured server and waits until the backend accepted them.`,
		Action: cmd.run,
	})

	return app
}

func (cmd *SyncCmd) run(ctx context.Context, c *cli.Command) error {
	ctx = logging.WithCommand(ctx, "sync")
	s, err := cmd.app.Connect(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	out := c.Root().Writer
	if s.Restored == 0 {
		_, _ = fmt.Fprintln(out, "Nothing to sync")
		return nil
	}

	if err := s.Engine.Flush(ctx); err != nil {
		return deliveryError(cmd.app, s, err)
	}
	_, _ = fmt.Fprintf(out, "Delivered %d action(s)\n", s.Restored)
	return nil
}
