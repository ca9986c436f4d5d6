package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/vgloss/internal/core/gallery"
	"github.com/hay-kot/vgloss/internal/syncer"
	"github.com/hay-kot/vgloss/internal/vgloss"
)

type FoldersCmd struct {
	flags *Flags
	app   *vgloss.App

	// flags
	match string
}

// NewFoldersCmd creates a new folders command
func NewFoldersCmd(flags *Flags, app *vgloss.App) *FoldersCmd {
	return &FoldersCmd{flags: flags, app: app}
}

// Register adds the folders command to the application
func (cmd *FoldersCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "folders",
		Usage: "Browse gallery folders",
		Commands: []*cli.Command{
			{
				Name:      "ls",
				Usage:     "List the subfolders of PATH",
				UsageText: "vgloss folders ls [PATH] [--match GLOB]",
				Description: `Without arguments lists the top-level folders.

--match prints every folder path matching a doublestar glob instead,
e.g. --match '2020/**'.`,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:        "match",
						Usage:       "glob matched against full folder paths",
						Destination: &cmd.match,
					},
				},
				Action: cmd.run,
			},
		},
	})

	return app
}

func (cmd *FoldersCmd) run(ctx context.Context, c *cli.Command) error {
	client, err := cmd.app.Client()
	if err != nil {
		return err
	}
	b, err := syncer.LoadBootstrap(ctx, client, cmd.app.Server())
	if err != nil {
		return err
	}

	var folders []string
	if cmd.match != "" {
		folders, err = gallery.MatchFolders(b.Folders, cmd.match)
		if err != nil {
			return fmt.Errorf("invalid --match pattern %q: %w", cmd.match, err)
		}
	} else {
		folders = gallery.ListFolders(b.Folders, c.Args().First())
	}

	out := c.Root().Writer
	for _, f := range folders {
		_, _ = fmt.Fprintln(out, f)
	}
	return nil
}
