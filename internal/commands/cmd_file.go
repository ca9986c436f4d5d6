package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/hay-kot/criterio"
	"github.com/urfave/cli/v3"

	"github.com/hay-kot/vgloss/internal/core/action"
	"github.com/hay-kot/vgloss/internal/core/gallery"
	"github.com/hay-kot/vgloss/internal/core/logging"
	"github.com/hay-kot/vgloss/internal/core/validate"
	"github.com/hay-kot/vgloss/internal/vgloss"
)

type FileCmd struct {
	flags *Flags
	app   *vgloss.App
}

// NewFileCmd creates a new file command
func NewFileCmd(flags *Flags, app *vgloss.App) *FileCmd {
	return &FileCmd{flags: flags, app: app}
}

// Register adds the file command to the application
func (cmd *FileCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "file",
		Usage: "Tag and untag files",
		Commands: []*cli.Command{
			{
				Name:      "tag",
				Usage:     "Add tags to a file",
				UsageText: "vgloss file tag HASH TAG...",
				Action: func(ctx context.Context, c *cli.Command) error {
					return cmd.run(ctx, c, "file tag", action.AddFileTags)
				},
			},
			{
				Name:      "untag",
				Usage:     "Remove tags from a file",
				UsageText: "vgloss file untag HASH TAG...",
				Action: func(ctx context.Context, c *cli.Command) error {
					return cmd.run(ctx, c, "file untag", action.RemoveFileTags)
				},
			},
		},
	})

	return app
}

func (cmd *FileCmd) run(ctx context.Context, c *cli.Command, name string, build func(...gallery.FileTag) action.FileTagUpdate) error {
	args := c.Args().Slice()
	if len(args) < 2 {
		return fmt.Errorf("expected a file hash and at least one tag")
	}
	hash, refs := args[0], args[1:]
	if err := criterio.ValidateStruct(validate.FileHashField("hash", hash)); err != nil {
		return err
	}

	ctx = logging.WithCommand(ctx, name)
	s, err := cmd.app.Connect(ctx, vgloss.Files(hash))
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	tags := s.Engine.Store().Tags()
	pairs := make([]gallery.FileTag, 0, len(refs))
	for _, ref := range refs {
		id, err := resolveTag(tags, ref)
		if err != nil {
			return err
		}
		pairs = append(pairs, gallery.FileTag{File: hash, Tag: id})
	}

	if err := s.Apply(ctx, build(pairs...)); err != nil {
		return deliveryError(cmd.app, s, err)
	}

	files := s.Engine.Store().Files()
	if i := gallery.FindFile(files, hash); i >= 0 {
		_, _ = fmt.Fprintf(c.Root().Writer, "%s: %s\n", hash, strings.Join(fileTagNames(tags, files[i]), ", "))
	}
	return nil
}
