package commands

import (
	"context"
	"fmt"

	"github.com/hay-kot/criterio"
	"github.com/urfave/cli/v3"

	"github.com/hay-kot/vgloss/internal/core/action"
	"github.com/hay-kot/vgloss/internal/core/gallery"
	"github.com/hay-kot/vgloss/internal/core/logging"
	"github.com/hay-kot/vgloss/internal/core/validate"
	"github.com/hay-kot/vgloss/internal/syncer"
	"github.com/hay-kot/vgloss/internal/vgloss"
	"github.com/hay-kot/vgloss/pkg/iojson"
)

type TagsCmd struct {
	flags *Flags
	app   *vgloss.App

	// flags
	jsonOutput bool
	parent     string
	reader     iojson.FileReader[[]gallery.Tag]
}

// NewTagsCmd creates a new tags command
func NewTagsCmd(flags *Flags, app *vgloss.App) *TagsCmd {
	return &TagsCmd{flags: flags, app: app}
}

// Register adds the tags command to the application
func (cmd *TagsCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "tags",
		Usage: "List and edit gallery tags",
		Commands: []*cli.Command{
			{
				Name:      "ls",
				Usage:     "List all tags",
				UsageText: "vgloss tags ls [--json]",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:        "json",
						Usage:       "output as JSON lines",
						Destination: &cmd.jsonOutput,
					},
				},
				Action: cmd.runList,
			},
			{
				Name:      "set",
				Usage:     "Replace the whole tag list",
				UsageText: "vgloss tags set -f tags.json",
				Description: `Replaces the tag list with the JSON array read from --file or stdin.

Tags missing from the list are deleted and removed from every file. New tags
may use any id starting with "tmp-"; the backend assigns real ids.`,
				Flags:  []cli.Flag{cmd.reader.Flag()},
				Action: cmd.runSet,
			},
			{
				Name:      "add",
				Usage:     "Create a tag",
				UsageText: "vgloss tags add NAME [--parent TAG]",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:        "parent",
						Usage:       "parent tag id or name",
						Destination: &cmd.parent,
					},
				},
				Action: cmd.runAdd,
			},
		},
	})

	return app
}

func (cmd *TagsCmd) runList(ctx context.Context, c *cli.Command) error {
	client, err := cmd.app.Client()
	if err != nil {
		return err
	}
	b, err := syncer.LoadBootstrap(ctx, client, cmd.app.Server())
	if err != nil {
		return err
	}

	out := c.Root().Writer
	if cmd.jsonOutput {
		for _, t := range b.Tags {
			if err := iojson.WriteLine(out, t); err != nil {
				return fmt.Errorf("encode tag: %w", err)
			}
		}
		return nil
	}

	printTags(out, b.Tags)
	return nil
}

func (cmd *TagsCmd) runSet(ctx context.Context, c *cli.Command) error {
	tags, err := cmd.reader.Read()
	if err != nil {
		return err
	}
	if err := validate.Tags(tags); err != nil {
		return fmt.Errorf("invalid tag list: %w", err)
	}

	ctx = logging.WithCommand(ctx, "tags set")
	s, err := cmd.app.Connect(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	if err := s.Apply(ctx, action.NewTagUpdate(tags)); err != nil {
		return deliveryError(cmd.app, s, err)
	}

	printTags(c.Root().Writer, s.Engine.Store().Tags())
	return nil
}

func (cmd *TagsCmd) runAdd(ctx context.Context, c *cli.Command) error {
	if c.Args().Len() != 1 {
		return fmt.Errorf("expected exactly one tag name")
	}
	name := c.Args().First()
	if err := criterio.ValidateStruct(validate.TagNameField("name", name)); err != nil {
		return err
	}

	ctx = logging.WithCommand(ctx, "tags add")
	s, err := cmd.app.Connect(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	tags := s.Engine.Store().Tags()
	tag := gallery.Tag{ID: gallery.NewTempTagID(), Name: name}
	if cmd.parent != "" {
		parent, err := resolveTag(tags, cmd.parent)
		if err != nil {
			return err
		}
		tag.Parent = &parent
	}

	if err := s.Apply(ctx, action.NewTagUpdate(append(tags, tag))); err != nil {
		return deliveryError(cmd.app, s, err)
	}

	// the follow-up from the backend replaced the temporary id
	tags = s.Engine.Store().Tags()
	id := tag.ID
	if len(tags) > 0 && tags[len(tags)-1].Name == name {
		id = tags[len(tags)-1].ID
	}
	_, _ = fmt.Fprintln(c.Root().Writer, id)
	return nil
}
