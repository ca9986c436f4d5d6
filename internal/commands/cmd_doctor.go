package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/vgloss/internal/core/doctor"
	"github.com/hay-kot/vgloss/internal/core/styles"
	"github.com/hay-kot/vgloss/internal/vgloss"
	"github.com/hay-kot/vgloss/pkg/iojson"
)

type DoctorCmd struct {
	flags  *Flags
	app    *vgloss.App
	format string
}

func NewDoctorCmd(flags *Flags, app *vgloss.App) *DoctorCmd {
	return &DoctorCmd{flags: flags, app: app}
}

func (cmd *DoctorCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:        "doctor",
		Usage:       "Run health checks on your vgloss setup",
		UsageText:   "vgloss doctor [options]",
		Description: "Runs diagnostic checks on configuration, the gallery backend, and the journal.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "format",
				Usage:       "output format (text, json)",
				Value:       "text",
				Destination: &cmd.format,
			},
		},
		Action: cmd.run,
	})
	return app
}

func (cmd *DoctorCmd) run(ctx context.Context, c *cli.Command) error {
	client, err := cmd.app.Client()
	if err != nil {
		return err
	}

	results := doctor.RunAll(ctx, []doctor.Check{
		doctor.NewConfigCheck(cmd.app.Config, cmd.flags.ConfigPath),
		doctor.NewBackendCheck(client, cmd.app.Server()),
		doctor.NewJournalCheck(cmd.app.KV),
	})

	if cmd.format == "json" {
		return cmd.outputJSON(c, results)
	}

	return cmd.outputText(c.Root().Writer, results)
}

func (cmd *DoctorCmd) outputJSON(c *cli.Command, results []doctor.Result) error {
	passed, warned, failed := doctor.Summary(results)

	out := struct {
		Healthy bool            `json:"healthy"`
		Summary summaryJSON     `json:"summary"`
		Checks  []doctor.Result `json:"checks"`
	}{
		Healthy: failed == 0,
		Summary: summaryJSON{Passed: passed, Warned: warned, Failed: failed},
		Checks:  results,
	}

	return iojson.WriteWith(c.Root().Writer, os.Stderr, out)
}

type summaryJSON struct {
	Passed int `json:"passed"`
	Warned int `json:"warned"`
	Failed int `json:"failed"`
}

func (cmd *DoctorCmd) outputText(w io.Writer, results []doctor.Result) error {
	divider := styles.MutedStyle.Render(strings.Repeat("─", 40))

	_, _ = fmt.Fprintln(w, styles.HeaderStyle.Render("vgloss doctor"))
	_, _ = fmt.Fprintln(w, divider)
	_, _ = fmt.Fprintln(w)

	for _, result := range results {
		_, _ = fmt.Fprintln(w, styles.ValueStyle.Bold(true).Render(result.Name))

		for _, item := range result.Items {
			var detail string
			if item.Detail != "" {
				detail = " " + styles.MutedStyle.Render(item.Detail)
			}

			var icon string
			switch item.Status {
			case doctor.StatusPass:
				icon = styles.SuccessStyle.Render("✔")
			case doctor.StatusWarn:
				icon = styles.WarningStyle.Render("●")
			case doctor.StatusFail:
				icon = styles.ErrorStyle.Render("✘")
			}

			_, _ = fmt.Fprintf(w, "  %s %s%s\n", icon, item.Label, detail)
		}

		_, _ = fmt.Fprintln(w)
	}

	passed, warned, failed := doctor.Summary(results)
	summary := fmt.Sprintf("%s  %s  %s",
		styles.SuccessStyle.Render(fmt.Sprintf("%d passed", passed)),
		styles.WarningStyle.Render(fmt.Sprintf("%d warnings", warned)),
		styles.ErrorStyle.Render(fmt.Sprintf("%d failed", failed)),
	)
	_, _ = fmt.Fprintln(w, summary)

	if failed > 0 {
		return cli.Exit("", 1)
	}

	return nil
}
