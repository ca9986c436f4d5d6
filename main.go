package main

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/hay-kot/vgloss/internal/commands"
	"github.com/hay-kot/vgloss/internal/core/config"
	"github.com/hay-kot/vgloss/internal/core/logging"
	"github.com/hay-kot/vgloss/internal/core/styles"
	"github.com/hay-kot/vgloss/internal/data/db"
	"github.com/hay-kot/vgloss/internal/vgloss"
	"github.com/hay-kot/vgloss/pkg/logutils"
)

var (
	// Build information. Populated at build-time via -ldflags flag.
	// When installed via `go install module@version`, init() populates
	// these from runtime/debug.BuildInfo instead.
	version = "dev"
	commit  = "HEAD"
	date    = "now"
)

func build() string {
	v, c, d := version, commit, date

	if v == "dev" {
		if info, ok := debug.ReadBuildInfo(); ok {
			if mv := info.Main.Version; mv != "" && mv != "(devel)" {
				v = mv
			}
			for _, s := range info.Settings {
				switch s.Key {
				case "vcs.revision":
					c = s.Value
				case "vcs.time":
					d = s.Value
				}
			}
		}
	}

	short := c
	if len(c) > 7 {
		short = c[:7]
	}

	return fmt.Sprintf("%s (%s) %s", v, short, d)
}

func main() {
	ctx := context.Background()

	var (
		logCloser func()
		vglossApp = &vgloss.App{}
		database  *db.DB
	)

	flags := &commands.Flags{}

	app := &cli.Command{
		Name:      "vgloss",
		Usage:     "Tag and organize a photo gallery from the command line",
		UsageText: "vgloss [global options] command [command options]",
		Description: `vgloss edits the tags of a gallery backend. Edits are applied locally
first, then batched and delivered in order. Edits that cannot be delivered
are journaled and replayed by 'vgloss sync'.

Run 'vgloss serve' to start a local reference backend.`,
		Version: build(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error, fatal, panic)",
				Sources:     cli.EnvVars("VGLOSS_LOG_LEVEL"),
				Value:       "warn",
				Destination: &flags.LogLevel,
			},
			&cli.StringFlag{
				Name:        "log-file",
				Usage:       "path to log file (logs to stderr when unset)",
				Sources:     cli.EnvVars("VGLOSS_LOG_FILE"),
				Destination: &flags.LogFile,
			},
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to config file",
				Sources:     cli.EnvVars("VGLOSS_CONFIG"),
				Value:       commands.DefaultConfigPath(),
				Destination: &flags.ConfigPath,
			},
			&cli.StringFlag{
				Name:        "data-dir",
				Usage:       "path to data directory",
				Sources:     cli.EnvVars("VGLOSS_DATA_DIR"),
				Value:       commands.DefaultDataDir(),
				Destination: &flags.DataDir,
			},
			&cli.StringFlag{
				Name:        "server",
				Aliases:     []string{"s"},
				Usage:       "gallery backend URL (overrides the config file)",
				Destination: &flags.Server,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			logger, closer, err := logutils.New(flags.LogLevel, flags.LogFile)
			if err != nil {
				return ctx, fmt.Errorf("setup logger: %w", err)
			}
			log.Logger = logger.Hook(logging.ContextHook{})
			logCloser = closer

			cfg, err := config.Load(flags.ConfigPath, flags.DataDir)
			if err != nil {
				return ctx, fmt.Errorf("load config: %w", err)
			}
			if flags.Server != "" {
				cfg.Server = flags.Server
				if err := cfg.Validate(); err != nil {
					return ctx, fmt.Errorf("invalid --server: %w", err)
				}
			}
			flags.Config = cfg

			// Apply configured theme (validation ensures name is valid)
			palette, _ := styles.GetPalette(cfg.Theme)
			styles.SetTheme(palette)

			database, err = vgloss.OpenDatabase(cfg.DataDir, db.DefaultOpenOptions(), logging.Component("db"))
			if err != nil {
				return ctx, fmt.Errorf("open database: %w", err)
			}

			// Populate the pre-allocated App struct (commands already hold a pointer to it)
			*vglossApp = *vgloss.NewApp(cfg, database)

			return ctx, nil
		},
		After: func(ctx context.Context, c *cli.Command) error {
			if database != nil {
				if err := database.Close(); err != nil {
					log.Error().Err(err).Msg("failed to close database")
					return err
				}
			}

			if logCloser != nil {
				logCloser()
			}
			return nil
		},
	}

	app = commands.NewServeCmd(flags, vglossApp).Register(app)
	app = commands.NewTagsCmd(flags, vglossApp).Register(app)
	app = commands.NewFileCmd(flags, vglossApp).Register(app)
	app = commands.NewFoldersCmd(flags, vglossApp).Register(app)
	app = commands.NewSyncCmd(flags, vglossApp).Register(app)
	app = commands.NewStatusCmd(flags, vglossApp).Register(app)
	app = commands.NewDoctorCmd(flags, vglossApp).Register(app)

	exitCode := 0
	runErr := app.Run(ctx, os.Args)
	if runErr != nil {
		fmt.Println()
		fmt.Println(runErr.Error())
		exitCode = 1
	}

	os.Exit(exitCode)
}
