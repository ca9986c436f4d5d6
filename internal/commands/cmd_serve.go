package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/hay-kot/vgloss/internal/core/logging"
	"github.com/hay-kot/vgloss/internal/server"
	"github.com/hay-kot/vgloss/internal/vgloss"
	"github.com/hay-kot/vgloss/pkg/iojson"
)

type ServeCmd struct {
	flags *Flags
	app   *vgloss.App

	// flags
	addr string
	seed string
}

// NewServeCmd creates a new serve command
func NewServeCmd(flags *Flags, app *vgloss.App) *ServeCmd {
	return &ServeCmd{flags: flags, app: app}
}

// Register adds the serve command to the application
func (cmd *ServeCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "serve",
		Usage:     "Run the reference gallery backend",
		UsageText: "vgloss serve [--addr ADDR] [--seed FILE]",
		Description: `Serves an in-memory gallery over HTTP with the endpoints the sync
client talks to. --seed loads the initial tags, folders and files from a JSON
file shaped like {"tags": [...], "folders": [...], "files": [...]}.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address (defaults to serve.addr)",
				Destination: &cmd.addr,
			},
			&cli.StringFlag{
				Name:        "seed",
				Usage:       "JSON seed file (defaults to serve.seed)",
				Destination: &cmd.seed,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *ServeCmd) run(ctx context.Context, c *cli.Command) error {
	cfg := cmd.app.Config
	addr := cmd.addr
	if addr == "" {
		addr = cfg.Serve.Addr
	}
	seedPath := cmd.seed
	if seedPath == "" {
		seedPath = cfg.Serve.Seed
	}

	var seed server.Seed
	if seedPath != "" {
		var err error
		if seed, err = iojson.ReadFile[server.Seed](seedPath); err != nil {
			return fmt.Errorf("read seed: %w", err)
		}
	}

	g, err := server.NewGallery(seed)
	if err != nil {
		return fmt.Errorf("load seed: %w", err)
	}
	srv := server.New(g, logging.Component("server"), server.WithCSRF(cfg.CSRF.Cookie, cfg.CSRF.Header))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return srv.ListenAndServe(gctx, addr)
	})
	return group.Wait()
}
