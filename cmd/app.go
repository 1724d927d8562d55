package cmd

import (
	"bufio"
	"context"
	"io"
	"os"

	"github.com/urfave/cli"

	"github.com/illarion/stegvault/internal/config"
	"github.com/illarion/stegvault/internal/core"
	"github.com/illarion/stegvault/internal/logger"
)

// Version is set at build time
var Version = "dev"

// App carries what every command needs: configuration, logging, the
// working directory and the standard streams.
type App struct {
	ctx context.Context
	cfg *config.Config
	log logger.Logger
	dir string

	stdin    *bufio.Reader
	stdout   io.Writer
	stderr   io.Writer
	prompter *core.Prompter

	// interactive reports whether prompts can be shown
	interactive func() bool
	// readPassword prompts for a password; confirm asks twice
	readPassword func(prompt string, confirm bool) ([]byte, error)
}

// NewApp creates an App working on the current directory
func NewApp(ctx context.Context, cfg *config.Config) *App {
	level, _ := logger.ParseLevel(cfg.LogLevel)
	return &App{
		ctx:         ctx,
		cfg:         cfg,
		log:         logger.NewLogger(level),
		dir:         ".",
		stdin:       bufio.NewReader(os.Stdin),
		stdout:      os.Stdout,
		stderr:      os.Stderr,
		prompter:    &core.Prompter{In: os.Stdin, Out: os.Stderr},
		interactive: core.IsInteractive,
		readPassword: func(prompt string, confirm bool) ([]byte, error) {
			if confirm {
				return core.ReadPasswordConfirm()
			}
			return core.ReadPassword(prompt)
		},
	}
}

// CLI builds the command tree
func (a *App) CLI() *cli.App {
	app := cli.NewApp()
	app.Name = "stegvault"
	app.Usage = "hide files and messages in images"
	app.Version = Version
	app.Writer = a.stdout
	app.ErrWriter = a.stderr
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "verbose",
			Usage: "log debug output to stderr",
		},
		cli.StringFlag{
			Name:  "level, l",
			Usage: "log level (debug, info, warn, error)",
			Value: a.cfg.LogLevel,
		},
	}
	app.Before = func(c *cli.Context) error {
		name := c.String("level")
		if c.Bool("verbose") {
			name = "debug"
		}
		level, err := logger.ParseLevel(name)
		if err != nil {
			return err
		}
		log := logger.NewLogger(level)
		log.SetWriter(a.stderr)
		a.log = log
		return nil
	}
	app.Commands = []cli.Command{
		a.initCommand(),
		a.hideCommand(),
		a.revealCommand(),
		a.capacityCommand(),
		a.statusCommand(),
		a.diffCommand(),
		a.forgetCommand(),
		a.passwdCommand(),
		a.compactCommand(),
		a.keyringCommand(),
		a.serveCommand(),
		a.completionCommand(),
	}
	return app
}

// Run parses args (including the program name) and runs the command
func (a *App) Run(args []string) error {
	return a.CLI().Run(args)
}

// open returns a workspace handle configured from the environment
func (a *App) open(noLedger bool) (*core.Stegvault, error) {
	return core.New(a.dir, core.Options{
		Ledger:   a.cfg.Ledger,
		NoLedger: noLedger || a.cfg.NoLedger,
		Envelope: a.cfg.Envelope(),
		Logger:   a.log,
		Prompter: a.prompter,
	})
}
