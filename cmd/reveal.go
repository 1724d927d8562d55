package cmd

import (
	"errors"
	"fmt"

	"github.com/urfave/cli"

	"github.com/illarion/stegvault/internal/core"
	"github.com/illarion/stegvault/internal/crypto"
)

func (a *App) revealCommand() cli.Command {
	return cli.Command{
		Name:      "reveal",
		Usage:     "recover the payload hidden in an image",
		ArgsUsage: "<image>",
		Description: "Prints the payload to stdout, or writes it to --output. When the output\n" +
			"file already exists and differs, you are asked what to do unless one of\n" +
			"--force, --keep-local or --keep-both is given.",
		Flags: []cli.Flag{
			cli.StringFlag{Name: "output, o", Usage: "write the payload to this file"},
			cli.BoolFlag{Name: "legacy", Usage: "image holds a bare encrypted blob with no mode byte"},
			cli.BoolFlag{Name: "force", Usage: "overwrite an existing output file"},
			cli.BoolFlag{Name: "keep-local", Usage: "leave an existing output file alone"},
			cli.BoolFlag{Name: "keep-both", Usage: "save the payload next to an existing file as " + core.RevealedSuffix},
		},
		Action: a.reveal,
	}
}

func (a *App) reveal(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("reveal takes exactly one image")
	}
	force, keepLocal, keepBoth := c.Bool("force"), c.Bool("keep-local"), c.Bool("keep-both")
	if boolToInt(force)+boolToInt(keepLocal)+boolToInt(keepBoth) > 1 {
		return fmt.Errorf("--force, --keep-local and --keep-both are mutually exclusive")
	}

	strategy := core.StrategyAsk
	switch {
	case force:
		strategy = core.StrategyOverwrite
	case keepLocal:
		strategy = core.StrategyKeepLocal
	case keepBoth:
		strategy = core.StrategyKeepBoth
	}

	sv, err := a.open(false)
	if err != nil {
		return err
	}
	defer sv.Close()

	input := c.Args().First()
	res, password, source, err := a.revealImage(sv, input, core.RevealOptions{Legacy: c.Bool("legacy")})
	if err != nil {
		return err
	}
	defer crypto.ClearBytes(password)
	defer crypto.ClearBytes(res.Payload)

	output := c.String("output")
	if output == "" {
		if _, err := a.stdout.Write(res.Payload); err != nil {
			return err
		}
	} else {
		if strategy == core.StrategyAsk && !a.interactive() {
			strategy = core.StrategyAbort
		}
		wr, err := sv.WriteRevealed(a.ctx, output, res.Payload, strategy)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "%s: %s\n", wr.Action, wr.Path)
	}

	if source == SourcePrompt {
		a.offerToSavePassword(sv, password)
	}
	return nil
}

// revealImage reveals input, asking for a password only once the image
// turns out to be sealed. A stale keyring password falls back to a prompt.
func (a *App) revealImage(sv *core.Stegvault, input string, opts core.RevealOptions) (*core.RevealResult, []byte, PasswordSource, error) {
	password, source := a.cfg.PasswordBytes(), SourceEnv
	var err error
	if opts.Legacy && password == nil {
		if password, source, err = a.getPassword("Enter password: ", ledgerID(sv), false); err != nil {
			return nil, nil, source, err
		}
	}

	res, err := sv.Reveal(a.ctx, input, password, opts)
	if errors.Is(err, core.ErrPasswordRequired) {
		if password, source, err = a.getPassword("Enter password: ", ledgerID(sv), false); err != nil {
			return nil, nil, source, err
		}
		res, err = sv.Reveal(a.ctx, input, password, opts)
	}
	if errors.Is(err, core.ErrWrongPassword) && source == SourceKeyring {
		a.log.Warnf("Password from keyring does not open %s", input)
		crypto.ClearBytes(password)
		if password, source, err = a.promptPassword("Enter password: ", false); err != nil {
			return nil, nil, source, err
		}
		res, err = sv.Reveal(a.ctx, input, password, opts)
	}
	if err != nil {
		crypto.ClearBytes(password)
		return nil, nil, source, revealError(err)
	}
	return res, password, source, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
