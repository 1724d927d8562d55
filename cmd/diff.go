package cmd

import (
	"fmt"

	"github.com/urfave/cli"

	"github.com/illarion/stegvault/internal/core"
	"github.com/illarion/stegvault/internal/crypto"
)

func (a *App) diffCommand() cli.Command {
	return cli.Command{
		Name:      "diff",
		Usage:     "compare the payload hidden in an image with a local file",
		ArgsUsage: "<image> <file>",
		Flags: []cli.Flag{
			cli.BoolFlag{Name: "legacy", Usage: "image holds a bare encrypted blob with no mode byte"},
		},
		Action: a.diff,
	}
}

func (a *App) diff(c *cli.Context) error {
	if c.NArg() != 2 {
		return fmt.Errorf("diff takes an image and a file")
	}
	image, file := c.Args().Get(0), c.Args().Get(1)

	sv, err := a.open(false)
	if err != nil {
		return err
	}
	defer sv.Close()

	opts := core.RevealOptions{Legacy: c.Bool("legacy")}
	// resolve the password once, then let Diff reveal again with it
	res, password, _, err := a.revealImage(sv, image, opts)
	if err != nil {
		return err
	}
	crypto.ClearBytes(res.Payload)
	defer crypto.ClearBytes(password)

	out, err := sv.Diff(a.ctx, image, file, password, opts)
	if err != nil {
		return revealError(err)
	}
	if out == "" {
		fmt.Fprintf(a.stdout, "%s matches the payload in %s\n", file, image)
		return nil
	}
	fmt.Fprint(a.stdout, out)
	return nil
}
