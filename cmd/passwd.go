package cmd

import (
	"fmt"

	"github.com/urfave/cli"

	"github.com/illarion/stegvault/internal/core"
	"github.com/illarion/stegvault/internal/crypto"
)

func (a *App) passwdCommand() cli.Command {
	return cli.Command{
		Name:      "passwd",
		Usage:     "re-encrypt the payload of an image under a new password",
		ArgsUsage: "<image>",
		Description: "Reveals the payload with the current password and hides it again with a\n" +
			"new one. The image is rewritten in place unless --output is given.",
		Flags: []cli.Flag{
			cli.StringFlag{Name: "output, o", Usage: "write the re-encrypted image here instead"},
			cli.BoolFlag{Name: "legacy", Usage: "image holds a bare encrypted blob with no mode byte"},
			cli.BoolFlag{Name: "no-encrypt", Usage: "store the payload in plain form instead"},
		},
		Action: a.passwd,
	}
}

func (a *App) passwd(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("passwd takes exactly one image")
	}
	image := c.Args().First()

	sv, err := a.open(false)
	if err != nil {
		return err
	}
	defer sv.Close()

	opts := core.RevealOptions{Legacy: c.Bool("legacy")}
	res, current, _, err := a.revealImage(sv, image, opts)
	if err != nil {
		return err
	}
	crypto.ClearBytes(res.Payload)
	defer crypto.ClearBytes(current)

	var next []byte
	if !c.Bool("no-encrypt") {
		fmt.Fprintln(a.stderr, "New password")
		if next, _, err = a.promptPassword("Enter password: ", true); err != nil {
			return err
		}
		defer crypto.ClearBytes(next)
	}

	report, err := sv.Reseal(a.ctx, image, c.String("output"), current, next, opts)
	if err != nil {
		return revealError(err)
	}
	fmt.Fprintf(a.stdout, "%s: %s\n", report.Mode, report.Output)
	return nil
}
