package cmd

import (
	"fmt"

	"github.com/urfave/cli"
)

func (a *App) forgetCommand() cli.Command {
	return cli.Command{
		Name:      "forget",
		Aliases:   []string{"rm"},
		Usage:     "remove images from the ledger (files are left alone)",
		ArgsUsage: "<image> [image...]",
		Action:    a.forget,
	}
}

func (a *App) forget(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("forget requires at least one image")
	}

	sv, err := a.open(false)
	if err != nil {
		return err
	}
	defer sv.Close()

	removed, err := sv.Forget(a.ctx, c.Args())
	for _, path := range removed {
		fmt.Fprintf(a.stdout, "forgot: %s\n", path)
	}
	return err
}
