package cmd

import (
	"fmt"

	"github.com/urfave/cli"
)

func (a *App) initCommand() cli.Command {
	return cli.Command{
		Name:   "init",
		Usage:  "create an empty ledger in the current directory",
		Action: a.initLedger,
	}
}

func (a *App) initLedger(c *cli.Context) error {
	sv, err := a.open(false)
	if err != nil {
		return err
	}
	defer sv.Close()

	if id := ledgerID(sv); id != "" {
		fmt.Fprintf(a.stdout, "%s already exists (ledger %s)\n", a.cfg.Ledger, id)
		return nil
	}
	id, err := sv.GetOrCreateLedgerID()
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Initialized %s (ledger %s)\n", a.cfg.Ledger, id)
	return nil
}
