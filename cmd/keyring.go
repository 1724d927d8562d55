package cmd

import (
	"fmt"

	"github.com/urfave/cli"

	"github.com/illarion/stegvault/internal/core"
	"github.com/illarion/stegvault/internal/crypto"
	"github.com/illarion/stegvault/internal/keyring"
)

func (a *App) keyringCommand() cli.Command {
	return cli.Command{
		Name:  "keyring",
		Usage: "manage the password stored in the OS keyring for this ledger",
		Subcommands: []cli.Command{
			{
				Name:      "save",
				Usage:     "store a password, checked against an image when one is given",
				ArgsUsage: "[image]",
				Action:    a.keyringSave,
			},
			{
				Name:   "delete",
				Usage:  "remove the stored password",
				Action: a.keyringDelete,
			},
			{
				Name:   "status",
				Usage:  "show whether a password is stored",
				Action: a.keyringStatus,
			},
		},
	}
}

func (a *App) keyringSave(c *cli.Context) error {
	sv, err := a.open(false)
	if err != nil {
		return err
	}
	defer sv.Close()

	password, _, err := a.promptPassword("Enter password: ", c.NArg() == 0)
	if err != nil {
		return err
	}
	defer crypto.ClearBytes(password)

	if c.NArg() > 0 {
		res, err := sv.Reveal(a.ctx, c.Args().First(), password, core.RevealOptions{})
		if err != nil {
			return revealError(err)
		}
		crypto.ClearBytes(res.Payload)
	}

	id, err := sv.GetOrCreateLedgerID()
	if err != nil {
		return err
	}
	if err := keyring.SavePassword(id, string(password)); err != nil {
		return fmt.Errorf("failed to save to keyring: %w", err)
	}
	fmt.Fprintln(a.stdout, "Password saved to keyring")
	return nil
}

func (a *App) keyringDelete(c *cli.Context) error {
	sv, err := a.open(false)
	if err != nil {
		return err
	}
	defer sv.Close()

	id := ledgerID(sv)
	if id == "" || !keyring.HasPassword(id) {
		fmt.Fprintln(a.stdout, "No password stored in keyring")
		return nil
	}
	if err := keyring.DeletePassword(id); err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, "Password removed from keyring")
	return nil
}

func (a *App) keyringStatus(c *cli.Context) error {
	sv, err := a.open(false)
	if err != nil {
		return err
	}
	defer sv.Close()

	if id := ledgerID(sv); id != "" && keyring.HasPassword(id) {
		fmt.Fprintln(a.stdout, "Password: stored in keyring")
	} else {
		fmt.Fprintln(a.stdout, "Password: not stored")
	}
	return nil
}
