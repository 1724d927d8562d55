package cmd

import (
	"fmt"
	"os"

	"github.com/urfave/cli"
)

func (a *App) compactCommand() cli.Command {
	return cli.Command{
		Name:   "compact",
		Usage:  "compact the ledger to reclaim disk space",
		Action: a.compact,
	}
}

func (a *App) compact(c *cli.Context) error {
	sv, err := a.open(false)
	if err != nil {
		return err
	}
	defer sv.Close()

	before, err := fileSize(sv.LedgerPath())
	if err != nil {
		return err
	}
	if err := sv.Compact(); err != nil {
		return err
	}
	after, err := fileSize(sv.LedgerPath())
	if err != nil {
		return err
	}

	fmt.Fprintf(a.stdout, "Compacted: %s -> %s\n", formatSize(before), formatSize(after))
	return nil
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
