package cmd

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli"

	"github.com/illarion/stegvault/internal/core"
	"github.com/illarion/stegvault/internal/git"
)

func (a *App) statusCommand() cli.Command {
	return cli.Command{
		Name:    "status",
		Aliases: []string{"ls"},
		Usage:   "list recorded images and check them",
		Description: "Checks every image in the ledger without a password: unchanged, modified\n" +
			"with the payload intact, damaged, or missing.",
		Action: a.status,
	}
}

func (a *App) status(c *cli.Context) error {
	sv, err := a.open(false)
	if err != nil {
		return err
	}
	defer sv.Close()

	info, err := sv.Status(a.ctx)
	if errors.Is(err, core.ErrNotInitialized) {
		fmt.Fprintf(a.stdout, "No %s ledger in this directory\n", a.cfg.Ledger)
		fmt.Fprintln(a.stdout, "Hidden images are recorded here once you run 'stegvault hide'")
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(a.stdout, "Ledger: %s\n", sv.LedgerPath())
	if info.LedgerID != "" {
		fmt.Fprintf(a.stdout, "  ID: %s\n", info.LedgerID)
	}
	if !info.LastHidden.IsZero() {
		fmt.Fprintf(a.stdout, "  Last change: %s\n", humanize.Time(info.LastHidden))
	}
	if info.KDFIterations > 0 {
		fmt.Fprintf(a.stdout, "  Encryption: %s, %s iterations\n", info.Algorithm, humanize.Comma(int64(info.KDFIterations)))
	}

	fmt.Fprintf(a.stdout, "\nImages: %d (%s hidden)\n", len(info.Images), formatSize(info.TotalPayload))
	if len(info.Images) == 0 {
		fmt.Fprintln(a.stdout, "  (none)")
	}
	for _, img := range info.Images {
		fmt.Fprintf(a.stdout, "  %s %s  %s, %s", statusIcon(img.Status), img.Path, img.Mode, formatSize(img.PayloadSize))
		if img.Source != "" {
			fmt.Fprintf(a.stdout, " from %s", img.Source)
		}
		fmt.Fprintf(a.stdout, " (%s)\n", img.Status)
	}

	if info.ModifiedCount+info.DamagedCount+info.MissingCount > 0 {
		fmt.Fprintf(a.stdout, "\n%d unchanged, %d modified, %d damaged, %d missing\n",
			info.UnchangedCount, info.ModifiedCount, info.DamagedCount, info.MissingCount)
	}

	fmt.Fprint(a.stdout, git.FormatExposure(info.Exposure))
	return nil
}

func statusIcon(status string) string {
	switch status {
	case core.StatusUnchanged:
		return "*"
	case core.StatusModified:
		return "~"
	case core.StatusDamaged:
		return "!"
	case core.StatusMissing:
		return "-"
	default:
		return "?"
	}
}
