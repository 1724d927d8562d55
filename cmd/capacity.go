package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli"
)

func (a *App) capacityCommand() cli.Command {
	return cli.Command{
		Name:      "capacity",
		Usage:     "show how much an image can hold",
		ArgsUsage: "<image>",
		Action:    a.capacity,
	}
}

func (a *App) capacity(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("capacity takes exactly one image")
	}

	sv, err := a.open(true)
	if err != nil {
		return err
	}
	defer sv.Close()

	info, err := sv.Capacity(a.ctx, c.Args().First())
	if err != nil {
		return err
	}

	fmt.Fprintf(a.stdout, "Image:      %dx%d, %d channels\n", info.Width, info.Height, info.Channels)
	fmt.Fprintf(a.stdout, "Capacity:   %s bits\n", humanize.Comma(int64(info.Room.CapacityBits)))
	fmt.Fprintf(a.stdout, "Plain:      up to %s (%s bytes)\n", formatSize(int64(info.Room.MaxPlain)), humanize.Comma(int64(info.Room.MaxPlain)))
	fmt.Fprintf(a.stdout, "Encrypted:  up to %s (%s bytes)\n", formatSize(int64(info.Room.MaxSealed)), humanize.Comma(int64(info.Room.MaxSealed)))
	return nil
}
