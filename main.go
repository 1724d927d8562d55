package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/illarion/stegvault/cmd"
	"github.com/illarion/stegvault/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		cmd.HandleError(err)
	}

	if err := cmd.NewApp(ctx, cfg).Run(os.Args); err != nil {
		stop()
		cmd.HandleError(err)
	}
}
