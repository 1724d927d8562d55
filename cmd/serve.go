package cmd

import (
	"github.com/urfave/cli"

	"github.com/illarion/stegvault/internal/server"
)

func (a *App) serveCommand() cli.Command {
	return cli.Command{
		Name:  "serve",
		Usage: "run the HTTP API",
		Flags: []cli.Flag{
			cli.StringFlag{
				Name:  "addr, a",
				Usage: "listen address",
				Value: a.cfg.Server.Addr,
			},
		},
		Action: a.serve,
	}
}

func (a *App) serve(c *cli.Context) error {
	sc := a.cfg.Server
	handler := server.NewHandler(sc, a.cfg.Envelope(), a.log)
	srv := server.New(c.String("addr"),
		server.WithLogger(a.log),
		server.WithTimeouts(sc.ReadTimeout, sc.WriteTimeout),
		server.WithShutdownTimeout(sc.ShutdownTimeout),
	)
	return srv.Run(a.ctx, handler)
}
