package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	server "github.com/m-mizutani/lectern/pkg/controller/http"
	"github.com/m-mizutani/lectern/pkg/metrics"
	"github.com/urfave/cli/v3"
)

func serveCommand() *cli.Command {
	var (
		cfg  config
		addr string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Aliases:     []string{"a"},
			Usage:       "Listen address of the HTTP API",
			Value:       ":8080",
			Sources:     cli.EnvVars("LECTERN_ADDR"),
			Destination: &addr,
		},
	}
	flags = append(flags, allFlags(&cfg)...)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the chat API over HTTP",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setup(ctx)
			defer cfg.close()

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			m := metrics.New()
			uc, engine, err := cfg.newChat(ctx, m)
			if err != nil {
				return err
			}

			gin.SetMode(gin.ReleaseMode)
			srv := server.New(uc,
				server.WithMetrics(m),
				server.WithRetriever(engine),
			)
			return srv.Run(ctx, addr)
		},
	}
}
