package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/m-mizutani/lectern/pkg/service/mcp"
	"github.com/urfave/cli/v3"
)

func mcpCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve course search, chat and voice tools over MCP stdio",
		Flags: allFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setup(ctx)
			defer cfg.close()

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			uc, engine, err := cfg.newChat(ctx, nil)
			if err != nil {
				return err
			}

			return mcp.New(uc, engine).Run(ctx)
		},
	}
}
