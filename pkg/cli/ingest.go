package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lectern/pkg/model"
	"github.com/m-mizutani/lectern/pkg/usecase/ingest"
	"github.com/urfave/cli/v3"
)

func ingestCommand() *cli.Command {
	var (
		cfg       config
		input     string
		batchSize int64
		remove    []string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "input",
			Aliases:     []string{"i"},
			Usage:       "Path to a YAML corpus of passages ({id, text, metadata} entries)",
			Destination: &input,
		},
		&cli.IntFlag{
			Name:        "batch-size",
			Usage:       "Number of passages encoded per request",
			Value:       ingest.DefaultBatchSize,
			Sources:     cli.EnvVars("LECTERN_INGEST_BATCH_SIZE"),
			Destination: &batchSize,
		},
		&cli.StringSliceFlag{
			Name:        "remove",
			Usage:       "Passage ID to delete from the index (repeatable)",
			Destination: &remove,
		},
	}
	flags = append(flags, logFlags(&cfg)...)
	flags = append(flags, storeFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "ingest",
		Usage: "Index course passages or remove them from the index",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if input == "" && len(remove) == 0 {
				return goerr.New("either --input or --remove is required")
			}

			ctx = cfg.setup(ctx)
			defer cfg.close()

			encoder, err := cfg.newEncoder(ctx)
			if err != nil {
				return err
			}
			index, err := cfg.newIndex(ctx)
			if err != nil {
				return err
			}
			uc := ingest.New(encoder, index, ingest.WithBatchSize(int(batchSize)))

			w := c.Root().Writer
			if len(remove) > 0 {
				ids := make([]model.PassageID, 0, len(remove))
				for _, id := range remove {
					ids = append(ids, model.PassageID(id))
				}
				if err := uc.Remove(ctx, ids); err != nil {
					return err
				}
				fmt.Fprintf(w, "Removed %d passages\n", len(ids))
			}

			if input != "" {
				docs, err := ingest.LoadCorpus(input)
				if err != nil {
					return err
				}
				ids, err := uc.Ingest(ctx, docs)
				if err != nil {
					return goerr.Wrap(err, "failed to ingest corpus", goerr.V("indexed", len(ids)))
				}
				fmt.Fprintf(w, "Indexed %d passages\n", len(ids))
			}

			return nil
		},
	}
}
