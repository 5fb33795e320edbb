package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func searchCommand() *cli.Command {
	var (
		cfg   config
		query string
		limit int64
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "query",
			Aliases:     []string{"q"},
			Usage:       "Question or keywords to look up in the course content",
			Sources:     cli.EnvVars("LECTERN_SEARCH_QUERY"),
			Destination: &query,
			Required:    true,
		},
		&cli.IntFlag{
			Name:        "limit",
			Aliases:     []string{"l"},
			Usage:       "Maximum number of passages to return",
			Value:       5,
			Sources:     cli.EnvVars("LECTERN_SEARCH_LIMIT"),
			Destination: &limit,
		},
	}
	flags = append(flags, logFlags(&cfg)...)
	flags = append(flags, storeFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "search",
		Usage: "Search course passages by semantic similarity",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setup(ctx)
			defer cfg.close()

			engine, _, err := cfg.newRetrieval(ctx, nil)
			if err != nil {
				return err
			}

			results, err := engine.Retrieve(ctx, query, int(limit))
			if err != nil {
				return goerr.Wrap(err, "failed to search passages")
			}

			w := c.Root().Writer
			for i, r := range results {
				fmt.Fprintf(w, "%d. [%.4f] %s\n", i+1, r.Score, r.ID)
				fmt.Fprintf(w, "   %s\n", summarize(r.Text, 120))
			}
			if len(results) == 0 {
				fmt.Fprintf(w, "No passages found\n")
			}
			return nil
		},
	}
}

// summarize flattens whitespace and cuts text to n runes
func summarize(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}
