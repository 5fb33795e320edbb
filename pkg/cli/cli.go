package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

type Error struct {
	Code    int
	Message string
}

func Run(ctx context.Context, argv []string) *Error {
	loadDotEnv()

	cmd := &cli.Command{
		Name:  "lectern",
		Usage: "Course assistant for the robotics textbook: retrieval-augmented chat and voice commands",
		Commands: []*cli.Command{
			serveCommand(),
			chatCommand(),
			voiceCommand(),
			searchCommand(),
			ingestCommand(),
			sessionCommand(),
			mcpCommand(),
		},
	}

	if err := cmd.Run(ctx, argv); err != nil {
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}

// loadDotEnv reads .env from the working directory. Variables already set win.
func loadDotEnv() {
	wd, err := os.Getwd()
	if err != nil {
		return
	}
	_ = godotenv.Load(filepath.Join(wd, ".env"))
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return goerr.Wrap(err, "failed to marshal output")
	}
	fmt.Fprintf(w, "%s\n", string(data))
	return nil
}
