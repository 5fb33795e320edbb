package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/chzyer/readline"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lectern/pkg/model"
	"github.com/m-mizutani/lectern/pkg/usecase/chat"
	"github.com/urfave/cli/v3"
)

const voicePrefix = "/voice "

func chatCommand() *cli.Command {
	var (
		cfg       config
		sessionID model.SessionID
		userID    model.UserID
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "session-id",
			Aliases:     []string{"id"},
			Usage:       "Chat session to continue. A new session starts when omitted",
			Sources:     cli.EnvVars("LECTERN_SESSION_ID"),
			Destination: (*string)(&sessionID),
		},
		&cli.StringFlag{
			Name:        "user-id",
			Aliases:     []string{"u"},
			Usage:       "User owning new sessions",
			Sources:     cli.EnvVars("LECTERN_USER_ID"),
			Destination: (*string)(&userID),
		},
	}
	flags = append(flags, allFlags(&cfg)...)

	return &cli.Command{
		Name:  "chat",
		Usage: "Interactive chat with the course assistant",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setup(ctx)
			defer cfg.close()

			uc, _, err := cfg.newChat(ctx, nil)
			if err != nil {
				return err
			}

			rl, err := readline.NewEx(&readline.Config{
				Prompt:          "> ",
				HistoryFile:     historyFile(),
				InterruptPrompt: "^C",
				EOFPrompt:       "exit",
			})
			if err != nil {
				return goerr.Wrap(err, "failed to initialize readline")
			}
			defer rl.Close()

			w := c.Root().Writer
			fmt.Fprintf(w, "Chat session started. Prefix a line with %q to send a voice command. Type 'exit' to quit.\n", strings.TrimSpace(voicePrefix))

			repl := &chatREPL{uc: uc, w: w, sessionID: sessionID, userID: userID}
			for {
				line, err := rl.Readline()
				if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					return goerr.Wrap(err, "failed to read input")
				}

				line = strings.TrimSpace(line)
				if line == "exit" || line == "quit" {
					break
				}
				if line == "" {
					continue
				}

				if err := repl.handle(ctx, line); err != nil {
					// keep the session alive on per-turn errors
					fmt.Fprintf(w, "error: %v\n", err)
				}
			}

			if repl.sessionID != "" {
				fmt.Fprintf(w, "\nSession %s\n", repl.sessionID)
			}
			return nil
		},
	}
}

type chatREPL struct {
	uc        *chat.UseCase
	w         io.Writer
	sessionID model.SessionID
	userID    model.UserID
}

func (r *chatREPL) handle(ctx context.Context, line string) error {
	sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(r.w))
	sp.Suffix = " thinking..."
	sp.Start()

	if strings.HasPrefix(line, voicePrefix) {
		resp, err := r.uc.VoiceCommand(ctx, chat.VoiceInput{
			SessionID: r.sessionID,
			UserID:    r.userID,
			Input:     strings.TrimPrefix(line, voicePrefix),
		})
		sp.Stop()
		if err != nil {
			return err
		}
		r.sessionID = resp.SessionID
		return printJSON(r.w, resp.ProcessedAction)
	}

	resp, err := r.uc.Chat(ctx, chat.ChatInput{
		SessionID: r.sessionID,
		UserID:    r.userID,
		Message:   line,
	})
	sp.Stop()
	if err != nil {
		return err
	}
	r.sessionID = resp.SessionID

	fmt.Fprintf(r.w, "%s\n", resp.Response)
	if !resp.ContextUsed {
		fmt.Fprintf(r.w, "(no course content matched)\n")
	}
	return nil
}

// historyFile keeps REPL history under the user cache dir. Empty disables history.
func historyFile() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	dir = filepath.Join(dir, "lectern")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return ""
	}
	return filepath.Join(dir, "chat_history")
}
