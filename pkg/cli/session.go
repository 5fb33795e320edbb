package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lectern/pkg/model"
	"github.com/m-mizutani/lectern/pkg/usecase/chat"
	"github.com/urfave/cli/v3"
)

func sessionCommand() *cli.Command {
	return &cli.Command{
		Name:  "session",
		Usage: "Inspect and close chat sessions",
		Commands: []*cli.Command{
			sessionShowCommand(),
			sessionMessagesCommand(),
			sessionCloseCommand(),
			sessionListCommand(),
		},
	}
}

// sessionStoreFlags returns the flags needed to reach the session store only
func sessionStoreFlags(cfg *config) []cli.Flag {
	var flags []cli.Flag
	flags = append(flags, logFlags(cfg)...)
	flags = append(flags, storeFlags(cfg)...)
	flags = append(flags, chatFlags(cfg)...)
	return flags
}

// newSessionUseCase builds a chat UseCase for session management. Turns are
// never run through it, so retrieval and synthesis stay unwired.
func (cfg *config) newSessionUseCase(ctx context.Context) (*chat.UseCase, error) {
	sessions, err := cfg.newSessionStore(ctx)
	if err != nil {
		return nil, err
	}

	var opts []chat.Option
	if cfg.archiveBucket != "" {
		a, err := cfg.newArchive(ctx)
		if err != nil {
			return nil, err
		}
		opts = append(opts, chat.WithTranscriptArchive(a))
	}
	return chat.New(sessions, nil, nil, nil, opts...), nil
}

func sessionIDFlag(id *model.SessionID) cli.Flag {
	return &cli.StringFlag{
		Name:        "session-id",
		Aliases:     []string{"id"},
		Usage:       "Chat session ID",
		Sources:     cli.EnvVars("LECTERN_SESSION_ID"),
		Destination: (*string)(id),
		Required:    true,
	}
}

func sessionShowCommand() *cli.Command {
	var (
		cfg       config
		sessionID model.SessionID
	)
	flags := append([]cli.Flag{sessionIDFlag(&sessionID)}, sessionStoreFlags(&cfg)...)

	return &cli.Command{
		Name:  "show",
		Usage: "Show a chat session",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setup(ctx)
			defer cfg.close()

			uc, err := cfg.newSessionUseCase(ctx)
			if err != nil {
				return err
			}

			session, err := uc.GetSession(ctx, sessionID)
			if err != nil {
				return goerr.Wrap(err, "failed to show session")
			}
			return printJSON(c.Root().Writer, session)
		},
	}
}

func sessionMessagesCommand() *cli.Command {
	var (
		cfg       config
		sessionID model.SessionID
	)
	flags := append([]cli.Flag{sessionIDFlag(&sessionID)}, sessionStoreFlags(&cfg)...)

	return &cli.Command{
		Name:  "messages",
		Usage: "Print the messages of a chat session in order",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setup(ctx)
			defer cfg.close()

			uc, err := cfg.newSessionUseCase(ctx)
			if err != nil {
				return err
			}

			if _, err := uc.GetSession(ctx, sessionID); err != nil {
				return goerr.Wrap(err, "failed to show messages")
			}
			msgs, err := uc.ListMessages(ctx, sessionID)
			if err != nil {
				return goerr.Wrap(err, "failed to show messages")
			}

			w := c.Root().Writer
			for _, msg := range msgs {
				fmt.Fprintf(w, "[%s] %s (%s): %s\n",
					model.FormatTimestamp(msg.CreatedAt), msg.Role, msg.Kind, msg.Content)
			}
			return nil
		},
	}
}

func sessionCloseCommand() *cli.Command {
	var (
		cfg       config
		sessionID model.SessionID
	)
	flags := append([]cli.Flag{sessionIDFlag(&sessionID)}, sessionStoreFlags(&cfg)...)

	return &cli.Command{
		Name:  "close",
		Usage: "Close a chat session",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setup(ctx)
			defer cfg.close()

			uc, err := cfg.newSessionUseCase(ctx)
			if err != nil {
				return err
			}

			if err := uc.CloseSession(ctx, sessionID); err != nil {
				return goerr.Wrap(err, "failed to close session")
			}
			fmt.Fprintf(c.Root().Writer, "Session closed successfully\n")
			return nil
		},
	}
}

func sessionListCommand() *cli.Command {
	var (
		cfg    config
		userID model.UserID
		limit  int64
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "user-id",
			Aliases:     []string{"u"},
			Usage:       "User whose sessions are listed",
			Sources:     cli.EnvVars("LECTERN_USER_ID"),
			Destination: (*string)(&userID),
			Required:    true,
		},
		&cli.IntFlag{
			Name:        "limit",
			Aliases:     []string{"l"},
			Usage:       "Maximum number of sessions to list (0 for all)",
			Value:       20,
			Destination: &limit,
		},
	}
	flags = append(flags, sessionStoreFlags(&cfg)...)

	return &cli.Command{
		Name:  "list",
		Usage: "List a user's chat sessions, newest first",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setup(ctx)
			defer cfg.close()

			uc, err := cfg.newSessionUseCase(ctx)
			if err != nil {
				return err
			}

			sessions, err := uc.ListSessions(ctx, userID, int(limit))
			if err != nil {
				return goerr.Wrap(err, "failed to list sessions")
			}

			w := c.Root().Writer
			for _, s := range sessions {
				status := "active"
				if !s.Active {
					status = "closed"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", s.ID, s.Title, status)
			}
			return nil
		},
	}
}
