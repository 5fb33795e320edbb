package cli

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lectern/pkg/model"
	"github.com/m-mizutani/lectern/pkg/usecase/chat"
	"github.com/urfave/cli/v3"
)

func voiceCommand() *cli.Command {
	var (
		cfg       config
		input     string
		sessionID model.SessionID
		userID    model.UserID
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "input",
			Aliases:     []string{"i"},
			Usage:       "Transcribed voice command",
			Destination: &input,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "session-id",
			Aliases:     []string{"id"},
			Usage:       "Chat session logging the command. A new session starts when omitted",
			Sources:     cli.EnvVars("LECTERN_SESSION_ID"),
			Destination: (*string)(&sessionID),
		},
		&cli.StringFlag{
			Name:        "user-id",
			Aliases:     []string{"u"},
			Usage:       "User owning a new session",
			Sources:     cli.EnvVars("LECTERN_USER_ID"),
			Destination: (*string)(&userID),
		},
	}
	flags = append(flags, allFlags(&cfg)...)

	return &cli.Command{
		Name:  "voice",
		Usage: "Classify a voice command into a robot action",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setup(ctx)
			defer cfg.close()

			uc, _, err := cfg.newChat(ctx, nil)
			if err != nil {
				return err
			}

			resp, err := uc.VoiceCommand(ctx, chat.VoiceInput{
				SessionID: sessionID,
				UserID:    userID,
				Input:     input,
			})
			if err != nil {
				return goerr.Wrap(err, "failed to process voice command")
			}

			return printJSON(c.Root().Writer, resp)
		},
	}
}
