package chat

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lectern/pkg/model"
	"github.com/m-mizutani/lectern/pkg/utils/logging"
)

// CreateSession starts an empty session titled after the optional initial query
func (uc *UseCase) CreateSession(ctx context.Context, initialQuery string, userID model.UserID) (*model.Session, error) {
	session, err := uc.sessions.CreateSession(ctx, model.InitialSessionTitle(initialQuery), userID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create session")
	}
	logging.From(ctx).Info("session created", "session_id", session.ID)
	return session, nil
}

func (uc *UseCase) GetSession(ctx context.Context, id model.SessionID) (*model.Session, error) {
	session, err := uc.sessions.GetSession(ctx, id)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get session")
	}
	return session, nil
}

// ListMessages returns the session's messages in conversation order
func (uc *UseCase) ListMessages(ctx context.Context, id model.SessionID) ([]*model.Message, error) {
	msgs, err := uc.sessions.ListMessages(ctx, id)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list messages")
	}
	return msgs, nil
}

// ListSessions returns the user's sessions, newest first. limit <= 0 returns all.
func (uc *UseCase) ListSessions(ctx context.Context, userID model.UserID, limit int) ([]*model.Session, error) {
	sessions, err := uc.sessions.ListSessionsByUser(ctx, userID, limit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list sessions")
	}
	return sessions, nil
}

// CloseSession deactivates a session. Closing twice is not an error. When an
// archive is configured the transcript is exported; export failures are only logged.
func (uc *UseCase) CloseSession(ctx context.Context, id model.SessionID) error {
	release := uc.locks.lock(id)
	defer release()

	ok, err := uc.sessions.CloseSession(ctx, id)
	if err != nil {
		return goerr.Wrap(err, "failed to close session", goerr.V("session_id", id))
	}
	if !ok {
		return goerr.Wrap(model.ErrSessionNotFound, "cannot close session", goerr.V("session_id", id))
	}

	ctx, logger := logging.WithAttrs(ctx, "session_id", id)
	logger.Info("session closed")

	if uc.archive != nil {
		if err := uc.exportTranscript(ctx, id); err != nil {
			logger.Warn("failed to export transcript", "error", err)
		}
	}
	return nil
}

func (uc *UseCase) exportTranscript(ctx context.Context, id model.SessionID) error {
	session, err := uc.sessions.GetSession(ctx, id)
	if err != nil {
		return err
	}
	msgs, err := uc.sessions.ListMessages(ctx, id)
	if err != nil {
		return err
	}
	return uc.archive.Save(ctx, session, msgs)
}
