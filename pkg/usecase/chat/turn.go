package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lectern/pkg/model"
	"github.com/m-mizutani/lectern/pkg/utils/logging"
)

// ChatInput is a user message. An empty SessionID starts a new session.
type ChatInput struct {
	SessionID model.SessionID
	UserID    model.UserID
	Message   string
}

// VoiceInput is a transcribed voice command. Context is free-form client state and is only logged.
type VoiceInput struct {
	SessionID model.SessionID
	UserID    model.UserID
	Input     string
	Context   string
}

// Chat runs one retrieval-augmented chat turn
func (uc *UseCase) Chat(ctx context.Context, input ChatInput) (*model.ChatResponse, error) {
	if strings.TrimSpace(input.Message) == "" {
		return nil, goerr.Wrap(model.ErrValidation, "message is empty")
	}

	started := uc.now()
	session, release, err := uc.beginTurn(ctx, input.SessionID, input.UserID, input.Message)
	if err != nil {
		return nil, err
	}
	defer release()

	ctx, logger := logging.WithAttrs(ctx, "session_id", session.ID)

	if _, err := uc.sessions.AppendMessage(ctx, &model.Message{
		SessionID:      session.ID,
		Role:           model.RoleUser,
		Content:        input.Message,
		Kind:           model.MessageKindText,
		ContextSources: []model.Source{},
	}); err != nil {
		return nil, goerr.Wrap(err, "failed to save user message")
	}

	degraded := false
	passages, err := uc.retriever.Retrieve(ctx, input.Message, uc.limit)
	if err != nil {
		if !errors.Is(err, model.ErrServiceUnavailable) && !errors.Is(err, model.ErrEncodingFailure) {
			return nil, goerr.Wrap(err, "failed to retrieve context")
		}
		logger.Warn("answering without course context", "error", err)
		uc.metrics.DegradedTurn()
		degraded = true
		passages = nil
	}

	answer, err := uc.synthesizer.Synthesize(ctx, input.Message, passages)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to synthesize response")
	}
	answeredAt := uc.now()

	sources := make([]model.Source, 0, len(passages))
	for _, p := range passages {
		sources = append(sources, p.Source())
	}

	if _, err := uc.sessions.AppendMessage(ctx, &model.Message{
		SessionID:      session.ID,
		Role:           model.RoleAssistant,
		Content:        answer,
		Kind:           model.MessageKindText,
		ContextSources: sources,
	}); err != nil {
		return nil, goerr.Wrap(err, "failed to save assistant message")
	}

	contextUsed := len(passages) > 0
	uc.metrics.ChatTurn(contextUsed)
	uc.record(ctx, &model.TurnRecord{
		SessionID:   session.ID,
		Kind:        model.TurnKindChat,
		ContextUsed: contextUsed,
		Degraded:    degraded,
		SourceCount: len(sources),
		LatencyMS:   answeredAt.Sub(started).Milliseconds(),
		CreatedAt:   answeredAt,
	})

	logger.Info("chat turn completed",
		"context_used", contextUsed,
		"sources", len(sources),
		"degraded", degraded)

	return &model.ChatResponse{
		SessionID:   session.ID,
		Response:    answer,
		Sources:     sources,
		Timestamp:   model.FormatTimestamp(answeredAt),
		ContextUsed: contextUsed,
	}, nil
}

// VoiceCommand classifies a voice command into a robot action and logs it in the session
func (uc *UseCase) VoiceCommand(ctx context.Context, input VoiceInput) (*model.VoiceResponse, error) {
	if strings.TrimSpace(input.Input) == "" {
		return nil, goerr.Wrap(model.ErrValidation, "voice input is empty")
	}

	started := uc.now()
	session, release, err := uc.beginTurn(ctx, input.SessionID, input.UserID, input.Input)
	if err != nil {
		return nil, err
	}
	defer release()

	ctx, logger := logging.WithAttrs(ctx, "session_id", session.ID)
	if input.Context != "" {
		logger.Debug("voice command context", "context", input.Context)
	}

	action, err := uc.classifier.Classify(ctx, input.Input)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to classify voice command")
	}

	if _, err := uc.sessions.AppendMessage(ctx, &model.Message{
		SessionID:      session.ID,
		Role:           model.RoleUser,
		Content:        input.Input,
		Kind:           model.MessageKindVoice,
		ContextSources: []model.Source{},
	}); err != nil {
		return nil, goerr.Wrap(err, "failed to save voice message")
	}

	if _, err := uc.sessions.AppendMessage(ctx, &model.Message{
		SessionID:      session.ID,
		Role:           model.RoleAssistant,
		Content:        fmt.Sprintf("Processed voice command: %s. Action: %s", input.Input, action.Kind),
		Kind:           model.MessageKindAction,
		ContextSources: []model.Source{},
	}); err != nil {
		return nil, goerr.Wrap(err, "failed to save action message")
	}
	processedAt := uc.now()

	uc.metrics.VoiceAction(string(action.Kind))
	uc.record(ctx, &model.TurnRecord{
		SessionID:  session.ID,
		Kind:       model.TurnKindVoice,
		ActionType: action.Kind,
		LatencyMS:  processedAt.Sub(started).Milliseconds(),
		CreatedAt:  processedAt,
	})

	logger.Info("voice command processed", "type", action.Kind)

	return &model.VoiceResponse{
		SessionID:        session.ID,
		OriginalInput:    input.Input,
		ProcessedAction:  *action,
		IntentConfidence: action.Confidence,
		Timestamp:        model.FormatTimestamp(processedAt),
	}, nil
}

// beginTurn resolves or creates the session and takes its turn lock.
// Nothing is written when an existing session is missing or rejected.
func (uc *UseCase) beginTurn(ctx context.Context, id model.SessionID, userID model.UserID, firstText string) (*model.Session, func(), error) {
	if id == "" {
		session, err := uc.sessions.CreateSession(ctx, model.SessionTitle(firstText), userID)
		if err != nil {
			return nil, nil, goerr.Wrap(err, "failed to create session")
		}
		logging.From(ctx).Info("session created", "session_id", session.ID)
		return session, uc.locks.lock(session.ID), nil
	}

	release := uc.locks.lock(id)
	session, err := uc.sessions.GetSession(ctx, id)
	if err != nil {
		release()
		return nil, nil, goerr.Wrap(err, "failed to resolve session")
	}
	if uc.rejectClosed && !session.Active {
		release()
		return nil, nil, goerr.Wrap(model.ErrSessionClosed, "session does not accept new turns", goerr.V("session_id", id))
	}
	return session, release, nil
}

func (uc *UseCase) record(ctx context.Context, turn *model.TurnRecord) {
	if uc.recorder == nil {
		return
	}
	if err := uc.recorder.Record(ctx, turn); err != nil {
		logging.From(ctx).Warn("failed to record turn", "error", err)
	}
}
