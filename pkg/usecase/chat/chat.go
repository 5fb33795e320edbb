package chat

import (
	"time"

	"github.com/m-mizutani/lectern/pkg/interfaces"
	"github.com/m-mizutani/lectern/pkg/metrics"
	"github.com/m-mizutani/lectern/pkg/usecase/retrieval"
)

// UseCase orchestrates chat turns, voice commands and session lifecycle
type UseCase struct {
	sessions    interfaces.SessionStore
	retriever   interfaces.Retriever
	synthesizer interfaces.Synthesizer
	classifier  interfaces.IntentClassifier

	recorder interfaces.TurnRecorder
	archive  interfaces.TranscriptArchive
	metrics  *metrics.Metrics

	limit        int
	rejectClosed bool
	now          func() time.Time
	locks        *sessionLocks
}

// Option is a functional option for UseCase
type Option func(*UseCase)

// WithRetrievalLimit sets the number of passages retrieved per turn
func WithRetrievalLimit(n int) Option {
	return func(uc *UseCase) {
		uc.limit = n
	}
}

// WithRejectClosedSession makes turns on a closed session fail with model.ErrSessionClosed
func WithRejectClosedSession() Option {
	return func(uc *UseCase) {
		uc.rejectClosed = true
	}
}

func WithTurnRecorder(recorder interfaces.TurnRecorder) Option {
	return func(uc *UseCase) {
		uc.recorder = recorder
	}
}

// WithTranscriptArchive exports the transcript of every closed session
func WithTranscriptArchive(archive interfaces.TranscriptArchive) Option {
	return func(uc *UseCase) {
		uc.archive = archive
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(uc *UseCase) {
		uc.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(uc *UseCase) {
		uc.now = now
	}
}

// New creates a new chat UseCase instance
func New(
	sessions interfaces.SessionStore,
	retriever interfaces.Retriever,
	synthesizer interfaces.Synthesizer,
	classifier interfaces.IntentClassifier,
	opts ...Option,
) *UseCase {
	uc := &UseCase{
		sessions:    sessions,
		retriever:   retriever,
		synthesizer: synthesizer,
		classifier:  classifier,
		limit:       retrieval.DefaultLimit,
		now:         time.Now,
		locks:       newSessionLocks(),
	}

	for _, opt := range opts {
		opt(uc)
	}

	return uc
}
