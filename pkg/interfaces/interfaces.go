package interfaces

import (
	"context"

	"github.com/m-mizutani/lectern/pkg/model"
)

// Encoder turns free text into fixed-length embedding vectors
type Encoder interface {
	// Encode returns the embedding of a single text
	Encode(ctx context.Context, text string) ([]float32, error)

	// EncodeBatch returns one embedding per text, preserving input order
	EncodeBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the length of produced vectors
	Dimension() int
}

// VectorIndex stores passages and searches them by cosine similarity
type VectorIndex interface {
	// Upsert inserts or replaces a passage by ID
	Upsert(ctx context.Context, passage *model.Passage) error

	// Search returns up to limit passages ranked by similarity to query
	Search(ctx context.Context, query []float32, limit int) ([]*model.RetrievalResult, error)

	// Delete removes a passage. Deleting an absent passage is not an error
	Delete(ctx context.Context, id model.PassageID) error

	// GetPassage retrieves a passage by ID
	GetPassage(ctx context.Context, id model.PassageID) (*model.Passage, error)
}

// SessionStore persists sessions and their ordered message logs
type SessionStore interface {
	CreateSession(ctx context.Context, title string, userID model.UserID) (*model.Session, error)
	GetSession(ctx context.Context, id model.SessionID) (*model.Session, error)
	ListSessionsByUser(ctx context.Context, userID model.UserID, limit int) ([]*model.Session, error)

	// AppendMessage stores msg and assigns its ID, CreatedAt and Seq when unset
	AppendMessage(ctx context.Context, msg *model.Message) (*model.Message, error)

	// ListMessages returns messages ordered by creation time
	ListMessages(ctx context.Context, sessionID model.SessionID) ([]*model.Message, error)

	// CloseSession marks a session inactive and reports whether it exists
	CloseSession(ctx context.Context, id model.SessionID) (bool, error)
}

// Retriever returns ranked passages for a query text
type Retriever interface {
	Retrieve(ctx context.Context, query string, limit int) ([]*model.RetrievalResult, error)
}

// Synthesizer produces the assistant response for a query and its retrieved context
type Synthesizer interface {
	Synthesize(ctx context.Context, query string, passages []*model.RetrievalResult) (string, error)
}

// IntentClassifier interprets a free-text voice command
type IntentClassifier interface {
	Classify(ctx context.Context, input string) (*model.VoiceAction, error)
}

// TurnRecorder receives one analytics record per completed turn
type TurnRecorder interface {
	Record(ctx context.Context, turn *model.TurnRecord) error
}

// TranscriptArchive exports the message log of a closed session
type TranscriptArchive interface {
	Save(ctx context.Context, session *model.Session, messages []*model.Message) error
}
