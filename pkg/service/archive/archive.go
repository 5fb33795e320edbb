package archive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"path"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lectern/pkg/adapter"
	"github.com/m-mizutani/lectern/pkg/model"
)

// Transcript is the exported form of a session
type Transcript struct {
	Session  *model.Session   `json:"session"`
	Messages []*model.Message `json:"messages"`
}

// Archive writes session transcripts to object storage as sessions/<id>.json
type Archive struct {
	storage adapter.Storage
	prefix  string
}

type Option func(*Archive)

// WithPrefix overrides the object key prefix (default "sessions")
func WithPrefix(prefix string) Option {
	return func(a *Archive) {
		a.prefix = prefix
	}
}

func New(storage adapter.Storage, opts ...Option) *Archive {
	a := &Archive{
		storage: storage,
		prefix:  "sessions",
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Key returns the object key of a session transcript
func (a *Archive) Key(id model.SessionID) string {
	return path.Join(a.prefix, string(id)+".json")
}

func (a *Archive) Save(ctx context.Context, session *model.Session, messages []*model.Message) error {
	key := a.Key(session.ID)
	w, err := a.storage.Put(ctx, key)
	if err != nil {
		return goerr.Wrap(err, "failed to open transcript writer", goerr.V("key", key))
	}

	if messages == nil {
		messages = []*model.Message{}
	}
	if err := json.NewEncoder(w).Encode(&Transcript{Session: session, Messages: messages}); err != nil {
		_ = w.Close()
		return goerr.Wrap(err, "failed to encode transcript", goerr.V("key", key))
	}

	if err := w.Close(); err != nil {
		return goerr.Wrap(err, "failed to commit transcript", goerr.V("key", key))
	}
	return nil
}

// Load reads a previously saved transcript. A session that was never archived
// is model.ErrSessionNotFound.
func (a *Archive) Load(ctx context.Context, id model.SessionID) (*Transcript, error) {
	key := a.Key(id)
	r, err := a.storage.Get(ctx, key)
	if errors.Is(err, adapter.ErrObjectNotFound) {
		return nil, goerr.Wrap(model.ErrSessionNotFound, "transcript not archived", goerr.V("session_id", id))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open transcript", goerr.V("key", key))
	}
	defer r.Close()

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read transcript", goerr.V("key", key))
	}

	var t Transcript
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, goerr.Wrap(err, "failed to decode transcript", goerr.V("key", key))
	}
	return &t, nil
}
