package repository

import (
	"context"
	"reflect"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lectern/pkg/model"
)

// MemorySessions is a process-local SessionStore. It is not persistent and is
// meant for development and tests.
type MemorySessions struct {
	mu       sync.RWMutex
	sessions map[model.SessionID]*model.Session
	messages map[model.SessionID][]*model.Message
	now      func() time.Time
}

// MemoryOption is a functional option for in-memory stores
type MemoryOption func(*memoryConfig)

type memoryConfig struct {
	now func() time.Time
}

// WithClock replaces time.Now for timestamps assigned by the store
func WithClock(now func() time.Time) MemoryOption {
	return func(c *memoryConfig) {
		c.now = now
	}
}

func newMemoryConfig(opts []MemoryOption) *memoryConfig {
	cfg := &memoryConfig{now: time.Now}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// NewMemorySessions creates an empty in-memory SessionStore
func NewMemorySessions(opts ...MemoryOption) *MemorySessions {
	cfg := newMemoryConfig(opts)
	return &MemorySessions{
		sessions: make(map[model.SessionID]*model.Session),
		messages: make(map[model.SessionID][]*model.Message),
		now:      cfg.now,
	}
}

func (s *MemorySessions) CreateSession(ctx context.Context, title string, userID model.UserID) (*model.Session, error) {
	now := s.now()
	session := &model.Session{
		ID:        model.NewSessionID(),
		UserID:    userID,
		Title:     title,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session

	copied := *session
	return &copied, nil
}

func (s *MemorySessions) GetSession(ctx context.Context, id model.SessionID) (*model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, goerr.Wrap(model.ErrSessionNotFound, "no such session", goerr.V("session_id", id))
	}

	copied := *session
	return &copied, nil
}

func (s *MemorySessions) ListSessionsByUser(ctx context.Context, userID model.UserID, limit int) ([]*model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*model.Session, 0)
	for _, session := range s.sessions {
		if session.UserID != userID {
			continue
		}
		copied := *session
		result = append(result, &copied)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *MemorySessions) AppendMessage(ctx context.Context, msg *model.Message) (*model.Message, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[msg.SessionID]
	if !ok {
		return nil, goerr.Wrap(model.ErrSessionNotFound, "cannot append message", goerr.V("session_id", msg.SessionID))
	}

	stored := *msg
	if stored.ID == "" {
		stored.ID = model.NewMessageID()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.now()
	}
	if stored.ContextSources == nil {
		stored.ContextSources = []model.Source{}
	}
	session.MessageCount++
	stored.Seq = session.MessageCount

	s.messages[msg.SessionID] = append(s.messages[msg.SessionID], &stored)

	result := stored
	return &result, nil
}

func (s *MemorySessions) ListMessages(ctx context.Context, sessionID model.SessionID) ([]*model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return nil, goerr.Wrap(model.ErrSessionNotFound, "cannot list messages", goerr.V("session_id", sessionID))
	}

	stored := s.messages[sessionID]
	result := make([]*model.Message, 0, len(stored))
	for _, msg := range stored {
		copied := *msg
		result = append(result, &copied)
	}

	model.SortMessages(result)
	return result, nil
}

func (s *MemorySessions) CloseSession(ctx context.Context, id model.SessionID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return false, nil
	}

	if session.Active {
		session.Active = false
		session.UpdatedAt = s.now()
	}
	return true, nil
}

// MemoryIndex is a process-local VectorIndex performing an exhaustive cosine scan.
// Searches only take the read lock.
type MemoryIndex struct {
	mu        sync.RWMutex
	dimension int
	passages  map[model.PassageID]*model.Passage
	seq       int64
	now       func() time.Time
}

// NewMemoryIndex creates an empty index accepting vectors of the given dimension
func NewMemoryIndex(dimension int, opts ...MemoryOption) *MemoryIndex {
	cfg := newMemoryConfig(opts)
	return &MemoryIndex{
		dimension: dimension,
		passages:  make(map[model.PassageID]*model.Passage),
		now:       cfg.now,
	}
}

func (x *MemoryIndex) Upsert(ctx context.Context, passage *model.Passage) error {
	if err := checkDimension(passage.Embedding, x.dimension); err != nil {
		return goerr.Wrap(err, "cannot upsert passage", goerr.V("passage_id", passage.ID))
	}
	if passage.ID == "" {
		return goerr.Wrap(model.ErrValidation, "passage id is empty")
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	// identical re-upserts keep their recency rank
	if existing, ok := x.passages[passage.ID]; ok && samePassage(existing, passage) {
		return nil
	}

	stored := *passage
	stored.Embedding = append([]float32(nil), passage.Embedding...)
	stored.Metadata = copyMetadata(passage.Metadata)
	stored.UpdatedAt = x.now()
	x.seq++
	stored.Seq = x.seq

	x.passages[stored.ID] = &stored
	return nil
}

func (x *MemoryIndex) Search(ctx context.Context, query []float32, limit int) ([]*model.RetrievalResult, error) {
	if limit < 1 {
		return nil, goerr.Wrap(model.ErrValidation, "limit must be positive", goerr.V("limit", limit))
	}
	if err := checkDimension(query, x.dimension); err != nil {
		return nil, goerr.Wrap(err, "cannot search index")
	}

	x.mu.RLock()
	results := make([]*model.RetrievalResult, 0, len(x.passages))
	for _, p := range x.passages {
		results = append(results, model.NewRetrievalResult(p, model.CosineSimilarity(query, p.Embedding)))
	}
	x.mu.RUnlock()

	model.RankResults(results)
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (x *MemoryIndex) Delete(ctx context.Context, id model.PassageID) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.passages, id)
	return nil
}

func (x *MemoryIndex) GetPassage(ctx context.Context, id model.PassageID) (*model.Passage, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	p, ok := x.passages[id]
	if !ok {
		return nil, goerr.Wrap(model.ErrPassageNotFound, "no such passage", goerr.V("passage_id", id))
	}

	copied := *p
	copied.Embedding = append([]float32(nil), p.Embedding...)
	copied.Metadata = copyMetadata(p.Metadata)
	return &copied, nil
}

func checkDimension(vec []float32, dimension int) error {
	if len(vec) != dimension {
		return goerr.Wrap(model.ErrDimensionMismatch, "unexpected vector length",
			goerr.V("expected", dimension),
			goerr.V("actual", len(vec)))
	}
	return nil
}

func samePassage(a, b *model.Passage) bool {
	return a.Text == b.Text &&
		slices.Equal(a.Embedding, b.Embedding) &&
		reflect.DeepEqual(copyMetadata(a.Metadata), copyMetadata(b.Metadata))
}

func copyMetadata(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
