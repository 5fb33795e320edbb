package repository

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lectern/pkg/model"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	collectionSessions = "sessions"
	collectionMessages = "messages"
	collectionPassages = "passages"
	collectionMeta     = "meta"
	docPassageCounter  = "passage_counter"

	fieldEmbedding      = "Embedding"
	fieldVectorDistance = "vector_distance"

	// Firestore caps FindNearest at 1000 neighbors
	maxNearestLimit = 1000
)

// Firestore implements both SessionStore and VectorIndex on Cloud Firestore.
// Passages are searched with FindNearest and require a vector index on the
// Embedding field with the configured dimension.
type Firestore struct {
	client    *firestore.Client
	dimension int
}

// FirestoreOption is a functional option for Firestore
type FirestoreOption func(*Firestore)

// WithDimension sets the expected embedding dimension (default 384)
func WithDimension(dimension int) FirestoreOption {
	return func(f *Firestore) {
		f.dimension = dimension
	}
}

// NewFirestore creates a new Firestore repository
func NewFirestore(ctx context.Context, projectID, databaseID string, opts ...FirestoreOption) (*Firestore, error) {
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("project_id", projectID),
			goerr.V("database_id", databaseID))
	}

	f := &Firestore{
		client:    client,
		dimension: model.DefaultDimension,
	}
	for _, opt := range opts {
		opt(f)
	}

	return f, nil
}

// Close releases the underlying client
func (f *Firestore) Close() error {
	return f.client.Close()
}

func (f *Firestore) sessionRef(id model.SessionID) *firestore.DocumentRef {
	return f.client.Collection(collectionSessions).Doc(string(id))
}

func (f *Firestore) CreateSession(ctx context.Context, title string, userID model.UserID) (*model.Session, error) {
	now := time.Now().UTC()
	session := &model.Session{
		ID:        model.NewSessionID(),
		UserID:    userID,
		Title:     title,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if _, err := f.sessionRef(session.ID).Create(ctx, session); err != nil {
		return nil, classify(err, "failed to create session", goerr.V("session_id", session.ID))
	}
	return session, nil
}

func (f *Firestore) GetSession(ctx context.Context, id model.SessionID) (*model.Session, error) {
	doc, err := f.sessionRef(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(model.ErrSessionNotFound, "no such session", goerr.V("session_id", id))
		}
		return nil, classify(err, "failed to get session", goerr.V("session_id", id))
	}

	var session model.Session
	if err := doc.DataTo(&session); err != nil {
		return nil, goerr.Wrap(err, "failed to decode session", goerr.V("session_id", id))
	}
	return &session, nil
}

func (f *Firestore) ListSessionsByUser(ctx context.Context, userID model.UserID, limit int) ([]*model.Session, error) {
	query := f.client.Collection(collectionSessions).
		Where("UserID", "==", string(userID)).
		OrderBy("CreatedAt", firestore.Desc)
	if limit > 0 {
		query = query.Limit(limit)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	sessions := make([]*model.Session, 0)
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, classify(err, "failed to list sessions", goerr.V("user_id", userID))
		}

		var session model.Session
		if err := doc.DataTo(&session); err != nil {
			return nil, goerr.Wrap(err, "failed to decode session", goerr.V("doc_id", doc.Ref.ID))
		}
		sessions = append(sessions, &session)
	}

	return sessions, nil
}

// AppendMessage assigns the message sequence from the session's MessageCount
// inside a transaction so concurrent appends never share a Seq.
func (f *Firestore) AppendMessage(ctx context.Context, msg *model.Message) (*model.Message, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	stored := *msg
	if stored.ID == "" {
		stored.ID = model.NewMessageID()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	if stored.ContextSources == nil {
		stored.ContextSources = []model.Source{}
	}

	sessRef := f.sessionRef(msg.SessionID)
	msgRef := sessRef.Collection(collectionMessages).Doc(string(stored.ID))

	err := f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(sessRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return goerr.Wrap(model.ErrSessionNotFound, "cannot append message", goerr.V("session_id", msg.SessionID))
			}
			return err
		}

		var session model.Session
		if err := doc.DataTo(&session); err != nil {
			return goerr.Wrap(err, "failed to decode session")
		}

		stored.Seq = session.MessageCount + 1
		if err := tx.Update(sessRef, []firestore.Update{
			{Path: "MessageCount", Value: stored.Seq},
		}); err != nil {
			return err
		}
		return tx.Create(msgRef, &stored)
	})
	if err != nil {
		if errors.Is(err, model.ErrSessionNotFound) {
			return nil, err
		}
		return nil, classify(err, "failed to append message", goerr.V("session_id", msg.SessionID))
	}

	return &stored, nil
}

func (f *Firestore) ListMessages(ctx context.Context, sessionID model.SessionID) ([]*model.Message, error) {
	if _, err := f.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	iter := f.sessionRef(sessionID).Collection(collectionMessages).
		OrderBy("CreatedAt", firestore.Asc).
		OrderBy("Seq", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	messages := make([]*model.Message, 0)
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, classify(err, "failed to list messages", goerr.V("session_id", sessionID))
		}

		var msg model.Message
		if err := doc.DataTo(&msg); err != nil {
			return nil, goerr.Wrap(err, "failed to decode message", goerr.V("doc_id", doc.Ref.ID))
		}
		messages = append(messages, &msg)
	}

	model.SortMessages(messages)
	return messages, nil
}

func (f *Firestore) CloseSession(ctx context.Context, id model.SessionID) (bool, error) {
	ref := f.sessionRef(id)
	found := true

	err := f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				found = false
				return nil
			}
			return err
		}

		active, _ := doc.Data()["Active"].(bool)
		if !active {
			return nil
		}
		return tx.Update(ref, []firestore.Update{
			{Path: "Active", Value: false},
			{Path: "UpdatedAt", Value: time.Now().UTC()},
		})
	})
	if err != nil {
		return false, classify(err, "failed to close session", goerr.V("session_id", id))
	}

	return found, nil
}

func (f *Firestore) passageRef(id model.PassageID) *firestore.DocumentRef {
	return f.client.Collection(collectionPassages).Doc(string(id))
}

// Upsert writes the passage and bumps the shared passage counter in one
// transaction. Identical re-upserts are left untouched.
func (f *Firestore) Upsert(ctx context.Context, passage *model.Passage) error {
	if err := checkDimension(passage.Embedding, f.dimension); err != nil {
		return goerr.Wrap(err, "cannot upsert passage", goerr.V("passage_id", passage.ID))
	}
	if passage.ID == "" {
		return goerr.Wrap(model.ErrValidation, "passage id is empty")
	}

	ref := f.passageRef(passage.ID)
	counterRef := f.client.Collection(collectionMeta).Doc(docPassageCounter)

	err := f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		existing, err := tx.Get(ref)
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}
		if err == nil {
			var current model.Passage
			if err := existing.DataTo(&current); err != nil {
				return goerr.Wrap(err, "failed to decode passage")
			}
			if samePassage(&current, passage) {
				return nil
			}
		}

		var seq int64
		counter, err := tx.Get(counterRef)
		switch {
		case err == nil:
			seq, _ = counter.Data()["Seq"].(int64)
		case status.Code(err) != codes.NotFound:
			return err
		}
		seq++

		stored := *passage
		stored.Metadata = copyMetadata(passage.Metadata)
		stored.UpdatedAt = time.Now().UTC()
		stored.Seq = seq

		if err := tx.Set(counterRef, map[string]any{"Seq": seq}); err != nil {
			return err
		}
		return tx.Set(ref, &stored)
	})
	if err != nil {
		return classify(err, "failed to upsert passage", goerr.V("passage_id", passage.ID))
	}
	return nil
}

func (f *Firestore) Search(ctx context.Context, query []float32, limit int) ([]*model.RetrievalResult, error) {
	if limit < 1 {
		return nil, goerr.Wrap(model.ErrValidation, "limit must be positive", goerr.V("limit", limit))
	}
	if err := checkDimension(query, f.dimension); err != nil {
		return nil, goerr.Wrap(err, "cannot search index")
	}
	if limit > maxNearestLimit {
		limit = maxNearestLimit
	}

	vq := f.client.Collection(collectionPassages).FindNearest(
		fieldEmbedding,
		firestore.Vector32(query),
		limit,
		firestore.DistanceMeasureCosine,
		&firestore.FindNearestOptions{DistanceResultField: fieldVectorDistance},
	)

	iter := vq.Documents(ctx)
	defer iter.Stop()

	results := make([]*model.RetrievalResult, 0, limit)
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, classify(err, "failed to search passages")
		}

		var p model.Passage
		if err := doc.DataTo(&p); err != nil {
			return nil, goerr.Wrap(err, "failed to decode passage", goerr.V("doc_id", doc.Ref.ID))
		}

		distance, _ := doc.Data()[fieldVectorDistance].(float64)
		results = append(results, model.NewRetrievalResult(&p, 1-distance))
	}

	model.RankResults(results)
	return results, nil
}

func (f *Firestore) Delete(ctx context.Context, id model.PassageID) error {
	// Delete on a missing document succeeds in Firestore
	if _, err := f.passageRef(id).Delete(ctx); err != nil {
		return classify(err, "failed to delete passage", goerr.V("passage_id", id))
	}
	return nil
}

func (f *Firestore) GetPassage(ctx context.Context, id model.PassageID) (*model.Passage, error) {
	doc, err := f.passageRef(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(model.ErrPassageNotFound, "no such passage", goerr.V("passage_id", id))
		}
		return nil, classify(err, "failed to get passage", goerr.V("passage_id", id))
	}

	var p model.Passage
	if err := doc.DataTo(&p); err != nil {
		return nil, goerr.Wrap(err, "failed to decode passage", goerr.V("passage_id", id))
	}
	return &p, nil
}

// classify maps transport failures onto ErrServiceUnavailable so callers can
// tell an unreachable backend from an empty or missing record.
func classify(err error, msg string, opts ...goerr.Option) error {
	if isUnavailable(err) {
		return goerr.Wrap(model.ErrServiceUnavailable, msg, append(opts, goerr.V("cause", err.Error()))...)
	}
	return goerr.Wrap(err, msg, opts...)
}

func isUnavailable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded:
		return true
	}
	return false
}
