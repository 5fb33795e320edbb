package repository_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/lectern/pkg/interfaces"
	"github.com/m-mizutani/lectern/pkg/model"
)

// testSessionStore runs the SessionStore contract against any backend
func testSessionStore(t *testing.T, store interfaces.SessionStore) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		session, err := store.CreateSession(ctx, "Intro to ROS", "user-1")
		gt.NoError(t, err)
		gt.True(t, session.Active)
		gt.NotEqual(t, session.ID, model.SessionID(""))

		got, err := store.GetSession(ctx, session.ID)
		gt.NoError(t, err)
		gt.Equal(t, got.Title, "Intro to ROS")
		gt.Equal(t, got.UserID, model.UserID("user-1"))
		gt.True(t, got.Active)
	})

	t.Run("get unknown session", func(t *testing.T) {
		_, err := store.GetSession(ctx, model.NewSessionID())
		gt.True(t, errors.Is(err, model.ErrSessionNotFound))
	})

	t.Run("messages keep append order", func(t *testing.T) {
		session, err := store.CreateSession(ctx, "ordering", "")
		gt.NoError(t, err)

		var ids []model.MessageID
		for i, role := range []model.Role{model.RoleUser, model.RoleAssistant, model.RoleUser} {
			msg, err := store.AppendMessage(ctx, &model.Message{
				SessionID: session.ID,
				Role:      role,
				Content:   fmt.Sprintf("m%d", i+1),
				Kind:      model.MessageKindText,
			})
			gt.NoError(t, err)
			ids = append(ids, msg.ID)
		}

		msgs, err := store.ListMessages(ctx, session.ID)
		gt.NoError(t, err)
		gt.A(t, msgs).Length(3)
		for i, msg := range msgs {
			gt.Equal(t, msg.ID, ids[i])
			gt.Equal(t, msg.Content, fmt.Sprintf("m%d", i+1))
		}
	})

	t.Run("context sources round trip", func(t *testing.T) {
		session, err := store.CreateSession(ctx, "sources", "")
		gt.NoError(t, err)

		_, err = store.AppendMessage(ctx, &model.Message{
			SessionID:      session.ID,
			Role:           model.RoleAssistant,
			Content:        "answer",
			Kind:           model.MessageKindText,
			ContextSources: []model.Source{{"module": "kinematics"}},
		})
		gt.NoError(t, err)

		msgs, err := store.ListMessages(ctx, session.ID)
		gt.NoError(t, err)
		gt.A(t, msgs).Length(1)
		gt.A(t, msgs[0].ContextSources).Length(1)
		gt.Equal(t, msgs[0].ContextSources[0]["module"], any("kinematics"))
	})

	t.Run("empty session has no messages", func(t *testing.T) {
		session, err := store.CreateSession(ctx, "empty", "")
		gt.NoError(t, err)

		msgs, err := store.ListMessages(ctx, session.ID)
		gt.NoError(t, err)
		gt.A(t, msgs).Length(0)
	})

	t.Run("append to unknown session", func(t *testing.T) {
		_, err := store.AppendMessage(ctx, &model.Message{
			SessionID: model.NewSessionID(),
			Role:      model.RoleUser,
			Content:   "hello",
			Kind:      model.MessageKindText,
		})
		gt.True(t, errors.Is(err, model.ErrSessionNotFound))
	})

	t.Run("close is idempotent", func(t *testing.T) {
		session, err := store.CreateSession(ctx, "closing", "")
		gt.NoError(t, err)

		for range 2 {
			ok, err := store.CloseSession(ctx, session.ID)
			gt.NoError(t, err)
			gt.True(t, ok)
		}

		got, err := store.GetSession(ctx, session.ID)
		gt.NoError(t, err)
		gt.False(t, got.Active)
	})

	t.Run("close unknown session", func(t *testing.T) {
		ok, err := store.CloseSession(ctx, model.NewSessionID())
		gt.NoError(t, err)
		gt.False(t, ok)
	})

	t.Run("closed session still accepts messages", func(t *testing.T) {
		session, err := store.CreateSession(ctx, "closed append", "")
		gt.NoError(t, err)
		_, err = store.CloseSession(ctx, session.ID)
		gt.NoError(t, err)

		_, err = store.AppendMessage(ctx, &model.Message{
			SessionID: session.ID,
			Role:      model.RoleUser,
			Content:   "late",
			Kind:      model.MessageKindText,
		})
		gt.NoError(t, err)
	})

	t.Run("list sessions by user", func(t *testing.T) {
		userID := model.UserID("user-" + string(model.NewSessionID()))
		for i := range 3 {
			_, err := store.CreateSession(ctx, fmt.Sprintf("s%d", i), userID)
			gt.NoError(t, err)
		}

		sessions, err := store.ListSessionsByUser(ctx, userID, 2)
		gt.NoError(t, err)
		gt.A(t, sessions).Length(2)

		all, err := store.ListSessionsByUser(ctx, userID, 0)
		gt.NoError(t, err)
		gt.A(t, all).Length(3)
	})

	t.Run("concurrent appends get distinct sequence numbers", func(t *testing.T) {
		session, err := store.CreateSession(ctx, "concurrent", "")
		gt.NoError(t, err)

		var wg sync.WaitGroup
		for i := range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.AppendMessage(ctx, &model.Message{
					SessionID: session.ID,
					Role:      model.RoleUser,
					Content:   fmt.Sprintf("c%d", i),
					Kind:      model.MessageKindText,
				})
				gt.NoError(t, err)
			}()
		}
		wg.Wait()

		msgs, err := store.ListMessages(ctx, session.ID)
		gt.NoError(t, err)
		gt.A(t, msgs).Length(10)

		seen := make(map[int64]bool)
		for _, msg := range msgs {
			gt.False(t, seen[msg.Seq])
			seen[msg.Seq] = true
		}
	})
}

func unitVector(dim, axis int) []float32 {
	v := make([]float32, dim)
	v[axis] = 1
	return v
}

// testVectorIndex runs the VectorIndex contract against any backend
func testVectorIndex(t *testing.T, index interfaces.VectorIndex, dim int) {
	ctx := context.Background()

	t.Run("upsert and get", func(t *testing.T) {
		p := &model.Passage{
			ID:        model.NewPassageID(),
			Embedding: unitVector(dim, 0),
			Text:      "Forward kinematics maps joint angles to poses.",
			Metadata:  map[string]any{"module": "kinematics"},
		}
		gt.NoError(t, index.Upsert(ctx, p))

		got, err := index.GetPassage(ctx, p.ID)
		gt.NoError(t, err)
		gt.Equal(t, got.Text, p.Text)
		gt.A(t, got.Embedding).Length(dim)
		gt.Equal(t, got.Metadata["module"], any("kinematics"))
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		err := index.Upsert(ctx, &model.Passage{
			ID:        model.NewPassageID(),
			Embedding: make([]float32, dim+1),
			Text:      "bad",
		})
		gt.True(t, errors.Is(err, model.ErrDimensionMismatch))

		_, err = index.Search(ctx, make([]float32, dim-1), 3)
		gt.True(t, errors.Is(err, model.ErrDimensionMismatch))
	})

	t.Run("invalid limit", func(t *testing.T) {
		_, err := index.Search(ctx, unitVector(dim, 0), 0)
		gt.True(t, errors.Is(err, model.ErrValidation))
	})

	t.Run("delete", func(t *testing.T) {
		p := &model.Passage{ID: model.NewPassageID(), Embedding: unitVector(dim, 1), Text: "to delete"}
		gt.NoError(t, index.Upsert(ctx, p))
		gt.NoError(t, index.Delete(ctx, p.ID))

		_, err := index.GetPassage(ctx, p.ID)
		gt.True(t, errors.Is(err, model.ErrPassageNotFound))

		// deleting again is a no-op
		gt.NoError(t, index.Delete(ctx, p.ID))
	})
}
