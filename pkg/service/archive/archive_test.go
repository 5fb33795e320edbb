package archive_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/lectern/pkg/adapter"
	"github.com/m-mizutani/lectern/pkg/model"
	"github.com/m-mizutani/lectern/pkg/service/archive"
)

type mockStorage struct {
	objects map[string]*bytes.Buffer
}

type writeCloser struct {
	*bytes.Buffer
}

func (w *writeCloser) Close() error { return nil }

func (m *mockStorage) Put(ctx context.Context, key string) (io.WriteCloser, error) {
	buf := &bytes.Buffer{}
	m.objects[key] = buf
	return &writeCloser{buf}, nil
}

func (m *mockStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	buf, ok := m.objects[key]
	if !ok {
		return nil, adapter.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(buf.Bytes())), nil
}

func (m *mockStorage) Close() error { return nil }

func TestArchiveRoundTrip(t *testing.T) {
	ctx := context.Background()
	storage := &mockStorage{objects: map[string]*bytes.Buffer{}}
	a := archive.New(storage)

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	session := &model.Session{ID: model.NewSessionID(), Title: "Kinematics", CreatedAt: now, UpdatedAt: now}
	messages := []*model.Message{
		{ID: model.NewMessageID(), SessionID: session.ID, Role: model.RoleUser, Content: "what is IK?", Kind: model.MessageKindText, CreatedAt: now, ContextSources: []model.Source{}},
		{ID: model.NewMessageID(), SessionID: session.ID, Role: model.RoleAssistant, Content: "IK solves joint angles", Kind: model.MessageKindText, CreatedAt: now, ContextSources: []model.Source{{"title": "IK"}}},
	}

	gt.NoError(t, a.Save(ctx, session, messages))
	gt.Map(t, storage.objects).HasKey("sessions/" + string(session.ID) + ".json")

	loaded, err := a.Load(ctx, session.ID)
	gt.NoError(t, err)
	gt.Equal(t, loaded.Session.ID, session.ID)
	gt.A(t, loaded.Messages).Length(2)
	gt.Equal(t, loaded.Messages[1].ContextSources[0]["title"], any("IK"))
}

func TestArchivePrefix(t *testing.T) {
	a := archive.New(&mockStorage{}, archive.WithPrefix("lectern/transcripts"))
	gt.Equal(t, a.Key("abc"), "lectern/transcripts/abc.json")
}

func TestArchiveLoadMissing(t *testing.T) {
	a := archive.New(&mockStorage{objects: map[string]*bytes.Buffer{}})
	_, err := a.Load(context.Background(), "missing")
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrSessionNotFound))
}

func TestArchiveCloudStorage(t *testing.T) {
	bucket := os.Getenv("TEST_STORAGE_BUCKET")
	if bucket == "" {
		t.Skip("TEST_STORAGE_BUCKET is not set")
	}

	ctx := context.Background()
	storage, err := adapter.NewStorage(ctx, bucket)
	gt.NoError(t, err)
	defer storage.Close()

	a := archive.New(storage, archive.WithPrefix("test/sessions"))
	session := &model.Session{ID: model.NewSessionID(), Title: "integration"}
	gt.NoError(t, a.Save(ctx, session, nil))

	loaded, err := a.Load(ctx, session.ID)
	gt.NoError(t, err)
	gt.Equal(t, loaded.Session.Title, "integration")
	gt.A(t, loaded.Messages).Length(0)
}
