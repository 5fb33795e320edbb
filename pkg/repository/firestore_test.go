package repository_test

import (
	"context"
	"os"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/lectern/pkg/repository"
)

func newFirestore(t *testing.T, dim int) *repository.Firestore {
	projectID := os.Getenv("TEST_FIRESTORE_PROJECT_ID")
	if projectID == "" {
		t.Skip("TEST_FIRESTORE_PROJECT_ID is not set")
	}
	databaseID := os.Getenv("TEST_FIRESTORE_DATABASE_ID")
	if databaseID == "" {
		databaseID = "(default)"
	}

	client, err := repository.NewFirestore(context.Background(), projectID, databaseID, repository.WithDimension(dim))
	gt.NoError(t, err)
	t.Cleanup(func() {
		gt.NoError(t, client.Close())
	})
	return client
}

func TestFirestoreSessions(t *testing.T) {
	testSessionStore(t, newFirestore(t, 8))
}

func TestFirestoreIndex(t *testing.T) {
	testVectorIndex(t, newFirestore(t, 8), 8)
}
