package repository_test

import (
	"context"
	"os"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/lectern/pkg/repository"
)

func TestPostgresSessions(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN is not set")
	}

	ctx := context.Background()
	client, err := repository.NewPostgres(ctx, dsn)
	gt.NoError(t, err)
	t.Cleanup(client.Close)
	gt.NoError(t, client.Migrate(ctx))

	testSessionStore(t, client)
}
