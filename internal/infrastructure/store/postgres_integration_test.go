//go:build integration

package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Run with: TEST_DATABASE_URL=postgres://... go test -tags integration ./internal/infrastructure/store/
func TestPostgresStore_Contract(t *testing.T) {
	connStr := os.Getenv("TEST_DATABASE_URL")
	if connStr == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := ConnectPostgres(connStr)
	require.NoError(t, err)
	defer db.Close()

	s := NewPostgresStore(db, connStr)
	require.NoError(t, s.Migrate(context.Background()))

	runStoreContract(t, s, 5*time.Second)
}
