//go:build integration

package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// Run with: TEST_DYNAMODB_ENDPOINT=http://localhost:8000 go test -tags integration ./internal/infrastructure/store/
func TestDynamoStore_Contract(t *testing.T) {
	endpoint := os.Getenv("TEST_DYNAMODB_ENDPOINT")
	if endpoint == "" {
		t.Skip("TEST_DYNAMODB_ENDPOINT not set")
	}
	if os.Getenv("AWS_ACCESS_KEY_ID") == "" {
		t.Setenv("AWS_ACCESS_KEY_ID", "local")
		t.Setenv("AWS_SECRET_ACCESS_KEY", "local")
	}

	ctx := context.Background()
	client, streams, err := LoadDynamoClients(ctx, "us-east-1", endpoint)
	require.NoError(t, err)

	s := NewDynamoStore(client, streams, "yoga-documents-"+uuid.NewString()[:8])
	require.NoError(t, s.EnsureTable(ctx))

	runStoreContract(t, s, 15*time.Second)
}
