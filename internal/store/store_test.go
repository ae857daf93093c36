package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_SQLite(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "engine.db")
	s, err := Open(context.Background(), "sqlite", dbPath, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.Migrate(context.Background()))

	n, err := s.CountFacts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "oracle", "dsn", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown driver")
}
