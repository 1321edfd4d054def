package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_DefaultsToMemory(t *testing.T) {
	for _, dsn := range []string{"", "   ", "mem://", "memory://", "inmem://"} {
		s, err := New(context.Background(), zap.NewNop(), dsn)
		require.NoError(t, err, "dsn %q", dsn)
		assert.IsType(t, &MemoryStore{}, s, "dsn %q", dsn)
	}
}

func TestNew_UnsupportedScheme(t *testing.T) {
	_, err := New(context.Background(), zap.NewNop(), "postgres://localhost:5432/polls")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store scheme")
}
