package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokengate/internal/message/models"
	"tokengate/pkg/platform/sentinel"
)

func TestMemoryOccupiedIDIsPermanent(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	msg, err := models.NewMessage("0xabc", "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", 1, 2, "0xcafe", time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, s.Create(ctx, msg))

	assert.ErrorIs(t, s.Create(ctx, msg), sentinel.ErrConflict)

	got, err := s.Find(ctx, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, msg.ContentHash, got.ContentHash)

	_, err = s.Find(ctx, "0xother")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestMemoryFindReturnsCopy(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	msg, err := models.NewMessage("0xabc", "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", 1, 2, "0xcafe", time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, s.Create(ctx, msg))

	got, err := s.Find(ctx, "0xabc")
	require.NoError(t, err)
	got.ContentHash = "mutated"

	again, err := s.Find(ctx, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, "0xcafe", again.ContentHash)
}
