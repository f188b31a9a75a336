package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/qxwatch/internal/domain"
	"github.com/alanyoungcy/qxwatch/internal/store/memory"
)

func TestLabelStore(t *testing.T) {
	ctx := context.Background()
	settings := memory.NewSettingsStore()
	l := NewLabelStore(settings)

	got, err := l.Get(ctx, "W")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)

	got, err = l.Add(ctx, "W", "  whale ")
	require.NoError(t, err)
	assert.Equal(t, []string{"whale"}, got)

	_, err = l.Add(ctx, "W", "whale")
	assert.ErrorIs(t, err, domain.ErrDuplicateLabel)
	_, err = l.Add(ctx, "W", "   ")
	assert.ErrorIs(t, err, domain.ErrEmptyLabel)

	for _, label := range []string{"a", "b", "c", "d"} {
		_, err = l.Add(ctx, "W", label)
		require.NoError(t, err)
	}
	_, err = l.Add(ctx, "W", "e")
	assert.ErrorIs(t, err, domain.ErrLabelLimit)

	got, err = l.Update(ctx, "W", 1, "partner")
	require.NoError(t, err)
	assert.Equal(t, []string{"whale", "partner", "b", "c", "d"}, got)
	_, err = l.Update(ctx, "W", 2, "whale")
	assert.ErrorIs(t, err, domain.ErrDuplicateLabel)
	_, err = l.Update(ctx, "W", 5, "x")
	assert.ErrorIs(t, err, domain.ErrLabelIndex)
	_, err = l.Update(ctx, "W", 0, "")
	assert.ErrorIs(t, err, domain.ErrEmptyLabel)

	got, err = l.Remove(ctx, "W", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"partner", "b", "c", "d"}, got)
	_, err = l.Remove(ctx, "W", -1)
	assert.ErrorIs(t, err, domain.ErrLabelIndex)

	// Labels survive a new store over the same settings.
	got, err = NewLabelStore(settings).Get(ctx, "W")
	require.NoError(t, err)
	assert.Equal(t, []string{"partner", "b", "c", "d"}, got)
}

func TestLabelStore_Set(t *testing.T) {
	ctx := context.Background()
	l := NewLabelStore(memory.NewSettingsStore())

	got, err := l.Set(ctx, "W", []string{" x ", "y"})
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, got)

	_, err = l.Set(ctx, "W", []string{"1", "2", "3", "4", "5", "6"})
	assert.ErrorIs(t, err, domain.ErrLabelLimit)
	_, err = l.Set(ctx, "W", []string{"x", "x"})
	assert.ErrorIs(t, err, domain.ErrDuplicateLabel)

	got, err = l.Set(ctx, "W", nil)
	require.NoError(t, err)
	assert.Empty(t, got)

	all, err := l.All(ctx)
	require.NoError(t, err)
	assert.NotContains(t, all, "W")
}
