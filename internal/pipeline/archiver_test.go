package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/qxwatch/internal/notify"
	"github.com/alanyoungcy/qxwatch/internal/store/memory"
)

type fakeBlobArchiver struct {
	n      int64
	err    error
	before []time.Time
}

func (f *fakeBlobArchiver) ArchiveEvents(_ context.Context, before time.Time) (int64, error) {
	f.before = append(f.before, before)
	return f.n, f.err
}

func TestArchiver_Run(t *testing.T) {
	blob := &fakeBlobArchiver{n: 3}
	sender := &stubSender{}
	n := notify.NewNotifier([]notify.Sender{sender}, nil, testLogger())
	a := NewArchiver(blob, memory.NewLockManager(), n, 30, testLogger())
	now := time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }

	got, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), got)
	require.Len(t, blob.before, 1)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), blob.before[0])
	require.Len(t, sender.got, 1)
	assert.Contains(t, sender.got[0].Body, "3 event(s)")
}

func TestArchiver_SkipsWhenLocked(t *testing.T) {
	blob := &fakeBlobArchiver{}
	locks := memory.NewLockManager()
	unlock, err := locks.Acquire(context.Background(), archiveLockKey, time.Minute)
	require.NoError(t, err)
	defer unlock()

	a := NewArchiver(blob, locks, nil, 30, testLogger())
	got, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, got)
	assert.Empty(t, blob.before)
}

func TestArchiver_PropagatesFailure(t *testing.T) {
	boom := errors.New("s3 down")
	locks := memory.NewLockManager()
	a := NewArchiver(&fakeBlobArchiver{err: boom}, locks, nil, 30, testLogger())

	_, err := a.Run(context.Background())
	assert.ErrorIs(t, err, boom)

	// The lock is released after a failed run.
	unlock, err := locks.Acquire(context.Background(), archiveLockKey, time.Minute)
	require.NoError(t, err)
	unlock()
}

type countingArchiver struct{ runs atomic.Int32 }

func (c *countingArchiver) ArchiveEvents(context.Context, time.Time) (int64, error) {
	c.runs.Add(1)
	return 0, nil
}

func TestArchiver_RunCronManualTrigger(t *testing.T) {
	blob := &countingArchiver{}
	trigger := make(chan struct{}, 1)
	a := NewArchiver(blob, nil, nil, 30, testLogger()).WithTriggerChannel(trigger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.RunCron(ctx, "0 3 1 * *") }()

	trigger <- struct{}{}
	assert.Eventually(t, func() bool { return blob.runs.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestArchiver_RunCronRejectsBadExpression(t *testing.T) {
	a := NewArchiver(&fakeBlobArchiver{}, nil, nil, 30, testLogger())
	err := a.RunCron(context.Background(), "* * *")
	assert.Error(t, err)
}

func TestNextCronTime(t *testing.T) {
	after := time.Date(2025, 3, 15, 10, 30, 0, 0, time.UTC)
	tests := []struct {
		expr string
		want time.Time
	}{
		{"0 3 1 * *", time.Date(2025, 4, 1, 3, 0, 0, 0, time.UTC)},
		{"*/15 * * * *", time.Date(2025, 3, 15, 10, 45, 0, 0, time.UTC)},
		{"0 9-11 * * *", time.Date(2025, 3, 15, 11, 0, 0, 0, time.UTC)},
		{"0 0 * * 0", time.Date(2025, 3, 16, 0, 0, 0, 0, time.UTC)},
		{"0 0 * * 7", time.Date(2025, 3, 16, 0, 0, 0, 0, time.UTC)},
		{"5/20 * * * *", time.Date(2025, 3, 15, 10, 45, 0, 0, time.UTC)},
		{"0 12 1,20 * *", time.Date(2025, 3, 20, 12, 0, 0, 0, time.UTC)},
		// Restricted day-of-month and day-of-week match either.
		{"0 0 1 * 1", time.Date(2025, 3, 17, 0, 0, 0, 0, time.UTC)},
		{"30 2 29 2 *", time.Date(2028, 2, 29, 2, 30, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := nextCronTime(tt.expr, after)
		require.NoError(t, err, tt.expr)
		assert.Equal(t, tt.want, got, tt.expr)
	}

	for _, bad := range []string{"60 * * * *", "* * * 13 *", "*/0 * * * *", "a * * * *", "5-1 * * * *", "* * * * 8", ""} {
		_, err := nextCronTime(bad, after)
		assert.Error(t, err, bad)
	}

	_, err := nextCronTime("0 0 31 2 *", after)
	assert.ErrorContains(t, err, "no firing")
}
