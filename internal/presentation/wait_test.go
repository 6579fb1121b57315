package presentation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/presfeed/internal/compositor"
)

func TestWait_ReturnsImmediatelyWhenTerminal(t *testing.T) {
	tc := newTestConn(t, compositor.WithDispatchFailure(0, nil))
	fb := &Feedback{}
	require.NoError(t, fb.Discarded())

	require.NoError(t, Wait(context.Background(), tc.comp, fb), "no dispatch needed")
}

func TestWait_PresentsCommit(t *testing.T) {
	tc := newTestConn(t,
		compositor.WithBaseTime(100, 500_000_000),
		compositor.WithBaseSeq(42),
	)
	fb := tc.commitWithFeedback(t)
	require.NoError(t, tc.comp.Roundtrip(context.Background()))

	require.NoError(t, Wait(context.Background(), tc.comp, fb))

	assert.Equal(t, Presented, fb.Result())
	assert.Equal(t, "presented 100.500000000, refresh 16666 us, [sc__] seq 42", fb.String())
	assert.Equal(t, tc.output, fb.SyncOutputID())
}

func TestWait_TransportFailureIsFatal(t *testing.T) {
	boom := errors.New("connection reset")
	tc := newTestConn(t, compositor.WithDispatchFailure(0, boom))
	fb := tc.commitWithFeedback(t)

	err := Wait(context.Background(), tc.comp, fb)
	require.Error(t, err)
	assert.True(t, IsTransportError(err))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, Pending, fb.Result())
}

func TestWait_NoProgressIsTransportFailure(t *testing.T) {
	tc := newTestConn(t)
	fb, err := tc.cap.NewFeedback(tc.surface) // never committed
	require.NoError(t, err)

	err = Wait(context.Background(), tc.comp, fb)
	assert.True(t, IsTransportError(err))
	assert.ErrorIs(t, err, compositor.ErrNoProgress)
}

func TestWait_ContextCancelled(t *testing.T) {
	tc := newTestConn(t)
	fb := tc.commitWithFeedback(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Wait(ctx, tc.comp, fb)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsTransportError(err))
}

func TestWait_DuplicateTerminalIsViolation(t *testing.T) {
	tc := newTestConn(t, compositor.WithDuplicateTerminal())
	fb := tc.commitWithFeedback(t)

	err := Wait(context.Background(), tc.comp, fb)
	require.Error(t, err)
	assert.True(t, IsViolation(err, ErrCodeEventAfterTerminal))
	assert.Equal(t, Presented, fb.Result(), "first terminal event still applies")
}

func TestWaitAll_CrossRequestInterleaving(t *testing.T) {
	tc := newTestConn(t, compositor.WithBaseSeq(10))

	// Two commits before a repaint: the first is superseded.
	first := tc.commitWithFeedback(t)
	second := tc.commitWithFeedback(t)

	// Wait on the later one first; the earlier one's discard is delivered
	// along the way.
	require.NoError(t, WaitAll(context.Background(), tc.comp, second, first))

	assert.Equal(t, Discarded, first.Result())
	assert.Equal(t, Presented, second.Result())
	assert.Equal(t, uint64(10), second.Sequence())

	third := tc.commitWithFeedback(t)
	require.NoError(t, Wait(context.Background(), tc.comp, third))
	assert.Equal(t, uint64(11), third.Sequence())
	assert.Equal(t, uint64(2), tc.comp.Repaints())
}

func TestWaitAll_StopsAtFirstError(t *testing.T) {
	tc := newTestConn(t)
	committed := tc.commitWithFeedback(t)
	orphan, err := tc.cap.NewFeedback(tc.surface)
	require.NoError(t, err)

	err = WaitAll(context.Background(), tc.comp, committed, orphan)
	assert.True(t, IsTransportError(err))
	assert.Equal(t, Presented, committed.Result())
	assert.Equal(t, Pending, orphan.Result())
}
