package presentation

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/presfeed/internal/compositor"
	"github.com/roach88/presfeed/internal/protocol"
)

// testConn is a compositor with one visible surface and a bound capability.
type testConn struct {
	comp    *compositor.Compositor
	cap     *Capability
	surface protocol.Surface
	output  protocol.ObjectID
}

func newTestConn(t *testing.T, opts ...compositor.Option) *testConn {
	t.Helper()

	comp := compositor.New(opts...)
	out := comp.AddOutput("out0", uint32(KindVsync|KindHWClock))

	c, err := Bind(comp)
	require.NoError(t, err)

	surf, err := comp.CreateSurface()
	require.NoError(t, err)
	buf, err := comp.CreateBuffer(100, 50)
	require.NoError(t, err)
	surf.Attach(buf, 0, 0)
	require.NoError(t, comp.MapSurface(surf, out))

	return &testConn{comp: comp, cap: c, surface: surf, output: out}
}

// commitWithFeedback requests feedback and commits, like a client would.
func (tc *testConn) commitWithFeedback(t *testing.T) *Feedback {
	t.Helper()
	fb, err := tc.cap.NewFeedback(tc.surface)
	require.NoError(t, err)
	tc.surface.Damage(0, 0, 100, 100)
	tc.surface.Commit()
	return fb
}
