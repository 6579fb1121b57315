package compositor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/presfeed/internal/protocol"
)

// recorded is one event seen by a recordingListener.
type recorded struct {
	kind      string
	output    protocol.ObjectID
	presented protocol.PresentedEvent
}

type recordingListener struct {
	events []recorded
	fail   error
}

func (l *recordingListener) SyncOutput(out protocol.ObjectID) error {
	l.events = append(l.events, recorded{kind: "sync_output", output: out})
	return l.fail
}

func (l *recordingListener) Presented(ev protocol.PresentedEvent) error {
	l.events = append(l.events, recorded{kind: "presented", presented: ev})
	return l.fail
}

func (l *recordingListener) Discarded() error {
	l.events = append(l.events, recorded{kind: "discarded"})
	return l.fail
}

func (l *recordingListener) kinds() []string {
	out := make([]string, len(l.events))
	for i, e := range l.events {
		out[i] = e.kind
	}
	return out
}

// fixture is a compositor with one output, one mapped surface with a buffer
// attached, and a bound presentation global.
type fixture struct {
	comp    *Compositor
	pres    protocol.Presentation
	surface protocol.Surface
	output  protocol.ObjectID
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	comp := New(opts...)
	out := comp.AddOutput("out0", 0x3)

	proxy, err := comp.Bind(3, protocol.InterfacePresentation, 1)
	require.NoError(t, err)
	pres, ok := proxy.(protocol.Presentation)
	require.True(t, ok, "presentation global should bind to a Presentation")

	surf, err := comp.CreateSurface()
	require.NoError(t, err)
	buf, err := comp.CreateBuffer(64, 64)
	require.NoError(t, err)
	surf.Attach(buf, 0, 0)
	require.NoError(t, comp.MapSurface(surf, out))

	return &fixture{comp: comp, pres: pres, surface: surf, output: out}
}

func (f *fixture) request(t *testing.T) (*recordingListener, protocol.FeedbackProxy) {
	t.Helper()
	l := &recordingListener{}
	fb, err := f.pres.Feedback(f.surface, l)
	require.NoError(t, err)
	return l, fb
}

func (f *fixture) commit() {
	f.surface.Damage(0, 0, 64, 64)
	f.surface.Commit()
}

func TestNew_DefaultGlobals(t *testing.T) {
	c := New()
	assert.Equal(t, []protocol.Global{
		{Name: 1, Interface: protocol.InterfaceCompositor, Version: 4},
		{Name: 2, Interface: protocol.InterfaceShm, Version: 1},
		{Name: 3, Interface: protocol.InterfacePresentation, Version: 1},
	}, c.Globals())

	c.AddOutput("out0", 0)
	globals := c.Globals()
	require.Len(t, globals, 4)
	assert.Equal(t, protocol.Global{Name: 4, Interface: protocol.InterfaceOutput, Version: 2}, globals[3])
}

func TestWithGlobals_ReplacesDefaults(t *testing.T) {
	c := New(WithGlobals(
		protocol.Global{Interface: protocol.InterfacePresentation, Version: 2},
	))
	assert.Equal(t, []protocol.Global{
		{Name: 1, Interface: protocol.InterfacePresentation, Version: 2},
	}, c.Globals())
}

func TestBind_Errors(t *testing.T) {
	c := New()

	_, err := c.Bind(99, protocol.InterfacePresentation, 1)
	assert.ErrorContains(t, err, "no global named 99")

	_, err = c.Bind(3, protocol.InterfaceShm, 1)
	assert.ErrorContains(t, err, "is presentation")

	_, err = c.Bind(3, protocol.InterfacePresentation, 0)
	assert.ErrorContains(t, err, "not supported")

	_, err = c.Bind(3, protocol.InterfacePresentation, 2)
	assert.ErrorContains(t, err, "not supported")

	p, err := c.Bind(1, protocol.InterfaceCompositor, 4)
	require.NoError(t, err)
	_, isPres := p.(protocol.Presentation)
	assert.False(t, isPres)
}

func TestCreateBuffer_InvalidSize(t *testing.T) {
	c := New()
	_, err := c.CreateBuffer(0, 10)
	assert.Error(t, err)
	_, err = c.CreateBuffer(10, -1)
	assert.Error(t, err)
}

func TestMapSurface_UnknownOutput(t *testing.T) {
	c := New()
	s, err := c.CreateSurface()
	require.NoError(t, err)
	assert.ErrorContains(t, c.MapSurface(s, 42), "unknown output 42")
}

func TestOutputLookup(t *testing.T) {
	c := New()
	id := c.AddOutput("left", 0)

	got, ok := c.Output("left")
	require.True(t, ok)
	assert.Equal(t, id, got)

	name, ok := c.OutputName(id)
	require.True(t, ok)
	assert.Equal(t, "left", name)

	_, ok = c.Output("right")
	assert.False(t, ok)
	_, ok = c.OutputName(999)
	assert.False(t, ok)
}

func TestDispatch_PresentsLatchedCommit(t *testing.T) {
	f := newFixture(t, WithBaseTime(100, 500_000_000), WithBaseSeq(42))
	l, _ := f.request(t)
	f.commit()

	n, err := f.comp.Dispatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, uint64(1), f.comp.Repaints())

	require.Equal(t, []string{"sync_output", "presented"}, l.kinds())
	assert.Equal(t, f.output, l.events[0].output)
	assert.Equal(t, protocol.PresentedEvent{
		TvSecLo:     100,
		TvNsec:      500_000_000,
		RefreshNsec: DefaultRefreshNsec,
		SeqLo:       42,
		Flags:       0x3,
	}, l.events[1].presented)
}

func TestDispatch_SuccessiveRepaintsAdvance(t *testing.T) {
	f := newFixture(t, WithBaseTime(100, 500_000_000), WithBaseSeq(42))
	ctx := context.Background()

	first, _ := f.request(t)
	f.commit()
	_, err := f.comp.Dispatch(ctx)
	require.NoError(t, err)

	second, _ := f.request(t)
	f.commit()
	_, err = f.comp.Dispatch(ctx)
	require.NoError(t, err)

	require.Len(t, first.events, 2)
	require.Len(t, second.events, 2)
	p := second.events[1].presented
	assert.Equal(t, uint32(100), p.TvSecLo)
	assert.Equal(t, uint32(516_666_667), p.TvNsec)
	assert.Equal(t, uint32(43), p.SeqLo)
	assert.Equal(t, uint64(2), f.comp.Repaints())
}

func TestDispatch_NanosecondCarry(t *testing.T) {
	f := newFixture(t, WithBaseTime(7, 999_999_999), WithRefresh(2))
	ctx := context.Background()

	f.request(t)
	f.commit()
	_, err := f.comp.Dispatch(ctx)
	require.NoError(t, err)

	l, _ := f.request(t)
	f.commit()
	_, err = f.comp.Dispatch(ctx)
	require.NoError(t, err)

	require.Len(t, l.events, 2)
	assert.Equal(t, uint32(8), l.events[1].presented.TvSecLo)
	assert.Equal(t, uint32(1), l.events[1].presented.TvNsec)
}

func TestDispatch_ZeroRefreshKeepsTime(t *testing.T) {
	f := newFixture(t, WithBaseTime(5, 0), WithRefresh(0))
	ctx := context.Background()

	f.request(t)
	f.commit()
	_, err := f.comp.Dispatch(ctx)
	require.NoError(t, err)

	l, _ := f.request(t)
	f.commit()
	_, err = f.comp.Dispatch(ctx)
	require.NoError(t, err)

	require.Len(t, l.events, 2)
	p := l.events[1].presented
	assert.Equal(t, uint32(5), p.TvSecLo)
	assert.Equal(t, uint32(0), p.TvNsec)
	assert.Equal(t, uint32(0), p.RefreshNsec)
	assert.Equal(t, uint32(1), p.SeqLo)
}

func TestDispatch_HighHalves(t *testing.T) {
	f := newFixture(t, WithBaseTime(1<<33+1, 0), WithBaseSeq(1<<40|7))
	l, _ := f.request(t)
	f.commit()

	_, err := f.comp.Dispatch(context.Background())
	require.NoError(t, err)

	require.Len(t, l.events, 2)
	p := l.events[1].presented
	assert.Equal(t, uint32(2), p.TvSecHi)
	assert.Equal(t, uint32(1), p.TvSecLo)
	assert.Equal(t, uint32(1<<8), p.SeqHi)
	assert.Equal(t, uint32(7), p.SeqLo)
}

func TestCommit_SupersedesLatchedFeedback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, _ := f.request(t)
	f.commit()
	b, _ := f.request(t)
	f.commit()

	// The superseded discard is already queued, so no repaint runs yet.
	n, err := f.comp.Dispatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"discarded"}, a.kinds())
	assert.Empty(t, b.events)
	assert.Equal(t, uint64(0), f.comp.Repaints())

	_, err = f.comp.Dispatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"sync_output", "presented"}, b.kinds())
	assert.Equal(t, []string{"discarded"}, a.kinds())
}

func TestCommit_FeedbackWaitsForCommit(t *testing.T) {
	f := newFixture(t)

	l, _ := f.request(t)

	_, err := f.comp.Dispatch(context.Background())
	assert.ErrorIs(t, err, ErrNoProgress)
	assert.Empty(t, l.events)
}

func TestRepaint_HiddenSurfaceDiscards(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.comp.MapSurface(f.surface))

	l, _ := f.request(t)
	f.commit()

	_, err := f.comp.Dispatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"discarded"}, l.kinds())
}

func TestRepaint_NoBufferDiscards(t *testing.T) {
	f := newFixture(t)
	f.surface.Attach(nil, 0, 0)

	l, _ := f.request(t)
	f.commit()

	_, err := f.comp.Dispatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"discarded"}, l.kinds())
}

func TestRepaint_SyncOutputPerOutput(t *testing.T) {
	f := newFixture(t)
	second := f.comp.AddOutput("out1", 0x8)
	require.NoError(t, f.comp.MapSurface(f.surface, f.output, second))

	l, _ := f.request(t)
	f.commit()

	_, err := f.comp.Dispatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"sync_output", "sync_output", "presented"}, l.kinds())
	assert.Equal(t, f.output, l.events[0].output)
	assert.Equal(t, second, l.events[1].output)
	assert.Equal(t, uint32(0x3), l.events[2].presented.Flags, "flags come from the first output")
}

func TestWithNullSyncOutput(t *testing.T) {
	f := newFixture(t, WithNullSyncOutput())
	l, _ := f.request(t)
	f.commit()

	_, err := f.comp.Dispatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"sync_output", "sync_output", "presented"}, l.kinds())
	assert.True(t, l.events[0].output.IsNull())
	assert.Equal(t, f.output, l.events[1].output)
}

func TestWithDuplicateTerminal(t *testing.T) {
	f := newFixture(t, WithDuplicateTerminal())
	l, _ := f.request(t)
	f.commit()

	n, err := f.comp.Dispatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"sync_output", "presented", "presented"}, l.kinds())
}

func TestWithDispatchFailure(t *testing.T) {
	boom := errors.New("connection reset")
	f := newFixture(t, WithDispatchFailure(1, boom))
	ctx := context.Background()

	f.request(t)
	f.commit()
	_, err := f.comp.Dispatch(ctx)
	require.NoError(t, err, "first dispatch is allowed")

	_, err = f.comp.Dispatch(ctx)
	assert.ErrorIs(t, err, boom)
	_, err = f.comp.Dispatch(ctx)
	assert.ErrorIs(t, err, boom, "failure is sticky")
}

func TestWithDispatchFailure_DefaultError(t *testing.T) {
	c := New(WithDispatchFailure(0, nil))
	_, err := c.Dispatch(context.Background())
	assert.ErrorIs(t, err, errInjectedFailure)
}

func TestDispatch_NoProgress(t *testing.T) {
	c := New()
	_, err := c.Dispatch(context.Background())
	assert.ErrorIs(t, err, ErrNoProgress)
	assert.Equal(t, uint64(0), c.Repaints())
}

func TestDispatch_ContextCanceled(t *testing.T) {
	f := newFixture(t)
	f.request(t)
	f.commit()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.comp.Dispatch(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, uint64(0), f.comp.Repaints())
}

func TestDispatch_ListenerErrorStopsDelivery(t *testing.T) {
	f := newFixture(t)
	l, _ := f.request(t)
	l.fail = errors.New("listener rejected")
	f.commit()

	n, err := f.comp.Dispatch(context.Background())
	assert.ErrorIs(t, err, l.fail)
	assert.ErrorContains(t, err, "deliver sync_output to feedback")
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, f.comp.Pending(), "presented event stays queued")
}

func TestClose(t *testing.T) {
	f := newFixture(t)
	f.request(t)
	f.commit()
	f.surface.Commit()
	require.Equal(t, 1, f.comp.Pending())

	f.comp.Close()

	assert.Equal(t, 0, f.comp.Pending())
	_, err := f.comp.Dispatch(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	_, err = f.comp.CreateSurface()
	assert.ErrorIs(t, err, ErrClosed)
	_, err = f.comp.CreateBuffer(1, 1)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = f.comp.Bind(1, protocol.InterfaceCompositor, 1)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = f.pres.Feedback(f.surface, &recordingListener{})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestFeedback_DestroyBeforeRepaint(t *testing.T) {
	f := newFixture(t)
	l, fb := f.request(t)
	f.commit()

	require.NoError(t, fb.Destroy())

	_, err := f.comp.Dispatch(context.Background())
	assert.ErrorIs(t, err, ErrNoProgress, "destroyed feedback is no longer latched")
	assert.Empty(t, l.events)
}

func TestFeedback_DestroyDropsQueuedEvents(t *testing.T) {
	f := newFixture(t)
	a, fbA := f.request(t)
	f.commit()
	b, _ := f.request(t)
	f.commit()

	require.NoError(t, fbA.Destroy())

	n, err := f.comp.Dispatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, a.events)

	_, err = f.comp.Dispatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"sync_output", "presented"}, b.kinds())
}

func TestFeedback_DestroyTwice(t *testing.T) {
	f := newFixture(t)
	_, fb := f.request(t)

	require.NoError(t, fb.Destroy())
	assert.ErrorContains(t, fb.Destroy(), "already destroyed")
}

func TestFeedback_Errors(t *testing.T) {
	f := newFixture(t)

	_, err := f.pres.Feedback(f.surface, nil)
	assert.ErrorContains(t, err, "nil listener")

	other := New()
	stray, err := other.CreateSurface()
	require.NoError(t, err)
	_, err = f.pres.Feedback(&foreignSurface{Surface: stray, id: 999}, &recordingListener{})
	assert.ErrorContains(t, err, "unknown surface 999")
}

// foreignSurface reports an ID the fixture's compositor never issued.
type foreignSurface struct {
	protocol.Surface
	id protocol.ObjectID
}

func (s *foreignSurface) ID() protocol.ObjectID { return s.id }

func TestInject(t *testing.T) {
	f := newFixture(t)
	l, fb := f.request(t)

	require.NoError(t, f.comp.InjectSyncOutput(fb.ID(), f.output))
	require.NoError(t, f.comp.InjectPresented(fb.ID(), protocol.PresentedEvent{SeqLo: 9}))
	require.NoError(t, f.comp.InjectDiscarded(fb.ID()))

	n, err := f.comp.Dispatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"sync_output", "presented", "discarded"}, l.kinds())
	assert.Equal(t, uint32(9), l.events[1].presented.SeqLo)

	assert.ErrorContains(t, f.comp.InjectDiscarded(12345), "unknown feedback 12345")
}

func TestRoundtrip_DeliversQueuedOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, _ := f.request(t)
	f.commit()
	b, _ := f.request(t)
	f.commit()

	require.NoError(t, f.comp.Roundtrip(ctx))
	assert.Equal(t, []string{"discarded"}, a.kinds())
	assert.Empty(t, b.events, "roundtrip never repaints")

	require.NoError(t, f.comp.Roundtrip(ctx))
	assert.Empty(t, b.events)
	assert.Equal(t, uint64(0), f.comp.Repaints())
}
