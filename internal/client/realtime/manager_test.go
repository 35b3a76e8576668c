package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/lecom/internal/metrics"
)

type fakeTransport struct {
	h Handlers

	mu         sync.Mutex
	state      ConnState
	starts     int
	subscribes []string
	closed     bool

	startErr     error
	subscribeErr error

	inFlight atomic.Int32
	overlap  atomic.Bool
}

func (f *fakeTransport) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.startErr != nil {
		return f.startErr
	}
	f.state = StateConnected
	return nil
}

func (f *fakeTransport) Subscribe(ctx context.Context, topic string) error {
	if f.inFlight.Add(1) > 1 {
		f.overlap.Store(true)
	}
	defer f.inFlight.Add(-1)
	time.Sleep(time.Millisecond)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribes = append(f.subscribes, topic)
	return f.subscribeErr
}

func (f *fakeTransport) State() ConnState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.state = StateDisconnected
	return nil
}

func (f *fakeTransport) subs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.subscribes...)
}

// reconnect simulates the transport coming back after a drop.
func (f *fakeTransport) reconnect() {
	f.mu.Lock()
	f.state = StateConnected
	f.mu.Unlock()
	f.h.Reconnected(context.Background())
}

type fakeFactory struct {
	built []*fakeTransport
	err   error
	setup func(*fakeTransport)
}

func (ff *fakeFactory) build(h Handlers) (Transport, error) {
	if ff.err != nil {
		return nil, ff.err
	}
	t := &fakeTransport{h: h}
	if ff.setup != nil {
		ff.setup(t)
	}
	ff.built = append(ff.built, t)
	return t, nil
}

func (ff *fakeFactory) last() *fakeTransport { return ff.built[len(ff.built)-1] }

func TestConnect_StartsAndSubscribes(t *testing.T) {
	ff := &fakeFactory{}
	m := NewManager(ff.build)

	require.Equal(t, StateDisconnected, m.State())
	require.NoError(t, m.Connect(context.Background(), "abc123"))

	tr := ff.last()
	assert.Equal(t, 1, tr.starts)
	assert.Equal(t, []string{"abc123"}, tr.subs())
	assert.Equal(t, "abc123", m.Topic())
	assert.Equal(t, StateConnected, m.State())
}

func TestConnect_ReusesLiveConnection(t *testing.T) {
	ff := &fakeFactory{}
	m := NewManager(ff.build)
	ctx := context.Background()

	require.NoError(t, m.Connect(ctx, "a"))
	require.NoError(t, m.Connect(ctx, "b"))

	require.Len(t, ff.built, 1)
	assert.Equal(t, 1, ff.last().starts)
	assert.Equal(t, []string{"a", "b"}, ff.last().subs())
	assert.Equal(t, "b", m.Topic())
}

func TestConnect_EmptyTopic(t *testing.T) {
	m := NewManager((&fakeFactory{}).build)
	require.ErrorIs(t, m.Connect(context.Background(), ""), ErrEmptyTopic)
}

func TestConnect_PropagatesErrors(t *testing.T) {
	startErr := errors.New("401 on handshake")
	ff := &fakeFactory{setup: func(f *fakeTransport) { f.startErr = startErr }}
	m := NewManager(ff.build)

	require.ErrorIs(t, m.Connect(context.Background(), "abc"), startErr)
	assert.Empty(t, ff.last().subs())

	subErr := errors.New("rejected")
	ff2 := &fakeFactory{setup: func(f *fakeTransport) { f.subscribeErr = subErr }}
	m2 := NewManager(ff2.build)
	require.ErrorIs(t, m2.Connect(context.Background(), "abc"), subErr)

	factoryErr := errors.New("bad url")
	m3 := NewManager((&fakeFactory{err: factoryErr}).build)
	require.ErrorIs(t, m3.Connect(context.Background(), "abc"), factoryErr)
}

func TestConnect_RetriesStartAfterFailure(t *testing.T) {
	ff := &fakeFactory{setup: func(f *fakeTransport) { f.startErr = errors.New("down") }}
	m := NewManager(ff.build)
	ctx := context.Background()

	require.Error(t, m.Connect(ctx, "abc"))

	tr := ff.last()
	tr.mu.Lock()
	tr.startErr = nil
	tr.mu.Unlock()

	require.NoError(t, m.Connect(ctx, "abc"))
	assert.Len(t, ff.built, 1)
	assert.Equal(t, 2, tr.starts)
}

func TestReconnect_ResubscribesCurrentTopicOncePerEvent(t *testing.T) {
	const n = 5

	ff := &fakeFactory{}
	mt := metrics.New(prometheus.NewRegistry())
	m := NewManager(ff.build, WithMetrics(mt))
	ctx := context.Background()

	require.NoError(t, m.Connect(ctx, "old"))
	require.NoError(t, m.Connect(ctx, "abc123"))
	tr := ff.last()

	for i := 0; i < n; i++ {
		tr.reconnect()
	}

	subs := tr.subs()
	require.Len(t, subs, 2+n)
	for _, s := range subs[2:] {
		assert.Equal(t, "abc123", s)
	}
	assert.Equal(t, float64(n), testutil.ToFloat64(mt.ResubscribeCounter()))
}

func TestReconnect_NoTopicNoSubscribe(t *testing.T) {
	ff := &fakeFactory{setup: func(f *fakeTransport) { f.startErr = errors.New("x") }}
	m := NewManager(ff.build)
	_ = m.Connect(context.Background(), "abc")

	tr := ff.last()
	require.NoError(t, m.Close())
	tr.reconnect()

	assert.Empty(t, tr.subs())
}

func TestReconnect_StaleTransportIgnored(t *testing.T) {
	ff := &fakeFactory{}
	m := NewManager(ff.build)
	ctx := context.Background()

	require.NoError(t, m.Connect(ctx, "abc"))
	old := ff.last()
	require.NoError(t, m.Close())
	require.NoError(t, m.Connect(ctx, "def"))
	current := ff.last()
	require.NotSame(t, old, current)

	old.reconnect()

	assert.Equal(t, []string{"abc"}, old.subs())
	assert.Equal(t, []string{"def"}, current.subs())
}

func TestOnMessage_SingleHandler(t *testing.T) {
	ff := &fakeFactory{}
	m := NewManager(ff.build)
	require.NoError(t, m.Connect(context.Background(), "abc"))
	tr := ff.last()

	var first, second []string
	m.OnMessage(func(p json.RawMessage) { first = append(first, string(p)) })
	tr.h.Message(json.RawMessage(`1`))

	m.OnMessage(func(p json.RawMessage) { second = append(second, string(p)) })
	tr.h.Message(json.RawMessage(`2`))

	m.OffMessage()
	tr.h.Message(json.RawMessage(`3`))

	assert.Equal(t, []string{"1"}, first)
	assert.Equal(t, []string{"2"}, second)
}

func TestReconnect_DoesNotReplayMessages(t *testing.T) {
	ff := &fakeFactory{}
	m := NewManager(ff.build)
	require.NoError(t, m.Connect(context.Background(), "abc123"))
	tr := ff.last()

	var got []string
	m.OnMessage(func(p json.RawMessage) { got = append(got, string(p)) })

	tr.h.Message(json.RawMessage(`"m1"`))
	tr.reconnect()
	tr.h.Message(json.RawMessage(`"m2"`))

	assert.Equal(t, []string{`"m1"`, `"m2"`}, got)
	assert.Equal(t, []string{"abc123", "abc123"}, tr.subs())
}

func TestConnect_ConcurrentCallsAreSerialized(t *testing.T) {
	ff := &fakeFactory{}
	m := NewManager(ff.build)

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error { return m.Connect(context.Background(), "abc") })
	}
	require.NoError(t, g.Wait())

	require.Len(t, ff.built, 1)
	tr := ff.last()
	assert.Equal(t, 1, tr.starts)
	assert.Len(t, tr.subs(), 8)
	assert.False(t, tr.overlap.Load())
}

func TestClose_RebuildsOnNextConnect(t *testing.T) {
	ff := &fakeFactory{}
	m := NewManager(ff.build)
	ctx := context.Background()

	require.NoError(t, m.Close())

	require.NoError(t, m.Connect(ctx, "abc"))
	first := ff.last()
	require.NoError(t, m.Close())
	assert.True(t, first.closed)
	assert.Equal(t, "", m.Topic())
	assert.Equal(t, StateDisconnected, m.State())

	require.NoError(t, m.Connect(ctx, "abc"))
	assert.Len(t, ff.built, 2)
}

func TestConnState_String(t *testing.T) {
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "ConnState(9)", ConnState(9).String())
}
