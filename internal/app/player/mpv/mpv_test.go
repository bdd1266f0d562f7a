package mpv

import (
	"context"
	"os/exec"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dexterlb/mpvipc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/rockola/internal/app/player"
	"github.com/osa030/rockola/internal/domain/media"
)

type fakeConn struct {
	openErr error
	events  chan *mpvipc.Event

	mu    sync.Mutex
	calls [][]interface{}
	sets  map[string]interface{}
	props map[string]interface{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		events: make(chan *mpvipc.Event, 8),
		sets:   make(map[string]interface{}),
		props:  map[string]interface{}{"mpv-version": "mpv 0.38.0"},
	}
}

func (c *fakeConn) Open() error { return c.openErr }

func (c *fakeConn) Call(args ...interface{}) (interface{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, args)
	return nil, nil
}

func (c *fakeConn) Set(property string, value interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets[property] = value
	return nil
}

func (c *fakeConn) Get(property string) (interface{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.props[property]
	if !ok {
		return nil, errors.Newf("property unavailable: %s", property)
	}
	return v, nil
}

func (c *fakeConn) NewEventListener() (chan *mpvipc.Event, chan struct{}) {
	return c.events, make(chan struct{})
}

func (c *fakeConn) Close() error { return nil }

func (c *fakeConn) lastCall() []interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.calls) == 0 {
		return nil
	}
	return c.calls[len(c.calls)-1]
}

func (c *fakeConn) setProp(name string, v interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.props[name] = v
}

type recordingListener struct {
	ready  atomic.Int32
	mu     sync.Mutex
	states []player.State
	errs   []player.ErrorCode
}

func (l *recordingListener) OnReady() { l.ready.Add(1) }

func (l *recordingListener) OnStateChange(s player.State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, s)
}

func (l *recordingListener) OnError(code player.ErrorCode) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errs = append(l.errs, code)
}

func (l *recordingListener) stateCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.states)
}

func newTestBackend(t *testing.T, conn *fakeConn) *Backend {
	t.Helper()
	b := New(Config{SocketPath: "/tmp/rockola-test.sock"})
	b.dial = func(string) Conn { return conn }
	b.launch = func([]string) (*exec.Cmd, error) {
		t.Fatal("mpv should have been adopted")
		return nil, nil
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestBackend_Args(t *testing.T) {
	b := New(Config{SocketPath: "/tmp/x.sock", ExtraArgs: []string{"--screen=1"}})
	args := b.args()
	assert.Contains(t, args, "--input-ipc-server=/tmp/x.sock")
	assert.Contains(t, args, "--fullscreen=yes")
	assert.Equal(t, "--screen=1", args[len(args)-1])

	b = New(Config{Windowed: true})
	assert.Contains(t, b.args(), "--fullscreen=no")
	assert.Equal(t, "mpv", b.config.Executable)
}

func TestBackend_AdoptsRunningInstance(t *testing.T) {
	conn := newFakeConn()
	b := newTestBackend(t, conn)

	require.NoError(t, b.Acquire(context.Background()))
	require.NoError(t, b.Acquire(context.Background()))
}

func TestBackend_AcquireTimesOutWithoutSocket(t *testing.T) {
	conn := newFakeConn()
	conn.openErr = errors.New("no such file")
	b := New(Config{SocketPath: "/tmp/none.sock"})
	b.dial = func(string) Conn { return conn }
	var launched atomic.Bool
	b.launch = func([]string) (*exec.Cmd, error) {
		launched.Store(true)
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	err := b.Acquire(ctx)
	require.Error(t, err)
	assert.True(t, launched.Load())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBackend_CreateLoadsSource(t *testing.T) {
	conn := newFakeConn()
	b := newTestBackend(t, conn)
	require.NoError(t, b.Acquire(context.Background()))

	l := &recordingListener{}
	p, err := b.Create(media.Video("abc"), l)
	require.NoError(t, err)

	assert.Equal(t, []interface{}{"loadfile", "https://www.youtube.com/watch?v=abc", "replace"}, conn.lastCall())
	assert.Eventually(t, func() bool { return l.ready.Load() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, p.SetVolume(80))
	assert.Equal(t, float64(80), conn.sets["volume"])

	require.NoError(t, p.LoadVideo("def"))
	assert.Equal(t, []interface{}{"loadfile", "https://www.youtube.com/watch?v=def", "replace"}, conn.lastCall())
}

func TestBackend_CreateSupersedesPreviousPlayer(t *testing.T) {
	conn := newFakeConn()
	b := newTestBackend(t, conn)
	require.NoError(t, b.Acquire(context.Background()))

	first, err := b.Create(media.Video("abc"), &recordingListener{})
	require.NoError(t, err)
	second, err := b.Create(media.Playlist("PL1"), &recordingListener{})
	require.NoError(t, err)

	assert.ErrorIs(t, first.PlayVideo(), player.ErrDestroyed)
	// Destroying a superseded player must not stop the live one
	require.NoError(t, first.Destroy())
	assert.Equal(t, "loadfile", conn.lastCall()[0])

	require.NoError(t, second.NextVideo())
	assert.Equal(t, []interface{}{"playlist-next", "force"}, conn.lastCall())

	require.NoError(t, second.Destroy())
	require.NoError(t, second.Destroy())
	assert.Equal(t, []interface{}{"stop"}, conn.lastCall())
}

func TestBackend_Events(t *testing.T) {
	conn := newFakeConn()
	b := newTestBackend(t, conn)
	require.NoError(t, b.Acquire(context.Background()))

	l := &recordingListener{}
	_, err := b.Create(media.Video("abc"), l)
	require.NoError(t, err)

	conn.events <- &mpvipc.Event{Name: "playback-restart"}
	conn.events <- &mpvipc.Event{Name: "end-file", ExtraData: map[string]interface{}{"reason": "stop"}}
	conn.events <- &mpvipc.Event{Name: "end-file", ExtraData: map[string]interface{}{"reason": "error"}}
	conn.events <- &mpvipc.Event{Name: "end-file", ExtraData: map[string]interface{}{"reason": float64(0)}}

	assert.Eventually(t, func() bool { return l.stateCount() == 2 }, time.Second, 5*time.Millisecond)

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Equal(t, []player.State{player.StatePlaying, player.StateEnded}, l.states)
	assert.Equal(t, []player.ErrorCode{player.ErrorEmbedNotAllowed2}, l.errs)
}

func TestBackend_PlaylistEndsOnLastEntry(t *testing.T) {
	conn := newFakeConn()
	b := newTestBackend(t, conn)
	require.NoError(t, b.Acquire(context.Background()))

	l := &recordingListener{}
	_, err := b.Create(media.Playlist("PL1"), l)
	require.NoError(t, err)

	conn.setProp("playlist-pos", float64(0))
	conn.setProp("playlist-count", float64(3))
	conn.events <- &mpvipc.Event{Name: "end-file", ExtraData: map[string]interface{}{"reason": "eof"}}

	conn.events <- &mpvipc.Event{Name: "playback-restart"}
	assert.Eventually(t, func() bool { return l.stateCount() == 1 }, time.Second, 5*time.Millisecond)

	conn.setProp("playlist-pos", float64(2))
	conn.events <- &mpvipc.Event{Name: "end-file", ExtraData: map[string]interface{}{"reason": "eof"}}
	assert.Eventually(t, func() bool { return l.stateCount() == 2 }, time.Second, 5*time.Millisecond)

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Equal(t, []player.State{player.StatePlaying, player.StateEnded}, l.states)
}

func TestEndReason(t *testing.T) {
	tests := []struct {
		in   interface{}
		want string
	}{
		{"eof", "eof"},
		{float64(0), "eof"},
		{float64(1), "stop"},
		{float64(2), "quit"},
		{float64(3), "error"},
		{nil, "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, endReason(map[string]interface{}{"reason": tt.in}))
	}
}
