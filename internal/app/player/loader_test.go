package player

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/rockola/internal/domain/media"
)

type stubPlayer struct {
	src       media.Reference
	destroyed atomic.Bool
}

func (p *stubPlayer) Source() media.Reference { return p.src }
func (p *stubPlayer) LoadVideo(string) error { return nil }
func (p *stubPlayer) NextVideo() error { return nil }
func (p *stubPlayer) PlayVideo() error { return nil }
func (p *stubPlayer) SetVolume(int) error { return nil }
func (p *stubPlayer) Destroy() error {
	p.destroyed.Store(true)
	return nil
}

type stubBackend struct {
	acquireCalls atomic.Int32
	acquire      func(ctx context.Context) error
	readyAfter   time.Duration // negative never reports ready

	mu      sync.Mutex
	players []*stubPlayer
}

func (b *stubBackend) Name() string { return "stub" }

func (b *stubBackend) Acquire(ctx context.Context) error {
	b.acquireCalls.Add(1)
	if b.acquire != nil {
		return b.acquire(ctx)
	}
	return nil
}

func (b *stubBackend) Create(src media.Reference, l Listener) (Player, error) {
	p := &stubPlayer{src: src}
	b.mu.Lock()
	b.players = append(b.players, p)
	b.mu.Unlock()

	if b.readyAfter >= 0 {
		go func() {
			time.Sleep(b.readyAfter)
			l.OnReady()
		}()
	}
	return p, nil
}

type nopListener struct {
	ready atomic.Int32
}

func (l *nopListener) OnReady() { l.ready.Add(1) }
func (l *nopListener) OnStateChange(State) {}
func (l *nopListener) OnError(ErrorCode) {}

func TestErrorCode_IsEmbedBlocked(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want bool
	}{
		{ErrorInvalidParam, false},
		{ErrorHTML5, false},
		{ErrorNotFound, false},
		{ErrorEmbedNotAllowed, true},
		{ErrorEmbedNotAllowed2, true},
	}

	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.code.IsEmbedBlocked())
		})
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "ended", StateEnded.String())
	assert.Equal(t, "playing", StatePlaying.String())
	assert.Equal(t, "cued", StateCued.String())
	assert.Equal(t, "state(4)", State(4).String())
}

func TestLoader_AcquireIsMemoized(t *testing.T) {
	release := make(chan struct{})
	b := &stubBackend{acquire: func(ctx context.Context) error {
		<-release
		return nil
	}}
	l := NewLoader(b, LoaderConfig{})

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = l.Acquire(context.Background())
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	require.NoError(t, l.Acquire(context.Background()))
	assert.Equal(t, int32(1), b.acquireCalls.Load())
}

func TestLoader_AcquireTimeout(t *testing.T) {
	b := &stubBackend{acquire: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	l := NewLoader(b, LoaderConfig{AcquireTimeout: 20 * time.Millisecond})

	err := l.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrAcquireTimeout)
}

func TestLoader_AcquireTimeoutWhenBackendIgnoresContext(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	b := &stubBackend{acquire: func(ctx context.Context) error {
		<-block
		return nil
	}}
	l := NewLoader(b, LoaderConfig{AcquireTimeout: 20 * time.Millisecond})

	assert.ErrorIs(t, l.Acquire(context.Background()), ErrAcquireTimeout)
}

func TestLoader_FailedAcquireIsRetried(t *testing.T) {
	var calls atomic.Int32
	b := &stubBackend{acquire: func(ctx context.Context) error {
		if calls.Add(1) == 1 {
			return errors.New("script blocked")
		}
		return nil
	}}
	l := NewLoader(b, LoaderConfig{})

	assert.Error(t, l.Acquire(context.Background()))
	assert.NoError(t, l.Acquire(context.Background()))
	assert.Equal(t, int32(2), b.acquireCalls.Load())
}

func TestLoader_CreateWaitsForReady(t *testing.T) {
	b := &stubBackend{readyAfter: 10 * time.Millisecond}
	l := NewLoader(b, LoaderConfig{})
	listener := &nopListener{}

	p, err := l.Create(context.Background(), media.Playlist("PL1"), listener)
	require.NoError(t, err)
	assert.Equal(t, media.Playlist("PL1"), p.Source())
	assert.Equal(t, int32(1), listener.ready.Load())
}

func TestLoader_CreateTimeoutDestroysPlayer(t *testing.T) {
	b := &stubBackend{readyAfter: -1}
	l := NewLoader(b, LoaderConfig{CreateTimeout: 20 * time.Millisecond})

	p, err := l.Create(context.Background(), media.Video("abc"), &nopListener{})
	assert.Nil(t, p)
	assert.ErrorIs(t, err, ErrCreateTimeout)

	require.Len(t, b.players, 1)
	assert.True(t, b.players[0].destroyed.Load())
}

func TestLoader_CreatePropagatesAcquireError(t *testing.T) {
	b := &stubBackend{acquire: func(ctx context.Context) error {
		return errors.New("no screen")
	}}
	l := NewLoader(b, LoaderConfig{})

	_, err := l.Create(context.Background(), media.Video("abc"), &nopListener{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no screen")
	assert.Empty(t, b.players)
}
