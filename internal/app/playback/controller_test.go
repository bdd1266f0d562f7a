package playback

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/rockola/internal/app/player"
	"github.com/osa030/rockola/internal/domain/media"
	"github.com/osa030/rockola/internal/domain/queue"
	"github.com/osa030/rockola/internal/infra/jukebox"
)

// fakeAPI records next calls. When gate is set, Next signals entered and
// waits for gate before answering.
type fakeAPI struct {
	mu         sync.Mutex
	forces     []bool
	nextQueue  []*jukebox.NextResult
	nextErr    error
	recoverRes *jukebox.RecoverResult
	recoverErr error

	gate        chan struct{}
	entered     chan struct{}
	recoverGate chan struct{}
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		recoverRes: &jukebox.RecoverResult{Status: jukebox.Status{OK: true}},
		entered:    make(chan struct{}, 16),
	}
}

func (a *fakeAPI) pushNext(res ...*jukebox.NextResult) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextQueue = append(a.nextQueue, res...)
}

func (a *fakeAPI) setGate(gate chan struct{}) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.gate = gate
}

func (a *fakeAPI) Next(ctx context.Context, force bool) (*jukebox.NextResult, error) {
	a.mu.Lock()
	a.forces = append(a.forces, force)
	gate := a.gate
	a.mu.Unlock()

	a.entered <- struct{}{}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.nextErr != nil {
		return nil, a.nextErr
	}
	if len(a.nextQueue) == 0 {
		return idle(), nil
	}
	res := a.nextQueue[0]
	a.nextQueue = a.nextQueue[1:]
	return res, nil
}

func (a *fakeAPI) Recover(ctx context.Context) (*jukebox.RecoverResult, error) {
	a.mu.Lock()
	gate := a.recoverGate
	a.mu.Unlock()
	if gate != nil {
		<-gate
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	return a.recoverRes, a.recoverErr
}

func (a *fakeAPI) nextForces() []bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]bool(nil), a.forces...)
}

func (a *fakeAPI) waitEntered(t *testing.T) {
	t.Helper()
	select {
	case <-a.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a next call")
	}
}

func idle() *jukebox.NextResult {
	return &jukebox.NextResult{Status: jukebox.Status{OK: true}}
}

func playable(videoID, trackName, artistName string) *jukebox.NextResult {
	return &jukebox.NextResult{
		Status:         jukebox.Status{OK: true},
		HasQueueItem:   true,
		YouTubeVideoID: videoID,
		Track:          &jukebox.NextTrack{TrackName: trackName, ArtistName: artistName},
	}
}

func fallbackTo(playlistID string) *jukebox.NextResult {
	return &jukebox.NextResult{
		Status:             jukebox.Status{OK: true},
		UseFallback:        true,
		FallbackPlaylistID: playlistID,
	}
}

type fakePlayer struct {
	src      media.Reference
	listener player.Listener

	mu        sync.Mutex
	loads     []string
	nexts     int
	plays     int
	volume    int
	destroyed bool
}

func (p *fakePlayer) Source() media.Reference { return p.src }

func (p *fakePlayer) LoadVideo(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loads = append(p.loads, id)
	return nil
}

func (p *fakePlayer) NextVideo() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nexts++
	return nil
}

func (p *fakePlayer) PlayVideo() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.plays++
	return nil
}

func (p *fakePlayer) SetVolume(v int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = v
	return nil
}

func (p *fakePlayer) Destroy() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.destroyed = true
	return nil
}

func (p *fakePlayer) nextCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nexts
}

// fakeFactory creates fake players. When playlistGate is set, playlist
// creation signals playlistEntered and waits for the gate.
type fakeFactory struct {
	mu         sync.Mutex
	acquireErr error
	created    []*fakePlayer

	playlistGate    chan struct{}
	playlistEntered chan struct{}
}

func (f *fakeFactory) Acquire(ctx context.Context) error {
	return f.acquireErr
}

func (f *fakeFactory) Create(ctx context.Context, src media.Reference, l player.Listener) (player.Player, error) {
	if src.Kind == media.KindPlaylist && f.playlistGate != nil {
		f.playlistEntered <- struct{}{}
		<-f.playlistGate
	}
	p := &fakePlayer{src: src, listener: l}
	f.mu.Lock()
	f.created = append(f.created, p)
	f.mu.Unlock()
	l.OnReady()
	return p, nil
}

func (f *fakeFactory) last() *fakePlayer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.created) == 0 {
		return nil
	}
	return f.created[len(f.created)-1]
}

func (f *fakeFactory) sources() []media.Reference {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]media.Reference, 0, len(f.created))
	for _, p := range f.created {
		out = append(out, p.src)
	}
	return out
}

type resolverFunc func(serverPlaylistID string) media.Reference

func (f resolverFunc) Resolve(ctx context.Context, serverPlaylistID string) media.Reference {
	return f(serverPlaylistID)
}

var serverPlaylist = resolverFunc(func(id string) media.Reference { return media.Playlist(id) })

func newTestController(t *testing.T, api *fakeAPI, factory *fakeFactory) *Controller {
	t.Helper()
	c := NewController(api, factory, serverPlaylist, Config{Volume: 80, FallbackSkipLimit: 8})
	t.Cleanup(c.Close)
	return c
}

// startIdle starts a controller that recovers into Idle.
func startIdle(t *testing.T) (*Controller, *fakeAPI, *fakeFactory) {
	t.Helper()
	api := newFakeAPI()
	factory := &fakeFactory{}
	c := newTestController(t, api, factory)

	require.NoError(t, c.Start(context.Background()))
	api.waitEntered(t)
	require.Equal(t, PhaseIdle, c.Phase())
	return c, api, factory
}

func TestController_ConcurrentTriggersIssueOneNext(t *testing.T) {
	c, api, _ := startIdle(t)

	gate := make(chan struct{})
	api.setGate(gate)
	api.pushNext(playable("vid7", "One", "Metallica"))

	c.ObserveQueue([]queue.Item{{QueueID: 7}})
	api.waitEntered(t)

	err := c.Next(context.Background())
	assert.ErrorIs(t, err, ErrAdvanceInProgress)

	close(gate)
	c.wg.Wait()

	assert.Equal(t, []bool{false, true}, api.nextForces())
	assert.Equal(t, PhasePlaying, c.Phase())
}

func TestController_ForceFlagSequence(t *testing.T) {
	api := newFakeAPI()
	factory := &fakeFactory{}
	c := newTestController(t, api, factory)

	api.pushNext(playable("abc", "One", "Metallica"))
	require.NoError(t, c.Start(context.Background()))
	api.waitEntered(t)
	require.Equal(t, PhasePlaying, c.Phase())

	// Manual next lands in Idle
	require.NoError(t, c.Next(context.Background()))
	api.waitEntered(t)
	assert.False(t, c.Snapshot().AdvanceForced)
	require.Equal(t, PhaseIdle, c.Phase())

	// Auto take-over plays a track
	api.pushNext(playable("def", "Walk", "Pantera"))
	c.ObserveQueue([]queue.Item{{QueueID: 11}})
	api.waitEntered(t)
	c.wg.Wait()
	require.Equal(t, PhasePlaying, c.Phase())

	// Natural end
	factory.last().listener.OnStateChange(player.StateEnded)
	api.waitEntered(t)
	c.wg.Wait()

	// Any call after that is soft again, whatever the outcome
	api.mu.Lock()
	api.nextErr = errors.New("connection reset")
	api.mu.Unlock()
	factory.last().listener.OnStateChange(player.StateEnded)
	api.waitEntered(t)
	c.wg.Wait()

	assert.Equal(t, []bool{false, true, true, false, false}, api.nextForces())
	snap := c.Snapshot()
	assert.False(t, snap.AdvanceForced)
	assert.False(t, snap.Advancing)
}

func TestController_FallbackLoadsPlaylist(t *testing.T) {
	api := newFakeAPI()
	factory := &fakeFactory{}
	c := newTestController(t, api, factory)

	api.pushNext(fallbackTo("PL123"))
	require.NoError(t, c.Start(context.Background()))

	snap := c.Snapshot()
	assert.Equal(t, PhaseFallback, snap.Phase)
	assert.True(t, snap.Fallback.Active)
	assert.Equal(t, "PL123", snap.Fallback.PlaylistID)
	assert.Nil(t, snap.NowPlaying)

	p := factory.last()
	assert.Equal(t, media.Playlist("PL123"), p.src)
	assert.Equal(t, 80, p.volume)
	assert.Equal(t, []media.Reference{media.Video(""), media.Playlist("PL123")}, factory.sources())
	// The empty video player was replaced
	assert.True(t, factory.created[0].destroyed)
}

func TestController_FallbackWithoutPlaylist(t *testing.T) {
	api := newFakeAPI()
	factory := &fakeFactory{}
	c := newTestController(t, api, factory)

	api.pushNext(fallbackTo(""))
	require.NoError(t, c.Start(context.Background()))

	snap := c.Snapshot()
	assert.Equal(t, PhaseFallback, snap.Phase)
	assert.Empty(t, snap.LastError)
	assert.Contains(t, snap.Notice, "no playlist is configured")
	assert.Len(t, factory.sources(), 1)
}

func TestController_IdleInstructsNoPlayback(t *testing.T) {
	c, _, factory := startIdle(t)

	snap := c.Snapshot()
	assert.Nil(t, snap.NowPlaying)
	assert.False(t, snap.Fallback.Active)

	require.Len(t, factory.sources(), 1)
	assert.Empty(t, factory.last().loads)
}

func TestController_FallbackEmbedBlockedSkips(t *testing.T) {
	api := newFakeAPI()
	factory := &fakeFactory{}
	c := newTestController(t, api, factory)

	api.pushNext(fallbackTo("PL123"))
	require.NoError(t, c.Start(context.Background()))
	p := factory.last()

	for i := 1; i <= 8; i++ {
		p.listener.OnError(player.ErrorEmbedNotAllowed2)
		assert.Contains(t, c.Snapshot().LastError, fmt.Sprintf("attempt %d/8", i))
	}
	c.wg.Wait()
	assert.Equal(t, 8, p.nextCount())

	p.listener.OnError(player.ErrorEmbedNotAllowed)
	c.wg.Wait()

	snap := c.Snapshot()
	assert.Equal(t, 8, p.nextCount())
	assert.Contains(t, snap.LastError, "Fallback blocked by YouTube restrictions (code 101)")
	assert.Equal(t, PhaseFallback, snap.Phase)
}

func TestController_ErrorOutsideFallbackIsAdvisory(t *testing.T) {
	api := newFakeAPI()
	factory := &fakeFactory{}
	c := newTestController(t, api, factory)

	api.pushNext(playable("abc", "One", "Metallica"))
	require.NoError(t, c.Start(context.Background()))

	factory.last().listener.OnError(player.ErrorEmbedNotAllowed2)

	snap := c.Snapshot()
	assert.Equal(t, PhasePlaying, snap.Phase)
	assert.Equal(t, "YouTube error code: 150 (embed/restriction).", snap.LastError)
	assert.Zero(t, factory.last().nextCount())
}

func TestController_AutoTakeOverOncePerQueueID(t *testing.T) {
	c, api, _ := startIdle(t)

	c.ObserveQueue([]queue.Item{{QueueID: 7}})
	api.waitEntered(t)
	c.wg.Wait()
	require.Equal(t, PhaseIdle, c.Phase())

	c.ObserveQueue([]queue.Item{{QueueID: 7}})
	c.wg.Wait()
	assert.Equal(t, []bool{false, true}, api.nextForces())

	// An empty queue resets the memory
	c.ObserveQueue(nil)
	c.ObserveQueue([]queue.Item{{QueueID: 7}})
	api.waitEntered(t)
	c.wg.Wait()
	assert.Equal(t, []bool{false, true, true}, api.nextForces())
}

func TestController_AutoTakeOverUsesCanonicalHead(t *testing.T) {
	c, api, _ := startIdle(t)

	now := time.Now()
	c.ObserveQueue([]queue.Item{
		{QueueID: 9, Status: queue.StatusWaiting, EnqueuedAt: now.Add(time.Minute)},
		{QueueID: 3, Status: queue.StatusWaiting, EnqueuedAt: now},
		{QueueID: 1, Status: queue.StatusNowPlaying},
	})
	api.waitEntered(t)
	c.wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Equal(t, int64(3), c.lastAutoQueueID)
}

func TestController_NoAutoTakeOverWhilePlaying(t *testing.T) {
	api := newFakeAPI()
	factory := &fakeFactory{}
	c := newTestController(t, api, factory)

	api.pushNext(playable("abc", "One", "Metallica"))
	require.NoError(t, c.Start(context.Background()))
	api.waitEntered(t)

	c.ObserveQueue([]queue.Item{{QueueID: 7}})
	c.wg.Wait()
	assert.Equal(t, []bool{false}, api.nextForces())
}

func TestController_RecoverNowPlaying(t *testing.T) {
	api := newFakeAPI()
	api.recoverRes = &jukebox.RecoverResult{
		Status:         jukebox.Status{OK: true},
		HasNowPlaying:  true,
		YouTubeVideoID: "abc",
	}
	factory := &fakeFactory{}
	c := newTestController(t, api, factory)

	require.NoError(t, c.Start(context.Background()))

	snap := c.Snapshot()
	assert.Equal(t, PhasePlaying, snap.Phase)
	require.NotNil(t, snap.NowPlaying)
	assert.Equal(t, "abc", snap.NowPlaying.VideoID)
	assert.Equal(t, []string{"abc"}, factory.last().loads)
	assert.Empty(t, api.nextForces())
}

func TestController_RecoverTitleFallsBackToQueue(t *testing.T) {
	api := newFakeAPI()
	api.recoverRes = &jukebox.RecoverResult{
		Status:         jukebox.Status{OK: true},
		HasNowPlaying:  true,
		YouTubeVideoID: "abc",
	}
	c := newTestController(t, api, &fakeFactory{})
	require.NoError(t, c.Start(context.Background()))

	c.ObserveQueue([]queue.Item{
		{QueueID: 1, TrackName: "One", ArtistName: "Metallica", Status: queue.StatusNowPlaying},
		{QueueID: 2, TrackName: "Walk"},
	})

	snap := c.Snapshot()
	assert.Equal(t, "One — Metallica", snap.Title)
	require.Len(t, snap.Waiting, 1)
	assert.Equal(t, int64(2), snap.Waiting[0].QueueID)
}

func TestController_PlayingReportedWhileRecovering(t *testing.T) {
	api := newFakeAPI()
	api.recoverGate = make(chan struct{})
	factory := &fakeFactory{}
	c := newTestController(t, api, factory)

	done := make(chan error, 1)
	go func() { done <- c.Start(context.Background()) }()

	require.Eventually(t, func() bool { return c.Phase() == PhaseRecovering }, 2*time.Second, 5*time.Millisecond)
	factory.last().listener.OnStateChange(player.StatePlaying)
	assert.Equal(t, PhasePlaying, c.Phase())

	close(api.recoverGate)
	require.NoError(t, <-done)
}

func TestController_Failures(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(api *fakeAPI, factory *fakeFactory)
		wantErr string
	}{
		{
			name: "player api unavailable",
			setup: func(api *fakeAPI, factory *fakeFactory) {
				factory.acquireErr = player.ErrAcquireTimeout
			},
			wantErr: "Error loading the player API",
		},
		{
			name: "recover transport failure",
			setup: func(api *fakeAPI, factory *fakeFactory) {
				api.recoverRes = nil
				api.recoverErr = errors.New("dial tcp: refused")
			},
			wantErr: "Error recovering host state: dial tcp: refused",
		},
		{
			name: "recover not ok",
			setup: func(api *fakeAPI, factory *fakeFactory) {
				api.recoverRes = &jukebox.RecoverResult{Status: jukebox.Status{OK: false}}
			},
			wantErr: "Recover failed.",
		},
		{
			name: "next not ok with message",
			setup: func(api *fakeAPI, factory *fakeFactory) {
				api.pushNext(&jukebox.NextResult{Status: jukebox.Status{OK: false, Message: "host locked"}})
			},
			wantErr: "host locked",
		},
		{
			name: "next not ok without message",
			setup: func(api *fakeAPI, factory *fakeFactory) {
				api.pushNext(&jukebox.NextResult{Status: jukebox.Status{OK: false}})
			},
			wantErr: "Next failed (recover_no_nowplaying)",
		},
		{
			name: "next transport failure",
			setup: func(api *fakeAPI, factory *fakeFactory) {
				api.nextErr = errors.New("timeout")
			},
			wantErr: "Error requesting next (recover_no_nowplaying): timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newFakeAPI()
			factory := &fakeFactory{}
			tt.setup(api, factory)
			c := newTestController(t, api, factory)

			assert.Error(t, c.Start(context.Background()))

			snap := c.Snapshot()
			assert.Equal(t, PhaseErrored, snap.Phase)
			assert.Contains(t, snap.LastError, tt.wantErr)
			assert.False(t, snap.Advancing)
		})
	}
}

func TestController_RecoverLeavesErrored(t *testing.T) {
	api := newFakeAPI()
	api.nextErr = errors.New("timeout")
	factory := &fakeFactory{}
	c := newTestController(t, api, factory)

	require.Error(t, c.Start(context.Background()))
	require.Equal(t, PhaseErrored, c.Phase())

	api.mu.Lock()
	api.nextErr = nil
	api.mu.Unlock()
	api.pushNext(playable("abc", "One", "Metallica"))

	require.NoError(t, c.Recover(context.Background()))
	snap := c.Snapshot()
	assert.Equal(t, PhasePlaying, snap.Phase)
	assert.Empty(t, snap.LastError)
	assert.Equal(t, "One — Metallica", snap.Title)
}

func TestController_RecoverDroppedDuringPlayerCreate(t *testing.T) {
	api := newFakeAPI()
	factory := &fakeFactory{
		playlistGate:    make(chan struct{}),
		playlistEntered: make(chan struct{}, 1),
	}
	c := newTestController(t, api, factory)

	api.pushNext(fallbackTo("PL123"))
	done := make(chan error, 1)
	go func() { done <- c.Start(context.Background()) }()

	select {
	case <-factory.playlistEntered:
	case <-time.After(2 * time.Second):
		t.Fatal("expected the fallback playlist to be created")
	}

	assert.ErrorIs(t, c.Recover(context.Background()), ErrAdvanceInProgress)
	assert.Equal(t, PhaseFallback, c.Phase())

	close(factory.playlistGate)
	require.NoError(t, <-done)

	snap := c.Snapshot()
	assert.Equal(t, PhaseFallback, snap.Phase)
	assert.True(t, snap.Fallback.Active)
	assert.Equal(t, []media.Reference{media.Video(""), media.Playlist("PL123")}, factory.sources())
	assert.False(t, factory.last().destroyed)
	api.waitEntered(t)

	api.pushNext(playable("vid7", "One", "Metallica"))
	c.ObserveQueue([]queue.Item{{QueueID: 7}})
	api.waitEntered(t)

	require.Eventually(t, func() bool { return c.Phase() == PhasePlaying }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []bool{false, true}, api.nextForces())
}

func TestController_RecoverHoldsAdvanceGuard(t *testing.T) {
	c, api, _ := startIdle(t)

	api.mu.Lock()
	api.recoverGate = make(chan struct{})
	api.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- c.Recover(context.Background()) }()
	require.Eventually(t, func() bool { return c.Snapshot().Advancing }, 2*time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, c.Next(context.Background()), ErrAdvanceInProgress)
	c.ObserveQueue([]queue.Item{{QueueID: 9}})

	close(api.recoverGate)
	require.NoError(t, <-done)
	api.waitEntered(t)

	assert.Equal(t, []bool{false, false}, api.nextForces())
	assert.False(t, c.Snapshot().Advancing)
}

func TestController_PlaylistToVideoRecreatesPlayer(t *testing.T) {
	api := newFakeAPI()
	factory := &fakeFactory{}
	c := newTestController(t, api, factory)

	api.pushNext(fallbackTo("PL123"), playable("abc", "One", "Metallica"))
	require.NoError(t, c.Start(context.Background()))
	require.NoError(t, c.Next(context.Background()))

	assert.Equal(t, []media.Reference{media.Video(""), media.Playlist("PL123"), media.Video("abc")}, factory.sources())
	assert.Equal(t, PhasePlaying, c.Phase())
	assert.False(t, c.Snapshot().Fallback.Active)
}

func TestController_IgnoresReplacedPlayerCallbacks(t *testing.T) {
	api := newFakeAPI()
	factory := &fakeFactory{}
	c := newTestController(t, api, factory)

	api.pushNext(fallbackTo("PL123"))
	require.NoError(t, c.Start(context.Background()))

	stale := factory.created[0]
	stale.listener.OnStateChange(player.StateEnded)
	stale.listener.OnError(player.ErrorNotFound)
	c.wg.Wait()

	snap := c.Snapshot()
	assert.Empty(t, snap.LastError)
	assert.Equal(t, []bool{false}, api.nextForces())
}

func TestController_CloseIsIdempotent(t *testing.T) {
	c, _, factory := startIdle(t)

	c.Close()
	c.Close()

	assert.True(t, factory.last().destroyed)
	assert.ErrorIs(t, c.Next(context.Background()), ErrClosed)

	for range c.Events() {
	}
}

func TestPhase_String(t *testing.T) {
	assert.Equal(t, "fallback", PhaseFallback.String())
	text, err := PhaseErrored.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "errored", string(text))
}

func TestSnapshot_JSONRoundTrip(t *testing.T) {
	in := Event{Type: EventAdvisory, State: Snapshot{Phase: PhaseFallback, LastError: "blocked"}}
	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"phase":"fallback"`)

	var out Event
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, EventAdvisory, out.Type)
	assert.Equal(t, PhaseFallback, out.State.Phase)

	assert.Error(t, json.Unmarshal([]byte(`{"type":"bogus"}`), &out))
}
