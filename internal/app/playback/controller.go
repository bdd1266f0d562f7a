package playback

import (
	"context"
	"fmt"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/rockola/internal/app/player"
	"github.com/osa030/rockola/internal/domain/media"
	"github.com/osa030/rockola/internal/domain/queue"
	"github.com/osa030/rockola/internal/infra/jukebox"
)

// Errors
var (
	ErrAdvanceInProgress = errors.New("an advance is already in progress")
	ErrClosed            = errors.New("controller closed")
)

// Advance reasons, used in logs and fallback error messages.
const (
	reasonEnded        = "ended"
	reasonManualNext   = "manual_next_force"
	reasonRecover      = "recover_no_nowplaying"
	reasonAutoFallback = "auto_take_from_fallback"
	reasonAutoIdle     = "auto_take_from_idle"
)

// Default configuration values.
const (
	DefaultVolume            = 80
	DefaultFallbackSkipLimit = 8
)

// API is the part of the jukebox API the controller calls.
type API interface {
	Next(ctx context.Context, forceFinishCurrent bool) (*jukebox.NextResult, error)
	Recover(ctx context.Context) (*jukebox.RecoverResult, error)
}

// PlayerFactory acquires the player capability and constructs players.
type PlayerFactory interface {
	Acquire(ctx context.Context) error
	Create(ctx context.Context, src media.Reference, l player.Listener) (player.Player, error)
}

// FallbackResolver picks the fallback playlist.
type FallbackResolver interface {
	Resolve(ctx context.Context, serverPlaylistID string) media.Reference
}

// Config holds controller configuration.
type Config struct {
	Volume            int // Applied whenever a player is created
	FallbackSkipLimit int // Embed-blocked skips allowed per fallback playlist
}

// NowPlaying is the video the host is playing for a queued track.
type NowPlaying struct {
	VideoID string             `json:"videoId"`
	Track   *jukebox.NextTrack `json:"track,omitempty"` // nil after a recover
}

// FallbackState describes fallback playlist mode.
type FallbackState struct {
	Active     bool   `json:"active"`
	PlaylistID string `json:"playlistId,omitempty"`
}

// Snapshot is a copy of the controller state for display.
type Snapshot struct {
	Phase         Phase         `json:"phase"`
	NowPlaying    *NowPlaying   `json:"nowPlaying,omitempty"`
	Fallback      FallbackState `json:"fallback"`
	LastError     string        `json:"lastError,omitempty"`
	Notice        string        `json:"notice,omitempty"`
	AdvanceForced bool          `json:"advanceForced"`
	Advancing     bool          `json:"advancing"`
	Title         string        `json:"title"`
	Waiting       []queue.Item  `json:"waiting"`
}

// Controller owns the host player and advances it through the queue.
// Operator commands, player callbacks and queue observations all funnel
// into one non-reentrant advance.
type Controller struct {
	mu sync.Mutex

	api      API
	players  PlayerFactory
	fallback FallbackResolver
	config   Config

	// Playback state
	phase         Phase
	nowPlaying    *NowPlaying
	fallbackState FallbackState
	lastError     string
	notice        string
	advanceForced bool

	// Advance guard and auto-take-over memory
	advancing       bool
	lastAutoQueueID int64

	// Player
	player        player.Player
	playerGen     uint64
	creating      int // recreate calls waiting on Create
	fallbackSkips int

	// Last observed queue snapshot
	items []queue.Item

	// Events
	eventCh chan Event

	// Detached work started from callbacks
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	closed bool
}

// NewController creates a new playback controller.
func NewController(api API, players PlayerFactory, fallback FallbackResolver, config Config) *Controller {
	if config.Volume < 0 || config.Volume > 100 {
		config.Volume = DefaultVolume
	}
	if config.FallbackSkipLimit < 0 {
		config.FallbackSkipLimit = DefaultFallbackSkipLimit
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		api:      api,
		players:  players,
		fallback: fallback,
		config:   config,
		phase:    PhaseInitializing,
		items:    []queue.Item{},
		eventCh:  make(chan Event, 32),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Events returns the event channel. It is closed by Close.
func (c *Controller) Events() <-chan Event {
	return c.eventCh
}

// Phase returns the current phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Start acquires the player, creates it and recovers the server state.
// Failures leave the controller Errored; Recover can be retried later.
func (c *Controller) Start(ctx context.Context) error {
	return c.Recover(ctx)
}

// Recover asks the server what should be playing. A now-playing video is
// loaded directly; otherwise the controller advances as if the current
// track had just ended. Recover holds the advance guard throughout, so it
// is dropped with ErrAdvanceInProgress while an advance runs.
func (c *Controller) Recover(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if !c.acquireAdvanceLocked(false, reasonRecover) {
		c.mu.Unlock()
		return ErrAdvanceInProgress
	}
	c.setPhaseLocked(PhaseRecovering)
	c.mu.Unlock()

	next, err := c.recover(ctx)
	if !next {
		c.releaseAdvance()
		return err
	}
	return c.runAdvance(ctx, false, reasonRecover)
}

// recover runs with the advance guard held and reports whether an
// advance should follow.
func (c *Controller) recover(ctx context.Context) (bool, error) {
	if err := c.ensurePlayer(ctx); err != nil {
		return false, err
	}

	res, err := c.api.Recover(ctx)
	if err != nil {
		c.fail(fmt.Sprintf("Error recovering host state: %v", err))
		return false, errors.Wrap(err, "failed to recover")
	}
	if !res.OK {
		statusErr := res.Err("Recover failed.")
		c.fail(statusErr.Error())
		return false, statusErr
	}

	if res.HasNowPlaying && res.YouTubeVideoID != "" {
		zlog.Info().Msgf("playback: recovered now playing: video=%s", res.YouTubeVideoID)
		c.mu.Lock()
		c.nowPlaying = &NowPlaying{VideoID: res.YouTubeVideoID}
		c.mu.Unlock()
		return false, c.playVideo(ctx, res.YouTubeVideoID)
	}

	return true, nil
}

// Next is the operator skip: a forced advance.
func (c *Controller) Next(ctx context.Context) error {
	return c.advance(ctx, true, reasonManualNext)
}

// ObserveQueue records a queue snapshot. In Fallback or Idle, a waiting
// head the controller has not consumed yet triggers one forced advance.
func (c *Controller) ObserveQueue(items []queue.Item) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.items = append([]queue.Item(nil), items...)
	c.sendEventLocked(EventQueueUpdated)

	head, ok := queue.Head(items)
	if !ok || head.QueueID == 0 {
		c.lastAutoQueueID = 0
		return
	}

	if c.phase != PhaseFallback && c.phase != PhaseIdle {
		return
	}
	// Retried on the next snapshot once the running advance is done
	if c.advancing {
		return
	}
	if c.lastAutoQueueID == head.QueueID {
		return
	}
	c.lastAutoQueueID = head.QueueID

	reason := reasonAutoIdle
	if c.phase == PhaseFallback {
		reason = reasonAutoFallback
	}
	zlog.Info().Msgf("playback: taking queued request: queue_id=%d reason=%s", head.QueueID, reason)
	c.goAdvanceLocked(true, reason)
}

// Close destroys the player, cancels in-flight calls and waits for
// detached work. Results arriving afterwards are discarded.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	p := c.player
	c.player = nil
	c.playerGen++
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()

	if p != nil {
		_ = p.Destroy()
	}

	c.mu.Lock()
	close(c.eventCh)
	c.mu.Unlock()
}

// advance is the single serialized entry point for moving to the next
// item. A call while another advance runs is dropped.
func (c *Controller) advance(ctx context.Context, force bool, reason string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if !c.acquireAdvanceLocked(force, reason) {
		c.mu.Unlock()
		return ErrAdvanceInProgress
	}
	c.mu.Unlock()

	return c.runAdvance(ctx, force, reason)
}

// acquireAdvanceLocked takes the advance guard.
// Must be called with lock held.
func (c *Controller) acquireAdvanceLocked(force bool, reason string) bool {
	if c.advancing {
		zlog.Debug().Msgf("playback: advance dropped: reason=%s", reason)
		return false
	}
	c.advancing = true
	c.advanceForced = force
	c.lastError = ""
	return true
}

// releaseAdvance releases the advance guard and resets the force flag.
func (c *Controller) releaseAdvance() {
	c.mu.Lock()
	c.advancing = false
	c.advanceForced = false
	c.mu.Unlock()
}

// runAdvance performs an advance whose guard is already held and releases it.
func (c *Controller) runAdvance(ctx context.Context, force bool, reason string) error {
	defer c.releaseAdvance()

	zlog.Info().Msgf("playback: advancing: reason=%s force=%v", reason, force)

	res, err := c.api.Next(ctx, force)
	if err != nil {
		c.fail(fmt.Sprintf("Error requesting next (%s): %v", reason, err))
		return errors.Wrap(err, "failed to advance")
	}
	if !res.OK {
		statusErr := res.Err(fmt.Sprintf("Next failed (%s)", reason))
		c.fail(statusErr.Error())
		return statusErr
	}

	switch {
	case res.HasQueueItem && res.YouTubeVideoID != "":
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return ErrClosed
		}
		c.nowPlaying = &NowPlaying{VideoID: res.YouTubeVideoID, Track: res.Track}
		c.mu.Unlock()
		return c.playVideo(ctx, res.YouTubeVideoID)

	case res.UseFallback:
		return c.playFallback(ctx, c.fallback.Resolve(ctx, res.FallbackPlaylistID))

	default:
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed {
			return ErrClosed
		}
		c.nowPlaying = nil
		c.fallbackState = FallbackState{}
		c.setPhaseLocked(PhaseIdle)
		return nil
	}
}

// playVideo switches to Playing and loads the video, recreating the
// player when it is missing or bound to a playlist.
func (c *Controller) playVideo(ctx context.Context, videoID string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.fallbackState = FallbackState{}
	c.setPhaseLocked(PhasePlaying)
	p := c.player
	c.mu.Unlock()

	var err error
	if p == nil || p.Source().Kind != media.KindVideo {
		err = c.recreate(ctx, media.Video(videoID))
	} else {
		err = p.LoadVideo(videoID)
	}
	if err != nil {
		if errors.Is(err, ErrClosed) {
			return err
		}
		c.fail(fmt.Sprintf("Could not play the video: %v", err))
		return errors.Wrapf(err, "failed to play video %s", videoID)
	}

	zlog.Info().Msgf("playback: playing video: video=%s", videoID)
	c.mu.Lock()
	c.sendEventLocked(EventTrackStarted)
	c.mu.Unlock()
	return nil
}

// playFallback enters Fallback and starts the playlist. Without a
// playlist Fallback is a quiescent state with a notice, not an error.
func (c *Controller) playFallback(ctx context.Context, playlist media.Reference) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.nowPlaying = nil
	c.fallbackState = FallbackState{Active: true, PlaylistID: playlist.ID}
	c.lastError = ""
	c.fallbackSkips = 0
	c.setPhaseLocked(PhaseFallback)

	if playlist.IsZero() {
		c.notice = "Fallback is active but no playlist is configured."
		c.sendEventLocked(EventAdvisory)
		c.mu.Unlock()
		zlog.Warn().Msg("playback: fallback requested without a playlist")
		return nil
	}
	c.mu.Unlock()

	zlog.Info().Msgf("playback: starting fallback playlist: playlist=%s", playlist.ID)

	if err := c.recreate(ctx, media.Playlist(playlist.ID)); err != nil {
		if errors.Is(err, ErrClosed) {
			return err
		}
		c.mu.Lock()
		c.lastError = fmt.Sprintf("Could not start the fallback playlist: %v", err)
		c.sendEventLocked(EventAdvisory)
		c.mu.Unlock()
		return errors.Wrap(err, "failed to start fallback playlist")
	}
	return nil
}

// ensurePlayer acquires the capability and creates an empty video player
// when none exists. Failure leaves the controller Errored.
func (c *Controller) ensurePlayer(ctx context.Context) error {
	c.mu.Lock()
	exists := c.player != nil || c.creating > 0
	c.mu.Unlock()
	if exists {
		return nil
	}

	if err := c.players.Acquire(ctx); err != nil {
		c.fail(fmt.Sprintf("Error loading the player API: %v", err))
		return errors.Wrap(err, "failed to acquire player")
	}
	if err := c.recreate(ctx, media.Video("")); err != nil {
		if errors.Is(err, ErrClosed) {
			return err
		}
		c.fail(fmt.Sprintf("Error initializing the player: %v", err))
		return errors.Wrap(err, "failed to initialize player")
	}
	return nil
}

// recreate destroys the current player and creates one for src.
func (c *Controller) recreate(ctx context.Context, src media.Reference) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	old := c.player
	c.player = nil
	c.playerGen++
	gen := c.playerGen
	c.creating++
	c.mu.Unlock()

	if old != nil {
		_ = old.Destroy()
	}

	p, err := c.players.Create(ctx, src, &playerListener{c: c, gen: gen})

	c.mu.Lock()
	c.creating--
	c.mu.Unlock()
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed || c.playerGen != gen {
		c.mu.Unlock()
		_ = p.Destroy()
		return ErrClosed
	}
	c.player = p
	c.mu.Unlock()

	if err := p.SetVolume(c.config.Volume); err != nil {
		zlog.Warn().Msgf("playback: failed to set volume: volume=%d error=%v", c.config.Volume, err)
	}
	if err := p.PlayVideo(); err != nil {
		zlog.Warn().Msgf("playback: failed to start playback: source=%s error=%v", src, err)
	}
	return nil
}

// fail records an error and halts automatic progress.
func (c *Controller) fail(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	zlog.Error().Msgf("playback: %s", msg)
	c.lastError = msg
	c.setPhaseLocked(PhaseErrored)
	c.sendEventLocked(EventAdvisory)
}

// goAdvanceLocked takes the advance guard and runs the advance on a
// detached goroutine. Nothing happens if the guard is held.
// Must be called with lock held.
func (c *Controller) goAdvanceLocked(force bool, reason string) {
	if c.closed {
		return
	}
	if !c.acquireAdvanceLocked(force, reason) {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.runAdvance(c.ctx, force, reason); err != nil {
			zlog.Debug().Msgf("playback: detached advance finished: reason=%s error=%v", reason, err)
		}
	}()
}

// goLocked runs fn on a detached goroutine so player callbacks never wait
// on the player that is calling them.
// Must be called with lock held.
func (c *Controller) goLocked(fn func()) {
	if c.closed {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn()
	}()
}

// onPlayerReady handles a player ready callback.
func (c *Controller) onPlayerReady(gen uint64) {
	zlog.Debug().Msgf("playback: player ready: gen=%d", gen)
}

// onPlayerState handles a player state callback.
func (c *Controller) onPlayerState(gen uint64, s player.State) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || gen != c.playerGen {
		return
	}

	zlog.Debug().Msgf("playback: player state: state=%s phase=%s", s, c.phase)

	switch s {
	case player.StatePlaying:
		if c.phase == PhaseRecovering {
			c.setPhaseLocked(PhasePlaying)
		}
	case player.StateEnded:
		c.goAdvanceLocked(false, reasonEnded)
	}
}

// onPlayerError handles a player error callback. Embed-blocked entries of
// the fallback playlist are skipped up to the configured limit.
func (c *Controller) onPlayerError(gen uint64, code player.ErrorCode) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || gen != c.playerGen {
		return
	}

	zlog.Warn().Msgf("playback: player error: code=%d phase=%s", int(code), c.phase)

	if !code.IsEmbedBlocked() || c.phase != PhaseFallback {
		c.lastError = fmt.Sprintf("YouTube error code: %d (embed/restriction).", int(code))
		c.sendEventLocked(EventAdvisory)
		return
	}

	c.fallbackSkips++
	limit := c.config.FallbackSkipLimit
	if c.fallbackSkips > limit {
		c.lastError = fmt.Sprintf("Fallback blocked by YouTube restrictions (code %d). An embed-friendly playlist is needed.", int(code))
		c.sendEventLocked(EventAdvisory)
		return
	}

	c.lastError = fmt.Sprintf("YouTube blocked the embed (code %d). Trying the next fallback video… (attempt %d/%d)", int(code), c.fallbackSkips, limit)
	c.sendEventLocked(EventAdvisory)

	p := c.player
	if p == nil {
		return
	}
	c.goLocked(func() {
		if err := p.NextVideo(); err != nil {
			zlog.Warn().Msgf("playback: fallback skip failed, retrying play: error=%v", err)
			_ = p.PlayVideo()
		}
	})
}

// setPhaseLocked changes the phase and clears the notice.
// Must be called with lock held.
func (c *Controller) setPhaseLocked(phase Phase) {
	c.notice = ""
	if c.phase == phase {
		return
	}
	zlog.Info().Msgf("playback: phase changed: from=%s to=%s", c.phase, phase)
	c.phase = phase
	c.sendEventLocked(EventPhaseChanged)
}

// snapshotLocked copies the state.
// Must be called with lock held.
func (c *Controller) snapshotLocked() Snapshot {
	s := Snapshot{
		Phase:         c.phase,
		Fallback:      c.fallbackState,
		LastError:     c.lastError,
		Notice:        c.notice,
		AdvanceForced: c.advanceForced,
		Advancing:     c.advancing,
		Waiting:       queue.Waiting(c.items),
	}
	if c.nowPlaying != nil {
		np := *c.nowPlaying
		if np.Track != nil {
			t := *np.Track
			np.Track = &t
		}
		s.NowPlaying = &np
	}
	s.Title = c.titleLocked()
	return s
}

// titleLocked prefers the track returned by next, then the item the
// queue marks as playing.
// Must be called with lock held.
func (c *Controller) titleLocked() string {
	if c.nowPlaying != nil && c.nowPlaying.Track != nil {
		return queue.Title(c.nowPlaying.Track.TrackName, c.nowPlaying.Track.ArtistName)
	}
	if it, ok := queue.NowPlaying(c.items); ok {
		return queue.Title(it.TrackName, it.ArtistName)
	}
	return ""
}

// sendEventLocked sends an event without blocking.
// Must be called with lock held.
func (c *Controller) sendEventLocked(t EventType) {
	if c.closed {
		return
	}
	select {
	case c.eventCh <- Event{Type: t, State: c.snapshotLocked()}:
	default:
		// Channel full, drop event
	}
}
