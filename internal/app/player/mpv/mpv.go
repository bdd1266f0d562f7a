// Package mpv implements a player backend that drives a local mpv process
// over its JSON IPC socket. YouTube references are resolved by mpv's ytdl hook.
package mpv

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dexterlb/mpvipc"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/rockola/internal/app/player"
	"github.com/osa030/rockola/internal/domain/media"
)

// End-file reasons reported by mpv.
const (
	reasonEOF   = "eof"
	reasonStop  = "stop"
	reasonQuit  = "quit"
	reasonError = "error"
)

// Conn is the subset of *mpvipc.Connection the backend uses.
type Conn interface {
	Open() error
	Call(args ...interface{}) (interface{}, error)
	Set(property string, value interface{}) error
	Get(property string) (interface{}, error)
	NewEventListener() (chan *mpvipc.Event, chan struct{})
	Close() error
}

// Config holds mpv backend configuration.
type Config struct {
	Executable string   // mpv binary, "mpv" when empty
	SocketPath string   // IPC socket, a temp path when empty
	Windowed   bool     // Fullscreen unless set
	ExtraArgs  []string // Appended to the command line
}

// Backend is the mpv player backend. mpv is a single process, so only one
// player is live at a time; creating a player supersedes the previous one.
type Backend struct {
	config Config
	dial   func(path string) Conn
	launch func(args []string) (*exec.Cmd, error)

	mu      sync.Mutex
	conn    Conn
	cmd     *exec.Cmd
	current *mpvPlayer
	stop    chan struct{}
	wg      sync.WaitGroup
}

// New creates an mpv backend.
func New(config Config) *Backend {
	if config.Executable == "" {
		config.Executable = "mpv"
	}
	if config.SocketPath == "" {
		config.SocketPath = defaultSocketPath()
	}
	return &Backend{
		config: config,
		dial: func(path string) Conn {
			return mpvipc.NewConnection(path)
		},
		launch: func(args []string) (*exec.Cmd, error) {
			cmd := exec.Command(config.Executable, args...)
			if err := cmd.Start(); err != nil {
				return nil, errors.Wrap(err, "failed to start mpv")
			}
			return cmd, nil
		},
	}
}

func defaultSocketPath() string {
	if runtime.GOOS == "windows" {
		return `\\.\pipe\rockola-mpv`
	}
	return filepath.Join(os.TempDir(), "rockola-mpv.sock")
}

// Name implements player.Backend.
func (b *Backend) Name() string {
	return "mpv"
}

// args builds the mpv command line.
func (b *Backend) args() []string {
	args := []string{
		"--idle=yes",
		"--force-window=yes",
		"--keep-open=no",
		"--input-ipc-server=" + b.config.SocketPath,
		"--ytdl=yes",
		"--hwdec=auto",
		"--osc=no",
		"--osd-level=0",
	}
	if b.config.Windowed {
		args = append(args, "--fullscreen=no")
	} else {
		args = append(args, "--fullscreen=yes")
	}
	return append(args, b.config.ExtraArgs...)
}

// Acquire implements player.Backend. It adopts an mpv already listening on
// the socket, or starts one and waits for its socket to accept connections.
func (b *Backend) Acquire(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn != nil {
		return nil
	}

	if conn := b.dial(b.config.SocketPath); conn.Open() == nil {
		if _, err := conn.Get("mpv-version"); err == nil {
			zlog.Info().Msgf("mpv: adopted running instance: socket=%s", b.config.SocketPath)
			b.attachLocked(conn)
			return nil
		}
		_ = conn.Close()
	}

	cmd, err := b.launch(b.args())
	if err != nil {
		return err
	}
	b.cmd = cmd
	if cmd != nil && cmd.Process != nil {
		zlog.Info().Msgf("mpv: started: pid=%d socket=%s", cmd.Process.Pid, b.config.SocketPath)
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		conn := b.dial(b.config.SocketPath)
		if err := conn.Open(); err == nil {
			b.attachLocked(conn)
			return nil
		}

		select {
		case <-ctx.Done():
			b.killLocked()
			return errors.Wrap(ctx.Err(), "mpv IPC socket did not come up")
		case <-ticker.C:
		}
	}
}

func (b *Backend) attachLocked(conn Conn) {
	b.conn = conn
	b.stop = make(chan struct{})
	events, stopListening := conn.NewEventListener()

	b.wg.Add(1)
	go func(stop chan struct{}) {
		defer b.wg.Done()
		defer close(stopListening)
		b.listen(events, stop)
	}(b.stop)
}

// Create implements player.Backend.
func (b *Backend) Create(src media.Reference, l player.Listener) (player.Player, error) {
	b.mu.Lock()
	conn := b.conn
	if conn == nil {
		b.mu.Unlock()
		return nil, errors.New("mpv is not running")
	}
	if b.current != nil {
		b.current.markDestroyed()
	}
	p := &mpvPlayer{backend: b, src: src, listener: l}
	b.current = p
	b.mu.Unlock()

	if !src.IsZero() {
		if _, err := conn.Call("loadfile", src.URL(), "replace"); err != nil {
			b.release(p)
			return nil, errors.Wrapf(err, "failed to load %s", src)
		}
	}

	// mpv accepts commands as soon as the IPC socket is open
	go l.OnReady()
	return p, nil
}

// Close stops listening, quits mpv if this backend started it and tears
// down the IPC connection.
func (b *Backend) Close() error {
	b.mu.Lock()
	conn := b.conn
	stop := b.stop
	b.conn = nil
	b.stop = nil
	b.current = nil
	b.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	if conn != nil {
		_, _ = conn.Call("quit")
		_ = conn.Close()
	}
	b.wg.Wait()

	b.mu.Lock()
	b.killLocked()
	b.mu.Unlock()
	return nil
}

func (b *Backend) killLocked() {
	if b.cmd != nil && b.cmd.Process != nil {
		_ = b.cmd.Process.Kill()
		_, _ = b.cmd.Process.Wait()
	}
	b.cmd = nil
}

// command runs a command on behalf of p if p is still the live player.
func (b *Backend) command(p *mpvPlayer, fn func(conn Conn) error) error {
	b.mu.Lock()
	conn := b.conn
	live := b.current == p
	b.mu.Unlock()

	if !live || p.isDestroyed() {
		return player.ErrDestroyed
	}
	if conn == nil {
		return errors.New("mpv is not running")
	}
	return fn(conn)
}

func (b *Backend) release(p *mpvPlayer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == p {
		b.current = nil
	}
}

func (b *Backend) live() (*mpvPlayer, Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current, b.conn
}

// listen translates mpv events into player callbacks for the live player.
func (b *Backend) listen(events chan *mpvipc.Event, stop chan struct{}) {
	for {
		var event *mpvipc.Event
		select {
		case <-stop:
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			event = e
		}
		if event == nil {
			continue
		}

		p, conn := b.live()
		if p == nil || p.isDestroyed() {
			continue
		}

		switch event.Name {
		case "playback-restart":
			p.listener.OnStateChange(player.StatePlaying)
		case "pause":
			p.listener.OnStateChange(player.StatePaused)
		case "unpause":
			p.listener.OnStateChange(player.StatePlaying)
		case "end-file":
			reason := endReason(event.ExtraData)
			zlog.Debug().Msgf("mpv: end-file: reason=%s source=%s", reason, p.src)

			switch reason {
			case reasonEOF:
				if p.src.Kind == media.KindPlaylist && !lastEntry(conn) {
					continue
				}
				p.listener.OnStateChange(player.StateEnded)
			case reasonError:
				// ytdl refuses entries that cannot be embedded or played
				p.listener.OnError(player.ErrorEmbedNotAllowed2)
			}
		}
	}
}

// endReason extracts the end-file reason, which mpv reports either as a
// string or, in older versions, as an integer.
func endReason(extra map[string]interface{}) string {
	switch r := extra["reason"].(type) {
	case string:
		return r
	case float64:
		switch int(r) {
		case 0:
			return reasonEOF
		case 1:
			return reasonStop
		case 2:
			return reasonQuit
		case 3:
			return reasonError
		}
	}
	return "unknown"
}

// lastEntry reports whether the playlist position is on its final entry.
func lastEntry(conn Conn) bool {
	if conn == nil {
		return true
	}
	pos, err := conn.Get("playlist-pos")
	if err != nil {
		return true
	}
	count, err := conn.Get("playlist-count")
	if err != nil {
		return true
	}
	p, ok1 := pos.(float64)
	c, ok2 := count.(float64)
	if !ok1 || !ok2 {
		return true
	}
	return p < 0 || p+1 >= c
}
