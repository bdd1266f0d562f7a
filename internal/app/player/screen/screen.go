// Package screen implements a player backend that drives the YouTube IFrame
// API in a browser page served by the host, bridged over a websocket.
package screen

import (
	"context"
	_ "embed"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/rockola/internal/app/player"
	"github.com/osa030/rockola/internal/domain/media"
)

// Routes served by the backend.
const (
	PagePath   = "/screen"
	SocketPath = "/ws/screen"
)

// ErrNoScreen is returned when no host screen is connected.
var ErrNoScreen = errors.New("no host screen connected")

//go:embed screen.html
var page []byte

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // The screen is usually opened from another device on the LAN
	},
}

// Backend is the host screen player backend. Only the most recently
// connected screen is driven.
type Backend struct {
	mu      sync.Mutex
	conn    *connection
	loaded  chan struct{} // closed once a screen reports the IFrame API loaded
	players map[int64]*screenPlayer
	current *screenPlayer // replayed to a screen that reconnects
	nextID  int64
	overlay *Overlay
}

// New creates a screen backend.
func New() *Backend {
	return &Backend{
		loaded:  make(chan struct{}),
		players: make(map[int64]*screenPlayer),
	}
}

// Name implements player.Backend.
func (b *Backend) Name() string {
	return "screen"
}

// Register adds the page and websocket routes to mux.
func (b *Backend) Register(mux *http.ServeMux) {
	mux.HandleFunc(PagePath, b.ServePage)
	mux.HandleFunc(SocketPath, b.ServeWS)
}

// ServePage serves the host screen page.
func (b *Backend) ServePage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(page)
}

// ServeWS upgrades a screen connection.
func (b *Backend) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		zlog.Warn().Msgf("screen: websocket upgrade failed: remote=%s error=%v", r.RemoteAddr, err)
		return
	}

	c := newConnection(b, ws, r.RemoteAddr)

	b.mu.Lock()
	prev := b.conn
	b.conn = c
	b.mu.Unlock()

	if prev != nil {
		zlog.Info().Msgf("screen: replacing connection: old=%s new=%s", prev.remote, c.remote)
		prev.close()
	} else {
		zlog.Info().Msgf("screen: connected: remote=%s", c.remote)
	}

	go c.writePump()
	go c.readPump()
}

// Connected reports whether a screen is connected.
func (b *Backend) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn != nil
}

// Acquire implements player.Backend. It waits until a screen has loaded the IFrame API.
func (b *Backend) Acquire(ctx context.Context) error {
	b.mu.Lock()
	loaded := b.loaded
	b.mu.Unlock()

	select {
	case <-loaded:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Create implements player.Backend.
func (b *Backend) Create(src media.Reference, l player.Listener) (player.Player, error) {
	b.mu.Lock()
	b.nextID++
	p := &screenPlayer{
		backend:  b,
		id:       b.nextID,
		src:      src,
		listener: l,
	}
	if src.Kind == media.KindVideo {
		p.videoID = src.ID
	}
	b.players[p.id] = p
	b.current = p
	conn := b.conn
	b.mu.Unlock()

	if conn == nil {
		b.forget(p.id)
		return nil, ErrNoScreen
	}
	if err := conn.send(p.createMessage()); err != nil {
		b.forget(p.id)
		return nil, err
	}
	return p, nil
}

// ShowStatus updates the header overlay. The latest overlay is also sent
// to screens that connect later.
func (b *Backend) ShowStatus(o Overlay) {
	b.mu.Lock()
	b.overlay = &o
	conn := b.conn
	b.mu.Unlock()

	if conn != nil {
		_ = conn.send(Message{Type: MsgStatus, Status: &o})
	}
}

func (b *Backend) forget(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.players[id]; ok {
		delete(b.players, id)
		if b.current == p {
			b.current = nil
		}
	}
}

func (b *Backend) sendCommand(msg Message) error {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		return ErrNoScreen
	}
	return conn.send(msg)
}

// handle dispatches a screen message to the player it refers to.
func (b *Backend) handle(c *connection, msg Message) {
	if msg.Type == MsgHello {
		b.onHello(c)
		return
	}

	b.mu.Lock()
	p := b.players[msg.Player]
	b.mu.Unlock()
	if p == nil {
		zlog.Debug().Msgf("screen: message for unknown player: type=%s player=%d", msg.Type, msg.Player)
		return
	}

	switch msg.Type {
	case MsgReady:
		p.listener.OnReady()
	case MsgStateChange:
		p.listener.OnStateChange(player.State(msg.State))
	case MsgError:
		p.listener.OnError(player.ErrorCode(msg.Code))
	default:
		zlog.Debug().Msgf("screen: unhandled message: type=%s", msg.Type)
	}
}

// onHello marks the capability loaded and replays state to a new screen.
func (b *Backend) onHello(c *connection) {
	b.mu.Lock()
	select {
	case <-b.loaded:
	default:
		close(b.loaded)
	}
	current := b.current
	overlay := b.overlay
	b.mu.Unlock()

	zlog.Info().Msgf("screen: player API loaded: remote=%s", c.remote)

	if overlay != nil {
		_ = c.send(Message{Type: MsgStatus, Status: overlay})
	}
	if current != nil && !current.isDestroyed() {
		_ = c.send(current.createMessage())
	}
}

// disconnected clears the active connection if it is still c.
func (b *Backend) disconnected(c *connection) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == c {
		b.conn = nil
		zlog.Warn().Msgf("screen: disconnected: remote=%s", c.remote)
	}
}

func decodeMessage(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, errors.Wrap(err, "invalid screen message")
	}
	return msg, nil
}
