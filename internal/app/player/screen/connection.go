package screen

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	zlog "github.com/rs/zerolog/log"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMessage = 4096
)

// connection is one websocket to a host screen.
type connection struct {
	backend *Backend
	ws      *websocket.Conn
	remote  string
	out     chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func newConnection(b *Backend, ws *websocket.Conn, remote string) *connection {
	return &connection{
		backend: b,
		ws:      ws,
		remote:  remote,
		out:     make(chan []byte, 64),
		done:    make(chan struct{}),
	}
}

// send queues a message without blocking the caller.
func (c *connection) send(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "failed to encode screen message")
	}

	select {
	case <-c.done:
		return ErrNoScreen
	default:
	}

	select {
	case c.out <- data:
		return nil
	case <-c.done:
		return ErrNoScreen
	default:
		return errors.Newf("screen send buffer full: remote=%s", c.remote)
	}
}

func (c *connection) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

// readPump reads screen callbacks until the connection fails.
func (c *connection) readPump() {
	defer func() {
		c.backend.disconnected(c)
		c.close()
	}()

	c.ws.SetReadLimit(maxMessage)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				zlog.Warn().Msgf("screen: unexpected close: remote=%s error=%v", c.remote, err)
			}
			return
		}

		msg, err := decodeMessage(data)
		if err != nil {
			zlog.Warn().Msgf("screen: %v: remote=%s", err, c.remote)
			continue
		}
		c.backend.handle(c, msg)
	}
}

// writePump writes queued commands and keeps the connection alive.
func (c *connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.out:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				zlog.Warn().Msgf("screen: write failed: remote=%s error=%v", c.remote, err)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
