package control

import (
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/rockola/internal/app/notification"
	"github.com/osa030/rockola/internal/app/playback"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsStream delivers notifications over one websocket.
type wsStream struct {
	mu sync.Mutex
	ws *websocket.Conn
}

// Send implements notification.Stream.
func (s *wsStream) Send(n *notification.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.ws.WriteJSON(n); err != nil {
		return errors.Wrap(err, "failed to write status")
	}
	return nil
}

func (s *wsStream) ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// handleStatusWS streams the current state followed by every broadcast.
func (s *Server) handleStatusWS(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		zlog.Warn().Msgf("control: status websocket upgrade failed: remote=%s error=%v", r.RemoteAddr, err)
		return
	}
	defer ws.Close()

	stream := &wsStream{ws: ws}
	id := s.notifier.Subscribe(stream)
	defer s.notifier.Unsubscribe(id)
	zlog.Debug().Msgf("control: status subscriber joined: id=%s remote=%s", id, r.RemoteAddr)

	initial := &notification.Notification{Type: playback.EventPhaseChanged, State: s.host.Snapshot()}
	if err := s.notifier.Send(id, initial); err != nil {
		return
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := stream.ping(); err != nil {
					return
				}
			}
		}
	}()

	// Subscribers only listen; reads detect the close.
	ws.SetReadLimit(512)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			zlog.Debug().Msgf("control: status subscriber left: id=%s", id)
			return
		}
	}
}
