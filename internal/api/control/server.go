// Package control provides the host control HTTP API.
package control

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/rockola/internal/app/notification"
	"github.com/osa030/rockola/internal/app/playback"
	"github.com/osa030/rockola/internal/app/poller"
	"github.com/osa030/rockola/internal/domain/queue"
	"github.com/osa030/rockola/internal/infra/jukebox"
)

// Routes
const (
	PathStatus   = "/api/host/status"
	PathQueue    = "/api/host/queue"
	PathNext     = "/api/host/next"
	PathRecover  = "/api/host/recover"
	PathReorder  = "/api/host/reorder"
	PathStatusWS = "/ws/status"
	PathQR       = "/qr.png"
)

// Host is the playback controller as seen by operators.
type Host interface {
	Snapshot() playback.Snapshot
	Next(ctx context.Context) error
	Recover(ctx context.Context) error
}

// Queue is the polled queue view.
type Queue interface {
	State() poller.State
	Refetch(ctx context.Context)
}

// Reorderer moves a waiting item on the server.
type Reorderer interface {
	Reorder(ctx context.Context, queueID int64, newPosition int) (*jukebox.Status, error)
}

// Config holds control server configuration.
type Config struct {
	AdminToken string
	PublicURL  string // Encoded in the requester QR code
}

// Server serves the control API.
type Server struct {
	config    Config
	host      Host
	queue     Queue
	reorderer Reorderer
	notifier  *notification.Manager
}

// NewServer creates a new control server.
func NewServer(config Config, host Host, q Queue, reorderer Reorderer, notifier *notification.Manager) *Server {
	return &Server{
		config:    config,
		host:      host,
		queue:     q,
		reorderer: reorderer,
		notifier:  notifier,
	}
}

// Register mounts the control routes on mux.
func (s *Server) Register(mux *http.ServeMux) {
	h := s.Handler()
	for _, path := range []string{PathStatus, PathQueue, PathNext, PathRecover, PathReorder, PathStatusWS, PathQR} {
		mux.Handle(path, h)
	}
}

// Handler returns a router serving only the control routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get(PathStatus, s.handleStatus)
	r.Get(PathQueue, s.handleQueue)
	r.Get(PathStatusWS, s.handleStatusWS)
	r.Get(PathQR, s.handleQR)

	r.Group(func(r chi.Router) {
		r.Use(RequireAdminToken(s.config.AdminToken))
		r.Post(PathNext, s.handleNext)
		r.Post(PathRecover, s.handleRecover)
		r.Post(PathReorder, s.handleReorder)
	})

	return r
}

// QueueView is the queue as shown to operators.
type QueueView struct {
	Loading    bool         `json:"loading"`
	Error      string       `json:"error,omitempty"`
	NowPlaying *queue.Item  `json:"nowPlaying,omitempty"`
	Waiting    []queue.Item `json:"waiting"`
}

// ActionResponse is the body of every POST response.
type ActionResponse struct {
	OK      bool               `json:"ok"`
	Message string             `json:"message,omitempty"`
	State   *playback.Snapshot `json:"state,omitempty"`
}

// ReorderRequest is the body of a reorder call. NewPosition is 1-based.
type ReorderRequest struct {
	QueueID     int64 `json:"queueId"`
	NewPosition int   `json:"newPosition"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.host.Snapshot())
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	st := s.queue.State()
	view := QueueView{
		Loading: st.Loading,
		Error:   st.Error,
		Waiting: queue.Waiting(st.Items),
	}
	if it, ok := queue.NowPlaying(st.Items); ok {
		view.NowPlaying = &it
	}
	writeJSON(w, http.StatusOK, view)
}

// Operator actions outlive the request so a dropped connection does not
// abort an advance halfway.
func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	zlog.Info().Msgf("control: next requested: remote=%s", r.RemoteAddr)
	s.writeAction(w, s.host.Next(context.WithoutCancel(r.Context())))
}

func (s *Server) handleRecover(w http.ResponseWriter, r *http.Request) {
	zlog.Info().Msgf("control: recover requested: remote=%s", r.RemoteAddr)
	s.writeAction(w, s.host.Recover(context.WithoutCancel(r.Context())))
}

func (s *Server) handleReorder(w http.ResponseWriter, r *http.Request) {
	var req ReorderRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ActionResponse{Message: "invalid request body"})
		return
	}
	if req.QueueID <= 0 || req.NewPosition < 1 {
		writeJSON(w, http.StatusBadRequest, ActionResponse{Message: "queueId and newPosition (1-based) are required"})
		return
	}

	ctx := context.WithoutCancel(r.Context())
	zlog.Info().Msgf("control: reorder requested: queue_id=%d position=%d", req.QueueID, req.NewPosition)

	res, err := s.reorderer.Reorder(ctx, req.QueueID, req.NewPosition)
	if err != nil {
		zlog.Warn().Msgf("control: reorder failed: queue_id=%d error=%v", req.QueueID, err)
		writeJSON(w, http.StatusBadGateway, ActionResponse{Message: jukebox.Message(err, "Reorder failed.")})
		return
	}
	if statusErr := res.Err("Reorder failed."); statusErr != nil {
		writeJSON(w, http.StatusUnprocessableEntity, ActionResponse{Message: statusErr.Error()})
		return
	}

	s.queue.Refetch(ctx)
	writeJSON(w, http.StatusOK, ActionResponse{OK: true, Message: res.Message})
}

// writeAction reports the outcome of a controller operation with the
// resulting state.
func (s *Server) writeAction(w http.ResponseWriter, err error) {
	snap := s.host.Snapshot()
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, ActionResponse{OK: true, State: &snap})
	case errors.Is(err, playback.ErrAdvanceInProgress):
		writeJSON(w, http.StatusConflict, ActionResponse{Message: err.Error(), State: &snap})
	case errors.Is(err, playback.ErrClosed):
		writeJSON(w, http.StatusServiceUnavailable, ActionResponse{Message: err.Error()})
	default:
		msg := snap.LastError
		if msg == "" {
			msg = err.Error()
		}
		writeJSON(w, http.StatusBadGateway, ActionResponse{Message: msg, State: &snap})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zlog.Debug().Msgf("control: failed to write response: error=%v", err)
	}
}
