package control

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"

	"github.com/osa030/rockola/internal/app/notification"
	"github.com/osa030/rockola/internal/app/playback"
)

// ActionError is a non-2xx control API response.
type ActionError struct {
	Status  int
	Message string
}

// Error implements error.
func (e *ActionError) Error() string {
	if e.Message == "" {
		return http.StatusText(e.Status)
	}
	return e.Message
}

// Client calls a host control server.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a control API client. httpClient may be nil.
func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: httpClient,
	}
}

// Status returns the host state.
func (c *Client) Status(ctx context.Context) (*playback.Snapshot, error) {
	var snap playback.Snapshot
	if err := c.do(ctx, http.MethodGet, PathStatus, nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Queue returns the host's view of the queue.
func (c *Client) Queue(ctx context.Context) (*QueueView, error) {
	var view QueueView
	if err := c.do(ctx, http.MethodGet, PathQueue, nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// Next forces an advance.
func (c *Client) Next(ctx context.Context) (*ActionResponse, error) {
	return c.action(ctx, PathNext, nil)
}

// Recover re-synchronizes the host with the server.
func (c *Client) Recover(ctx context.Context) (*ActionResponse, error) {
	return c.action(ctx, PathRecover, nil)
}

// Reorder moves a waiting item to a 1-based position.
func (c *Client) Reorder(ctx context.Context, queueID int64, newPosition int) (*ActionResponse, error) {
	return c.action(ctx, PathReorder, ReorderRequest{QueueID: queueID, NewPosition: newPosition})
}

// Watch streams notifications to fn until ctx ends or the connection drops.
func (c *Client) Watch(ctx context.Context, fn func(notification.Notification)) error {
	u, err := url.Parse(c.baseURL + PathStatusWS)
	if err != nil {
		return errors.Wrap(err, "invalid control server URL")
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return errors.Wrap(err, "failed to connect to status stream")
	}
	defer ws.Close()

	go func() {
		<-ctx.Done()
		_ = ws.Close()
	}()

	for {
		var n notification.Notification
		if err := ws.ReadJSON(&n); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "status stream closed")
		}
		fn(n)
	}
}

func (c *Client) action(ctx context.Context, path string, body any) (*ActionResponse, error) {
	var res ActionResponse
	if err := c.do(ctx, http.MethodPost, path, body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "failed to encode request")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set(AdminTokenHeader, c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var failure ActionResponse
		_ = json.NewDecoder(resp.Body).Decode(&failure)
		return &ActionError{Status: resp.StatusCode, Message: failure.Message}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "failed to decode response")
	}
	return nil
}
