// Package jukebox provides a client for the remote jukebox HTTP API.
package jukebox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// API paths relative to the base URL.
const (
	pathSearch  = "/api/deezer/search"
	pathQueue   = "/api/jukebox/queue"
	pathRequest = "/api/jukebox/request"
	pathNext    = "/api/jukebox/next"
	pathRecover = "/api/jukebox/recover"
	pathReorder = "/api/jukebox/reorder"
)

// APIError represents a non-2xx response from the jukebox API.
type APIError struct {
	Status  int
	Message string
	Body    string
}

// Error implements error.
func (e *APIError) Error() string {
	return e.Message
}

// Message returns the message carried by an *APIError in err's chain, or
// fallback for transport failures.
func Message(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}

// Config represents jukebox client configuration.
type Config struct {
	BaseURL    string
	Timeout    time.Duration // 0 leaves timeouts to the transport
	HTTPClient *http.Client  // optional; overrides Timeout
}

// Client is a jukebox API client.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new jukebox client.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("jukebox API base URL is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, errors.Wrap(err, "invalid jukebox API base URL")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		baseURL:    base,
		httpClient: httpClient,
	}, nil
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// buildURL joins the base URL with a path and optional query parameters.
// Nil-valued parameters are skipped.
func (c *Client) buildURL(path string, query map[string]any) (string, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return "", errors.Wrap(err, "failed to build request URL")
	}

	if len(query) > 0 {
		q := u.Query()
		for k, v := range query {
			if v == nil {
				continue
			}
			q.Set(k, fmt.Sprint(v))
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// get performs a GET request and returns the decoded JSON payload.
func (c *Client) get(ctx context.Context, path string, query map[string]any) (any, error) {
	reqURL, err := c.buildURL(path, query)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Accept", "application/json")

	return c.do(req)
}

// post performs a POST request with a JSON body and returns the decoded JSON payload.
func (c *Client) post(ctx context.Context, path string, body any) (any, error) {
	reqURL, err := c.buildURL(path, nil)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "failed to encode request body")
		}
		reader = bytes.NewReader(data)
		zlog.Debug().Msgf("jukebox: POST request: url=%s body=%s", reqURL, data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	payload, err := c.do(req)
	if err == nil {
		zlog.Debug().Msgf("jukebox: POST response: url=%s payload=%v", reqURL, payload)
	}
	return payload, err
}

// do sends the request. Non-JSON bodies decode to nil; non-2xx statuses
// become *APIError carrying the best available message.
func (c *Client) do(req *http.Request) (any, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		// An unreadable body is treated as empty
		body = nil
	}

	var payload any
	if len(bytes.TrimSpace(body)) > 0 {
		if jsonErr := json.Unmarshal(body, &payload); jsonErr != nil {
			payload = nil
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{
			Status:  resp.StatusCode,
			Message: errorMessage(payload, string(body), resp.StatusCode),
			Body:    string(body),
		}
	}

	return payload, nil
}

// errorMessage picks the message of a failed response: a JSON message or
// error field, then the raw text, then the status code.
func errorMessage(payload any, text string, status int) string {
	if m, ok := payload.(map[string]any); ok {
		for _, key := range []string{"message", "error"} {
			if v := lookupFold(m, key); v != nil {
				if s, ok := v.(string); ok && s != "" {
					return s
				}
			}
		}
	}
	if strings.TrimSpace(text) != "" {
		return text
	}
	return fmt.Sprintf("HTTP %d", status)
}

// lookupFold returns the value of a map key compared case-insensitively.
func lookupFold(m map[string]any, key string) any {
	if v, ok := m[key]; ok {
		return v
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return nil
}
