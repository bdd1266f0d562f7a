package jukebox

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/osa030/rockola/internal/domain/queue"
	"github.com/osa030/rockola/internal/domain/track"
)

// ErrNotOK marks a reachable API that answered with ok=false.
var ErrNotOK = errors.New("jukebox API responded not ok")

// Status is the application-level part of every response.
type Status struct {
	OK      bool
	Message string
}

// Err returns nil when the response is ok, otherwise an error wrapping ErrNotOK.
func (s Status) Err(fallback string) error {
	if s.OK {
		return nil
	}
	msg := s.Message
	if msg == "" {
		msg = fallback
	}
	return errors.Mark(errors.New(msg), ErrNotOK)
}

// SearchResult is the response of a catalog search.
type SearchResult struct {
	Status
	Query  string
	Limit  int
	Tracks []track.Track
}

// QueueResult is the response of a queue fetch.
type QueueResult struct {
	Status
	Items []queue.Item
}

// RequestParams is the body of a track request.
type RequestParams struct {
	DeezerTrackID int64  `json:"DeezerTrackId"`
	TableCode     string `json:"TableCode"`
	RequestedBy   string `json:"RequestedBy,omitempty"`
}

// RequestResult is the response of a track request.
type RequestResult struct {
	Status         `mapstructure:"-"`
	Accepted       bool   `mapstructure:"Accepted"`
	QueueID        int64  `mapstructure:"QueueId"`
	YouTubeVideoID string `mapstructure:"YouTubeVideoId"`
	MatchStatus    string `mapstructure:"MatchStatus"`
	UXMessage      string `mapstructure:"Message"` // per-request message; may differ from the envelope message
}

// NextTrack is the lightweight metadata of the item promoted by next.
type NextTrack struct {
	QueueID       int64  `mapstructure:"QueueId" json:"queueId,omitempty"`
	TrackName     string `mapstructure:"TrackName" json:"trackName"`
	ArtistName    string `mapstructure:"ArtistName" json:"artistName"`
	DurationMs    int64  `mapstructure:"DurationMs" json:"durationMs"`
	AlbumImageURL string `mapstructure:"AlbumImageUrl" json:"albumImageUrl,omitempty"`
	TableCode     string `mapstructure:"TableCode" json:"tableCode,omitempty"`
}

func (t NextTrack) isZero() bool {
	return t == NextTrack{}
}

// NextResult is the response of an advance.
type NextResult struct {
	Status
	HasQueueItem       bool
	YouTubeVideoID     string
	UseFallback        bool
	FallbackPlaylistID string
	Track              *NextTrack // nil when the server sent no track fields
}

// RecoverResult is the response of a recover call.
type RecoverResult struct {
	Status
	HasNowPlaying  bool
	YouTubeVideoID string
}

// SearchTracks searches the catalog.
func (c *Client) SearchTracks(ctx context.Context, q string, limit int) (*SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}

	payload, err := c.get(ctx, pathSearch, map[string]any{"q": q, "limit": limit})
	if err != nil {
		return nil, err
	}
	env, err := unwrap(payload)
	if err != nil {
		return nil, err
	}

	var data struct {
		Query  string        `mapstructure:"Query"`
		Limit  int           `mapstructure:"Limit"`
		Tracks []track.Track `mapstructure:"Tracks"`
	}
	if env.Data != nil {
		if err := decode(env.Data, &data); err != nil {
			return nil, err
		}
	}

	tracks := data.Tracks
	if tracks == nil {
		tracks = []track.Track{}
	}
	return &SearchResult{
		Status: Status{OK: env.OK, Message: env.Message},
		Query:  data.Query,
		Limit:  data.Limit,
		Tracks: tracks,
	}, nil
}

// GetQueue fetches the authoritative queue. Non-array data decodes to an empty list.
func (c *Client) GetQueue(ctx context.Context) (*QueueResult, error) {
	payload, err := c.get(ctx, pathQueue, nil)
	if err != nil {
		return nil, err
	}
	env, err := unwrap(payload)
	if err != nil {
		return nil, err
	}

	items := []queue.Item{}
	if list, ok := env.Data.([]any); ok {
		if err := decode(list, &items); err != nil {
			return nil, err
		}
	}

	return &QueueResult{
		Status: Status{OK: env.OK, Message: env.Message},
		Items:  items,
	}, nil
}

// RequestTrack submits a play request.
func (c *Client) RequestTrack(ctx context.Context, params RequestParams) (*RequestResult, error) {
	payload, err := c.post(ctx, pathRequest, params)
	if err != nil {
		return nil, err
	}
	env, err := unwrap(payload)
	if err != nil {
		return nil, err
	}

	res := &RequestResult{Status: Status{OK: env.OK, Message: env.Message}}
	if env.Data != nil {
		if err := decode(env.Data, res); err != nil {
			return nil, err
		}
	}
	if res.UXMessage == "" {
		res.UXMessage = env.Message
	}
	return res, nil
}

// Next asks the server to advance the queue.
func (c *Client) Next(ctx context.Context, forceFinishCurrent bool) (*NextResult, error) {
	payload, err := c.post(ctx, pathNext, map[string]bool{"ForceFinishCurrent": forceFinishCurrent})
	if err != nil {
		return nil, err
	}
	env, err := unwrap(payload)
	if err != nil {
		return nil, err
	}

	var data struct {
		HasQueueItem       bool   `mapstructure:"HasQueueItem"`
		YouTubeVideoID     string `mapstructure:"YouTubeVideoId"`
		UseFallback        bool   `mapstructure:"UseFallback"`
		FallbackPlaylistID string `mapstructure:"FallbackPlaylistId"`
		NextTrack          `mapstructure:",squash"`
	}
	if env.Data != nil {
		if err := decode(env.Data, &data); err != nil {
			return nil, err
		}
	}

	res := &NextResult{
		Status:             Status{OK: env.OK, Message: env.Message},
		HasQueueItem:       data.HasQueueItem,
		YouTubeVideoID:     data.YouTubeVideoID,
		UseFallback:        data.UseFallback,
		FallbackPlaylistID: data.FallbackPlaylistID,
	}
	if !data.NextTrack.isZero() {
		t := data.NextTrack
		res.Track = &t
	}
	return res, nil
}

// Recover asks the server which track, if any, it currently marks as playing.
func (c *Client) Recover(ctx context.Context) (*RecoverResult, error) {
	payload, err := c.post(ctx, pathRecover, struct{}{})
	if err != nil {
		return nil, err
	}
	env, err := unwrap(payload)
	if err != nil {
		return nil, err
	}

	var data struct {
		HasNowPlaying bool `mapstructure:"HasNowPlaying"`
		NowPlaying    *struct {
			YouTubeVideoID string `mapstructure:"YouTubeVideoId"`
		} `mapstructure:"NowPlaying"`
	}
	if env.Data != nil {
		if err := decode(env.Data, &data); err != nil {
			return nil, err
		}
	}

	res := &RecoverResult{
		Status:        Status{OK: env.OK, Message: env.Message},
		HasNowPlaying: data.HasNowPlaying,
	}
	if data.NowPlaying != nil {
		res.YouTubeVideoID = data.NowPlaying.YouTubeVideoID
	}
	return res, nil
}

// Reorder moves a waiting item to a new position.
func (c *Client) Reorder(ctx context.Context, queueID int64, newPosition int) (*Status, error) {
	payload, err := c.post(ctx, pathReorder, map[string]int64{
		"QueueId":     queueID,
		"NewPosition": int64(newPosition),
	})
	if err != nil {
		return nil, err
	}
	env, err := unwrap(payload)
	if err != nil {
		return nil, err
	}
	return &Status{OK: env.OK, Message: env.Message}, nil
}
