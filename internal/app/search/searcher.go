// Package search provides catalog search with stale-response suppression.
package search

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/rockola/internal/domain/track"
	"github.com/osa030/rockola/internal/infra/jukebox"
)

// ErrSuperseded is returned when a newer query was issued before this one resolved.
var ErrSuperseded = errors.New("search superseded by a newer query")

// Defaults
const (
	DefaultMinChars = 2
	DefaultLimit    = 20
	DefaultDebounce = 350 * time.Millisecond
)

// Client is the part of the jukebox API the searcher calls.
type Client interface {
	SearchTracks(ctx context.Context, q string, limit int) (*jukebox.SearchResult, error)
}

// Config holds searcher configuration.
type Config struct {
	MinChars int
	Limit    int
	Debounce time.Duration
}

// Result is the committed search state.
type Result struct {
	Query   string
	Loading bool
	Error   string
	Tracks  []track.Track
}

// Searcher runs catalog searches. Only the latest issued query may commit.
type Searcher struct {
	mu     sync.Mutex
	client Client
	config Config

	seq    uint64
	result Result
	timer  *time.Timer

	listeners []func(Result)
}

// New creates a new searcher.
func New(client Client, config Config) *Searcher {
	if config.MinChars <= 0 {
		config.MinChars = DefaultMinChars
	}
	if config.Limit <= 0 {
		config.Limit = DefaultLimit
	}
	if config.Debounce < 0 {
		config.Debounce = 0
	}
	return &Searcher{
		client: client,
		config: config,
		result: Result{Tracks: []track.Track{}},
	}
}

// Subscribe registers fn to receive every committed result.
func (s *Searcher) Subscribe(fn func(Result)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Result returns the last committed result.
func (s *Searcher) Result() Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyResult(s.result)
}

// Searchable reports whether q is long enough to be sent.
func (s *Searcher) Searchable(q string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(q)) >= s.config.MinChars
}

// Search runs q immediately. Queries too short to send clear the results
// without a call. ErrSuperseded is returned when a newer query was issued
// while this one was in flight; its result is discarded.
func (s *Searcher) Search(ctx context.Context, q string) (Result, error) {
	q = strings.TrimSpace(q)

	s.mu.Lock()
	s.seq++
	id := s.seq
	if !s.Searchable(q) {
		s.commitLocked(Result{Query: q, Tracks: []track.Track{}})
		res := copyResult(s.result)
		s.mu.Unlock()
		return res, nil
	}
	s.result.Query = q
	s.result.Loading = true
	s.result.Error = ""
	s.mu.Unlock()

	res, err := s.client.SearchTracks(ctx, q, s.config.Limit)

	s.mu.Lock()
	defer s.mu.Unlock()

	if id != s.seq {
		zlog.Debug().Msgf("search: discarding stale result: query=%q", q)
		return Result{}, ErrSuperseded
	}

	next := Result{Query: q, Tracks: []track.Track{}}
	switch {
	case err != nil:
		next.Error = jukebox.Message(err, "Search failed.")
	case !res.OK:
		next.Error = res.Err("Search failed.").Error()
	default:
		next.Tracks = res.Tracks
	}
	s.commitLocked(next)

	if next.Error != "" {
		return copyResult(s.result), errors.Newf("search failed: %s", next.Error)
	}
	return copyResult(s.result), nil
}

// Type schedules q after the debounce delay, replacing any pending query.
// The outcome reaches subscribers.
func (s *Searcher) Type(ctx context.Context, q string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.config.Debounce, func() {
		if _, err := s.Search(ctx, q); err != nil && !errors.Is(err, ErrSuperseded) {
			zlog.Debug().Msgf("search: debounced query failed: query=%q error=%v", q, err)
		}
	})
}

// Stop cancels a pending debounced query.
func (s *Searcher) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	// In-flight queries may not commit after Stop
	s.seq++
}

// commitLocked stores r and notifies subscribers.
// Must be called with lock held.
func (s *Searcher) commitLocked(r Result) {
	s.result = r
	for _, fn := range s.listeners {
		fn(copyResult(r))
	}
}

func copyResult(r Result) Result {
	r.Tracks = append([]track.Track{}, r.Tracks...)
	return r
}
