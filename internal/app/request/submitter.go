// Package request provides play request submission and outcome classification.
package request

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/rockola/internal/infra/jukebox"
)

// Errors
var (
	ErrMissingTrack = errors.New("a track must be selected")
)

// Defaults
const (
	DefaultTableCode      = "BAR"
	DefaultRequestedByMax = 32
)

// Messages
const (
	msgAcceptedNoPosition = "Your request was accepted."
	msgRejected           = "The request could not be processed. Try another option."
	msgFailed             = "The request could not be sent."
)

// Outcome classifies a submission.
type Outcome int

const (
	OutcomeAccepted Outcome = iota // Queued by the server
	OutcomeRejected                // Reached the server, refused
	OutcomeFailed                  // Never reached a verdict
)

// String returns the string representation of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeRejected:
		return "rejected"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Client is the part of the jukebox API the submitter calls.
type Client interface {
	RequestTrack(ctx context.Context, params jukebox.RequestParams) (*jukebox.RequestResult, error)
}

// Config holds submitter configuration.
type Config struct {
	TableCode      string
	RequestedByMax int
}

// Result is the user-facing outcome of a submission.
type Result struct {
	Outcome        Outcome
	Message        string
	QueueID        int64
	YouTubeVideoID string
}

// Submitter sends play requests on behalf of a patron.
type Submitter struct {
	client Client
	config Config
}

// NewSubmitter creates a new submitter.
func NewSubmitter(client Client, config Config) *Submitter {
	if strings.TrimSpace(config.TableCode) == "" {
		config.TableCode = DefaultTableCode
	}
	if config.RequestedByMax <= 0 {
		config.RequestedByMax = DefaultRequestedByMax
	}
	return &Submitter{client: client, config: config}
}

// RequestedBy normalizes a patron name: trimmed and clamped to the
// configured rune count. An empty result means the field is omitted.
func (s *Submitter) RequestedBy(name string) string {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) <= s.config.RequestedByMax {
		return name
	}
	return strings.TrimSpace(string([]rune(name)[:s.config.RequestedByMax]))
}

// Submit requests a track. Only invalid input returns an error; every
// server or transport outcome is reported in Result.
func (s *Submitter) Submit(ctx context.Context, deezerTrackID int64, requestedBy string) (Result, error) {
	if deezerTrackID <= 0 {
		return Result{}, ErrMissingTrack
	}

	params := jukebox.RequestParams{
		DeezerTrackID: deezerTrackID,
		TableCode:     s.config.TableCode,
		RequestedBy:   s.RequestedBy(requestedBy),
	}

	res, err := s.client.RequestTrack(ctx, params)
	if err != nil {
		zlog.Warn().Msgf("request: submit failed: track=%d error=%v", deezerTrackID, err)
		return Result{Outcome: OutcomeFailed, Message: jukebox.Message(err, msgFailed)}, nil
	}

	return Classify(res), nil
}

// Classify maps a request response to an outcome.
func Classify(res *jukebox.RequestResult) Result {
	if !res.OK || !res.Accepted {
		msg := res.UXMessage
		if msg == "" {
			msg = res.Message
		}
		if msg == "" {
			msg = msgRejected
		}
		return Result{Outcome: OutcomeRejected, Message: msg}
	}

	msg := msgAcceptedNoPosition
	if res.QueueID != 0 {
		msg = fmt.Sprintf("Your song is number %d in the queue.", res.QueueID)
	}
	zlog.Info().Msgf("request: accepted: queue_id=%d video=%s", res.QueueID, res.YouTubeVideoID)
	return Result{
		Outcome:        OutcomeAccepted,
		Message:        msg,
		QueueID:        res.QueueID,
		YouTubeVideoID: res.YouTubeVideoID,
	}
}
