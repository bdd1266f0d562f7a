// Package poller keeps a periodically refreshed snapshot of the jukebox queue.
package poller

import (
	"context"
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/rockola/internal/domain/queue"
	"github.com/osa030/rockola/internal/infra/jukebox"
)

// DefaultInterval is used when no positive interval is configured.
const DefaultInterval = 3 * time.Second

// Fetcher fetches the authoritative queue.
type Fetcher interface {
	GetQueue(ctx context.Context) (*jukebox.QueueResult, error)
}

// State is the observable poller state.
type State struct {
	Loading bool         // true until the first fetch resolves
	Error   string       // last failure, cleared by the next success
	Items   []queue.Item // latest snapshot
}

// Poller fetches the queue immediately on Start and then on every tick.
// Overlapping fetches are not cancelled; only the most recently issued one
// may commit, and nothing commits after Stop.
type Poller struct {
	fetcher  Fetcher
	interval time.Duration

	mu        sync.Mutex
	state     State
	seq       uint64
	alive     bool
	cancel    context.CancelFunc
	done      chan struct{}
	listeners []func(State)

	// notifyMu keeps listener calls in commit order.
	notifyMu sync.Mutex
}

// New creates a poller. A non-positive interval falls back to DefaultInterval.
func New(fetcher Fetcher, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		fetcher:  fetcher,
		interval: interval,
		state: State{
			Loading: true,
			Items:   []queue.Item{},
		},
	}
}

// Interval returns the polling interval.
func (p *Poller) Interval() time.Duration {
	return p.interval
}

// Subscribe registers fn to be called with every committed state.
// Calls are sequential and happen outside the poller lock.
func (p *Poller) Subscribe(fn func(State)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

// State returns a copy of the current state.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.copyLocked()
}

// Start begins polling. Calling Start on a running poller does nothing.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.alive {
		p.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	p.alive = true
	// Requests issued before a restart must not commit to this run
	p.seq++
	p.cancel = cancel
	p.done = make(chan struct{})
	done := p.done
	p.mu.Unlock()

	zlog.Debug().Msgf("poller: started: interval=%v", p.interval)

	// In-flight requests outlive Stop; their results are discarded instead.
	fetchCtx := context.WithoutCancel(ctx)

	go func() {
		defer close(done)

		go p.fetch(fetchCtx)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				go p.fetch(fetchCtx)
			}
		}
	}()
}

// Stop halts the ticker. Responses that arrive afterwards are discarded.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.alive {
		p.mu.Unlock()
		return
	}
	p.alive = false
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	cancel()
	<-done
	zlog.Debug().Msg("poller: stopped")
}

// Refetch performs an out-of-band fetch and returns once it has resolved.
// It follows the same sequencing as ticker fetches.
func (p *Poller) Refetch(ctx context.Context) {
	p.fetch(ctx)
}

func (p *Poller) fetch(ctx context.Context) {
	p.mu.Lock()
	p.seq++
	id := p.seq
	p.mu.Unlock()

	res, err := p.fetcher.GetQueue(ctx)

	p.mu.Lock()
	if !p.alive || id != p.seq {
		p.mu.Unlock()
		return
	}

	switch {
	case err != nil:
		// Keep the previous snapshot so a flaky network does not blank the view
		p.state.Error = err.Error()
		zlog.Warn().Msgf("poller: fetch failed: seq=%d error=%v", id, err)
	case !res.OK:
		p.state.Error = res.Err("Failed to load queue").Error()
		p.state.Items = []queue.Item{}
		zlog.Warn().Msgf("poller: queue not ok: seq=%d message=%s", id, p.state.Error)
	default:
		p.state.Error = ""
		p.state.Items = res.Items
		if p.state.Items == nil {
			p.state.Items = []queue.Item{}
		}
	}
	p.state.Loading = false

	st := p.copyLocked()
	listeners := append([]func(State){}, p.listeners...)

	p.notifyMu.Lock()
	p.mu.Unlock()
	defer p.notifyMu.Unlock()

	for _, fn := range listeners {
		fn(st)
	}
}

func (p *Poller) copyLocked() State {
	st := p.state
	st.Items = append([]queue.Item(nil), p.state.Items...)
	if st.Items == nil {
		st.Items = []queue.Item{}
	}
	return st
}
