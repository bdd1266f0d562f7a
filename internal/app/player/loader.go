package player

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/rockola/internal/domain/media"
)

// Default timeouts.
const (
	DefaultAcquireTimeout = 15 * time.Second
	DefaultCreateTimeout  = 12 * time.Second
)

// LoaderConfig holds loader configuration.
type LoaderConfig struct {
	AcquireTimeout time.Duration
	CreateTimeout  time.Duration
}

// acquisition is one in-flight capability load shared by concurrent callers.
type acquisition struct {
	done chan struct{}
	err  error
}

// Loader wraps a Backend with a memoized acquisition and a timed construction.
type Loader struct {
	backend Backend
	config  LoaderConfig

	mu       sync.Mutex
	acquired bool
	inflight *acquisition
}

// NewLoader creates a loader. Zero timeouts fall back to the defaults.
func NewLoader(backend Backend, config LoaderConfig) *Loader {
	if config.AcquireTimeout <= 0 {
		config.AcquireTimeout = DefaultAcquireTimeout
	}
	if config.CreateTimeout <= 0 {
		config.CreateTimeout = DefaultCreateTimeout
	}
	return &Loader{
		backend: backend,
		config:  config,
	}
}

// Backend returns the wrapped backend.
func (l *Loader) Backend() Backend {
	return l.backend
}

// Acquire loads the player capability once. Concurrent callers share the
// same in-flight load. A failed load is not memoized, so a later call retries.
func (l *Loader) Acquire(ctx context.Context) error {
	l.mu.Lock()
	if l.acquired {
		l.mu.Unlock()
		return nil
	}
	a := l.inflight
	if a == nil {
		a = &acquisition{done: make(chan struct{})}
		l.inflight = a
		go l.acquire(a)
	}
	l.mu.Unlock()

	select {
	case <-a.done:
		return a.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loader) acquire(a *acquisition) {
	ctx, cancel := context.WithTimeout(context.Background(), l.config.AcquireTimeout)
	defer cancel()

	zlog.Debug().Msgf("player: acquiring: backend=%s timeout=%v", l.backend.Name(), l.config.AcquireTimeout)

	result := make(chan error, 1)
	go func() {
		result <- l.backend.Acquire(ctx)
	}()

	var err error
	select {
	case err = <-result:
		if err != nil && errors.Is(err, context.DeadlineExceeded) {
			err = ErrAcquireTimeout
		}
	case <-ctx.Done():
		err = ErrAcquireTimeout
	}

	l.mu.Lock()
	if err == nil {
		l.acquired = true
	}
	l.inflight = nil
	l.mu.Unlock()

	if err != nil {
		zlog.Warn().Msgf("player: acquire failed: backend=%s error=%v", l.backend.Name(), err)
	} else {
		zlog.Info().Msgf("player: acquired: backend=%s", l.backend.Name())
	}

	a.err = err
	close(a.done)
}

// Create acquires the capability if needed and constructs a player,
// returning once it reports ready. A player that is not ready within the
// create timeout is destroyed.
func (l *Loader) Create(ctx context.Context, src media.Reference, listener Listener) (Player, error) {
	if err := l.Acquire(ctx); err != nil {
		return nil, err
	}

	rl := &readyListener{Listener: listener, ready: make(chan struct{})}
	p, err := l.backend.Create(src, rl)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create player for %s", src)
	}

	timer := time.NewTimer(l.config.CreateTimeout)
	defer timer.Stop()

	select {
	case <-rl.ready:
		zlog.Debug().Msgf("player: ready: backend=%s source=%s", l.backend.Name(), src)
		return p, nil
	case <-timer.C:
		_ = p.Destroy()
		return nil, ErrCreateTimeout
	case <-ctx.Done():
		_ = p.Destroy()
		return nil, ctx.Err()
	}
}

// readyListener signals the first OnReady and forwards every callback.
type readyListener struct {
	Listener
	once  sync.Once
	ready chan struct{}
}

func (r *readyListener) OnReady() {
	r.once.Do(func() { close(r.ready) })
	r.Listener.OnReady()
}
