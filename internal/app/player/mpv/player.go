package mpv

import (
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/osa030/rockola/internal/app/player"
	"github.com/osa030/rockola/internal/domain/media"
)

// mpvPlayer is the logical player bound to the shared mpv process.
type mpvPlayer struct {
	backend  *Backend
	src      media.Reference
	listener player.Listener

	mu        sync.Mutex
	destroyed bool
}

func (p *mpvPlayer) Source() media.Reference {
	return p.src
}

func (p *mpvPlayer) isDestroyed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.destroyed
}

func (p *mpvPlayer) markDestroyed() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.destroyed = true
}

func (p *mpvPlayer) LoadVideo(videoID string) error {
	return p.backend.command(p, func(conn Conn) error {
		_, err := conn.Call("loadfile", media.Video(videoID).URL(), "replace")
		return err
	})
}

func (p *mpvPlayer) NextVideo() error {
	return p.backend.command(p, func(conn Conn) error {
		_, err := conn.Call("playlist-next", "force")
		return err
	})
}

func (p *mpvPlayer) PlayVideo() error {
	return p.backend.command(p, func(conn Conn) error {
		return conn.Set("pause", false)
	})
}

func (p *mpvPlayer) SetVolume(volume int) error {
	return p.backend.command(p, func(conn Conn) error {
		return conn.Set("volume", float64(volume))
	})
}

func (p *mpvPlayer) Destroy() error {
	if p.isDestroyed() {
		return nil
	}
	err := p.backend.command(p, func(conn Conn) error {
		_, err := conn.Call("stop")
		return err
	})
	p.markDestroyed()
	p.backend.release(p)
	if errors.Is(err, player.ErrDestroyed) {
		return nil
	}
	return err
}
