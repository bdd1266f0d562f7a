package screen

import (
	"sync"

	"github.com/osa030/rockola/internal/app/player"
	"github.com/osa030/rockola/internal/domain/media"
)

// screenPlayer is a player living in the connected screen page.
type screenPlayer struct {
	backend  *Backend
	id       int64
	src      media.Reference
	listener player.Listener

	mu        sync.Mutex
	videoID   string // last loaded video, replayed on reconnect
	volume    int
	destroyed bool
}

func (p *screenPlayer) Source() media.Reference {
	return p.src
}

func (p *screenPlayer) createMessage() Message {
	p.mu.Lock()
	defer p.mu.Unlock()

	msg := Message{Type: MsgCreate, Player: p.id, Volume: p.volume}
	if p.src.Kind == media.KindPlaylist {
		msg.ListID = p.src.ID
	} else {
		msg.VideoID = p.videoID
	}
	return msg
}

func (p *screenPlayer) isDestroyed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.destroyed
}

func (p *screenPlayer) command(msg Message) error {
	if p.isDestroyed() {
		return player.ErrDestroyed
	}
	msg.Player = p.id
	return p.backend.sendCommand(msg)
}

func (p *screenPlayer) LoadVideo(videoID string) error {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return player.ErrDestroyed
	}
	p.videoID = videoID
	p.mu.Unlock()
	return p.command(Message{Type: MsgLoadVideo, VideoID: videoID})
}

func (p *screenPlayer) NextVideo() error {
	return p.command(Message{Type: MsgNextVideo})
}

func (p *screenPlayer) PlayVideo() error {
	return p.command(Message{Type: MsgPlayVideo})
}

func (p *screenPlayer) SetVolume(volume int) error {
	p.mu.Lock()
	p.volume = volume
	p.mu.Unlock()
	return p.command(Message{Type: MsgSetVolume, Volume: volume})
}

func (p *screenPlayer) Destroy() error {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return nil
	}
	p.destroyed = true
	p.mu.Unlock()

	p.backend.forget(p.id)
	// The screen may already be gone; nothing is left to tear down then
	_ = p.backend.sendCommand(Message{Type: MsgDestroy, Player: p.id})
	return nil
}
