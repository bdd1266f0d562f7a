package playback

import "github.com/osa030/rockola/internal/app/player"

// playerListener routes callbacks of one player generation to the
// controller. Callbacks from replaced players are ignored.
type playerListener struct {
	c   *Controller
	gen uint64
}

func (l *playerListener) OnReady() {
	l.c.onPlayerReady(l.gen)
}

func (l *playerListener) OnStateChange(s player.State) {
	l.c.onPlayerState(l.gen, s)
}

func (l *playerListener) OnError(code player.ErrorCode) {
	l.c.onPlayerError(l.gen, code)
}
