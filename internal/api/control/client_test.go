package control

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/rockola/internal/app/notification"
	"github.com/osa030/rockola/internal/app/playback"
	"github.com/osa030/rockola/internal/app/poller"
	"github.com/osa030/rockola/internal/domain/queue"
)

func TestClient_StatusAndQueue(t *testing.T) {
	f := newFixture(t, "")
	f.host.snap = playback.Snapshot{Phase: playback.PhasePlaying, Title: "One — Metallica"}
	f.queue.state = poller.State{Items: []queue.Item{{QueueID: 3, TrackName: "Walk"}}}

	c := NewClient(f.server.URL+"/", "", nil)

	snap, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, playback.PhasePlaying, snap.Phase)
	assert.Equal(t, "One — Metallica", snap.Title)

	view, err := c.Queue(context.Background())
	require.NoError(t, err)
	require.Len(t, view.Waiting, 1)
	assert.Equal(t, "Walk", view.Waiting[0].TrackName)
}

func TestClient_Actions(t *testing.T) {
	f := newFixture(t, "")
	c := NewClient(f.server.URL, testToken, nil)

	res, err := c.Next(context.Background())
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, 1, f.host.nexts)

	_, err = c.Recover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, f.host.recovers)

	res, err = c.Reorder(context.Background(), 7, 2)
	require.NoError(t, err)
	assert.Equal(t, "Moved", res.Message)
	assert.Equal(t, int64(7), f.reorderer.queueID)
}

func TestClient_ActionErrors(t *testing.T) {
	f := newFixture(t, "")
	f.host.err = playback.ErrAdvanceInProgress

	_, err := NewClient(f.server.URL, "wrong", nil).Next(context.Background())
	var actionErr *ActionError
	require.True(t, errors.As(err, &actionErr))
	assert.Equal(t, 401, actionErr.Status)

	_, err = NewClient(f.server.URL, testToken, nil).Next(context.Background())
	require.True(t, errors.As(err, &actionErr))
	assert.Equal(t, 409, actionErr.Status)
	assert.Equal(t, "an advance is already in progress", actionErr.Error())
}

func TestClient_Watch(t *testing.T) {
	f := newFixture(t, "")
	f.host.snap = playback.Snapshot{Phase: playback.PhaseIdle}
	c := NewClient(f.server.URL, "", nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan notification.Notification, 4)
	done := make(chan error, 1)
	go func() {
		done <- c.Watch(ctx, func(n notification.Notification) { got <- n })
	}()

	select {
	case n := <-got:
		assert.Equal(t, playback.PhaseIdle, n.State.Phase)
	case <-time.After(2 * time.Second):
		t.Fatal("expected the initial state")
	}

	f.notifier.Broadcast(&notification.Notification{Type: playback.EventTrackStarted, State: playback.Snapshot{Phase: playback.PhasePlaying}})
	select {
	case n := <-got:
		assert.Equal(t, playback.EventTrackStarted, n.Type)
		assert.Equal(t, uint64(1), n.SequenceNo)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a broadcast")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return")
	}
}
