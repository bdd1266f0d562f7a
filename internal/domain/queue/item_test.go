package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWaiting_CanonicalOrder(t *testing.T) {
	base := time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		items    []Item
		expected []int64
	}{
		{
			name:     "empty queue",
			items:    nil,
			expected: []int64{},
		},
		{
			name: "now playing is filtered out",
			items: []Item{
				{QueueID: 1, Status: StatusNowPlaying, EnqueuedAt: base},
				{QueueID: 2, EnqueuedAt: base.Add(time.Minute)},
			},
			expected: []int64{2},
		},
		{
			name: "enqueue time ascending regardless of server order",
			items: []Item{
				{QueueID: 3, EnqueuedAt: base.Add(2 * time.Minute)},
				{QueueID: 9, EnqueuedAt: base},
				{QueueID: 5, EnqueuedAt: base.Add(time.Minute)},
			},
			expected: []int64{9, 5, 3},
		},
		{
			name: "queue id breaks ties",
			items: []Item{
				{QueueID: 8, EnqueuedAt: base},
				{QueueID: 4, EnqueuedAt: base},
			},
			expected: []int64{4, 8},
		},
		{
			name: "missing timestamps sort last",
			items: []Item{
				{QueueID: 1},
				{QueueID: 7, EnqueuedAt: base},
				{QueueID: 2},
			},
			expected: []int64{7, 1, 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Waiting(tt.items)
			ids := make([]int64, 0, len(got))
			for _, it := range got {
				ids = append(ids, it.QueueID)
			}
			assert.Equal(t, tt.expected, ids)
		})
	}
}

func TestWaiting_DoesNotMutateInput(t *testing.T) {
	base := time.Now()
	items := []Item{
		{QueueID: 2, EnqueuedAt: base.Add(time.Second)},
		{QueueID: 1, EnqueuedAt: base},
	}

	_ = Waiting(items)

	assert.Equal(t, int64(2), items[0].QueueID)
}

func TestNowPlayingAndHead(t *testing.T) {
	items := []Item{
		{QueueID: 10, Status: StatusNowPlaying, TrackName: "One"},
		{QueueID: 11, TrackName: "Walk"},
	}

	np, ok := NowPlaying(items)
	assert.True(t, ok)
	assert.Equal(t, int64(10), np.QueueID)

	head, ok := Head(items)
	assert.True(t, ok)
	assert.Equal(t, int64(11), head.QueueID)

	_, ok = Head([]Item{{QueueID: 1, Status: StatusNowPlaying}})
	assert.False(t, ok)
}

func TestTitle(t *testing.T) {
	assert.Equal(t, "One — Metallica", Title("One", "Metallica"))
	assert.Equal(t, "One", Title("One", ""))
	assert.Equal(t, "Metallica", Title("", "Metallica"))
	assert.Equal(t, "", Title("", ""))
}

func TestItem_Duration(t *testing.T) {
	assert.Equal(t, 3*time.Minute, Item{DurationMs: 180000}.Duration())
}
