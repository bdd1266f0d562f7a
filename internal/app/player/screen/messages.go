package screen

// MessageType represents screen bridge message types.
type MessageType string

const (
	// Host -> Screen
	MsgCreate    MessageType = "create"     // Construct a player for a video or playlist
	MsgLoadVideo MessageType = "load_video" // Load a video into the current player
	MsgNextVideo MessageType = "next_video" // Skip to the next playlist entry
	MsgPlayVideo MessageType = "play_video" // Start or resume playback
	MsgSetVolume MessageType = "set_volume" // Set volume 0-100
	MsgDestroy   MessageType = "destroy"    // Tear down a player
	MsgStatus    MessageType = "status"     // Header overlay content

	// Screen -> Host
	MsgHello       MessageType = "hello"        // IFrame API loaded
	MsgReady       MessageType = "ready"        // Player constructed
	MsgStateChange MessageType = "state_change" // Player state changed
	MsgError       MessageType = "error"        // Player error
)

// Message is a screen bridge message. Player identifies the player
// instance a command or callback refers to.
type Message struct {
	Type    MessageType `json:"type"`
	Player  int64       `json:"player,omitempty"`
	VideoID string      `json:"videoId,omitempty"`
	ListID  string      `json:"listId,omitempty"`
	Volume  int         `json:"volume"`
	State   int         `json:"state"`
	Code    int         `json:"code"`
	Status  *Overlay    `json:"status,omitempty"`
}

// Overlay is the header and overlay content shown on the host screen.
type Overlay struct {
	Title   string   `json:"title"`
	Phase   string   `json:"phase"`
	Notice  string   `json:"notice,omitempty"`
	Error   string   `json:"error,omitempty"`
	Waiting []string `json:"waiting"`
}
