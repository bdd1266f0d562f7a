// Package main provides the admin CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"

	"github.com/osa030/rockola/internal/api/control"
	"github.com/osa030/rockola/internal/app/notification"
	"github.com/osa030/rockola/internal/app/playback"
	"github.com/osa030/rockola/internal/domain/queue"
)

var (
	app    = kingpin.New("rockola-admincli", "rockola host admin client")
	server = app.Flag("server", "Host control server address").Default("http://localhost:8090").Envar("ROCKOLA_HOST_URL").String()
	token  = app.Flag("token", "Admin token (or set ROCKOLA_ADMIN_TOKEN env)").Envar("ROCKOLA_ADMIN_TOKEN").String()

	// status command
	statusCmd = app.Command("status", "Show host playback status")

	// queue command
	queueCmd = app.Command("queue", "Show the queue as the host sees it")

	// next command
	nextCmd = app.Command("next", "Skip to the next request").Alias("skip")

	// recover command
	recoverCmd = app.Command("recover", "Re-synchronize the host with the server")

	// reorder command
	reorderCmd      = app.Command("reorder", "Move a waiting request")
	reorderQueueID  = reorderCmd.Arg("queue-id", "Queue item ID").Required().Int64()
	reorderPosition = reorderCmd.Arg("position", "New position (1-based)").Required().Int()

	// watch command
	watchCmd = app.Command("watch", "Stream host status changes")

	// qr command
	qrCmd    = app.Command("qr", "Write the requester page QR code")
	qrURL    = qrCmd.Flag("url", "Requester page URL").Envar("ROCKOLA_PUBLIC_URL").Required().String()
	qrSize   = qrCmd.Flag("size", "Image size in pixels").Default("256").Int()
	qrOutput = qrCmd.Arg("output", "Output PNG file").Default("rockola-qr.png").String()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	// Parse command
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	// Check admin token for commands that change state
	switch command {
	case nextCmd.FullCommand(), recoverCmd.FullCommand(), reorderCmd.FullCommand():
		if *token == "" {
			fmt.Println("Error: admin token is required (use --token or ROCKOLA_ADMIN_TOKEN env)")
			os.Exit(1)
		}
	}

	client := control.NewClient(*server, *token, nil)
	ctx := context.Background()

	switch command {
	case statusCmd.FullCommand():
		status(ctx, client)
	case queueCmd.FullCommand():
		showQueue(ctx, client)
	case nextCmd.FullCommand():
		report(client.Next(ctx))
	case recoverCmd.FullCommand():
		report(client.Recover(ctx))
	case reorderCmd.FullCommand():
		report(client.Reorder(ctx, *reorderQueueID, *reorderPosition))
	case watchCmd.FullCommand():
		watch(ctx, client)
	case qrCmd.FullCommand():
		writeQR(*qrURL, *qrSize, *qrOutput)
	}
}

func status(ctx context.Context, client *control.Client) {
	s, err := client.Status(ctx)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\n=== HOST STATUS ===")
	printSnapshot(*s)
}

func printSnapshot(s playback.Snapshot) {
	fmt.Printf("Phase: %s\n", formatPhase(s.Phase))
	if s.Title != "" {
		fmt.Printf("Now Playing: %s\n", s.Title)
	}
	if s.NowPlaying != nil {
		fmt.Printf("  Video: %s\n", s.NowPlaying.VideoID)
	}
	if s.Fallback.Active {
		playlist := s.Fallback.PlaylistID
		if playlist == "" {
			playlist = "(none configured)"
		}
		fmt.Printf("Fallback Playlist: %s\n", playlist)
	}
	if s.Advancing {
		fmt.Printf("Advancing (forced: %v)\n", s.AdvanceForced)
	}
	if s.Notice != "" {
		fmt.Printf("Notice: %s\n", s.Notice)
	}
	if s.LastError != "" {
		fmt.Printf("Last Error: %s\n", s.LastError)
	}
	fmt.Printf("Waiting: %d\n", len(s.Waiting))
}

func showQueue(ctx context.Context, client *control.Client) {
	view, err := client.Queue(ctx)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	if view.Loading {
		fmt.Println("Queue is still loading")
	}
	if view.Error != "" {
		fmt.Printf("Queue Error: %s\n", view.Error)
	}
	if view.NowPlaying != nil {
		fmt.Printf("Now Playing: [%d] %s\n", view.NowPlaying.QueueID, queue.Title(view.NowPlaying.TrackName, view.NowPlaying.ArtistName))
	}
	fmt.Printf("Waiting (%d):\n", len(view.Waiting))
	for i, it := range view.Waiting {
		when := ""
		if !it.EnqueuedAt.IsZero() {
			when = " " + humanize.Time(it.EnqueuedAt)
		}
		fmt.Printf("  %2d. [%d] %s (table %s)%s\n", i+1, it.QueueID, queue.Title(it.TrackName, it.ArtistName), it.TableCode, when)
	}
}

func report(res *control.ActionResponse, err error) {
	if err != nil {
		fmt.Printf("Failed: %v\n", err)
		os.Exit(1)
	}
	msg := res.Message
	if msg == "" {
		msg = "OK"
	}
	fmt.Printf("Success: %s\n", msg)
	if res.State != nil {
		printSnapshot(*res.State)
	}
}

func watch(ctx context.Context, client *control.Client) {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Println("Watching host status. Press Ctrl+C to exit.")
	err := client.Watch(ctx, func(n notification.Notification) {
		fmt.Printf("\n[#%d] %s\n", n.SequenceNo, n.Type)
		printSnapshot(n.State)
	})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func writeQR(url string, size int, output string) {
	png, err := control.EncodeQR(url, size)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(output, png, 0644); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("QR code for %s written to %s (%s)\n", url, output, humanize.Bytes(uint64(len(png))))
}

func formatPhase(p playback.Phase) string {
	switch p {
	case playback.PhaseInitializing:
		return "⏳ Initializing"
	case playback.PhaseRecovering:
		return "🔄 Recovering"
	case playback.PhasePlaying:
		return "▶️  Playing"
	case playback.PhaseIdle:
		return "⏸  Idle (queue empty)"
	case playback.PhaseFallback:
		return "📻 Fallback"
	case playback.PhaseErrored:
		return "⚠️  Errored (use recover)"
	default:
		return "❓ Unknown"
	}
}
