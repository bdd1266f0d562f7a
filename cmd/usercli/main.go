// Package main provides the requester CLI entry point.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"

	"github.com/osa030/rockola/internal/app/request"
	"github.com/osa030/rockola/internal/app/search"
	"github.com/osa030/rockola/internal/domain/queue"
	"github.com/osa030/rockola/internal/domain/track"
	"github.com/osa030/rockola/internal/infra/config"
	"github.com/osa030/rockola/internal/infra/jukebox"
)

var (
	app        = kingpin.New("rockola-usercli", "rockola requester client")
	configPath = app.Flag("config", "Path to config file (optional)").Short('c').String()
	apiURL     = app.Flag("api", "Jukebox API base URL").Envar("ROCKOLA_API_BASE_URL").String()
	timeout    = app.Flag("timeout", "HTTP timeout").Default("10s").Duration()

	// search command
	searchCmd   = app.Command("search", "Search the catalog")
	searchQuery = searchCmd.Arg("query", "Search text").Required().Strings()
	searchLimit = searchCmd.Flag("limit", "Maximum results (default from config)").Int()

	// browse command
	browseCmd      = app.Command("browse", "Search interactively, one query per line")
	browseDebounce = browseCmd.Flag("debounce", "Debounce delay (default from config)").Duration()

	// request command
	requestCmd     = app.Command("request", "Request a track")
	requestTrackID = requestCmd.Arg("track-id", "Catalog (Deezer) track ID").Required().Int64()
	requestName    = requestCmd.Flag("name", "Your name (optional)").Short('n').String()
	requestTable   = requestCmd.Flag("table", "Table code (default from config)").String()

	// queue command
	queueCmd = app.Command("queue", "Show the queue")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	client, err := jukebox.New(jukebox.Config{BaseURL: cfg.API.BaseURL, Timeout: cfg.APITimeout()})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	searchConfig := search.Config{
		MinChars: cfg.Request.SearchMinChars,
		Limit:    cfg.Request.SearchLimit,
		Debounce: cfg.SearchDebounce(),
	}

	switch command {
	case searchCmd.FullCommand():
		if *searchLimit > 0 {
			searchConfig.Limit = *searchLimit
		}
		searchTracks(ctx, client, strings.Join(*searchQuery, " "), searchConfig)
	case browseCmd.FullCommand():
		if *browseDebounce > 0 {
			searchConfig.Debounce = *browseDebounce
		}
		browse(ctx, client, searchConfig)
	case requestCmd.FullCommand():
		requestConfig := request.Config{
			TableCode:      cfg.Request.TableCode,
			RequestedByMax: cfg.Request.RequestedByMax,
		}
		if *requestTable != "" {
			requestConfig.TableCode = *requestTable
		}
		requestTrack(ctx, client, *requestTrackID, *requestName, requestConfig)
	case queueCmd.FullCommand():
		showQueue(ctx, client)
	}
}

// loadConfig reads the optional config file. Flags win over file values.
func loadConfig() (*config.RequesterConfig, error) {
	cfg := &config.RequesterConfig{
		API: config.APIConfig{BaseURL: *apiURL},
		Request: config.RequestConfig{
			TableCode:        request.DefaultTableCode,
			RequestedByMax:   request.DefaultRequestedByMax,
			SearchLimit:      search.DefaultLimit,
			SearchMinChars:   search.DefaultMinChars,
			SearchDebounceMs: int(search.DefaultDebounce / time.Millisecond),
		},
	}
	if *configPath != "" {
		loaded, err := config.LoadRequester(*configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
		if *apiURL != "" {
			cfg.API.BaseURL = *apiURL
		}
	}
	if cfg.API.BaseURL == "" {
		return nil, errors.New("jukebox API base URL is required (use --api, ROCKOLA_API_BASE_URL or --config)")
	}
	if cfg.API.TimeoutMs == 0 {
		cfg.API.TimeoutMs = int(*timeout / time.Millisecond)
	}
	return cfg, nil
}

func searchTracks(ctx context.Context, client *jukebox.Client, q string, searchConfig search.Config) {
	s := search.New(client, searchConfig)
	if !s.Searchable(q) {
		fmt.Printf("Type at least %d characters to search\n", searchConfig.MinChars)
		os.Exit(1)
	}

	res, err := s.Search(ctx, q)
	if err != nil {
		fmt.Printf("Error: %s\n", res.Error)
		os.Exit(1)
	}
	printTracks(res)
}

func browse(ctx context.Context, client *jukebox.Client, searchConfig search.Config) {
	s := search.New(client, searchConfig)
	s.Subscribe(func(res search.Result) {
		if res.Error != "" {
			fmt.Printf("Error: %s\n", res.Error)
			return
		}
		if res.Query == "" || !s.Searchable(res.Query) {
			return
		}
		printTracks(res)
	})
	defer s.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println()
		os.Exit(0)
	}()

	fmt.Println("Type a query and press Enter. Ctrl+D to exit.")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		s.Type(ctx, scanner.Text())
	}
	// Let the last query land
	time.Sleep(searchConfig.Debounce + *timeout)
}

func printTracks(res search.Result) {
	fmt.Printf("Results for %q (%d):\n", res.Query, len(res.Tracks))
	for _, t := range res.Tracks {
		explicit := ""
		if t.Explicit {
			explicit = " [E]"
		}
		fmt.Printf("  %10d  %s — %s (%s)%s\n",
			t.DeezerTrackID, t.Title, t.ArtistName, track.FormatDuration(t.Duration()), explicit)
	}
}

func requestTrack(ctx context.Context, client *jukebox.Client, trackID int64, name string, requestConfig request.Config) {
	s := request.NewSubmitter(client, requestConfig)
	res, err := s.Submit(ctx, trackID, name)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	switch res.Outcome {
	case request.OutcomeAccepted:
		fmt.Printf("Success: %s\n", res.Message)
	case request.OutcomeRejected:
		fmt.Printf("Rejected: %s\n", res.Message)
		os.Exit(2)
	default:
		fmt.Printf("Failed: %s\n", res.Message)
		os.Exit(1)
	}
}

func showQueue(ctx context.Context, client *jukebox.Client) {
	res, err := client.GetQueue(ctx)
	if err != nil {
		fmt.Printf("Error: %s\n", jukebox.Message(err, err.Error()))
		os.Exit(1)
	}
	if !res.OK {
		fmt.Printf("Error: %v\n", res.Err("Failed to load queue"))
		os.Exit(1)
	}

	if np, ok := queue.NowPlaying(res.Items); ok {
		fmt.Printf("Now playing: %s\n", queue.Title(np.TrackName, np.ArtistName))
	} else {
		fmt.Println("Now playing: -")
	}

	waiting := queue.Waiting(res.Items)
	fmt.Printf("Up next (%d):\n", len(waiting))
	for i, it := range waiting {
		when := "-"
		if !it.EnqueuedAt.IsZero() {
			when = humanize.Time(it.EnqueuedAt)
		}
		by := ""
		if it.RequestedBy != "" {
			by = " by " + it.RequestedBy
		}
		fmt.Printf("  %2d. %s (%s)%s, %s\n",
			i+1, queue.Title(it.TrackName, it.ArtistName), track.FormatDuration(it.Duration()), by, when)
	}
}
