// Package main provides the library maintenance CLI.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"

	"voxbox/internal/infra/config"
	"voxbox/internal/infra/library"
	"voxbox/internal/infra/media"
)

var (
	app        = kingpin.New("voxboxctl", "voxbox library and server inspection client")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()

	// search command
	searchCmd   = app.Command("search", "Search the track library")
	searchQuery = searchCmd.Arg("query", "Title or artist fragment").Required().String()
	searchLimit = searchCmd.Flag("limit", "Maximum results").Default("25").Int()

	// show command
	showCmd = app.Command("show", "Show one library entry")
	showID  = showCmd.Arg("id", "Library ID").Required().Int64()

	// probe command
	probeCmd  = app.Command("probe", "Read tags from a media file")
	probePath = probeCmd.Arg("file", "Media file").Required().ExistingFile()

	// status command
	statusCmd    = app.Command("status", "Query a running server")
	statusServer = statusCmd.Flag("server", "Server address").Default("http://localhost:8080").String()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	ctx := context.Background()

	switch command {
	case searchCmd.FullCommand():
		search(ctx, *searchQuery, *searchLimit)
	case showCmd.FullCommand():
		show(ctx, *showID)
	case probeCmd.FullCommand():
		probe(*probePath)
	case statusCmd.FullCommand():
		status(*statusServer)
	}
}

func openLibrary() *library.Library {
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	lib, err := library.Open(cfg.Library.Path)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	return lib
}

func search(ctx context.Context, query string, limit int) {
	lib := openLibrary()
	defer lib.Close()

	tracks, err := lib.Search(ctx, query, limit)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	if len(tracks) == 0 {
		fmt.Println("No matches.")
		return
	}

	for _, t := range tracks {
		fmt.Printf("%6s  %-50s %s\n", t.ID, t.Display(), formatDuration(t.Duration))
	}
}

func show(ctx context.Context, id int64) {
	lib := openLibrary()
	defer lib.Close()

	t, err := lib.Get(ctx, id)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("ID:       %s\n", t.ID)
	fmt.Printf("Title:    %s\n", t.Title)
	fmt.Printf("Artist:   %s\n", t.Artist)
	fmt.Printf("Album:    %s\n", t.Album)
	fmt.Printf("Duration: %s\n", formatDuration(t.Duration))
	fmt.Printf("Path:     %s\n", t.Path)
}

func probe(path string) {
	t, err := media.Probe(path)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Title:  %s\n", t.Title)
	fmt.Printf("Artist: %s\n", t.Artist)
	fmt.Printf("Album:  %s\n", t.Album)
	fmt.Printf("Path:   %s\n", t.Path)
}

func status(server string) {
	resp, err := http.Get(server + "/status")
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	var body struct {
		Sessions int `json:"sessions"`
		Tracks   int `json:"tracks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Sessions: %d\n", body.Sessions)
	fmt.Printf("Tracks:   %d\n", body.Tracks)
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "--:--"
	}
	d = d.Round(time.Second)
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}
