package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"cvswatch/internal/app"
	"cvswatch/internal/config"
	"cvswatch/internal/tui"
)

func main() {
	configPath := flag.String("config", "", "Config file path (default: search standard locations)")
	logPath := flag.String("log", "cvswatch-dashboard.log", "Log file path")
	flag.Parse()

	// The terminal belongs to the UI, so logs go to a file
	logFile, err := tea.LogToFile(*logPath, "cvswatch")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	var cfg *config.Config
	if *configPath != "" {
		cfg, _, err = config.LoadFromPath(*configPath)
	} else {
		cfg, _, err = config.Load()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load config: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	updates, unsubscribe := a.Store.Subscribe()
	defer unsubscribe()

	// Tick zero runs in the background so the UI opens immediately
	go func() {
		if err := a.Start(ctx); err != nil {
			log.Printf("Failed to start sync loop: %v", err)
		}
	}()

	p := tea.NewProgram(
		tui.New(a.Store, a.Loop, updates, cfg.Analytics.OfflineAfter.Duration()),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
