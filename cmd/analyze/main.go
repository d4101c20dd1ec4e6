package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"trayaudit/internal/app"
	"trayaudit/internal/config"
	"trayaudit/internal/logger"
)

var imageExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

func main() {
	dir := flag.String("dir", "photos", "Directory containing tray photos")
	day := flag.String("day", "", "Photo day recorded with every result (required)")
	flag.Parse()

	if *day == "" {
		log.Fatalf("-day is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	logs, err := logger.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logs.Close()

	pipeline, err := app.NewPipeline(ctx, cfg, logs)
	if err != nil {
		log.Fatalf("Failed to initialize pipeline: %v", err)
	}
	defer pipeline.Close()

	files, err := os.ReadDir(*dir)
	if err != nil {
		log.Fatalf("Failed to read directory: %v", err)
	}

	var photos []string
	for _, file := range files {
		if file.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(file.Name()))] {
			continue
		}
		photos = append(photos, filepath.Join(*dir, file.Name()))
	}
	sort.Strings(photos)

	if len(photos) == 0 {
		fmt.Println("No photos found to analyze")
		return
	}

	fmt.Printf("Analyzing %d photos from %s for %s\n", len(photos), *dir, *day)

	failed := 0
	for _, path := range photos {
		if ctx.Err() != nil {
			break
		}

		results, err := pipeline.Analyzer.AnalyzeLocator(ctx, path, *day)
		if err != nil {
			fmt.Printf("⚠️  %s: %v\n", filepath.Base(path), err)
			failed++
			continue
		}

		if len(results) == 0 {
			fmt.Printf("%s: no food detected\n", filepath.Base(path))
			continue
		}

		fmt.Printf("%s:\n", filepath.Base(path))
		for _, r := range results {
			switch {
			case r.Failed():
				fmt.Printf("   [%d] %s: %s\n", r.Index, r.FoodCategory, r.Error)
			case r.StorageError != "":
				fmt.Printf("   [%d] %s | %s - %s (not saved: %s)\n", r.Index, r.FoodCategory, r.FoodType, r.WasteLabel, r.StorageError)
			default:
				fmt.Printf("   [%d] %s | %s - %s\n", r.Index, r.FoodCategory, r.FoodType, r.WasteLabel)
			}
		}
	}

	if failed > 0 {
		fmt.Printf("⚠️  %d photos could not be analyzed\n", failed)
	}

	summary, err := pipeline.Results.GetSummary()
	if err == nil {
		fmt.Printf("\n📊 Waste summary: %d plates, %d wasted (%.1f%%)\n", summary.Total, summary.Waste, summary.Percent)
	}
}
