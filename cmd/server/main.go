package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"trayaudit/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.NewApp(ctx)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer application.Close()

	if err := application.Run(ctx); err != nil {
		log.Printf("Server stopped with error: %v", err)
	}
}
