package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/MrEthical07/lmsauth/internal/app"
	"github.com/MrEthical07/lmsauth/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, config.MustLoad())
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}
	defer application.Close()

	if err := application.Run(ctx); err != nil {
		log.Printf("app stopped: %v", err)
	}
}
