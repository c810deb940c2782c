package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/app"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("%v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := app.RunServer(ctx, cfg); err != nil {
		log.Fatalf("%v", err)
	}
}
