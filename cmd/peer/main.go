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
	if len(os.Args) > 1 {
		cfg.Peer.Name = os.Args[1]
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := app.RunPeer(ctx, cfg, os.Stdin); err != nil {
		log.Fatalf("%v", err)
	}
}
