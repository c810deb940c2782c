package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/config"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/net/ws"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/roster"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/session"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/telemetry"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/trigger"
)

var ErrNoName = errors.New("peer name is required (CHAOS_PEER_NAME)")

// RunPeer joins the room as a headless peer and turns each input line into a
// key press. "/scene" starts a new round, "/dead" and "/alive" change the
// reported state, "/quit" leaves.
func RunPeer(ctx context.Context, cfg config.Config, in io.Reader) error {
	if cfg.Peer.Name == "" {
		return ErrNoName
	}
	obs, err := newObservability(cfg, false)
	if err != nil {
		return err
	}
	defer obs.close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	link, err := ws.Dial(ctx, cfg.Peer.RoomURL, cfg.Peer.Name)
	if err != nil {
		return err
	}
	defer link.Close()

	node := session.New(cfg.Session(), session.Deps{
		Character: session.NewHeadless(obs.logger),
		Display:   session.LogDisplay{Logger: obs.logger},
		Notifier:  session.LogNotifier{Logger: obs.logger},
		Metrics:   obs.metrics,
		Publisher: obs.router,
		Logger:    obs.logger,
	})
	defer node.Close()

	runErr := make(chan error, 1)
	go func() {
		runErr <- node.Run(ctx, link)
		cancel()
	}()

	if err := awaitWelcome(ctx, node); err != nil {
		return err
	}
	state := roster.Peer{Name: cfg.Peer.Name, Alive: true, Conscious: true, Spectating: roster.NoActor}
	if err := node.ReportState(ctx, state); err != nil {
		obs.logger.Printf("failed to report state: %v", err)
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return <-runErr
		case line, ok := <-lines:
			if !ok {
				cancel()
				return <-runErr
			}
			if handlePeerLine(ctx, node, &state, line, obs.logger) {
				cancel()
				return <-runErr
			}
		}
	}
}

func awaitWelcome(ctx context.Context, node *session.Node) error {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for node.LocalActor() == roster.NoActor {
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for welcome: %w", ctx.Err())
		case <-ticker.C:
		}
	}
	return nil
}

// handlePeerLine applies one input line and reports whether the peer should
// leave.
func handlePeerLine(ctx context.Context, node *session.Node, state *roster.Peer, line string, logger telemetry.Logger) bool {
	line = strings.TrimSpace(line)
	switch line {
	case "":
		return false
	case "/quit":
		return true
	case "/scene":
		node.OnSceneLoaded()
		logger.Printf("new round started")
		return false
	case "/dead", "/alive":
		state.Alive = line == "/alive"
		if err := node.ReportState(ctx, *state); err != nil {
			logger.Printf("failed to report state: %v", err)
		}
		return false
	}

	key, ok := trigger.Parse(line)
	if !ok {
		logger.Printf("unknown key %q", line)
		return false
	}
	outcome := node.Press(ctx, key)
	if outcome.Scheduled() {
		logger.Printf("%s scheduled", key)
	} else {
		logger.Printf("%s %s (%s, %ds)", key, outcome.Kind, outcome.Reason, outcome.Remaining)
	}
	return false
}
