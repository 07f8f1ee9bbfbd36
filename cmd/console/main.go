// Command console is an interactive terminal client for the agent
// gateway: type to chat, /voice to stream the microphone, /text to go
// back to text only.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/room4-2/converse-client/audio"
	"github.com/room4-2/converse-client/config"
	"github.com/room4-2/converse-client/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	player, err := audio.NewPlayer(cfg.PlaybackSampleRate)
	if err != nil {
		log.Fatalf("Failed to open playback device: %v", err)
	}
	defer player.Close()

	capture := audio.NewCapture(cfg.MicSampleRate, cfg.FrameMillis)

	sess := session.New(cfg, nil, capture, player)

	sess.OnState = func(state session.State) {
		log.Printf("📊 Connection: %s", state)
	}
	sess.Turns.OnNewTurn = func(id, role, text string) {
		if role == "user" {
			fmt.Printf("\n🧑 %s\n", text)
			return
		}
		fmt.Printf("\n🤖 %s", text)
	}
	sess.Turns.OnAppend = func(id, text string) {
		fmt.Print(text)
	}
	sess.Turns.OnBoundary = func() {
		fmt.Println()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("\nShutting down...")
		cancel()
	}()

	log.Printf("🔌 Session %s connecting to %s", sess.ID[:8], cfg.ServerURL)
	log.Println("Commands: /voice, /text, /quit")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return sess.Run(ctx)
	})

	g.Go(func() error {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			if ctx.Err() != nil {
				return nil
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}

			switch line {
			case "/voice":
				if err := sess.EnableVoice(); err != nil {
					log.Printf("❌ Voice unavailable: %v", err)
					continue
				}
				log.Println("🎤 Voice enabled")
			case "/text":
				sess.DisableVoice()
				log.Println("💬 Back to text mode")
			case "/quit", "/exit":
				cancel()
				return nil
			default:
				sess.SendText(line)
			}
		}
		cancel()
		return scanner.Err()
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Session error: %v", err)
	}
	log.Println("Client stopped")
}
