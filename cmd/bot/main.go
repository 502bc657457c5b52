package main

import (
	"context"
	"flag"
	"math"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mtkocz/AdLands-sub002/internal/client"
	"github.com/mtkocz/AdLands-sub002/internal/protocol"
	"github.com/mtkocz/AdLands-sub002/pkg/sphere"
)

func main() {
	url := flag.String("url", "ws://localhost:8009/api/v1/ws", "server WebSocket URL")
	token := flag.String("token", "", "JWT access token")
	rings := flag.Int("rings", 64, "mesh rings (must match the server)")
	sectors := flag.Int("sectors", 96, "mesh sectors (must match the server)")
	drive := flag.String("drive", "orbit", "drive policy (orbit, weave, idle)")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	if *token == "" {
		log.Fatal().Msg("A -token is required")
	}

	mesh := sphere.GenerateMesh(*rings, *sectors)
	c := client.New(client.Config{URL: *url, Token: *token, Mesh: mesh})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info().Msg("Received shutdown signal")
		cancel()
	}()

	if err := c.Run(ctx, drivePolicy(*drive)); err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("Client failed")
	}
	log.Info().Msg("Bot stopped")
}

// drivePolicy returns a scripted key-state generator. Orbit holds
// forward and drifts the turret; weave alternates steering to sweep a
// wider band of tiles.
func drivePolicy(name string) client.DrivePolicy {
	switch name {
	case "idle":
		return func(tick int) (protocol.KeyState, float64) {
			return protocol.KeyState{}, 0
		}
	case "weave":
		return func(tick int) (protocol.KeyState, float64) {
			keys := protocol.KeyState{W: true}
			if (tick/protocol.ClientSimHz)%2 == 0 {
				keys.A = true
			} else {
				keys.D = true
			}
			return keys, 0
		}
	default: // orbit
		return func(tick int) (protocol.KeyState, float64) {
			turret := math.Mod(float64(tick)*0.01, 2*math.Pi)
			return protocol.KeyState{W: true}, turret
		}
	}
}
