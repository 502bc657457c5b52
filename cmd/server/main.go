package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mtkocz/AdLands-sub002/internal/auth"
	"github.com/mtkocz/AdLands-sub002/internal/config"
	"github.com/mtkocz/AdLands-sub002/internal/gateway"
	"github.com/mtkocz/AdLands-sub002/internal/handler"
	"github.com/mtkocz/AdLands-sub002/internal/logger"
	"github.com/mtkocz/AdLands-sub002/internal/middleware"
	"github.com/mtkocz/AdLands-sub002/internal/repository/postgres"
	redisrepo "github.com/mtkocz/AdLands-sub002/internal/repository/redis"
	"github.com/mtkocz/AdLands-sub002/internal/service"
	"github.com/mtkocz/AdLands-sub002/pkg/sphere"
)

func main() {
	logger.Init()
	cfg := config.Load()
	log.Info().Str("databaseURL", cfg.DatabaseURL).
		Int("rings", cfg.MeshRings).Int("sectors", cfg.MeshSectors).
		Msg("Config loaded")

	// Database
	db, err := postgres.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Database connection failed")
	}
	defer db.Close()

	// Redis
	redisClient, err := redisrepo.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Redis connection failed")
	}
	defer redisClient.Close()

	sponsorRepo := postgres.NewSponsorRepo(db)

	// World
	mesh := sphere.GenerateMesh(cfg.MeshRings, cfg.MeshSectors)
	graph := sphere.BuildAdjacency(mesh.Tiles)
	sphere.MarkPortalBorders(mesh.Tiles, graph)
	gw := gateway.New(sphere.NewPartition(mesh.Tiles, graph))

	jwtMgr := auth.NewJWTManager(cfg.JWTSecret)
	hub := handler.NewHub()
	world := service.NewWorld(mesh, gw, hub, sponsorRepo, redisClient, cfg.TickRate)

	if err := world.Bootstrap(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("World bootstrap failed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go world.Run(ctx)

	// Handlers
	authHandler := handler.NewAuthHandler(jwtMgr)
	wsHandler := handler.NewWSHandler(hub, world, jwtMgr)
	adminHandler := handler.NewAdminHandler(world, jwtMgr)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("GET /auth/dev", authHandler.DevLogin)
	mux.HandleFunc("GET /api/v1/ws", wsHandler.ServeWS)
	mux.HandleFunc("POST /api/v1/sponsors", adminHandler.ClaimSponsor)
	mux.HandleFunc("DELETE /api/v1/sponsors/{id}", adminHandler.RemoveSponsor)
	mux.HandleFunc("POST /api/v1/world/scramble", adminHandler.Scramble)

	root := middleware.Chain(mux, middleware.Logger, middleware.CORS("*"))

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      root,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server shutdown error")
	}
	log.Info().Msg("Server stopped")
}
