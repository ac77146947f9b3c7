// Package main runs the multiplayer session server: the TCP socket
// protocol, the optional WebSocket listener, and the discovery REST API,
// over either the PostgreSQL or the in-memory store.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/ghostline/ghostline/internal/config"
	"github.com/ghostline/ghostline/internal/content/hotel"
	"github.com/ghostline/ghostline/internal/content/luagame"
	"github.com/ghostline/ghostline/internal/game"
	"github.com/ghostline/ghostline/internal/lobby"
	"github.com/ghostline/ghostline/internal/observability"
	"github.com/ghostline/ghostline/internal/rest"
	"github.com/ghostline/ghostline/internal/server"
	"github.com/ghostline/ghostline/internal/storage"
	"github.com/ghostline/ghostline/internal/storage/memory"
	"github.com/ghostline/ghostline/internal/storage/postgres"
	"github.com/ghostline/ghostline/internal/transport"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	roomsFile := flag.String("rooms", "", "seed rooms from this file, overriding game.rooms_file")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting session server",
		zap.String("socket_addr", cfg.Server.Addr()),
		zap.String("game", cfg.Game.Content),
	)

	// Storage
	var store storage.Store
	var pool *postgres.Pool
	if cfg.Database.Enabled {
		dbStart := time.Now()
		pool, err = postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			logger.Fatal("connecting to database", zap.Error(err))
		}
		store = postgres.NewStore(pool)
		logger.Info("database connected",
			zap.String("host", cfg.Database.Host),
			zap.Duration("elapsed", time.Since(dbStart)),
		)
	} else {
		store = memory.NewStore()
		logger.Warn("database disabled, rooms and game state will not survive a restart")
	}

	// Game content
	var provider game.Provider
	switch cfg.Game.Content {
	case "lua":
		lp, err := luagame.New(cfg.Game.ScriptPath, logger)
		if err != nil {
			logger.Fatal("loading game script", zap.Error(err))
		}
		defer lp.Close()
		provider = lp
	default:
		provider = hotel.New()
	}

	// Lobby and rooms
	router, err := lobby.NewRouter(store, provider, cfg.Game.MaxPlayers, logger)
	if err != nil {
		logger.Fatal("building lobby", zap.Error(err))
	}
	if err := router.Bootstrap(ctx); err != nil {
		logger.Fatal("restoring rooms", zap.Error(err))
	}

	seedFile := cfg.Game.RoomsFile
	if *roomsFile != "" {
		seedFile = *roomsFile
	}
	if seedFile != "" {
		if err := router.LoadRoomsFile(ctx, seedFile); err != nil {
			logger.Fatal("seeding rooms", zap.Error(err))
		}
	}

	// Wire lifecycle
	lifecycle := server.NewLifecycle(logger)

	socket := transport.NewServer(cfg.Server, router, logger)
	lifecycle.Add("socket", &server.FuncService{
		StartFn: socket.ListenAndServe,
		StopFn:  socket.Stop,
	})

	if cfg.WebSocket.Enabled {
		ws := transport.NewWSServer(cfg.WebSocket, router, logger)
		lifecycle.Add("websocket", &server.FuncService{
			StartFn: ws.ListenAndServe,
			StopFn:  ws.Stop,
		})
	}

	if cfg.REST.Enabled {
		api := rest.NewServer(cfg.REST, router,
			rest.SocketInfo{Host: cfg.Server.Host, Port: cfg.Server.Port}, logger)
		lifecycle.Add("rest", &server.FuncService{
			StartFn: api.ListenAndServe,
			StopFn:  api.Stop,
		})
	}

	if pool != nil {
		lifecycle.Add("postgres", &server.FuncService{
			StartFn: func() error {
				for {
					time.Sleep(30 * time.Second)
					if err := pool.Health(ctx, 5*time.Second); err != nil {
						logger.Warn("database health check failed", zap.Error(err))
					}
				}
			},
			StopFn: func() {
				pool.Close()
			},
		})
	}

	logger.Info("session server initialized",
		zap.Duration("startup", time.Since(start)),
		zap.String("socket_addr", cfg.Server.Addr()),
	)

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
