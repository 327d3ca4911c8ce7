package main

import (
	"context"
	"log"
	"os"
	"strings"
	"time"

	"termchat/internal/api"
	"termchat/internal/assistant"
	"termchat/internal/auth"
	"termchat/internal/chat"
	"termchat/internal/config"
	"termchat/internal/feed"
	"termchat/internal/redis"
	"termchat/internal/storage"
	"termchat/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {
	cfgPath := os.Getenv("TERMCHAT_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	dbType := os.Getenv("TERMCHAT_DB")
	if dbType == "" {
		dbType = "sqlite3"
	}
	log.Printf("dbType: %s\n", dbType)
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	// Create necessary tables: users, user_tokens, rooms, messages
	if err := storage.Migrate(db, dbType); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	// The memory backend runs without redis: an in-process feed broker and
	// purely local session grants. Anything multi-replica needs redis.
	memoryBackend := strings.EqualFold(os.Getenv("TERMCHAT_BACKEND"), "memory")
	var (
		rdb        *redis.Client
		changeFeed feed.Feed
	)
	if memoryBackend {
		changeFeed = feed.NewMemory()
	} else {
		rdb, err = redis.NewRedisClient(cfg)
		if err != nil {
			log.Fatalf("create redis client: %v", err)
		}
		defer rdb.Close()
		changeFeed = feed.NewRedis(rdb)
	}

	chatService := chat.NewService(db, changeFeed)
	authService := auth.NewService(db, rdb, 24*time.Hour)
	grants := auth.NewGrants(rdb, authService.TokenTTL())

	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()
	sweepInterval := time.Duration(cfg.BasicConfig.TokenSweepMinutes) * time.Minute
	authService.StartTokenSweeper(sweepCtx, sweepInterval)

	var bridge *assistant.Bridge
	if cfg.Assistant.Provider != "" {
		generator, err := assistant.NewGenerator(cfg)
		if err != nil {
			log.Fatalf("init assistant generator: %v", err)
		}
		dispatcher := worker.NewDispatcher(worker.Config{
			MinWorkers:  cfg.BasicConfig.MinWorkers,
			MaxWorkers:  cfg.BasicConfig.MaxWorkers,
			QueueSize:   cfg.BasicConfig.QueueSize,
			IdleTimeout: time.Duration(cfg.BasicConfig.WorkerIdleTimeout) * time.Minute,
		})
		defer dispatcher.Stop()
		bridge = assistant.NewBridge(chatService, generator, dispatcher)
	} else {
		log.Printf("assistant disabled: no provider configured")
	}

	handlers := api.NewHandler(chatService, authService, grants, bridge)

	router := gin.Default()
	handlers.RegisterRoutes(router)

	addr := cfg.BasicConfig.ServerAddress
	if addr == "" {
		addr = ":8090"
	}

	if err := router.Run(addr); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
