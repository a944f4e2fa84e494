package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"deribit-gateway/src/analytics"
	"deribit-gateway/src/cache"
	"deribit-gateway/src/config"
	"deribit-gateway/src/helpers"
	"deribit-gateway/src/interfaces"
	"deribit-gateway/src/limiter"
	"deribit-gateway/src/logger"
	"deribit-gateway/src/rpc"
	"deribit-gateway/src/server"
	"deribit-gateway/src/storage"
	"deribit-gateway/src/tools"
	"deribit-gateway/src/transport"
	"deribit-gateway/src/upstream"
	"deribit-gateway/src/utils"
)

const version = "1.0.0"

const metricsRingSize = 2048

// -----------------------------------------------------------------------------

func main() {

	// Parse command line flags
	configPath := flag.String("config", "../../config/default.yaml", "path to config file")
	stdio := flag.Bool("stdio", false, "serve one session over stdin/stdout instead of HTTP")
	flag.Parse()

	// Load config from YAML file
	cfg, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger (stderr only, stdout stays clean for the stdio transport)
	appLogger := logger.NewLogger(cfg.LogLevel, cfg.Name)
	appLogger.Debug("Memory budget: %d MB", helpers.GetRecommendedMemoryLimit())

	// 2. Setup Storage
	var db interfaces.IDatabase

	switch cfg.Storage.DBType {
	case "postgres":
		db, err = storage.NewPostgresDB(cfg.MConfig, appLogger)
	case "sqlite":
		db, err = storage.NewAsyncSQLiteDB(cfg.MConfig, appLogger)
	default:
		db = nil
	}

	if err != nil {
		appLogger.Critical("Failed to init db: %v", err)
	}
	if db != nil {
		if err := db.Initialize(); err != nil {
			appLogger.Critical("Failed to migrate db: %v", err)
		}
		defer db.Close()
	}

	// 3. Setup shared components: limiter, cache, upstream client, engine.
	// Constructed once here and passed by reference everywhere.
	lim := limiter.NewLimiter(
		cfg.RateLimit.Capacity,
		cfg.RateLimit.RefillPerSec,
		time.Duration(cfg.RateLimit.MaxWaitMillis)*time.Millisecond,
	)
	ttlCache := cache.NewTTLCache(
		time.Duration(cfg.Cache.FastTTLSeconds)*time.Second,
		time.Duration(cfg.Cache.SlowTTLSeconds)*time.Second,
		cfg.Cache.MaxEntries,
	)
	client := upstream.NewClient(cfg, lim, ttlCache, appLogger)
	engine := analytics.NewEngine(cfg.Analytics.ContractSize)
	ring := utils.NewMetricsRing(metricsRingSize)

	// 4. Tool registry
	registry, err := tools.NewRegistry(&tools.Deps{
		Client: client,
		Engine: engine,
		Config: cfg,
		Logger: appLogger,
		Store:  db,
		Ring:   ring,
	})
	if err != nil {
		appLogger.Critical("Failed to build tool registry: %v", err)
	}

	info := rpc.ServerInfo{Name: cfg.Name, Version: version}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	// 5a. Stdio mode: one session on the process pipes, no HTTP listener.
	if *stdio {
		go func() {
			<-quit
			appLogger.Info("Shutting down...")
			cancel()
		}()

		t := transport.NewStdio(ctx, registry, appLogger, info)
		if err := t.Run(ctx); err != nil && err != context.Canceled {
			appLogger.Error("stdio transport failed: %v", err)
			os.Exit(1)
		}
		return
	}

	// 5b. Server mode: HTTP + SSE + WebSocket.
	srv := server.NewGatewayServer(cfg.MConfig, appLogger, registry, client, ring, db, info)

	go func() {
		if err := srv.Start(); err != nil {
			appLogger.Error("Server failed: %v", err)
			quit <- syscall.SIGTERM
		}
	}()

	// 6. Periodic storage cleanup
	if db != nil {
		go func() {
			ticker := time.NewTicker(6 * time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					db.CleanupOldData()
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	<-quit
	appLogger.Info("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		appLogger.Error("Shutdown error: %v", err)
	}
}
