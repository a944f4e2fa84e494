package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"deribit-gateway/src/analytics"
	"deribit-gateway/src/cache"
	"deribit-gateway/src/config"
	"deribit-gateway/src/helpers"
	"deribit-gateway/src/limiter"
	"deribit-gateway/src/logger"
	"deribit-gateway/src/tools"
	"deribit-gateway/src/upstream"
	"deribit-gateway/src/utils"
)

// Manual smoke harness: builds the full component stack against the live
// public API and invokes a few tools, printing the payloads. Not part of
// the automated tests.
func main() {
	configPath := flag.String("config", "../../config/default.yaml", "path to config file")
	toolName := flag.String("tool", "deribit_status", "tool to invoke")
	argsJSON := flag.String("args", `{"currency":"BTC"}`, "tool arguments as JSON")
	flag.Parse()

	conf, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	appLogger := logger.NewLogger("debug", conf.Name)

	lim := limiter.NewLimiter(
		conf.RateLimit.Capacity,
		conf.RateLimit.RefillPerSec,
		time.Duration(conf.RateLimit.MaxWaitMillis)*time.Millisecond,
	)
	ttlCache := cache.NewTTLCache(
		time.Duration(conf.Cache.FastTTLSeconds)*time.Second,
		time.Duration(conf.Cache.SlowTTLSeconds)*time.Second,
		conf.Cache.MaxEntries,
	)
	client := upstream.NewClient(conf, lim, ttlCache, appLogger)
	engine := analytics.NewEngine(conf.Analytics.ContractSize)

	registry, err := tools.NewRegistry(&tools.Deps{
		Client: client,
		Engine: engine,
		Config: conf,
		Logger: appLogger,
		Ring:   utils.NewMetricsRing(64),
	})
	if err != nil {
		appLogger.Critical("Failed to build registry: %v", err)
	}

	fmt.Println("Registered tools:")
	for _, d := range registry.List() {
		fmt.Printf("  %s - %s\n", d.Name, d.Description)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := helpers.RetryWithBackoff(*toolName, 3, time.Second, func() (interface{}, error) {
		return registry.Invoke(ctx, *toolName, json.RawMessage(*argsJSON))
	})
	if err != nil {
		appLogger.Critical("Invoke failed: %v", err)
	}
	fmt.Printf("\n%s -> %s\n", *toolName, result.(json.RawMessage))

	stats := client.GetCacheStats()
	fmt.Printf("\ncache: %d entries, %d hits, %d misses\n", stats.Entries, stats.Hits, stats.Misses)
}
