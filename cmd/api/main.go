package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/terminally-online/snowreport/internal/api"
	"github.com/terminally-online/snowreport/internal/config"
	"github.com/terminally-online/snowreport/internal/logging"
	"github.com/terminally-online/snowreport/internal/reports"
	"github.com/terminally-online/snowreport/internal/summary"
)

func main() {
	if err := config.LoadEnvFiles(".env"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	port := getEnv("PORT", "8080")
	configPath := getEnv("SNOWREPORT_CONFIG", "snowreport.yaml")
	cacheTTL := getEnvDuration("CACHE_TTL", 30*time.Minute)
	cacheMaxSize := getEnvInt("CACHE_MAX_SIZE", 100)
	rateLimit := getEnvInt("RATE_LIMIT", 30)
	rateBurst := getEnvInt("RATE_BURST", 5)
	requestTimeout := getEnvDuration("REQUEST_TIMEOUT", 15*time.Minute)
	maxRuns := getEnvInt("MAX_CONCURRENT_RUNS", 2)
	allowedOrigins := getEnv("ALLOWED_ORIGINS", "*")

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.GetLogLevel(nil), cfg.GetLogFormat(nil))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn, err := cfg.GetConnection(nil)
	if err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	src, d, err := reports.Open(ctx, conn, log)
	if err != nil {
		log.Fatal("failed to open catalog source", zap.Error(err))
	}
	defer func() { _ = src.Close() }()

	svc := reports.NewService(src, d, log, reports.Options{
		Summary: summary.Options{
			Concurrency: cfg.GetConcurrentTasks(nil),
			Timeout:     cfg.GetTimeout(nil),
		},
		RootRoles: cfg.GetRootRoles(nil),
	})

	cache := api.NewReportCache(cacheTTL, cacheMaxSize)
	defer cache.Close()
	limiter := api.NewRateLimiter(rateLimit, rateBurst)
	defer limiter.Close()
	handler := api.NewHandler(svc, api.NewRunPool(maxRuns), cache, limiter, requestTimeout, log)

	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins: strings.Split(allowedOrigins, ","),
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		ExposedHeaders: []string{"X-Cache", "X-Run-ID", "X-RateLimit-Remaining"},
		MaxAge:         86400,
	})

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      corsHandler(handler),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: requestTimeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("starting API server",
			zap.String("port", port),
			zap.String("dialect", d.Name()),
			zap.Int("max_concurrent_runs", maxRuns),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", zap.Error(err))
	}

	log.Info("server stopped")
}

func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &config.Config{}, nil
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func init() {
	fmt.Println(`
  ___ _ __   _____      ___ __ ___ _ __   ___  _ __| |_
 / __| '_ \ / _ \ \ /\ / / '__/ _ \ '_ \ / _ \| '__| __|
 \__ \ | | | (_) \ V  V /| | |  __/ |_) | (_) | |  | |_
 |___/_| |_|\___/ \_/\_/ |_|  \___| .__/ \___/|_|   \__|
                                  |_|         Report API`)
}
