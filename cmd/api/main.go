package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/freeeve/chesseval/internal/eval"
	"github.com/freeeve/chesseval/internal/httpapi"
	"github.com/freeeve/chesseval/internal/logx"
	"github.com/freeeve/chesseval/internal/uci"
)

func main() {
	defaultStockfish := "stockfish"
	if envPath := os.Getenv("STOCKFISH_PATH"); envPath != "" {
		defaultStockfish = envPath
	}

	var (
		// Server
		addr           = flag.String("addr", ":8007", "listen address")
		requestTimeout = flag.Duration("request-timeout", 30*time.Second, "per-request bound, including queueing for the engine (0 = none)")
		logLevel       = flag.String("log-level", "info", "log level (trace, debug, info, warn, error)")

		// Engine
		stockfishPath = flag.String("stockfish", defaultStockfish, "path to a UCI engine executable")
		threads       = flag.Int("threads", 0, "engine Threads option (0 = engine default)")
		hashMB        = flag.Int("hash", 0, "engine Hash option in MB (0 = engine default)")

		// Search defaults
		depth     = flag.Int("depth", 20, "default search depth")
		lines     = flag.Int("lines", 3, "default number of lines")
		timeMs    = flag.Int("time", 1000, "default search time limit in ms")
		cacheSize = flag.Int("cache", 0, "result cache entries (0 = disabled)")
	)
	flag.Parse()

	logger := logx.NewLogger(*logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine := uci.NewEngine(uci.Config{
		Path:   *stockfishPath,
		Logger: logger.With().Str("component", "engine").Logger(),
	})
	if err := engine.Init(ctx); err != nil {
		logger.Fatal().Err(err).Str("path", *stockfishPath).Msg("start engine")
	}
	if err := applyEngineOptions(ctx, logger, engine, *threads, *hashMB); err != nil {
		logger.Fatal().Err(err).Msg("configure engine")
	}

	analyzer := eval.NewAnalyzer(engine, eval.AnalyzerConfig{
		Logger:             logger,
		DefaultDepth:       *depth,
		DefaultLines:       *lines,
		DefaultTimeLimitMs: *timeMs,
		CacheSize:          *cacheSize,
	})

	srv := &http.Server{
		Addr:         *addr,
		Handler:      httpapi.NewRouter(logger, analyzer, engine, *requestTimeout),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: *requestTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("api listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("api server")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown HTTP server first so no search is in flight when the engine quits
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http server shutdown error")
	}
	if err := engine.Quit(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("engine quit error")
	}
	logger.Info().Msg("shutdown complete")
}

// applyEngineOptions sets Threads and Hash when non-zero.
func applyEngineOptions(ctx context.Context, log zerolog.Logger, e *uci.Engine, threads, hashMB int) error {
	if threads > 0 {
		if err := e.SetOption(ctx, "Threads", strconv.Itoa(threads)); err != nil {
			return err
		}
		log.Debug().Int("threads", threads).Msg("engine option set")
	}
	if hashMB > 0 {
		if err := e.SetOption(ctx, "Hash", strconv.Itoa(hashMB)); err != nil {
			return err
		}
		log.Debug().Int("hash_mb", hashMB).Msg("engine option set")
	}
	return nil
}
