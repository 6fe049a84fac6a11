package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/freeeve/chesseval/internal/batch"
	"github.com/freeeve/chesseval/internal/eval"
	"github.com/freeeve/chesseval/internal/logx"
	"github.com/freeeve/chesseval/internal/uci"
)

func main() {
	defaultStockfish := "stockfish"
	if envPath := os.Getenv("STOCKFISH_PATH"); envPath != "" {
		defaultStockfish = envPath
	}

	var (
		inputPath     = flag.String("input", "-", "FEN list, one per line (.zst and .gz are decompressed, - for stdin)")
		outputPath    = flag.String("output", "-", "output CSV (.zst is compressed, - for stdout)")
		stockfishPath = flag.String("stockfish", defaultStockfish, "path to a UCI engine executable")
		depth         = flag.Int("depth", 20, "search depth")
		lines         = flag.Int("lines", 1, "lines per position")
		timeMs        = flag.Int("time", 1000, "search time limit per position in ms")
		progress      = flag.Int("progress", 1000, "log progress every N positions")
		logLevel      = flag.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	)
	flag.Parse()

	logger := logx.NewLogger(*logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	in, err := batch.OpenInput(*inputPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("open input")
	}
	defer in.Close()

	out, err := batch.CreateOutput(*outputPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("create output")
	}

	engine := uci.NewEngine(uci.Config{
		Path:   *stockfishPath,
		Logger: logger.With().Str("component", "engine").Logger(),
	})
	if err := engine.Init(ctx); err != nil {
		logger.Fatal().Err(err).Str("path", *stockfishPath).Msg("start engine")
	}

	analyzer := eval.NewAnalyzer(engine, eval.AnalyzerConfig{Logger: logger})
	start := time.Now()
	stats, runErr := batch.RunAndClose(ctx, batch.Config{
		Logger:        logger,
		Request:       eval.SearchRequest{Depth: *depth, NumLines: *lines, TimeLimitMs: *timeMs},
		ProgressEvery: *progress,
	}, analyzer, in, out)

	quitCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := engine.Quit(quitCtx); err != nil {
		logger.Warn().Err(err).Msg("engine quit error")
	}

	ev := logger.Info()
	if runErr != nil {
		ev = logger.Error().Err(runErr)
	}
	ev.Int64("positions", stats.Positions).
		Int64("rows", stats.Rows).
		Int64("failed", stats.Failed).
		Int64("draws", stats.Draws).
		Dur("elapsed", time.Since(start)).
		Msg("batch finished")
	if runErr != nil {
		os.Exit(1)
	}
}
