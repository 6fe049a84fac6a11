// Package batch evaluates a file of FENs and writes one CSV row per engine
// line.
package batch

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/freeeve/chesseval/internal/eval"
)

// Header is the CSV header row.
var Header = []string{"fen", "line", "uci", "san", "score", "mate", "draw", "depth", "nodes", "time_ms", "error"}

// Searcher is the part of *eval.Analyzer a batch run needs.
type Searcher interface {
	GetBestMoves(ctx context.Context, fen string, req eval.SearchRequest) (eval.SearchResult, error)
}

// Config configures a batch run.
type Config struct {
	Logger        zerolog.Logger
	Request       eval.SearchRequest
	ReadAhead     int // FENs buffered ahead of the searcher (default 64)
	ProgressEvery int // log progress every N positions (default 1000)
}

// Stats summarizes a run.
type Stats struct {
	Positions int64
	Rows      int64
	Failed    int64
	Draws     int64
}

type job struct {
	fen string
	res eval.SearchResult
	err error
}

// Run reads FENs from in, one per line (blank lines and '#' comments are
// skipped), searches each and writes CSV rows to out in input order.
// Per-position failures become error rows; an engine that is not ready
// or a cancelled ctx aborts the run.
func Run(ctx context.Context, cfg Config, s Searcher, in io.Reader, out io.Writer) (Stats, error) {
	if cfg.ReadAhead <= 0 {
		cfg.ReadAhead = 64
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = 1000
	}
	log := cfg.Logger

	var stats Stats
	fens := make(chan string, cfg.ReadAhead)
	done := make(chan job, cfg.ReadAhead)
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(fens)
		sc := bufio.NewScanner(in)
		sc.Buffer(make([]byte, 0, 4096), 64*1024)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			select {
			case fens <- line:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := sc.Err(); err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		defer close(done)
		for fen := range fens {
			res, err := s.GetBestMoves(ctx, fen, cfg.Request)
			if err != nil && fatal(err) {
				return fmt.Errorf("evaluate %q: %w", fen, err)
			}
			select {
			case done <- job{fen: fen, res: res, err: err}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	g.Go(func() error {
		w := csv.NewWriter(out)
		if err := w.Write(Header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		start := time.Now()
		for j := range done {
			rows := toRows(j)
			if err := w.WriteAll(rows); err != nil {
				return fmt.Errorf("write rows: %w", err)
			}
			stats.Positions++
			stats.Rows += int64(len(rows))
			switch {
			case j.err != nil:
				stats.Failed++
				log.Warn().Err(j.err).Str("fen", j.fen).Msg("position failed")
			case j.res.DrawReason != "":
				stats.Draws++
			}
			if stats.Positions%int64(cfg.ProgressEvery) == 0 {
				log.Info().
					Int64("positions", stats.Positions).
					Int64("failed", stats.Failed).
					Dur("elapsed", time.Since(start)).
					Msg("batch progress")
			}
		}
		w.Flush()
		return w.Error()
	})

	err := g.Wait()
	return stats, err
}

// RunAndClose is Run followed by out.Close. A failed close (an encoder that
// cannot flush, a full disk) is an error of the run: the output is truncated.
func RunAndClose(ctx context.Context, cfg Config, s Searcher, in io.Reader, out io.WriteCloser) (Stats, error) {
	stats, err := Run(ctx, cfg, s, in, out)
	if cerr := out.Close(); cerr != nil {
		err = errors.Join(err, fmt.Errorf("close output: %w", cerr))
	}
	return stats, err
}

// fatal reports whether err should stop the whole batch rather than become
// an error row.
func fatal(err error) bool {
	return errors.Is(err, eval.ErrNotReady) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func toRows(j job) [][]string {
	if j.err != nil {
		return [][]string{{j.fen, "", "", "", "", "", "", "", "", "", j.err.Error()}}
	}
	res := j.res
	depth := strconv.Itoa(res.Depth)
	nodes := strconv.FormatInt(res.Nodes, 10)
	timeMs := strconv.Itoa(res.TimeMs)
	if res.DrawReason != "" {
		return [][]string{{j.fen, "0", "", "", "0.00", "", res.DrawReason, depth, nodes, timeMs, ""}}
	}

	rows := make([][]string, 0, len(res.Moves))
	for i, m := range res.Moves {
		var score, mate string
		if m.Score != nil {
			score = strconv.FormatFloat(*m.Score, 'f', 2, 64)
		}
		if m.MateInPlies != nil {
			mate = strconv.Itoa(*m.MateInPlies)
		}
		rows = append(rows, []string{
			j.fen, strconv.Itoa(i + 1), m.UCIMove, m.Algebraic, score, mate, "", depth, nodes, timeMs, "",
		})
	}
	return rows
}
