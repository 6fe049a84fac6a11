// Package eval turns raw engine output into application results: it
// normalizes scores to White's point of view, aggregates multipv lines and
// coordinates complete evaluation requests against a shared engine.
package eval

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/freeeve/chesseval/internal/rules"
	"github.com/freeeve/chesseval/internal/uci"
)

// MaxLines caps SearchRequest.NumLines.
const MaxLines = 500

// Engine is the part of *uci.Engine the Analyzer needs.
type Engine interface {
	Do(ctx context.Context, fn func(uci.Commander) error) error
}

// AnalyzerConfig configures an Analyzer.
type AnalyzerConfig struct {
	Logger             zerolog.Logger
	DefaultDepth       int // default 20
	DefaultLines       int // default 3
	DefaultTimeLimitMs int // default 1000
	CacheSize          int // 0 disables the result cache
}

// Analyzer coordinates evaluation requests against one engine.
type Analyzer struct {
	cfg    AnalyzerConfig
	log    zerolog.Logger
	engine Engine
	cache  *ResultCache
}

// NewAnalyzer creates an Analyzer. The engine must be initialized by the
// caller; requests fail with ErrNotReady until it is.
func NewAnalyzer(engine Engine, cfg AnalyzerConfig) *Analyzer {
	if cfg.DefaultDepth <= 0 {
		cfg.DefaultDepth = 20
	}
	if cfg.DefaultLines <= 0 {
		cfg.DefaultLines = 3
	}
	if cfg.DefaultTimeLimitMs <= 0 {
		cfg.DefaultTimeLimitMs = 1000
	}
	return &Analyzer{
		cfg:    cfg,
		log:    cfg.Logger.With().Str("component", "analyzer").Logger(),
		engine: engine,
		cache:  NewResultCache(cfg.CacheSize),
	}
}

func (a *Analyzer) withDefaults(req SearchRequest) SearchRequest {
	if req.Depth <= 0 {
		req.Depth = a.cfg.DefaultDepth
	}
	if req.NumLines <= 0 {
		req.NumLines = a.cfg.DefaultLines
	}
	if req.NumLines > MaxLines {
		req.NumLines = MaxLines
	}
	if req.TimeLimitMs <= 0 {
		req.TimeLimitMs = a.cfg.DefaultTimeLimitMs
	}
	return req
}

// GetBestMoves searches fen for up to req.NumLines alternatives. Known draws
// return an empty move list without touching the engine.
func (a *Analyzer) GetBestMoves(ctx context.Context, fen string, req SearchRequest) (SearchResult, error) {
	pos, err := rules.ParsePosition(fen)
	if err != nil {
		return SearchResult{}, err
	}

	draw, err := rules.DetectDraw(pos)
	if err != nil {
		return SearchResult{}, err
	}
	if draw != rules.NotDrawn {
		a.log.Debug().Str("fen", fen).Stringer("draw", draw).Msg("terminal position, engine skipped")
		return SearchResult{Moves: []BestMove{}, Position: fen, DrawReason: draw.String()}, nil
	}

	req = a.withDefaults(req)
	if res, ok := a.cache.Get(pos.FEN, req); ok {
		res.Position = fen
		return res, nil
	}

	start := time.Now()
	agg := NewAggregator(req.NumLines)
	var best uci.BestMove
	err = a.engine.Do(ctx, func(c uci.Commander) error {
		if err := c.SetOption(ctx, "MultiPV", strconv.Itoa(req.NumLines)); err != nil {
			return fmt.Errorf("set MultiPV: %w", err)
		}
		if err := c.SetPosition(ctx, pos.FEN); err != nil {
			return fmt.Errorf("set position: %w", err)
		}
		var err error
		best, err = c.Search(ctx, uci.GoParams{Depth: req.Depth, MoveTime: req.TimeLimitMs}, agg.Add)
		if err != nil {
			return fmt.Errorf("search: %w", err)
		}
		return nil
	})
	if err != nil {
		return SearchResult{}, err
	}

	lines := agg.Lines(best)
	if len(lines) == 0 {
		return SearchResult{}, fmt.Errorf("%w: %s", ErrNoEvaluation, fen)
	}

	res := SearchResult{
		Moves:    make([]BestMove, 0, len(lines)),
		Position: fen,
		Depth:    req.Depth,
	}
	for _, l := range lines {
		res.Moves = append(res.Moves, toBestMove(pos, l))
	}
	tel := agg.Telemetry()
	if tel.HasDepth {
		res.Depth = tel.Depth
	}
	res.Nodes = tel.Nodes
	res.TimeMs = tel.TimeMs

	a.log.Debug().
		Str("fen", fen).
		Int("lines", len(res.Moves)).
		Int("depth", res.Depth).
		Int64("nodes", res.Nodes).
		Dur("dur", time.Since(start)).
		Msg("search complete")

	a.cache.Put(pos.FEN, req, res)
	return res, nil
}

// toBestMove scores and translates one line. SAN is computed against the
// original position for every line.
func toBestMove(pos rules.Position, l Line) BestMove {
	bm := BestMove{UCIMove: l.Move}
	if l.Move != "" {
		bm.Algebraic = pos.SAN(l.Move)
	}
	if !l.Info.Has(uci.FieldScore) {
		return bm
	}
	n := NormalizeScore(l.Info.Score, pos.SideToMove)
	bm.value, bm.hasValue = n.Pawns, true
	if n.IsMate {
		m := n.Mate
		bm.MateInPlies = &m
	} else {
		p := n.Pawns
		bm.Score = &p
	}
	return bm
}

// Evaluate returns the single best line of fen as an EvaluationResult.
func (a *Analyzer) Evaluate(ctx context.Context, fen string, depth int) (EvaluationResult, error) {
	res, err := a.GetBestMoves(ctx, fen, SearchRequest{Depth: depth, NumLines: 1})
	if err != nil {
		return EvaluationResult{}, err
	}
	if res.DrawReason != "" {
		return EvaluationResult{IsDraw: true}, nil
	}
	first := res.Moves[0]
	if !first.hasValue {
		return EvaluationResult{}, fmt.Errorf("%w: engine reported no score for %s", ErrNoEvaluation, fen)
	}
	return EvaluationResult{
		Score:       first.value,
		IsMate:      first.MateInPlies != nil,
		MateInPlies: first.MateInPlies,
		BestMove:    first.UCIMove,
	}, nil
}

// PlayMove applies req.Move to req.FEN, else to the final position of
// req.PGN, else to the starting position, and optionally evaluates the
// resulting position.
func (a *Analyzer) PlayMove(ctx context.Context, req PlayRequest) (PlayResult, error) {
	var (
		pos rules.Position
		err error
	)
	switch {
	case req.FEN != "":
		pos, err = rules.ParsePosition(req.FEN)
	case req.PGN != "":
		pos, err = rules.PositionFromPGN(req.PGN)
	default:
		pos, err = rules.ParsePosition(rules.StartFEN)
	}
	if err != nil {
		return PlayResult{}, err
	}
	fen := pos.FEN
	mv, err := pos.Play(req.Move)
	if err != nil {
		return PlayResult{}, err
	}

	out := PlayResult{Move: mv.UCI, Algebraic: mv.SAN, FEN: mv.FEN}
	if req.Evaluate {
		ev, err := a.Evaluate(ctx, mv.FEN, req.Depth)
		if err != nil {
			return PlayResult{}, fmt.Errorf("evaluate after %s: %w", mv.UCI, err)
		}
		out.Evaluation = &ev
	}
	a.log.Debug().Str("fen", fen).Str("move", mv.SAN).Bool("evaluated", req.Evaluate).Msg("move played")
	return out, nil
}
