package eval

import (
	"encoding/json"
	"math"
)

// SearchRequest bounds a multi-line search. Zero values take the Analyzer's
// defaults.
type SearchRequest struct {
	Depth       int `json:"depth,omitempty"`
	NumLines    int `json:"numLines,omitempty"`
	TimeLimitMs int `json:"timeLimitMs,omitempty"`
}

// BestMove is one engine alternative, scored White-positive.
type BestMove struct {
	UCIMove     string   `json:"uciMove"`
	Algebraic   string   `json:"algebraic"`
	Score       *float64 `json:"score"`       // pawns; nil for mate or when the engine gave no score
	MateInPlies *int     `json:"mateInPlies"` // positive: White mates
	IsDraw      bool     `json:"isDraw"`

	value    float64 // pawns, or ±Inf for mate
	hasValue bool
}

// SearchResult is the outcome of GetBestMoves.
type SearchResult struct {
	Moves    []BestMove `json:"moves"`
	Position string     `json:"position"`
	Depth    int        `json:"depth"`
	Nodes    int64      `json:"nodes"`
	TimeMs   int        `json:"timeMs"`

	// DrawReason is set when the position was a known draw and the engine
	// was not consulted.
	DrawReason string `json:"drawReason,omitempty"`
}

// EvaluationResult is the single-line view returned by Evaluate.
type EvaluationResult struct {
	Score       float64 `json:"score"` // ±Inf for mate
	IsMate      bool    `json:"isMate"`
	MateInPlies *int    `json:"mateInPlies,omitempty"`
	IsDraw      bool    `json:"isDraw"`
	BestMove    string  `json:"bestMove,omitempty"`
}

// MarshalJSON writes infinite scores as the strings "Infinity" and
// "-Infinity"; encoding/json rejects them as numbers.
func (r EvaluationResult) MarshalJSON() ([]byte, error) {
	type plain EvaluationResult
	out := struct {
		plain
		Score any `json:"score"`
	}{plain: plain(r), Score: r.Score}
	switch {
	case math.IsInf(r.Score, 1):
		out.Score = "Infinity"
	case math.IsInf(r.Score, -1):
		out.Score = "-Infinity"
	}
	return json.Marshal(out)
}

// PlayRequest applies a move and optionally evaluates the result.
type PlayRequest struct {
	FEN      string `json:"fen"` // empty means PGN, then the starting position
	PGN      string `json:"pgn,omitempty"`
	Move     string `json:"move"`
	Evaluate bool   `json:"evaluate"`
	Depth    int    `json:"depth,omitempty"`
}

// PlayResult is the position after PlayRequest.Move.
type PlayResult struct {
	Move       string            `json:"move"`
	Algebraic  string            `json:"algebraic"`
	FEN        string            `json:"fen"`
	Evaluation *EvaluationResult `json:"evaluation,omitempty"`
}
