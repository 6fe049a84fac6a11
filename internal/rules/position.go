// Package rules answers the chess-rules questions the evaluator needs
// (FEN validity, side to move, terminal draws, move legality and SAN)
// by delegating to github.com/notnil/chess.
package rules

import (
	"errors"
	"fmt"
	"strings"

	"github.com/notnil/chess"
)

var (
	ErrInvalidPosition = errors.New("invalid position")
	ErrInvalidMove     = errors.New("invalid move")
	ErrIllegalMove     = errors.New("illegal move")
)

// StartFEN is the standard initial position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// Side is the color to move.
type Side int8

const (
	White Side = iota
	Black
)

func (s Side) String() string {
	if s == Black {
		return "black"
	}
	return "white"
}

// Position is a validated FEN. It is a value: every query replays the FEN
// into a fresh game, so trial moves never leak between callers.
type Position struct {
	FEN        string
	SideToMove Side
}

// ParsePosition validates fen. A FEN without the halfmove and fullmove
// counters is accepted and completed with "0 1". Boards with pawns on the
// back ranks or with the side not to move in check are rejected.
func ParsePosition(fen string) (Position, error) {
	fen = strings.Join(strings.Fields(fen), " ")
	if fen == "" {
		return Position{}, fmt.Errorf("%w: empty FEN", ErrInvalidPosition)
	}
	if n := len(strings.Fields(fen)); n == 4 {
		fen += " 0 1"
	}

	board, _, _ := strings.Cut(fen, " ")
	if w, b := strings.Count(board, "K"), strings.Count(board, "k"); w != 1 || b != 1 {
		return Position{}, fmt.Errorf("%w: %q: want one king per side, have %d white and %d black",
			ErrInvalidPosition, fen, w, b)
	}

	opt, err := chess.FEN(fen)
	if err != nil {
		return Position{}, fmt.Errorf("%w: %q: %v", ErrInvalidPosition, fen, err)
	}
	pos := chess.NewGame(opt).Position()
	if err := checkPlacement(pos); err != nil {
		return Position{}, fmt.Errorf("%w: %q: %v", ErrInvalidPosition, fen, err)
	}

	side := White
	if pos.Turn() == chess.Black {
		side = Black
	}
	return Position{FEN: fen, SideToMove: side}, nil
}

// newGame replays the FEN into a new game. The FEN was validated by
// ParsePosition, so failure here means the Position was built by hand.
func (p Position) newGame() (*chess.Game, error) {
	opt, err := chess.FEN(p.FEN)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidPosition, p.FEN, err)
	}
	return chess.NewGame(opt), nil
}

// LegalMoves returns the legal moves in UCI notation.
func (p Position) LegalMoves() ([]string, error) {
	g, err := p.newGame()
	if err != nil {
		return nil, err
	}
	valid := g.ValidMoves()
	out := make([]string, 0, len(valid))
	for _, m := range valid {
		out = append(out, m.String())
	}
	return out, nil
}

// PositionFromPGN replays pgn (tag pairs optional, any move notation the
// rules library decodes) and returns the final position.
func PositionFromPGN(pgn string) (Position, error) {
	opt, err := chess.PGN(strings.NewReader(pgn))
	if err != nil {
		return Position{}, fmt.Errorf("%w: pgn: %v", ErrInvalidPosition, err)
	}
	return ParsePosition(chess.NewGame(opt).FEN())
}
