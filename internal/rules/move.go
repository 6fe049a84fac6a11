package rules

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/notnil/chess"
)

var uciMoveRE = regexp.MustCompile(`^[a-h][1-8][a-h][1-8][qrbnQRBN]?$`)

// ValidUCIMove reports whether s is syntactically a UCI coordinate move.
func ValidUCIMove(s string) bool {
	return uciMoveRE.MatchString(s)
}

// SAN translates a UCI move into standard algebraic notation. If the move is
// not legal in p the UCI string is returned unchanged.
func (p Position) SAN(uci string) string {
	g, err := p.newGame()
	if err != nil {
		return uci
	}
	m := findMove(g, uci)
	if m == nil {
		return uci
	}
	return chess.AlgebraicNotation{}.Encode(g.Position(), m)
}

// MoveResult is a move applied to a position.
type MoveResult struct {
	UCI string
	SAN string
	FEN string // position after the move
}

// Play applies a UCI move to a fresh copy of p.
func (p Position) Play(uci string) (MoveResult, error) {
	if !ValidUCIMove(uci) {
		return MoveResult{}, fmt.Errorf("%w: %q is not a UCI move", ErrInvalidMove, uci)
	}
	g, err := p.newGame()
	if err != nil {
		return MoveResult{}, err
	}
	m := findMove(g, uci)
	if m == nil {
		return MoveResult{}, fmt.Errorf("%w: %s in %s", ErrIllegalMove, uci, p.FEN)
	}
	san := chess.AlgebraicNotation{}.Encode(g.Position(), m)
	if err := g.Move(m); err != nil {
		return MoveResult{}, fmt.Errorf("%w: %s: %v", ErrIllegalMove, uci, err)
	}
	return MoveResult{UCI: m.String(), SAN: san, FEN: g.FEN()}, nil
}

// findMove matches uci against the legal moves. The promotion letter may
// arrive upper case; squares are always lower case.
func findMove(g *chess.Game, uci string) *chess.Move {
	if len(uci) == 5 {
		uci = uci[:4] + strings.ToLower(uci[4:])
	}
	for _, m := range g.ValidMoves() {
		if m.String() == uci {
			return m
		}
	}
	return nil
}
