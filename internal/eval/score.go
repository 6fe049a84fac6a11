package eval

import (
	"math"

	"github.com/freeeve/chesseval/internal/rules"
	"github.com/freeeve/chesseval/internal/uci"
)

// Normalized is an engine score converted to White's point of view.
type Normalized struct {
	Pawns  float64 // ±Inf when IsMate
	Mate   int     // plies to mate, positive when White mates
	IsMate bool
}

// NormalizeScore converts a side-to-move score into the White-positive
// convention. Centipawns become pawns. Mate distances keep their magnitude.
// "mate 0" means the side to move is already mated.
func NormalizeScore(s uci.Score, side rules.Side) Normalized {
	sign := 1
	if side == rules.Black {
		sign = -1
	}
	if s.Unit == uci.Mate {
		m := s.Value * sign
		v := math.Inf(1)
		if m < 0 || (m == 0 && side == rules.White) {
			v = math.Inf(-1)
		}
		return Normalized{Pawns: v, Mate: m, IsMate: true}
	}
	return Normalized{Pawns: float64(s.Value*sign) / 100}
}
