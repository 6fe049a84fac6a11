package rules

import "github.com/notnil/chess"

// DrawKind names why a position is already drawn.
type DrawKind int

const (
	NotDrawn DrawKind = iota
	Stalemate
	InsufficientMaterial
	Repetition
)

func (k DrawKind) String() string {
	switch k {
	case Stalemate:
		return "stalemate"
	case InsufficientMaterial:
		return "insufficient_material"
	case Repetition:
		return "repetition"
	default:
		return "none"
	}
}

// DetectDraw reports whether the position is a draw the engine need not
// search: stalemate, insufficient material or repetition. Checkmate is not
// a draw and returns NotDrawn.
func DetectDraw(p Position) (DrawKind, error) {
	g, err := p.newGame()
	if err != nil {
		return NotDrawn, err
	}
	if g.Position().Status() == chess.Stalemate {
		return Stalemate, nil
	}
	switch g.Method() {
	case chess.Stalemate:
		return Stalemate, nil
	case chess.InsufficientMaterial:
		return InsufficientMaterial, nil
	case chess.FivefoldRepetition, chess.ThreefoldRepetition:
		return Repetition, nil
	}
	for _, m := range g.EligibleDraws() {
		if m == chess.ThreefoldRepetition {
			return Repetition, nil
		}
	}
	return NotDrawn, nil
}
