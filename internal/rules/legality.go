package rules

import (
	"errors"

	"github.com/notnil/chess"
)

var (
	knightSteps = [8][2]int{{1, 2}, {2, 1}, {2, -1}, {1, -2}, {-1, -2}, {-2, -1}, {-2, 1}, {-1, 2}}
	kingSteps   = [8][2]int{{1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0}, {-1, -1}, {0, -1}, {1, -1}}
	rookDirs    = [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
	bishopDirs  = [4][2]int{{1, 1}, {1, -1}, {-1, 1}, {-1, -1}}
)

// checkPlacement rejects boards an engine cannot be handed: pawns on the
// first or last rank, or the side not to move standing in check (which
// includes adjacent kings).
func checkPlacement(pos *chess.Position) error {
	squares := pos.Board().SquareMap()
	mover := pos.Turn()

	waiting := chess.NoSquare
	for sq, pc := range squares {
		switch pc.Type() {
		case chess.Pawn:
			if r := sq.Rank(); r == chess.Rank1 || r == chess.Rank8 {
				return errors.New("pawn on " + sq.String())
			}
		case chess.King:
			if pc.Color() != mover {
				waiting = sq
			}
		}
	}
	if waiting != chess.NoSquare && attacked(squares, waiting, mover) {
		return errors.New("side not to move is in check")
	}
	return nil
}

func pieceAt(squares map[chess.Square]chess.Piece, f, r int) (chess.Piece, bool) {
	if f < 0 || f > 7 || r < 0 || r > 7 {
		return chess.NoPiece, false
	}
	pc, ok := squares[chess.NewSquare(chess.File(f), chess.Rank(r))]
	return pc, ok && pc != chess.NoPiece
}

// attacked reports whether any piece of color by attacks target.
func attacked(squares map[chess.Square]chess.Piece, target chess.Square, by chess.Color) bool {
	tf, tr := int(target.File()), int(target.Rank())
	is := func(f, r int, types ...chess.PieceType) bool {
		pc, ok := pieceAt(squares, f, r)
		if !ok || pc.Color() != by {
			return false
		}
		for _, t := range types {
			if pc.Type() == t {
				return true
			}
		}
		return false
	}

	// a white pawn attacks upwards, so it sits one rank below the target
	pawnRank := tr - 1
	if by == chess.Black {
		pawnRank = tr + 1
	}
	if is(tf-1, pawnRank, chess.Pawn) || is(tf+1, pawnRank, chess.Pawn) {
		return true
	}
	for _, s := range knightSteps {
		if is(tf+s[0], tr+s[1], chess.Knight) {
			return true
		}
	}
	for _, s := range kingSteps {
		if is(tf+s[0], tr+s[1], chess.King) {
			return true
		}
	}
	slide := func(dirs [4][2]int, types ...chess.PieceType) bool {
		for _, d := range dirs {
			for f, r := tf+d[0], tr+d[1]; f >= 0 && f <= 7 && r >= 0 && r <= 7; f, r = f+d[0], r+d[1] {
				if _, ok := pieceAt(squares, f, r); ok {
					if is(f, r, types...) {
						return true
					}
					break
				}
			}
		}
		return false
	}
	return slide(rookDirs, chess.Rook, chess.Queen) || slide(bishopDirs, chess.Bishop, chess.Queen)
}
