package eval

import (
	"errors"

	"github.com/freeeve/chesseval/internal/rules"
	"github.com/freeeve/chesseval/internal/uci"
)

// ErrNoEvaluation is returned when the engine finished a search on a
// non-terminal position without reporting any line or score.
var ErrNoEvaluation = errors.New("no evaluation available")

// Aliases so callers of this package need not import rules or uci to match
// errors.
var (
	ErrInvalidPosition = rules.ErrInvalidPosition
	ErrInvalidMove     = rules.ErrInvalidMove
	ErrIllegalMove     = rules.ErrIllegalMove
	ErrNotReady        = uci.ErrNotReady
)
