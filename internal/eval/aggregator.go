package eval

import "github.com/freeeve/chesseval/internal/uci"

// Line is one aggregated alternative.
type Line struct {
	Index int // 1-based multipv index
	Info  uci.Info
	Move  string // first PV move, or the engine's best move for a PV-less line 1
}

// Telemetry is the deepest depth and the last nodes and time reported on
// info lines that carry a score or a PV.
type Telemetry struct {
	Depth    int
	Nodes    int64
	TimeMs   int
	HasDepth bool
	HasNodes bool
	HasTime  bool
}

// Aggregator keeps the deepest info line per multipv index for one search.
type Aggregator struct {
	lines []uci.Info
	set   []bool

	last    uci.Info
	hasLast bool
	tel     Telemetry
}

// NewAggregator returns an aggregator for numLines alternatives. Lines with
// an index above numLines are dropped.
func NewAggregator(numLines int) *Aggregator {
	if numLines < 1 {
		numLines = 1
	}
	return &Aggregator{
		lines: make([]uci.Info, numLines),
		set:   make([]bool, numLines),
	}
}

// Add consumes one streamed info line.
func (a *Aggregator) Add(info uci.Info) {
	a.last, a.hasLast = info, true
	if !info.Has(uci.FieldPV) && !info.Has(uci.FieldScore) {
		return
	}

	// currmove and string lines are skipped above: a search cut off by
	// movetime announces the next depth before it has a line for it.
	if info.Has(uci.FieldDepth) && (!a.tel.HasDepth || info.Depth > a.tel.Depth) {
		a.tel.Depth, a.tel.HasDepth = info.Depth, true
	}
	if info.Has(uci.FieldNodes) {
		a.tel.Nodes, a.tel.HasNodes = info.Nodes, true
	}
	if info.Has(uci.FieldTime) {
		a.tel.TimeMs, a.tel.HasTime = info.Time, true
	}

	i := info.LineIndex() - 1
	if i >= len(a.lines) {
		return
	}
	// equal depth replaces: the later update at a depth is the complete one
	if !a.set[i] || info.Depth >= a.lines[i].Depth {
		a.lines[i] = info
		a.set[i] = true
	}
}

// Telemetry returns the last-seen search statistics.
func (a *Aggregator) Telemetry() Telemetry {
	return a.tel
}

// Lines returns the aggregated alternatives in index order. When nothing was
// aggregated but the engine still named a best move, a single line is
// synthesized from the last raw line and that move.
func (a *Aggregator) Lines(best uci.BestMove) []Line {
	var out []Line
	for i, ok := range a.set {
		if !ok {
			continue
		}
		info := a.lines[i]
		l := Line{Index: i + 1, Info: info}
		switch {
		case len(info.PV) > 0:
			l.Move = info.PV[0]
		case i == 0:
			l.Move = best.Move
		}
		out = append(out, l)
	}
	if len(out) == 0 && best.Move != "" {
		l := Line{Index: 1, Move: best.Move}
		if a.hasLast {
			l.Info = a.last
		}
		out = append(out, l)
	}
	return out
}
