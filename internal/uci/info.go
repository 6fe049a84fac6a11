package uci

import (
	"fmt"
	"strconv"
	"strings"
)

// ScoreUnit is the unit of an engine score.
type ScoreUnit uint8

const (
	Centipawns ScoreUnit = iota
	Mate
)

func (u ScoreUnit) String() string {
	if u == Mate {
		return "mate"
	}
	return "cp"
}

// Score is an engine score relative to the side to move.
type Score struct {
	Unit       ScoreUnit
	Value      int
	LowerBound bool
	UpperBound bool
}

// InfoField flags which optional fields an info line carried.
type InfoField uint16

const (
	FieldDepth InfoField = 1 << iota
	FieldSelDepth
	FieldTime
	FieldNodes
	FieldMultiPV
	FieldScore
	FieldPV
	FieldString
)

// Info is one "info" line streamed by the engine during a search.
// Fields not present in the line are zero; use Has to tell them apart.
type Info struct {
	Fields   InfoField
	Depth    int
	SelDepth int
	Time     int // milliseconds
	Nodes    int64
	MultiPV  int
	Score    Score
	PV       []string
	String   string // payload of "info string ..."
}

// Has reports whether the line carried field f.
func (i Info) Has(f InfoField) bool {
	return i.Fields&f != 0
}

// LineIndex returns the multipv index, defaulting to 1.
func (i Info) LineIndex() int {
	if !i.Has(FieldMultiPV) || i.MultiPV < 1 {
		return 1
	}
	return i.MultiPV
}

// BestMove is the terminating "bestmove" line of a search.
// Move is empty when the engine had no legal move to report.
type BestMove struct {
	Move   string
	Ponder string
}

// GoParams bounds a search.
type GoParams struct {
	Depth    int // 0 means unbounded
	MoveTime int // milliseconds; 0 means engine default
	Nodes    int64
}

// String formats GoParams as a "go" command suffix.
func (p GoParams) String() string {
	var parts []string
	if p.Depth > 0 {
		parts = append(parts, fmt.Sprintf("depth %d", p.Depth))
	}
	if p.MoveTime > 0 {
		parts = append(parts, fmt.Sprintf("movetime %d", p.MoveTime))
	}
	if p.Nodes > 0 {
		parts = append(parts, fmt.Sprintf("nodes %d", p.Nodes))
	}
	if len(parts) == 0 {
		return "infinite"
	}
	return strings.Join(parts, " ")
}

// ParseInfo parses an "info" line. Unknown tokens and malformed numbers are
// skipped; the affected field is simply reported as absent.
func ParseInfo(line string) Info {
	var info Info
	tokens := strings.Fields(line)
	for i := 0; i < len(tokens); i++ {
		switch tokens[i] {
		case "info":
			continue
		case "depth":
			if n, ok := intAt(tokens, i+1); ok {
				info.Depth = n
				info.Fields |= FieldDepth
			}
			i++
		case "seldepth":
			if n, ok := intAt(tokens, i+1); ok {
				info.SelDepth = n
				info.Fields |= FieldSelDepth
			}
			i++
		case "time":
			if n, ok := intAt(tokens, i+1); ok {
				info.Time = n
				info.Fields |= FieldTime
			}
			i++
		case "nodes":
			if i+1 < len(tokens) {
				if n, err := strconv.ParseInt(tokens[i+1], 10, 64); err == nil {
					info.Nodes = n
					info.Fields |= FieldNodes
				}
			}
			i++
		case "multipv":
			if n, ok := intAt(tokens, i+1); ok {
				info.MultiPV = n
				info.Fields |= FieldMultiPV
			}
			i++
		case "score":
			i = parseScore(tokens, i+1, &info)
		case "pv":
			if i+1 < len(tokens) {
				info.PV = append([]string(nil), tokens[i+1:]...)
				info.Fields |= FieldPV
			}
			return info
		case "string":
			info.String = strings.Join(tokens[i+1:], " ")
			info.Fields |= FieldString
			return info
		case "nps", "hashfull", "tbhits", "cpuload", "currmove", "currmovenumber", "sbhits":
			i++
		}
	}
	return info
}

// parseScore reads "cp|mate <n> [lowerbound|upperbound]" starting at tokens[i]
// and returns the index of the last consumed token.
func parseScore(tokens []string, i int, info *Info) int {
	if i+1 >= len(tokens) {
		return i
	}
	var unit ScoreUnit
	switch tokens[i] {
	case "cp":
		unit = Centipawns
	case "mate":
		unit = Mate
	default:
		return i - 1
	}
	n, err := strconv.Atoi(tokens[i+1])
	if err != nil {
		return i + 1
	}
	info.Score = Score{Unit: unit, Value: n}
	info.Fields |= FieldScore
	last := i + 1
	for last+1 < len(tokens) {
		switch tokens[last+1] {
		case "lowerbound":
			info.Score.LowerBound = true
		case "upperbound":
			info.Score.UpperBound = true
		default:
			return last
		}
		last++
	}
	return last
}

func intAt(tokens []string, i int) (int, bool) {
	if i >= len(tokens) {
		return 0, false
	}
	n, err := strconv.Atoi(tokens[i])
	if err != nil {
		return 0, false
	}
	return n, true
}

// ParseBestMove parses a "bestmove <move> [ponder <move>]" line.
func ParseBestMove(line string) BestMove {
	var bm BestMove
	tokens := strings.Fields(line)
	if len(tokens) >= 2 {
		bm.Move = nullMove(tokens[1])
	}
	if len(tokens) >= 4 && tokens[2] == "ponder" {
		bm.Ponder = nullMove(tokens[3])
	}
	return bm
}

func nullMove(s string) string {
	if s == "(none)" || s == "0000" {
		return ""
	}
	return s
}
