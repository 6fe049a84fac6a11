// Package ucitest provides a scripted UCI engine that runs inside the test
// binary. A test package calls RunIfHelper from TestMain; when the binary is
// re-executed with EnvVar set it speaks UCI on stdin/stdout instead of
// running tests.
//
//	func TestMain(m *testing.M) {
//		ucitest.RunIfHelper()
//		os.Exit(m.Run())
//	}
package ucitest

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// EnvVar selects the fake engine mode when set in the child environment.
const EnvVar = "UCITEST_FAKE_ENGINE"

// Modes.
const (
	ModeNormal = "1"
	ModeSilent = "silent" // reads input but never answers
	ModeCrash  = "crash"  // exits right after reading "uci"
)

// Positions with scripted answers. Any other position gets the start script.
const (
	StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

	// White mates with Qxf7#.
	ScholarFEN = "r1bqkb1r/pppp1ppp/2n2n2/4p2Q/2B1P3/8/PPPP1PPP/RNB1K1NR w KQkq - 0 4"
	// Engine reports cp -35 for Black; White-positive +0.35.
	AfterE4FEN = "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1"
	// Black mates with Qh4#.
	FoolsMateFEN = "rnbqkbnr/pppp1ppp/8/4p3/6P1/5P2/PPPPP2P/RNBQKBNR b KQkq g3 0 2"
	// White is already mated.
	MatedFEN = "rnb1kbnr/pppp1ppp/8/4p3/6Pq/5P2/PPPPP2P/RNBQKBNR w KQkq - 1 3"
	// Only an info string, then a best move.
	SilentFEN = "4k3/8/8/8/8/8/4P3/4K3 w - - 0 1"
	// No info at all and no best move.
	EmptyFEN = "4k3/8/8/8/8/8/3P4/4K3 w - - 0 1"
	// The engine exits on "go".
	CrashFEN = "4k3/8/8/8/8/8/3PP3/4K3 w - - 0 1"
	// The engine searches until "stop".
	InfiniteFEN = "4k3/8/8/8/8/8/4PP2/4K3 w - - 0 1"
	// The engine ignores "stop" and never answers.
	HangFEN = "4k3/8/8/8/8/8/5P2/4K3 w - - 0 1"
)

// StalemateFEN and BareKingsFEN are draws the engine must never see.
const (
	StalemateFEN = "k7/8/1Q6/8/8/8/8/K7 b - - 0 1"
	BareKingsFEN = "k7/8/8/8/8/8/8/K7 w - - 0 1"
)

// Command returns the binary path and extra environment that start the fake
// engine in the given mode.
func Command(mode string) (path string, env []string) {
	if mode == "" {
		mode = ModeNormal
	}
	return os.Args[0], []string{EnvVar + "=" + mode}
}

// RunIfHelper turns the current process into the fake engine when EnvVar is
// set, and exits. Otherwise it returns immediately.
func RunIfHelper() {
	mode := os.Getenv(EnvVar)
	if mode == "" {
		return
	}
	os.Exit(Serve(mode, os.Stdin, os.Stdout))
}

// Serve runs the fake engine on the given streams and returns an exit code.
func Serve(mode string, in io.Reader, out io.Writer) int {
	f := &fake{mode: mode, out: bufio.NewWriter(out), multiPV: 1}
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		if code, done := f.handle(strings.TrimSpace(sc.Text())); done {
			return code
		}
		f.out.Flush()
	}
	return 0
}

type fake struct {
	mode      string
	out       *bufio.Writer
	multiPV   int
	fen       string
	searching bool
}

func (f *fake) println(format string, args ...any) {
	fmt.Fprintf(f.out, format+"\n", args...)
}

func (f *fake) handle(line string) (int, bool) {
	if f.mode == ModeSilent {
		return 0, line == "quit"
	}
	cmd, rest, _ := strings.Cut(line, " ")
	switch cmd {
	case "uci":
		if f.mode == ModeCrash {
			return 3, true
		}
		f.println("id name FakeFish 1.0")
		f.println("id author ucitest")
		f.println("option name MultiPV type spin default 1 min 1 max 500")
		f.println("uciok")
	case "isready":
		f.println("readyok")
	case "setoption":
		// setoption name MultiPV value N
		fields := strings.Fields(rest)
		if len(fields) == 4 && fields[1] == "MultiPV" {
			if n, err := strconv.Atoi(fields[3]); err == nil && n > 0 {
				f.multiPV = n
			}
		}
	case "position":
		switch {
		case rest == "startpos":
			f.fen = StartFEN
		case strings.HasPrefix(rest, "fen "):
			f.fen = strings.TrimPrefix(rest, "fen ")
		}
	case "go":
		f.searching = true
		return f.search()
	case "stop":
		if f.searching && f.fen == InfiniteFEN {
			f.println("info depth 5 score cp 12 nodes 5000 time 50 pv e2e4")
			f.println("bestmove e2e4")
			f.searching = false
		}
	case "quit":
		return 0, true
	}
	return 0, false
}

func (f *fake) search() (int, bool) {
	switch f.fen {
	case ScholarFEN:
		f.println("info depth 1 seldepth 1 multipv 1 score mate 1 nodes 40 time 1 pv h5f7")
		f.println("bestmove h5f7")
	case AfterE4FEN:
		f.println("info depth 1 multipv 1 score cp -35 nodes 20 time 1 pv e7e5")
		f.println("bestmove e7e5")
	case FoolsMateFEN:
		f.println("info depth 1 multipv 1 score mate 1 nodes 30 time 1 pv d8h4")
		f.println("bestmove d8h4")
	case MatedFEN:
		f.println("info depth 0 score mate 0")
		f.println("bestmove (none)")
	case SilentFEN:
		f.println("info string NNUE evaluation using nn-test.nnue")
		f.println("bestmove e2e4")
	case EmptyFEN:
		f.println("bestmove (none)")
	case CrashFEN:
		f.out.Flush()
		return 4, true
	case InfiniteFEN:
		f.println("info depth 1 score cp 10 nodes 100 time 1 pv e2e4")
		return 0, false
	case HangFEN:
		return 0, false
	default:
		f.startScript()
	}
	f.searching = false
	return 0, false
}

// startScript emits three depths of up to three lines each. At depth 2 the
// first line is preceded by an upperbound update the exact one replaces.
func (f *fake) startScript() {
	moves := []struct {
		uci string
		cp  int
	}{{"e2e4", 30}, {"d2d4", 25}, {"g1f3", 20}}
	n := min(f.multiPV, len(moves))

	f.println("info string NNUE evaluation using nn-test.nnue")
	for d := 1; d <= 3; d++ {
		for k := 1; k <= n; k++ {
			m := moves[k-1]
			if d == 2 && k == 1 {
				f.println("info depth %d seldepth %d multipv %d score cp %d upperbound nodes %d nps 100000 time %d pv %s",
					d, d+1, k, m.cp+50, 1000*d, 10*d, m.uci)
			}
			f.println("info depth %d seldepth %d multipv %d score cp %d nodes %d nps 100000 time %d pv %s e7e5",
				d, d+1, k, m.cp+d, 1000*d+k, 10*d, m.uci)
		}
		f.println("info depth %d currmove e2e4 currmovenumber 1", d)
	}
	f.println("bestmove e2e4 ponder e7e5")
}
