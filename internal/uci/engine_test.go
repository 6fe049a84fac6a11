package uci

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/freeeve/chesseval/internal/uci/ucitest"
	"github.com/rs/zerolog"
)

func TestMain(m *testing.M) {
	ucitest.RunIfHelper()
	os.Exit(m.Run())
}

func newFakeEngine(t *testing.T, mode string, tweak func(*Config)) *Engine {
	t.Helper()
	path, env := ucitest.Command(mode)
	cfg := Config{
		Path:             path,
		Env:              env,
		Logger:           zerolog.Nop(),
		HandshakeTimeout: 5 * time.Second,
		ReadyTimeout:     5 * time.Second,
		QuitTimeout:      2 * time.Second,
		StopGrace:        2 * time.Second,
	}
	if tweak != nil {
		tweak(&cfg)
	}
	e := NewEngine(cfg)
	t.Cleanup(func() { _ = e.Quit(context.Background()) })
	return e
}

func initEngine(t *testing.T, e *Engine) {
	t.Helper()
	if err := e.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
}

func TestEngineLifecycle(t *testing.T) {
	ctx := context.Background()
	e := newFakeEngine(t, "", nil)

	if got := e.State(); got != StateUninitialized {
		t.Fatalf("initial state = %v", got)
	}
	if err := e.SetPosition(ctx, ucitest.StartFEN); !errors.Is(err, ErrNotReady) {
		t.Fatalf("SetPosition before Init: got %v, want ErrNotReady", err)
	}

	initEngine(t, e)
	if got := e.State(); got != StateReady {
		t.Fatalf("state after Init = %v", got)
	}
	if id := e.ID(); id.Name != "FakeFish 1.0" || id.Author != "ucitest" {
		t.Errorf("ID = %+v", id)
	}
	// Init on a ready engine is a no-op.
	initEngine(t, e)

	if err := e.Quit(ctx); err != nil {
		t.Fatalf("Quit: %v", err)
	}
	if got := e.State(); got != StateClosed {
		t.Fatalf("state after Quit = %v", got)
	}
	if err := e.Quit(ctx); err != nil {
		t.Fatalf("second Quit: %v", err)
	}
	if _, err := e.Search(ctx, GoParams{Depth: 1}, nil); !errors.Is(err, ErrNotReady) {
		t.Fatalf("Search after Quit: got %v, want ErrNotReady", err)
	}

	initEngine(t, e)
	if got := e.State(); got != StateReady {
		t.Fatalf("state after re-Init = %v", got)
	}
}

func TestEngineSearchStreamsInfo(t *testing.T) {
	ctx := context.Background()
	e := newFakeEngine(t, "", nil)
	initEngine(t, e)

	var infos []Info
	var bm BestMove
	err := e.Do(ctx, func(c Commander) error {
		if err := c.SetOption(ctx, "MultiPV", "2"); err != nil {
			return err
		}
		if err := c.SetPosition(ctx, ucitest.StartFEN); err != nil {
			return err
		}
		var err error
		bm, err = c.Search(ctx, GoParams{Depth: 3, MoveTime: 100}, func(i Info) {
			infos = append(infos, i)
		})
		return err
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if bm != (BestMove{Move: "e2e4", Ponder: "e7e5"}) {
		t.Errorf("bestmove = %+v", bm)
	}

	var second, strLines int
	for _, i := range infos {
		if i.Has(FieldString) {
			strLines++
		}
		if i.Has(FieldPV) && i.LineIndex() == 2 {
			second++
			if i.PV[0] != "d2d4" {
				t.Errorf("line 2 pv = %v", i.PV)
			}
		}
	}
	if strLines != 1 {
		t.Errorf("info string lines = %d, want 1", strLines)
	}
	if second != 3 {
		t.Errorf("line 2 updates = %d, want 3", second)
	}
	if got := e.Searches(); got != 1 {
		t.Errorf("Searches = %d, want 1", got)
	}
}

func TestEngineStartupFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("missing binary", func(t *testing.T) {
		e := NewEngine(Config{Path: filepath.Join(t.TempDir(), "no-such-engine"), Logger: zerolog.Nop()})
		err := e.Init(ctx)
		if !errors.Is(err, ErrStartup) {
			t.Fatalf("Init: got %v, want ErrStartup", err)
		}
		if got := e.State(); got != StateFailed {
			t.Errorf("state = %v, want failed", got)
		}
	})

	t.Run("never answers", func(t *testing.T) {
		e := newFakeEngine(t, ucitest.ModeSilent, func(c *Config) {
			c.HandshakeTimeout = 200 * time.Millisecond
			c.QuitTimeout = 200 * time.Millisecond
		})
		err := e.Init(ctx)
		if !errors.Is(err, ErrStartup) || !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("Init: got %v, want ErrStartup wrapping deadline", err)
		}
		if got := e.State(); got != StateFailed {
			t.Errorf("state = %v, want failed", got)
		}
	})

	t.Run("exits during handshake", func(t *testing.T) {
		e := newFakeEngine(t, ucitest.ModeCrash, nil)
		err := e.Init(ctx)
		if !errors.Is(err, ErrStartup) || !errors.Is(err, ErrProcessExited) {
			t.Fatalf("Init: got %v, want ErrStartup wrapping ErrProcessExited", err)
		}
	})
}

func TestEngineProcessExitMovesToFailed(t *testing.T) {
	ctx := context.Background()
	e := newFakeEngine(t, "", nil)
	initEngine(t, e)

	if err := e.SetPosition(ctx, ucitest.CrashFEN); err != nil {
		t.Fatalf("SetPosition: %v", err)
	}
	_, err := e.Search(ctx, GoParams{Depth: 1}, nil)
	if !errors.Is(err, ErrProcessExited) {
		t.Fatalf("Search: got %v, want ErrProcessExited", err)
	}
	if got := e.State(); got != StateFailed {
		t.Fatalf("state = %v, want failed", got)
	}
	if err := e.SetPosition(ctx, ucitest.StartFEN); !errors.Is(err, ErrNotReady) {
		t.Fatalf("SetPosition on failed engine: got %v, want ErrNotReady", err)
	}

	// Explicit reinit recovers.
	initEngine(t, e)
	if err := e.SetPosition(ctx, ucitest.StartFEN); err != nil {
		t.Fatalf("SetPosition after reinit: %v", err)
	}
}

func TestEngineSerializesSequences(t *testing.T) {
	ctx := context.Background()
	e := newFakeEngine(t, "", nil)
	initEngine(t, e)

	want := map[string]string{
		ucitest.ScholarFEN:   "h5f7",
		ucitest.AfterE4FEN:   "e7e5",
		ucitest.FoolsMateFEN: "d8h4",
		ucitest.StartFEN:     "e2e4",
	}
	fens := make([]string, 0, len(want))
	for fen := range want {
		fens = append(fens, fen)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 4*len(fens))
	for round := 0; round < 4; round++ {
		for _, fen := range fens {
			wg.Add(1)
			go func(fen string) {
				defer wg.Done()
				var bm BestMove
				err := e.Do(ctx, func(c Commander) error {
					if err := c.SetPosition(ctx, fen); err != nil {
						return err
					}
					var err error
					bm, err = c.Search(ctx, GoParams{Depth: 1}, nil)
					return err
				})
				if err != nil {
					errs <- err
					return
				}
				if bm.Move != want[fen] {
					errs <- fmt.Errorf("%s: bestmove %q, want %q", fen, bm.Move, want[fen])
				}
			}(fen)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	if got := e.Searches(); got != int64(4*len(fens)) {
		t.Errorf("Searches = %d, want %d", got, 4*len(fens))
	}
}

func TestEngineRunsSequencesInArrivalOrder(t *testing.T) {
	ctx := context.Background()
	e := newFakeEngine(t, "", nil)
	initEngine(t, e)

	hold := make(chan struct{})
	holding := make(chan struct{})
	go func() {
		_ = e.Do(ctx, func(Commander) error {
			close(holding)
			<-hold
			return nil
		})
	}()
	<-holding

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = e.Do(ctx, func(Commander) error {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			})
		}(i)
		// let goroutine i block in the queue before i+1 arrives
		time.Sleep(20 * time.Millisecond)
	}
	close(hold)
	wg.Wait()

	for i, got := range order {
		if got != i {
			t.Fatalf("order = %v, want ascending", order)
		}
	}
}

func TestEngineDoRespectsQueueContext(t *testing.T) {
	e := newFakeEngine(t, "", nil)
	initEngine(t, e)

	hold := make(chan struct{})
	holding := make(chan struct{})
	go func() {
		_ = e.Do(context.Background(), func(Commander) error {
			close(holding)
			<-hold
			return nil
		})
	}()
	<-holding
	defer close(hold)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := e.Do(ctx, func(Commander) error {
		t.Error("sequence ran while another held the engine")
		return nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Do: got %v, want deadline exceeded", err)
	}
}

func TestEngineSearchStopsOnCancel(t *testing.T) {
	e := newFakeEngine(t, "", nil)
	initEngine(t, e)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := e.SetPosition(ctx, ucitest.InfiniteFEN); err != nil {
		t.Fatalf("SetPosition: %v", err)
	}

	var depths []int
	bm, err := e.Search(ctx, GoParams{}, func(i Info) {
		depths = append(depths, i.Depth)
		cancel()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Search: got %v, want context.Canceled", err)
	}
	if bm.Move != "e2e4" {
		t.Errorf("bestmove after stop = %+v", bm)
	}
	if len(depths) != 2 || depths[1] != 5 {
		t.Errorf("depths = %v, want [1 5]", depths)
	}
	if got := e.State(); got != StateReady {
		t.Fatalf("state after stop = %v, want ready", got)
	}

	// The connection is clean for the next search.
	bg := context.Background()
	if err := e.SetPosition(bg, ucitest.ScholarFEN); err != nil {
		t.Fatalf("SetPosition: %v", err)
	}
	bm, err = e.Search(bg, GoParams{Depth: 1}, nil)
	if err != nil || bm.Move != "h5f7" {
		t.Fatalf("next Search = %+v, %v", bm, err)
	}
}

func TestEngineStopGraceExpires(t *testing.T) {
	e := newFakeEngine(t, "", func(c *Config) {
		c.StopGrace = 100 * time.Millisecond
		c.QuitTimeout = 200 * time.Millisecond
	})
	initEngine(t, e)

	if err := e.SetPosition(context.Background(), ucitest.HangFEN); err != nil {
		t.Fatalf("SetPosition: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := e.Search(ctx, GoParams{}, nil)
	if err == nil {
		t.Fatal("Search returned nil error for an engine that ignores stop")
	}
	if got := e.State(); got != StateFailed {
		t.Fatalf("state = %v, want failed", got)
	}
}

func TestEngineRejectsLineBreaks(t *testing.T) {
	ctx := context.Background()
	e := newFakeEngine(t, "", nil)
	initEngine(t, e)

	if err := e.SetPosition(ctx, ucitest.StartFEN+"\ngo infinite"); err == nil {
		t.Error("SetPosition accepted a FEN with a newline")
	}
	if err := e.SetOption(ctx, "Hash", "16\nquit"); err == nil {
		t.Error("SetOption accepted a value with a newline")
	}
	if err := e.SetPosition(ctx, ""); err == nil {
		t.Error("SetPosition accepted an empty FEN")
	}
	if got := e.State(); got != StateReady {
		t.Fatalf("state = %v, want ready", got)
	}
}
