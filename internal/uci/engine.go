// Package uci drives an external chess engine over the Universal Chess
// Interface. An Engine owns one subprocess, performs the handshake and
// serializes every command sequence so that searches never interleave on the
// shared connection.
package uci

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrNotReady is returned for any command issued outside the Ready state.
	ErrNotReady = errors.New("uci: engine not ready")
	// ErrStartup is returned when the binary cannot be launched or never
	// reports readiness.
	ErrStartup = errors.New("uci: engine startup failed")
	// ErrProcessExited is returned when the engine's stdout closes. The
	// engine moves to StateFailed.
	ErrProcessExited = errors.New("uci: engine process exited")
)

// State is the lifecycle state of an Engine.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateShuttingDown
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateShuttingDown:
		return "shutting_down"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Config configures an Engine.
type Config struct {
	Path   string   // engine binary
	Args   []string // extra arguments
	Env    []string // extra environment, appended to the current one
	Logger zerolog.Logger

	HandshakeTimeout time.Duration // uci/uciok + isready/readyok during Init
	ReadyTimeout     time.Duration // readyok after setoption/position
	QuitTimeout      time.Duration // wait for exit before killing
	StopGrace        time.Duration // wait for bestmove after "stop"
}

// EngineID holds the identification received during the handshake.
type EngineID struct {
	Name   string `json:"name"`
	Author string `json:"author"`
}

// Commander is the command surface available inside a serialized sequence.
type Commander interface {
	SetOption(ctx context.Context, name, value string) error
	SetPosition(ctx context.Context, fen string) error
	Search(ctx context.Context, params GoParams, onInfo func(Info)) (BestMove, error)
}

// Engine manages one engine subprocess.
//
// Lifecycle: Uninitialized → Initializing → Ready → ShuttingDown → Closed.
// Process-level I/O failures move Ready to Failed; Init must be called again
// explicitly to recover.
type Engine struct {
	cfg Config
	log zerolog.Logger

	// turn is a one-slot semaphore. Blocked senders on a channel are woken
	// in FIFO order, so queued sequences run in arrival order.
	turn chan struct{}

	mu    sync.Mutex
	state State
	proc  *process
	id    EngineID

	searches int64
}

// NewEngine creates an Engine. The subprocess is not started until Init.
func NewEngine(cfg Config) *Engine {
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.ReadyTimeout == 0 {
		cfg.ReadyTimeout = 10 * time.Second
	}
	if cfg.QuitTimeout == 0 {
		cfg.QuitTimeout = 3 * time.Second
	}
	if cfg.StopGrace == 0 {
		cfg.StopGrace = 2 * time.Second
	}
	return &Engine{
		cfg:  cfg,
		log:  cfg.Logger,
		turn: make(chan struct{}, 1),
	}
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// ID returns the identification reported during the last handshake.
func (e *Engine) ID() EngineID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.id
}

// Searches returns the number of searches issued since creation.
func (e *Engine) Searches() int64 {
	return atomic.LoadInt64(&e.searches)
}

// Init starts the subprocess and performs the handshake. Calling Init on a
// Ready engine is a no-op; calling it after Failed or Closed starts a fresh
// process.
func (e *Engine) Init(ctx context.Context) error {
	if err := e.acquire(ctx); err != nil {
		return err
	}
	defer e.release()

	e.mu.Lock()
	if e.state == StateReady {
		e.mu.Unlock()
		return nil
	}
	stale := e.proc
	e.proc = nil
	e.state = StateInitializing
	e.mu.Unlock()

	if stale != nil {
		stale.kill()
	}

	e.log.Info().Str("path", e.cfg.Path).Msg("starting engine")

	p, err := startProcess(e.cfg, e.log)
	if err != nil {
		e.setState(StateFailed)
		return fmt.Errorf("%w: %w", ErrStartup, err)
	}

	hctx, cancel := context.WithTimeout(ctx, e.cfg.HandshakeTimeout)
	defer cancel()

	id, err := handshake(hctx, p)
	if err != nil {
		p.kill()
		e.setState(StateFailed)
		return fmt.Errorf("%w: %w", ErrStartup, err)
	}

	e.mu.Lock()
	e.proc = p
	e.id = id
	e.state = StateReady
	e.mu.Unlock()

	e.log.Info().
		Str("name", id.Name).
		Str("author", id.Author).
		Int("pid", p.pid()).
		Msg("engine ready")
	return nil
}

// Quit sends "quit", waits up to QuitTimeout and kills the process if it is
// still running. It is idempotent. If ctx expires while an earlier sequence
// still holds the engine, the process is killed without waiting.
func (e *Engine) Quit(ctx context.Context) error {
	if err := e.acquire(ctx); err != nil {
		e.forceClose()
		return nil
	}
	defer e.release()

	e.mu.Lock()
	p := e.proc
	if e.state == StateUninitialized || e.state == StateClosed {
		e.mu.Unlock()
		return nil
	}
	e.state = StateShuttingDown
	e.mu.Unlock()

	if p != nil {
		p.shutdown(e.cfg.QuitTimeout)
	}

	e.mu.Lock()
	e.proc = nil
	e.state = StateClosed
	e.mu.Unlock()

	e.log.Info().Int64("searches", e.Searches()).Msg("engine closed")
	return nil
}

func (e *Engine) forceClose() {
	e.mu.Lock()
	p := e.proc
	e.proc = nil
	if e.state != StateUninitialized {
		e.state = StateClosed
	}
	e.mu.Unlock()
	if p != nil {
		e.log.Warn().Msg("engine busy at quit, killing process")
		p.kill()
	}
}

// Do runs fn with exclusive use of the engine. Sequences queue in arrival
// order and each runs to completion before the next starts.
func (e *Engine) Do(ctx context.Context, fn func(Commander) error) error {
	if err := e.acquire(ctx); err != nil {
		return err
	}
	defer e.release()

	e.mu.Lock()
	p := e.proc
	state := e.state
	e.mu.Unlock()
	if state != StateReady || p == nil {
		return fmt.Errorf("%w (state %s)", ErrNotReady, state)
	}
	return fn(&session{e: e, p: p})
}

// SetOption sends one setoption command as its own sequence.
func (e *Engine) SetOption(ctx context.Context, name, value string) error {
	return e.Do(ctx, func(c Commander) error {
		return c.SetOption(ctx, name, value)
	})
}

// SetPosition sends one position command as its own sequence.
func (e *Engine) SetPosition(ctx context.Context, fen string) error {
	return e.Do(ctx, func(c Commander) error {
		return c.SetPosition(ctx, fen)
	})
}

// Search runs one search as its own sequence.
func (e *Engine) Search(ctx context.Context, params GoParams, onInfo func(Info)) (BestMove, error) {
	var bm BestMove
	err := e.Do(ctx, func(c Commander) error {
		var err error
		bm, err = c.Search(ctx, params, onInfo)
		return err
	})
	return bm, err
}

func (e *Engine) acquire(ctx context.Context) error {
	select {
	case e.turn <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) release() {
	<-e.turn
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// fail moves a Ready engine running p to Failed. Errors from a process that
// has already been replaced or shut down do not change the state.
func (e *Engine) fail(p *process, cause error) error {
	e.mu.Lock()
	if e.proc == p && e.state == StateReady {
		e.state = StateFailed
		e.mu.Unlock()
		e.log.Error().Err(cause).Msg("engine failed")
		p.kill()
		return cause
	}
	e.mu.Unlock()
	return cause
}

// session implements Commander for the holder of the engine's turn.
type session struct {
	e *Engine
	p *process
}

func (s *session) send(line string) error {
	if err := s.p.send(line); err != nil {
		return s.e.fail(s.p, fmt.Errorf("uci: write %q: %w", line, err))
	}
	return nil
}

// waitReady sends isready and waits for readyok. The wait is bounded by
// ReadyTimeout only: abandoning it early would leave a stale readyok for
// the next sequence.
func (s *session) waitReady() error {
	if err := s.send("isready"); err != nil {
		return err
	}
	timer := time.NewTimer(s.e.cfg.ReadyTimeout)
	defer timer.Stop()
	for {
		select {
		case line, ok := <-s.p.lines:
			if !ok {
				return s.e.fail(s.p, s.p.readErr())
			}
			if line == "readyok" {
				return nil
			}
		case <-timer.C:
			return s.e.fail(s.p, fmt.Errorf("uci: no readyok within %v", s.e.cfg.ReadyTimeout))
		}
	}
}

func (s *session) SetOption(ctx context.Context, name, value string) error {
	if err := checkArg(name); err != nil {
		return err
	}
	if err := checkArg(value); err != nil {
		return err
	}
	cmd := "setoption name " + name
	if value != "" {
		cmd += " value " + value
	}
	if err := s.send(cmd); err != nil {
		return err
	}
	return s.waitReady()
}

func (s *session) SetPosition(ctx context.Context, fen string) error {
	if strings.TrimSpace(fen) == "" {
		return errors.New("uci: empty position")
	}
	if err := checkArg(fen); err != nil {
		return err
	}
	if err := s.send("position fen " + fen); err != nil {
		return err
	}
	return s.waitReady()
}

// Search issues "go" and streams parsed info lines to onInfo until the
// terminating bestmove. If ctx is cancelled, "stop" is sent and the
// bestmove is still consumed; ctx.Err() is returned alongside it.
func (s *session) Search(ctx context.Context, params GoParams, onInfo func(Info)) (BestMove, error) {
	atomic.AddInt64(&s.e.searches, 1)
	if err := s.send("go " + params.String()); err != nil {
		return BestMove{}, err
	}

	done := ctx.Done()
	var grace <-chan time.Time
	var stopped bool
	for {
		select {
		case line, ok := <-s.p.lines:
			if !ok {
				return BestMove{}, s.e.fail(s.p, s.p.readErr())
			}
			switch {
			case strings.HasPrefix(line, "bestmove"):
				bm := ParseBestMove(line)
				if stopped {
					return bm, ctx.Err()
				}
				return bm, nil
			case strings.HasPrefix(line, "info "):
				if onInfo != nil {
					onInfo(ParseInfo(line))
				}
			}
		case <-done:
			s.e.log.Debug().Err(ctx.Err()).Msg("search cancelled, sending stop")
			done = nil
			stopped = true
			if err := s.send("stop"); err != nil {
				return BestMove{}, err
			}
			timer := time.NewTimer(s.e.cfg.StopGrace)
			defer timer.Stop()
			grace = timer.C
		case <-grace:
			return BestMove{}, s.e.fail(s.p, fmt.Errorf("uci: no bestmove within %v of stop", s.e.cfg.StopGrace))
		}
	}
}

func checkArg(s string) error {
	if strings.ContainsAny(s, "\r\n") {
		return fmt.Errorf("uci: argument contains a line break: %q", s)
	}
	return nil
}
