package uci

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// process wraps a running engine binary. A single reader goroutine owns
// stdout and forwards trimmed lines on lines; lines is closed at EOF.
type process struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	log   zerolog.Logger

	lines  chan string
	stop   chan struct{}
	exited chan struct{}

	mu      sync.Mutex
	err     error
	closing sync.Once
}

func startProcess(cfg Config, log zerolog.Logger) (*process, error) {
	if cfg.Path == "" {
		return nil, errors.New("no engine path configured")
	}
	cmd := exec.Command(cfg.Path, cfg.Args...)
	if len(cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), cfg.Env...)
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", cfg.Path, err)
	}

	p := &process{
		cmd:    cmd,
		stdin:  stdin,
		log:    log,
		lines:  make(chan string, 256),
		stop:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	go p.read(stdout)
	return p, nil
}

func (p *process) read(stdout io.Reader) {
	sc := bufio.NewScanner(stdout)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		p.log.Trace().Str("line", line).Msg("engine >")
		select {
		case p.lines <- line:
		case <-p.stop:
			// nobody will read again; drain until the pipe closes
		}
	}

	err := ErrProcessExited
	if scanErr := sc.Err(); scanErr != nil {
		err = fmt.Errorf("%w: %w", ErrProcessExited, scanErr)
	}
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
	close(p.lines)

	_ = p.cmd.Wait()
	close(p.exited)
}

func (p *process) readErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err == nil {
		return ErrProcessExited
	}
	return p.err
}

func (p *process) pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *process) send(line string) error {
	p.log.Trace().Str("line", line).Msg("engine <")
	_, err := io.WriteString(p.stdin, line+"\n")
	return err
}

// shutdown asks the engine to quit and kills it after timeout.
func (p *process) shutdown(timeout time.Duration) {
	p.closing.Do(func() {
		close(p.stop)
		_ = p.send("quit")
		_ = p.stdin.Close()
		select {
		case <-p.exited:
		case <-time.After(timeout):
			p.log.Warn().Dur("timeout", timeout).Msg("engine did not exit, killing")
			_ = p.cmd.Process.Kill()
			<-p.exited
		}
	})
}

// kill terminates the process immediately.
func (p *process) kill() {
	p.closing.Do(func() {
		close(p.stop)
		_ = p.stdin.Close()
		if p.cmd.Process != nil {
			_ = p.cmd.Process.Kill()
		}
	})
}

// handshake performs uci/uciok followed by isready/readyok, collecting the
// engine's id lines on the way.
func handshake(ctx context.Context, p *process) (EngineID, error) {
	var id EngineID
	if err := p.send("uci"); err != nil {
		return id, fmt.Errorf("send uci: %w", err)
	}
	err := readUntil(ctx, p, "uciok", func(line string) {
		switch {
		case strings.HasPrefix(line, "id name "):
			id.Name = strings.TrimPrefix(line, "id name ")
		case strings.HasPrefix(line, "id author "):
			id.Author = strings.TrimPrefix(line, "id author ")
		}
	})
	if err != nil {
		return id, err
	}
	if err := p.send("isready"); err != nil {
		return id, fmt.Errorf("send isready: %w", err)
	}
	if err := readUntil(ctx, p, "readyok", nil); err != nil {
		return id, err
	}
	return id, nil
}

// readUntil consumes lines until one equals want. Other lines go to fn.
func readUntil(ctx context.Context, p *process, want string, fn func(string)) error {
	for {
		select {
		case line, ok := <-p.lines:
			if !ok {
				return fmt.Errorf("waiting for %s: %w", want, p.readErr())
			}
			if line == want {
				return nil
			}
			if fn != nil {
				fn(line)
			}
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s: %w", want, ctx.Err())
		}
	}
}
