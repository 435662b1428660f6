// Package execrunner spawns external programs and reports their outcome as
// plain values: captured output plus exit code, or a typed error. Pipeline
// steps use the buffered Run; the long-lived training job uses Start with
// streaming handlers.
package execrunner

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

// Spec describes one external program invocation.
type Spec struct {
	Command string
	Args    []string
	Dir     string
	Env     []string // appended to the parent environment
	Timeout time.Duration
}

// Result is the outcome of a finished invocation.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// ExitError reports a non-zero exit with the captured output attached for
// diagnosis.
type ExitError struct {
	Command  string
	ExitCode int
	Stdout   string
	Stderr   string
	TimedOut bool
}

func (e *ExitError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("%s timed out (exit code %d)", e.Command, e.ExitCode)
	}
	return fmt.Sprintf("%s exited with code %d", e.Command, e.ExitCode)
}

// Runner executes external programs. The interface exists so orchestration
// code can be tested with a fake.
type Runner interface {
	Run(ctx context.Context, spec Spec) (Result, error)
	Start(ctx context.Context, spec Spec, handlers StreamHandlers) (*Process, error)
}

// StreamHandlers receives output lines as the process produces them.
type StreamHandlers struct {
	OnStdout func(line string)
	OnStderr func(line string)
}

// OSRunner runs programs via os/exec.
type OSRunner struct{}

func New() *OSRunner { return &OSRunner{} }

func buildCmd(ctx context.Context, spec Spec) *exec.Cmd {
	cmd := exec.CommandContext(ctx, spec.Command, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(), spec.Env...)
	return cmd
}

// Run executes the program to completion, capturing stdout and stderr. A
// non-zero exit (including a timeout kill) returns the Result alongside an
// *ExitError; a spawn failure returns an ordinary error.
func (r *OSRunner) Run(ctx context.Context, spec Spec) (Result, error) {
	runCtx := ctx
	var cancel context.CancelFunc
	if spec.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	cmd := buildCmd(runCtx, spec)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return res, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, &ExitError{
			Command:  spec.Command,
			ExitCode: res.ExitCode,
			Stdout:   res.Stdout,
			Stderr:   res.Stderr,
			TimedOut: runCtx.Err() == context.DeadlineExceeded,
		}
	}
	res.ExitCode = -1
	return res, fmt.Errorf("start %s: %w", spec.Command, err)
}

// Process is a supervised running program.
type Process struct {
	cmd  *exec.Cmd
	wg   sync.WaitGroup
	done chan struct{}
	once sync.Once

	mu       sync.Mutex
	exitCode int
	waitErr  error
}

// Start spawns the program and streams its output line-by-line to the
// handlers. The caller must eventually call Wait.
func (r *OSRunner) Start(ctx context.Context, spec Spec, handlers StreamHandlers) (*Process, error) {
	cmd := buildCmd(ctx, spec)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", spec.Command, err)
	}

	p := &Process{cmd: cmd, done: make(chan struct{})}
	p.wg.Add(2)
	go p.stream(stdout, handlers.OnStdout)
	go p.stream(stderr, handlers.OnStderr)
	return p, nil
}

func (p *Process) stream(r io.Reader, fn func(string)) {
	defer p.wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		if fn != nil {
			fn(line)
		}
	}
}

// Wait blocks until the process exits and returns its exit code. A spawn or
// wait failure other than a non-zero exit is returned as an error with exit
// code -1.
func (p *Process) Wait() (int, error) {
	p.once.Do(func() {
		p.wg.Wait()
		err := p.cmd.Wait()
		p.mu.Lock()
		defer p.mu.Unlock()
		if err == nil {
			p.exitCode = 0
		} else {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				p.exitCode = exitErr.ExitCode()
			} else {
				p.exitCode = -1
				p.waitErr = err
			}
		}
		close(p.done)
	})
	<-p.done
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode, p.waitErr
}

// Terminate asks the process to stop (SIGTERM). The completion path still
// runs through Wait.
func (p *Process) Terminate() error {
	if p.cmd.Process == nil {
		return fmt.Errorf("process not started")
	}
	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("signal process: %w", err)
	}
	return nil
}
