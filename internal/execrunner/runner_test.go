package execrunner

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestRunCapturesOutput(t *testing.T) {
	r := New()
	res, err := r.Run(context.Background(), Spec{
		Command: "/bin/sh",
		Args:    []string{"-c", "echo out; echo err >&2"},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.ExitCode != 0 {
		t.Fatalf("exit code %d, want 0", res.ExitCode)
	}
	if strings.TrimSpace(res.Stdout) != "out" || strings.TrimSpace(res.Stderr) != "err" {
		t.Fatalf("output not captured: %+v", res)
	}
}

func TestRunNonZeroExitReturnsExitError(t *testing.T) {
	r := New()
	res, err := r.Run(context.Background(), Spec{
		Command: "/bin/sh",
		Args:    []string{"-c", "echo diagnostic >&2; exit 7"},
	})
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("want *ExitError, got %v", err)
	}
	if exitErr.ExitCode != 7 || res.ExitCode != 7 {
		t.Fatalf("exit code not propagated: %d / %d", exitErr.ExitCode, res.ExitCode)
	}
	if !strings.Contains(exitErr.Stderr, "diagnostic") {
		t.Fatalf("stderr not attached to the error: %q", exitErr.Stderr)
	}
	if exitErr.TimedOut {
		t.Fatalf("not a timeout")
	}
}

func TestRunTimeout(t *testing.T) {
	r := New()
	_, err := r.Run(context.Background(), Spec{
		Command: "/bin/sh",
		Args:    []string{"-c", "sleep 5"},
		Timeout: 100 * time.Millisecond,
	})
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("want *ExitError, got %v", err)
	}
	if !exitErr.TimedOut {
		t.Fatalf("timeout not flagged: %+v", exitErr)
	}
}

func TestRunSpawnFailure(t *testing.T) {
	r := New()
	res, err := r.Run(context.Background(), Spec{Command: "/no/such/binary"})
	if err == nil {
		t.Fatalf("expected spawn failure")
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		t.Fatalf("spawn failure must not be an ExitError")
	}
	if res.ExitCode != -1 {
		t.Fatalf("spawn failure exit code %d, want -1", res.ExitCode)
	}
}

func TestStartStreamsLines(t *testing.T) {
	r := New()

	var mu sync.Mutex
	var stdout, stderr []string
	proc, err := r.Start(context.Background(), Spec{
		Command: "/bin/sh",
		Args:    []string{"-c", "echo one; echo two; echo three >&2"},
	}, StreamHandlers{
		OnStdout: func(line string) {
			mu.Lock()
			stdout = append(stdout, line)
			mu.Unlock()
		},
		OnStderr: func(line string) {
			mu.Lock()
			stderr = append(stderr, line)
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	code, err := proc.Wait()
	if err != nil || code != 0 {
		t.Fatalf("wait: code=%d err=%v", code, err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(stdout) != 2 || stdout[0] != "one" || stdout[1] != "two" {
		t.Fatalf("stdout lines %v", stdout)
	}
	if len(stderr) != 1 || stderr[0] != "three" {
		t.Fatalf("stderr lines %v", stderr)
	}
}

func TestTerminate(t *testing.T) {
	r := New()
	proc, err := r.Start(context.Background(), Spec{
		Command: "/bin/sh",
		Args:    []string{"-c", "sleep 10"},
	}, StreamHandlers{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := proc.Terminate(); err != nil {
		t.Fatalf("terminate: %v", err)
	}
	code, _ := proc.Wait()
	if code == 0 {
		t.Fatalf("terminated process must not exit 0")
	}
}

func TestWaitIsIdempotent(t *testing.T) {
	r := New()
	proc, err := r.Start(context.Background(), Spec{
		Command: "/bin/sh",
		Args:    []string{"-c", "exit 4"},
	}, StreamHandlers{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	first, _ := proc.Wait()
	second, _ := proc.Wait()
	if first != 4 || second != 4 {
		t.Fatalf("wait results %d/%d, want 4/4", first, second)
	}
}
