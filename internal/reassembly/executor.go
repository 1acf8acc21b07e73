package reassembly

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
)

// CommandSpec describes one engine invocation.
type CommandSpec struct {
	Binary string
	Args   []string
	Dir    string
}

// Handle is a started engine process.
type Handle interface {
	// Wait blocks until the process exits. A nil error means exit code 0.
	Wait() error
	// Signal asks the process to stop.
	Signal() error
}

// Executor abstracts process spawning for testability. Output chunks are
// pushed to the callbacks as they arrive, preserving stream separation.
type Executor interface {
	Start(ctx context.Context, spec CommandSpec, onStdout, onStderr func([]byte)) (Handle, error)
}

// NewExecutor returns the os/exec-backed executor.
func NewExecutor() Executor { return execExecutor{} }

type execExecutor struct{}

type execHandle struct {
	cmd     *exec.Cmd
	readers sync.WaitGroup
}

func (e execExecutor) Start(ctx context.Context, spec CommandSpec, onStdout, onStderr func([]byte)) (Handle, error) {
	cmd := exec.CommandContext(ctx, spec.Binary, spec.Args...) //nolint:gosec
	cmd.Dir = spec.Dir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", spec.Binary, err)
	}

	handle := &execHandle{cmd: cmd}
	handle.readers.Add(2)
	go pumpStream(stdout, onStdout, &handle.readers)
	go pumpStream(stderr, onStderr, &handle.readers)
	return handle, nil
}

// pumpStream pushes raw chunks to the callback. Chunk boundaries follow the
// pipe, not lines; the parser tolerates both.
func pumpStream(r io.Reader, onChunk func([]byte), wg *sync.WaitGroup) {
	defer wg.Done()
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 && onChunk != nil {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			onChunk(chunk)
		}
		if err != nil {
			return
		}
	}
}

func (h *execHandle) Wait() error {
	h.readers.Wait()
	return h.cmd.Wait()
}

func (h *execHandle) Signal() error {
	if h.cmd.Process == nil {
		return errors.New("process not started")
	}
	if err := h.cmd.Process.Signal(os.Interrupt); err != nil {
		return h.cmd.Process.Kill()
	}
	return nil
}
