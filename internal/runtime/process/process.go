package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync/atomic"

	"areazero/internal/runtime"
)

type launcher struct{}

// New constructs a launcher that executes the supervised program as a local
// process.
func New() runtime.Launcher {
	return &launcher{}
}

func (l *launcher) Start(ctx context.Context, spec runtime.Spec) (runtime.Handle, error) {
	if spec.Path == "" {
		return nil, errors.New("process launcher requires an executable path")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// The child must outlive supervisor-side cancellation, so it is not
	// bound to ctx.
	cmd := exec.Command(spec.Path, spec.Args...)
	if spec.Dir != "" {
		cmd.Dir = spec.Dir
	}
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	configureCmdSysProcAttr(cmd, spec.ProcessGroup)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", spec.Path, err)
	}

	h := &handle{
		cmd:   cmd,
		pid:   cmd.Process.Pid,
		group: spec.ProcessGroup,
		done:  make(chan struct{}),
	}
	go h.reap()
	return h, nil
}

type handle struct {
	cmd   *exec.Cmd
	pid   int
	group bool

	done   chan struct{}
	exit   runtime.Exit
	exited atomic.Bool
}

// reap waits for the child exactly once so replaced generations never linger
// as zombies.
func (h *handle) reap() {
	err := h.cmd.Wait()
	code := -1
	if state := h.cmd.ProcessState; state != nil {
		code = state.ExitCode()
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// The exit code already carries the information.
		err = nil
	}
	h.exit = runtime.Exit{Code: code, Err: err}
	h.exited.Store(true)
	close(h.done)
}

func (h *handle) Pid() int {
	return h.pid
}

func (h *handle) Exited() bool {
	return h.exited.Load()
}

func (h *handle) Wait(ctx context.Context) (runtime.Exit, error) {
	select {
	case <-h.done:
		return h.exit, nil
	case <-ctx.Done():
		return runtime.Exit{}, ctx.Err()
	}
}
