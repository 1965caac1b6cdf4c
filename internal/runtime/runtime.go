package runtime

import (
	"context"
	"errors"
	"os"
)

// ErrProcessDone is returned by Handle.Signal when the process has already
// exited and can no longer receive signals.
var ErrProcessDone = errors.New("process already finished")

// Spec describes the executable a Launcher should start.
type Spec struct {
	Path string
	Args []string
	Dir  string
	// Env holds additional KEY=VALUE pairs appended to the inherited
	// environment.
	Env []string
	// ProcessGroup places the child in its own process group so signals are
	// delivered to every member of the group.
	ProcessGroup bool
}

// Exit captures how a process finished.
type Exit struct {
	Code int
	Err  error
}

// Handle represents a single running child process.
type Handle interface {
	// Pid returns the operating system process identifier.
	Pid() int

	// Wait blocks until the process exits or the provided context is done.
	// A context error is returned when the context expires first; the
	// process is left untouched in that case.
	Wait(ctx context.Context) (Exit, error)

	// Signal delivers sig to the process. ErrProcessDone is returned when
	// the process has already exited.
	Signal(sig os.Signal) error

	// Exited reports whether the process has been reaped.
	Exited() bool
}

// Launcher describes a backend capable of spawning processes.
type Launcher interface {
	// Start launches the process described by spec and returns a handle to
	// it. Failures to spawn are surfaced as errors.
	Start(ctx context.Context, spec Spec) (Handle, error)
}
