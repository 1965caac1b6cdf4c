//go:build !windows

package process

import (
	"errors"
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/unix"

	"areazero/internal/runtime"
)

// Signal delivers sig to the child. In process-group mode the whole group is
// signalled even after the leader has been reaped, since its descendants keep
// the group alive.
func (h *handle) Signal(sig os.Signal) error {
	if !h.group && h.Exited() {
		return runtime.ErrProcessDone
	}
	s, ok := sig.(syscall.Signal)
	if !ok {
		return fmt.Errorf("unsupported signal %v", sig)
	}

	target := h.pid
	if h.group {
		target = -h.pid
	}
	if err := unix.Kill(target, unix.Signal(s)); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return runtime.ErrProcessDone
		}
		return fmt.Errorf("signal pid %d: %w", h.pid, err)
	}
	return nil
}
