//go:build windows

package process

import (
	"errors"
	"fmt"
	"os"

	"areazero/internal/runtime"
)

func (h *handle) Signal(sig os.Signal) error {
	if h.Exited() {
		return runtime.ErrProcessDone
	}
	if err := h.cmd.Process.Kill(); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return runtime.ErrProcessDone
		}
		return fmt.Errorf("kill pid %d: %w", h.pid, err)
	}
	return nil
}
