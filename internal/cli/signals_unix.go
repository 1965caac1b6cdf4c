//go:build !windows

package cli

import (
	"os"
	"syscall"
)

func terminateSignals() []os.Signal {
	return []os.Signal{syscall.SIGTERM}
}
