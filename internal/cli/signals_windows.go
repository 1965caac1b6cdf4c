//go:build windows

package cli

import "os"

func terminateSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}
