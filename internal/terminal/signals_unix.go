//go:build !windows

package terminal

import (
	"os"
	"syscall"

	"github.com/stemsi/exstem-proctor/internal/proctor"
)

var watchedSignals = []os.Signal{syscall.SIGHUP, syscall.SIGTERM, syscall.SIGINT, syscall.SIGTSTP}

func environmentSignal(sig os.Signal) (proctor.Signal, bool) {
	switch sig {
	case syscall.SIGTSTP:
		return proctor.SignalVisibilityHidden, true
	case syscall.SIGHUP, syscall.SIGTERM, syscall.SIGINT:
		return proctor.SignalUnloadAttempted, true
	}
	return "", false
}
