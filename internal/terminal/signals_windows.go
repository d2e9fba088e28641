package terminal

import (
	"os"
	"syscall"

	"github.com/stemsi/exstem-proctor/internal/proctor"
)

var watchedSignals = []os.Signal{syscall.SIGTERM, syscall.SIGINT}

func environmentSignal(sig os.Signal) (proctor.Signal, bool) {
	switch sig {
	case syscall.SIGTERM, syscall.SIGINT:
		return proctor.SignalUnloadAttempted, true
	}
	return "", false
}
