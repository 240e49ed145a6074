//go:build !windows

package waiter

import (
	"os"
	"os/signal"
	"runtime"
	"syscall"
)

// registerDumpSignal adds the platform's diagnostic stack-dump signal
// to ch. SIGUSR2 has no equivalent on Windows.
func registerDumpSignal(ch chan os.Signal) {
	signal.Notify(ch, syscall.SIGUSR2)
}

func dumpSignal(sig os.Signal) bool {
	s, ok := sig.(syscall.Signal)
	return ok && s == syscall.SIGUSR2
}

// dumpStacks writes every live goroutine's stack trace to the log.
func (w *Waiter) dumpStacks() {
	buf := make([]byte, 1<<20)
	n := runtime.Stack(buf, true)
	w.log.WithField("goroutines", string(buf[:n])).Info("stack dump requested")
}
