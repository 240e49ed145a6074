//go:build windows

package waiter

import "os"

// registerDumpSignal is a no-op on Windows: SIGUSR2 does not exist.
func registerDumpSignal(ch chan os.Signal) {}

func dumpSignal(sig os.Signal) bool { return false }

func (w *Waiter) dumpStacks() {}
