//go:build unix

package daemon

import (
	"os"
	"os/signal"
	"syscall"
)

// registerShutdownSignals wires ch to receive every signal spec.md §4.1
// and §6 list as graceful-shutdown triggers.
func registerShutdownSignals(ch chan<- os.Signal) {
	signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGHUP)
}
