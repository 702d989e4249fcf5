// Package sidecar implements the host-process lifecycle contract spec.md
// §4.3 requires: dynamic port discovery announced over stdout, a
// parent-liveness heartbeat as the second independent kill switch besides
// the host launcher's explicit kill of the child process. The bounded
// graceful shutdown itself lives in cmd/sidecar.
package sidecar

import (
	"context"
	"fmt"
	"os"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// processAlive reports whether pid is still running. On POSIX, sending
// signal 0 performs no actual signal delivery — it only checks for the
// process's existence and that we have permission to signal it.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// Monitor polls the given parent pid at interval and calls onParentGone
// exactly once, the moment the parent is no longer reachable. This is
// mechanism 2 of spec.md §4.3: a belt-and-suspenders guard against a host
// that dies without running its own cleanup (mechanism 1's explicit
// child-kill on the host side).
func Monitor(ctx context.Context, parentPID int, interval time.Duration, log *zap.SugaredLogger, onParentGone func()) {
	if parentPID <= 0 {
		log.Info("no parent pid configured, heartbeat monitor disabled")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !processAlive(parentPID) {
				log.Warnw("parent process no longer reachable, initiating shutdown", "parent_pid", parentPID)
				onParentGone()
				return
			}
		}
	}
}

// AnnouncePort writes the well-known "SIDECAR_PORT=<n>" line to stdout,
// flushed immediately, so the host's launcher (which reads the child's
// stdout until it sees this line) can discover the dynamically bound port
// (spec.md §4.3's port-discovery contract).
func AnnouncePort(port int) {
	fmt.Printf("SIDECAR_PORT=%d\n", port)
	os.Stdout.Sync()
}
