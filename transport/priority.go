//go:build unix

package transport

import (
	"golang.org/x/sys/unix"
)

// elevatePriority lowers this thread's niceness so it is scheduled
// ahead of the receive goroutines under contention on the tunnel's
// internal lock. Best-effort: a failure (for example, missing
// permission to lower niceness) is ignored without logging.
// This implementation chose realtime-tick-elevation over cooperative
// tick batching.
func elevatePriority() {
	_ = unix.Setpriority(unix.PRIO_PROCESS, 0, -10)
}
