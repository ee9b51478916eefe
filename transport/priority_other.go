//go:build !unix

package transport

// elevatePriority is a no-op on non-Unix platforms; the tick path
// relies on the OS scheduler's default fairness there. Best-effort.
func elevatePriority() {}
