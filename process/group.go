// Package process supervises the launched browser inside an OS resource
// group so that closing the group tears down every descendant, including
// ones spawned after launch. The originally launched process is expected
// to exit quickly while its children carry the real workload, so
// liveness is defined over the group, never over the primary handle.
package process

// Group is a handle over a kill-on-close process group.
type Group interface {
	// ActiveProcesses returns the number of live group members.
	ActiveProcesses() int
	// Close terminates every member and releases the handle. Best-effort
	// and idempotent.
	Close() error
}

// LaunchFunc starts path with args inside a new group and returns the
// group handle and the primary pid. Platform implementations live in
// group_windows.go and group_unix.go; tests inject fakes.
type LaunchFunc func(path string, args []string) (Group, int, error)
