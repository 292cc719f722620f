//go:build !windows

package process

import (
	"fmt"
	"os/exec"
	"sync"
	"syscall"
	"time"

	gopsproc "github.com/shirou/gopsutil/v4/process"
	"golang.org/x/sys/unix"
)

// pgidGroup approximates a kill-on-close job with a process group id
// plus explicit descendant tracking: members are counted and terminated
// through the recorded root pid and the group id.
type pgidGroup struct {
	mu     sync.Mutex
	cmd    *exec.Cmd
	pgid   int
	closed bool
}

// launchGroup starts the target in its own process group. Setpgid is
// applied between fork and exec, so unlike the suspended-start dance on
// Windows there is no window for the child to escape the group.
func launchGroup(path string, args []string) (Group, int, error) {
	cmd := exec.Command(path, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		return nil, 0, fmt.Errorf("start process: %w", err)
	}

	pid := cmd.Process.Pid
	g := &pgidGroup{cmd: cmd, pgid: pid}
	go cmd.Wait() // reap the primary whenever it exits
	return g, pid, nil
}

func (g *pgidGroup) ActiveProcesses() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return 0
	}
	if n := len(g.members()); n > 0 {
		return n
	}
	// The descendant walk misses members reparented to init after the
	// primary exited; a zero-signal probe of the group catches those.
	if unix.Kill(-g.pgid, 0) == nil {
		return 1
	}
	return 0
}

// members walks the recorded root pid and its live descendants.
func (g *pgidGroup) members() []*gopsproc.Process {
	root, err := gopsproc.NewProcess(int32(g.pgid))
	if err != nil {
		return nil
	}
	if running, err := root.IsRunning(); err != nil || !running {
		return nil
	}
	out := []*gopsproc.Process{root}
	queue := []*gopsproc.Process{root}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		children, err := p.Children()
		if err != nil {
			continue
		}
		out = append(out, children...)
		queue = append(queue, children...)
	}
	return out
}

func (g *pgidGroup) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	g.closed = true

	// Polite stop for tracked members, then an unconditional sweep of
	// the whole group for anything the walk missed.
	for _, p := range g.members() {
		_ = p.Terminate()
	}
	time.Sleep(100 * time.Millisecond)
	_ = unix.Kill(-g.pgid, unix.SIGKILL)
	return nil
}
