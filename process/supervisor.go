package process

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/google/uuid"
)

// State is the supervisor lifecycle state.
type State int

const (
	Idle State = iota
	Launching
	Running
	Terminating
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Launching:
		return "launching"
	case Running:
		return "running"
	case Terminating:
		return "terminating"
	}
	return "unknown"
}

var ErrNoExecutable = errors.New("no executable path configured")

// Supervisor owns at most one supervised process group at a time.
type Supervisor struct {
	mu      sync.Mutex
	launch  LaunchFunc
	group   Group
	pid     int
	state   State
	staging string
}

// NewSupervisor returns a supervisor backed by the platform group
// implementation.
func NewSupervisor() *Supervisor {
	return &Supervisor{launch: launchGroup}
}

// Launch starts path inside a fresh kill-on-close group with the two
// derived flags (--remote-debugging-port, --user-data-dir). A launch
// while a group already exists terminates the old one first; the
// supervisor never double-launches. On any step failure it unwinds
// fully and returns to Idle with the error.
func (s *Supervisor) Launch(path string, debugPort int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if path == "" {
		return ErrNoExecutable
	}
	if s.state != Idle {
		s.terminateLocked()
	}
	s.state = Launching

	staging := filepath.Join(os.TempDir(), "chrome_debug_"+uuid.NewString())
	if err := os.MkdirAll(staging, 0o700); err != nil {
		s.state = Idle
		return fmt.Errorf("create staging dir: %w", err)
	}

	args := []string{
		"--remote-debugging-port=" + strconv.Itoa(debugPort),
		"--user-data-dir=" + staging,
	}
	group, pid, err := s.launch(path, args)
	if err != nil {
		if rmErr := os.RemoveAll(staging); rmErr != nil {
			log.Printf("remove staging dir %s failed: %v", staging, rmErr)
		}
		s.state = Idle
		return fmt.Errorf("launch %s: %w", path, err)
	}

	s.group = group
	s.pid = pid
	s.staging = staging
	s.state = Running
	log.Printf("launched %s (pid %d, staging %s)", path, pid, staging)
	return nil
}

// IsAlive reports whether the supervised group still has at least one
// active member. The primary process exiting does not mean dead.
func (s *Supervisor) IsAlive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == Running && s.group != nil && s.group.ActiveProcesses() > 0
}

// Terminate closes the group (killing every member), removes the
// staging directory and returns to Idle. Valid from any state and
// idempotent; it never fails.
func (s *Supervisor) Terminate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terminateLocked()
}

func (s *Supervisor) terminateLocked() {
	s.state = Terminating
	if s.group != nil {
		if err := s.group.Close(); err != nil {
			log.Printf("close process group: %v", err)
		}
		s.group = nil
	}
	if s.staging != "" {
		// Best-effort: a locked profile file must not block shutdown.
		if err := os.RemoveAll(s.staging); err != nil {
			log.Printf("remove staging dir %s failed: %v", s.staging, err)
		}
		s.staging = ""
	}
	s.pid = 0
	s.state = Idle
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Pid returns the primary pid, zero when idle.
func (s *Supervisor) Pid() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pid
}
