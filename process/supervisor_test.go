package process

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGroup counts as alive until closed.
type fakeGroup struct {
	active int
	closed bool
}

func (g *fakeGroup) ActiveProcesses() int {
	if g.closed {
		return 0
	}
	return g.active
}

func (g *fakeGroup) Close() error {
	g.closed = true
	return nil
}

type fakeLauncher struct {
	groups   []*fakeGroup
	launches int
	args     [][]string
	fail     bool
}

func (f *fakeLauncher) launch(path string, args []string) (Group, int, error) {
	f.launches++
	f.args = append(f.args, args)
	if f.fail {
		return nil, 0, errors.New("exec format error")
	}
	g := &fakeGroup{active: 3}
	f.groups = append(f.groups, g)
	return g, 4242 + f.launches, nil
}

func newTestSupervisor(f *fakeLauncher) *Supervisor {
	return &Supervisor{launch: f.launch}
}

func TestLaunchTransitionsToRunning(t *testing.T) {
	f := &fakeLauncher{}
	s := newTestSupervisor(f)

	require.NoError(t, s.Launch("/usr/bin/chrome", 9222))
	assert.Equal(t, Running, s.State())
	assert.True(t, s.IsAlive())
	assert.NotZero(t, s.Pid())

	require.Len(t, f.args, 1)
	assert.Equal(t, "--remote-debugging-port=9222", f.args[0][0])
	assert.Contains(t, f.args[0][1], "--user-data-dir=")

	s.Terminate()
}

func TestLaunchEmptyPathRejected(t *testing.T) {
	s := newTestSupervisor(&fakeLauncher{})
	assert.ErrorIs(t, s.Launch("", 9222), ErrNoExecutable)
	assert.Equal(t, Idle, s.State())
}

func TestLaunchFailureUnwindsToIdle(t *testing.T) {
	f := &fakeLauncher{fail: true}
	s := newTestSupervisor(f)

	err := s.Launch("/bad/path", 9222)
	assert.Error(t, err)
	assert.Equal(t, Idle, s.State())
	assert.False(t, s.IsAlive())
	assert.Empty(t, s.staging)
}

func TestDoubleLaunchTerminatesPrevious(t *testing.T) {
	f := &fakeLauncher{}
	s := newTestSupervisor(f)

	require.NoError(t, s.Launch("/usr/bin/chrome", 9222))
	require.NoError(t, s.Launch("/usr/bin/chrome", 9222))

	assert.Equal(t, 2, f.launches)
	require.Len(t, f.groups, 2)
	assert.True(t, f.groups[0].closed, "first group must be closed")
	assert.False(t, f.groups[1].closed)
	assert.True(t, s.IsAlive())

	s.Terminate()
}

func TestTerminateIdempotentFromIdle(t *testing.T) {
	s := newTestSupervisor(&fakeLauncher{})
	s.Terminate()
	s.Terminate()
	assert.Equal(t, Idle, s.State())
	assert.False(t, s.IsAlive())
}

func TestTerminateClosesGroupAndRemovesStaging(t *testing.T) {
	f := &fakeLauncher{}
	s := newTestSupervisor(f)

	require.NoError(t, s.Launch("/usr/bin/chrome", 9222))
	staging := s.staging
	_, err := os.Stat(staging)
	require.NoError(t, err, "staging dir must exist while running")

	s.Terminate()
	assert.True(t, f.groups[0].closed)
	assert.False(t, s.IsAlive())
	_, err = os.Stat(staging)
	assert.True(t, os.IsNotExist(err), "staging dir must be removed")
}

func TestIsAliveFollowsGroupAccounting(t *testing.T) {
	f := &fakeLauncher{}
	s := newTestSupervisor(f)

	require.NoError(t, s.Launch("/usr/bin/chrome", 9222))
	// Primary exits but descendants remain: still alive.
	f.groups[0].active = 1
	assert.True(t, s.IsAlive())
	// Whole group gone: dead even though state is still Running.
	f.groups[0].active = 0
	assert.False(t, s.IsAlive())

	s.Terminate()
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "running", Running.String())
}
