package launcher

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JPITSG/ChromeDevLauncher/config"
	"github.com/JPITSG/ChromeDevLauncher/forward"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(ev string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	copy(out, r.events)
	return out
}

type fakeRules struct {
	rec    *recorder
	mu     sync.Mutex
	active []int
}

func (f *fakeRules) Reconcile(port int, destination string) []forward.Rule {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.active) != 0 {
		panic("reconcile entered with active rules still installed")
	}
	f.rec.add("reconcile")
	f.active = []int{port}
	return []forward.Rule{{ListenAddress: "192.168.1.10", ListenPort: port, ConnectAddress: destination, ConnectPort: port, Active: true}}
}

func (f *fakeRules) CleanupAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rec.add("cleanup")
	f.active = nil
}

func (f *fakeRules) ActivePorts() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int, len(f.active))
	copy(out, f.active)
	return out
}

type fakeProc struct {
	rec       *recorder
	mu        sync.Mutex
	alive     bool
	launchErr error
}

func (f *fakeProc) Launch(path string, debugPort int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rec.add("launch")
	if f.launchErr != nil {
		return f.launchErr
	}
	f.alive = true
	return nil
}

func (f *fakeProc) IsAlive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive
}

func (f *fakeProc) Terminate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rec.add("terminate")
	f.alive = false
}

func (f *fakeProc) die() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alive = false
}

type fakePoller struct {
	mu         sync.Mutex
	responding bool
	version    string
}

func (f *fakePoller) Poll(host string, port int) (bool, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.responding, f.version
}

func (f *fakePoller) set(responding bool, version string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responding = responding
	f.version = version
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.ExecutablePath = "/usr/bin/chrome"
	cfg.PollIntervalSeconds = 5
	return cfg
}

func newTestLauncher(t *testing.T, cfg config.Config) (*Launcher, *recorder, *fakeRules, *fakeProc, *fakePoller) {
	t.Helper()
	store, err := config.NewStore(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)
	require.NoError(t, store.Save(cfg))

	rec := &recorder{}
	rules := &fakeRules{rec: rec}
	proc := &fakeProc{rec: rec}
	poller := &fakePoller{}

	l := New(store, rules, proc, poller)
	l.liveness = 10 * time.Millisecond
	l.settle = time.Millisecond
	return l, rec, rules, proc, poller
}

func TestStartReconcilesBeforeLaunch(t *testing.T) {
	l, rec, _, _, poller := newTestLauncher(t, testConfig())
	poller.set(true, "9.1.0")

	l.Start()
	defer l.Stop()

	assert.Eventually(t, func() bool {
		return l.Snapshot().Line1 == "Connected: 9.1.0"
	}, time.Second, 5*time.Millisecond)

	events := rec.all()
	require.GreaterOrEqual(t, len(events), 2)
	assert.Equal(t, "reconcile", events[0])
	assert.Equal(t, "launch", events[1])

	snap := l.Snapshot()
	assert.Equal(t, "API: Responding", snap.Line2)
	assert.Equal(t, "Forwards: Active (9222)", snap.Line3)
	assert.Equal(t, 1, snap.ForwardCount)
}

func TestUnconfiguredDoesNotLaunch(t *testing.T) {
	l, rec, _, _, _ := newTestLauncher(t, config.Default())
	l.Start()
	defer l.Stop()

	assert.Eventually(t, func() bool {
		return l.Snapshot().Line1 == "Not configured"
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, rec.all())
}

func TestRestartOrdering(t *testing.T) {
	l, rec, _, _, _ := newTestLauncher(t, testConfig())
	l.Start()
	defer l.Stop()

	assert.Eventually(t, func() bool { return l.Snapshot().Running }, time.Second, 5*time.Millisecond)

	next := l.Config()
	next.DebugPort = 9333
	require.NoError(t, l.SetConfig(next))

	// terminate -> cleanup -> reconcile -> launch; the fakeRules panic
	// guard additionally proves no two rule sets ever overlap.
	events := rec.all()
	require.GreaterOrEqual(t, len(events), 6)
	assert.Equal(t, []string{"terminate", "cleanup", "reconcile", "launch"}, events[2:6])
	assert.Contains(t, l.Snapshot().Line3, "9333")
}

func TestIntervalChangeDoesNotRestart(t *testing.T) {
	l, rec, _, _, _ := newTestLauncher(t, testConfig())
	l.Start()
	defer l.Stop()

	assert.Eventually(t, func() bool { return l.Snapshot().Running }, time.Second, 5*time.Millisecond)
	before := len(rec.all())

	next := l.Config()
	next.PollIntervalSeconds = 30
	require.NoError(t, l.SetConfig(next))

	assert.Len(t, rec.all(), before)
	assert.Equal(t, 30, l.Config().PollIntervalSeconds)
}

func TestLivenessReapsDeadGroup(t *testing.T) {
	l, _, rules, proc, _ := newTestLauncher(t, testConfig())
	l.Start()
	defer l.Stop()

	assert.Eventually(t, func() bool { return l.Snapshot().Running }, time.Second, 5*time.Millisecond)

	proc.die()
	assert.Eventually(t, func() bool {
		return l.Snapshot().Line1 == "Process not running"
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, rules.ActivePorts(), "rules must be removed when the group dies")
}

func TestUnconfigureStopsProcess(t *testing.T) {
	l, _, _, proc, _ := newTestLauncher(t, testConfig())
	l.Start()
	defer l.Stop()

	assert.Eventually(t, func() bool { return l.Snapshot().Running }, time.Second, 5*time.Millisecond)

	next := l.Config()
	next.ExecutablePath = ""
	require.NoError(t, l.SetConfig(next))

	assert.False(t, proc.IsAlive())
	assert.Equal(t, "Not configured", l.Snapshot().Line1)
}

func TestLaunchErrorSurfaced(t *testing.T) {
	l, _, _, proc, _ := newTestLauncher(t, config.Default())
	proc.launchErr = errors.New("no such file")
	l.Start()
	defer l.Stop()

	assert.Eventually(t, func() bool {
		return l.Snapshot().Line1 == "Not configured"
	}, time.Second, 5*time.Millisecond)

	next := l.Config()
	next.ExecutablePath = "/bad/path"
	err := l.SetConfig(next)
	assert.Error(t, err)
	assert.Equal(t, "Process not running", l.Snapshot().Line1)
}

func TestSetConfigRejectsInvalid(t *testing.T) {
	l, _, _, _, _ := newTestLauncher(t, testConfig())
	l.Start()
	defer l.Stop()

	bad := l.Config()
	bad.DebugPort = 0
	assert.Error(t, l.SetConfig(bad))
}

func TestSubscribeReceivesChanges(t *testing.T) {
	l, _, _, _, poller := newTestLauncher(t, testConfig())
	sub := l.Subscribe()
	poller.set(true, "9.1.0")
	l.Start()
	defer l.Stop()

	deadline := time.After(time.Second)
	for {
		select {
		case snap := <-sub:
			if snap.Line1 == "Connected: 9.1.0" {
				return
			}
		case <-deadline:
			t.Fatal("no status change delivered to subscriber")
		}
	}
}

func TestStopCleansUp(t *testing.T) {
	l, rec, rules, proc, _ := newTestLauncher(t, testConfig())
	l.Start()
	assert.Eventually(t, func() bool { return l.Snapshot().Running }, time.Second, 5*time.Millisecond)

	l.Stop()
	assert.False(t, proc.IsAlive())
	assert.Empty(t, rules.ActivePorts())
	events := rec.all()
	assert.Equal(t, "cleanup", events[len(events)-1])
}
