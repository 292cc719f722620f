// Package launcher owns the four core entities (configuration, rule
// set, supervised process, status snapshot) and drives them from a
// single event loop: a configurable poll tick for health/status, a fast
// liveness tick for the process group, and explicit restart sequences on
// configuration changes. All state mutation happens on the loop
// goroutine; the health probe is the only blocking call and runs off
// the loop with its result posted back.
package launcher

import (
	"log"
	"sync"
	"time"

	"github.com/JPITSG/ChromeDevLauncher/config"
	"github.com/JPITSG/ChromeDevLauncher/forward"
	"github.com/JPITSG/ChromeDevLauncher/status"
)

const (
	livenessInterval = time.Second
	settleDelay      = 500 * time.Millisecond
)

// RuleManager is the forwarding-rule reconciliation surface.
type RuleManager interface {
	Reconcile(port int, destination string) []forward.Rule
	CleanupAll()
	ActivePorts() []int
}

// Supervisor is the process lifecycle surface.
type Supervisor interface {
	Launch(path string, debugPort int) error
	IsAlive() bool
	Terminate()
}

// HealthPoller probes the debug endpoint.
type HealthPoller interface {
	Poll(host string, port int) (responding bool, version string)
}

type healthResult struct {
	responding bool
	version    string
}

type configRequest struct {
	cfg   config.Config
	reply chan error
}

// Launcher is the supervisor object holding all shared state; it is the
// only writer of that state.
type Launcher struct {
	store   *config.Store
	rules   RuleManager
	proc    Supervisor
	monitor HealthPoller

	configCh  chan configRequest
	restartCh chan chan error
	healthCh  chan healthResult
	stopCh    chan struct{}
	doneCh    chan struct{}

	liveness time.Duration
	settle   time.Duration

	// loop-owned state
	cfg        config.Config
	launched   bool
	checking   bool
	responding bool
	version    string

	// read-side copies for the API server
	mu       sync.RWMutex
	snapshot status.Snapshot
	public   config.Config
	subs     []chan status.Snapshot
}

func New(store *config.Store, rules RuleManager, proc Supervisor, monitor HealthPoller) *Launcher {
	var cfg config.Config
	if store.Exists() {
		cfg = store.Load()
	} else {
		cfg = store.FirstLaunch()
	}
	return &Launcher{
		store:     store,
		rules:     rules,
		proc:      proc,
		monitor:   monitor,
		configCh:  make(chan configRequest),
		restartCh: make(chan chan error),
		healthCh:  make(chan healthResult, 1),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
		liveness:  livenessInterval,
		settle:    settleDelay,
		cfg:       cfg,
		public:    cfg,
	}
}

// Start brings up the supervised process (when configured) and runs the
// event loop until Stop.
func (l *Launcher) Start() {
	go l.run()
}

// Stop tears everything down: process group, forwarding rules, staging
// directory. Best-effort; it never fails.
func (l *Launcher) Stop() {
	close(l.stopCh)
	<-l.doneCh
}

// SetConfig validates, persists and applies a new configuration. The
// returned error is a launch error when the apply required a (re)start
// that failed; the configuration itself is still saved.
func (l *Launcher) SetConfig(cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	req := configRequest{cfg: cfg, reply: make(chan error, 1)}
	select {
	case l.configCh <- req:
		return <-req.reply
	case <-l.stopCh:
		return nil
	}
}

// Restart forces the terminate/settle/reconcile/launch sequence.
func (l *Launcher) Restart() error {
	reply := make(chan error, 1)
	select {
	case l.restartCh <- reply:
		return <-reply
	case <-l.stopCh:
		return nil
	}
}

// Config returns the current configuration.
func (l *Launcher) Config() config.Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.public
}

// Snapshot returns the latest status snapshot.
func (l *Launcher) Snapshot() status.Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshot
}

// Subscribe returns a channel receiving every status change. Slow
// subscribers miss intermediate snapshots rather than blocking the loop.
func (l *Launcher) Subscribe() <-chan status.Snapshot {
	ch := make(chan status.Snapshot, 8)
	l.mu.Lock()
	l.subs = append(l.subs, ch)
	l.mu.Unlock()
	return ch
}

func (l *Launcher) run() {
	defer close(l.doneCh)

	if l.cfg.Configured() {
		l.rules.Reconcile(l.cfg.DebugPort, l.cfg.DestinationAddress)
		if err := l.proc.Launch(l.cfg.ExecutablePath, l.cfg.DebugPort); err != nil {
			log.Printf("initial launch failed: %v", err)
		} else {
			l.launched = true
		}
	}
	l.updateStatus()
	l.startHealthCheck()

	poll := time.NewTicker(l.pollInterval())
	defer poll.Stop()
	live := time.NewTicker(l.liveness)
	defer live.Stop()

	for {
		select {
		case <-poll.C:
			l.startHealthCheck()

		case <-live.C:
			if l.launched && !l.proc.IsAlive() {
				// Every group member exited on its own; release the
				// rules and staging data they were serving.
				log.Printf("supervised process group is empty, cleaning up")
				l.stopProcess()
				l.updateStatus()
			}

		case res := <-l.healthCh:
			l.checking = false
			l.responding = res.responding
			l.version = res.version
			l.updateStatus()

		case req := <-l.configCh:
			req.reply <- l.applyConfig(req.cfg, poll)

		case reply := <-l.restartCh:
			reply <- l.restart()

		case <-l.stopCh:
			l.stopProcess()
			l.updateStatus()
			return
		}
	}
}

func (l *Launcher) pollInterval() time.Duration {
	return time.Duration(l.cfg.PollIntervalSeconds) * time.Second
}

// startHealthCheck runs one poll off the loop goroutine; the result
// comes back through healthCh so only the loop touches state. At most
// one probe is in flight.
func (l *Launcher) startHealthCheck() {
	if l.checking {
		return
	}
	if !l.cfg.Configured() {
		l.responding = false
		l.version = ""
		return
	}
	l.checking = true
	host, port := l.cfg.DestinationAddress, l.cfg.DebugPort
	go func() {
		responding, version := l.monitor.Poll(host, port)
		select {
		case l.healthCh <- healthResult{responding: responding, version: version}:
		case <-l.stopCh:
		}
	}()
}

// stopProcess tears down the process group and the forwarding rules.
// Unconditional best-effort; used by liveness reaping, reconfiguration
// and shutdown.
func (l *Launcher) stopProcess() {
	l.proc.Terminate()
	l.rules.CleanupAll()
	l.launched = false
	l.responding = false
	l.version = ""
}

// restart runs the full sequence: terminate (which also removes all
// rules), a short settle delay, reconciliation, then launch.
func (l *Launcher) restart() error {
	l.stopProcess()
	time.Sleep(l.settle)
	l.rules.Reconcile(l.cfg.DebugPort, l.cfg.DestinationAddress)
	err := l.proc.Launch(l.cfg.ExecutablePath, l.cfg.DebugPort)
	if err == nil {
		l.launched = true
	} else {
		log.Printf("relaunch failed: %v", err)
	}
	l.updateStatus()
	l.startHealthCheck()
	return err
}

func (l *Launcher) applyConfig(next config.Config, poll *time.Ticker) error {
	if err := l.store.Save(next); err != nil {
		log.Printf("persist config failed: %v", err)
	}
	prev := l.cfg
	l.cfg = next
	l.mu.Lock()
	l.public = next
	l.mu.Unlock()

	if prev.PollIntervalSeconds != next.PollIntervalSeconds {
		poll.Reset(l.pollInterval())
	}

	var err error
	switch {
	case !next.Configured():
		if l.launched {
			l.stopProcess()
		}
	case l.launched && prev.NeedsRestart(next):
		err = l.restart()
	case !l.launched:
		l.rules.Reconcile(next.DebugPort, next.DestinationAddress)
		err = l.proc.Launch(next.ExecutablePath, next.DebugPort)
		if err == nil {
			l.launched = true
			l.startHealthCheck()
		}
	}
	l.updateStatus()
	return err
}

// updateStatus recomputes the snapshot from current component state and
// fans it out when it changed.
func (l *Launcher) updateStatus() {
	snap := status.Aggregate(status.Inputs{
		Configured:  l.cfg.Configured(),
		Alive:       l.launched && l.proc.IsAlive(),
		Responding:  l.responding,
		ActivePorts: l.rules.ActivePorts(),
		Version:     l.version,
	})

	l.mu.Lock()
	changed := snap != l.snapshot
	if changed {
		l.snapshot = snap
	}
	subs := l.subs
	l.mu.Unlock()

	if !changed {
		return
	}
	for _, ch := range subs {
		select {
		case ch <- snap:
		default:
		}
	}
}
