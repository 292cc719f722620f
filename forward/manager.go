// Package forward keeps the set of portproxy rules in line with the
// host's live interfaces. Rules are derived fresh on every
// reconciliation; nothing persists across restarts.
package forward

import (
	"log"
	"sync"
)

// Enumerator supplies the listen addresses eligible for forwarding.
type Enumerator func() ([]string, error)

// Manager owns the rule set. Reconcile and CleanupAll are serialized by
// an internal mutex; two reconciliations never overlap.
type Manager struct {
	mu        sync.Mutex
	commander Commander
	enumerate Enumerator
	rules     []Rule
}

func NewManager(commander Commander, enumerate Enumerator) *Manager {
	return &Manager{
		commander: commander,
		enumerate: enumerate,
	}
}

// Reconcile removes every active rule, re-enumerates the interfaces and
// installs one rule per discovered address forwarding to
// destination:port. Each removal and install is independent; a failure
// is logged and the rest proceed. Partial success is a terminal state,
// not an error.
func (m *Manager) Reconcile(port int, destination string) []Rule {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cleanupLocked()

	addrs, err := m.enumerate()
	if err != nil {
		log.Printf("interface enumeration failed: %v", err)
		addrs = nil
	}

	rules := make([]Rule, 0, len(addrs))
	for _, addr := range addrs {
		rule := Rule{
			ListenAddress:  addr,
			ListenPort:     port,
			ConnectAddress: destination,
			ConnectPort:    port,
		}
		if err := m.commander.Run(addArgs(addr, port, destination, port)...); err != nil {
			// Virtual adapters routinely reject portproxy installs;
			// keep going with the remaining interfaces.
			log.Printf("add forward %s failed: %v", rule, err)
		} else {
			rule.Active = true
		}
		rules = append(rules, rule)
	}
	m.rules = rules
	return m.snapshotLocked()
}

// CleanupAll removes every active rule. Idempotent and best-effort; a
// failed removal is logged and the rule still leaves the active set,
// matching rules-are-derived-fresh semantics.
func (m *Manager) CleanupAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanupLocked()
}

func (m *Manager) cleanupLocked() {
	for i := range m.rules {
		if !m.rules[i].Active {
			continue
		}
		if err := m.commander.Run(deleteArgs(m.rules[i].ListenAddress, m.rules[i].ListenPort)...); err != nil {
			log.Printf("remove forward %s failed: %v", m.rules[i], err)
		}
		m.rules[i].Active = false
	}
	m.rules = nil
}

// Rules returns a copy of the current rule set.
func (m *Manager) Rules() []Rule {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// ActivePorts returns the listen ports of active rules, one entry per
// rule, in install order.
func (m *Manager) ActivePorts() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ports []int
	for _, r := range m.rules {
		if r.Active {
			ports = append(ports, r.ListenPort)
		}
	}
	return ports
}

// ActiveCount returns the number of active rules.
func (m *Manager) ActiveCount() int {
	return len(m.ActivePorts())
}

func (m *Manager) snapshotLocked() []Rule {
	out := make([]Rule, len(m.rules))
	copy(out, m.rules)
	return out
}
