// Package readiness implements derived condition services (§4.9):
// predicate-backed pseudo-services that appear in the registry under the
// celix_condition interface name, with a condition.id property identifying
// which condition they represent, and are withdrawn when a recheck finds
// their predicate no longer holds. It is grounded on the teacher's atomic
// ready/not-ready toggle (system/framework/base.go's ServiceBase.SetReady)
// generalized from a single boolean per service to a named set of
// independently evaluated predicates published through the real service
// registry rather than a side-channel status field. The Manager opens no
// registry trackers of its own: a condition is re-evaluated only when
// Recheck or RecheckAll is called.
package readiness

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/arcforge/bundlehost/system/props"
	"github.com/arcforge/bundlehost/system/registry"
)

// ConditionInterface is the objectClass every condition service is
// registered under.
const ConditionInterface = "celix_condition"

// PropConditionID is the property identifying which condition a published
// celix_condition service represents.
const PropConditionID = "condition.id"

// FrameworkReadyCondition is the name of the condition the framework
// publishes once its startup sequence completes (§4.8 step 4).
const FrameworkReadyCondition = "framework.ready"

// Predicate reports whether a named condition currently holds.
type Predicate func() bool

// condition tracks one predicate's registration state against the
// registry: whether it is currently published, and under which service id.
type condition struct {
	name      string
	predicate Predicate
	serviceID int64
	published bool
}

// Manager owns the set of registered conditions and keeps each one's
// registry presence in sync with its predicate's current value.
type Manager struct {
	mu         sync.Mutex
	reg        *registry.Registry
	bundleID   int64
	conditions map[string]*condition
	log        *logrus.Logger
}

// New constructs a Manager that publishes condition services on behalf of
// bundleID (conventionally the system bundle, id 0).
func New(reg *registry.Registry, bundleID int64, log *logrus.Logger) *Manager {
	if log == nil {
		log = logrus.New()
	}
	return &Manager{reg: reg, bundleID: bundleID, conditions: make(map[string]*condition), log: log}
}

// Register adds a named condition and immediately evaluates it, publishing
// a celix_condition service if the predicate already holds.
func (m *Manager) Register(name string, predicate Predicate) {
	m.mu.Lock()
	c := &condition{name: name, predicate: predicate}
	m.conditions[name] = c
	m.mu.Unlock()
	m.Recheck(name)
}

// Unregister withdraws a condition entirely, removing its service if
// currently published.
func (m *Manager) Unregister(name string) {
	m.mu.Lock()
	c, ok := m.conditions[name]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.conditions, name)
	m.mu.Unlock()
	m.withdraw(c)
}

// Recheck re-evaluates a single condition and publishes or withdraws its
// service to match. Safe to call from any registry tracker callback.
func (m *Manager) Recheck(name string) {
	m.mu.Lock()
	c, ok := m.conditions[name]
	m.mu.Unlock()
	if !ok {
		return
	}

	holds := c.predicate()

	m.mu.Lock()
	defer m.mu.Unlock()
	if holds && !c.published {
		p := props.New()
		p.SetString(PropConditionID, name)
		id, err := m.reg.Register(ConditionInterface, struct{}{}, p, m.bundleID)
		if err != nil {
			m.log.WithError(err).WithField("condition", name).Warn("readiness: failed to publish condition")
			return
		}
		c.serviceID = id
		c.published = true
	} else if !holds && c.published {
		if err := m.reg.Unregister(c.serviceID); err != nil {
			m.log.WithError(err).WithField("condition", name).Warn("readiness: failed to withdraw condition")
			return
		}
		c.published = false
	}
}

// RecheckAll re-evaluates every registered condition; callers wire this to
// any registry tracker whose Add/Remove might change a predicate's value.
func (m *Manager) RecheckAll() {
	m.mu.Lock()
	names := make([]string, 0, len(m.conditions))
	for name := range m.conditions {
		names = append(names, name)
	}
	m.mu.Unlock()
	for _, name := range names {
		m.Recheck(name)
	}
}

// IsHeld reports whether name is currently published (without
// re-evaluating its predicate).
func (m *Manager) IsHeld(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conditions[name]
	return ok && c.published
}

func (m *Manager) withdraw(c *condition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.published {
		_ = m.reg.Unregister(c.serviceID)
		c.published = false
	}
}
