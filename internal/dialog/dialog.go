// Package dialog tracks the per-user state of the multi-step reservation
// construction. State is ephemeral: it lives in memory only and is
// discarded on restart, on /booking re-entry, on cancel and by the
// stall collector.
package dialog

import (
	"sync"
	"time"

	"booking-bot/internal/timeutil"
)

type Step int

const (
	StepCategory Step = iota + 1
	StepResource
	StepDate
	StepSlot
	StepStart
	StepDuration
	StepConfirm
)

func (s Step) String() string {
	switch s {
	case StepCategory:
		return "category"
	case StepResource:
		return "resource"
	case StepDate:
		return "date"
	case StepSlot:
		return "slot"
	case StepStart:
		return "start"
	case StepDuration:
		return "duration"
	case StepConfirm:
		return "confirm"
	default:
		return "unknown"
	}
}

// State is one user's in-flight reservation construction. Fields are
// filled in step order; earlier fields stay valid as later steps run.
type State struct {
	ChatID          int64
	AnchorMessageID int
	Step            Step

	Categories   []string
	Category     string
	ResourceID   int64
	ResourceName string
	Date         time.Time
	Slots        []timeutil.Interval
	Slot         timeutil.Interval
	Start        time.Time
	Duration     time.Duration

	UpdatedAt time.Time
}

// Manager owns the user -> dialog state map. States are stored and handed
// out by value: handlers mutate a working copy and store it back with
// Update, so the stall collector never shares memory with a handler
// goroutine.
type Manager struct {
	mu     sync.RWMutex
	states map[int64]State
}

func NewManager() *Manager {
	return &Manager{states: make(map[int64]State)}
}

// Begin starts a fresh dialog for the user, discarding any existing one,
// and returns a working copy.
func (m *Manager) Begin(userID, chatID int64, now time.Time) State {
	st := State{
		ChatID:    chatID,
		Step:      StepCategory,
		UpdatedAt: now,
	}

	m.mu.Lock()
	m.states[userID] = st
	m.mu.Unlock()

	return st
}

// Get returns a copy of the user's dialog state.
func (m *Manager) Get(userID int64) (State, bool) {
	m.mu.RLock()
	st, ok := m.states[userID]
	m.mu.RUnlock()
	return st, ok
}

// Update stores the caller's working copy and stamps it against the stall
// collector. A dialog collected or cleared in the meantime stays gone.
func (m *Manager) Update(userID int64, st State, now time.Time) {
	m.mu.Lock()
	if _, ok := m.states[userID]; ok {
		st.UpdatedAt = now
		m.states[userID] = st
	}
	m.mu.Unlock()
}

func (m *Manager) Clear(userID int64) {
	m.mu.Lock()
	delete(m.states, userID)
	m.mu.Unlock()
}

// CollectStalled drops dialogs idle longer than maxIdle and returns copies
// so the caller can tell the affected users.
func (m *Manager) CollectStalled(maxIdle time.Duration, now time.Time) map[int64]State {
	m.mu.Lock()
	defer m.mu.Unlock()

	var stalled map[int64]State
	for userID, st := range m.states {
		if now.Sub(st.UpdatedAt) < maxIdle {
			continue
		}
		if stalled == nil {
			stalled = make(map[int64]State)
		}
		stalled[userID] = st
		delete(m.states, userID)
	}
	return stalled
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.states)
}
