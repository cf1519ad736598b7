package alerts

import (
	"context"
	"sync"
	"time"
)

// StateStore remembers when each rule last triggered. A rule is in one
// of two states: Idle (never triggered, or cooldown elapsed) and
// Cooling-down. TryArm is the only transition into Cooling-down and it
// must be atomic, so two worker instances cannot both fire inside one
// cooldown window.
type StateStore interface {
	// TryArm transitions the rule Idle -> Cooling-down. It returns
	// false without mutating anything when the rule is already cooling
	// down.
	TryArm(ctx context.Context, ruleID string, now time.Time, cooldown time.Duration) (bool, error)

	// LastTriggered returns the last trigger time, ok=false if the rule
	// never triggered (or its record expired).
	LastTriggered(ctx context.Context, ruleID string) (time.Time, bool, error)
}

// MemoryState is a process-local state store. Single-instance only: it
// does not survive restarts and cannot coordinate multiple workers.
type MemoryState struct {
	mu   sync.Mutex
	last map[string]time.Time
}

// NewMemoryState creates an in-process state store.
func NewMemoryState() *MemoryState {
	return &MemoryState{last: make(map[string]time.Time)}
}

func (m *MemoryState) TryArm(ctx context.Context, ruleID string, now time.Time, cooldown time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if triggered, ok := m.last[ruleID]; ok && now.Sub(triggered) < cooldown {
		return false, nil
	}
	m.last[ruleID] = now
	return true, nil
}

func (m *MemoryState) LastTriggered(ctx context.Context, ruleID string) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	triggered, ok := m.last[ruleID]
	return triggered, ok, nil
}
