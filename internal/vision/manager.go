package vision

import (
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/your-org/inspectline/internal/observability"
	"github.com/your-org/inspectline/internal/types"
)

// ModelManager owns a primary and up to two auxiliary sessions and
// runs the cascade: try primary; if it sees nothing and fallback is
// enabled, try aux1, then aux2 as the terminal tier.
type ModelManager struct {
	mu             sync.Mutex
	primary        InferenceSession
	aux1           InferenceSession
	aux2           InferenceSession
	enableFallback bool
	taskMode       types.TaskType
	taskModeSet    bool

	primaryHit atomic.Uint64
	aux1Hit    atomic.Uint64
	aux2Hit    atomic.Uint64
	total      atomic.Uint64
}

// NewModelManager returns an empty manager; sessions are added via
// LoadPrimary/LoadAuxiliary1/LoadAuxiliary2.
func NewModelManager(enableFallback bool) *ModelManager {
	return &ModelManager{enableFallback: enableFallback}
}

// SetEnableFallback toggles whether the cascade proceeds past the
// primary tier.
func (m *ModelManager) SetEnableFallback(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enableFallback = v
}

// LoadPrimary atomically replaces the primary session, closing the
// old one. Passing nil empties the slot.
func (m *ModelManager) LoadPrimary(s InferenceSession) {
	m.replace(&m.primary, s)
}

// LoadAuxiliary1 atomically replaces the aux1 session.
func (m *ModelManager) LoadAuxiliary1(s InferenceSession) {
	m.replace(&m.aux1, s)
}

// LoadAuxiliary2 atomically replaces the aux2 session.
func (m *ModelManager) LoadAuxiliary2(s InferenceSession) {
	m.replace(&m.aux2, s)
}

// UnloadAuxiliary1 drops the aux1 session.
func (m *ModelManager) UnloadAuxiliary1() { m.LoadAuxiliary1(nil) }

// UnloadAuxiliary2 drops the aux2 session.
func (m *ModelManager) UnloadAuxiliary2() { m.LoadAuxiliary2(nil) }

func (m *ModelManager) replace(slot *InferenceSession, s InferenceSession) {
	m.mu.Lock()
	old := *slot
	*slot = s
	m.mu.Unlock()

	if old != nil {
		if closer, ok := old.(interface{ Close() }); ok {
			closer.Close()
		}
	}
}

// InferWithFallback runs the cascade: try primary; if empty and
// fallback is enabled, try aux1, then aux2. targetLabel is accepted
// for API symmetry with older callers but does not gate cascade
// progression; label/count policy lives entirely in the policy
// package.
func (m *ModelManager) InferWithFallback(src types.Image, cfg RunConfig, targetLabel string) (types.CascadeOutcome, Timing) {
	_ = targetLabel

	m.mu.Lock()
	primary, aux1, aux2, fallbackOn := m.primary, m.aux1, m.aux2, m.enableFallback
	mode, modeSet := m.taskMode, m.taskModeSet
	m.mu.Unlock()

	if !m.sessionUsable(primary, mode, modeSet) {
		primary = nil
	}
	if !m.sessionUsable(aux1, mode, modeSet) {
		aux1 = nil
	}
	if !m.sessionUsable(aux2, mode, modeSet) {
		aux2 = nil
	}

	m.total.Add(1)

	if primary != nil {
		dets, timing, err := Run(primary, src, cfg)
		if err != nil {
			slog.Warn("primary model inference failed", "model", primary.Path(), "error", err)
		} else if len(dets) > 0 {
			m.primaryHit.Add(1)
			observability.CascadeHits.WithLabelValues("primary").Inc()
			return outcome(dets, types.RolePrimary, primary, false), timing
		}
		slog.Info("primary model returned no detections", "model", primary.Path())
		if !fallbackOn {
			return types.CascadeOutcome{UsedRole: types.RolePrimary, WasFallback: false}, timing
		}
	}

	if !fallbackOn {
		return types.CascadeOutcome{UsedRole: types.RolePrimary, WasFallback: false}, Timing{}
	}

	if aux1 != nil {
		dets, timing, err := Run(aux1, src, cfg)
		if err != nil {
			slog.Warn("aux1 model inference failed", "model", aux1.Path(), "error", err)
		} else if len(dets) > 0 {
			m.aux1Hit.Add(1)
			observability.CascadeHits.WithLabelValues("aux1").Inc()
			return outcome(dets, types.RoleAuxiliary1, aux1, true), timing
		}
	}

	if aux2 != nil {
		// Aux2 is the terminal fallback tier: its hit counter
		// increments unconditionally, whether or not it detects
		// anything. Asymmetric with aux1, and relied on by the
		// hit-rate dashboards, so keep it that way.
		dets, timing, err := Run(aux2, src, cfg)
		m.aux2Hit.Add(1)
		observability.CascadeHits.WithLabelValues("aux2").Inc()
		if err != nil {
			slog.Warn("aux2 model inference failed", "model", aux2.Path(), "error", err)
			return types.CascadeOutcome{UsedRole: types.RoleAuxiliary2, WasFallback: true}, timing
		}
		return outcome(dets, types.RoleAuxiliary2, aux2, true), timing
	}

	return types.CascadeOutcome{UsedRole: types.RoleNone, WasFallback: fallbackOn}, Timing{}
}

func outcome(dets []types.Detection, role types.ModelRole, s InferenceSession, fallback bool) types.CascadeOutcome {
	return types.CascadeOutcome{
		Detections:    dets,
		UsedRole:      role,
		UsedModelName: modelName(s.Path()),
		UsedLabels:    s.Labels(),
		WasFallback:   fallback,
	}
}

func modelName(path string) string {
	if i := strings.LastIndexAny(path, "/\\"); i >= 0 {
		return path[i+1:]
	}
	return path
}

// SetTaskMode records the configured task type for the cascade. A
// session owns a fixed task type from load time, so "propagation"
// here means enforcement: a loaded session whose task disagrees with
// the mode is skipped by the cascade (treated like a backend failure,
// falling through to the next tier) rather than decoded with the
// wrong layout.
func (m *ModelManager) SetTaskMode(task types.TaskType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.taskMode = task
	m.taskModeSet = true
}

func (m *ModelManager) sessionUsable(s InferenceSession, mode types.TaskType, modeSet bool) bool {
	if s == nil {
		return false
	}
	if modeSet && s.TaskType() != mode {
		slog.Warn("session task type disagrees with configured task mode, skipping",
			"model", s.Path(), "session_task", s.TaskType().String(), "mode", mode.String())
		return false
	}
	return true
}

// Stats returns the cascade hit counters (primary_hit, aux1_hit,
// aux2_hit, total).
func (m *ModelManager) Stats() (primaryHit, aux1Hit, aux2Hit, total uint64) {
	return m.primaryHit.Load(), m.aux1Hit.Load(), m.aux2Hit.Load(), m.total.Load()
}

// ResetStatistics clears all four cascade counters.
func (m *ModelManager) ResetStatistics() {
	m.primaryHit.Store(0)
	m.aux1Hit.Store(0)
	m.aux2Hit.Store(0)
	m.total.Store(0)
}

// Close releases any loaded sessions.
func (m *ModelManager) Close() {
	m.mu.Lock()
	sessions := []InferenceSession{m.primary, m.aux1, m.aux2}
	m.primary, m.aux1, m.aux2 = nil, nil, nil
	m.mu.Unlock()

	for _, s := range sessions {
		if s == nil {
			continue
		}
		if closer, ok := s.(interface{ Close() }); ok {
			closer.Close()
		}
	}
}
