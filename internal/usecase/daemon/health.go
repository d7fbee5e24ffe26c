package daemon

import "sync"

// HealthTracker counts consecutive failed poll cycles and reports a degraded
// daemon once the threshold is crossed. The escalation policy itself (what
// to page, when to hibernate) lives behind the hook; this type only observes.
type HealthTracker struct {
	mu          sync.Mutex
	threshold   int
	consecutive int
	degraded    bool
	hook        func(degraded bool)
}

const defaultDegradedAfter = 3

// NewHealthTracker builds a tracker that flips to degraded after threshold
// consecutive failures. hook, when non-nil, is invoked on every transition.
func NewHealthTracker(threshold int, hook func(degraded bool)) *HealthTracker {
	if threshold <= 0 {
		threshold = defaultDegradedAfter
	}
	return &HealthTracker{threshold: threshold, hook: hook}
}

// SetHook replaces the transition hook. Intended for wiring the external
// alerting sink after construction.
func (h *HealthTracker) SetHook(hook func(degraded bool)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hook = hook
}

func (h *HealthTracker) RecordSuccess() {
	h.mu.Lock()
	h.consecutive = 0
	transition := h.degraded
	h.degraded = false
	hook := h.hook
	h.mu.Unlock()

	if transition && hook != nil {
		hook(false)
	}
}

func (h *HealthTracker) RecordFailure() {
	h.mu.Lock()
	h.consecutive++
	transition := !h.degraded && h.consecutive >= h.threshold
	if transition {
		h.degraded = true
	}
	hook := h.hook
	h.mu.Unlock()

	if transition && hook != nil {
		hook(true)
	}
}

func (h *HealthTracker) Degraded() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.degraded
}
