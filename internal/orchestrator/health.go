package orchestrator

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
)

// LayerStatus is a layer's health classification.
type LayerStatus uint8

const (
	Healthy LayerStatus = iota
	Degraded
)

func (s LayerStatus) String() string {
	if s == Degraded {
		return "Degraded"
	}
	return "Healthy"
}

// HealthTracker records per-layer heartbeats and demotes a layer to
// Degraded once it misses its timeout
type HealthTracker struct {
	mu        sync.Mutex
	timeout   time.Duration
	lastBeat  map[string]time.Time
}

// NewHealthTracker constructs a HealthTracker with the given per-layer
// heartbeat timeout.
func NewHealthTracker(timeout time.Duration) *HealthTracker {
	return &HealthTracker{timeout: timeout, lastBeat: make(map[string]time.Time)}
}

// Heartbeat records that layer is alive as of now.
func (h *HealthTracker) Heartbeat(layer string, now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastBeat[layer] = now
}

// Status reports layer's health as of now. A layer that has never
// heartbeated is Degraded.
func (h *HealthTracker) Status(layer string, now time.Time) LayerStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	last, ok := h.lastBeat[layer]
	if !ok || now.Sub(last) > h.timeout {
		return Degraded
	}
	return Healthy
}

// CheckAll evaluates every layer that has ever heartbeated and returns an
// aggregated error (via multierr, so no single degraded layer's report is
// dropped in favor of another) naming each Degraded one. Returns nil if
// every tracked layer is Healthy.
func (h *HealthTracker) CheckAll(now time.Time) error {
	h.mu.Lock()
	layers := make([]string, 0, len(h.lastBeat))
	for l := range h.lastBeat {
		layers = append(layers, l)
	}
	h.mu.Unlock()

	var err error
	for _, l := range layers {
		if h.Status(l, now) == Degraded {
			err = multierr.Append(err, fmt.Errorf("layer %q is degraded", l))
		}
	}
	return err
}
