package providers

import (
	"time"
)

// Status enumerates a provider's operational state.
type Status string

const (
	StatusHealthy     Status = "healthy"
	StatusDegraded    Status = "degraded"
	StatusUnavailable Status = "unavailable"
)

// degradedErrorRate is the rolling error rate above which a provider that is
// still answering requests is reported as degraded rather than healthy.
const degradedErrorRate = 0.25

// HealthState is the rolling view of a provider's operational status.
// Rolling latency and error rate use an exponentially-weighted moving
// average so memory stays constant regardless of traffic volume.
type HealthState struct {
	Status              Status
	ConsecutiveFailures int
	LastSuccess         time.Time
	LastFailure         time.Time
	AvgLatencyMs        float64
	ErrorRate           float64
	Observations        int64
}

// newHealthState returns the initial state for a freshly registered provider.
func newHealthState() HealthState {
	return HealthState{Status: StatusHealthy}
}

// observe folds one request outcome into the rolling state.
// alpha is the EWMA smoothing factor; failureThreshold is the consecutive
// failure count that flips the provider to unavailable.
func (h *HealthState) observe(success bool, latency time.Duration, now time.Time, alpha float64, failureThreshold int) {
	latencyMs := float64(latency.Milliseconds())
	errSample := 1.0
	if success {
		errSample = 0.0
	}

	if h.Observations == 0 {
		h.AvgLatencyMs = latencyMs
		h.ErrorRate = errSample
	} else {
		h.AvgLatencyMs = alpha*latencyMs + (1-alpha)*h.AvgLatencyMs
		h.ErrorRate = alpha*errSample + (1-alpha)*h.ErrorRate
	}
	h.Observations++

	if success {
		h.ConsecutiveFailures = 0
		h.LastSuccess = now
		// A single successful request brings an unavailable provider back
		h.Status = StatusHealthy
		if h.ErrorRate > degradedErrorRate {
			h.Status = StatusDegraded
		}
		return
	}

	h.ConsecutiveFailures++
	h.LastFailure = now
	if h.ConsecutiveFailures >= failureThreshold {
		h.Status = StatusUnavailable
	} else if h.ErrorRate > degradedErrorRate {
		h.Status = StatusDegraded
	}
}

// markUnavailable forces the unavailable state (out-of-band probe failures).
func (h *HealthState) markUnavailable(now time.Time) {
	h.Status = StatusUnavailable
	h.LastFailure = now
}

// markHealthy clears the failure streak and restores the healthy state.
func (h *HealthState) markHealthy(now time.Time) {
	h.Status = StatusHealthy
	h.ConsecutiveFailures = 0
	h.LastSuccess = now
}
