// Package shake turns a stream of 3-axis accelerometer samples into discrete
// shake events: a debounced edge-trigger over a noisy signal.
package shake

import (
	"math"
	"time"
)

// Metric selects how a sample is reduced to one number.
type Metric int

const (
	// MetricDeltaSum is the sum of absolute per-axis deltas versus the
	// previous sample. The first sample can never trigger.
	MetricDeltaSum Metric = iota
	// MetricMagnitude is the vector magnitude of the current sample.
	MetricMagnitude
)

// Defaults matching the two call sites this detector unifies: the app-wide
// shake context used delta-sum with a 1s cooldown, the camera shortcut used
// magnitude with a 2s cooldown.
const (
	DefaultDeltaThreshold     = 1.5
	DefaultDeltaCooldown      = time.Second
	DefaultMagnitudeThreshold = 2.5
	DefaultMagnitudeCooldown  = 2 * time.Second
)

// Detector raises a shake event when the configured metric crosses Threshold
// and at least Cooldown has elapsed since the last event. State is just the
// previous sample and the last event time.
type Detector struct {
	Metric    Metric
	Threshold float64
	Cooldown  time.Duration

	hasPrev             bool
	prevX, prevY, prevZ float64
	lastEvent           time.Time
}

func New(metric Metric, threshold float64, cooldown time.Duration) *Detector {
	return &Detector{Metric: metric, Threshold: threshold, Cooldown: cooldown}
}

// NewDefault returns a detector with the standard parameters for the metric.
func NewDefault(metric Metric) *Detector {
	if metric == MetricMagnitude {
		return New(metric, DefaultMagnitudeThreshold, DefaultMagnitudeCooldown)
	}
	return New(metric, DefaultDeltaThreshold, DefaultDeltaCooldown)
}

// Sample feeds one accelerometer reading taken at the given time and reports
// whether it triggers a shake event.
func (d *Detector) Sample(x, y, z float64, at time.Time) bool {
	value, ok := d.measure(x, y, z)
	d.prevX, d.prevY, d.prevZ = x, y, z
	d.hasPrev = true
	if !ok || value <= d.Threshold {
		return false
	}
	if !d.lastEvent.IsZero() && at.Sub(d.lastEvent) < d.Cooldown {
		return false
	}
	d.lastEvent = at
	return true
}

func (d *Detector) measure(x, y, z float64) (float64, bool) {
	switch d.Metric {
	case MetricMagnitude:
		return math.Sqrt(x*x + y*y + z*z), true
	default:
		if !d.hasPrev {
			return 0, false
		}
		return math.Abs(x-d.prevX) + math.Abs(y-d.prevY) + math.Abs(z-d.prevZ), true
	}
}

// Reset clears the previous sample and the cooldown clock.
func (d *Detector) Reset() {
	d.hasPrev = false
	d.lastEvent = time.Time{}
}
