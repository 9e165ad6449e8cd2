package shake

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestDeltaSumFirstSampleNeverTriggers(t *testing.T) {
	d := NewDefault(MetricDeltaSum)

	// No previous sample, no delta, however violent the reading.
	assert.False(t, d.Sample(50, 50, 50, t0))
}

func TestDeltaSumTriggersAboveThreshold(t *testing.T) {
	d := NewDefault(MetricDeltaSum)

	assert.False(t, d.Sample(0, 0, 9.8, t0))
	assert.True(t, d.Sample(1, 1, 9.8, t0.Add(10*time.Millisecond)))
}

func TestDeltaSumIgnoresSmallMovement(t *testing.T) {
	d := NewDefault(MetricDeltaSum)

	assert.False(t, d.Sample(0, 0, 9.8, t0))
	assert.False(t, d.Sample(0.5, 0.5, 9.8, t0.Add(10*time.Millisecond)))
	// Exactly at the threshold does not trigger.
	assert.False(t, d.Sample(1.25, 1.25, 9.8, t0.Add(20*time.Millisecond)))
}

func TestDeltaSumCooldownDebounces(t *testing.T) {
	d := NewDefault(MetricDeltaSum)

	assert.False(t, d.Sample(0, 0, 9.8, t0))
	assert.True(t, d.Sample(2, 2, 9.8, t0.Add(10*time.Millisecond)))

	// A second burst inside the 1s cooldown is swallowed.
	assert.False(t, d.Sample(0, 0, 9.8, t0.Add(500*time.Millisecond)))

	// After the cooldown the next burst fires again.
	assert.True(t, d.Sample(2, 2, 9.8, t0.Add(1100*time.Millisecond)))
}

func TestMagnitudeTriggersAboveThreshold(t *testing.T) {
	d := NewDefault(MetricMagnitude)

	assert.False(t, d.Sample(1, 1, 1, t0))
	assert.True(t, d.Sample(2, 2, 2, t0.Add(10*time.Millisecond)))
}

func TestMagnitudeTriggersOnFirstSample(t *testing.T) {
	// Magnitude needs no previous sample.
	d := NewDefault(MetricMagnitude)
	assert.True(t, d.Sample(3, 0, 0, t0))
}

func TestMagnitudeCooldownDebounces(t *testing.T) {
	d := NewDefault(MetricMagnitude)

	assert.True(t, d.Sample(3, 0, 0, t0))
	assert.False(t, d.Sample(3, 0, 0, t0.Add(time.Second)))
	assert.True(t, d.Sample(3, 0, 0, t0.Add(2100*time.Millisecond)))
}

func TestResetClearsStateAndCooldown(t *testing.T) {
	d := NewDefault(MetricDeltaSum)

	assert.False(t, d.Sample(0, 0, 9.8, t0))
	assert.True(t, d.Sample(2, 2, 9.8, t0.Add(10*time.Millisecond)))

	d.Reset()

	// After reset the next sample is a first sample again, and the old
	// cooldown no longer applies to the one after it.
	assert.False(t, d.Sample(0, 0, 9.8, t0.Add(20*time.Millisecond)))
	assert.True(t, d.Sample(2, 2, 9.8, t0.Add(30*time.Millisecond)))
}

func TestCustomThreshold(t *testing.T) {
	d := New(MetricDeltaSum, 5.0, time.Second)

	assert.False(t, d.Sample(0, 0, 0, t0))
	assert.False(t, d.Sample(2, 2, 0, t0.Add(10*time.Millisecond)))
	assert.True(t, d.Sample(8, 2, 0, t0.Add(20*time.Millisecond)))
}
