package decision

import (
	"math"
	"sync"
)

// samplesPerHour assumes the ~40s observation cadence of the agent loop.
const samplesPerHour = 90

// VolatilityModel keeps a rolling window of observed prices and predicts how
// long the price will stay inside a range from the recent standard deviation.
type VolatilityModel struct {
	mu      sync.Mutex
	window  int // hours of history to retain
	history []float64
}

// NewVolatilityModel creates a model retaining windowHours of samples.
func NewVolatilityModel(windowHours int) *VolatilityModel {
	if windowHours <= 0 {
		windowHours = 24
	}
	return &VolatilityModel{window: windowHours}
}

// Observe records one price sample, evicting samples older than the window.
func (m *VolatilityModel) Observe(price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, price)
	maxSamples := m.window * samplesPerHour
	if len(m.history) > maxSamples {
		m.history = m.history[len(m.history)-maxSamples:]
	}
}

// Samples returns the number of retained observations.
func (m *VolatilityModel) Samples() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.history)
}

// PredictHoursInRange estimates how many hours the price stays between lower
// and upper. With under 10 samples it returns a neutral 12h default; a dead
// calm market is reported as 48h. The estimate is capped at one week.
func (m *VolatilityModel) PredictHoursInRange(current, lower, upper float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.history) < 10 {
		return 12.0
	}

	recent := m.history
	if len(recent) > samplesPerHour {
		recent = recent[len(recent)-samplesPerHour:]
	}
	mean := 0.0
	for _, p := range recent {
		mean += p
	}
	mean /= float64(len(recent))
	variance := 0.0
	for _, p := range recent {
		d := p - mean
		variance += d * d
	}
	variance /= float64(len(recent))
	stdDev := 0.001
	if variance > 0 {
		stdDev = math.Sqrt(variance)
	}

	minDist := math.Min(current-lower, upper-current)

	hourlyStd := stdDev * math.Sqrt(samplesPerHour)
	if hourlyStd < 0.0001 {
		return 48.0
	}

	hours := math.Pow(minDist/hourlyStd, 2)
	return math.Min(hours, 168)
}
