package core

import (
	"math"
	"sync"
	"time"
)

// MetricStats is the learned statistical summary for one metric.
type MetricStats struct {
	Mean    float64 `json:"mean"`
	StdDev  float64 `json:"std_dev"`
	Samples int     `json:"samples"`
}

// TrafficBaseline holds per-metric historical samples and the statistics
// derived from them. A baseline is learning until at least one metric has
// accumulated MinSamples points; a learning baseline yields no anomalies.
type TrafficBaseline struct {
	ID          string
	WindowHours int
	MinSamples  int

	mu      sync.RWMutex
	history map[string][]float64
	stats   map[string]MetricStats
	dirty   map[string]bool
}

// NewTrafficBaseline creates an empty baseline.
func NewTrafficBaseline(id string, windowHours, minSamples int) *TrafficBaseline {
	return &TrafficBaseline{
		ID:          id,
		WindowHours: windowHours,
		MinSamples:  minSamples,
		history:     make(map[string][]float64),
		stats:       make(map[string]MetricStats),
		dirty:       make(map[string]bool),
	}
}

// AddSample appends a historical point for a metric. The history is capped
// at the number of samples one baseline window can hold at one point per
// minute, evicting oldest first.
func (b *TrafficBaseline) AddSample(metric string, value float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	maxSamples := b.WindowHours * 60
	if maxSamples < b.MinSamples {
		maxSamples = b.MinSamples
	}

	samples := append(b.history[metric], value)
	if len(samples) > maxSamples {
		samples = samples[len(samples)-maxSamples:]
	}
	b.history[metric] = samples
	b.dirty[metric] = true
}

// Stats returns the cached statistics for a metric. ok is false while the
// metric has fewer than MinSamples points.
func (b *TrafficBaseline) Stats(metric string) (MetricStats, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	samples := b.history[metric]
	if len(samples) < b.MinSamples {
		return MetricStats{}, false
	}

	if b.dirty[metric] {
		b.stats[metric] = computeStats(samples)
		b.dirty[metric] = false
	}
	return b.stats[metric], true
}

// Metrics returns the names of all tracked metrics.
func (b *TrafficBaseline) Metrics() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	names := make([]string, 0, len(b.history))
	for name := range b.history {
		names = append(names, name)
	}
	return names
}

// IsLearning reports whether the baseline is still accumulating history.
func (b *TrafficBaseline) IsLearning() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, samples := range b.history {
		if len(samples) >= b.MinSamples {
			return false
		}
	}
	return true
}

func computeStats(samples []float64) MetricStats {
	var sum float64
	for _, v := range samples {
		sum += v
	}
	mean := sum / float64(len(samples))

	var sq float64
	for _, v := range samples {
		d := v - mean
		sq += d * d
	}
	return MetricStats{
		Mean:    mean,
		StdDev:  math.Sqrt(sq / float64(len(samples))),
		Samples: len(samples),
	}
}

// AnomalyType classifies a traffic anomaly.
type AnomalyType string

const (
	AnomalyHighVolume       AnomalyType = "high_volume"
	AnomalyLowVolume        AnomalyType = "low_volume"
	AnomalyHighBandwidth    AnomalyType = "high_bandwidth"
	AnomalyLowBandwidth     AnomalyType = "low_bandwidth"
	AnomalyHighLatency      AnomalyType = "high_latency"
	AnomalySpike            AnomalyType = "spike"
	AnomalyDrop             AnomalyType = "drop"
	AnomalyTrafficLatency   AnomalyType = "high_traffic_high_latency"
	AnomalyInefficientUsage AnomalyType = "low_requests_high_bandwidth"
)

// TrafficAnomaly is a single metric deviation against the learned baseline.
type TrafficAnomaly struct {
	BaselineID       string      `json:"baseline_id" bson:"baseline_id"`
	Metric           string      `json:"metric" bson:"metric"`
	Type             AnomalyType `json:"anomaly_type" bson:"anomaly_type"`
	Severity         Severity    `json:"severity" bson:"severity"`
	CurrentValue     float64     `json:"current_value" bson:"current_value"`
	BaselineValue    float64     `json:"baseline_value" bson:"baseline_value"`
	DeviationStd     float64     `json:"deviation_std" bson:"deviation_std"`
	DeviationPercent float64     `json:"deviation_percent" bson:"deviation_percent"`
	Timestamp        time.Time   `json:"timestamp" bson:"timestamp"`
	Recommendations  []string    `json:"recommendations,omitempty" bson:"recommendations,omitempty"`
}
