// Package anomaly implements statistical traffic anomaly detection against
// learned per-metric baselines.
package anomaly

import (
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"argus/config"
	"argus/core"
	"argus/metrics"
)

// AnomalyReport is the outcome of checking current metrics against one
// baseline.
type AnomalyReport struct {
	BaselineID   string                `json:"baseline_id"`
	Timestamp    time.Time             `json:"timestamp"`
	Anomalies    []core.TrafficAnomaly `json:"anomalies"`
	OverallScore float64               `json:"overall_score"`
}

// IsAnomalous reports whether any metric deviated beyond the threshold.
func (r *AnomalyReport) IsAnomalous() bool {
	return len(r.Anomalies) > 0
}

// Detector flags metrics that deviate from their baseline by more than a
// configured number of standard deviations, plus two composite patterns
// simple z-scores miss.
type Detector struct {
	threshold         float64
	latencyFloorMs    float64
	highTrafficFactor float64
	lowRequestFactor  float64
	bandwidthFactor   float64
	logger            *zap.SugaredLogger
}

// NewDetector creates a detector from the anomaly configuration section.
func NewDetector(cfg *config.Config, logger *zap.SugaredLogger) *Detector {
	return &Detector{
		threshold:         cfg.Anomaly.DeviationThreshold,
		latencyFloorMs:    cfg.Anomaly.LatencyFloorMs,
		highTrafficFactor: cfg.Anomaly.HighTrafficFactor,
		lowRequestFactor:  cfg.Anomaly.LowRequestFactor,
		bandwidthFactor:   cfg.Anomaly.BandwidthFactor,
		logger:            logger,
	}
}

// Detect compares current metric values against the baseline. A learning
// baseline and metrics without enough history produce no anomalies, never
// false positives.
func (d *Detector) Detect(baseline *core.TrafficBaseline, current map[string]float64) *AnomalyReport {
	report := &AnomalyReport{
		BaselineID: baseline.ID,
		Timestamp:  time.Now().UTC(),
	}
	if baseline.IsLearning() {
		return report
	}

	for metric, value := range current {
		stats, ok := baseline.Stats(metric)
		if !ok {
			continue
		}

		deviation := 0.0
		if stats.StdDev > 0 {
			deviation = math.Abs(value-stats.Mean) / stats.StdDev
		}
		if deviation <= d.threshold {
			continue
		}

		deviationPct := 0.0
		if stats.Mean != 0 {
			deviationPct = (value - stats.Mean) / stats.Mean * 100
		}

		anomalyType := classify(metric, value > stats.Mean)
		severity := severityFor(deviation)
		report.Anomalies = append(report.Anomalies, core.TrafficAnomaly{
			BaselineID:       baseline.ID,
			Metric:           metric,
			Type:             anomalyType,
			Severity:         severity,
			CurrentValue:     value,
			BaselineValue:    stats.Mean,
			DeviationStd:     deviation,
			DeviationPercent: deviationPct,
			Timestamp:        report.Timestamp,
			Recommendations:  recommendations(anomalyType),
		})
	}

	report.Anomalies = append(report.Anomalies, d.composites(baseline, current, report.Timestamp)...)

	for _, a := range report.Anomalies {
		metrics.AnomaliesDetected.WithLabelValues(string(a.Type), a.Severity.String()).Inc()
		d.logger.Infow("Traffic anomaly detected",
			"baseline_id", a.BaselineID,
			"metric", a.Metric,
			"type", a.Type,
			"severity", a.Severity,
			"deviation_std", a.DeviationStd)
	}

	report.OverallScore = overallScore(report.Anomalies)
	return report
}

// composites checks cross-metric patterns: heavy traffic with degraded
// latency, and bandwidth far out of proportion to request volume.
func (d *Detector) composites(baseline *core.TrafficBaseline, current map[string]float64, ts time.Time) []core.TrafficAnomaly {
	var out []core.TrafficAnomaly

	reqMetric, reqValue, reqOK := findMetric(current, "requests", "connections")
	latMetric, latValue, latOK := findMetric(current, "latency", "response_time")
	byteMetric, byteValue, byteOK := findMetric(current, "bytes", "bandwidth")

	if reqOK && latOK {
		if stats, ok := baseline.Stats(reqMetric); ok {
			if reqValue > d.highTrafficFactor*stats.Mean && latValue > d.latencyFloorMs {
				out = append(out, core.TrafficAnomaly{
					BaselineID:       baseline.ID,
					Metric:           reqMetric + "+" + latMetric,
					Type:             core.AnomalyTrafficLatency,
					Severity:         core.SeverityHigh,
					CurrentValue:     reqValue,
					BaselineValue:    stats.Mean,
					DeviationStd:     deviationStd(reqValue, stats),
					DeviationPercent: deviationPercent(reqValue, stats.Mean),
					Timestamp:        ts,
					Recommendations:  recommendations(core.AnomalyTrafficLatency),
				})
			}
		}
	}

	if reqOK && byteOK {
		reqStats, rok := baseline.Stats(reqMetric)
		byteStats, bok := baseline.Stats(byteMetric)
		if rok && bok &&
			reqValue < d.lowRequestFactor*reqStats.Mean &&
			byteValue > d.bandwidthFactor*byteStats.Mean {
			out = append(out, core.TrafficAnomaly{
				BaselineID:       baseline.ID,
				Metric:           reqMetric + "+" + byteMetric,
				Type:             core.AnomalyInefficientUsage,
				Severity:         core.SeverityMedium,
				CurrentValue:     byteValue,
				BaselineValue:    byteStats.Mean,
				DeviationStd:     deviationStd(byteValue, byteStats),
				DeviationPercent: deviationPercent(byteValue, byteStats.Mean),
				Timestamp:        ts,
				Recommendations:  recommendations(core.AnomalyInefficientUsage),
			})
		}
	}
	return out
}

// classify maps a metric name and deviation direction to an anomaly type.
func classify(metric string, above bool) core.AnomalyType {
	name := strings.ToLower(metric)
	switch {
	case strings.Contains(name, "requests") || strings.Contains(name, "connections"):
		if above {
			return core.AnomalyHighVolume
		}
		return core.AnomalyLowVolume
	case strings.Contains(name, "bytes") || strings.Contains(name, "bandwidth"):
		if above {
			return core.AnomalyHighBandwidth
		}
		return core.AnomalyLowBandwidth
	case strings.Contains(name, "latency") || strings.Contains(name, "response_time"):
		if above {
			return core.AnomalyHighLatency
		}
		return core.AnomalyDrop
	default:
		if above {
			return core.AnomalySpike
		}
		return core.AnomalyDrop
	}
}

// severityFor maps deviation in standard deviations to an alert severity.
func severityFor(deviation float64) core.Severity {
	switch {
	case deviation >= 5.0:
		return core.SeverityCritical
	case deviation >= 4.0:
		return core.SeverityHigh
	case deviation >= 3.0:
		return core.SeverityMedium
	default:
		return core.SeverityLow
	}
}

// overallScore condenses all anomalies into a [0,1] score. Each anomaly
// contributes its severity weight scaled by deviation percent, capped so one
// extreme metric cannot saturate the score alone.
func overallScore(anomalies []core.TrafficAnomaly) float64 {
	if len(anomalies) == 0 {
		return 0
	}
	var sum float64
	for _, a := range anomalies {
		scaled := math.Min(math.Abs(a.DeviationPercent)/100, 2.0)
		sum += a.Severity.Weight() * scaled
	}
	score := sum / float64(len(anomalies)) / 2.0
	if score > 1.0 {
		score = 1.0
	}
	return score
}

var anomalyRecommendations = map[core.AnomalyType][]string{
	core.AnomalyHighVolume: {
		"Check for DDoS activity or a runaway client",
		"Verify rate limiting is in effect",
	},
	core.AnomalyLowVolume: {
		"Check upstream availability and DNS",
		"Verify collectors are still reporting",
	},
	core.AnomalyHighBandwidth: {
		"Inspect top talkers for possible data exfiltration",
	},
	core.AnomalyLowBandwidth: {
		"Check for link degradation or throttling",
	},
	core.AnomalyHighLatency: {
		"Check backend saturation and queue depths",
	},
	core.AnomalySpike: {
		"Investigate the metric source for a sudden change",
	},
	core.AnomalyDrop: {
		"Investigate the metric source for an outage",
	},
	core.AnomalyTrafficLatency: {
		"Traffic surge is degrading latency; consider shedding load",
		"Check for DDoS activity",
	},
	core.AnomalyInefficientUsage: {
		"Few requests moving a lot of data; inspect for exfiltration over a covert channel",
	},
}

func recommendations(t core.AnomalyType) []string {
	return anomalyRecommendations[t]
}

func deviationStd(value float64, stats core.MetricStats) float64 {
	if stats.StdDev == 0 {
		return 0
	}
	return math.Abs(value-stats.Mean) / stats.StdDev
}

func deviationPercent(value, mean float64) float64 {
	if mean == 0 {
		return 0
	}
	return (value - mean) / mean * 100
}

func findMetric(current map[string]float64, keywords ...string) (string, float64, bool) {
	// Deterministic pick when several metrics share a keyword.
	var bestName string
	var bestValue float64
	for name, value := range current {
		lower := strings.ToLower(name)
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				if bestName == "" || name < bestName {
					bestName, bestValue = name, value
				}
			}
		}
	}
	return bestName, bestValue, bestName != ""
}
