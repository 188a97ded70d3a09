package trainer

import (
	"fmt"
	"math"
)

// Metric names.
const (
	MetricTrainLoss     = "train/loss"
	MetricTrainLR       = "train/lr"
	MetricValidLoss     = "valid/loss"
	MetricTrainEvalLoss = "train/eval_loss"
)

// MetricRecord is one named scalar observed at a step.
type MetricRecord struct {
	Step  int
	Name  string
	Value float64
}

// History is an append-only record log.
type History struct {
	records []MetricRecord
}

func (h *History) add(step int, name string, value float64) MetricRecord {
	r := MetricRecord{Step: step, Name: name, Value: value}
	h.records = append(h.records, r)
	return r
}

// Records returns a copy of the log.
func (h *History) Records() []MetricRecord {
	return append([]MetricRecord(nil), h.records...)
}

// Series returns step → value for one metric.
func (h *History) Series(name string) map[int]float64 {
	out := make(map[int]float64)
	for _, r := range h.records {
		if r.Name == name {
			out[r.Step] = r.Value
		}
	}
	return out
}

// Len returns the number of records.
func (h *History) Len() int {
	return len(h.records)
}

// WeightStats summarizes a parameter tensor.
type WeightStats struct {
	Norm float64
	Mean float64
	Std  float64
}

// ComputeWeightStats returns the L2 norm, mean and population standard
// deviation of values.
func ComputeWeightStats(values []float64) WeightStats {
	if len(values) == 0 {
		return WeightStats{}
	}
	var sum, sq float64
	for _, v := range values {
		sum += v
		sq += v * v
	}
	n := float64(len(values))
	mean := sum / n
	variance := sq/n - mean*mean
	if variance < 0 {
		variance = 0
	}
	return WeightStats{Norm: math.Sqrt(sq), Mean: mean, Std: math.Sqrt(variance)}
}

// WeightMetrics turns weights into weights/<name>/<stat> metrics.
func WeightMetrics(weights []Weight) map[string]float64 {
	out := make(map[string]float64, 3*len(weights))
	for _, w := range weights {
		s := ComputeWeightStats(w.Values)
		out[fmt.Sprintf("weights/%s/norm", w.Name)] = s.Norm
		out[fmt.Sprintf("weights/%s/mean", w.Name)] = s.Mean
		out[fmt.Sprintf("weights/%s/std", w.Name)] = s.Std
	}
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
