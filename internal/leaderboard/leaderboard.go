package leaderboard

import (
	"context"
	"sort"
	"time"

	"github.com/elbiat/evald/internal/models"
	"github.com/elbiat/evald/internal/run"
	"github.com/elbiat/evald/pkg/jsonmap"
	"gorm.io/datatypes"
)

// Aggregate sentinels: when a task's metric key is one of these, the
// ranking value is computed over all numeric entries of the metrics
// mapping instead of a literal lookup.
const (
	SentinelAvg = "avg"
	SentinelMin = "min"
	SentinelMax = "max"
)

// Entry is one leaderboard row. MetricValue is nil when the model has
// completed runs but no usable value for the metric key; such models
// still appear, ranked last.
type Entry struct {
	ModelName        string            `json:"model_name"`
	ModelDisplayName string            `json:"model_display_name"`
	MetricValue      *float64          `json:"metric_value"`
	RunID            uint              `json:"run_id"`
	RunDate          time.Time         `json:"run_date"`
	GitCommit        string            `json:"git_commit,omitempty"`
	Status           models.EvalStatus `json:"status"`
}

// ForTask ranks the best completed run per model on a task. metricKey
// overrides the task's primary metric when non-empty; limit truncates
// the result when positive.
func ForTask(ctx context.Context, store *run.Store, task *models.Task, metricKey string, limit int) ([]Entry, error) {
	if metricKey == "" {
		metricKey = task.PrimaryMetricKey
	}

	runs, err := store.CompletedRuns(ctx, task.ID)
	if err != nil {
		return nil, err
	}

	// Newest-first scan keeping the best run per model. A present
	// value always replaces a missing one; among present values the
	// strictly greater wins, so ties keep the more recent run.
	best := map[string]Entry{}
	order := make([]string, 0)

	for _, evalRun := range runs {
		if evalRun.Model == nil {
			continue
		}

		value := Resolve(evalRun.Metrics, metricKey)
		entry := Entry{
			ModelName:        evalRun.Model.Name,
			ModelDisplayName: evalRun.Model.DisplayName,
			MetricValue:      value,
			RunID:            evalRun.ID,
			RunDate:          evalRun.CreatedAt,
			GitCommit:        evalRun.GitCommit,
			Status:           evalRun.Status,
		}

		existing, seen := best[entry.ModelName]
		if !seen {
			best[entry.ModelName] = entry
			order = append(order, entry.ModelName)
			continue
		}
		if value != nil && (existing.MetricValue == nil || *value > *existing.MetricValue) {
			best[entry.ModelName] = entry
		}
	}

	entries := make([]Entry, 0, len(best))
	for _, name := range order {
		entries = append(entries, best[name])
	}

	// Descending by value, missing values last.
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].MetricValue, entries[j].MetricValue
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return *a > *b
		}
	})

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Resolve extracts the ranking value for a metric key from a metrics
// mapping. Aggregate sentinels are computed over the sanitized numeric
// entries; literal lookups treat NaN/Infinity as missing. Returns nil
// when no usable value exists.
func Resolve(metrics datatypes.JSONMap, metricKey string) *float64 {
	if len(metrics) == 0 {
		return nil
	}

	switch metricKey {
	case SentinelAvg, SentinelMin, SentinelMax:
		return aggregate(jsonmap.Numbers(metrics), metricKey)
	default:
		value, ok := metrics[metricKey]
		if !ok {
			return nil
		}
		f, ok := jsonmap.Number(value)
		if !ok {
			return nil
		}
		return &f
	}
}

func aggregate(numbers map[string]float64, sentinel string) *float64 {
	if len(numbers) == 0 {
		return nil
	}

	var (
		sum   float64
		min   float64
		max   float64
		first = true
	)
	for _, f := range numbers {
		sum += f
		if first || f < min {
			min = f
		}
		if first || f > max {
			max = f
		}
		first = false
	}

	var out float64
	switch sentinel {
	case SentinelAvg:
		out = sum / float64(len(numbers))
	case SentinelMin:
		out = min
	case SentinelMax:
		out = max
	}
	return &out
}
