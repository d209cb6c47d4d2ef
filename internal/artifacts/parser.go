package artifacts

import (
	"encoding/csv"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Metrics is the flat key/value mapping parsed from a harness metrics
// file. Values are float64 where coercion succeeds, strings otherwise.
type Metrics map[string]interface{}

// ParseErrorKey carries a parse failure description inside the
// mapping instead of failing the run.
const ParseErrorKey = "parse_error"

// Parse reads a harness metrics file into a flat mapping. Tabular
// files use the header row as keys; structured files are read one
// level deep. Failures never propagate: the result carries a single
// parse_error entry instead.
func Parse(path string) Metrics {
	if strings.HasSuffix(path, ".json") {
		return parseJSON(path)
	}
	return parseCSV(path)
}

// parseCSV reads a delimited metrics table. The single data row is
// the common case; with multiple rows the last row's values win,
// overwriting earlier ones.
func parseCSV(path string) Metrics {
	f, err := os.Open(path)
	if err != nil {
		return Metrics{ParseErrorKey: err.Error()}
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return Metrics{ParseErrorKey: err.Error()}
	}
	if len(records) < 2 {
		return Metrics{}
	}

	header := records[0]
	metrics := Metrics{}
	for _, row := range records[1:] {
		for i, key := range header {
			if i >= len(row) {
				continue
			}
			metrics[key] = coerce(row[i])
		}
	}
	return metrics
}

// parseJSON reads a flat structured record. Nested objects and
// arrays are skipped, not flattened.
func parseJSON(path string) Metrics {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Metrics{ParseErrorKey: err.Error()}
	}

	var data map[string]interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return Metrics{ParseErrorKey: err.Error()}
	}

	metrics := Metrics{}
	for key, value := range data {
		switch v := value.(type) {
		case map[string]interface{}, []interface{}:
			continue
		case string:
			metrics[key] = coerce(v)
		default:
			metrics[key] = value
		}
	}
	return metrics
}

// coerce opportunistically converts a scalar to float64. Conversion
// failures and non-finite values keep the original string, since NaN
// and infinities are unrepresentable in the persisted JSON mapping.
func coerce(value string) interface{} {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return value
	}
	return f
}

// Inventory lists the files of a run directory for the audit trail
// persisted alongside the metrics.
func Inventory(runDir string) []map[string]interface{} {
	artifacts := make([]map[string]interface{}, 0)

	entries, err := os.ReadDir(runDir)
	if err != nil {
		return artifacts
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		artifacts = append(artifacts, map[string]interface{}{
			"name": entry.Name(),
			"size": info.Size(),
			"type": filepath.Ext(entry.Name()),
		})
	}
	return artifacts
}
