package artifacts

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

// Locate finds the metrics file for a (model, task) pair inside a run
// directory. Search order: exact {model}_{task}{suffix} filename, then
// a *{task}*{suffix} glob taking the lexicographically first match.
// With lastResort set (reconciliation pass only) a bare *{suffix}
// glob is tried as well. Deterministic for a fixed filesystem
// snapshot.
func Locate(runDir, modelKey, taskKey, suffix string, lastResort bool) (string, bool) {
	exact := filepath.Join(runDir, modelKey+"_"+taskKey+suffix)
	if _, err := os.Stat(exact); err == nil {
		return exact, true
	}

	if match, ok := glob(filepath.Join(runDir, "*"+taskKey+"*"+suffix)); ok {
		return match, true
	}

	if lastResort {
		if match, ok := glob(filepath.Join(runDir, "*"+suffix)); ok {
			return match, true
		}
	}

	return "", false
}

// Collect locates and parses the metrics file for a (model, task)
// pair. The second return is false when no candidate file exists.
func Collect(runDir, modelKey, taskKey, suffix string, lastResort bool) (Metrics, bool) {
	path, ok := Locate(runDir, modelKey, taskKey, suffix, lastResort)
	if !ok {
		return nil, false
	}
	return Parse(path), true
}

func glob(pattern string) (string, bool) {
	matches, err := doublestar.FilepathGlob(pattern)
	if err != nil || len(matches) == 0 {
		return "", false
	}
	sort.Strings(matches)
	return matches[0], true
}
