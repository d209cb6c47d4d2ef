package backfill

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/elbiat/evald/internal/artifacts"
	"github.com/elbiat/evald/internal/catalog"
	"github.com/elbiat/evald/internal/metrics"
	"github.com/elbiat/evald/internal/models"
	"github.com/elbiat/evald/internal/run"
	"github.com/elbiat/evald/pkg/log"
)

// runDirPattern is the harness run directory naming convention,
// T<8-digit-date>_G<hex-commit>. Part of the external contract; the
// reconciliation parse depends on it bit-exact.
var runDirPattern = regexp.MustCompile(`^T(\d{8})_G([a-f0-9]+)$`)

// Sync reconciles a harness output tree against the run store,
// inserting terminal COMPLETE records for evaluations the live queue
// missed. Used for disaster recovery and initial seeding; idempotent
// by the (task, model, artifacts_dir) key.
type Sync struct {
	store   *run.Store
	catalog *catalog.Catalog
	outputs string
}

// Result summarizes one reconciliation pass.
type Result struct {
	Synced  int
	Skipped int
	Errors  int
}

func New(store *run.Store, cat *catalog.Catalog, outputs string) *Sync {
	return &Sync{store: store, catalog: cat, outputs: outputs}
}

// Run walks the output tree's model directories, skipping any not
// matching a registered model's harness identifier, and inserts a
// completed run per (task, run directory) with located metrics.
func (s *Sync) Run(ctx context.Context) (*Result, error) {
	tasks, err := s.catalog.Tasks(ctx)
	if err != nil {
		return nil, err
	}
	mdls, err := s.catalog.Models(ctx)
	if err != nil {
		return nil, err
	}

	modelsByKey := make(map[string]*modelRef, len(mdls))
	for _, m := range mdls {
		modelsByKey[m.HarnessModel] = &modelRef{id: m.ID, name: m.Name, key: m.HarnessModel}
	}

	log.Info("scanning harness outputs",
		"root", s.outputs,
		"tasks", len(tasks),
		"models", len(mdls),
	)

	entries, err := os.ReadDir(s.outputs)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		model, ok := modelsByKey[entry.Name()]
		if !ok {
			log.Debug("skipping unregistered model directory", "dir", entry.Name())
			continue
		}

		if err := s.syncModel(ctx, model, tasks, res); err != nil {
			return res, err
		}
	}

	log.Info("reconciliation complete",
		"synced", res.Synced,
		"skipped", res.Skipped,
		"errors", res.Errors,
	)
	return res, nil
}

type modelRef struct {
	id   uint
	name string
	key  string
}

func (s *Sync) syncModel(ctx context.Context, model *modelRef, tasks models.Tasks, res *Result) error {
	modelDir := filepath.Join(s.outputs, model.key)
	runDirs, err := doublestar.FilepathGlob(filepath.Join(modelDir, "T*_G*"))
	if err != nil {
		return err
	}
	sort.Strings(runDirs)

	for _, runDir := range runDirs {
		name := filepath.Base(runDir)
		runDate, gitCommit, ok := ParseRunDirName(name)
		if !ok {
			log.Warn("could not parse run directory name", "dir", name)
			continue
		}

		for _, task := range tasks {
			if err := ctx.Err(); err != nil {
				return err
			}

			values, found := artifacts.Collect(
				runDir, model.key, task.HarnessData, task.PrimaryMetricSuffix, true,
			)
			if !found {
				continue
			}

			exists, err := s.store.ExistsForArtifacts(ctx, task.ID, model.id, runDir)
			if err != nil {
				return err
			}
			if exists {
				res.Skipped++
				metrics.BackfillSkipsTotal.WithLabelValues(model.name).Inc()
				continue
			}

			values["artifacts_dir"] = runDir
			values["artifacts"] = artifacts.Inventory(runDir)

			inserted, err := s.store.InsertCompleted(
				ctx, task.ID, model.id, values, runDir, gitCommit, runDate,
			)
			if err != nil {
				log.Error("failed to insert backfilled run",
					"task", task.Name,
					"run_dir", name,
					"error", err,
				)
				res.Errors++
				continue
			}
			if !inserted {
				// Lost a race to a concurrent writer; the
				// uniqueness constraint makes that a skip.
				res.Skipped++
				metrics.BackfillSkipsTotal.WithLabelValues(model.name).Inc()
				continue
			}

			log.Info("synced run", "task", task.Name, "run_dir", name)
			res.Synced++
			metrics.BackfillInsertsTotal.WithLabelValues(model.name).Inc()
		}
	}
	return nil
}

// ParseRunDirName extracts the run date and short commit from a
// T<YYYYMMDD>_G<shortcommit> directory name.
func ParseRunDirName(name string) (time.Time, string, bool) {
	match := runDirPattern.FindStringSubmatch(name)
	if match == nil {
		return time.Time{}, "", false
	}

	runDate, err := time.Parse("20060102", match[1])
	if err != nil {
		return time.Time{}, "", false
	}
	return runDate.UTC(), match[2], true
}
