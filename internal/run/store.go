package run

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/elbiat/evald/internal/metrics"
	"github.com/elbiat/evald/internal/models"
	"github.com/elbiat/evald/pkg/jsonmap"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"
)

// PlaceholderArtifacts marks a RUNNING row whose output directory is
// not yet known. Replaced once the harness run directory is found.
const PlaceholderArtifacts = "pending"

const maxErrorLen = 4000

// claimBatchSize bounds one candidate page of the claim scan. The
// scan pages on until a claim wins or the queue is exhausted, so a
// burst of racing workers cannot make a poll report an empty queue
// while claimable rows remain.
const claimBatchSize = 64

// ErrNotRunning is returned when a terminal transition targets a row
// that is not in the RUNNING state.
var ErrNotRunning = errors.New("eval run is not running")

// Store is the persistence contract for evaluation runs. Every
// transition is a conditional update guarded by the current status so
// terminal rows never re-transition and two workers never finalize
// the same run.
type Store struct {
	db       *gorm.DB
	workerID string
}

func NewStore(db *gorm.DB, workerID ...string) *Store {
	if db == nil {
		panic("run store requires a database connection")
	}

	id := "unknown-worker"
	if len(workerID) > 0 && strings.TrimSpace(workerID[0]) != "" {
		id = workerID[0]
	}

	return &Store{db: db, workerID: id}
}

func (s *Store) DB() *gorm.DB {
	return s.db
}

// Enqueue creates a QUEUED run for a (task, model) pair.
func (s *Store) Enqueue(ctx context.Context, taskID, modelID uint, userID *uint) (*models.EvalRun, error) {
	run := &models.EvalRun{
		TaskID:  taskID,
		ModelID: modelID,
		Status:  models.StatusQueued,
		UserID:  userID,
	}

	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, err
	}
	return run, nil
}

// Get returns one run by id with its task and model loaded.
func (s *Store) Get(ctx context.Context, id uint) (*models.EvalRun, error) {
	run := &models.EvalRun{}
	err := s.db.WithContext(ctx).
		Preload("Task").
		Preload("Model").
		First(run, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ClaimNextQueued atomically claims the oldest QUEUED run, moving it
// to RUNNING and stamping started_at. Returns nil when the queue is
// empty. The claim is a conditional update checked by rows affected,
// so exactly one worker wins a given row.
func (s *Store) ClaimNextQueued(ctx context.Context) (*models.EvalRun, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var claimed *models.EvalRun

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for {
			var candidates []models.EvalRun
			err := tx.
				Where("status = ?", models.StatusQueued).
				Order("created_at ASC, id ASC").
				Limit(claimBatchSize).
				Find(&candidates).Error
			if err != nil {
				return err
			}
			if len(candidates) == 0 {
				return nil
			}

			for _, candidate := range candidates {
				result := tx.Model(&models.EvalRun{}).
					Where("id = ? AND status = ?", candidate.ID, models.StatusQueued).
					Updates(map[string]interface{}{
						"status":     models.StatusRunning,
						"started_at": now,
					})
				if result.Error != nil {
					if isClaimContentionErr(result.Error) {
						metrics.WorkerClaimContentionTotal.WithLabelValues(s.workerID).Inc()
					}
					return result.Error
				}
				if result.RowsAffected == 0 {
					// Another worker won the race.
					metrics.WorkerClaimContentionTotal.WithLabelValues(s.workerID).Inc()
					continue
				}

				claimedRun := &models.EvalRun{}
				if err := tx.Preload("Task").Preload("Model").First(claimedRun, "id = ?", candidate.ID).Error; err != nil {
					return err
				}
				claimed = claimedRun
				return nil
			}

			if len(candidates) < claimBatchSize {
				// Short page: every remaining queued row was lost to
				// racing workers and nothing further is claimable.
				return nil
			}
		}
	})
	if err != nil {
		return nil, err
	}
	if claimed != nil {
		metrics.WorkerClaimsTotal.WithLabelValues(s.workerID).Inc()
	}

	return claimed, nil
}

// MarkRunning records audit fields once the subprocess is launched.
// May be called again to replace the placeholder artifacts path.
func (s *Store) MarkRunning(ctx context.Context, id uint, artifactsDir, command, gitCommit string) error {
	result := s.db.WithContext(ctx).
		Model(&models.EvalRun{}).
		Where("id = ? AND status = ?", id, models.StatusRunning).
		Updates(map[string]interface{}{
			"artifacts_dir": artifactsDir,
			"command":       command,
			"git_commit":    gitCommit,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("mark running %d: %w", id, ErrNotRunning)
	}
	return nil
}

// MarkCompleted finalizes a RUNNING run with its metrics mapping.
func (s *Store) MarkCompleted(ctx context.Context, id uint, values map[string]interface{}) error {
	now := time.Now().UTC()
	result := s.db.WithContext(ctx).
		Model(&models.EvalRun{}).
		Where("id = ? AND status = ?", id, models.StatusRunning).
		Updates(map[string]interface{}{
			"status":      models.StatusComplete,
			"finished_at": now,
			"metrics":     jsonmap.FromValues(values),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("mark completed %d: %w", id, ErrNotRunning)
	}
	return nil
}

// MarkFailed finalizes a RUNNING run with a bounded error message.
func (s *Store) MarkFailed(ctx context.Context, id uint, errText string) error {
	if len(errText) > maxErrorLen {
		errText = errText[:maxErrorLen]
	}

	now := time.Now().UTC()
	result := s.db.WithContext(ctx).
		Model(&models.EvalRun{}).
		Where("id = ? AND status = ?", id, models.StatusRunning).
		Updates(map[string]interface{}{
			"status":      models.StatusFailed,
			"finished_at": now,
			"error":       errText,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("mark failed %d: %w", id, ErrNotRunning)
	}
	return nil
}

// ExistsForArtifacts reports whether a run already covers the given
// (task, model, artifacts directory) triple.
func (s *Store) ExistsForArtifacts(ctx context.Context, taskID, modelID uint, artifactsDir string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.EvalRun{}).
		Where("task_id = ? AND model_id = ? AND artifacts_dir = ?", taskID, modelID, artifactsDir).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// InsertCompleted inserts a terminal COMPLETE run directly, used only
// by the reconciliation pass. All three timestamps carry the run date
// parsed from the directory name. Returns false without error when
// the uniqueness constraint reports the row as already present.
func (s *Store) InsertCompleted(ctx context.Context, taskID, modelID uint, values map[string]interface{}, artifactsDir, gitCommit string, runDate time.Time) (bool, error) {
	run := &models.EvalRun{
		TaskID:       taskID,
		ModelID:      modelID,
		Status:       models.StatusComplete,
		Metrics:      jsonmap.FromValues(values),
		ArtifactsDir: artifactsDir,
		GitCommit:    gitCommit,
		CreatedAt:    runDate,
		StartedAt:    &runDate,
		FinishedAt:   &runDate,
	}

	err := s.db.WithContext(ctx).Create(run).Error
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// CompletedRuns returns every COMPLETE run for a task carrying a
// metrics mapping, newest first.
func (s *Store) CompletedRuns(ctx context.Context, taskID uint) (models.EvalRuns, error) {
	runs := make(models.EvalRuns, 0)
	err := s.db.WithContext(ctx).
		Preload("Model").
		Where("task_id = ? AND status = ? AND metrics IS NOT NULL", taskID, models.StatusComplete).
		Order("created_at DESC, id DESC").
		Find(&runs).Error
	if err != nil {
		return nil, err
	}
	return runs, nil
}

// RequeueStale flips RUNNING rows whose started_at is older than the
// threshold back to QUEUED. Recovery path for runs orphaned by a
// worker crash; the threshold must exceed the harness timeout.
func (s *Store) RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	result := s.db.WithContext(ctx).
		Model(&models.EvalRun{}).
		Where("status = ? AND started_at IS NOT NULL AND started_at < ?", models.StatusRunning, cutoff).
		Updates(map[string]interface{}{
			"status":     models.StatusQueued,
			"started_at": nil,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected > 0 {
		metrics.StaleRunsRequeuedTotal.WithLabelValues(s.workerID).Add(float64(result.RowsAffected))
	}
	return result.RowsAffected, nil
}

func isClaimContentionErr(err error) bool {
	if err == nil {
		return false
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	// pgx surfaces SQLSTATE 23505 in the error text.
	return strings.Contains(err.Error(), "23505") ||
		strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}
