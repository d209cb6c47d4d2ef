package models

import (
	"time"

	"gorm.io/datatypes"
)

// EvalStatus enumerates the evaluation run lifecycle. QUEUED and
// RUNNING are non-terminal; COMPLETE and FAILED never re-transition.
type EvalStatus string

const (
	StatusQueued   EvalStatus = "QUEUED"
	StatusRunning  EvalStatus = "RUNNING"
	StatusComplete EvalStatus = "COMPLETE"
	StatusFailed   EvalStatus = "FAILED"
)

// Terminal reports whether the status admits no further transitions.
func (s EvalStatus) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// EvalRun is one execution attempt of a (Task, Model) pair. The
// partial unique index on (task_id, model_id, artifacts_dir) keeps
// reconciliation idempotent under concurrent writers while leaving
// queued rows (empty or placeholder artifacts path) unconstrained.
type EvalRun struct {
	ID           uint              `gorm:"primaryKey" json:"id"`
	TaskID       uint              `gorm:"index;not null;uniqueIndex:uq_eval_runs_artifacts,where:artifacts_dir <> '' AND artifacts_dir <> 'pending'" json:"task_id"`
	ModelID      uint              `gorm:"index;not null;uniqueIndex:uq_eval_runs_artifacts" json:"model_id"`
	Status       EvalStatus        `gorm:"type:text;size:20;index;not null;default:QUEUED;index:ix_eval_runs_status_created" json:"status"`
	Metrics      datatypes.JSONMap `gorm:"type:json" json:"metrics,omitempty"`
	ArtifactsDir string            `gorm:"size:500;uniqueIndex:uq_eval_runs_artifacts" json:"artifacts_dir,omitempty"`
	Command      string            `gorm:"type:text" json:"command,omitempty"`
	GitCommit    string            `gorm:"size:40" json:"git_commit,omitempty"`
	Error        string            `gorm:"type:text" json:"error,omitempty"`
	UserID       *uint             `json:"user_id,omitempty"`
	CreatedAt    time.Time         `gorm:"not null;index:ix_eval_runs_status_created" json:"created_at"`
	StartedAt    *time.Time        `json:"started_at,omitempty"`
	FinishedAt   *time.Time        `json:"finished_at,omitempty"`

	Task  *Task  `gorm:"foreignKey:TaskID;constraint:OnDelete:CASCADE" json:"task,omitempty"`
	Model *Model `gorm:"foreignKey:ModelID;constraint:OnDelete:CASCADE" json:"model,omitempty"`
}

type EvalRuns []*EvalRun
