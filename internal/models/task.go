package models

import (
	"time"
)

// Task is an evaluation benchmark definition. HarnessData is the
// dataset identifier understood by the evaluation harness.
type Task struct {
	ID                  uint       `gorm:"primaryKey" json:"id"`
	Name                string     `gorm:"size:100;uniqueIndex;not null" json:"name"`
	DisplayName         string     `gorm:"size:200;not null" json:"display_name"`
	HarnessData         string     `gorm:"size:100;not null" json:"harness_data"`
	Description         string     `gorm:"type:text" json:"description,omitempty"`
	PrimaryMetricKey    string     `gorm:"size:50;not null;default:acc" json:"primary_metric_key"`
	PrimaryMetricSuffix string     `gorm:"size:50;not null;default:_acc.csv" json:"primary_metric_suffix"`
	DatasetVersion      string     `gorm:"size:100" json:"dataset_version,omitempty"`
	NumExamples         *int       `json:"num_examples,omitempty"`
	PaperURL            string     `gorm:"size:500" json:"paper_url,omitempty"`
	DatasetURL          string     `gorm:"size:500" json:"dataset_url,omitempty"`
	UserID              *uint      `json:"user_id,omitempty"`
	CreatedAt           time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt           time.Time  `gorm:"not null" json:"updated_at"`
}

type Tasks []*Task
