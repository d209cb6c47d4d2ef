package models

import (
	"time"

	"gorm.io/datatypes"
)

// Model is a candidate system under evaluation. HarnessModel is the
// model identifier understood by the evaluation harness; DefaultArgs
// is an ordered list of key/value maps appended to every invocation.
type Model struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	Name         string         `gorm:"size:100;uniqueIndex;not null" json:"name"`
	DisplayName  string         `gorm:"size:200;not null" json:"display_name"`
	HarnessModel string         `gorm:"size:100;not null" json:"harness_model"`
	ModelType    string         `gorm:"size:10;not null;default:vlm" json:"model_type"`
	HFID         string         `gorm:"size:300" json:"hf_id,omitempty"`
	EndpointURL  string         `gorm:"size:500" json:"endpoint_url,omitempty"`
	DefaultArgs  datatypes.JSON `gorm:"type:json" json:"default_args,omitempty"`
	ParamsB      *float64       `json:"params_b,omitempty"`
	Description  string         `gorm:"type:text" json:"description,omitempty"`
	CreatedAt    time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"not null" json:"updated_at"`
}

type Models []*Model
