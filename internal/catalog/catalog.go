package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/elbiat/evald/internal/models"
	"github.com/elbiat/evald/internal/run"
	"github.com/elbiat/evald/pkg/log"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

// Catalog provides task/model lookups and the YAML seed import.
type Catalog struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Catalog {
	if db == nil {
		panic("catalog requires a database connection")
	}
	return &Catalog{db: db}
}

// Tasks lists every registered task ordered by name.
func (c *Catalog) Tasks(ctx context.Context) (models.Tasks, error) {
	tasks := make(models.Tasks, 0)
	if err := c.db.WithContext(ctx).Order("name ASC").Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

// Models lists every registered model ordered by name.
func (c *Catalog) Models(ctx context.Context) (models.Models, error) {
	mdls := make(models.Models, 0)
	if err := c.db.WithContext(ctx).Order("name ASC").Find(&mdls).Error; err != nil {
		return nil, err
	}
	return mdls, nil
}

// TaskByName resolves a task by its unique name.
func (c *Catalog) TaskByName(ctx context.Context, name string) (*models.Task, error) {
	task := &models.Task{}
	err := c.db.WithContext(ctx).First(task, "name = ?", name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("task %q not found", name)
	}
	if err != nil {
		return nil, err
	}
	return task, nil
}

// ModelByName resolves a model by its unique name.
func (c *Catalog) ModelByName(ctx context.Context, name string) (*models.Model, error) {
	model := &models.Model{}
	err := c.db.WithContext(ctx).First(model, "name = ?", name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("model %q not found", name)
	}
	if err != nil {
		return nil, err
	}
	return model, nil
}

// Enqueue resolves task and model by name, rejecting unknown ones,
// and creates a QUEUED run.
func (c *Catalog) Enqueue(ctx context.Context, store *run.Store, taskName, modelName string) (*models.EvalRun, error) {
	task, err := c.TaskByName(ctx, taskName)
	if err != nil {
		return nil, err
	}
	model, err := c.ModelByName(ctx, modelName)
	if err != nil {
		return nil, err
	}
	return store.Enqueue(ctx, task.ID, model.ID, nil)
}

// File is the on-disk seed catalog shape.
type File struct {
	Tasks  []TaskSpec  `yaml:"tasks"`
	Models []ModelSpec `yaml:"models"`
}

type TaskSpec struct {
	Name                string `yaml:"name"`
	DisplayName         string `yaml:"display_name"`
	HarnessData         string `yaml:"harness_data"`
	Description         string `yaml:"description"`
	PrimaryMetricKey    string `yaml:"primary_metric_key"`
	PrimaryMetricSuffix string `yaml:"primary_metric_suffix"`
	DatasetVersion      string `yaml:"dataset_version"`
	NumExamples         *int   `yaml:"num_examples"`
	PaperURL            string `yaml:"paper_url"`
	DatasetURL          string `yaml:"dataset_url"`
}

type ModelSpec struct {
	Name         string                   `yaml:"name"`
	DisplayName  string                   `yaml:"display_name"`
	HarnessModel string                   `yaml:"harness_model"`
	ModelType    string                   `yaml:"model_type"`
	HFID         string                   `yaml:"hf_id"`
	EndpointURL  string                   `yaml:"endpoint_url"`
	DefaultArgs  []map[string]interface{} `yaml:"default_args"`
	ParamsB      *float64                 `yaml:"params_b"`
	Description  string                   `yaml:"description"`
}

// Seed imports a YAML catalog, upserting tasks and models by their
// unique names.
func (c *Catalog) Seed(ctx context.Context, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var file File
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("invalid catalog %s: %w", path, err)
	}

	for _, spec := range file.Tasks {
		if err := c.upsertTask(ctx, spec); err != nil {
			return err
		}
	}
	for _, spec := range file.Models {
		if err := c.upsertModel(ctx, spec); err != nil {
			return err
		}
	}

	log.Info("catalog seeded", "tasks", len(file.Tasks), "models", len(file.Models))
	return nil
}

func (c *Catalog) upsertTask(ctx context.Context, spec TaskSpec) error {
	if spec.Name == "" || spec.HarnessData == "" {
		return fmt.Errorf("task spec requires name and harness_data")
	}
	if spec.PrimaryMetricKey == "" {
		spec.PrimaryMetricKey = "acc"
	}
	if spec.PrimaryMetricSuffix == "" {
		spec.PrimaryMetricSuffix = "_acc.csv"
	}

	task := &models.Task{}
	err := c.db.WithContext(ctx).First(task, "name = ?", spec.Name).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	task.Name = spec.Name
	task.DisplayName = spec.DisplayName
	task.HarnessData = spec.HarnessData
	task.Description = spec.Description
	task.PrimaryMetricKey = spec.PrimaryMetricKey
	task.PrimaryMetricSuffix = spec.PrimaryMetricSuffix
	task.DatasetVersion = spec.DatasetVersion
	task.NumExamples = spec.NumExamples
	task.PaperURL = spec.PaperURL
	task.DatasetURL = spec.DatasetURL

	return c.db.WithContext(ctx).Save(task).Error
}

func (c *Catalog) upsertModel(ctx context.Context, spec ModelSpec) error {
	if spec.Name == "" || spec.HarnessModel == "" {
		return fmt.Errorf("model spec requires name and harness_model")
	}
	if spec.ModelType == "" {
		spec.ModelType = "vlm"
	}

	model := &models.Model{}
	err := c.db.WithContext(ctx).First(model, "name = ?", spec.Name).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	model.Name = spec.Name
	model.DisplayName = spec.DisplayName
	model.HarnessModel = spec.HarnessModel
	model.ModelType = spec.ModelType
	model.HFID = spec.HFID
	model.EndpointURL = spec.EndpointURL
	model.ParamsB = spec.ParamsB
	model.Description = spec.Description

	if len(spec.DefaultArgs) > 0 {
		raw, err := json.Marshal(spec.DefaultArgs)
		if err != nil {
			return fmt.Errorf("model %s default_args: %w", spec.Name, err)
		}
		model.DefaultArgs = raw
	}

	return c.db.WithContext(ctx).Save(model).Error
}
