package testutil

import (
	"testing"

	"github.com/elbiat/evald/internal/models"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// OpenTestDB returns an in-memory sqlite DB with migrations applied.
func OpenTestDB(tb testing.TB) *gorm.DB {
	tb.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}

	if err := db.AutoMigrate(models.All...); err != nil {
		tb.Fatalf("migrate: %v", err)
	}

	tb.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	return db
}

// SeedTask inserts a task with sensible defaults and returns it.
func SeedTask(tb testing.TB, db *gorm.DB, name, harnessData string) *models.Task {
	tb.Helper()

	task := &models.Task{
		Name:                name,
		DisplayName:         name,
		HarnessData:         harnessData,
		PrimaryMetricKey:    "acc",
		PrimaryMetricSuffix: "_acc.csv",
	}
	if err := db.Create(task).Error; err != nil {
		tb.Fatalf("seed task: %v", err)
	}
	return task
}

// SeedModel inserts a model with sensible defaults and returns it.
func SeedModel(tb testing.TB, db *gorm.DB, name, harnessModel string) *models.Model {
	tb.Helper()

	model := &models.Model{
		Name:         name,
		DisplayName:  name,
		HarnessModel: harnessModel,
		ModelType:    "vlm",
	}
	if err := db.Create(model).Error; err != nil {
		tb.Fatalf("seed model: %v", err)
	}
	return model
}
