package db

import (
	"github.com/elbiat/evald/internal/models"
	"github.com/elbiat/evald/pkg/env"
	"github.com/elbiat/evald/pkg/log"
	_ "github.com/jackc/pgx/v4"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Connection opens a database connection based on the
// processed environment.
func Connection() *gorm.DB {
	var (
		gdb *gorm.DB
		err error
	)

	switch env.Variables().DatabaseType {
	case "sqlite":
		gdb, err = gorm.Open(
			sqlite.Open(env.Variables().DatabaseDSN),
			&gorm.Config{},
		)
	case "postgres":
		fallthrough
	default:
		gdb, err = gorm.Open(
			postgres.Open(env.Variables().DatabaseDSN),
			&gorm.Config{},
		)
	}

	if err != nil {
		log.Fatal("failed to connect to database", "error", err)
	}

	return gdb
}

// Migrate applies schema migrations for all evald models.
func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(models.All...)
}
