package database

import (
	"fmt"
	"strings"

	sqlite "github.com/glebarez/sqlite"
	"github.com/liftlogapp/liftlog/backend/internal/users"
	"github.com/liftlogapp/liftlog/backend/internal/workouts"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OpenSQLite establishes a SQLite connection with foreign keys enforced and
// performs schema migrations. Cascade deletion of workout children relies on
// the foreign_keys pragma being on.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(withForeignKeys(path)), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := Migrate(db, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("path", path))
	}

	return db, nil
}

// Migrate creates the schema and applies named migrations, including the
// exercise catalog seed. Safe to run on every startup.
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	if err := db.AutoMigrate(
		&users.Account{},
		&workouts.Exercise{},
		&workouts.Workout{},
		&workouts.WorkoutExercise{},
		&workouts.Set{},
		&migrationRecord{},
	); err != nil {
		return err
	}

	return applyMigrations(db, logger)
}

func withForeignKeys(path string) string {
	const pragma = "_pragma=foreign_keys(1)"
	if strings.Contains(path, pragma) {
		return path
	}
	separator := "?"
	if strings.Contains(path, "?") {
		separator = "&"
	}
	return path + separator + pragma
}
