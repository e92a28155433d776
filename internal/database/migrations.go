package database

import (
	"errors"
	"time"

	"github.com/liftlogapp/liftlog/backend/internal/workouts"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationSeedExerciseCatalog = "2026-08-24_seed_exercise_catalog"

// seedExerciseNames is the starter catalog. Users extend it with ad-hoc
// inserts; entries are immutable afterwards.
var seedExerciseNames = []string{
	"Back Squat",
	"Barbell Row",
	"Bench Press",
	"Deadlift",
	"Dumbbell Curl",
	"Lat Pulldown",
	"Leg Press",
	"Overhead Press",
	"Pull-Up",
	"Romanian Deadlift",
	"Squat",
}

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationSeedExerciseCatalog, apply: seedExerciseCatalog},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

func seedExerciseCatalog(db *gorm.DB) error {
	for _, name := range seedExerciseNames {
		exercise := workouts.Exercise{Name: name}
		if err := db.Where("name = ?", name).FirstOrCreate(&exercise).Error; err != nil {
			return err
		}
	}
	return nil
}
