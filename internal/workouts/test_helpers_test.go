package workouts

import (
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func mustUserID(t *testing.T, value string) UserID {
	t.Helper()
	id, err := NewUserID(value)
	if err != nil {
		t.Fatalf("unexpected user id error: %v", err)
	}
	return id
}

func mustDate(t *testing.T, value string) WorkoutDate {
	t.Helper()
	date, err := NewWorkoutDate(value)
	if err != nil {
		t.Fatalf("unexpected date error: %v", err)
	}
	return date
}

func mustWeight(t *testing.T, value string) string {
	t.Helper()
	weight, err := NewSetWeight(value)
	if err != nil {
		t.Fatalf("unexpected weight error: %v", err)
	}
	return weight
}

func strPtr(value string) *string {
	return &value
}

func intPtr(value int) *int {
	return &value
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:workouts_test_%d?mode=memory&cache=shared&_pragma=foreign_keys(1)", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Exercise{}, &Workout{}, &WorkoutExercise{}, &Set{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	clock := func() time.Time { return time.Unix(1750000000, 0).UTC() }
	service, err := NewService(ServiceConfig{Database: db, Clock: clock})
	if err != nil {
		t.Fatalf("failed to construct workout service: %v", err)
	}

	return service, db
}

func seedExercise(t *testing.T, db *gorm.DB, name string) Exercise {
	t.Helper()
	exercise := Exercise{Name: name}
	if err := db.Create(&exercise).Error; err != nil {
		t.Fatalf("failed to seed exercise %q: %v", name, err)
	}
	return exercise
}
