package workouts

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	maxIdentifierLength = 190
	maxNameLength       = 255
	maxNotesLength      = 1000

	dateLayout = "2006-01-02"
)

var (
	// ErrInvalidUserID indicates that a user identifier is empty or exceeds storage bounds.
	ErrInvalidUserID = errors.New("workouts: invalid user id")
	// ErrInvalidDate indicates that a date is not in canonical YYYY-MM-DD form.
	ErrInvalidDate = errors.New("workouts: invalid date")
	// ErrInvalidName indicates that a workout or exercise name exceeds storage bounds.
	ErrInvalidName = errors.New("workouts: invalid name")
	// ErrInvalidNotes indicates that workout notes exceed storage bounds.
	ErrInvalidNotes = errors.New("workouts: invalid notes")
	// ErrInvalidSetNumber indicates a non-positive set number.
	ErrInvalidSetNumber = errors.New("workouts: invalid set number")
	// ErrInvalidWeight indicates a weight value outside the decimal pattern.
	ErrInvalidWeight = errors.New("workouts: invalid weight")
	// ErrInvalidReps indicates a negative repetition count.
	ErrInvalidReps = errors.New("workouts: invalid reps")
)

var weightPattern = regexp.MustCompile(`^\d+(\.\d{1,2})?$`)

// UserID represents a validated owner identifier.
type UserID string

// NewUserID validates raw input and returns a UserID.
func NewUserID(rawInput string) (UserID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidUserID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidUserID, maxIdentifierLength)
	}
	return UserID(trimmed), nil
}

// String returns the underlying string identifier.
func (id UserID) String() string {
	return string(id)
}

// WorkoutDate represents a calendar date in canonical YYYY-MM-DD form.
// Rows are matched by exact string equality, so the canonical form is
// enforced at the boundary rather than at query time.
type WorkoutDate string

// NewWorkoutDate validates raw input and returns a WorkoutDate.
func NewWorkoutDate(rawInput string) (WorkoutDate, error) {
	trimmed := strings.TrimSpace(rawInput)
	parsed, err := time.Parse(dateLayout, trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidDate, rawInput)
	}
	canonical := parsed.Format(dateLayout)
	if canonical != trimmed {
		return "", fmt.Errorf("%w: %q", ErrInvalidDate, rawInput)
	}
	return WorkoutDate(canonical), nil
}

// String returns the canonical date string.
func (d WorkoutDate) String() string {
	return string(d)
}

// NewWorkoutName validates an optional workout display name.
func NewWorkoutName(rawInput string) (string, error) {
	trimmed := strings.TrimSpace(rawInput)
	if len(trimmed) > maxNameLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return trimmed, nil
}

// NewExerciseName validates a catalog exercise name.
func NewExerciseName(rawInput string) (string, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if len(trimmed) > maxNameLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return trimmed, nil
}

// NewWorkoutNotes validates optional free-text notes.
func NewWorkoutNotes(rawInput string) (string, error) {
	if len(rawInput) > maxNotesLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidNotes, maxNotesLength)
	}
	return rawInput, nil
}

// NewSetNumber validates a caller-assigned 1-based set number.
func NewSetNumber(value int) (int, error) {
	if value <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidSetNumber, value)
	}
	return value, nil
}

// NewRepCount validates a repetition count.
func NewRepCount(value int) (int, error) {
	if value < 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidReps, value)
	}
	return value, nil
}

// NewSetWeight validates a decimal weight string and returns its canonical
// two-decimal form. SQLite's numeric affinity strips trailing zeros, so the
// canonical form is re-applied on read as well (see formatWeight).
func NewSetWeight(rawInput string) (string, error) {
	trimmed := strings.TrimSpace(rawInput)
	if !weightPattern.MatchString(trimmed) {
		return "", fmt.Errorf("%w: %q", ErrInvalidWeight, rawInput)
	}
	value, err := strconv.ParseFloat(trimmed, 64)
	if err != nil || value > 9999.99 {
		return "", fmt.Errorf("%w: %q", ErrInvalidWeight, rawInput)
	}
	return formatWeight(trimmed), nil
}

func formatWeight(stored string) string {
	value, err := strconv.ParseFloat(stored, 64)
	if err != nil {
		return stored
	}
	return strconv.FormatFloat(value, 'f', 2, 64)
}

// Exercise is a global catalog entry shared across all users.
type Exercise struct {
	ID   uint   `gorm:"column:id;primaryKey"`
	Name string `gorm:"column:name;size:255;not null;uniqueIndex:idx_exercises_name"`
}

// TableName provides the explicit table binding for GORM.
func (Exercise) TableName() string {
	return "exercises"
}

// Workout is one logged session owned by exactly one user.
type Workout struct {
	ID                 uint    `gorm:"column:id;primaryKey"`
	UserID             string  `gorm:"column:user_id;size:190;not null;index:idx_workouts_user_date,priority:1"`
	Name               *string `gorm:"column:name;size:255"`
	Date               string  `gorm:"column:date;size:10;not null;index:idx_workouts_user_date,priority:2"`
	Notes              *string `gorm:"column:notes;type:text"`
	StartedAtSeconds   *int64  `gorm:"column:started_at_s"`
	CompletedAtSeconds *int64  `gorm:"column:completed_at_s"`
	CreatedAtSeconds   int64   `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Workout) TableName() string {
	return "workouts"
}

// WorkoutExercise links a workout to a catalog exercise with a display order.
// Its lifecycle is bound to the workout: the storage layer cascades deletes.
type WorkoutExercise struct {
	ID               uint     `gorm:"column:id;primaryKey"`
	WorkoutID        uint     `gorm:"column:workout_id;not null;index"`
	ExerciseID       uint     `gorm:"column:exercise_id;not null"`
	Order            int      `gorm:"column:order;not null;default:0"`
	CreatedAtSeconds int64    `gorm:"column:created_at_s;not null"`
	Workout          Workout  `gorm:"foreignKey:WorkoutID;constraint:OnDelete:CASCADE"`
	Exercise         Exercise `gorm:"foreignKey:ExerciseID"`
}

// TableName provides the explicit table binding for GORM.
func (WorkoutExercise) TableName() string {
	return "workout_exercises"
}

// Set is one recorded attempt under a workout exercise. The set number is
// caller-assigned and not re-sequenced on delete.
type Set struct {
	ID                uint            `gorm:"column:id;primaryKey"`
	WorkoutExerciseID uint            `gorm:"column:workout_exercise_id;not null;index"`
	SetNumber         int             `gorm:"column:set_number;not null"`
	Weight            *string         `gorm:"column:weight;type:decimal(6,2)"`
	Reps              *int            `gorm:"column:reps"`
	CreatedAtSeconds  int64           `gorm:"column:created_at_s;not null"`
	WorkoutExercise   WorkoutExercise `gorm:"foreignKey:WorkoutExerciseID;constraint:OnDelete:CASCADE"`
}

// TableName provides the explicit table binding for GORM.
func (Set) TableName() string {
	return "sets"
}
