package workouts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()

	// ErrNotFound reports that a referenced row does not exist or is not
	// reachable from the caller's ownership chain. The two cases are
	// deliberately indistinguishable.
	ErrNotFound = errors.New("workouts: not found")
	// ErrDuplicateExercise reports a catalog name collision.
	ErrDuplicateExercise = errors.New("workouts: exercise name already exists")
)

// ServiceError carries a dotted operation code alongside the wrapped cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the dotted operation code.
func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew      = "workouts.service.new"
	opCreateWorkout   = "workouts.create_workout"
	opUpdateWorkout   = "workouts.update_workout"
	opDeleteWorkout   = "workouts.delete_workout"
	opAddExercise     = "workouts.add_exercise"
	opRemoveExercise  = "workouts.remove_exercise"
	opCreateSet       = "workouts.create_set"
	opUpdateSet       = "workouts.update_set"
	opDeleteSet       = "workouts.delete_set"
	opListExercises   = "workouts.list_exercises"
	opCreateExercise  = "workouts.create_exercise"
	opFetchByDate     = "workouts.fetch_by_date"
	opFetchWorkout    = "workouts.fetch_workout"
	reasonNotFound    = "not_found"
	reasonQueryFailed = "query_failed"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// ServiceConfig describes the dependencies of the workout service.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service performs ownership-scoped reads and writes over the four workout
// tables. Every method takes the owner identity explicitly; nothing below the
// HTTP layer resolves session state.
type Service struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewService constructs the workout service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{db: cfg.Database, clock: clock, logger: logger}, nil
}

// OptionalString distinguishes "leave unchanged" (Set false) from "clear"
// (Set true, Value nil) in partial updates.
type OptionalString struct {
	Set   bool
	Value *string
}

// OptionalInt64 is the tri-state counterpart for nullable integer columns.
type OptionalInt64 struct {
	Set   bool
	Value *int64
}

// OptionalInt is the tri-state counterpart for nullable int columns.
type OptionalInt struct {
	Set   bool
	Value *int
}

// CreateWorkoutParams carries validated fields for a new workout. The owner
// identifier is never part of the payload; it is injected from the session.
type CreateWorkoutParams struct {
	Name  *string
	Date  WorkoutDate
	Notes *string
}

// CreateWorkoutResult identifies the inserted workout.
type CreateWorkoutResult struct {
	WorkoutID uint
	Date      WorkoutDate
}

// CreateWorkout inserts a workout for the authenticated owner.
func (s *Service) CreateWorkout(ctx context.Context, userID UserID, params CreateWorkoutParams) (CreateWorkoutResult, error) {
	workout := Workout{
		UserID:           userID.String(),
		Name:             params.Name,
		Date:             params.Date.String(),
		Notes:            params.Notes,
		CreatedAtSeconds: s.clock().UTC().Unix(),
	}
	if err := s.db.WithContext(ctx).Create(&workout).Error; err != nil {
		s.logError(opCreateWorkout, "insert_failed", err, zap.String("user_id", userID.String()))
		return CreateWorkoutResult{}, newServiceError(opCreateWorkout, "insert_failed", err)
	}
	return CreateWorkoutResult{WorkoutID: workout.ID, Date: params.Date}, nil
}

// UpdateWorkoutParams carries the identifier plus a partial field set.
type UpdateWorkoutParams struct {
	WorkoutID          uint
	Date               WorkoutDate
	Name               OptionalString
	Notes              OptionalString
	StartedAtSeconds   OptionalInt64
	CompletedAtSeconds OptionalInt64
}

// UpdateWorkout applies a partial update conditioned on both the workout id
// and its owner. A row owned by another user is indistinguishable from an
// absent one: both return ErrNotFound.
func (s *Service) UpdateWorkout(ctx context.Context, userID UserID, params UpdateWorkoutParams) (CreateWorkoutResult, error) {
	updates := map[string]interface{}{
		"date": params.Date.String(),
	}
	if params.Name.Set {
		updates["name"] = params.Name.Value
	}
	if params.Notes.Set {
		updates["notes"] = params.Notes.Value
	}
	if params.StartedAtSeconds.Set {
		updates["started_at_s"] = params.StartedAtSeconds.Value
	}
	if params.CompletedAtSeconds.Set {
		updates["completed_at_s"] = params.CompletedAtSeconds.Value
	}

	result := s.db.WithContext(ctx).Model(&Workout{}).
		Where("id = ? AND user_id = ?", params.WorkoutID, userID.String()).
		Updates(updates)
	if result.Error != nil {
		s.logError(opUpdateWorkout, "update_failed", result.Error,
			zap.String("user_id", userID.String()),
			zap.Uint("workout_id", params.WorkoutID))
		return CreateWorkoutResult{}, newServiceError(opUpdateWorkout, "update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return CreateWorkoutResult{}, newServiceError(opUpdateWorkout, reasonNotFound, ErrNotFound)
	}
	return CreateWorkoutResult{WorkoutID: params.WorkoutID, Date: params.Date}, nil
}

// DeleteWorkout removes an owned workout. Dependent workout-exercise and set
// rows are removed by the storage layer's cascade rules.
func (s *Service) DeleteWorkout(ctx context.Context, userID UserID, workoutID uint) error {
	result := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", workoutID, userID.String()).
		Delete(&Workout{})
	if result.Error != nil {
		s.logError(opDeleteWorkout, "delete_failed", result.Error,
			zap.String("user_id", userID.String()),
			zap.Uint("workout_id", workoutID))
		return newServiceError(opDeleteWorkout, "delete_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return newServiceError(opDeleteWorkout, reasonNotFound, ErrNotFound)
	}
	return nil
}

// AddExercise attaches a catalog exercise to an owned workout. The ownership
// check, the catalog check and the insert share one transaction so a
// concurrent workout deletion cannot slip between check and write.
func (s *Service) AddExercise(ctx context.Context, userID UserID, workoutID, exerciseID uint, order int) (uint, error) {
	var workoutExerciseID uint
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var workoutCount int64
		if err := tx.Model(&Workout{}).
			Where("id = ? AND user_id = ?", workoutID, userID.String()).
			Count(&workoutCount).Error; err != nil {
			s.logError(opAddExercise, reasonQueryFailed, err, zap.String("user_id", userID.String()))
			return newServiceError(opAddExercise, reasonQueryFailed, err)
		}
		if workoutCount == 0 {
			return newServiceError(opAddExercise, reasonNotFound, ErrNotFound)
		}

		var exerciseCount int64
		if err := tx.Model(&Exercise{}).
			Where("id = ?", exerciseID).
			Count(&exerciseCount).Error; err != nil {
			s.logError(opAddExercise, reasonQueryFailed, err, zap.Uint("exercise_id", exerciseID))
			return newServiceError(opAddExercise, reasonQueryFailed, err)
		}
		if exerciseCount == 0 {
			return newServiceError(opAddExercise, reasonNotFound, ErrNotFound)
		}

		workoutExercise := WorkoutExercise{
			WorkoutID:        workoutID,
			ExerciseID:       exerciseID,
			Order:            order,
			CreatedAtSeconds: s.clock().UTC().Unix(),
		}
		if err := tx.Omit(clause.Associations).Create(&workoutExercise).Error; err != nil {
			s.logError(opAddExercise, "insert_failed", err,
				zap.String("user_id", userID.String()),
				zap.Uint("workout_id", workoutID))
			return newServiceError(opAddExercise, "insert_failed", err)
		}
		workoutExerciseID = workoutExercise.ID
		return nil
	})
	if txErr != nil {
		return 0, txErr
	}
	return workoutExerciseID, nil
}

// RemoveExercise detaches a workout exercise reachable from the caller's
// workouts. Its sets are removed by cascade.
func (s *Service) RemoveExercise(ctx context.Context, userID UserID, workoutExerciseID uint) error {
	result := s.db.WithContext(ctx).
		Where("id = ? AND workout_id IN (?)",
			workoutExerciseID,
			s.ownedWorkoutIDs(userID)).
		Delete(&WorkoutExercise{})
	if result.Error != nil {
		s.logError(opRemoveExercise, "delete_failed", result.Error,
			zap.String("user_id", userID.String()),
			zap.Uint("workout_exercise_id", workoutExerciseID))
		return newServiceError(opRemoveExercise, "delete_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return newServiceError(opRemoveExercise, reasonNotFound, ErrNotFound)
	}
	return nil
}

// CreateSetParams carries validated fields for a new set.
type CreateSetParams struct {
	WorkoutExerciseID uint
	SetNumber         int
	Weight            *string
	Reps              *int
}

// CreateSet records one attempt under a workout exercise reachable from a
// caller-owned workout. Check and insert share one transaction.
func (s *Service) CreateSet(ctx context.Context, userID UserID, params CreateSetParams) (uint, error) {
	var setID uint
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ownedCount int64
		if err := tx.Model(&WorkoutExercise{}).
			Where("id = ? AND workout_id IN (?)",
				params.WorkoutExerciseID,
				tx.Model(&Workout{}).Select("id").Where("user_id = ?", userID.String())).
			Count(&ownedCount).Error; err != nil {
			s.logError(opCreateSet, reasonQueryFailed, err, zap.String("user_id", userID.String()))
			return newServiceError(opCreateSet, reasonQueryFailed, err)
		}
		if ownedCount == 0 {
			return newServiceError(opCreateSet, reasonNotFound, ErrNotFound)
		}

		set := Set{
			WorkoutExerciseID: params.WorkoutExerciseID,
			SetNumber:         params.SetNumber,
			Weight:            params.Weight,
			Reps:              params.Reps,
			CreatedAtSeconds:  s.clock().UTC().Unix(),
		}
		if err := tx.Omit(clause.Associations).Create(&set).Error; err != nil {
			s.logError(opCreateSet, "insert_failed", err,
				zap.String("user_id", userID.String()),
				zap.Uint("workout_exercise_id", params.WorkoutExerciseID))
			return newServiceError(opCreateSet, "insert_failed", err)
		}
		setID = set.ID
		return nil
	})
	if txErr != nil {
		return 0, txErr
	}
	return setID, nil
}

// UpdateSetParams carries the set identifier plus a partial field set.
type UpdateSetParams struct {
	SetID  uint
	Weight OptionalString
	Reps   OptionalInt
}

// UpdateSet applies a partial update to a set conditioned on the caller's
// ownership chain via a two-level subquery.
func (s *Service) UpdateSet(ctx context.Context, userID UserID, params UpdateSetParams) error {
	updates := map[string]interface{}{}
	if params.Weight.Set {
		updates["weight"] = params.Weight.Value
	}
	if params.Reps.Set {
		updates["reps"] = params.Reps.Value
	}
	if len(updates) == 0 {
		return nil
	}

	result := s.db.WithContext(ctx).Model(&Set{}).
		Where("id = ? AND workout_exercise_id IN (?)", params.SetID, s.ownedWorkoutExerciseIDs(userID)).
		Updates(updates)
	if result.Error != nil {
		s.logError(opUpdateSet, "update_failed", result.Error,
			zap.String("user_id", userID.String()),
			zap.Uint("set_id", params.SetID))
		return newServiceError(opUpdateSet, "update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return newServiceError(opUpdateSet, reasonNotFound, ErrNotFound)
	}
	return nil
}

// DeleteSet removes a set reachable from the caller's ownership chain.
func (s *Service) DeleteSet(ctx context.Context, userID UserID, setID uint) error {
	result := s.db.WithContext(ctx).
		Where("id = ? AND workout_exercise_id IN (?)", setID, s.ownedWorkoutExerciseIDs(userID)).
		Delete(&Set{})
	if result.Error != nil {
		s.logError(opDeleteSet, "delete_failed", result.Error,
			zap.String("user_id", userID.String()),
			zap.Uint("set_id", setID))
		return newServiceError(opDeleteSet, "delete_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return newServiceError(opDeleteSet, reasonNotFound, ErrNotFound)
	}
	return nil
}

// ownedWorkoutIDs builds the "ids of workouts owned by this user" subquery.
func (s *Service) ownedWorkoutIDs(userID UserID) *gorm.DB {
	return s.db.Model(&Workout{}).Select("id").Where("user_id = ?", userID.String())
}

// ownedWorkoutExerciseIDs builds the "ids of workout exercises reachable from
// this user's workouts" subquery.
func (s *Service) ownedWorkoutExerciseIDs(userID UserID) *gorm.DB {
	return s.db.Model(&WorkoutExercise{}).Select("id").
		Where("workout_id IN (?)", s.ownedWorkoutIDs(userID))
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("workout service error", attrs...)
}
