package workouts

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// ListExercises returns the full shared catalog ordered alphabetically by
// name. The catalog has no owner: no filtering, no pagination.
func (s *Service) ListExercises(ctx context.Context) ([]Exercise, error) {
	var exercises []Exercise
	if err := s.db.WithContext(ctx).
		Order("name ASC").
		Find(&exercises).Error; err != nil {
		s.logError(opListExercises, reasonQueryFailed, err)
		return nil, newServiceError(opListExercises, reasonQueryFailed, err)
	}
	return exercises, nil
}

// CreateExercise inserts an ad-hoc catalog entry. Names are unique across
// the catalog.
func (s *Service) CreateExercise(ctx context.Context, name string) (Exercise, error) {
	exercise := Exercise{Name: name}
	if err := s.db.WithContext(ctx).Create(&exercise).Error; err != nil {
		if isUniqueViolation(err) {
			return Exercise{}, newServiceError(opCreateExercise, "duplicate_name", ErrDuplicateExercise)
		}
		s.logError(opCreateExercise, "insert_failed", err, zap.String("name", name))
		return Exercise{}, newServiceError(opCreateExercise, "insert_failed", err)
	}
	return exercise, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique")
}
