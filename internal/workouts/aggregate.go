package workouts

import (
	"context"

	"go.uber.org/zap"
)

// SetView is one recorded attempt in presentation order.
type SetView struct {
	SetID     uint    `json:"set_id"`
	SetNumber int     `json:"set_number"`
	Weight    *string `json:"weight"`
	Reps      *int    `json:"reps"`
}

// ExerciseView is one attached exercise with its sets in set-number order.
type ExerciseView struct {
	WorkoutExerciseID uint      `json:"workout_exercise_id"`
	ExerciseID        uint      `json:"exercise_id"`
	Name              string    `json:"name"`
	Order             int       `json:"order"`
	Sets              []SetView `json:"sets"`
}

// WorkoutView is one workout with its exercises in display order.
type WorkoutView struct {
	WorkoutID          uint           `json:"workout_id"`
	Name               *string        `json:"name"`
	Date               string         `json:"date"`
	Notes              *string        `json:"notes"`
	StartedAtSeconds   *int64         `json:"started_at_s"`
	CompletedAtSeconds *int64         `json:"completed_at_s"`
	CreatedAtSeconds   int64          `json:"created_at_s"`
	Exercises          []ExerciseView `json:"exercises"`
}

// flatRow is one row of the four-table left join. Columns right of the
// workout are nullable because a workout may have no exercises and an
// exercise no sets.
type flatRow struct {
	WorkoutID          uint
	WorkoutName        *string
	Date               string
	Notes              *string
	StartedAtSeconds   *int64
	CompletedAtSeconds *int64
	CreatedAtSeconds   int64
	WorkoutExerciseID  *uint
	ExerciseID         *uint
	ExerciseName       *string
	DisplayOrder       *int
	SetID              *uint
	SetNumber          *int
	Weight             *string
	Reps               *int
}

const flatRowColumns = `workouts.id AS workout_id, workouts.name AS workout_name, workouts.date AS date,
workouts.notes AS notes, workouts.started_at_s AS started_at_seconds,
workouts.completed_at_s AS completed_at_seconds, workouts.created_at_s AS created_at_seconds,
workout_exercises.id AS workout_exercise_id, exercises.id AS exercise_id,
exercises.name AS exercise_name, workout_exercises."order" AS display_order,
sets.id AS set_id, sets.set_number AS set_number, sets.weight AS weight, sets.reps AS reps`

// FetchByDate returns every workout the user logged on the given date, each
// with its exercises in display order and each exercise's sets in set-number
// order. Dates are matched by exact string equality against the canonical
// YYYY-MM-DD form. No pagination: the result is bounded only by what exists
// for that single user and date.
func (s *Service) FetchByDate(ctx context.Context, userID UserID, date WorkoutDate) ([]WorkoutView, error) {
	var rows []flatRow
	err := s.db.WithContext(ctx).
		Table("workouts").
		Select(flatRowColumns).
		Joins("LEFT JOIN workout_exercises ON workout_exercises.workout_id = workouts.id").
		Joins("LEFT JOIN exercises ON exercises.id = workout_exercises.exercise_id").
		Joins("LEFT JOIN sets ON sets.workout_exercise_id = workout_exercises.id").
		Where("workouts.user_id = ? AND workouts.date = ?", userID.String(), date.String()).
		Order(`workouts.id, workout_exercises."order", workout_exercises.id, sets.set_number`).
		Scan(&rows).Error
	if err != nil {
		s.logError(opFetchByDate, reasonQueryFailed, err,
			zap.String("user_id", userID.String()),
			zap.String("date", date.String()))
		return nil, newServiceError(opFetchByDate, reasonQueryFailed, err)
	}
	return flatten(rows), nil
}

// FetchWorkout returns the nested view of a single owned workout. A workout
// owned by another user is reported as absent.
func (s *Service) FetchWorkout(ctx context.Context, userID UserID, workoutID uint) (WorkoutView, error) {
	var rows []flatRow
	err := s.db.WithContext(ctx).
		Table("workouts").
		Select(flatRowColumns).
		Joins("LEFT JOIN workout_exercises ON workout_exercises.workout_id = workouts.id").
		Joins("LEFT JOIN exercises ON exercises.id = workout_exercises.exercise_id").
		Joins("LEFT JOIN sets ON sets.workout_exercise_id = workout_exercises.id").
		Where("workouts.user_id = ? AND workouts.id = ?", userID.String(), workoutID).
		Order(`workout_exercises."order", workout_exercises.id, sets.set_number`).
		Scan(&rows).Error
	if err != nil {
		s.logError(opFetchWorkout, reasonQueryFailed, err,
			zap.String("user_id", userID.String()),
			zap.Uint("workout_id", workoutID))
		return WorkoutView{}, newServiceError(opFetchWorkout, reasonQueryFailed, err)
	}

	views := flatten(rows)
	if len(views) == 0 {
		return WorkoutView{}, newServiceError(opFetchWorkout, reasonNotFound, ErrNotFound)
	}
	return views[0], nil
}

// flatten walks the ordered row stream once, grouping by workout id and then
// workout-exercise id. Insertion order is preserved: workouts appear in
// first-seen order, exercises in first-seen order within their workout, sets
// in query order.
func flatten(rows []flatRow) []WorkoutView {
	views := make([]WorkoutView, 0)
	workoutIndex := make(map[uint]int)
	exerciseIndex := make(map[uint]map[uint]int)

	for _, row := range rows {
		wi, seen := workoutIndex[row.WorkoutID]
		if !seen {
			wi = len(views)
			workoutIndex[row.WorkoutID] = wi
			exerciseIndex[row.WorkoutID] = make(map[uint]int)
			views = append(views, WorkoutView{
				WorkoutID:          row.WorkoutID,
				Name:               row.WorkoutName,
				Date:               row.Date,
				Notes:              row.Notes,
				StartedAtSeconds:   row.StartedAtSeconds,
				CompletedAtSeconds: row.CompletedAtSeconds,
				CreatedAtSeconds:   row.CreatedAtSeconds,
				Exercises:          []ExerciseView{},
			})
		}

		if row.WorkoutExerciseID == nil || row.ExerciseID == nil {
			continue
		}

		exercises := exerciseIndex[row.WorkoutID]
		ei, seen := exercises[*row.WorkoutExerciseID]
		if !seen {
			ei = len(views[wi].Exercises)
			exercises[*row.WorkoutExerciseID] = ei
			name := ""
			if row.ExerciseName != nil {
				name = *row.ExerciseName
			}
			order := 0
			if row.DisplayOrder != nil {
				order = *row.DisplayOrder
			}
			views[wi].Exercises = append(views[wi].Exercises, ExerciseView{
				WorkoutExerciseID: *row.WorkoutExerciseID,
				ExerciseID:        *row.ExerciseID,
				Name:              name,
				Order:             order,
				Sets:              []SetView{},
			})
		}

		if row.SetID == nil || row.SetNumber == nil {
			continue
		}

		weight := row.Weight
		if weight != nil {
			canonical := formatWeight(*weight)
			weight = &canonical
		}
		views[wi].Exercises[ei].Sets = append(views[wi].Exercises[ei].Sets, SetView{
			SetID:     *row.SetID,
			SetNumber: *row.SetNumber,
			Weight:    weight,
			Reps:      row.Reps,
		})
	}

	return views
}
