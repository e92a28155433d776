package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/liftlogapp/liftlog/backend/internal/auth"
	"github.com/liftlogapp/liftlog/backend/internal/database"
	"github.com/liftlogapp/liftlog/backend/internal/server"
	"github.com/liftlogapp/liftlog/backend/internal/users"
	"github.com/liftlogapp/liftlog/backend/internal/workouts"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func startTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	dsn := fmt.Sprintf("file:integration_test_%d?mode=memory&cache=shared&_pragma=foreign_keys(1)", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := database.Migrate(db, nil); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	tokens, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("integration-test-secret"),
		Issuer:        "liftlog-auth",
		Audience:      "liftlog-api",
		TokenTTL:      time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to construct token issuer: %v", err)
	}

	usersService, err := users.NewService(users.ServiceConfig{
		Database:   db,
		IDProvider: users.NewUUIDProvider(),
		BcryptCost: bcrypt.MinCost,
	})
	if err != nil {
		t.Fatalf("failed to construct users service: %v", err)
	}

	workoutsService, err := workouts.NewService(workouts.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to construct workouts service: %v", err)
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Tokens:          tokens,
		UsersService:    usersService,
		WorkoutsService: workoutsService,
		Logger:          zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to construct router: %v", err)
	}

	testServer := httptest.NewServer(handler)
	t.Cleanup(testServer.Close)
	return testServer
}

type apiClient struct {
	t       *testing.T
	baseURL string
	token   string
}

func (client *apiClient) do(method, path string, payload interface{}) (int, []byte) {
	client.t.Helper()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			client.t.Fatalf("failed to encode request payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	}

	request, err := http.NewRequest(method, client.baseURL+path, body)
	if err != nil {
		client.t.Fatalf("failed to build request: %v", err)
	}
	request.Header.Set("Content-Type", "application/json")
	if client.token != "" {
		request.Header.Set("Authorization", "Bearer "+client.token)
	}

	response, err := http.DefaultClient.Do(request)
	if err != nil {
		client.t.Fatalf("request failed: %v", err)
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(response.Body)
	if err != nil {
		client.t.Fatalf("failed to read response body: %v", err)
	}
	return response.StatusCode, responseBody
}

func (client *apiClient) registerAndLogin(email string) {
	client.t.Helper()

	status, body := client.do(http.MethodPost, "/auth/register", map[string]string{
		"email":        email,
		"password":     "hunter2hunter2",
		"display_name": "Lifter",
	})
	if status != http.StatusCreated {
		client.t.Fatalf("registration failed: %d %s", status, body)
	}

	status, body = client.do(http.MethodPost, "/auth/login", map[string]string{
		"email":    email,
		"password": "hunter2hunter2",
	})
	if status != http.StatusOK {
		client.t.Fatalf("login failed: %d %s", status, body)
	}
	var session struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &session); err != nil {
		client.t.Fatalf("failed to decode session: %v", err)
	}
	client.token = session.AccessToken
}

func (client *apiClient) exerciseID(name string) uint {
	client.t.Helper()

	status, body := client.do(http.MethodGet, "/exercises", nil)
	if status != http.StatusOK {
		client.t.Fatalf("failed to list exercises: %d %s", status, body)
	}
	var response struct {
		Exercises []struct {
			ExerciseID uint   `json:"exercise_id"`
			Name       string `json:"name"`
		} `json:"exercises"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		client.t.Fatalf("failed to decode exercises: %v", err)
	}
	for _, exercise := range response.Exercises {
		if exercise.Name == name {
			return exercise.ExerciseID
		}
	}
	client.t.Fatalf("exercise %q missing from catalog: %s", name, body)
	return 0
}

func TestRegisterLoginAndLogWorkoutEndToEnd(t *testing.T) {
	testServer := startTestServer(t)
	client := &apiClient{t: t, baseURL: testServer.URL}
	client.registerAndLogin("lifter@example.com")

	squatID := client.exerciseID("Squat")

	status, body := client.do(http.MethodPost, "/workouts", map[string]interface{}{
		"name":  "Push Day",
		"date":  "2025-06-01",
		"notes": "felt strong",
	})
	if status != http.StatusCreated {
		t.Fatalf("failed to create workout: %d %s", status, body)
	}
	var created struct {
		WorkoutID uint `json:"workout_id"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("failed to decode workout: %v", err)
	}

	status, body = client.do(http.MethodPost, fmt.Sprintf("/workouts/%d/exercises", created.WorkoutID), map[string]interface{}{
		"exercise_id": squatID,
		"order":       0,
	})
	if status != http.StatusCreated {
		t.Fatalf("failed to attach exercise: %d %s", status, body)
	}
	var attached struct {
		WorkoutExerciseID uint `json:"workout_exercise_id"`
	}
	if err := json.Unmarshal(body, &attached); err != nil {
		t.Fatalf("failed to decode workout exercise: %v", err)
	}

	for _, set := range []map[string]interface{}{
		{"set_number": 1, "weight": "135.00", "reps": 10},
		{"set_number": 2, "weight": "155.00", "reps": 8},
	} {
		status, body = client.do(http.MethodPost, fmt.Sprintf("/workout-exercises/%d/sets", attached.WorkoutExerciseID), set)
		if status != http.StatusCreated {
			t.Fatalf("failed to record set %v: %d %s", set, status, body)
		}
	}

	status, body = client.do(http.MethodGet, "/workouts?date=2025-06-01", nil)
	if status != http.StatusOK {
		t.Fatalf("failed to fetch workouts: %d %s", status, body)
	}
	var fetched struct {
		Workouts []struct {
			WorkoutID uint    `json:"workout_id"`
			Name      *string `json:"name"`
			Date      string  `json:"date"`
			Notes     *string `json:"notes"`
			Exercises []struct {
				Name string `json:"name"`
				Sets []struct {
					SetNumber int     `json:"set_number"`
					Weight    *string `json:"weight"`
					Reps      *int    `json:"reps"`
				} `json:"sets"`
			} `json:"exercises"`
		} `json:"workouts"`
	}
	if err := json.Unmarshal(body, &fetched); err != nil {
		t.Fatalf("failed to decode workout views: %v", err)
	}

	if len(fetched.Workouts) != 1 {
		t.Fatalf("expected one workout, got %d: %s", len(fetched.Workouts), body)
	}
	workout := fetched.Workouts[0]
	if workout.Name == nil || *workout.Name != "Push Day" {
		t.Fatalf("unexpected workout name: %s", body)
	}
	if workout.Notes == nil || *workout.Notes != "felt strong" {
		t.Fatalf("unexpected workout notes: %s", body)
	}
	if len(workout.Exercises) != 1 || workout.Exercises[0].Name != "Squat" {
		t.Fatalf("unexpected exercises: %s", body)
	}

	sets := workout.Exercises[0].Sets
	if len(sets) != 2 {
		t.Fatalf("expected two sets, got %d: %s", len(sets), body)
	}
	expected := []struct {
		number int
		weight string
		reps   int
	}{
		{number: 1, weight: "135.00", reps: 10},
		{number: 2, weight: "155.00", reps: 8},
	}
	for i, want := range expected {
		set := sets[i]
		if set.SetNumber != want.number {
			t.Fatalf("unexpected set order at %d: %s", i, body)
		}
		if set.Weight == nil || *set.Weight != want.weight {
			t.Fatalf("unexpected weight at %d: %s", i, body)
		}
		if set.Reps == nil || *set.Reps != want.reps {
			t.Fatalf("unexpected reps at %d: %s", i, body)
		}
	}
}

func TestWorkoutsAreInvisibleAcrossAccounts(t *testing.T) {
	testServer := startTestServer(t)

	owner := &apiClient{t: t, baseURL: testServer.URL}
	owner.registerAndLogin("owner@example.com")

	status, body := owner.do(http.MethodPost, "/workouts", map[string]interface{}{"date": "2025-06-01"})
	if status != http.StatusCreated {
		t.Fatalf("failed to create workout: %d %s", status, body)
	}
	var created struct {
		WorkoutID uint `json:"workout_id"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("failed to decode workout: %v", err)
	}

	intruder := &apiClient{t: t, baseURL: testServer.URL}
	intruder.registerAndLogin("intruder@example.com")

	status, body = intruder.do(http.MethodGet, "/workouts?date=2025-06-01", nil)
	if status != http.StatusOK {
		t.Fatalf("failed to fetch workouts: %d %s", status, body)
	}
	if string(body) != `{"workouts":[]}` {
		t.Fatalf("expected empty result for another account, got %s", body)
	}

	status, body = intruder.do(http.MethodDelete, fmt.Sprintf("/workouts/%d", created.WorkoutID), nil)
	if status != http.StatusNotFound {
		t.Fatalf("expected not found for foreign workout delete, got %d %s", status, body)
	}

	status, body = owner.do(http.MethodGet, fmt.Sprintf("/workouts/%d", created.WorkoutID), nil)
	if status != http.StatusOK {
		t.Fatalf("owner must still see the workout: %d %s", status, body)
	}
}

func TestMutationsRefreshTheDailyView(t *testing.T) {
	testServer := startTestServer(t)
	client := &apiClient{t: t, baseURL: testServer.URL}
	client.registerAndLogin("lifter@example.com")

	status, body := client.do(http.MethodGet, "/workouts?date=2025-06-01", nil)
	if status != http.StatusOK || string(body) != `{"workouts":[]}` {
		t.Fatalf("expected empty day before any writes: %d %s", status, body)
	}

	status, body = client.do(http.MethodPost, "/workouts", map[string]interface{}{"date": "2025-06-01"})
	if status != http.StatusCreated {
		t.Fatalf("failed to create workout: %d %s", status, body)
	}
	var created struct {
		WorkoutID uint `json:"workout_id"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("failed to decode workout: %v", err)
	}

	// The cached empty view must not survive the write.
	status, body = client.do(http.MethodGet, "/workouts?date=2025-06-01", nil)
	if status != http.StatusOK {
		t.Fatalf("failed to fetch workouts: %d %s", status, body)
	}
	var fetched struct {
		Workouts []struct {
			WorkoutID uint `json:"workout_id"`
		} `json:"workouts"`
	}
	if err := json.Unmarshal(body, &fetched); err != nil {
		t.Fatalf("failed to decode workout views: %v", err)
	}
	if len(fetched.Workouts) != 1 || fetched.Workouts[0].WorkoutID != created.WorkoutID {
		t.Fatalf("expected the new workout in the refreshed view: %s", body)
	}

	status, body = client.do(http.MethodDelete, fmt.Sprintf("/workouts/%d", created.WorkoutID), nil)
	if status != http.StatusOK {
		t.Fatalf("failed to delete workout: %d %s", status, body)
	}
	status, body = client.do(http.MethodGet, "/workouts?date=2025-06-01", nil)
	if status != http.StatusOK || string(body) != `{"workouts":[]}` {
		t.Fatalf("expected empty day after delete: %d %s", status, body)
	}
}
