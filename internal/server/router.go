package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/liftlogapp/liftlog/backend/internal/users"
	"github.com/liftlogapp/liftlog/backend/internal/workouts"
	"go.uber.org/zap"
)

const userIDContextKey = "liftlog_user_id"

var (
	errMissingTokenIssuer     = errors.New("token issuer dependency required")
	errMissingUsersService    = errors.New("users service dependency required")
	errMissingWorkoutsService = errors.New("workouts service dependency required")
	errInvalidAuthorization   = errors.New("authorization header missing or invalid")
)

// SessionTokens abstracts the session JWT issuer for the router.
type SessionTokens interface {
	IssueSessionToken(userID string) (string, int64, error)
	ValidateToken(token string) (string, error)
}

// Dependencies wires the HTTP layer to its collaborators.
type Dependencies struct {
	Tokens          SessionTokens
	UsersService    *users.Service
	WorkoutsService *workouts.Service
	Logger          *zap.Logger
}

// NewHTTPHandler builds the gin router for the workout-logging API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Tokens == nil {
		return nil, errMissingTokenIssuer
	}
	if deps.UsersService == nil {
		return nil, errMissingUsersService
	}
	if deps.WorkoutsService == nil {
		return nil, errMissingWorkoutsService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		tokens:   deps.Tokens,
		users:    deps.UsersService,
		workouts: deps.WorkoutsService,
		views:    newViewCache(),
		logger:   logger,
	}

	router.POST("/auth/register", handler.handleRegister)
	router.POST("/auth/login", handler.handleLogin)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/exercises", handler.handleListExercises)
	protected.POST("/exercises", handler.handleCreateExercise)
	protected.GET("/workouts", handler.handleFetchByDate)
	protected.POST("/workouts", handler.handleCreateWorkout)
	protected.GET("/workouts/:id", handler.handleFetchWorkout)
	protected.PATCH("/workouts/:id", handler.handleUpdateWorkout)
	protected.DELETE("/workouts/:id", handler.handleDeleteWorkout)
	protected.POST("/workouts/:id/exercises", handler.handleAddExercise)
	protected.DELETE("/workouts/:id/exercises/:workoutExerciseID", handler.handleRemoveExercise)
	protected.POST("/workout-exercises/:id/sets", handler.handleCreateSet)
	protected.PATCH("/sets/:id", handler.handleUpdateSet)
	protected.DELETE("/sets/:id", handler.handleDeleteSet)

	return router, nil
}

type httpHandler struct {
	tokens   SessionTokens
	users    *users.Service
	workouts *workouts.Service
	views    *viewCache
	logger   *zap.Logger
}

// nullableString distinguishes an absent JSON key (set false) from an
// explicit null (set true, value nil). UnmarshalJSON only runs for keys
// present in the payload.
type nullableString struct {
	set   bool
	value *string
}

func (n *nullableString) UnmarshalJSON(data []byte) error {
	n.set = true
	if string(data) == "null" {
		n.value = nil
		return nil
	}
	var value string
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	n.value = &value
	return nil
}

type nullableInt struct {
	set   bool
	value *int
}

func (n *nullableInt) UnmarshalJSON(data []byte) error {
	n.set = true
	if string(data) == "null" {
		n.value = nil
		return nil
	}
	var value int
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	n.value = &value
	return nil
}

type nullableInt64 struct {
	set   bool
	value *int64
}

func (n *nullableInt64) UnmarshalJSON(data []byte) error {
	n.set = true
	if string(data) == "null" {
		n.value = nil
		return nil
	}
	var value int64
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	n.value = &value
	return nil
}

type registerRequestPayload struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type loginRequestPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponsePayload struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func (h *httpHandler) handleRegister(c *gin.Context) {
	var request registerRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	email, err := users.NewEmail(request.Email)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_email"})
		return
	}
	password, err := users.NewPassword(request.Password)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_password"})
		return
	}
	displayName, err := users.NewDisplayName(request.DisplayName)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_display_name"})
		return
	}

	account, err := h.users.Register(c.Request.Context(), email, password, displayName)
	if err != nil {
		if errors.Is(err, users.ErrEmailTaken) {
			c.JSON(http.StatusConflict, gin.H{"error": "email_taken"})
			return
		}
		h.writeServiceError(c, "registration failed", err)
		return
	}

	h.writeSession(c, http.StatusCreated, account)
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	email, err := users.NewEmail(request.Email)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_credentials"})
		return
	}

	account, err := h.users.Authenticate(c.Request.Context(), email, request.Password)
	if err != nil {
		if errors.Is(err, users.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_credentials"})
			return
		}
		h.writeServiceError(c, "login failed", err)
		return
	}

	h.writeSession(c, http.StatusOK, account)
}

func (h *httpHandler) writeSession(c *gin.Context, status int, account users.Account) {
	token, expiresIn, err := h.tokens.IssueSessionToken(account.UserID)
	if err != nil {
		h.logger.Error("failed to issue session token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}
	c.JSON(status, sessionResponsePayload{
		UserID:      account.UserID,
		Email:       account.Email,
		DisplayName: account.DisplayName,
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
	})
}

type exerciseResponsePayload struct {
	ExerciseID uint   `json:"exercise_id"`
	Name       string `json:"name"`
}

func (h *httpHandler) handleListExercises(c *gin.Context) {
	exercises, err := h.workouts.ListExercises(c.Request.Context())
	if err != nil {
		h.writeServiceError(c, "failed to list exercises", err)
		return
	}
	response := make([]exerciseResponsePayload, 0, len(exercises))
	for _, exercise := range exercises {
		response = append(response, exerciseResponsePayload{ExerciseID: exercise.ID, Name: exercise.Name})
	}
	c.JSON(http.StatusOK, gin.H{"exercises": response})
}

type createExercisePayload struct {
	Name string `json:"name"`
}

func (h *httpHandler) handleCreateExercise(c *gin.Context) {
	var request createExercisePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	name, err := workouts.NewExerciseName(request.Name)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_name"})
		return
	}

	exercise, err := h.workouts.CreateExercise(c.Request.Context(), name)
	if err != nil {
		if errors.Is(err, workouts.ErrDuplicateExercise) {
			c.JSON(http.StatusConflict, gin.H{"error": "duplicate_exercise"})
			return
		}
		h.writeServiceError(c, "failed to create exercise", err)
		return
	}
	c.JSON(http.StatusCreated, exerciseResponsePayload{ExerciseID: exercise.ID, Name: exercise.Name})
}

func (h *httpHandler) handleFetchByDate(c *gin.Context) {
	userID := h.currentUser(c)
	if userID == "" {
		return
	}
	date, err := workouts.NewWorkoutDate(c.Query("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_date"})
		return
	}

	if payload, ok := h.views.Get(userID.String(), date.String()); ok {
		c.Data(http.StatusOK, "application/json; charset=utf-8", payload)
		return
	}

	views, err := h.workouts.FetchByDate(c.Request.Context(), userID, date)
	if err != nil {
		h.writeServiceError(c, "failed to fetch workouts", err)
		return
	}

	payload, err := json.Marshal(gin.H{"workouts": views})
	if err != nil {
		h.writeServiceError(c, "failed to render workouts", err)
		return
	}
	h.views.Put(userID.String(), date.String(), payload)
	c.Data(http.StatusOK, "application/json; charset=utf-8", payload)
}

func (h *httpHandler) handleFetchWorkout(c *gin.Context) {
	userID := h.currentUser(c)
	if userID == "" {
		return
	}
	workoutID, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	view, err := h.workouts.FetchWorkout(c.Request.Context(), userID, workoutID)
	if err != nil {
		h.writeWorkoutError(c, "failed to fetch workout", err)
		return
	}
	c.JSON(http.StatusOK, view)
}

type createWorkoutPayload struct {
	Name  *string `json:"name"`
	Date  string  `json:"date"`
	Notes *string `json:"notes"`
}

func (h *httpHandler) handleCreateWorkout(c *gin.Context) {
	userID := h.currentUser(c)
	if userID == "" {
		return
	}
	var request createWorkoutPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	date, err := workouts.NewWorkoutDate(request.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_date"})
		return
	}
	name, err := optionalName(request.Name)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_name"})
		return
	}
	notes, err := optionalNotes(request.Notes)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_notes"})
		return
	}

	result, err := h.workouts.CreateWorkout(c.Request.Context(), userID, workouts.CreateWorkoutParams{
		Name:  name,
		Date:  date,
		Notes: notes,
	})
	if err != nil {
		h.writeServiceError(c, "failed to create workout", err)
		return
	}

	h.views.Invalidate(userID.String())
	c.JSON(http.StatusCreated, gin.H{"workout_id": result.WorkoutID, "date": result.Date.String()})
}

type updateWorkoutPayload struct {
	Date               string         `json:"date"`
	Name               nullableString `json:"name"`
	Notes              nullableString `json:"notes"`
	StartedAtSeconds   nullableInt64  `json:"started_at_s"`
	CompletedAtSeconds nullableInt64  `json:"completed_at_s"`
}

func (h *httpHandler) handleUpdateWorkout(c *gin.Context) {
	userID := h.currentUser(c)
	if userID == "" {
		return
	}
	workoutID, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var request updateWorkoutPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	date, err := workouts.NewWorkoutDate(request.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_date"})
		return
	}

	params := workouts.UpdateWorkoutParams{
		WorkoutID:          workoutID,
		Date:               date,
		StartedAtSeconds:   workouts.OptionalInt64{Set: request.StartedAtSeconds.set, Value: request.StartedAtSeconds.value},
		CompletedAtSeconds: workouts.OptionalInt64{Set: request.CompletedAtSeconds.set, Value: request.CompletedAtSeconds.value},
	}
	if request.Name.set {
		value, err := optionalName(request.Name.value)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_name"})
			return
		}
		params.Name = workouts.OptionalString{Set: true, Value: value}
	}
	if request.Notes.set {
		value, err := optionalNotes(request.Notes.value)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_notes"})
			return
		}
		params.Notes = workouts.OptionalString{Set: true, Value: value}
	}

	result, err := h.workouts.UpdateWorkout(c.Request.Context(), userID, params)
	if err != nil {
		h.writeWorkoutError(c, "failed to update workout", err)
		return
	}

	h.views.Invalidate(userID.String())
	c.JSON(http.StatusOK, gin.H{"workout_id": result.WorkoutID, "date": result.Date.String()})
}

func (h *httpHandler) handleDeleteWorkout(c *gin.Context) {
	userID := h.currentUser(c)
	if userID == "" {
		return
	}
	workoutID, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	if err := h.workouts.DeleteWorkout(c.Request.Context(), userID, workoutID); err != nil {
		h.writeWorkoutError(c, "failed to delete workout", err)
		return
	}

	h.views.Invalidate(userID.String())
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type addExercisePayload struct {
	ExerciseID uint `json:"exercise_id"`
	Order      int  `json:"order"`
}

func (h *httpHandler) handleAddExercise(c *gin.Context) {
	userID := h.currentUser(c)
	if userID == "" {
		return
	}
	workoutID, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var request addExercisePayload
	if err := c.ShouldBindJSON(&request); err != nil || request.ExerciseID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	workoutExerciseID, err := h.workouts.AddExercise(c.Request.Context(), userID, workoutID, request.ExerciseID, request.Order)
	if err != nil {
		h.writeWorkoutError(c, "failed to add exercise", err)
		return
	}

	h.views.Invalidate(userID.String())
	c.JSON(http.StatusCreated, gin.H{"workout_exercise_id": workoutExerciseID})
}

func (h *httpHandler) handleRemoveExercise(c *gin.Context) {
	userID := h.currentUser(c)
	if userID == "" {
		return
	}
	workoutExerciseID, ok := h.pathID(c, "workoutExerciseID")
	if !ok {
		return
	}

	if err := h.workouts.RemoveExercise(c.Request.Context(), userID, workoutExerciseID); err != nil {
		h.writeWorkoutError(c, "failed to remove exercise", err)
		return
	}

	h.views.Invalidate(userID.String())
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type createSetPayload struct {
	SetNumber int     `json:"set_number"`
	Weight    *string `json:"weight"`
	Reps      *int    `json:"reps"`
}

func (h *httpHandler) handleCreateSet(c *gin.Context) {
	userID := h.currentUser(c)
	if userID == "" {
		return
	}
	workoutExerciseID, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var request createSetPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	setNumber, err := workouts.NewSetNumber(request.SetNumber)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_set_number"})
		return
	}
	weight, err := optionalWeight(request.Weight)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_weight"})
		return
	}
	reps, err := optionalReps(request.Reps)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_reps"})
		return
	}

	setID, err := h.workouts.CreateSet(c.Request.Context(), userID, workouts.CreateSetParams{
		WorkoutExerciseID: workoutExerciseID,
		SetNumber:         setNumber,
		Weight:            weight,
		Reps:              reps,
	})
	if err != nil {
		h.writeWorkoutError(c, "failed to create set", err)
		return
	}

	h.views.Invalidate(userID.String())
	c.JSON(http.StatusCreated, gin.H{"set_id": setID})
}

type updateSetPayload struct {
	Weight nullableString `json:"weight"`
	Reps   nullableInt    `json:"reps"`
}

func (h *httpHandler) handleUpdateSet(c *gin.Context) {
	userID := h.currentUser(c)
	if userID == "" {
		return
	}
	setID, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var request updateSetPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	params := workouts.UpdateSetParams{SetID: setID}
	if request.Weight.set {
		value, err := optionalWeight(request.Weight.value)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_weight"})
			return
		}
		params.Weight = workouts.OptionalString{Set: true, Value: value}
	}
	if request.Reps.set {
		value, err := optionalReps(request.Reps.value)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_reps"})
			return
		}
		params.Reps = workouts.OptionalInt{Set: true, Value: value}
	}

	if err := h.workouts.UpdateSet(c.Request.Context(), userID, params); err != nil {
		h.writeWorkoutError(c, "failed to update set", err)
		return
	}

	h.views.Invalidate(userID.String())
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *httpHandler) handleDeleteSet(c *gin.Context) {
	userID := h.currentUser(c)
	if userID == "" {
		return
	}
	setID, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	if err := h.workouts.DeleteSet(c.Request.Context(), userID, setID); err != nil {
		h.writeWorkoutError(c, "failed to delete set", err)
		return
	}

	h.views.Invalidate(userID.String())
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	subject, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(userIDContextKey, subject)
	c.Next()
}

// currentUser reads the authenticated owner identity set by the middleware.
// The services never resolve identity themselves.
func (h *httpHandler) currentUser(c *gin.Context) workouts.UserID {
	raw := c.GetString(userIDContextKey)
	userID, err := workouts.NewUserID(raw)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return ""
	}
	return userID
}

func (h *httpHandler) pathID(c *gin.Context, name string) (uint, bool) {
	value, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || value == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_id"})
		return 0, false
	}
	return uint(value), true
}

func (h *httpHandler) writeWorkoutError(c *gin.Context, message string, err error) {
	if errors.Is(err, workouts.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	h.writeServiceError(c, message, err)
}

type codedError interface {
	Code() string
}

func (h *httpHandler) writeServiceError(c *gin.Context, message string, err error) {
	h.logger.Error(message, zap.Error(err))
	var coded codedError
	if errors.As(err, &coded) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "code": coded.Code()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
}

func optionalName(value *string) (*string, error) {
	if value == nil {
		return nil, nil
	}
	validated, err := workouts.NewWorkoutName(*value)
	if err != nil {
		return nil, err
	}
	return &validated, nil
}

func optionalNotes(value *string) (*string, error) {
	if value == nil {
		return nil, nil
	}
	validated, err := workouts.NewWorkoutNotes(*value)
	if err != nil {
		return nil, err
	}
	return &validated, nil
}

func optionalWeight(value *string) (*string, error) {
	if value == nil {
		return nil, nil
	}
	validated, err := workouts.NewSetWeight(*value)
	if err != nil {
		return nil, err
	}
	return &validated, nil
}

func optionalReps(value *int) (*int, error) {
	if value == nil {
		return nil, nil
	}
	validated, err := workouts.NewRepCount(*value)
	if err != nil {
		return nil, err
	}
	return &validated, nil
}
