package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/RabbitBoii/habit-tracker/internal/constants"
	"github.com/RabbitBoii/habit-tracker/internal/dto"
	"github.com/RabbitBoii/habit-tracker/internal/jwtauth"
	"github.com/RabbitBoii/habit-tracker/internal/middleware"
	"github.com/RabbitBoii/habit-tracker/internal/models"
	"github.com/RabbitBoii/habit-tracker/internal/repository"
	"github.com/RabbitBoii/habit-tracker/internal/services"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakeVerifier map[string]*jwtauth.Claims

func (f fakeVerifier) Verify(ctx context.Context, token string) (*jwtauth.Claims, error) {
	claims, ok := f[token]
	if !ok {
		return nil, errors.New("bad token")
	}
	return claims, nil
}

type stubCompletion struct {
	content string
}

func (s *stubCompletion) CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: s.content}}},
	}, nil
}

func claimsFor(subject, email string) *jwtauth.Claims {
	claims := &jwtauth.Claims{Email: email, GivenName: "Test", FamilyName: "User"}
	claims.Subject = subject
	return claims
}

// HandlerTestSuite drives the full router against an in-memory database
type HandlerTestSuite struct {
	suite.Suite
	db         *gorm.DB
	router     *gin.Engine
	completion *stubCompletion
}

// SetupTest runs before each test
func (suite *HandlerTestSuite) SetupTest() {
	var err error

	suite.db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	suite.Require().NoError(err)

	sqlDB, err := suite.db.DB()
	suite.Require().NoError(err)
	sqlDB.SetMaxOpenConns(1)
	suite.Require().NoError(suite.db.AutoMigrate(&models.User{}, &models.Project{}, &models.Task{}))

	userRepo := repository.NewUserRepository(suite.db)
	projectRepo := repository.NewProjectRepository(suite.db)
	taskRepo := repository.NewTaskRepository(suite.db)
	suite.completion = &stubCompletion{}

	gin.SetMode(gin.TestMode)
	suite.router = gin.New()
	suite.router.Use(middleware.RequestID())
	suite.router.Use(sessions.Sessions(constants.SessionCookieName, cookie.NewStore([]byte("test-secret"))))

	RegisterRoutes(suite.router, Dependencies{
		UserService:    services.NewUserService(userRepo),
		ProjectService: services.NewProjectService(projectRepo, taskRepo),
		TaskService:    services.NewTaskService(taskRepo, projectRepo),
		GenerationService: services.NewGenerationService(userRepo, projectRepo, taskRepo,
			services.NewAIServiceWithClient(suite.completion, "test-model", time.Second)),
		Verifier: fakeVerifier{
			"alice-token": claimsFor("user_alice", "alice@example.com"),
			"bob-token":   claimsFor("user_bob", "bob@example.com"),
		},
		AILimiter: middleware.NewRateLimiter(1, 3),
	})
}

// TearDownTest runs after each test
func (suite *HandlerTestSuite) TearDownTest() {
	sqlDB, err := suite.db.DB()
	suite.Require().NoError(err)
	sqlDB.Close()
}

func (suite *HandlerTestSuite) do(method, url, token string, body any) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		payload, err := json.Marshal(body)
		suite.Require().NoError(err)
		req = httptest.NewRequest(method, url, bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, url, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)
	return w
}

func (suite *HandlerTestSuite) decode(w *httptest.ResponseRecorder, v any) {
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), v))
}

// syncUser resolves the token holder's local user through GET /api/users/me
func (suite *HandlerTestSuite) syncUser(token string) dto.UserDTO {
	w := suite.do(http.MethodGet, "/api/users/me", token, nil)
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var user dto.UserDTO
	suite.decode(w, &user)
	return user
}

func (suite *HandlerTestSuite) createProject(token, name string) dto.ProjectDTO {
	w := suite.do(http.MethodPost, "/api/projects", token, gin.H{"name": name})
	suite.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var project dto.ProjectDTO
	suite.decode(w, &project)
	return project
}

func (suite *HandlerTestSuite) createTask(token string, projectID uint64, title string) dto.TaskDTO {
	w := suite.do(http.MethodPost, fmt.Sprintf("/api/projects/%d/tasks", projectID), token, gin.H{"title": title})
	suite.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var task dto.TaskDTO
	suite.decode(w, &task)
	return task
}

func (suite *HandlerTestSuite) TestHealth() {
	w := suite.do(http.MethodGet, "/health", "", nil)

	assert.Equal(suite.T(), http.StatusOK, w.Code)
	assert.NotEmpty(suite.T(), w.Header().Get("X-Request-ID"))
}

func (suite *HandlerTestSuite) TestHealth_HidesStoreError() {
	router := gin.New()
	RegisterRoutes(router, Dependencies{
		Health: func(c *gin.Context) error {
			return errors.New("dial tcp 10.0.0.5:3306: connect: connection refused")
		},
	})
	suite.router = router

	w := suite.do(http.MethodGet, "/health", "", nil)

	assert.Equal(suite.T(), http.StatusServiceUnavailable, w.Code)
	assert.Contains(suite.T(), w.Body.String(), "Database unavailable")
	assert.NotContains(suite.T(), w.Body.String(), "10.0.0.5")
}

func (suite *HandlerTestSuite) TestUnauthenticated() {
	for _, route := range []struct{ method, url string }{
		{http.MethodGet, "/api/users/me"},
		{http.MethodGet, "/api/projects"},
		{http.MethodPost, "/api/projects"},
		{http.MethodPatch, "/api/tasks/1/status"},
		{http.MethodPost, "/api/projects/1/generate"},
	} {
		w := suite.do(route.method, route.url, "", nil)
		assert.Equal(suite.T(), http.StatusUnauthorized, w.Code, route.url)
	}

	w := suite.do(http.MethodGet, "/api/projects", "forged", nil)
	assert.Equal(suite.T(), http.StatusUnauthorized, w.Code)
}

func (suite *HandlerTestSuite) TestGetMe_CreatesUserOnce() {
	first := suite.syncUser("alice-token")
	second := suite.syncUser("alice-token")

	assert.Equal(suite.T(), first.ID, second.ID)
	assert.Equal(suite.T(), 10, first.Credits)
	assert.Equal(suite.T(), "alice@example.com", first.Email)
	assert.Equal(suite.T(), "Test User", first.Name)
}

func (suite *HandlerTestSuite) TestUnsyncedUser() {
	w := suite.do(http.MethodGet, "/api/projects", "alice-token", nil)
	assert.Equal(suite.T(), http.StatusOK, w.Code)
	assert.JSONEq(suite.T(), "[]", w.Body.String())

	w = suite.do(http.MethodPost, "/api/projects", "alice-token", gin.H{"name": "x"})
	assert.Equal(suite.T(), http.StatusUnauthorized, w.Code)
}

func (suite *HandlerTestSuite) TestSessionLoginLogout() {
	w := suite.do(http.MethodPost, "/api/auth/session", "alice-token", nil)
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	cookies := w.Result().Cookies()
	suite.Require().NotEmpty(cookies)

	req := httptest.NewRequest(http.MethodPost, "/api/projects", bytes.NewReader([]byte(`{"name":"From cookie"}`)))
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w = httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)
	assert.Equal(suite.T(), http.StatusCreated, w.Code, w.Body.String())

	w = suite.do(http.MethodPost, "/api/auth/session", "forged", nil)
	assert.Equal(suite.T(), http.StatusUnauthorized, w.Code)

	w = suite.do(http.MethodDelete, "/api/auth/session", "", nil)
	assert.Equal(suite.T(), http.StatusOK, w.Code)
}

func (suite *HandlerTestSuite) TestProjectLifecycle() {
	suite.syncUser("alice-token")
	project := suite.createProject("alice-token", "Read more")
	assert.Equal(suite.T(), "Read more", project.Name)
	assert.Equal(suite.T(), "#000000", project.ColorCode)

	w := suite.do(http.MethodGet, "/api/projects", "alice-token", nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	var projects []dto.ProjectDTO
	suite.decode(w, &projects)
	suite.Require().Len(projects, 1)

	url := fmt.Sprintf("/api/projects/%d", project.ID)
	w = suite.do(http.MethodPatch, url, "alice-token", gin.H{"description": "12 books"})
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var updated dto.ProjectDTO
	suite.decode(w, &updated)
	assert.Equal(suite.T(), "Read more", updated.Name)
	suite.Require().NotNil(updated.Description)
	assert.Equal(suite.T(), "12 books", *updated.Description)

	w = suite.do(http.MethodGet, url+"/stats", "alice-token", nil)
	assert.Equal(suite.T(), http.StatusOK, w.Code)
	assert.Contains(suite.T(), w.Body.String(), `"completion_rate":0`)

	w = suite.do(http.MethodDelete, url, "alice-token", nil)
	assert.Equal(suite.T(), http.StatusOK, w.Code)

	w = suite.do(http.MethodGet, url, "alice-token", nil)
	assert.Equal(suite.T(), http.StatusNotFound, w.Code)
}

func (suite *HandlerTestSuite) TestProjectValidation() {
	suite.syncUser("alice-token")

	w := suite.do(http.MethodPost, "/api/projects", "alice-token", gin.H{"name": ""})
	assert.Equal(suite.T(), http.StatusBadRequest, w.Code)

	w = suite.do(http.MethodPost, "/api/projects", "alice-token", gin.H{"name": "ok", "color_code": "blue"})
	assert.Equal(suite.T(), http.StatusBadRequest, w.Code)
	assert.Contains(suite.T(), w.Body.String(), "INVALID_INPUT")

	w = suite.do(http.MethodGet, "/api/projects/abc", "alice-token", nil)
	assert.Equal(suite.T(), http.StatusBadRequest, w.Code)
}

func (suite *HandlerTestSuite) TestOwnershipEnforced() {
	suite.syncUser("alice-token")
	suite.syncUser("bob-token")
	project := suite.createProject("alice-token", "Private")
	task := suite.createTask("alice-token", project.ID, "secret")

	projectURL := fmt.Sprintf("/api/projects/%d", project.ID)
	taskURL := fmt.Sprintf("/api/tasks/%d", task.ID)

	for _, tc := range []struct {
		method, url string
		body        any
		want        int
	}{
		{http.MethodGet, projectURL, nil, http.StatusForbidden},
		{http.MethodPatch, projectURL, gin.H{"name": "mine now"}, http.StatusForbidden},
		{http.MethodDelete, projectURL, nil, http.StatusForbidden},
		{http.MethodGet, projectURL + "/tasks", nil, http.StatusForbidden},
		{http.MethodPost, projectURL + "/tasks", gin.H{"title": "x"}, http.StatusForbidden},
		{http.MethodPut, projectURL + "/tasks/order", gin.H{"task_ids": []uint64{task.ID}}, http.StatusForbidden},
		{http.MethodPost, projectURL + "/generate", nil, http.StatusForbidden},
		{http.MethodPatch, taskURL, gin.H{"title": "x"}, http.StatusNotFound},
		{http.MethodPatch, taskURL + "/status", gin.H{"status": "done"}, http.StatusNotFound},
		{http.MethodDelete, taskURL, nil, http.StatusNotFound},
	} {
		w := suite.do(tc.method, tc.url, "bob-token", tc.body)
		assert.Equal(suite.T(), tc.want, w.Code, "%s %s", tc.method, tc.url)
	}

	w := suite.do(http.MethodGet, projectURL+"/tasks", "alice-token", nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	var tasks []dto.TaskDTO
	suite.decode(w, &tasks)
	suite.Require().Len(tasks, 1)
	assert.Equal(suite.T(), "secret", tasks[0].Title)
	assert.Equal(suite.T(), models.TaskStatusTodo, tasks[0].Status)
}

func (suite *HandlerTestSuite) TestTaskFlow() {
	suite.syncUser("alice-token")
	project := suite.createProject("alice-token", "Fitness")
	t1 := suite.createTask("alice-token", project.ID, "t1")
	t2 := suite.createTask("alice-token", project.ID, "t2")
	t3 := suite.createTask("alice-token", project.ID, "t3")
	assert.Equal(suite.T(), []int{0, 1, 2}, []int{t1.Position, t2.Position, t3.Position})

	w := suite.do(http.MethodPatch, fmt.Sprintf("/api/tasks/%d", t1.ID), "alice-token", gin.H{"priority": "high"})
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var updated dto.TaskDTO
	suite.decode(w, &updated)
	assert.Equal(suite.T(), "t1", updated.Title)
	assert.Equal(suite.T(), models.TaskPriorityHigh, updated.Priority)

	w = suite.do(http.MethodPatch, fmt.Sprintf("/api/tasks/%d/status", t2.ID), "alice-token", gin.H{"status": "done"})
	assert.Equal(suite.T(), http.StatusOK, w.Code)

	w = suite.do(http.MethodPatch, fmt.Sprintf("/api/tasks/%d/status", t2.ID), "alice-token", gin.H{"status": "later"})
	assert.Equal(suite.T(), http.StatusBadRequest, w.Code)

	orderURL := fmt.Sprintf("/api/projects/%d/tasks/order", project.ID)
	w = suite.do(http.MethodPut, orderURL, "alice-token", gin.H{"task_ids": []uint64{t3.ID, t1.ID, t2.ID}})
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	w = suite.do(http.MethodPut, orderURL, "alice-token", gin.H{"task_ids": []uint64{t3.ID, t3.ID}})
	assert.Equal(suite.T(), http.StatusBadRequest, w.Code)

	w = suite.do(http.MethodGet, fmt.Sprintf("/api/projects/%d/tasks", project.ID), "alice-token", nil)
	var tasks []dto.TaskDTO
	suite.decode(w, &tasks)
	suite.Require().Len(tasks, 3)
	assert.Equal(suite.T(), []uint64{t3.ID, t1.ID, t2.ID}, []uint64{tasks[0].ID, tasks[1].ID, tasks[2].ID})
	assert.Equal(suite.T(), []int{0, 1, 2}, []int{tasks[0].Position, tasks[1].Position, tasks[2].Position})

	w = suite.do(http.MethodGet, fmt.Sprintf("/api/projects/%d/stats", project.ID), "alice-token", nil)
	var stats services.ProjectStats
	suite.decode(w, &stats)
	assert.Equal(suite.T(), int64(3), stats.Total)
	assert.Equal(suite.T(), int64(1), stats.Done)
	assert.Equal(suite.T(), 33, stats.CompletionRate)

	w = suite.do(http.MethodDelete, fmt.Sprintf("/api/tasks/%d", t1.ID), "alice-token", nil)
	assert.Equal(suite.T(), http.StatusOK, w.Code)
	w = suite.do(http.MethodDelete, fmt.Sprintf("/api/tasks/%d", t1.ID), "alice-token", nil)
	assert.Equal(suite.T(), http.StatusNotFound, w.Code)
}

func (suite *HandlerTestSuite) TestGenerateTasks() {
	user := suite.syncUser("alice-token")
	project := suite.createProject("alice-token", "Launch podcast")
	suite.completion.content = `{"tasks":[{"title":"Pick a topic","priority":"high"},{"title":"Buy a microphone"}]}`

	url := fmt.Sprintf("/api/projects/%d/generate", project.ID)
	w := suite.do(http.MethodPost, url, "alice-token", nil)
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(suite.T(), `{"success":true,"tasks_generated":2}`, w.Body.String())

	me := suite.syncUser("alice-token")
	assert.Equal(suite.T(), user.Credits-1, me.Credits)

	suite.completion.content = "oops"
	w = suite.do(http.MethodPost, url, "alice-token", nil)
	assert.Equal(suite.T(), http.StatusInternalServerError, w.Code)
	assert.NotContains(suite.T(), w.Body.String(), "oops")

	suite.Require().NoError(suite.db.Model(&models.User{}).Where("id = ?", user.ID).Update("credits", 0).Error)
	w = suite.do(http.MethodPost, url, "alice-token", nil)
	assert.Equal(suite.T(), http.StatusPreconditionFailed, w.Code)

	w = suite.do(http.MethodPost, url, "alice-token", nil)
	assert.Equal(suite.T(), http.StatusTooManyRequests, w.Code)

	var count int64
	suite.Require().NoError(suite.db.Model(&models.Task{}).Where("project_id = ?", project.ID).Count(&count).Error)
	assert.Equal(suite.T(), int64(2), count)
}

func (suite *HandlerTestSuite) TestGenerateTasks_NotConfigured() {
	userRepo := repository.NewUserRepository(suite.db)
	projectRepo := repository.NewProjectRepository(suite.db)
	taskRepo := repository.NewTaskRepository(suite.db)

	router := gin.New()
	router.Use(sessions.Sessions(constants.SessionCookieName, cookie.NewStore([]byte("test-secret"))))
	RegisterRoutes(router, Dependencies{
		UserService:       services.NewUserService(userRepo),
		ProjectService:    services.NewProjectService(projectRepo, taskRepo),
		TaskService:       services.NewTaskService(taskRepo, projectRepo),
		GenerationService: services.NewGenerationService(userRepo, projectRepo, taskRepo, nil),
		Verifier:          fakeVerifier{"alice-token": claimsFor("user_alice", "alice@example.com")},
	})
	suite.router = router

	suite.syncUser("alice-token")
	project := suite.createProject("alice-token", "No AI")

	w := suite.do(http.MethodPost, fmt.Sprintf("/api/projects/%d/generate", project.ID), "alice-token", nil)
	assert.Equal(suite.T(), http.StatusServiceUnavailable, w.Code)
}

func TestHandlerTestSuite(t *testing.T) {
	suite.Run(t, new(HandlerTestSuite))
}
