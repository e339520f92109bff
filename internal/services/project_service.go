package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/RabbitBoii/habit-tracker/internal/constants"
	"github.com/RabbitBoii/habit-tracker/internal/models"
	"github.com/RabbitBoii/habit-tracker/internal/repository"
	"gorm.io/gorm"
)

var (
	ErrProjectNotFound     = errors.New("project not found")
	ErrProjectAccessDenied = errors.New("project belongs to another user")
	ErrInvalidProjectName  = errors.New("project name cannot be empty")
	ErrInvalidProjectColor = errors.New("color must be a hex code like #1a2b3c")
)

var colorPattern = regexp.MustCompile(`^#([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// Cache is the read-through store used for per-owner project lists.
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// ProjectService provides business logic for project operations.
type ProjectService struct {
	projectRepo repository.ProjectRepository
	taskRepo    repository.TaskRepository
	cache       Cache
	cacheTTL    time.Duration
}

// NewProjectService creates a new ProjectService.
func NewProjectService(projectRepo repository.ProjectRepository, taskRepo repository.TaskRepository) *ProjectService {
	return &ProjectService{
		projectRepo: projectRepo,
		taskRepo:    taskRepo,
	}
}

// WithCache enables caching of project lists. A nil cache disables it.
func (s *ProjectService) WithCache(cache Cache, ttl time.Duration) *ProjectService {
	s.cache = cache
	s.cacheTTL = ttl
	return s
}

// CreateProjectInput represents parameters to create a project.
type CreateProjectInput struct {
	UserID      uint64
	Name        string
	Description *string
	ColorCode   *string
}

// UpdateProjectInput represents a partial project update. Nil fields are left unchanged.
type UpdateProjectInput struct {
	Name        *string
	Description *string
	ColorCode   *string
}

// ProjectStats summarises task progress in a project.
type ProjectStats struct {
	Total          int64 `json:"total"`
	Todo           int64 `json:"todo"`
	InProgress     int64 `json:"in_progress"`
	Done           int64 `json:"done"`
	CompletionRate int   `json:"completion_rate"`
}

func projectListKey(userID uint64) string {
	return fmt.Sprintf("projects:owner:%d", userID)
}

// ListForOwner returns the user's projects, newest first.
func (s *ProjectService) ListForOwner(ctx context.Context, userID uint64) ([]models.Project, error) {
	key := projectListKey(userID)
	if s.cache != nil {
		var cached []models.Project
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return cached, nil
		}
	}

	projects, err := s.projectRepo.ListByOwner(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, projects, s.cacheTTL); err != nil {
			log.Printf("failed to cache projects for user %d: %v", userID, err)
		}
	}

	return projects, nil
}

// GetOwned returns the project if it exists and belongs to the user.
func (s *ProjectService) GetOwned(ctx context.Context, projectID, userID uint64) (*models.Project, error) {
	return findOwnedProject(ctx, s.projectRepo, projectID, userID)
}

func findOwnedProject(ctx context.Context, projectRepo repository.ProjectRepository, projectID, userID uint64) (*models.Project, error) {
	project, err := projectRepo.FindByID(ctx, projectID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("failed to find project: %w", err)
	}

	if project.UserID != userID {
		return nil, ErrProjectAccessDenied
	}

	return project, nil
}

// Create creates a project owned by the user.
func (s *ProjectService) Create(ctx context.Context, input CreateProjectInput) (*models.Project, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, ErrInvalidProjectName
	}

	color := constants.DefaultProjectColor
	if input.ColorCode != nil && *input.ColorCode != "" {
		if !colorPattern.MatchString(*input.ColorCode) {
			return nil, ErrInvalidProjectColor
		}
		color = *input.ColorCode
	}

	project := &models.Project{
		UserID:      input.UserID,
		Name:        name,
		Description: input.Description,
		ColorCode:   color,
	}

	if err := s.projectRepo.Create(ctx, project); err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}

	s.invalidate(ctx, input.UserID)
	return project, nil
}

// Update changes only the supplied fields of an owned project.
func (s *ProjectService) Update(ctx context.Context, projectID, userID uint64, input UpdateProjectInput) (*models.Project, error) {
	project, err := s.GetOwned(ctx, projectID, userID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, ErrInvalidProjectName
		}
		updates["name"] = name
	}
	if input.Description != nil {
		updates["description"] = *input.Description
	}
	if input.ColorCode != nil {
		if !colorPattern.MatchString(*input.ColorCode) {
			return nil, ErrInvalidProjectColor
		}
		updates["color_code"] = *input.ColorCode
	}

	if err := s.projectRepo.Update(ctx, project, updates); err != nil {
		return nil, fmt.Errorf("failed to update project: %w", err)
	}

	s.invalidate(ctx, userID)
	return project, nil
}

// Delete removes an owned project together with its tasks.
func (s *ProjectService) Delete(ctx context.Context, projectID, userID uint64) error {
	if _, err := s.GetOwned(ctx, projectID, userID); err != nil {
		return err
	}

	if err := s.projectRepo.Delete(ctx, projectID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrProjectNotFound
		}
		return fmt.Errorf("failed to delete project: %w", err)
	}

	s.invalidate(ctx, userID)
	return nil
}

// Stats counts an owned project's tasks by status.
func (s *ProjectService) Stats(ctx context.Context, projectID, userID uint64) (*ProjectStats, error) {
	if _, err := s.GetOwned(ctx, projectID, userID); err != nil {
		return nil, err
	}

	counts, err := s.taskRepo.CountByStatus(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks: %w", err)
	}

	stats := &ProjectStats{
		Todo:       counts[models.TaskStatusTodo],
		InProgress: counts[models.TaskStatusInProgress],
		Done:       counts[models.TaskStatusDone],
	}
	stats.Total = stats.Todo + stats.InProgress + stats.Done
	if stats.Total > 0 {
		stats.CompletionRate = int(math.Round(float64(stats.Done) / float64(stats.Total) * 100))
	}

	return stats, nil
}

func (s *ProjectService) invalidate(ctx context.Context, userID uint64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, projectListKey(userID)); err != nil {
		log.Printf("failed to invalidate project cache for user %d: %v", userID, err)
	}
}
