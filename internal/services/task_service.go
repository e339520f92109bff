package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/RabbitBoii/habit-tracker/internal/models"
	"github.com/RabbitBoii/habit-tracker/internal/repository"
	"gorm.io/gorm"
)

var (
	ErrTaskNotFound     = errors.New("task not found")
	ErrTitleRequired    = errors.New("title is required")
	ErrTitleEmpty       = errors.New("title cannot be empty")
	ErrInvalidPriority  = errors.New("priority must be one of low, medium, high")
	ErrInvalidStatus    = errors.New("status must be one of todo, in_progress, done")
	ErrEmptyTaskOrder   = errors.New("at least one task ID is required")
	ErrDuplicateTaskIDs = errors.New("task order contains duplicate IDs")
)

// TaskService handles task business logic
type TaskService struct {
	taskRepo    repository.TaskRepository
	projectRepo repository.ProjectRepository
}

// NewTaskService creates a new TaskService
func NewTaskService(taskRepo repository.TaskRepository, projectRepo repository.ProjectRepository) *TaskService {
	return &TaskService{
		taskRepo:    taskRepo,
		projectRepo: projectRepo,
	}
}

// CreateTaskInput represents input for creating a task
type CreateTaskInput struct {
	ProjectID   uint64
	UserID      uint64
	Title       string
	Description *string
	Priority    *models.TaskPriority
}

// UpdateTaskInput represents a partial task update. Nil fields are left unchanged.
type UpdateTaskInput struct {
	Title       *string
	Description *string
	Priority    *models.TaskPriority
}

// ListByProject returns an owned project's tasks in display order
func (s *TaskService) ListByProject(ctx context.Context, projectID, userID uint64) ([]models.Task, error) {
	if _, err := findOwnedProject(ctx, s.projectRepo, projectID, userID); err != nil {
		return nil, err
	}

	tasks, err := s.taskRepo.ListByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	return tasks, nil
}

// CreateTask appends a task to the end of an owned project
func (s *TaskService) CreateTask(ctx context.Context, input CreateTaskInput) (*models.Task, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, ErrTitleRequired
	}

	priority := models.TaskPriorityMedium
	if input.Priority != nil {
		if !input.Priority.Valid() {
			return nil, ErrInvalidPriority
		}
		priority = *input.Priority
	}

	if _, err := findOwnedProject(ctx, s.projectRepo, input.ProjectID, input.UserID); err != nil {
		return nil, err
	}

	position, err := s.taskRepo.NextPosition(ctx, input.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to compute task position: %w", err)
	}

	task := &models.Task{
		UserID:      input.UserID,
		ProjectID:   input.ProjectID,
		Title:       title,
		Description: input.Description,
		Priority:    priority,
		Status:      models.TaskStatusTodo,
		Position:    position,
	}

	if err := s.taskRepo.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	return task, nil
}

// UpdateTask overwrites only the supplied fields of a task the user owns
func (s *TaskService) UpdateTask(ctx context.Context, taskID, userID uint64, input UpdateTaskInput) (*models.Task, error) {
	updates := map[string]interface{}{}
	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, ErrTitleEmpty
		}
		updates["title"] = title
	}
	if input.Description != nil {
		updates["description"] = *input.Description
	}
	if input.Priority != nil {
		if !input.Priority.Valid() {
			return nil, ErrInvalidPriority
		}
		updates["priority"] = *input.Priority
	}

	return s.applyOwned(ctx, taskID, userID, updates)
}

// UpdateStatus sets the status of a task the user owns
func (s *TaskService) UpdateStatus(ctx context.Context, taskID, userID uint64, status models.TaskStatus) (*models.Task, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}

	return s.applyOwned(ctx, taskID, userID, map[string]interface{}{"status": status})
}

// DeleteTask deletes a task the user owns. A missing task and a task owned by
// someone else both report ErrTaskNotFound.
func (s *TaskService) DeleteTask(ctx context.Context, taskID, userID uint64) error {
	affected, err := s.taskRepo.DeleteOwned(ctx, taskID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if affected == 0 {
		return ErrTaskNotFound
	}

	return nil
}

// SaveOrder assigns position = index to each task of an owned project
func (s *TaskService) SaveOrder(ctx context.Context, projectID, userID uint64, orderedIDs []uint64) error {
	if len(orderedIDs) == 0 {
		return ErrEmptyTaskOrder
	}

	seen := make(map[uint64]struct{}, len(orderedIDs))
	for _, id := range orderedIDs {
		if _, exists := seen[id]; exists {
			return ErrDuplicateTaskIDs
		}
		seen[id] = struct{}{}
	}

	if _, err := findOwnedProject(ctx, s.projectRepo, projectID, userID); err != nil {
		return err
	}

	if err := s.taskRepo.SaveOrder(ctx, projectID, orderedIDs); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrProjectNotFound
		}
		return fmt.Errorf("failed to save task order: %w", err)
	}

	return nil
}

// applyOwned runs a matched-row update then reloads the task. MySQL reports
// zero affected rows for a no-op update, so the reload decides NotFound.
func (s *TaskService) applyOwned(ctx context.Context, taskID, userID uint64, updates map[string]interface{}) (*models.Task, error) {
	if len(updates) > 0 {
		if _, err := s.taskRepo.UpdateOwned(ctx, taskID, userID, updates); err != nil {
			return nil, fmt.Errorf("failed to update task: %w", err)
		}
	}

	task, err := s.taskRepo.FindOwned(ctx, taskID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to find task: %w", err)
	}

	return task, nil
}
