package repository

import (
	"context"

	"github.com/RabbitBoii/habit-tracker/internal/models"
)

// UserRepository defines the interface for user data access
type UserRepository interface {
	// FindByID finds a user by ID
	FindByID(ctx context.Context, id uint64) (*models.User, error)

	// FindByExternalID finds a user by identity-provider subject
	FindByExternalID(ctx context.Context, externalID string) (*models.User, error)

	// CreateIfAbsent inserts the user unless a row with the same external ID
	// already exists, then loads the stored row into user.
	CreateIfAbsent(ctx context.Context, user *models.User) error
}

// ProjectRepository defines the interface for project data access
type ProjectRepository interface {
	// ListByOwner lists a user's projects, newest first
	ListByOwner(ctx context.Context, userID uint64) ([]models.Project, error)

	// FindByID finds a project by ID
	FindByID(ctx context.Context, id uint64) (*models.Project, error)

	// Create creates a new project
	Create(ctx context.Context, project *models.Project) error

	// Update applies the given column updates to the project
	Update(ctx context.Context, project *models.Project, updates map[string]interface{}) error

	// Delete deletes a project and its tasks
	Delete(ctx context.Context, id uint64) error
}

// TaskRepository defines the interface for task data access
type TaskRepository interface {
	// ListByProject lists a project's tasks ordered by position
	ListByProject(ctx context.Context, projectID uint64) ([]models.Task, error)

	// NextPosition returns the position after the project's last task, or 0
	NextPosition(ctx context.Context, projectID uint64) (int, error)

	// Create creates a new task
	Create(ctx context.Context, task *models.Task) error

	// FindOwned finds a task by ID that belongs to the user
	FindOwned(ctx context.Context, taskID, userID uint64) (*models.Task, error)

	// UpdateOwned applies updates to a task owned by the user and reports
	// how many rows matched
	UpdateOwned(ctx context.Context, taskID, userID uint64, updates map[string]interface{}) (int64, error)

	// DeleteOwned deletes a task owned by the user and reports how many rows matched
	DeleteOwned(ctx context.Context, taskID, userID uint64) (int64, error)

	// SaveOrder assigns position = index to each task ID within the project atomically
	SaveOrder(ctx context.Context, projectID uint64, orderedIDs []uint64) error

	// CreateBatchWithDebit inserts tasks and debits the user's credits in one transaction
	CreateBatchWithDebit(ctx context.Context, tasks []models.Task, userID uint64, cost int) error

	// CountByStatus counts a project's tasks grouped by status
	CountByStatus(ctx context.Context, projectID uint64) (map[models.TaskStatus]int64, error)
}
