package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RabbitBoii/habit-tracker/internal/database"
	"github.com/RabbitBoii/habit-tracker/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrInsufficientCredits is returned when the conditional credit debit matches no row.
	ErrInsufficientCredits = errors.New("task repository: insufficient credits")
	// ErrCreateTasks is returned when inserting generated tasks fails inside the debit transaction.
	ErrCreateTasks = errors.New("task repository: create tasks failed")
)

// GormTaskRepository is a GORM implementation of TaskRepository
type GormTaskRepository struct {
	db *gorm.DB
}

// NewTaskRepository creates a new TaskRepository
func NewTaskRepository(db *gorm.DB) TaskRepository {
	return &GormTaskRepository{db: db}
}

// ListByProject lists a project's tasks ordered by position
func (r *GormTaskRepository) ListByProject(ctx context.Context, projectID uint64) ([]models.Task, error) {
	tasks := []models.Task{}
	if err := r.db.WithContext(ctx).
		Scopes(database.InProject(projectID), database.ByPosition).
		Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

// NextPosition returns max(position)+1 for the project, or 0 when it has no tasks
func (r *GormTaskRepository) NextPosition(ctx context.Context, projectID uint64) (int, error) {
	var last models.Task
	err := r.db.WithContext(ctx).
		Scopes(database.InProject(projectID)).
		Order("position DESC").
		Limit(1).
		Find(&last).Error
	if err != nil {
		return 0, err
	}
	if last.ID == 0 {
		return 0, nil
	}
	return last.Position + 1, nil
}

// Create creates a new task
func (r *GormTaskRepository) Create(ctx context.Context, task *models.Task) error {
	return r.db.WithContext(ctx).Create(task).Error
}

// FindOwned finds a task by ID that belongs to the user
func (r *GormTaskRepository) FindOwned(ctx context.Context, taskID, userID uint64) (*models.Task, error) {
	var task models.Task
	if err := r.db.WithContext(ctx).
		Scopes(database.OwnedBy(userID)).
		First(&task, taskID).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

// UpdateOwned applies updates to a task matched by ID and owner
func (r *GormTaskRepository) UpdateOwned(ctx context.Context, taskID, userID uint64, updates map[string]interface{}) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Task{}).
		Where("id = ?", taskID).
		Scopes(database.OwnedBy(userID)).
		Updates(updates)
	return result.RowsAffected, result.Error
}

// DeleteOwned deletes a task matched by ID and owner
func (r *GormTaskRepository) DeleteOwned(ctx context.Context, taskID, userID uint64) (int64, error) {
	result := r.db.WithContext(ctx).
		Scopes(database.OwnedBy(userID)).
		Delete(&models.Task{}, taskID)
	return result.RowsAffected, result.Error
}

// SaveOrder writes every position of the batch or none of them. The project
// row is locked first so concurrent reorders of one project run one at a time.
func (r *GormTaskRepository) SaveOrder(ctx context.Context, projectID uint64, orderedIDs []uint64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var project models.Project
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").
			First(&project, projectID).Error; err != nil {
			return err
		}

		for index, taskID := range orderedIDs {
			err := tx.Model(&models.Task{}).
				Where("id = ?", taskID).
				Scopes(database.InProject(projectID)).
				UpdateColumn("position", index).Error
			if err != nil {
				return fmt.Errorf("failed to update position of task %d: %w", taskID, err)
			}
		}

		return nil
	})
}

// CreateBatchWithDebit inserts the tasks and takes cost credits from the
// user atomically. The debit only applies while the balance covers it.
func (r *GormTaskRepository) CreateBatchWithDebit(ctx context.Context, tasks []models.Task, userID uint64, cost int) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&tasks).Error; err != nil {
			return fmt.Errorf("%w: %v", ErrCreateTasks, err)
		}

		result := tx.Model(&models.User{}).
			Where("id = ? AND credits >= ?", userID, cost).
			Updates(map[string]interface{}{
				"credits":    gorm.Expr("credits - ?", cost),
				"updated_at": time.Now(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrInsufficientCredits
		}

		return nil
	})
}

// CountByStatus counts a project's tasks grouped by status
func (r *GormTaskRepository) CountByStatus(ctx context.Context, projectID uint64) (map[models.TaskStatus]int64, error) {
	var rows []struct {
		Status models.TaskStatus
		Total  int64
	}
	if err := r.db.WithContext(ctx).
		Model(&models.Task{}).
		Select("status, COUNT(*) AS total").
		Scopes(database.InProject(projectID)).
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[models.TaskStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}
