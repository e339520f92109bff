package repository

import (
	"context"

	"github.com/RabbitBoii/habit-tracker/internal/database"
	"github.com/RabbitBoii/habit-tracker/internal/models"
	"gorm.io/gorm"
)

// GormProjectRepository is a GORM implementation of ProjectRepository
type GormProjectRepository struct {
	db *gorm.DB
}

// NewProjectRepository creates a new ProjectRepository
func NewProjectRepository(db *gorm.DB) ProjectRepository {
	return &GormProjectRepository{db: db}
}

// ListByOwner lists a user's projects, newest first
func (r *GormProjectRepository) ListByOwner(ctx context.Context, userID uint64) ([]models.Project, error) {
	projects := []models.Project{}
	if err := r.db.WithContext(ctx).
		Scopes(database.OwnedBy(userID), database.NewestFirst).
		Find(&projects).Error; err != nil {
		return nil, err
	}
	return projects, nil
}

// FindByID finds a project by ID
func (r *GormProjectRepository) FindByID(ctx context.Context, id uint64) (*models.Project, error) {
	var project models.Project
	if err := r.db.WithContext(ctx).First(&project, id).Error; err != nil {
		return nil, err
	}
	return &project, nil
}

// Create creates a new project
func (r *GormProjectRepository) Create(ctx context.Context, project *models.Project) error {
	return r.db.WithContext(ctx).Create(project).Error
}

// Update applies column updates and refreshes the project in place
func (r *GormProjectRepository) Update(ctx context.Context, project *models.Project, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}

	db := r.db.WithContext(ctx)
	if err := db.Model(project).Updates(updates).Error; err != nil {
		return err
	}
	return db.First(project, project.ID).Error
}

// Delete deletes a project and its tasks in a transaction
func (r *GormProjectRepository) Delete(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Scopes(database.InProject(id)).Delete(&models.Task{}).Error; err != nil {
			return err
		}

		result := tx.Delete(&models.Project{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		return nil
	})
}
