package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/RabbitBoii/habit-tracker/internal/constants"
	"github.com/RabbitBoii/habit-tracker/internal/models"
	"github.com/RabbitBoii/habit-tracker/internal/repository"
	"gorm.io/gorm"
)

var (
	ErrAIServiceNotConfigured = errors.New("AI service is not configured")
	ErrInsufficientCredits    = errors.New("not enough credits to generate tasks")
)

// GenerationService turns a project into AI-suggested tasks, paid for with credits.
type GenerationService struct {
	userRepo    repository.UserRepository
	projectRepo repository.ProjectRepository
	taskRepo    repository.TaskRepository
	aiService   *AIService
}

// NewGenerationService creates a new GenerationService. A nil aiService
// makes every call fail with ErrAIServiceNotConfigured.
func NewGenerationService(userRepo repository.UserRepository, projectRepo repository.ProjectRepository, taskRepo repository.TaskRepository, aiService *AIService) *GenerationService {
	return &GenerationService{
		userRepo:    userRepo,
		projectRepo: projectRepo,
		taskRepo:    taskRepo,
		aiService:   aiService,
	}
}

// GenerateTasksInput represents input for AI task generation
type GenerateTasksInput struct {
	ProjectID uint64
	UserID    uint64
	RequestID string
}

// GenerateTasks checks the caller's balance and project, asks the model for
// tasks, then stores them and takes one credit in a single transaction.
// It returns the number of tasks created.
func (s *GenerationService) GenerateTasks(ctx context.Context, input GenerateTasksInput) (int, error) {
	if s.aiService == nil {
		return 0, ErrAIServiceNotConfigured
	}

	user, err := s.userRepo.FindByID(ctx, input.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("failed to find user: %w", err)
	}
	if user.Credits < constants.AIGenerationCost {
		return 0, ErrInsufficientCredits
	}

	project, err := findOwnedProject(ctx, s.projectRepo, input.ProjectID, user.ID)
	if err != nil {
		return 0, err
	}

	generated, raw, err := s.aiService.GenerateTasks(ctx, project.Name, project.Description)
	if err != nil {
		if errors.Is(err, ErrAIInvalidResponse) {
			log.Printf("[%s] AI parse error for project %d: %v (response: %s)", input.RequestID, project.ID, err, raw)
		} else {
			log.Printf("[%s] AI generation failed for project %d: %v", input.RequestID, project.ID, err)
		}
		return 0, err
	}

	tasks := make([]models.Task, len(generated))
	for i, g := range generated {
		description := g.Description
		tasks[i] = models.Task{
			UserID:      project.UserID,
			ProjectID:   project.ID,
			Title:       g.Title,
			Description: &description,
			Priority:    g.Priority,
			Status:      models.TaskStatusTodo,
			Position:    i + 1,
		}
	}

	if err := s.taskRepo.CreateBatchWithDebit(ctx, tasks, user.ID, constants.AIGenerationCost); err != nil {
		if errors.Is(err, repository.ErrInsufficientCredits) {
			return 0, ErrInsufficientCredits
		}
		return 0, fmt.Errorf("failed to save generated tasks: %w", err)
	}

	log.Printf("[%s] generated %d tasks for project %d", input.RequestID, len(tasks), project.ID)
	return len(tasks), nil
}
