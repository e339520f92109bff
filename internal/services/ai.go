package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/RabbitBoii/habit-tracker/internal/constants"
	"github.com/RabbitBoii/habit-tracker/internal/models"
	"github.com/sashabaranov/go-openai"
)

var (
	ErrAIEmptyResponse    = errors.New("AI returned an empty response")
	ErrAIInvalidResponse  = errors.New("failed to parse AI response")
	ErrAINoTasksGenerated = errors.New("AI did not generate any tasks")
)

// CompletionClient is the part of the chat-completion API the generator uses.
// *openai.Client satisfies it.
type CompletionClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type AIService struct {
	client  CompletionClient
	model   string
	timeout time.Duration
}

// GeneratedTask is one validated task suggestion.
type GeneratedTask struct {
	Title       string
	Description string
	Priority    models.TaskPriority
}

type completionPayload struct {
	Tasks *[]completionTask `json:"tasks"`
}

type completionTask struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Priority    *string `json:"priority"`
}

// NewAIService builds the generator against an OpenAI-compatible endpoint.
// An empty baseURL keeps the OpenAI default.
func NewAIService(apiKey, baseURL, model string, timeout time.Duration) *AIService {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return NewAIServiceWithClient(openai.NewClientWithConfig(config), model, timeout)
}

// NewAIServiceWithClient builds the generator around an existing client.
func NewAIServiceWithClient(client CompletionClient, model string, timeout time.Duration) *AIService {
	return &AIService{
		client:  client,
		model:   model,
		timeout: timeout,
	}
}

// BuildPrompt renders the task-breakdown prompt for a project.
func BuildPrompt(name string, description *string) string {
	desc := "No description provided"
	if description != nil && strings.TrimSpace(*description) != "" {
		desc = *description
	}

	return fmt.Sprintf(`You are a project manager AI.
The user has a project named: %q.
Description: %q.

Goal: Break this project into 5-7 actionable, chronological tasks.

Strictly return a JSON OBJECT with a key "tasks" containing an array of objects.
Each object must have:
- "title" (string, max %d chars)
- "description" (string, one sentence)
- "priority" (string: "low", "medium", or "high")

Example Output:
{
  "tasks": [
    { "title": "Install dependencies", "description": "Set up the toolchain and libraries.", "priority": "high" },
    { "title": "Design database schema", "description": "Sketch the tables and relations.", "priority": "medium" }
  ]
}`, name, desc, constants.MaxAITaskTitleLength)
}

// GenerateTasks asks the model for a task breakdown of the project and
// returns the validated tasks. The raw completion text is returned alongside
// any parse error for server-side logging.
func (s *AIService) GenerateTasks(ctx context.Context, name string, description *string) ([]GeneratedTask, string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: BuildPrompt(name, description),
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.3,
	})
	if err != nil {
		return nil, "", fmt.Errorf("AI API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, "", ErrAIEmptyResponse
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return nil, content, ErrAIEmptyResponse
	}

	tasks, err := ParseGeneratedTasks(content)
	return tasks, content, err
}

// ParseGeneratedTasks validates a completion body of the form
// {"tasks":[{"title":..., "description":..., "priority":...}]}.
func ParseGeneratedTasks(content string) ([]GeneratedTask, error) {
	var payload completionPayload
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAIInvalidResponse, err)
	}
	if payload.Tasks == nil {
		return nil, fmt.Errorf("%w: missing tasks", ErrAIInvalidResponse)
	}

	items := *payload.Tasks
	if len(items) == 0 {
		return nil, ErrAINoTasksGenerated
	}
	if len(items) > constants.MaxAIGeneratedTasks {
		return nil, fmt.Errorf("%w: %d tasks exceeds the limit of %d", ErrAIInvalidResponse, len(items), constants.MaxAIGeneratedTasks)
	}

	tasks := make([]GeneratedTask, 0, len(items))
	for i, item := range items {
		if item.Title == nil || strings.TrimSpace(*item.Title) == "" {
			return nil, fmt.Errorf("%w: task %d has no title", ErrAIInvalidResponse, i)
		}

		priority := models.TaskPriorityMedium
		if item.Priority != nil {
			priority = models.TaskPriority(*item.Priority)
			if !priority.Valid() {
				return nil, fmt.Errorf("%w: task %d has priority %q", ErrAIInvalidResponse, i, *item.Priority)
			}
		}

		description := ""
		if item.Description != nil {
			description = strings.TrimSpace(*item.Description)
		}

		tasks = append(tasks, GeneratedTask{
			Title:       truncateRunes(strings.TrimSpace(*item.Title), constants.MaxAITaskTitleLength),
			Description: description,
			Priority:    priority,
		})
	}

	return tasks, nil
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return strings.TrimSpace(string(runes[:max]))
}
