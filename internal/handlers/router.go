package handlers

import (
	"log"
	"net/http"

	"github.com/RabbitBoii/habit-tracker/internal/jwtauth"
	"github.com/RabbitBoii/habit-tracker/internal/middleware"
	"github.com/RabbitBoii/habit-tracker/internal/services"
	"github.com/gin-gonic/gin"
)

// Dependencies bundles what the routes need.
type Dependencies struct {
	UserService       *services.UserService
	ProjectService    *services.ProjectService
	TaskService       *services.TaskService
	GenerationService *services.GenerationService
	Verifier          jwtauth.TokenVerifier
	// AILimiter throttles generation per caller; nil disables it.
	AILimiter *middleware.RateLimiter
	// Health reports backing-store health for GET /health; nil means always ok.
	Health func(c *gin.Context) error
}

// RegisterRoutes mounts the health check and every /api route on r.
func RegisterRoutes(r *gin.Engine, deps Dependencies) {
	sessionHandler := NewSessionHandler(deps.UserService, deps.Verifier)
	userHandler := NewUserHandler(deps.UserService)
	projectHandler := NewProjectHandler(deps.ProjectService)
	taskHandler := NewTaskHandler(deps.TaskService, deps.GenerationService)

	r.GET("/health", func(c *gin.Context) {
		if deps.Health != nil {
			if err := deps.Health(c); err != nil {
				log.Printf("Health check failed: %v", err)
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":  "degraded",
					"message": "Database unavailable",
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Habit Tracker API is running",
		})
	})

	api := r.Group("/api")
	{
		// Session routes (token exchange)
		auth := api.Group("/auth")
		{
			auth.POST("/session", sessionHandler.CreateSession)
			auth.DELETE("/session", sessionHandler.DeleteSession)
		}

		protected := api.Group("")
		protected.Use(middleware.RequireAuth(deps.Verifier), middleware.LoadCurrentUser(deps.UserService))

		protected.GET("/users/me", userHandler.GetMe)

		projects := protected.Group("/projects")
		{
			projects.GET("", projectHandler.ListProjects)
			projects.POST("", projectHandler.CreateProject)
			projects.GET("/:id", projectHandler.GetProject)
			projects.PATCH("/:id", projectHandler.UpdateProject)
			projects.DELETE("/:id", projectHandler.DeleteProject)
			projects.GET("/:id/stats", projectHandler.GetProjectStats)
			projects.GET("/:id/tasks", taskHandler.ListTasks)
			projects.POST("/:id/tasks", taskHandler.CreateTask)
			projects.PUT("/:id/tasks/order", taskHandler.SaveOrder)

			generate := []gin.HandlerFunc{}
			if deps.AILimiter != nil {
				generate = append(generate, deps.AILimiter.Middleware())
			}
			generate = append(generate, taskHandler.GenerateTasks)
			projects.POST("/:id/generate", generate...)
		}

		tasks := protected.Group("/tasks")
		{
			tasks.PATCH("/:id", taskHandler.UpdateTask)
			tasks.DELETE("/:id", taskHandler.DeleteTask)
			tasks.PATCH("/:id/status", taskHandler.UpdateTaskStatus)
		}
	}
}
