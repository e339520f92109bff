package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/RabbitBoii/habit-tracker/internal/cache"
	"github.com/RabbitBoii/habit-tracker/internal/config"
	"github.com/RabbitBoii/habit-tracker/internal/constants"
	"github.com/RabbitBoii/habit-tracker/internal/database"
	"github.com/RabbitBoii/habit-tracker/internal/handlers"
	"github.com/RabbitBoii/habit-tracker/internal/jwtauth"
	"github.com/RabbitBoii/habit-tracker/internal/middleware"
	"github.com/RabbitBoii/habit-tracker/internal/repository"
	"github.com/RabbitBoii/habit-tracker/internal/services"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	redisStore "github.com/gin-contrib/sessions/redis"
	"github.com/gin-gonic/gin"
)

func main() {
	// Load configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Set Gin mode
	gin.SetMode(cfg.GinMode)

	// Connect to database
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Run migrations
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	verifier, err := jwtauth.NewVerifier(jwtauth.Config{
		Domain:   cfg.AuthDomain,
		Audience: cfg.AuthAudience,
	})
	if err != nil {
		log.Fatalf("Failed to create token verifier: %v", err)
	}

	// Initialize Gin router
	r := gin.Default()
	r.Use(middleware.RequestID())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSAllowedOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", constants.HeaderAuthorization, constants.HeaderRequestID},
		ExposeHeaders:    []string{constants.HeaderRequestID},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Setup session middleware with Redis
	store, err := redisStore.NewStore(
		10,                        // Redis pool size
		"tcp",                     // network type
		cfg.RedisAddr(),           // Redis address from config
		"",                        // username (empty for default user)
		cfg.RedisPassword,         // password
		[]byte(cfg.SessionSecret), // authentication key
	)
	if err != nil {
		log.Fatalf("Failed to create Redis store: %v", err)
	}
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7, // 7 days
		HttpOnly: true,
		Secure:   cfg.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions(constants.SessionCookieName, store))

	userRepo := repository.NewUserRepository(db)
	projectRepo := repository.NewProjectRepository(db)
	taskRepo := repository.NewTaskRepository(db)

	projectService := services.NewProjectService(projectRepo, taskRepo)

	var redisCache *cache.RedisCache
	if cfg.CacheEnabled {
		cacheConfig := cache.DefaultCacheConfig()
		cacheConfig.Addr = cfg.RedisAddr()
		cacheConfig.Password = cfg.RedisPassword
		redisCache = cache.NewRedisCache(cacheConfig)
		defer redisCache.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := redisCache.Health(ctx); err != nil {
			log.Printf("Redis cache unavailable, serving projects from the database: %v", err)
		}
		cancel()
		projectService.WithCache(redisCache, cfg.CacheTTL)
	}

	// Initialize AI service
	var aiService *services.AIService
	if cfg.OpenAIAPIKey != "" {
		aiService = services.NewAIService(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.AIModel, cfg.AITimeout)
	} else {
		log.Println("OPENAI_API_KEY not set, AI task generation disabled")
	}

	handlers.RegisterRoutes(r, handlers.Dependencies{
		UserService:       services.NewUserService(userRepo),
		ProjectService:    projectService,
		TaskService:       services.NewTaskService(taskRepo, projectRepo),
		GenerationService: services.NewGenerationService(userRepo, projectRepo, taskRepo, aiService),
		Verifier:          verifier,
		AILimiter:         middleware.NewRateLimiter(cfg.AIRateLimitRPM, cfg.AIRateLimitBurst),
		Health: func(c *gin.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(c.Request.Context())
		},
	})

	// Start server
	log.Printf("Server starting on %s", cfg.ServerAddr())
	if err := r.Run(cfg.ServerAddr()); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
