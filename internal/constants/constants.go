package constants

// Context and session keys
const (
	ContextKeyUserID    = "user_id"
	ContextKeyIdentity  = "identity"
	ContextKeyRequestID = "request_id"
	SessionKeyIdentity  = "identity"
	SessionCookieName   = "habit_session"
	HeaderRequestID     = "X-Request-ID"
	HeaderAuthorization = "Authorization"
	BearerPrefix        = "Bearer "
)

// User defaults
const (
	DefaultUserCredits = 10
	FallbackUserEmail  = "no-email@example.com"
)

// Project defaults
const (
	DefaultProjectColor = "#000000"
)

// AI generation limits
const (
	MaxAIGeneratedTasks  = 20
	MaxAITaskTitleLength = 60
	AIGenerationCost     = 1
)
