package config

import "time"

// Timeout constants
const (
	// HTTP timeouts
	DefaultHTTPTimeout       = 60 * time.Second
	GenerationRequestTimeout = 3 * time.Minute
	ServerShutdownTimeout    = 30 * time.Second
	WorkerShutdownTimeout    = 30 * time.Second

	// Upstream client shutdown
	GenerationShutdownTimeout      = 30 * time.Second
	GenerationShutdownPollInterval = 100 * time.Millisecond

	// Database timeouts
	DatabaseConnMaxLifetime = 5 * time.Minute

	// Worker timeouts
	WorkerCheckInterval = 15 * time.Second
	WorkerSleepDuration = 100 * time.Millisecond
)

// Prompt context limits
const (
	// DefaultExistingQuestionLimit caps reference questions pulled from the
	// bank when building a generation prompt.
	DefaultExistingQuestionLimit = 5
	// DefaultGeneratedQuestionLimit caps previously generated questions
	// shown to the model so it avoids repeating them.
	DefaultGeneratedQuestionLimit = 10
)

// Security configuration constants
const (
	// Content Security Policy
	DefaultCSP = "default-src 'self'; style-src 'self' 'unsafe-inline'; script-src 'self' 'unsafe-inline'; img-src 'self' data:;"
)
