// Package di provides dependency injection container for managing service lifecycle and dependencies.
package di

import (
	"context"
	"database/sql"
	"sync"

	"questgen/internal/config"
	"questgen/internal/database"
	"questgen/internal/observability"
	"questgen/internal/services"
	"questgen/internal/services/mailer"
	contextutils "questgen/internal/utils"
)

// ServiceContainerInterface defines the interface for service containers
type ServiceContainerInterface interface {
	GetService(name string) (interface{}, error)
	GetQuestionService() (services.QuestionServiceInterface, error)
	GetSessionService() (services.SessionServiceInterface, error)
	GetStatsService() (services.StatsServiceInterface, error)
	GetGenerationService() (services.GenerationServiceInterface, error)
	GetEmailService() (mailer.Mailer, error)
	GetDatabase() *sql.DB
	GetConfig() *config.Config
	GetLogger() *observability.Logger
	Initialize(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// ServiceContainer manages all service dependencies and lifecycle
type ServiceContainer struct {
	cfg           *config.Config
	logger        *observability.Logger
	dbManager     *database.Manager
	db            *sql.DB
	services      map[string]interface{}
	mu            sync.RWMutex
	shutdownFuncs []func(context.Context) error
}

// NewServiceContainer creates a new dependency injection container
func NewServiceContainer(cfg *config.Config, logger *observability.Logger) *ServiceContainer {
	return &ServiceContainer{
		cfg:      cfg,
		logger:   logger,
		services: make(map[string]interface{}),
	}
}

// Initialize sets up all services and their dependencies
func (sc *ServiceContainer) Initialize(ctx context.Context) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	// Initialize database
	sc.dbManager = database.NewManager(sc.logger)
	db, err := sc.dbManager.InitDBWithConfig(sc.cfg.Database)
	if err != nil {
		return contextutils.WrapErrorf(err, "failed to initialize database")
	}
	sc.db = db
	sc.shutdownFuncs = append(sc.shutdownFuncs, func(_ context.Context) error {
		return db.Close()
	})

	// Initialize core services
	if err := sc.initializeServices(ctx); err != nil {
		_ = sc.cleanup(ctx)
		return contextutils.WrapErrorf(err, "failed to initialize services")
	}

	// Startup lifecycle services
	if err := sc.startupServices(ctx); err != nil {
		// Cleanup on failure
		_ = sc.cleanup(ctx)
		return contextutils.WrapErrorf(err, "failed to startup services")
	}

	return nil
}

// GetService retrieves a service by name with type assertion
func (sc *ServiceContainer) GetService(name string) (interface{}, error) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()

	service, exists := sc.services[name]
	if !exists {
		return nil, contextutils.ErrorWithContextf("service %s not found", name)
	}
	return service, nil
}

// GetServiceAs performs type-safe service retrieval
func GetServiceAs[T any](sc *ServiceContainer, name string) (T, error) {
	var zero T
	service, err := sc.GetService(name)
	if err != nil {
		return zero, err
	}

	typed, ok := service.(T)
	if !ok {
		return zero, contextutils.ErrorWithContextf("service %s is not of expected type %T", name, zero)
	}
	return typed, nil
}

// GetQuestionService returns the question service
func (sc *ServiceContainer) GetQuestionService() (services.QuestionServiceInterface, error) {
	return GetServiceAs[services.QuestionServiceInterface](sc, "question")
}

// GetSessionService returns the generation session service
func (sc *ServiceContainer) GetSessionService() (services.SessionServiceInterface, error) {
	return GetServiceAs[services.SessionServiceInterface](sc, "session")
}

// GetStatsService returns the generation stats service
func (sc *ServiceContainer) GetStatsService() (services.StatsServiceInterface, error) {
	return GetServiceAs[services.StatsServiceInterface](sc, "stats")
}

// GetGenerationService returns the question generation service
func (sc *ServiceContainer) GetGenerationService() (services.GenerationServiceInterface, error) {
	return GetServiceAs[services.GenerationServiceInterface](sc, "generation")
}

// GetEmailService returns the email service
func (sc *ServiceContainer) GetEmailService() (mailer.Mailer, error) {
	return GetServiceAs[mailer.Mailer](sc, "email")
}

// GetCredentialPool returns the shared API credential pool
func (sc *ServiceContainer) GetCredentialPool() (*services.CredentialPool, error) {
	return GetServiceAs[*services.CredentialPool](sc, "credential_pool")
}

// GetDatabase returns the database instance
func (sc *ServiceContainer) GetDatabase() *sql.DB {
	return sc.db
}

// GetConfig returns the configuration
func (sc *ServiceContainer) GetConfig() *config.Config {
	return sc.cfg
}

// GetLogger returns the logger
func (sc *ServiceContainer) GetLogger() *observability.Logger {
	return sc.logger
}

// Shutdown gracefully shuts down all services
func (sc *ServiceContainer) Shutdown(ctx context.Context) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	return sc.cleanup(ctx)
}

// startupServices starts all services that implement the Lifecycle interface
func (sc *ServiceContainer) startupServices(ctx context.Context) error {
	// Check each service to see if it implements Lifecycle interface
	for name, service := range sc.services {
		if lifecycleService, ok := service.(interface{ Startup(context.Context) error }); ok {
			sc.logger.Info(ctx, "Starting service", map[string]interface{}{"service": name})
			if err := lifecycleService.Startup(ctx); err != nil {
				return contextutils.WrapErrorf(err, "failed to startup service %s", name)
			}
			sc.logger.Info(ctx, "Service started successfully", map[string]interface{}{"service": name})
		}
	}
	return nil
}

// cleanup handles shutdown of all services
func (sc *ServiceContainer) cleanup(ctx context.Context) error {
	var errors []error

	// Shutdown lifecycle services first (in reverse order)
	for name := range sc.services {
		if lifecycleService, ok := sc.services[name].(interface{ Shutdown(context.Context) error }); ok {
			sc.logger.Info(ctx, "Shutting down service", map[string]interface{}{"service": name})
			if err := lifecycleService.Shutdown(ctx); err != nil {
				sc.logger.Error(ctx, "Failed to shutdown service", err, map[string]interface{}{"service": name})
				errors = append(errors, contextutils.WrapErrorf(err, "service %s shutdown failed", name))
			} else {
				sc.logger.Info(ctx, "Service shutdown successfully", map[string]interface{}{"service": name})
			}
		}
	}

	// Shutdown services in reverse order of initialization
	for i := len(sc.shutdownFuncs) - 1; i >= 0; i-- {
		if err := sc.shutdownFuncs[i](ctx); err != nil {
			errors = append(errors, err)
		}
	}

	if len(errors) > 0 {
		return contextutils.ErrorWithContextf("shutdown errors: %v", errors)
	}
	return nil
}

// initializeServices sets up all service dependencies
func (sc *ServiceContainer) initializeServices(_ context.Context) error {
	// Core services that don't depend on other services
	questionService := services.NewQuestionService(sc.db, sc.logger)
	sc.services["question"] = questionService

	sessionService := services.NewSessionService(sc.db, sc.logger)
	sc.services["session"] = sessionService

	statsService := services.NewStatsService(sc.db, sc.logger)
	sc.services["stats"] = statsService

	// Generation stack: credential pool, upstream client, orchestrator
	pool, err := services.NewCredentialPool(sc.cfg.Generation.APIKeys, sc.logger)
	if err != nil {
		return contextutils.WrapErrorf(err, "failed to build credential pool")
	}
	sc.services["credential_pool"] = pool

	client := services.NewLLMClient(&sc.cfg.Generation, sc.logger)
	generationService := services.NewGenerationService(&sc.cfg.Generation, pool, client, sc.logger)
	sc.services["generation"] = generationService

	// Email service
	emailService := services.CreateEmailService(sc.cfg, sc.logger)
	sc.services["email"] = emailService

	return nil
}
