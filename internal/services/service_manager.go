package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/eduflow-vn/quiz-engine/internal/cache"
	"github.com/eduflow-vn/quiz-engine/internal/events"
	"github.com/eduflow-vn/quiz-engine/internal/repositories"
	"github.com/eduflow-vn/quiz-engine/internal/validator"
)

// ServiceManagerConfig holds configuration for the service manager.
type ServiceManagerConfig struct {
	// SweepInterval is how often expired in-progress attempts are finalized
	// in the background. Zero disables the sweep.
	SweepInterval time.Duration
	// SweepBatchSize caps how many attempts one sweep pass picks up.
	SweepBatchSize int
}

// serviceManager implements ServiceManager.
type serviceManager struct {
	// Dependencies
	repo      repositories.Repository
	logger    *slog.Logger
	validator *validator.Validator
	clock     Clock
	publisher events.EventPublisher
	cache     *cache.CacheManager
	config    ServiceManagerConfig

	// Service instances
	attemptService AttemptService
	gradingService GradingService
	sweeper        *ExpirySweeper

	// Lifecycle management
	initialized bool
	shutdown    bool
	mu          sync.RWMutex
}

// NewServiceManager creates a service manager with all dependencies.
func NewServiceManager(repo repositories.Repository, logger *slog.Logger, validator *validator.Validator, clock Clock, publisher events.EventPublisher, cacheManager *cache.CacheManager, config ServiceManagerConfig) ServiceManager {
	return &serviceManager{
		repo:      repo,
		logger:    logger,
		validator: validator,
		clock:     clock,
		publisher: publisher,
		cache:     cacheManager,
		config:    config,
	}
}

// NewDefaultServiceManager creates a service manager with default configuration.
func NewDefaultServiceManager(repo repositories.Repository, logger *slog.Logger, validator *validator.Validator, publisher events.EventPublisher, cacheManager *cache.CacheManager) ServiceManager {
	config := ServiceManagerConfig{
		SweepInterval:  30 * time.Second,
		SweepBatchSize: 100,
	}
	return NewServiceManager(repo, logger, validator, RealClock(), publisher, cacheManager, config)
}

// Initialize wires the services and starts the expiry sweep.
func (sm *serviceManager) Initialize(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.initialized {
		return nil
	}

	sm.logger.Info("Initializing service manager")

	sm.gradingService = NewGradingService(sm.repo, sm.logger, sm.validator, sm.clock, sm.publisher)
	sm.logger.Info("Grading service initialized")

	sm.attemptService = NewAttemptService(sm.repo, sm.logger, sm.validator, sm.clock, sm.publisher, sm.cache)
	sm.logger.Info("Attempt service initialized")

	if sm.config.SweepInterval > 0 {
		sm.sweeper = NewExpirySweeper(sm.repo, sm.gradingService, sm.logger, sm.clock, sm.config.SweepInterval, sm.config.SweepBatchSize)
		sm.sweeper.Start()
		sm.logger.Info("Expiry sweeper started", "interval", sm.config.SweepInterval)
	}

	if err := sm.repo.Ping(ctx); err != nil {
		return fmt.Errorf("repository health check failed: %w", err)
	}

	sm.initialized = true
	sm.logger.Info("Service manager initialized successfully")
	return nil
}

// Service getters
func (sm *serviceManager) Attempt() AttemptService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized || sm.attemptService == nil {
		panic("service manager not initialized")
	}
	return sm.attemptService
}

func (sm *serviceManager) Grading() GradingService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized || sm.gradingService == nil {
		panic("service manager not initialized")
	}
	return sm.gradingService
}

func (sm *serviceManager) HealthCheck(ctx context.Context) error {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if sm.shutdown {
		return fmt.Errorf("service manager is shut down")
	}
	if !sm.initialized {
		return fmt.Errorf("service manager not initialized")
	}
	return sm.repo.Ping(ctx)
}

// Shutdown stops the sweeper and releases outbound resources. Idempotent.
func (sm *serviceManager) Shutdown(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.shutdown {
		return nil
	}

	sm.logger.Info("Shutting down service manager")

	if sm.sweeper != nil {
		sm.sweeper.Stop()
	}
	if sm.publisher != nil {
		if err := sm.publisher.Close(); err != nil {
			sm.logger.Error("Failed to close event publisher", "error", err)
		}
	}
	if err := sm.repo.Close(); err != nil {
		sm.logger.Error("Failed to close repository", "error", err)
	}

	sm.shutdown = true
	sm.logger.Info("Service manager shut down")
	return nil
}
