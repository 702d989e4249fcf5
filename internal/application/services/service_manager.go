package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/Liyue-Cheng/cutie-sub002/internal/infrastructure/database"
	"github.com/Liyue-Cheng/cutie-sub002/internal/infrastructure/persistence"
	"github.com/Liyue-Cheng/cutie-sub002/internal/infrastructure/sse"
	"github.com/Liyue-Cheng/cutie-sub002/pkg/config"
)

// ServiceManager orchestrates all services with dependency injection,
// mirroring the teacher's internal/application/services/service_manager.go:
// a single struct wired up once at startup that every HTTP handler reaches
// into instead of each constructing its own dependency graph.
type ServiceManager struct {
	db *database.Connection

	TxManager *persistence.TransactionManager
	Harness   *CommandHarness
	Relay     *OutboxRelay
	Hub       *sse.Hub

	Tasks      *TaskService
	TimeBlocks *TimeBlockService
	Areas      *AreaService

	TaskRepo      *persistence.TaskRepository
	TimeBlockRepo *persistence.TimeBlockRepository
	AreaRepo      *persistence.AreaRepository
	OutboxRepo    *persistence.OutboxRepository

	wakeRelay chan struct{}
}

// NewServiceManager wires every component of the spine: repositories,
// transaction manager, SSE hub, command harness, relay, and the three
// per-aggregate business services, in the dependency order each needs.
func NewServiceManager(db *database.Connection, cfg config.Config, log *zap.SugaredLogger) *ServiceManager {
	sm := &ServiceManager{db: db}

	// 1. Repositories
	sm.TaskRepo = persistence.NewTaskRepository(db.DB())
	sm.TimeBlockRepo = persistence.NewTimeBlockRepository(db.DB())
	sm.AreaRepo = persistence.NewAreaRepository(db.DB())
	sm.OutboxRepo = persistence.NewOutboxRepository(db.DB())

	// 2. Infrastructure
	sm.TxManager = persistence.NewTransactionManager(db)
	sm.Hub = sse.NewHub(cfg.SSEQueueSize, cfg.SSEKeepAlive)

	// 3. The spine: harness writes, relay ships, hub fans out.
	sm.wakeRelay = make(chan struct{}, 1)
	sm.Harness = NewCommandHarness(sm.TxManager, sm.OutboxRepo, sm.wakeRelay, log)
	sm.Relay = NewOutboxRelay(
		sm.OutboxRepo, sm.Hub, sm.wakeRelay,
		cfg.OutboxPollInterval, cfg.OutboxIdleBackoff, cfg.OutboxRetention, cfg.OutboxMaxAttempts,
		log,
	)

	// 4. Business services
	sm.Tasks = NewTaskService(sm.TaskRepo, sm.TimeBlockRepo)
	sm.TimeBlocks = NewTimeBlockService(sm.TimeBlockRepo, sm.TaskRepo)
	sm.Areas = NewAreaService(sm.AreaRepo)

	return sm
}

// StartRelay launches the Event Relay's background loop. Call once during
// sidecar startup; Run blocks until ctx is cancelled.
func (sm *ServiceManager) StartRelay(ctx context.Context) {
	go sm.Relay.Run(ctx)
}
