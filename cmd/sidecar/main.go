// Command sidecar is the backend process the desktop shell launches as a
// child: it owns the SQLite database, serves the REST + SSE API on a
// dynamically chosen port, and runs the Event Relay that drains the
// transactional outbox to connected subscribers.
package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/Liyue-Cheng/cutie-sub002/internal/application/services"
	"github.com/Liyue-Cheng/cutie-sub002/internal/infrastructure/database"
	"github.com/Liyue-Cheng/cutie-sub002/internal/infrastructure/persistence"
	"github.com/Liyue-Cheng/cutie-sub002/internal/interfaces/middleware"
	"github.com/Liyue-Cheng/cutie-sub002/internal/interfaces/rest"
	"github.com/Liyue-Cheng/cutie-sub002/internal/sidecar"
	"github.com/Liyue-Cheng/cutie-sub002/pkg/config"
	"github.com/Liyue-Cheng/cutie-sub002/pkg/logging"
)

// Exit codes form a small taxonomy the host-side launcher can act on
// without parsing log text (spec.md §4.3, supplementing the distilled
// spec's silence on sidecar-side failure reporting).
const (
	exitOK                 = 0
	exitConfigurationError = 10
	exitDatabaseError      = 11
	exitBindError          = 12
	exitInternalPanic      = 13
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg.DevMode)
	defer log.Sync()

	defer func() {
		if r := recover(); r != nil {
			log.Errorw("sidecar panicked during startup", "panic", r)
			os.Exit(exitInternalPanic)
		}
	}()

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		log.Errorw("failed to open database", "error", err)
		os.Exit(exitDatabaseError)
	}
	defer db.Close()

	if err := persistence.Migrate(context.Background(), db.DB()); err != nil {
		log.Errorw("failed to apply schema migrations", "error", err)
		os.Exit(exitDatabaseError)
	}
	log.Info("database ready")

	sm := services.NewServiceManager(db, cfg, log)
	rest.SetLogger(log)

	if !cfg.DevMode {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Cors())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "subscribers": sm.Hub.SubscriberCount()})
	})

	taskHandler := rest.NewTaskHandler(sm)
	timeBlockHandler := rest.NewTimeBlockHandler(sm)
	areaHandler := rest.NewAreaHandler(sm)
	eventsHandler := rest.NewEventsHandler(sm)

	api := router.Group("/api")
	{
		tasks := api.Group("/tasks")
		tasks.POST("", taskHandler.Create)
		tasks.GET("", taskHandler.List)
		tasks.GET("/:id", taskHandler.Get)
		tasks.PUT("/:id", taskHandler.Update)
		tasks.DELETE("/:id", taskHandler.Delete)
		tasks.POST("/:id/complete", taskHandler.Complete)
		tasks.POST("/:id/reopen", taskHandler.Reopen)

		blocks := api.Group("/time-blocks")
		blocks.POST("", timeBlockHandler.Create)
		blocks.GET("", timeBlockHandler.List)
		blocks.GET("/:id", timeBlockHandler.Get)
		blocks.PUT("/:id", timeBlockHandler.Update)
		blocks.DELETE("/:id", timeBlockHandler.Delete)

		areas := api.Group("/areas")
		areas.POST("", areaHandler.Create)
		areas.GET("", areaHandler.List)
		areas.PUT("/:id", areaHandler.Update)
		areas.DELETE("/:id", areaHandler.Delete)

		api.GET("/events", eventsHandler.Stream)
		api.GET("/resync", eventsHandler.Snapshot)
	}

	listener, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", portSpec(cfg.Port)))
	if err != nil {
		log.Errorw("failed to bind listener", "error", err)
		os.Exit(exitBindError)
	}
	boundPort := listener.Addr().(*net.TCPAddr).Port

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sm.StartRelay(ctx)
	log.Info("event relay started")

	srv := &http.Server{Handler: router}
	go func() {
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Errorw("server error", "error", err)
		}
	}()

	// The launcher reads stdout until it sees this line (spec.md §4.3 port
	// discovery); it must be the last thing printed before we're actually
	// ready to accept connections.
	sidecar.AnnouncePort(boundPort)
	log.Infow("sidecar ready", "port", boundPort)

	shutdown := make(chan struct{})
	go sidecar.Monitor(ctx, cfg.ParentPID, cfg.HeartbeatInterval, log, func() {
		close(shutdown)
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info("received shutdown signal")
	case <-shutdown:
		log.Info("parent process gone, shutting down")
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warnw("forced server shutdown", "error", err)
	}

	log.Info("sidecar exiting")
	os.Exit(exitOK)
}

func portSpec(port int) string {
	if port <= 0 {
		return "0"
	}
	return strconv.Itoa(port)
}
