package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/pick-research/internal/api"
	"github.com/stitts-dev/pick-research/internal/api/handlers"
	"github.com/stitts-dev/pick-research/internal/app"
	"github.com/stitts-dev/pick-research/internal/services"
	"github.com/stitts-dev/pick-research/internal/websocket"
	"github.com/stitts-dev/pick-research/pkg/config"
	"github.com/stitts-dev/pick-research/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	log := logger.InitLogger(cfg.LogLevel, cfg.IsDevelopment())
	if cfg.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	application, err := app.New(cfg, log)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer application.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Run progress fan-out
	hub := websocket.NewHub(log)
	go hub.Run(ctx)
	application.Runner.SetNotifier(hub)

	scheduler := services.NewSchedulerService(
		application.Runner,
		application.Locker(),
		cfg.ScheduledGenerators,
		cfg.RunSchedule,
		cfg.Location(),
		log,
	)
	if err := scheduler.Start(); err != nil {
		log.Errorf("Failed to start scheduler: %v", err)
	}
	defer scheduler.Stop()

	runHandler := handlers.NewRunHandler(ctx, application.Runner, application.Store, log)

	router := api.NewRouter(api.Dependencies{
		Runs:      runHandler,
		Picks:     application.Store,
		Checks:    application.Checks(),
		Scheduler: scheduler.GetStatus,
		WebSocket: hub.HandleWebSocket,
		Logger:    log,
	})

	log.Info("=== REGISTERED ROUTES ===")
	for _, route := range router.Routes() {
		log.Infof("%s %s", route.Method, route.Path)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infof("Starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}

	// cancel in-flight HTTP runs and wait for their audit rows
	cancel()
	runHandler.Wait()

	log.Info("Server exited")
}
