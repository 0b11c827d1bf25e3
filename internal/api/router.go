package api

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/pick-research/internal/api/handlers"
	"github.com/stitts-dev/pick-research/internal/api/middleware"
)

// Dependencies are the services the HTTP surface exposes.
type Dependencies struct {
	Runs      *handlers.RunHandler
	Picks     handlers.PickReader
	Checks    map[string]handlers.Check
	Scheduler func() map[string]interface{}
	WebSocket gin.HandlerFunc
	Logger    *logrus.Logger
}

// NewRouter builds the engine with middleware and every route registered.
func NewRouter(deps Dependencies) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(deps.Logger))

	healthHandler := handlers.NewHealthHandler(deps.Checks, deps.Scheduler)
	router.GET("/health", healthHandler.GetHealth)
	router.GET("/ready", healthHandler.GetReady)

	if deps.WebSocket != nil {
		router.GET("/ws/runs", deps.WebSocket)
	}

	SetupRoutes(router.Group("/api/v1"), deps, healthHandler)
	return router
}

// SetupRoutes configures all API routes on the given router group
func SetupRoutes(group *gin.RouterGroup, deps Dependencies, healthHandler *handlers.HealthHandler) {
	pickHandler := handlers.NewPickHandler(deps.Picks, deps.Logger)

	// Run endpoints
	group.POST("/runs", deps.Runs.StartRun)
	group.GET("/runs/:id", deps.Runs.GetRun)
	group.GET("/generators", deps.Runs.ListGenerators)
	group.GET("/scheduler/status", healthHandler.GetSchedulerStatus)

	// Output endpoints
	group.GET("/picks", pickHandler.ListPicks)
	group.GET("/trends", pickHandler.ListTrends)
}
