package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/sliink/eventd/internal/api/docs"
	"github.com/sliink/eventd/internal/core"
	"github.com/sliink/eventd/internal/model"
)

// DaemonView is the read-only part of the daemon the API reports on
type DaemonView interface {
	Snapshot() core.DaemonStatus
	Identity() core.Identity
	Hooks() *core.HookRegistry
}

// Deps holds what the endpoints read from. Everything except Metrics is
// optional.
type Deps struct {
	Daemon      DaemonView
	Metrics     http.Handler
	Health      *core.HealthMonitor
	Plugins     *core.PluginRegistry
	Bus         *core.EventBus
	ServiceName string
	Tracing     bool
	Logger      *slog.Logger
}

// Failure is the last recovered error seen on the bus
type Failure struct {
	Type   model.NoticeType `json:"type"`
	Source string           `json:"source"`
	Error  string           `json:"error"`
	At     time.Time        `json:"at"`
}

// API serves metrics, health and daemon status over HTTP
type API struct {
	deps     Deps
	router   *gin.Engine
	server   *http.Server
	listener net.Listener
	host     string
	port     int
	logger   *slog.Logger

	mu          sync.RWMutex
	lastFailure *Failure
}

// NewAPI creates a new API instance
// @title        eventd API
// @version      1.0
// @description  Metrics, health and status of the eventd daemon
// @BasePath     /
func NewAPI(deps Deps, host string, port int) *API {
	docs.SwaggerInfo.Host = net.JoinHostPort(host, fmt.Sprint(port))

	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	gin.SetMode(gin.ReleaseMode)

	a := &API{
		deps:   deps,
		router: gin.New(),
		host:   host,
		port:   port,
		logger: logger.With("component", "api"),
	}

	if deps.Tracing {
		a.router.Use(otelgin.Middleware(deps.ServiceName))
	}
	a.router.Use(gin.Recovery())
	a.router.Use(a.requestLogger())
	a.setupRoutes()

	if deps.Bus != nil {
		for _, noticeType := range []model.NoticeType{
			model.NoticeStageFailure,
			model.NoticeSourceFailure,
			model.NoticeHookFailure,
		} {
			deps.Bus.Subscribe(noticeType, "api", a.recordFailure)
		}
	}

	return a
}

// setupRoutes configures all the API routes
func (a *API) setupRoutes() {
	if a.deps.Metrics != nil {
		a.router.GET("/metrics", gin.WrapH(a.deps.Metrics))
	}
	a.router.GET("/health", a.healthCheck)
	a.router.GET("/status", a.getStatus)
	a.router.GET("/hooks", a.getHooks)
	a.router.GET("/sources", a.getSources)

	a.router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
}

// Handler exposes the router, mainly for tests
func (a *API) Handler() http.Handler {
	return a.router
}

// Start binds the listen address and serves in the background. A bind
// failure is returned immediately.
func (a *API) Start() error {
	addr := net.JoinHostPort(a.host, fmt.Sprint(a.port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	a.listener = listener
	a.server = &http.Server{
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := a.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", "error", err)
		}
	}()
	a.logger.Info("metrics endpoint listening", "addr", listener.Addr().String())
	return nil
}

// Addr returns the bound address once started
func (a *API) Addr() string {
	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}

// Stop stops the API server
func (a *API) Stop(ctx context.Context) error {
	if a.deps.Bus != nil {
		for _, noticeType := range []model.NoticeType{
			model.NoticeStageFailure,
			model.NoticeSourceFailure,
			model.NoticeHookFailure,
		} {
			a.deps.Bus.Unsubscribe(noticeType, "api")
		}
	}
	if a.server == nil {
		return nil
	}
	return a.server.Shutdown(ctx)
}

func (a *API) recordFailure(notice model.Notice) {
	failure := &Failure{
		Type:   notice.Type,
		Source: notice.SourceID,
		At:     notice.Timestamp,
	}
	if err, ok := notice.Data.(error); ok {
		failure.Error = err.Error()
	}

	a.mu.Lock()
	a.lastFailure = failure
	a.mu.Unlock()
}

// LastFailure returns the most recent failure notice, if any
func (a *API) LastFailure() *Failure {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.lastFailure == nil {
		return nil
	}
	failure := *a.lastFailure
	return &failure
}

func (a *API) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		a.logger.DebugContext(c.Request.Context(), "http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

// healthCheck handles GET /health. It answers 503 when any component is in
// ERROR.
// @Summary      Health check
// @Description  Component health. Answers 503 when any component is in ERROR.
// @Tags         system
// @Produce      json
// @Success      200  {object}  model.HealthStatus
// @Failure      503  {object}  model.HealthStatus
// @Router       /health [get]
func (a *API) healthCheck(c *gin.Context) {
	if a.deps.Health == nil {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now(),
		})
		return
	}

	health := a.deps.Health.GetHealthStatus()
	code := http.StatusOK
	if health.Status == model.StatusError {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, health)
}

// getStatus handles GET /status
// @Summary      Daemon status
// @Description  Loop state, counters, identity, hooks, sources and the last recovered failure
// @Tags         daemon
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /status [get]
func (a *API) getStatus(c *gin.Context) {
	status := gin.H{
		"last_failure": a.LastFailure(),
	}
	if a.deps.Daemon != nil {
		status["daemon"] = a.deps.Daemon.Snapshot()
		status["identity"] = a.deps.Daemon.Identity()
		status["hooks"] = a.deps.Daemon.Hooks().Names()
	}
	status["sources"] = a.sourceIDs()
	c.JSON(http.StatusOK, status)
}

// getHooks handles GET /hooks
// @Summary      List hooks
// @Description  Names of the loaded event hooks in dispatch order
// @Tags         daemon
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /hooks [get]
func (a *API) getHooks(c *gin.Context) {
	hooks := []string{}
	if a.deps.Daemon != nil {
		hooks = append(hooks, a.deps.Daemon.Hooks().Names()...)
	}
	c.JSON(http.StatusOK, gin.H{"hooks": hooks})
}

type sourceInfo struct {
	ID     string                `json:"id"`
	Name   string                `json:"name"`
	Status model.ComponentStatus `json:"status"`
}

// getSources handles GET /sources
// @Summary      List sources
// @Description  Configured event sources and their status
// @Tags         daemon
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /sources [get]
func (a *API) getSources(c *gin.Context) {
	sources := []sourceInfo{}
	if a.deps.Plugins != nil {
		for _, source := range a.deps.Plugins.Sources() {
			sources = append(sources, sourceInfo{
				ID:     source.ID(),
				Name:   source.Name(),
				Status: source.GetStatus(),
			})
		}
	}
	c.JSON(http.StatusOK, gin.H{"sources": sources})
}

func (a *API) sourceIDs() []string {
	ids := []string{}
	if a.deps.Plugins != nil {
		for _, source := range a.deps.Plugins.Sources() {
			ids = append(ids, source.ID())
		}
	}
	return ids
}
