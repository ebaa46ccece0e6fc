package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/novacloud-core/internal/automation"
	"github.com/nerrad567/novacloud-core/internal/device"
	"github.com/nerrad567/novacloud-core/internal/infrastructure/config"
	"github.com/nerrad567/novacloud-core/internal/infrastructure/logging"
	"github.com/nerrad567/novacloud-core/internal/trigger"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// ExecutionReader is the read side of the execution log.
type ExecutionReader interface {
	GetExecution(ctx context.Context, id string) (*automation.ExecutionRecord, error)
	ListExecutions(ctx context.Context, strategyID string, limit int) ([]automation.ExecutionRecord, error)
}

// Ingestor accepts telemetry and status updates arriving over HTTP.
// Satisfied by *trigger.Ingestor.
type Ingestor interface {
	IngestSample(ctx context.Context, s trigger.Sample) (*device.Reading, error)
	IngestStatus(ctx context.Context, deviceID string, status device.Status, at time.Time) (device.StatusChange, error)
}

// HealthChecker is implemented by every infrastructure client
// (database, MQTT, InfluxDB).
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	WS         config.WebSocketConfig
	Logger     *logging.Logger
	Executions ExecutionReader
	Ingest     Ingestor
	Metrics    http.Handler             // Prometheus exposition, optional
	Health     map[string]HealthChecker // components reported by /health
	Hub        *Hub                     // If set, the server uses this hub instead of creating its own
	Version    string
}

// Server is the HTTP API server for NovaCloud Core.
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	logger      *logging.Logger
	executions  ExecutionReader
	ingest      Ingestor
	metrics     http.Handler
	health      map[string]HealthChecker
	version     string
	startTime   time.Time
	server      *http.Server
	hub         *Hub
	externalHub bool
	cancel      context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, execution reader, ingestor)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Executions == nil {
		return nil, fmt.Errorf("execution reader is required")
	}
	if deps.Ingest == nil {
		return nil, fmt.Errorf("ingestor is required")
	}

	s := &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		logger:     deps.Logger,
		executions: deps.Executions,
		ingest:     deps.Ingest,
		metrics:    deps.Metrics,
		health:     deps.Health,
		version:    deps.Version,
		startTime:  time.Now(),
	}

	// The engine broadcasts through the same hub, so main builds it first.
	if deps.Hub != nil {
		s.hub = deps.Hub
		s.externalHub = true
	}
	return s, nil
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	return nil
}

// Close gracefully shuts down the API server, waiting up to 10 seconds for
// in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
