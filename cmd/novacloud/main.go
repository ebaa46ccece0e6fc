// NovaCloud Core - IoT strategy engine
//
// This is the main entry point for NovaCloud Core. It loads configuration,
// opens the registry database, connects the optional MQTT and InfluxDB
// clients, and wires telemetry, device status and schedule triggers into the
// strategy engine. The HTTP API exposes execution records, HTTP ingestion,
// live WebSocket events and Prometheus metrics.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nerrad567/novacloud-core/migrations"

	"github.com/nerrad567/novacloud-core/internal/api"
	"github.com/nerrad567/novacloud-core/internal/audit"
	"github.com/nerrad567/novacloud-core/internal/automation"
	"github.com/nerrad567/novacloud-core/internal/device"
	"github.com/nerrad567/novacloud-core/internal/infrastructure/config"
	"github.com/nerrad567/novacloud-core/internal/infrastructure/database"
	"github.com/nerrad567/novacloud-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/novacloud-core/internal/infrastructure/logging"
	"github.com/nerrad567/novacloud-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/novacloud-core/internal/metrics"
	"github.com/nerrad567/novacloud-core/internal/notify"
	"github.com/nerrad567/novacloud-core/internal/trigger"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup wiring
	log := logging.Default()
	log.Info("starting NovaCloud Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "site", cfg.Site.ID)

	// ─── Storage ────────────────────────────────────────────────────

	db, err := database.Open(database.Config{
		Path:         cfg.Database.Path,
		WALMode:      cfg.Database.WALMode,
		BusyTimeout:  cfg.Database.BusyTimeout,
		MaxOpenConns: cfg.Database.MaxOpenConns,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	applied, err := db.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", "path", cfg.Database.Path, "migrations_applied", applied)

	health := map[string]api.HealthChecker{"database": db}

	// ─── Messaging ──────────────────────────────────────────────────

	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.Component("mqtt"))
		mqttClient.SetOnConnect(func() { log.Info("MQTT reconnected") })
		mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
		health["mqtt"] = mqttClient
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled, actuator commands and MQTT ingestion are unavailable")
	}

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		health["influxdb"] = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	// ─── Strategy engine ────────────────────────────────────────────

	collector := metrics.New()
	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))
	engine, deviceRepo, strategyRepo := buildEngine(db, cfg, mqttClient, influxClient, collector, hub, log)

	dispatcher := trigger.NewDispatcher(engine, strategyRepo, deviceRepo, trigger.Config{
		Workers:  cfg.Engine.Workers,
		Location: cfg.Location(),
	}, log.Component("trigger"))
	dispatcher.SetMetrics(collector)

	ingestor := trigger.NewIngestor(deviceRepo, dispatcher, log.Component("ingest"))
	if influxClient != nil {
		dispatcher.SetExecutionSink(influxClient)
		ingestor.SetMirror(influxClient)
	}
	if mqttClient != nil {
		if subErr := ingestor.Subscribe(mqttClient, mqttClient.QoS()); subErr != nil {
			return fmt.Errorf("subscribing to device topics: %w", subErr)
		}
	}

	if cfg.Scheduler.Enabled {
		scheduler, schedErr := startScheduler(ctx, cfg, dispatcher, strategyRepo, deviceRepo, log)
		if schedErr != nil {
			return schedErr
		}
		defer scheduler.Stop()
	}

	// ─── HTTP API ───────────────────────────────────────────────────

	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go hub.Run(hubCtx)

	server, err := api.New(api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Logger:     log.Component("api"),
		Executions: strategyRepo,
		Ingest:     ingestor,
		Metrics:    collector.Handler(),
		Health:     health,
		Hub:        hub,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, health); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse: API server, hub, scheduler, InfluxDB,
	// MQTT, database.
	return nil
}

// buildEngine wires the evaluator, executor and engine over the registry
// database. Optional clients may be nil.
func buildEngine(
	db *database.DB,
	cfg *config.Config,
	mqttClient *mqtt.Client,
	influxClient *influxdb.Client,
	collector *metrics.Collector,
	hub automation.WSHub,
	log *logging.Logger,
) (*automation.Engine, *device.SQLiteRepository, *automation.SQLiteRepository) {
	deviceRepo := device.NewSQLiteRepository(db.DB)
	strategyRepo := automation.NewSQLiteRepository(db.DB)

	var telemetry device.TelemetryReader = deviceRepo
	if cfg.Engine.TelemetrySource == config.TelemetrySourceInfluxDB && influxClient != nil {
		telemetry = influxClient
	}
	provider := device.NewProvider(deviceRepo, telemetry, cfg.Location())

	router := notify.NewRouter(
		notify.NewEmailSender(cfg.Notification.SMTP),
		notify.NewMessageStore(db.DB),
		log.Component("notify"),
	)

	var actuators automation.ActuatorDispatcher
	if mqttClient != nil {
		actuators = device.NewMQTTDispatcher(mqttClient, mqttClient.QoS())
		router.SetPublisher(mqttClient, cfg.Notification.PlatformTopicPrefix)
	}

	engineLog := log.Component("automation")
	executor := automation.NewExecutor(provider, deviceRepo, actuators, router, automation.ExecutorConfig{
		WebhookTimeout: cfg.GetWebhookTimeout(),
		ResponseLimit:  cfg.Engine.WebhookResponseLimit,
	}, engineLog)

	engine := automation.NewEngine(strategyRepo, automation.NewEvaluator(provider, engineLog), executor, engineLog)
	engine.SetHub(hub)
	engine.SetAudit(audit.NewSQLiteRepository(db.DB))
	engine.SetMetrics(collector)

	return engine, deviceRepo, strategyRepo
}

// startScheduler registers the schedule scan and the retention jobs and
// starts the cron.
func startScheduler(
	ctx context.Context,
	cfg *config.Config,
	dispatcher *trigger.Dispatcher,
	records trigger.Purger,
	readings *device.SQLiteRepository,
	log *logging.Logger,
) (*trigger.Scheduler, error) {
	scheduler := trigger.NewScheduler(ctx, cfg.Location(), log.Component("scheduler"))
	if err := scheduler.AddScheduleScan(cfg.Scheduler.ScanSpec, dispatcher); err != nil {
		return nil, fmt.Errorf("scheduling strategy scan: %w", err)
	}

	retention := cfg.GetRetention()
	if err := scheduler.AddRetention(cfg.Scheduler.CleanupSpec, records, retention); err != nil {
		return nil, fmt.Errorf("scheduling execution record retention: %w", err)
	}
	if _, err := scheduler.Add(cfg.Scheduler.CleanupSpec, func(ctx context.Context) {
		n, err := readings.PruneReadings(ctx, retention)
		if err != nil {
			log.Error("sensor reading prune failed", "error", err)
			return
		}
		if n > 0 {
			log.Info("pruned old sensor readings", "count", n)
		}
	}); err != nil {
		return nil, fmt.Errorf("scheduling reading retention: %w", err)
	}

	scheduler.Start()
	return scheduler, nil
}

// getConfigPath returns NOVACLOUD_CONFIG if set, otherwise the default path.
func getConfigPath() string {
	if path := os.Getenv("NOVACLOUD_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies every configured infrastructure connection.
func healthCheck(ctx context.Context, checks map[string]api.HealthChecker) error {
	for name, checker := range checks {
		if err := checker.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}
