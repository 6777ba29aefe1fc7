// Smart Home Core
//
// Entry point for the smart home core: a device registry, homes grouped by
// network, and a scheduler that runs device operations later or on a daily
// clock. The same services are reachable from the interactive menu, the
// HTTP API, WebSocket events and MQTT commands.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/nerrad567/smarthome-core/internal/api"
	"github.com/nerrad567/smarthome-core/internal/audit"
	"github.com/nerrad567/smarthome-core/internal/device"
	"github.com/nerrad567/smarthome-core/internal/home"
	"github.com/nerrad567/smarthome-core/internal/infrastructure/config"
	"github.com/nerrad567/smarthome-core/internal/infrastructure/database"
	"github.com/nerrad567/smarthome-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/smarthome-core/internal/infrastructure/logging"
	"github.com/nerrad567/smarthome-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/smarthome-core/internal/menu"
	"github.com/nerrad567/smarthome-core/internal/schedule"
	"github.com/nerrad567/smarthome-core/internal/user"
	"github.com/nerrad567/smarthome-core/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// configEnvVar overrides defaultConfigPath.
const configEnvVar = "SMARTHOME_CONFIG"

// shutdownTimeout bounds how long in-flight scheduled invocations may run
// after a shutdown signal.
const shutdownTimeout = 10 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// It returns nil on a clean shutdown: a signal, or the menu being closed.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting smart home core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"site", cfg.Site.ID,
		"level", cfg.Logging.Level,
	)

	loc, err := cfg.Location()
	if err != nil {
		return fmt.Errorf("resolving site timezone: %w", err)
	}

	// Open database
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
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
	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	// Device registry, homes and users
	devices := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	devices.SetLogger(log.Component("device"))
	if refreshErr := devices.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading device registry: %w", refreshErr)
	}
	log.Info("device registry initialised", "devices", devices.GetDeviceCount())

	homes := home.NewService(home.NewSQLiteRepository(db.DB), devices)
	homes.SetLogger(log.Component("home"))

	users := user.NewService(user.NewSQLiteRepository(db.DB), homes, devices)
	users.SetLogger(log.Component("user"))

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := schedule.NewMetrics(registry)
	if err != nil {
		return fmt.Errorf("registering scheduler metrics: %w", err)
	}

	auditRepo := audit.NewSQLiteRepository(db.DB)
	checks := map[string]api.HealthChecker{"database": db}
	observers := stateFanout{}
	reporters := []schedule.Reporter{
		logReporter(log.Component("schedule")),
		audit.NewRecorder(auditRepo, log.Component("audit")),
	}

	// MQTT (optional)
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
		mqttClient.SetOnConnect(func() { log.Info("MQTT connected") })
		mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		checks["mqtt"] = mqttClient
		reporters = append(reporters, firePublisher{pub: mqttClient, log: log})
		observers = append(observers, statePublisher{pub: mqttClient, log: log})
	} else {
		log.Info("MQTT disabled")
	}

	// InfluxDB (optional)
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
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
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)

		checks["influxdb"] = influxClient
		reporters = append(reporters, fireRecorder{w: influxClient})
		observers = append(observers, energyRecorder{w: influxClient})
	} else {
		log.Info("InfluxDB disabled")
	}

	// WebSocket broadcaster, shared by the engine, the registry and the API
	broadcaster := api.NewBroadcaster(cfg.WebSocket, log.Component("websocket"))
	wsCtx, stopWS := context.WithCancel(ctx)
	defer stopWS()
	go broadcaster.Run(wsCtx)
	reporters = append(reporters, broadcaster)
	observers = append(observers, broadcaster)
	devices.SetStateObserver(observers)

	// Scheduler
	engine, err := schedule.NewEngine(schedule.EngineOptions{
		Store:         schedule.NewStore(),
		Devices:       devices,
		Location:      loc,
		InvokeTimeout: cfg.GetInvokeTimeout(),
		Logger:        log.Component("schedule"),
		Reporters:     reporters,
		Metrics:       metrics,
	})
	if err != nil {
		return fmt.Errorf("creating scheduler: %w", err)
	}

	snapshots := schedule.NewSQLiteRepository(db.DB)
	if cfg.Scheduler.RestoreOnStartup {
		if restoreErr := restoreSchedules(ctx, engine, snapshots, log); restoreErr != nil {
			return restoreErr
		}
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if stopErr := engine.Stop(stopCtx); stopErr != nil {
			log.Warn("scheduler stopped with work in flight", "error", stopErr)
		}
		if cfg.Scheduler.SnapshotOnShutdown {
			if saveErr := saveSchedules(context.Background(), engine, snapshots, log); saveErr != nil {
				log.Error("saving scheduled operations", "error", saveErr)
			}
		}
	}()

	// MQTT device commands
	if mqttClient != nil {
		topic := mqtt.Topics{}.AllDeviceCommands()
		handler := &commandHandler{devices: devices, scheduler: engine, log: log.Component("mqtt_commands")}
		if subErr := mqttClient.Subscribe(topic, byte(cfg.MQTT.QoS), handler.handle); subErr != nil {
			return fmt.Errorf("subscribing to device commands: %w", subErr)
		}
		defer func() {
			if unsubErr := mqttClient.Unsubscribe(topic); unsubErr != nil {
				log.Debug("unsubscribing device commands", "error", unsubErr)
			}
		}()
		log.Info("listening for device commands", "topic", topic)
	}

	// HTTP API
	if cfg.API.Enabled {
		srv, apiErr := api.New(api.Deps{
			Config:      cfg.API,
			WS:          cfg.WebSocket,
			Security:    cfg.Security,
			Logger:      log.Component("api"),
			Devices:     devices,
			Homes:       homes,
			Users:       users,
			Scheduler:   engine,
			Gatherer:    registry,
			Audit:       auditRepo,
			Checks:      checks,
			Broadcaster: broadcaster,
			Version:     version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := srv.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API disabled")
	}

	if err := healthCheck(ctx, checks); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete", "pending_operations", engine.PendingCount())

	// Interactive menu; closing it shuts the core down.
	menuDone := make(chan error, 1)
	if cfg.Frontend.Menu {
		m, menuErr := menu.New(menu.Options{
			Devices:   devices,
			Homes:     homes,
			Users:     users,
			Scheduler: engine,
			Prompt:    cfg.Frontend.Prompt,
			Logger:    log.Component("menu"),
		})
		if menuErr != nil {
			return fmt.Errorf("creating menu: %w", menuErr)
		}
		go func() { menuDone <- m.Run(ctx, os.Stdin, os.Stdout) }()
	}

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, cleaning up")
	case menuErr := <-menuDone:
		if menuErr != nil && !errors.Is(menuErr, context.Canceled) {
			log.Error("menu stopped", "error", menuErr)
		}
		log.Info("menu closed, cleaning up")
	}

	// Deferred calls run in reverse order: API, scheduler stop and
	// snapshot, InfluxDB, MQTT, database.
	log.Info("smart home core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses SMARTHOME_CONFIG if set, otherwise defaultConfigPath.
func getConfigPath() string {
	if path := os.Getenv(configEnvVar); path != "" {
		return path
	}
	return defaultConfigPath
}

// loadConfig reads path. A missing file at the default path falls back to
// the built-in configuration; an explicitly named file must exist.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if path == defaultConfigPath && errors.Is(err, fs.ErrNotExist) {
		return config.Default()
	}
	return nil, err
}

// healthCheck verifies every registered dependency.
func healthCheck(ctx context.Context, checks map[string]api.HealthChecker) error {
	for name, check := range checks {
		if err := check.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// restoreSchedules re-arms the descriptors saved at the last shutdown and
// clears the snapshot so they are not restored twice.
func restoreSchedules(ctx context.Context, engine *schedule.Engine, repo schedule.SnapshotRepository, log *logging.Logger) error {
	descs, err := repo.LoadSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("loading scheduled operations: %w", err)
	}
	if len(descs) == 0 {
		return nil
	}

	result := engine.Restore(ctx, descs)
	if err := repo.SaveSnapshot(ctx, nil); err != nil {
		return fmt.Errorf("clearing restored snapshot: %w", err)
	}
	log.Info("scheduled operations restored",
		"restored", len(result.Restored),
		"dropped", len(result.Dropped),
	)
	return nil
}

// saveSchedules persists every stored descriptor, replacing the previous snapshot.
func saveSchedules(ctx context.Context, engine *schedule.Engine, repo schedule.SnapshotRepository, log *logging.Logger) error {
	descs := engine.Snapshot()
	if err := repo.SaveSnapshot(ctx, descs); err != nil {
		return err
	}
	log.Info("scheduled operations saved", "count", len(descs))
	return nil
}
