// sensorbridge mirrors cloud-managed wireless sensors into a local registry.
//
// The bridge reconciles the cloud inventory on a fixed interval, applies
// webhook events to the matching entries, marks silent sensors as faulted
// and republishes every change over MQTT, WebSocket and InfluxDB.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"

	"github.com/nerrad567/sensorbridge/internal/api"
	"github.com/nerrad567/sensorbridge/internal/credential"
	"github.com/nerrad567/sensorbridge/internal/device"
	"github.com/nerrad567/sensorbridge/internal/events"
	"github.com/nerrad567/sensorbridge/internal/health"
	"github.com/nerrad567/sensorbridge/internal/infrastructure/config"
	"github.com/nerrad567/sensorbridge/internal/infrastructure/database"
	"github.com/nerrad567/sensorbridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/sensorbridge/internal/infrastructure/logging"
	"github.com/nerrad567/sensorbridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/sensorbridge/internal/inventory"
	"github.com/nerrad567/sensorbridge/internal/presenter"
	"github.com/nerrad567/sensorbridge/internal/sensor"
	"github.com/nerrad567/sensorbridge/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"
	configEnvVar      = "SENSORBRIDGE_CONFIG"
)

func main() {
	// A missing .env is normal outside development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: loading .env: %v\n", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component and blocks until ctx is cancelled.
// Deferred shutdown runs in reverse start order.
func run(ctx context.Context, args []string) error {
	flags := pflag.NewFlagSet("sensorbridge", pflag.ContinueOnError)
	configFlag := flags.StringP("config", "c", "", "path to config file (default $"+configEnvVar+" or "+defaultConfigPath+")")
	showVersion := flags.BoolP("version", "v", false, "print version and exit")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *showVersion {
		fmt.Printf("sensorbridge %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}

	log := logging.Default()
	log.Info("starting sensorbridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath(*configFlag)
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, cfg.Site.ID, version)
	log.Info("configuration loaded",
		"path", configPath,
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Database
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

	// Registry
	types := sensor.NewDefaultRegistry()
	registry := device.NewRegistry(types, device.NewSQLiteRepository(db.DB),
		device.NewExclusionPolicy(cfg.Exclusions.Types, cfg.Exclusions.Devices))
	registry.SetLogger(log.Component("registry"))
	registry.SetLowBatteryPercent(cfg.Health.LowBatteryPercent)

	restored, err := registry.Restore(ctx)
	if err != nil {
		return fmt.Errorf("restoring entries: %w", err)
	}
	log.Info("registry restored", "entries", restored, "types", types.Types())

	var history *device.SQLiteHistoryRepository
	if cfg.History.Enabled {
		history = device.NewSQLiteHistoryRepository(db.DB)
	}

	// Presentation sinks
	var sinks []presenter.Sink

	mqttClient, err := connectMQTT(cfg, log)
	if err != nil {
		return err
	}
	if mqttClient != nil {
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		sinks = append(sinks, presenter.NewMQTTSink(mqttClient))
	}

	influxClient, err := connectInfluxDB(ctx, cfg, log)
	if err != nil {
		return err
	}
	if influxClient != nil {
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		sinks = append(sinks, presenter.NewInfluxSink(influxClient))
	}

	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))
	go hub.Run(ctx)
	sinks = append(sinks, presenter.NewHubSink(hub))

	fanout := presenter.NewFanout(presenter.DefaultQueueSize, sinks...)
	fanout.SetLogger(log.Component("presenter"))
	fanout.Start(ctx)
	defer func() {
		log.Info("stopping presenter")
		fanout.Stop()
	}()
	registry.SetPresenter(fanout)
	log.Info("presenter started", "sinks", fanout.Sinks())

	// Cloud inventory
	tokens, err := credential.New(credential.Config{
		Endpoint:       cfg.Cloud.IdentityEndpoint,
		KeyID:          cfg.Cloud.KeyID,
		KeySecret:      cfg.Cloud.KeySecret,
		ServiceAccount: cfg.Cloud.ServiceAccount,
		Lifetime:       cfg.Cloud.TokenLifetime,
		Timeout:        cfg.Cloud.RequestTimeout,
	})
	if err != nil {
		return fmt.Errorf("creating credential cache: %w", err)
	}
	tokens.SetLogger(log.Component("credential"))

	client, err := inventory.NewClient(cfg.Cloud.APIBase, cfg.Cloud.ProjectID, tokens, cfg.Cloud.RequestTimeout)
	if err != nil {
		return fmt.Errorf("creating inventory client: %w", err)
	}
	client.SetLogger(log.Component("inventory"))

	poller := inventory.NewPoller(client, registry, cfg.Cloud.RefreshInterval)
	poller.SetLogger(log.Component("inventory"))
	if history != nil {
		poller.SetHistoryPruner(history, cfg.History.Retention)
	}
	poller.Start(ctx)
	defer func() {
		log.Info("stopping inventory poller")
		poller.Stop()
	}()

	if mqttClient != nil {
		if subErr := mqttClient.Subscribe(mqtt.Topics{}.CommandRefresh(), byte(cfg.MQTT.QoS), func(_ string, _ []byte) error {
			poller.Refresh()
			return nil
		}); subErr != nil {
			return fmt.Errorf("subscribing to refresh command: %w", subErr)
		}
	}

	// Health and events
	monitor := health.NewMonitor(registry, types, health.Config{
		SweepInterval:  cfg.Health.SweepInterval,
		StaleThreshold: cfg.Health.StaleThreshold,
	})
	monitor.SetLogger(log.Component("health"))
	monitor.Start(ctx)
	defer func() {
		log.Info("stopping health monitor")
		monitor.Stop()
	}()

	router := events.NewRouter(registry, types, monitor)
	router.SetLogger(log.Component("events"))
	router.SetLowBatteryPercent(cfg.Health.LowBatteryPercent)

	// API
	deps := api.Deps{
		Config:    cfg.API,
		Webhook:   cfg.Webhook,
		WS:        cfg.WebSocket,
		Logger:    log.Component("api"),
		Entries:   registry,
		Events:    router,
		Refresher: poller,
		Checks:    map[string]api.HealthChecker{"database": db},
		Gatherer:  newMetricsRegistry(),
		Hub:       hub,
		Version:   version,
	}
	if history != nil {
		router.SetHistory(history)
		deps.History = history
	}
	if mqttClient != nil {
		deps.Checks["mqtt"] = mqttClient
	}
	if influxClient != nil {
		deps.Checks["influxdb"] = influxClient
	}

	server, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	return nil
}

// getConfigPath resolves the config file: flag, then SENSORBRIDGE_CONFIG,
// then the default.
func getConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if path := os.Getenv(configEnvVar); path != "" {
		return path
	}
	return defaultConfigPath
}

// connectMQTT returns nil when MQTT is disabled.
func connectMQTT(cfg *config.Config, log *logging.Logger) (*mqtt.Client, error) {
	if !cfg.MQTT.Enabled {
		log.Info("MQTT disabled")
		return nil, nil
	}

	client, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	mqttLog := log.Component("mqtt")
	client.SetLogger(mqttLog)
	client.SetOnConnect(func() {
		mqttLog.Info("MQTT reconnected")
	})
	client.SetOnDisconnect(func(err error) {
		mqttLog.Warn("MQTT disconnected", "error", err)
	})

	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)
	return client, nil
}

// connectInfluxDB returns nil when InfluxDB is disabled.
func connectInfluxDB(ctx context.Context, cfg *config.Config, log *logging.Logger) (*influxdb.Client, error) {
	if !cfg.InfluxDB.Enabled {
		log.Info("InfluxDB disabled")
		return nil, nil
	}

	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
	if err != nil {
		return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
	}
	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})

	log.Info("InfluxDB connected",
		"url", cfg.InfluxDB.URL,
		"org", cfg.InfluxDB.Org,
		"bucket", cfg.InfluxDB.Bucket,
	)
	return client, nil
}

// newMetricsRegistry collects every package's metrics plus runtime metrics.
func newMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	for _, set := range [][]prometheus.Collector{
		api.MetricsCollectors(),
		credential.MetricsCollectors(),
		device.MetricsCollectors(),
		events.MetricsCollectors(),
		health.MetricsCollectors(),
		inventory.MetricsCollectors(),
		presenter.MetricsCollectors(),
	} {
		reg.MustRegister(set...)
	}
	return reg
}
