// conmux - console multiplexing daemon for unikernel and VM hosts.
//
// conmux registers a set of console backends (16550 UARTs, virtual
// consoles, MQTT bridges), multiplexes their standard streams and
// exposes them over a REST API, WebSocket streams and MQTT topics,
// with optional transcript recording and throughput telemetry.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/conmux/conmux/migrations"

	"github.com/conmux/conmux/internal/api"
	"github.com/conmux/conmux/internal/console"
	"github.com/conmux/conmux/internal/driver/mqttcon"
	"github.com/conmux/conmux/internal/driver/ns16550"
	"github.com/conmux/conmux/internal/driver/nullcon"
	"github.com/conmux/conmux/internal/driver/vcons"
	"github.com/conmux/conmux/internal/infrastructure/config"
	"github.com/conmux/conmux/internal/infrastructure/database"
	"github.com/conmux/conmux/internal/infrastructure/influxdb"
	"github.com/conmux/conmux/internal/infrastructure/logging"
	"github.com/conmux/conmux/internal/infrastructure/mqtt"
	"github.com/conmux/conmux/internal/telemetry"
	"github.com/conmux/conmux/internal/transcript"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting conmux",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	registry := console.NewRegistry()
	registry.SetLogger(log)

	// Connect to MQTT broker (optional)
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
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB and start the throughput collector (optional)
	var influxClient *influxdb.Client
	var collector *telemetry.Collector
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
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})

		collector = telemetry.NewCollector(influxClient, 0)
		defer collector.Close()
	} else {
		log.Info("InfluxDB disabled")
	}

	// Register configured console backends
	closeBackends, err := registerConsoles(cfg, registry, mqttClient, collector, log)
	if err != nil {
		return fmt.Errorf("registering consoles: %w", err)
	}
	defer closeBackends()
	log.Info("consoles registered", "count", registry.Count())

	// Open database and start transcript capture (optional)
	var transcriptRepo transcript.Repository
	if cfg.Transcript.Enabled {
		db, openErr := database.Open(database.Config{
			Path:        cfg.Database.Path,
			WALMode:     cfg.Database.WALMode,
			BusyTimeout: cfg.Database.BusyTimeout,
		})
		if openErr != nil {
			return fmt.Errorf("opening database: %w", openErr)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		log.Info("database connected", "path", cfg.Database.Path)

		if migrateErr := db.Migrate(ctx); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		log.Info("database migrations complete")

		transcriptRepo = transcript.NewSQLiteRepository(db.DB)

		sink, sinkErr := transcript.NewSink(ctx, transcriptRepo, transcript.SinkConfig{
			ConsoleName:   "transcript",
			NodeID:        cfg.Node.ID,
			FlushInterval: time.Duration(cfg.Transcript.FlushInterval) * time.Second,
			MaxChunkSize:  cfg.Transcript.MaxChunkSize,
			Logger:        log,
		})
		if sinkErr != nil {
			return fmt.Errorf("starting transcript capture: %w", sinkErr)
		}
		defer func() {
			log.Info("ending transcript session", "session_id", sink.SessionID())
			closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer closeCancel()
			if closeErr := sink.Close(closeCtx); closeErr != nil {
				log.Error("error closing transcript sink", "error", closeErr)
			}
		}()

		// The sink joins the registry as a stdout-only device so every
		// broadcast write lands in the transcript.
		registry.Register(console.NewDevice("transcript", sink, console.FlagStdout))
		log.Info("transcript capture started", "session_id", sink.SessionID())
	} else {
		log.Info("transcript capture disabled")
	}

	// Start the API server (optional)
	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer, err = api.New(api.Deps{
			Config:      cfg.API,
			WS:          cfg.WebSocket,
			Security:    cfg.Security,
			Logger:      log,
			Registry:    registry,
			Transcripts: transcriptRepo,
			Version:     version,
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if startErr := apiServer.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			log.Info("stopping API server")
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API server disabled")
	}

	if err := healthCheck(ctx, mqttClient, influxClient, apiServer); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	log.Info("conmux stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses CONMUX_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("CONMUX_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// registerConsoles builds and registers each configured console backend.
//
// When a telemetry collector is provided, every backend is wrapped in a
// throughput meter before registration. The returned function closes
// backend resources (register windows) and must be called on shutdown.
func registerConsoles(cfg *config.Config, registry *console.Registry, broker *mqtt.Client, collector *telemetry.Collector, log *logging.Logger) (func(), error) {
	var closers []func() error
	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				log.Error("error closing console backend", "error", err)
			}
		}
	}

	qos := byte(cfg.MQTT.QoS)
	for _, cc := range cfg.Consoles {
		ops, err := buildBackend(cc, cfg.Node.ID, broker, qos, &closers)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("console %q: %w", cc.Name, err)
		}

		if collector != nil {
			trackGauges(collector, cc.Name, ops)
			meter := telemetry.NewMeter(ops)
			collector.Track(cc.Name, meter)
			ops = meter
		}

		registry.Register(console.NewDevice(cc.Name, ops, parseFlags(cc.Flags)))
	}

	return closeAll, nil
}

// trackGauges registers occupancy gauges for backends that expose them.
// Buffered backends report how full their queues are so a stalled reader
// shows up in the time-series data before input starts getting dropped.
func trackGauges(collector *telemetry.Collector, name string, ops console.Ops) {
	switch b := ops.(type) {
	case *vcons.Console:
		collector.TrackGauge(name, "scrollback_bytes", func() float64 { return float64(b.Scrollback()) })
		collector.TrackGauge(name, "pending_input_bytes", func() float64 { return float64(b.Pending()) })
	case *mqttcon.Console:
		collector.TrackGauge(name, "pending_input_bytes", func() float64 { return float64(b.Pending()) })
	}
}

// buildBackend constructs the console.Ops implementation for one
// configured console. Backends holding OS resources append their
// cleanup to closers.
func buildBackend(cc config.ConsoleConfig, nodeID string, broker *mqtt.Client, qos byte, closers *[]func() error) (console.Ops, error) {
	switch cc.Type {
	case "ns16550":
		bus, err := ns16550.OpenMappedBus(cc.UART.Window, cc.UART.WindowSize, cc.UART.RegShift, cc.UART.RegWidth)
		if err != nil {
			return nil, fmt.Errorf("opening register window: %w", err)
		}
		*closers = append(*closers, bus.Close)

		uart, err := ns16550.New(bus)
		if err != nil {
			return nil, err
		}
		uart.Configure(cc.UART.Divisor)
		return uart, nil

	case "virtual":
		return vcons.New(cc.Scrollback), nil

	case "null":
		return nullcon.New(), nil

	case "mqtt":
		if broker == nil {
			return nil, fmt.Errorf("mqtt console requires the MQTT connection")
		}

		// Topics not set explicitly follow the standard scheme.
		outTopic := cc.MQTT.OutTopic
		if outTopic == "" {
			outTopic = mqtt.Topics{}.ConsoleOut(nodeID, cc.Name)
		}
		inTopic := cc.MQTT.InTopic
		if inTopic == "" {
			inTopic = mqtt.Topics{}.ConsoleIn(nodeID, cc.Name)
		}

		con, err := mqttcon.New(broker, outTopic, qos, 0)
		if err != nil {
			return nil, err
		}
		err = broker.Subscribe(inTopic, qos, func(_ string, payload []byte) error {
			con.Feed(payload)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("subscribing input topic: %w", err)
		}
		return con, nil

	default:
		return nil, fmt.Errorf("unknown console type %q", cc.Type)
	}
}

// parseFlags converts configured role names into console flags.
// Unknown names are ignored; validation happens at config load.
func parseFlags(names []string) console.Flag {
	var flags console.Flag
	for _, name := range names {
		switch name {
		case "stdin":
			flags |= console.FlagStdin
		case "stdout":
			flags |= console.FlagStdout
		}
	}
	return flags
}

// healthCheck verifies all infrastructure connections are healthy.
// Disabled components pass as nil and are skipped.
func healthCheck(ctx context.Context, mqttClient *mqtt.Client, influxClient *influxdb.Client, apiServer *api.Server) error {
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	if apiServer != nil {
		if err := apiServer.HealthCheck(ctx); err != nil {
			return fmt.Errorf("api: %w", err)
		}
	}

	return nil
}
