// mqttremote - supervised MQTT device connection
//
// This is the daemon entry point. It loads the configuration, connects a
// remote over MQTT 3.1.1 or MQTT 5, keeps it connected, answers pings on
// <client_id>/ping with <client_id>/pong and, when enabled, records
// connection telemetry in InfluxDB.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/mqttremote/internal/infrastructure/config"
	"github.com/nerrad567/mqttremote/internal/infrastructure/influxdb"
	"github.com/nerrad567/mqttremote/internal/infrastructure/logging"
	"github.com/nerrad567/mqttremote/internal/infrastructure/mqtt"
	"github.com/nerrad567/mqttremote/internal/infrastructure/mqttv5"
	"github.com/nerrad567/mqttremote/internal/remote"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	// defaultConfigPath is used when MQTTREMOTE_CONFIG is unset.
	defaultConfigPath = "configs/mqttremote.yaml"

	// statsInterval is how often remote stats are written to InfluxDB.
	statsInterval = 30 * time.Second
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting mqttremote",
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
	log.Info("configuration loaded",
		"path", configPath,
		"level", cfg.Logging.Level,
		"protocol_version", cfg.MQTT.Broker.ProtocolVersion,
	)

	transport, err := newTransport(cfg.MQTT, log.Component("transport"))
	if err != nil {
		return fmt.Errorf("creating transport: %w", err)
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
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	var telemetry connectionWriter
	if influxClient != nil {
		telemetry = influxClient
	}
	clearOnReconnect := cfg.Remote.ClearSubscriptionsOnReconnect

	// r and ping are assigned before Start, which is what launches the
	// callback goroutine.
	var (
		r    *remote.Remote
		ping func()
	)
	r, err = remote.New(transport, remote.Options{
		ClientID: cfg.Remote.ClientID,
		Credentials: remote.Credentials{
			Username: cfg.MQTT.Auth.Username,
			Password: cfg.MQTT.Auth.Password,
		},
		RetryInterval:                 cfg.RetryInterval(),
		TickInterval:                  cfg.TickInterval(),
		SubscribeQoS:                  byte(cfg.Remote.SubscribeQoS),
		MaxMessageSize:                cfg.Remote.MaxMessageSize,
		ReceiveVerbose:                cfg.Remote.ReceiveVerbose,
		ClearSubscriptionsOnReconnect: cfg.Remote.ClearSubscriptionsOnReconnect,
		OnSessionChange: func(change remote.ConnectionChange) {
			recordSession(r.ClientID().String(), change, telemetry, log)
			// The registry is emptied before every attempt in this mode.
			if change.Connected && clearOnReconnect {
				ping()
			}
		},
		Logger: log.Component("remote"),
	})
	if err != nil {
		return fmt.Errorf("creating remote: %w", err)
	}
	log = log.With("client_id", r.ClientID().String())

	pingTopic := r.ClientID().String() + "/ping"
	pongTopic := r.ClientID().String() + "/pong"
	handler := pingHandler(r, pongTopic, byte(cfg.MQTT.QoS), log)
	ping = func() {
		if err := subscribe(r, pingTopic, handler); err != nil {
			log.Warn("ping subscription failed", "topic", pingTopic, "error", err)
		}
	}
	if !clearOnReconnect {
		if err := subscribe(r, pingTopic, handler); err != nil {
			return fmt.Errorf("subscribing to %s: %w", pingTopic, err)
		}
	}

	r.Start(ctx)
	defer func() {
		// The notifier stops with ctx, so the final disconnect is recorded here.
		session := r.SessionID()
		wasConnected := r.Connected()

		log.Info("closing MQTT connection")
		if closeErr := r.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
		if wasConnected {
			recordSession(r.ClientID().String(), remote.ConnectionChange{SessionID: session}, telemetry, log)
		}
	}()

	if influxClient != nil {
		go recordStats(ctx, r, influxClient)
	}

	log.Info("mqttremote running", "status_topic", r.StatusTopic())
	if err := r.Run(ctx); err != nil {
		return fmt.Errorf("running remote: %w", err)
	}

	log.Info("shutdown signal received")
	return nil
}

// getConfigPath returns the configuration file path.
// It checks MQTTREMOTE_CONFIG first, falling back to the default.
func getConfigPath() string {
	if path := os.Getenv("MQTTREMOTE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// transportLogger is what both transports accept.
type transportLogger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// newTransport picks the MQTT implementation for the configured protocol version.
func newTransport(cfg config.MQTTConfig, log transportLogger) (remote.Transport, error) {
	switch cfg.Broker.ProtocolVersion {
	case config.ProtocolV311:
		t, err := mqtt.New(cfg)
		if err != nil {
			return nil, err
		}
		t.SetLogger(log)
		return t, nil
	case config.ProtocolV5:
		t, err := mqttv5.New(cfg)
		if err != nil {
			return nil, err
		}
		t.SetLogger(log)
		return t, nil
	default:
		return nil, fmt.Errorf("unsupported MQTT protocol version %d", cfg.Broker.ProtocolVersion)
	}
}

// pingHandler answers every ping with a pong carrying the same payload.
func pingHandler(api remote.API, pongTopic string, qos byte, log remote.Logger) remote.MessageHandler {
	return func(_ string, payload []byte) {
		if err := api.Publish(pongTopic, payload, qos, false); err != nil {
			if errors.Is(err, remote.ErrNotConnected) {
				log.Debug("pong dropped while offline", "topic", pongTopic)
				return
			}
			log.Warn("pong publish failed", "topic", pongTopic, "error", err)
		}
	}
}

// subscribe registers handler on topic. An existing subscription counts
// as success.
func subscribe(api remote.API, topic string, handler remote.MessageHandler) error {
	if _, err := api.Subscribe(topic, handler); err != nil && !errors.Is(err, remote.ErrAlreadySubscribed) {
		return err
	}
	return nil
}

// connectionWriter is the part of the InfluxDB client used for session telemetry.
type connectionWriter interface {
	WriteConnectionState(clientID, sessionID string, connected bool)
}

// recordSession logs one connection transition and writes it to w, if set.
func recordSession(clientID string, change remote.ConnectionChange, w connectionWriter, log remote.Logger) {
	log.Info("MQTT connection changed",
		"connected", change.Connected,
		"session_id", change.SessionID,
	)
	if w != nil {
		w.WriteConnectionState(clientID, change.SessionID, change.Connected)
	}
}

// statsSource is the part of a remote sampled for telemetry.
type statsSource interface {
	ClientID() remote.Identity
	SubscriptionCount() int
	Connected() bool
}

// statsWriter is the part of the InfluxDB client used for telemetry.
type statsWriter interface {
	WriteRemoteStats(clientID string, subscriptions int, connected bool)
}

// recordStats samples the remote every statsInterval until ctx is cancelled.
func recordStats(ctx context.Context, src statsSource, w statsWriter) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.WriteRemoteStats(src.ClientID().String(), src.SubscriptionCount(), src.Connected())
		}
	}
}
