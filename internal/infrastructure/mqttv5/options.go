package mqttv5

import (
	"crypto/tls"
	"fmt"
	"math"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/nerrad567/mqttremote/internal/infrastructure/config"
	"github.com/nerrad567/mqttremote/internal/remote"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second

	// reasonFailure is the first MQTT 5 reason code that signals failure.
	reasonFailure = 0x80
)

// schemes maps accepted broker URL schemes to the ones autopaho dials.
var schemes = map[string]string{
	"mqtt":  "mqtt",
	"tcp":   "mqtt",
	"mqtts": "mqtts",
	"ssl":   "mqtts",
	"tls":   "mqtts",
	"ws":    "ws",
	"wss":   "wss",
}

// brokerURL builds the autopaho server URL from the broker config.
// A bare host dials mqtt, or mqtts when TLS is set.
func brokerURL(cfg config.MQTTBrokerConfig) (*url.URL, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("%w: empty host", ErrInvalidBroker)
	}

	raw := cfg.Host
	if !strings.Contains(raw, "://") {
		scheme := "mqtt"
		if cfg.TLS {
			scheme = "mqtts"
		}
		raw = scheme + "://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBroker, err)
	}
	scheme, ok := schemes[strings.ToLower(u.Scheme)]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidBroker, u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: missing host in %q", ErrInvalidBroker, cfg.Host)
	}

	host := u.Host
	if u.Port() == "" {
		if cfg.Port < 1 || cfg.Port > 65535 {
			return nil, fmt.Errorf("%w: port %d out of range", ErrInvalidBroker, cfg.Port)
		}
		host = net.JoinHostPort(u.Hostname(), strconv.Itoa(cfg.Port))
	}

	return &url.URL{Scheme: scheme, Host: host, Path: u.Path}, nil
}

// buildClientConfig creates the autopaho config for one connection attempt.
// Callbacks are attached by the caller.
func buildClientConfig(broker *url.URL, cfg config.MQTTConfig, id remote.Identity, creds remote.Credentials, will remote.LastWill) autopaho.ClientConfig {
	timeout := cfg.ConnectTimeoutDuration()
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}

	keepAlive := cfg.KeepAlive
	if keepAlive > math.MaxUint16 {
		keepAlive = math.MaxUint16
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{broker},
		KeepAlive:                     uint16(keepAlive),
		ConnectTimeout:                timeout,
		CleanStartOnInitialConnection: true,
		WillMessage: &paho.WillMessage{
			Topic:   will.Topic,
			Payload: []byte(will.Payload),
			QoS:     will.QoS,
			Retain:  will.Retain,
		},
		ClientConfig: paho.ClientConfig{
			ClientID: id.String(),
		},
	}

	if creds.Username != "" {
		pahoCfg.ConnectUsername = creds.Username
		pahoCfg.ConnectPassword = []byte(creds.Password)
	}

	if broker.Scheme == "mqtts" || broker.Scheme == "wss" {
		pahoCfg.TlsCfg = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	return pahoCfg
}
