package mqtt

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/mqttremote/internal/infrastructure/config"
	"github.com/nerrad567/mqttremote/internal/remote"
)

// Connection constants.
const (
	// defaultConnectTimeout is used when the config leaves connect_timeout unset.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout is the maximum time to wait for a publish, subscribe
	// or unsubscribe acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 1000 // milliseconds

	// subackFailure is the SUBACK return code for a refused subscription.
	subackFailure = 0x80

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// schemes maps the accepted broker URL schemes to the ones paho dials.
var schemes = map[string]string{
	"mqtt":  "tcp",
	"tcp":   "tcp",
	"mqtts": "ssl",
	"ssl":   "ssl",
	"tls":   "ssl",
	"ws":    "ws",
	"wss":   "wss",
}

// brokerURL builds the paho broker URL from the broker config.
//
// A host with a scheme (mqtt://, mqtts://, ws://, wss://) decides the
// transport itself; a bare host uses tcp, or ssl when TLS is set. A port in
// the host wins over the configured port.
func brokerURL(cfg config.MQTTBrokerConfig) (*url.URL, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("%w: empty host", ErrInvalidBroker)
	}

	raw := cfg.Host
	if !strings.Contains(raw, "://") {
		scheme := "tcp"
		if cfg.TLS {
			scheme = "ssl"
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

// isSecure reports whether the broker URL needs a TLS config.
func isSecure(u *url.URL) bool {
	return u.Scheme == "ssl" || u.Scheme == "wss"
}

// buildClientOptions creates paho options for one connection attempt.
//
// Paho's own reconnect and connect-retry are disabled: the remote
// supervisor decides when to retry and replays subscriptions itself.
// All inbound messages go through the default publish handler.
func buildClientOptions(broker *url.URL, cfg config.MQTTConfig, id remote.Identity, creds remote.Credentials) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(broker.String())

	opts.SetClientID(id.String())

	if creds.Username != "" {
		opts.SetUsername(creds.Username)
		opts.SetPassword(creds.Password)
	}

	// Clean session - subscriptions are replayed by the caller on every connect.
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)

	// Handlers run in their own goroutines so they can publish and wait.
	opts.SetOrderMatters(false)

	timeout := cfg.ConnectTimeoutDuration()
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	opts.SetConnectTimeout(timeout)
	opts.SetKeepAlive(cfg.KeepAliveDuration())

	if isSecure(broker) {
		opts.SetTLSConfig(&tls.Config{
			MinVersion: tlsMinVersion,
		})
	}

	return opts
}

// configureLWT sets the Last Will and Testament published by the broker
// if this client disconnects unexpectedly.
func configureLWT(opts *pahomqtt.ClientOptions, will remote.LastWill) {
	opts.SetWill(will.Topic, will.Payload, will.QoS, will.Retain)
}
