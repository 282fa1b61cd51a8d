package mqttv5

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/nerrad567/mqttremote/internal/infrastructure/config"
	"github.com/nerrad567/mqttremote/internal/remote"
)

// connection is the part of *autopaho.ConnectionManager the transport uses.
type connection interface {
	AwaitConnection(ctx context.Context) error
	Publish(ctx context.Context, p *paho.Publish) (*paho.PublishResponse, error)
	Subscribe(ctx context.Context, s *paho.Subscribe) (*paho.Suback, error)
	Unsubscribe(ctx context.Context, u *paho.Unsubscribe) (*paho.Unsuback, error)
	Disconnect(ctx context.Context) error
}

func dialAutopaho(ctx context.Context, cfg autopaho.ClientConfig) (connection, error) {
	cm, err := autopaho.NewConnection(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return cm, nil
}

// Logger interface for optional logging support.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// attempt is one connection manager and the context that keeps it alive.
type attempt struct {
	conn   connection
	cancel context.CancelFunc
	up     bool
}

// Transport adapts autopaho (MQTT 5) to remote.Transport.
//
// autopaho reconnects on its own; here each Connect runs one manager
// and tears it down at the first failure or loss, so remote.Remote keeps
// control of the retry interval and of subscription replay.
type Transport struct {
	cfg    config.MQTTConfig
	broker *url.URL
	dial   func(context.Context, autopaho.ClientConfig) (connection, error)

	mu      sync.Mutex
	current *attempt
	sink    remote.EventSink
	logger  Logger

	// lifecycleMu is held from the attempt check until the sink has handled
	// Connected or Disconnected, so a failed attempt cannot report
	// Connected after its Disconnected.
	lifecycleMu sync.Mutex
}

var _ remote.Transport = (*Transport)(nil)

// New validates the broker address and returns an unconnected transport.
func New(cfg config.MQTTConfig) (*Transport, error) {
	broker, err := brokerURL(cfg.Broker)
	if err != nil {
		return nil, err
	}
	return &Transport{cfg: cfg, broker: broker, dial: dialAutopaho}, nil
}

// Broker returns the URL the transport dials.
func (t *Transport) Broker() string { return t.broker.String() }

// SetLogger sets a logger for connection diagnostics.
func (t *Transport) SetLogger(logger Logger) {
	t.mu.Lock()
	t.logger = logger
	t.mu.Unlock()
}

// Bind registers the sink for connection and message events.
func (t *Transport) Bind(sink remote.EventSink) {
	t.mu.Lock()
	t.sink = sink
	t.mu.Unlock()
}

// Connect starts one connection manager and returns without waiting.
func (t *Transport) Connect(id remote.Identity, creds remote.Credentials, will remote.LastWill) error {
	t.Disconnect()

	ctx, cancel := context.WithCancel(context.Background())
	a := &attempt{cancel: cancel}

	t.mu.Lock()
	t.current = a
	t.mu.Unlock()

	pahoCfg := buildClientConfig(t.broker, t.cfg, id, creds, will)
	pahoCfg.OnConnectionUp = func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
		t.lifecycleMu.Lock()
		defer t.lifecycleMu.Unlock()
		if t.markUp(a, cm) {
			t.deliver(remote.ConnectedEvent())
		}
	}
	pahoCfg.OnConnectError = func(err error) {
		t.fail(a, fmt.Errorf("%w: %w", ErrConnectionFailed, err))
	}
	pahoCfg.ClientConfig.OnClientError = func(err error) {
		t.fail(a, fmt.Errorf("%w: %w", ErrConnectionLost, err))
	}
	pahoCfg.ClientConfig.OnServerDisconnect = func(d *paho.Disconnect) {
		t.fail(a, fmt.Errorf("%w: server disconnect reason %#x", ErrConnectionLost, d.ReasonCode))
	}
	pahoCfg.ClientConfig.OnPublishReceived = []func(paho.PublishReceived) (bool, error){
		func(pr paho.PublishReceived) (bool, error) {
			t.emit(a, remote.MessageEvent(pr.Packet.Topic, pr.Packet.Payload))
			return true, nil
		},
	}

	conn, err := t.dial(ctx, pahoCfg)
	if err != nil {
		t.mu.Lock()
		if t.current == a {
			t.current = nil
		}
		t.mu.Unlock()
		cancel()
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	t.mu.Lock()
	if t.current != a {
		t.mu.Unlock()
		cancel()
		return fmt.Errorf("%w: superseded by a newer attempt", ErrConnectionFailed)
	}
	if a.conn == nil {
		a.conn = conn
	}
	t.mu.Unlock()

	go t.awaitConnect(a, conn, pahoCfg.ConnectTimeout)

	return nil
}

// awaitConnect retires the attempt if it is not up within the timeout.
func (t *Transport) awaitConnect(a *attempt, conn connection, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout+defaultPublishTimeout)
	defer cancel()

	if err := conn.AwaitConnection(ctx); err != nil {
		t.fail(a, fmt.Errorf("%w: %w", ErrConnectionFailed, err))
	}
}

// markUp flags the attempt as connected. It reports false for stale attempts.
func (t *Transport) markUp(a *attempt, cm *autopaho.ConnectionManager) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current != a {
		return false
	}
	if a.conn == nil && cm != nil {
		a.conn = cm
	}
	a.up = true
	return true
}

// fail tears down attempt a and reports Disconnected, once.
func (t *Transport) fail(a *attempt, err error) {
	t.lifecycleMu.Lock()
	defer t.lifecycleMu.Unlock()

	t.mu.Lock()
	if t.current != a {
		t.mu.Unlock()
		return
	}
	t.current = nil
	logger := t.logger
	t.mu.Unlock()

	a.cancel()
	if logger != nil {
		logger.Warn("MQTT v5 connection ended", "broker", t.broker.String(), "error", err)
	}
	t.deliver(remote.DisconnectedEvent(err))
}

// emit delivers ev if a is still the current attempt.
func (t *Transport) emit(a *attempt, ev remote.Event) {
	t.mu.Lock()
	current := t.current == a
	logger := t.logger
	t.mu.Unlock()

	if !current {
		if logger != nil {
			logger.Debug("MQTT v5 event from stale connection dropped", "event", ev.Kind.String())
		}
		return
	}
	t.deliver(ev)
}

func (t *Transport) deliver(ev remote.Event) {
	t.mu.Lock()
	sink := t.sink
	t.mu.Unlock()
	if sink != nil {
		sink.HandleEvent(ev)
	}
}

// Disconnect sends DISCONNECT on the current connection, if any, and stops
// its manager. No event follows.
func (t *Transport) Disconnect() {
	t.mu.Lock()
	a := t.current
	t.current = nil
	var conn connection
	if a != nil && a.up {
		conn = a.conn
	}
	t.mu.Unlock()

	if a == nil {
		return
	}
	if conn != nil {
		ctx, cancel := context.WithTimeout(context.Background(), defaultPublishTimeout)
		_ = conn.Disconnect(ctx)
		cancel()
	}
	a.cancel()
}

// up returns the connection when it is established.
func (t *Transport) up() (connection, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil || !t.current.up || t.current.conn == nil {
		return nil, ErrNotConnected
	}
	return t.current.conn, nil
}

// Publish sends a message on the current connection. It never queues.
func (t *Transport) Publish(topic string, payload []byte, qos byte, retain bool) error {
	conn, err := t.up()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultPublishTimeout)
	defer cancel()

	if _, err := conn.Publish(ctx, &paho.Publish{
		Topic:   topic,
		Payload: payload,
		QoS:     qos,
		Retain:  retain,
	}); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// Subscribe asks the broker for messages on topic. A failure reason code
// in the SUBACK is returned as ErrSubscribeFailed.
func (t *Transport) Subscribe(topic string, qos byte) error {
	conn, err := t.up()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultPublishTimeout)
	defer cancel()

	suback, err := conn.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{Topic: topic, QoS: qos}},
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	if suback != nil {
		for _, code := range suback.Reasons {
			if code >= reasonFailure {
				return fmt.Errorf("%w: broker refused %q with reason %#x", ErrSubscribeFailed, topic, code)
			}
		}
	}
	return nil
}

// Unsubscribe cancels a subscription on the current connection.
func (t *Transport) Unsubscribe(topic string) error {
	conn, err := t.up()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultPublishTimeout)
	defer cancel()

	if _, err := conn.Unsubscribe(ctx, &paho.Unsubscribe{Topics: []string{topic}}); err != nil {
		return fmt.Errorf("%w: %w", ErrUnsubscribeFailed, err)
	}
	return nil
}
