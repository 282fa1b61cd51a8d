package mqtt

import (
	"fmt"
	"net/url"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/mqttremote/internal/infrastructure/config"
	"github.com/nerrad567/mqttremote/internal/remote"
)

// Transport adapts paho.mqtt.golang (MQTT 3.1.1) to remote.Transport.
//
// Every Connect builds a fresh paho client carrying that attempt's will.
// Events from a client that has since been replaced or disconnected are
// dropped, so the bound sink only ever hears about the current attempt.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Transport struct {
	cfg    config.MQTTConfig
	broker *url.URL

	// newClient builds the paho client. Replaced in tests.
	newClient func(*pahomqtt.ClientOptions) pahomqtt.Client

	mu     sync.Mutex
	client pahomqtt.Client
	gen    uint64
	sink   remote.EventSink

	// lifecycleMu serializes Connected and Disconnected delivery. It is held
	// from the generation check until the sink returns, so a retired
	// attempt cannot report Connected after its Disconnected.
	lifecycleMu sync.Mutex

	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

var _ remote.Transport = (*Transport)(nil)

// New validates the broker address and returns an unconnected transport.
func New(cfg config.MQTTConfig) (*Transport, error) {
	broker, err := brokerURL(cfg.Broker)
	if err != nil {
		return nil, err
	}

	return &Transport{
		cfg:       cfg,
		broker:    broker,
		newClient: pahomqtt.NewClient,
	}, nil
}

// Broker returns the URL the transport dials.
func (t *Transport) Broker() string {
	return t.broker.String()
}

// Bind registers the sink for connection and message events.
func (t *Transport) Bind(sink remote.EventSink) {
	t.mu.Lock()
	t.sink = sink
	t.mu.Unlock()
}

// Connect starts one connection attempt and returns without waiting for it.
//
// The outcome arrives as an event: Connected from paho's OnConnect handler,
// or Disconnected if the attempt fails or times out. Any previous client is
// dropped first.
func (t *Transport) Connect(id remote.Identity, creds remote.Credentials, will remote.LastWill) error {
	opts := buildClientOptions(t.broker, t.cfg, id, creds)
	configureLWT(opts, will)

	t.mu.Lock()
	t.gen++
	gen := t.gen
	old := t.client
	t.client = nil
	t.mu.Unlock()

	if old != nil {
		old.Disconnect(0)
	}

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		t.emitLifecycle(gen, remote.ConnectedEvent())
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		t.retireAndDeliver(gen, remote.DisconnectedEvent(err))
	})
	opts.SetDefaultPublishHandler(func(_ pahomqtt.Client, msg pahomqtt.Message) {
		t.emit(gen, remote.MessageEvent(msg.Topic(), msg.Payload()))
	})

	client := t.newClient(opts)

	t.mu.Lock()
	if t.gen != gen {
		t.mu.Unlock()
		return fmt.Errorf("%w: superseded by a newer attempt", ErrConnectionFailed)
	}
	t.client = client
	t.mu.Unlock()

	token := client.Connect()
	go t.awaitConnect(gen, client, token, opts.ConnectTimeout)

	return nil
}

// awaitConnect turns a failed or timed-out connect token into a Disconnected event.
func (t *Transport) awaitConnect(gen uint64, client pahomqtt.Client, token pahomqtt.Token, timeout time.Duration) {
	var err error
	if !token.WaitTimeout(timeout + defaultPublishTimeout) {
		err = fmt.Errorf("%w: %w after %v", ErrConnectionFailed, ErrTimeout, timeout)
	} else if tokenErr := token.Error(); tokenErr != nil {
		err = fmt.Errorf("%w: %w", ErrConnectionFailed, tokenErr)
	}
	if err == nil {
		return
	}

	if t.retireAndDeliver(gen, remote.DisconnectedEvent(err)) {
		client.Disconnect(0)
		if logger := t.getLogger(); logger != nil {
			logger.Warn("MQTT connect attempt failed", "broker", t.broker.String(), "error", err)
		}
	}
}

// retire invalidates generation gen. It reports false if gen was already stale.
func (t *Transport) retire(gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.gen != gen {
		return false
	}
	t.gen++
	t.client = nil
	return true
}

// retireAndDeliver retires gen and reports ev, unless gen was already stale.
func (t *Transport) retireAndDeliver(gen uint64, ev remote.Event) bool {
	t.lifecycleMu.Lock()
	defer t.lifecycleMu.Unlock()

	if !t.retire(gen) {
		return false
	}
	t.deliver(ev)
	return true
}

// emitLifecycle is emit under lifecycleMu.
func (t *Transport) emitLifecycle(gen uint64, ev remote.Event) {
	t.lifecycleMu.Lock()
	defer t.lifecycleMu.Unlock()
	t.emit(gen, ev)
}

// emit delivers ev if gen is still the current attempt.
func (t *Transport) emit(gen uint64, ev remote.Event) {
	t.mu.Lock()
	current := t.gen == gen
	t.mu.Unlock()
	if !current {
		if logger := t.getLogger(); logger != nil {
			logger.Debug("MQTT event from stale client dropped", "event", ev.Kind.String())
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

// Disconnect closes the current client, if any. No event follows.
func (t *Transport) Disconnect() {
	t.mu.Lock()
	t.gen++
	client := t.client
	t.client = nil
	t.mu.Unlock()

	if client != nil {
		client.Disconnect(defaultDisconnectQuiesce)
	}
}

// current returns the client when its connection is open.
func (t *Transport) current() (pahomqtt.Client, error) {
	t.mu.Lock()
	client := t.client
	t.mu.Unlock()

	if client == nil || !client.IsConnectionOpen() {
		return nil, ErrNotConnected
	}
	return client, nil
}

// SetLogger sets a logger for connection diagnostics.
func (t *Transport) SetLogger(logger Logger) {
	t.loggerMu.Lock()
	t.logger = logger
	t.loggerMu.Unlock()
}

// getLogger returns the current logger (may be nil).
func (t *Transport) getLogger() Logger {
	t.loggerMu.RLock()
	defer t.loggerMu.RUnlock()
	return t.logger
}
