package remote

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Defaults applied by New for zero-valued options.
const (
	// DefaultRetryInterval gates reconnect attempts.
	DefaultRetryInterval = 3 * time.Second

	// DefaultTickInterval is how often Run calls Tick.
	DefaultTickInterval = 250 * time.Millisecond

	// DefaultMaxMessageSize bounds outgoing payloads (1MB).
	DefaultMaxMessageSize = 1 << 20

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2
)

// Logger defines the logging interface for the remote.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Remote.
type Options struct {
	// ClientID is the MQTT client ID and status topic prefix ([a-zA-Z0-9_]+).
	ClientID string

	// Credentials are passed to the transport on every connect attempt.
	Credentials Credentials

	// RetryInterval is the minimum time between connect attempts.
	// Default: 3s
	RetryInterval time.Duration

	// TickInterval is how often Run calls Tick.
	// Default: 250ms
	TickInterval time.Duration

	// SubscribeQoS is used for every subscribe call, live or replayed.
	SubscribeQoS byte

	// MaxMessageSize bounds outgoing payloads in bytes.
	// Default: 1MB
	MaxMessageSize int

	// ReceiveVerbose logs every inbound message at info instead of debug.
	ReceiveVerbose bool

	// ClearSubscriptionsOnReconnect empties the registry before every
	// connect attempt instead of replaying it. Subscribe then requires a
	// live connection and returns ErrNotConnected otherwise. Off by default.
	ClearSubscriptionsOnReconnect bool

	// OnConnectionChange is called with true on every connect and false on
	// every disconnect. It runs on its own goroutine, started by Start.
	OnConnectionChange func(connected bool)

	// OnSessionChange is OnConnectionChange with the session that started
	// or ended, taken at the transition. It runs on the same goroutine.
	OnSessionChange func(ConnectionChange)

	// Signal, if set, is updated on every connect and disconnect so other
	// goroutines can wait on it. A private Signal is used otherwise.
	Signal *Signal

	// Logger receives diagnostics. Default: no-op.
	Logger Logger

	// Now overrides the clock used by the retry gate (tests).
	Now func() time.Time
}

// Remote supervises one transport connection: it connects and reconnects,
// keeps the subscription registry, publishes the online status and
// dispatches inbound messages.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - No lock is held while calling the transport or a handler.
type Remote struct {
	transport Transport
	id        Identity
	creds     Credentials
	registry  *Registry
	signal    *Signal
	logger    Logger
	now       func() time.Time
	onChange  func(connected bool)
	onSession func(ConnectionChange)

	retryInterval  time.Duration
	tickInterval   time.Duration
	subscribeQoS   byte
	maxMessageSize int
	receiveVerbose bool
	clearOnConnect bool

	mu          sync.Mutex
	state       ConnectionState
	attempted   bool
	lastAttempt time.Time
	sessionID   string
	started     bool
	closed      bool
}

// New creates a Remote over transport and binds itself as the transport's
// event sink. It does not connect; call Start or Tick.
func New(transport Transport, opts Options) (*Remote, error) {
	if transport == nil {
		return nil, fmt.Errorf("remote: transport cannot be nil")
	}
	id, err := ParseIdentity(opts.ClientID)
	if err != nil {
		return nil, err
	}
	if opts.SubscribeQoS > maxQoS {
		return nil, ErrInvalidQoS
	}

	// Apply defaults for zero values
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultRetryInterval
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = DefaultMaxMessageSize
	}
	if opts.Signal == nil {
		opts.Signal = NewSignal()
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	r := &Remote{
		transport:      transport,
		id:             id,
		creds:          opts.Credentials,
		registry:       NewRegistry(),
		signal:         opts.Signal,
		logger:         opts.Logger,
		now:            opts.Now,
		onChange:       opts.OnConnectionChange,
		onSession:      opts.OnSessionChange,
		retryInterval:  opts.RetryInterval,
		tickInterval:   opts.TickInterval,
		subscribeQoS:   opts.SubscribeQoS,
		maxMessageSize: opts.MaxMessageSize,
		receiveVerbose: opts.ReceiveVerbose,
		clearOnConnect: opts.ClearSubscriptionsOnReconnect,
	}
	transport.Bind(r)

	return r, nil
}

// Start launches the connection change notifier (if OnConnectionChange or
// OnSessionChange is set) and makes the first connect attempt. The notifier lives until ctx
// is cancelled. A second call is ignored.
func (r *Remote) Start(ctx context.Context) {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		r.logger.Warn("already started, cannot start again")
		return
	}
	r.started = true
	r.mu.Unlock()

	if r.onChange != nil || r.onSession != nil {
		_, seq := r.signal.Load()
		go r.signal.watch(ctx, seq, r.notify)
	}

	r.Tick()
}

// Run calls Tick every TickInterval until ctx is cancelled.
func (r *Remote) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Tick()
		}
	}
}

// Tick makes a connect attempt when disconnected and the retry interval has
// elapsed, then pumps poll-driven transports. Connect failures are logged
// and retried forever.
func (r *Remote) Tick() {
	r.maybeConnect()

	if p, ok := r.transport.(Poller); ok && r.State() != Disconnected {
		p.Poll()
	}
}

// maybeConnect performs at most one connect attempt.
func (r *Remote) maybeConnect() {
	now := r.now()

	r.mu.Lock()
	if r.closed || r.state != Disconnected ||
		(r.attempted && now.Sub(r.lastAttempt) < r.retryInterval) {
		r.mu.Unlock()
		return
	}
	r.state = Connecting
	r.attempted = true
	r.lastAttempt = now
	r.mu.Unlock()

	if r.clearOnConnect {
		r.registry.Clear()
	}

	r.logger.Info("client not connected, trying to connect", "client_id", r.id)
	if err := r.transport.Connect(r.id, r.creds, lastWillFor(r.id)); err != nil {
		r.mu.Lock()
		if r.state == Connecting {
			r.state = Disconnected
		}
		r.mu.Unlock()

		r.logger.Warn("connect attempt failed",
			"client_id", r.id,
			"error", fmt.Errorf("%w: %w", ErrConnectFailed, err),
			"retry_in", r.retryInterval,
		)
	}
}

// notify runs the user callbacks for one change.
func (r *Remote) notify(change ConnectionChange) {
	if r.onChange != nil {
		r.onChange(change.Connected)
	}
	if r.onSession != nil {
		r.onSession(change)
	}
}

// HandleEvent processes one transport event. Transports call it from their
// own goroutine; it must return quickly.
func (r *Remote) HandleEvent(ev Event) {
	switch ev.Kind {
	case EventConnected:
		r.handleConnected()
	case EventDisconnected:
		r.handleDisconnected(ev.Err)
	case EventError:
		r.logger.Error("transport error", "error", ev.Err)
	case EventMessage:
		r.Dispatch(ev.Topic, ev.Payload)
	default:
		r.logger.Warn("unknown transport event", "kind", ev.Kind)
	}
}

// handleConnected publishes the online status, replays every registered
// subscription and signals the new state. Only an attempt in flight can
// complete: a Connected that arrives in any other state belongs to an
// attempt that already failed or was closed, and is dropped.
func (r *Remote) handleConnected() {
	session := uuid.NewString()

	r.mu.Lock()
	if r.state != Connecting {
		state := r.state
		r.mu.Unlock()
		r.logger.Warn("stale connected event dropped", "client_id", r.id, "state", state.String())
		return
	}
	r.state = Connected
	r.sessionID = session
	r.mu.Unlock()

	r.logger.Info("connected", "client_id", r.id, "session_id", session)

	if err := r.PublishVerbose(r.id.StatusTopic(), []byte(StatusOnline), 0, true); err != nil {
		r.logger.Warn("online status publish failed", "error", err)
	}

	for _, topic := range r.registry.Topics() {
		if err := r.transport.Subscribe(topic, r.subscribeQoS); err != nil {
			r.logger.Warn("resubscribe failed", "topic", topic, "error", err)
		}
	}

	r.signal.update(ConnectionChange{Connected: true, SessionID: session})
}

// handleDisconnected marks the connection lost. The registry is kept for
// replay on the next connect.
func (r *Remote) handleDisconnected(err error) {
	r.mu.Lock()
	prev := r.state
	session := r.sessionID
	r.state = Disconnected
	r.sessionID = ""
	r.mu.Unlock()

	if prev != Connected {
		r.logger.Debug("connect attempt ended without a connection", "error", err)
		return
	}

	r.logger.Warn("disconnected", "client_id", r.id, "session_id", session, "error", err)
	r.signal.update(ConnectionChange{Connected: false, SessionID: session})
}

// Close publishes a graceful offline status (when connected), disconnects
// the transport and stops further connect attempts.
func (r *Remote) Close() error {
	if r.Connected() {
		if err := r.Publish(r.id.StatusTopic(), []byte(StatusOffline), 0, true); err != nil {
			r.logger.Warn("offline status publish failed", "error", err)
		}
	}

	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.transport.Disconnect()

	r.mu.Lock()
	prev := r.state
	session := r.sessionID
	r.state = Disconnected
	r.sessionID = ""
	r.mu.Unlock()

	if prev == Connected {
		r.signal.update(ConnectionChange{Connected: false, SessionID: session})
	}
	return nil
}

// HealthCheck reports whether the connection is up.
func (r *Remote) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("remote health check: %w", ctx.Err())
	default:
	}

	if !r.Connected() {
		return ErrNotConnected
	}
	return nil
}

// State returns the current connection state.
func (r *Remote) State() ConnectionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Connected reports whether the transport last reported a live connection.
func (r *Remote) Connected() bool {
	return r.State() == Connected
}

// ClientID returns the client identity.
func (r *Remote) ClientID() Identity {
	return r.id
}

// StatusTopic returns {client_id}/status.
func (r *Remote) StatusTopic() string {
	return r.id.StatusTopic()
}

// SessionID identifies the current connection session; empty when offline.
func (r *Remote) SessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessionID
}

// Signal returns the connection state cell.
func (r *Remote) Signal() *Signal {
	return r.signal
}
