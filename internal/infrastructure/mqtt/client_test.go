package mqtt

import (
	"errors"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/mqttremote/internal/infrastructure/config"
	"github.com/nerrad567/mqttremote/internal/remote"
)

// =============================================================================
// Test Doubles
// =============================================================================

type fakeToken struct {
	done chan struct{}
	err  error
}

func completedToken(err error) *fakeToken {
	done := make(chan struct{})
	close(done)
	return &fakeToken{done: done, err: err}
}

func (f *fakeToken) Wait() bool { <-f.done; return true }

func (f *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-f.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (f *fakeToken) Done() <-chan struct{} { return f.done }
func (f *fakeToken) Error() error          { return f.err }

type fakePublish struct {
	topic   string
	qos     byte
	retain  bool
	payload string
}

// fakeClient stands in for a paho client. Connect calls the OnConnect
// handler synchronously unless connectErr or holdOnConnect is set.
type fakeClient struct {
	opts *pahomqtt.ClientOptions

	// holdOnConnect leaves calling OnConnect to the test.
	holdOnConnect bool

	mu           sync.Mutex
	connectErr   error
	publishErr   error
	subscribeErr error
	open         bool
	publishes    []fakePublish
	subscribes   []string
	unsubscribes []string
	disconnects  int
}

func (c *fakeClient) IsConnected() bool { return c.IsConnectionOpen() }

func (c *fakeClient) IsConnectionOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *fakeClient) Connect() pahomqtt.Token {
	c.mu.Lock()
	err := c.connectErr
	c.open = err == nil
	c.mu.Unlock()

	if err == nil && !c.holdOnConnect && c.opts.OnConnect != nil {
		c.opts.OnConnect(c)
	}
	return completedToken(err)
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	c.open = false
	c.disconnects++
	c.mu.Unlock()
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publishes = append(c.publishes, fakePublish{topic, qos, retained, string(payload.([]byte))})
	return completedToken(c.publishErr)
}

func (c *fakeClient) Subscribe(topic string, _ byte, _ pahomqtt.MessageHandler) pahomqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribes = append(c.subscribes, topic)
	return completedToken(c.subscribeErr)
}

func (c *fakeClient) SubscribeMultiple(map[string]byte, pahomqtt.MessageHandler) pahomqtt.Token {
	return completedToken(nil)
}

func (c *fakeClient) Unsubscribe(topics ...string) pahomqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unsubscribes = append(c.unsubscribes, topics...)
	return completedToken(nil)
}

func (c *fakeClient) AddRoute(string, pahomqtt.MessageHandler) {}

func (c *fakeClient) OptionsReader() pahomqtt.ClientOptionsReader {
	return pahomqtt.ClientOptionsReader{}
}

// loseConnection simulates the broker dropping the link.
func (c *fakeClient) loseConnection(err error) {
	c.mu.Lock()
	c.open = false
	c.mu.Unlock()
	c.opts.OnConnectionLost(c, err)
}

// deliver simulates an inbound PUBLISH.
func (c *fakeClient) deliver(topic, payload string) {
	c.opts.DefaultPublishHandler(c, &fakeMessage{topic: topic, payload: []byte(payload)})
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 0 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 0 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

// recordingSink collects events delivered by the transport.
type recordingSink struct {
	events chan remote.Event
}

func newRecordingSink() *recordingSink {
	return &recordingSink{events: make(chan remote.Event, 16)}
}

func (s *recordingSink) HandleEvent(ev remote.Event) { s.events <- ev }

func (s *recordingSink) next(t *testing.T) remote.Event {
	t.Helper()
	select {
	case ev := <-s.events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
		return remote.Event{}
	}
}

func (s *recordingSink) none(t *testing.T) {
	t.Helper()
	select {
	case ev := <-s.events:
		t.Fatalf("unexpected event %v", ev.Kind)
	case <-time.After(50 * time.Millisecond):
	}
}

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker:         config.MQTTBrokerConfig{Host: "127.0.0.1", Port: 1883, ProtocolVersion: config.ProtocolV311},
		KeepAlive:      10,
		ConnectTimeout: 1,
	}
}

// newFakeTransport returns a transport whose clients are fakes. Each
// created client is sent on the returned channel.
func newFakeTransport(t *testing.T, prepare func(*fakeClient)) (*Transport, *recordingSink, chan *fakeClient) {
	t.Helper()

	tr, err := New(testConfig())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	clients := make(chan *fakeClient, 8)
	tr.newClient = func(opts *pahomqtt.ClientOptions) pahomqtt.Client {
		c := &fakeClient{opts: opts}
		if prepare != nil {
			prepare(c)
		}
		clients <- c
		return c
	}

	sink := newRecordingSink()
	tr.Bind(sink)
	return tr, sink, clients
}

var testWill = remote.LastWill{Topic: "device1/status", Payload: "offline", QoS: 0, Retain: true}

// =============================================================================
// Connection Tests
// =============================================================================

func TestConnect_EmitsConnected(t *testing.T) {
	tr, sink, clients := newFakeTransport(t, nil)

	if err := tr.Connect("device1", remote.Credentials{}, testWill); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	<-clients

	if ev := sink.next(t); ev.Kind != remote.EventConnected {
		t.Errorf("event = %v, want connected", ev.Kind)
	}
}

func TestConnect_ClientCarriesWillAndIdentity(t *testing.T) {
	tr, _, clients := newFakeTransport(t, nil)

	tr.Connect("device1", remote.Credentials{Username: "user", Password: "pass"}, testWill)
	c := <-clients

	if c.opts.ClientID != "device1" {
		t.Errorf("ClientID = %q, want %q", c.opts.ClientID, "device1")
	}
	if !c.opts.WillEnabled || c.opts.WillTopic != "device1/status" || string(c.opts.WillPayload) != "offline" {
		t.Errorf("will = %v %q %q, want device1/status offline", c.opts.WillEnabled, c.opts.WillTopic, c.opts.WillPayload)
	}
	if !c.opts.WillRetained {
		t.Error("WillRetained = false, want true")
	}
	if c.opts.Username != "user" || c.opts.Password != "pass" {
		t.Errorf("credentials = %q/%q, want user/pass", c.opts.Username, c.opts.Password)
	}
}

func TestConnect_FailureEmitsDisconnected(t *testing.T) {
	refused := errors.New("connection refused")
	tr, sink, clients := newFakeTransport(t, func(c *fakeClient) { c.connectErr = refused })

	if err := tr.Connect("device1", remote.Credentials{}, testWill); err != nil {
		t.Fatalf("Connect() error = %v, want nil (outcome is an event)", err)
	}
	c := <-clients

	ev := sink.next(t)
	if ev.Kind != remote.EventDisconnected {
		t.Fatalf("event = %v, want disconnected", ev.Kind)
	}
	if !errors.Is(ev.Err, ErrConnectionFailed) || !errors.Is(ev.Err, refused) {
		t.Errorf("event error = %v, want ErrConnectionFailed wrapping the cause", ev.Err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disconnects != 1 {
		t.Errorf("failed client disconnects = %d, want 1", c.disconnects)
	}
}

func TestConnectionLost_EmitsDisconnectedOnce(t *testing.T) {
	tr, sink, clients := newFakeTransport(t, nil)

	tr.Connect("device1", remote.Credentials{}, testWill)
	c := <-clients
	sink.next(t)

	c.loseConnection(errors.New("EOF"))
	if ev := sink.next(t); ev.Kind != remote.EventDisconnected {
		t.Errorf("event = %v, want disconnected", ev.Kind)
	}

	// A second report from the same, now retired, client is dropped.
	c.loseConnection(errors.New("EOF"))
	sink.none(t)
}

func TestConnect_StaleClientEventsDropped(t *testing.T) {
	tr, sink, clients := newFakeTransport(t, nil)

	tr.Connect("device1", remote.Credentials{}, testWill)
	first := <-clients
	sink.next(t)

	tr.Connect("device1", remote.Credentials{}, testWill)
	<-clients
	sink.next(t)

	first.loseConnection(errors.New("late"))
	first.deliver("cmd/device1", "stale")
	sink.none(t)

	first.mu.Lock()
	defer first.mu.Unlock()
	if first.disconnects != 1 {
		t.Errorf("replaced client disconnects = %d, want 1", first.disconnects)
	}
}

// gatedSink holds Connected events until released, then forwards everything.
type gatedSink struct {
	next    remote.EventSink
	entered chan struct{}
	release chan struct{}
}

func (g *gatedSink) HandleEvent(ev remote.Event) {
	if ev.Kind == remote.EventConnected {
		close(g.entered)
		<-g.release
	}
	g.next.HandleEvent(ev)
}

func TestConnectionLost_WaitsForInFlightConnected(t *testing.T) {
	tr, _, clients := newFakeTransport(t, func(c *fakeClient) { c.holdOnConnect = true })
	r, err := remote.New(tr, remote.Options{ClientID: "device1", RetryInterval: time.Nanosecond})
	if err != nil {
		t.Fatalf("remote.New() error = %v", err)
	}
	gate := &gatedSink{next: r, entered: make(chan struct{}), release: make(chan struct{})}
	tr.Bind(gate)

	r.Tick()
	c := <-clients

	// paho runs OnConnect and OnConnectionLost on their own goroutines.
	go c.opts.OnConnect(c)
	<-gate.entered

	lost := make(chan struct{})
	go func() {
		c.loseConnection(errors.New("EOF"))
		close(lost)
	}()

	select {
	case <-lost:
		t.Fatal("connection lost delivered while connected event was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(gate.release)
	select {
	case <-lost:
	case <-time.After(2 * time.Second):
		t.Fatal("connection lost never delivered")
	}

	if r.State() != remote.Disconnected {
		t.Fatalf("State() = %v, want %v", r.State(), remote.Disconnected)
	}

	time.Sleep(time.Millisecond)
	r.Tick()
	select {
	case <-clients:
	case <-time.After(2 * time.Second):
		t.Fatal("no reconnect attempt after the connection was lost")
	}
}

func TestDisconnect_SuppressesEvents(t *testing.T) {
	tr, sink, clients := newFakeTransport(t, nil)

	tr.Connect("device1", remote.Credentials{}, testWill)
	c := <-clients
	sink.next(t)

	tr.Disconnect()
	c.loseConnection(errors.New("closed"))
	sink.none(t)

	if err := tr.Publish("t", []byte("x"), 0, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() after Disconnect error = %v, want ErrNotConnected", err)
	}
}

func TestDisconnect_WithoutClient(t *testing.T) {
	tr, _, _ := newFakeTransport(t, nil)
	tr.Disconnect()
}

// =============================================================================
// Message Tests
// =============================================================================

func TestDefaultHandler_EmitsMessage(t *testing.T) {
	tr, sink, clients := newFakeTransport(t, nil)

	tr.Connect("device1", remote.Credentials{}, testWill)
	c := <-clients
	sink.next(t)

	c.deliver("cmd/device1", "on")

	ev := sink.next(t)
	if ev.Kind != remote.EventMessage || ev.Topic != "cmd/device1" || string(ev.Payload) != "on" {
		t.Errorf("event = %v %q %q, want message cmd/device1 on", ev.Kind, ev.Topic, ev.Payload)
	}
}

// =============================================================================
// Publish / Subscribe Tests
// =============================================================================

func TestPublish_NotConnected(t *testing.T) {
	tr, _, _ := newFakeTransport(t, nil)

	if err := tr.Publish("t", []byte("x"), 0, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
	if err := tr.Subscribe("t", 0); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe() error = %v, want ErrNotConnected", err)
	}
	if err := tr.Unsubscribe("t"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Unsubscribe() error = %v, want ErrNotConnected", err)
	}
}

func TestPublishSubscribe_PassThrough(t *testing.T) {
	tr, sink, clients := newFakeTransport(t, nil)

	tr.Connect("device1", remote.Credentials{}, testWill)
	c := <-clients
	sink.next(t)

	if err := tr.Publish("device1/status", []byte("online"), 1, true); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if err := tr.Subscribe("cmd/device1", 0); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if err := tr.Unsubscribe("cmd/device1"); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	want := fakePublish{topic: "device1/status", qos: 1, retain: true, payload: "online"}
	if len(c.publishes) != 1 || c.publishes[0] != want {
		t.Errorf("publishes = %+v, want [%+v]", c.publishes, want)
	}
	if len(c.subscribes) != 1 || c.subscribes[0] != "cmd/device1" {
		t.Errorf("subscribes = %v, want [cmd/device1]", c.subscribes)
	}
	if len(c.unsubscribes) != 1 || c.unsubscribes[0] != "cmd/device1" {
		t.Errorf("unsubscribes = %v, want [cmd/device1]", c.unsubscribes)
	}
}

func TestPublishSubscribe_ErrorsWrapped(t *testing.T) {
	cause := errors.New("write: broken pipe")
	tr, sink, clients := newFakeTransport(t, func(c *fakeClient) {
		c.publishErr = cause
		c.subscribeErr = cause
	})

	tr.Connect("device1", remote.Credentials{}, testWill)
	<-clients
	sink.next(t)

	if err := tr.Publish("t", []byte("x"), 0, false); !errors.Is(err, ErrPublishFailed) || !errors.Is(err, cause) {
		t.Errorf("Publish() error = %v, want ErrPublishFailed wrapping cause", err)
	}
	if err := tr.Subscribe("t", 0); !errors.Is(err, ErrSubscribeFailed) || !errors.Is(err, cause) {
		t.Errorf("Subscribe() error = %v, want ErrSubscribeFailed wrapping cause", err)
	}
}

// =============================================================================
// Remote Integration (fake broker)
// =============================================================================

func TestTransport_DrivesRemote(t *testing.T) {
	tr, _, clients := newFakeTransport(t, nil)
	r, err := remote.New(tr, remote.Options{ClientID: "device1"})
	if err != nil {
		t.Fatalf("remote.New() error = %v", err)
	}

	got := make(chan string, 1)
	r.Subscribe("cmd/device1", func(_ string, payload []byte) { got <- string(payload) })

	r.Tick()
	c := <-clients

	if !r.Connected() {
		t.Fatal("Connected() = false after OnConnect")
	}

	c.mu.Lock()
	subs := append([]string(nil), c.subscribes...)
	pubs := append([]fakePublish(nil), c.publishes...)
	c.mu.Unlock()

	if len(subs) != 1 || subs[0] != "cmd/device1" {
		t.Errorf("replayed subscribes = %v, want [cmd/device1]", subs)
	}
	if len(pubs) != 1 || pubs[0].topic != "device1/status" || pubs[0].payload != "online" || !pubs[0].retain {
		t.Errorf("publishes = %+v, want retained online status", pubs)
	}

	c.deliver("cmd/device1", "on")
	select {
	case payload := <-got:
		if payload != "on" {
			t.Errorf("handler payload = %q, want on", payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler not invoked")
	}

	c.loseConnection(errors.New("EOF"))
	if r.Connected() {
		t.Error("Connected() = true after connection lost")
	}
}

// =============================================================================
// Logger Tests
// =============================================================================

type mockLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *mockLogger) Debug(string, ...any) {}

func (l *mockLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

func TestSetLogger_FailedAttemptLogged(t *testing.T) {
	tr, sink, clients := newFakeTransport(t, func(c *fakeClient) { c.connectErr = errors.New("refused") })
	logger := &mockLogger{}
	tr.SetLogger(logger)

	tr.Connect("device1", remote.Credentials{}, testWill)
	<-clients
	sink.next(t)

	logger.mu.Lock()
	defer logger.mu.Unlock()
	if len(logger.warns) != 1 {
		t.Errorf("warnings = %v, want one failed-attempt warning", logger.warns)
	}

	tr.SetLogger(nil)
	if tr.getLogger() != nil {
		t.Error("getLogger() should be nil after SetLogger(nil)")
	}
}
