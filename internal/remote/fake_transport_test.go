package remote

import (
	"sync"
	"testing"
	"time"
)

// publishCall records one Transport.Publish.
type publishCall struct {
	topic   string
	payload string
	qos     byte
	retain  bool
}

// fakeTransport is an event-driven Transport double. It records every call
// and, when connectEmits is set, reports Connected from inside Connect the
// way a synchronous client would.
type fakeTransport struct {
	mu   sync.Mutex
	sink EventSink

	connectEmits bool
	connectErr   error
	publishErr   error
	subscribeErr error
	unsubErr     error

	connects     []LastWill
	connectIDs   []Identity
	publishes    []publishCall
	subscribes   []string
	unsubscribes []string
	disconnects  int
}

func (f *fakeTransport) Bind(sink EventSink) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sink = sink
}

func (f *fakeTransport) Connect(id Identity, _ Credentials, will LastWill) error {
	f.mu.Lock()
	f.connects = append(f.connects, will)
	f.connectIDs = append(f.connectIDs, id)
	err := f.connectErr
	emit := f.connectEmits
	sink := f.sink
	f.mu.Unlock()

	if err != nil {
		return err
	}
	if emit {
		sink.HandleEvent(ConnectedEvent())
	}
	return nil
}

func (f *fakeTransport) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
}

func (f *fakeTransport) Publish(topic string, payload []byte, qos byte, retain bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.publishes = append(f.publishes, publishCall{topic: topic, payload: string(payload), qos: qos, retain: retain})
	return f.publishErr
}

func (f *fakeTransport) Subscribe(topic string, _ byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribes = append(f.subscribes, topic)
	return f.subscribeErr
}

func (f *fakeTransport) Unsubscribe(topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribes = append(f.unsubscribes, topic)
	return f.unsubErr
}

// emit delivers an event to the bound sink.
func (f *fakeTransport) emit(ev Event) {
	f.mu.Lock()
	sink := f.sink
	f.mu.Unlock()
	sink.HandleEvent(ev)
}

func (f *fakeTransport) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.connects)
}

func (f *fakeTransport) publishCalls() []publishCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]publishCall(nil), f.publishes...)
}

func (f *fakeTransport) subscribeCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.subscribes...)
}

func (f *fakeTransport) unsubscribeCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.unsubscribes...)
}

func (f *fakeTransport) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.publishes = nil
	f.subscribes = nil
	f.unsubscribes = nil
}

// pollTransport is a poll-driven Transport double: events are queued and
// only delivered when the core calls Poll.
type pollTransport struct {
	fakeTransport
	queue []Event
	polls int
}

func (p *pollTransport) Connect(id Identity, creds Credentials, will LastWill) error {
	if err := p.fakeTransport.Connect(id, creds, will); err != nil {
		return err
	}
	p.enqueue(ConnectedEvent())
	return nil
}

func (p *pollTransport) enqueue(ev Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue = append(p.queue, ev)
}

func (p *pollTransport) Poll() {
	p.mu.Lock()
	events := p.queue
	p.queue = nil
	p.polls++
	sink := p.sink
	p.mu.Unlock()

	for _, ev := range events {
		sink.HandleEvent(ev)
	}
}

// fakeClock is a manually advanced clock for the retry gate.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// newTestRemote builds a Remote for "device1" over tr with a fake clock.
func newTestRemote(t *testing.T, tr Transport, opts Options) (*Remote, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	if opts.ClientID == "" {
		opts.ClientID = "device1"
	}
	opts.Now = clock.Now

	r, err := New(tr, opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return r, clock
}

// connectedRemote returns a Remote that has completed one connect.
func connectedRemote(t *testing.T, opts Options) (*Remote, *fakeTransport, *fakeClock) {
	t.Helper()
	ft := &fakeTransport{connectEmits: true}
	r, clock := newTestRemote(t, ft, opts)
	r.Tick()
	if !r.Connected() {
		t.Fatalf("Connected() = false after Tick, state %v", r.State())
	}
	return r, ft, clock
}
