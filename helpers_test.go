package tcpclient

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
)

// fakeTransport is a scripted Transport. Tests push events and inbound bytes
// and grant outbound capacity explicitly.
type fakeTransport struct {
	events chan Event

	mu       sync.Mutex
	openErr  error
	opened   bool
	closed   bool
	inbound  []byte
	written  []byte
	capacity int
	writeErr error
	writes   int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{events: make(chan Event, 64)}
}

func (f *fakeTransport) Open(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return f.openErr
	}
	f.opened = true
	return nil
}

func (f *fakeTransport) Events() <-chan Event {
	return f.events
}

func (f *fakeTransport) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := copy(p, f.inbound)
	f.inbound = f.inbound[n:]
	return n, nil
}

func (f *fakeTransport) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	n := len(p)
	if n > f.capacity {
		n = f.capacity
	}
	f.capacity -= n
	f.written = append(f.written, p[:n]...)
	return n, nil
}

func (f *fakeTransport) HasBytesAvailable() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inbound) > 0
}

func (f *fakeTransport) HasSpaceAvailable() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.capacity > 0
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// open reports both halves as open.
func (f *fakeTransport) open() {
	f.events <- Event{Kind: EventOpenCompleted, Half: HalfInbound}
	f.events <- Event{Kind: EventOpenCompleted, Half: HalfOutbound}
}

// feed makes p readable.
func (f *fakeTransport) feed(p string) {
	f.mu.Lock()
	f.inbound = append(f.inbound, p...)
	f.mu.Unlock()
	f.events <- Event{Kind: EventHasBytesAvailable, Half: HalfInbound}
}

// grant adds n bytes of outbound capacity.
func (f *fakeTransport) grant(n int) {
	f.mu.Lock()
	f.capacity += n
	f.mu.Unlock()
	f.events <- Event{Kind: EventHasSpaceAvailable, Half: HalfOutbound}
}

// failWrites makes the next write fail with err.
func (f *fakeTransport) failWrites(err error) {
	f.mu.Lock()
	f.writeErr = err
	f.capacity = 1
	f.mu.Unlock()
	f.events <- Event{Kind: EventHasSpaceAvailable, Half: HalfOutbound}
}

func (f *fakeTransport) Written() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return string(f.written)
}

func (f *fakeTransport) IsClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// fakeDialer hands out the given transports in order.
type fakeDialer struct {
	mu         sync.Mutex
	transports []*fakeTransport
	err        error
	calls      int
	lastConfig TransportConfig
}

func (d *fakeDialer) dial(_ Target, cfg TransportConfig) (Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	d.lastConfig = cfg
	if d.err != nil {
		return nil, d.err
	}
	if len(d.transports) == 0 {
		return nil, errors.New("no transport left")
	}
	t := d.transports[0]
	d.transports = d.transports[1:]
	return t, nil
}

func (d *fakeDialer) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// recorder collects client callbacks.
type recorder struct {
	mu           sync.Mutex
	connected    int
	disconnected []error
	lines        []string
}

func (r *recorder) onConnected() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connected++
}

func (r *recorder) onDisconnected(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disconnected = append(r.disconnected, err)
}

func (r *recorder) onLine(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
}

func (r *recorder) Connected() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connected
}

func (r *recorder) Disconnects() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.disconnected...)
}

func (r *recorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

// createTestListener starts a loopback listener and returns it with a channel
// delivering the first accepted connection.
func createTestListener(t *testing.T) (net.Listener, <-chan net.Conn) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		accepted <- conn
	}()
	return listener, accepted
}

func acceptConn(t *testing.T, accepted <-chan net.Conn) net.Conn {
	t.Helper()

	select {
	case conn := <-accepted:
		t.Cleanup(func() { conn.Close() })
		return conn
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for client connection")
		return nil
	}
}
