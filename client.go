// Package tcpclient provides an event-driven TCP client.
// It manages one bidirectional byte stream to a remote host, decodes inbound
// bytes with a pluggable Reader and drains outbound data through queued
// Writers under backpressure.
package tcpclient

import (
	"bytes"
	"context"
	"sync"

	"github.com/pkg/errors"
)

// State is the connection state of a Client.
type State int32

const (
	// StateDisconnected means no connection is open or opening.
	StateDisconnected State = iota
	// StateConnecting means the transport is open and waiting for both
	// directions to become ready.
	StateConnecting
	// StateConnected means both directions are open and writes may drain.
	StateConnected
	// StateDisconnecting means a requested disconnect is tearing down.
	StateDisconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

// Client is a single logical connection to a target.
//
// A Client may be connected and disconnected repeatedly. Each Connect creates
// a fresh transport and an empty write queue; each disconnect tears both down.
// All socket-facing work runs on one goroutine per connection; application
// callbacks run on the configured Dispatcher.
type Client struct {
	target Target
	opts   options
	logger Logger

	ownDispatcher *SerialDispatcher

	mu      sync.Mutex
	state   State
	session *session
	closed  bool

	// lastDone is closed once the most recent session has notified
	// OnDisconnected.
	lastDone chan struct{}
}

// NewClient creates a client for target, given as "host:port" or a URL such
// as "tls://host:port". It applies the provided options and validates them.
// Returns an error if the target cannot be parsed or no reader is configured.
func NewClient(target string, opt ...Option) (*Client, error) {
	t, err := ParseTarget(target)
	if err != nil {
		return nil, err
	}

	var opts options
	for _, o := range opt {
		o(&opts)
	}

	if err = checkOptions(&opts); err != nil {
		return nil, err
	}

	c := &Client{
		target: t,
		opts:   opts,
		logger: withTarget(opts.logger, t),
	}

	if c.opts.dispatcher == nil {
		c.ownDispatcher = NewSerialDispatcher()
		c.opts.dispatcher = c.ownDispatcher
	}

	if ds, ok := c.opts.reader.(DispatcherSetter); ok {
		ds.SetDispatcher(c.opts.dispatcher)
	}

	c.opts.metrics.setState(StateDisconnected)
	return c, nil
}

// Target returns the remote endpoint.
func (c *Client) Target() Target {
	return c.target
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ConnectionID returns the identifier of the current connection attempt, as
// logged under the "conn" key, or "" when disconnected.
func (c *Client) ConnectionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return ""
	}
	return c.session.id
}

// Connect starts a connection attempt. It returns once the transport has been
// created and opened; OnConnected fires later, when both halves are ready.
//
// Connect returns ErrAlreadyConnected without side effects while a connection
// is open or opening. Any setup failure leaves the client disconnected and is
// returned without firing OnDisconnected.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.state != StateDisconnected {
		return ErrAlreadyConnected
	}

	c.logger.Debug("connecting")

	t, err := c.opts.dialer(c.target, c.opts.transportConfig(c.target))
	if err != nil {
		c.opts.metrics.connectAttempt(err)
		return errors.Wrap(err, "create transport")
	}

	c.opts.reader.Reset()

	if err = t.Open(ctx); err != nil {
		_ = t.Close()
		c.opts.metrics.connectAttempt(err)
		return errors.Wrap(err, "open transport")
	}

	s := newSession(c, t)
	c.session = s
	c.lastDone = s.done
	c.setStateLocked(StateConnecting)
	c.opts.metrics.connectAttempt(nil)

	s.logger.Debug("transport opened")
	go s.run()
	return nil
}

// Disconnect closes the connection and waits for teardown. Queued writers
// are discarded and OnDisconnected fires once with a nil error.
// Calling Disconnect on a disconnected client does nothing.
// It must not be called from the socket loop, e.g. from a Writer or Supplier.
func (c *Client) Disconnect() {
	c.mu.Lock()
	s := c.session
	if s == nil {
		c.mu.Unlock()
		return
	}
	c.setStateLocked(StateDisconnecting)
	c.mu.Unlock()

	s.stop()
	<-s.done
}

// Close disconnects and releases the client's own dispatcher once the last
// OnDisconnected has been queued. The client cannot be connected again.
// Safe to call multiple times.
func (c *Client) Close() error {
	c.mu.Lock()
	already := c.closed
	c.closed = true
	c.mu.Unlock()

	c.Disconnect()

	c.mu.Lock()
	done := c.lastDone
	c.mu.Unlock()
	if done != nil {
		<-done
	}

	if !already && c.ownDispatcher != nil {
		c.ownDispatcher.Close()
	}
	return nil
}

// Enqueue appends w to the write queue. Writers drain strictly in FIFO order.
// Returns ErrNotConnected unless the client is connecting or connected.
func (c *Client) Enqueue(w Writer) error {
	c.mu.Lock()
	s := c.session
	c.mu.Unlock()

	if s == nil {
		return ErrNotConnected
	}
	return s.enqueue(w)
}

// Write queues a copy of p.
func (c *Client) Write(p []byte) error {
	return c.Enqueue(NewBufferWriter(bytes.Clone(p)))
}

// WriteDelimited queues p followed by d.
func (c *Client) WriteDelimited(p []byte, d Delimiter) error {
	return c.Enqueue(NewLineWriter(p, d))
}

// WriteLine queues p followed by the configured delimiter.
func (c *Client) WriteLine(p []byte) error {
	return c.WriteDelimited(p, c.opts.delimiter)
}

// WriteText encodes s with the configured encoding and queues it followed by d.
func (c *Client) WriteText(s string, d Delimiter) error {
	b, err := encodeText(c.opts.encoding, s)
	if err != nil {
		return err
	}
	return c.Enqueue(NewLineWriter(b, d))
}

func (c *Client) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.logger.Debug("state changed", "from", c.state, "to", s)
	c.state = s
	c.opts.metrics.setState(s)
}

// markConnected moves s from connecting to connected. It reports false when
// s is no longer current or a disconnect is already under way.
func (c *Client) markConnected(s *session) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != s || c.state != StateConnecting {
		return false
	}
	c.setStateLocked(StateConnected)
	return true
}

// finish records the end of s after its teardown and notifies the application.
func (c *Client) finish(s *session, cause error) {
	c.mu.Lock()
	if c.session == s {
		c.session = nil
		c.setStateLocked(StateDisconnected)
	}
	c.mu.Unlock()

	var notify error
	switch {
	case errors.Is(cause, errDisconnectRequested):
		s.logger.Info("connection closed")
		c.opts.metrics.disconnected(reasonRequested)
	case errors.Is(cause, errEndOfStream):
		s.logger.Info("connection closed by peer")
		c.opts.metrics.disconnected(reasonRemoteClose)
	default:
		s.logger.Info("connection closed with error", "error", cause)
		c.opts.metrics.disconnected(reasonError)
		notify = cause
	}

	onDisconnected := c.opts.onDisconnected
	c.opts.dispatcher.Dispatch(func() { onDisconnected(notify) })
}
