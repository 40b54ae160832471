package tcpclient

import (
	"context"
	"io"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	errDisconnectRequested = errors.New("disconnect requested")
	errTransportFailed     = errors.New("transport failed")
)

// session is one connection attempt. Its run goroutine is the only place
// that touches the transport, the write queue and the reader.
type session struct {
	id        string
	client    *Client
	transport Transport
	reader    Reader
	logger    Logger
	metrics   *Metrics

	writes chan Writer
	queue  []Writer
	sink   countingWriter
	buf    []byte

	inboundOpen  bool
	outboundOpen bool
	connected    bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func newSession(c *Client, t Transport) *session {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()
	return &session{
		id:        id,
		client:    c,
		transport: t,
		reader:    c.opts.reader,
		logger:    withAttrs(c.logger, "conn", id),
		metrics:   c.opts.metrics,
		writes:    make(chan Writer, c.opts.queueSize),
		sink:      countingWriter{w: t, metrics: c.opts.metrics},
		buf:       make([]byte, c.opts.readChunk),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

func (s *session) run() {
	defer close(s.done)

	err := s.loop()
	s.teardown()
	s.client.finish(s, err)
}

// stop asks the loop to exit.
func (s *session) stop() {
	s.cancel()
}

func (s *session) enqueue(w Writer) error {
	select {
	case <-s.ctx.Done():
		return ErrNotConnected
	default:
	}

	select {
	case s.writes <- w:
		return nil
	case <-s.ctx.Done():
		return ErrNotConnected
	}
}

// loop reacts to transport events and queued writers until the connection
// ends. The returned error is the cause of the disconnect.
func (s *session) loop() error {
	events := s.transport.Events()
	for {
		if s.ctx.Err() != nil {
			return errDisconnectRequested
		}

		select {
		case <-s.ctx.Done():
			return errDisconnectRequested

		case w := <-s.writes:
			s.queue = append(s.queue, w)
			// Drain right away only when capacity is already known to be free;
			// otherwise the next HasSpaceAvailable event picks it up.
			if s.connected && s.transport.HasSpaceAvailable() {
				if err := s.drain(); err != nil {
					return err
				}
			}

		case ev := <-events:
			if err := s.handle(ev); err != nil {
				return err
			}
		}
	}
}

func (s *session) handle(ev Event) error {
	s.logger.Debug("transport event", "event", ev.Kind, "half", ev.Half)

	switch ev.Kind {
	case EventOpenCompleted:
		if ev.Half == HalfInbound {
			s.inboundOpen = true
		} else {
			s.outboundOpen = true
		}
		if s.inboundOpen && s.outboundOpen && !s.connected {
			return s.established()
		}

	case EventHasBytesAvailable:
		if s.connected {
			return s.pump()
		}

	case EventHasSpaceAvailable:
		if s.connected {
			return s.drain()
		}

	case EventErrorOccurred:
		if ev.Err == nil {
			return errTransportFailed
		}
		return ev.Err

	case EventEndEncountered:
		if s.connected {
			if err := s.pump(); err != nil {
				return err
			}
		}
		return errEndOfStream
	}
	return nil
}

// established runs once both halves are open.
func (s *session) established() error {
	if !s.client.markConnected(s) {
		return nil
	}
	s.connected = true
	s.logger.Info("connection established")

	onConnected := s.client.opts.onConnected
	s.client.opts.dispatcher.Dispatch(onConnected)

	if s.transport.HasBytesAvailable() {
		if err := s.pump(); err != nil {
			return err
		}
	}
	if s.transport.HasSpaceAvailable() {
		return s.drain()
	}
	return nil
}

// drain feeds the head writer until the queue is empty or the transport has
// no capacity left. Completed writers are popped so several small writers can
// flush within one readiness event.
func (s *session) drain() error {
	for len(s.queue) > 0 && s.transport.HasSpaceAvailable() {
		if s.ctx.Err() != nil {
			return nil
		}

		before := s.sink.n
		complete, err := s.queue[0].Drain(&s.sink)
		if err != nil {
			return err
		}

		if complete {
			s.queue[0] = nil
			s.queue = s.queue[1:]
			s.metrics.writerCompleted()
			continue
		}

		if s.sink.n == before {
			// No progress; wait for the next readiness event.
			break
		}
	}

	if len(s.queue) == 0 {
		s.queue = nil
	}
	return nil
}

// pump reads while the transport has bytes, handing each chunk to the reader
// before requesting the next.
func (s *session) pump() error {
	for s.transport.HasBytesAvailable() {
		if s.ctx.Err() != nil {
			return nil
		}

		n, err := s.transport.Read(s.buf)
		if n > 0 {
			s.metrics.read(n)
			s.reader.OnChunk(s.buf[:n])
		}
		if err != nil {
			return newTransportError("read", err)
		}
		if n == 0 {
			break
		}
	}
	return nil
}

func (s *session) teardown() {
	s.cancel()

	if err := s.transport.Close(); err != nil {
		s.logger.Debug("transport close error", "error", err)
	}

	if n := len(s.queue) + len(s.writes); n > 0 {
		s.logger.Debug("discarding queued writers", "count", n)
	}
	s.queue = nil
	s.reader.Reset()
}

// countingWriter counts bytes accepted by the transport.
type countingWriter struct {
	w       io.Writer
	n       int64
	metrics *Metrics
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	if n > 0 {
		c.n += int64(n)
		c.metrics.written(n)
	}
	return n, err
}
