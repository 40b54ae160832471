package tcpclient

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/net/proxy"
	"golang.org/x/sync/errgroup"
)

// Default transport configuration values.
const (
	defaultDialTimeout     = 30 * time.Second
	defaultReadChunkSize   = 4096
	defaultWriteBufferSize = 64 * 1024
	// inboundChunks is how many read chunks may wait for the client before
	// the read pump stops pulling from the socket.
	inboundChunks   = 16
	eventBufferSize = 64
)

var (
	errEndOfStream    = errors.New("end of stream")
	errAlreadyOpened  = errors.New("transport already opened")
	errMissingTLSName = errors.New("tls requires a server name to validate certificates")
	errProxyDialer    = errors.New("proxy dialer does not support contexts")
)

// NetDialer is the default Dialer. It returns a TCP transport, with TLS when
// cfg.Secure is set and through a SOCKS5 proxy when cfg.Proxy is set.
func NetDialer(target Target, cfg TransportConfig) (Transport, error) {
	tlsConfig, err := buildTLSConfig(target, cfg)
	if err != nil {
		return nil, err
	}

	t := newNetTransport(target.Address(), tlsConfig, cfg)
	if t.dialer, err = buildDialer(cfg); err != nil {
		return nil, err
	}
	return t, nil
}

func buildDialer(cfg TransportConfig) (proxy.ContextDialer, error) {
	direct := &net.Dialer{Timeout: cfg.DialTimeout}
	if cfg.Proxy == "" {
		return direct, nil
	}

	u, err := url.Parse(cfg.Proxy)
	if err != nil {
		return nil, errors.Wrap(err, "parse proxy url")
	}
	d, err := proxy.FromURL(u, direct)
	if err != nil {
		return nil, errors.Wrapf(err, "proxy %s", u.Redacted())
	}

	cd, ok := d.(proxy.ContextDialer)
	if !ok {
		return nil, errProxyDialer
	}
	return cd, nil
}

func buildTLSConfig(target Target, cfg TransportConfig) (*tls.Config, error) {
	if !cfg.Secure {
		return nil, nil
	}

	var c *tls.Config
	if cfg.TLSConfig != nil {
		c = cfg.TLSConfig.Clone()
	} else {
		c = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	if c.ServerName == "" {
		c.ServerName = target.Host
	}
	if !cfg.ValidateCertificates {
		c.InsecureSkipVerify = true
	}
	if c.ServerName == "" && !c.InsecureSkipVerify {
		return nil, errMissingTLSName
	}
	return c, nil
}

// netTransport adapts a blocking net.Conn to the Transport contract.
// A read pump buffers inbound bytes and a write pump flushes accepted
// outbound bytes; both report readiness on the event channel.
type netTransport struct {
	addr          string
	tlsConfig     *tls.Config
	dialer        proxy.ContextDialer
	dialTimeout   time.Duration
	chunkSize     int
	inboundLimit  int
	outboundLimit int

	events    chan Event
	closed    chan struct{}
	closeOnce sync.Once
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	mu       sync.Mutex
	started  bool
	opened   bool
	conn     net.Conn
	readErr  error
	writeErr error
	inbound  []byte
	outbound []byte

	drained chan struct{}
	pending chan struct{}
}

func newNetTransport(addr string, tlsConfig *tls.Config, cfg TransportConfig) *netTransport {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.ReadChunkSize <= 0 {
		cfg.ReadChunkSize = defaultReadChunkSize
	}
	if cfg.WriteBufferSize <= 0 {
		cfg.WriteBufferSize = defaultWriteBufferSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &netTransport{
		addr:          addr,
		tlsConfig:     tlsConfig,
		dialTimeout:   cfg.DialTimeout,
		chunkSize:     cfg.ReadChunkSize,
		inboundLimit:  cfg.ReadChunkSize * inboundChunks,
		outboundLimit: cfg.WriteBufferSize,
		events:        make(chan Event, eventBufferSize),
		closed:        make(chan struct{}),
		ctx:           ctx,
		cancel:        cancel,
		drained:       make(chan struct{}, 1),
		pending:       make(chan struct{}, 1),
	}
}

// Open starts dialing in the background.
func (t *netTransport) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.started {
		return errAlreadyOpened
	}
	select {
	case <-t.closed:
		return net.ErrClosed
	default:
	}

	t.started = true
	t.wg.Add(1)
	go t.run()
	return nil
}

func (t *netTransport) Events() <-chan Event {
	return t.events
}

// dial connects, then runs the TLS handshake when configured. The whole
// sequence is bounded by the dial timeout.
func (t *netTransport) dial() (net.Conn, error) {
	ctx, cancel := context.WithTimeout(t.ctx, t.dialTimeout)
	defer cancel()

	dialer := t.dialer
	if dialer == nil {
		dialer = &net.Dialer{Timeout: t.dialTimeout}
	}

	conn, err := dialer.DialContext(ctx, "tcp", t.addr)
	if err != nil {
		return nil, err
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}

	if t.tlsConfig == nil {
		return conn, nil
	}

	tc := tls.Client(conn, t.tlsConfig)
	if err = tc.HandshakeContext(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return tc, nil
}

// run dials, announces both halves, then runs the read and write pumps until
// one of them fails or the transport is closed.
func (t *netTransport) run() {
	defer t.wg.Done()

	conn, err := t.dial()
	if err != nil {
		if !t.isClosed() {
			t.emit(Event{Kind: EventErrorOccurred, Err: newTransportError("dial", err)})
		}
		return
	}

	t.mu.Lock()
	if t.isClosed() {
		t.mu.Unlock()
		_ = conn.Close()
		return
	}
	t.conn = conn
	t.opened = true
	t.mu.Unlock()

	t.emit(Event{Kind: EventOpenCompleted, Half: HalfInbound})
	t.emit(Event{Kind: EventOpenCompleted, Half: HalfOutbound})
	t.emit(Event{Kind: EventHasSpaceAvailable, Half: HalfOutbound})

	group, ctx := errgroup.WithContext(t.ctx)

	group.Go(func() error {
		return t.readLoop(ctx, conn)
	})

	group.Go(func() error {
		return t.writeLoop(ctx, conn)
	})

	group.Go(func() error {
		<-ctx.Done()
		_ = conn.Close()
		return nil
	})

	err = group.Wait()
	if t.isClosed() {
		return
	}

	if errors.Is(err, errEndOfStream) {
		t.emit(Event{Kind: EventEndEncountered, Half: HalfInbound})
		return
	}
	t.emit(Event{Kind: EventErrorOccurred, Err: err})
}

// readLoop moves bytes from the socket into the inbound buffer.
func (t *netTransport) readLoop(ctx context.Context, conn net.Conn) error {
	buf := make([]byte, t.chunkSize)
	for {
		if err := t.waitInboundRoom(ctx); err != nil {
			return err
		}

		n, err := conn.Read(buf)
		if n > 0 {
			t.mu.Lock()
			t.inbound = append(t.inbound, buf[:n]...)
			t.mu.Unlock()
			t.emit(Event{Kind: EventHasBytesAvailable, Half: HalfInbound})
		}

		if err != nil {
			if err == io.EOF {
				return errEndOfStream
			}
			err = newTransportError("read", err)
			t.mu.Lock()
			t.readErr = err
			t.mu.Unlock()
			return err
		}
	}
}

func (t *netTransport) waitInboundRoom(ctx context.Context) error {
	for {
		t.mu.Lock()
		full := len(t.inbound) >= t.inboundLimit
		t.mu.Unlock()
		if !full {
			return nil
		}

		select {
		case <-t.drained:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// writeLoop flushes accepted outbound bytes to the socket.
func (t *netTransport) writeLoop(ctx context.Context, conn net.Conn) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.pending:
		}

		for {
			t.mu.Lock()
			data := t.outbound
			t.mu.Unlock()
			if len(data) == 0 {
				break
			}

			// Write only appends past len(data), so data is stable here.
			n, err := conn.Write(data)

			t.mu.Lock()
			t.outbound = append(t.outbound[:0], t.outbound[n:]...)
			if err != nil {
				t.writeErr = newTransportError("write", err)
				err = t.writeErr
			}
			t.mu.Unlock()

			if err != nil {
				return err
			}
			t.emit(Event{Kind: EventHasSpaceAvailable, Half: HalfOutbound})
		}
	}
}

// Read copies buffered inbound bytes into p. It returns 0 when nothing is
// buffered, or the read error once the buffer is empty after a failure.
func (t *netTransport) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.inbound) == 0 {
		return 0, t.readErr
	}

	n := copy(p, t.inbound)
	t.inbound = t.inbound[n:]
	if len(t.inbound) == 0 {
		t.inbound = nil
	}

	select {
	case t.drained <- struct{}{}:
	default:
	}
	return n, nil
}

// Write accepts up to the free outbound capacity.
func (t *netTransport) Write(p []byte) (int, error) {
	t.mu.Lock()
	if t.writeErr != nil {
		err := t.writeErr
		t.mu.Unlock()
		return 0, err
	}
	if !t.opened {
		t.mu.Unlock()
		return 0, nil
	}

	n := t.outboundLimit - len(t.outbound)
	if n > len(p) {
		n = len(p)
	}
	if n <= 0 {
		t.mu.Unlock()
		return 0, nil
	}
	t.outbound = append(t.outbound, p[:n]...)
	t.mu.Unlock()

	select {
	case t.pending <- struct{}{}:
	default:
	}
	return n, nil
}

func (t *netTransport) HasBytesAvailable() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inbound) > 0
}

func (t *netTransport) HasSpaceAvailable() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.opened && t.writeErr == nil && len(t.outbound) < t.outboundLimit
}

// Close tears the stream down and waits for the pumps to exit.
func (t *netTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.mu.Lock()
		close(t.closed)
		conn := t.conn
		t.mu.Unlock()

		t.cancel()
		if conn != nil {
			if cerr := conn.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
				err = cerr
			}
		}
	})
	t.wg.Wait()
	return err
}

func (t *netTransport) isClosed() bool {
	select {
	case <-t.closed:
		return true
	default:
		return false
	}
}

// emit delivers ev unless the transport has been closed.
func (t *netTransport) emit(ev Event) {
	select {
	case t.events <- ev:
	case <-t.closed:
	}
}
