package tcpclient

import (
	"crypto/tls"
	"time"

	"golang.org/x/text/encoding"
)

// options holds the configuration for a client.
type options struct {
	reader Reader
	logger Logger

	onConnected    func()
	onDisconnected func(error)

	dispatcher Dispatcher
	dialer     Dialer
	metrics    *Metrics

	delimiter    Delimiter
	hasDelimiter bool
	encoding     encoding.Encoding

	secure      bool
	hasSecure   bool
	insecure    bool // skip certificate validation
	tlsConfig   *tls.Config
	dialTimeout time.Duration
	readChunk   int // bytes pulled from the transport per read
	writeBuffer int // outbound capacity of the transport
	queueSize   int // buffered enqueue requests toward the socket loop
	proxy       string
}

// Option is a function that configures client options.
type Option func(*options)

// Default client configuration values.
const (
	defaultQueueSize = 16
	defaultDelimiter = DelimiterLF
)

// checkOptions validates and sets default values for client options.
func checkOptions(opts *options) error {
	if opts.reader == nil {
		return ErrInvalidReader
	}

	if opts.readChunk <= 0 {
		opts.readChunk = defaultReadChunkSize
	}

	if opts.writeBuffer <= 0 {
		opts.writeBuffer = defaultWriteBufferSize
	}

	if opts.dialTimeout <= 0 {
		opts.dialTimeout = defaultDialTimeout
	}

	if opts.queueSize <= 0 {
		opts.queueSize = defaultQueueSize
	}

	if !opts.hasDelimiter {
		opts.delimiter = defaultDelimiter
	}

	if opts.dialer == nil {
		opts.dialer = NetDialer
	}

	if opts.onConnected == nil {
		opts.onConnected = func() {}
	}

	if opts.onDisconnected == nil {
		opts.onDisconnected = func(error) {}
	}

	if opts.logger == nil {
		opts.logger = defaultLogger()
	}

	return nil
}

// transportConfig builds the per-connection transport settings for target.
func (o *options) transportConfig(target Target) TransportConfig {
	secure := target.Secure
	if o.hasSecure {
		secure = o.secure
	}

	return TransportConfig{
		Secure:               secure,
		ValidateCertificates: !o.insecure,
		TLSConfig:            o.tlsConfig,
		DialTimeout:          o.dialTimeout,
		ReadChunkSize:        o.readChunk,
		WriteBufferSize:      o.writeBuffer,
		Proxy:                o.proxy,
	}
}

// ReaderOption returns an Option that sets the inbound message reader.
// A reader is required; see also OnMessageOption.
func ReaderOption(r Reader) Option {
	return func(o *options) {
		o.reader = r
	}
}

// OnMessageOption returns an Option that delivers every inbound chunk to cb
// unmodified. It is shorthand for ReaderOption(NewRawReader(cb)).
func OnMessageOption(cb func([]byte)) Option {
	return func(o *options) {
		if cb == nil {
			return
		}
		o.reader = NewRawReader(cb)
	}
}

// OnConnectedOption returns an Option that sets the callback invoked once both
// halves of the stream are open.
func OnConnectedOption(cb func()) Option {
	return func(o *options) {
		o.onConnected = cb
	}
}

// OnDisconnectedOption returns an Option that sets the callback invoked after
// teardown. The error is nil for a clean close or an explicit Disconnect.
func OnDisconnectedOption(cb func(error)) Option {
	return func(o *options) {
		o.onDisconnected = cb
	}
}

// DispatcherOption returns an Option that sets where callbacks run.
// By default each client owns a SerialDispatcher.
func DispatcherOption(d Dispatcher) Option {
	return func(o *options) {
		o.dispatcher = d
	}
}

// DelimiterOption returns an Option that sets the delimiter used by WriteLine.
func DelimiterOption(d Delimiter) Option {
	return func(o *options) {
		o.delimiter = d
		o.hasDelimiter = true
	}
}

// EncodingOption returns an Option that sets the encoding used by WriteText.
func EncodingOption(enc encoding.Encoding) Option {
	return func(o *options) {
		o.encoding = enc
	}
}

// SecureOption returns an Option that enables or disables TLS, overriding
// the scheme of the target address.
func SecureOption(secure bool) Option {
	return func(o *options) {
		o.secure = secure
		o.hasSecure = true
	}
}

// ValidateCertificatesOption returns an Option that controls server
// certificate verification on secure connections. Enabled by default.
func ValidateCertificatesOption(validate bool) Option {
	return func(o *options) {
		o.insecure = !validate
	}
}

// TLSConfigOption returns an Option that sets the base TLS configuration.
func TLSConfigOption(cfg *tls.Config) Option {
	return func(o *options) {
		o.tlsConfig = cfg
	}
}

// DialTimeoutOption returns an Option that bounds each connection attempt.
func DialTimeoutOption(d time.Duration) Option {
	return func(o *options) {
		o.dialTimeout = d
	}
}

// ReadChunkSizeOption returns an Option that sets the maximum number of bytes
// handed to the reader per read.
func ReadChunkSizeOption(size int) Option {
	return func(o *options) {
		o.readChunk = size
	}
}

// WriteBufferSizeOption returns an Option that sets how many outbound bytes the
// transport accepts before reporting no space.
func WriteBufferSizeOption(size int) Option {
	return func(o *options) {
		o.writeBuffer = size
	}
}

// ProxyOption returns an Option that routes connections through a SOCKS5
// proxy given as a URL, e.g. "socks5://127.0.0.1:1080".
func ProxyOption(proxyURL string) Option {
	return func(o *options) {
		o.proxy = proxyURL
	}
}

// QueueSizeOption returns an Option that sets the size of the buffered channel
// carrying new writers to the socket loop.
func QueueSizeOption(size int) Option {
	return func(o *options) {
		o.queueSize = size
	}
}

// DialerOption returns an Option that replaces the transport factory.
func DialerOption(d Dialer) Option {
	return func(o *options) {
		o.dialer = d
	}
}

// LoggerOption returns an Option that sets the logger.
// If not set, the default slog logger will be used.
func LoggerOption(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// MetricsOption returns an Option that records client activity in m.
func MetricsOption(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}
