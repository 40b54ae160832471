package tcpclient

import (
	"bytes"

	"golang.org/x/text/encoding"
)

// Reader turns inbound byte chunks into application messages.
//
// OnChunk is called from the client's socket loop with chunks in arrival
// order. It must not retain p after returning. Reset discards any partial
// message; the client calls it at the start and end of every connection.
type Reader interface {
	OnChunk(p []byte)
	Reset()
}

// DispatcherSetter is implemented by readers that deliver messages through a
// Dispatcher. The client hands its callback dispatcher to such readers.
type DispatcherSetter interface {
	SetDispatcher(d Dispatcher)
}

// RawReader delivers every inbound chunk as one message, without buffering.
type RawReader struct {
	onMessage  func([]byte)
	dispatcher Dispatcher
}

// NewRawReader returns a passthrough reader that calls fn once per chunk.
func NewRawReader(fn func([]byte)) *RawReader {
	return &RawReader{onMessage: fn}
}

// OnChunk implements Reader.
func (r *RawReader) OnChunk(p []byte) {
	msg := bytes.Clone(p)
	dispatch(r.dispatcher, func() { r.onMessage(msg) })
}

// Reset implements Reader. RawReader keeps no state.
func (r *RawReader) Reset() {}

// SetDispatcher implements DispatcherSetter.
func (r *RawReader) SetDispatcher(d Dispatcher) {
	r.dispatcher = d
}

// LineOption configures a LineReader.
type LineOption func(*LineReader)

// LineHandler sets the callback for raw line bytes. The delimiter is not included.
func LineHandler(fn func([]byte)) LineOption {
	return func(r *LineReader) {
		r.onLine = fn
	}
}

// TextHandler sets the callback for decoded lines. When set it takes
// precedence over LineHandler; lines that fail to decode are dropped.
func TextHandler(fn func(string)) LineOption {
	return func(r *LineReader) {
		r.onText = fn
	}
}

// TextEncoding sets the encoding used by TextHandler. Default is UTF-8.
func TextEncoding(enc encoding.Encoding) LineOption {
	return func(r *LineReader) {
		r.enc = enc
	}
}

// LineDispatcher sets the context callbacks run on. A reader configured this
// way ignores the client's dispatcher.
func LineDispatcher(d Dispatcher) LineOption {
	return func(r *LineReader) {
		r.dispatcher = d
		r.pinned = d != nil
	}
}

// MaxLineLength bounds the partial line kept between chunks. When a partial
// line grows past n bytes it is delivered as a message on its own; trailing
// bytes that may begin a delimiter stay buffered, and a delimiter arriving
// right after such a flush ends the flushed line. Zero means no limit.
func MaxLineLength(n int) LineOption {
	return func(r *LineReader) {
		r.maxLen = n
	}
}

// LineReader splits the inbound stream on a delimiter.
//
// Data after the last delimiter seen is kept in an accumulation buffer and
// joined with the next chunk, so a delimiter split across chunks is still
// found. The buffer never holds a complete delimiter-terminated line.
// With DelimiterNone every chunk is delivered as is.
type LineReader struct {
	delim []byte
	enc   encoding.Encoding

	onLine func([]byte)
	onText func(string)

	dispatcher Dispatcher
	pinned     bool
	maxLen     int

	acc   []byte
	split bool
}

// NewLineReader returns a reader framing messages on d.
// At least one of LineHandler or TextHandler is required.
func NewLineReader(d Delimiter, opts ...LineOption) (*LineReader, error) {
	r := &LineReader{delim: d.Bytes()}
	for _, o := range opts {
		o(r)
	}

	if r.onLine == nil && r.onText == nil {
		return nil, ErrInvalidOnMessage
	}
	return r, nil
}

// SetDispatcher implements DispatcherSetter.
func (r *LineReader) SetDispatcher(d Dispatcher) {
	if r.pinned {
		return
	}
	r.dispatcher = d
}

// Reset implements Reader.
func (r *LineReader) Reset() {
	r.acc = nil
	r.split = false
}

// Buffered returns the number of bytes waiting for a delimiter.
func (r *LineReader) Buffered() int {
	return len(r.acc)
}

// OnChunk implements Reader.
func (r *LineReader) OnChunk(chunk []byte) {
	if len(r.delim) == 0 {
		r.emit(bytes.Clone(chunk))
		return
	}

	buf := chunk
	search := 0
	carried := len(r.acc) > 0
	if carried {
		// Back up so a delimiter that began in the previous chunk is found.
		search = len(r.acc) - len(r.delim) + 1
		if search < 0 {
			search = 0
		}
		buf = append(r.acc, chunk...)
		r.acc = nil
	}

	start := 0
	for start < len(buf) {
		i := bytes.Index(buf[search:], r.delim)
		if i < 0 {
			break
		}

		end := search + i
		if !r.split || end != start {
			r.emit(bytes.Clone(buf[start:end]))
		}
		r.split = false
		start = end + len(r.delim)
		search = start
	}

	if start >= len(buf) {
		return
	}

	tail := buf[start:]
	if carried {
		// buf owns its backing array; compact in place.
		n := copy(buf, tail)
		r.acc = buf[:n]
	} else {
		r.acc = bytes.Clone(tail)
	}

	if r.maxLen > 0 && len(r.acc) > r.maxLen {
		keep := partialDelimiter(r.acc, r.delim)
		cut := len(r.acc) - keep
		if cut == 0 {
			return
		}

		line := bytes.Clone(r.acc[:cut])
		if keep > 0 {
			r.acc = bytes.Clone(r.acc[cut:])
		} else {
			r.acc = nil
		}
		r.split = true
		r.emit(line)
	}
}

// partialDelimiter returns the length of the longest proper prefix of delim
// that b ends with.
func partialDelimiter(b, delim []byte) int {
	for n := min(len(delim)-1, len(b)); n > 0; n-- {
		if bytes.HasSuffix(b, delim[:n]) {
			return n
		}
	}
	return 0
}

func (r *LineReader) emit(line []byte) {
	if r.onText != nil {
		text, err := decodeText(r.enc, line)
		if err != nil {
			return
		}
		dispatch(r.dispatcher, func() { r.onText(text) })
		return
	}

	dispatch(r.dispatcher, func() { r.onLine(line) })
}

// dispatch runs fn on d, or inline when no dispatcher is set.
func dispatch(d Dispatcher, fn func()) {
	if d == nil {
		fn()
		return
	}
	d.Dispatch(fn)
}
