package tcpclient

import (
	"bytes"
	"io"
	"net/http"

	"github.com/pkg/errors"
)

// Writer is one pending unit of outgoing data.
//
// Drain is called by the client only when the transport reports write capacity.
// It writes as much as the sink accepts and reports whether the unit is done.
// A sink that accepts nothing without an error leaves the writer unchanged and
// not complete; a sink error is returned and the writer keeps its position.
// Drain never closes the sink.
type Writer interface {
	Drain(w io.Writer) (complete bool, err error)
}

// BufferWriter drains a fixed byte buffer.
type BufferWriter struct {
	buf    []byte
	cursor int
}

// NewBufferWriter returns a writer for p. The buffer is not copied.
func NewBufferWriter(p []byte) *BufferWriter {
	return &BufferWriter{buf: p}
}

// NewLineWriter returns a writer for p followed by the delimiter bytes.
func NewLineWriter(p []byte, d Delimiter) *BufferWriter {
	buf := make([]byte, 0, len(p)+d.Len())
	buf = append(buf, p...)
	buf = append(buf, d...)
	return &BufferWriter{buf: buf}
}

// NewRequestWriter serializes an HTTP/1.1 request into a BufferWriter.
func NewRequestWriter(req *http.Request) (*BufferWriter, error) {
	var b bytes.Buffer
	if err := req.Write(&b); err != nil {
		return nil, errors.Wrap(err, "serialize request")
	}
	return &BufferWriter{buf: b.Bytes()}, nil
}

// Drain implements Writer.
func (b *BufferWriter) Drain(w io.Writer) (bool, error) {
	if b.cursor == len(b.buf) {
		return true, nil
	}

	if err := b.flush(w); err != nil {
		return false, err
	}
	return b.cursor == len(b.buf), nil
}

// Len returns the total buffer length.
func (b *BufferWriter) Len() int {
	return len(b.buf)
}

// Written returns the number of bytes already flushed.
func (b *BufferWriter) Written() int {
	return b.cursor
}

// flush writes buf[cursor:] once and advances the cursor by what was accepted.
func (b *BufferWriter) flush(w io.Writer) error {
	n, err := w.Write(b.buf[b.cursor:])
	if n > 0 {
		b.cursor += n
	}
	if err != nil {
		return newTransportError("write", err)
	}
	return nil
}

// Supplier produces the next chunk of a stream. Returning no data and a nil
// error marks the end of the stream.
type Supplier func() ([]byte, error)

// StreamWriter drains data pulled lazily from a Supplier. A new chunk is
// requested only after the previous one has been fully flushed.
type StreamWriter struct {
	next  Supplier
	chunk BufferWriter
	fill  bool
}

// NewStreamWriter returns a streaming writer over next.
func NewStreamWriter(next Supplier) *StreamWriter {
	return &StreamWriter{next: next, fill: true}
}

// NewReaderStream returns a streaming writer that reads up to size bytes
// from r per chunk until io.EOF.
func NewReaderStream(r io.Reader, size int) *StreamWriter {
	if size <= 0 {
		size = defaultReadChunkSize
	}

	return NewStreamWriter(func() ([]byte, error) {
		buf := make([]byte, size)
		for i := 0; i < maxEmptyReads; i++ {
			n, err := r.Read(buf)
			if n > 0 {
				return buf[:n], nil
			}
			if err == io.EOF {
				return nil, nil
			}
			if err != nil {
				return nil, err
			}
		}
		return nil, io.ErrNoProgress
	})
}

// maxEmptyReads bounds consecutive (0, nil) reads, as bufio does.
const maxEmptyReads = 100

// Drain implements Writer.
func (s *StreamWriter) Drain(w io.Writer) (bool, error) {
	if s.fill {
		data, err := s.next()
		if err != nil {
			return false, &producerError{err: err}
		}
		if len(data) == 0 {
			return true, nil
		}
		s.chunk = BufferWriter{buf: data}
		s.fill = false
	}

	if err := s.chunk.flush(w); err != nil {
		return false, err
	}

	if s.chunk.cursor == len(s.chunk.buf) {
		s.chunk = BufferWriter{}
		s.fill = true
	}
	return false, nil
}
