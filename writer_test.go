package tcpclient

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"syscall"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// limitedSink accepts at most limit bytes per Write.
type limitedSink struct {
	bytes.Buffer
	limit int
	calls int
}

func (s *limitedSink) Write(p []byte) (int, error) {
	s.calls++
	if len(p) > s.limit {
		p = p[:s.limit]
	}
	return s.Buffer.Write(p)
}

// errSink fails every write.
type errSink struct {
	err error
}

func (s errSink) Write([]byte) (int, error) {
	return 0, s.err
}

func TestBufferWriter_PartialDrain(t *testing.T) {
	w := NewBufferWriter([]byte("hello world"))
	sink := &limitedSink{limit: 4}

	complete, err := w.Drain(sink)
	require.NoError(t, err)
	assert.False(t, complete)
	assert.Equal(t, 4, w.Written())

	complete, err = w.Drain(sink)
	require.NoError(t, err)
	assert.False(t, complete)

	complete, err = w.Drain(sink)
	require.NoError(t, err)
	assert.True(t, complete)
	assert.Equal(t, "hello world", sink.String())
	assert.Equal(t, 11, w.Len())
	assert.Equal(t, 3, sink.calls)
}

func TestBufferWriter_BusySink(t *testing.T) {
	w := NewBufferWriter([]byte("abc"))
	sink := &limitedSink{limit: 0}

	complete, err := w.Drain(sink)
	require.NoError(t, err)
	assert.False(t, complete)
	assert.Equal(t, 0, w.Written())

	sink.limit = 10
	complete, err = w.Drain(sink)
	require.NoError(t, err)
	assert.True(t, complete)
	assert.Equal(t, "abc", sink.String())
}

func TestBufferWriter_Empty(t *testing.T) {
	sink := &limitedSink{limit: 10}
	complete, err := NewBufferWriter(nil).Drain(sink)
	require.NoError(t, err)
	assert.True(t, complete)
	assert.Equal(t, 0, sink.calls)
}

func TestBufferWriter_SinkError(t *testing.T) {
	w := NewBufferWriter([]byte("abc"))

	complete, err := w.Drain(errSink{err: syscall.EPIPE})
	require.Error(t, err)
	assert.False(t, complete)
	assert.Equal(t, 0, w.Written())

	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "write", te.Op)
	assert.Equal(t, syscall.EPIPE, te.Code)
	assert.Contains(t, err.Error(), "errno")
}

func TestNewLineWriter(t *testing.T) {
	payload := []byte("PING")
	w := NewLineWriter(payload, DelimiterCRLF)
	payload[0] = 'X'

	sink := &limitedSink{limit: 64}
	complete, err := w.Drain(sink)
	require.NoError(t, err)
	assert.True(t, complete)
	assert.Equal(t, "PING\r\n", sink.String())

	sink.Reset()
	_, err = NewLineWriter([]byte("raw"), DelimiterNone).Drain(sink)
	require.NoError(t, err)
	assert.Equal(t, "raw", sink.String())
}

func TestNewRequestWriter(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "http://example.com/status", nil)
	require.NoError(t, err)

	w, err := NewRequestWriter(req)
	require.NoError(t, err)

	sink := &limitedSink{limit: 1 << 16}
	complete, err := w.Drain(sink)
	require.NoError(t, err)
	assert.True(t, complete)

	out := sink.String()
	assert.True(t, strings.HasPrefix(out, "GET /status HTTP/1.1\r\n"))
	assert.Contains(t, out, "Host: example.com\r\n")
	assert.True(t, strings.HasSuffix(out, "\r\n\r\n"))
}

// chunks returns a Supplier yielding parts in order and counting calls.
func chunks(calls *int, parts ...string) Supplier {
	return func() ([]byte, error) {
		*calls++
		if len(parts) == 0 {
			return nil, nil
		}
		p := parts[0]
		parts = parts[1:]
		return []byte(p), nil
	}
}

func TestStreamWriter_Terminates(t *testing.T) {
	var calls int
	w := NewStreamWriter(chunks(&calls, "ab", "cd", "ef"))
	sink := &limitedSink{limit: 64}

	drains := 0
	for {
		complete, err := w.Drain(sink)
		require.NoError(t, err)
		drains++
		if complete {
			break
		}
		require.Less(t, drains, 10)
	}

	assert.Equal(t, "abcdef", sink.String())
	assert.Equal(t, 4, calls)
	// The terminating call does not touch the sink.
	assert.Equal(t, 3, sink.calls)
}

func TestStreamWriter_WaitsForChunkFlush(t *testing.T) {
	var calls int
	w := NewStreamWriter(chunks(&calls, "abcdef", "gh"))
	sink := &limitedSink{limit: 4}

	complete, err := w.Drain(sink)
	require.NoError(t, err)
	assert.False(t, complete)
	assert.Equal(t, 1, calls)

	complete, err = w.Drain(sink)
	require.NoError(t, err)
	assert.False(t, complete)
	assert.Equal(t, 1, calls)

	complete, err = w.Drain(sink)
	require.NoError(t, err)
	assert.False(t, complete)
	assert.Equal(t, 2, calls)

	complete, err = w.Drain(sink)
	require.NoError(t, err)
	assert.True(t, complete)
	assert.Equal(t, "abcdefgh", sink.String())
}

func TestStreamWriter_EmptyStream(t *testing.T) {
	var calls int
	w := NewStreamWriter(chunks(&calls))
	sink := &limitedSink{limit: 64}

	complete, err := w.Drain(sink)
	require.NoError(t, err)
	assert.True(t, complete)
	assert.Equal(t, 0, sink.calls)
}

func TestStreamWriter_ProducerError(t *testing.T) {
	failure := errors.New("disk gone")
	w := NewStreamWriter(func() ([]byte, error) { return nil, failure })

	complete, err := w.Drain(&limitedSink{limit: 64})
	assert.False(t, complete)
	assert.True(t, errors.Is(err, ErrProducer))
	assert.True(t, errors.Is(err, failure))
	assert.Contains(t, err.Error(), "disk gone")
}

func TestStreamWriter_SinkError(t *testing.T) {
	var calls int
	w := NewStreamWriter(chunks(&calls, "abc"))

	_, err := w.Drain(errSink{err: syscall.ECONNRESET})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrProducer))
	assert.True(t, errors.Is(err, syscall.ECONNRESET))
}

// emptyReader never makes progress.
type emptyReader struct{}

func (emptyReader) Read([]byte) (int, error) { return 0, nil }

func TestNewReaderStream(t *testing.T) {
	w := NewReaderStream(strings.NewReader("0123456789"), 4)
	sink := &limitedSink{limit: 64}

	for i := 0; i < 10; i++ {
		complete, err := w.Drain(sink)
		require.NoError(t, err)
		if complete {
			break
		}
	}
	assert.Equal(t, "0123456789", sink.String())

	_, err := NewReaderStream(emptyReader{}, 0).Drain(sink)
	assert.True(t, errors.Is(err, io.ErrNoProgress))
}
