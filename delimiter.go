package tcpclient

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Delimiter is the byte sequence that marks a message boundary.
// The same bytes terminate outbound lines and are searched for in inbound data.
type Delimiter string

// Well-known delimiters.
const (
	// DelimiterNone disables framing: chunks pass through untouched.
	DelimiterNone Delimiter = ""
	// DelimiterCR is a single carriage return.
	DelimiterCR Delimiter = "\r"
	// DelimiterLF is a single line feed.
	DelimiterLF Delimiter = "\n"
	// DelimiterCRLF is a carriage return followed by a line feed.
	DelimiterCRLF Delimiter = "\r\n"
)

// ErrInvalidDelimiter is returned when a delimiter name cannot be parsed.
var ErrInvalidDelimiter = errors.New("invalid delimiter")

// CustomDelimiter returns a delimiter made of an arbitrary byte sequence.
func CustomDelimiter(b []byte) Delimiter {
	return Delimiter(b)
}

// Bytes returns the literal bytes of the delimiter. The slice is a copy.
func (d Delimiter) Bytes() []byte {
	return []byte(d)
}

// Len returns the number of bytes in the delimiter.
func (d Delimiter) Len() int {
	return len(d)
}

// IsNone reports whether the delimiter is empty.
func (d Delimiter) IsNone() bool {
	return len(d) == 0
}

func (d Delimiter) String() string {
	switch d {
	case DelimiterNone:
		return "none"
	case DelimiterCR:
		return "cr"
	case DelimiterLF:
		return "lf"
	case DelimiterCRLF:
		return "crlf"
	default:
		return strconv.Quote(string(d))
	}
}

// ParseDelimiter parses a delimiter name as produced by String: one of
// none, cr, lf, crlf (case-insensitive), a Go-quoted byte sequence such as
// "\x00", or any other text taken literally. Whitespace-only input such as
// "\r\n" is a literal delimiter; only the empty string means none.
func ParseDelimiter(s string) (Delimiter, error) {
	if s == "" {
		return DelimiterNone, nil
	}

	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Delimiter(s), nil
	}

	switch strings.ToLower(trimmed) {
	case "none":
		return DelimiterNone, nil
	case "cr":
		return DelimiterCR, nil
	case "lf":
		return DelimiterLF, nil
	case "crlf":
		return DelimiterCRLF, nil
	}

	if trimmed[0] != '"' && trimmed[0] != '`' {
		return Delimiter(s), nil
	}

	raw, err := strconv.Unquote(trimmed)
	if err != nil {
		return DelimiterNone, errors.Wrapf(ErrInvalidDelimiter, "%s", s)
	}
	return Delimiter(raw), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Delimiter) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}

	parsed, err := ParseDelimiter(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Delimiter) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}
