package tcpclient

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

// ErrUnsupportedEncoding is returned when an encoding name is unknown.
var ErrUnsupportedEncoding = errors.New("unsupported text encoding")

// errDecode marks bytes that are not valid under the configured encoding.
var errDecode = errors.New("invalid text for encoding")

// LookupEncoding resolves an encoding by its WHATWG label, e.g. "utf-8",
// "utf-16le", "iso-8859-1" or "windows-1252". An empty name means UTF-8.
func LookupEncoding(name string) (encoding.Encoding, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return unicode.UTF8, nil
	}

	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, errors.Wrapf(ErrUnsupportedEncoding, "%q", name)
	}
	return enc, nil
}

func isUTF8(enc encoding.Encoding) bool {
	return enc == nil || enc == unicode.UTF8 || enc == encoding.Nop
}

// decodeText converts b to a string under enc. Invalid input yields errDecode;
// replacement characters are never silently produced.
func decodeText(enc encoding.Encoding, b []byte) (string, error) {
	if isUTF8(enc) {
		if !utf8.Valid(b) {
			return "", errDecode
		}
		return string(b), nil
	}

	out, err := enc.NewDecoder().Bytes(b)
	if err != nil {
		return "", errors.Wrap(errDecode, err.Error())
	}
	if bytes.ContainsRune(out, utf8.RuneError) {
		return "", errDecode
	}
	return string(out), nil
}

// encodeText converts s to bytes under enc. Characters that cannot be
// represented are an error.
func encodeText(enc encoding.Encoding, s string) ([]byte, error) {
	if isUTF8(enc) {
		if !utf8.ValidString(s) {
			return nil, errors.Wrap(errDecode, "encode")
		}
		return []byte(s), nil
	}

	out, err := enc.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, errors.Wrap(err, "encode text")
	}
	return out, nil
}
