package tcpclient

import (
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the file form of a client configuration.
type Config struct {
	// Address is "host:port" or a URL such as "tls://host:port".
	Address string `yaml:"address"`

	// Secure forces TLS on or off. Unset means the address scheme decides.
	Secure *bool `yaml:"secure,omitempty"`

	// ValidateCertificates enables server certificate verification.
	ValidateCertificates bool `yaml:"validate_certificates"`

	DialTimeout     time.Duration `yaml:"dial_timeout"`
	ReadChunkSize   int           `yaml:"read_chunk_size"`
	WriteBufferSize int           `yaml:"write_buffer_size"`

	// Delimiter frames inbound lines and terminates WriteLine.
	Delimiter Delimiter `yaml:"delimiter"`

	// Encoding is a WHATWG encoding label, e.g. "utf-8" or "windows-1252".
	Encoding string `yaml:"encoding"`

	// Proxy is an optional SOCKS5 proxy URL.
	Proxy string `yaml:"proxy,omitempty"`
}

// fileConfig wraps Config for YAML parsing.
type fileConfig struct {
	Client Config `yaml:"client"`
}

// DefaultConfig returns a Config with the client defaults.
func DefaultConfig() Config {
	return Config{
		ValidateCertificates: true,
		DialTimeout:          defaultDialTimeout,
		ReadChunkSize:        defaultReadChunkSize,
		WriteBufferSize:      defaultWriteBufferSize,
		Delimiter:            defaultDelimiter,
		Encoding:             "utf-8",
	}
}

// LoadConfig loads the "client" section of a YAML file and applies
// environment variable overrides. A missing file yields the defaults.
func LoadConfig(path string) (Config, error) {
	fc := fileConfig{Client: DefaultConfig()}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err = yaml.Unmarshal(data, &fc); err != nil {
				return DefaultConfig(), errors.Wrapf(err, "parse %s", path)
			}
		case os.IsNotExist(err):
		default:
			return DefaultConfig(), errors.Wrapf(err, "read %s", path)
		}
	}

	cfg := fc.Client
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if addr := os.Getenv("TCPCLIENT_ADDRESS"); addr != "" {
		c.Address = addr
	}

	if secure := os.Getenv("TCPCLIENT_SECURE"); secure != "" {
		v, err := strconv.ParseBool(secure)
		if err != nil {
			return errors.Wrap(err, "TCPCLIENT_SECURE")
		}
		c.Secure = &v
	}

	if delim := os.Getenv("TCPCLIENT_DELIMITER"); delim != "" {
		d, err := ParseDelimiter(delim)
		if err != nil {
			return errors.Wrap(err, "TCPCLIENT_DELIMITER")
		}
		c.Delimiter = d
	}

	if enc := os.Getenv("TCPCLIENT_ENCODING"); enc != "" {
		c.Encoding = enc
	}

	if proxy := os.Getenv("TCPCLIENT_PROXY"); proxy != "" {
		c.Proxy = proxy
	}

	return nil
}

// Options converts the configuration into client options. The reader and
// callbacks still have to be supplied by the caller.
func (c Config) Options() ([]Option, error) {
	enc, err := LookupEncoding(c.Encoding)
	if err != nil {
		return nil, err
	}

	opts := []Option{
		ValidateCertificatesOption(c.ValidateCertificates),
		DialTimeoutOption(c.DialTimeout),
		ReadChunkSizeOption(c.ReadChunkSize),
		WriteBufferSizeOption(c.WriteBufferSize),
		DelimiterOption(c.Delimiter),
		EncodingOption(enc),
	}
	if c.Secure != nil {
		opts = append(opts, SecureOption(*c.Secure))
	}
	if c.Proxy != "" {
		opts = append(opts, ProxyOption(c.Proxy))
	}
	return opts, nil
}

// NewLineReader builds a LineReader matching the configured delimiter and
// encoding, delivering decoded lines to fn.
func (c Config) NewLineReader(fn func(string)) (*LineReader, error) {
	enc, err := LookupEncoding(c.Encoding)
	if err != nil {
		return nil, err
	}
	return NewLineReader(c.Delimiter, TextHandler(fn), TextEncoding(enc))
}
