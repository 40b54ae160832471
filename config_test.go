package tcpclient

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "client.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_MissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfig_File(t *testing.T) {
	path := writeConfig(t, `
client:
  address: tls://chat.example.com:6697
  validate_certificates: false
  dial_timeout: 5s
  read_chunk_size: 1024
  delimiter: crlf
  encoding: windows-1252
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "tls://chat.example.com:6697", cfg.Address)
	assert.False(t, cfg.ValidateCertificates)
	assert.Equal(t, 5*time.Second, cfg.DialTimeout)
	assert.Equal(t, 1024, cfg.ReadChunkSize)
	assert.Equal(t, defaultWriteBufferSize, cfg.WriteBufferSize)
	assert.Equal(t, DelimiterCRLF, cfg.Delimiter)
	assert.Equal(t, "windows-1252", cfg.Encoding)
	assert.Nil(t, cfg.Secure)
}

func TestLoadConfig_ParseError(t *testing.T) {
	path := writeConfig(t, "client: [unclosed")

	cfg, err := LoadConfig(path)
	assert.Error(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfig_EscapedDelimiter(t *testing.T) {
	path := writeConfig(t, "client:\n  delimiter: \"\\r\\n\"\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DelimiterCRLF, cfg.Delimiter)
}

func TestLoadConfig_BadDelimiter(t *testing.T) {
	path := writeConfig(t, "client:\n  delimiter: '\"\\q\"'\n")

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("TCPCLIENT_ADDRESS", "10.1.1.1:4000")
	t.Setenv("TCPCLIENT_SECURE", "true")
	t.Setenv("TCPCLIENT_DELIMITER", "cr")
	t.Setenv("TCPCLIENT_ENCODING", "iso-8859-1")
	t.Setenv("TCPCLIENT_PROXY", "socks5://127.0.0.1:1080")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "10.1.1.1:4000", cfg.Address)
	require.NotNil(t, cfg.Secure)
	assert.True(t, *cfg.Secure)
	assert.Equal(t, DelimiterCR, cfg.Delimiter)
	assert.Equal(t, "iso-8859-1", cfg.Encoding)
	assert.Equal(t, "socks5://127.0.0.1:1080", cfg.Proxy)
}

func TestLoadConfig_BadEnv(t *testing.T) {
	t.Setenv("TCPCLIENT_SECURE", "sometimes")

	_, err := LoadConfig("")
	assert.ErrorContains(t, err, "TCPCLIENT_SECURE")
}

func TestConfig_Options(t *testing.T) {
	secure := false
	cfg := DefaultConfig()
	cfg.Secure = &secure
	cfg.Delimiter = DelimiterCRLF
	cfg.Encoding = "windows-1252"
	cfg.ReadChunkSize = 256
	cfg.Proxy = "socks5://proxy.internal:1080"

	opts, err := cfg.Options()
	require.NoError(t, err)

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	assert.Equal(t, DelimiterCRLF, o.delimiter)
	assert.True(t, o.hasSecure)
	assert.False(t, o.secure)
	assert.False(t, o.insecure)
	assert.Equal(t, 256, o.readChunk)
	assert.Equal(t, "socks5://proxy.internal:1080", o.proxy)
	assert.NotNil(t, o.encoding)

	cfg.Encoding = "klingon"
	_, err = cfg.Options()
	assert.Error(t, err)
}

func TestConfig_NewLineReader(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Delimiter = DelimiterCRLF
	cfg.Encoding = "windows-1252"

	var got []string
	r, err := cfg.NewLineReader(func(s string) { got = append(got, s) })
	require.NoError(t, err)

	r.OnChunk([]byte("gar\xe7on\r\n"))
	assert.Equal(t, []string{"garçon"}, got)
}
