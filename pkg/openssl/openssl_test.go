package openssl

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpressionExcludeAndDeprioritize(t *testing.T) {
	e := NewExpression(DefaultCiphers, DefaultTLS13Suites)
	assert.Equal(t, "ALL", e.String())

	e2 := e.Exclude("ECDHE-RSA-AES128-GCM-SHA256").Exclude("TLS_AES_256_GCM_SHA384").Exclude("AES128-SHA")
	assert.Equal(t, "ALL:+ECDHE-RSA-AES128-GCM-SHA256:!ECDHE-RSA-AES128-GCM-SHA256:+AES128-SHA:!AES128-SHA", e2.String())
	assert.Equal(t, "TLS_CHACHA20_POLY1305_SHA256:TLS_AES_128_GCM_SHA256", e2.TLS13())
	assert.Equal(t, []string{"ECDHE-RSA-AES128-GCM-SHA256", "TLS_AES_256_GCM_SHA384", "AES128-SHA"}, e2.Excluded())

	//the original is not modified
	assert.Empty(t, e.Excluded())
	assert.True(t, e.Allows("AES128-SHA"))
	assert.False(t, e2.Allows("AES128-SHA"))
	assert.Nil(t, e2.Offered())
}

func TestExplicitExpression(t *testing.T) {
	e := Explicit("TLS_AES_128_GCM_SHA256", "ECDHE-RSA-AES256-SHA", "AES128-SHA")
	assert.Equal(t, "ECDHE-RSA-AES256-SHA:AES128-SHA", e.String())
	assert.Equal(t, "TLS_AES_128_GCM_SHA256", e.TLS13())
	assert.True(t, e.Allows("AES128-SHA"))
	assert.False(t, e.Allows("DES-CBC3-SHA"))

	e2 := e.Exclude("ECDHE-RSA-AES256-SHA")
	assert.Equal(t, []string{"TLS_AES_128_GCM_SHA256", "AES128-SHA"}, e2.Offered())
}

func TestHandshakeRequestArgs(t *testing.T) {
	tls12, _ := ProtocolByLabel("TLSv1.2")
	req := HandshakeRequest{
		Target:      "example.com:443",
		Protocol:    tls12,
		Ciphers:     NewExpression(DefaultCiphers, DefaultTLS13Suites),
		ServerName:  "example.com",
		CAFile:      "/etc/ssl/cert.pem",
		RequestOCSP: true,
		ShowCerts:   true,
	}
	args, err := req.Args()
	require.NoError(t, err)
	assert.Equal(t, "s_client -connect example.com:443 -CAfile /etc/ssl/cert.pem -showcerts -status -servername example.com -cipher ALL -tls1_2", strings.Join(args, " "))

	req.Protocol = Protocols[0]
	req.CAPath = "/etc/ssl/certs"
	args, err = req.Args()
	require.NoError(t, err)
	joined := strings.Join(args, " ")
	assert.NotContains(t, joined, "-servername", "SSLv2 hello cannot carry SNI")
	assert.Contains(t, joined, "-CApath /etc/ssl/certs")
	assert.NotContains(t, joined, "-CAfile")
	assert.True(t, strings.HasSuffix(joined, "-ssl2"))
}

func TestHandshakeRequestArgsTLS13(t *testing.T) {
	tls13, ok := ProtocolByLabel("TLSv1.3")
	require.True(t, ok)
	req := HandshakeRequest{
		Target:   "example.com:443",
		Protocol: tls13,
		Ciphers:  Explicit("AES128-SHA", "DES-CBC3-SHA"),
	}
	_, err := req.Args()
	assert.ErrorIs(t, err, ErrNoApplicableCiphers)

	req.Ciphers = NewExpression(DefaultCiphers, DefaultTLS13Suites)
	args, err := req.Args()
	require.NoError(t, err)
	assert.Contains(t, strings.Join(args, " "), "-ciphersuites TLS_AES_256_GCM_SHA384:TLS_CHACHA20_POLY1305_SHA256:TLS_AES_128_GCM_SHA256 -cipher ALL -tls1_3")

	tls1, _ := ProtocolByLabel("TLSv1")
	req.Protocol = tls1
	req.Ciphers = Explicit("TLS_AES_128_GCM_SHA256")
	_, err = req.Args()
	assert.ErrorIs(t, err, ErrNoApplicableCiphers)
}

func TestNewClientMissingBinary(t *testing.T) {
	_, err := NewClient("no-such-openssl-binary-for-tests", 0)
	assert.ErrorIs(t, err, ErrNoExecutor)
}
