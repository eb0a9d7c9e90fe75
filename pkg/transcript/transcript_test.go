package transcript

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	tlsmodel "github.com/adedayo/cipherscan/pkg/model"
)

const (
	leafPEM = `-----BEGIN CERTIFICATE-----
MIIBleafAAAA
-----END CERTIFICATE-----
`
	intermediatePEM = `-----BEGIN CERTIFICATE-----
MIIBintermediateBBBB
-----END CERTIFICATE-----
`
	responderPEM = `-----BEGIN CERTIFICATE-----
MIIBresponderCCCC
-----END CERTIFICATE-----
`
)

var successful = `CONNECTED(00000003)
depth=1 C = US, O = Example, CN = Example CA
verify return:1
depth=0 CN = example.com
verify return:1
OCSP response:
======================================
OCSP Response Data:
    OCSP Response Status: successful (0x0)
    Response Type: Basic OCSP Response
    Certificate:
` + responderPEM + `New, SSLv3, Cipher is RC4-MD5
    Protocol  : SSLv3
======================================
---
Certificate chain
 0 s:CN = example.com
   i:C = US, O = Example, CN = Example CA
` + leafPEM + ` 1 s:C = US, O = Example, CN = Example CA
   i:C = US, O = Example, CN = Example Root
` + intermediatePEM + `---
Server certificate
subject=CN = example.com
---
Peer signing digest: SHA256
Server Temp Key: ECDH, P-256, 256 bits
---
SSL handshake has read 3215 bytes and written 431 bytes
---
New, TLSv1/SSLv3, Cipher is ECDHE-RSA-AES128-GCM-SHA256
Server public key is 2048 bit
Secure Renegotiation IS supported
SSL-Session:
    Protocol  : TLSv1.2
    Cipher    : ECDHE-RSA-AES128-GCM-SHA256
    TLS session ticket lifetime hint: 300 (seconds)
    Verify return code: 0 (ok)
---
DONE
`

var failed = `CONNECTED(00000003)
139:error:14094410:SSL routines:ssl3_read_bytes:sslv3 alert handshake failure
---
no peer certificate available
---
New, (NONE), Cipher is (NONE)
SSL-Session:
    Protocol  : TLSv1.2
    Cipher    : 0000
    Verify return code: 0 (ok)
---
`

type fakeDecoder struct {
	sigalg string
	err    error
	seen   []string
}

func (f *fakeDecoder) SignatureAlgorithm(pem string) (string, error) {
	f.seen = append(f.seen, pem)
	return f.sigalg, f.err
}

func TestParseSuccessfulHandshake(t *testing.T) {
	decoder := &fakeDecoder{sigalg: "sha256WithRSAEncryption"}
	result, certs := Parser{Decoder: decoder}.Parse(successful)

	want := tlsmodel.HandshakeResult{
		CipherName:         "ECDHE-RSA-AES128-GCM-SHA256",
		Protocols:          []string{"TLSv1.2"},
		PublicKeyBits:      2048,
		SignatureAlgorithm: "sha256WithRSAEncryption",
		Trusted:            true,
		TicketHint:         300,
		OCSPStapled:        true,
		ForwardSecrecy:     "ECDH,P-256,256bits",
	}
	if !reflect.DeepEqual(result, want) {
		t.Errorf("Parse() = %#v, want %#v", result, want)
	}
	if !reflect.DeepEqual(certs, []string{leafPEM, intermediatePEM}) {
		t.Errorf("Parse() certificates = %#v", certs)
	}
	if len(decoder.seen) != 1 || decoder.seen[0] != leafPEM {
		t.Errorf("signature algorithm must be read from the leaf only, decoder saw %#v", decoder.seen)
	}
}

func TestParseOCSPBlockIsolation(t *testing.T) {
	//everything interesting lives inside the OCSP block
	raw := "======================================\n" +
		"OCSP Response Data:\n" +
		responderPEM +
		"New, TLSv1.2, Cipher is AES128-SHA\n" +
		"    Protocol  : TLSv1.2\n" +
		"Server public key is 4096 bit\n" +
		"======================================\n"
	result, certs := Parser{}.Parse(raw)
	if !result.OCSPStapled {
		t.Errorf("OCSP stapling not detected")
	}
	if result.Negotiated() || len(result.Protocols) != 0 || result.PublicKeyBits != 0 || len(certs) != 0 {
		t.Errorf("lines inside the OCSP block leaked into the result: %#v %#v", result, certs)
	}
}

func TestParseNoStapling(t *testing.T) {
	raw := strings.Replace(successful, "OCSP Response Data:", "OCSP Response Status: nothing", 1)
	if result, _ := (Parser{}).Parse(raw); result.OCSPStapled {
		t.Errorf("OCSP stapling reported without OCSP Response Data")
	}
}

func TestParseFailedHandshake(t *testing.T) {
	result, certs := Parser{Decoder: &fakeDecoder{sigalg: "x"}}.Parse(failed)
	if result.Negotiated() || result.CipherName != tlsmodel.NoCipher {
		t.Errorf("expected sentinel cipher, got %q", result.CipherName)
	}
	if Protocol(result) != "TLSv1.2" {
		t.Errorf("expected the protocol of the refused handshake, got %q", Protocol(result))
	}
	if result.SignatureAlgorithm != tlsmodel.NoSignatureAlgorithm || result.TicketHint != tlsmodel.NoTicketHint || len(certs) != 0 {
		t.Errorf("unexpected metadata on failure: %#v", result)
	}
}

func TestParseEmptyTranscript(t *testing.T) {
	result, certs := Parser{}.Parse("")
	if !reflect.DeepEqual(result, tlsmodel.FailedHandshake()) || len(certs) != 0 {
		t.Errorf("Parse(\"\") = %#v, %#v", result, certs)
	}
}

func TestParseUndecodableLeaf(t *testing.T) {
	result, _ := Parser{Decoder: &fakeDecoder{err: errors.New("bad certificate")}}.Parse(successful)
	if result.SignatureAlgorithm != tlsmodel.NoSignatureAlgorithm {
		t.Errorf("SignatureAlgorithm = %q, want %q", result.SignatureAlgorithm, tlsmodel.NoSignatureAlgorithm)
	}
}

func TestParseReusedSessionAndDuplicateLeaf(t *testing.T) {
	raw := leafPEM + leafPEM + "Reused, TLSv1.3, Cipher is TLS_AES_256_GCM_SHA384\nProtocol: TLSv1.3\nServer Temp Key: X25519, 253 bits\n"
	result, certs := Parser{}.Parse(raw)
	if result.CipherName != "TLS_AES_256_GCM_SHA384" || Protocol(result) != "TLSv1.3" || result.ForwardSecrecy != "X25519,253bits" {
		t.Errorf("unexpected result %#v", result)
	}
	if !reflect.DeepEqual(certs, []string{leafPEM, leafPEM}) {
		t.Errorf("expected both certificate blocks in order, got %d", len(certs))
	}
}
