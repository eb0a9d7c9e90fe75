//Package transcript turns the text printed by `openssl s_client` into a HandshakeResult
package transcript

import (
	"bufio"
	"strconv"
	"strings"

	tlsmodel "github.com/adedayo/cipherscan/pkg/model"
	log "github.com/sirupsen/logrus"
)

const (
	beginCertificate = "-----BEGIN CERTIFICATE-----"
	endCertificate   = "-----END CERTIFICATE-----"
	ocspMarker       = "======================================"
	ocspResponseData = "OCSP Response Data"
)

//SignatureAlgorithmDecoder decodes a PEM certificate far enough to name its signature algorithm
type SignatureAlgorithmDecoder interface {
	SignatureAlgorithm(pemCert string) (string, error)
}

//Parser extracts handshake metadata from s_client transcripts
type Parser struct {
	Decoder SignatureAlgorithmDecoder
}

//Parse reads one transcript. It never fails: a transcript without a negotiated
//cipher (including an empty one) yields a result with CipherName == tlsmodel.NoCipher.
//The returned certificates are the PEM blocks in the order the server sent them
func (p Parser) Parse(raw string) (tlsmodel.HandshakeResult, []string) {
	result := tlsmodel.FailedHandshake()
	certificates := []string{}

	protocol := ""
	inOCSP := false
	inCert := false
	var cert strings.Builder

	scanner := bufio.NewScanner(strings.NewReader(raw))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		//the stapled OCSP response is printed between two marker lines and may
		//carry its own certificates; only note that it was there
		if strings.HasPrefix(line, ocspMarker) {
			inOCSP = !inOCSP
			continue
		}
		if inOCSP {
			if strings.Contains(line, ocspResponseData) {
				result.OCSPStapled = true
			}
			continue
		}

		switch {
		case line == beginCertificate:
			inCert = true
			cert.Reset()
		case inCert:
			//handled below
		case strings.HasPrefix(line, "New,") || strings.HasPrefix(line, "Reused,"):
			if fields := strings.Fields(line); len(fields) > 4 {
				result.CipherName = fields[4]
			}
		case strings.HasPrefix(line, "Server Temp Key:"):
			result.ForwardSecrecy = strings.Join(strings.Fields(strings.TrimPrefix(line, "Server Temp Key:")), "")
		case strings.HasPrefix(line, "Protocol"):
			if parts := strings.SplitN(line, ":", 2); len(parts) == 2 && strings.TrimSpace(parts[0]) == "Protocol" {
				protocol = strings.TrimSpace(parts[1])
			}
		case strings.Contains(line, "ticket lifetime hint"):
			if fields := strings.Fields(line); len(fields) > 5 {
				if hint, err := strconv.Atoi(fields[5]); err == nil {
					result.TicketHint = hint
				}
			}
		case strings.HasPrefix(line, "Server public key is "):
			if fields := strings.Fields(line); len(fields) > 4 {
				if bits, err := strconv.Atoi(fields[4]); err == nil {
					result.PublicKeyBits = bits
				}
			}
		case strings.HasPrefix(line, "Verify return code: 0 "):
			result.Trusted = true
		}

		if inCert {
			cert.WriteString(line)
			cert.WriteString("\n")
			if line == endCertificate {
				inCert = false
				//a block sent twice is kept, certificates are in chain order as presented
				certificates = append(certificates, cert.String())
			}
		}
	}
	if err := scanner.Err(); err != nil {
		log.Debugf("Truncated transcript: %s", err.Error())
	}

	switch result.CipherName {
	case "(NONE)", "0000", "":
		result.CipherName = tlsmodel.NoCipher
	}
	if protocol != "" {
		result.Protocols = []string{protocol}
	}

	if len(certificates) > 0 && p.Decoder != nil {
		if sigalg, err := p.Decoder.SignatureAlgorithm(certificates[0]); err == nil && sigalg != "" {
			result.SignatureAlgorithm = sigalg
		} else if err != nil {
			log.Debugf("Could not decode server certificate: %s", err.Error())
		}
	}
	return result, certificates
}

//Protocol returns the protocol a parsed result was negotiated with, if any
func Protocol(result tlsmodel.HandshakeResult) string {
	if len(result.Protocols) == 0 {
		return ""
	}
	return result.Protocols[len(result.Protocols)-1]
}
