package tlsmodel

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

//HumanCipher is the printable form of a HandshakeResult
type HumanCipher struct {
	Cipher             string   `json:"cipher"`
	Protocols          []string `json:"protocols"`
	PublicKey          string   `json:"pubkey"`
	SignatureAlgorithm string   `json:"sigalg"`
	Trusted            string   `json:"trusted"`
	TicketHint         string   `json:"ticket_hint"`
	OCSPStapling       string   `json:"ocsp_stapling"`
	PFS                string   `json:"pfs"`
	KeyExchange        string   `json:"kx,omitempty"`
	Certificates       []string `json:"certificates,omitempty"`
}

//HumanScanResult is a Stringified version of ScanResult
type HumanScanResult struct {
	Target       string        `json:"target"`
	ServerName   string        `json:"servername,omitempty"`
	Timestamp    string        `json:"utctimestamp"`
	ServerSide   string        `json:"serverside"`
	Outcome      string        `json:"outcome,omitempty"`
	CipherSuites []HumanCipher `json:"ciphersuite"`
	Divergent    []string      `json:"divergent,omitempty"`
	Notes        []string      `json:"notes,omitempty"`
	Handshakes   int           `json:"handshakes"`
}

func pyBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

func ticketHint(hint int) string {
	if hint == NoTicketHint {
		return "None"
	}
	return strconv.Itoa(hint)
}

func pfs(h HandshakeResult) string {
	if h.ForwardSecrecy == "" {
		return "None"
	}
	return h.ForwardSecrecy
}

//DivergentFields names the fields flagged in the Divergence
func (d Divergence) DivergentFields() (fields []string) {
	if d.PublicKey {
		fields = append(fields, "pubkey")
	}
	if d.SignatureAlgorithm {
		fields = append(fields, "sigalg")
	}
	if d.Trust {
		fields = append(fields, "trusted")
	}
	if d.TicketHint {
		fields = append(fields, "ticket_hint")
	}
	if d.OCSPStapling {
		fields = append(fields, "ocsp_stapling")
	}
	if d.LeafCertificate {
		fields = append(fields, "certificate")
	}
	return
}

//ToHumanCipher returns a printable HandshakeResult
func (h HandshakeResult) ToHumanCipher(withCerts bool) HumanCipher {
	out := HumanCipher{
		Cipher:             h.CipherName,
		Protocols:          h.Protocols,
		PublicKey:          strconv.Itoa(h.PublicKeyBits),
		SignatureAlgorithm: h.SignatureAlgorithm,
		Trusted:            pyBool(h.Trusted),
		TicketHint:         ticketHint(h.TicketHint),
		OCSPStapling:       pyBool(h.OCSPStapled),
		PFS:                pfs(h),
	}
	if cc, err := GetCipherConfig(h.CipherName); err == nil {
		out.KeyExchange = cc.KeyExchange
	}
	if withCerts {
		out.Certificates = h.CertificateFingerprints
	}
	return out
}

//ToStringStruct returns a string-decoded form of ScanResult
func (s ScanResult) ToStringStruct() (out HumanScanResult) {
	out.Target = s.Target()
	out.ServerName = s.ServerName
	out.Timestamp = s.ScanStart.UTC().Format(time.RFC3339)
	out.ServerSide = pyBool(s.ServerSideOrdering)
	out.Outcome = string(s.Outcome)
	out.CipherSuites = []HumanCipher{}
	for _, h := range s.Ciphers {
		out.CipherSuites = append(out.CipherSuites, h.ToHumanCipher(true))
	}
	out.Divergent = s.Divergence.DivergentFields()
	out.Notes = s.Notes
	out.Handshakes = s.Handshakes
	return
}

//ToJSON returns a JSON-formatted string representation of the ScanResult
func (s ScanResult) ToJSON() (js string) {
	if data, err := json.Marshal(s.ToStringStruct()); err == nil {
		js = string(data)
	}
	return
}

//ToString generates a string output
func (s ScanResult) ToString(config ScanConfig) (result string) {
	result += fmt.Sprintf("Target: %s\n", s.Target())
	if s.ServerName != "" {
		result += fmt.Sprintf("\tServer name: %s\n", s.ServerName)
	}
	if !s.SupportsTLS() {
		result += "\tNo cipher could be negotiated\n"
		for _, n := range s.Notes {
			result += fmt.Sprintf("\tNote: %s\n", n)
		}
		return
	}
	perCipher := s.Divergence.Any()
	format := "\t%-4s %-32s %-24s %-8s %-24s %-8s %-12s %-6s %s\n"
	result += fmt.Sprintf(format, "prio", "ciphersuite", "protocols", "pubkey", "signature", "trusted", "ticket_hint", "ocsp", "pfs")
	for i, h := range s.Ciphers {
		hc := h.ToHumanCipher(false)
		if perCipher || i == 0 {
			result += fmt.Sprintf(format, strconv.Itoa(i+1), hc.Cipher, strings.Join(hc.Protocols, ","), hc.PublicKey, hc.SignatureAlgorithm, hc.Trusted, hc.TicketHint, hc.OCSPStapling, hc.PFS)
		} else {
			result += fmt.Sprintf(format, strconv.Itoa(i+1), hc.Cipher, strings.Join(hc.Protocols, ","), "", "", "", "", "", hc.PFS)
		}
	}
	if perCipher {
		result += fmt.Sprintf("\tEntries differ in: %s\n", strings.Join(s.Divergence.DivergentFields(), ", "))
	}
	if s.ServerSideOrdering {
		result += "\tServer side cipher ordering\n"
	} else {
		result += "\tClient side cipher ordering\n"
	}
	if !config.HideCerts && len(s.Certificates) > 0 {
		result += "\tCertificates:\n"
		for _, c := range s.Certificates {
			result += fmt.Sprintf("\t\t%s (CA: %t, verified: %t)\n", c.Fingerprint, c.IsCA, c.Verified)
		}
	}
	for _, n := range s.Notes {
		result += fmt.Sprintf("\tNote: %s\n", n)
	}
	return
}

func (s ScanResult) String() string {
	return s.ToString(ScanConfig{})
}
