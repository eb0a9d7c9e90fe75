package tlsmodel

import (
	"fmt"
	"strings"
	"time"
)

const (
	//NoCipher is the cipher name recorded when no cipher could be negotiated
	NoCipher = "none"
	//NoSignatureAlgorithm is recorded when the leaf certificate could not be decoded
	NoSignatureAlgorithm = "none"
	//NoTicketHint is recorded when the server announced no session ticket
	NoTicketHint = -1
)

//Outcome describes how cipher preference discovery for a target came to an end
type Outcome string

const (
	//OutcomeExhausted no protocol version connected with the remaining candidate ciphers
	OutcomeExhausted Outcome = "exhausted"
	//OutcomeRejected the server answered but refused every remaining candidate cipher
	OutcomeRejected Outcome = "rejected"
	//OutcomeRepeated the server selected a cipher that was already discovered
	OutcomeRepeated Outcome = "repeated"
)

//CipherConfig extracts the important elements of an OpenSSL cipher suite name
type CipherConfig struct {
	Cipher         string
	KeyExchange    string
	Authentication string
	Encryption     string
	MAC            string
}

//IsForwardSecret returns whether the key exchange uses ephemeral keys
func (cc *CipherConfig) IsForwardSecret() bool {
	switch cc.KeyExchange {
	case "ECDHE", "DHE", "EDH", "TLS13":
		return true
	}
	return false
}

//IsAuthenticated returns whether the cipher authenticates the server
func (cc *CipherConfig) IsAuthenticated() bool {
	return !(cc.Authentication == "NULL" || cc.Authentication == "anon")
}

//GetCipherConfig extracts a `CipherConfig` from an OpenSSL cipher name such as ECDHE-RSA-AES128-GCM-SHA256.
//TLS 1.3 suites (TLS_AES_128_GCM_SHA256) are recognised by their prefix
func GetCipherConfig(cipher string) (config CipherConfig, err error) {
	config.Cipher = cipher
	if cipher == "" || cipher == NoCipher {
		return config, fmt.Errorf("Expects a cipher name but got %q", cipher)
	}
	if strings.HasPrefix(cipher, "TLS_") {
		parts := strings.Split(strings.TrimPrefix(cipher, "TLS_"), "_")
		if len(parts) < 2 {
			return config, fmt.Errorf("Malformed TLS 1.3 cipher suite name %s", cipher)
		}
		config.KeyExchange = "TLS13"
		config.Authentication = "TLS13"
		config.MAC = parts[len(parts)-1]
		config.Encryption = strings.Join(parts[:len(parts)-1], "_")
		return
	}
	parts := strings.Split(cipher, "-")
	mac := parts[len(parts)-1]
	if strings.HasPrefix(mac, "SHA") || mac == "MD5" || mac == "POLY1305" {
		config.MAC = mac
		parts = parts[:len(parts)-1]
	}
	switch {
	case len(parts) == 0:
		return config, fmt.Errorf("Could not determine encryption algorithm of %s", cipher)
	case strings.HasPrefix(parts[0], "ECDHE") || strings.HasPrefix(parts[0], "DHE") || strings.HasPrefix(parts[0], "EDH"):
		config.KeyExchange = parts[0]
		if len(parts) > 2 {
			config.Authentication = parts[1]
			parts = parts[2:]
		} else {
			config.Authentication = "RSA"
			parts = parts[1:]
		}
	case parts[0] == "ADH" || parts[0] == "AECDH":
		config.KeyExchange = parts[0]
		config.Authentication = "anon"
		parts = parts[1:]
	case parts[0] == "PSK" || parts[0] == "SRP" || parts[0] == "RSA" || parts[0] == "NULL" || parts[0] == "EXP":
		config.KeyExchange = parts[0]
		config.Authentication = parts[0]
		parts = parts[1:]
	default:
		//plain RSA key exchange is implied: AES128-SHA, DES-CBC3-SHA
		config.KeyExchange = "RSA"
		config.Authentication = "RSA"
	}
	config.Encryption = strings.Join(parts, "-")
	if config.Encryption == "" {
		config.Encryption = "NULL"
	}
	return
}

//HandshakeResult is the outcome of one cipher negotiation
type HandshakeResult struct {
	CipherName              string
	Protocols               []string
	PublicKeyBits           int
	SignatureAlgorithm      string
	Trusted                 bool
	TicketHint              int
	OCSPStapled             bool
	ForwardSecrecy          string
	CertificateFingerprints []string
}

//FailedHandshake returns a result with every field at its unknown value
func FailedHandshake() HandshakeResult {
	return HandshakeResult{
		CipherName:         NoCipher,
		SignatureAlgorithm: NoSignatureAlgorithm,
		TicketHint:         NoTicketHint,
	}
}

//Negotiated reports whether a cipher was selected
func (h HandshakeResult) Negotiated() bool {
	return h.CipherName != "" && h.CipherName != NoCipher
}

//LeafFingerprint returns the SHA-256 fingerprint of the server certificate, if any
func (h HandshakeResult) LeafFingerprint() string {
	if len(h.CertificateFingerprints) == 0 {
		return ""
	}
	return h.CertificateFingerprints[0]
}

//CertificateRecord is a distinct certificate observed during a scan
type CertificateRecord struct {
	RawPEM      string
	Checksum    uint64
	Fingerprint string
	IsCA        bool
	Verified    bool
}

//PreferenceList holds negotiated ciphers in discovery order, most preferred first
type PreferenceList []HandshakeResult

//Contains reports whether the cipher is already in the list
func (p PreferenceList) Contains(cipher string) bool {
	for _, h := range p {
		if h.CipherName == cipher {
			return true
		}
	}
	return false
}

//CipherNames lists the cipher names in preference order
func (p PreferenceList) CipherNames() []string {
	names := make([]string, 0, len(p))
	for _, h := range p {
		names = append(names, h.CipherName)
	}
	return names
}

//Divergence flags fields whose values differ between entries of a preference list.
//Entries normally share the same certificate, so any flag set here is worth showing per cipher
type Divergence struct {
	PublicKey          bool
	SignatureAlgorithm bool
	Trust              bool
	TicketHint         bool
	OCSPStapling       bool
	LeafCertificate    bool
}

//Any is true when at least one field diverges
func (d Divergence) Any() bool {
	return d.PublicKey || d.SignatureAlgorithm || d.Trust || d.TicketHint || d.OCSPStapling || d.LeafCertificate
}

//ComputeDivergence compares every entry against the first
func ComputeDivergence(p PreferenceList) (d Divergence) {
	if len(p) < 2 {
		return
	}
	first := p[0]
	for _, h := range p[1:] {
		d.PublicKey = d.PublicKey || h.PublicKeyBits != first.PublicKeyBits
		d.SignatureAlgorithm = d.SignatureAlgorithm || h.SignatureAlgorithm != first.SignatureAlgorithm
		d.Trust = d.Trust || h.Trusted != first.Trusted
		d.TicketHint = d.TicketHint || h.TicketHint != first.TicketHint
		d.OCSPStapling = d.OCSPStapling || h.OCSPStapled != first.OCSPStapled
		d.LeafCertificate = d.LeafCertificate || h.LeafFingerprint() != first.LeafFingerprint()
	}
	return
}

//ScanConfig describes details of how the cipher scan should be carried out
type ScanConfig struct {
	//path or name of the openssl binary used to perform handshakes
	OpenSSL string `yaml:"openssl"`
	//per-handshake timeout in seconds
	Timeout int `yaml:"timeout"`
	//Number of Packets per Second to send out during port discovery
	PacketsPerSecond int `yaml:"packetsPerSecond"`
	//delay between consecutive handshakes in milliseconds
	Delay int `yaml:"delay"`
	//probe ALL:COMPLEMENTOFALL instead of ALL
	AllCiphers bool     `yaml:"allCiphers"`
	ServerName string   `yaml:"serverName"`
	StartTLS   string   `yaml:"startTLS"`
	ExtraArgs  []string `yaml:"extraArgs"`
	CAFile     string   `yaml:"caFile"`
	CAPath     string   `yaml:"caPath"`
	//save verified CA certificates into a hashed trust directory
	TrustDir string `yaml:"trustDir"`
	//save every other scanned certificate here
	CertsDir string `yaml:"certsDir"`
	//Suppress certificate output
	HideCerts bool `yaml:"hideCerts"`
	//control whether to produce a running commentary of scan progress or stay quiet till the end
	Quiet bool `yaml:"quiet"`
}

//WithDefaults fills in unset values
func (c ScanConfig) WithDefaults() ScanConfig {
	if c.OpenSSL == "" {
		c.OpenSSL = "openssl"
	}
	if c.Timeout <= 0 {
		c.Timeout = 10
	}
	if c.PacketsPerSecond <= 0 {
		c.PacketsPerSecond = 1000
	}
	if c.Delay < 0 {
		c.Delay = 0
	}
	return c
}

//HandshakeTimeout is the configured timeout as a duration
func (c ScanConfig) HandshakeTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

//HostAndPort is a model representing a hostname and a given port
type HostAndPort struct {
	Hostname string
	Port     string
}

//String returns the host:port form
func (hp HostAndPort) String() string {
	if strings.Contains(hp.Hostname, ":") {
		return fmt.Sprintf("[%s]:%s", hp.Hostname, hp.Port)
	}
	return fmt.Sprintf("%s:%s", hp.Hostname, hp.Port)
}

// ScanResult is the result of a cipher preference scan of one endpoint
type ScanResult struct {
	Server             string
	Port               string
	ServerName         string
	ScanStart          time.Time
	ScanEnd            time.Time
	Ciphers            PreferenceList
	ServerSideOrdering bool
	Certificates       []CertificateRecord
	Outcome            Outcome
	Notes              []string
	Divergence         Divergence
	Handshakes         int
}

// SupportsTLS determines whether any cipher could be negotiated at all
func (s ScanResult) SupportsTLS() bool {
	return len(s.Ciphers) > 0
}

//Target returns the host:port that was scanned
func (s ScanResult) Target() string {
	return HostAndPort{Hostname: s.Server, Port: s.Port}.String()
}

//Certificate looks up a certificate record by fingerprint
func (s ScanResult) Certificate(fingerprint string) (CertificateRecord, bool) {
	for _, c := range s.Certificates {
		if c.Fingerprint == fingerprint {
			return c, true
		}
	}
	return CertificateRecord{}, false
}
