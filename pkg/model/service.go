package tlsmodel

import (
	"bytes"
	"encoding/gob"
	"strings"
	"time"
)

//ServiceConfig is the YAML configuration of the scheduled cipherscan service
type ServiceConfig struct {
	//targets to scan: host, host:port, ip:port/cidr or a bare CIDR range
	Targets []string `yaml:"targets"`
	//times of day (HH:MM) to start a scan
	DailySchedules []string   `yaml:"dailySchedules"`
	IsProduction   bool       `yaml:"isProduction"`
	ServicePort    int        `yaml:"servicePort"`
	Scan           ScanConfig `yaml:"scan"`
}

//ScanRequest is a request to scan a set of targets. Config is chosen by the service and never
//travels over the API; clients adjust a scan through Options
type ScanRequest struct {
	Day     string
	ScanID  string
	Targets []string
	Options ScanOptions
	Config  ScanConfig `json:"-"`
}

//ScanOptions are the scan settings an API client may change. Nothing here names a file,
//a binary or extra arguments
type ScanOptions struct {
	Timeout    int    `json:"timeout,omitempty"`
	Delay      int    `json:"delay,omitempty"`
	AllCiphers bool   `json:"allCiphers,omitempty"`
	ServerName string `json:"serverName,omitempty"`
	StartTLS   string `json:"startTLS,omitempty"`
}

//Apply overrides the settings of base that the options set
func (o ScanOptions) Apply(base ScanConfig) ScanConfig {
	if o.Timeout > 0 {
		base.Timeout = o.Timeout
	}
	if o.Delay > 0 {
		base.Delay = o.Delay
	}
	if o.AllCiphers {
		base.AllCiphers = true
	}
	//values are handed to s_client as arguments, keep them from reading as flags
	if o.ServerName != "" && !strings.HasPrefix(o.ServerName, "-") {
		base.ServerName = o.ServerName
	}
	if o.StartTLS != "" && !strings.HasPrefix(o.StartTLS, "-") {
		base.StartTLS = o.StartTLS
	}
	return base
}

//PersistedScanRequest tracks the progress of a ScanRequest
type PersistedScanRequest struct {
	Request   ScanRequest
	Hosts     []string
	HostCount int
	Progress  int
	ScanStart time.Time
	ScanEnd   time.Time
}

//ScanProgress is streamed to websocket clients while a scan runs
type ScanProgress struct {
	ScanID      string
	Progress    float32
	ScanResults []HumanScanResult
	Narrative   string
}

//ScanSummary is a compact listing of a persisted scan
type ScanSummary struct {
	Request         ScanRequest
	HostCount       int
	Progress        int
	ScanStart       time.Time
	ScanEnd         time.Time
	ServerSideCount int
	TLSCount        int
}

//Count adds scan results to the summary's counts
func (s *ScanSummary) Count(results []ScanResult) {
	for _, r := range results {
		if r.SupportsTLS() {
			s.TLSCount++
			if r.ServerSideOrdering {
				s.ServerSideCount++
			}
		}
	}
}

//Marshall gob-encodes the persisted scan request
func (psr PersistedScanRequest) Marshall() []byte {
	result := bytes.Buffer{}
	if err := gob.NewEncoder(&result).Encode(&psr); err != nil {
		return nil
	}
	return result.Bytes()
}

//UnmarshallPersistedScanRequest decodes a gob-encoded PersistedScanRequest
func UnmarshallPersistedScanRequest(data []byte) (psr PersistedScanRequest, e error) {
	e = gob.NewDecoder(bytes.NewReader(data)).Decode(&psr)
	return
}

//MarshallScanResults gob-encodes scan results
func MarshallScanResults(s []ScanResult) ([]byte, error) {
	result := bytes.Buffer{}
	err := gob.NewEncoder(&result).Encode(&s)
	return result.Bytes(), err
}

//UnmarshallScanResults decodes gob-encoded scan results
func UnmarshallScanResults(data []byte) (s []ScanResult, e error) {
	e = gob.NewDecoder(bytes.NewReader(data)).Decode(&s)
	return
}
