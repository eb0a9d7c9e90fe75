package asciidoc

import (
	"io/ioutil"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	tlsmodel "github.com/adedayo/cipherscan/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var results = []tlsmodel.HumanScanResult{
	{
		Target:     "example.com:443",
		ServerName: "example.com",
		ServerSide: "True",
		CipherSuites: []tlsmodel.HumanCipher{
			{Cipher: "ECDHE-RSA-AES128-GCM-SHA256", Protocols: []string{"TLSv1.2"}, PublicKey: "2048", PFS: "ECDH,P-256,256bits"},
			{Cipher: "AES128-SHA", Protocols: []string{"TLSv1", "TLSv1.1", "TLSv1.2"}, PFS: "None"},
		},
	},
	{
		Target:     "example.org:443",
		ServerSide: "False",
		CipherSuites: []tlsmodel.HumanCipher{
			{Cipher: "TLS_AES_128_GCM_SHA256", Protocols: []string{"TLSv1.3"}},
		},
	},
	{
		Target:     "192.0.2.1:443",
		ServerSide: "True",
		Outcome:    "exhausted",
		Notes:      []string{"no protocol version could connect"},
	},
}

func TestCounts(t *testing.T) {
	wantProtocols := []bar{{"SSLv2", 0}, {"SSLv3", 0}, {"TLSv1", 1}, {"TLSv1.1", 1}, {"TLSv1.2", 1}, {"TLSv1.3", 1}}
	if got := protocolCounts(results); !reflect.DeepEqual(got, wantProtocols) {
		t.Errorf("protocolCounts() = %v, want %v", got, wantProtocols)
	}

	wantOrdering := []bar{{"Server side", 1}, {"Client side", 1}, {"No TLS", 1}}
	if got := orderingCounts(results); !reflect.DeepEqual(got, wantOrdering) {
		t.Errorf("orderingCounts() = %v, want %v", got, wantOrdering)
	}

	wantCiphers := []bar{{"SSLv2", 0}, {"SSLv3", 0}, {"TLSv1", 1}, {"TLSv1.1", 1}, {"TLSv1.2", 2}, {"TLSv1.3", 0}}
	if got := cipherCounts(results[0]); !reflect.DeepEqual(got, wantCiphers) {
		t.Errorf("cipherCounts() = %v, want %v", got, wantCiphers)
	}
}

func TestGenerateReportWithoutAsciidoctor(t *testing.T) {
	previous := asciidocExec
	asciidocExec = "cipherscan-missing-asciidoctor"
	defer func() { asciidocExec = previous }()

	dir := t.TempDir()
	summary := tlsmodel.ScanSummary{
		Request: tlsmodel.ScanRequest{
			ScanID:  "scan-1",
			Targets: []string{"example.com", "example.org", "192.0.2.1"},
		},
		HostCount:       3,
		Progress:        3,
		ScanStart:       time.Date(2021, 12, 1, 10, 0, 0, 0, time.UTC),
		ServerSideCount: 1,
		TLSCount:        2,
	}

	path, err := GenerateReport(summary, results, "1.0.0", dir)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, ".adoc"))

	data, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	doc := string(data)
	assert.Contains(t, doc, ":author: cipherscan v1.0.0")
	assert.Contains(t, doc, "| Scan ID | scan-1")
	assert.Contains(t, doc, "| Targets requested | example.com, example.org, 192.0.2.1")
	assert.Contains(t, doc, "=== example.com:443 (example.com)")
	assert.Contains(t, doc, "| 2 | AES128-SHA | TLSv1, TLSv1.1, TLSv1.2 |")
	assert.Contains(t, doc, "No cipher could be negotiated (exhausted)")
	assert.Contains(t, doc, "NOTE: no protocol version could connect")

	charts, err := filepath.Glob(filepath.Join(dir, "cipherscan_chart.*.svg"))
	require.NoError(t, err)
	assert.Len(t, charts, 4)
	for _, c := range charts {
		assert.Contains(t, doc, c)
	}
}

func TestCipherRows(t *testing.T) {
	rows := cipherRows(results[1].CipherSuites)
	assert.Equal(t, "| 1 | TLS_AES_128_GCM_SHA256 | TLSv1.3 |  |  |  |  |  | \n", rows)
}
