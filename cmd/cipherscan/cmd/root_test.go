package cmd

import (
	"bytes"
	"io/ioutil"
	"path/filepath"
	"reflect"
	"testing"

	tlsmodel "github.com/adedayo/cipherscan/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetTargetsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "targets.txt")
	content := "example.com, example.org:8443 # production\n# comment only\n\n10.0.0.1:443/30\n"
	require.NoError(t, ioutil.WriteFile(path, []byte(content), 0644))

	targets, err := getTargetsFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"example.com", "example.org:8443", "10.0.0.1:443/30"}, targets)

	_, err = getTargetsFromFile(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestDeDuplicate(t *testing.T) {
	tests := []struct {
		in, want []string
	}{
		{[]string{"a", "b", "a", "c", "b"}, []string{"a", "b", "c"}},
		{[]string{}, []string{}},
		{[]string{"x"}, []string{"x"}},
	}
	for _, tt := range tests {
		got := append([]string{}, tt.in...)
		deDuplicate(&got)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("deDuplicate(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestOutputJSON(t *testing.T) {
	var buf bytes.Buffer
	results := []tlsmodel.ScanResult{{
		Server:             "example.com",
		Port:               "443",
		Ciphers:            tlsmodel.PreferenceList{{CipherName: "AES128-SHA", Protocols: []string{"TLSv1.2"}, TicketHint: tlsmodel.NoTicketHint}},
		ServerSideOrdering: true,
		Outcome:            tlsmodel.OutcomeRejected,
	}}
	require.NoError(t, outputJSON(&buf, results))
	assert.Contains(t, buf.String(), `"AES128-SHA"`)
	assert.Contains(t, buf.String(), `"True"`)
}
