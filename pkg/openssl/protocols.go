package openssl

import (
	"crypto/tls"

	tlsdefs "github.com/adedayo/tls-definitions"
)

//Protocol is a protocol version selectable on the s_client command line
type Protocol struct {
	Flag    string
	Label   string
	Version uint16
	//SNI is false where the client hello cannot carry a server name
	SNI bool
	//TLS13 suites are configured with -ciphersuites rather than -cipher
	TLS13 bool
}

//Protocols is the order in which every round of a scan sweeps protocol versions.
//Oldest first, so that a server accepting only legacy protocols is still found
var Protocols = []Protocol{
	{Flag: "-ssl2", Label: "SSLv2", Version: tlsdefs.VersionSSL20},
	{Flag: "-ssl3", Label: "SSLv3", Version: tls.VersionSSL30, SNI: true},
	{Flag: "-tls1", Label: "TLSv1", Version: tls.VersionTLS10, SNI: true},
	{Flag: "-tls1_1", Label: "TLSv1.1", Version: tls.VersionTLS11, SNI: true},
	{Flag: "-tls1_2", Label: "TLSv1.2", Version: tls.VersionTLS12, SNI: true},
	{Flag: "-tls1_3", Label: "TLSv1.3", Version: tls.VersionTLS13, SNI: true, TLS13: true},
}

//ProtocolByLabel finds a protocol by the label s_client reports, e.g. TLSv1.2
func ProtocolByLabel(label string) (Protocol, bool) {
	for _, p := range Protocols {
		if p.Label == label {
			return p, true
		}
	}
	return Protocol{}, false
}
