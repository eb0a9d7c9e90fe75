package certstore

import (
	"crypto/x509"
	"encoding/asn1"
	"encoding/pem"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/fullsailor/pkcs7"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

//ErrNoTrustAnchors is returned when the configured trust source yields no certificates
var ErrNoTrustAnchors = errors.New("no trust anchors found")

//TrustStore holds the anchors chains are verified against
type TrustStore struct {
	Roots  *x509.CertPool
	Source string
	count  int
}

//NewTrustStore builds a trust store from in-memory anchors
func NewTrustStore(anchors ...*x509.Certificate) *TrustStore {
	ts := &TrustStore{Roots: x509.NewCertPool(), Source: "memory"}
	for _, c := range anchors {
		ts.Roots.AddCert(c)
		ts.count++
	}
	return ts
}

//Size is the number of anchors loaded from a file or directory. It is zero for the system pool
func (ts *TrustStore) Size() int {
	return ts.count
}

//LoadTrustStore reads trust anchors from a CA directory, a bundle file (PEM or PKCS#7),
//or, when neither is given, the system pool. A source without any certificate is a configuration error
func LoadTrustStore(caFile, caPath string) (*TrustStore, error) {
	switch {
	case caPath != "":
		return loadDirectory(caPath)
	case caFile != "":
		certs, err := loadFile(caFile)
		if err != nil {
			return nil, err
		}
		if len(certs) == 0 {
			return nil, errors.Wrapf(ErrNoTrustAnchors, "%s", caFile)
		}
		ts := NewTrustStore(certs...)
		ts.Source = caFile
		return ts, nil
	default:
		pool, err := x509.SystemCertPool()
		if err != nil || pool == nil {
			return nil, errors.Wrapf(ErrNoTrustAnchors, "system pool: %v", err)
		}
		return &TrustStore{Roots: pool, Source: "system"}, nil
	}
}

func loadDirectory(dir string) (*TrustStore, error) {
	entries, err := ioutil.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(ErrNoTrustAnchors, "%s: %v", dir, err)
	}
	ts := NewTrustStore()
	ts.Source = dir
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		//hashed aliases are symlinks; follow them but skip anything that is not a file
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		certs, err := loadFile(path)
		if err != nil {
			log.Debugf("Skipping %s: %s", path, err.Error())
			continue
		}
		for _, c := range certs {
			ts.Roots.AddCert(c)
			ts.count++
		}
	}
	if ts.count == 0 {
		return nil, errors.Wrapf(ErrNoTrustAnchors, "%s", dir)
	}
	return ts, nil
}

func loadFile(path string) ([]*x509.Certificate, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	return decodeBundle(data)
}

//leadingCertificate drops the OpenSSL trust settings that follow the certificate in a
//TRUSTED CERTIFICATE block
func leadingCertificate(der []byte) []byte {
	var cert asn1.RawValue
	rest, err := asn1.Unmarshal(der, &cert)
	if err != nil {
		return der
	}
	return der[:len(der)-len(rest)]
}

//decodeBundle accepts concatenated PEM certificates, PEM-armoured PKCS#7 or a DER PKCS#7 blob
func decodeBundle(data []byte) ([]*x509.Certificate, error) {
	certs := []*x509.Certificate{}
	rest := data
	sawPEM := false
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		sawPEM = true
		switch block.Type {
		case "CERTIFICATE", "TRUSTED CERTIFICATE":
			if c, err := x509.ParseCertificate(leadingCertificate(block.Bytes)); err == nil {
				certs = append(certs, c)
			} else {
				log.Debugf("Skipping undecodable certificate: %s", err.Error())
			}
		case "PKCS7":
			if p7, err := pkcs7.Parse(block.Bytes); err == nil {
				certs = append(certs, p7.Certificates...)
			}
		}
	}
	if sawPEM {
		return certs, nil
	}
	p7, err := pkcs7.Parse(data)
	if err != nil {
		return nil, errors.Wrap(err, "neither PEM nor PKCS#7")
	}
	return p7.Certificates, nil
}
