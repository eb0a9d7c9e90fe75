package certstore

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"

	"github.com/pkg/errors"
)

//openssl spells signature algorithms differently from crypto/x509
var openSSLSignatureNames = map[x509.SignatureAlgorithm]string{
	x509.MD2WithRSA:       "md2WithRSAEncryption",
	x509.MD5WithRSA:       "md5WithRSAEncryption",
	x509.SHA1WithRSA:      "sha1WithRSAEncryption",
	x509.SHA256WithRSA:    "sha256WithRSAEncryption",
	x509.SHA384WithRSA:    "sha384WithRSAEncryption",
	x509.SHA512WithRSA:    "sha512WithRSAEncryption",
	x509.DSAWithSHA1:      "dsaWithSHA1",
	x509.DSAWithSHA256:    "dsa_with_SHA256",
	x509.ECDSAWithSHA1:    "ecdsa-with-SHA1",
	x509.ECDSAWithSHA256:  "ecdsa-with-SHA256",
	x509.ECDSAWithSHA384:  "ecdsa-with-SHA384",
	x509.ECDSAWithSHA512:  "ecdsa-with-SHA512",
	x509.SHA256WithRSAPSS: "rsassaPss",
	x509.SHA384WithRSAPSS: "rsassaPss",
	x509.SHA512WithRSAPSS: "rsassaPss",
	x509.PureEd25519:      "ED25519",
}

//ParsePEM decodes the first certificate block in pemCert
func ParsePEM(pemCert string) (*x509.Certificate, error) {
	block, _ := pem.Decode([]byte(pemCert))
	if block == nil {
		return nil, errors.New("no PEM data found")
	}
	if block.Type != "CERTIFICATE" {
		return nil, errors.Errorf("unexpected PEM block %s", block.Type)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, errors.Wrap(err, "parsing certificate")
	}
	return cert, nil
}

//Fingerprint is the hex SHA-256 digest of the certificate's DER encoding,
//falling back to the raw text when it does not decode
func Fingerprint(pemCert string) string {
	data := []byte(pemCert)
	if block, _ := pem.Decode(data); block != nil {
		data = block.Bytes
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

//X509Decoder reads certificate fields with crypto/x509
type X509Decoder struct{}

//SignatureAlgorithm returns the openssl name of the algorithm that signed the certificate
func (X509Decoder) SignatureAlgorithm(pemCert string) (string, error) {
	cert, err := ParsePEM(pemCert)
	if err != nil {
		return "", err
	}
	if name, ok := openSSLSignatureNames[cert.SignatureAlgorithm]; ok {
		return name, nil
	}
	if cert.SignatureAlgorithm == x509.UnknownSignatureAlgorithm {
		return "", errors.New("unknown signature algorithm")
	}
	return cert.SignatureAlgorithm.String(), nil
}
