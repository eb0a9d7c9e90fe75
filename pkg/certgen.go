package cipherscan

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
)

var (
	certsPath = filepath.FromSlash(".cipherscan/certs")
)

func init() {
	if home, err := homedir.Expand(filepath.FromSlash("~/.cipherscan/certs")); err == nil {
		certsPath = home
	}
}

func serialNumber() (*big.Int, error) {
	return rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
}

func genRootCert() (*x509.Certificate, *ecdsa.PrivateKey, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	if _, err = saveKey("rootCAKey.key", key); err != nil {
		return nil, key, err
	}
	serialNo, err := serialNumber()
	if err != nil {
		return nil, key, err
	}
	notBefore := time.Now()
	template := x509.Certificate{
		SerialNumber:          serialNo,
		NotBefore:             notBefore,
		NotAfter:              notBefore.AddDate(10, 0, 0),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		Subject: pkix.Name{
			Organization: []string{"Cipherscan Root"},
			CommonName:   "Cipherscan Root CA",
		},
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, key, err
	}
	if _, err = saveCert("rootCACert.pem", der); err != nil {
		return nil, key, err
	}
	cert, err := x509.ParseCertificate(der)
	return cert, key, err
}

//genCerts returns the certificate and key the API is served with. A pair supplied as
//cipherscan.pem and cipherscan.key in the certificates directory wins over a generated one
func genCerts() (certFile, keyFile string, err error) {
	if err := os.MkdirAll(certsPath, 0755); err != nil {
		return certFile, keyFile, errors.Wrapf(err, "creating %s", certsPath)
	}
	suppliedCert := filepath.Join(certsPath, "cipherscan.pem")
	suppliedKey := filepath.Join(certsPath, "cipherscan.key")
	if _, err := os.Stat(suppliedCert); err == nil {
		if _, err := os.Stat(suppliedKey); err == nil {
			return suppliedCert, suppliedKey, nil
		}
	}
	rootCert, rootKey, err := genRootCert()
	if err != nil {
		return certFile, keyFile, err
	}
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return certFile, keyFile, err
	}
	keyFile, err = saveKey("cipherscan-self-signed.key", key)
	if err != nil {
		return certFile, keyFile, err
	}
	serialNo, err := serialNumber()
	if err != nil {
		return certFile, keyFile, err
	}
	notBefore := time.Now()
	template := x509.Certificate{
		SerialNumber:          serialNo,
		NotBefore:             notBefore,
		NotAfter:              notBefore.AddDate(0, 6, 0),
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		Subject: pkix.Name{
			Organization: []string{"Cipherscan"},
			CommonName:   "Cipherscan API",
		},
		DNSNames: []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, rootCert, &key.PublicKey, rootKey)
	if err != nil {
		return certFile, keyFile, err
	}
	certFile, err = saveCert("cipherscan-self-signed-cert.pem", der)
	return certFile, keyFile, err
}

func saveKey(fileName string, key *ecdsa.PrivateKey) (string, error) {
	fileName = filepath.Join(certsPath, fileName)
	kb, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return fileName, err
	}
	file, err := os.OpenFile(fileName, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fileName, err
	}
	defer file.Close()
	return fileName, pem.Encode(file, &pem.Block{Type: "EC PRIVATE KEY", Bytes: kb})
}

func saveCert(fileName string, der []byte) (string, error) {
	fileName = filepath.Join(certsPath, fileName)
	file, err := os.Create(fileName)
	if err != nil {
		return fileName, err
	}
	defer file.Close()
	return fileName, pem.Encode(file, &pem.Block{Type: "CERTIFICATE", Bytes: der})
}
