package certstore

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const defaultAliasLimit = 256

//ErrAliasLimit is returned when every alias slot for a subject hash is already taken
var ErrAliasLimit = errors.New("subject hash alias limit reached")

//the on-disk index may be shared by registries of concurrent target scans
var indexLock sync.Mutex

//SubjectHasher computes the subject name hash used to name entries of a hashed CA directory
type SubjectHasher interface {
	SubjectHash(pemCert string) (string, error)
}

//TrustIndex maintains a CA directory in the layout `openssl -CApath` expects:
//each certificate stored as <fingerprint>.pem with a <subjecthash>.<n> symlink pointing at it
type TrustIndex struct {
	Dir    string
	Hasher SubjectHasher
	//Limit caps the alias numbers tried for one subject hash. Zero means 256
	Limit int
}

//Add saves the certificate and links it under its subject hash, reusing an existing
//alias when it already points at this certificate. It returns the alias name
func (ix TrustIndex) Add(fingerprint, pemCert string) (string, error) {
	if ix.Hasher == nil {
		return "", errors.New("trust index has no subject hasher")
	}
	hash, err := ix.Hasher.SubjectHash(pemCert)
	if err != nil {
		return "", errors.Wrapf(err, "subject hash of %s", fingerprint)
	}
	limit := ix.Limit
	if limit <= 0 {
		limit = defaultAliasLimit
	}

	indexLock.Lock()
	defer indexLock.Unlock()

	target := fingerprint + ".pem"
	if err := writeCertificate(ix.Dir, target, pemCert); err != nil {
		return "", err
	}
	for n := 0; n < limit; n++ {
		alias := fmt.Sprintf("%s.%d", hash, n)
		path := filepath.Join(ix.Dir, alias)
		existing, err := os.Readlink(path)
		switch {
		case err == nil && existing == target:
			return alias, nil
		case err == nil:
			continue
		case os.IsNotExist(err):
			if err := os.Symlink(target, path); err != nil {
				return "", errors.Wrapf(err, "linking %s", alias)
			}
			log.Debugf("Indexed %s as %s", target, alias)
			return alias, nil
		default:
			//a regular file or something unreadable occupies the slot
			continue
		}
	}
	return "", errors.Wrapf(ErrAliasLimit, "%s after %d attempts", hash, limit)
}

//SaveCertificate writes the certificate to dir as <fingerprint>.pem
func SaveCertificate(dir, fingerprint, pemCert string) error {
	return writeCertificate(dir, fingerprint+".pem", pemCert)
}

func writeCertificate(dir, name, pemCert string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "creating %s", dir)
	}
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := ioutil.WriteFile(path, []byte(pemCert), 0644); err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}
	return nil
}
