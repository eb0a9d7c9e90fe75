//Package certstore keeps track of the certificates seen during a scan, decides which of them
//are CAs and which verify against the configured trust anchors, and optionally saves them to disk
package certstore

import (
	"crypto/x509"
	"sync"

	tlsmodel "github.com/adedayo/cipherscan/pkg/model"
	"github.com/cespare/xxhash/v2"
	log "github.com/sirupsen/logrus"
)

//Option configures a Registry
type Option func(*Registry)

//WithChecksum replaces the first-pass checksum function
func WithChecksum(checksum func([]byte) uint64) Option {
	return func(r *Registry) {
		r.checksum = checksum
	}
}

//WithTrustIndex saves verified CA certificates into a hashed CA directory
func WithTrustIndex(index TrustIndex) Option {
	return func(r *Registry) {
		r.index = &index
	}
}

//WithCertsDir saves every certificate that was not saved as trusted into dir
func WithCertsDir(dir string) Option {
	return func(r *Registry) {
		r.certsDir = dir
	}
}

//Registry deduplicates certificates for the lifetime of one scan
type Registry struct {
	mu          sync.Mutex
	checksum    func([]byte) uint64
	buckets     map[uint64][]*tlsmodel.CertificateRecord
	records     []*tlsmodel.CertificateRecord
	trust       *TrustStore
	verifiedCAs []*x509.Certificate
	index       *TrustIndex
	certsDir    string
}

//NewRegistry creates an empty registry verifying against trust. A nil trust store marks nothing verified
func NewRegistry(trust *TrustStore, options ...Option) *Registry {
	r := &Registry{
		checksum: xxhash.Sum64,
		buckets:  make(map[uint64][]*tlsmodel.CertificateRecord),
		trust:    trust,
	}
	for _, o := range options {
		o(r)
	}
	return r
}

//Register returns the record for pemCert, creating it on first sight. others are the
//remaining certificates of the same handshake and serve as untrusted intermediates
func (r *Registry) Register(pemCert string, others []string) tlsmodel.CertificateRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	sum := r.checksum([]byte(pemCert))
	for _, rec := range r.buckets[sum] {
		if rec.RawPEM == pemCert {
			return *rec
		}
	}

	rec := &tlsmodel.CertificateRecord{
		RawPEM:      pemCert,
		Checksum:    sum,
		Fingerprint: Fingerprint(pemCert),
	}
	cert, err := ParsePEM(pemCert)
	if err != nil {
		log.Warnf("Could not decode certificate %s: %s", rec.Fingerprint, err.Error())
	} else {
		rec.IsCA = cert.IsCA
		rec.Verified = r.verify(cert, pemCert, others)
		if rec.Verified && rec.IsCA {
			r.verifiedCAs = append(r.verifiedCAs, cert)
		}
	}
	r.save(rec)

	r.buckets[sum] = append(r.buckets[sum], rec)
	r.records = append(r.records, rec)
	return *rec
}

//RegisterChain registers every certificate of one handshake and returns their fingerprints in chain order
func (r *Registry) RegisterChain(chain []string) []string {
	fingerprints := make([]string, 0, len(chain))
	for i, c := range chain {
		others := make([]string, 0, len(chain)-1)
		others = append(others, chain[:i]...)
		others = append(others, chain[i+1:]...)
		fingerprints = append(fingerprints, r.Register(c, others).Fingerprint)
	}
	return fingerprints
}

//Records lists the distinct certificates in the order they were first seen
func (r *Registry) Records() []tlsmodel.CertificateRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]tlsmodel.CertificateRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, *rec)
	}
	return out
}

//Len is the number of distinct certificates registered
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

func (r *Registry) verify(cert *x509.Certificate, pemCert string, others []string) bool {
	if r.trust == nil || r.trust.Roots == nil {
		return false
	}
	intermediates := x509.NewCertPool()
	for _, o := range others {
		if o == pemCert {
			continue
		}
		if c, err := ParsePEM(o); err == nil {
			intermediates.AddCert(c)
		}
	}
	for _, c := range r.verifiedCAs {
		intermediates.AddCert(c)
	}
	_, err := cert.Verify(x509.VerifyOptions{
		Roots:         r.trust.Roots,
		Intermediates: intermediates,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	if err != nil {
		log.Debugf("Certificate %s does not verify: %s", cert.Subject.String(), err.Error())
		return false
	}
	return true
}

func (r *Registry) save(rec *tlsmodel.CertificateRecord) {
	if rec.Verified && rec.IsCA && r.index != nil && r.index.Dir != "" {
		if _, err := r.index.Add(rec.Fingerprint, rec.RawPEM); err != nil {
			log.Errorf("Could not add %s to trust directory: %s", rec.Fingerprint, err.Error())
		} else {
			return
		}
	}
	if r.certsDir != "" {
		if err := SaveCertificate(r.certsDir, rec.Fingerprint, rec.RawPEM); err != nil {
			log.Errorf("Could not save certificate %s: %s", rec.Fingerprint, err.Error())
		}
	}
}
