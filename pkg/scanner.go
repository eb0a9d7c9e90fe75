//Package cipherscan discovers the cipher suites a TLS endpoint accepts, in the order it prefers them
package cipherscan

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/adedayo/cipherscan/pkg/certstore"
	tlsmodel "github.com/adedayo/cipherscan/pkg/model"
	"github.com/adedayo/cipherscan/pkg/openssl"
	"github.com/adedayo/cipherscan/pkg/transcript"
	log "github.com/sirupsen/logrus"
	"go.uber.org/ratelimit"
)

//HandshakeExecutor performs one handshake and returns its raw transcript
type HandshakeExecutor interface {
	Handshake(ctx context.Context, req openssl.HandshakeRequest) (string, error)
}

//Option customises a Scanner
type Option func(*Scanner)

//WithExecutor replaces the openssl s_client executor
func WithExecutor(executor HandshakeExecutor) Option {
	return func(s *Scanner) {
		s.executor = executor
	}
}

//WithTrustStore replaces the trust anchors loaded from the configuration
func WithTrustStore(trust *certstore.TrustStore) Option {
	return func(s *Scanner) {
		s.trust = trust
	}
}

//WithSubjectHasher replaces the subject hasher used to index saved CA certificates
func WithSubjectHasher(hasher certstore.SubjectHasher) Option {
	return func(s *Scanner) {
		s.hasher = hasher
	}
}

//Scanner runs cipher preference scans. The certificate registry it holds is shared by every
//target scanned with it, so a Scanner corresponds to one scan run
type Scanner struct {
	config   tlsmodel.ScanConfig
	executor HandshakeExecutor
	trust    *certstore.TrustStore
	hasher   certstore.SubjectHasher
	registry *certstore.Registry
	parser   transcript.Parser
	limiter  ratelimit.Limiter
}

//NewScanner validates the configuration. A missing openssl binary or a trust source
//without anchors are the only errors a scan can return
func NewScanner(config tlsmodel.ScanConfig, options ...Option) (*Scanner, error) {
	config = config.WithDefaults()
	s := &Scanner{
		config: config,
		parser: transcript.Parser{Decoder: certstore.X509Decoder{}},
	}
	for _, o := range options {
		o(s)
	}
	if s.executor == nil {
		client, err := openssl.NewClient(config.OpenSSL, config.HandshakeTimeout())
		if err != nil {
			return nil, err
		}
		s.executor = client
	}
	if s.trust == nil {
		trust, err := certstore.LoadTrustStore(config.CAFile, config.CAPath)
		if err != nil {
			return nil, err
		}
		s.trust = trust
	}
	if s.hasher == nil {
		s.hasher = openssl.Toolkit{Binary: config.OpenSSL, Timeout: config.HandshakeTimeout()}
	}

	registryOptions := []certstore.Option{}
	if config.TrustDir != "" {
		registryOptions = append(registryOptions, certstore.WithTrustIndex(certstore.TrustIndex{
			Dir:    config.TrustDir,
			Hasher: s.hasher,
		}))
	}
	if config.CertsDir != "" {
		registryOptions = append(registryOptions, certstore.WithCertsDir(config.CertsDir))
	}
	s.registry = certstore.NewRegistry(s.trust, registryOptions...)

	if config.Delay > 0 {
		s.limiter = ratelimit.New(1, ratelimit.Per(time.Duration(config.Delay)*time.Millisecond), ratelimit.WithoutSlack)
	} else {
		s.limiter = ratelimit.NewUnlimited()
	}
	return s, nil
}

//Config returns the effective configuration
func (s *Scanner) Config() tlsmodel.ScanConfig {
	return s.config
}

//Registry exposes the certificates seen so far
func (s *Scanner) Registry() *certstore.Registry {
	return s.registry
}

//ScanTarget discovers the cipher preference list of one endpoint and whether the server
//imposes its own ordering. serverName overrides the configured SNI value; when both are
//empty a hostname target is its own server name
func (s *Scanner) ScanTarget(ctx context.Context, hostPort tlsmodel.HostAndPort, serverName string) tlsmodel.ScanResult {
	if serverName == "" {
		serverName = s.config.ServerName
	}
	if serverName == "" && net.ParseIP(hostPort.Hostname) == nil {
		serverName = hostPort.Hostname
	}
	ts := &targetScan{
		scanner:    s,
		target:     hostPort.String(),
		serverName: serverName,
		seen:       make(map[string]bool),
	}
	result := tlsmodel.ScanResult{
		Server:     hostPort.Hostname,
		Port:       hostPort.Port,
		ServerName: serverName,
		ScanStart:  time.Now(),
	}
	log.Infof("Scanning %s", ts.target)

	result.Ciphers, result.Outcome, result.Notes = ts.discoverPreferences(ctx, s.baseExpression())
	result.ServerSideOrdering = ts.serverSideOrdering(ctx, result.Ciphers)
	result.Divergence = tlsmodel.ComputeDivergence(result.Ciphers)
	if fields := result.Divergence.DivergentFields(); len(fields) > 0 {
		result.Notes = append(result.Notes, "certificate metadata differs between ciphers: "+strings.Join(fields, ", "))
	}
	result.Certificates = ts.certificates()
	result.Handshakes = ts.handshakes
	result.ScanEnd = time.Now()

	log.Infof("Finished %s: %d ciphers, %d handshakes, outcome %s", ts.target, len(result.Ciphers), result.Handshakes, result.Outcome)
	return result
}

func (s *Scanner) baseExpression() openssl.Expression {
	if s.config.AllCiphers {
		return openssl.NewExpression(openssl.AllCiphers, openssl.AllTLS13Suites)
	}
	return openssl.NewExpression(openssl.DefaultCiphers, openssl.DefaultTLS13Suites)
}

//wait enforces the configured delay between consecutive handshakes of all targets
func (s *Scanner) wait() {
	s.limiter.Take()
}
