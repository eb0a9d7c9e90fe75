package cipherscan

import (
	"context"
	"fmt"

	tlsmodel "github.com/adedayo/cipherscan/pkg/model"
	"github.com/adedayo/cipherscan/pkg/openssl"
	"github.com/adedayo/cipherscan/pkg/transcript"
	log "github.com/sirupsen/logrus"
)

//roundStatus is how a sweep of every protocol version ended
type roundStatus int

const (
	//no protocol version produced a session
	roundExhausted roundStatus = iota
	//at least one protocol version got an answer, none of them a cipher
	roundRejected
	roundNegotiated
)

//targetScan is the state of the scan of a single endpoint
type targetScan struct {
	scanner    *Scanner
	target     string
	serverName string
	handshakes int
	//fingerprints of the certificates this target presented, in first-seen order
	fingerprints []string
	seen         map[string]bool
}

//handshake runs one s_client attempt. Executor errors, timeouts included, are
//indistinguishable from a failed negotiation
func (ts *targetScan) handshake(ctx context.Context, protocol openssl.Protocol, ciphers openssl.Expression) (tlsmodel.HandshakeResult, []string) {
	config := ts.scanner.config
	req := openssl.HandshakeRequest{
		Target:      ts.target,
		Protocol:    protocol,
		Ciphers:     ciphers,
		ServerName:  ts.serverName,
		StartTLS:    config.StartTLS,
		CAFile:      config.CAFile,
		CAPath:      config.CAPath,
		ExtraArgs:   config.ExtraArgs,
		RequestOCSP: true,
		ShowCerts:   true,
	}
	if _, err := req.Args(); err != nil {
		//nothing to offer on this protocol version, no need to connect
		return tlsmodel.FailedHandshake(), nil
	}

	ts.scanner.wait()
	ts.handshakes++
	raw, err := ts.scanner.executor.Handshake(ctx, req)
	if err != nil {
		log.Debugf("%s %s [%s]: %s", ts.target, protocol.Label, ciphers.String(), err.Error())
		return tlsmodel.FailedHandshake(), nil
	}
	result, certificates := ts.scanner.parser.Parse(raw)
	log.Debugf("%s %s [%s] -> %s", ts.target, protocol.Label, ciphers.String(), result.CipherName)
	return result, certificates
}

//probeRound sweeps every protocol version, oldest first, with the same cipher expression.
//When two versions select different ciphers the later one wins and the protocols gathered
//so far are dropped; versions selecting the same cipher are merged. The returned result
//carries the metadata of the last version that selected the cipher
func (ts *targetScan) probeRound(ctx context.Context, ciphers openssl.Expression) (tlsmodel.HandshakeResult, roundStatus) {
	round, status, _ := ts.sweep(ctx, ciphers, openssl.Protocols)
	return round, status
}

//sweep is probeRound over the given protocol versions. It also returns the session each
//version negotiated, in sweep order
func (ts *targetScan) sweep(ctx context.Context, ciphers openssl.Expression, protocols []openssl.Protocol) (tlsmodel.HandshakeResult, roundStatus, []tlsmodel.HandshakeResult) {
	status := roundExhausted
	round := tlsmodel.FailedHandshake()
	negotiated := []tlsmodel.HandshakeResult{}
	for _, protocol := range protocols {
		result, certificates := ts.handshake(ctx, protocol, ciphers)
		if len(certificates) > 0 {
			result.CertificateFingerprints = ts.register(certificates)
		}

		label := transcript.Protocol(result)
		if label == "" {
			continue
		}
		if status == roundExhausted {
			status = roundRejected
		}
		if !result.Negotiated() {
			continue
		}
		negotiated = append(negotiated, result)

		if status == roundNegotiated && result.CipherName == round.CipherName {
			result.Protocols = append(append([]string{}, round.Protocols...), label)
		} else {
			result.Protocols = []string{label}
		}
		round = result
		status = roundNegotiated
	}
	return round, status, negotiated
}

//discoverPreferences negotiates, removes the negotiated cipher from the offer and repeats
//until nothing more can be negotiated. The order of discovery is the preference order
func (ts *targetScan) discoverPreferences(ctx context.Context, base openssl.Expression) (tlsmodel.PreferenceList, tlsmodel.Outcome, []string) {
	preferences := tlsmodel.PreferenceList{}
	notes := []string{}
	ciphers := base
	for {
		if err := ctx.Err(); err != nil {
			notes = append(notes, fmt.Sprintf("scan interrupted: %s", err.Error()))
			return preferences, tlsmodel.OutcomeExhausted, notes
		}
		result, status := ts.probeRound(ctx, ciphers)
		switch status {
		case roundExhausted:
			if len(preferences) == 0 {
				notes = append(notes, "no protocol version could connect")
			}
			return preferences, tlsmodel.OutcomeExhausted, notes
		case roundRejected:
			notes = append(notes, "server answered but refused every remaining cipher")
			return preferences, tlsmodel.OutcomeRejected, notes
		}
		if preferences.Contains(result.CipherName) {
			notes = append(notes, fmt.Sprintf("server negotiated excluded cipher %s again, stopping", result.CipherName))
			return preferences, tlsmodel.OutcomeRepeated, notes
		}
		preferences = append(preferences, result)
		ciphers = ciphers.Exclude(result.CipherName)
	}
}

func (ts *targetScan) register(certificates []string) []string {
	fingerprints := ts.scanner.registry.RegisterChain(certificates)
	for _, fp := range fingerprints {
		if !ts.seen[fp] {
			ts.seen[fp] = true
			ts.fingerprints = append(ts.fingerprints, fp)
		}
	}
	return fingerprints
}

//certificates returns the records of the certificates this target presented
func (ts *targetScan) certificates() []tlsmodel.CertificateRecord {
	byFingerprint := make(map[string]tlsmodel.CertificateRecord)
	for _, rec := range ts.scanner.registry.Records() {
		if ts.seen[rec.Fingerprint] {
			byFingerprint[rec.Fingerprint] = rec
		}
	}
	out := make([]tlsmodel.CertificateRecord, 0, len(ts.fingerprints))
	for _, fp := range ts.fingerprints {
		out = append(out, byFingerprint[fp])
	}
	return out
}
