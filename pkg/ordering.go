package cipherscan

import (
	"context"

	tlsmodel "github.com/adedayo/cipherscan/pkg/model"
	"github.com/adedayo/cipherscan/pkg/openssl"
	log "github.com/sirupsen/logrus"
)

//serverSideOrdering offers the top discovered ciphers in reverse order. Two entries are
//not always enough: some servers special-case a single preferred cipher, so up to three are used.
//A server that still picks its own choice, or refuses the reversed offer, orders server side.
//
//TLS 1.3 suites and older ciphers travel in separate lists, so each version can only choose
//within one family. A family offering two or more reversed entries settles the answer on its
//own; a family of one leaves the server nothing to choose and proves nothing
func (ts *targetScan) serverSideOrdering(ctx context.Context, preferences tlsmodel.PreferenceList) bool {
	if len(preferences) < 2 {
		return true
	}
	top := 3
	if len(preferences) < top {
		top = len(preferences)
	}
	offered := make([]string, 0, top)
	for i := top - 1; i >= 0; i-- {
		offered = append(offered, preferences[i].CipherName)
	}

	result, status, sessions := ts.sweep(ctx, openssl.Explicit(offered...), acceptedProtocols(preferences[:top]))
	if status != roundNegotiated {
		log.Debugf("%s refused the reversed offer %v", ts.target, offered)
		return true
	}

	decided := false
	for _, tls13 := range []bool{false, true} {
		family := familyOf(offered, tls13)
		if len(family) < 2 {
			continue
		}
		for _, session := range sessions {
			if openssl.IsTLS13Suite(session.CipherName) != tls13 {
				continue
			}
			log.Debugf("%s picked %s from the reversed offer %v", ts.target, session.CipherName, family)
			if session.CipherName != family[0] {
				return true
			}
			decided = true
		}
	}
	if decided {
		return false
	}
	log.Debugf("%s picked %s from the reversed offer %v", ts.target, result.CipherName, offered)
	return result.CipherName != offered[0]
}

//familyOf keeps the offered ciphers of one family, in offer order
func familyOf(offered []string, tls13 bool) (family []string) {
	for _, c := range offered {
		if openssl.IsTLS13Suite(c) == tls13 {
			family = append(family, c)
		}
	}
	return
}

//acceptedProtocols are the protocol versions, oldest first, that negotiated any of the entries.
//Entries without protocols fall back to every version
func acceptedProtocols(entries tlsmodel.PreferenceList) []openssl.Protocol {
	accepted := make(map[string]bool)
	for _, e := range entries {
		for _, p := range e.Protocols {
			accepted[p] = true
		}
	}
	protocols := []openssl.Protocol{}
	for _, p := range openssl.Protocols {
		if accepted[p.Label] {
			protocols = append(protocols, p)
		}
	}
	if len(protocols) == 0 {
		return openssl.Protocols
	}
	return protocols
}
