package openssl

import (
	"strings"
)

const (
	//DefaultCiphers is the base expression when probing the ciphers openssl enables with ALL
	DefaultCiphers = "ALL"
	//AllCiphers also includes the ciphers ALL leaves out (eNULL and friends)
	AllCiphers = "ALL:COMPLEMENTOFALL"
)

var (
	//DefaultTLS13Suites are the suites s_client offers for TLS 1.3 out of the box
	DefaultTLS13Suites = []string{"TLS_AES_256_GCM_SHA384", "TLS_CHACHA20_POLY1305_SHA256", "TLS_AES_128_GCM_SHA256"}
	//AllTLS13Suites adds the CCM suites
	AllTLS13Suites = []string{"TLS_AES_256_GCM_SHA384", "TLS_CHACHA20_POLY1305_SHA256", "TLS_AES_128_GCM_SHA256", "TLS_AES_128_CCM_SHA256", "TLS_AES_128_CCM_8_SHA256"}
)

//IsTLS13Suite reports whether the name is a TLS 1.3 suite, which s_client configures separately
func IsTLS13Suite(name string) bool {
	return strings.HasPrefix(name, "TLS_")
}

//Expression is a cipher selection passed to s_client. It is either a base
//expression narrowed by a growing list of excluded ciphers, or an explicit,
//ordered list of cipher names
type Expression struct {
	base     string
	tls13    []string
	explicit []string
	excluded []string
}

//NewExpression starts from an openssl cipher string and a list of TLS 1.3 suites
func NewExpression(base string, tls13 []string) Expression {
	return Expression{base: base, tls13: tls13}
}

//Explicit offers exactly the given ciphers, in the given order
func Explicit(ciphers ...string) Expression {
	return Expression{explicit: append([]string{}, ciphers...)}
}

//Exclude returns a copy of the expression that no longer admits cipher
func (e Expression) Exclude(cipher string) Expression {
	out := e
	out.excluded = append(append([]string{}, e.excluded...), cipher)
	if e.explicit != nil {
		out.explicit = []string{}
		for _, c := range e.explicit {
			if c != cipher {
				out.explicit = append(out.explicit, c)
			}
		}
	}
	return out
}

//Excluded lists the ciphers removed so far, oldest first
func (e Expression) Excluded() []string {
	return e.excluded
}

//Offered returns the explicit cipher list, or nil for a base expression
func (e Expression) Offered() []string {
	return e.explicit
}

//Allows reports whether the expression has not excluded the cipher
func (e Expression) Allows(cipher string) bool {
	for _, c := range e.excluded {
		if c == cipher {
			return false
		}
	}
	if e.explicit != nil {
		for _, c := range e.explicit {
			if c == cipher {
				return true
			}
		}
		return false
	}
	return true
}

//String renders the -cipher argument. Each excluded cipher is moved to the end
//of the list and then removed, so servers that want an explicit exclusion token
//still see one
func (e Expression) String() string {
	if e.explicit != nil {
		names := []string{}
		for _, c := range e.explicit {
			if !IsTLS13Suite(c) {
				names = append(names, c)
			}
		}
		return strings.Join(names, ":")
	}
	var sb strings.Builder
	sb.WriteString(e.base)
	for _, c := range e.excluded {
		if IsTLS13Suite(c) {
			continue
		}
		sb.WriteString(":+")
		sb.WriteString(c)
		sb.WriteString(":!")
		sb.WriteString(c)
	}
	return sb.String()
}

//TLS13 renders the -ciphersuites argument
func (e Expression) TLS13() string {
	names := []string{}
	if e.explicit != nil {
		for _, c := range e.explicit {
			if IsTLS13Suite(c) {
				names = append(names, c)
			}
		}
		return strings.Join(names, ":")
	}
	for _, c := range e.tls13 {
		if e.Allows(c) {
			names = append(names, c)
		}
	}
	return strings.Join(names, ":")
}
