package openssl

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/execabs"
)

//Toolkit runs the openssl certificate utilities
type Toolkit struct {
	Binary  string
	Timeout time.Duration
}

//SubjectHash returns the subject name hash openssl uses to look up
//certificates in a hashed CA directory (the value of `openssl x509 -subject_hash`)
func (t Toolkit) SubjectHash(pemCert string) (string, error) {
	binary := t.Binary
	if binary == "" {
		binary = "openssl"
	}
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var out, stderr bytes.Buffer
	cmd := execabs.CommandContext(ctx, binary, "x509", "-noout", "-subject_hash")
	cmd.Stdin = strings.NewReader(pemCert)
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", errors.Wrapf(err, "openssl x509 -subject_hash: %s", strings.TrimSpace(stderr.String()))
	}
	hash := strings.TrimSpace(out.String())
	if hash == "" {
		return "", errors.New("openssl x509 -subject_hash returned nothing")
	}
	return hash, nil
}
