package openssl

import (
	"bytes"
	"context"
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/execabs"
)

var (
	//ErrNoExecutor is returned when the openssl binary cannot be found
	ErrNoExecutor = errors.New("no usable openssl binary")
	//ErrHandshakeTimeout is returned when s_client did not finish in time
	ErrHandshakeTimeout = errors.New("handshake timed out")
	//ErrNoApplicableCiphers is returned when the expression offers nothing for the requested protocol
	ErrNoApplicableCiphers = errors.New("no ciphers applicable to protocol")
)

//HandshakeRequest describes one s_client handshake attempt
type HandshakeRequest struct {
	Target      string
	Protocol    Protocol
	Ciphers     Expression
	ServerName  string
	StartTLS    string
	CAFile      string
	CAPath      string
	ExtraArgs   []string
	RequestOCSP bool
	ShowCerts   bool
}

//Args builds the s_client argument list
func (r HandshakeRequest) Args() ([]string, error) {
	args := []string{"s_client", "-connect", r.Target}
	if r.CAPath != "" {
		args = append(args, "-CApath", r.CAPath)
	} else if r.CAFile != "" {
		args = append(args, "-CAfile", r.CAFile)
	}
	if r.ShowCerts {
		args = append(args, "-showcerts")
	}
	if r.RequestOCSP {
		args = append(args, "-status")
	}
	if r.ServerName != "" && r.Protocol.SNI {
		args = append(args, "-servername", r.ServerName)
	}
	if r.StartTLS != "" {
		args = append(args, "-starttls", r.StartTLS)
	}
	args = append(args, r.ExtraArgs...)

	ciphers := r.Ciphers.String()
	if r.Protocol.TLS13 {
		suites := r.Ciphers.TLS13()
		if suites == "" {
			return nil, errors.Wrapf(ErrNoApplicableCiphers, "%s", r.Protocol.Label)
		}
		args = append(args, "-ciphersuites", suites)
	} else if ciphers == "" {
		return nil, errors.Wrapf(ErrNoApplicableCiphers, "%s", r.Protocol.Label)
	}
	if ciphers != "" {
		args = append(args, "-cipher", ciphers)
	}
	if r.Protocol.Flag != "" {
		args = append(args, r.Protocol.Flag)
	}
	return args, nil
}

//Client runs handshakes with the openssl s_client command
type Client struct {
	binary  string
	timeout time.Duration
}

//NewClient locates the openssl binary. A missing binary is a configuration error
func NewClient(binary string, timeout time.Duration) (*Client, error) {
	path, err := execabs.LookPath(binary)
	if err != nil {
		return nil, errors.Wrapf(ErrNoExecutor, "%s: %v", binary, err)
	}
	return &Client{binary: path, timeout: timeout}, nil
}

//Binary is the resolved path of the openssl executable
func (c *Client) Binary() string {
	return c.binary
}

//Handshake performs one handshake and returns the raw s_client transcript.
//s_client exits non-zero when the handshake fails; that is not an error here,
//the transcript says what happened. Timeouts and failures to run the binary are errors
func (c *Client) Handshake(ctx context.Context, req HandshakeRequest) (string, error) {
	args, err := req.Args()
	if err != nil {
		return "", err
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	var out bytes.Buffer
	cmd := execabs.CommandContext(ctx, c.binary, args...)
	cmd.Stdin = strings.NewReader("Q\n")
	cmd.Stdout = &out
	cmd.Stderr = io.Discard
	err = cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return "", errors.Wrapf(ErrHandshakeTimeout, "%s %s after %s", req.Target, req.Protocol.Label, c.timeout)
	}
	if err != nil {
		var exitErr *execabs.ExitError
		if errors.As(err, &exitErr) {
			return out.String(), nil
		}
		return "", errors.Wrapf(err, "running %s", c.binary)
	}
	return out.String(), nil
}
