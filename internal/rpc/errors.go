package rpc

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
)

// ErrNotFound is returned when the node answers a lookup with null.
var ErrNotFound = errors.New("not found")

// ErrorKind classifies connection failures.
type ErrorKind string

const (
	KindDNSFailure       ErrorKind = "dns_failure"
	KindTLSFailure       ErrorKind = "tls_failure"
	KindHandshakeFailure ErrorKind = "handshake_failure"
	KindTimeout          ErrorKind = "timeout"
	KindClosed           ErrorKind = "closed"
)

// ConnectionError is a session setup or transport failure.
type ConnectionError struct {
	Kind ErrorKind
	Err  error
}

func (e *ConnectionError) Error() string {
	if e.Err == nil {
		return "connection " + string(e.Kind)
	}
	return fmt.Sprintf("connection %s: %v", e.Kind, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a ConnectionError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var ce *ConnectionError
	return errors.As(err, &ce) && ce.Kind == kind
}

// KindOf returns the kind of a ConnectionError, or "" for other errors.
func KindOf(err error) ErrorKind {
	var ce *ConnectionError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

// RPCError is a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// classifyDialError maps a websocket dial failure to a ConnectionError.
func classifyDialError(err error) *ConnectionError {
	var (
		dnsErr      *net.DNSError
		unknownCA   x509.UnknownAuthorityError
		hostnameErr x509.HostnameError
		certErr     x509.CertificateInvalidError
		verifyErr   *tls.CertificateVerificationError
		recordErr   tls.RecordHeaderError
		netErr      net.Error
	)

	switch {
	case errors.As(err, &dnsErr):
		return &ConnectionError{Kind: KindDNSFailure, Err: err}
	case errors.As(err, &unknownCA), errors.As(err, &hostnameErr), errors.As(err, &certErr),
		errors.As(err, &verifyErr), errors.As(err, &recordErr):
		return &ConnectionError{Kind: KindTLSFailure, Err: err}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return &ConnectionError{Kind: KindTimeout, Err: err}
	case errors.As(err, &netErr) && netErr.Timeout():
		return &ConnectionError{Kind: KindTimeout, Err: err}
	default:
		// Bad handshake status, refused connection, bad scheme.
		return &ConnectionError{Kind: KindHandshakeFailure, Err: err}
	}
}

// classifyReadError maps a failure on an established session.
func classifyReadError(err error) *ConnectionError {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &ConnectionError{Kind: KindTimeout, Err: err}
	}
	return &ConnectionError{Kind: KindClosed, Err: err}
}
