package service

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"os"
	"strings"
	"syscall"
	"time"

	"cert-checker/internal/domain"

	"github.com/sirupsen/logrus"
)

// probeTimeout bounds the TCP connect and the TLS handshake separately.
const probeTimeout = 3 * time.Second

const defaultTLSPort = "443"

// Prober performs one bounded TLS handshake per call and never returns an error:
// every failure is folded into the result.
type Prober struct {
	timeout time.Duration
	port    string
	// nil means the system trust store
	rootCAs  *x509.CertPool
	resolver *net.Resolver
	now      func() time.Time
}

func NewProber() *Prober {
	return &Prober{
		timeout: probeTimeout,
		port:    defaultTLSPort,
		now:     time.Now,
	}
}

// NormalizeDomain strips a leading "https://" or "http://" and anything from
// the first "/" on.
func NormalizeDomain(raw string) string {
	s := raw
	if strings.HasPrefix(s, "https://") {
		s = strings.TrimPrefix(s, "https://")
	} else if strings.HasPrefix(s, "http://") {
		s = strings.TrimPrefix(s, "http://")
	}
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[:i]
	}
	return s
}

// Probe checks the certificate served by rawDomain on port 443.
func (p *Prober) Probe(rawDomain string) domain.CertificateCheckResult {
	server := NormalizeDomain(rawDomain)
	logrus.Debugf("Probing: %s", server)

	notAfter, err := p.fetchNotAfter(server)
	if err != nil {
		result := classifyProbeError(server, err)
		logrus.Debugf("Probe failed %s: %s", server, *result.ErrorMessage)
		return result
	}

	return domain.NewOKResult(server, notAfter, p.now())
}

// fetchNotAfter dials, handshakes and returns the leaf certificate expiry.
// Errors from the handshake phase come back wrapped in *handshakeError.
func (p *Prober) fetchNotAfter(server string) (time.Time, error) {
	dialer := &net.Dialer{
		Timeout:   p.timeout,
		KeepAlive: -1,
		Resolver:  p.resolver,
	}

	rawConn, err := dialer.Dial("tcp", net.JoinHostPort(server, p.port))
	if err != nil {
		return time.Time{}, err
	}
	defer rawConn.Close()

	if err := rawConn.SetDeadline(time.Now().Add(p.timeout)); err != nil {
		return time.Time{}, err
	}

	conn := tls.Client(rawConn, &tls.Config{
		ServerName: server,
		RootCAs:    p.rootCAs,
	})
	if err := conn.Handshake(); err != nil {
		return time.Time{}, &handshakeError{err: err}
	}

	certs := conn.ConnectionState().PeerCertificates
	if len(certs) == 0 {
		return time.Time{}, errCertUnavailable
	}
	// Index 0 is the leaf
	return certs[0].NotAfter, nil
}

var errCertUnavailable = errors.New(domain.MsgCertUnavailable)

type handshakeError struct {
	err error
}

func (e *handshakeError) Error() string { return e.err.Error() }
func (e *handshakeError) Unwrap() error { return e.err }

// classifyProbeError maps a dial/handshake failure to a result. First match wins.
func classifyProbeError(server string, err error) domain.CertificateCheckResult {
	switch {
	case errors.Is(err, errCertUnavailable):
		return domain.NewErrorResult(server, domain.KindUnclassified, domain.MsgCertUnavailable)
	case isTimeout(err):
		return domain.NewErrorResult(server, domain.KindTimeout, domain.MsgTimeout)
	case isDNSFailure(err):
		return domain.NewErrorResult(server, domain.KindDNSFailure, domain.MsgDNSFailure)
	case isTLSFailure(err):
		return domain.NewErrorResult(server, domain.KindTLSFailure, domain.MsgSSLErrorPrefix+err.Error())
	default:
		return domain.NewErrorResult(server, domain.KindUnclassified, err.Error())
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isDNSFailure(err error) bool {
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

// isTLSFailure accepts typed TLS/x509 errors from any phase, and any handshake
// phase error that is not a plain socket failure.
func isTLSFailure(err error) bool {
	var (
		recordErr    tls.RecordHeaderError
		verifyErr    *tls.CertificateVerificationError
		alertErr     tls.AlertError
		unknownAuth  x509.UnknownAuthorityError
		hostnameErr  x509.HostnameError
		certInvalid  x509.CertificateInvalidError
		hsErr        *handshakeError
		remoteTLSErr *net.OpError
	)
	switch {
	case errors.As(err, &recordErr),
		errors.As(err, &verifyErr),
		errors.As(err, &alertErr),
		errors.As(err, &unknownAuth),
		errors.As(err, &hostnameErr),
		errors.As(err, &certInvalid):
		return true
	case errors.As(err, &remoteTLSErr) && remoteTLSErr.Op == "remote error":
		return true
	case errors.As(err, &hsErr):
		return !isSocketError(err)
	}
	return false
}

func isSocketError(err error) bool {
	return errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, net.ErrClosed)
}
