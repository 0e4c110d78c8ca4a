package service

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"cert-checker/internal/domain"

	"github.com/likexian/whois"
	whoisparser "github.com/likexian/whois-parser"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/publicsuffix"
)

const inspectTimeout = 10 * time.Second

var ErrInvalidTarget = errors.New("invalid inspect target")

var tlsVersions = map[uint16]string{
	tls.VersionTLS10: "TLS 1.0",
	tls.VersionTLS11: "TLS 1.1",
	tls.VersionTLS12: "TLS 1.2",
	tls.VersionTLS13: "TLS 1.3",
}

// InspectorService fetches the full certificate of a host, trusted or not,
// plus optional WHOIS registration expiry of its registrable domain.
type InspectorService struct {
	timeout  time.Duration
	port     int
	rootCAs  *x509.CertPool
	resolver *net.Resolver
	// retries after the first failed handshake
	retries    int
	retryDelay time.Duration

	whoisLookup func(domain string) (string, error)
	now         func() time.Time
}

func NewInspectorService() *InspectorService {
	return &InspectorService{
		timeout:     inspectTimeout,
		port:        443,
		resolver:    net.DefaultResolver,
		retries:     1,
		retryDelay:  500 * time.Millisecond,
		whoisLookup: func(d string) (string, error) { return whois.Whois(d) },
		now:         time.Now,
	}
}

// InspectDomain never fails on network problems; those are reported in
// ErrorMsg. It only returns ErrInvalidTarget for unusable input.
func (s *InspectorService) InspectDomain(ctx context.Context, rawDomain string, port int, withWhois bool) (domain.CertDetails, error) {
	host := NormalizeDomain(strings.TrimSpace(rawDomain))
	if h, p, err := net.SplitHostPort(host); err == nil && port == 0 {
		host = h
		port, _ = strconv.Atoi(p)
	}
	if host == "" || port < 0 || port > 65535 {
		return domain.CertDetails{}, ErrInvalidTarget
	}
	if port == 0 {
		port = s.port
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result := domain.CertDetails{
		DomainName: host,
		Port:       port,
		CheckedAt:  s.now().UTC(),
	}

	start := time.Now()
	if err := s.resolveDNS(ctx, &result); err != nil {
		result.ErrorMsg = domain.MsgDNSFailure + ": " + err.Error()
		logrus.Debugf("Inspect %s: %s", host, result.ErrorMsg)
		return result, nil
	}

	err := s.withRetry(ctx, s.retries+1, s.retryDelay, func() error {
		return s.checkSSLHandshake(ctx, &result)
	})
	if err != nil {
		result.ErrorMsg = *classifyProbeError(host, err).ErrorMessage
		logrus.Debugf("Inspect %s: %s", host, result.ErrorMsg)
		return result, nil
	}
	result.Latency = time.Since(start).Milliseconds()

	if withWhois {
		s.syncWhois(&result)
	}
	return result, nil
}

func (s *InspectorService) resolveDNS(ctx context.Context, result *domain.CertDetails) error {
	if ip := net.ParseIP(result.DomainName); ip != nil {
		result.ResolvedIPs = []string{ip.String()}
		return nil
	}
	ips, err := s.resolver.LookupHost(ctx, result.DomainName)
	if err != nil {
		return err
	}
	sort.Strings(ips)
	result.ResolvedIPs = ips
	return nil
}

func (s *InspectorService) checkSSLHandshake(ctx context.Context, result *domain.CertDetails) error {
	address := net.JoinHostPort(result.DomainName, strconv.Itoa(result.Port))
	dialer := &net.Dialer{Timeout: s.timeout, KeepAlive: -1, Resolver: s.resolver}
	rawConn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return err
	}
	defer rawConn.Close()
	_ = rawConn.SetDeadline(time.Now().Add(s.timeout))

	// verification is done by hand below so untrusted chains still report
	conn := tls.Client(rawConn, &tls.Config{
		InsecureSkipVerify: true,
		ServerName:         result.DomainName,
	})
	if err := conn.HandshakeContext(ctx); err != nil {
		return &handshakeError{err: err}
	}

	state := conn.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return errCertUnavailable
	}
	s.parseCertInfo(state, result)
	return nil
}

func (s *InspectorService) parseCertInfo(state tls.ConnectionState, result *domain.CertDetails) {
	leaf := state.PeerCertificates[0]
	fillCertFields(leaf, s.now(), result)

	if v, ok := tlsVersions[state.Version]; ok {
		result.TLSVersion = v
	} else {
		result.TLSVersion = "Unknown"
	}

	result.IsMatch = leaf.VerifyHostname(result.DomainName) == nil

	intermediates := x509.NewCertPool()
	for _, c := range state.PeerCertificates[1:] {
		intermediates.AddCert(c)
	}
	_, err := leaf.Verify(x509.VerifyOptions{
		DNSName:       result.DomainName,
		Roots:         s.rootCAs,
		Intermediates: intermediates,
		CurrentTime:   s.now(),
	})
	if err != nil {
		result.VerifyError = err.Error()
	}
}

func fillCertFields(cert *x509.Certificate, now time.Time, result *domain.CertDetails) {
	result.Subject = cert.Subject.CommonName
	if result.Subject == "" {
		result.Subject = cert.Subject.String()
	}
	result.Issuer = cert.Issuer.CommonName
	if result.Issuer == "" && len(cert.Issuer.Organization) > 0 {
		result.Issuer = cert.Issuer.Organization[0]
	}
	result.NotBefore = cert.NotBefore.UTC()
	result.NotAfter = cert.NotAfter.UTC()
	result.DaysRemaining = domain.DaysLeft(cert.NotAfter, now)
	result.SANs = cert.DNSNames
	for _, ip := range cert.IPAddresses {
		result.SANs = append(result.SANs, ip.String())
	}
	result.SerialNumber = formatSerial(cert.SerialNumber.Bytes())
	result.SignatureAlgo = cert.SignatureAlgorithm.String()
	result.IsCA = cert.IsCA
}

// DecodePEM parses every CERTIFICATE block in data. Other block types are
// skipped; no certificate at all is an error.
func (s *InspectorService) DecodePEM(data []byte) ([]domain.CertDetails, error) {
	var out []domain.CertDetails
	now := s.now()
	for rest := data; ; {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse certificate %d: %w", len(out)+1, err)
		}
		var d domain.CertDetails
		fillCertFields(cert, now, &d)
		if len(cert.DNSNames) > 0 {
			d.DomainName = cert.DNSNames[0]
		} else {
			d.DomainName = cert.Subject.CommonName
		}
		d.IsMatch = d.DomainName != "" && cert.VerifyHostname(d.DomainName) == nil
		d.CheckedAt = now.UTC()
		out = append(out, d)
	}
	if len(out) == 0 {
		return nil, errors.New("no PEM certificate found")
	}
	return out, nil
}

func (s *InspectorService) syncWhois(result *domain.CertDetails) {
	if net.ParseIP(result.DomainName) != nil {
		return
	}
	rootDomain := getRootDomain(result.DomainName)
	expiry, err := s.fetchWhoisExpiry(rootDomain)
	if err != nil {
		logrus.Debugf("WHOIS failed for %s: %v", rootDomain, err)
		return
	}
	days := domain.DaysLeft(expiry, s.now())
	result.DomainExpiryDate = &expiry
	result.DomainDaysLeft = &days
}

func (s *InspectorService) fetchWhoisExpiry(rootDomain string) (time.Time, error) {
	raw, err := s.whoisLookup(rootDomain)
	if err != nil {
		return time.Time{}, err
	}
	info, err := whoisparser.Parse(raw)
	if err != nil {
		return time.Time{}, err
	}
	if info.Domain == nil || info.Domain.ExpirationDate == "" {
		return time.Time{}, errors.New("no expiration date found")
	}
	return parseWhoisTime(info.Domain.ExpirationDate)
}

// parseWhoisTime accepts the date shapes registries commonly return.
// Trailing notes such as "2026-06-17 13:11:45 (UTC+8)" are dropped.
func parseWhoisTime(dateStr string) (time.Time, error) {
	if idx := strings.Index(dateStr, " ("); idx != -1 {
		dateStr = dateStr[:idx]
	}
	dateStr = strings.TrimSpace(dateStr)

	formats := []string{
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05Z",
		"2006-01-02T15:04:05.00Z",
		time.RFC3339,
		"2006-01-02",
		"02-Jan-2006",
		"2006.01.02",
	}
	for _, f := range formats {
		if t, e := time.Parse(f, dateStr); e == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unknown date format: %s", dateStr)
}

// withRetry runs op up to attempts times with exponential backoff. DNS
// failures are not retried.
func (s *InspectorService) withRetry(ctx context.Context, attempts int, initialDelay time.Duration, op func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err = op(); err == nil || isDNSFailure(err) {
			return err
		}
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return err
			case <-time.After(initialDelay * time.Duration(1<<i)):
			}
		}
	}
	return err
}

func getRootDomain(domainName string) string {
	root, err := publicsuffix.EffectiveTLDPlusOne(domainName)
	if err != nil {
		return domainName
	}
	return root
}

// formatSerial renders serial bytes as colon separated hex, e.g. 0A:1B:2C.
func formatSerial(b []byte) string {
	if len(b) == 0 {
		return "00"
	}
	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = fmt.Sprintf("%02X", v)
	}
	return strings.Join(parts, ":")
}
