package domain

import (
	"math"
	"time"
)

type CheckStatus string

const (
	StatusOK    CheckStatus = "ok"
	StatusError CheckStatus = "error"
)

// ErrorKind classifies why a probe failed. It is not serialized.
type ErrorKind string

const (
	KindNone         ErrorKind = ""
	KindTimeout      ErrorKind = "timeout"
	KindDNSFailure   ErrorKind = "dns_failure"
	KindTLSFailure   ErrorKind = "tls_failure"
	KindUnclassified ErrorKind = "unclassified"
	// KindInternal marks a probe task that died outside the prober itself.
	KindInternal ErrorKind = "internal"
)

// Fixed error messages returned to callers.
const (
	MsgTimeout         = "Connection timed out"
	MsgDNSFailure      = "DNS lookup failed"
	MsgCertUnavailable = "Certificate not available"
	MsgSSLErrorPrefix  = "SSL Error: "
)

const ExpiryDateLayout = "2006-01-02"

// CertificateCheckResult is the outcome of probing one domain.
// Exactly one of (ExpiryDate, DaysLeft) or ErrorMessage is set.
type CertificateCheckResult struct {
	Server       string      `json:"server"`
	Status       CheckStatus `json:"status"`
	ExpiryDate   *string     `json:"expiry_date"`
	DaysLeft     *int        `json:"days_left"`
	ErrorMessage *string     `json:"error_message"`

	Kind ErrorKind `json:"-"`
}

// CheckRequest is the body accepted by POST /check.
type CheckRequest struct {
	Domains []string `json:"domains" binding:"required"`
}

func NewOKResult(server string, notAfter, now time.Time) CertificateCheckResult {
	expiry := notAfter.UTC().Format(ExpiryDateLayout)
	days := DaysLeft(notAfter, now)
	return CertificateCheckResult{
		Server:     server,
		Status:     StatusOK,
		ExpiryDate: &expiry,
		DaysLeft:   &days,
	}
}

func NewErrorResult(server string, kind ErrorKind, message string) CertificateCheckResult {
	return CertificateCheckResult{
		Server:       server,
		Status:       StatusError,
		ErrorMessage: &message,
		Kind:         kind,
	}
}

// DaysLeft returns the whole days between now and notAfter, rounded toward
// negative infinity. A certificate that expired 1h ago has -1 days left.
func DaysLeft(notAfter, now time.Time) int {
	return int(math.Floor(notAfter.Sub(now).Hours() / 24))
}

// Valid reports whether the result holds exactly one of the two payloads.
func (r CertificateCheckResult) Valid() bool {
	hasExpiry := r.ExpiryDate != nil && r.DaysLeft != nil
	hasError := r.ErrorMessage != nil
	switch r.Status {
	case StatusOK:
		return hasExpiry && !hasError
	case StatusError:
		return hasError && r.ExpiryDate == nil && r.DaysLeft == nil
	}
	return false
}

func (r CertificateCheckResult) IsOK() bool {
	return r.Status == StatusOK
}
