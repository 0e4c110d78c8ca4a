package domain

import "time"

// CertDetails is the detailed view returned by the inspect tool.
// Unlike CertificateCheckResult it is filled even for untrusted certificates.
type CertDetails struct {
	DomainName string `json:"domain_name"`
	Port       int    `json:"port"`

	Subject       string    `json:"subject"`
	Issuer        string    `json:"issuer"`
	NotBefore     time.Time `json:"not_before"`
	NotAfter      time.Time `json:"not_after"`
	DaysRemaining int       `json:"days_remaining"`
	SANs          []string  `json:"sans"`
	SerialNumber  string    `json:"serial_number"`
	SignatureAlgo string    `json:"signature_algo"`
	IsCA          bool      `json:"is_ca"`

	TLSVersion  string   `json:"tls_version,omitempty"`
	ResolvedIPs []string `json:"resolved_ips,omitempty"`
	Latency     int64    `json:"latency"` // ms

	// true when the leaf certificate covers DomainName
	IsMatch bool `json:"is_match"`
	// chain verification error against the system roots, empty when trusted
	VerifyError string `json:"verify_error,omitempty"`

	DomainExpiryDate *time.Time `json:"domain_expiry_date,omitempty"`
	DomainDaysLeft   *int       `json:"domain_days_left,omitempty"`

	CheckedAt time.Time `json:"checked_at"`
	ErrorMsg  string    `json:"error_msg,omitempty"`
}
