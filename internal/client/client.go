package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"strings"
	"time"

	"cert-checker/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

const (
	DefaultURL     = "http://localhost:8080/check"
	DefaultTimeout = 30 * time.Second
	signedTokenTTL = 5 * time.Minute
)

// ErrUnreachable wraps transport failures: the API could not be reached at all.
var ErrUnreachable = errors.New("could not connect to API")

// APIError is a non-200 answer from the API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API Error %d: %s", e.StatusCode, e.Body)
}

type Client struct {
	URL   string
	Token string
	// Sign sends a short-lived HS256 JWT minted from Token instead of Token itself.
	Sign bool
	HTTP *http.Client
}

func New(url, token string, timeout time.Duration) *Client {
	if url == "" {
		url = DefaultURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{URL: url, Token: token, HTTP: &http.Client{Timeout: timeout}}
}

// Check posts domains to the API and returns its results in order.
func (c *Client) Check(ctx context.Context, domains []string) ([]domain.CertificateCheckResult, error) {
	if domains == nil {
		domains = []string{}
	}
	body, err := json.Marshal(domain.CheckRequest{Domains: domains})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	if c.Token != "" {
		token := c.Token
		if c.Sign {
			if token, err = SignToken(c.Token, signedTokenTTL); err != nil {
				return nil, fmt.Errorf("sign token: %w", err)
			}
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var results []domain.CertificateCheckResult
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return results, nil
}

// SignToken mints an HS256 JWT keyed by secret that expires after ttl.
func SignToken(secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   "certcheck",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ReadDomains treats arg as a file of domains, one per line, blank lines
// skipped. When no such file exists arg itself is the single domain.
func ReadDomains(arg string) ([]string, error) {
	f, err := os.Open(arg)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{arg}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var domains []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			domains = append(domains, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", arg, err)
	}
	return domains, nil
}

// RenderTable writes results as the fixed-width report the CLI prints.
func RenderTable(w io.Writer, results []domain.CertificateCheckResult) {
	fmt.Fprintf(w, "%-30s | %-10s | %-10s | %s\n", "DOMAIN", "STATUS", "DAYS LEFT", "EXPIRY")
	fmt.Fprintln(w, strings.Repeat("-", 75))

	for _, res := range results {
		if res.IsOK() && res.DaysLeft != nil && res.ExpiryDate != nil {
			days := *res.DaysLeft
			fmt.Fprintf(w, "%-30s | %-10s | %-10d | %s\n", res.Server, res.Status, days, *res.ExpiryDate)
			switch {
			case days < 7:
				fmt.Fprintln(w, "  >>> CRITICAL: Expiring soon!")
			case days < 30:
				fmt.Fprintln(w, "  >>> WARNING:  Expiring soon!")
			}
			continue
		}

		msg := ""
		if res.ErrorMessage != nil {
			msg = *res.ErrorMessage
		}
		fmt.Fprintf(w, "%-30s | %-10s | %-10s | %s\n", res.Server, res.Status, "-", msg)
	}
}

// MergeDomains appends extra to base, skipping entries already present.
func MergeDomains(base, extra []string) []string {
	seen := make(map[string]bool, len(base))
	out := make([]string, 0, len(base)+len(extra))
	for _, list := range [][]string{base, extra} {
		for _, d := range list {
			key := strings.ToLower(strings.TrimSpace(d))
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, d)
		}
	}
	return out
}
