package service

import (
	"fmt"
	"strings"
	"time"

	"cert-checker/internal/domain"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"
)

// DomainProber checks a single domain. Implementations must not block past
// their own internal timeout.
type DomainProber interface {
	Probe(rawDomain string) domain.CertificateCheckResult
}

type ProbeFunc func(rawDomain string) domain.CertificateCheckResult

func (f ProbeFunc) Probe(rawDomain string) domain.CertificateCheckResult { return f(rawDomain) }

// CheckerService fans a batch of domains out to the prober, one task per domain.
type CheckerService struct {
	Prober DomainProber
	// MaxConcurrency caps in-flight probes; 0 means one goroutine per domain.
	MaxConcurrency int
}

func NewCheckerService(prober DomainProber, maxConcurrency int) *CheckerService {
	return &CheckerService{Prober: prober, MaxConcurrency: maxConcurrency}
}

// CheckAll probes every non-blank entry and returns the results in input order.
// Blank or whitespace-only entries produce no result.
func (s *CheckerService) CheckAll(domains []string) []domain.CertificateCheckResult {
	targets := FilterDomains(domains)
	results := make([]domain.CertificateCheckResult, len(targets))
	if len(targets) == 0 {
		return results
	}

	start := time.Now()
	p := pool.New()
	if s.MaxConcurrency > 0 {
		p = p.WithMaxGoroutines(s.MaxConcurrency)
	}

	for i, target := range targets {
		p.Go(func() {
			// each task writes only its own slot
			results[i] = s.probeOne(target)
		})
	}
	p.Wait()

	failed := 0
	for _, r := range results {
		if !r.IsOK() {
			failed++
		}
	}

	logrus.Infof("Checked %d domains in %s (%d failed)", len(targets), time.Since(start).Round(time.Millisecond), failed)
	return results
}

// probeOne shields the batch from a task that panics.
func (s *CheckerService) probeOne(target string) (result domain.CertificateCheckResult) {
	var pc panics.Catcher
	pc.Try(func() {
		result = s.Prober.Probe(target)
	})
	if r := pc.Recovered(); r != nil {
		logrus.Errorf("Probe task for %s panicked: %v", target, r.Value)
		return domain.NewErrorResult(NormalizeDomain(target), domain.KindInternal, fmt.Sprintf("internal error: %v", r.Value))
	}
	return result
}

// FilterDomains trims every entry and drops the blank ones, keeping order.
func FilterDomains(domains []string) []string {
	out := make([]string, 0, len(domains))
	for _, d := range domains {
		if t := strings.TrimSpace(d); t != "" {
			out = append(out, t)
		}
	}
	return out
}
