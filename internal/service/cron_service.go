package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"cert-checker/internal/conf"
	"cert-checker/internal/domain"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

var ErrScanInProgress = errors.New("scan already in progress")

// DomainSource supplies extra probe targets, e.g. Cloudflare DNS records.
type DomainSource interface {
	FetchDomainNames(ctx context.Context) ([]string, error)
}

// CronService runs the watchlist scan on a schedule and alerts on expiring
// or failing certificates.
type CronService struct {
	Cron     *cron.Cron
	Checker  *CheckerService
	Source   DomainSource
	Notifier *NotifierService

	mu      sync.Mutex
	watch   conf.WatchConfig
	entryID cron.EntryID

	running  atomic.Bool
	lastMu   sync.RWMutex
	lastScan *ScanReport
}

// ScanReport is the outcome of one watchlist run.
type ScanReport struct {
	Summary domain.ScanSummary              `json:"summary"`
	Results []domain.CertificateCheckResult `json:"results"`
}

// NewCronService wires the watchlist. source may be nil when Cloudflare is off.
func NewCronService(checker *CheckerService, source DomainSource, notifier *NotifierService, watch conf.WatchConfig) *CronService {
	logger := cron.PrintfLogger(logrus.StandardLogger())
	return &CronService{
		Cron:     cron.New(cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger))),
		Checker:  checker,
		Source:   source,
		Notifier: notifier,
		watch:    watch,
	}
}

func (s *CronService) Start() error {
	if err := s.ReloadJobs(s.Watch()); err != nil {
		return err
	}
	s.Cron.Start()
	return nil
}

// Stop halts the scheduler and waits for a running scan to finish.
func (s *CronService) Stop() {
	<-s.Cron.Stop().Done()
}

func (s *CronService) Watch() conf.WatchConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watch
}

// ReloadJobs replaces the scheduled scan with one built from watch.
func (s *CronService) ReloadJobs(watch conf.WatchConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entryID != 0 {
		s.Cron.Remove(s.entryID)
		s.entryID = 0
	}
	s.watch = watch

	if !watch.Enabled || watch.Schedule == "" {
		logrus.Info("[Cron] Watchlist scan disabled")
		return nil
	}

	id, err := s.Cron.AddFunc(watch.Schedule, func() {
		if _, err := s.PerformScan(context.Background()); err != nil {
			logrus.Errorf("[Cron] Scheduled scan failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule %q: %w", watch.Schedule, err)
	}
	s.entryID = id
	logrus.Infof("[Cron] Watchlist scan scheduled: %s", watch.Schedule)
	return nil
}

// NextRun reports when the scheduled scan fires next, zero if none is scheduled.
func (s *CronService) NextRun() time.Time {
	s.mu.Lock()
	id := s.entryID
	s.mu.Unlock()
	if id == 0 {
		return time.Time{}
	}
	return s.Cron.Entry(id).Next
}

// CollectTargets merges the configured domains with the source's, dropping
// duplicates by normalized host.
func (s *CronService) CollectTargets(ctx context.Context) []string {
	watch := s.Watch()
	targets := make([]string, 0, len(watch.Domains))
	seen := make(map[string]bool)
	add := func(list []string) {
		for _, d := range FilterDomains(list) {
			key := strings.ToLower(NormalizeDomain(d))
			if seen[key] {
				continue
			}
			seen[key] = true
			targets = append(targets, d)
		}
	}

	add(watch.Domains)
	if watch.UseCloudflare && s.Source != nil {
		names, err := s.Source.FetchDomainNames(ctx)
		if err != nil {
			logrus.Errorf("[Cron] Cannot fetch Cloudflare domains, scanning configured list only: %v", err)
		} else {
			add(names)
		}
	}
	return targets
}

// PerformScan checks every watchlist target once, sends alerts and returns
// the report. Concurrent calls fail with ErrScanInProgress.
func (s *CronService) PerformScan(ctx context.Context) (*ScanReport, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrScanInProgress
	}
	defer s.running.Store(false)
	return s.scan(ctx), nil
}

// StartScan runs a scan in the background. It fails at once with
// ErrScanInProgress when one is already running.
func (s *CronService) StartScan() error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrScanInProgress
	}
	go func() {
		defer s.running.Store(false)
		s.scan(context.Background())
	}()
	return nil
}

func (s *CronService) scan(ctx context.Context) *ScanReport {
	start := time.Now()
	logrus.Info("[Cron] Watchlist scan started")

	watch := s.Watch()
	targets := s.CollectTargets(ctx)
	results := s.Checker.CheckAll(targets)

	summary := domain.ScanSummary{Total: len(results)}
	alerts := 0
	for _, res := range results {
		switch {
		case !res.IsOK():
			summary.Errors++
		case res.DaysLeft != nil && *res.DaysLeft < watch.WarnDays:
			summary.Expiring++
		default:
			summary.OK++
		}
		if s.Notifier != nil && s.Notifier.NotifyExpiring(res, watch.WarnDays) {
			alerts++
		}
	}
	summary.Duration = time.Since(start).Round(time.Millisecond).String()
	summary.Time = time.Now().Format("2006-01-02 15:04:05")

	if s.Notifier != nil {
		s.Notifier.NotifyScanFinish(summary)
	}

	report := &ScanReport{Summary: summary, Results: results}
	s.lastMu.Lock()
	s.lastScan = report
	s.lastMu.Unlock()

	logrus.Infof("[Cron] Watchlist scan finished: %d total, %d ok, %d expiring, %d errors, %d alerts (%s)",
		summary.Total, summary.OK, summary.Expiring, summary.Errors, alerts, summary.Duration)
	return report
}

// LastScan returns the most recent report, nil before the first run.
func (s *CronService) LastScan() *ScanReport {
	s.lastMu.RLock()
	defer s.lastMu.RUnlock()
	return s.lastScan
}
