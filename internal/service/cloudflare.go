package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudflare/cloudflare-go"
	"github.com/sirupsen/logrus"
)

const (
	cfPageSize       = 100
	cfRateLimitSleep = 200 * time.Millisecond
)

// CloudflareService lists the hostnames served from every zone the token can
// read, for use as probe targets.
type CloudflareService struct {
	APIToken string
	// extra client options, e.g. cloudflare.BaseURL in tests
	Options []cloudflare.Option
}

func NewCloudflareService(token string, opts ...cloudflare.Option) *CloudflareService {
	return &CloudflareService{APIToken: token, Options: opts}
}

// FetchDomainNames returns the A, AAAA and CNAME record names of all zones,
// de-duplicated and in discovery order. A zone that fails to list is logged
// and skipped; only a zone listing failure is returned.
func (s *CloudflareService) FetchDomainNames(ctx context.Context) ([]string, error) {
	api, err := s.getAPIClient()
	if err != nil {
		return nil, err
	}

	zones, err := api.ListZones(ctx)
	if err != nil {
		return nil, fmt.Errorf("list zones: %w", err)
	}
	logrus.Infof("[Cloudflare] Found %d zones", len(zones))

	seen := make(map[string]bool)
	var names []string
	for i, zone := range zones {
		if i > 0 {
			time.Sleep(cfRateLimitSleep)
		}
		if zone.Status != "" && zone.Status != "active" {
			logrus.Warnf("[Cloudflare] Zone %s is %s", zone.Name, zone.Status)
		}

		records, err := s.fetchAllZoneRecords(ctx, api, zone)
		if err != nil {
			logrus.Errorf("[Cloudflare] Cannot list records of zone %s: %v", zone.Name, err)
			continue
		}

		for _, record := range records {
			if !isValidRecordType(record.Type) || shouldSkipDomain(record.Name) {
				continue
			}
			name := strings.ToLower(record.Name)
			if seen[name] {
				continue
			}
			seen[name] = true
			names = append(names, name)
		}
	}

	logrus.Infof("[Cloudflare] Collected %d hostnames", len(names))
	return names, nil
}

func (s *CloudflareService) fetchAllZoneRecords(ctx context.Context, api *cloudflare.API, zone cloudflare.Zone) ([]cloudflare.DNSRecord, error) {
	var allRecords []cloudflare.DNSRecord
	page := 1

	for {
		params := cloudflare.ListDNSRecordsParams{
			ResultInfo: cloudflare.ResultInfo{
				Page:    page,
				PerPage: cfPageSize,
			},
		}

		records, info, err := api.ListDNSRecords(ctx, cloudflare.ZoneIdentifier(zone.ID), params)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}
		allRecords = append(allRecords, records...)
		if info == nil {
			break
		}
		logrus.Debugf("[Cloudflare] Zone %s page %d/%d: %d records", zone.Name, info.Page, info.TotalPages, len(records))

		if info.Page >= info.TotalPages {
			break
		}
		page++

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(cfRateLimitSleep):
		}
	}
	return allRecords, nil
}

func (s *CloudflareService) getAPIClient() (*cloudflare.API, error) {
	api, err := cloudflare.NewWithAPIToken(s.APIToken, s.Options...)
	if err != nil {
		return nil, fmt.Errorf("cloudflare client: %w", err)
	}
	return api, nil
}

func isValidRecordType(recordType string) bool {
	return recordType == "A" || recordType == "AAAA" || recordType == "CNAME"
}

// shouldSkipDomain drops names that never serve TLS: service records like
// _dmarc or selector._domainkey, and wildcards.
func shouldSkipDomain(name string) bool {
	if strings.Contains(name, "_domainkey") || strings.HasPrefix(name, "*") {
		return true
	}
	first, _, _ := strings.Cut(name, ".")
	return strings.HasPrefix(first, "_")
}
