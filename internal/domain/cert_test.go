package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDaysLeft(t *testing.T) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		notAfter time.Time
		expected int
	}{
		{now.Add(10 * 24 * time.Hour), 10},
		{now.Add(10*24*time.Hour - time.Minute), 9},
		{now.Add(time.Hour), 0},
		{now, 0},
		{now.Add(-time.Hour), -1},
		{now.Add(-36 * time.Hour), -2},
	}

	for _, test := range tests {
		if got := DaysLeft(test.notAfter, now); got != test.expected {
			t.Errorf("DaysLeft(%s) = %d, expected %d", test.notAfter.Sub(now), got, test.expected)
		}
	}
}

func TestNewOKResultUsesUTCDate(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)
	notAfter := time.Date(2027, 1, 1, 3, 0, 0, 0, loc) // 2026-12-31 19:00 UTC
	now := notAfter.Add(-5 * 24 * time.Hour)

	res := NewOKResult("example.com", notAfter, now)

	if *res.ExpiryDate != "2026-12-31" {
		t.Errorf("expected 2026-12-31, got %s", *res.ExpiryDate)
	}
	if *res.DaysLeft != 5 {
		t.Errorf("expected 5 days, got %d", *res.DaysLeft)
	}
	if !res.Valid() || res.Kind != KindNone {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestResultJSONShape(t *testing.T) {
	ok := NewOKResult("a.com", time.Date(2030, 5, 1, 0, 0, 0, 0, time.UTC), time.Date(2030, 4, 1, 0, 0, 0, 0, time.UTC))
	bad := NewErrorResult("b.com", KindDNSFailure, MsgDNSFailure)

	okJSON, err := json.Marshal(ok)
	if err != nil {
		t.Fatalf("marshal ok: %v", err)
	}
	badJSON, err := json.Marshal(bad)
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}

	wantOK := `{"server":"a.com","status":"ok","expiry_date":"2030-05-01","days_left":30,"error_message":null}`
	wantBad := `{"server":"b.com","status":"error","expiry_date":null,"days_left":null,"error_message":"DNS lookup failed"}`
	if string(okJSON) != wantOK {
		t.Errorf("ok json = %s, expected %s", okJSON, wantOK)
	}
	if string(badJSON) != wantBad {
		t.Errorf("error json = %s, expected %s", badJSON, wantBad)
	}
}

func TestValid(t *testing.T) {
	days := 3
	date := "2030-01-01"
	msg := "x"
	tests := []struct {
		name     string
		res      CertificateCheckResult
		expected bool
	}{
		{"ok", CertificateCheckResult{Status: StatusOK, ExpiryDate: &date, DaysLeft: &days}, true},
		{"ok missing days", CertificateCheckResult{Status: StatusOK, ExpiryDate: &date}, false},
		{"ok with error", CertificateCheckResult{Status: StatusOK, ExpiryDate: &date, DaysLeft: &days, ErrorMessage: &msg}, false},
		{"error", CertificateCheckResult{Status: StatusError, ErrorMessage: &msg}, true},
		{"error with days", CertificateCheckResult{Status: StatusError, ErrorMessage: &msg, DaysLeft: &days}, false},
		{"neither", CertificateCheckResult{Status: StatusError}, false},
		{"unknown status", CertificateCheckResult{Status: "weird", ErrorMessage: &msg}, false},
	}

	for _, test := range tests {
		if got := test.res.Valid(); got != test.expected {
			t.Errorf("%s: Valid() = %v, expected %v", test.name, got, test.expected)
		}
	}
}
