package domain

// ScanSummary aggregates one watchlist run.
type ScanSummary struct {
	Total    int    `json:"total"`
	OK       int    `json:"ok"`
	Expiring int    `json:"expiring"`
	Errors   int    `json:"errors"`
	Duration string `json:"duration"`
	Time     string `json:"time"`
}
