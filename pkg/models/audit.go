package models

import "time"

// AuditEntry records the outcome of one gateway request: which resolution
// path served it and which backends were touched.
type AuditEntry struct {
	RequestID      string    `json:"request_id"`
	IdentityHash   string    `json:"identity_hash"`
	IdentityPrefix string    `json:"identity_prefix"`
	Route          string    `json:"route"`
	Plan           PlanTier  `json:"plan"`
	Path           string    `json:"path"`                  // canned | trivial | memo | rate_limited | generated | generation_failed
	SpeechPath     string    `json:"speech_path,omitempty"` // cached | premium | budget | budget_fallback | failed | none
	StoreProvider  string    `json:"store_provider,omitempty"`
	StatusCode     int       `json:"status_code"`
	LatencyMs      int64     `json:"latency_ms"`
	CreatedAt      time.Time `json:"created_at"`
}

// AuditConfig controls the audit logging subsystem.
type AuditConfig struct {
	Enabled       bool   `yaml:"enabled"`
	DBPath        string `yaml:"db_path"`
	RetentionDays int    `yaml:"retention_days"`
}

// AuditQueryOpts specifies filters for querying audit entries.
type AuditQueryOpts struct {
	Route          string
	Plan           string
	Path           string
	IdentityPrefix string
	Since          time.Time
	Limit          int
}

// AuditStat holds aggregate counts for a route/path/day combination.
type AuditStat struct {
	Route string
	Path  string
	Day   string
	Count int
}
