package models

import "time"

// Domain is a single (owner, domain name) record read from a domain source
type Domain struct {
	OwnerID string `json:"project_id"`
	Name    string `json:"name"`
}

// Rule is the generated pattern matching every invalid suffix of one owner
type Rule struct {
	OwnerID string `json:"project_id"`
	Pattern string `json:"regexp"`
}

// RunSummary describes the outcome of one rule generation run
type RunSummary struct {
	RunID             string    `json:"run_id"`
	DomainsSeen       int       `json:"domains_seen"`
	SuffixesValidated int       `json:"suffixes_validated"`
	ValidSuffixes     int       `json:"valid_suffixes"`
	InvalidSuffixes   int       `json:"invalid_suffixes"`
	Rules             int       `json:"rules"`
	StartedAt         time.Time `json:"started_at"`
	FinishedAt        time.Time `json:"finished_at"`
	Error             string    `json:"error,omitempty"`
}

// Duration returns how long the run took
func (s RunSummary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}
