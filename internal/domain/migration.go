package domain

import "time"

// MigrationProgress classifies one collection by document shape.
type MigrationProgress struct {
	Kind            string    `json:"kind"`
	Total           int       `json:"total"`
	Legacy          int       `json:"legacy"`
	Comprehensive   int       `json:"comprehensive"`
	ProgressPercent float64   `json:"migrationProgressPercent"`
	GeneratedAt     time.Time `json:"generatedAt"`
}
