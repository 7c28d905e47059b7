// internal/models/failure_report.go
package models

import "time"

type ReportStatus string

const (
	ReportStatusOpen     ReportStatus = "open"
	ReportStatusResolved ReportStatus = "resolved"
)

// FailureReport is the durable record of one terminal pipeline failure. Only
// the resolution fields change after creation.
type FailureReport struct {
	ID             string                 `json:"id"`
	Phase          string                 `json:"phase"`
	ArtifactID     string                 `json:"artifactId,omitempty"`
	ArtifactKind   ArtifactKind           `json:"artifactKind,omitempty"`
	Category       string                 `json:"category"`
	ErrorKind      string                 `json:"errorKind"`
	Summary        string                 `json:"summary"`
	Details        map[string]interface{} `json:"details"`
	Blocking       bool                   `json:"blocking"`
	RecoveryAction string                 `json:"recoveryAction"`
	RawExcerpt     string                 `json:"rawExcerpt,omitempty"`
	CreatedAt      time.Time              `json:"createdAt"`

	Status     ReportStatus `json:"status"`
	Resolution string       `json:"resolution,omitempty"`
	ResolvedAt *time.Time   `json:"resolvedAt,omitempty"`
}
