package booking

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Severity grades an incident.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// IsValid returns true if the severity is recognized.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// IncidentReport is an on-site problem raised by the technician. Reports are never edited or removed.
type IncidentReport struct {
	ID              uuid.UUID `json:"id" bson:"id"`
	Description     string    `json:"description" bson:"description"`
	Severity        Severity  `json:"severity" bson:"severity"`
	PhotoURLs       []string  `json:"photo_urls" bson:"photo_urls"`
	UnableToProceed bool      `json:"unable_to_proceed" bson:"unable_to_proceed"`
	ReportedBy      uuid.UUID `json:"reported_by" bson:"reported_by"`
	ReportedAt      time.Time `json:"reported_at" bson:"reported_at"`
}

// NewIncidentReport validates and stamps a new report.
func NewIncidentReport(
	reportedBy uuid.UUID,
	description string,
	severity Severity,
	photoURLs []string,
	unableToProceed bool,
	now time.Time,
) (IncidentReport, error) {
	if description == "" {
		return IncidentReport{}, fmt.Errorf("incident description is required")
	}
	if !severity.IsValid() {
		return IncidentReport{}, fmt.Errorf("invalid severity: %s", severity)
	}
	if photoURLs == nil {
		photoURLs = []string{}
	}
	return IncidentReport{
		ID:              uuid.New(),
		Description:     description,
		Severity:        severity,
		PhotoURLs:       photoURLs,
		UnableToProceed: unableToProceed,
		ReportedBy:      reportedBy,
		ReportedAt:      now,
	}, nil
}
