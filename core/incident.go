package core

import (
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Severity is the incident priority level. Lower is more urgent.
type Severity string

const (
	SeverityP0 Severity = "P0" // Critical - immediate action
	SeverityP1 Severity = "P1" // High - < 1 hour
	SeverityP2 Severity = "P2" // Medium - < 24 hours
	SeverityP3 Severity = "P3" // Low - < 1 week
	SeverityP4 Severity = "P4" // Informational
)

// Priority returns the numeric priority of the severity (lower is more urgent).
func (s Severity) Priority() int {
	switch s {
	case SeverityP0:
		return 0
	case SeverityP1:
		return 1
	case SeverityP2:
		return 2
	case SeverityP3:
		return 3
	default:
		return 4
	}
}

// IsUrgent reports whether the severity requires immediate attention.
func (s Severity) IsUrgent() bool {
	return s == SeverityP0 || s == SeverityP1
}

// Increase returns the next more urgent severity, clamped at P0.
func (s Severity) Increase() Severity {
	switch s {
	case SeverityP4:
		return SeverityP3
	case SeverityP3:
		return SeverityP2
	case SeverityP2:
		return SeverityP1
	default:
		return SeverityP0
	}
}

// Decrease returns the next less urgent severity, clamped at P4.
func (s Severity) Decrease() Severity {
	switch s {
	case SeverityP0:
		return SeverityP1
	case SeverityP1:
		return SeverityP2
	case SeverityP2:
		return SeverityP3
	default:
		return SeverityP4
	}
}

// IncidentType categorizes the affected domain of an incident.
type IncidentType string

const (
	IncidentTypeInfrastructure IncidentType = "infrastructure"
	IncidentTypeApplication    IncidentType = "application"
	IncidentTypeSecurity       IncidentType = "security"
	IncidentTypeData           IncidentType = "data"
	IncidentTypePerformance    IncidentType = "performance"
	IncidentTypeAvailability   IncidentType = "availability"
	IncidentTypeCompliance     IncidentType = "compliance"
	IncidentTypeUnknown        IncidentType = "unknown"
)

// IncidentState tracks the lifecycle of an incident.
type IncidentState string

const (
	IncidentStateDetected      IncidentState = "detected"
	IncidentStateTriaged       IncidentState = "triaged"
	IncidentStateInvestigating IncidentState = "investigating"
	IncidentStateRemediating   IncidentState = "remediating"
	IncidentStateResolved      IncidentState = "resolved"
	IncidentStateClosed        IncidentState = "closed"
)

// ResolutionMethod records how an incident was resolved.
type ResolutionMethod string

const (
	ResolutionAutomated          ResolutionMethod = "automated"
	ResolutionManual             ResolutionMethod = "manual"
	ResolutionAutoAssistedManual ResolutionMethod = "auto_assisted_manual"
)

// TimelineEventType categorizes incident timeline entries.
type TimelineEventType string

const (
	TimelineEventCreated         TimelineEventType = "created"
	TimelineEventStateChanged    TimelineEventType = "state_changed"
	TimelineEventSeverityChanged TimelineEventType = "severity_changed"
	TimelineEventResolved        TimelineEventType = "resolved"
	TimelineEventComment         TimelineEventType = "comment"
)

// TimelineEvent is a single entry in an incident's audit timeline.
type TimelineEvent struct {
	Timestamp   time.Time         `json:"timestamp"`
	EventType   TimelineEventType `json:"event_type"`
	Actor       string            `json:"actor"`
	Description string            `json:"description"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Resolution holds the closing details of a resolved incident.
type Resolution struct {
	ResolvedAt time.Time        `json:"resolved_at"`
	ResolvedBy string           `json:"resolved_by"`
	Method     ResolutionMethod `json:"resolution_method"`
	RootCause  string           `json:"root_cause,omitempty"`
	Notes      string           `json:"notes"`
}

// Incident represents an incident in the system.
type Incident struct {
	ID                uuid.UUID         `json:"id"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
	State             IncidentState     `json:"state"`
	Severity          Severity          `json:"severity"`
	IncidentType      IncidentType      `json:"incident_type"`
	Source            string            `json:"source"`
	Title             string            `json:"title"`
	Description       string            `json:"description"`
	AffectedResources []string          `json:"affected_resources,omitempty"`
	Labels            map[string]string `json:"labels,omitempty"`
	RelatedIncidents  []uuid.UUID       `json:"related_incidents,omitempty"`
	ActivePlaybook    *uuid.UUID        `json:"active_playbook,omitempty"`
	Resolution        *Resolution       `json:"resolution,omitempty"`
	Timeline          []TimelineEvent   `json:"timeline,omitempty"`
	Assignees         []string          `json:"assignees,omitempty"`
	Fingerprint       string            `json:"fingerprint,omitempty"`
}

// NewIncident creates an incident in the detected state with a seeded timeline.
func NewIncident(source, title, description string, severity Severity, incidentType IncidentType) *Incident {
	now := time.Now().UTC()
	return &Incident{
		ID:           uuid.New(),
		CreatedAt:    now,
		UpdatedAt:    now,
		State:        IncidentStateDetected,
		Severity:     severity,
		IncidentType: incidentType,
		Source:       source,
		Title:        title,
		Description:  description,
		Labels:       make(map[string]string),
		Timeline: []TimelineEvent{{
			Timestamp:   now,
			EventType:   TimelineEventCreated,
			Actor:       "system",
			Description: "Incident created",
		}},
	}
}

// AddTimelineEvent appends an event and bumps the update timestamp.
func (i *Incident) AddTimelineEvent(event TimelineEvent) {
	i.Timeline = append(i.Timeline, event)
	i.UpdatedAt = time.Now().UTC()
}

// UpdateState transitions the incident to a new state and records it.
func (i *Incident) UpdateState(newState IncidentState, actor string) {
	oldState := i.State
	i.State = newState
	i.AddTimelineEvent(TimelineEvent{
		Timestamp:   time.Now().UTC(),
		EventType:   TimelineEventStateChanged,
		Actor:       actor,
		Description: fmt.Sprintf("State changed from %s to %s", oldState, newState),
		Metadata: map[string]string{
			"old_state": string(oldState),
			"new_state": string(newState),
		},
	})
}

// ChangeSeverity moves the incident to a new severity and records it.
func (i *Incident) ChangeSeverity(newSeverity Severity, actor string) {
	oldSeverity := i.Severity
	if oldSeverity == newSeverity {
		return
	}
	i.Severity = newSeverity
	i.AddTimelineEvent(TimelineEvent{
		Timestamp:   time.Now().UTC(),
		EventType:   TimelineEventSeverityChanged,
		Actor:       actor,
		Description: fmt.Sprintf("Severity changed from %s to %s", oldSeverity, newSeverity),
		Metadata: map[string]string{
			"old_severity": string(oldSeverity),
			"new_severity": string(newSeverity),
		},
	})
}

// Resolve marks the incident resolved and records the resolution details.
func (i *Incident) Resolve(resolvedBy string, method ResolutionMethod, notes, rootCause string) {
	i.Resolution = &Resolution{
		ResolvedAt: time.Now().UTC(),
		ResolvedBy: resolvedBy,
		Method:     method,
		RootCause:  rootCause,
		Notes:      notes,
	}
	i.UpdateState(IncidentStateResolved, resolvedBy)
}

// IsActive reports whether the incident still requires attention.
func (i *Incident) IsActive() bool {
	switch i.State {
	case IncidentStateDetected, IncidentStateTriaged, IncidentStateInvestigating, IncidentStateRemediating:
		return true
	}
	return false
}

// IsCritical reports whether the incident is P0 or P1.
func (i *Incident) IsCritical() bool {
	return i.Severity.IsUrgent()
}

// ComputeFingerprint derives a deduplication fingerprint from the stable
// identity fields of the incident.
func (i *Incident) ComputeFingerprint() string {
	h := sha256.New()
	h.Write([]byte(i.Source))
	h.Write([]byte(i.IncidentType))
	h.Write([]byte(i.Title))
	for _, resource := range i.AffectedResources {
		h.Write([]byte(resource))
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
