package models

import (
	"errors"
	"fmt"
	"time"
)

// GrievanceCategory classifies a citizen complaint
type GrievanceCategory string

const (
	CategoryLeakage  GrievanceCategory = "leakage"
	CategoryNoWater  GrievanceCategory = "no_water"
	CategoryQuality  GrievanceCategory = "quality"
	CategoryBilling  GrievanceCategory = "billing"
	CategoryPressure GrievanceCategory = "pressure"
)

var GrievanceCategories = []GrievanceCategory{
	CategoryLeakage,
	CategoryNoWater,
	CategoryQuality,
	CategoryBilling,
	CategoryPressure,
}

func (c GrievanceCategory) Valid() bool {
	for _, known := range GrievanceCategories {
		if c == known {
			return true
		}
	}
	return false
}

// Label is the human readable category name
func (c GrievanceCategory) Label() string {
	switch c {
	case CategoryLeakage:
		return "Leakage"
	case CategoryNoWater:
		return "No Water"
	case CategoryQuality:
		return "Water Quality"
	case CategoryBilling:
		return "Billing"
	case CategoryPressure:
		return "Low Pressure"
	default:
		return string(c)
	}
}

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

func (p Priority) Valid() bool {
	return p == PriorityHigh || p == PriorityMedium || p == PriorityLow
}

// GrievanceStatus is a stage of the grievance workflow
type GrievanceStatus string

const (
	GrievanceRegistered GrievanceStatus = "registered"
	GrievanceAssigned   GrievanceStatus = "assigned"
	GrievanceInProgress GrievanceStatus = "in_progress"
	GrievanceResolved   GrievanceStatus = "resolved"
)

var GrievanceStatuses = []GrievanceStatus{
	GrievanceRegistered,
	GrievanceAssigned,
	GrievanceInProgress,
	GrievanceResolved,
}

// Label is the human readable status name
func (s GrievanceStatus) Label() string {
	switch s {
	case GrievanceRegistered:
		return "Registered"
	case GrievanceAssigned:
		return "Assigned"
	case GrievanceInProgress:
		return "In Progress"
	case GrievanceResolved:
		return "Resolved"
	default:
		return string(s)
	}
}

var grievanceTransitions = map[GrievanceStatus]GrievanceStatus{
	GrievanceRegistered: GrievanceAssigned,
	GrievanceAssigned:   GrievanceInProgress,
	GrievanceInProgress: GrievanceResolved,
}

var (
	// ErrIllegalTransition matches every *TransitionError
	ErrIllegalTransition = errors.New("illegal grievance transition")
	// ErrNoChange is returned when the requested status equals the current one
	ErrNoChange = errors.New("grievance already in requested status")
)

// TransitionError describes a rejected status change
type TransitionError struct {
	From GrievanceStatus
	To   GrievanceStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal grievance transition %s -> %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrIllegalTransition
}

// NextStatus returns the only status reachable from s
func NextStatus(s GrievanceStatus) (GrievanceStatus, bool) {
	next, ok := grievanceTransitions[s]
	return next, ok
}

// ValidateTransition checks a status change against the workflow. Only single
// forward steps are allowed; resolved is terminal.
func ValidateTransition(from, to GrievanceStatus) error {
	if from == to {
		return ErrNoChange
	}
	if next, ok := grievanceTransitions[from]; ok && next == to {
		return nil
	}
	return &TransitionError{From: from, To: to}
}

// TimelineEvent records a status change
type TimelineEvent struct {
	Status    GrievanceStatus `json:"status"`
	Timestamp time.Time       `json:"timestamp"`
	By        string          `json:"by"`
}

type Comment struct {
	Text      string    `json:"text"`
	By        string    `json:"by"`
	Timestamp time.Time `json:"timestamp"`
}

type GrievanceLocation struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address"`
}

// Grievance is a citizen complaint moving through the workflow
type Grievance struct {
	ID          string            `json:"id"`
	CitizenName string            `json:"citizen_name"`
	Phone       string            `json:"phone"`
	Category    GrievanceCategory `json:"category"`
	Description string            `json:"description"`
	Location    GrievanceLocation `json:"location"`
	Status      GrievanceStatus   `json:"status"`
	Priority    Priority          `json:"priority"`
	AssignedTo  string            `json:"assigned_to,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	Timeline    []TimelineEvent   `json:"timeline"`
	Comments    []Comment         `json:"comments"`
}

// Advance moves the grievance to status `to`, appending a timeline event
func (g *Grievance) Advance(to GrievanceStatus, by string, at time.Time) error {
	if err := ValidateTransition(g.Status, to); err != nil {
		return err
	}
	g.Status = to
	g.Timeline = append(g.Timeline, TimelineEvent{Status: to, Timestamp: at, By: by})
	return nil
}

// ResolutionDuration is the span between the first and last timeline events
func (g *Grievance) ResolutionDuration() (time.Duration, bool) {
	if g.Status != GrievanceResolved || len(g.Timeline) < 2 {
		return 0, false
	}
	return g.Timeline[len(g.Timeline)-1].Timestamp.Sub(g.Timeline[0].Timestamp), true
}

func (g *Grievance) Open() bool {
	return g.Status != GrievanceResolved
}

func (g *Grievance) Clone() *Grievance {
	c := *g
	c.Timeline = append([]TimelineEvent(nil), g.Timeline...)
	c.Comments = append([]Comment(nil), g.Comments...)
	return &c
}

// GrievanceFilter narrows grievance listings. Empty fields match everything.
type GrievanceFilter struct {
	Status   GrievanceStatus
	Category GrievanceCategory
	Priority Priority
}

func (g *Grievance) Matches(f GrievanceFilter) bool {
	if f.Status != "" && g.Status != f.Status {
		return false
	}
	if f.Category != "" && g.Category != f.Category {
		return false
	}
	if f.Priority != "" && g.Priority != f.Priority {
		return false
	}
	return true
}
