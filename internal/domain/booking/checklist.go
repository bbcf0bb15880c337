package booking

import (
	"fmt"
	"time"
)

// StepName identifies one of the fixed cleaning procedure steps.
type StepName string

const (
	StepArrival              StepName = "arrival"
	StepCustomerVerification StepName = "customer_verification"
	StepPreInspection        StepName = "pre_inspection"
	StepDrain                StepName = "drain"
	StepScrub                StepName = "scrub"
	StepHighPressureClean    StepName = "high_pressure_clean"
	StepDisinfection         StepName = "disinfection"
	StepFinalRinse           StepName = "final_rinse"
)

// StepNames is the closed set of checklist steps in procedure order.
// Order is informational; steps may be updated in any sequence.
var StepNames = []StepName{
	StepArrival,
	StepCustomerVerification,
	StepPreInspection,
	StepDrain,
	StepScrub,
	StepHighPressureClean,
	StepDisinfection,
	StepFinalRinse,
}

// IsValid returns true if the step belongs to the checklist.
func (n StepName) IsValid() bool {
	for _, s := range StepNames {
		if s == n {
			return true
		}
	}
	return false
}

// ParseStepName converts a string to a StepName, returning an error if it is not a checklist step.
func ParseStepName(s string) (StepName, error) {
	name := StepName(s)
	if !name.IsValid() {
		return "", fmt.Errorf("unknown checklist step: %s", s)
	}
	return name, nil
}

// StepStatus is the technician-reported state of a single step.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepCompleted StepStatus = "completed"
	StepNA        StepStatus = "na"
	StepEscalate  StepStatus = "escalate"
)

// IsValid returns true if the step status is recognized.
func (s StepStatus) IsValid() bool {
	switch s {
	case StepPending, StepCompleted, StepNA, StepEscalate:
		return true
	}
	return false
}

// Step is one checklist entry. Photos only grow.
type Step struct {
	Status    StepStatus `json:"status" bson:"status"`
	Timestamp *time.Time `json:"timestamp" bson:"timestamp"`
	Photos    []string   `json:"photos" bson:"photos"`
	Notes     string     `json:"notes" bson:"notes"`
}

// ChemicalUsage records a consumable applied during the job.
type ChemicalUsage struct {
	Name       string    `json:"name" bson:"name"`
	Quantity   float64   `json:"quantity" bson:"quantity"`
	Unit       string    `json:"unit" bson:"unit"`
	RecordedAt time.Time `json:"recorded_at" bson:"recorded_at"`
}

// Checklist is created exactly once when a job starts.
type Checklist struct {
	StartedAt        time.Time          `json:"started_at" bson:"started_at"`
	Steps            map[StepName]*Step `json:"steps" bson:"steps"`
	ChemicalsUsed    []ChemicalUsage    `json:"chemicals_used" bson:"chemicals_used"`
	WaterUsageLitres int                `json:"water_usage" bson:"water_usage"`
}

// NewChecklist builds a checklist with every step pending.
func NewChecklist(startedAt time.Time) *Checklist {
	steps := make(map[StepName]*Step, len(StepNames))
	for _, name := range StepNames {
		steps[name] = &Step{Status: StepPending, Photos: []string{}}
	}
	return &Checklist{
		StartedAt:     startedAt,
		Steps:         steps,
		ChemicalsUsed: []ChemicalUsage{},
	}
}

// StepUpdate is a partial update to one step. Empty Notes and PhotoURL leave those fields alone.
type StepUpdate struct {
	Step      StepName
	Status    StepStatus
	Notes     string
	PhotoURL  string
	Timestamp time.Time
}

// Validate checks the step name and status.
func (u StepUpdate) Validate() error {
	if !u.Step.IsValid() {
		return fmt.Errorf("unknown checklist step: %s", u.Step)
	}
	if !u.Status.IsValid() {
		return fmt.Errorf("invalid step status: %s", u.Status)
	}
	if u.Timestamp.IsZero() {
		return fmt.Errorf("step timestamp is required")
	}
	return nil
}

// Apply merges the update into the checklist.
func (c *Checklist) Apply(u StepUpdate) {
	step, ok := c.Steps[u.Step]
	if !ok {
		step = &Step{Photos: []string{}}
		c.Steps[u.Step] = step
	}
	ts := u.Timestamp
	step.Status = u.Status
	step.Timestamp = &ts
	if u.Notes != "" {
		step.Notes = u.Notes
	}
	if u.PhotoURL != "" {
		step.Photos = append(step.Photos, u.PhotoURL)
	}
}

// UsageUpdate adds consumables to a running job.
type UsageUpdate struct {
	Chemical    *ChemicalUsage
	WaterLitres int
}

// Validate rejects empty or negative usage.
func (u UsageUpdate) Validate() error {
	if u.Chemical == nil && u.WaterLitres == 0 {
		return fmt.Errorf("no usage to record")
	}
	if u.WaterLitres < 0 {
		return fmt.Errorf("water usage cannot be negative")
	}
	if u.Chemical != nil {
		if u.Chemical.Name == "" {
			return fmt.Errorf("chemical name is required")
		}
		if u.Chemical.Quantity <= 0 {
			return fmt.Errorf("chemical quantity must be positive")
		}
	}
	return nil
}

// RecordUsage appends a chemical entry and adds water litres.
func (c *Checklist) RecordUsage(u UsageUpdate) {
	if u.Chemical != nil {
		c.ChemicalsUsed = append(c.ChemicalsUsed, *u.Chemical)
	}
	c.WaterUsageLitres += u.WaterLitres
}

// Clone returns a deep copy.
func (c *Checklist) Clone() *Checklist {
	if c == nil {
		return nil
	}
	out := &Checklist{
		StartedAt:        c.StartedAt,
		Steps:            make(map[StepName]*Step, len(c.Steps)),
		ChemicalsUsed:    append([]ChemicalUsage{}, c.ChemicalsUsed...),
		WaterUsageLitres: c.WaterUsageLitres,
	}
	for name, s := range c.Steps {
		cp := *s
		cp.Photos = append([]string{}, s.Photos...)
		if s.Timestamp != nil {
			ts := *s.Timestamp
			cp.Timestamp = &ts
		}
		out.Steps[name] = &cp
	}
	return out
}
