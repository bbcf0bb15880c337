package booking

import (
	"fmt"
	"time"
)

// TankType is the kind of tank to be cleaned.
type TankType string

const (
	TankOverhead    TankType = "overhead"
	TankUnderground TankType = "underground"
	TankOther       TankType = "other"
)

// IsValid returns true if the tank type is recognized.
func (t TankType) IsValid() bool {
	switch t {
	case TankOverhead, TankUnderground, TankOther:
		return true
	}
	return false
}

// PackageType is the cleaning package the customer chose.
type PackageType string

const (
	PackageManual    PackageType = "manual"
	PackageAutomated PackageType = "automated"
)

// IsValid returns true if the package type is recognized.
func (p PackageType) IsValid() bool {
	return p == PackageManual || p == PackageAutomated
}

// ServiceDateLayout is the wire format of ServiceSpec.ServiceDate.
const ServiceDateLayout = "2006-01-02"

// ServiceSpec describes what was ordered. It is immutable after creation,
// except for the date and time slot which an admin may reschedule.
type ServiceSpec struct {
	TankType        TankType    `json:"tank_type"`
	TankCapacity    string      `json:"tank_capacity"`
	TankPhotoURL    string      `json:"tank_photo_url,omitempty"`
	PackageType     PackageType `json:"package_type"`
	AddDisinfection bool        `json:"add_disinfection"`
	AddMaintenance  bool        `json:"add_maintenance"`
	AddRepair       bool        `json:"add_repair"`
	ServiceDate     string      `json:"service_date"`
	ServiceTime     string      `json:"service_time"`
}

// Validate checks enum values and required fields.
func (s ServiceSpec) Validate() error {
	if !s.TankType.IsValid() {
		return fmt.Errorf("invalid tank type: %s", s.TankType)
	}
	if s.TankCapacity == "" {
		return fmt.Errorf("tank capacity is required")
	}
	if !s.PackageType.IsValid() {
		return fmt.Errorf("invalid package type: %s", s.PackageType)
	}
	if err := ValidateSchedule(s.ServiceDate, s.ServiceTime); err != nil {
		return err
	}
	return nil
}

// ValidateSchedule checks a service date (YYYY-MM-DD) and a non-empty time slot.
func ValidateSchedule(date, slot string) error {
	if _, err := time.Parse(ServiceDateLayout, date); err != nil {
		return fmt.Errorf("service date must be YYYY-MM-DD: %s", date)
	}
	if slot == "" {
		return fmt.Errorf("service time is required")
	}
	return nil
}
