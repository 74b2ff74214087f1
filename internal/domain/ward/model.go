package ward

import (
	"fmt"
	"strings"

	"github.com/hms/hms/internal/domain/patient"
	"github.com/hms/hms/internal/domain/staff"
)

const (
	DepartmentsKey = "departments"
	BedsKey        = "beds"
)

type (
	DepartmentID string
	BedID        string
)

type Department struct {
	ID          DepartmentID `json:"id"`
	Name        string       `json:"name"`
	HeadID      staff.ID     `json:"headId,omitempty"`
	HeadName    string       `json:"headName,omitempty"`
	Floor       string       `json:"floor,omitempty"`
	Phone       string       `json:"phone,omitempty"`
	Description string       `json:"description,omitempty"`
	Status      string       `json:"status"`
}

func (d Department) RecordID() string { return string(d.ID) }

func (d Department) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if d.Status != "active" && d.Status != "inactive" {
		return fmt.Errorf("status must be active or inactive")
	}
	return nil
}

const (
	BedAvailable   = "available"
	BedOccupied    = "occupied"
	BedMaintenance = "maintenance"
	BedReserved    = "reserved"
)

var bedTypes = map[string]bool{"general": true, "semi-private": true, "private": true, "icu": true}

type Bed struct {
	ID             BedID        `json:"id"`
	Number         string       `json:"bedNumber"`
	DepartmentID   DepartmentID `json:"departmentId"`
	DepartmentName string       `json:"departmentName"`
	Ward           string       `json:"ward,omitempty"`
	Type           string       `json:"type"`
	Status         string       `json:"status"`
	PatientID      patient.ID   `json:"patientId,omitempty"`
	PatientName    string       `json:"patientName,omitempty"`
	AdmissionDate  string       `json:"admissionDate,omitempty"`
	DailyRate      float64      `json:"dailyRate"`
}

func (b Bed) RecordID() string { return string(b.ID) }

// Validate enforces that exactly the occupied beds carry a patient.
func (b Bed) Validate() error {
	if strings.TrimSpace(b.Number) == "" {
		return fmt.Errorf("bedNumber is required")
	}
	if b.DepartmentID == "" {
		return fmt.Errorf("departmentId is required")
	}
	if !bedTypes[b.Type] {
		return fmt.Errorf("type %q is not valid", b.Type)
	}
	if b.DailyRate < 0 {
		return fmt.Errorf("dailyRate must not be negative")
	}
	switch b.Status {
	case BedOccupied:
		if b.PatientID == "" {
			return fmt.Errorf("an occupied bed needs a patient")
		}
	case BedAvailable, BedMaintenance, BedReserved:
		if b.PatientID != "" {
			return fmt.Errorf("a %s bed cannot hold a patient", b.Status)
		}
	default:
		return fmt.Errorf("status %q is not valid", b.Status)
	}
	return nil
}

// Occupancy counts beds by status. Rate is the occupied share in percent.
type Occupancy struct {
	DepartmentID DepartmentID `json:"departmentId,omitempty"`
	Name         string       `json:"name"`
	Total        int          `json:"total"`
	Occupied     int          `json:"occupied"`
	Available    int          `json:"available"`
	Maintenance  int          `json:"maintenance"`
	Reserved     int          `json:"reserved"`
	Rate         float64      `json:"occupancyRate"`
}

func (o *Occupancy) add(b Bed) {
	o.Total++
	switch b.Status {
	case BedOccupied:
		o.Occupied++
	case BedAvailable:
		o.Available++
	case BedMaintenance:
		o.Maintenance++
	case BedReserved:
		o.Reserved++
	}
}

func (o *Occupancy) finish() {
	if o.Total > 0 {
		o.Rate = float64(o.Occupied*1000/o.Total) / 10
	}
}

type OccupancyReport struct {
	Overall     Occupancy   `json:"overall"`
	Departments []Occupancy `json:"departments"`
}
