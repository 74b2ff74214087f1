package appointment

import (
	"fmt"
	"time"

	"github.com/hms/hms/internal/domain/patient"
	"github.com/hms/hms/internal/domain/staff"
	"github.com/hms/hms/internal/platform/clock"
)

const Key = "appointments"

const (
	StatusScheduled  = "scheduled"
	StatusInProgress = "in-progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

var transitions = map[string][]string{
	StatusScheduled:  {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted},
}

func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Appointment struct {
	ID          string     `json:"id"`
	PatientID   patient.ID `json:"patientId"`
	PatientName string     `json:"patientName"`
	DoctorID    staff.ID   `json:"doctorId"`
	DoctorName  string     `json:"doctorName"`
	Department  string     `json:"department,omitempty"`
	Date        string     `json:"date"`
	Time        string     `json:"time"`
	Type        string     `json:"type"`
	Status      string     `json:"status"`
	TokenNumber int        `json:"tokenNumber"`
	Reason      string     `json:"reason,omitempty"`
	Notes       string     `json:"notes,omitempty"`
}

func (a Appointment) RecordID() string { return a.ID }

// Active reports whether the appointment still occupies its slot.
func (a Appointment) Active() bool {
	return a.Status != StatusCancelled
}

func (a Appointment) Validate() error {
	if a.PatientID == "" {
		return fmt.Errorf("patientId is required")
	}
	if a.DoctorID == "" {
		return fmt.Errorf("doctorId is required")
	}
	if _, err := clock.ParseDate(a.Date); err != nil {
		return err
	}
	if _, err := time.Parse("15:04", a.Time); err != nil {
		return fmt.Errorf("time %q must be HH:MM", a.Time)
	}
	switch a.Status {
	case StatusScheduled, StatusInProgress, StatusCompleted, StatusCancelled:
	default:
		return fmt.Errorf("status %q is not valid", a.Status)
	}
	return nil
}

// NextToken returns the token for a new appointment on date: one more than
// the highest token already issued that day, cancelled ones included.
func NextToken(appts []Appointment, date string) int {
	highest := 0
	for _, a := range appts {
		if a.Date == date && a.TokenNumber > highest {
			highest = a.TokenNumber
		}
	}
	return highest + 1
}

// slotTaken finds an active appointment of the same doctor at the same date
// and time, other than self.
func slotTaken(appts []Appointment, doctor staff.ID, date, at, self string) (Appointment, bool) {
	for _, a := range appts {
		if a.ID != self && a.Active() && a.DoctorID == doctor && a.Date == date && a.Time == at {
			return a, true
		}
	}
	return Appointment{}, false
}
