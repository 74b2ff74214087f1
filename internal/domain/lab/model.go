package lab

import (
	"fmt"
	"strings"

	"github.com/hms/hms/internal/domain/patient"
	"github.com/hms/hms/internal/domain/staff"
)

const Key = "labTests"

const (
	StatusPending         = "pending"
	StatusSampleCollected = "sample-collected"
	StatusInProgress      = "in-progress"
	StatusCompleted       = "completed"
	StatusCancelled       = "cancelled"
)

var transitions = map[string][]string{
	StatusPending:         {StatusSampleCollected, StatusCancelled},
	StatusSampleCollected: {StatusInProgress, StatusCancelled},
	StatusInProgress:      {StatusCompleted, StatusCancelled},
}

func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Parameter is one measured value of a test.
type Parameter struct {
	Name           string `json:"name"`
	Value          string `json:"value"`
	Unit           string `json:"unit,omitempty"`
	ReferenceRange string `json:"referenceRange,omitempty"`
	Flag           string `json:"flag,omitempty"`
}

// Abnormal reports a flag other than normal.
func (p Parameter) Abnormal() bool {
	return p.Flag != "" && p.Flag != "normal"
}

type Test struct {
	ID                  string      `json:"id"`
	PatientID           patient.ID  `json:"patientId"`
	PatientName         string      `json:"patientName"`
	DoctorID            staff.ID    `json:"doctorId"`
	DoctorName          string      `json:"doctorName"`
	TestName            string      `json:"testName"`
	Category            string      `json:"category,omitempty"`
	Priority            string      `json:"priority"`
	Status              string      `json:"status"`
	OrderedDate         string      `json:"orderedDate"`
	SampleCollectedDate string      `json:"sampleCollectedDate,omitempty"`
	CompletedDate       string      `json:"completedDate,omitempty"`
	Results             []Parameter `json:"results,omitempty"`
	Cost                float64     `json:"cost,omitempty"`
	Notes               string      `json:"notes,omitempty"`
}

func (t Test) RecordID() string { return t.ID }

func (t Test) Validate() error {
	if t.PatientID == "" {
		return fmt.Errorf("patientId is required")
	}
	if strings.TrimSpace(t.TestName) == "" {
		return fmt.Errorf("testName is required")
	}
	switch t.Priority {
	case "routine", "urgent", "stat":
	default:
		return fmt.Errorf("priority must be routine, urgent or stat")
	}
	switch t.Status {
	case StatusPending, StatusSampleCollected, StatusInProgress, StatusCompleted, StatusCancelled:
	default:
		return fmt.Errorf("status %q is not valid", t.Status)
	}
	return nil
}

// Abnormal reports whether any result parameter is flagged.
func (t Test) Abnormal() bool {
	for _, p := range t.Results {
		if p.Abnormal() {
			return true
		}
	}
	return false
}
