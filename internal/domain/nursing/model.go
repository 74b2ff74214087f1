package nursing

import (
	"fmt"
	"strings"

	"github.com/hms/hms/internal/domain/patient"
	"github.com/hms/hms/internal/domain/staff"
)

const (
	VitalsKey   = "vitals"
	NotesKey    = "nursingNotes"
	ScheduleKey = "medicationSchedule"
	AlertsKey   = "nurseAlerts"
)

// Vitals is one set of observations. Temperature is in °F. A zero reading
// was not taken.
type Vitals struct {
	ID               string     `json:"id"`
	PatientID        patient.ID `json:"patientId"`
	PatientName      string     `json:"patientName"`
	RecordedBy       staff.ID   `json:"recordedBy"`
	RecordedByName   string     `json:"recordedByName"`
	Date             string     `json:"date"`
	Time             string     `json:"time"`
	Temperature      float64    `json:"temperature,omitempty"`
	HeartRate        int        `json:"heartRate,omitempty"`
	SystolicBP       int        `json:"systolicBP,omitempty"`
	DiastolicBP      int        `json:"diastolicBP,omitempty"`
	RespiratoryRate  int        `json:"respiratoryRate,omitempty"`
	OxygenSaturation int        `json:"oxygenSaturation,omitempty"`
	Weight           float64    `json:"weight,omitempty"`
	Notes            string     `json:"notes,omitempty"`
}

func (v Vitals) RecordID() string { return v.ID }

func (v Vitals) Validate() error {
	if v.PatientID == "" {
		return fmt.Errorf("patientId is required")
	}
	if v.Temperature == 0 && v.HeartRate == 0 && v.SystolicBP == 0 &&
		v.RespiratoryRate == 0 && v.OxygenSaturation == 0 {
		return fmt.Errorf("at least one reading is required")
	}
	if v.OxygenSaturation < 0 || v.OxygenSaturation > 100 {
		return fmt.Errorf("oxygenSaturation must be between 0 and 100")
	}
	if v.SystolicBP != 0 && v.DiastolicBP >= v.SystolicBP {
		return fmt.Errorf("diastolicBP must be below systolicBP")
	}
	if v.Temperature < 0 || v.HeartRate < 0 || v.RespiratoryRate < 0 || v.Weight < 0 {
		return fmt.Errorf("readings must not be negative")
	}
	return nil
}

// Abnormalities describes every reading outside its normal adult range.
func (v Vitals) Abnormalities() []string {
	var out []string
	check := func(taken bool, low, high bool, name string, value any) {
		switch {
		case !taken:
		case low:
			out = append(out, fmt.Sprintf("low %s (%v)", name, value))
		case high:
			out = append(out, fmt.Sprintf("high %s (%v)", name, value))
		}
	}
	check(v.Temperature != 0, v.Temperature < 95, v.Temperature > 100.4, "temperature", v.Temperature)
	check(v.HeartRate != 0, v.HeartRate < 60, v.HeartRate > 100, "heart rate", v.HeartRate)
	check(v.SystolicBP != 0, v.SystolicBP < 90, v.SystolicBP > 140, "systolic pressure", v.SystolicBP)
	check(v.DiastolicBP != 0, v.DiastolicBP < 60, v.DiastolicBP > 90, "diastolic pressure", v.DiastolicBP)
	check(v.RespiratoryRate != 0, v.RespiratoryRate < 12, v.RespiratoryRate > 20, "respiratory rate", v.RespiratoryRate)
	check(v.OxygenSaturation != 0, v.OxygenSaturation < 95, false, "oxygen saturation", v.OxygenSaturation)
	return out
}

// Critical readings escalate an alert.
func (v Vitals) Critical() bool {
	return (v.OxygenSaturation != 0 && v.OxygenSaturation < 90) || v.SystolicBP > 180
}

var noteCategories = map[string]bool{
	"general": true, "assessment": true, "care-plan": true, "incident": true, "handover": true,
}

type Note struct {
	ID          string     `json:"id"`
	PatientID   patient.ID `json:"patientId"`
	PatientName string     `json:"patientName"`
	NurseID     staff.ID   `json:"nurseId"`
	NurseName   string     `json:"nurseName"`
	Date        string     `json:"date"`
	Time        string     `json:"time"`
	Category    string     `json:"category"`
	Content     string     `json:"content"`
}

func (n Note) RecordID() string { return n.ID }

func (n Note) Validate() error {
	if n.PatientID == "" {
		return fmt.Errorf("patientId is required")
	}
	if strings.TrimSpace(n.Content) == "" {
		return fmt.Errorf("content is required")
	}
	if !noteCategories[n.Category] {
		return fmt.Errorf("category %q is not valid", n.Category)
	}
	return nil
}

const (
	DoseScheduled    = "scheduled"
	DoseAdministered = "administered"
	DoseMissed       = "missed"
	DoseHeld         = "held"
)

type MedicationDose struct {
	ID               string     `json:"id"`
	PatientID        patient.ID `json:"patientId"`
	PatientName      string     `json:"patientName"`
	Medicine         string     `json:"medicine"`
	Dosage           string     `json:"dosage"`
	Route            string     `json:"route"`
	ScheduledDate    string     `json:"scheduledDate"`
	ScheduledTime    string     `json:"scheduledTime"`
	Status           string     `json:"status"`
	AdministeredBy   staff.ID   `json:"administeredBy,omitempty"`
	AdministeredName string     `json:"administeredByName,omitempty"`
	AdministeredAt   string     `json:"administeredAt,omitempty"`
	Notes            string     `json:"notes,omitempty"`
}

func (d MedicationDose) RecordID() string { return d.ID }

func (d MedicationDose) Validate() error {
	if d.PatientID == "" {
		return fmt.Errorf("patientId is required")
	}
	if strings.TrimSpace(d.Medicine) == "" || strings.TrimSpace(d.Dosage) == "" {
		return fmt.Errorf("medicine and dosage are required")
	}
	if d.ScheduledDate == "" || len(d.ScheduledTime) != 5 || d.ScheduledTime[2] != ':' {
		return fmt.Errorf("scheduledDate and an HH:MM scheduledTime are required")
	}
	switch d.Status {
	case DoseScheduled, DoseAdministered, DoseMissed, DoseHeld:
	default:
		return fmt.Errorf("status %q is not valid", d.Status)
	}
	return nil
}

const (
	AlertActive       = "active"
	AlertAcknowledged = "acknowledged"
	AlertResolved     = "resolved"
)

type Alert struct {
	ID             string     `json:"id"`
	PatientID      patient.ID `json:"patientId"`
	PatientName    string     `json:"patientName"`
	Type           string     `json:"type"`
	Severity       string     `json:"severity"`
	Message        string     `json:"message"`
	Date           string     `json:"date"`
	Time           string     `json:"time"`
	Status         string     `json:"status"`
	Source         string     `json:"sourceId,omitempty"`
	AcknowledgedBy staff.ID   `json:"acknowledgedBy,omitempty"`
}

func (a Alert) RecordID() string { return a.ID }

func (a Alert) Validate() error {
	if strings.TrimSpace(a.Message) == "" {
		return fmt.Errorf("message is required")
	}
	switch a.Severity {
	case "low", "medium", "high", "critical":
	default:
		return fmt.Errorf("severity %q is not valid", a.Severity)
	}
	switch a.Status {
	case AlertActive, AlertAcknowledged, AlertResolved:
	default:
		return fmt.Errorf("status %q is not valid", a.Status)
	}
	return nil
}
