package patient

import (
	"fmt"
	"strings"

	"github.com/hms/hms/internal/domain/staff"
)

const (
	PatientsKey       = "patients"
	MedicalRecordsKey = "medicalRecords"
	PrescriptionsKey  = "prescriptions"
)

type ID string

// Patient statuses. Admitted and discharged are driven by bed assignment.
const (
	StatusActive     = "active"
	StatusAdmitted   = "admitted"
	StatusDischarged = "discharged"
	StatusInactive   = "inactive"
)

var validStatuses = map[string]bool{
	StatusActive:     true,
	StatusAdmitted:   true,
	StatusDischarged: true,
	StatusInactive:   true,
}

type Patient struct {
	ID               ID       `json:"id"`
	Name             string   `json:"name"`
	Age              int      `json:"age"`
	Gender           string   `json:"gender"`
	BloodGroup       string   `json:"bloodGroup,omitempty"`
	Phone            string   `json:"phone,omitempty"`
	Email            string   `json:"email,omitempty"`
	Address          string   `json:"address,omitempty"`
	EmergencyContact string   `json:"emergencyContact,omitempty"`
	Allergies        []string `json:"allergies,omitempty"`
	Status           string   `json:"status"`
	RegisteredDate   string   `json:"registeredDate"`
	LastVisit        string   `json:"lastVisit,omitempty"`
}

func (p Patient) RecordID() string { return string(p.ID) }

func (p Patient) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if p.Age < 0 || p.Age > 150 {
		return fmt.Errorf("age must be between 0 and 150")
	}
	switch p.Gender {
	case "male", "female", "other":
	default:
		return fmt.Errorf("gender must be male, female or other")
	}
	if !validStatuses[p.Status] {
		return fmt.Errorf("status %q is not valid", p.Status)
	}
	return nil
}

// MedicalRecord is one consultation entry in a patient's history.
type MedicalRecord struct {
	ID           string   `json:"id"`
	PatientID    ID       `json:"patientId"`
	PatientName  string   `json:"patientName"`
	DoctorID     staff.ID `json:"doctorId"`
	DoctorName   string   `json:"doctorName"`
	Date         string   `json:"date"`
	Diagnosis    string   `json:"diagnosis"`
	Symptoms     string   `json:"symptoms,omitempty"`
	Treatment    string   `json:"treatment,omitempty"`
	Notes        string   `json:"notes,omitempty"`
	FollowUpDate string   `json:"followUpDate,omitempty"`
}

func (r MedicalRecord) RecordID() string { return r.ID }

func (r MedicalRecord) Validate() error {
	if r.PatientID == "" {
		return fmt.Errorf("patientId is required")
	}
	if r.DoctorID == "" {
		return fmt.Errorf("doctorId is required")
	}
	if strings.TrimSpace(r.Diagnosis) == "" {
		return fmt.Errorf("diagnosis is required")
	}
	return nil
}

// Prescription statuses.
const (
	RxActive    = "active"
	RxDispensed = "dispensed"
	RxCompleted = "completed"
	RxCancelled = "cancelled"
)

var rxTransitions = map[string][]string{
	RxActive:    {RxDispensed, RxCompleted, RxCancelled},
	RxDispensed: {RxCompleted},
}

// CanTransition reports whether a prescription may move from one status to
// another.
func CanTransition(from, to string) bool {
	for _, next := range rxTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type PrescribedMedicine struct {
	MedicineID   string `json:"medicineId,omitempty"`
	Name         string `json:"name"`
	Dosage       string `json:"dosage"`
	Frequency    string `json:"frequency"`
	Duration     string `json:"duration"`
	Instructions string `json:"instructions,omitempty"`
}

type Prescription struct {
	ID          string               `json:"id"`
	PatientID   ID                   `json:"patientId"`
	PatientName string               `json:"patientName"`
	DoctorID    staff.ID             `json:"doctorId"`
	DoctorName  string               `json:"doctorName"`
	Date        string               `json:"date"`
	Medicines   []PrescribedMedicine `json:"medicines"`
	Status      string               `json:"status"`
	Notes       string               `json:"notes,omitempty"`
}

func (p Prescription) RecordID() string { return p.ID }

func (p Prescription) Validate() error {
	if p.PatientID == "" {
		return fmt.Errorf("patientId is required")
	}
	if p.DoctorID == "" {
		return fmt.Errorf("doctorId is required")
	}
	if len(p.Medicines) == 0 {
		return fmt.Errorf("at least one medicine is required")
	}
	for i, m := range p.Medicines {
		if strings.TrimSpace(m.Name) == "" {
			return fmt.Errorf("medicines[%d].name is required", i)
		}
	}
	switch p.Status {
	case RxActive, RxDispensed, RxCompleted, RxCancelled:
	default:
		return fmt.Errorf("status %q is not valid", p.Status)
	}
	return nil
}

// History is a patient's chart: demographics, consultations (newest first)
// and prescriptions.
type History struct {
	Patient       Patient         `json:"patient"`
	Records       []MedicalRecord `json:"records"`
	Prescriptions []Prescription  `json:"prescriptions"`
}
