package bloodbank

import (
	"fmt"
	"strings"

	"github.com/hms/hms/internal/domain/patient"
	"github.com/hms/hms/internal/platform/clock"
)

const (
	InventoryKey   = "bloodInventory"
	DonorsKey      = "bloodDonors"
	CollectionsKey = "bloodCollections"
	StorageKey     = "bloodStorage"
	IssuesKey      = "bloodIssues"
	RequestsKey    = "bloodRequests"
	ActivityKey    = "bloodActivityLogs"
)

// Groups lists the ABO/Rh blood groups.
var Groups = []string{"A+", "A-", "B+", "B-", "AB+", "AB-", "O+", "O-"}

func validGroup(g string) bool {
	for _, known := range Groups {
		if g == known {
			return true
		}
	}
	return false
}

type DonorID string

type Inventory struct {
	ID           string `json:"id"`
	BloodGroup   string `json:"bloodGroup"`
	Units        int    `json:"units"`
	MinimumUnits int    `json:"minimumUnits"`
	LastUpdated  string `json:"lastUpdated,omitempty"`
}

func (i Inventory) RecordID() string { return i.ID }

func (i Inventory) Validate() error {
	if !validGroup(i.BloodGroup) {
		return fmt.Errorf("bloodGroup %q is not valid", i.BloodGroup)
	}
	if i.Units < 0 || i.MinimumUnits < 0 {
		return fmt.Errorf("units must not be negative")
	}
	return nil
}

// LowStock reports units at or below the minimum.
func (i Inventory) LowStock() bool { return i.Units <= i.MinimumUnits }

// donationInterval is the minimum number of days between whole-blood
// donations.
const donationInterval = 56

type Donor struct {
	ID             DonorID `json:"id"`
	Name           string  `json:"name"`
	BloodGroup     string  `json:"bloodGroup"`
	Phone          string  `json:"phone"`
	Email          string  `json:"email,omitempty"`
	DateOfBirth    string  `json:"dateOfBirth"`
	Gender         string  `json:"gender,omitempty"`
	Weight         float64 `json:"weight"`
	LastDonation   string  `json:"lastDonation,omitempty"`
	TotalDonations int     `json:"totalDonations"`
	Status         string  `json:"status"`
}

func (d Donor) RecordID() string { return string(d.ID) }

func (d Donor) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if !validGroup(d.BloodGroup) {
		return fmt.Errorf("bloodGroup %q is not valid", d.BloodGroup)
	}
	if _, err := clock.ParseDate(d.DateOfBirth); err != nil {
		return err
	}
	switch d.Status {
	case "active", "deferred", "inactive":
	default:
		return fmt.Errorf("status %q is not valid", d.Status)
	}
	return nil
}

// Eligible reports whether the donor may give blood on today, and why not.
func (d Donor) Eligible(today string) (bool, string) {
	if d.Status != "active" {
		return false, "donor is " + d.Status
	}
	age, err := clock.Age(d.DateOfBirth, today)
	if err != nil {
		return false, "date of birth is not valid"
	}
	if age < 18 || age > 65 {
		return false, fmt.Sprintf("age %d is outside 18 to 65", age)
	}
	if d.Weight < 50 {
		return false, "weight is below 50 kg"
	}
	if d.LastDonation != "" {
		days, err := clock.DaysUntil(d.LastDonation, today)
		if err != nil {
			return false, "last donation date is not valid"
		}
		if days < donationInterval {
			return false, fmt.Sprintf("last donation was %d days ago, %d required", days, donationInterval)
		}
	}
	return true, ""
}

type Collection struct {
	ID         string  `json:"id"`
	DonorID    DonorID `json:"donorId"`
	DonorName  string  `json:"donorName"`
	BloodGroup string  `json:"bloodGroup"`
	Date       string  `json:"collectionDate"`
	Units      int     `json:"units"`
	Volume     int     `json:"volume"`
	Hemoglobin float64 `json:"hemoglobin,omitempty"`
	BagNumber  string  `json:"bagNumber"`
	Status     string  `json:"status"`
	Notes      string  `json:"notes,omitempty"`
}

func (c Collection) RecordID() string { return c.ID }

func (c Collection) Validate() error {
	if c.DonorID == "" {
		return fmt.Errorf("donorId is required")
	}
	if c.Units <= 0 {
		return fmt.Errorf("units must be positive")
	}
	if c.Hemoglobin != 0 && c.Hemoglobin < 12.5 {
		return fmt.Errorf("hemoglobin %.1f g/dL is below 12.5", c.Hemoglobin)
	}
	return nil
}

const (
	UnitAvailable = "available"
	UnitReserved  = "reserved"
	UnitIssued    = "issued"
	UnitExpired   = "expired"
	UnitDiscarded = "discarded"
)

// shelfLife is the storage life per component, in days.
var shelfLife = map[string]int{
	"whole-blood": 35,
	"packed-rbc":  42,
	"platelets":   5,
	"plasma":      365,
}

type StorageUnit struct {
	ID             string  `json:"id"`
	BagNumber      string  `json:"bagNumber"`
	BloodGroup     string  `json:"bloodGroup"`
	Component      string  `json:"component"`
	Volume         int     `json:"volume"`
	DonorID        DonorID `json:"donorId,omitempty"`
	CollectionDate string  `json:"collectionDate"`
	ExpiryDate     string  `json:"expiryDate"`
	Location       string  `json:"location,omitempty"`
	Status         string  `json:"status"`
}

func (u StorageUnit) RecordID() string { return u.ID }

func (u StorageUnit) Validate() error {
	if strings.TrimSpace(u.BagNumber) == "" {
		return fmt.Errorf("bagNumber is required")
	}
	if !validGroup(u.BloodGroup) {
		return fmt.Errorf("bloodGroup %q is not valid", u.BloodGroup)
	}
	if _, ok := shelfLife[u.Component]; !ok {
		return fmt.Errorf("component %q is not valid", u.Component)
	}
	if _, err := clock.ParseDate(u.ExpiryDate); err != nil {
		return err
	}
	switch u.Status {
	case UnitAvailable, UnitReserved, UnitIssued, UnitExpired, UnitDiscarded:
	default:
		return fmt.Errorf("status %q is not valid", u.Status)
	}
	return nil
}

// Expired reports an available unit past its expiry date.
func (u StorageUnit) Expired(today string) bool {
	return u.Status == UnitAvailable && u.ExpiryDate < today
}

const (
	RequestPending   = "pending"
	RequestApproved  = "approved"
	RequestRejected  = "rejected"
	RequestFulfilled = "fulfilled"
)

type Request struct {
	ID          string     `json:"id"`
	PatientID   patient.ID `json:"patientId"`
	PatientName string     `json:"patientName"`
	BloodGroup  string     `json:"bloodGroup"`
	Units       int        `json:"units"`
	Urgency     string     `json:"urgency"`
	Department  string     `json:"department,omitempty"`
	RequestedBy string     `json:"requestedBy,omitempty"`
	RequestDate string     `json:"requestDate"`
	Status      string     `json:"status"`
	Reason      string     `json:"reason,omitempty"`
}

func (r Request) RecordID() string { return r.ID }

func (r Request) Validate() error {
	if r.PatientID == "" {
		return fmt.Errorf("patientId is required")
	}
	if !validGroup(r.BloodGroup) {
		return fmt.Errorf("bloodGroup %q is not valid", r.BloodGroup)
	}
	if r.Units <= 0 {
		return fmt.Errorf("units must be positive")
	}
	switch r.Urgency {
	case "routine", "urgent", "emergency":
	default:
		return fmt.Errorf("urgency must be routine, urgent or emergency")
	}
	switch r.Status {
	case RequestPending, RequestApproved, RequestRejected, RequestFulfilled:
	default:
		return fmt.Errorf("status %q is not valid", r.Status)
	}
	return nil
}

type Issue struct {
	ID          string     `json:"id"`
	RequestID   string     `json:"requestId"`
	PatientID   patient.ID `json:"patientId"`
	PatientName string     `json:"patientName"`
	BloodGroup  string     `json:"bloodGroup"`
	Units       int        `json:"units"`
	BagNumbers  []string   `json:"bagNumbers,omitempty"`
	IssueDate   string     `json:"issueDate"`
	IssuedBy    string     `json:"issuedBy,omitempty"`
}

func (i Issue) RecordID() string { return i.ID }

type ActivityLog struct {
	ID          string `json:"id"`
	Action      string `json:"action"`
	Details     string `json:"details"`
	PerformedBy string `json:"performedBy,omitempty"`
	Date        string `json:"date"`
	Time        string `json:"time"`
}

func (a ActivityLog) RecordID() string { return a.ID }

type ExpiryEntry struct {
	Unit     StorageUnit  `json:"unit"`
	Bucket   clock.Bucket `json:"bucket"`
	DaysLeft int          `json:"daysLeft"`
}

type Summary struct {
	TotalUnits      int            `json:"totalUnits"`
	LowStock        []Inventory    `json:"lowStock"`
	PendingRequests int            `json:"pendingRequests"`
	ExpiringSoon    int            `json:"expiringSoon"`
	EligibleDonors  int            `json:"eligibleDonors"`
	UnitsByGroup    map[string]int `json:"unitsByGroup"`
}
