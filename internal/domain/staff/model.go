package staff

import (
	"fmt"
	"strings"

	"github.com/hms/hms/internal/platform/auth"
)

// Collection keys.
const (
	UsersKey       = "users"
	AttendanceKey  = "staffAttendance"
	CredentialsKey = "userPasswords"
)

// ID identifies a user (staff member or patient login).
type ID string

// User is a staff directory entry.
type User struct {
	ID             ID     `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Role           string `json:"role"`
	Department     string `json:"department,omitempty"`
	Phone          string `json:"phone,omitempty"`
	Specialization string `json:"specialization,omitempty"`
	Status         string `json:"status"`
	JoinDate       string `json:"joinDate,omitempty"`
}

func (u User) RecordID() string { return string(u.ID) }

var validUserStatuses = map[string]bool{
	"active":   true,
	"inactive": true,
	"on-leave": true,
}

func (u User) Validate() error {
	if strings.TrimSpace(u.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if !strings.Contains(u.Email, "@") {
		return fmt.Errorf("a valid email is required")
	}
	if !auth.IsRole(u.Role) {
		return fmt.Errorf("role %q is not valid", u.Role)
	}
	if !validUserStatuses[u.Status] {
		return fmt.Errorf("status %q is not valid", u.Status)
	}
	return nil
}

// Attendance statuses.
const (
	StatusPresent = "present"
	StatusLate    = "late"
	StatusAbsent  = "absent"
	StatusOnLeave = "on-leave"
	StatusHalfDay = "half-day"
)

var validAttendanceStatuses = map[string]bool{
	StatusPresent: true,
	StatusLate:    true,
	StatusAbsent:  true,
	StatusOnLeave: true,
	StatusHalfDay: true,
}

// Attendance is one staff member's record for one day. (StaffID, Date) is
// unique within the collection.
type Attendance struct {
	ID          string  `json:"id"`
	StaffID     ID      `json:"staffId"`
	StaffName   string  `json:"staffName"`
	Role        string  `json:"role"`
	Date        string  `json:"date"`
	CheckIn     string  `json:"checkIn,omitempty"`
	CheckOut    string  `json:"checkOut,omitempty"`
	Status      string  `json:"status"`
	HoursWorked float64 `json:"hoursWorked,omitempty"`
	Notes       string  `json:"notes,omitempty"`
}

func (a Attendance) RecordID() string { return a.ID }

func (a Attendance) Validate() error {
	if a.StaffID == "" {
		return fmt.Errorf("staffId is required")
	}
	if a.Date == "" {
		return fmt.Errorf("date is required")
	}
	if !validAttendanceStatuses[a.Status] {
		return fmt.Errorf("status %q is not valid", a.Status)
	}
	return nil
}

// Credential is the opaque login secret of a user, keyed by user id. It is
// seeded and cleaned up with its user but never served.
type Credential struct {
	ID       ID     `json:"id"`
	Password string `json:"password"`
}

func (c Credential) RecordID() string { return string(c.ID) }

// AttendanceSummary counts one day's attendance across active staff.
type AttendanceSummary struct {
	Date           string  `json:"date"`
	TotalStaff     int     `json:"totalStaff"`
	Present        int     `json:"present"`
	Late           int     `json:"late"`
	Absent         int     `json:"absent"`
	OnLeave        int     `json:"onLeave"`
	HalfDay        int     `json:"halfDay"`
	NotMarked      int     `json:"notMarked"`
	PresentPercent float64 `json:"presentPercent"`
}
