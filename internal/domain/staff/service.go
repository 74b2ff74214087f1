package staff

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/clock"
	"github.com/hms/hms/internal/platform/collection"
)

// Check-ins after this time of day are marked late.
const lateAfter = "09:15"

type Collections struct {
	Users       *collection.Collection[User]
	Attendance  *collection.Collection[Attendance]
	Credentials *collection.Collection[Credential]
}

func Open(ctx context.Context, reg *collection.Registry) (*Collections, error) {
	users, err := collection.Open[User](ctx, reg, UsersKey, nil)
	if err != nil {
		return nil, err
	}
	att, err := collection.Open[Attendance](ctx, reg, AttendanceKey, nil)
	if err != nil {
		return nil, err
	}
	creds, err := collection.Open[Credential](ctx, reg, CredentialsKey, nil)
	if err != nil {
		return nil, err
	}
	return &Collections{Users: users, Attendance: att, Credentials: creds}, nil
}

type Service struct {
	users       *collection.Collection[User]
	attendance  *collection.Collection[Attendance]
	credentials *collection.Collection[Credential]
	clock       clock.Clock
}

func NewService(c *Collections, clk clock.Clock) *Service {
	c.Users.SetValidator(User.Validate)
	c.Attendance.SetValidator(Attendance.Validate)
	return &Service{
		users:       c.Users,
		attendance:  c.Attendance,
		credentials: c.Credentials,
		clock:       clk,
	}
}

// -- Users --

func (s *Service) CreateUser(ctx context.Context, u User) (User, error) {
	if u.ID == "" {
		u.ID = ID(collection.NewID("user"))
	}
	if u.Status == "" {
		u.Status = "active"
	}
	u.Email = normalizeEmail(u.Email)
	if err := u.Validate(); err != nil {
		return User{}, collection.Invalid(err)
	}
	err := s.users.Apply(ctx, func(cur []User) ([]User, error) {
		if err := emailTaken(cur, u.Email, ""); err != nil {
			return nil, err
		}
		return append(cur, u), nil
	})
	if err != nil {
		return User{}, err
	}
	return u, nil
}

// UpdateUser merges partial into the user and keeps emails unique.
func (s *Service) UpdateUser(ctx context.Context, id string, partial map[string]any, opts ...collection.MutateOption) (User, bool, error) {
	var updated User
	var found bool
	err := s.users.Apply(ctx, func(cur []User) ([]User, error) {
		for i := range cur {
			if string(cur[i].ID) != id {
				continue
			}
			found = true
			merged, err := collection.Merge(cur[i], partial)
			if err != nil {
				return nil, err
			}
			merged.Email = normalizeEmail(merged.Email)
			if err := merged.Validate(); err != nil {
				return nil, collection.Invalid(err)
			}
			if err := emailTaken(cur, merged.Email, merged.ID); err != nil {
				return nil, err
			}
			cur[i] = merged
			updated = merged
			return cur, nil
		}
		return nil, nil
	}, opts...)
	return updated, found, err
}

// DeleteUser removes the user and their stored credential.
func (s *Service) DeleteUser(ctx context.Context, id string, opts ...collection.MutateOption) (bool, error) {
	found, err := s.users.Delete(ctx, id, opts...)
	if err != nil || !found {
		return found, err
	}
	if _, err := s.credentials.Delete(ctx, id); err != nil {
		return true, fmt.Errorf("delete credential: %w", err)
	}
	return true, nil
}

// User returns the user with id or an ErrNotFound error.
func (s *Service) User(id ID) (User, error) {
	u, ok := s.users.Get(string(id))
	if !ok {
		return User{}, collection.NotFoundf("user %s not found", id)
	}
	return u, nil
}

// Doctor returns the user with id after checking it holds the doctor role.
func (s *Service) Doctor(id ID) (User, error) {
	u, err := s.User(id)
	if err != nil {
		return User{}, err
	}
	if u.Role != auth.RoleDoctor {
		return User{}, collection.Invalidf("user %s is not a doctor", id)
	}
	return u, nil
}

// ByRole lists active users holding role.
func (s *Service) ByRole(role string) []User {
	return s.users.Find(func(u User) bool { return u.Role == role && u.Status == "active" })
}

func normalizeEmail(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}

func emailTaken(users []User, email string, self ID) error {
	for _, u := range users {
		if u.ID != self && u.Email == email {
			return fmt.Errorf("%w: email %s is already in use", collection.ErrDuplicate, email)
		}
	}
	return nil
}

// -- Attendance --

// staffMember returns the user with id unless it is a patient login, which
// takes no attendance.
func (s *Service) staffMember(id ID) (User, error) {
	u, err := s.User(id)
	if err != nil {
		return User{}, err
	}
	if u.Role == auth.RolePatient {
		return User{}, collection.Invalidf("user %s is not a staff member", id)
	}
	return u, nil
}

// CheckIn records today's attendance for staffID at the current time.
func (s *Service) CheckIn(ctx context.Context, staffID ID) (Attendance, error) {
	u, err := s.staffMember(staffID)
	if err != nil {
		return Attendance{}, err
	}
	now := s.clock.Now()
	a := Attendance{
		ID:        collection.NewID("att"),
		StaffID:   u.ID,
		StaffName: u.Name,
		Role:      u.Role,
		Date:      now.Format(clock.DateLayout),
		CheckIn:   now.Format("15:04"),
		Status:    StatusPresent,
	}
	if a.CheckIn > lateAfter {
		a.Status = StatusLate
	}
	if err := s.addAttendance(ctx, a); err != nil {
		return Attendance{}, err
	}
	return a, nil
}

// CheckOut closes today's attendance record for staffID.
func (s *Service) CheckOut(ctx context.Context, staffID ID) (Attendance, error) {
	now := s.clock.Now()
	today := now.Format(clock.DateLayout)
	var out Attendance
	err := s.attendance.Apply(ctx, func(cur []Attendance) ([]Attendance, error) {
		for i := range cur {
			if cur[i].StaffID != staffID || cur[i].Date != today {
				continue
			}
			if cur[i].CheckOut != "" {
				return nil, collection.Conflictf("%s already checked out at %s", cur[i].StaffName, cur[i].CheckOut)
			}
			cur[i].CheckOut = now.Format("15:04")
			cur[i].HoursWorked = hoursBetween(cur[i].CheckIn, cur[i].CheckOut)
			out = cur[i]
			return cur, nil
		}
		return nil, collection.NotFoundf("no check-in for %s on %s", staffID, today)
	})
	return out, err
}

// RecordAttendance adds a manually entered record. Name and role are taken
// from the staff directory; the date defaults to today.
func (s *Service) RecordAttendance(ctx context.Context, a Attendance) (Attendance, error) {
	if a.StaffID == "" {
		return Attendance{}, collection.Invalidf("staffId is required")
	}
	u, err := s.staffMember(a.StaffID)
	if err != nil {
		return Attendance{}, err
	}
	if a.ID == "" {
		a.ID = collection.NewID("att")
	}
	if a.Date == "" {
		a.Date = clock.Today(s.clock)
	} else if _, err := clock.ParseDate(a.Date); err != nil {
		return Attendance{}, collection.Invalid(err)
	}
	if a.Status == "" {
		a.Status = StatusPresent
	}
	a.StaffName = u.Name
	a.Role = u.Role
	if a.CheckIn != "" && a.CheckOut != "" {
		a.HoursWorked = hoursBetween(a.CheckIn, a.CheckOut)
	}
	if err := a.Validate(); err != nil {
		return Attendance{}, collection.Invalid(err)
	}
	if err := s.addAttendance(ctx, a); err != nil {
		return Attendance{}, err
	}
	return a, nil
}

// addAttendance appends a unless the staff member already has a record for
// that date, in which case the collection is left untouched.
func (s *Service) addAttendance(ctx context.Context, a Attendance) error {
	return s.attendance.Apply(ctx, func(cur []Attendance) ([]Attendance, error) {
		for _, existing := range cur {
			if existing.StaffID == a.StaffID && existing.Date == a.Date {
				return nil, fmt.Errorf("%w: attendance for %s on %s is already marked", collection.ErrDuplicate, a.StaffName, a.Date)
			}
		}
		return append(cur, a), nil
	})
}

// UpdateAttendance applies a PATCH to an attendance record. Staff id and
// date stay unique together, name and role follow the directory and hours
// are recomputed from the check-in and check-out times.
func (s *Service) UpdateAttendance(ctx context.Context, id string, partial map[string]any, opts ...collection.MutateOption) (Attendance, bool, error) {
	var updated Attendance
	var found bool
	err := s.attendance.Apply(ctx, func(cur []Attendance) ([]Attendance, error) {
		i := -1
		for j := range cur {
			if cur[j].ID == id {
				i = j
				break
			}
		}
		if i < 0 {
			return nil, nil
		}
		found = true
		merged, err := collection.Merge(cur[i], partial)
		if err != nil {
			return nil, err
		}
		u, err := s.staffMember(merged.StaffID)
		if err != nil {
			return nil, err
		}
		if _, err := clock.ParseDate(merged.Date); err != nil {
			return nil, collection.Invalid(err)
		}
		merged.StaffName = u.Name
		merged.Role = u.Role
		merged.HoursWorked = 0
		if merged.CheckIn != "" && merged.CheckOut != "" {
			merged.HoursWorked = hoursBetween(merged.CheckIn, merged.CheckOut)
		}
		if err := merged.Validate(); err != nil {
			return nil, collection.Invalid(err)
		}
		for j, other := range cur {
			if j != i && other.StaffID == merged.StaffID && other.Date == merged.Date {
				return nil, fmt.Errorf("%w: attendance for %s on %s is already marked", collection.ErrDuplicate, merged.StaffName, merged.Date)
			}
		}
		cur[i] = merged
		updated = merged
		return cur, nil
	}, opts...)
	return updated, found, err
}

// Summary counts attendance for date (default today) over active staff.
func (s *Service) Summary(date string) (AttendanceSummary, error) {
	if date == "" {
		date = clock.Today(s.clock)
	} else if _, err := clock.ParseDate(date); err != nil {
		return AttendanceSummary{}, collection.Invalid(err)
	}

	active := s.users.Find(func(u User) bool {
		return u.Status == "active" && u.Role != auth.RolePatient
	})
	sum := AttendanceSummary{Date: date, TotalStaff: len(active)}
	marked := make(map[ID]bool)
	for _, a := range s.attendance.Find(func(a Attendance) bool { return a.Date == date }) {
		marked[a.StaffID] = true
		switch a.Status {
		case StatusPresent:
			sum.Present++
		case StatusLate:
			sum.Late++
		case StatusAbsent:
			sum.Absent++
		case StatusOnLeave:
			sum.OnLeave++
		case StatusHalfDay:
			sum.HalfDay++
		}
	}
	for _, u := range active {
		if !marked[u.ID] {
			sum.NotMarked++
		}
	}
	if sum.TotalStaff > 0 {
		pct := float64(sum.Present+sum.Late) / float64(sum.TotalStaff) * 100
		sum.PresentPercent = math.Round(pct*10) / 10
	}
	return sum, nil
}

func hoursBetween(in, out string) float64 {
	start, err1 := time.Parse("15:04", in)
	end, err2 := time.Parse("15:04", out)
	if err1 != nil || err2 != nil || end.Before(start) {
		return 0
	}
	return math.Round(end.Sub(start).Hours()*100) / 100
}
