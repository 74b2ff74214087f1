package appointment

import (
	"context"
	"sort"

	"github.com/hms/hms/internal/domain/patient"
	"github.com/hms/hms/internal/domain/staff"
	"github.com/hms/hms/internal/platform/clock"
	"github.com/hms/hms/internal/platform/collection"
)

type Patients interface {
	Patient(id patient.ID) (patient.Patient, error)
	Touch(ctx context.Context, id patient.ID, date string) error
}

type Doctors interface {
	Doctor(id staff.ID) (staff.User, error)
}

func Open(ctx context.Context, reg *collection.Registry) (*collection.Collection[Appointment], error) {
	return collection.Open[Appointment](ctx, reg, Key, nil)
}

type Service struct {
	appts    *collection.Collection[Appointment]
	patients Patients
	doctors  Doctors
	clock    clock.Clock
}

func NewService(appts *collection.Collection[Appointment], patients Patients, doctors Doctors, clk clock.Clock) *Service {
	appts.SetValidator(Appointment.Validate)
	return &Service{appts: appts, patients: patients, doctors: doctors, clock: clk}
}

// Book schedules an appointment and issues the day's next token number.
// Token assignment and the doctor slot check run under the collection lock.
func (s *Service) Book(ctx context.Context, a Appointment) (Appointment, error) {
	if a.ID == "" {
		a.ID = collection.NewID("apt")
	}
	if a.Date == "" {
		a.Date = clock.Today(s.clock)
	}
	if a.Type == "" {
		a.Type = "consultation"
	}
	a.Status = StatusScheduled
	if err := a.Validate(); err != nil {
		return Appointment{}, collection.Invalid(err)
	}
	p, err := s.patients.Patient(a.PatientID)
	if err != nil {
		return Appointment{}, err
	}
	doc, err := s.doctors.Doctor(a.DoctorID)
	if err != nil {
		return Appointment{}, err
	}
	a.PatientName = p.Name
	a.DoctorName = doc.Name
	if a.Department == "" {
		a.Department = doc.Department
	}

	err = s.appts.Apply(ctx, func(cur []Appointment) ([]Appointment, error) {
		if other, taken := slotTaken(cur, a.DoctorID, a.Date, a.Time, ""); taken {
			return nil, collection.Conflictf("%s already has token %d at %s %s", doc.Name, other.TokenNumber, a.Date, a.Time)
		}
		a.TokenNumber = NextToken(cur, a.Date)
		return append(cur, a), nil
	})
	if err != nil {
		return Appointment{}, err
	}
	return a, nil
}

// Update applies a PATCH. Scheduling fields go through Reschedule and the
// status endpoints instead.
func (s *Service) Update(ctx context.Context, id string, partial map[string]any, opts ...collection.MutateOption) (Appointment, bool, error) {
	if err := collection.Protected(partial, "status", "tokenNumber", "date", "time",
		"patientId", "patientName", "doctorId", "doctorName"); err != nil {
		return Appointment{}, false, err
	}
	return s.appts.Update(ctx, id, partial, opts...)
}

// Transition moves an appointment to status. Completing it records the
// visit on the patient.
func (s *Service) Transition(ctx context.Context, id, status string) (Appointment, error) {
	a, found, err := s.appts.Mutate(ctx, id, func(a *Appointment) error {
		if !CanTransition(a.Status, status) {
			return collection.Conflictf("appointment cannot move from %s to %s", a.Status, status)
		}
		a.Status = status
		return nil
	})
	if err != nil {
		return Appointment{}, err
	}
	if !found {
		return Appointment{}, collection.NotFoundf("appointment %s not found", id)
	}
	if status == StatusCompleted {
		if err := s.patients.Touch(ctx, a.PatientID, a.Date); err != nil {
			return a, err
		}
	}
	return a, nil
}

// Reschedule moves a scheduled appointment. A new date issues a new token.
func (s *Service) Reschedule(ctx context.Context, id, date, at string) (Appointment, error) {
	var out Appointment
	err := s.appts.Apply(ctx, func(cur []Appointment) ([]Appointment, error) {
		for i := range cur {
			if cur[i].ID != id {
				continue
			}
			a := cur[i]
			if a.Status != StatusScheduled {
				return nil, collection.Conflictf("only scheduled appointments can be rescheduled, this one is %s", a.Status)
			}
			if date == "" {
				date = a.Date
			}
			if at == "" {
				at = a.Time
			}
			if _, taken := slotTaken(cur, a.DoctorID, date, at, a.ID); taken {
				return nil, collection.Conflictf("%s is already booked at %s %s", a.DoctorName, date, at)
			}
			if date != a.Date {
				a.TokenNumber = NextToken(cur, date)
			}
			a.Date, a.Time = date, at
			if err := a.Validate(); err != nil {
				return nil, collection.Invalid(err)
			}
			cur[i] = a
			out = a
			return cur, nil
		}
		return nil, collection.NotFoundf("appointment %s not found", id)
	})
	return out, err
}

// Queue lists the active appointments of date, optionally for one doctor,
// in token order.
func (s *Service) Queue(date string, doctor staff.ID) ([]Appointment, error) {
	if date == "" {
		date = clock.Today(s.clock)
	} else if _, err := clock.ParseDate(date); err != nil {
		return nil, collection.Invalid(err)
	}
	q := s.appts.Find(func(a Appointment) bool {
		return a.Date == date && a.Active() && (doctor == "" || a.DoctorID == doctor)
	})
	sort.Slice(q, func(i, j int) bool { return q[i].TokenNumber < q[j].TokenNumber })
	if q == nil {
		q = []Appointment{}
	}
	return q, nil
}

// ForPatient lists a patient's appointments, newest first.
func (s *Service) ForPatient(id patient.ID) []Appointment {
	out := s.appts.Find(func(a Appointment) bool { return a.PatientID == id })
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date > out[j].Date
		}
		return out[i].Time > out[j].Time
	})
	if out == nil {
		out = []Appointment{}
	}
	return out
}
