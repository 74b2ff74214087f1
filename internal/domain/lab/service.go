package lab

import (
	"context"
	"sort"
	"strings"

	"github.com/hms/hms/internal/domain/patient"
	"github.com/hms/hms/internal/domain/staff"
	"github.com/hms/hms/internal/platform/clock"
	"github.com/hms/hms/internal/platform/collection"
)

type Patients interface {
	Patient(id patient.ID) (patient.Patient, error)
}

type Doctors interface {
	Doctor(id staff.ID) (staff.User, error)
}

func Open(ctx context.Context, reg *collection.Registry) (*collection.Collection[Test], error) {
	return collection.Open[Test](ctx, reg, Key, nil)
}

type Service struct {
	tests    *collection.Collection[Test]
	patients Patients
	doctors  Doctors
	clock    clock.Clock
}

func NewService(tests *collection.Collection[Test], patients Patients, doctors Doctors, clk clock.Clock) *Service {
	tests.SetValidator(Test.Validate)
	return &Service{tests: tests, patients: patients, doctors: doctors, clock: clk}
}

// Order files a pending test. The ordering doctor is optional.
func (s *Service) Order(ctx context.Context, t Test) (Test, error) {
	if t.ID == "" {
		t.ID = collection.NewID("lab")
	}
	if t.Priority == "" {
		t.Priority = "routine"
	}
	if t.OrderedDate == "" {
		t.OrderedDate = clock.Today(s.clock)
	}
	t.Status = StatusPending
	t.Results = nil
	t.SampleCollectedDate, t.CompletedDate = "", ""
	if err := t.Validate(); err != nil {
		return Test{}, collection.Invalid(err)
	}
	p, err := s.patients.Patient(t.PatientID)
	if err != nil {
		return Test{}, err
	}
	t.PatientName = p.Name
	if t.DoctorID != "" {
		doc, err := s.doctors.Doctor(t.DoctorID)
		if err != nil {
			return Test{}, err
		}
		t.DoctorName = doc.Name
	}
	if err := s.tests.Add(ctx, t); err != nil {
		return Test{}, err
	}
	return t, nil
}

// Advance moves a test to status. Completion goes through RecordResult.
func (s *Service) Advance(ctx context.Context, id, status string) (Test, error) {
	if status == StatusCompleted {
		return Test{}, collection.Invalidf("record results to complete a test")
	}
	today := clock.Today(s.clock)
	return s.mutate(ctx, id, func(t *Test) error {
		if !CanTransition(t.Status, status) {
			return collection.Conflictf("test cannot move from %s to %s", t.Status, status)
		}
		t.Status = status
		if status == StatusSampleCollected {
			t.SampleCollectedDate = today
		}
		return nil
	})
}

// RecordResult stores the measured parameters of an in-progress test and
// completes it.
func (s *Service) RecordResult(ctx context.Context, id string, results []Parameter, notes string) (Test, error) {
	if len(results) == 0 {
		return Test{}, collection.Invalidf("at least one result is required")
	}
	for i, p := range results {
		if strings.TrimSpace(p.Name) == "" || strings.TrimSpace(p.Value) == "" {
			return Test{}, collection.Invalidf("results[%d] needs a name and a value", i)
		}
	}
	today := clock.Today(s.clock)
	return s.mutate(ctx, id, func(t *Test) error {
		if !CanTransition(t.Status, StatusCompleted) {
			return collection.Conflictf("test is %s, results need an in-progress test", t.Status)
		}
		t.Results = append([]Parameter(nil), results...)
		t.Status = StatusCompleted
		t.CompletedDate = today
		if notes != "" {
			t.Notes = notes
		}
		return nil
	})
}

// UpdateTest applies a PATCH to an open order. Status, dates and results
// move only through the worklist operations.
func (s *Service) UpdateTest(ctx context.Context, id string, partial map[string]any, opts ...collection.MutateOption) (Test, bool, error) {
	if err := collection.Protected(partial, "status", "patientId", "patientName", "doctorId", "doctorName",
		"orderedDate", "sampleCollectedDate", "completedDate", "results"); err != nil {
		return Test{}, false, err
	}
	return s.tests.Mutate(ctx, id, func(t *Test) error {
		if t.Status == StatusCompleted || t.Status == StatusCancelled {
			return collection.Conflictf("a %s test cannot be edited", t.Status)
		}
		merged, err := collection.Merge(*t, partial)
		if err != nil {
			return err
		}
		*t = merged
		return nil
	}, opts...)
}

func (s *Service) mutate(ctx context.Context, id string, fn func(*Test) error) (Test, error) {
	t, found, err := s.tests.Mutate(ctx, id, fn)
	if err != nil {
		return Test{}, err
	}
	if !found {
		return Test{}, collection.NotFoundf("lab test %s not found", id)
	}
	return t, nil
}

// Worklist lists open tests, stat first, then urgent, then by order date.
func (s *Service) Worklist() []Test {
	rank := map[string]int{"stat": 0, "urgent": 1, "routine": 2}
	out := s.tests.Find(func(t Test) bool {
		return t.Status != StatusCompleted && t.Status != StatusCancelled
	})
	sort.SliceStable(out, func(i, j int) bool {
		if rank[out[i].Priority] != rank[out[j].Priority] {
			return rank[out[i].Priority] < rank[out[j].Priority]
		}
		return out[i].OrderedDate < out[j].OrderedDate
	})
	if out == nil {
		out = []Test{}
	}
	return out
}

func (s *Service) ForPatient(id patient.ID) []Test {
	out := s.tests.Find(func(t Test) bool { return t.PatientID == id })
	sort.SliceStable(out, func(i, j int) bool { return out[i].OrderedDate > out[j].OrderedDate })
	if out == nil {
		out = []Test{}
	}
	return out
}
