package ward

import (
	"context"
	"sort"

	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/domain/patient"
	"github.com/hms/hms/internal/domain/staff"
	"github.com/hms/hms/internal/platform/clock"
	"github.com/hms/hms/internal/platform/collection"
)

// Patients is the part of the patient registry bed management needs.
type Patients interface {
	Patient(id patient.ID) (patient.Patient, error)
	SetStatus(ctx context.Context, id patient.ID, status string) (patient.Patient, error)
}

type Staff interface {
	User(id staff.ID) (staff.User, error)
}

type Collections struct {
	Departments *collection.Collection[Department]
	Beds        *collection.Collection[Bed]
}

func Open(ctx context.Context, reg *collection.Registry) (*Collections, error) {
	depts, err := collection.Open[Department](ctx, reg, DepartmentsKey, nil)
	if err != nil {
		return nil, err
	}
	beds, err := collection.Open[Bed](ctx, reg, BedsKey, nil)
	if err != nil {
		return nil, err
	}
	return &Collections{Departments: depts, Beds: beds}, nil
}

type Service struct {
	depts    *collection.Collection[Department]
	beds     *collection.Collection[Bed]
	patients Patients
	staff    Staff
	clock    clock.Clock
}

func NewService(c *Collections, patients Patients, staff Staff, clk clock.Clock) *Service {
	c.Departments.SetValidator(Department.Validate)
	c.Beds.SetValidator(Bed.Validate)
	return &Service{depts: c.Departments, beds: c.Beds, patients: patients, staff: staff, clock: clk}
}

// -- Departments --

func (s *Service) CreateDepartment(ctx context.Context, d Department) (Department, error) {
	if d.ID == "" {
		d.ID = DepartmentID(collection.NewID("dept"))
	}
	if d.Status == "" {
		d.Status = "active"
	}
	if d.HeadID != "" {
		head, err := s.staff.User(d.HeadID)
		if err != nil {
			return Department{}, err
		}
		d.HeadName = head.Name
	}
	if err := s.depts.Add(ctx, d); err != nil {
		return Department{}, err
	}
	return d, nil
}

func (s *Service) Department(id DepartmentID) (Department, error) {
	d, ok := s.depts.Get(string(id))
	if !ok {
		return Department{}, collection.NotFoundf("department %s not found", id)
	}
	return d, nil
}

// UpdateDepartment applies a PATCH to a department. A new head is looked up
// in the directory and a rename is carried onto the department's beds.
func (s *Service) UpdateDepartment(ctx context.Context, id string, partial map[string]any, opts ...collection.MutateOption) (Department, bool, error) {
	if err := collection.Protected(partial, "headName"); err != nil {
		return Department{}, false, err
	}
	if v, ok := partial["headId"].(string); ok {
		partial["headName"] = ""
		if v != "" {
			head, err := s.staff.User(staff.ID(v))
			if err != nil {
				return Department{}, false, err
			}
			partial["headName"] = head.Name
		}
	}
	d, found, err := s.depts.Update(ctx, id, partial, opts...)
	if err != nil || !found {
		return d, found, err
	}
	err = s.beds.Apply(ctx, func(cur []Bed) ([]Bed, error) {
		var changed bool
		out := make([]Bed, len(cur))
		for i, b := range cur {
			if b.DepartmentID == d.ID && b.DepartmentName != d.Name {
				b.DepartmentName = d.Name
				changed = true
			}
			out[i] = b
		}
		if !changed {
			return nil, nil
		}
		return out, nil
	})
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("department_id", id).Msg("bed department names not refreshed")
	}
	return d, true, nil
}

// DeleteDepartment refuses while beds still belong to the department.
func (s *Service) DeleteDepartment(ctx context.Context, id string, opts ...collection.MutateOption) (bool, error) {
	if beds := s.beds.Find(func(b Bed) bool { return string(b.DepartmentID) == id }); len(beds) > 0 {
		return false, collection.Conflictf("department %s still has %d beds", id, len(beds))
	}
	return s.depts.Delete(ctx, id, opts...)
}

// -- Beds --

// CreateBed adds an empty bed. Patients are placed with Assign.
func (s *Service) CreateBed(ctx context.Context, b Bed) (Bed, error) {
	if b.ID == "" {
		b.ID = BedID(collection.NewID("bed"))
	}
	if b.Type == "" {
		b.Type = "general"
	}
	if b.Status == "" {
		b.Status = BedAvailable
	}
	if b.Status == BedOccupied || b.PatientID != "" {
		return Bed{}, collection.Invalidf("use bed assignment to admit a patient")
	}
	d, err := s.Department(b.DepartmentID)
	if err != nil {
		return Bed{}, err
	}
	b.DepartmentName = d.Name
	if err := s.beds.Add(ctx, b); err != nil {
		return Bed{}, err
	}
	return b, nil
}

// UpdateBed patches descriptive fields. Occupancy changes go through
// Assign, Release and SetStatus.
func (s *Service) UpdateBed(ctx context.Context, id string, partial map[string]any, opts ...collection.MutateOption) (Bed, bool, error) {
	if err := collection.Protected(partial, "status", "patientId", "patientName", "admissionDate", "departmentName"); err != nil {
		return Bed{}, false, err
	}
	if v, ok := partial["departmentId"].(string); ok {
		d, err := s.Department(DepartmentID(v))
		if err != nil {
			return Bed{}, false, err
		}
		partial["departmentName"] = d.Name
	}
	return s.beds.Update(ctx, id, partial, opts...)
}

func (s *Service) DeleteBed(ctx context.Context, id string, opts ...collection.MutateOption) (bool, error) {
	if b, ok := s.beds.Get(id); ok && b.Status == BedOccupied {
		return false, collection.Conflictf("bed %s is occupied by %s", b.Number, b.PatientName)
	}
	return s.beds.Delete(ctx, id, opts...)
}

// Assign places a patient in an available bed and admits them. A patient
// occupies at most one bed.
func (s *Service) Assign(ctx context.Context, id BedID, patientID patient.ID) (Bed, error) {
	p, err := s.patients.Patient(patientID)
	if err != nil {
		return Bed{}, err
	}
	today := clock.Today(s.clock)
	var assigned Bed
	err = s.beds.Apply(ctx, func(cur []Bed) ([]Bed, error) {
		idx := -1
		for i, b := range cur {
			if b.PatientID == patientID {
				return nil, collection.Conflictf("%s already occupies bed %s", p.Name, b.Number)
			}
			if b.ID == id {
				idx = i
			}
		}
		if idx < 0 {
			return nil, collection.NotFoundf("bed %s not found", id)
		}
		if cur[idx].Status != BedAvailable {
			return nil, collection.Conflictf("bed %s is %s", cur[idx].Number, cur[idx].Status)
		}
		next := append([]Bed(nil), cur...)
		next[idx].Status = BedOccupied
		next[idx].PatientID = p.ID
		next[idx].PatientName = p.Name
		next[idx].AdmissionDate = today
		assigned = next[idx]
		return next, nil
	})
	if err != nil {
		return Bed{}, err
	}
	if _, err := s.patients.SetStatus(ctx, p.ID, patient.StatusAdmitted); err != nil {
		s.vacate(ctx, id)
		return Bed{}, err
	}
	return assigned, nil
}

// Release frees an occupied bed and discharges its patient.
func (s *Service) Release(ctx context.Context, id BedID) (Bed, error) {
	var released patient.ID
	b, found, err := s.beds.Mutate(ctx, string(id), func(b *Bed) error {
		if b.Status != BedOccupied {
			return collection.Conflictf("bed %s is not occupied", b.Number)
		}
		released = b.PatientID
		clearPatient(b)
		return nil
	})
	if err != nil {
		return Bed{}, err
	}
	if !found {
		return Bed{}, collection.NotFoundf("bed %s not found", id)
	}
	if _, err := s.patients.SetStatus(ctx, released, patient.StatusDischarged); err != nil {
		return b, err
	}
	return b, nil
}

// SetStatus moves an unoccupied bed between available, maintenance and
// reserved.
func (s *Service) SetStatus(ctx context.Context, id BedID, status string) (Bed, error) {
	if status != BedAvailable && status != BedMaintenance && status != BedReserved {
		return Bed{}, collection.Invalidf("status must be available, maintenance or reserved")
	}
	b, found, err := s.beds.Mutate(ctx, string(id), func(b *Bed) error {
		if b.Status == BedOccupied {
			return collection.Conflictf("bed %s is occupied, release it first", b.Number)
		}
		b.Status = status
		return nil
	})
	if err != nil {
		return Bed{}, err
	}
	if !found {
		return Bed{}, collection.NotFoundf("bed %s not found", id)
	}
	return b, nil
}

func (s *Service) vacate(ctx context.Context, id BedID) {
	s.beds.Mutate(ctx, string(id), func(b *Bed) error {
		clearPatient(b)
		return nil
	})
}

func clearPatient(b *Bed) {
	b.Status = BedAvailable
	b.PatientID = ""
	b.PatientName = ""
	b.AdmissionDate = ""
}

// Available lists free beds, optionally within one department.
func (s *Service) Available(dept DepartmentID) []Bed {
	out := s.beds.Find(func(b Bed) bool {
		return b.Status == BedAvailable && (dept == "" || b.DepartmentID == dept)
	})
	if out == nil {
		out = []Bed{}
	}
	return out
}

// Occupancy reports bed counts overall and per department. Departments
// without beds are listed with zero counts.
func (s *Service) Occupancy() OccupancyReport {
	report := OccupancyReport{Overall: Occupancy{Name: "all"}}
	byDept := map[DepartmentID]*Occupancy{}
	for _, d := range s.depts.List() {
		byDept[d.ID] = &Occupancy{DepartmentID: d.ID, Name: d.Name}
	}
	for _, b := range s.beds.List() {
		report.Overall.add(b)
		o, ok := byDept[b.DepartmentID]
		if !ok {
			o = &Occupancy{DepartmentID: b.DepartmentID, Name: b.DepartmentName}
			byDept[b.DepartmentID] = o
		}
		o.add(b)
	}
	report.Overall.finish()
	report.Departments = make([]Occupancy, 0, len(byDept))
	for _, o := range byDept {
		o.finish()
		report.Departments = append(report.Departments, *o)
	}
	sort.Slice(report.Departments, func(i, j int) bool {
		return report.Departments[i].Name < report.Departments[j].Name
	})
	return report
}
