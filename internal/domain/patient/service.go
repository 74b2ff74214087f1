package patient

import (
	"context"
	"sort"

	"github.com/hms/hms/internal/domain/staff"
	"github.com/hms/hms/internal/platform/clock"
	"github.com/hms/hms/internal/platform/collection"
)

// Doctors resolves doctor ids against the staff directory.
type Doctors interface {
	Doctor(id staff.ID) (staff.User, error)
}

type Collections struct {
	Patients      *collection.Collection[Patient]
	Records       *collection.Collection[MedicalRecord]
	Prescriptions *collection.Collection[Prescription]
}

func Open(ctx context.Context, reg *collection.Registry) (*Collections, error) {
	patients, err := collection.Open[Patient](ctx, reg, PatientsKey, nil)
	if err != nil {
		return nil, err
	}
	records, err := collection.Open[MedicalRecord](ctx, reg, MedicalRecordsKey, nil)
	if err != nil {
		return nil, err
	}
	rx, err := collection.Open[Prescription](ctx, reg, PrescriptionsKey, nil)
	if err != nil {
		return nil, err
	}
	return &Collections{Patients: patients, Records: records, Prescriptions: rx}, nil
}

type Service struct {
	patients      *collection.Collection[Patient]
	records       *collection.Collection[MedicalRecord]
	prescriptions *collection.Collection[Prescription]
	doctors       Doctors
	clock         clock.Clock
}

func NewService(c *Collections, doctors Doctors, clk clock.Clock) *Service {
	c.Patients.SetValidator(Patient.Validate)
	c.Records.SetValidator(MedicalRecord.Validate)
	c.Prescriptions.SetValidator(Prescription.Validate)
	return &Service{
		patients:      c.Patients,
		records:       c.Records,
		prescriptions: c.Prescriptions,
		doctors:       doctors,
		clock:         clk,
	}
}

// -- Patients --

func (s *Service) CreatePatient(ctx context.Context, p Patient) (Patient, error) {
	if p.ID == "" {
		p.ID = ID(collection.NewID("pat"))
	}
	if p.Status == "" {
		p.Status = StatusActive
	}
	if p.RegisteredDate == "" {
		p.RegisteredDate = clock.Today(s.clock)
	}
	if err := s.patients.Add(ctx, p); err != nil {
		return Patient{}, err
	}
	return p, nil
}

// Patient returns the patient with id or an ErrNotFound error.
func (s *Service) Patient(id ID) (Patient, error) {
	p, ok := s.patients.Get(string(id))
	if !ok {
		return Patient{}, collection.NotFoundf("patient %s not found", id)
	}
	return p, nil
}

// SetStatus moves a patient to status, e.g. admitted on bed assignment.
func (s *Service) SetStatus(ctx context.Context, id ID, status string) (Patient, error) {
	p, found, err := s.patients.Mutate(ctx, string(id), func(p *Patient) error {
		p.Status = status
		return nil
	})
	if err != nil {
		return Patient{}, err
	}
	if !found {
		return Patient{}, collection.NotFoundf("patient %s not found", id)
	}
	return p, nil
}

// UpdatePatient applies a PATCH to a patient. Admission and discharge come
// from bed assignment, so status may only move between active and
// inactive here, and never for an admitted patient.
func (s *Service) UpdatePatient(ctx context.Context, id string, partial map[string]any, opts ...collection.MutateOption) (Patient, bool, error) {
	if err := collection.Protected(partial, "registeredDate", "lastVisit"); err != nil {
		return Patient{}, false, err
	}
	return s.patients.Mutate(ctx, id, func(p *Patient) error {
		merged, err := collection.Merge(*p, partial)
		if err != nil {
			return err
		}
		if merged.Status != p.Status {
			if p.Status == StatusAdmitted {
				return collection.Conflictf("%s is admitted; release the bed first", p.Name)
			}
			if merged.Status != StatusActive && merged.Status != StatusInactive {
				return collection.Invalidf("status %s is set through bed assignment", merged.Status)
			}
		}
		*p = merged
		return nil
	}, opts...)
}

// Touch records a visit on the patient.
func (s *Service) Touch(ctx context.Context, id ID, date string) error {
	_, _, err := s.patients.Mutate(ctx, string(id), func(p *Patient) error {
		if date > p.LastVisit {
			p.LastVisit = date
		}
		return nil
	})
	return err
}

// -- Medical records --

func (s *Service) CreateRecord(ctx context.Context, r MedicalRecord) (MedicalRecord, error) {
	if err := r.Validate(); err != nil {
		return MedicalRecord{}, collection.Invalid(err)
	}
	p, err := s.Patient(r.PatientID)
	if err != nil {
		return MedicalRecord{}, err
	}
	doc, err := s.doctors.Doctor(r.DoctorID)
	if err != nil {
		return MedicalRecord{}, err
	}
	if r.ID == "" {
		r.ID = collection.NewID("rec")
	}
	if r.Date == "" {
		r.Date = clock.Today(s.clock)
	}
	r.PatientName = p.Name
	r.DoctorName = doc.Name
	if err := s.records.Add(ctx, r); err != nil {
		return MedicalRecord{}, err
	}
	if err := s.Touch(ctx, p.ID, r.Date); err != nil {
		return r, err
	}
	return r, nil
}

// UpdateRecord applies a PATCH to the clinical fields of a record. The
// patient and doctor it belongs to are fixed.
func (s *Service) UpdateRecord(ctx context.Context, id string, partial map[string]any, opts ...collection.MutateOption) (MedicalRecord, bool, error) {
	if err := collection.Protected(partial, "patientId", "patientName", "doctorId", "doctorName"); err != nil {
		return MedicalRecord{}, false, err
	}
	return s.records.Update(ctx, id, partial, opts...)
}

// History collects the chart of one patient.
func (s *Service) History(id ID) (History, error) {
	p, err := s.Patient(id)
	if err != nil {
		return History{}, err
	}
	h := History{
		Patient:       p,
		Records:       s.records.Find(func(r MedicalRecord) bool { return r.PatientID == id }),
		Prescriptions: s.prescriptions.Find(func(rx Prescription) bool { return rx.PatientID == id }),
	}
	if h.Records == nil {
		h.Records = []MedicalRecord{}
	}
	if h.Prescriptions == nil {
		h.Prescriptions = []Prescription{}
	}
	sort.SliceStable(h.Records, func(i, j int) bool { return h.Records[i].Date > h.Records[j].Date })
	sort.SliceStable(h.Prescriptions, func(i, j int) bool { return h.Prescriptions[i].Date > h.Prescriptions[j].Date })
	return h, nil
}

// -- Prescriptions --

func (s *Service) CreatePrescription(ctx context.Context, rx Prescription) (Prescription, error) {
	if rx.Status == "" {
		rx.Status = RxActive
	}
	if err := rx.Validate(); err != nil {
		return Prescription{}, collection.Invalid(err)
	}
	p, err := s.Patient(rx.PatientID)
	if err != nil {
		return Prescription{}, err
	}
	doc, err := s.doctors.Doctor(rx.DoctorID)
	if err != nil {
		return Prescription{}, err
	}
	if rx.ID == "" {
		rx.ID = collection.NewID("rx")
	}
	if rx.Date == "" {
		rx.Date = clock.Today(s.clock)
	}
	rx.PatientName = p.Name
	rx.DoctorName = doc.Name
	if err := s.prescriptions.Add(ctx, rx); err != nil {
		return Prescription{}, err
	}
	return rx, nil
}

// Prescription returns the prescription with id or an ErrNotFound error.
func (s *Service) Prescription(id string) (Prescription, error) {
	rx, ok := s.prescriptions.Get(id)
	if !ok {
		return Prescription{}, collection.NotFoundf("prescription %s not found", id)
	}
	return rx, nil
}

// UpdatePrescription edits an active prescription. Status changes go through
// TransitionPrescription.
func (s *Service) UpdatePrescription(ctx context.Context, id string, partial map[string]any, opts ...collection.MutateOption) (Prescription, bool, error) {
	if err := collection.Protected(partial, "status", "patientId", "patientName", "doctorId", "doctorName"); err != nil {
		return Prescription{}, false, err
	}
	return s.prescriptions.Mutate(ctx, id, func(rx *Prescription) error {
		if rx.Status != RxActive {
			return collection.Conflictf("a %s prescription cannot be edited", rx.Status)
		}
		merged, err := collection.Merge(*rx, partial)
		if err != nil {
			return err
		}
		*rx = merged
		return nil
	}, opts...)
}

// TransitionPrescription moves a prescription along
// active → dispensed → completed, or cancels an active one.
func (s *Service) TransitionPrescription(ctx context.Context, id, status string) (Prescription, error) {
	rx, found, err := s.prescriptions.Mutate(ctx, id, func(rx *Prescription) error {
		if !CanTransition(rx.Status, status) {
			return collection.Conflictf("prescription cannot move from %s to %s", rx.Status, status)
		}
		rx.Status = status
		return nil
	})
	if err != nil {
		return Prescription{}, err
	}
	if !found {
		return Prescription{}, collection.NotFoundf("prescription %s not found", id)
	}
	return rx, nil
}
