package nursing

import (
	"context"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/domain/patient"
	"github.com/hms/hms/internal/domain/staff"
	"github.com/hms/hms/internal/platform/clock"
	"github.com/hms/hms/internal/platform/collection"
)

type Patients interface {
	Patient(id patient.ID) (patient.Patient, error)
}

type Staff interface {
	User(id staff.ID) (staff.User, error)
}

type Collections struct {
	Vitals   *collection.Collection[Vitals]
	Notes    *collection.Collection[Note]
	Schedule *collection.Collection[MedicationDose]
	Alerts   *collection.Collection[Alert]
}

func Open(ctx context.Context, reg *collection.Registry) (*Collections, error) {
	var (
		c   Collections
		err error
	)
	if c.Vitals, err = collection.Open[Vitals](ctx, reg, VitalsKey, nil); err != nil {
		return nil, err
	}
	if c.Notes, err = collection.Open[Note](ctx, reg, NotesKey, nil); err != nil {
		return nil, err
	}
	if c.Schedule, err = collection.Open[MedicationDose](ctx, reg, ScheduleKey, nil); err != nil {
		return nil, err
	}
	if c.Alerts, err = collection.Open[Alert](ctx, reg, AlertsKey, nil); err != nil {
		return nil, err
	}
	return &c, nil
}

type Service struct {
	c        *Collections
	patients Patients
	staff    Staff
	clock    clock.Clock
}

func NewService(c *Collections, patients Patients, staff Staff, clk clock.Clock) *Service {
	c.Vitals.SetValidator(Vitals.Validate)
	c.Notes.SetValidator(Note.Validate)
	c.Schedule.SetValidator(MedicationDose.Validate)
	c.Alerts.SetValidator(Alert.Validate)
	return &Service{c: c, patients: patients, staff: staff, clock: clk}
}

func (s *Service) now() (date, hhmm string) {
	t := s.clock.Now()
	return t.Format(clock.DateLayout), t.Format("15:04")
}

// staffName resolves the recording nurse. Unknown callers (development
// identities) are recorded by id only.
func (s *Service) staffName(id staff.ID) string {
	if id == "" {
		return ""
	}
	u, err := s.staff.User(id)
	if err != nil {
		return ""
	}
	return u.Name
}

// -- Vitals --

// RecordVitals stores a set of observations. Readings outside their normal
// range raise a nurse alert; the returned alert is nil otherwise.
func (s *Service) RecordVitals(ctx context.Context, v Vitals) (Vitals, *Alert, error) {
	if v.ID == "" {
		v.ID = collection.NewID("vit")
	}
	date, hhmm := s.now()
	if v.Date == "" {
		v.Date, v.Time = date, hhmm
	}
	if err := v.Validate(); err != nil {
		return Vitals{}, nil, collection.Invalid(err)
	}
	p, err := s.patients.Patient(v.PatientID)
	if err != nil {
		return Vitals{}, nil, err
	}
	v.PatientName = p.Name
	v.RecordedByName = s.staffName(v.RecordedBy)
	if err := s.c.Vitals.Add(ctx, v); err != nil {
		return Vitals{}, nil, err
	}

	issues := v.Abnormalities()
	if len(issues) == 0 {
		return v, nil, nil
	}
	a := Alert{
		ID:          collection.NewID("alert"),
		PatientID:   v.PatientID,
		PatientName: v.PatientName,
		Type:        "vitals",
		Severity:    "high",
		Message:     "Abnormal vitals: " + strings.Join(issues, ", "),
		Date:        v.Date,
		Time:        v.Time,
		Status:      AlertActive,
		Source:      v.ID,
	}
	if v.Critical() {
		a.Severity = "critical"
	}
	if err := s.c.Alerts.Add(ctx, a); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("vitals_id", v.ID).Msg("vitals stored without alert")
		return v, nil, err
	}
	return v, &a, nil
}

// LatestVitals returns the most recent observations per patient, newest
// first.
func (s *Service) LatestVitals() []Vitals {
	latest := map[patient.ID]Vitals{}
	for _, v := range s.c.Vitals.List() {
		cur, ok := latest[v.PatientID]
		if !ok || v.Date+v.Time > cur.Date+cur.Time {
			latest[v.PatientID] = v
		}
	}
	out := make([]Vitals, 0, len(latest))
	for _, v := range latest {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date+out[i].Time > out[j].Date+out[j].Time })
	return out
}

func (s *Service) VitalsFor(id patient.ID) []Vitals {
	out := s.c.Vitals.Find(func(v Vitals) bool { return v.PatientID == id })
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date+out[i].Time > out[j].Date+out[j].Time })
	if out == nil {
		out = []Vitals{}
	}
	return out
}

// -- Notes --

func (s *Service) AddNote(ctx context.Context, n Note) (Note, error) {
	if n.ID == "" {
		n.ID = collection.NewID("note")
	}
	if n.Category == "" {
		n.Category = "general"
	}
	date, hhmm := s.now()
	if n.Date == "" {
		n.Date, n.Time = date, hhmm
	}
	if err := n.Validate(); err != nil {
		return Note{}, collection.Invalid(err)
	}
	p, err := s.patients.Patient(n.PatientID)
	if err != nil {
		return Note{}, err
	}
	n.PatientName = p.Name
	n.NurseName = s.staffName(n.NurseID)
	if err := s.c.Notes.Add(ctx, n); err != nil {
		return Note{}, err
	}
	return n, nil
}

// UpdateNote edits the text of a note. Who wrote it, about whom and when
// stay as recorded.
func (s *Service) UpdateNote(ctx context.Context, id string, partial map[string]any, opts ...collection.MutateOption) (Note, bool, error) {
	if err := collection.Protected(partial, "patientId", "patientName", "nurseId", "nurseName", "date", "time"); err != nil {
		return Note{}, false, err
	}
	return s.c.Notes.Update(ctx, id, partial, opts...)
}

// -- Medication schedule --

func (s *Service) ScheduleDose(ctx context.Context, d MedicationDose) (MedicationDose, error) {
	if d.ID == "" {
		d.ID = collection.NewID("dose")
	}
	if d.Route == "" {
		d.Route = "oral"
	}
	if d.ScheduledDate == "" {
		d.ScheduledDate = clock.Today(s.clock)
	}
	d.Status = DoseScheduled
	d.AdministeredBy, d.AdministeredName, d.AdministeredAt = "", "", ""
	if err := d.Validate(); err != nil {
		return MedicationDose{}, collection.Invalid(err)
	}
	p, err := s.patients.Patient(d.PatientID)
	if err != nil {
		return MedicationDose{}, err
	}
	d.PatientName = p.Name
	if err := s.c.Schedule.Add(ctx, d); err != nil {
		return MedicationDose{}, err
	}
	return d, nil
}

func (s *Service) UpdateDose(ctx context.Context, id string, partial map[string]any, opts ...collection.MutateOption) (MedicationDose, bool, error) {
	if err := collection.Protected(partial, "status", "patientId", "patientName",
		"administeredBy", "administeredByName", "administeredAt"); err != nil {
		return MedicationDose{}, false, err
	}
	return s.c.Schedule.Mutate(ctx, id, func(d *MedicationDose) error {
		if d.Status != DoseScheduled {
			return collection.Conflictf("dose is already %s", d.Status)
		}
		merged, err := collection.Merge(*d, partial)
		if err != nil {
			return err
		}
		*d = merged
		return nil
	}, opts...)
}

// Administer records that nurse gave a scheduled dose.
func (s *Service) Administer(ctx context.Context, id string, nurse staff.ID, notes string) (MedicationDose, error) {
	date, hhmm := s.now()
	name := s.staffName(nurse)
	return s.closeDose(ctx, id, func(d *MedicationDose) {
		d.Status = DoseAdministered
		d.AdministeredBy = nurse
		d.AdministeredName = name
		d.AdministeredAt = date + " " + hhmm
		if notes != "" {
			d.Notes = notes
		}
	})
}

// Miss records a dose that was not given and raises a medium alert.
func (s *Service) Miss(ctx context.Context, id, reason string) (MedicationDose, error) {
	d, err := s.closeDose(ctx, id, func(d *MedicationDose) {
		d.Status = DoseMissed
		if reason != "" {
			d.Notes = reason
		}
	})
	if err != nil {
		return MedicationDose{}, err
	}
	date, hhmm := s.now()
	msg := "Missed dose: " + d.Medicine + " " + d.Dosage
	if reason != "" {
		msg += " (" + reason + ")"
	}
	err = s.c.Alerts.Add(ctx, Alert{
		ID:          collection.NewID("alert"),
		PatientID:   d.PatientID,
		PatientName: d.PatientName,
		Type:        "medication",
		Severity:    "medium",
		Message:     msg,
		Date:        date,
		Time:        hhmm,
		Status:      AlertActive,
		Source:      d.ID,
	})
	return d, err
}

func (s *Service) closeDose(ctx context.Context, id string, fn func(*MedicationDose)) (MedicationDose, error) {
	d, found, err := s.c.Schedule.Mutate(ctx, id, func(d *MedicationDose) error {
		if d.Status != DoseScheduled {
			return collection.Conflictf("dose is already %s", d.Status)
		}
		fn(d)
		return nil
	})
	if err != nil {
		return MedicationDose{}, err
	}
	if !found {
		return MedicationDose{}, collection.NotFoundf("dose %s not found", id)
	}
	return d, nil
}

// Due lists the doses scheduled on date that are still open, by time.
func (s *Service) Due(date string) []MedicationDose {
	if date == "" {
		date = clock.Today(s.clock)
	}
	out := s.c.Schedule.Find(func(d MedicationDose) bool {
		return d.ScheduledDate == date && d.Status == DoseScheduled
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].ScheduledTime < out[j].ScheduledTime })
	if out == nil {
		out = []MedicationDose{}
	}
	return out
}

// -- Alerts --

func (s *Service) RaiseAlert(ctx context.Context, a Alert) (Alert, error) {
	if a.ID == "" {
		a.ID = collection.NewID("alert")
	}
	if a.Type == "" {
		a.Type = "general"
	}
	if a.Severity == "" {
		a.Severity = "medium"
	}
	date, hhmm := s.now()
	a.Date, a.Time = date, hhmm
	a.Status = AlertActive
	if a.PatientID != "" {
		p, err := s.patients.Patient(a.PatientID)
		if err != nil {
			return Alert{}, err
		}
		a.PatientName = p.Name
	}
	if err := s.c.Alerts.Add(ctx, a); err != nil {
		return Alert{}, err
	}
	return a, nil
}

func (s *Service) UpdateAlert(ctx context.Context, id string, partial map[string]any, opts ...collection.MutateOption) (Alert, bool, error) {
	if err := collection.Protected(partial, "status", "acknowledgedBy", "patientId", "patientName",
		"sourceId", "date", "time"); err != nil {
		return Alert{}, false, err
	}
	return s.c.Alerts.Mutate(ctx, id, func(a *Alert) error {
		if a.Status == AlertResolved {
			return collection.Conflictf("alert is already resolved")
		}
		merged, err := collection.Merge(*a, partial)
		if err != nil {
			return err
		}
		*a = merged
		return nil
	}, opts...)
}

func (s *Service) Acknowledge(ctx context.Context, id string, by staff.ID) (Alert, error) {
	return s.setAlert(ctx, id, func(a *Alert) error {
		if a.Status != AlertActive {
			return collection.Conflictf("alert is already %s", a.Status)
		}
		a.Status = AlertAcknowledged
		a.AcknowledgedBy = by
		return nil
	})
}

func (s *Service) Resolve(ctx context.Context, id string) (Alert, error) {
	return s.setAlert(ctx, id, func(a *Alert) error {
		if a.Status == AlertResolved {
			return collection.Conflictf("alert is already resolved")
		}
		a.Status = AlertResolved
		return nil
	})
}

func (s *Service) setAlert(ctx context.Context, id string, fn func(*Alert) error) (Alert, error) {
	a, found, err := s.c.Alerts.Mutate(ctx, id, fn)
	if err != nil {
		return Alert{}, err
	}
	if !found {
		return Alert{}, collection.NotFoundf("alert %s not found", id)
	}
	return a, nil
}

var severityRank = map[string]int{"critical": 0, "high": 1, "medium": 2, "low": 3}

// OpenAlerts lists unresolved alerts, most severe and newest first.
func (s *Service) OpenAlerts() []Alert {
	out := s.c.Alerts.Find(func(a Alert) bool { return a.Status != AlertResolved })
	sort.SliceStable(out, func(i, j int) bool {
		if severityRank[out[i].Severity] != severityRank[out[j].Severity] {
			return severityRank[out[i].Severity] < severityRank[out[j].Severity]
		}
		return out[i].Date+out[i].Time > out[j].Date+out[j].Time
	})
	if out == nil {
		out = []Alert{}
	}
	return out
}
