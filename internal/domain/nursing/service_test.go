package nursing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/domain/patient"
	"github.com/hms/hms/internal/domain/staff"
	"github.com/hms/hms/internal/platform/clock"
	"github.com/hms/hms/internal/platform/collection"
	"github.com/hms/hms/internal/platform/store"
)

type directory struct{}

func (directory) Patient(id patient.ID) (patient.Patient, error) {
	if id != "pat-1" {
		return patient.Patient{}, collection.NotFoundf("patient %s not found", id)
	}
	return patient.Patient{ID: id, Name: "Anita Desai"}, nil
}

func (directory) User(id staff.ID) (staff.User, error) {
	if id != "u-nurse" {
		return staff.User{}, collection.NotFoundf("user %s not found", id)
	}
	return staff.User{ID: id, Name: "Nurse Kavya", Role: "nurse"}, nil
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	reg := collection.NewRegistry(store.NewMemoryStore(), zerolog.Nop())
	cols, err := Open(context.Background(), reg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return NewService(cols, directory{}, directory{}, clock.Fixed(time.Date(2024, 6, 10, 14, 30, 0, 0, time.UTC)))
}

func TestRecordVitals_Normal(t *testing.T) {
	svc := newTestService(t)
	v, alert, err := svc.RecordVitals(context.Background(), Vitals{
		PatientID: "pat-1", RecordedBy: "u-nurse", Temperature: 98.4, HeartRate: 76, OxygenSaturation: 98,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if alert != nil {
		t.Errorf("expected no alert, got %+v", alert)
	}
	if v.PatientName != "Anita Desai" || v.RecordedByName != "Nurse Kavya" || v.Date != "2024-06-10" || v.Time != "14:30" {
		t.Errorf("unexpected vitals %+v", v)
	}
	if svc.c.Alerts.Len() != 0 {
		t.Error("expected no stored alerts")
	}
}

func TestRecordVitals_RaisesAlert(t *testing.T) {
	svc := newTestService(t)
	v, alert, err := svc.RecordVitals(context.Background(), Vitals{PatientID: "pat-1", OxygenSaturation: 87, Temperature: 101.5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if alert == nil {
		t.Fatal("expected an alert")
	}
	if alert.Severity != "critical" || alert.Source != v.ID || alert.Status != AlertActive || alert.PatientName != "Anita Desai" {
		t.Errorf("unexpected alert %+v", alert)
	}
	if open := svc.OpenAlerts(); len(open) != 1 {
		t.Errorf("expected one open alert, got %d", len(open))
	}
}

func TestRecordVitals_UnknownPatient(t *testing.T) {
	svc := newTestService(t)
	if _, _, err := svc.RecordVitals(context.Background(), Vitals{PatientID: "pat-9", HeartRate: 70}); !errors.Is(err, collection.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	if svc.c.Vitals.Len() != 0 {
		t.Error("expected nothing stored")
	}
}

func TestLatestVitals(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	svc.RecordVitals(ctx, Vitals{PatientID: "pat-1", Date: "2024-06-09", Time: "08:00", HeartRate: 70})
	svc.RecordVitals(ctx, Vitals{PatientID: "pat-1", Date: "2024-06-10", Time: "08:00", HeartRate: 74})
	latest := svc.LatestVitals()
	if len(latest) != 1 || latest[0].HeartRate != 74 {
		t.Errorf("unexpected latest vitals %+v", latest)
	}
	if all := svc.VitalsFor("pat-1"); len(all) != 2 || all[0].Date != "2024-06-10" {
		t.Errorf("unexpected history %+v", all)
	}
}

func TestMedicationSchedule(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	morning, err := svc.ScheduleDose(ctx, MedicationDose{PatientID: "pat-1", Medicine: "Amoxicillin", Dosage: "500mg", ScheduledTime: "08:00"})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	evening, _ := svc.ScheduleDose(ctx, MedicationDose{PatientID: "pat-1", Medicine: "Amoxicillin", Dosage: "500mg", ScheduledTime: "20:00"})
	if _, err := svc.ScheduleDose(ctx, MedicationDose{PatientID: "pat-1", Medicine: "X", Dosage: "1", ScheduledTime: "8am"}); !errors.Is(err, collection.ErrInvalid) {
		t.Errorf("expected invalid time, got %v", err)
	}

	if due := svc.Due(""); len(due) != 2 || due[0].ID != morning.ID {
		t.Fatalf("unexpected due list %+v", due)
	}

	d, err := svc.Administer(ctx, morning.ID, "u-nurse", "")
	if err != nil {
		t.Fatalf("administer: %v", err)
	}
	if d.Status != DoseAdministered || d.AdministeredName != "Nurse Kavya" || d.AdministeredAt != "2024-06-10 14:30" {
		t.Errorf("unexpected dose %+v", d)
	}
	if _, err := svc.Administer(ctx, morning.ID, "u-nurse", ""); !errors.Is(err, collection.ErrConflict) {
		t.Errorf("expected conflict administering twice, got %v", err)
	}

	d, err = svc.Miss(ctx, evening.ID, "patient asleep")
	if err != nil {
		t.Fatalf("miss: %v", err)
	}
	if d.Status != DoseMissed || d.Notes != "patient asleep" {
		t.Errorf("unexpected dose %+v", d)
	}
	alerts := svc.OpenAlerts()
	if len(alerts) != 1 || alerts[0].Type != "medication" || alerts[0].Severity != "medium" {
		t.Errorf("expected a medication alert, got %+v", alerts)
	}
	if len(svc.Due("")) != 0 {
		t.Error("expected no open doses")
	}
	if _, err := svc.Administer(ctx, "dose-x", "u-nurse", ""); !errors.Is(err, collection.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestAlertLifecycle(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	a, err := svc.RaiseAlert(ctx, Alert{PatientID: "pat-1", Message: "Fall risk", Severity: "low"})
	if err != nil {
		t.Fatalf("raise: %v", err)
	}
	a, err = svc.Acknowledge(ctx, a.ID, "u-nurse")
	if err != nil || a.Status != AlertAcknowledged || a.AcknowledgedBy != "u-nurse" {
		t.Fatalf("acknowledge: %+v %v", a, err)
	}
	if _, err := svc.Acknowledge(ctx, a.ID, "u-nurse"); !errors.Is(err, collection.ErrConflict) {
		t.Errorf("expected conflict, got %v", err)
	}
	if _, err := svc.Resolve(ctx, a.ID); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(svc.OpenAlerts()) != 0 {
		t.Error("expected resolved alert to drop off the open list")
	}
}

func TestAddNote(t *testing.T) {
	svc := newTestService(t)
	n, err := svc.AddNote(context.Background(), Note{PatientID: "pat-1", NurseID: "dev-nurse", Content: "Ambulated twice"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Category != "general" || n.NurseName != "" || n.PatientName != "Anita Desai" {
		t.Errorf("unexpected note %+v", n)
	}
}

func TestUpdates_KeepChartingFields(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	n, _ := svc.AddNote(ctx, Note{PatientID: "pat-1", NurseID: "u-nurse", Content: "Slept well"})
	if _, _, err := svc.UpdateNote(ctx, n.ID, map[string]any{"nurseId": "u-other"}); !errors.Is(err, collection.ErrInvalid) {
		t.Errorf("expected nurseId to be protected, got %v", err)
	}
	if got, _, err := svc.UpdateNote(ctx, n.ID, map[string]any{"content": "Slept well, no pain"}); err != nil || got.NurseName != "Nurse Kavya" {
		t.Errorf("unexpected note edit %+v %v", got, err)
	}

	d, _ := svc.ScheduleDose(ctx, MedicationDose{PatientID: "pat-1", Medicine: "Amoxicillin", Dosage: "500mg", ScheduledTime: "08:00"})
	if _, _, err := svc.UpdateDose(ctx, d.ID, map[string]any{"status": DoseAdministered}); !errors.Is(err, collection.ErrInvalid) {
		t.Errorf("expected status to be protected, got %v", err)
	}
	if got, _, err := svc.UpdateDose(ctx, d.ID, map[string]any{"scheduledTime": "09:00"}); err != nil || got.ScheduledTime != "09:00" {
		t.Errorf("unexpected dose edit %+v %v", got, err)
	}
	if _, err := svc.Administer(ctx, d.ID, "u-nurse", ""); err != nil {
		t.Fatalf("administer: %v", err)
	}
	if _, _, err := svc.UpdateDose(ctx, d.ID, map[string]any{"dosage": "250mg"}); !errors.Is(err, collection.ErrConflict) {
		t.Errorf("expected administered dose to be locked, got %v", err)
	}

	a, _ := svc.RaiseAlert(ctx, Alert{PatientID: "pat-1", Message: "Fall risk", Severity: "low"})
	if _, _, err := svc.UpdateAlert(ctx, a.ID, map[string]any{"status": AlertResolved}); !errors.Is(err, collection.ErrInvalid) {
		t.Errorf("expected status to be protected, got %v", err)
	}
	if got, _, err := svc.UpdateAlert(ctx, a.ID, map[string]any{"severity": "high"}); err != nil || got.Severity != "high" || got.Status != AlertActive {
		t.Errorf("unexpected alert edit %+v %v", got, err)
	}
}
