package bloodbank

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/domain/patient"
	"github.com/hms/hms/internal/platform/clock"
	"github.com/hms/hms/internal/platform/collection"
	"github.com/hms/hms/internal/platform/store"
)

type fakePatients struct{}

func (fakePatients) Patient(id patient.ID) (patient.Patient, error) {
	if id != "pat-1" {
		return patient.Patient{}, collection.NotFoundf("patient %s not found", id)
	}
	return patient.Patient{ID: id, Name: "Suresh Kumar"}, nil
}

type warnDays int

func (w warnDays) BloodExpiryWarnDays() int { return int(w) }

func newTestService(t *testing.T) *Service {
	t.Helper()
	reg := collection.NewRegistry(store.NewMemoryStore(), zerolog.Nop())
	cols, err := Open(context.Background(), reg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	svc := NewService(cols, fakePatients{}, warnDays(7), clock.Fixed(time.Date(2024, 5, 31, 11, 0, 0, 0, time.UTC)))
	ctx := context.Background()
	cols.Inventory.Add(ctx, Inventory{ID: "inv-o+", BloodGroup: "O+", Units: 3, MinimumUnits: 5})
	cols.Inventory.Add(ctx, Inventory{ID: "inv-a+", BloodGroup: "A+", Units: 12, MinimumUnits: 5})
	return svc
}

func TestDonate(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	d, err := svc.RegisterDonor(ctx, Donor{Name: "Ravi", BloodGroup: "O+", DateOfBirth: "1990-04-12", Weight: 70, Phone: "555"}, "u-bb")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	c, err := svc.Donate(ctx, Collection{DonorID: d.ID, Hemoglobin: 14}, "u-bb")
	if err != nil {
		t.Fatalf("donate: %v", err)
	}
	if c.BloodGroup != "O+" || c.Units != 1 || c.Volume != 450 || c.Date != "2024-05-31" {
		t.Errorf("unexpected collection %+v", c)
	}
	inv, _ := svc.c.Inventory.Get("inv-o+")
	if inv.Units != 4 {
		t.Errorf("expected inventory 4, got %d", inv.Units)
	}
	donor, _ := svc.Donor(d.ID)
	if donor.LastDonation != "2024-05-31" || donor.TotalDonations != 1 {
		t.Errorf("unexpected donor %+v", donor)
	}
	bags := svc.c.Storage.Find(func(u StorageUnit) bool { return u.DonorID == d.ID })
	if len(bags) != 1 || bags[0].ExpiryDate != "2024-07-05" || bags[0].Component != "whole-blood" {
		t.Errorf("unexpected storage %+v", bags)
	}

	if _, err := svc.Donate(ctx, Collection{DonorID: d.ID}, "u-bb"); !errors.Is(err, collection.ErrConflict) {
		t.Errorf("expected conflict donating twice, got %v", err)
	}
	if len(svc.Activity()) != 2 {
		t.Errorf("expected registration and donation logged, got %+v", svc.Activity())
	}
}

func TestDonate_NewGroupCreatesInventory(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	d, _ := svc.RegisterDonor(ctx, Donor{Name: "Asha", BloodGroup: "AB-", DateOfBirth: "1985-01-01", Weight: 60}, "")
	if _, err := svc.Donate(ctx, Collection{DonorID: d.ID}, ""); err != nil {
		t.Fatalf("donate: %v", err)
	}
	rows := svc.c.Inventory.Find(func(i Inventory) bool { return i.BloodGroup == "AB-" })
	if len(rows) != 1 || rows[0].Units != 1 || rows[0].MinimumUnits != defaultMinimumUnits {
		t.Errorf("unexpected inventory %+v", rows)
	}
}

func TestDonate_LowHemoglobinStoresNothing(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	d, _ := svc.RegisterDonor(ctx, Donor{Name: "Ravi", BloodGroup: "O+", DateOfBirth: "1990-04-12", Weight: 70}, "")
	if _, err := svc.Donate(ctx, Collection{DonorID: d.ID, Hemoglobin: 11}, ""); !errors.Is(err, collection.ErrInvalid) {
		t.Fatalf("expected invalid, got %v", err)
	}
	inv, _ := svc.c.Inventory.Get("inv-o+")
	if inv.Units != 3 || svc.c.Collections.Len() != 0 {
		t.Error("expected no change")
	}
}

func TestRequestLifecycle(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	svc.StoreUnit(ctx, StorageUnit{BagNumber: "B-1", BloodGroup: "A+", Component: "packed-rbc", CollectionDate: "2024-05-01"})
	svc.StoreUnit(ctx, StorageUnit{BagNumber: "B-2", BloodGroup: "A+", Component: "packed-rbc", CollectionDate: "2024-05-20"})

	r, err := svc.CreateRequest(ctx, Request{PatientID: "pat-1", BloodGroup: "A+", Units: 2, Urgency: "urgent"})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := svc.Fulfill(ctx, r.ID, "u-bb"); !errors.Is(err, collection.ErrConflict) {
		t.Errorf("expected conflict fulfilling a pending request, got %v", err)
	}
	if _, err := svc.ApproveRequest(ctx, r.ID, "u-bb"); err != nil {
		t.Fatalf("approve: %v", err)
	}
	issue, err := svc.Fulfill(ctx, r.ID, "u-bb")
	if err != nil {
		t.Fatalf("fulfill: %v", err)
	}
	if issue.Units != 2 || len(issue.BagNumbers) != 2 || issue.BagNumbers[0] != "B-1" {
		t.Errorf("unexpected issue %+v", issue)
	}
	inv, _ := svc.c.Inventory.Get("inv-a+")
	if inv.Units != 10 {
		t.Errorf("expected 10 units left, got %d", inv.Units)
	}
	got, _ := svc.c.Requests.Get(r.ID)
	if got.Status != RequestFulfilled {
		t.Errorf("expected fulfilled, got %s", got.Status)
	}
}

func TestFulfill_InsufficientStockRevertsClaim(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	r, _ := svc.CreateRequest(ctx, Request{PatientID: "pat-1", BloodGroup: "O+", Units: 4})
	svc.ApproveRequest(ctx, r.ID, "")

	if _, err := svc.Fulfill(ctx, r.ID, ""); !errors.Is(err, collection.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	got, _ := svc.c.Requests.Get(r.ID)
	if got.Status != RequestApproved {
		t.Errorf("expected request back to approved, got %s", got.Status)
	}
	inv, _ := svc.c.Inventory.Get("inv-o+")
	if inv.Units != 3 || svc.c.Issues.Len() != 0 {
		t.Error("expected stock and issues untouched")
	}
}

func TestRejectRequest(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	r, _ := svc.CreateRequest(ctx, Request{PatientID: "pat-1", BloodGroup: "O+", Units: 1})
	if _, err := svc.RejectRequest(ctx, r.ID, "crossmatch failed", ""); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if _, err := svc.ApproveRequest(ctx, r.ID, ""); !errors.Is(err, collection.ErrConflict) {
		t.Errorf("expected conflict approving a rejected request, got %v", err)
	}
	if _, err := svc.CreateRequest(ctx, Request{PatientID: "pat-2", BloodGroup: "O+", Units: 1}); !errors.Is(err, collection.ErrNotFound) {
		t.Errorf("expected unknown patient, got %v", err)
	}
}

func TestExpiry(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	svc.StoreUnit(ctx, StorageUnit{BagNumber: "P-1", BloodGroup: "O+", Component: "platelets", CollectionDate: "2024-05-24"})
	svc.StoreUnit(ctx, StorageUnit{BagNumber: "P-2", BloodGroup: "O+", Component: "platelets", CollectionDate: "2024-05-29"})
	svc.StoreUnit(ctx, StorageUnit{BagNumber: "R-1", BloodGroup: "O+", Component: "packed-rbc", CollectionDate: "2024-05-29"})

	soon := svc.ExpiringSoon()
	if len(soon) != 1 || soon[0].BagNumber != "P-2" {
		t.Errorf("unexpected expiring units %+v", soon)
	}
	entries, err := svc.Expiry()
	if err != nil {
		t.Fatalf("expiry: %v", err)
	}
	if len(entries) != 3 || entries[0].Bucket != clock.Expired || entries[0].Unit.BagNumber != "P-1" {
		t.Errorf("unexpected expiry report %+v", entries)
	}

	n, err := svc.MarkExpired(ctx, "u-bb")
	if err != nil || n != 1 {
		t.Fatalf("mark expired: %d %v", n, err)
	}
	inv, _ := svc.c.Inventory.Get("inv-o+")
	if inv.Units != 2 {
		t.Errorf("expected inventory reduced to 2, got %d", inv.Units)
	}
	if n, _ := svc.MarkExpired(ctx, "u-bb"); n != 0 {
		t.Errorf("expected nothing left to expire, got %d", n)
	}
}

func TestSummarize(t *testing.T) {
	svc := newTestService(t)
	sum := svc.Summarize()
	if sum.TotalUnits != 15 || len(sum.LowStock) != 1 || sum.LowStock[0].BloodGroup != "O+" {
		t.Errorf("unexpected summary %+v", sum)
	}
}

func TestUpdates_KeepStockAndWorkflowFields(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, _, err := svc.UpdateInventory(ctx, "inv-o+", map[string]any{"units": 50}); !errors.Is(err, collection.ErrInvalid) {
		t.Errorf("expected units to be protected, got %v", err)
	}
	if inv, _, err := svc.UpdateInventory(ctx, "inv-o+", map[string]any{"minimumUnits": 2}); err != nil || inv.Units != 3 || inv.LowStock() {
		t.Errorf("unexpected inventory edit %+v %v", inv, err)
	}

	d, _ := svc.RegisterDonor(ctx, Donor{Name: "Ravi", BloodGroup: "O+", DateOfBirth: "1990-04-12", Weight: 70, Phone: "555"}, "u-bb")
	if _, _, err := svc.UpdateDonor(ctx, string(d.ID), map[string]any{"lastDonation": ""}); !errors.Is(err, collection.ErrInvalid) {
		t.Errorf("expected lastDonation to be protected, got %v", err)
	}
	if got, _, err := svc.UpdateDonor(ctx, string(d.ID), map[string]any{"phone": "556"}); err != nil || got.Phone != "556" {
		t.Errorf("unexpected donor edit %+v %v", got, err)
	}

	u, _ := svc.StoreUnit(ctx, StorageUnit{BagNumber: "B-9", BloodGroup: "A+", Component: "plasma"})
	if _, _, err := svc.UpdateUnit(ctx, u.ID, map[string]any{"expiryDate": "2030-01-01"}); !errors.Is(err, collection.ErrInvalid) {
		t.Errorf("expected expiryDate to be protected, got %v", err)
	}
	if got, _, err := svc.UpdateUnit(ctx, u.ID, map[string]any{"location": "Freezer 2"}); err != nil || got.Location != "Freezer 2" {
		t.Errorf("unexpected unit edit %+v %v", got, err)
	}

	r, _ := svc.CreateRequest(ctx, Request{PatientID: "pat-1", BloodGroup: "A+", Units: 1})
	if _, _, err := svc.UpdateRequest(ctx, r.ID, map[string]any{"status": RequestApproved}); !errors.Is(err, collection.ErrInvalid) {
		t.Errorf("expected status to be protected, got %v", err)
	}
	if got, _, err := svc.UpdateRequest(ctx, r.ID, map[string]any{"units": 2}); err != nil || got.Units != 2 {
		t.Errorf("unexpected request edit %+v %v", got, err)
	}
	if _, err := svc.RejectRequest(ctx, r.ID, "no match", "u-bb"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if _, _, err := svc.UpdateRequest(ctx, r.ID, map[string]any{"units": 3}); !errors.Is(err, collection.ErrConflict) {
		t.Errorf("expected rejected request to be locked, got %v", err)
	}
}
