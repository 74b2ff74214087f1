package pharmacy

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
	if id == "pat-404" {
		return patient.Patient{}, collection.NotFoundf("patient %s not found", id)
	}
	return patient.Patient{ID: id, Name: "Asha"}, nil
}

type warnDays int

func (w warnDays) PharmacyExpiryWarnDays() int { return int(w) }

func newTestService(t *testing.T) *Service {
	t.Helper()
	reg := collection.NewRegistry(store.NewMemoryStore(), zerolog.Nop())
	cols, err := Open(context.Background(), reg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	svc := NewService(cols, fakePatients{}, warnDays(90), clock.Fixed(time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)))
	for _, m := range []Medicine{
		{ID: "med-1", Name: "Paracetamol", Quantity: 45, ReorderLevel: 75, ExpiryDate: "2024-06-20"},
		{ID: "med-2", Name: "Amoxicillin", Quantity: 500, ReorderLevel: 100, ExpiryDate: "2025-06-01"},
		{ID: "med-3", Name: "Cetirizine", Quantity: 20, ReorderLevel: 10, ExpiryDate: "2024-05-01"},
		{ID: "med-4", Name: "Metformin", Quantity: 200, ReorderLevel: 50, ExpiryDate: "2024-08-15"},
	} {
		if _, err := svc.CreateMedicine(context.Background(), m); err != nil {
			t.Fatalf("seed medicine: %v", err)
		}
	}
	return svc
}

func TestLowStock(t *testing.T) {
	svc := newTestService(t)
	low := svc.LowStock()
	if len(low) != 1 || low[0].ID != "med-1" {
		t.Errorf("expected only Paracetamol, got %+v", low)
	}
}

func TestExpiry(t *testing.T) {
	svc := newTestService(t)
	r := svc.Expiry()
	if len(r.Expired) != 1 || r.Expired[0].Medicine.ID != "med-3" {
		t.Errorf("unexpected expired %+v", r.Expired)
	}
	if len(r.Within30) != 1 || r.Within30[0].DaysLeft != 19 {
		t.Errorf("unexpected within30 %+v", r.Within30)
	}
	if len(r.Within90) != 1 || r.Within90[0].Medicine.ID != "med-4" {
		t.Errorf("unexpected within90 %+v", r.Within90)
	}
	if len(r.Within60) != 0 {
		t.Errorf("unexpected within60 %+v", r.Within60)
	}

	soon := svc.ExpiringSoon()
	if len(soon) != 2 || soon[0].ID != "med-1" {
		t.Errorf("expected two expiring within 90 days, got %+v", soon)
	}
	svc.thresholds = warnDays(30)
	if soon := svc.ExpiringSoon(); len(soon) != 1 {
		t.Errorf("expected one expiring within 30 days, got %+v", soon)
	}
}

func TestDispense(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	m, err := svc.Dispense(ctx, "med-2", 20)
	if err != nil || m.Quantity != 480 {
		t.Fatalf("unexpected result %+v %v", m, err)
	}
	if _, err := svc.Dispense(ctx, "med-1", 46); !errors.Is(err, collection.ErrConflict) {
		t.Errorf("expected insufficient stock conflict, got %v", err)
	}
	if m, _ := svc.Medicine("med-1"); m.Quantity != 45 {
		t.Errorf("rejected dispense changed stock to %d", m.Quantity)
	}
	if _, err := svc.Dispense(ctx, "med-3", 1); !errors.Is(err, collection.ErrConflict) {
		t.Errorf("expected expired stock conflict, got %v", err)
	}
	if _, err := svc.Dispense(ctx, "med-2", 0); !errors.Is(err, collection.ErrInvalid) {
		t.Errorf("expected invalid quantity, got %v", err)
	}
	if _, err := svc.Dispense(ctx, "med-9", 1); !errors.Is(err, collection.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestAdjustStock(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	if m, err := svc.AdjustStock(ctx, "med-1", 100); err != nil || m.Quantity != 145 {
		t.Errorf("unexpected result %+v %v", m, err)
	}
	if _, err := svc.AdjustStock(ctx, "med-1", -200); !errors.Is(err, collection.ErrConflict) {
		t.Errorf("expected conflict, got %v", err)
	}
}

func TestPurchaseOrderFlow(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	o, err := svc.CreateOrder(ctx, PurchaseOrder{
		Supplier: "MedSupply",
		Items: []OrderItem{
			{MedicineID: "med-1", Quantity: 100, UnitPrice: 1.25},
			{MedicineID: "med-4", Quantity: 10, UnitPrice: 3},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.TotalAmount != 155 || o.Items[0].MedicineName != "Paracetamol" || o.Status != OrderPending {
		t.Errorf("unexpected order %+v", o)
	}

	if _, err := svc.ReceiveOrder(ctx, o.ID); !errors.Is(err, collection.ErrConflict) {
		t.Errorf("expected pending order receive to conflict, got %v", err)
	}
	if _, err := svc.ApproveOrder(ctx, o.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	received, err := svc.ReceiveOrder(ctx, o.ID)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if received.ReceivedDate != "2024-06-01" {
		t.Errorf("expected received date, got %q", received.ReceivedDate)
	}
	if m, _ := svc.Medicine("med-1"); m.Quantity != 145 {
		t.Errorf("expected stock 145, got %d", m.Quantity)
	}
	if _, err := svc.ReceiveOrder(ctx, o.ID); !errors.Is(err, collection.ErrConflict) {
		t.Errorf("expected second receive to conflict, got %v", err)
	}
	if _, err := svc.CancelOrder(ctx, o.ID); !errors.Is(err, collection.ErrConflict) {
		t.Errorf("expected cancel of received order to conflict, got %v", err)
	}

	_, err = svc.CreateOrder(ctx, PurchaseOrder{Supplier: "X", Items: []OrderItem{{MedicineID: "med-9", Quantity: 1}}})
	if !errors.Is(err, collection.ErrNotFound) {
		t.Errorf("expected unknown medicine rejected, got %v", err)
	}
}

func TestReceiveOrder_RevertsWhenMedicineGone(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	o, err := svc.CreateOrder(ctx, PurchaseOrder{Supplier: "S", Items: []OrderItem{{MedicineID: "med-4", Quantity: 5}}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.ApproveOrder(ctx, o.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := svc.medicines.Delete(ctx, "med-4"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := svc.ReceiveOrder(ctx, o.ID); !errors.Is(err, collection.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if got, _ := svc.orders.Get(o.ID); got.Status != OrderApproved || got.ReceivedDate != "" {
		t.Errorf("expected order reverted to approved, got %+v", got)
	}
}

func TestRefillFlow(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	r, err := svc.CreateRefill(ctx, RefillRequest{PatientID: "pat-1", MedicineID: "med-1", Quantity: 50})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.PatientName != "Asha" || r.MedicineName != "Paracetamol" || r.Status != RefillPending {
		t.Errorf("unexpected refill %+v", r)
	}
	if _, err := svc.DispenseRefill(ctx, r.ID); !errors.Is(err, collection.ErrConflict) {
		t.Errorf("expected dispensing a pending refill to conflict, got %v", err)
	}
	if _, err := svc.ApproveRefill(ctx, r.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	// 50 requested, 45 on hand.
	if _, err := svc.DispenseRefill(ctx, r.ID); !errors.Is(err, collection.ErrConflict) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if got, _ := svc.refills.Get(r.ID); got.Status != RefillApproved {
		t.Errorf("expected refill back to approved, got %s", got.Status)
	}
	if _, err := svc.AdjustStock(ctx, "med-1", 10); err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if got, err := svc.DispenseRefill(ctx, r.ID); err != nil || got.Status != RefillDispensed {
		t.Fatalf("dispense: %+v %v", got, err)
	}
	if m, _ := svc.Medicine("med-1"); m.Quantity != 5 {
		t.Errorf("expected 5 left, got %d", m.Quantity)
	}

	other, _ := svc.CreateRefill(ctx, RefillRequest{PatientID: "pat-1", MedicineID: "med-2", Quantity: 1})
	if got, err := svc.RejectRefill(ctx, other.ID, "needs review"); err != nil || got.Notes != "needs review" {
		t.Errorf("unexpected reject result %+v %v", got, err)
	}
	if len(svc.RefillsForPatient("pat-1")) != 2 {
		t.Error("expected two refills for the patient")
	}
}

func TestReturns(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	r, err := svc.CreateReturn(ctx, MedicineReturn{MedicineID: "med-2", Quantity: 10, Reason: "unused"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := svc.ProcessReturn(ctx, r.ID, true)
	if err != nil || !got.Restocked || got.Status != ReturnProcessed {
		t.Fatalf("unexpected process result %+v %v", got, err)
	}
	if m, _ := svc.Medicine("med-2"); m.Quantity != 510 {
		t.Errorf("expected 510 after restock, got %d", m.Quantity)
	}
	if _, err := svc.ProcessReturn(ctx, r.ID, true); !errors.Is(err, collection.ErrConflict) {
		t.Errorf("expected second processing to conflict, got %v", err)
	}

	damaged, _ := svc.CreateReturn(ctx, MedicineReturn{MedicineID: "med-2", Quantity: 5, Reason: "damaged"})
	if _, err := svc.ProcessReturn(ctx, damaged.ID, false); err != nil {
		t.Fatalf("process: %v", err)
	}
	if m, _ := svc.Medicine("med-2"); m.Quantity != 510 {
		t.Errorf("expected no restock for damaged return, got %d", m.Quantity)
	}
	if _, err := svc.CreateReturn(ctx, MedicineReturn{MedicineID: "med-2", Quantity: 1}); !errors.Is(err, collection.ErrInvalid) {
		t.Errorf("expected missing reason rejected, got %v", err)
	}
}

func TestUpdates_KeepWorkflowFields(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, _, err := svc.UpdateMedicine(ctx, "med-1", map[string]any{"quantity": 9999}); !errors.Is(err, collection.ErrInvalid) {
		t.Errorf("expected quantity to be protected, got %v", err)
	}
	if m, _, err := svc.UpdateMedicine(ctx, "med-1", map[string]any{"location": "Shelf B"}); err != nil || m.Location != "Shelf B" || m.Quantity != 45 {
		t.Errorf("unexpected medicine edit %+v %v", m, err)
	}

	o, _ := svc.CreateOrder(ctx, PurchaseOrder{Supplier: "MedSupply", Items: []OrderItem{{MedicineID: "med-2", Quantity: 10, UnitPrice: 2}}})
	if _, _, err := svc.UpdateOrder(ctx, o.ID, map[string]any{"totalAmount": 1}); !errors.Is(err, collection.ErrInvalid) {
		t.Errorf("expected totalAmount to be protected, got %v", err)
	}
	if got, _, err := svc.UpdateOrder(ctx, o.ID, map[string]any{"expectedDate": "2024-06-10"}); err != nil || got.ExpectedDate != "2024-06-10" {
		t.Errorf("unexpected order edit %+v %v", got, err)
	}
	if _, err := svc.CancelOrder(ctx, o.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, _, err := svc.UpdateOrder(ctx, o.ID, map[string]any{"notes": "late"}); !errors.Is(err, collection.ErrConflict) {
		t.Errorf("expected cancelled order to be locked, got %v", err)
	}

	r, _ := svc.CreateRefill(ctx, RefillRequest{PatientID: "pat-1", MedicineID: "med-2", Quantity: 5})
	if _, _, err := svc.UpdateRefill(ctx, r.ID, map[string]any{"patientId": "pat-404"}); !errors.Is(err, collection.ErrInvalid) {
		t.Errorf("expected patientId to be protected, got %v", err)
	}
	if got, _, err := svc.UpdateRefill(ctx, r.ID, map[string]any{"quantity": 3}); err != nil || got.Quantity != 3 {
		t.Errorf("unexpected refill edit %+v %v", got, err)
	}

	ret, _ := svc.CreateReturn(ctx, MedicineReturn{MedicineID: "med-2", Quantity: 2, Reason: "unused"})
	if _, _, err := svc.UpdateReturn(ctx, ret.ID, map[string]any{"restocked": true}); !errors.Is(err, collection.ErrInvalid) {
		t.Errorf("expected restocked to be protected, got %v", err)
	}
	if _, err := svc.ProcessReturn(ctx, ret.ID, false); err != nil {
		t.Fatalf("process: %v", err)
	}
	if _, _, err := svc.UpdateReturn(ctx, ret.ID, map[string]any{"quantity": 1}); !errors.Is(err, collection.ErrConflict) {
		t.Errorf("expected processed return to be locked, got %v", err)
	}
}
