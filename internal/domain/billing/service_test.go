package billing

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
	return patient.Patient{ID: id, Name: "John Doe"}, nil
}

type fixedRate float64

func (r fixedRate) TaxRate() float64 { return float64(r) }

func newTestService(t *testing.T) *Service {
	t.Helper()
	reg := collection.NewRegistry(store.NewMemoryStore(), zerolog.Nop())
	bills, err := Open(context.Background(), reg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	clk := clock.Fixed(time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC))
	return NewService(bills, fakePatients{}, fixedRate(0.10), clk)
}

func consultation() CreateRequest {
	return CreateRequest{Bill: Bill{
		PatientID: "pat-1",
		Items: []Item{
			{Description: "Consultation", Quantity: 1, UnitPrice: 500},
			{Description: "Lab work", Quantity: 1, UnitPrice: 500},
		},
	}}
}

func TestCreate_ComputesTotals(t *testing.T) {
	svc := newTestService(t)
	b, err := svc.Create(context.Background(), consultation())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Subtotal != 1000 || b.Tax != 100 || b.Total != 1100 {
		t.Errorf("expected 1000/100/1100, got %v/%v/%v", b.Subtotal, b.Tax, b.Total)
	}
	if b.Items[0].Total != 500 || b.TaxRate != 0.10 {
		t.Errorf("unexpected items or rate %+v", b)
	}
	if b.Status != StatusPending || b.PatientName != "John Doe" || b.DueDate != "2024-04-14" {
		t.Errorf("unexpected defaults %+v", b)
	}
}

func TestCreate_ExplicitZeroTaxRate(t *testing.T) {
	svc := newTestService(t)
	req := consultation()
	zero := 0.0
	req.TaxRate = &zero
	b, err := svc.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Total != 1000 {
		t.Errorf("expected tax-free total 1000, got %v", b.Total)
	}
}

func TestCreate_Rejects(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	req := consultation()
	req.PatientID = "pat-404"
	if _, err := svc.Create(ctx, req); !errors.Is(err, collection.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	req = consultation()
	req.Items[0].Quantity = 0
	if _, err := svc.Create(ctx, req); !errors.Is(err, collection.ErrInvalid) {
		t.Errorf("expected invalid quantity, got %v", err)
	}
	if _, err := svc.Create(ctx, CreateRequest{Bill: Bill{PatientID: "pat-1"}}); !errors.Is(err, collection.ErrInvalid) {
		t.Errorf("expected invalid for no items, got %v", err)
	}
}

func TestRecordPayment(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	b, _ := svc.Create(ctx, consultation())

	b, err := svc.RecordPayment(ctx, b.ID, 600, "cash")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Status != StatusPartial || b.AmountPaid != 600 || b.Balance() != 500 {
		t.Errorf("unexpected partial bill %+v", b)
	}
	if _, err := svc.RecordPayment(ctx, b.ID, 600, "cash"); !errors.Is(err, collection.ErrInvalid) {
		t.Errorf("expected overpayment rejected, got %v", err)
	}
	b, err = svc.RecordPayment(ctx, b.ID, 500, "card")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Status != StatusPaid || b.PaidDate != "2024-03-15" || b.PaymentMethod != "card" {
		t.Errorf("unexpected paid bill %+v", b)
	}
	if _, err := svc.RecordPayment(ctx, b.ID, 1, ""); !errors.Is(err, collection.ErrConflict) {
		t.Errorf("expected conflict paying a paid bill, got %v", err)
	}
	if _, err := svc.RecordPayment(ctx, "bill-404", 1, ""); !errors.Is(err, collection.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestUpdate_RecomputesTotals(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	b, _ := svc.Create(ctx, consultation())

	got, found, err := svc.Update(ctx, b.ID, map[string]any{"discount": 100})
	if err != nil || !found {
		t.Fatalf("unexpected result found=%v err=%v", found, err)
	}
	if got.Total != 990 || got.Tax != 90 {
		t.Errorf("expected 990 with 90 tax, got %+v", got)
	}
	if _, _, err := svc.Update(ctx, b.ID, map[string]any{"total": 1}); !errors.Is(err, collection.ErrInvalid) {
		t.Errorf("expected derived field rejected, got %v", err)
	}
	if _, err := svc.RecordPayment(ctx, b.ID, got.Total, "cash"); err != nil {
		t.Fatalf("pay: %v", err)
	}
	if _, _, err := svc.Update(ctx, b.ID, map[string]any{"notes": "x"}); !errors.Is(err, collection.ErrConflict) {
		t.Errorf("expected paid bill to be locked, got %v", err)
	}
}

func TestCancel(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	b1, _ := svc.Create(ctx, consultation())
	b2, _ := svc.Create(ctx, consultation())
	if _, err := svc.RecordPayment(ctx, b2.ID, 100, "cash"); err != nil {
		t.Fatalf("pay: %v", err)
	}

	if b, err := svc.Cancel(ctx, b1.ID); err != nil || b.Status != StatusCancelled {
		t.Errorf("unexpected cancel result %+v %v", b, err)
	}
	if _, err := svc.Cancel(ctx, b2.ID); !errors.Is(err, collection.ErrConflict) {
		t.Errorf("expected conflict cancelling a part-paid bill, got %v", err)
	}
}

func TestMarkOverdueAndSummary(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	old := consultation()
	old.Date, old.DueDate = "2024-02-01", "2024-03-01"
	overdue, _ := svc.Create(ctx, old)
	current, _ := svc.Create(ctx, consultation())
	if _, err := svc.RecordPayment(ctx, current.ID, current.Total, "cash"); err != nil {
		t.Fatalf("pay: %v", err)
	}

	n, err := svc.MarkOverdue(ctx)
	if err != nil || n != 1 {
		t.Fatalf("expected 1 bill marked, got %d %v", n, err)
	}
	if b, _ := svc.bills.Get(overdue.ID); b.Status != StatusOverdue {
		t.Errorf("expected overdue status, got %s", b.Status)
	}
	rev := svc.bills.Revision()
	if n, _ := svc.MarkOverdue(ctx); n != 0 || svc.bills.Revision() != rev {
		t.Error("second pass must not rewrite the collection")
	}

	sum := svc.Summarize()
	if sum.TotalBilled != 2200 || sum.Collected != 1100 || sum.Outstanding != 1100 || sum.OverdueCount != 1 {
		t.Errorf("unexpected summary %+v", sum)
	}
	if len(sum.LastSevenDays) != 7 || sum.LastSevenDays[6].Date != "2024-03-15" || sum.LastSevenDays[6].Collected != 1100 {
		t.Errorf("unexpected day buckets %+v", sum.LastSevenDays)
	}
	if len(svc.Overdue()) != 1 {
		t.Errorf("expected one overdue bill")
	}
}
