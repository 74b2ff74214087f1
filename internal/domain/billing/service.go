package billing

import (
	"context"
	"sort"

	"github.com/hms/hms/internal/domain/patient"
	"github.com/hms/hms/internal/platform/clock"
	"github.com/hms/hms/internal/platform/collection"
)

// Bills are due this many days after issue unless a due date is given.
const defaultTermDays = 30

// TaxRateSource supplies the tax rate for bills created without one.
type TaxRateSource interface {
	TaxRate() float64
}

type Patients interface {
	Patient(id patient.ID) (patient.Patient, error)
}

func Open(ctx context.Context, reg *collection.Registry) (*collection.Collection[Bill], error) {
	return collection.Open[Bill](ctx, reg, Key, nil)
}

type Service struct {
	bills    *collection.Collection[Bill]
	patients Patients
	tax      TaxRateSource
	clock    clock.Clock
}

func NewService(bills *collection.Collection[Bill], patients Patients, tax TaxRateSource, clk clock.Clock) *Service {
	bills.SetValidator(Bill.Validate)
	return &Service{bills: bills, patients: patients, tax: tax, clock: clk}
}

// CreateRequest is a new bill. A nil TaxRate takes the configured rate.
type CreateRequest struct {
	Bill
	TaxRate *float64 `json:"taxRate"`
}

// Create issues a pending bill with computed line and bill totals.
func (s *Service) Create(ctx context.Context, req CreateRequest) (Bill, error) {
	b := req.Bill
	if req.TaxRate != nil {
		b.TaxRate = *req.TaxRate
	} else {
		b.TaxRate = s.tax.TaxRate()
	}
	if b.ID == "" {
		b.ID = collection.NewID("bill")
	}
	if b.Date == "" {
		b.Date = clock.Today(s.clock)
	}
	if b.DueDate == "" {
		due, err := clock.AddDays(b.Date, defaultTermDays)
		if err != nil {
			return Bill{}, collection.Invalid(err)
		}
		b.DueDate = due
	}
	b.Status = StatusPending
	b.AmountPaid = 0
	b.PaidDate = ""
	b.Recompute()
	if err := b.Validate(); err != nil {
		return Bill{}, collection.Invalid(err)
	}

	p, err := s.patients.Patient(b.PatientID)
	if err != nil {
		return Bill{}, err
	}
	b.PatientName = p.Name
	if err := s.bills.Add(ctx, b); err != nil {
		return Bill{}, err
	}
	return b, nil
}

// Update applies a PATCH to an open bill and recomputes its totals.
// Payment state changes only through RecordPayment and Cancel.
func (s *Service) Update(ctx context.Context, id string, partial map[string]any, opts ...collection.MutateOption) (Bill, bool, error) {
	if err := collection.Protected(partial, "status", "amountPaid", "paidDate", "subtotal",
		"tax", "total", "patientId", "patientName"); err != nil {
		return Bill{}, false, err
	}
	return s.bills.Mutate(ctx, id, func(b *Bill) error {
		if b.Status == StatusPaid || b.Status == StatusCancelled {
			return collection.Conflictf("a %s bill cannot be edited", b.Status)
		}
		merged, err := collection.Merge(*b, partial)
		if err != nil {
			return err
		}
		merged.Recompute()
		*b = merged
		return nil
	}, opts...)
}

// RecordPayment adds amount to the bill. Reaching the total marks it paid;
// anything less leaves it partial. Overpayment is rejected.
func (s *Service) RecordPayment(ctx context.Context, id string, amount float64, method string) (Bill, error) {
	if amount <= 0 {
		return Bill{}, collection.Invalidf("amount must be positive")
	}
	today := clock.Today(s.clock)
	b, found, err := s.bills.Mutate(ctx, id, func(b *Bill) error {
		if b.Status == StatusPaid || b.Status == StatusCancelled {
			return collection.Conflictf("bill is already %s", b.Status)
		}
		if Round2(amount) > b.Balance() {
			return collection.Invalidf("payment %.2f exceeds the balance %.2f", amount, b.Balance())
		}
		b.AmountPaid = Round2(b.AmountPaid + amount)
		if method != "" {
			b.PaymentMethod = method
		}
		if b.AmountPaid >= b.Total {
			b.Status = StatusPaid
			b.PaidDate = today
		} else {
			b.Status = StatusPartial
		}
		return nil
	})
	if err != nil {
		return Bill{}, err
	}
	if !found {
		return Bill{}, collection.NotFoundf("bill %s not found", id)
	}
	return b, nil
}

// Cancel voids a bill that has not received any payment.
func (s *Service) Cancel(ctx context.Context, id string) (Bill, error) {
	b, found, err := s.bills.Mutate(ctx, id, func(b *Bill) error {
		if b.Status == StatusCancelled {
			return collection.Conflictf("bill is already cancelled")
		}
		if b.AmountPaid > 0 {
			return collection.Conflictf("bill has payments of %.2f and cannot be cancelled", b.AmountPaid)
		}
		b.Status = StatusCancelled
		return nil
	})
	if err != nil {
		return Bill{}, err
	}
	if !found {
		return Bill{}, collection.NotFoundf("bill %s not found", id)
	}
	return b, nil
}

// MarkOverdue flags every open bill past its due date and returns how many
// changed.
func (s *Service) MarkOverdue(ctx context.Context) (int, error) {
	today := clock.Today(s.clock)
	n := 0
	err := s.bills.Apply(ctx, func(cur []Bill) ([]Bill, error) {
		for i := range cur {
			if cur[i].Status != StatusOverdue && cur[i].Overdue(today) {
				cur[i].Status = StatusOverdue
				n++
			}
		}
		if n == 0 {
			return nil, nil
		}
		return cur, nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Overdue lists open bills past their due date, oldest due first.
func (s *Service) Overdue() []Bill {
	today := clock.Today(s.clock)
	out := s.bills.Find(func(b Bill) bool { return b.Overdue(today) })
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate < out[j].DueDate })
	if out == nil {
		out = []Bill{}
	}
	return out
}

func (s *Service) ForPatient(id patient.ID) []Bill {
	out := s.bills.Find(func(b Bill) bool { return b.PatientID == id })
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	if out == nil {
		out = []Bill{}
	}
	return out
}

// Summarize computes revenue figures and the last seven days of collected
// payments, bucketed by paid date.
func (s *Service) Summarize() Summary {
	today := clock.Today(s.clock)
	days, _ := clock.LastDays(today, 7)
	byDay := make(map[string]float64, len(days))

	sum := Summary{ByStatus: map[string]int{}}
	for _, b := range s.bills.List() {
		sum.ByStatus[b.Status]++
		if b.Status == StatusCancelled {
			continue
		}
		sum.TotalBilled += b.Total
		sum.Collected += b.AmountPaid
		sum.Outstanding += b.Balance()
		if b.Overdue(today) {
			sum.OverdueCount++
		}
		if b.Status == StatusPaid {
			byDay[b.PaidDate] += b.AmountPaid
		}
	}
	sum.TotalBilled = Round2(sum.TotalBilled)
	sum.Collected = Round2(sum.Collected)
	sum.Outstanding = Round2(sum.Outstanding)
	for _, d := range days {
		sum.LastSevenDays = append(sum.LastSevenDays, DayRevenue{Date: d, Collected: Round2(byDay[d])})
	}
	return sum
}
