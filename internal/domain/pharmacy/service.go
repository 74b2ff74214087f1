package pharmacy

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/hms/hms/internal/domain/patient"
	"github.com/hms/hms/internal/platform/clock"
	"github.com/hms/hms/internal/platform/collection"
)

type Patients interface {
	Patient(id patient.ID) (patient.Patient, error)
}

// Thresholds supplies the "expiring soon" window in days.
type Thresholds interface {
	PharmacyExpiryWarnDays() int
}

type Collections struct {
	Medicines *collection.Collection[Medicine]
	Orders    *collection.Collection[PurchaseOrder]
	Refills   *collection.Collection[RefillRequest]
	Returns   *collection.Collection[MedicineReturn]
}

func Open(ctx context.Context, reg *collection.Registry) (*Collections, error) {
	meds, err := collection.Open[Medicine](ctx, reg, MedicinesKey, nil)
	if err != nil {
		return nil, err
	}
	orders, err := collection.Open[PurchaseOrder](ctx, reg, OrdersKey, nil)
	if err != nil {
		return nil, err
	}
	refills, err := collection.Open[RefillRequest](ctx, reg, RefillsKey, nil)
	if err != nil {
		return nil, err
	}
	returns, err := collection.Open[MedicineReturn](ctx, reg, ReturnsKey, nil)
	if err != nil {
		return nil, err
	}
	return &Collections{Medicines: meds, Orders: orders, Refills: refills, Returns: returns}, nil
}

type Service struct {
	medicines  *collection.Collection[Medicine]
	orders     *collection.Collection[PurchaseOrder]
	refills    *collection.Collection[RefillRequest]
	returns    *collection.Collection[MedicineReturn]
	patients   Patients
	thresholds Thresholds
	clock      clock.Clock
}

func NewService(c *Collections, patients Patients, thresholds Thresholds, clk clock.Clock) *Service {
	c.Medicines.SetValidator(Medicine.Validate)
	c.Orders.SetValidator(PurchaseOrder.Validate)
	c.Refills.SetValidator(RefillRequest.Validate)
	c.Returns.SetValidator(MedicineReturn.Validate)
	return &Service{
		medicines:  c.Medicines,
		orders:     c.Orders,
		refills:    c.Refills,
		returns:    c.Returns,
		patients:   patients,
		thresholds: thresholds,
		clock:      clk,
	}
}

// -- Medicines --

func (s *Service) CreateMedicine(ctx context.Context, m Medicine) (Medicine, error) {
	if m.ID == "" {
		m.ID = MedicineID(collection.NewID("med"))
	}
	if err := s.medicines.Add(ctx, m); err != nil {
		return Medicine{}, err
	}
	return m, nil
}

func (s *Service) Medicine(id MedicineID) (Medicine, error) {
	m, ok := s.medicines.Get(string(id))
	if !ok {
		return Medicine{}, collection.NotFoundf("medicine %s not found", id)
	}
	return m, nil
}

// LowStock lists medicines at or below their reorder level, scarcest first.
func (s *Service) LowStock() []Medicine {
	out := s.medicines.Find(Medicine.LowStock)
	sort.Slice(out, func(i, j int) bool {
		return out[i].Quantity-out[i].ReorderLevel < out[j].Quantity-out[j].ReorderLevel
	})
	if out == nil {
		out = []Medicine{}
	}
	return out
}

// Expiry buckets every medicine with a valid expiry date. Medicines more
// than 90 days from expiry are left out.
func (s *Service) Expiry() ExpiryReport {
	today := clock.Today(s.clock)
	r := ExpiryReport{
		Expired:  []ExpiryEntry{},
		Within30: []ExpiryEntry{},
		Within60: []ExpiryEntry{},
		Within90: []ExpiryEntry{},
	}
	for _, m := range s.medicines.List() {
		b, days, err := clock.BucketFor(today, m.ExpiryDate)
		if err != nil {
			continue
		}
		e := ExpiryEntry{Medicine: m, Bucket: b, DaysLeft: days}
		switch b {
		case clock.Expired:
			r.Expired = append(r.Expired, e)
		case clock.Within30:
			r.Within30 = append(r.Within30, e)
		case clock.Within60:
			r.Within60 = append(r.Within60, e)
		case clock.Within90:
			r.Within90 = append(r.Within90, e)
		}
	}
	return r
}

// ExpiringSoon lists medicines expiring within the configured window.
func (s *Service) ExpiringSoon() []Medicine {
	today := clock.Today(s.clock)
	days := s.thresholds.PharmacyExpiryWarnDays()
	out := s.medicines.Find(func(m Medicine) bool {
		return clock.ExpiringWithin(today, m.ExpiryDate, days)
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiryDate < out[j].ExpiryDate })
	if out == nil {
		out = []Medicine{}
	}
	return out
}

// Dispense takes qty units out of stock. Expired stock is never dispensed.
func (s *Service) Dispense(ctx context.Context, id MedicineID, qty int) (Medicine, error) {
	if qty <= 0 {
		return Medicine{}, collection.Invalidf("quantity must be positive")
	}
	today := clock.Today(s.clock)
	return s.mutateMedicine(ctx, id, func(m *Medicine) error {
		if m.ExpiryDate != "" && m.ExpiryDate < today {
			return collection.Conflictf("%s expired on %s", m.Name, m.ExpiryDate)
		}
		if qty > m.Quantity {
			return collection.Conflictf("insufficient stock of %s: %d available, %d requested", m.Name, m.Quantity, qty)
		}
		m.Quantity -= qty
		return nil
	})
}

// AdjustStock adds delta (negative to remove) to the stock level.
func (s *Service) AdjustStock(ctx context.Context, id MedicineID, delta int) (Medicine, error) {
	if delta == 0 {
		return Medicine{}, collection.Invalidf("delta must not be zero")
	}
	return s.mutateMedicine(ctx, id, func(m *Medicine) error {
		if m.Quantity+delta < 0 {
			return collection.Conflictf("insufficient stock of %s: %d available", m.Name, m.Quantity)
		}
		m.Quantity += delta
		return nil
	})
}

// UpdateMedicine applies a PATCH to a catalogue entry. Stock moves only
// through dispense, adjust and receipts.
func (s *Service) UpdateMedicine(ctx context.Context, id string, partial map[string]any, opts ...collection.MutateOption) (Medicine, bool, error) {
	if err := collection.Protected(partial, "quantity"); err != nil {
		return Medicine{}, false, err
	}
	return s.medicines.Update(ctx, id, partial, opts...)
}

func (s *Service) mutateMedicine(ctx context.Context, id MedicineID, fn func(*Medicine) error) (Medicine, error) {
	m, found, err := s.medicines.Mutate(ctx, string(id), fn)
	if err != nil {
		return Medicine{}, err
	}
	if !found {
		return Medicine{}, collection.NotFoundf("medicine %s not found", id)
	}
	return m, nil
}

// -- Purchase orders --

func (s *Service) CreateOrder(ctx context.Context, o PurchaseOrder) (PurchaseOrder, error) {
	if o.ID == "" {
		o.ID = collection.NewID("po")
	}
	if o.OrderDate == "" {
		o.OrderDate = clock.Today(s.clock)
	}
	o.Status = OrderPending
	o.ReceivedDate = ""
	if err := o.Validate(); err != nil {
		return PurchaseOrder{}, collection.Invalid(err)
	}
	items := make([]OrderItem, len(o.Items))
	var total float64
	for i, it := range o.Items {
		m, err := s.Medicine(it.MedicineID)
		if err != nil {
			return PurchaseOrder{}, err
		}
		it.MedicineName = m.Name
		it.Total = round2(float64(it.Quantity) * it.UnitPrice)
		total += it.Total
		items[i] = it
	}
	o.Items = items
	o.TotalAmount = round2(total)
	if err := s.orders.Add(ctx, o); err != nil {
		return PurchaseOrder{}, err
	}
	return o, nil
}

// UpdateOrder edits the supplier details of an open order. Lines and
// totals are fixed once the order is raised.
func (s *Service) UpdateOrder(ctx context.Context, id string, partial map[string]any, opts ...collection.MutateOption) (PurchaseOrder, bool, error) {
	if err := collection.Protected(partial, "status", "items", "totalAmount", "orderDate", "receivedDate"); err != nil {
		return PurchaseOrder{}, false, err
	}
	return s.orders.Mutate(ctx, id, func(o *PurchaseOrder) error {
		if o.Status != OrderPending && o.Status != OrderApproved {
			return collection.Conflictf("a %s purchase order cannot be edited", o.Status)
		}
		merged, err := collection.Merge(*o, partial)
		if err != nil {
			return err
		}
		*o = merged
		return nil
	}, opts...)
}

func (s *Service) ApproveOrder(ctx context.Context, id string) (PurchaseOrder, error) {
	return s.setOrderStatus(ctx, id, OrderApproved, OrderPending)
}

func (s *Service) CancelOrder(ctx context.Context, id string) (PurchaseOrder, error) {
	return s.setOrderStatus(ctx, id, OrderCancelled, OrderPending, OrderApproved)
}

// ReceiveOrder marks an approved order received and adds its quantities to
// stock. The order is claimed first so it can only be received once; if the
// stock update fails the order goes back to approved.
func (s *Service) ReceiveOrder(ctx context.Context, id string) (PurchaseOrder, error) {
	o, err := s.setOrderStatus(ctx, id, OrderReceived, OrderApproved)
	if err != nil {
		return PurchaseOrder{}, err
	}
	stockErr := s.medicines.Apply(ctx, func(cur []Medicine) ([]Medicine, error) {
		for _, it := range o.Items {
			i := indexOfMedicine(cur, it.MedicineID)
			if i < 0 {
				return nil, collection.NotFoundf("medicine %s not found", it.MedicineID)
			}
			cur[i].Quantity += it.Quantity
		}
		return cur, nil
	})
	if stockErr != nil {
		if _, err := s.setOrderStatus(ctx, id, OrderApproved, OrderReceived); err != nil {
			return PurchaseOrder{}, fmt.Errorf("receive order %s: %w (revert failed: %v)", id, stockErr, err)
		}
		return PurchaseOrder{}, stockErr
	}
	return o, nil
}

func (s *Service) setOrderStatus(ctx context.Context, id, to string, from ...string) (PurchaseOrder, error) {
	today := clock.Today(s.clock)
	o, found, err := s.orders.Mutate(ctx, id, func(o *PurchaseOrder) error {
		if !oneOf(o.Status, from) {
			return collection.Conflictf("purchase order is %s, expected %s", o.Status, strings.Join(from, " or "))
		}
		o.Status = to
		switch to {
		case OrderReceived:
			o.ReceivedDate = today
		case OrderApproved:
			o.ReceivedDate = ""
		}
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	if !found {
		return PurchaseOrder{}, collection.NotFoundf("purchase order %s not found", id)
	}
	return o, nil
}

// -- Refill requests --

func (s *Service) CreateRefill(ctx context.Context, r RefillRequest) (RefillRequest, error) {
	if r.ID == "" {
		r.ID = collection.NewID("refill")
	}
	if r.RequestDate == "" {
		r.RequestDate = clock.Today(s.clock)
	}
	r.Status = RefillPending
	r.ProcessedDate = ""
	if err := r.Validate(); err != nil {
		return RefillRequest{}, collection.Invalid(err)
	}
	p, err := s.patients.Patient(r.PatientID)
	if err != nil {
		return RefillRequest{}, err
	}
	m, err := s.Medicine(r.MedicineID)
	if err != nil {
		return RefillRequest{}, err
	}
	r.PatientName = p.Name
	r.MedicineName = m.Name
	if err := s.refills.Add(ctx, r); err != nil {
		return RefillRequest{}, err
	}
	return r, nil
}

func (s *Service) UpdateRefill(ctx context.Context, id string, partial map[string]any, opts ...collection.MutateOption) (RefillRequest, bool, error) {
	if err := collection.Protected(partial, "status", "processedDate", "requestDate", "patientId", "patientName",
		"prescriptionId", "medicineId", "medicineName"); err != nil {
		return RefillRequest{}, false, err
	}
	return s.refills.Mutate(ctx, id, func(r *RefillRequest) error {
		if r.Status != RefillPending {
			return collection.Conflictf("refill request is already %s", r.Status)
		}
		merged, err := collection.Merge(*r, partial)
		if err != nil {
			return err
		}
		*r = merged
		return nil
	}, opts...)
}

func (s *Service) ApproveRefill(ctx context.Context, id string) (RefillRequest, error) {
	return s.setRefillStatus(ctx, id, RefillApproved, "", RefillPending)
}

func (s *Service) RejectRefill(ctx context.Context, id, reason string) (RefillRequest, error) {
	return s.setRefillStatus(ctx, id, RefillRejected, reason, RefillPending)
}

// DispenseRefill hands out an approved refill and takes it out of stock.
func (s *Service) DispenseRefill(ctx context.Context, id string) (RefillRequest, error) {
	r, err := s.setRefillStatus(ctx, id, RefillDispensed, "", RefillApproved)
	if err != nil {
		return RefillRequest{}, err
	}
	if _, stockErr := s.Dispense(ctx, r.MedicineID, r.Quantity); stockErr != nil {
		if _, err := s.setRefillStatus(ctx, id, RefillApproved, "", RefillDispensed); err != nil {
			return RefillRequest{}, fmt.Errorf("dispense refill %s: %w (revert failed: %v)", id, stockErr, err)
		}
		return RefillRequest{}, stockErr
	}
	return r, nil
}

func (s *Service) setRefillStatus(ctx context.Context, id, to, notes string, from ...string) (RefillRequest, error) {
	today := clock.Today(s.clock)
	r, found, err := s.refills.Mutate(ctx, id, func(r *RefillRequest) error {
		if !oneOf(r.Status, from) {
			return collection.Conflictf("refill request is %s, expected %s", r.Status, strings.Join(from, " or "))
		}
		r.Status = to
		r.ProcessedDate = today
		if notes != "" {
			r.Notes = notes
		}
		return nil
	})
	if err != nil {
		return RefillRequest{}, err
	}
	if !found {
		return RefillRequest{}, collection.NotFoundf("refill request %s not found", id)
	}
	return r, nil
}

func (s *Service) RefillsForPatient(id patient.ID) []RefillRequest {
	out := s.refills.Find(func(r RefillRequest) bool { return r.PatientID == id })
	if out == nil {
		out = []RefillRequest{}
	}
	return out
}

// -- Returns --

func (s *Service) CreateReturn(ctx context.Context, r MedicineReturn) (MedicineReturn, error) {
	if r.ID == "" {
		r.ID = collection.NewID("ret")
	}
	if r.ReturnDate == "" {
		r.ReturnDate = clock.Today(s.clock)
	}
	r.Status = ReturnPending
	r.Restocked = false
	r.ProcessedDate = ""
	if err := r.Validate(); err != nil {
		return MedicineReturn{}, collection.Invalid(err)
	}
	m, err := s.Medicine(r.MedicineID)
	if err != nil {
		return MedicineReturn{}, err
	}
	r.MedicineName = m.Name
	if err := s.returns.Add(ctx, r); err != nil {
		return MedicineReturn{}, err
	}
	return r, nil
}

func (s *Service) UpdateReturn(ctx context.Context, id string, partial map[string]any, opts ...collection.MutateOption) (MedicineReturn, bool, error) {
	if err := collection.Protected(partial, "status", "processedDate", "restocked", "returnDate",
		"medicineId", "medicineName", "patientId"); err != nil {
		return MedicineReturn{}, false, err
	}
	return s.returns.Mutate(ctx, id, func(r *MedicineReturn) error {
		if r.Status != ReturnPending {
			return collection.Conflictf("return is already %s", r.Status)
		}
		merged, err := collection.Merge(*r, partial)
		if err != nil {
			return err
		}
		*r = merged
		return nil
	}, opts...)
}

// ProcessReturn accepts a pending return, putting the units back on the
// shelf when restock is set.
func (s *Service) ProcessReturn(ctx context.Context, id string, restock bool) (MedicineReturn, error) {
	r, err := s.setReturnStatus(ctx, id, ReturnProcessed, restock)
	if err != nil {
		return MedicineReturn{}, err
	}
	if !restock {
		return r, nil
	}
	if _, stockErr := s.AdjustStock(ctx, r.MedicineID, r.Quantity); stockErr != nil {
		if _, err := s.revertReturn(ctx, id); err != nil {
			return MedicineReturn{}, fmt.Errorf("process return %s: %w (revert failed: %v)", id, stockErr, err)
		}
		return MedicineReturn{}, stockErr
	}
	return r, nil
}

func (s *Service) RejectReturn(ctx context.Context, id string) (MedicineReturn, error) {
	return s.setReturnStatus(ctx, id, ReturnRejected, false)
}

func (s *Service) setReturnStatus(ctx context.Context, id, to string, restock bool) (MedicineReturn, error) {
	today := clock.Today(s.clock)
	r, found, err := s.returns.Mutate(ctx, id, func(r *MedicineReturn) error {
		if r.Status != ReturnPending {
			return collection.Conflictf("return is already %s", r.Status)
		}
		r.Status = to
		r.Restocked = restock
		r.ProcessedDate = today
		return nil
	})
	if err != nil {
		return MedicineReturn{}, err
	}
	if !found {
		return MedicineReturn{}, collection.NotFoundf("medicine return %s not found", id)
	}
	return r, nil
}

func (s *Service) revertReturn(ctx context.Context, id string) (MedicineReturn, error) {
	r, _, err := s.returns.Mutate(ctx, id, func(r *MedicineReturn) error {
		r.Status = ReturnPending
		r.Restocked = false
		r.ProcessedDate = ""
		return nil
	})
	return r, err
}

func indexOfMedicine(meds []Medicine, id MedicineID) int {
	for i, m := range meds {
		if m.ID == id {
			return i
		}
	}
	return -1
}

func oneOf(s string, set []string) bool {
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
