package billing

import (
	"fmt"
	"math"
	"strings"

	"github.com/hms/hms/internal/domain/patient"
)

const Key = "bills"

const (
	StatusPending   = "pending"
	StatusPaid      = "paid"
	StatusPartial   = "partial"
	StatusOverdue   = "overdue"
	StatusCancelled = "cancelled"
)

var validStatuses = map[string]bool{
	StatusPending:   true,
	StatusPaid:      true,
	StatusPartial:   true,
	StatusOverdue:   true,
	StatusCancelled: true,
}

type Item struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unitPrice"`
	Total       float64 `json:"total"`
}

type Bill struct {
	ID            string     `json:"id"`
	PatientID     patient.ID `json:"patientId"`
	PatientName   string     `json:"patientName"`
	Date          string     `json:"date"`
	DueDate       string     `json:"dueDate"`
	Items         []Item     `json:"items"`
	Subtotal      float64    `json:"subtotal"`
	Discount      float64    `json:"discount"`
	TaxRate       float64    `json:"taxRate"`
	Tax           float64    `json:"tax"`
	Total         float64    `json:"total"`
	Status        string     `json:"status"`
	PaymentMethod string     `json:"paymentMethod,omitempty"`
	PaidDate      string     `json:"paidDate,omitempty"`
	AmountPaid    float64    `json:"amountPaid"`
	Notes         string     `json:"notes,omitempty"`
}

func (b Bill) RecordID() string { return b.ID }

func (b Bill) Validate() error {
	if b.PatientID == "" {
		return fmt.Errorf("patientId is required")
	}
	if len(b.Items) == 0 {
		return fmt.Errorf("at least one item is required")
	}
	for i, it := range b.Items {
		if strings.TrimSpace(it.Description) == "" {
			return fmt.Errorf("items[%d].description is required", i)
		}
		if it.Quantity <= 0 {
			return fmt.Errorf("items[%d].quantity must be positive", i)
		}
		if it.UnitPrice < 0 {
			return fmt.Errorf("items[%d].unitPrice must not be negative", i)
		}
	}
	if b.Discount < 0 {
		return fmt.Errorf("discount must not be negative")
	}
	if b.TaxRate < 0 || b.TaxRate > 1 {
		return fmt.Errorf("taxRate must be between 0 and 1")
	}
	if b.AmountPaid < 0 || b.AmountPaid > b.Total {
		return fmt.Errorf("amountPaid must be between 0 and the total")
	}
	if !validStatuses[b.Status] {
		return fmt.Errorf("status %q is not valid", b.Status)
	}
	return nil
}

// Round2 rounds to cents.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

type Totals struct {
	Subtotal float64 `json:"subtotal"`
	Tax      float64 `json:"tax"`
	Total    float64 `json:"total"`
}

// ComputeTotals sums quantity × unitPrice over items. Tax is charged on the
// discounted subtotal. Every figure is rounded to cents.
func ComputeTotals(items []Item, discount, taxRate float64) Totals {
	var subtotal float64
	for _, it := range items {
		subtotal += it.Quantity * it.UnitPrice
	}
	subtotal = Round2(subtotal)
	taxable := subtotal - discount
	if taxable < 0 {
		taxable = 0
	}
	tax := Round2(taxable * taxRate)
	return Totals{Subtotal: subtotal, Tax: tax, Total: Round2(taxable + tax)}
}

// Recompute refreshes line totals and bill totals from the items. The item
// slice is copied so a stored record is never modified in place.
func (b *Bill) Recompute() {
	items := make([]Item, len(b.Items))
	for i, it := range b.Items {
		it.Total = Round2(it.Quantity * it.UnitPrice)
		items[i] = it
	}
	b.Items = items
	t := ComputeTotals(b.Items, b.Discount, b.TaxRate)
	b.Subtotal, b.Tax, b.Total = t.Subtotal, t.Tax, t.Total
}

// Balance is what remains to be paid.
func (b Bill) Balance() float64 {
	if b.Status == StatusCancelled {
		return 0
	}
	return Round2(b.Total - b.AmountPaid)
}

// Overdue reports whether an open bill is past its due date.
func (b Bill) Overdue(today string) bool {
	switch b.Status {
	case StatusPending, StatusPartial, StatusOverdue:
		return b.DueDate != "" && b.DueDate < today
	}
	return false
}

// DayRevenue is the amount collected on one date.
type DayRevenue struct {
	Date      string  `json:"date"`
	Collected float64 `json:"collected"`
}

type Summary struct {
	TotalBilled   float64        `json:"totalBilled"`
	Collected     float64        `json:"collected"`
	Outstanding   float64        `json:"outstanding"`
	OverdueCount  int            `json:"overdueCount"`
	ByStatus      map[string]int `json:"byStatus"`
	LastSevenDays []DayRevenue   `json:"lastSevenDays"`
}
