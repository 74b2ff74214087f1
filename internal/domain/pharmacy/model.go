package pharmacy

import (
	"fmt"
	"strings"

	"github.com/hms/hms/internal/domain/patient"
	"github.com/hms/hms/internal/platform/clock"
)

const (
	MedicinesKey = "medicines"
	OrdersKey    = "purchaseOrders"
	RefillsKey   = "refillRequests"
	ReturnsKey   = "medicineReturns"
)

type MedicineID string

type Medicine struct {
	ID           MedicineID `json:"id"`
	Name         string     `json:"name"`
	GenericName  string     `json:"genericName,omitempty"`
	Category     string     `json:"category"`
	Manufacturer string     `json:"manufacturer,omitempty"`
	BatchNumber  string     `json:"batchNumber,omitempty"`
	Quantity     int        `json:"quantity"`
	Unit         string     `json:"unit"`
	UnitPrice    float64    `json:"unitPrice"`
	ExpiryDate   string     `json:"expiryDate"`
	ReorderLevel int        `json:"reorderLevel"`
	Location     string     `json:"location,omitempty"`
}

func (m Medicine) RecordID() string { return string(m.ID) }

// LowStock reports quantity at or below the reorder level.
func (m Medicine) LowStock() bool {
	return m.Quantity <= m.ReorderLevel
}

func (m Medicine) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if m.Quantity < 0 {
		return fmt.Errorf("quantity must not be negative")
	}
	if m.ReorderLevel < 0 {
		return fmt.Errorf("reorderLevel must not be negative")
	}
	if m.UnitPrice < 0 {
		return fmt.Errorf("unitPrice must not be negative")
	}
	if m.ExpiryDate != "" {
		if _, err := clock.ParseDate(m.ExpiryDate); err != nil {
			return err
		}
	}
	return nil
}

// ExpiryEntry places one medicine in an expiry bucket.
type ExpiryEntry struct {
	Medicine Medicine     `json:"medicine"`
	Bucket   clock.Bucket `json:"bucket"`
	DaysLeft int          `json:"daysLeft"`
}

type ExpiryReport struct {
	Expired  []ExpiryEntry `json:"expired"`
	Within30 []ExpiryEntry `json:"within30"`
	Within60 []ExpiryEntry `json:"within60"`
	Within90 []ExpiryEntry `json:"within90"`
}

// Purchase order statuses.
const (
	OrderPending   = "pending"
	OrderApproved  = "approved"
	OrderReceived  = "received"
	OrderCancelled = "cancelled"
)

type OrderItem struct {
	MedicineID   MedicineID `json:"medicineId"`
	MedicineName string     `json:"medicineName"`
	Quantity     int        `json:"quantity"`
	UnitPrice    float64    `json:"unitPrice"`
	Total        float64    `json:"total"`
}

type PurchaseOrder struct {
	ID           string      `json:"id"`
	Supplier     string      `json:"supplier"`
	Items        []OrderItem `json:"items"`
	TotalAmount  float64     `json:"totalAmount"`
	OrderDate    string      `json:"orderDate"`
	ExpectedDate string      `json:"expectedDate,omitempty"`
	ReceivedDate string      `json:"receivedDate,omitempty"`
	Status       string      `json:"status"`
	Notes        string      `json:"notes,omitempty"`
}

func (o PurchaseOrder) RecordID() string { return o.ID }

func (o PurchaseOrder) Validate() error {
	if strings.TrimSpace(o.Supplier) == "" {
		return fmt.Errorf("supplier is required")
	}
	if len(o.Items) == 0 {
		return fmt.Errorf("at least one item is required")
	}
	for i, it := range o.Items {
		if it.MedicineID == "" {
			return fmt.Errorf("items[%d].medicineId is required", i)
		}
		if it.Quantity <= 0 {
			return fmt.Errorf("items[%d].quantity must be positive", i)
		}
	}
	switch o.Status {
	case OrderPending, OrderApproved, OrderReceived, OrderCancelled:
	default:
		return fmt.Errorf("status %q is not valid", o.Status)
	}
	return nil
}

// Refill request statuses.
const (
	RefillPending   = "pending"
	RefillApproved  = "approved"
	RefillRejected  = "rejected"
	RefillDispensed = "dispensed"
)

type RefillRequest struct {
	ID             string     `json:"id"`
	PatientID      patient.ID `json:"patientId"`
	PatientName    string     `json:"patientName"`
	PrescriptionID string     `json:"prescriptionId,omitempty"`
	MedicineID     MedicineID `json:"medicineId"`
	MedicineName   string     `json:"medicineName"`
	Quantity       int        `json:"quantity"`
	RequestDate    string     `json:"requestDate"`
	ProcessedDate  string     `json:"processedDate,omitempty"`
	Status         string     `json:"status"`
	Notes          string     `json:"notes,omitempty"`
}

func (r RefillRequest) RecordID() string { return r.ID }

func (r RefillRequest) Validate() error {
	if r.PatientID == "" {
		return fmt.Errorf("patientId is required")
	}
	if r.MedicineID == "" {
		return fmt.Errorf("medicineId is required")
	}
	if r.Quantity <= 0 {
		return fmt.Errorf("quantity must be positive")
	}
	switch r.Status {
	case RefillPending, RefillApproved, RefillRejected, RefillDispensed:
	default:
		return fmt.Errorf("status %q is not valid", r.Status)
	}
	return nil
}

// Return statuses.
const (
	ReturnPending   = "pending"
	ReturnProcessed = "processed"
	ReturnRejected  = "rejected"
)

type MedicineReturn struct {
	ID            string     `json:"id"`
	MedicineID    MedicineID `json:"medicineId"`
	MedicineName  string     `json:"medicineName"`
	PatientID     patient.ID `json:"patientId,omitempty"`
	Quantity      int        `json:"quantity"`
	Reason        string     `json:"reason"`
	ReturnDate    string     `json:"returnDate"`
	ProcessedDate string     `json:"processedDate,omitempty"`
	Restocked     bool       `json:"restocked"`
	Status        string     `json:"status"`
}

func (r MedicineReturn) RecordID() string { return r.ID }

func (r MedicineReturn) Validate() error {
	if r.MedicineID == "" {
		return fmt.Errorf("medicineId is required")
	}
	if r.Quantity <= 0 {
		return fmt.Errorf("quantity must be positive")
	}
	if strings.TrimSpace(r.Reason) == "" {
		return fmt.Errorf("reason is required")
	}
	switch r.Status {
	case ReturnPending, ReturnProcessed, ReturnRejected:
	default:
		return fmt.Errorf("status %q is not valid", r.Status)
	}
	return nil
}
