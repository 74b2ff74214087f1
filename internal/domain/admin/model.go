package admin

import (
	"fmt"
	"strings"
)

const Key = "systemSettings"

// SettingsID is the id of the single settings record.
const SettingsID = "default"

type Settings struct {
	ID                     string  `json:"id"`
	HospitalName           string  `json:"hospitalName"`
	Address                string  `json:"address,omitempty"`
	Phone                  string  `json:"phone,omitempty"`
	Email                  string  `json:"email,omitempty"`
	Currency               string  `json:"currency"`
	TaxRate                float64 `json:"taxRate"`
	PharmacyExpiryWarnDays int     `json:"pharmacyExpiryWarnDays"`
	BloodExpiryWarnDays    int     `json:"bloodExpiryWarnDays"`
	WorkingHoursStart      string  `json:"workingHoursStart,omitempty"`
	WorkingHoursEnd        string  `json:"workingHoursEnd,omitempty"`
	AppointmentSlotMinutes int     `json:"appointmentSlotMinutes,omitempty"`
	LowStockAlerts         bool    `json:"lowStockAlerts"`
	UpdatedAt              string  `json:"updatedAt,omitempty"`
}

func (s Settings) RecordID() string { return s.ID }

func (s Settings) Validate() error {
	if s.ID != SettingsID {
		return fmt.Errorf("settings id must be %q", SettingsID)
	}
	if strings.TrimSpace(s.HospitalName) == "" {
		return fmt.Errorf("hospitalName is required")
	}
	if len(s.Currency) != 3 {
		return fmt.Errorf("currency must be a three-letter code")
	}
	if s.TaxRate < 0 || s.TaxRate > 1 {
		return fmt.Errorf("taxRate must be between 0 and 1")
	}
	if s.PharmacyExpiryWarnDays <= 0 || s.BloodExpiryWarnDays <= 0 {
		return fmt.Errorf("expiry warning windows must be positive")
	}
	if s.AppointmentSlotMinutes < 0 {
		return fmt.Errorf("appointmentSlotMinutes must not be negative")
	}
	return nil
}
