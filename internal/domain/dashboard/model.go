package dashboard

import (
	"math"

	"github.com/hms/hms/internal/domain/billing"
)

// Card is one headline figure on a dashboard.
type Card struct {
	Key   string  `json:"key"`
	Label string  `json:"label"`
	Value float64 `json:"value"`
	Unit  string  `json:"unit,omitempty"`
}

// Overview is the landing view of one role.
type Overview struct {
	Role    string               `json:"role"`
	Date    string               `json:"date"`
	Cards   []Card               `json:"cards"`
	Revenue []billing.DayRevenue `json:"revenue,omitempty"`
	Lists   map[string]any       `json:"lists,omitempty"`
}

// Card looks up a card by key.
func (o Overview) Card(key string) (Card, bool) {
	for _, c := range o.Cards {
		if c.Key == key {
			return c, true
		}
	}
	return Card{}, false
}

func (o *Overview) add(key, label string, v float64, unit ...string) {
	c := Card{Key: key, Label: label, Value: v}
	if len(unit) > 0 {
		c.Unit = unit[0]
	}
	o.Cards = append(o.Cards, c)
}

func (o *Overview) list(name string, v any) {
	if o.Lists == nil {
		o.Lists = map[string]any{}
	}
	o.Lists[name] = v
}

// percent is part/whole as a percentage with one decimal, zero when whole is.
func percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return math.Round(float64(part)*1000/float64(whole)) / 10
}
