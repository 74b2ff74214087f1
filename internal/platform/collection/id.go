package collection

import "github.com/google/uuid"

// NewID returns a fresh record id such as "bill-3f0c...".
func NewID(prefix string) string {
	if prefix == "" {
		return uuid.NewString()
	}
	return prefix + "-" + uuid.NewString()
}
