package clock

import (
	"testing"
	"time"
)

func TestToday(t *testing.T) {
	c := Fixed(time.Date(2024, 3, 9, 23, 59, 0, 0, time.UTC))
	if got := Today(c); got != "2024-03-09" {
		t.Errorf("expected 2024-03-09, got %s", got)
	}
}

func TestBucketFor(t *testing.T) {
	tests := []struct {
		expiry string
		want   Bucket
		days   int
	}{
		{"2024-01-09", Expired, -1},
		{"2024-01-10", Within30, 0},
		{"2024-02-09", Within30, 30},
		{"2024-02-10", Within60, 31},
		{"2024-03-10", Within60, 60},
		{"2024-04-09", Within90, 90},
		{"2024-04-10", OK, 91},
	}
	for _, tt := range tests {
		got, days, err := BucketFor("2024-01-10", tt.expiry)
		if err != nil {
			t.Fatalf("BucketFor(%s): %v", tt.expiry, err)
		}
		if got != tt.want || days != tt.days {
			t.Errorf("BucketFor(%s) = %s/%d, want %s/%d", tt.expiry, got, days, tt.want, tt.days)
		}
	}
	if _, _, err := BucketFor("2024-01-10", "10/01/2024"); err == nil {
		t.Error("expected error for malformed date")
	}
}

func TestExpiringWithin(t *testing.T) {
	if !ExpiringWithin("2024-01-10", "2024-01-17", 7) {
		t.Error("7 days out should be expiring within 7")
	}
	if ExpiringWithin("2024-01-10", "2024-01-18", 7) {
		t.Error("8 days out should not be expiring within 7")
	}
	if ExpiringWithin("2024-01-10", "2024-01-09", 7) {
		t.Error("expired date is not expiring")
	}
}

func TestLastDays(t *testing.T) {
	days, err := LastDays("2024-03-02", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"2024-02-29", "2024-03-01", "2024-03-02"}
	for i := range want {
		if days[i] != want[i] {
			t.Errorf("day %d: expected %s, got %s", i, want[i], days[i])
		}
	}
}

func TestAddDaysAndAge(t *testing.T) {
	if d, _ := AddDays("2024-01-01", 56); d != "2024-02-26" {
		t.Errorf("expected 2024-02-26, got %s", d)
	}
	if a, _ := Age("2000-06-15", "2024-06-14"); a != 23 {
		t.Errorf("expected 23, got %d", a)
	}
	if a, _ := Age("2000-06-15", "2024-06-15"); a != 24 {
		t.Errorf("expected 24, got %d", a)
	}
}
