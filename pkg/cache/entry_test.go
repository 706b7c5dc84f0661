package cache

import (
	"testing"
	"time"
)

func TestEntry_Lifetime(t *testing.T) {
	now := time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		expiresAt     time.Time
		wantExpired   bool
		wantRemaining time.Duration
	}{
		{"live", now.Add(time.Minute), false, time.Minute},
		{"at deadline", now, true, 0},
		{"past deadline", now.Add(-time.Hour), true, 0},
		{"never set", time.Time{}, true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &Entry{ExpiresAt: tt.expiresAt}
			if got := e.Expired(now); got != tt.wantExpired {
				t.Errorf("Expired() = %v, want %v", got, tt.wantExpired)
			}
			if got := e.Remaining(now); got != tt.wantRemaining {
				t.Errorf("Remaining() = %v, want %v", got, tt.wantRemaining)
			}
		})
	}
}

func TestEntry_AgeAndExtend(t *testing.T) {
	stored := time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)
	e := &Entry{StoredAt: stored, ExpiresAt: stored.Add(time.Minute)}

	later := stored.Add(90 * time.Second)
	if got := e.Age(later); got != 90*time.Second {
		t.Errorf("Age() = %v, want 1m30s", got)
	}
	if !e.Expired(later) {
		t.Fatal("entry should be expired before extend")
	}

	e.extend(later, 5*time.Minute)
	if e.Expired(later) || e.Remaining(later) != 5*time.Minute {
		t.Errorf("after extend: ExpiresAt = %v", e.ExpiresAt)
	}
	if (&Entry{}).Age(later) != 0 {
		t.Error("Age() of an entry without StoredAt should be 0")
	}
}
