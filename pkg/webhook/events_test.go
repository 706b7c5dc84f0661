package webhook

import "testing"

func TestResourceForEvent(t *testing.T) {
	tests := []struct {
		event string
		want  string
	}{
		{"customer.created", "customers"},
		{"salesInvoice.posted", "salesInvoices"},
		{"payment.created", "customerPayments"},
		{"employee.updated", "employee"},
	}

	for _, tt := range tests {
		t.Run(tt.event, func(t *testing.T) {
			if got := ResourceForEvent(tt.event); got != tt.want {
				t.Errorf("ResourceForEvent(%q) = %q, want %q", tt.event, got, tt.want)
			}
		})
	}
}

func TestChangeTypeForEvent(t *testing.T) {
	tests := []struct {
		event string
		want  string
	}{
		{"customer.created", "created"},
		{"customer.deleted", "deleted"},
		{"salesInvoice.posted", "updated"},
		{"item.archived", "updated"},
		{"item", "updated"},
	}

	for _, tt := range tests {
		t.Run(tt.event, func(t *testing.T) {
			if got := ChangeTypeForEvent(tt.event); got != tt.want {
				t.Errorf("ChangeTypeForEvent(%q) = %q, want %q", tt.event, got, tt.want)
			}
		})
	}
}

func TestEventValid(t *testing.T) {
	for _, e := range Events() {
		if !e.Valid() {
			t.Errorf("%s should be valid", e)
		}
	}
	if Event("customer.exploded").Valid() {
		t.Error("unknown event reported valid")
	}
}
