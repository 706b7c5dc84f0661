package odata

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildFilterExpression(t *testing.T) {
	tests := []struct {
		name  string
		field string
		value FilterValue
		op    Operator
		want  string
	}{
		{"contains", "displayName", StringValue("Test"), OpContains, "contains(displayName,'Test')"},
		{"startswith", "number", StringValue("10"), OpStartsWith, "startswith(number,'10')"},
		{"string eq", "number", StringValue("O'Neil"), OpEq, "number eq 'O''Neil'"},
		{"int gt", "amount", IntValue(100), OpGt, "amount gt 100"},
		{"float le", "amount", NumberValue(99.95), OpLe, "amount le 99.95"},
		{"bool ne", "blocked", BoolValue(true), OpNe, "blocked ne true"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildFilterExpression(tt.field, tt.value, tt.op))
		})
	}
}

func TestCleanObject(t *testing.T) {
	got := CleanObject(map[string]any{
		"displayName": "Adatum",
		"email":       "",
		"phone":       nil,
		"balance":     0,
		"blocked":     false,
	})

	assert.Equal(t, map[string]any{"displayName": "Adatum", "balance": 0, "blocked": false}, got)
}

func TestBuildAddress(t *testing.T) {
	assert.Nil(t, BuildAddress("", "", "", "", ""))
	assert.Equal(t, map[string]any{
		"street":            "1 Main St",
		"countryLetterCode": "US",
	}, BuildAddress("1 Main St", "", "", "US", ""))
}
