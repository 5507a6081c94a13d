package validator_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/ridekit/pkg/validator"
)

func TestRules(t *testing.T) {
	tests := []struct {
		name string
		rule validator.Rule
		want bool
	}{
		{name: "required string", rule: validator.RequiredString("title", "Trip delayed"), want: true},
		{name: "required string blank", rule: validator.RequiredString("title", "  \t"), want: false},
		{name: "max len string", rule: validator.MaxLenString("title", "abc", 3), want: true},
		{name: "max len string exceeded", rule: validator.MaxLenString("title", strings.Repeat("a", 4), 3), want: false},
		{name: "required slice", rule: validator.RequiredSlice("recipients", []string{"u1"}), want: true},
		{name: "required slice empty", rule: validator.RequiredSlice("recipients", []string{}), want: false},
		{name: "max len slice", rule: validator.MaxLenSlice("recipients", []string{"u1", "u2"}, 2), want: true},
		{name: "max len slice exceeded", rule: validator.MaxLenSlice("recipients", []string{"u1", "u2", "u3"}, 2), want: false},
		{name: "no blank items", rule: validator.NoBlankItems("recipients", []string{"u1", "u2"}), want: true},
		{name: "no blank items nil", rule: validator.NoBlankItems("recipients", nil), want: true},
		{name: "blank item", rule: validator.NoBlankItems("recipients", []string{"u1", ""}), want: false},
		{name: "min num", rule: validator.MinNum("batch_size", 0, 0), want: true},
		{name: "min num below", rule: validator.MinNum("batch_size", -1, 0), want: false},
		{name: "max num", rule: validator.MaxNum("days_ahead", 366, 366), want: true},
		{name: "max num above", rule: validator.MaxNum("days_ahead", 367, 366), want: false},
		{name: "float", rule: validator.MaxNum("ratio", 0.5, 1.0), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.rule.Check())
			assert.NotEmpty(t, tt.rule.Error.Field)
			assert.NotEmpty(t, tt.rule.Error.Message)
		})
	}
}
