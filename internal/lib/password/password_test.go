package password

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func fullPolicy() Policy {
	return Policy{
		MinLength:     8,
		RequireUpper:  true,
		RequireLower:  true,
		RequireDigit:  true,
		RequireSymbol: true,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		policy   Policy
		password string
		wantErrs int
	}{
		{
			name:     "acceptable password",
			policy:   fullPolicy(),
			password: "Str0ng!pass",
			wantErrs: 0,
		},
		{
			name:     "too short",
			policy:   fullPolicy(),
			password: "aA1!",
			wantErrs: 1,
		},
		{
			name:     "missing uppercase",
			policy:   fullPolicy(),
			password: "weakpass1!",
			wantErrs: 1,
		},
		{
			name:     "missing digit and symbol",
			policy:   fullPolicy(),
			password: "Weakpassword",
			wantErrs: 2,
		},
		{
			name:     "everything missing",
			policy:   fullPolicy(),
			password: "",
			wantErrs: 5,
		},
		{
			name:     "relaxed policy accepts simple password",
			policy:   Policy{MinLength: 4},
			password: "abcd",
			wantErrs: 0,
		},
		{
			name:     "unicode letters are classified",
			policy:   fullPolicy(),
			password: "Пароль99!",
			wantErrs: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := tt.policy.Validate(tt.password)
			assert.Len(t, errs, tt.wantErrs, "messages: %v", errs)
		})
	}
}
