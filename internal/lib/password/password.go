package password

import (
	"fmt"
	"unicode"

	"identity/internal/config"
)

// Policy describes the configured password complexity requirements.
type Policy struct {
	MinLength     int
	RequireUpper  bool
	RequireLower  bool
	RequireDigit  bool
	RequireSymbol bool
}

// PolicyFromConfig builds a Policy from the password section of the config.
func PolicyFromConfig(cfg config.PasswordConfig) Policy {
	return Policy{
		MinLength:     cfg.MinLength,
		RequireUpper:  cfg.RequireUpper,
		RequireLower:  cfg.RequireLower,
		RequireDigit:  cfg.RequireDigit,
		RequireSymbol: cfg.RequireSymbol,
	}
}

// Validate checks the password against the policy and returns one message
// per unmet requirement. An empty slice means the password is acceptable.
func (p Policy) Validate(password string) []string {
	var errs []string

	if len(password) < p.MinLength {
		errs = append(errs, fmt.Sprintf("password must be at least %d characters long", p.MinLength))
	}

	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSymbol = true
		}
	}

	if p.RequireUpper && !hasUpper {
		errs = append(errs, "password must contain an uppercase letter")
	}
	if p.RequireLower && !hasLower {
		errs = append(errs, "password must contain a lowercase letter")
	}
	if p.RequireDigit && !hasDigit {
		errs = append(errs, "password must contain a digit")
	}
	if p.RequireSymbol && !hasSymbol {
		errs = append(errs, "password must contain a non-alphanumeric character")
	}

	return errs
}
