package password

import (
	"fmt"
	"unicode"
)

// Policy describes the composition rules for new passwords.
type Policy struct {
	MinLength      int
	MaxLength      int
	RequireLower   bool
	RequireUpper   bool
	RequireDigit   bool
	RequireSpecial bool
}

// DefaultPolicy mirrors the platform's password rules.
func DefaultPolicy() Policy {
	return Policy{
		MinLength:      8,
		MaxLength:      256,
		RequireLower:   true,
		RequireUpper:   true,
		RequireDigit:   true,
		RequireSpecial: true,
	}
}

// Check returns one message per violated rule, or nil when the password is acceptable.
func (p Policy) Check(password string) []string {
	var (
		violations                               []string
		hasLower, hasUpper, hasDigit, hasSpecial bool
		length                                   int
	)

	for _, r := range password {
		length++
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r) || unicode.IsSpace(r):
			hasSpecial = true
		}
	}

	if p.MinLength > 0 && length < p.MinLength {
		violations = append(violations, fmt.Sprintf("password must be at least %d characters long", p.MinLength))
	}
	if p.MaxLength > 0 && length > p.MaxLength {
		violations = append(violations, fmt.Sprintf("password must be at most %d characters long", p.MaxLength))
	}
	if p.RequireLower && !hasLower {
		violations = append(violations, "password must contain a lowercase letter")
	}
	if p.RequireUpper && !hasUpper {
		violations = append(violations, "password must contain an uppercase letter")
	}
	if p.RequireDigit && !hasDigit {
		violations = append(violations, "password must contain a digit")
	}
	if p.RequireSpecial && !hasSpecial {
		violations = append(violations, "password must contain a special character")
	}

	return violations
}
