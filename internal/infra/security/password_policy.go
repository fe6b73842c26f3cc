package security

import (
	"fmt"
	"strings"
	"unicode"

	zxcvbn "github.com/nbutton23/zxcvbn-go"
)

const (
	defaultMinPasswordLength   = 10
	defaultMinCharacterClasses = 3
	defaultMinZxcvbnScore      = 3
)

// Violation codes reported in PasswordViolation.Code.
const (
	ViolationLength  = "min_length"
	ViolationClasses = "character_classes"
	ViolationWeak    = "weak_password"
	ViolationReused  = "reused_password"
)

// PasswordViolation is the first policy rule a candidate password broke.
type PasswordViolation struct {
	Code    string
	Message string
}

func (v *PasswordViolation) Error() string {
	if v == nil {
		return ""
	}
	return v.Message
}

// ReusedPassword reports a new password equal to the one it replaces.
func ReusedPassword() *PasswordViolation {
	return &PasswordViolation{Code: ViolationReused, Message: "new password must differ from the current one"}
}

type passwordRule func(password string) error

// PasswordPolicy checks candidate passwords for identities. Hints (names,
// emails) count against the strength score.
type PasswordPolicy struct {
	minLength  int
	minClasses int
	minScore   int
}

// PasswordPolicyConfig tunes the policy thresholds. Zero values fall back to defaults.
type PasswordPolicyConfig struct {
	MinLength  int
	MinClasses int
	MinScore   int
}

// NewPasswordPolicy builds a policy with the supplied thresholds.
func NewPasswordPolicy(cfg PasswordPolicyConfig) *PasswordPolicy {
	p := &PasswordPolicy{
		minLength:  cfg.MinLength,
		minClasses: cfg.MinClasses,
		minScore:   cfg.MinScore,
	}
	if p.minLength <= 0 {
		p.minLength = defaultMinPasswordLength
	}
	if p.minClasses <= 0 {
		p.minClasses = defaultMinCharacterClasses
	}
	if p.minScore <= 0 {
		p.minScore = defaultMinZxcvbnScore
	}
	if p.minScore > 4 {
		p.minScore = 4
	}
	return p
}

// ValidateFor checks the password, penalising reuse of the supplied hints.
// The returned error is a *PasswordViolation for policy failures.
func (p *PasswordPolicy) ValidateFor(password string, hints ...string) error {
	if p == nil {
		return fmt.Errorf("password policy not configured")
	}

	inputs := make([]string, 0, len(hints))
	for _, hint := range hints {
		if trimmed := strings.TrimSpace(hint); trimmed != "" {
			inputs = append(inputs, trimmed)
		}
	}

	rules := []passwordRule{
		minLength(p.minLength),
		characterClasses(p.minClasses),
		strength(p.minScore, inputs),
	}
	for _, rule := range rules {
		if err := rule(password); err != nil {
			return err
		}
	}
	return nil
}

func minLength(min int) passwordRule {
	return func(password string) error {
		if len([]rune(password)) < min {
			return &PasswordViolation{
				Code:    ViolationLength,
				Message: fmt.Sprintf("password must be at least %d characters long", min),
			}
		}
		return nil
	}
}

// characterClasses counts upper, lower, digit and symbol classes.
func characterClasses(min int) passwordRule {
	return func(password string) error {
		var upper, lower, digit, symbol bool
		for _, r := range password {
			switch {
			case unicode.IsUpper(r):
				upper = true
			case unicode.IsLower(r):
				lower = true
			case unicode.IsDigit(r):
				digit = true
			case unicode.IsSymbol(r) || unicode.IsPunct(r):
				symbol = true
			}
		}

		classes := 0
		for _, present := range []bool{upper, lower, digit, symbol} {
			if present {
				classes++
			}
		}
		if classes >= min {
			return nil
		}
		return &PasswordViolation{
			Code:    ViolationClasses,
			Message: fmt.Sprintf("password must include at least %d character types", min),
		}
	}
}

func strength(minScore int, inputs []string) passwordRule {
	return func(password string) error {
		if zxcvbn.PasswordStrength(password, inputs).Score >= minScore {
			return nil
		}
		return &PasswordViolation{
			Code:    ViolationWeak,
			Message: "password is too weak; choose a more complex value",
		}
	}
}
