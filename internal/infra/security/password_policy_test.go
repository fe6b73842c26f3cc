package security

import (
	"errors"
	"testing"

	zxcvbn "github.com/nbutton23/zxcvbn-go"
)

func TestPasswordPolicyAcceptsStrongPassword(t *testing.T) {
	policy := NewPasswordPolicy(PasswordPolicyConfig{})

	password := "C0mplex!Passphrase#2025"
	if strength := zxcvbn.PasswordStrength(password, nil); strength.Score < defaultMinZxcvbnScore {
		t.Fatalf("test password unexpectedly weak: score=%d", strength.Score)
	}
	if err := policy.ValidateFor(password); err != nil {
		t.Fatalf("expected password to pass policy, got %v", err)
	}
}

func TestPasswordPolicyViolations(t *testing.T) {
	policy := NewPasswordPolicy(PasswordPolicyConfig{})

	cases := map[string]string{
		"Short1!":           ViolationLength,
		"lowercasepassword": ViolationClasses,
		"Password123":       ViolationWeak,
	}
	for password, code := range cases {
		err := policy.ValidateFor(password)
		var violation *PasswordViolation
		if !errors.As(err, &violation) {
			t.Fatalf("%q: expected PasswordViolation, got %v", password, err)
		}
		if violation.Code != code {
			t.Fatalf("%q: expected %s, got %s", password, code, violation.Code)
		}
	}
}

func TestPasswordPolicyThresholds(t *testing.T) {
	policy := NewPasswordPolicy(PasswordPolicyConfig{MinLength: 4, MinClasses: 1, MinScore: 9})
	if policy.minScore != 4 {
		t.Fatalf("expected score clamped to 4, got %d", policy.minScore)
	}

	lenient := NewPasswordPolicy(PasswordPolicyConfig{MinLength: 4, MinClasses: 1, MinScore: 1})
	err := lenient.ValidateFor("abc")
	var violation *PasswordViolation
	if !errors.As(err, &violation) || violation.Code != ViolationLength {
		t.Fatalf("expected length violation, got %v", err)
	}
}

func TestPasswordPolicyPenalisesHints(t *testing.T) {
	policy := NewPasswordPolicy(PasswordPolicyConfig{})

	err := policy.ValidateFor("Margaret.Hamilton1", "margaret.hamilton", " ", "Margaret Hamilton")
	var violation *PasswordViolation
	if !errors.As(err, &violation) || violation.Code != ViolationWeak {
		t.Fatalf("expected weak_password for name-derived password, got %v", err)
	}
}

func TestReusedPasswordViolation(t *testing.T) {
	err := error(ReusedPassword())
	var violation *PasswordViolation
	if !errors.As(err, &violation) || violation.Code != ViolationReused {
		t.Fatalf("unexpected violation: %v", err)
	}
	if err.Error() == "" {
		t.Fatal("expected message")
	}
}
