package auth

import (
	"crypto/subtle"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	MaxLoginTrials      = 3
	WebPasswordLength   = 8
	PanelPasswordLength = 4
)

// hashCost is lowered by tests.
var hashCost = bcrypt.DefaultCost

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), hashCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// isHashed reports whether stored is a bcrypt hash rather than a plain value
// loaded from the seed.
func isHashed(stored string) bool {
	return strings.HasPrefix(stored, "$2")
}

// checkPassword compares a stored credential with a candidate. Plain stored
// values are compared in constant time.
func checkPassword(stored, candidate string) bool {
	if isHashed(stored) {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(candidate)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(candidate)) == 1
}

// ValidatePanelPassword checks the keypad password format: exactly four digits.
func ValidatePanelPassword(p string) error {
	if len(p) != PanelPasswordLength {
		return ErrInvalidPanelPassword
	}
	for _, r := range p {
		if r < '0' || r > '9' {
			return ErrInvalidPanelPassword
		}
	}
	return nil
}

// ValidateWebPassword checks the web password format: exactly eight characters.
func ValidateWebPassword(p string) error {
	if len(p) != WebPasswordLength {
		return ErrInvalidWebPassword
	}
	return nil
}
