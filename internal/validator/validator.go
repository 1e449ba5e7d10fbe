package validator

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"sms-number-bot/internal/domain"
)

var (
	ErrEmptyEmail         = errors.New("email is empty")
	ErrInvalidEmailFormat = errors.New("invalid email format")
	ErrEmptyPrice         = errors.New("price is empty")
	ErrInvalidPrice       = errors.New("price is not a number")
	ErrNonPositivePrice   = errors.New("price must be greater than 0")
	ErrUnknownCountry     = errors.New("unknown country code")
	ErrUnknownService     = errors.New("unknown service code")
)

// emailRegex only checks the shape. Its \s is ASCII, so Unicode spaces are
// rejected separately by hasSpace.
var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// NormalizeEmail trims the input and validates its shape. Any space or
// control character left inside the address makes it invalid.
func NormalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", ErrEmptyEmail
	}
	if hasSpace(email) || !emailRegex.MatchString(email) {
		return "", ErrInvalidEmailFormat
	}
	return email, nil
}

func hasSpace(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsControl(r)
	}) >= 0
}

func ParsePrice(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrEmptyPrice
	}
	price, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	if err != nil || math.IsNaN(price) || math.IsInf(price, 0) {
		return 0, ErrInvalidPrice
	}
	if price <= 0 {
		return 0, ErrNonPositivePrice
	}
	return price, nil
}

func ValidateCountry(code string) error {
	if _, ok := domain.LookupCountry(code); !ok {
		return ErrUnknownCountry
	}
	return nil
}

func ValidateService(code string) error {
	if _, ok := domain.LookupService(code); !ok {
		return ErrUnknownService
	}
	return nil
}
