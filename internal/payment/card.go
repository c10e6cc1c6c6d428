package payment

import (
	"strings"
	"time"

	"tienda-be/internal/apperr"
)

// Card fields as reported back to the client.
const (
	FieldCardNumber = "card_number"
	FieldCVV        = "security_code"
	FieldExpMonth   = "expiration_month"
	FieldExpYear    = "expiration_year"
	FieldHolderName = "cardholder_name"
)

// NormalizeCardNumber drops the spaces and dashes people type.
func NormalizeCardNumber(n string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return -1
		}
		return r
	}, n)
}

// digitsBetween reports whether s is only ASCII 0-9 with a length in [lo, hi].
func digitsBetween(s string, lo, hi int) bool {
	if len(s) < lo || len(s) > hi {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// ValidateCard checks card data before it is sent for tokenization and
// reports every offending field at once.
func ValidateCard(c CardData, now time.Time) error {
	var fields []string

	number := NormalizeCardNumber(c.Number)
	if !digitsBetween(number, 13, 19) {
		fields = append(fields, FieldCardNumber)
	}

	if !digitsBetween(c.CVV, 3, 4) {
		fields = append(fields, FieldCVV)
	}

	monthOK := c.ExpMonth >= 1 && c.ExpMonth <= 12
	if !monthOK {
		fields = append(fields, FieldExpMonth)
	}

	year := c.ExpYear
	if year >= 0 && year < 100 {
		year += 2000
	}
	switch {
	case c.ExpYear <= 0 || year < now.Year():
		fields = append(fields, FieldExpYear)
	case monthOK && year == now.Year() && c.ExpMonth < int(now.Month()):
		fields = append(fields, FieldExpMonth)
	}

	if strings.TrimSpace(c.HolderName) == "" {
		fields = append(fields, FieldHolderName)
	}

	if len(fields) > 0 {
		return apperr.WithFields(apperr.InvalidCardData, "invalid card data", fields...)
	}
	return nil
}
