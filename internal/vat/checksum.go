package vat

import "strings"

// ChecksumFunc validates the check digits of a VAT number remainder.
// It must be pure and must return false, not panic, on malformed input.
type ChecksumFunc func(remainder string) bool

// checksums maps a country to its check-digit routine. Countries without an
// entry are validated by syntax alone.
var checksums = map[CountryCode]ChecksumFunc{
	"NL": dutchElfProef,
	"BE": belgianMod97,
}

// strictChecksums apply only when Config.StrictChecksums is set.
var strictChecksums = map[CountryCode]ChecksumFunc{
	"DK": danishMod11,
	"FI": finnishMod11,
	"NO": norwegianMod11,
	"SE": swedishLuhn,
}

func lookupChecksum(code CountryCode, strict bool) (ChecksumFunc, bool) {
	if fn, ok := checksums[code]; ok {
		return fn, true
	}
	if strict {
		fn, ok := strictChecksums[code]
		return fn, ok
	}
	return nil, false
}

// Checksum runs the country's default check-digit routine against remainder.
// applicable is false when the country has no routine; valid is then true.
func Checksum(code CountryCode, remainder string) (valid, applicable bool) {
	fn, ok := checksums[code]
	if !ok {
		return true, false
	}
	return fn(remainder), true
}

// StrictChecksum runs the opt-in routine for code, if any, the same way.
func StrictChecksum(code CountryCode, remainder string) (valid, applicable bool) {
	fn, ok := strictChecksums[code]
	if !ok {
		return true, false
	}
	return fn(remainder), true
}

// dutchElfProef validates a Dutch VAT number with the modified "elfproef".
// The optional B-suffix is the branch number and is not part of the check.
func dutchElfProef(remainder string) bool {
	if len(remainder) == 12 && remainder[9] == 'B' {
		remainder = remainder[:9]
	}
	d, ok := digits(remainder, 9)
	if !ok {
		return false
	}

	sum := 0
	for i := 0; i < 8; i++ {
		sum += d[i] * (9 - i)
	}
	// The last digit has weight -1
	sum -= d[8]

	return sum%11 == 0
}

// belgianMod97 validates a Belgian enterprise number: the last two digits
// equal 97 minus the first eight digits modulo 97.
func belgianMod97(remainder string) bool {
	d, ok := digits(remainder, 10)
	if !ok {
		return false
	}

	base := 0
	for i := 0; i < 8; i++ {
		base = base*10 + d[i]
	}
	check := d[8]*10 + d[9]

	return 97-(base%97) == check
}

// danishMod11 validates a Danish CVR number. Weighted sum of all 8 digits
// must be divisible by 11.
func danishMod11(remainder string) bool {
	d, ok := digits(remainder, 8)
	if !ok {
		return false
	}

	weights := []int{2, 7, 6, 5, 4, 3, 2, 1}
	sum := 0
	for i, w := range weights {
		sum += d[i] * w
	}

	return sum%11 == 0
}

// finnishMod11 validates a Finnish VAT number, which is the Y-tunnus without the hyphen.
func finnishMod11(remainder string) bool {
	d, ok := digits(remainder, 8)
	if !ok {
		return false
	}

	weights := []int{7, 9, 10, 5, 8, 4, 2}
	sum := 0
	for i, w := range weights {
		sum += d[i] * w
	}

	var expected int
	switch r := sum % 11; r {
	case 0:
		expected = 0
	case 1:
		// No check digit exists, never issued
		return false
	default:
		expected = 11 - r
	}

	return d[7] == expected
}

// norwegianMod11 validates a Norwegian organization number, with or without the MVA suffix.
func norwegianMod11(remainder string) bool {
	remainder = strings.TrimSuffix(remainder, "MVA")
	d, ok := digits(remainder, 9)
	if !ok {
		return false
	}

	weights := []int{3, 2, 7, 6, 5, 4, 3, 2}
	sum := 0
	for i, w := range weights {
		sum += d[i] * w
	}

	expected := 0
	if r := sum % 11; r != 0 {
		expected = 11 - r
	}
	// A computed check digit of 10 is never issued
	if expected == 10 {
		return false
	}

	return d[8] == expected
}

// swedishLuhn validates a Swedish VAT number: a 10 digit organization number
// (Luhn) followed by the fixed "01" suffix.
func swedishLuhn(remainder string) bool {
	if len(remainder) == 12 && strings.HasSuffix(remainder, "01") {
		remainder = remainder[:10]
	}
	d, ok := digits(remainder, 10)
	if !ok {
		return false
	}

	sum := 0
	for i, digit := range d {
		// Double every other digit starting from the first
		if i%2 == 0 {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}
		sum += digit
	}

	return sum%10 == 0
}

// digits converts s to its decimal digits. It fails if s is not exactly n
// characters long or contains anything other than 0-9.
func digits(s string, n int) ([]int, bool) {
	if len(s) != n {
		return nil, false
	}
	out := make([]int, n)
	for i := 0; i < n; i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return nil, false
		}
		out[i] = int(c - '0')
	}
	return out, true
}
