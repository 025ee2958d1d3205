// Package vat validates VAT identification numbers: structure, country policy,
// per-country syntax and check digits, and an optional registry confirmation.
package vat

import (
	"regexp"
	"sort"
)

// CountryCode is the two-letter prefix of a VAT number. It follows ISO 3166-1
// alpha-2 except where the VAT systems differ (EL for Greece, XI for Northern Ireland).
type CountryCode string

var (
	countryCodePattern = regexp.MustCompile(`^[A-Z]{2}$`)
	vatNumberPattern   = regexp.MustCompile(`^[A-Z]{2}[A-Z0-9]+$`)
)

// Valid reports whether c is exactly two uppercase letters.
func (c CountryCode) Valid() bool {
	return countryCodePattern.MatchString(string(c))
}

// ukPattern covers Great Britain and Northern Ireland: standard, branch,
// government department (GD) and health authority (HA) numbers.
const ukPattern = `^([0-9]{9}|[0-9]{12}|GD[0-9]{3}|HA[0-9]{3})$`

// syntaxPatterns holds the remainder pattern (everything after the country prefix)
// for each supported country.
var syntaxPatterns = map[CountryCode]string{
	// EU VAT area
	"AT": `^U[0-9]{8}$`,
	"BE": `^[01][0-9]{9}$`,
	"BG": `^[0-9]{9,10}$`,
	"CY": `^[0-9]{8}[A-Z]$`,
	"CZ": `^[0-9]{8,10}$`,
	"DE": `^[0-9]{9}$`,
	"DK": `^[0-9]{8}$`,
	"EE": `^[0-9]{9}$`,
	"EL": `^[0-9]{9}$`,
	"ES": `^[0-9A-Z][0-9]{7}[0-9A-Z]$`,
	"FI": `^[0-9]{8}$`,
	"FR": `^[0-9A-Z]{2}[0-9]{9}$`,
	"HR": `^[0-9]{11}$`,
	"HU": `^[0-9]{8}$`,
	"IE": `^[0-9][0-9A-Z][0-9]{5}[A-Z]{1,2}$`,
	"IT": `^[0-9]{11}$`,
	"LT": `^([0-9]{9}|[0-9]{12})$`,
	"LU": `^[0-9]{8}$`,
	"LV": `^[0-9]{11}$`,
	"MT": `^[0-9]{8}$`,
	"NL": `^[0-9]{9}(B[0-9]{2})?$`,
	"PL": `^[0-9]{10}$`,
	"PT": `^[0-9]{9}$`,
	"RO": `^[0-9]{2,10}$`,
	"SE": `^[0-9]{10}01$`,
	"SI": `^[0-9]{8}$`,
	"SK": `^[0-9]{10}$`,
	"XI": ukPattern,

	// Outside the EU VAT area
	"AL": `^[JKL][0-9]{8}[A-Z]$`,
	"AR": `^[0-9]{11}$`,
	"AU": `^[0-9]{11}$`,
	"BY": `^[0-9]{9}$`,
	"CA": `^[0-9]{9}(RT[0-9]{4})?$`,
	"CH": `^E[0-9]{9}(MWST|TVA|IVA)?$`,
	"CL": `^[0-9]{8}[0-9K]$`,
	"GB": ukPattern,
	"IS": `^[0-9]{5,6}$`,
	"MK": `^[0-9]{13}$`,
	"NO": `^[0-9]{9}(MVA)?$`,
	"RS": `^[0-9]{9}$`,
	"RU": `^([0-9]{10}|[0-9]{12})$`,
	"SM": `^[0-9]{5}$`,
	"TR": `^[0-9]{10}$`,
	"UA": `^[0-9]{12}$`,
}

// euVATArea lists the codes the VIES registry answers for.
var euVATArea = map[CountryCode]struct{}{
	"AT": {}, "BE": {}, "BG": {}, "CY": {}, "CZ": {}, "DE": {}, "DK": {},
	"EE": {}, "EL": {}, "ES": {}, "FI": {}, "FR": {}, "HR": {}, "HU": {},
	"IE": {}, "IT": {}, "LT": {}, "LU": {}, "LV": {}, "MT": {}, "NL": {},
	"PL": {}, "PT": {}, "RO": {}, "SE": {}, "SI": {}, "SK": {}, "XI": {},
}

// syntaxRules is compiled once at init and only read afterwards.
var syntaxRules = compileRules(syntaxPatterns)

func compileRules(patterns map[CountryCode]string) map[CountryCode]*regexp.Regexp {
	rules := make(map[CountryCode]*regexp.Regexp, len(patterns))
	for code, pattern := range patterns {
		rules[code] = regexp.MustCompile(pattern)
	}
	return rules
}

// LookupSyntax returns the remainder pattern for a country.
func LookupSyntax(code CountryCode) (*regexp.Regexp, bool) {
	rule, ok := syntaxRules[code]
	return rule, ok
}

// IsKnownCountry reports whether code has a syntax rule.
func IsKnownCountry(code CountryCode) bool {
	_, ok := syntaxRules[code]
	return ok
}

// IsEUVATArea reports whether code belongs to the EU VAT area.
func IsEUVATArea(code CountryCode) bool {
	_, ok := euVATArea[code]
	return ok
}

// Countries returns all supported country codes, sorted.
func Countries() []CountryCode {
	return sortedCodes(syntaxRules)
}

// EUVATArea returns the EU VAT area codes, sorted.
func EUVATArea() []CountryCode {
	return sortedCodes(euVATArea)
}

func sortedCodes[V any](m map[CountryCode]V) []CountryCode {
	codes := make([]CountryCode, 0, len(m))
	for code := range m {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}
