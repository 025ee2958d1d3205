package service

// ValidateArgs contains parameters for validating one VAT number
type ValidateArgs struct {
	VATNumber string `json:"vat_number" jsonschema:"VAT number including its two-letter country prefix, e.g. NL004495445B01"`
	Normalize bool   `json:"normalize,omitempty" jsonschema:"Strip spaces, dots and dashes and upper-case the input before validating (default: false)"`
}

// ValidateResult reports the outcome of a validation. Invalid numbers are a
// normal result, not a tool error.
type ValidateResult struct {
	Valid     bool   `json:"valid"`
	Number    string `json:"number"`
	Country   string `json:"country,omitempty"`
	Remainder string `json:"remainder,omitempty"`
	ErrorCode string `json:"error_code,omitempty"` // malformed_input, country_not_allowed, ...
	Message   string `json:"message,omitempty"`

	// Remote is the VIES outcome: skipped, confirmed or indeterminate.
	Remote      string `json:"remote"`
	RemoteError string `json:"remote_error,omitempty"`
}

// ValidateBatchArgs contains parameters for validating several numbers
type ValidateBatchArgs struct {
	Numbers   []string `json:"numbers" jsonschema:"VAT numbers to validate (max 20)" validate:"required,max=20,dive,vat"`
	Normalize bool     `json:"normalize,omitempty" jsonschema:"Normalize every number before validating (default: false)"`
}

// ValidateBatchResult lists one entry per input number, in input order
type ValidateBatchResult struct {
	Results      []BatchItem `json:"results"`
	ValidCount   int         `json:"valid_count"`
	InvalidCount int         `json:"invalid_count"`
}

// BatchItem is the outcome for one number of a batch
type BatchItem struct {
	Number    string `json:"number"`
	Valid     bool   `json:"valid"`
	Country   string `json:"country,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
	Message   string `json:"message,omitempty"`

	// Remote and RemoteError mirror ValidateResult.
	Remote      string `json:"remote"`
	RemoteError string `json:"remote_error,omitempty"`
}

// LookupArgs contains parameters for a VIES lookup
type LookupArgs struct {
	VATNumber string `json:"vat_number" jsonschema:"EU VAT number including its country prefix"`
	Normalize bool   `json:"normalize,omitempty" jsonschema:"Normalize the input before the lookup (default: false)"`
}

// LookupResult is the registry record returned by VIES
type LookupResult struct {
	Country     string `json:"country"`
	VATNumber   string `json:"vat_number"`
	Valid       bool   `json:"valid"`
	RequestDate string `json:"request_date,omitempty"`
	Name        string `json:"name,omitempty"`
	Address     string `json:"address,omitempty"`
}

// ListCountriesArgs contains parameters for listing supported countries
type ListCountriesArgs struct {
	EUOnly bool `json:"eu_only,omitempty" jsonschema:"Only list EU VAT area countries (default: false)"`
}

// ListCountriesResult lists the countries with a syntax rule
type ListCountriesResult struct {
	Countries []CountryInfo `json:"countries"`
	Count     int           `json:"count"`
}

// CountryInfo describes the rule applied to one country prefix
type CountryInfo struct {
	Code      string `json:"code"`
	Pattern   string `json:"pattern"`
	EUVATArea bool   `json:"eu_vat_area"`
	Checksum  bool   `json:"checksum"`
	Allowed   bool   `json:"allowed"`
}
