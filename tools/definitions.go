package tools

// AllTools contains all tool specifications for the VAT registry MCP server.
// Tool descriptions follow a structured format for optimal LLM tool selection:
// - USE WHEN: Natural language triggers
// - NOT FOR: Disambiguation from similar tools
// - PARAMETERS: Key arguments with defaults
// - RETURNS: What the tool returns
var AllTools = []ToolSpec{
	// ==========================================================================
	// VALIDATION TOOLS
	// ==========================================================================
	{
		Name:     "vat_validate",
		Method:   "Validate",
		Title:    "Validate VAT Number",
		Category: "validation",
		Registry: "local",
		Description: `Check whether a VAT number is well-formed for its country, and optionally registered in VIES.

USE WHEN: User asks "is NL004495445B01 a valid VAT number", "check this VAT ID", "validate the customer's VAT".

NOT FOR: Company name or address behind a number (use vat_lookup). Several numbers at once (use vat_validate_batch).

PARAMETERS:
- vat_number: Number with its two-letter country prefix (required)
- normalize: Strip spaces, dots, dashes and upper-case first (default false)

RETURNS: valid flag, country, error code and message when invalid, and the VIES outcome (skipped, confirmed, indeterminate or rejected).

NOTE: When VIES cannot be reached the number is still reported valid with remote=indeterminate.`,
		ReadOnly:   true,
		Idempotent: true,
		OpenWorld:  true,
	},
	{
		Name:     "vat_validate_batch",
		Method:   "ValidateBatch",
		Title:    "Validate VAT Numbers",
		Category: "validation",
		Registry: "local",
		Description: `Validate up to 20 VAT numbers in one call.

USE WHEN: User pastes a list of VAT numbers, "check all these VAT IDs", "which of these are valid".

NOT FOR: A single number (use vat_validate).

PARAMETERS:
- numbers: List of VAT numbers (required, max 20)
- normalize: Normalize each number first (default false)

RETURNS: One result per input in order, plus valid and invalid counts.`,
		ReadOnly:   true,
		Idempotent: true,
		OpenWorld:  true,
	},

	// ==========================================================================
	// LOOKUP TOOLS
	// ==========================================================================
	{
		Name:     "vat_lookup",
		Method:   "Lookup",
		Title:    "Look Up VAT Registration",
		Category: "lookup",
		Registry: "vies",
		Description: `Fetch the VIES registry record for an EU VAT number.

USE WHEN: User asks "who owns VAT number X", "what company is behind this VAT ID", "is this number registered in VIES".

NOT FOR: Non-EU numbers such as GB, NO or CH (VIES only covers EU member states and XI). Syntax checks (use vat_validate).

PARAMETERS:
- vat_number: EU VAT number with country prefix (required)
- normalize: Normalize first (default false)

RETURNS: valid flag, request date and, where the member state discloses them, name and address.`,
		ReadOnly:   true,
		Idempotent: true,
		OpenWorld:  true,
	},

	// ==========================================================================
	// REFERENCE TOOLS
	// ==========================================================================
	{
		Name:     "vat_list_countries",
		Method:   "ListCountries",
		Title:    "List VAT Countries",
		Category: "reference",
		Registry: "local",
		Description: `List the country prefixes this server can validate.

USE WHEN: User asks "which countries are supported", "what does a German VAT number look like", "is Norway in the EU VAT area".

PARAMETERS:
- eu_only: Only list EU VAT area countries (default false)

RETURNS: Code, syntax pattern, EU VAT area membership, checksum support and whether the server's policy allows the country.`,
		ReadOnly:   true,
		Idempotent: true,
	},
}

// ToolsByRegistry returns the tools backed by a data source.
func ToolsByRegistry(registry string) []ToolSpec {
	var out []ToolSpec
	for _, spec := range AllTools {
		if spec.Registry == registry {
			out = append(out, spec)
		}
	}
	return out
}
