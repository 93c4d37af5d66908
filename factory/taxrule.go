/*
Package factory provides JSON to Go tax rule conversion.

PURPOSE:
  Converts JSON tax rule definitions into billing.TaxRule values. Front desk
  managers maintain the property's taxes in a JSON file (TAX_RULES_FILE) or
  through the admin endpoints, and the factory produces validated rules the
  stay service can price with.

JSON SCHEMA:
  [
    {
      "id": "vat",
      "name": "VAT",
      "type": "PERCENTAGE",
      "rate": "18",
      "applies_to": "SUBTOTAL",
      "enabled": true,
      "inclusive": false,
      "display_order": 1
    },
    {
      "id": "city-tax",
      "name": "City tax",
      "type": "FIXED",
      "rate": 1000,
      "applies_to": "TOTAL",
      "display_order": 2
    }
  ]

  "rate" accepts a JSON number or a decimal string. Strings avoid float
  rounding for rates such as "19.25".

DEFAULTS:
  - enabled defaults to true when omitted
  - type and applies_to are case-insensitive
  - name defaults to id

USAGE:
  rules, err := factory.ParseTaxRules(data)
  rules, err := factory.LoadTaxRulesFile(cfg.TaxRulesFile)

  // Preset
  rules, err := factory.ParseTaxRules([]byte(factory.StandardVATJSON(18)))

SEE ALSO:
  - billing/tax.go: TaxRule and the evaluation order
  - api/handlers.go: tax rule admin endpoints use RuleFromJSON / RuleToJSON
*/
package factory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/stay-engine/billing"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// TaxRuleJSON is the JSON representation of a tax rule.
type TaxRuleJSON struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Type         string          `json:"type"`
	Rate         decimal.Decimal `json:"rate"`
	AppliesTo    string          `json:"applies_to"`
	Enabled      *bool           `json:"enabled,omitempty"`
	Inclusive    bool            `json:"inclusive,omitempty"`
	DisplayOrder int             `json:"display_order"`
}

// taxRulesDocument accepts either a bare array or {"tax_rules": [...]}.
type taxRulesDocument struct {
	TaxRules []TaxRuleJSON `json:"tax_rules"`
}

// =============================================================================
// PARSING
// =============================================================================

// ParseTaxRules parses a JSON document into validated tax rules. Duplicate
// ids are rejected.
func ParseTaxRules(data []byte) ([]billing.TaxRule, error) {
	var defs []TaxRuleJSON
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var doc taxRulesDocument
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse tax rules JSON: %w", err)
		}
		defs = doc.TaxRules
	} else if err := json.Unmarshal(trimmed, &defs); err != nil {
		return nil, fmt.Errorf("failed to parse tax rules JSON: %w", err)
	}

	seen := make(map[string]bool, len(defs))
	rules := make([]billing.TaxRule, 0, len(defs))
	for i, def := range defs {
		rule, err := RuleFromJSON(def)
		if err != nil {
			return nil, fmt.Errorf("tax rule %d: %w", i, err)
		}
		if seen[rule.ID] {
			return nil, fmt.Errorf("tax rule %d: %w: duplicate id %q", i, billing.ErrInvalidTaxRule, rule.ID)
		}
		seen[rule.ID] = true
		rules = append(rules, rule)
	}
	return rules, nil
}

// LoadTaxRulesFile reads and parses a tax rules file.
func LoadTaxRulesFile(path string) ([]billing.TaxRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tax rules file: %w", err)
	}
	return ParseTaxRules(data)
}

// RuleFromJSON converts one definition and validates it.
func RuleFromJSON(def TaxRuleJSON) (billing.TaxRule, error) {
	rule := billing.TaxRule{
		ID:           strings.TrimSpace(def.ID),
		Name:         strings.TrimSpace(def.Name),
		Type:         billing.TaxType(strings.ToUpper(strings.TrimSpace(def.Type))),
		Rate:         def.Rate,
		AppliesTo:    billing.TaxBase(strings.ToUpper(strings.TrimSpace(def.AppliesTo))),
		Enabled:      true,
		Inclusive:    def.Inclusive,
		DisplayOrder: def.DisplayOrder,
	}
	if rule.Name == "" {
		rule.Name = rule.ID
	}
	if def.Enabled != nil {
		rule.Enabled = *def.Enabled
	}
	if err := rule.Validate(); err != nil {
		return billing.TaxRule{}, err
	}
	return rule, nil
}

// RuleToJSON is the inverse of RuleFromJSON.
func RuleToJSON(rule billing.TaxRule) TaxRuleJSON {
	enabled := rule.Enabled
	return TaxRuleJSON{
		ID:           rule.ID,
		Name:         rule.Name,
		Type:         string(rule.Type),
		Rate:         rule.Rate,
		AppliesTo:    string(rule.AppliesTo),
		Enabled:      &enabled,
		Inclusive:    rule.Inclusive,
		DisplayOrder: rule.DisplayOrder,
	}
}

// =============================================================================
// PRESETS
// =============================================================================

// StandardVATJSON returns a single exclusive VAT rule on the subtotal.
func StandardVATJSON(ratePercent int) string {
	return fmt.Sprintf(`[
  {"id": "vat", "name": "VAT", "type": "PERCENTAGE", "rate": %d, "applies_to": "SUBTOTAL", "display_order": 1}
]`, ratePercent)
}

// VATWithCityTaxJSON adds a fixed per-stay city tax after VAT.
func VATWithCityTaxJSON(ratePercent int, cityTax int64) string {
	return fmt.Sprintf(`[
  {"id": "vat", "name": "VAT", "type": "PERCENTAGE", "rate": %d, "applies_to": "SUBTOTAL", "display_order": 1},
  {"id": "city-tax", "name": "City tax", "type": "FIXED", "rate": %d, "applies_to": "TOTAL", "display_order": 2}
]`, ratePercent, cityTax)
}
