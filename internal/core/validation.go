package core

// validation.go applies the rule catalog to normalized rows.
//
// Every rule is evaluated for every row; validation never stops at the first
// failure, so a caller sees the complete problem list for a row in one pass.
// The Validator holds no mutable state and is safe for concurrent use.
//
// Rules other than RuleRequired only look at values that are present. Type
// rules (date, number, integer, bool) report unparseable values; range rules
// only look at values that parsed. An empty required field therefore yields
// exactly one finding.

import (
	"fmt"
	"unicode/utf8"
)

// Validator validates normalized rows against a rule catalog.
type Validator struct {
	rules []Rule
}

// NewValidator creates a validator for the given rules.
func NewValidator(rules []Rule) *Validator {
	return &Validator{rules: rules}
}

// DefaultValidator returns a validator over the built-in catalog.
func DefaultValidator() *Validator {
	return NewValidator(ruleCatalog)
}

// ValidateRow returns the outcome for one row with all violated rules.
func (v *Validator) ValidateRow(row NormalizedRow) RowOutcome {
	outcome := RowOutcome{
		Row:        row.Ordinal,
		Status:     StatusOK,
		Normalized: row,
	}

	for _, rule := range v.rules {
		if passes(rule, row.Value(rule.Field)) {
			continue
		}
		outcome.Findings = append(outcome.Findings, ValidationFinding{
			Row:     row.Ordinal,
			Field:   rule.Field,
			Code:    rule.Code,
			Message: rule.Message,
		})
	}

	if len(outcome.Findings) > 0 {
		outcome.Status = StatusError
	}
	return outcome
}

// ValidateRows validates rows in ordinal order.
func (v *Validator) ValidateRows(rows []NormalizedRow) []RowOutcome {
	out := make([]RowOutcome, len(rows))
	for i, row := range rows {
		out[i] = v.ValidateRow(row)
	}
	return out
}

// passes reports whether value satisfies rule.
func passes(rule Rule, value FieldValue) bool {
	if rule.Kind == RuleRequired {
		return value.Present
	}
	if !value.Present {
		return true
	}

	switch rule.Kind {
	case RuleDate, RuleNumber, RuleInteger, RuleBool:
		return value.Valid
	case RuleRange:
		return !value.Valid || (value.Number >= rule.Params.Min && value.Number <= rule.Params.Max)
	case RuleMinimum:
		return !value.Valid || value.Number >= rule.Params.Min
	case RuleOneOf:
		for _, allowed := range rule.Params.Values {
			if value.Text == allowed {
				return true
			}
		}
		return false
	case RuleMaxLength:
		return utf8.RuneCountInString(value.Text) <= rule.Params.Limit
	default:
		panic(fmt.Sprintf("core: unknown rule kind %q", rule.Kind))
	}
}
