// Package moneyfmt parses and formats monetary text the way the broker
// renders it: "." as the thousands separator and "," as the decimal
// separator (es-AR locale), optionally prefixed with "$".
package moneyfmt

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// amountRegex matches a fully locale-formatted amount, e.g. "1.234,56".
var amountRegex = regexp.MustCompile(`\$?\s*([0-9]{1,3}(?:\.[0-9]{3})*,[0-9]{2})`)

var percentRegex = regexp.MustCompile(`([+-]?[0-9]+,[0-9]+)\s*%`)

// Parse converts a locale-formatted amount like "$ 16.730,00" into a
// decimal. The dollar sign and surrounding whitespace are optional.
func Parse(s string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(s)
	cleaned = strings.TrimPrefix(cleaned, "$")
	cleaned = strings.TrimSpace(cleaned)
	cleaned = strings.ReplaceAll(cleaned, ".", "")
	cleaned = strings.ReplaceAll(cleaned, ",", ".")
	if cleaned == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return d, nil
}

// ParsePercent converts "43,52" or "-1,20" (with or without a trailing
// "%") into a decimal.
func ParsePercent(s string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(s)
	cleaned = strings.TrimSuffix(cleaned, "%")
	cleaned = strings.TrimSpace(cleaned)
	cleaned = strings.ReplaceAll(cleaned, ",", ".")
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse percent %q: %w", s, err)
	}
	return d, nil
}

// Format renders a decimal back into the locale format with two decimal
// places, so Parse(Format(d)) == d.Round(2).
func Format(d decimal.Decimal) string {
	fixed := d.StringFixed(2)

	negative := strings.HasPrefix(fixed, "-")
	fixed = strings.TrimPrefix(fixed, "-")

	parts := strings.SplitN(fixed, ".", 2)
	whole, frac := parts[0], parts[1]

	var groups []string
	for len(whole) > 3 {
		groups = append([]string{whole[len(whole)-3:]}, groups...)
		whole = whole[:len(whole)-3]
	}
	groups = append([]string{whole}, groups...)

	out := strings.Join(groups, ".") + "," + frac
	if negative {
		out = "-" + out
	}
	return out
}

// FindAmounts returns every locale-formatted amount found in text, in
// order of appearance. Substrings that fail to parse are skipped.
func FindAmounts(text string) []decimal.Decimal {
	var out []decimal.Decimal
	for _, m := range amountRegex.FindAllStringSubmatch(text, -1) {
		d, err := Parse(m[1])
		if err != nil {
			continue
		}
		out = append(out, d)
	}
	return out
}

// FindPercent returns the first percent figure in text, if any.
func FindPercent(text string) (decimal.Decimal, bool) {
	m := percentRegex.FindStringSubmatch(text)
	if m == nil {
		return decimal.Zero, false
	}
	d, err := ParsePercent(m[1])
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
