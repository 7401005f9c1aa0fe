package generate

import (
	"regexp"
	"strconv"
	"strings"
)

// numericUnitPattern matches a magnitude-suffixed or multiplier-suffixed
// number, e.g. "15.2M", "1.5x" (spec §4.3.2 step 3 "coerce numeric strings
// with units").
var numericUnitPattern = regexp.MustCompile(`(?i)^(-?[\d,]+(?:\.\d+)?)\s*(k|m|b|x)$`)

// percentPattern matches a bare percentage string, e.g. "15%".
var percentPattern = regexp.MustCompile(`^(-?[\d.]+)\s*%$`)

var unitMultiplier = map[string]float64{
	"k": 1_000,
	"m": 1_000_000,
	"b": 1_000_000_000,
	"x": 1,
}

// normalize walks a parsed JSON value and applies spec §4.3.2 step 3's
// object-normalization rules: drop nulls, coerce numeric-with-unit and
// percentage strings to raw numbers, and recurse into nested
// maps/slices. Comma-joined-string-to-list coercion is applied by the
// caller only to fields the template declares as arrays, since a generic
// walk cannot distinguish a deliberate sentence from a list.
//
// schema is the JSON Schema node matching v, when known (a template's
// OutputSchema, walked in lockstep via "properties"/"items"). It lets
// coerceNumericString decide whether a percent string is the units the
// schema demands (spec §4.3.2 "coerce percentage strings to the units
// the schema demands"); a nil schema node preserves the historical
// decimal-fraction behavior for templates with no declared field types,
// e.g. the flagship free-form financial_analysis generator.
func normalize(v any, schema map[string]any) any {
	switch val := v.(type) {
	case map[string]any:
		props, hasProps := schemaProperties(schema)
		out := make(map[string]any, len(val))
		for k, v := range val {
			if v == nil {
				continue
			}
			var field map[string]any
			if hasProps {
				field = props[k]
			}
			out[k] = normalize(v, field)
		}
		return out
	case []any:
		items, _ := schemaItems(schema)
		out := make([]any, 0, len(val))
		for _, item := range val {
			if item == nil {
				continue
			}
			out = append(out, normalize(item, items))
		}
		return out
	case string:
		return coerceNumericString(val, schema)
	default:
		return v
	}
}

// schemaProperties returns a node's "properties" map, keyed by field name,
// when schema declares one.
func schemaProperties(schema map[string]any) (map[string]map[string]any, bool) {
	if schema == nil {
		return nil, false
	}
	raw, ok := schema["properties"].(map[string]any)
	if !ok {
		return nil, false
	}
	out := make(map[string]map[string]any, len(raw))
	for k, v := range raw {
		if m, ok := v.(map[string]any); ok {
			out[k] = m
		}
	}
	return out, true
}

// schemaItems returns a node's "items" schema, when it declares one.
func schemaItems(schema map[string]any) (map[string]any, bool) {
	if schema == nil {
		return nil, false
	}
	items, ok := schema["items"].(map[string]any)
	return items, ok
}

// percentWholeFormat is the schema "format" value a template uses to mark a
// percent field as expecting a whole number (e.g. 15), not a decimal
// fraction (e.g. 0.15). Unset or any other format keeps the decimal-fraction
// default.
const percentWholeFormat = "percent-whole"

// wantsWholePercent reports whether schema declares its value should be
// coerced to a whole-number percent rather than a decimal fraction.
func wantsWholePercent(schema map[string]any) bool {
	if schema == nil {
		return false
	}
	format, _ := schema["format"].(string)
	return format == percentWholeFormat
}

// coerceNumericString converts a numeric-with-unit or percentage string to
// a float64, leaving any other string untouched. Percent strings are
// coerced to the units schema demands: a decimal fraction by default, or a
// whole number when schema declares format "percent-whole".
func coerceNumericString(s string, schema map[string]any) any {
	trimmed := strings.TrimSpace(s)
	if m := numericUnitPattern.FindStringSubmatch(trimmed); m != nil {
		n, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
		if err == nil {
			return n * unitMultiplier[strings.ToLower(m[2])]
		}
	}
	if m := percentPattern.FindStringSubmatch(trimmed); m != nil {
		n, err := strconv.ParseFloat(m[1], 64)
		if err == nil {
			if wantsWholePercent(schema) {
				return n
			}
			return n / 100
		}
	}
	return s
}

// coerceCommaLists splits any string value at the given dotted field paths
// into a []any of trimmed substrings, when the value is a plain string
// (spec §4.3.2 step 3 "coerce comma-joined strings to lists"). listFields
// are top-level keys whose schema type is an array of strings.
func coerceCommaLists(obj map[string]any, listFields []string) {
	for _, field := range listFields {
		v, ok := obj[field]
		if !ok {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		parts := strings.Split(s, ",")
		list := make([]any, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				list = append(list, p)
			}
		}
		obj[field] = list
	}
}

// clampConfidence recursively clamps every "confidence" field found in obj
// to [0,1] (spec §4.3.2 domain check "clamp confidence to [0,1]").
func clampConfidence(v any) {
	switch val := v.(type) {
	case map[string]any:
		if c, ok := val["confidence"].(float64); ok {
			val["confidence"] = clamp01(c)
		}
		for _, nested := range val {
			clampConfidence(nested)
		}
	case []any:
		for _, item := range val {
			clampConfidence(item)
		}
	}
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
