package generate

import (
	"fmt"

	"github.com/lookatitude/docintel/engine/template"
)

// validSeverity is the closed enum §4.3.2's domain check validates risk
// severity against.
var validSeverity = map[string]bool{"low": true, "medium": true, "high": true, "critical": true}

// domainChecks applies the workflow-specific domain checks spec §4.3.2 step
// 4 calls for on the flagship financial-analysis template. Other templates
// (generic extraction/synthesis) declare no domain checks of their own, so
// this only fires anything meaningful when generatorName matches.
func domainChecks(generatorName string, obj map[string]any) []string {
	var warnings []string

	if generatorName == "financial_analysis" {
		warnings = append(warnings, checkMinSections(obj)...)
		warnings = append(warnings, checkCurrencyConsistency(obj)...)
		warnings = append(warnings, checkSeverityEnum(obj)...)
		warnings = append(warnings, checkFinancialYearRevenue(obj)...)
	}
	return warnings
}

func checkMinSections(obj map[string]any) []string {
	sections, _ := obj["sections"].([]any)
	if len(sections) < template.FinancialAnalysisMinSectionCount {
		return []string{fmt.Sprintf("expected at least %d sections, got %d", template.FinancialAnalysisMinSectionCount, len(sections))}
	}
	return nil
}

func checkCurrencyConsistency(obj map[string]any) []string {
	top, _ := obj["currency"].(string)
	if top == "" || top == "UNKNOWN" {
		return nil
	}
	var warnings []string
	walkCurrency(obj, top, &warnings)
	return warnings
}

func walkCurrency(v any, top string, warnings *[]string) {
	switch val := v.(type) {
	case map[string]any:
		if c, ok := val["currency"].(string); ok && c != "" && c != "UNKNOWN" && c != top {
			*warnings = append(*warnings, fmt.Sprintf("nested currency %q is inconsistent with top-level currency %q", c, top))
		}
		for k, nested := range val {
			if k == "currency" {
				continue
			}
			walkCurrency(nested, top, warnings)
		}
	case []any:
		for _, item := range val {
			walkCurrency(item, top, warnings)
		}
	}
}

func checkSeverityEnum(v any) []string {
	var warnings []string
	walkSeverity(v, &warnings)
	return warnings
}

func walkSeverity(v any, warnings *[]string) {
	switch val := v.(type) {
	case map[string]any:
		for _, key := range []string{"severity", "impact"} {
			if s, ok := val[key].(string); ok && s != "" && !validSeverity[s] {
				*warnings = append(*warnings, fmt.Sprintf("%s %q is not one of low/medium/high/critical", key, s))
			}
		}
		for _, nested := range val {
			walkSeverity(nested, warnings)
		}
	case []any:
		for _, item := range val {
			walkSeverity(item, warnings)
		}
	}
}

func checkFinancialYearRevenue(v any) []string {
	var warnings []string
	walkRevenue(v, &warnings)
	return warnings
}

func walkRevenue(v any, warnings *[]string) {
	switch val := v.(type) {
	case map[string]any:
		if _, hasYear := val["fiscal_year"]; hasYear {
			switch rev := val["revenue"].(type) {
			case nil:
			case float64:
			default:
				*warnings = append(*warnings, fmt.Sprintf("fiscal_year %v has non-numeric revenue %v", val["fiscal_year"], rev))
			}
		}
		for _, nested := range val {
			walkRevenue(nested, warnings)
		}
	case []any:
		for _, item := range val {
			walkRevenue(item, warnings)
		}
	}
}
