package template

import (
	"fmt"
	"strings"
)

func init() {
	Register("financial_analysis", financialAnalysisGenerator)
}

// financialAnalysisMinSections is the fixed minimum set of section keys the
// flagship template's output schema requires (spec §6 "Workflow output
// schema").
// FinancialAnalysisMinSectionCount is the minimum number of sections the
// flagship template's validation pass requires (spec §4.3.2 domain check
// "require at least 12 named sections").
var FinancialAnalysisMinSectionCount = len(financialAnalysisMinSections)

var financialAnalysisMinSections = []string{
	"company_overview",
	"business_model",
	"financials",
	"valuation",
	"competitive_position",
	"management_and_governance",
	"risks",
	"opportunities",
	"recent_developments",
	"industry_outlook",
	"esg_considerations",
	"investment_thesis",
}

// financialAnalysisGenerator builds the flagship multi-document financial
// analysis template's prompts (spec §6's top-level output contract:
// currency, sections[], risks[], opportunities[], next_steps[],
// inconsistencies[], references[], meta.version = 2).
func financialAnalysisGenerator(variables map[string]any, customUserPrompt string) (Output, error) {
	focus, _ := variables["focus"].(string)

	var sb strings.Builder
	sb.WriteString("You are a financial analyst producing a structured, citation-grounded analysis from the provided document excerpts.\n\n")
	sb.WriteString("Output a single JSON object with exactly this top-level shape:\n")
	sb.WriteString("- currency: a 3-letter ISO currency code, or the literal string \"UNKNOWN\" if no currency is determinable.\n")
	sb.WriteString(fmt.Sprintf("- sections: an array of objects {key, title, content, citations[], confidence?}. Include at least these keys: %s.\n", strings.Join(financialAnalysisMinSections, ", ")))
	sb.WriteString("  You may add optional mirror top-level fields (company_overview, financials, valuation, etc.) echoing a section's content for convenience, but sections[] is authoritative.\n")
	sb.WriteString("- risks: an array of strings or {description, severity} objects. severity, when present, must be one of: low, medium, high, critical.\n")
	sb.WriteString("- opportunities: an array of strings.\n")
	sb.WriteString("- next_steps: an array of strings.\n")
	sb.WriteString("- inconsistencies: an array of strings describing any contradictions found across the source documents.\n")
	sb.WriteString("- references: a deduplicated array of every citation token you used anywhere in the response.\n")
	sb.WriteString("- meta: {version: 2}.\n\n")
	sb.WriteString("Citation rule: every factual claim in \"content\" fields must be backed by at least one citation token of the exact form [D<n>:p<m>], e.g. [D1:p12]. ")
	sb.WriteString("Only use tokens that appear in the supplied context — never invent a document index or page number. Do not cite a token you were not given.\n")
	if focus != "" {
		fmt.Fprintf(&sb, "\nPay particular attention to: %s.\n", focus)
	}

	userTemplate := customUserPrompt
	if userTemplate == "" {
		userTemplate = "Analyze the following source material and produce the JSON object described in your instructions.\n\n" + ContextPlaceholder
	} else if !strings.Contains(userTemplate, ContextPlaceholder) {
		userTemplate = userTemplate + "\n\n" + ContextPlaceholder
	}

	return Output{SystemPrompt: sb.String(), UserMessageTemplate: userTemplate}, nil
}
