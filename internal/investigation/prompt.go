package investigation

import (
	"fmt"
	"strings"

	"github.com/stellarlinkco/ghosthunter/internal/querytool"
)

const (
	role      = "Corporate Registry Investigator"
	goal      = "Trace corporate structures and identify shell company characteristics"
	backstory = "You are an expert forensic analyst for a top-tier Singapore compliance firm. " +
		"Your specialty is 'Ghost Offices': companies that exist only on paper. " +
		"You scrutinize corporate registry data for red flags."
)

// SystemPrompt is the investigator persona.
func SystemPrompt() string {
	var sb strings.Builder
	sb.WriteString("# Role\n\n")
	sb.WriteString(role)
	sb.WriteString("\n\n# Goal\n\n")
	sb.WriteString(goal)
	sb.WriteString("\n\n# Background\n\n")
	sb.WriteString(backstory)
	sb.WriteString("\n\n# Working rules\n\n")
	sb.WriteString("- Use the tools to gather evidence; never invent sources or findings.\n")
	sb.WriteString("- If a tool reports an error, adapt your query or note the gap in the report.\n")
	sb.WriteString("- Answer with the final report only, in markdown.\n")
	return sb.String()
}

// TaskPrompt is the investigation brief for company. A non-empty ticker adds
// the Shariah screening section.
func TaskPrompt(company, ticker string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Conduct a comprehensive forensic investigation on '%s'.\n\n", company)

	sb.WriteString(`1. ADVERSE MEDIA CHECK:
   - Search specifically for terms like "fraud", "collapse", "arrest", "investigation",
     "liquidators", "MAS penalty", "bankruptcy", "sanctions", and "regulatory action"
     associated with the company or its directors.
   - Look for any negative news, legal proceedings, or regulatory violations.

2. GHOST OFFICE CHECK:
   - Identify if the company's Singapore address is a co-working space, shared office,
     or virtual office.
   - Verify physical presence and operational legitimacy.
   - Check for entity clustering (multiple unrelated companies at same address).

3. CORPORATE STRUCTURE ANALYSIS:
   - Examine corporate registry data for red flags.
   - Identify shell company characteristics.
   - Assess operational transparency.
`)

	if ticker != "" {
		fmt.Fprintf(&sb, `
4. SHARIAH COMPLIANCE SCREENING (ticker %[1]s):
   - Call %[2]s with "%[1]s" to test debt and cash against the AAOIFI %[3]s of market cap threshold.
   - Call %[4]s with "%[1]s" and judge whether the core business involves prohibited
     activities (conventional interest-based finance, alcohol, gambling, pork, adult
     entertainment, tobacco, weapons).
   - State the outcome of both screens and an overall Shariah compliance verdict.
`, ticker, querytool.RatioToolName, fmt.Sprintf("%.0f%%", querytool.AAOIFIThreshold), querytool.BusinessToolName)
	}

	sb.WriteString(`
CRITICAL: If you find ANY negative news, regulatory actions, or suspicious patterns,
you MUST flag it as a HIGH RISK entity. Do not return a 'clean' report if the company
has collapsed, is under investigation, or shows signs of being a shell company.

Expected output: a comprehensive forensic risk report in markdown format that includes:
- Executive summary with risk rating
- Adverse media findings
- Ghost office assessment
- Corporate structure analysis
`)
	if ticker != "" {
		sb.WriteString("- Shariah compliance assessment\n")
	}
	sb.WriteString(`- Recommendations and red flags
- Supporting evidence and sources
`)
	return sb.String()
}
