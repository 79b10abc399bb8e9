package analysis

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/brunobiangulo/clausegraph/normalize"
)

const systemPrompt = `You are a legal contract analysis expert analyzing results from GraphRAG (Knowledge Graph + AI).

GraphRAG's key advantage: It provides BOTH aggregated data (counts, summaries) AND detailed results (specific contracts, clauses) in a single query - something traditional RAG cannot do.

Analyze query results and provide:
1. A concise summary of what was found - highlight when both aggregated counts AND detailed contracts/clauses are available
2. Key insights (business implications, risks, opportunities)
3. Risk flags (if any)
4. Actionable recommendations

Be specific, data-driven, and business-focused. When results include both aggregations and detailed contracts/clauses, emphasize this dual capability as a strategic advantage for legal analysis.`

const dualCapabilityNote = `IMPORTANT: These results demonstrate GraphRAG's unique capability - they include BOTH aggregated summaries (counts/statistics) AND detailed contracts/clauses in a single query. This enables strategic analysis where you can see the big picture (aggregated data) and drill into specific details (contracts, clauses) simultaneously - something traditional search cannot do.`

const outputFormat = `Provide analysis in this JSON format:
{
  "summary": "Brief summary - if results include both aggregations and details, mention this GraphRAG advantage",
  "insights": ["insight1", "insight2"],
  "riskFlags": ["risk1"] (optional),
  "recommendations": ["rec1"] (optional)
}`

// buildPrompt embeds the whole result as indented JSON.
func buildPrompt(question string, res *normalize.Result) string {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		data = []byte(fmt.Sprintf("%q", err.Error()))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "User Query: %q\n\nQuery Results:\n%s", question, data)
	if res != nil && res.HasDualCapability() {
		sb.WriteString("\n\n")
		sb.WriteString(dualCapabilityNote)
	}
	sb.WriteString("\n\n")
	sb.WriteString(outputFormat)
	return sb.String()
}
