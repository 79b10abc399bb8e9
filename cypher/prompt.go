package cypher

import (
	"fmt"
	"strings"
)

// SystemPrompt renders the instruction contract for catalog c.
func SystemPrompt(c *Catalog) string {
	var b strings.Builder
	b.WriteString("You are a Cypher query expert for Neo4j graph database.\n\n")
	b.WriteString("You generate precise Cypher queries based on natural language questions about legal contracts.\n\n")

	b.WriteString("## Database Schema\n\n### Nodes\n")
	for _, n := range c.Nodes {
		fmt.Fprintf(&b, "- %s\n", n)
	}
	b.WriteString("\n### Relationships\n")
	for _, r := range c.Relationships {
		fmt.Fprintf(&b, "- %s\n", r)
	}

	fmt.Fprintf(&b, "\n## Available Clause Types (%d total)\n\n", len(c.ClauseTypes))
	b.WriteString(strings.Join(c.ClauseTypes, ", "))
	b.WriteString("\n\n## Common User Aliases\n\nWhen users say:\n")
	for _, a := range c.Aliases {
		phrases := make([]string, len(a.Phrases))
		for i, p := range a.Phrases {
			phrases[i] = fmt.Sprintf("%q", p)
		}
		types := make([]string, len(a.Types))
		for i, t := range a.Types {
			types[i] = fmt.Sprintf("%q", t)
		}
		fmt.Fprintf(&b, "- %s → Use: %s\n", strings.Join(phrases, " or "), strings.Join(types, " or "))
	}

	b.WriteString("\n## Query Patterns\n")
	for _, p := range c.Patterns {
		fmt.Fprintf(&b, "\n### %s:\n```cypher\n%s\n```\n", p.Name, strings.TrimRight(p.Query, "\n"))
	}

	b.WriteString("\n## Rules\n\n")
	for i, r := range c.Rules {
		fmt.Fprintf(&b, "%d. %s\n", i+1, r)
	}

	b.WriteString("\n## Output Format\n\n")
	b.WriteString(strings.TrimSpace(c.OutputFormat))
	return b.String()
}

// UserPrompt wraps the question for the generation call.
func UserPrompt(question string) string {
	return fmt.Sprintf(`Generate a Cypher query for this question:

%q

Return only the Cypher query, no markdown, no explanations, no code blocks.
Just the raw Cypher query.`, question)
}
