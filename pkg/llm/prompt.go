package llm

import (
	"fmt"
	"strings"

	"github.com/atelier-ops/link-engine/pkg/models"
)

const classifySystemMessage = `You classify internal email for a design firm. ` +
	`Given an email and the firm's project list, answer with the comma-separated ` +
	`codes of every project the email concerns, exactly as they appear in the list. ` +
	`If the email does not concern any listed project, answer with the single word NONE. ` +
	`Answer with codes only, no explanation.`

// BuildClassifyPrompt renders the user prompt for a classification request,
// truncating the body to bodyLimit runes. The project list enumerates every
// known project with its status so the model can see on-hold and lost work too.
func BuildClassifyPrompt(req *ClassifyRequest, bodyLimit int) string {
	var b strings.Builder

	b.WriteString("Projects:\n")
	for _, p := range req.Projects {
		status := p.Status
		if status == "" {
			status = models.ProjectStatusActive
		}
		fmt.Fprintf(&b, "- %s | %s | %s\n", p.Code, p.Name, status)
	}

	fmt.Fprintf(&b, "\nEmail:\nFrom: %s\nSubject: %s\n\n%s\n",
		req.Sender, req.Subject, truncate(req.Body, bodyLimit))

	return b.String()
}

// truncate cuts s to at most limit runes. limit <= 0 means no truncation.
func truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "…"
}
