package llm

import (
	"strings"

	"github.com/atelier-ops/link-engine/pkg/models"
)

// ParseProjectCodes extracts validated project codes from a model response.
//
// The contract with the model is a comma-separated list of codes or the literal
// string NONE. Anything that does not validate against the known project list
// is dropped; a fully malformed response therefore degrades to "no codes",
// which the caller treats the same as NONE.
func ParseProjectCodes(raw string, projects []models.Project) []string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}

	// Canonical code by case-insensitive lookup.
	known := make(map[string]string, len(projects))
	for _, p := range projects {
		known[normalizeCode(p.Code)] = p.Code
	}

	var codes []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(trimmed, ",") {
		part = strings.TrimSpace(part)
		// Models occasionally wrap answers in quotes or bullets.
		part = strings.Trim(part, `"'- `)
		if part == "" || strings.EqualFold(part, "none") {
			continue
		}
		canonical, ok := known[normalizeCode(part)]
		if !ok || seen[canonical] {
			continue
		}
		seen[canonical] = true
		codes = append(codes, canonical)
	}

	return codes
}

// normalizeCode collapses internal whitespace and case so "25 bk-010" matches
// "25 BK-010".
func normalizeCode(code string) string {
	return strings.ToUpper(strings.Join(strings.Fields(code), " "))
}
