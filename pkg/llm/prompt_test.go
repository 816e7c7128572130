package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/atelier-ops/link-engine/pkg/models"
)

func TestBuildClassifyPrompt(t *testing.T) {
	req := &ClassifyRequest{
		Sender:  "client@resort.com",
		Subject: "Pool deck revisions",
		Body:    "Please see attached.",
		Projects: []models.Project{
			{Code: "BK-2101", Name: "Riverside Resort", Status: "active"},
			{Code: "BK-1700", Name: "Hillside Villas", Status: "archived"},
			{Code: "VN-0042", Name: "Coastal Villas"},
		},
	}

	prompt := BuildClassifyPrompt(req, 0)

	assert.Contains(t, prompt, "- BK-2101 | Riverside Resort | active")
	assert.Contains(t, prompt, "- BK-1700 | Hillside Villas | archived")
	assert.Contains(t, prompt, "- VN-0042 | Coastal Villas | active", "missing status defaults to active")
	assert.Contains(t, prompt, "From: client@resort.com")
	assert.Contains(t, prompt, "Subject: Pool deck revisions")
	assert.Contains(t, prompt, "Please see attached.")
}

func TestBuildClassifyPrompt_TruncatesBody(t *testing.T) {
	req := &ClassifyRequest{
		Sender: "client@resort.com",
		Body:   strings.Repeat("ก", 2000),
	}

	prompt := BuildClassifyPrompt(req, 100)
	assert.Equal(t, 100, strings.Count(prompt, "ก"), "truncation counts runes, not bytes")
	assert.Contains(t, prompt, "…")

	full := BuildClassifyPrompt(req, 0)
	assert.Equal(t, 2000, strings.Count(full, "ก"), "zero limit means no truncation")
}
