package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/atelier-ops/link-engine/pkg/models"
)

func knownProjects() []models.Project {
	return []models.Project{
		{Code: "BK-2101", Name: "Riverside Resort"},
		{Code: "VN-0042", Name: "Coastal Villas"},
		{Code: "25 BK-010", Name: "City Hotel"},
	}
}

func TestParseProjectCodes(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"single code", "BK-2101", []string{"BK-2101"}},
		{"multiple codes", "BK-2101, VN-0042", []string{"BK-2101", "VN-0042"}},
		{"none literal", "NONE", nil},
		{"none lowercase", "none", nil},
		{"empty response", "", nil},
		{"whitespace only", "   \n", nil},
		{"case insensitive match", "bk-2101", []string{"BK-2101"}},
		{"collapsed whitespace match", "25  bk-010", []string{"25 BK-010"}},
		{"unknown code dropped", "ZZ-9999", nil},
		{"unknown mixed with known", "ZZ-9999, VN-0042", []string{"VN-0042"}},
		{"duplicates collapsed", "BK-2101, bk-2101", []string{"BK-2101"}},
		{"quoted answer", `"BK-2101"`, []string{"BK-2101"}},
		{"bulleted answer", "- BK-2101", []string{"BK-2101"}},
		{"none mixed with code", "NONE, BK-2101", []string{"BK-2101"}},
		{"prose answer degrades to nothing", "The email is about landscaping.", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseProjectCodes(tt.raw, knownProjects())
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseProjectCodes_EmptyProjectList(t *testing.T) {
	assert.Nil(t, ParseProjectCodes("BK-2101", nil))
}
