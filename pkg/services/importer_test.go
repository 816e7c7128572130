package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seedYAML = `projects:
  - code: BK-2101
    name: Riverside Resort
    status: active
  - code: BK-1700
    name: Hillside Villas
    status: archived
contacts:
  - email: owner@resortgroup.com
    name: Resort Owner
    company: Resort Group
    projects: [BK-2101]
  - email: pm@consultants.com
    projects: [BK-2101, BK-1700]
`

func writeSeedFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestImportFile_LoadsProjectsAndContacts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, err := env.importer.ImportFile(ctx, writeSeedFile(t, seedYAML))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Projects)
	assert.Equal(t, 2, result.Contacts)

	p, err := env.projects.GetByCode(ctx, "BK-1700")
	require.NoError(t, err)
	assert.Equal(t, "Hillside Villas", p.Name)
	assert.Equal(t, "archived", p.Status)
	assert.False(t, p.IsActive())

	codes, err := env.contacts.ProjectCodesForEmail(ctx, "pm@consultants.com")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"BK-2101", "BK-1700"}, codes)
}

func TestImportFile_ReimportUpsertsInPlace(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.importer.ImportFile(ctx, writeSeedFile(t, seedYAML))
	require.NoError(t, err)

	updated := `projects:
  - code: BK-2101
    name: Riverside Resort Phase II
    status: on-hold
contacts:
  - email: owner@resortgroup.com
    projects: [BK-2101]
`
	_, err = env.importer.ImportFile(ctx, writeSeedFile(t, updated))
	require.NoError(t, err)

	assert.Equal(t, 2, env.countRows(t, "projects"), "same code updates, never duplicates")
	p, err := env.projects.GetByCode(ctx, "BK-2101")
	require.NoError(t, err)
	assert.Equal(t, "Riverside Resort Phase II", p.Name)
	assert.Equal(t, "on-hold", p.Status)
}

func TestImportFile_EmptyProjectCodeRejected(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.importer.ImportFile(context.Background(), writeSeedFile(t, "projects:\n  - name: Nameless\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty code")
}

func TestImportFile_MissingFile(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.importer.ImportFile(context.Background(), filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestStatsCollect(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	project := env.seedProject(t, "BK-2101", "active")
	msg := env.seedMessage(t, "<m1@mail>", "", "client@resort.com")
	env.seedLink(t, msg, project, 0.9, "manual-fix")
	env.seedMessage(t, "<m2@mail>", "", "client@resort.com")

	stats, err := env.stats.Collect(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Projects)
	assert.EqualValues(t, 2, stats.Messages)
	assert.EqualValues(t, 1, stats.UnlinkedMessages)
	assert.EqualValues(t, 1, stats.Links)
	assert.EqualValues(t, 0, stats.PendingReviews)
}
