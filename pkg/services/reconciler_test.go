package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelier-ops/link-engine/pkg/models"
)

// reimportMessage simulates the external mailbox sync dropping and recreating
// a message row: same message_id, fresh surrogate id.
func reimportMessage(t *testing.T, env *testEnv, msg *models.Message) int64 {
	t.Helper()
	ctx := context.Background()
	_, err := env.db.ExecContext(ctx, `DELETE FROM messages WHERE message_id = ?`, msg.MessageID)
	require.NoError(t, err)
	fresh := &models.Message{
		MessageID: msg.MessageID,
		ThreadID:  msg.ThreadID,
		Sender:    msg.Sender,
		Subject:   msg.Subject,
		Body:      msg.Body,
		SentAt:    msg.SentAt,
	}
	require.NoError(t, env.messages.Insert(ctx, fresh))
	require.NotEqual(t, msg.ID, fresh.ID, "re-import must produce a new surrogate id")
	return fresh.ID
}

func TestRepair_ReanchorsOrphanedLinks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	project := env.seedProject(t, "BK-2101", "active")
	msg := env.seedMessage(t, "<m1@mail>", "", "client@resort.com")
	link := env.seedLink(t, msg, project, 0.9, models.MethodManualFix)

	newPK := reimportMessage(t, env, msg)

	result, err := env.reconciler.Repair(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.OrphansFound)
	assert.Equal(t, 1, result.Relinked)
	assert.Equal(t, 0, result.Deleted)

	links, err := env.links.ForMessage(ctx, msg.MessageID)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, link.ID, links[0].ID, "the link row itself survives")
	assert.Equal(t, newPK, links[0].MessagePK)

	orphans, err := env.links.Orphans(ctx)
	require.NoError(t, err)
	assert.Empty(t, orphans)
}

func TestRepair_ReanchorsAfterProjectReimport(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	project := env.seedProject(t, "BK-2101", "active")
	msg := env.seedMessage(t, "<m1@mail>", "", "client@resort.com")
	link := env.seedLink(t, msg, project, 0.9, models.MethodManualFix)

	// A roster re-import drops and recreates the project row: same
	// project_code, fresh surrogate id.
	_, err := env.db.ExecContext(ctx, `DELETE FROM projects WHERE project_code = ?`, project.Code)
	require.NoError(t, err)
	fresh := env.seedProject(t, project.Code, "active")
	require.NotEqual(t, project.ID, fresh.ID, "re-import must produce a new surrogate id")

	result, err := env.reconciler.Repair(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.OrphansFound)
	assert.Equal(t, 1, result.Relinked)
	assert.Equal(t, 0, result.Deleted)

	links, err := env.links.ForMessage(ctx, msg.MessageID)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, link.ID, links[0].ID, "the link row itself survives")
	assert.Equal(t, fresh.ID, links[0].ProjectPK)
	assert.Equal(t, msg.ID, links[0].MessagePK, "the intact message anchor is untouched")
}

func TestRepair_DeletesUnrecoverableLinks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	project := env.seedProject(t, "BK-2101", "active")
	msg := env.seedMessage(t, "<gone@mail>", "", "client@resort.com")
	env.seedLink(t, msg, project, 0.9, models.MethodManualFix)

	// The message vanishes for good: no row carries its message_id anymore.
	_, err := env.db.ExecContext(ctx, `DELETE FROM messages WHERE message_id = ?`, msg.MessageID)
	require.NoError(t, err)

	result, err := env.reconciler.Repair(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.OrphansFound)
	assert.Equal(t, 0, result.Relinked)
	assert.Equal(t, 1, result.Deleted)
	assert.Equal(t, 0, env.countRows(t, "email_project_links"))
}

func TestRepair_ReappliesQualifyingPatterns(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	project := env.seedProject(t, "BK-2101", "active")
	env.seedLinkedMessages(t, "kittipong@thaicontractor.co.th", project, 6)
	_, err := env.patternSvc.Rebuild(ctx)
	require.NoError(t, err)

	// Two messages from the pattern's sender never got linked.
	env.seedMessage(t, "<missed-1@mail>", "", "kittipong@thaicontractor.co.th")
	env.seedMessage(t, "<missed-2@mail>", "", "kittipong@thaicontractor.co.th")

	result, err := env.reconciler.Repair(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.PatternsReapplied)

	links, err := env.links.ForMessage(ctx, "<missed-1@mail>")
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, models.MethodSenderFrequency, links[0].Method)
	assert.Contains(t, links[0].Evidence, "reapplied")

	// Idempotent: a second pass finds nothing left to do.
	result, err = env.reconciler.Repair(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.PatternsReapplied)
}

func TestRepair_SkipsWeakPatterns(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p1 := env.seedProject(t, "BK-2101", "active")
	p2 := env.seedProject(t, "VN-0042", "active")
	env.seedLinkedMessages(t, "pm@consultants.com", p1, 5)
	env.seedLinkedMessages(t, "pm@consultants.com", p2, 5)
	_, err := env.patternSvc.Rebuild(ctx)
	require.NoError(t, err)

	env.seedMessage(t, "<split-1@mail>", "", "pm@consultants.com")

	result, err := env.reconciler.Repair(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.PatternsReapplied, "split sender confidence is below the bar")
}

func TestRepair_WritesAuditRecord(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, err := env.reconciler.Repair(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, result.RunID)

	var relinked int
	err = env.db.QueryRowContext(ctx,
		`SELECT relinked FROM reconciliation_runs WHERE id = ?`, result.RunID).Scan(&relinked)
	require.NoError(t, err)
	assert.Equal(t, 0, relinked)
	assert.Equal(t, 1, env.countRows(t, "reconciliation_runs"))
}
