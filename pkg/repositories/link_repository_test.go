package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelier-ops/link-engine/pkg/models"
	"github.com/atelier-ops/link-engine/pkg/testhelpers"
)

type repoFixture struct {
	db       *sql.DB
	messages MessageRepository
	projects ProjectRepository
	links    LinkRepository
}

func newRepoFixture(t *testing.T) *repoFixture {
	t.Helper()
	db := testhelpers.OpenTestDB(t)
	return &repoFixture{
		db:       db,
		messages: NewMessageRepository(db),
		projects: NewProjectRepository(db),
		links:    NewLinkRepository(db),
	}
}

func (f *repoFixture) addProject(t *testing.T, code string) *models.Project {
	t.Helper()
	require.NoError(t, f.projects.Upsert(context.Background(), &models.Project{Code: code}))
	p, err := f.projects.GetByCode(context.Background(), code)
	require.NoError(t, err)
	return p
}

func (f *repoFixture) addMessage(t *testing.T, messageID, threadID, sender string) *models.Message {
	t.Helper()
	msg := &models.Message{MessageID: messageID, ThreadID: threadID, Sender: sender}
	require.NoError(t, f.messages.Insert(context.Background(), msg))
	return msg
}

func (f *repoFixture) addLink(t *testing.T, msg *models.Message, p *models.Project, confidence float64) *models.Link {
	t.Helper()
	link := &models.Link{
		MessagePK:   msg.ID,
		ProjectPK:   p.ID,
		MessageID:   msg.MessageID,
		ProjectCode: p.Code,
		Confidence:  confidence,
		Method:      models.MethodManualFix,
	}
	inserted, err := f.links.InsertIgnore(context.Background(), link)
	require.NoError(t, err)
	require.True(t, inserted)
	return link
}

func TestLinkInsertIgnore_DuplicatePairIsNoOp(t *testing.T) {
	f := newRepoFixture(t)
	ctx := context.Background()

	p := f.addProject(t, "BK-2101")
	msg := f.addMessage(t, "<m1@mail>", "", "a@b.com")
	f.addLink(t, msg, p, 0.9)

	inserted, err := f.links.InsertIgnore(ctx, &models.Link{
		MessagePK:   msg.ID,
		ProjectPK:   p.ID,
		MessageID:   msg.MessageID,
		ProjectCode: p.Code,
		Confidence:  0.5,
		Method:      models.MethodDomainPattern,
	})
	require.NoError(t, err)
	assert.False(t, inserted)

	links, err := f.links.ForMessage(ctx, msg.MessageID)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, 0.9, links[0].Confidence, "first write wins")
}

func TestThreadLinks(t *testing.T) {
	f := newRepoFixture(t)
	ctx := context.Background()

	p := f.addProject(t, "BK-2101")
	strong := f.addMessage(t, "<strong@mail>", "thread-1", "a@b.com")
	f.addLink(t, strong, p, 0.95)
	weak := f.addMessage(t, "<weak@mail>", "thread-1", "a@b.com")

	p2 := f.addProject(t, "VN-0042")
	inserted, err := f.links.InsertIgnore(ctx, &models.Link{
		MessagePK: weak.ID, ProjectPK: p2.ID,
		MessageID: weak.MessageID, ProjectCode: p2.Code,
		Confidence: 0.7, Method: models.MethodDomainPattern,
	})
	require.NoError(t, err)
	require.True(t, inserted)

	// Only the strong sibling link qualifies; the querying message's own
	// links are excluded.
	links, err := f.links.ThreadLinks(ctx, "thread-1", "<new@mail>", 0.9)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "<strong@mail>", links[0].MessageID)

	links, err = f.links.ThreadLinks(ctx, "thread-1", "<strong@mail>", 0.9)
	require.NoError(t, err)
	assert.Empty(t, links)

	links, err = f.links.ThreadLinks(ctx, "", "<new@mail>", 0.9)
	require.NoError(t, err)
	assert.Empty(t, links, "empty thread id matches nothing")
}

func TestDomainProjects(t *testing.T) {
	f := newRepoFixture(t)
	ctx := context.Background()

	p1 := f.addProject(t, "BK-2101")
	p2 := f.addProject(t, "VN-0042")

	m1 := f.addMessage(t, "<m1@mail>", "", "alice@vendor.com")
	f.addLink(t, m1, p1, 0.9)
	m2 := f.addMessage(t, "<m2@mail>", "", "bob@vendor.com")
	f.addLink(t, m2, p1, 0.9)
	m3 := f.addMessage(t, "<m3@mail>", "", "carol@other.org")
	f.addLink(t, m3, p2, 0.9)

	codes, err := f.links.DomainProjects(ctx, "vendor.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"BK-2101"}, codes)

	codes, err = f.links.DomainProjects(ctx, "nowhere.net")
	require.NoError(t, err)
	assert.Empty(t, codes)
}

func TestAggregateBySenderProject(t *testing.T) {
	f := newRepoFixture(t)
	ctx := context.Background()

	p1 := f.addProject(t, "BK-2101")
	p2 := f.addProject(t, "VN-0042")

	for i := 0; i < 3; i++ {
		m := f.addMessage(t, fmt.Sprintf("<a%d@mail>", i), "", "alice@vendor.com")
		f.addLink(t, m, p1, 0.9)
	}
	m := f.addMessage(t, "<a-extra@mail>", "", "alice@vendor.com")
	f.addLink(t, m, p2, 0.9)

	counts, err := f.links.AggregateBySenderProject(ctx)
	require.NoError(t, err)
	require.Len(t, counts, 2)

	assert.Equal(t, "BK-2101", counts[0].ProjectCode)
	assert.Equal(t, 3, counts[0].Count)
	assert.Equal(t, 4, counts[0].SenderTotal)
	assert.Equal(t, "VN-0042", counts[1].ProjectCode)
	assert.Equal(t, 1, counts[1].Count)
	assert.Equal(t, 4, counts[1].SenderTotal)
}

func TestOrphansReanchorDelete(t *testing.T) {
	f := newRepoFixture(t)
	ctx := context.Background()

	p := f.addProject(t, "BK-2101")
	msg := f.addMessage(t, "<m1@mail>", "", "a@b.com")
	link := f.addLink(t, msg, p, 0.9)

	orphans, err := f.links.Orphans(ctx)
	require.NoError(t, err)
	assert.Empty(t, orphans)

	// Surrogate id churn: the message row is replaced.
	_, err = f.db.ExecContext(ctx, `DELETE FROM messages WHERE message_id = ?`, msg.MessageID)
	require.NoError(t, err)
	fresh := f.addMessage(t, "<m1@mail>", "", "a@b.com")

	orphans, err = f.links.Orphans(ctx)
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, link.ID, orphans[0].ID)

	require.NoError(t, f.links.Reanchor(ctx, link.ID, fresh.ID, p.ID))
	orphans, err = f.links.Orphans(ctx)
	require.NoError(t, err)
	assert.Empty(t, orphans)

	require.NoError(t, f.links.Delete(ctx, link.ID))
	n, err := f.links.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}
