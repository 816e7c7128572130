package services

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atelier-ops/link-engine/pkg/config"
	"github.com/atelier-ops/link-engine/pkg/llm"
	"github.com/atelier-ops/link-engine/pkg/models"
	"github.com/atelier-ops/link-engine/pkg/repositories"
	"github.com/atelier-ops/link-engine/pkg/testhelpers"
)

// testEnv wires the full service stack against a temp-file SQLite database.
type testEnv struct {
	db         *sql.DB
	messages   repositories.MessageRepository
	projects   repositories.ProjectRepository
	contacts   repositories.ContactRepository
	links      repositories.LinkRepository
	patterns   repositories.PatternRepository
	reviews    repositories.ReviewRepository
	audit      repositories.AuditRepository
	classifier *llm.MockClassifier
	policy     *config.LinkingConfig

	linker     LinkerService
	patternSvc PatternService
	reconciler ReconcilerService
	importer   ImporterService
	stats      StatsService
}

func testPolicy() *config.LinkingConfig {
	return &config.LinkingConfig{
		AutoLinkThreshold:      0.7,
		ThreadInheritThreshold: 0.9,
		MinPatternOccurrences:  5,
		ContactMatchConfidence: 0.85,
		DomainMatchConfidence:  0.7,
		LLMMatchConfidence:     0.8,
		InternalDomains:        []string{"bensley.com"},
		BodyTruncateLen:        1500,
		BatchSize:              200,
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithInterval(t, 0)
}

// newTestEnvWithInterval wires the stack with a non-zero pause between model
// calls, for pacing and cancellation scenarios.
func newTestEnvWithInterval(t *testing.T, intervalMS int) *testEnv {
	t.Helper()

	db := testhelpers.OpenTestDB(t)
	logger := zap.NewNop()
	policy := testPolicy()
	llmCfg := &config.LLMConfig{RequestTimeoutSeconds: 5, RequestIntervalMS: intervalMS, MaxRetries: 0}

	env := &testEnv{
		db:         db,
		messages:   repositories.NewMessageRepository(db),
		projects:   repositories.NewProjectRepository(db),
		contacts:   repositories.NewContactRepository(db),
		links:      repositories.NewLinkRepository(db),
		patterns:   repositories.NewPatternRepository(db),
		reviews:    repositories.NewReviewRepository(db),
		audit:      repositories.NewAuditRepository(db),
		classifier: llm.NewMockClassifier(),
		policy:     policy,
	}

	env.linker = NewLinkerService(
		env.messages, env.projects, env.contacts, env.links, env.patterns,
		env.reviews, env.audit, env.classifier, policy, llmCfg, logger)
	env.patternSvc = NewPatternService(env.links, env.patterns, policy, logger)
	env.reconciler = NewReconcilerService(
		env.messages, env.projects, env.links, env.patterns, env.audit, policy, logger)
	env.importer = NewImporterService(env.projects, env.contacts, logger)
	env.stats = NewStatsService(
		env.projects, env.contacts, env.messages, env.links, env.patterns,
		env.reviews, env.audit)

	return env
}

func (e *testEnv) seedProject(t *testing.T, code, status string) *models.Project {
	t.Helper()
	require.NoError(t, e.projects.Upsert(context.Background(), &models.Project{
		Code:   code,
		Name:   "Project " + code,
		Status: status,
	}))
	p, err := e.projects.GetByCode(context.Background(), code)
	require.NoError(t, err)
	return p
}

func (e *testEnv) seedMessage(t *testing.T, messageID, threadID, sender string) *models.Message {
	t.Helper()
	msg := &models.Message{
		MessageID: messageID,
		ThreadID:  threadID,
		Sender:    sender,
		Subject:   "Re: site visit",
		Body:      "Attached the latest drawings.",
		SentAt:    time.Now().UTC(),
	}
	require.NoError(t, e.messages.Insert(context.Background(), msg))
	return msg
}

// seedLink writes an accepted link for an existing message and project.
func (e *testEnv) seedLink(t *testing.T, msg *models.Message, project *models.Project, confidence float64, method models.LinkMethod) *models.Link {
	t.Helper()
	link := &models.Link{
		MessagePK:   msg.ID,
		ProjectPK:   project.ID,
		MessageID:   msg.MessageID,
		ProjectCode: project.Code,
		Confidence:  confidence,
		Method:      method,
	}
	inserted, err := e.links.InsertIgnore(context.Background(), link)
	require.NoError(t, err)
	require.True(t, inserted)
	return link
}

// seedLinkedMessages creates n linked messages from the same sender to the
// given project, for pattern-mining scenarios.
func (e *testEnv) seedLinkedMessages(t *testing.T, sender string, project *models.Project, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		msg := e.seedMessage(t, fmt.Sprintf("<%s-%s-%d@mail>", sender, project.Code, i), "", sender)
		e.seedLink(t, msg, project, 0.9, models.MethodManualFix)
	}
}

func (e *testEnv) countRows(t *testing.T, table string) int {
	t.Helper()
	var n int
	require.NoError(t, e.db.QueryRow(`SELECT COUNT(*) FROM `+table).Scan(&n))
	return n
}
