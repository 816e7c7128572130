package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atelier-ops/link-engine/pkg/apperrors"
	"github.com/atelier-ops/link-engine/pkg/config"
	"github.com/atelier-ops/link-engine/pkg/models"
	"github.com/atelier-ops/link-engine/pkg/repositories"
)

// RepairResult summarizes one reconciliation pass.
type RepairResult struct {
	RunID             string `json:"run_id"`
	OrphansFound      int    `json:"orphans_found"`
	Relinked          int    `json:"relinked"`
	Deleted           int    `json:"deleted"`
	PatternsReapplied int    `json:"patterns_reapplied"`
}

// ReconcilerService repairs referential integrity after the message or project
// surrogate-key space changes underneath existing links.
//
// The repair is possible at all because links carry their business keys:
// message_id and project_code survive every re-import, so a stale surrogate
// reference is a rewrite, not a loss. Links whose business keys no longer
// resolve either are genuinely unrecoverable; those are deleted and counted,
// never treated as fatal.
type ReconcilerService interface {
	Repair(ctx context.Context) (*RepairResult, error)
}

type reconcilerService struct {
	messages repositories.MessageRepository
	projects repositories.ProjectRepository
	links    repositories.LinkRepository
	patterns repositories.PatternRepository
	audit    repositories.AuditRepository
	policy   *config.LinkingConfig
	logger   *zap.Logger
}

// NewReconcilerService creates a new reconciler service.
func NewReconcilerService(
	messages repositories.MessageRepository,
	projects repositories.ProjectRepository,
	links repositories.LinkRepository,
	patterns repositories.PatternRepository,
	audit repositories.AuditRepository,
	policy *config.LinkingConfig,
	logger *zap.Logger,
) ReconcilerService {
	return &reconcilerService{
		messages: messages,
		projects: projects,
		links:    links,
		patterns: patterns,
		audit:    audit,
		policy:   policy,
		logger:   logger.Named("reconciler"),
	}
}

var _ ReconcilerService = (*reconcilerService)(nil)

// Repair re-anchors orphaned links through their business keys, deletes
// unrecoverable ones, then reapplies qualifying learned patterns.
func (s *reconcilerService) Repair(ctx context.Context) (*RepairResult, error) {
	started := time.Now().UTC()
	result := &RepairResult{RunID: uuid.NewString()}

	orphans, err := s.links.Orphans(ctx)
	if err != nil {
		return nil, fmt.Errorf("find orphans: %w", err)
	}
	result.OrphansFound = len(orphans)

	for _, orphan := range orphans {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		messagePK, msgErr := s.messages.ResolvePK(ctx, orphan.MessageID)
		projectPK, projErr := s.projects.ResolvePK(ctx, orphan.ProjectCode)

		switch {
		case msgErr == nil && projErr == nil:
			if err := s.links.Reanchor(ctx, orphan.ID, messagePK, projectPK); err != nil {
				return result, err
			}
			result.Relinked++
		case isUnresolvable(msgErr) || isUnresolvable(projErr):
			if err := s.links.Delete(ctx, orphan.ID); err != nil {
				return result, err
			}
			result.Deleted++
			s.logger.Debug("Deleted unrecoverable link",
				zap.String("message_id", orphan.MessageID),
				zap.String("project_code", orphan.ProjectCode))
		case msgErr != nil:
			return result, msgErr
		default:
			return result, projErr
		}
	}

	reapplied, err := s.reapplyPatterns(ctx)
	if err != nil {
		return result, err
	}
	result.PatternsReapplied = reapplied

	run := &models.ReconciliationRun{
		ID:                result.RunID,
		StartedAt:         started,
		FinishedAt:        time.Now().UTC(),
		OrphansFound:      result.OrphansFound,
		Relinked:          result.Relinked,
		Deleted:           result.Deleted,
		PatternsReapplied: result.PatternsReapplied,
	}
	if err := s.audit.InsertReconciliationRun(ctx, run); err != nil {
		return result, err
	}

	s.logger.Info("Reconciliation complete",
		zap.String("run_id", result.RunID),
		zap.Int("orphans_found", result.OrphansFound),
		zap.Int("relinked", result.Relinked),
		zap.Int("deleted", result.Deleted),
		zap.Int("patterns_reapplied", result.PatternsReapplied))
	return result, nil
}

// reapplyPatterns is the secondary repair pass: for every qualifying learned
// pattern, make sure all of that sender's messages are linked to the pattern's
// project. INSERT OR IGNORE keeps this idempotent.
func (s *reconcilerService) reapplyPatterns(ctx context.Context) (int, error) {
	qualifying, err := s.patterns.Qualifying(ctx, s.policy.MinPatternOccurrences, s.policy.AutoLinkThreshold)
	if err != nil {
		return 0, fmt.Errorf("qualifying patterns: %w", err)
	}

	reapplied := 0
	for _, pattern := range qualifying {
		// Mining already excludes internal senders; this guard survives in
		// case older pattern rows predate the standing filter.
		if s.policy.IsInternalSender(pattern.SenderEmail) {
			continue
		}

		project, err := s.projects.GetByCode(ctx, pattern.ProjectCode)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				continue
			}
			return reapplied, err
		}

		msgs, err := s.messages.BySender(ctx, pattern.SenderEmail)
		if err != nil {
			return reapplied, err
		}
		for i := range msgs {
			inserted, err := s.links.InsertIgnore(ctx, &models.Link{
				MessagePK:   msgs[i].ID,
				ProjectPK:   project.ID,
				MessageID:   msgs[i].MessageID,
				ProjectCode: project.Code,
				Confidence:  pattern.Confidence,
				Method:      models.MethodSenderFrequency,
				Evidence:    fmt.Sprintf("reapplied from learned pattern (%d occurrences)", pattern.Occurrences),
			})
			if err != nil {
				return reapplied, err
			}
			if inserted {
				reapplied++
			}
		}
	}
	return reapplied, nil
}

func isUnresolvable(err error) bool {
	return err != nil && errors.Is(err, apperrors.ErrNotFound)
}
