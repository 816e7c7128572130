// Package services implements the linking, pattern mining, and reconciliation
// batch jobs.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/atelier-ops/link-engine/pkg/apperrors"
	"github.com/atelier-ops/link-engine/pkg/config"
	"github.com/atelier-ops/link-engine/pkg/llm"
	"github.com/atelier-ops/link-engine/pkg/models"
	"github.com/atelier-ops/link-engine/pkg/repositories"
	"github.com/atelier-ops/link-engine/pkg/retry"
)

// BatchOptions controls one linker run.
type BatchOptions struct {
	// Limit caps how many unlinked messages are pulled; 0 uses the configured
	// batch size.
	Limit int
	// Suggest consults the model even when a rule already matched, surfacing
	// extra candidates for review.
	Suggest bool
	// DryRun evaluates and counts but writes nothing.
	DryRun bool
}

// BatchResult summarizes one linker run.
type BatchResult struct {
	Processed       int `json:"processed"`
	AutoLinked      int `json:"auto_linked"`
	QueuedForReview int `json:"queued_for_review"`
	Unlinked        int `json:"unlinked"`
	Failures        int `json:"failures"`
}

// LinkerService proposes and writes message-to-project links.
type LinkerService interface {
	// Evaluate runs the candidate pipeline for a single message without
	// writing anything.
	Evaluate(ctx context.Context, msg *models.Message, suggest bool) ([]models.Candidate, error)

	// ProcessBatch pulls unlinked messages and applies the acceptance policy
	// to each. A classification failure skips the message and continues; the
	// message is retried on the next batch.
	ProcessBatch(ctx context.Context, opts BatchOptions) (*BatchResult, error)
}

type linkerService struct {
	messages   repositories.MessageRepository
	projects   repositories.ProjectRepository
	contacts   repositories.ContactRepository
	links      repositories.LinkRepository
	patterns   repositories.PatternRepository
	reviews    repositories.ReviewRepository
	audit      repositories.AuditRepository
	classifier llm.Classifier
	policy     *config.LinkingConfig
	retryCfg   *retry.Config
	timeout    time.Duration
	interval   time.Duration
	logger     *zap.Logger
}

// NewLinkerService creates a new linker service.
func NewLinkerService(
	messages repositories.MessageRepository,
	projects repositories.ProjectRepository,
	contacts repositories.ContactRepository,
	links repositories.LinkRepository,
	patterns repositories.PatternRepository,
	reviews repositories.ReviewRepository,
	audit repositories.AuditRepository,
	classifier llm.Classifier,
	policy *config.LinkingConfig,
	llmCfg *config.LLMConfig,
	logger *zap.Logger,
) LinkerService {
	return &linkerService{
		messages:   messages,
		projects:   projects,
		contacts:   contacts,
		links:      links,
		patterns:   patterns,
		reviews:    reviews,
		audit:      audit,
		classifier: classifier,
		policy:     policy,
		retryCfg:   retry.DefaultConfig().WithMaxRetries(llmCfg.MaxRetries),
		timeout:    llmCfg.RequestTimeout(),
		interval:   llmCfg.RequestInterval(),
		logger:     logger.Named("linker"),
	}
}

var _ LinkerService = (*linkerService)(nil)

// Evaluate runs the pipeline for one message.
func (s *linkerService) Evaluate(ctx context.Context, msg *models.Message, suggest bool) ([]models.Candidate, error) {
	projectList, err := s.projects.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return s.evaluate(ctx, msg, projectList, suggest, false)
}

// evaluate applies the consolidated rule pipeline in priority order, falling
// back to LLM classification when no rule fires (or always, in suggest mode).
//
// The internal-domain check runs before any heuristic: every internal employee
// shares the firm's domain, so sender and domain statistics over internal mail
// would manufacture one giant pseudo-project out of ordinary office chatter.
func (s *linkerService) evaluate(ctx context.Context, msg *models.Message, projectList []models.Project, suggest, throttle bool) ([]models.Candidate, error) {
	var candidates []models.Candidate

	if !s.policy.IsInternalSender(msg.Sender) {
		steps := []func(context.Context, *models.Message) ([]models.Candidate, error){
			s.threadCandidates,
			s.patternCandidates,
			s.contactCandidates,
			s.domainCandidates,
		}
		for _, step := range steps {
			found, err := step(ctx, msg)
			if err != nil {
				return nil, err
			}
			if len(found) > 0 {
				candidates = found
				break
			}
		}
	}

	if len(candidates) == 0 || suggest {
		llmCandidates, err := s.classify(ctx, msg, projectList, throttle)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			// In suggest mode a rule hit stands on its own; the model is
			// bonus signal and its failure is only logged.
			if len(candidates) > 0 {
				s.logger.Warn("Suggest-mode classification failed, keeping rule candidates",
					zap.String("message_id", msg.MessageID), zap.Error(err))
				return candidates, nil
			}
			return nil, fmt.Errorf("%w: %v", apperrors.ErrClassification, err)
		}
		candidates = mergeCandidates(candidates, llmCandidates)
	}

	return candidates, nil
}

// threadCandidates inherits high-confidence links from sibling messages in the
// same conversation thread. Inheritance never crosses threads.
func (s *linkerService) threadCandidates(ctx context.Context, msg *models.Message) ([]models.Candidate, error) {
	if msg.ThreadID == "" {
		return nil, nil
	}
	threadLinks, err := s.links.ThreadLinks(ctx, msg.ThreadID, msg.MessageID, s.policy.ThreadInheritThreshold)
	if err != nil {
		return nil, fmt.Errorf("thread links: %w", err)
	}

	var candidates []models.Candidate
	seen := make(map[string]bool)
	for _, l := range threadLinks {
		if seen[l.ProjectCode] {
			continue
		}
		seen[l.ProjectCode] = true
		candidates = append(candidates, models.Candidate{
			ProjectCode: l.ProjectCode,
			Confidence:  l.Confidence,
			Method:      models.MethodThreadInheritance,
			Evidence:    fmt.Sprintf("inherited from message %s in the same thread", l.MessageID),
		})
	}
	return candidates, nil
}

// patternCandidates applies learned sender patterns. The occurrence gate keeps
// one-off emails from seeding spurious rules.
func (s *linkerService) patternCandidates(ctx context.Context, msg *models.Message) ([]models.Candidate, error) {
	senderPatterns, err := s.patterns.GetBySender(ctx, msg.Sender)
	if err != nil {
		return nil, fmt.Errorf("patterns for sender: %w", err)
	}

	var candidates []models.Candidate
	for _, p := range senderPatterns {
		if p.Occurrences < s.policy.MinPatternOccurrences {
			continue
		}
		candidates = append(candidates, models.Candidate{
			ProjectCode: p.ProjectCode,
			Confidence:  p.Confidence,
			Method:      models.MethodSenderFrequency,
			Evidence:    fmt.Sprintf("sender previously linked to %s %d times", p.ProjectCode, p.Occurrences),
		})
	}
	return candidates, nil
}

// contactCandidates matches a sender who is a known contact on exactly one
// project. Ambiguous contacts produce nothing.
func (s *linkerService) contactCandidates(ctx context.Context, msg *models.Message) ([]models.Candidate, error) {
	codes, err := s.contacts.ProjectCodesForEmail(ctx, msg.Sender)
	if err != nil {
		return nil, fmt.Errorf("contact projects: %w", err)
	}
	if len(codes) != 1 {
		return nil, nil
	}
	return []models.Candidate{{
		ProjectCode: codes[0],
		Confidence:  s.policy.ContactMatchConfidence,
		Method:      models.MethodContactMatch,
		Evidence:    fmt.Sprintf("sender is a known contact for %s", codes[0]),
	}}, nil
}

// domainCandidates matches when the sender's domain has only ever linked to a
// single project.
func (s *linkerService) domainCandidates(ctx context.Context, msg *models.Message) ([]models.Candidate, error) {
	domain := msg.SenderDomain()
	if domain == "" {
		return nil, nil
	}
	codes, err := s.links.DomainProjects(ctx, domain)
	if err != nil {
		return nil, fmt.Errorf("domain projects: %w", err)
	}
	if len(codes) != 1 {
		return nil, nil
	}
	return []models.Candidate{{
		ProjectCode: codes[0],
		Confidence:  s.policy.DomainMatchConfidence,
		Method:      models.MethodDomainPattern,
		Evidence:    fmt.Sprintf("domain %s maps only to %s", domain, codes[0]),
	}}, nil
}

// classify consults the model, with a per-call timeout and bounded retry for
// transient failures. throttle pauses after the call to space out batch
// traffic; single-message lookups skip the pause.
func (s *linkerService) classify(ctx context.Context, msg *models.Message, projectList []models.Project, throttle bool) ([]models.Candidate, error) {
	req := &llm.ClassifyRequest{
		Sender:   msg.Sender,
		Subject:  msg.Subject,
		Body:     msg.Body,
		Projects: projectList,
	}

	var result *llm.ClassifyResult
	err := retry.DoIfRetryable(ctx, s.retryCfg, func() error {
		callCtx := ctx
		if s.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}
		var callErr error
		result, callErr = s.classifier.ClassifyMessage(callCtx, req)
		return callErr
	})
	if throttle && s.interval > 0 {
		select {
		case <-time.After(s.interval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	evidence := result.Raw
	if runes := []rune(evidence); len(runes) > 200 {
		evidence = string(runes[:200])
	}

	var candidates []models.Candidate
	for _, code := range result.ProjectCodes {
		candidates = append(candidates, models.Candidate{
			ProjectCode: code,
			Confidence:  s.policy.LLMMatchConfidence,
			Method:      models.MethodLLMClassification,
			Evidence:    fmt.Sprintf("model answer: %s", evidence),
		})
	}
	return candidates, nil
}

// mergeCandidates appends model candidates after rule candidates, dropping
// duplicates for the same project. Rule provenance wins on conflict.
func mergeCandidates(rules, llmCandidates []models.Candidate) []models.Candidate {
	merged := rules
	seen := make(map[string]bool, len(rules))
	for _, c := range rules {
		seen[c.ProjectCode] = true
	}
	for _, c := range llmCandidates {
		if seen[c.ProjectCode] {
			continue
		}
		seen[c.ProjectCode] = true
		merged = append(merged, c)
	}
	return merged
}

// ProcessBatch pulls unlinked messages and applies the acceptance policy.
func (s *linkerService) ProcessBatch(ctx context.Context, opts BatchOptions) (*BatchResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = s.policy.BatchSize
	}

	projectList, err := s.projects.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}

	msgs, err := s.messages.Unlinked(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("unlinked messages: %w", err)
	}

	result := &BatchResult{}
	for i := range msgs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		msg := &msgs[i]
		result.Processed++

		candidates, err := s.evaluate(ctx, msg, projectList, opts.Suggest, true)
		if err != nil {
			if errors.Is(err, apperrors.ErrClassification) {
				// Skip and retry next cycle; the ledger feeds alerting.
				result.Failures++
				if !opts.DryRun {
					if recErr := s.audit.RecordClassificationFailure(ctx, msg.MessageID, err); recErr != nil {
						return result, recErr
					}
				}
				s.logger.Warn("Classification failed, message skipped",
					zap.String("message_id", msg.MessageID), zap.Error(err))
				continue
			}
			return result, err
		}

		if !opts.DryRun {
			if err := s.audit.ClearClassificationFailure(ctx, msg.MessageID); err != nil {
				return result, err
			}
		}

		if len(candidates) == 0 {
			// A message matching nothing is a normal outcome, not an error.
			result.Unlinked++
			continue
		}

		linked, queued, err := s.accept(ctx, msg, candidates, opts.DryRun)
		if err != nil {
			return result, err
		}
		result.AutoLinked += linked
		result.QueuedForReview += queued
		if linked == 0 && queued == 0 {
			result.Unlinked++
		}
	}

	s.logger.Info("Linker batch complete",
		zap.Int("processed", result.Processed),
		zap.Int("auto_linked", result.AutoLinked),
		zap.Int("queued_for_review", result.QueuedForReview),
		zap.Int("unlinked", result.Unlinked),
		zap.Int("failures", result.Failures))
	return result, nil
}

// accept applies the acceptance policy to a message's candidates. Candidates at
// or above the auto-link threshold targeting an active project are written;
// everything else is queued for review. All writes are INSERT OR IGNORE, so a
// second run over the same input is a no-op.
func (s *linkerService) accept(ctx context.Context, msg *models.Message, candidates []models.Candidate, dryRun bool) (linked, queued int, err error) {
	for _, c := range candidates {
		project, err := s.projects.GetByCode(ctx, c.ProjectCode)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				s.logger.Warn("Candidate references unknown project, dropped",
					zap.String("message_id", msg.MessageID),
					zap.String("project_code", c.ProjectCode))
				continue
			}
			return linked, queued, err
		}

		autoLink := c.Confidence >= s.policy.AutoLinkThreshold && project.IsActive()
		if dryRun {
			s.logger.Info("Dry run: candidate",
				zap.String("message_id", msg.MessageID),
				zap.String("project_code", c.ProjectCode),
				zap.Float64("confidence", c.Confidence),
				zap.String("method", string(c.Method)),
				zap.Bool("would_auto_link", autoLink))
			if autoLink {
				linked++
			} else {
				queued++
			}
			continue
		}

		if autoLink {
			inserted, err := s.links.InsertIgnore(ctx, &models.Link{
				MessagePK:   msg.ID,
				ProjectPK:   project.ID,
				MessageID:   msg.MessageID,
				ProjectCode: project.Code,
				Confidence:  c.Confidence,
				Method:      c.Method,
				Evidence:    c.Evidence,
			})
			if err != nil {
				return linked, queued, err
			}
			if inserted {
				linked++
			}
			continue
		}

		evidence := c.Evidence
		if !project.IsActive() {
			evidence = fmt.Sprintf("%s (project status: %s)", evidence, project.Status)
		}
		inserted, err := s.reviews.InsertIgnore(ctx, &models.PendingLink{
			MessageID:   msg.MessageID,
			ProjectCode: project.Code,
			Confidence:  c.Confidence,
			Method:      c.Method,
			Evidence:    evidence,
		})
		if err != nil {
			return linked, queued, err
		}
		if inserted {
			queued++
		}
	}
	return linked, queued, nil
}
