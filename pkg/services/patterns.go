package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/atelier-ops/link-engine/pkg/config"
	"github.com/atelier-ops/link-engine/pkg/models"
	"github.com/atelier-ops/link-engine/pkg/repositories"
)

// PatternRebuildResult summarizes one pattern maintenance run.
type PatternRebuildResult struct {
	Patterns        int `json:"patterns"`
	SendersExcluded int `json:"senders_excluded"`
}

// PatternService recomputes learned sender→project patterns from the current
// set of accepted links. The job is a full, idempotent recompute; there is no
// incremental path.
type PatternService interface {
	Rebuild(ctx context.Context) (*PatternRebuildResult, error)
}

type patternService struct {
	links    repositories.LinkRepository
	patterns repositories.PatternRepository
	policy   *config.LinkingConfig
	logger   *zap.Logger
}

// NewPatternService creates a new pattern maintenance service.
func NewPatternService(
	links repositories.LinkRepository,
	patterns repositories.PatternRepository,
	policy *config.LinkingConfig,
	logger *zap.Logger,
) PatternService {
	return &patternService{
		links:    links,
		patterns: patterns,
		policy:   policy,
		logger:   logger.Named("patterns"),
	}
}

var _ PatternService = (*patternService)(nil)

// Rebuild recomputes the learned pattern table from current links.
// Internal-domain senders are excluded from mining entirely: their statistics
// would dominate every project they ever commented on.
func (s *patternService) Rebuild(ctx context.Context) (*PatternRebuildResult, error) {
	counts, err := s.links.AggregateBySenderProject(ctx)
	if err != nil {
		return nil, fmt.Errorf("aggregate links: %w", err)
	}

	result := &PatternRebuildResult{}
	excluded := make(map[string]bool)
	var rebuilt []models.LearnedPattern
	for _, c := range counts {
		if s.policy.IsInternalSender(c.Sender) {
			if !excluded[c.Sender] {
				excluded[c.Sender] = true
				result.SendersExcluded++
			}
			continue
		}
		rebuilt = append(rebuilt, models.LearnedPattern{
			SenderEmail: c.Sender,
			ProjectCode: c.ProjectCode,
			Occurrences: c.Count,
			Confidence:  patternConfidence(c.Count, c.SenderTotal),
		})
	}

	if err := s.patterns.ReplaceAll(ctx, rebuilt); err != nil {
		return nil, fmt.Errorf("replace patterns: %w", err)
	}

	result.Patterns = len(rebuilt)
	s.logger.Info("Learned patterns rebuilt",
		zap.Int("patterns", result.Patterns),
		zap.Int("senders_excluded", result.SendersExcluded))
	return result, nil
}

// patternConfidence scores a (sender, project) pattern from its occurrence
// count and the share of the sender's linked mail that landed on the project.
// Monotonic in the count, damped for small samples, capped below certainty.
func patternConfidence(count, senderTotal int) float64 {
	if count <= 0 || senderTotal <= 0 {
		return 0
	}
	share := float64(count) / float64(senderTotal)
	damp := float64(count) / float64(count+2)
	confidence := share * damp
	if confidence > 0.95 {
		confidence = 0.95
	}
	return confidence
}
