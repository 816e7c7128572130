package services

import (
	"context"

	"github.com/atelier-ops/link-engine/pkg/models"
	"github.com/atelier-ops/link-engine/pkg/repositories"
)

// StatsService collects table counts for operator tooling.
type StatsService interface {
	Collect(ctx context.Context) (*models.Stats, error)
}

type statsService struct {
	projects repositories.ProjectRepository
	contacts repositories.ContactRepository
	messages repositories.MessageRepository
	links    repositories.LinkRepository
	patterns repositories.PatternRepository
	reviews  repositories.ReviewRepository
	audit    repositories.AuditRepository
}

// NewStatsService creates a new stats service.
func NewStatsService(
	projects repositories.ProjectRepository,
	contacts repositories.ContactRepository,
	messages repositories.MessageRepository,
	links repositories.LinkRepository,
	patterns repositories.PatternRepository,
	reviews repositories.ReviewRepository,
	audit repositories.AuditRepository,
) StatsService {
	return &statsService{
		projects: projects,
		contacts: contacts,
		messages: messages,
		links:    links,
		patterns: patterns,
		reviews:  reviews,
		audit:    audit,
	}
}

var _ StatsService = (*statsService)(nil)

// Collect gathers the current table counts.
func (s *statsService) Collect(ctx context.Context) (*models.Stats, error) {
	stats := &models.Stats{}

	var err error
	if stats.Projects, err = s.projects.Count(ctx); err != nil {
		return nil, err
	}
	if stats.Contacts, err = s.contacts.Count(ctx); err != nil {
		return nil, err
	}
	if stats.Messages, err = s.messages.Count(ctx); err != nil {
		return nil, err
	}
	if stats.UnlinkedMessages, err = s.messages.CountUnlinked(ctx); err != nil {
		return nil, err
	}
	if stats.Links, err = s.links.Count(ctx); err != nil {
		return nil, err
	}
	if stats.LearnedPatterns, err = s.patterns.Count(ctx); err != nil {
		return nil, err
	}
	if stats.PendingReviews, err = s.reviews.CountPending(ctx); err != nil {
		return nil, err
	}
	if stats.ClassificationFailures, err = s.audit.CountClassificationFailures(ctx); err != nil {
		return nil, err
	}

	return stats, nil
}
