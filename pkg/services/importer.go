package services

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/atelier-ops/link-engine/pkg/models"
	"github.com/atelier-ops/link-engine/pkg/repositories"
)

// SeedFile is the YAML shape the project/contact exports are delivered in.
type SeedFile struct {
	Projects []SeedProject `yaml:"projects"`
	Contacts []SeedContact `yaml:"contacts"`
}

// SeedProject is one project row in a seed file.
type SeedProject struct {
	Code   string `yaml:"code"`
	Name   string `yaml:"name"`
	Status string `yaml:"status"`
}

// SeedContact is one contact row in a seed file.
type SeedContact struct {
	Email    string   `yaml:"email"`
	Name     string   `yaml:"name"`
	Company  string   `yaml:"company"`
	Projects []string `yaml:"projects"`
}

// ImportResult summarizes one import run.
type ImportResult struct {
	Projects int `json:"projects"`
	Contacts int `json:"contacts"`
}

// ImporterService loads project and contact seed files.
// Imports upsert on business keys (project code, contact email), so re-running
// the same file is a no-op.
type ImporterService interface {
	ImportFile(ctx context.Context, path string) (*ImportResult, error)
	Import(ctx context.Context, seed *SeedFile) (*ImportResult, error)
}

type importerService struct {
	projects repositories.ProjectRepository
	contacts repositories.ContactRepository
	logger   *zap.Logger
}

// NewImporterService creates a new importer service.
func NewImporterService(
	projects repositories.ProjectRepository,
	contacts repositories.ContactRepository,
	logger *zap.Logger,
) ImporterService {
	return &importerService{
		projects: projects,
		contacts: contacts,
		logger:   logger.Named("importer"),
	}
}

var _ ImporterService = (*importerService)(nil)

// ImportFile reads and imports a YAML seed file.
func (s *importerService) ImportFile(ctx context.Context, path string) (*ImportResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}

	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	return s.Import(ctx, &seed)
}

// Import upserts the seed data.
func (s *importerService) Import(ctx context.Context, seed *SeedFile) (*ImportResult, error) {
	result := &ImportResult{}

	for _, p := range seed.Projects {
		if p.Code == "" {
			return result, fmt.Errorf("project with empty code in seed file")
		}
		if err := s.projects.Upsert(ctx, &models.Project{
			Code:   p.Code,
			Name:   p.Name,
			Status: p.Status,
		}); err != nil {
			return result, err
		}
		result.Projects++
	}

	for _, c := range seed.Contacts {
		if err := s.contacts.Upsert(ctx, &models.Contact{
			Email:        c.Email,
			Name:         c.Name,
			Company:      c.Company,
			ProjectCodes: c.Projects,
		}); err != nil {
			return result, err
		}
		result.Contacts++
	}

	s.logger.Info("Seed import complete",
		zap.Int("projects", result.Projects),
		zap.Int("contacts", result.Contacts))
	return result, nil
}
