// Package models contains domain types for link-engine.
package models

import "time"

// Project status constants. Anything other than active means the project should
// not receive automatic links without review.
const (
	ProjectStatusActive   = "active"
	ProjectStatusOnHold   = "on-hold"
	ProjectStatusLost     = "lost"
	ProjectStatusArchived = "archived"
)

// Project is a business entity keyed by its human-assigned code (e.g. "25 BK-033").
//
// ID is the surrogate row id and is regenerated by the external project sync, so
// it must never be used as a durable reference. Code is the durable identifier.
type Project struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsActive reports whether the project may receive automatic links.
func (p *Project) IsActive() bool {
	return p.Status == "" || p.Status == ProjectStatusActive
}

// Contact is a known external correspondent, optionally associated with one or
// more projects by project code.
type Contact struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Company      string    `json:"company"`
	ProjectCodes []string  `json:"project_codes"`
	CreatedAt    time.Time `json:"created_at"`
}
