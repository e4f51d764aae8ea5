package inventory

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
)

var errMissingDatabase = errors.New("inventory: database handle is required")

// RepositoryConfig describes where the live inventory lives.
type RepositoryConfig struct {
	Database *gorm.DB
	// UnitRelation overrides the view name; empty means DefaultUnitRelation.
	UnitRelation string
}

// Repository reads projects and live units. It never writes.
type Repository struct {
	db           *gorm.DB
	unitRelation string
}

// NewRepository constructs a read-only inventory repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	relation := strings.TrimSpace(cfg.UnitRelation)
	if relation == "" {
		relation = DefaultUnitRelation
	}
	return &Repository{db: cfg.Database, unitRelation: relation}, nil
}

// ActiveProjects lists active projects ordered by name.
func (r *Repository) ActiveProjects(ctx context.Context) ([]Project, error) {
	var projects []Project
	err := r.db.WithContext(ctx).
		Where("activo = ?", true).
		Order("nombre ASC").
		Order("id ASC").
		Find(&projects).Error
	if err != nil {
		return nil, err
	}
	return projects, nil
}

// UnitsByProject returns every live unit whose project name matches, ordered by unit id.
func (r *Repository) UnitsByProject(ctx context.Context, projectName string) ([]Unit, error) {
	var units []Unit
	err := r.db.WithContext(ctx).
		Table(r.unitRelation).
		Where("proyecto = ?", projectName).
		Order("id ASC").
		Find(&units).Error
	if err != nil {
		return nil, err
	}
	return units, nil
}
