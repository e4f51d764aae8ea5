package database

import (
	"errors"
	"time"

	"github.com/appminuta/mapa-ventas/internal/snapshots"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationSnapshotNaturalKey = "2024-06-01_snapshot_natural_key"
	snapshotNaturalKeyIndex     = "idx_snapshots_stock_key"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationSnapshotNaturalKey, apply: enforceSnapshotNaturalKey},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := migration.apply(tx); err != nil {
				return err
			}
			appliedAt := time.Now().UTC().Unix()
			return tx.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error
		})
		if err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// enforceSnapshotNaturalKey drops duplicated headers for (proyecto_id, fecha, tipo), keeping the newest
// one with its details, and then adds the unique index that prevents new duplicates.
func enforceSnapshotNaturalKey(db *gorm.DB) error {
	var headers []snapshots.Snapshot
	err := db.Select("id", "proyecto_id", "fecha", "tipo", "created_at").
		Order("proyecto_id").
		Order("fecha").
		Order("tipo").
		Order("created_at DESC").
		Order("id DESC").
		Find(&headers).Error
	if err != nil {
		return err
	}

	type naturalKey struct {
		projectID string
		fecha     int64
		tipo      snapshots.Kind
	}
	kept := make(map[naturalKey]struct{}, len(headers))
	var duplicates []string
	for _, header := range headers {
		key := naturalKey{projectID: header.ProjectID, fecha: header.Fecha.Unix(), tipo: header.Tipo}
		if _, exists := kept[key]; exists {
			duplicates = append(duplicates, header.ID)
			continue
		}
		kept[key] = struct{}{}
	}

	if len(duplicates) > 0 {
		if err := db.Where("snapshot_id IN ?", duplicates).Delete(&snapshots.SnapshotDetail{}).Error; err != nil {
			return err
		}
		if err := db.Where("id IN ?", duplicates).Delete(&snapshots.Snapshot{}).Error; err != nil {
			return err
		}
	}

	if db.Migrator().HasIndex(&snapshots.Snapshot{}, snapshotNaturalKeyIndex) {
		return nil
	}
	return db.Exec("CREATE UNIQUE INDEX " + snapshotNaturalKeyIndex + " ON snapshots_stock (proyecto_id, fecha, tipo)").Error
}
