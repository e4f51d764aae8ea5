package snapshots

import (
	"context"
	"time"

	"github.com/appminuta/mapa-ventas/internal/inventory"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var noOpLogger = zap.NewNop()

// InventorySource supplies the live inventory read during generation.
type InventorySource interface {
	ActiveProjects(ctx context.Context) ([]inventory.Project, error)
	UnitsByProject(ctx context.Context, projectName string) ([]inventory.Unit, error)
}

// IDProvider issues snapshot header identifiers.
type IDProvider interface {
	NewID() (string, error)
}

// Notifier is told about every finished generation run, successful or not.
type Notifier interface {
	SnapshotGenerated(summary GenerationSummary)
}

// ServiceConfig describes the dependencies of the snapshot engine.
type ServiceConfig struct {
	Database   *gorm.DB
	Inventory  InventorySource
	IDProvider IDProvider
	Notifier   Notifier
	Clock      func() time.Time
	// Location is the business timezone that decides which calendar day "now" belongs to.
	Location *time.Location
	// Concurrency bounds how many projects are written in parallel; values below 1 mean sequential.
	Concurrency int
	Logger      *zap.Logger
}

// Service generates, stores and compares stock snapshots.
type Service struct {
	db          *gorm.DB
	inventory   InventorySource
	idProvider  IDProvider
	notifier    Notifier
	clock       func() time.Time
	location    *time.Location
	concurrency int
	logger      *zap.Logger
}

// NewService validates the configuration and constructs the snapshot engine.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", ErrMissingDatabase)
	}
	if cfg.Inventory == nil {
		return nil, newServiceError(opServiceNew, "missing_inventory", ErrMissingInventory)
	}

	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = NewUUIDProvider()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	location := cfg.Location
	if location == nil {
		location = time.UTC
	}
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:          cfg.Database,
		inventory:   cfg.Inventory,
		idProvider:  idProvider,
		notifier:    cfg.Notifier,
		clock:       clock,
		location:    location,
		concurrency: concurrency,
		logger:      logger,
	}, nil
}

// SnapshotDate returns the calendar day a run started now would be stamped with, as UTC midnight.
func (s *Service) SnapshotDate() time.Time {
	return CalendarDay(s.clock().In(s.location))
}

// CalendarDay truncates a wall-clock time to its calendar date, expressed as UTC midnight.
// All snapshot dates are stored and compared in this form.
func CalendarDay(moment time.Time) time.Time {
	year, month, day := moment.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func (s *Service) ready(operation string) error {
	if s == nil || s.db == nil {
		s.logError(operation, "missing_database", ErrMissingDatabase)
		return newServiceError(operation, "missing_database", ErrMissingDatabase)
	}
	return nil
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil {
		return noOpLogger
	}
	if s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("snapshots service error", attrs...)
}
