package snapshots

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/appminuta/mapa-ventas/internal/inventory"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const detailBatchSize = 200

type outcomeState int

const (
	outcomePending outcomeState = iota
	outcomeWritten
	outcomeSkipped
	outcomeFailed
)

type projectOutcome struct {
	state   outcomeState
	summary ProjectSummary
	err     error
}

// Generate writes one snapshot per active project with live units, stamped with today's date.
// Projects are independent: a failure stops the projects not yet started, keeps the ones already
// written, and is returned together with the partial summary.
func (s *Service) Generate(ctx context.Context, kind Kind) (GenerationSummary, error) {
	if err := s.ready(opGenerate); err != nil {
		return GenerationSummary{}, err
	}
	if kind == "" {
		kind = KindDaily
	}
	if kind != KindDaily && kind != KindMonthly {
		cause := fmt.Errorf("%w: %q", ErrInvalidKind, kind)
		s.logError(opGenerate, "invalid_kind", cause)
		return GenerationSummary{}, newServiceError(opGenerate, "invalid_kind", cause)
	}

	fecha := s.SnapshotDate()
	summary := GenerationSummary{Fecha: fecha, Tipo: kind}

	projects, err := s.inventory.ActiveProjects(ctx)
	if err != nil {
		s.logError(opGenerate, "projects_query_failed", err)
		return summary, newServiceError(opGenerate, "projects_query_failed", err)
	}

	startedAt := s.clock()
	outcomes, rootErr := s.runProjects(ctx, projects, fecha, kind)
	for index, outcome := range outcomes {
		ref := ProjectRef{ProjectID: projects[index].ID, ProjectName: projects[index].Nombre}
		switch outcome.state {
		case outcomeWritten:
			summary.Processed++
			summary.Projects = append(summary.Projects, outcome.summary)
		case outcomeSkipped:
			summary.Skipped = append(summary.Skipped, ref)
		case outcomeFailed:
			summary.Failed = append(summary.Failed, ProjectFailure{ProjectRef: ref, Reason: outcome.err.Error()})
		default:
			summary.Pending = append(summary.Pending, ref)
		}
	}

	if s.notifier != nil {
		s.notifier.SnapshotGenerated(summary)
	}

	runFields := []zap.Field{
		zap.Time("fecha", fecha),
		zap.String("tipo", string(kind)),
		zap.Int("processed", summary.Processed),
		zap.Int("skipped", len(summary.Skipped)),
		zap.Int("failed", len(summary.Failed)),
		zap.Int("pending", len(summary.Pending)),
	}
	if rootErr != nil {
		s.logError(opGenerate, "project_failed", rootErr, runFields...)
		return summary, newServiceError(opGenerate, "project_failed", rootErr)
	}
	if len(summary.Pending) > 0 {
		cause := ctx.Err()
		if cause == nil {
			cause = context.Canceled
		}
		s.logError(opGenerate, "canceled", cause, runFields...)
		return summary, newServiceError(opGenerate, "canceled", cause)
	}

	runFields = append(runFields, zap.Duration("elapsed", s.clock().Sub(startedAt)))
	s.loggerOrDefault().Info("stock snapshot generated", runFields...)
	return summary, nil
}

// runProjects processes projects in order, or on a bounded pool when concurrency allows.
// The first failure cancels every project that has not started yet; those stay pending.
// Projects interrupted by that cancellation are reported as pending too.
func (s *Service) runProjects(ctx context.Context, projects []inventory.Project, fecha time.Time, kind Kind) ([]projectOutcome, error) {
	outcomes := make([]projectOutcome, len(projects))
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		failureMu sync.Mutex
		rootErr   error
	)
	process := func(index int) error {
		if runCtx.Err() != nil {
			return nil
		}
		outcome := s.generateProject(runCtx, projects[index], fecha, kind)
		if outcome.state != outcomeFailed {
			outcomes[index] = outcome
			return nil
		}

		failureMu.Lock()
		defer failureMu.Unlock()
		if rootErr != nil && ctx.Err() == nil && isContextError(outcome.err) {
			outcomes[index] = projectOutcome{state: outcomePending}
			return nil
		}
		outcomes[index] = outcome
		if rootErr == nil {
			rootErr = outcome.err
			cancel()
		}
		return outcome.err
	}

	if s.concurrency == 1 || len(projects) < 2 {
		for index := range projects {
			if err := process(index); err != nil {
				break
			}
		}
		return outcomes, rootErr
	}

	pool := pond.NewPool(s.concurrency)
	for index := range projects {
		pool.SubmitErr(func() error {
			return process(index)
		})
	}
	pool.StopAndWait()
	return outcomes, rootErr
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (s *Service) generateProject(ctx context.Context, project inventory.Project, fecha time.Time, kind Kind) projectOutcome {
	fields := []zap.Field{
		zap.String("project_id", project.ID),
		zap.String("project_name", project.Nombre),
		zap.String("tipo", string(kind)),
	}
	failed := func(reason string, err error) projectOutcome {
		s.logError(opProjectWrite, reason, err, fields...)
		return projectOutcome{state: outcomeFailed, err: newServiceError(opProjectWrite, reason, err)}
	}

	units, err := s.inventory.UnitsByProject(ctx, project.Nombre)
	if err != nil {
		return failed("units_query_failed", err)
	}
	if len(units) == 0 {
		s.loggerOrDefault().Debug("project skipped without live units", fields...)
		return projectOutcome{state: outcomeSkipped}
	}

	tally := tallyUnits(units)
	snapshotID, err := s.idProvider.NewID()
	if err != nil {
		return failed("id_generation_failed", err)
	}

	header := Snapshot{
		ID:            snapshotID,
		Fecha:         fecha,
		Tipo:          kind,
		ProjectID:     project.ID,
		TotalUnidades: tally.total,
		Disponibles:   tally.available,
		Reservadas:    tally.reserved,
		Vendidas:      tally.sold,
		NoDisponibles: tally.unavailable,
		ValorStockUSD: tally.value,
		M2Stock:       tally.area,
	}

	reason := ""
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		previous, err := loadPreviousStates(tx, project.ID, fecha)
		if err != nil {
			reason = "previous_lookup_failed"
			return err
		}

		replaced, err := deleteSameDaySnapshots(tx, project.ID, fecha, kind)
		if err != nil {
			reason = "replace_failed"
			return err
		}
		if replaced > 0 {
			s.loggerOrDefault().Info("replacing same-day snapshot", append(fields, zap.Int("replaced", replaced))...)
		}

		if err := tx.Omit(clause.Associations).Create(&header).Error; err != nil {
			reason = "header_insert_failed"
			return err
		}

		details := buildDetails(snapshotID, project, units, previous)
		if err := tx.CreateInBatches(details, detailBatchSize).Error; err != nil {
			reason = "detail_insert_failed"
			return err
		}
		return nil
	})
	if txErr != nil {
		if reason == "" {
			reason = "transaction_failed"
		}
		return failed(reason, txErr)
	}

	return projectOutcome{
		state: outcomeWritten,
		summary: ProjectSummary{
			SnapshotID:    snapshotID,
			ProjectID:     project.ID,
			ProjectName:   project.Nombre,
			TotalUnidades: tally.total,
			Disponibles:   tally.available,
			Reservadas:    tally.reserved,
			Vendidas:      tally.sold,
			NoDisponibles: tally.unavailable,
			ValorStockUSD: tally.value,
		},
	}
}

// deleteSameDaySnapshots removes the headers and details already written for the natural key
// (project, fecha, tipo) so a re-run replaces them.
func deleteSameDaySnapshots(tx *gorm.DB, projectID string, fecha time.Time, kind Kind) (int, error) {
	var existingIDs []string
	err := tx.Model(&Snapshot{}).
		Where("proyecto_id = ? AND fecha = ? AND tipo = ?", projectID, fecha, kind).
		Pluck("id", &existingIDs).Error
	if err != nil {
		return 0, err
	}
	if len(existingIDs) == 0 {
		return 0, nil
	}
	if err := tx.Where("snapshot_id IN ?", existingIDs).Delete(&SnapshotDetail{}).Error; err != nil {
		return 0, err
	}
	if err := tx.Where("id IN ?", existingIDs).Delete(&Snapshot{}).Error; err != nil {
		return 0, err
	}
	return len(existingIDs), nil
}

func buildDetails(snapshotID string, project inventory.Project, units []inventory.Unit, previous map[string]previousState) []SnapshotDetail {
	details := make([]SnapshotDetail, 0, len(units))
	for _, unit := range units {
		status := unit.StatusText()
		previousStatus, days := nextContinuity(previous, unit.ID, status)

		projectName := unit.ProjectName
		if projectName == "" {
			projectName = project.Nombre
		}
		pricePerM2 := decimal.Zero
		if unit.PricePerM2.Valid {
			pricePerM2 = unit.PricePerM2.Decimal
		}

		details = append(details, SnapshotDetail{
			SnapshotID:     snapshotID,
			UnidadID:       unit.ID,
			SectorID:       unit.SectorID,
			Proyecto:       projectName,
			TipoUnidad:     unit.Type,
			Estado:         status,
			PrecioUSD:      unit.Price(),
			USDm2:          pricePerM2,
			EstadoAnterior: previousStatus,
			DiasEnEstado:   days,
		})
	}
	return details
}
