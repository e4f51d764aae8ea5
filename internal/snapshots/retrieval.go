package snapshots

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultHistoryLimit = 90
	maxHistoryLimit     = 1000
)

// ListByDate returns every header stamped with the calendar day of fecha, with its project loaded,
// newest first.
func (s *Service) ListByDate(ctx context.Context, fecha time.Time) ([]Snapshot, error) {
	if err := s.ready(opListByDate); err != nil {
		return nil, err
	}
	day := CalendarDay(fecha)

	var headers []Snapshot
	err := s.db.WithContext(ctx).
		Preload("Project").
		Where("fecha = ?", day).
		Order("created_at DESC").
		Order("id DESC").
		Find(&headers).Error
	if err != nil {
		s.logError(opListByDate, "query_failed", err, zap.Time("fecha", day))
		return nil, newServiceError(opListByDate, "query_failed", err)
	}
	return headers, nil
}

// ListByRange returns the headers whose date falls inside [from, to], both ends inclusive,
// ordered by date ascending.
func (s *Service) ListByRange(ctx context.Context, from, to time.Time) ([]Snapshot, error) {
	if err := s.ready(opListByRange); err != nil {
		return nil, err
	}
	start := CalendarDay(from)
	end := CalendarDay(to)
	if start.After(end) {
		return nil, newServiceError(opListByRange, "invalid_range", ErrInvalidRange)
	}

	var headers []Snapshot
	err := s.db.WithContext(ctx).
		Preload("Project").
		Where("fecha >= ? AND fecha <= ?", start, end).
		Order("fecha ASC").
		Order("created_at ASC").
		Find(&headers).Error
	if err != nil {
		s.logError(opListByRange, "query_failed", err, zap.Time("desde", start), zap.Time("hasta", end))
		return nil, newServiceError(opListByRange, "query_failed", err)
	}
	return headers, nil
}

// Details returns a header together with its unit rows ordered by unit id.
func (s *Service) Details(ctx context.Context, snapshotID string) (Snapshot, []SnapshotDetail, error) {
	if err := s.ready(opListDetails); err != nil {
		return Snapshot{}, nil, err
	}

	var header Snapshot
	err := s.db.WithContext(ctx).Preload("Project").Where("id = ?", snapshotID).Take(&header).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Snapshot{}, nil, newServiceError(opListDetails, "not_found", fmt.Errorf("%w: %s", ErrSnapshotNotFound, snapshotID))
	}
	if err != nil {
		s.logError(opListDetails, "header_query_failed", err, zap.String("snapshot_id", snapshotID))
		return Snapshot{}, nil, newServiceError(opListDetails, "header_query_failed", err)
	}

	var details []SnapshotDetail
	err = s.db.WithContext(ctx).
		Where("snapshot_id = ?", snapshotID).
		Order("unidad_id ASC").
		Find(&details).Error
	if err != nil {
		s.logError(opListDetails, "detail_query_failed", err, zap.String("snapshot_id", snapshotID))
		return Snapshot{}, nil, newServiceError(opListDetails, "detail_query_failed", err)
	}
	return header, details, nil
}

// UnitHistory returns the recorded states of one unit across snapshots, newest first.
// A non-positive limit falls back to the default window.
func (s *Service) UnitHistory(ctx context.Context, unitID string, limit int) ([]UnitHistoryEntry, error) {
	if err := s.ready(opUnitHistory); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	db := s.db.WithContext(ctx)
	var headers []Snapshot
	err := db.
		Where("id IN (?)", db.Model(&SnapshotDetail{}).Select("snapshot_id").Where("unidad_id = ?", unitID)).
		Order("fecha DESC").
		Order("created_at DESC").
		Limit(limit).
		Find(&headers).Error
	if err != nil {
		s.logError(opUnitHistory, "header_query_failed", err, zap.String("unidad_id", unitID))
		return nil, newServiceError(opUnitHistory, "header_query_failed", err)
	}
	if len(headers) == 0 {
		return []UnitHistoryEntry{}, nil
	}

	snapshotIDs := make([]string, 0, len(headers))
	for _, header := range headers {
		snapshotIDs = append(snapshotIDs, header.ID)
	}
	var details []SnapshotDetail
	err = db.
		Where("unidad_id = ? AND snapshot_id IN ?", unitID, snapshotIDs).
		Find(&details).Error
	if err != nil {
		s.logError(opUnitHistory, "detail_query_failed", err, zap.String("unidad_id", unitID))
		return nil, newServiceError(opUnitHistory, "detail_query_failed", err)
	}
	bySnapshot := make(map[string]SnapshotDetail, len(details))
	for _, detail := range details {
		bySnapshot[detail.SnapshotID] = detail
	}

	entries := make([]UnitHistoryEntry, 0, len(headers))
	for _, header := range headers {
		detail, found := bySnapshot[header.ID]
		if !found {
			continue
		}
		entries = append(entries, UnitHistoryEntry{
			SnapshotID:     header.ID,
			Fecha:          header.Fecha,
			Tipo:           header.Tipo,
			ProjectName:    detail.Proyecto,
			Estado:         detail.Estado,
			EstadoAnterior: detail.EstadoAnterior,
			DiasEnEstado:   detail.DiasEnEstado,
			PrecioUSD:      detail.PrecioUSD,
		})
	}
	return entries, nil
}
