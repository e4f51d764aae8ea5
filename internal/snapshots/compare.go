package snapshots

import (
	"context"
	"fmt"
	"time"
)

// ComparisonRequest selects the two dates to compare. An empty Kind compares headers of any kind.
type ComparisonRequest struct {
	Current  time.Time
	Previous time.Time
	Kind     Kind
}

// Compare aligns the headers of two dates by project. The current date drives the result:
// projects that only exist on the previous date are omitted, and projects missing on the
// previous date get nil Previous and Difference.
func (s *Service) Compare(ctx context.Context, request ComparisonRequest) ([]ProjectComparison, error) {
	if err := s.ready(opCompare); err != nil {
		return nil, err
	}
	if request.Kind != "" && request.Kind != KindDaily && request.Kind != KindMonthly {
		return nil, newServiceError(opCompare, "invalid_kind", fmt.Errorf("%w: %q", ErrInvalidKind, request.Kind))
	}

	current, err := s.ListByDate(ctx, request.Current)
	if err != nil {
		return nil, newServiceError(opCompare, "current_query_failed", err)
	}
	previous, err := s.ListByDate(ctx, request.Previous)
	if err != nil {
		return nil, newServiceError(opCompare, "previous_query_failed", err)
	}

	previousByProject := indexByProject(previous, request.Kind)
	seen := make(map[string]struct{}, len(current))
	comparisons := make([]ProjectComparison, 0, len(current))
	for _, header := range current {
		if !matchesKind(header, request.Kind) {
			continue
		}
		if _, duplicate := seen[header.ProjectID]; duplicate {
			continue
		}
		seen[header.ProjectID] = struct{}{}

		comparison := ProjectComparison{
			ProjectID:   header.ProjectID,
			ProjectName: header.Project.Nombre,
			Current:     countsOf(header),
		}
		if prior, found := previousByProject[header.ProjectID]; found {
			priorCounts := countsOf(prior)
			comparison.Previous = &priorCounts
			comparison.Difference = &Delta{
				Disponibles: comparison.Current.Disponibles - priorCounts.Disponibles,
				Reservadas:  comparison.Current.Reservadas - priorCounts.Reservadas,
				Vendidas:    comparison.Current.Vendidas - priorCounts.Vendidas,
			}
		}
		comparisons = append(comparisons, comparison)
	}
	return comparisons, nil
}

// indexByProject keeps the first header per project, which is the newest given ListByDate ordering.
func indexByProject(headers []Snapshot, kind Kind) map[string]Snapshot {
	index := make(map[string]Snapshot, len(headers))
	for _, header := range headers {
		if !matchesKind(header, kind) {
			continue
		}
		if _, exists := index[header.ProjectID]; exists {
			continue
		}
		index[header.ProjectID] = header
	}
	return index
}

func matchesKind(header Snapshot, kind Kind) bool {
	return kind == "" || header.Tipo == kind
}

func countsOf(header Snapshot) Counts {
	return Counts{
		Disponibles:   header.Disponibles,
		Reservadas:    header.Reservadas,
		Vendidas:      header.Vendidas,
		ValorStockUSD: header.ValorStockUSD,
	}
}
