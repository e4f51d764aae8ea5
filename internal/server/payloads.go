package server

import (
	"time"

	"github.com/appminuta/mapa-ventas/internal/snapshots"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

type projectPayload struct {
	ID     string `json:"id"`
	Nombre string `json:"nombre"`
}

type snapshotPayload struct {
	ID            string          `json:"id"`
	Fecha         string          `json:"fecha"`
	Tipo          string          `json:"tipo"`
	ProyectoID    string          `json:"proyectoId"`
	Proyecto      projectPayload  `json:"proyecto"`
	TotalUnidades int             `json:"totalUnidades"`
	Disponibles   int             `json:"disponibles"`
	Reservadas    int             `json:"reservadas"`
	Vendidas      int             `json:"vendidas"`
	NoDisponibles int             `json:"noDisponibles"`
	ValorStockUSD decimal.Decimal `json:"valorStockUsd"`
	M2Stock       decimal.Decimal `json:"m2Stock"`
	CreatedAt     time.Time       `json:"createdAt"`
}

type detailPayload struct {
	UnidadID       string          `json:"unidadId"`
	SectorID       string          `json:"sectorId"`
	Proyecto       string          `json:"proyecto"`
	TipoUnidad     string          `json:"tipoUnidad"`
	Estado         string          `json:"estado"`
	PrecioUSD      decimal.Decimal `json:"precioUsd"`
	USDm2          decimal.Decimal `json:"usdM2"`
	EstadoAnterior *string         `json:"estadoAnterior"`
	DiasEnEstado   int             `json:"diasEnEstado"`
}

type snapshotDetailResponse struct {
	Snapshot snapshotPayload `json:"snapshot"`
	Detalle  []detailPayload `json:"detalle"`
}

type projectSummaryPayload struct {
	SnapshotID    string          `json:"snapshotId"`
	ProyectoID    string          `json:"proyectoId"`
	Proyecto      string          `json:"proyecto"`
	TotalUnidades int             `json:"totalUnidades"`
	Disponibles   int             `json:"disponibles"`
	Reservadas    int             `json:"reservadas"`
	Vendidas      int             `json:"vendidas"`
	NoDisponibles int             `json:"noDisponibles"`
	ValorStockUSD decimal.Decimal `json:"valorStockUsd"`
}

type projectRefPayload struct {
	ProyectoID string `json:"proyectoId"`
	Proyecto   string `json:"proyecto"`
	Error      string `json:"error,omitempty"`
}

type generationPayload struct {
	Fecha       string                  `json:"fecha"`
	Tipo        string                  `json:"tipo"`
	Procesados  int                     `json:"procesados"`
	Proyectos   []projectSummaryPayload `json:"proyectos"`
	Omitidos    []projectRefPayload     `json:"omitidos"`
	Fallidos    []projectRefPayload     `json:"fallidos"`
	Pendientes  []projectRefPayload     `json:"pendientes"`
	GeneratedAt *time.Time              `json:"generatedAt,omitempty"`
}

type countsPayload struct {
	Disponibles   int             `json:"disponibles"`
	Reservadas    int             `json:"reservadas"`
	Vendidas      int             `json:"vendidas"`
	ValorStockUSD decimal.Decimal `json:"valorStockUsd"`
}

type deltaPayload struct {
	Disponibles int `json:"disponibles"`
	Reservadas  int `json:"reservadas"`
	Vendidas    int `json:"vendidas"`
}

type comparisonPayload struct {
	ProyectoID string         `json:"proyectoId"`
	Proyecto   string         `json:"proyecto"`
	Actual     countsPayload  `json:"actual"`
	Anterior   *countsPayload `json:"anterior"`
	Diferencia *deltaPayload  `json:"diferencia"`
}

type unitHistoryPayload struct {
	SnapshotID     string          `json:"snapshotId"`
	Fecha          string          `json:"fecha"`
	Tipo           string          `json:"tipo"`
	Proyecto       string          `json:"proyecto"`
	Estado         string          `json:"estado"`
	EstadoAnterior *string         `json:"estadoAnterior"`
	DiasEnEstado   int             `json:"diasEnEstado"`
	PrecioUSD      decimal.Decimal `json:"precioUsd"`
}

type heartbeatPayload struct {
	Source    string `json:"source"`
	Timestamp string `json:"timestamp"`
}

func formatDate(value time.Time) string {
	return value.UTC().Format(dateLayout)
}

func newSnapshotPayload(header snapshots.Snapshot) snapshotPayload {
	projectName := header.Project.Nombre
	return snapshotPayload{
		ID:            header.ID,
		Fecha:         formatDate(header.Fecha),
		Tipo:          string(header.Tipo),
		ProyectoID:    header.ProjectID,
		Proyecto:      projectPayload{ID: header.ProjectID, Nombre: projectName},
		TotalUnidades: header.TotalUnidades,
		Disponibles:   header.Disponibles,
		Reservadas:    header.Reservadas,
		Vendidas:      header.Vendidas,
		NoDisponibles: header.NoDisponibles,
		ValorStockUSD: header.ValorStockUSD,
		M2Stock:       header.M2Stock,
		CreatedAt:     header.CreatedAt.UTC(),
	}
}

func newSnapshotPayloads(headers []snapshots.Snapshot) []snapshotPayload {
	payloads := make([]snapshotPayload, 0, len(headers))
	for _, header := range headers {
		payloads = append(payloads, newSnapshotPayload(header))
	}
	return payloads
}

func newDetailPayloads(details []snapshots.SnapshotDetail) []detailPayload {
	payloads := make([]detailPayload, 0, len(details))
	for _, detail := range details {
		payloads = append(payloads, detailPayload{
			UnidadID:       detail.UnidadID,
			SectorID:       detail.SectorID,
			Proyecto:       detail.Proyecto,
			TipoUnidad:     detail.TipoUnidad,
			Estado:         detail.Estado,
			PrecioUSD:      detail.PrecioUSD,
			USDm2:          detail.USDm2,
			EstadoAnterior: detail.EstadoAnterior,
			DiasEnEstado:   detail.DiasEnEstado,
		})
	}
	return payloads
}

func newGenerationPayload(summary snapshots.GenerationSummary) generationPayload {
	payload := generationPayload{
		Fecha:      formatDate(summary.Fecha),
		Tipo:       string(summary.Tipo),
		Procesados: summary.Processed,
		Proyectos:  make([]projectSummaryPayload, 0, len(summary.Projects)),
		Omitidos:   make([]projectRefPayload, 0, len(summary.Skipped)),
		Fallidos:   make([]projectRefPayload, 0, len(summary.Failed)),
		Pendientes: make([]projectRefPayload, 0, len(summary.Pending)),
	}
	for _, project := range summary.Projects {
		payload.Proyectos = append(payload.Proyectos, projectSummaryPayload{
			SnapshotID:    project.SnapshotID,
			ProyectoID:    project.ProjectID,
			Proyecto:      project.ProjectName,
			TotalUnidades: project.TotalUnidades,
			Disponibles:   project.Disponibles,
			Reservadas:    project.Reservadas,
			Vendidas:      project.Vendidas,
			NoDisponibles: project.NoDisponibles,
			ValorStockUSD: project.ValorStockUSD,
		})
	}
	for _, ref := range summary.Skipped {
		payload.Omitidos = append(payload.Omitidos, projectRefPayload{ProyectoID: ref.ProjectID, Proyecto: ref.ProjectName})
	}
	for _, failure := range summary.Failed {
		payload.Fallidos = append(payload.Fallidos, projectRefPayload{
			ProyectoID: failure.ProjectID,
			Proyecto:   failure.ProjectName,
			Error:      failure.Reason,
		})
	}
	for _, ref := range summary.Pending {
		payload.Pendientes = append(payload.Pendientes, projectRefPayload{ProyectoID: ref.ProjectID, Proyecto: ref.ProjectName})
	}
	return payload
}

func newCountsPayload(counts snapshots.Counts) countsPayload {
	return countsPayload{
		Disponibles:   counts.Disponibles,
		Reservadas:    counts.Reservadas,
		Vendidas:      counts.Vendidas,
		ValorStockUSD: counts.ValorStockUSD,
	}
}

func newComparisonPayloads(comparisons []snapshots.ProjectComparison) []comparisonPayload {
	payloads := make([]comparisonPayload, 0, len(comparisons))
	for _, comparison := range comparisons {
		payload := comparisonPayload{
			ProyectoID: comparison.ProjectID,
			Proyecto:   comparison.ProjectName,
			Actual:     newCountsPayload(comparison.Current),
		}
		if comparison.Previous != nil {
			previous := newCountsPayload(*comparison.Previous)
			payload.Anterior = &previous
		}
		if comparison.Difference != nil {
			payload.Diferencia = &deltaPayload{
				Disponibles: comparison.Difference.Disponibles,
				Reservadas:  comparison.Difference.Reservadas,
				Vendidas:    comparison.Difference.Vendidas,
			}
		}
		payloads = append(payloads, payload)
	}
	return payloads
}

func newUnitHistoryPayloads(entries []snapshots.UnitHistoryEntry) []unitHistoryPayload {
	payloads := make([]unitHistoryPayload, 0, len(entries))
	for _, entry := range entries {
		payloads = append(payloads, unitHistoryPayload{
			SnapshotID:     entry.SnapshotID,
			Fecha:          formatDate(entry.Fecha),
			Tipo:           string(entry.Tipo),
			Proyecto:       entry.ProjectName,
			Estado:         entry.Estado,
			EstadoAnterior: entry.EstadoAnterior,
			DiasEnEstado:   entry.DiasEnEstado,
			PrecioUSD:      entry.PrecioUSD,
		})
	}
	return payloads
}
