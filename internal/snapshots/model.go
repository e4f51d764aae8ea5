package snapshots

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/appminuta/mapa-ventas/internal/inventory"
	"github.com/shopspring/decimal"
)

// Kind distinguishes the daily snapshot from the month-end one.
type Kind string

const (
	// KindDaily is produced every night.
	KindDaily Kind = "DIARIO"
	// KindMonthly is produced on the last day of each month.
	KindMonthly Kind = "MENSUAL"
)

// ErrInvalidKind indicates an unknown snapshot kind.
var ErrInvalidKind = errors.New("snapshots: invalid snapshot kind")

// ParseKind accepts the wire names (DIARIO, MENSUAL) and their English aliases, case-insensitively.
// An empty value yields KindDaily.
func ParseKind(rawInput string) (Kind, error) {
	switch strings.ToUpper(strings.TrimSpace(rawInput)) {
	case "", string(KindDaily), "DAILY":
		return KindDaily, nil
	case string(KindMonthly), "MONTHLY":
		return KindMonthly, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, rawInput)
	}
}

// Snapshot is the per-project header of one point-in-time inventory snapshot.
type Snapshot struct {
	ID            string            `gorm:"column:id;primaryKey;size:64;not null"`
	Fecha         time.Time         `gorm:"column:fecha;not null;index:idx_snapshots_stock_fecha;index:idx_snapshots_stock_proyecto_fecha,priority:2"`
	Tipo          Kind              `gorm:"column:tipo;size:16;not null"`
	ProjectID     string            `gorm:"column:proyecto_id;size:64;not null;index:idx_snapshots_stock_proyecto_fecha,priority:1"`
	Project       inventory.Project `gorm:"foreignKey:ProjectID;references:ID;-:migration"`
	TotalUnidades int               `gorm:"column:total_unidades;not null;default:0"`
	Disponibles   int               `gorm:"column:disponibles;not null;default:0"`
	Reservadas    int               `gorm:"column:reservadas;not null;default:0"`
	Vendidas      int               `gorm:"column:vendidas;not null;default:0"`
	NoDisponibles int               `gorm:"column:no_disponibles;not null;default:0"`
	ValorStockUSD decimal.Decimal   `gorm:"column:valor_stock_usd;type:decimal(18,2);not null"`
	M2Stock       decimal.Decimal   `gorm:"column:m2_stock;type:decimal(14,2);not null"`
	CreatedAt     time.Time         `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Snapshot) TableName() string {
	return "snapshots_stock"
}

// SnapshotDetail is the append-only state of one unit inside a snapshot.
// Project name and unit type are copied as text so history survives renames upstream.
type SnapshotDetail struct {
	ID             uint64          `gorm:"column:id;primaryKey;autoIncrement"`
	SnapshotID     string          `gorm:"column:snapshot_id;size:64;not null;index"`
	UnidadID       string          `gorm:"column:unidad_id;size:64;not null;index"`
	SectorID       string          `gorm:"column:sector_id;size:64"`
	Proyecto       string          `gorm:"column:proyecto;size:190;not null"`
	TipoUnidad     string          `gorm:"column:tipo_unidad;size:120"`
	Estado         string          `gorm:"column:estado;size:120;not null;default:''"`
	PrecioUSD      decimal.Decimal `gorm:"column:precio_usd;type:decimal(18,2);not null"`
	USDm2          decimal.Decimal `gorm:"column:usd_m2;type:decimal(14,2);not null"`
	EstadoAnterior *string         `gorm:"column:estado_anterior;size:120"`
	DiasEnEstado   int             `gorm:"column:dias_en_estado;not null;default:1"`
}

// TableName provides the explicit table binding for GORM.
func (SnapshotDetail) TableName() string {
	return "snapshots_stock_detalle"
}

// ProjectSummary reports what one generation run wrote for a project.
type ProjectSummary struct {
	SnapshotID    string
	ProjectID     string
	ProjectName   string
	TotalUnidades int
	Disponibles   int
	Reservadas    int
	Vendidas      int
	NoDisponibles int
	ValorStockUSD decimal.Decimal
}

// ProjectRef names a project that was not snapshotted.
type ProjectRef struct {
	ProjectID   string
	ProjectName string
}

// ProjectFailure names a project whose snapshot could not be written.
type ProjectFailure struct {
	ProjectRef
	Reason string
}

// GenerationSummary reports one generation run.
type GenerationSummary struct {
	Fecha     time.Time
	Tipo      Kind
	Processed int
	Projects  []ProjectSummary
	Skipped   []ProjectRef
	Failed    []ProjectFailure
	Pending   []ProjectRef
}

// Counts holds the per-status counters compared between two snapshots.
type Counts struct {
	Disponibles   int
	Reservadas    int
	Vendidas      int
	ValorStockUSD decimal.Decimal
}

// Delta holds current minus previous for each compared counter.
type Delta struct {
	Disponibles int
	Reservadas  int
	Vendidas    int
}

// ProjectComparison is one row of the comparator output. Previous and Difference are nil when the
// project had no snapshot on the previous date.
type ProjectComparison struct {
	ProjectID   string
	ProjectName string
	Current     Counts
	Previous    *Counts
	Difference  *Delta
}

// UnitHistoryEntry is a unit's recorded state in one snapshot.
type UnitHistoryEntry struct {
	SnapshotID     string
	Fecha          time.Time
	Tipo           Kind
	ProjectName    string
	Estado         string
	EstadoAnterior *string
	DiasEnEstado   int
	PrecioUSD      decimal.Decimal
}
