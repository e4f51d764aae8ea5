package inventory

import "github.com/shopspring/decimal"

// DefaultUnitRelation names the read-only view that exposes live unit inventory.
const DefaultUnitRelation = "vista_stock_unidades"

// Project is a real-estate development. Projects are managed elsewhere; this service only reads them.
type Project struct {
	ID     string `gorm:"column:id;primaryKey;size:64;not null"`
	Nombre string `gorm:"column:nombre;size:190;not null"`
	Activo bool   `gorm:"column:activo;not null;default:true;index"`
}

// TableName provides the explicit table binding for GORM.
func (Project) TableName() string {
	return "proyectos"
}

// Unit is one row of the live inventory view. Status is free text maintained upstream.
type Unit struct {
	ID          string              `gorm:"column:id;primaryKey;size:64;not null"`
	SectorID    string              `gorm:"column:sector_id;size:64"`
	ProjectName string              `gorm:"column:proyecto;size:190;not null;index"`
	Type        string              `gorm:"column:tipo;size:120"`
	Status      *string             `gorm:"column:estado;size:120"`
	PriceUSD    decimal.NullDecimal `gorm:"column:precio_usd;type:decimal(18,2)"`
	PricePerM2  decimal.NullDecimal `gorm:"column:usd_m2;type:decimal(14,2)"`
	AreaM2      decimal.NullDecimal `gorm:"column:m2_totales;type:decimal(14,2)"`
}

// TableName provides the default relation binding for GORM.
func (Unit) TableName() string {
	return DefaultUnitRelation
}

// StatusText returns the raw status label, empty when the view has no status for the unit.
func (u Unit) StatusText() string {
	if u.Status == nil {
		return ""
	}
	return *u.Status
}

// Price returns the list price, zero when unknown.
func (u Unit) Price() decimal.Decimal {
	if !u.PriceUSD.Valid {
		return decimal.Zero
	}
	return u.PriceUSD.Decimal
}

// Area returns the unit surface in m². When the view lacks it, the surface is derived from price and price per m².
func (u Unit) Area() decimal.Decimal {
	if u.AreaM2.Valid {
		return u.AreaM2.Decimal
	}
	if u.PriceUSD.Valid && u.PricePerM2.Valid && !u.PricePerM2.Decimal.IsZero() {
		return u.PriceUSD.Decimal.Div(u.PricePerM2.Decimal).Round(2)
	}
	return decimal.Zero
}
