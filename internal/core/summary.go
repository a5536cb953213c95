package core

import "github.com/shopspring/decimal"

// CategoryShare is the value aggregated for one goods/service type and its
// share of the total budget.
type CategoryShare struct {
	Category   string          `json:"categoria"`
	Value      decimal.Decimal `json:"valor"`
	Percentage float64         `json:"porcentaje"`
}

// DashboardStatistics summarises the active records of a snapshot.
type DashboardStatistics struct {
	TotalActiveRecords  int             `json:"totalRequerimientos"`
	TotalBudget         decimal.Decimal `json:"presupuestoTotal"`
	UniqueSupplierCount int             `json:"totalProveedores"`
	RecordsThisMonth    int             `json:"adquisicionesEsteMes"`
	TopCategories       []CategoryShare `json:"topCategorias"`
}

// HistorySummary summarises the change log of a single record.
type HistorySummary struct {
	TotalChanges      int    `json:"totalCambios"`
	UniqueModifiers   int    `json:"usuariosUnicos"`
	ChangesThisMonth  int    `json:"cambiosEsteMes"`
	MostModifiedField string `json:"campoMasModificado"`
}
