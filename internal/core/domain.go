package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// The backend API exchanges amounts as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

type (
	// Record is a procurement entry ("adquisición") as exposed by the backend.
	Record struct {
		ID                 int64           `json:"id"`
		Budget             decimal.Decimal `json:"presupuesto"`
		AdministrativeUnit string          `json:"unidadAdministrativa"`
		Category           string          `json:"tipoBienServicio"`
		Quantity           int64           `json:"cantidad"`
		UnitValue          decimal.Decimal `json:"valorUnitario"`
		TotalValue         decimal.Decimal `json:"valorTotal"`
		AcquisitionDate    Date            `json:"fechaAdquisicion"`
		Supplier           string          `json:"proveedor"`
		Documentation      string          `json:"documentacion"`
		Active             bool            `json:"activo"`
		CreatedAt          Timestamp       `json:"fechaCreacion"`
		ModifiedAt         Timestamp       `json:"fechaModificacion"`
	}

	// HistoryEntry is one field change recorded for a record.
	HistoryEntry struct {
		ID        int64     `json:"id"`
		RecordID  int64     `json:"adquisicionId"`
		Field     string    `json:"campoModificado"`
		OldValue  string    `json:"valorAnterior"`
		NewValue  string    `json:"valorNuevo"`
		ChangedAt Timestamp `json:"fechaCambio"`
		ChangedBy string    `json:"modificadoPor"`
	}

	// FieldChange describes a single differing field between two versions of a record.
	FieldChange struct {
		Field    string
		OldValue string
		NewValue string
	}

	// ValidationErrors maps form field names to a human readable problem.
	ValidationErrors map[string]string
)

// Field names as used by the backend contract and the history log.
const (
	FieldBudget             = "presupuesto"
	FieldAdministrativeUnit = "unidadAdministrativa"
	FieldCategory           = "tipoBienServicio"
	FieldQuantity           = "cantidad"
	FieldUnitValue          = "valorUnitario"
	FieldTotalValue         = "valorTotal"
	FieldAcquisitionDate    = "fechaAdquisicion"
	FieldSupplier           = "proveedor"
	FieldDocumentation      = "documentacion"
	FieldActive             = "activo"
)

var (
	ErrNotFound        = errors.New("record not found")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidQuantity = errors.New("invalid quantity")
	ErrInvalidID       = errors.New("invalid record id")
)

func (v ValidationErrors) Error() string {
	fields := make([]string, 0, len(v))
	for f := range v {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+v[f])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Validate checks the rules enforced by the record form.
// It returns ValidationErrors (never a partially filled nil map) or nil.
func (r Record) Validate() error {
	errs := ValidationErrors{}
	if r.Budget.IsNegative() {
		errs[FieldBudget] = "El presupuesto debe ser mayor o igual a 0"
	}
	if strings.TrimSpace(r.AdministrativeUnit) == "" {
		errs[FieldAdministrativeUnit] = "La unidad administrativa es obligatoria"
	}
	if strings.TrimSpace(r.Category) == "" {
		errs[FieldCategory] = "El tipo de bien o servicio es obligatorio"
	}
	if r.Quantity < 1 {
		errs[FieldQuantity] = "La cantidad debe ser al menos 1"
	}
	if r.UnitValue.IsNegative() {
		errs[FieldUnitValue] = "El valor unitario debe ser mayor o igual a 0"
	}
	if r.TotalValue.IsNegative() {
		errs[FieldTotalValue] = "El valor total debe ser mayor o igual a 0"
	}
	if r.AcquisitionDate.IsZero() {
		errs[FieldAcquisitionDate] = "La fecha de adquisición es obligatoria"
	}
	if strings.TrimSpace(r.Supplier) == "" {
		errs[FieldSupplier] = "El proveedor es obligatorio"
	}
	if len(r.Documentation) > 2000 {
		errs[FieldDocumentation] = "La documentación no puede superar 2000 caracteres"
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// ComputedTotal returns quantity × unit value.
func (r Record) ComputedTotal() decimal.Decimal {
	return r.UnitValue.Mul(decimal.NewFromInt(r.Quantity))
}

// WithComputedTotal fills TotalValue from quantity and unit value when it was left empty.
func (r Record) WithComputedTotal() Record {
	if r.TotalValue.IsZero() {
		r.TotalValue = r.ComputedTotal()
	}
	return r
}

// Diff lists the editable fields that differ between old and updated.
func Diff(old, updated Record) []FieldChange {
	var changes []FieldChange
	add := func(field, before, after string) {
		if before != after {
			changes = append(changes, FieldChange{Field: field, OldValue: before, NewValue: after})
		}
	}
	add(FieldBudget, old.Budget.String(), updated.Budget.String())
	add(FieldAdministrativeUnit, old.AdministrativeUnit, updated.AdministrativeUnit)
	add(FieldCategory, old.Category, updated.Category)
	add(FieldQuantity, fmt.Sprint(old.Quantity), fmt.Sprint(updated.Quantity))
	add(FieldUnitValue, old.UnitValue.String(), updated.UnitValue.String())
	add(FieldTotalValue, old.TotalValue.String(), updated.TotalValue.String())
	add(FieldAcquisitionDate, old.AcquisitionDate.String(), updated.AcquisitionDate.String())
	add(FieldSupplier, old.Supplier, updated.Supplier)
	add(FieldDocumentation, old.Documentation, updated.Documentation)
	add(FieldActive, fmt.Sprint(old.Active), fmt.Sprint(updated.Active))
	return changes
}

type actorKey struct{}

// WithActor stores the name of the user performing a change.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the acting user or fallback when none is set.
func ActorFrom(ctx context.Context, fallback string) string {
	if a, ok := ctx.Value(actorKey{}).(string); ok && strings.TrimSpace(a) != "" {
		return a
	}
	return fallback
}

// NowFunc is overridable in tests that need deterministic timestamps.
var NowFunc = time.Now

// HistoryEntries turns field changes into log entries attributed to actor.
func HistoryEntries(recordID int64, changes []FieldChange, actor string, at time.Time) []HistoryEntry {
	out := make([]HistoryEntry, 0, len(changes))
	for _, c := range changes {
		out = append(out, HistoryEntry{
			RecordID:  recordID,
			Field:     c.Field,
			OldValue:  c.OldValue,
			NewValue:  c.NewValue,
			ChangedAt: Timestamp{Time: at},
			ChangedBy: actor,
		})
	}
	return out
}
