// Package storage is the sqlite record backend.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"adquisiciones/internal/core"
	applog "adquisiciones/internal/log"
	"adquisiciones/internal/ports"

	_ "modernc.org/sqlite"
)

const timestampLayout = time.RFC3339Nano

const recordColumns = `id, presupuesto, unidad_administrativa, tipo_bien_servicio, cantidad,
	valor_unitario, valor_total, fecha_adquisicion, proveedor, documentacion, activo,
	fecha_creacion, fecha_modificacion`

type SQLiteRepository struct {
	db *sql.DB
	// actor is attributed to changes when the context carries none.
	actor string
}

var (
	_ ports.Backend = (*SQLiteRepository)(nil)
	_ ports.Pinger  = (*SQLiteRepository)(nil)
)

func NewSQLiteRepository(dbPath, defaultActor string) (*SQLiteRepository, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// sqlite serialises writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("SQLite schema ready", applog.FieldComponent, applog.ComponentStorage, "db_path", dbPath, "schema_version", version)

	if defaultActor == "" {
		defaultActor = "sistema"
	}
	return &SQLiteRepository{db: db, actor: defaultActor}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// List implements ports.RecordReader
func (r *SQLiteRepository) List(ctx context.Context) ([]core.Record, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM adquisiciones ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []core.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

// Get implements ports.RecordReader
func (r *SQLiteRepository) Get(ctx context.Context, id int64) (core.Record, error) {
	return getRecord(ctx, r.db, id)
}

// Create implements ports.RecordWriter
func (r *SQLiteRepository) Create(ctx context.Context, rec core.Record) (core.Record, error) {
	rec = rec.WithComputedTotal()
	if err := rec.Validate(); err != nil {
		return core.Record{}, err
	}
	rec.Active = true
	rec.CreatedAt = core.Timestamp{Time: core.NowFunc()}
	rec.ModifiedAt = core.Timestamp{}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO adquisiciones (presupuesto, unidad_administrativa, tipo_bien_servicio, cantidad,
			valor_unitario, valor_total, fecha_adquisicion, proveedor, documentacion, activo, fecha_creacion)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?)`,
		rec.Budget.String(), rec.AdministrativeUnit, rec.Category, rec.Quantity,
		rec.UnitValue.String(), rec.TotalValue.String(), rec.AcquisitionDate.String(),
		rec.Supplier, rec.Documentation, formatTimestamp(rec.CreatedAt))
	if err != nil {
		return core.Record{}, fmt.Errorf("insert record: %w", err)
	}
	if rec.ID, err = res.LastInsertId(); err != nil {
		return core.Record{}, fmt.Errorf("read inserted id: %w", err)
	}

	slog.InfoContext(ctx, "Record saved to SQLite",
		applog.FieldComponent, applog.ComponentStorage,
		applog.FieldRecordID, rec.ID,
		applog.FieldSupplier, rec.Supplier,
		applog.FieldTotalValue, rec.TotalValue.String())
	return rec, nil
}

// Update implements ports.RecordWriter. One history row is written per
// changed field, in the same transaction as the update.
func (r *SQLiteRepository) Update(ctx context.Context, rec core.Record) (core.Record, error) {
	rec = rec.WithComputedTotal()
	if err := rec.Validate(); err != nil {
		return core.Record{}, err
	}

	var out core.Record
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		old, err := getRecord(ctx, tx, rec.ID)
		if err != nil {
			return err
		}
		rec.Active = old.Active
		rec.CreatedAt = old.CreatedAt

		changes := core.Diff(old, rec)
		if len(changes) == 0 {
			out = old
			return nil
		}
		now := core.NowFunc()
		rec.ModifiedAt = core.Timestamp{Time: now}

		_, err = tx.ExecContext(ctx, `
			UPDATE adquisiciones SET presupuesto = ?, unidad_administrativa = ?, tipo_bien_servicio = ?,
				cantidad = ?, valor_unitario = ?, valor_total = ?, fecha_adquisicion = ?, proveedor = ?,
				documentacion = ?, fecha_modificacion = ?
			WHERE id = ?`,
			rec.Budget.String(), rec.AdministrativeUnit, rec.Category, rec.Quantity,
			rec.UnitValue.String(), rec.TotalValue.String(), rec.AcquisitionDate.String(),
			rec.Supplier, rec.Documentation, formatTimestamp(rec.ModifiedAt), rec.ID)
		if err != nil {
			return fmt.Errorf("update record %d: %w", rec.ID, err)
		}
		if err := insertHistory(ctx, tx, core.HistoryEntries(rec.ID, changes, core.ActorFrom(ctx, r.actor), now)); err != nil {
			return err
		}
		slog.DebugContext(ctx, "Record updated in SQLite",
			applog.FieldComponent, applog.ComponentStorage,
			applog.FieldRecordID, rec.ID,
			applog.FieldChangedFields, len(changes))
		out = rec
		return nil
	})
	return out, err
}

// Deactivate implements ports.RecordToggler
func (r *SQLiteRepository) Deactivate(ctx context.Context, id int64) error {
	return r.setActive(ctx, id, false)
}

// Reactivate implements ports.RecordToggler
func (r *SQLiteRepository) Reactivate(ctx context.Context, id int64) error {
	return r.setActive(ctx, id, true)
}

func (r *SQLiteRepository) setActive(ctx context.Context, id int64, active bool) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		old, err := getRecord(ctx, tx, id)
		if err != nil {
			return err
		}
		if old.Active == active {
			return nil
		}
		updated := old
		updated.Active = active
		now := core.NowFunc()

		if _, err := tx.ExecContext(ctx,
			`UPDATE adquisiciones SET activo = ?, fecha_modificacion = ? WHERE id = ?`,
			boolToInt(active), now.UTC().Format(timestampLayout), id); err != nil {
			return fmt.Errorf("toggle record %d: %w", id, err)
		}
		return insertHistory(ctx, tx, core.HistoryEntries(id, core.Diff(old, updated), core.ActorFrom(ctx, r.actor), now))
	})
}

// History implements ports.HistoryReader
func (r *SQLiteRepository) History(ctx context.Context, id int64) ([]core.HistoryEntry, error) {
	if _, err := getRecord(ctx, r.db, id); err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, adquisicion_id, campo_modificado, valor_anterior, valor_nuevo, fecha_cambio, modificado_por
		FROM historial WHERE adquisicion_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []core.HistoryEntry
	for rows.Next() {
		var (
			h         core.HistoryEntry
			changedAt string
		)
		if err := rows.Scan(&h.ID, &h.RecordID, &h.Field, &h.OldValue, &h.NewValue, &changedAt, &h.ChangedBy); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		h.ChangedAt = parseTimestamp(changedAt)
		out = append(out, h)
	}
	return out, rows.Err()
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

func getRecord(ctx context.Context, q querier, id int64) (core.Record, error) {
	rec, err := scanRecord(q.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM adquisiciones WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Record{}, fmt.Errorf("record %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Record{}, fmt.Errorf("get record %d: %w", id, err)
	}
	return rec, nil
}

func scanRecord(s scanner) (core.Record, error) {
	var (
		rec                           core.Record
		budget, unitValue, totalValue string
		acquired, created             string
		modified                      sql.NullString
		active                        int64
	)
	if err := s.Scan(&rec.ID, &budget, &rec.AdministrativeUnit, &rec.Category, &rec.Quantity,
		&unitValue, &totalValue, &acquired, &rec.Supplier, &rec.Documentation, &active,
		&created, &modified); err != nil {
		return core.Record{}, err
	}
	rec.Budget = parseDecimal(budget)
	rec.UnitValue = parseDecimal(unitValue)
	rec.TotalValue = parseDecimal(totalValue)
	rec.AcquisitionDate, _ = core.ParseDate(acquired)
	rec.Active = active != 0
	rec.CreatedAt = parseTimestamp(created)
	if modified.Valid {
		rec.ModifiedAt = parseTimestamp(modified.String)
	}
	return rec, nil
}

func insertHistory(ctx context.Context, tx *sql.Tx, entries []core.HistoryEntry) error {
	for _, h := range entries {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO historial (adquisicion_id, campo_modificado, valor_anterior, valor_nuevo, fecha_cambio, modificado_por)
			VALUES (?, ?, ?, ?, ?, ?)`,
			h.RecordID, h.Field, h.OldValue, h.NewValue, formatTimestamp(h.ChangedAt), h.ChangedBy); err != nil {
			return fmt.Errorf("insert history for record %d: %w", h.RecordID, err)
		}
	}
	return nil
}

func (r *SQLiteRepository) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func formatTimestamp(t core.Timestamp) string {
	return t.UTC().Format(timestampLayout)
}

func parseTimestamp(s string) core.Timestamp {
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		return core.Timestamp{}
	}
	return core.Timestamp{Time: t}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
