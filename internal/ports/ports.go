package ports

import (
	"context"

	"adquisiciones/internal/core"
)

// Ports for outbound adapters.
type (
	// RecordReader returns records, active and inactive.
	RecordReader interface {
		List(ctx context.Context) ([]core.Record, error)
		// Get returns core.ErrNotFound (possibly wrapped) for unknown ids.
		Get(ctx context.Context, id int64) (core.Record, error)
	}

	// RecordWriter persists new and edited records and returns the stored version.
	RecordWriter interface {
		Create(ctx context.Context, r core.Record) (core.Record, error)
		Update(ctx context.Context, r core.Record) (core.Record, error)
	}

	// RecordToggler flips the active flag of a record.
	RecordToggler interface {
		Deactivate(ctx context.Context, id int64) error
		Reactivate(ctx context.Context, id int64) error
	}

	// HistoryReader returns the change log of a record.
	HistoryReader interface {
		History(ctx context.Context, id int64) ([]core.HistoryEntry, error)
	}

	// Exporter writes a full snapshot of records to an external destination.
	Exporter interface {
		Export(ctx context.Context, records []core.Record) error
	}

	// Pinger is implemented by backends that can report reachability.
	Pinger interface {
		Ping(ctx context.Context) error
	}

	// Backend is everything the record service needs from a data source.
	Backend interface {
		RecordReader
		RecordWriter
		RecordToggler
		HistoryReader
	}
)
