// Package worker turns record change events into spreadsheet exports.
package worker

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"adquisiciones/internal/amqp"
	applog "adquisiciones/internal/log"
)

// EventSource delivers record change events to a handler until ctx ends.
// *amqp.Client satisfies it.
type EventSource interface {
	Consume(ctx context.Context, handler amqp.Handler) error
}

// Processor runs scheduled exports and accepts on-demand triggers.
// *services.ExportProcessor satisfies it.
type Processor interface {
	Run(ctx context.Context) error
	Trigger()
}

// ExportWorker keeps the exported snapshot in step with record changes.
type ExportWorker struct {
	events    EventSource
	processor Processor
}

// NewExportWorker creates a worker. A nil events source leaves only the
// interval exports running.
func NewExportWorker(events EventSource, processor Processor) *ExportWorker {
	return &ExportWorker{events: events, processor: processor}
}

// HandleRecordEvent schedules an export for a single change event.
func (w *ExportWorker) HandleRecordEvent(ctx context.Context, evt *amqp.RecordEvent) error {
	slog.InfoContext(ctx, "Processing record event",
		applog.FieldEventID, evt.EventID,
		applog.FieldEventType, evt.Type,
		applog.FieldRecordID, evt.RecordID,
		applog.FieldActor, evt.Actor)

	w.processor.Trigger()
	return nil
}

// Run consumes events and runs the export schedule until ctx is cancelled
// or either side fails.
func (w *ExportWorker) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if w.events != nil {
		g.Go(func() error {
			return w.events.Consume(gctx, w.HandleRecordEvent)
		})
	} else {
		slog.InfoContext(ctx, "Skipping AMQP message consumption - no event source configured")
	}

	g.Go(func() error {
		return w.processor.Run(gctx)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
