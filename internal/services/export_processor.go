package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	applog "adquisiciones/internal/log"
)

// SnapshotExporter exports the current record snapshot. RecordService satisfies it.
type SnapshotExporter interface {
	Export(ctx context.Context) (int, error)
}

// ExportProcessorConfig holds configuration for the export processor
type ExportProcessorConfig struct {
	// Interval is how often a full export runs regardless of events (default: 15m)
	Interval time.Duration

	// Debounce delays an event-triggered export so bursts of changes
	// collapse into a single run (default: 2s)
	Debounce time.Duration
}

// DefaultExportProcessorConfig returns sensible defaults
func DefaultExportProcessorConfig() ExportProcessorConfig {
	return ExportProcessorConfig{
		Interval: 15 * time.Minute,
		Debounce: 2 * time.Second,
	}
}

// ExportProcessor re-exports the record snapshot on a fixed interval and
// whenever Trigger is called.
type ExportProcessor struct {
	exporter SnapshotExporter
	config   ExportProcessorConfig
	triggerC chan struct{}

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	lastMu     sync.Mutex
	lastExport time.Time
	lastErr    error
}

// NewExportProcessor creates a new export processor
func NewExportProcessor(exporter SnapshotExporter, config ExportProcessorConfig) *ExportProcessor {
	if config.Interval <= 0 {
		config.Interval = DefaultExportProcessorConfig().Interval
	}
	if config.Debounce < 0 {
		config.Debounce = 0
	}
	return &ExportProcessor{
		exporter: exporter,
		config:   config,
		triggerC: make(chan struct{}, 1),
	}
}

// Trigger asks for an export soon. Calls made while one is pending coalesce.
func (p *ExportProcessor) Trigger() {
	select {
	case p.triggerC <- struct{}{}:
	default:
	}
}

// Start runs the processing loop in the background. Returns an error if already running.
func (p *ExportProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("export processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go func() {
		defer close(p.doneCh)
		p.loop(ctx, p.stopCh)
	}()

	slog.InfoContext(ctx, "Export processor started",
		"interval", p.config.Interval,
		"debounce", p.config.Debounce)
	return nil
}

// Run blocks until ctx is cancelled.
func (p *ExportProcessor) Run(ctx context.Context) error {
	p.loop(ctx, nil)
	return nil
}

// Stop gracefully stops the processor and waits for completion.
func (p *ExportProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	close(p.stopCh)

	select {
	case <-p.doneCh:
		slog.InfoContext(ctx, "Export processor stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Export processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
	return nil
}

// IsRunning returns whether the processor is currently running
func (p *ExportProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// LastExport returns when the last export finished and its error, if any.
func (p *ExportProcessor) LastExport() (time.Time, error) {
	p.lastMu.Lock()
	defer p.lastMu.Unlock()
	return p.lastExport, p.lastErr
}

func (p *ExportProcessor) loop(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	// Export immediately on startup
	p.exportOnce(ctx)

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.exportOnce(ctx)
		case <-p.triggerC:
			if p.config.Debounce > 0 {
				select {
				case <-time.After(p.config.Debounce):
				case <-stop:
					return
				case <-ctx.Done():
					return
				}
				// Triggers that arrived during the wait are covered by this run.
				select {
				case <-p.triggerC:
				default:
				}
			}
			p.exportOnce(ctx)
		}
	}
}

func (p *ExportProcessor) exportOnce(ctx context.Context) {
	n, err := p.exporter.Export(ctx)

	p.lastMu.Lock()
	p.lastExport = time.Now()
	p.lastErr = err
	p.lastMu.Unlock()

	if err != nil {
		slog.ErrorContext(ctx, "Export failed", applog.FieldComponent, applog.ComponentExport, applog.FieldError, err)
		return
	}
	slog.InfoContext(ctx, "Exported records", "record_count", n)
}
