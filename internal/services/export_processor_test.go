package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type countingExporter struct {
	calls atomic.Int32
	err   error
}

func (e *countingExporter) Export(context.Context) (int, error) {
	e.calls.Add(1)
	return 7, e.err
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestDefaultExportProcessorConfig(t *testing.T) {
	config := DefaultExportProcessorConfig()

	if config.Interval != 15*time.Minute {
		t.Errorf("expected Interval 15m, got %v", config.Interval)
	}
	if config.Debounce != 2*time.Second {
		t.Errorf("expected Debounce 2s, got %v", config.Debounce)
	}
}

func TestNewExportProcessor_FixesInvalidConfig(t *testing.T) {
	processor := NewExportProcessor(&countingExporter{}, ExportProcessorConfig{Interval: 0, Debounce: -time.Second})

	if processor.config.Interval != 15*time.Minute {
		t.Errorf("expected default Interval, got %v", processor.config.Interval)
	}
	if processor.config.Debounce != 0 {
		t.Errorf("expected Debounce 0, got %v", processor.config.Debounce)
	}
}

func TestExportProcessor_ExportsOnStartAndTrigger(t *testing.T) {
	exp := &countingExporter{}
	processor := NewExportProcessor(exp, ExportProcessorConfig{Interval: time.Hour})

	ctx := context.Background()
	if err := processor.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !processor.IsRunning() {
		t.Error("processor should be running after Start")
	}

	waitFor(t, func() bool { return exp.calls.Load() == 1 })

	processor.Trigger()
	waitFor(t, func() bool { return exp.calls.Load() == 2 })

	if err := processor.Stop(ctx); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if processor.IsRunning() {
		t.Error("processor should not be running after Stop")
	}

	at, err := processor.LastExport()
	if at.IsZero() || err != nil {
		t.Errorf("LastExport() = %v, %v", at, err)
	}
}

func TestExportProcessor_TriggersCoalesce(t *testing.T) {
	exp := &countingExporter{}
	processor := NewExportProcessor(exp, ExportProcessorConfig{Interval: time.Hour, Debounce: 50 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = processor.Run(ctx)
		close(done)
	}()

	waitFor(t, func() bool { return exp.calls.Load() == 1 })
	for i := 0; i < 5; i++ {
		processor.Trigger()
	}
	waitFor(t, func() bool { return exp.calls.Load() >= 2 })
	time.Sleep(150 * time.Millisecond)

	if got := exp.calls.Load(); got != 2 {
		t.Errorf("expected a burst of triggers to export once, got %d exports", got-1)
	}

	cancel()
	<-done
}

func TestExportProcessor_RecordsFailure(t *testing.T) {
	exp := &countingExporter{err: errors.New("sheets unavailable")}
	processor := NewExportProcessor(exp, ExportProcessorConfig{Interval: time.Hour})

	ctx := context.Background()
	if err := processor.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, func() bool { return exp.calls.Load() == 1 })
	// LastExport is written after Export returns.
	waitFor(t, func() bool { _, err := processor.LastExport(); return err != nil })

	if err := processor.Start(ctx); err == nil {
		t.Error("expected error when starting already running processor")
	}
	_ = processor.Stop(ctx)
}

func TestExportProcessor_StopNotRunning(t *testing.T) {
	processor := NewExportProcessor(&countingExporter{}, DefaultExportProcessorConfig())

	if err := processor.Stop(context.Background()); err != nil {
		t.Errorf("Stop should not error when not running: %v", err)
	}
}
