package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"adquisiciones/internal/amqp"
	"adquisiciones/internal/cache"
	"adquisiciones/internal/core"
	"adquisiciones/internal/listing"
	applog "adquisiciones/internal/log"
	"adquisiciones/internal/ports"
	"adquisiciones/internal/stats"
)

// ErrExportDisabled is returned by Export when no exporter is configured.
var ErrExportDisabled = errors.New("export is not configured")

const snapshotKey = "records"

// historyCacheSize bounds how many record histories stay cached.
const historyCacheSize = 64

// EventPublisher announces record changes. *amqp.Client satisfies it.
type EventPublisher interface {
	PublishRecordEvent(ctx context.Context, evt *amqp.RecordEvent) error
}

// Options configures a RecordService. Zero values fall back to defaults.
type Options struct {
	PreviewSize  int
	PageSize     int
	SnapshotTTL  time.Duration
	DefaultActor string
	Publisher    EventPublisher
	Exporter     ports.Exporter
}

// RecordService orchestrates record operations across the backend, the
// snapshot cache and the change event publisher.
type RecordService struct {
	backend   ports.Backend
	publisher EventPublisher
	exporter  ports.Exporter
	snapshots *cache.LRUCache[[]core.Record]
	histories *cache.LRUCache[HistoryView]
	group     singleflight.Group
	// generation is bumped by Invalidate. Loads started under an older
	// generation are returned to their callers but never cached.
	generation atomic.Uint64

	previewSize  int
	pageSize     int
	defaultActor string
}

func NewRecordService(backend ports.Backend, opts Options) *RecordService {
	if opts.PreviewSize < 0 {
		opts.PreviewSize = 0
	}
	if opts.PageSize < 1 {
		opts.PageSize = listing.DefaultPageSize
	}
	if opts.DefaultActor == "" {
		opts.DefaultActor = "sistema"
	}
	return &RecordService{
		backend:      backend,
		publisher:    opts.Publisher,
		exporter:     opts.Exporter,
		snapshots:    cache.NewLRUCache[[]core.Record](1, opts.SnapshotTTL),
		histories:    cache.NewLRUCache[HistoryView](historyCacheSize, opts.SnapshotTTL),
		previewSize:  opts.PreviewSize,
		pageSize:     opts.PageSize,
		defaultActor: opts.DefaultActor,
	}
}

// Caches exposes the service caches so a cache.Manager can sweep them.
func (s *RecordService) Caches() []cache.Cleaner {
	return []cache.Cleaner{s.snapshots, s.histories}
}

// CacheStats reports lookups of the snapshot and history caches.
func (s *RecordService) CacheStats() map[string]cache.Stats {
	return map[string]cache.Stats{
		"snapshot": s.snapshots.Stats(),
		"history":  s.histories.Stats(),
	}
}

// CanExport reports whether an exporter is configured.
func (s *RecordService) CanExport() bool { return s.exporter != nil }

// Snapshot returns every record, active and inactive. Concurrent callers
// share one backend fetch. The returned slice must not be modified.
func (s *RecordService) Snapshot(ctx context.Context) ([]core.Record, error) {
	if recs, ok := s.snapshots.Get(snapshotKey); ok {
		return recs, nil
	}
	v, err, _ := s.group.Do(snapshotKey, func() (any, error) {
		gen := s.generation.Load()
		recs, err := s.backend.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("list records: %w", err)
		}
		storeIfCurrent(s, s.snapshots, gen, snapshotKey, recs)
		return recs, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]core.Record), nil
}

// Invalidate drops the cached snapshot and histories. Loads already in
// flight will not repopulate them.
func (s *RecordService) Invalidate() {
	s.generation.Add(1)
	s.snapshots.Clear()
	s.histories.Clear()
	s.group.Forget(snapshotKey)
}

// storeIfCurrent caches v unless Invalidate ran since gen was read. The
// second check covers an Invalidate that bumped the generation after the
// first check but cleared before Set.
func storeIfCurrent[T any](s *RecordService, c *cache.LRUCache[T], gen uint64, key string, v T) {
	if s.generation.Load() != gen {
		return
	}
	c.Set(key, v)
	if s.generation.Load() != gen {
		c.Delete(key)
	}
}

// Ready checks the backend when it can report reachability.
func (s *RecordService) Ready(ctx context.Context) error {
	if p, ok := s.backend.(ports.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Dashboard is the data behind the home page.
type Dashboard struct {
	Stats   core.DashboardStatistics
	Preview []core.Record
}

// Dashboard aggregates the whole snapshot and picks the preview records.
func (s *RecordService) Dashboard(ctx context.Context, now time.Time) (Dashboard, error) {
	recs, err := s.Snapshot(ctx)
	if err != nil {
		return Dashboard{Stats: stats.Aggregate(nil, now), Preview: []core.Record{}}, err
	}
	n := min(s.previewSize, len(recs))
	return Dashboard{
		Stats:   stats.Aggregate(recs, now),
		Preview: recs[:n:n],
	}, nil
}

// ListQuery selects a page of the record list.
type ListQuery struct {
	Search   string
	Page     int
	PageSize int
	Status   listing.Status
}

// ListResult is one rendered page of the list together with the statistics
// of the filtered set it belongs to.
type ListResult struct {
	Records []core.Record
	State   listing.State
	Stats   core.DashboardStatistics
	Status  listing.Status
	Matched int
}

// Listing filters the snapshot by status and search term, aggregates the
// filtered set and cuts the requested page. Pages out of range fall back to 1.
func (s *RecordService) Listing(ctx context.Context, q ListQuery, now time.Time) (ListResult, error) {
	if q.Status == "" {
		q.Status = listing.StatusActive
	}
	size := q.PageSize
	if size < 1 {
		size = s.pageSize
	}
	state := listing.NewState(size)
	state.Search = q.Search
	state.CurrentPage = q.Page

	recs, err := s.Snapshot(ctx)
	if err != nil {
		state = state.Recompute(0)
		return ListResult{Records: []core.Record{}, State: state, Stats: stats.Aggregate(nil, now), Status: q.Status}, err
	}

	filtered := listing.Filter(listing.ByStatus(recs, q.Status), q.Search)
	state = state.Recompute(len(filtered))
	return ListResult{
		Records: listing.Page(filtered, state),
		State:   state,
		Stats:   stats.Aggregate(filtered, now),
		Status:  q.Status,
		Matched: len(filtered),
	}, nil
}

// HistoryView is a record with its change log and summary.
type HistoryView struct {
	Record  core.Record
	Entries []core.HistoryEntry
	Summary core.HistorySummary
}

// History loads a record and its change log concurrently. The pair is
// cached per record; the summary is always computed against now.
func (s *RecordService) History(ctx context.Context, id int64, now time.Time) (HistoryView, error) {
	if id < 1 {
		return HistoryView{}, core.ErrInvalidID
	}
	key := strconv.FormatInt(id, 10)
	view, ok := s.histories.Get(key)
	if !ok {
		gen := s.generation.Load()
		var err error
		if view, err = s.loadHistory(ctx, id); err != nil {
			return HistoryView{}, err
		}
		storeIfCurrent(s, s.histories, gen, key, view)
	}
	view.Summary = stats.SummarizeHistory(view.Entries, now)
	return view, nil
}

func (s *RecordService) loadHistory(ctx context.Context, id int64) (HistoryView, error) {
	var view HistoryView
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := s.backend.Get(gctx, id)
		if err != nil {
			return fmt.Errorf("get record %d: %w", id, err)
		}
		view.Record = r
		return nil
	})
	g.Go(func() error {
		entries, err := s.backend.History(gctx, id)
		if err != nil {
			return fmt.Errorf("get history %d: %w", id, err)
		}
		view.Entries = entries
		return nil
	})
	if err := g.Wait(); err != nil {
		return HistoryView{}, err
	}
	if view.Entries == nil {
		view.Entries = []core.HistoryEntry{}
	}
	return view, nil
}

// Get returns a single record straight from the backend.
func (s *RecordService) Get(ctx context.Context, id int64) (core.Record, error) {
	if id < 1 {
		return core.Record{}, core.ErrInvalidID
	}
	return s.backend.Get(ctx, id)
}

// Create validates and stores a new active record.
func (s *RecordService) Create(ctx context.Context, r core.Record) (core.Record, error) {
	r = r.WithComputedTotal()
	r.ID = 0
	r.Active = true
	if err := r.Validate(); err != nil {
		return core.Record{}, err
	}
	created, err := s.backend.Create(ctx, r)
	if err != nil {
		return core.Record{}, fmt.Errorf("create record: %w", err)
	}
	s.changed(ctx, amqp.EventCreated, created.ID)
	return created, nil
}

// Update validates and stores an edited record.
func (s *RecordService) Update(ctx context.Context, r core.Record) (core.Record, error) {
	if r.ID < 1 {
		return core.Record{}, core.ErrInvalidID
	}
	r = r.WithComputedTotal()
	if err := r.Validate(); err != nil {
		return core.Record{}, err
	}
	updated, err := s.backend.Update(ctx, r)
	if err != nil {
		return core.Record{}, fmt.Errorf("update record %d: %w", r.ID, err)
	}
	s.changed(ctx, amqp.EventUpdated, updated.ID)
	return updated, nil
}

// Deactivate hides a record from statistics without deleting it.
func (s *RecordService) Deactivate(ctx context.Context, id int64) error {
	if id < 1 {
		return core.ErrInvalidID
	}
	if err := s.backend.Deactivate(ctx, id); err != nil {
		return fmt.Errorf("deactivate record %d: %w", id, err)
	}
	s.changed(ctx, amqp.EventDeactivated, id)
	return nil
}

// Reactivate brings a deactivated record back.
func (s *RecordService) Reactivate(ctx context.Context, id int64) error {
	if id < 1 {
		return core.ErrInvalidID
	}
	if err := s.backend.Reactivate(ctx, id); err != nil {
		return fmt.Errorf("reactivate record %d: %w", id, err)
	}
	s.changed(ctx, amqp.EventReactivated, id)
	return nil
}

// Export writes a fresh snapshot to the configured exporter and returns the
// number of records written.
func (s *RecordService) Export(ctx context.Context) (int, error) {
	if s.exporter == nil {
		return 0, ErrExportDisabled
	}
	s.Invalidate()
	recs, err := s.Snapshot(ctx)
	if err != nil {
		return 0, err
	}
	if err := s.exporter.Export(ctx, recs); err != nil {
		return 0, fmt.Errorf("export records: %w", err)
	}
	return len(recs), nil
}

// changed invalidates the snapshot and publishes the change. Publishing is
// best effort: the change is already stored.
func (s *RecordService) changed(ctx context.Context, t amqp.EventType, id int64) {
	s.Invalidate()

	if s.publisher == nil {
		slog.DebugContext(ctx, "No event publisher configured, skipping record event", applog.FieldEventType, t, applog.FieldRecordID, id)
		return
	}
	evt := amqp.NewRecordEvent(t, id, core.ActorFrom(ctx, s.defaultActor))
	if err := s.publisher.PublishRecordEvent(ctx, evt); err != nil {
		slog.ErrorContext(ctx, "Failed to publish record event",
			applog.FieldEventType, t, applog.FieldRecordID, id, applog.FieldEventID, evt.EventID, applog.FieldError, err)
	}
}
