package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adquisiciones/internal/amqp"
	"adquisiciones/internal/core"
	"adquisiciones/internal/listing"
	applog "adquisiciones/internal/log"
	"adquisiciones/internal/memory"
)

var refNow = time.Date(2025, time.March, 15, 10, 0, 0, 0, time.UTC)

func sample(supplier, category string, budget, unit, qty int64, date core.Date) core.Record {
	return core.Record{
		Budget:             decimal.NewFromInt(budget),
		AdministrativeUnit: "Rectoría",
		Category:           category,
		Quantity:           qty,
		UnitValue:          decimal.NewFromInt(unit),
		AcquisitionDate:    date,
		Supplier:           supplier,
		Active:             true,
	}
}

// countingBackend counts List calls and can block them until released.
type countingBackend struct {
	*memory.Store
	lists     atomic.Int32
	histories atomic.Int32
	release   chan struct{}
	listErr   error
}

func (b *countingBackend) History(ctx context.Context, id int64) ([]core.HistoryEntry, error) {
	b.histories.Add(1)
	return b.Store.History(ctx, id)
}

func (b *countingBackend) List(ctx context.Context) ([]core.Record, error) {
	b.lists.Add(1)
	if b.release != nil {
		<-b.release
	}
	if b.listErr != nil {
		return nil, b.listErr
	}
	return b.Store.List(ctx)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []*amqp.RecordEvent
	err    error
}

func (p *fakePublisher) PublishRecordEvent(_ context.Context, evt *amqp.RecordEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return p.err
}

type fakeExporter struct {
	got [][]core.Record
	err error
}

func (e *fakeExporter) Export(_ context.Context, records []core.Record) error {
	e.got = append(e.got, records)
	return e.err
}

func seeded(t *testing.T, n int) *memory.Store {
	t.Helper()
	var seed []core.Record
	for i := 0; i < n; i++ {
		seed = append(seed, sample(fmt.Sprintf("Proveedor %d", i%4), fmt.Sprintf("Cat %d", i%5), 100, 10, 1, core.NewDate(2025, 3, 1)))
	}
	return memory.New(seed)
}

func TestRecordService_SnapshotIsCachedUntilAChange(t *testing.T) {
	b := &countingBackend{Store: seeded(t, 3)}
	svc := NewRecordService(b, Options{SnapshotTTL: time.Minute})
	ctx := context.Background()

	_, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	_, err = svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), b.lists.Load())

	require.NoError(t, svc.Deactivate(ctx, 1))
	recs, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), b.lists.Load())
	assert.False(t, recs[0].Active)
}

func TestRecordService_ConcurrentSnapshotsShareOneFetch(t *testing.T) {
	b := &countingBackend{Store: seeded(t, 3), release: make(chan struct{})}
	svc := NewRecordService(b, Options{SnapshotTTL: time.Minute})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			recs, err := svc.Snapshot(context.Background())
			assert.NoError(t, err)
			assert.Len(t, recs, 3)
		}()
	}
	// Let the goroutines pile up on the in-flight fetch.
	require.Eventually(t, func() bool { return b.lists.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(b.release)
	wg.Wait()

	assert.Equal(t, int32(1), b.lists.Load())
}

func TestRecordService_Dashboard(t *testing.T) {
	svc := NewRecordService(seeded(t, 5), Options{PreviewSize: 3})

	d, err := svc.Dashboard(context.Background(), refNow)
	require.NoError(t, err)

	assert.Equal(t, 5, d.Stats.TotalActiveRecords)
	assert.True(t, d.Stats.TotalBudget.Equal(decimal.NewFromInt(500)))
	assert.Equal(t, 4, d.Stats.UniqueSupplierCount)
	assert.Equal(t, 5, d.Stats.RecordsThisMonth)
	assert.Len(t, d.Stats.TopCategories, 3)
	require.Len(t, d.Preview, 3)
	assert.Equal(t, int64(1), d.Preview[0].ID)
}

func TestRecordService_DashboardBackendFailure(t *testing.T) {
	b := &countingBackend{Store: memory.New(nil), listErr: errors.New("connection refused")}
	svc := NewRecordService(b, Options{PreviewSize: 3})

	d, err := svc.Dashboard(context.Background(), refNow)
	require.Error(t, err)
	assert.Zero(t, d.Stats.TotalActiveRecords)
	assert.NotNil(t, d.Stats.TopCategories)
	assert.Empty(t, d.Preview)
}

func TestRecordService_ListingFiltersBeforeStatsAndPaging(t *testing.T) {
	store := seeded(t, 25)
	svc := NewRecordService(store, Options{PageSize: 10})
	ctx := context.Background()

	res, err := svc.Listing(ctx, ListQuery{Page: 2}, refNow)
	require.NoError(t, err)
	assert.Equal(t, 3, res.State.TotalPages)
	assert.Equal(t, 2, res.State.CurrentPage)
	require.Len(t, res.Records, 10)
	assert.Equal(t, int64(11), res.Records[0].ID)
	assert.Equal(t, 25, res.Stats.TotalActiveRecords)

	res, err = svc.Listing(ctx, ListQuery{Search: "proveedor 1", Page: 5}, refNow)
	require.NoError(t, err)
	assert.Equal(t, 6, res.Matched)
	assert.Equal(t, 1, res.State.CurrentPage, "out of range page resets")
	assert.Equal(t, 1, res.State.TotalPages)
	assert.Equal(t, 6, res.Stats.TotalActiveRecords)
	assert.Equal(t, 1, res.Stats.UniqueSupplierCount)
	assert.Equal(t, "proveedor 1", res.State.Search)
}

func TestRecordService_ListingByStatus(t *testing.T) {
	svc := NewRecordService(seeded(t, 4), Options{})
	ctx := context.Background()
	require.NoError(t, svc.Deactivate(ctx, 2))

	active, err := svc.Listing(ctx, ListQuery{}, refNow)
	require.NoError(t, err)
	assert.Equal(t, 3, active.Matched)
	assert.Equal(t, listing.StatusActive, active.Status)

	inactive, err := svc.Listing(ctx, ListQuery{Status: listing.StatusInactive}, refNow)
	require.NoError(t, err)
	require.Len(t, inactive.Records, 1)
	assert.Equal(t, int64(2), inactive.Records[0].ID)
	assert.Zero(t, inactive.Stats.TotalActiveRecords, "inactive records never count")

	all, err := svc.Listing(ctx, ListQuery{Status: listing.StatusAll}, refNow)
	require.NoError(t, err)
	assert.Equal(t, 4, all.Matched)
	assert.Equal(t, 3, all.Stats.TotalActiveRecords)
}

func TestRecordService_CreateComputesTotalAndPublishes(t *testing.T) {
	pub := &fakePublisher{}
	svc := NewRecordService(memory.New(nil), Options{Publisher: pub, DefaultActor: "sistema"})
	ctx := core.WithActor(context.Background(), "ana")

	r := sample("ACME", "IT", 1000, 250, 4, core.NewDate(2025, 3, 2))
	r.Active = false
	created, err := svc.Create(ctx, r)
	require.NoError(t, err)

	assert.Equal(t, int64(1), created.ID)
	assert.True(t, created.Active)
	assert.True(t, created.TotalValue.Equal(decimal.NewFromInt(1000)))
	require.Len(t, pub.events, 1)
	assert.Equal(t, amqp.EventCreated, pub.events[0].Type)
	assert.Equal(t, "ana", pub.events[0].Actor)
}

func TestRecordService_CreateRejectsInvalid(t *testing.T) {
	pub := &fakePublisher{}
	svc := NewRecordService(memory.New(nil), Options{Publisher: pub})

	_, err := svc.Create(context.Background(), core.Record{Quantity: 0})
	var verr core.ValidationErrors
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr, core.FieldSupplier)
	assert.Contains(t, verr, core.FieldQuantity)
	assert.Empty(t, pub.events)
}

func TestRecordService_PublishFailureDoesNotFailTheChange(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	pub := &fakePublisher{err: amqp.ErrCircuitOpen}
	svc := NewRecordService(seeded(t, 1), Options{Publisher: pub})

	require.NoError(t, svc.Deactivate(context.Background(), 1))
	assert.Len(t, pub.events, 1)
	assert.Equal(t, amqp.EventDeactivated, pub.events[0].Type)

	logged := buf.String()
	assert.Contains(t, logged, "Failed to publish record event")
	assert.Contains(t, logged, applog.FieldRecordID+"=1")
	assert.Contains(t, logged, applog.FieldEventType+"="+string(amqp.EventDeactivated))
	assert.Contains(t, logged, applog.FieldEventID+"="+pub.events[0].EventID)
}

func TestRecordService_UpdateAndHistory(t *testing.T) {
	core.NowFunc = func() time.Time { return refNow }
	t.Cleanup(func() { core.NowFunc = time.Now })

	svc := NewRecordService(seeded(t, 2), Options{})
	ctx := core.WithActor(context.Background(), "luis")

	r, err := svc.Get(ctx, 1)
	require.NoError(t, err)
	r.Supplier = "Globex"
	r.Quantity = 3
	r.TotalValue = decimal.Zero

	updated, err := svc.Update(ctx, r)
	require.NoError(t, err)
	assert.True(t, updated.TotalValue.Equal(decimal.NewFromInt(30)))

	require.NoError(t, svc.Reactivate(ctx, 1))

	view, err := svc.History(ctx, 1, refNow)
	require.NoError(t, err)
	assert.Equal(t, "Globex", view.Record.Supplier)
	assert.Len(t, view.Entries, 3)
	assert.Equal(t, 3, view.Summary.TotalChanges)
	assert.Equal(t, 1, view.Summary.UniqueModifiers)
	assert.Equal(t, 3, view.Summary.ChangesThisMonth)
	assert.Equal(t, core.FieldQuantity, view.Summary.MostModifiedField)
}

func TestRecordService_HistoryEmptyAndMissing(t *testing.T) {
	svc := NewRecordService(seeded(t, 1), Options{})
	ctx := context.Background()

	view, err := svc.History(ctx, 1, refNow)
	require.NoError(t, err)
	assert.NotNil(t, view.Entries)
	assert.Equal(t, "N/A", view.Summary.MostModifiedField)

	_, err = svc.History(ctx, 99, refNow)
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = svc.History(ctx, 0, refNow)
	assert.ErrorIs(t, err, core.ErrInvalidID)
}

func TestRecordService_MutationsRejectBadIDs(t *testing.T) {
	svc := NewRecordService(memory.New(nil), Options{})
	ctx := context.Background()

	assert.ErrorIs(t, svc.Deactivate(ctx, 0), core.ErrInvalidID)
	assert.ErrorIs(t, svc.Reactivate(ctx, -1), core.ErrInvalidID)
	_, err := svc.Update(ctx, core.Record{})
	assert.ErrorIs(t, err, core.ErrInvalidID)
	assert.ErrorIs(t, svc.Deactivate(ctx, 42), core.ErrNotFound)
}

func TestRecordService_Export(t *testing.T) {
	ctx := context.Background()

	_, err := NewRecordService(memory.New(nil), Options{}).Export(ctx)
	assert.ErrorIs(t, err, ErrExportDisabled)

	exp := &fakeExporter{}
	svc := NewRecordService(seeded(t, 4), Options{Exporter: exp})
	assert.True(t, svc.CanExport())

	n, err := svc.Export(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	require.Len(t, exp.got, 1)
	assert.Len(t, exp.got[0], 4)

	exp.err = errors.New("quota exceeded")
	_, err = svc.Export(ctx)
	assert.ErrorContains(t, err, "quota exceeded")
}

func TestRecordService_HistoryIsCachedUntilAChange(t *testing.T) {
	b := &countingBackend{Store: seeded(t, 2)}
	svc := NewRecordService(b, Options{SnapshotTTL: time.Minute})
	ctx := context.Background()

	first, err := svc.History(ctx, 1, refNow)
	require.NoError(t, err)
	assert.Empty(t, first.Entries)

	_, err = svc.History(ctx, 1, refNow)
	require.NoError(t, err)
	assert.Equal(t, int32(1), b.histories.Load())

	require.NoError(t, svc.Deactivate(ctx, 1))
	view, err := svc.History(ctx, 1, refNow)
	require.NoError(t, err)
	assert.Equal(t, int32(2), b.histories.Load())
	assert.Len(t, view.Entries, 1)

	st := svc.CacheStats()["history"]
	assert.Equal(t, int64(1), st.Hits)
	assert.Equal(t, int64(2), st.Misses)
}

// gatedBackend reads from the store, then holds the result until released,
// so a mutation can land while the read is in flight.
type gatedBackend struct {
	*memory.Store
	gate    atomic.Bool
	read    chan struct{}
	release chan struct{}
}

func newGatedBackend(store *memory.Store) *gatedBackend {
	return &gatedBackend{Store: store, read: make(chan struct{}), release: make(chan struct{})}
}

func (b *gatedBackend) wait() {
	if b.gate.CompareAndSwap(true, false) {
		b.read <- struct{}{}
		<-b.release
	}
}

func (b *gatedBackend) List(ctx context.Context) ([]core.Record, error) {
	recs, err := b.Store.List(ctx)
	b.wait()
	return recs, err
}

func (b *gatedBackend) History(ctx context.Context, id int64) ([]core.HistoryEntry, error) {
	entries, err := b.Store.History(ctx, id)
	b.wait()
	return entries, err
}

func TestRecordService_InFlightSnapshotDoesNotOutliveAMutation(t *testing.T) {
	b := newGatedBackend(seeded(t, 2))
	svc := NewRecordService(b, Options{SnapshotTTL: time.Minute})
	ctx := context.Background()

	b.gate.Store(true)
	done := make(chan []core.Record)
	go func() {
		recs, err := svc.Snapshot(ctx)
		assert.NoError(t, err)
		done <- recs
	}()
	<-b.read

	require.NoError(t, svc.Deactivate(ctx, 1))
	close(b.release)
	stale := <-done
	assert.True(t, stale[0].Active, "the in-flight read started before the change")

	recs, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.False(t, recs[0].Active, "the cached snapshot predates the deactivation")
}

func TestRecordService_InFlightHistoryDoesNotOutliveAMutation(t *testing.T) {
	b := newGatedBackend(seeded(t, 1))
	svc := NewRecordService(b, Options{SnapshotTTL: time.Minute})
	ctx := context.Background()

	b.gate.Store(true)
	done := make(chan HistoryView)
	go func() {
		view, err := svc.History(ctx, 1, refNow)
		assert.NoError(t, err)
		done <- view
	}()
	<-b.read

	require.NoError(t, svc.Deactivate(ctx, 1))
	close(b.release)
	assert.Empty(t, (<-done).Entries)

	view, err := svc.History(ctx, 1, refNow)
	require.NoError(t, err)
	assert.Len(t, view.Entries, 1)
}
