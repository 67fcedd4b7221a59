package uploads

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/saviobatista/movement-logger/internal/db"
	"github.com/saviobatista/movement-logger/internal/observability"
	"github.com/saviobatista/movement-logger/internal/parser"
	"github.com/saviobatista/movement-logger/internal/redis"
	"github.com/saviobatista/movement-logger/internal/testutils"
	"github.com/saviobatista/movement-logger/internal/types"
)

type memStore struct {
	mu        sync.Mutex
	uploads   map[string]types.Upload
	records   map[string][]types.FlightRecord
	summaries int
	err       error
}

func newMemStore() *memStore {
	return &memStore{
		uploads: make(map[string]types.Upload),
		records: make(map[string][]types.FlightRecord),
	}
}

func (m *memStore) CreateUpload(ctx context.Context, upload *types.Upload, records []types.FlightRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.uploads[upload.ID] = *upload
	m.records[upload.ID] = append([]types.FlightRecord(nil), records...)
	return nil
}

func (m *memStore) ListUploads(ctx context.Context, userID string) ([]types.Upload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.Upload, 0)
	for _, u := range m.uploads {
		if u.UserID == userID {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) GetUpload(ctx context.Context, id string) (*types.Upload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.uploads[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &u, nil
}

func (m *memStore) GetRecords(ctx context.Context, uploadID string) ([]types.FlightRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[uploadID], nil
}

func (m *memStore) DeleteUpload(ctx context.Context, id string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.uploads[id]; !ok {
		return 0, db.ErrNotFound
	}
	n := int64(len(m.records[id]))
	delete(m.uploads, id)
	delete(m.records, id)
	return n, nil
}

func (m *memStore) DailySummaries(ctx context.Context, userID string, from, to time.Time) ([]types.DailySummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaries++
	total := 0
	for id, u := range m.uploads {
		if u.UserID == userID {
			total += len(m.records[id])
		}
	}
	return []types.DailySummary{{
		Day:      from,
		Total:    total,
		ByRule:   map[string]int{"IFR": total},
		ByRunway: map[string]int{"07": total},
	}}, nil
}

type recordingPublisher struct {
	events []*types.UploadEvent
	err    error
}

func (p *recordingPublisher) PublishUploadEvent(ev *types.UploadEvent) error {
	p.events = append(p.events, ev)
	return p.err
}

type fixture struct {
	svc     *Service
	store   *memStore
	fake    *testutils.FakeRedis
	events  *recordingPublisher
	clock   *clockwork.FakeClock
	metrics *observability.Metrics
	logs    *observer.ObservedLogs
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	core, logs := observer.New(zap.InfoLevel)
	f := &fixture{
		store:   newMemStore(),
		fake:    testutils.NewFakeRedis(),
		events:  &recordingPublisher{},
		clock:   clockwork.NewFakeClockAt(time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)),
		metrics: observability.NewMetricsForTesting(),
		logs:    logs,
	}
	base := []Option{
		WithCache(redis.NewWithClient(f.fake)),
		WithPublisher(f.events),
		WithClock(f.clock),
		WithMetrics(f.metrics),
		WithLogger(zap.New(core)),
	}
	f.svc = New(f.store, append(base, opts...)...)
	return f
}

func logFile(n int) File {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = testutils.DefaultMovement().Line()
	}
	return File{Name: "movements.txt", Data: []byte(testutils.MockMovementLog(lines...))}
}

func TestPreview(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Preview(context.Background(), []File{logFile(2), logFile(1)})
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Len(t, res.Records, 3)
	assert.Equal(t, "SBIZ", res.ICAOCode)
	assert.Equal(t, 3, res.ExpectedTotal)
	require.NotNil(t, res.DataDate)
	assert.Equal(t, "2025-01-01", res.DataDate.Format("2006-01-02"))

	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.UploadsParsed))
	assert.Equal(t, float64(3), testutil.ToFloat64(f.metrics.LinesAccepted))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.CacheLookups.WithLabelValues("preview", "miss")))
}

func TestPreviewCached(t *testing.T) {
	f := newFixture(t)
	files := []File{logFile(2)}

	first, err := f.svc.Preview(context.Background(), files)
	require.NoError(t, err)

	second, err := f.svc.Preview(context.Background(), files)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Records, second.Records)
	assert.Equal(t, first.ExpectedTotal, second.ExpectedTotal)

	// parse counters track parser runs; the second call was a cache hit
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.UploadsParsed))
	assert.Equal(t, float64(2), testutil.ToFloat64(f.metrics.LinesAccepted))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.CacheLookups.WithLabelValues("preview", "hit")))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.CacheLookups.WithLabelValues("preview", "miss")))
}

func TestPreviewCacheFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.fake.Err = errors.New("connection refused")

	res, err := f.svc.Preview(context.Background(), []File{logFile(1)})
	require.NoError(t, err)
	assert.Len(t, res.Records, 1)
	assert.NotZero(t, f.logs.FilterMessage("preview cache lookup failed").Len())
}

func TestPreviewNoRecords(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Preview(context.Background(), []File{{Name: "empty.txt", Data: []byte(testutils.HeaderLine(0) + "\nshort\n")}})
	assert.ErrorIs(t, err, ErrNoRecords)
	assert.Zero(t, f.fake.Keys())
}

func TestPreviewDigestDependsOnOrder(t *testing.T) {
	f := newFixture(t)
	a, b := logFile(1), logFile(2)
	assert.NotEqual(t, f.svc.digest([]File{a, b}), f.svc.digest([]File{b, a}))
	assert.Equal(t, f.svc.digest([]File{a, b}), f.svc.digest([]File{a, b}))
}

func TestPreviewLatin1(t *testing.T) {
	f := newFixture(t, WithEncoding("latin1"))
	m := testutils.DefaultMovement()
	m.Responsible = "JO\xc3O"

	res, err := f.svc.Preview(context.Background(), []File{{Name: "latin1.txt", Data: []byte(testutils.MockMovementLog(m.Line()))}})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "JOÃO", res.Records[0].Responsavel)
}

func TestPreviewLogsUnexpectedFailures(t *testing.T) {
	feed := parser.DefaultFeed
	feed.RunwayPattern = nil
	f := newFixture(t, WithParser(parser.New(parser.WithFeed(feed))))

	res, err := f.svc.Preview(context.Background(), []File{logFile(1)})
	require.NoError(t, err)
	assert.Len(t, res.Records, 1)

	entries := f.logs.FilterMessage("unexpected failure while parsing line").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zap.WarnLevel, entries[0].Level)
	assert.Equal(t, "movements.txt", entries[0].ContextMap()["file"])
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.LineFailures))
}

func TestSave(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	preview, err := f.svc.Preview(ctx, []File{logFile(3)})
	require.NoError(t, err)

	upload, err := f.svc.Save(ctx, "user-1", SaveRequest{
		Records:       preview.Records,
		ICAOCode:      preview.ICAOCode,
		DataDate:      preview.DataDate,
		ExpectedTotal: preview.ExpectedTotal,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, upload.ID)
	assert.Equal(t, "user-1", upload.UserID)
	assert.Equal(t, f.clock.Now().UTC(), upload.CreatedAt)
	assert.Equal(t, 3, upload.RecordCount)
	assert.Equal(t, "SBIZ", upload.ICAOCode)

	stored, err := f.store.GetRecords(ctx, upload.ID)
	require.NoError(t, err)
	assert.Equal(t, preview.Records, stored)

	require.Len(t, f.events.events, 1)
	assert.Equal(t, upload.ID, f.events.events[0].UploadID)
	assert.Equal(t, 3, f.events.events[0].RecordCount)
	assert.Equal(t, float64(3), testutil.ToFloat64(f.metrics.RecordsSaved))
}

func TestSaveRejectsEmpty(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Save(context.Background(), "user-1", SaveRequest{})
	assert.ErrorIs(t, err, ErrInvalidRecords)
	assert.Empty(t, f.events.events)
}

func TestSaveStoreError(t *testing.T) {
	f := newFixture(t)
	f.store.err = errors.New("db down")

	_, err := f.svc.Save(context.Background(), "user-1", SaveRequest{Records: []types.FlightRecord{types.NewFlightRecord()}})
	assert.ErrorContains(t, err, "db down")
	assert.Empty(t, f.events.events)
}

func TestSavePublishErrorIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.events.err = errors.New("nats down")

	upload, err := f.svc.Save(context.Background(), "user-1", SaveRequest{Records: []types.FlightRecord{types.NewFlightRecord()}})
	require.NoError(t, err)
	assert.NotNil(t, upload)
	assert.Equal(t, 1, f.logs.FilterMessage("failed to publish upload event").Len())
}

func TestListRecordsDeleteOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := []types.FlightRecord{types.NewFlightRecord(), types.NewFlightRecord()}

	mine, err := f.svc.Save(ctx, "user-1", SaveRequest{Records: rec})
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	newer, err := f.svc.Save(ctx, "user-1", SaveRequest{Records: rec[:1]})
	require.NoError(t, err)
	theirs, err := f.svc.Save(ctx, "user-2", SaveRequest{Records: rec})
	require.NoError(t, err)

	list, err := f.svc.List(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID)
	assert.Equal(t, mine.ID, list[1].ID)

	got, err := f.svc.Records(ctx, "user-1", mine.ID)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = f.svc.Records(ctx, "user-1", theirs.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.Records(ctx, "user-1", "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, f.svc.Delete(ctx, "user-1", theirs.ID), ErrForbidden)
	assert.ErrorIs(t, f.svc.Delete(ctx, "user-1", "missing"), ErrNotFound)

	require.NoError(t, f.svc.Delete(ctx, "user-1", mine.ID))
	_, err = f.svc.Records(ctx, "user-1", mine.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.UploadsDeleted))
}

func TestSummarizeCachesUntilSave(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 7)

	_, err := f.svc.Save(ctx, "user-1", SaveRequest{Records: []types.FlightRecord{types.NewFlightRecord()}})
	require.NoError(t, err)

	first, err := f.svc.Summarize(ctx, "user-1", from, to)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, 1, first[0].Total)

	again, err := f.svc.Summarize(ctx, "user-1", from, to)
	require.NoError(t, err)
	assert.Equal(t, 1, again[0].Total)
	assert.Equal(t, 1, f.store.summaries)

	_, err = f.svc.Save(ctx, "user-1", SaveRequest{Records: []types.FlightRecord{types.NewFlightRecord()}})
	require.NoError(t, err)

	after, err := f.svc.Summarize(ctx, "user-1", from, to)
	require.NoError(t, err)
	assert.Equal(t, 2, after[0].Total)
	assert.Equal(t, 2, f.store.summaries)
}

func TestSummarizeInvalidRange(t *testing.T) {
	f := newFixture(t)
	day := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := f.svc.Summarize(context.Background(), "user-1", day, day)
	assert.ErrorIs(t, err, ErrInvalidRange)
	_, err = f.svc.Summarize(context.Background(), "user-1", day, day.Add(-time.Hour))
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestSummarizeWithoutCache(t *testing.T) {
	svc := New(newMemStore())
	day := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	got, err := svc.Summarize(context.Background(), "user-1", day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Zero(t, got[0].Total)
}

func TestIngest(t *testing.T) {
	f := newFixture(t)
	content := testutils.MockMovementLog(testutils.DefaultMovement().Line(), testutils.DefaultMovement().Line())

	upload, res, err := f.svc.Ingest(context.Background(), "feed", "10.0.0.1:4001", content)
	require.NoError(t, err)
	assert.Len(t, res.Records, 2)
	assert.Equal(t, "feed", upload.UserID)
	assert.Equal(t, "10.0.0.1:4001", upload.Source)
	assert.Equal(t, 2, upload.ExpectedTotal)
	require.Len(t, f.events.events, 1)
	assert.Equal(t, "10.0.0.1:4001", f.events.events[0].Source)
}

func TestIngestNoRecords(t *testing.T) {
	f := newFixture(t)

	upload, res, err := f.svc.Ingest(context.Background(), "feed", "src", testutils.HeaderLine(0)+"\n")
	assert.ErrorIs(t, err, ErrNoRecords)
	assert.Nil(t, upload)
	require.NotNil(t, res)
	assert.Equal(t, 1, res.Skipped)
}

func TestIngestCancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := f.svc.Ingest(ctx, "feed", "src", testutils.MockMovementLog(testutils.DefaultMovement().Line()))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.events.events)
}
