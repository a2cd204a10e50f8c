package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/empresamix/mixbi/internal/domain"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := InitDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestInitDBIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, createTables(db))
}

func TestCacheStore(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	s := NewCacheStore(newTestDB(t), 30*time.Minute, clock, zap.NewNop())

	_, ok := s.Get(ctx, "cube:CUBO_OS")
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "cube:CUBO_OS", []byte(`[1]`)))
	require.NoError(t, s.Set(ctx, "cube:CUBO_OS", []byte(`[2]`)))
	got, ok := s.Get(ctx, "cube:CUBO_OS")
	require.True(t, ok)
	assert.Equal(t, `[2]`, string(got))

	clock.Advance(30 * time.Minute)
	_, ok = s.Get(ctx, "cube:CUBO_OS")
	assert.False(t, ok)

	n, err := s.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func seedFetchLog(t *testing.T, repo *FetchLogRepo) time.Time {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	entries := []domain.FetchLogEntry{
		{Cube: "CUBO_OS", Status: "failed", Attempts: 3, Error: "http 500", StartedAt: base, Duration: 6 * time.Second},
		{Cube: "CUBO_OS", Status: "ok", Attempts: 1, Rows: 120, StartedAt: base.Add(time.Minute), Duration: time.Second},
		{Cube: "CUBO_FATURAMENTO", Status: "empty", Attempts: 3, StartedAt: base.Add(2 * time.Minute)},
		{Cube: "CUBO_FATURAMENTO", Status: "ok", Attempts: 2, Rows: 900, StartedAt: base.Add(3 * time.Minute)},
	}
	for i := range entries {
		require.NoError(t, repo.Insert(ctx, &entries[i]))
		require.NotEmpty(t, entries[i].ID)
	}
	return base
}

func TestFetchLogList(t *testing.T) {
	ctx := context.Background()
	repo := NewFetchLogRepo(newTestDB(t))
	base := seedFetchLog(t, repo)

	all, total, err := repo.List(ctx, FetchLogFilter{})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	require.Len(t, all, 4)
	assert.Equal(t, "CUBO_FATURAMENTO", all[0].Cube, "newest first")
	assert.Equal(t, 900, all[0].Rows)
	assert.True(t, all[3].StartedAt.Equal(base))
	assert.Equal(t, 6*time.Second, all[3].Duration)

	page, total, err := repo.List(ctx, FetchLogFilter{Cube: "CUBO_OS", Page: 2, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, page, 1)
	assert.Equal(t, "failed", page[0].Status)
	assert.Equal(t, "http 500", page[0].Error)

	from := base.Add(90 * time.Second)
	recent, total, err := repo.List(ctx, FetchLogFilter{From: &from, Status: "ok"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, recent, 1)
	assert.Equal(t, "CUBO_FATURAMENTO", recent[0].Cube)
}

func TestFetchLogSummary(t *testing.T) {
	ctx := context.Background()
	repo := NewFetchLogRepo(newTestDB(t))
	base := seedFetchLog(t, repo)

	s, err := repo.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, s.TotalCount)
	assert.Equal(t, map[string]int{"ok": 2, "failed": 1, "empty": 1}, s.ByStatus)

	require.Len(t, s.ByCube, 2)
	fat := s.ByCube[0]
	assert.Equal(t, "CUBO_FATURAMENTO", fat.Cube)
	assert.Equal(t, 2, fat.Total)
	assert.Equal(t, 1, fat.OK)
	assert.Equal(t, 1, fat.Empty)
	assert.InDelta(t, 2.5, fat.AvgAttempts, 1e-9)
	assert.Equal(t, "ok", fat.LastStatus)
	assert.True(t, fat.LastFetch.Equal(base.Add(3*time.Minute)))

	orders := s.ByCube[1]
	assert.Equal(t, 1, orders.Failed)
	assert.Equal(t, "ok", orders.LastStatus)
}

func TestFetchLogRecordAndTrim(t *testing.T) {
	ctx := context.Background()
	repo := NewFetchLogRepo(newTestDB(t))
	base := seedFetchLog(t, repo)

	require.NoError(t, repo.Record(ctx, domain.FetchLogEntry{Cube: "CUBO_ORCAMENTO", Status: "ok", Attempts: 1, StartedAt: base.Add(time.Hour)}))

	n, err := repo.DeleteBefore(ctx, base.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, total, err := repo.List(ctx, FetchLogFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
}

func TestFetchLogKeepsTimestamps(t *testing.T) {
	ctx := context.Background()
	repo := NewFetchLogRepo(newTestDB(t))

	whole := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	fractional := time.Date(2024, 3, 1, 11, 0, 0, 120000000, time.UTC)
	for _, at := range []time.Time{whole, fractional} {
		require.NoError(t, repo.Insert(ctx, &domain.FetchLogEntry{Cube: "CUBO_OS", Status: "ok", Attempts: 1, StartedAt: at}))
	}

	entries, _, err := repo.List(ctx, FetchLogFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, entries[0].StartedAt.Equal(fractional), "got %s", entries[0].StartedAt)
	assert.True(t, entries[1].StartedAt.Equal(whole), "got %s", entries[1].StartedAt)

	s, err := repo.Summary(ctx)
	require.NoError(t, err)
	require.Len(t, s.ByCube, 1)
	assert.True(t, s.ByCube[0].LastFetch.Equal(fractional), "got %s", s.ByCube[0].LastFetch)
}

func TestDBTimeScan(t *testing.T) {
	want := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	for _, src := range []any{
		want,
		"2024-03-01T10:00:00Z",
		"2024-03-01T10:00:00.000000000Z",
		[]byte("2024-03-01T07:00:00-03:00"),
	} {
		var v dbTime
		require.NoError(t, v.Scan(src), "%v", src)
		assert.True(t, v.Equal(want), "%v gave %s", src, v.Time)
	}

	var v dbTime
	assert.Error(t, v.Scan("01/03/2024"))
	assert.Error(t, v.Scan(42))
}
