package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/empresamix/mixbi/internal/domain"
)

// Fixed-width UTC timestamps sort lexically in the same order as in time.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// dbTime scans started_at. The driver hands a DATETIME column back as a
// time.Time, while aggregates such as MAX() come back as the stored text.
type dbTime struct {
	time.Time
}

func (t *dbTime) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		t.Time = v.UTC()
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	case nil:
		t.Time = time.Time{}
		return nil
	default:
		return fmt.Errorf("scan timestamp: unsupported type %T", src)
	}
}

func (t *dbTime) parse(s string) error {
	v, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("scan timestamp %q: %w", s, err)
	}
	t.Time = v.UTC()
	return nil
}

type FetchLogRepo struct {
	db *sql.DB
}

func NewFetchLogRepo(db *sql.DB) *FetchLogRepo {
	return &FetchLogRepo{db: db}
}

// Insert stores one fetch cycle. A missing ID is filled in.
func (r *FetchLogRepo) Insert(ctx context.Context, e *domain.FetchLogEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO fetch_log
		(id, cube, status, attempts, row_count, error, started_at, duration_ns)
		VALUES (?,?,?,?,?,?,?,?)`,
		e.ID, e.Cube, e.Status, e.Attempts, e.Rows, e.Error,
		e.StartedAt.UTC().Format(timeLayout), int64(e.Duration),
	)
	if err != nil {
		return fmt.Errorf("insert fetch log: %w", err)
	}
	return nil
}

// Record satisfies the cube client's recorder hook.
func (r *FetchLogRepo) Record(ctx context.Context, e domain.FetchLogEntry) error {
	return r.Insert(ctx, &e)
}

type FetchLogFilter struct {
	Cube   string
	Status string
	From   *time.Time
	To     *time.Time
	Page   int
	Limit  int
}

// List returns one page of entries, newest first, and the total match count.
func (r *FetchLogRepo) List(ctx context.Context, f FetchLogFilter) ([]domain.FetchLogEntry, int, error) {
	where, args := buildFetchLogWhere(f)

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM fetch_log"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	offset := (f.Page - 1) * f.Limit

	q := `SELECT id, cube, status, attempts, row_count, error, started_at, duration_ns
		FROM fetch_log` + where + " ORDER BY started_at DESC LIMIT ? OFFSET ?"
	args = append(args, f.Limit, offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	entries := []domain.FetchLogEntry{}
	for rows.Next() {
		e, err := scanFetchLogEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, *e)
	}
	return entries, total, rows.Err()
}

func buildFetchLogWhere(f FetchLogFilter) (string, []any) {
	var clauses []string
	var args []any

	if f.Cube != "" {
		clauses = append(clauses, "cube = ?")
		args = append(args, f.Cube)
	}
	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, f.Status)
	}
	if f.From != nil {
		clauses = append(clauses, "started_at >= ?")
		args = append(args, f.From.UTC().Format(timeLayout))
	}
	if f.To != nil {
		clauses = append(clauses, "started_at <= ?")
		args = append(args, f.To.UTC().Format(timeLayout))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanFetchLogEntry(rows *sql.Rows) (*domain.FetchLogEntry, error) {
	var e domain.FetchLogEntry
	var startedAt dbTime
	var durationNS int64

	err := rows.Scan(&e.ID, &e.Cube, &e.Status, &e.Attempts, &e.Rows, &e.Error, &startedAt, &durationNS)
	if err != nil {
		return nil, err
	}
	e.StartedAt = startedAt.Time
	e.Duration = time.Duration(durationNS)
	return &e, nil
}

// CubeFetchStat aggregates the log of one cube.
type CubeFetchStat struct {
	Cube        string    `json:"cube"`
	Total       int       `json:"total"`
	OK          int       `json:"ok"`
	Empty       int       `json:"empty"`
	Failed      int       `json:"failed"`
	AvgAttempts float64   `json:"avg_attempts"`
	LastFetch   time.Time `json:"last_fetch"`
	LastStatus  string    `json:"last_status"`
}

type FetchLogSummary struct {
	TotalCount int             `json:"total_count"`
	ByStatus   map[string]int  `json:"by_status"`
	ByCube     []CubeFetchStat `json:"by_cube"`
}

func (r *FetchLogRepo) Summary(ctx context.Context) (*FetchLogSummary, error) {
	s := &FetchLogSummary{ByStatus: make(map[string]int), ByCube: []CubeFetchStat{}}

	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM fetch_log").Scan(&s.TotalCount); err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM fetch_log GROUP BY status")
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return nil, err
		}
		s.ByStatus[status] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.db.QueryContext(ctx, `
		SELECT f.cube,
			COUNT(*),
			SUM(CASE WHEN f.status = 'ok' THEN 1 ELSE 0 END),
			SUM(CASE WHEN f.status = 'empty' THEN 1 ELSE 0 END),
			SUM(CASE WHEN f.status = 'failed' THEN 1 ELSE 0 END),
			AVG(f.attempts),
			MAX(f.started_at),
			(SELECT l.status FROM fetch_log l WHERE l.cube = f.cube ORDER BY l.started_at DESC LIMIT 1)
		FROM fetch_log f
		GROUP BY f.cube
		ORDER BY f.cube`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var st CubeFetchStat
		var last dbTime
		if err := rows.Scan(&st.Cube, &st.Total, &st.OK, &st.Empty, &st.Failed, &st.AvgAttempts, &last, &st.LastStatus); err != nil {
			return nil, err
		}
		st.LastFetch = last.Time
		s.ByCube = append(s.ByCube, st)
	}
	return s, rows.Err()
}

// DeleteBefore trims entries older than cutoff.
func (r *FetchLogRepo) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM fetch_log WHERE started_at < ?", cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("trim fetch log: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
