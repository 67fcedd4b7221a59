package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/saviobatista/movement-logger/internal/types"
)

// ChunkSize bounds the rows written or deleted by one statement
const ChunkSize = 500

// ErrNotFound is returned when an upload does not exist
var ErrNotFound = errors.New("upload not found")

const recordColumns = 10

type Client struct {
	db *sql.DB
}

// New creates a new database client
func New(connStr string) (*Client, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	return &Client{db: db}, nil
}

// NewWithDB wraps an existing connection pool
func NewWithDB(db *sql.DB) *Client {
	return &Client{db: db}
}

// DB returns the underlying connection pool
func (c *Client) DB() *sql.DB {
	return c.db
}

// Close closes the database connection
func (c *Client) Close() error {
	return c.db.Close()
}

// Ping checks the database connection
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// CreateUpload stores an upload and its records in one transaction. Records
// are inserted ChunkSize rows per statement, keeping their order in position.
func (c *Client) CreateUpload(ctx context.Context, upload *types.Upload, records []types.FlightRecord) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upload tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO flight_uploads (
			id, user_id, created_at, record_count, icao_code,
			data_date, expected_total, source
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		upload.ID, upload.UserID, upload.CreatedAt, upload.RecordCount, upload.ICAOCode,
		upload.DataDate, upload.ExpectedTotal, upload.Source,
	)
	if err != nil {
		return fmt.Errorf("insert upload %s: %w", upload.ID, err)
	}

	for start := 0; start < len(records); start += ChunkSize {
		end := min(start+ChunkSize, len(records))
		query, args := insertRecordsQuery(upload.ID, start, records[start:end])
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert records %d-%d of upload %s: %w", start, end, upload.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upload %s: %w", upload.ID, err)
	}
	return nil
}

func insertRecordsQuery(uploadID string, offset int, records []types.FlightRecord) (string, []interface{}) {
	var b strings.Builder
	b.WriteString(`INSERT INTO flight_records (
			upload_id, position, timestamp, matricula, tipo_aeronave,
			flight_class, origem, destino, regra_voo, pista, responsavel
		) VALUES `)

	args := make([]interface{}, 0, len(records)*(recordColumns+1))
	for i, r := range records {
		if i > 0 {
			b.WriteString(", ")
		}
		n := len(args)
		fmt.Fprintf(&b, "($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			n+1, n+2, n+3, n+4, n+5, n+6, n+7, n+8, n+9, n+10, n+11)
		args = append(args,
			uploadID, offset+i, r.Timestamp, r.Matricula, r.TipoAeronave,
			r.FlightClass, r.Origem, r.Destino, string(r.RegraVoo), r.Pista, r.Responsavel,
		)
	}
	return b.String(), args
}

// ListUploads returns the uploads owned by userID, newest first
func (c *Client) ListUploads(ctx context.Context, userID string) ([]types.Upload, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, user_id, created_at, record_count, icao_code,
			data_date, expected_total, source
		FROM flight_uploads
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	uploads := make([]types.Upload, 0)
	for rows.Next() {
		up, err := scanUpload(rows)
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, *up)
	}
	return uploads, rows.Err()
}

// GetUpload returns one upload, or ErrNotFound
func (c *Client) GetUpload(ctx context.Context, id string) (*types.Upload, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, user_id, created_at, record_count, icao_code,
			data_date, expected_total, source
		FROM flight_uploads
		WHERE id = $1
	`, id)
	up, err := scanUpload(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return up, err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanUpload(s scanner) (*types.Upload, error) {
	var (
		up       types.Upload
		dataDate sql.NullTime
		source   sql.NullString
	)
	if err := s.Scan(
		&up.ID, &up.UserID, &up.CreatedAt, &up.RecordCount, &up.ICAOCode,
		&dataDate, &up.ExpectedTotal, &source,
	); err != nil {
		return nil, err
	}
	if dataDate.Valid {
		t := dataDate.Time.UTC()
		up.DataDate = &t
	}
	up.CreatedAt = up.CreatedAt.UTC()
	up.Source = source.String
	return &up, nil
}

// GetRecords returns the records of an upload in their original order
func (c *Client) GetRecords(ctx context.Context, uploadID string) ([]types.FlightRecord, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT timestamp, matricula, tipo_aeronave, flight_class,
			origem, destino, regra_voo, pista, responsavel
		FROM flight_records
		WHERE upload_id = $1
		ORDER BY position
	`, uploadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]types.FlightRecord, 0)
	for rows.Next() {
		var (
			r    types.FlightRecord
			ts   sql.NullTime
			rule string
		)
		if err := rows.Scan(
			&ts, &r.Matricula, &r.TipoAeronave, &r.FlightClass,
			&r.Origem, &r.Destino, &rule, &r.Pista, &r.Responsavel,
		); err != nil {
			return nil, err
		}
		if ts.Valid {
			t := ts.Time.UTC()
			r.Timestamp = &t
		}
		r.RegraVoo = types.FlightRule(rule)
		records = append(records, r)
	}
	return records, rows.Err()
}

// DeleteUpload removes an upload's records ChunkSize rows at a time, then the
// upload itself. It returns the number of records deleted.
func (c *Client) DeleteUpload(ctx context.Context, id string) (int64, error) {
	var deleted int64
	for {
		res, err := c.db.ExecContext(ctx, `
			DELETE FROM flight_records
			WHERE id IN (
				SELECT id FROM flight_records WHERE upload_id = $1 LIMIT $2
			)
		`, id, ChunkSize)
		if err != nil {
			return deleted, fmt.Errorf("delete records of upload %s: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return deleted, err
		}
		deleted += n
		if n < ChunkSize {
			break
		}
	}

	res, err := c.db.ExecContext(ctx, `DELETE FROM flight_uploads WHERE id = $1`, id)
	if err != nil {
		return deleted, fmt.Errorf("delete upload %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return deleted, ErrNotFound
	}
	return deleted, nil
}

// DailySummaries aggregates the timestamped records of userID's uploads in
// [from, to) per UTC day. Days without records are omitted.
func (c *Client) DailySummaries(ctx context.Context, userID string, from, to time.Time) ([]types.DailySummary, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT date_trunc('day', r.timestamp AT TIME ZONE 'UTC') AS day,
			r.regra_voo, r.pista, COUNT(*)
		FROM flight_records r
		JOIN flight_uploads u ON u.id = r.upload_id
		WHERE u.user_id = $1 AND r.timestamp >= $2 AND r.timestamp < $3
		GROUP BY day, r.regra_voo, r.pista
		ORDER BY day
	`, userID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := make([]types.DailySummary, 0)
	for rows.Next() {
		var (
			day          time.Time
			rule, runway string
			count        int
		)
		if err := rows.Scan(&day, &rule, &runway, &count); err != nil {
			return nil, err
		}
		day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
		if len(summaries) == 0 || !summaries[len(summaries)-1].Day.Equal(day) {
			summaries = append(summaries, types.DailySummary{
				Day:      day,
				ByRule:   make(map[string]int),
				ByRunway: make(map[string]int),
			})
		}
		s := &summaries[len(summaries)-1]
		s.Total += count
		s.ByRule[rule] += count
		if runway == "" {
			runway = types.NotAvailable
		}
		s.ByRunway[runway] += count
	}
	return summaries, rows.Err()
}

// StoreSystemStats stores system statistics
func (c *Client) StoreSystemStats(ctx context.Context, stats *types.SystemStats) error {
	misses := make([]int64, len(stats.FieldMisses))
	for i, v := range stats.FieldMisses {
		misses[i] = int64(v)
	}

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO system_stats (
			time, raw_logs, uploads_saved, failed_logs,
			lines_accepted, lines_skipped, records_saved, line_failures,
			field_misses, processing_time_ms, uptime_seconds
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		stats.Time,
		int64(stats.RawLogs),
		int64(stats.UploadsSaved),
		int64(stats.FailedLogs),
		int64(stats.LinesAccepted),
		int64(stats.LinesSkipped),
		int64(stats.RecordsSaved),
		int64(stats.LineFailures),
		pq.Array(misses),
		stats.ProcessingTime.Milliseconds(),
		int64(stats.Uptime.Seconds()),
	)
	return err
}

// GetSystemStats retrieves system statistics for a time range
func (c *Client) GetSystemStats(ctx context.Context, start, end time.Time) ([]types.SystemStats, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT time, raw_logs, uploads_saved, failed_logs,
			lines_accepted, lines_skipped, records_saved, line_failures,
			field_misses, processing_time_ms, uptime_seconds
		FROM system_stats
		WHERE time BETWEEN $1 AND $2
		ORDER BY time DESC
	`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.SystemStats
	for rows.Next() {
		var (
			s                types.SystemStats
			misses           []int64
			processingTimeMs int64
			uptimeSeconds    int64
		)
		if err := rows.Scan(
			&s.Time, &s.RawLogs, &s.UploadsSaved, &s.FailedLogs,
			&s.LinesAccepted, &s.LinesSkipped, &s.RecordsSaved, &s.LineFailures,
			pq.Array(&misses), &processingTimeMs, &uptimeSeconds,
		); err != nil {
			return nil, err
		}
		s.FieldMisses = make([]uint64, len(misses))
		for i, v := range misses {
			s.FieldMisses[i] = uint64(v)
		}
		s.ProcessingTime = time.Duration(processingTimeMs) * time.Millisecond
		s.Uptime = time.Duration(uptimeSeconds) * time.Second
		out = append(out, s)
	}
	return out, rows.Err()
}
