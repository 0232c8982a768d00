package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sipdeck/sipdeck/internal/database/models"
)

const callColumns = `id, call_id, direction, remote_uri, start_time, answer_time,
	 end_time, duration, disposition, recording_file, transcript, sentiment,
	 summary, analytics_state, created_at`

// callRepo implements CallRepository.
type callRepo struct {
	db *DB
}

// NewCallRepository creates a new CallRepository.
func NewCallRepository(db *DB) CallRepository {
	return &callRepo{db: db}
}

// Create inserts a new call history record.
func (r *callRepo) Create(ctx context.Context, call *models.Call) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO calls (call_id, direction, remote_uri, start_time,
		 answer_time, end_time, duration, disposition, recording_file,
		 transcript, sentiment, summary, analytics_state)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		call.CallID, call.Direction, call.RemoteURI, call.StartTime,
		call.AnswerTime, call.EndTime, call.Duration, call.Disposition,
		call.RecordingFile, call.Transcript, call.Sentiment, call.Summary,
		call.AnalyticsState,
	)
	if err != nil {
		return fmt.Errorf("inserting call record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	call.ID = id
	return nil
}

// GetByID returns a call record by ID, or nil if not found.
func (r *callRepo) GetByID(ctx context.Context, id int64) (*models.Call, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT `+callColumns+` FROM calls WHERE id = ?`, id,
	))
}

// GetByCallID returns a call record by SIP Call-ID, or nil if not found.
func (r *callRepo) GetByCallID(ctx context.Context, callID string) (*models.Call, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT `+callColumns+` FROM calls WHERE call_id = ?`, callID,
	))
}

// List returns call records matching the filter, along with the total count.
func (r *callRepo) List(ctx context.Context, filter CallListFilter) ([]models.Call, int, error) {
	where := "1=1"
	args := []any{}

	if filter.Direction != "" {
		where += " AND direction = ?"
		args = append(args, filter.Direction)
	}
	if filter.Search != "" {
		where += " AND remote_uri LIKE ?"
		args = append(args, "%"+filter.Search+"%")
	}
	if filter.StartDate != "" {
		where += " AND start_time >= ?"
		args = append(args, filter.StartDate)
	}
	if filter.EndDate != "" {
		where += " AND start_time <= ?"
		args = append(args, filter.EndDate)
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM calls WHERE " + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting calls: %w", err)
	}

	query := `SELECT ` + callColumns + ` FROM calls WHERE ` + where +
		` ORDER BY start_time DESC LIMIT ? OFFSET ?`
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing calls: %w", err)
	}
	defer rows.Close()

	calls, err := scanCalls(rows)
	if err != nil {
		return nil, 0, err
	}
	return calls, total, nil
}

// ListRecent returns the most recent call records up to the given limit.
func (r *callRepo) ListRecent(ctx context.Context, limit int) ([]models.Call, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+callColumns+` FROM calls ORDER BY start_time DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing recent calls: %w", err)
	}
	defer rows.Close()

	return scanCalls(rows)
}

// SetTranscript stores the transcription text for a call.
func (r *callRepo) SetTranscript(ctx context.Context, id int64, transcript string) error {
	return r.setField(ctx, id, "transcript", transcript)
}

// SetSentiment stores the sentiment label for a call.
func (r *callRepo) SetSentiment(ctx context.Context, id int64, sentiment string) error {
	return r.setField(ctx, id, "sentiment", sentiment)
}

// SetSummary stores the summary text for a call.
func (r *callRepo) SetSummary(ctx context.Context, id int64, summary string) error {
	return r.setField(ctx, id, "summary", summary)
}

// SetAnalyticsState updates the analytics pipeline state for a call.
func (r *callRepo) SetAnalyticsState(ctx context.Context, id int64, state string) error {
	return r.setField(ctx, id, "analytics_state", state)
}

func (r *callRepo) setField(ctx context.Context, id int64, column, value string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE calls SET `+column+` = ? WHERE id = ?`, value, id)
	if err != nil {
		return fmt.Errorf("updating %s: %w", column, err)
	}
	return nil
}

// CountByDirection returns the number of calls per direction.
func (r *callRepo) CountByDirection(ctx context.Context) (map[string]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT direction, COUNT(*) FROM calls GROUP BY direction`)
	if err != nil {
		return nil, fmt.Errorf("counting calls by direction: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var direction string
		var count int64
		if err := rows.Scan(&direction, &count); err != nil {
			return nil, fmt.Errorf("scanning direction count: %w", err)
		}
		counts[direction] = count
	}
	return counts, rows.Err()
}

// DeleteExpiredRecordings clears the recording_file field on calls whose
// start_time is older than the given number of days. Returns the file paths
// of the cleared recordings so callers can remove the WAV files from disk.
// The call record itself is kept.
func (r *callRepo) DeleteExpiredRecordings(ctx context.Context, days int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT recording_file FROM calls
		 WHERE recording_file != ''
		 AND start_time < datetime('now', '-' || ? || ' days')`, days)
	if err != nil {
		return nil, fmt.Errorf("querying expired recordings: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scanning expired recording path: %w", err)
		}
		paths = append(paths, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating expired recording rows: %w", err)
	}

	if len(paths) == 0 {
		return nil, nil
	}

	_, err = r.db.ExecContext(ctx,
		`UPDATE calls SET recording_file = ''
		 WHERE recording_file != ''
		 AND start_time < datetime('now', '-' || ? || ' days')`, days)
	if err != nil {
		return nil, fmt.Errorf("clearing expired recording paths: %w", err)
	}

	return paths, nil
}

// Delete removes a call record by ID.
func (r *callRepo) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM calls WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting call record: %w", err)
	}
	return nil
}

func (r *callRepo) scanOne(row *sql.Row) (*models.Call, error) {
	var c models.Call
	err := row.Scan(&c.ID, &c.CallID, &c.Direction, &c.RemoteURI, &c.StartTime,
		&c.AnswerTime, &c.EndTime, &c.Duration, &c.Disposition,
		&c.RecordingFile, &c.Transcript, &c.Sentiment, &c.Summary,
		&c.AnalyticsState, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning call record: %w", err)
	}
	return &c, nil
}

func scanCalls(rows *sql.Rows) ([]models.Call, error) {
	var calls []models.Call
	for rows.Next() {
		var c models.Call
		if err := rows.Scan(&c.ID, &c.CallID, &c.Direction, &c.RemoteURI,
			&c.StartTime, &c.AnswerTime, &c.EndTime, &c.Duration,
			&c.Disposition, &c.RecordingFile, &c.Transcript, &c.Sentiment,
			&c.Summary, &c.AnalyticsState, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning call row: %w", err)
		}
		calls = append(calls, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating call rows: %w", err)
	}
	return calls, nil
}
