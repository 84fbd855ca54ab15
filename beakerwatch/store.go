package beakerwatch

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// RunRecord is the persisted audit row for one submitted job run.
type RunRecord struct {
	ID          string     `json:"id"`      // run id, assigned locally
	JobID       string     `json:"job_id"`  // hub-assigned job id, e.g. "J:12345"
	Status      Status     `json:"status"`  // last recorded status
	Outcome     *Outcome   `json:"outcome"` // set once the run finished
	ErrorMsg    *string    `json:"error,omitempty"`
	SubmittedAt time.Time  `json:"submitted_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// ErrRunNotFound is returned by Store.GetByJobID for unknown job ids.
var ErrRunNotFound = errors.New("run not found")

// Store abstracts persistence of run lifecycle records.
// Implementations must be safe for concurrent use.
type Store interface {
	InsertSubmitted(ctx context.Context, rec RunRecord) error
	UpdateStatus(ctx context.Context, jobID string, status Status, at time.Time) error
	MarkFinished(ctx context.Context, jobID string, outcome Outcome, status Status, errMsg string, at time.Time) error
	GetByJobID(ctx context.Context, jobID string) (*RunRecord, error)
}

// SchemaSQL creates the run table. Applied by EnsureSchema; kept portable
// across sqlite and Postgres/MySQL.
const SchemaSQL = `
CREATE TABLE IF NOT EXISTS beaker_runs (
    id           VARCHAR(64) PRIMARY KEY,
    job_id       VARCHAR(64)  NOT NULL UNIQUE,
    status       VARCHAR(32)  NOT NULL,
    outcome      VARCHAR(16)  NULL,
    error_msg    TEXT         NULL,
    submitted_at DATETIME     NOT NULL,
    updated_at   DATETIME     NULL,
    finished_at  DATETIME     NULL
);
`

// SQLStore is a Store backed by a relational DB (sqlite/Postgres/MySQL).
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// EnsureSchema applies the run table schema.
func EnsureSchema(db *sql.DB) error {
	_, err := db.Exec(SchemaSQL)
	return err
}

func (s *SQLStore) InsertSubmitted(ctx context.Context, rec RunRecord) error {
	if s.db == nil {
		return errors.New("nil db")
	}
	q := `INSERT INTO beaker_runs (id, job_id, status, submitted_at) VALUES (?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q, rec.ID, rec.JobID, string(rec.Status), rec.SubmittedAt.UTC())
	if err != nil {
		// attempt Postgres style placeholders
		qpg := `INSERT INTO beaker_runs (id, job_id, status, submitted_at) VALUES ($1, $2, $3, $4)`
		_, err2 := s.db.ExecContext(ctx, qpg, rec.ID, rec.JobID, string(rec.Status), rec.SubmittedAt.UTC())
		return err2
	}
	return nil
}

func (s *SQLStore) UpdateStatus(ctx context.Context, jobID string, status Status, at time.Time) error {
	if s.db == nil {
		return errors.New("nil db")
	}
	q := `UPDATE beaker_runs SET status = ?, updated_at = ? WHERE job_id = ?`
	_, err := s.db.ExecContext(ctx, q, string(status), at.UTC(), jobID)
	if err != nil {
		qpg := `UPDATE beaker_runs SET status = $1, updated_at = $2 WHERE job_id = $3`
		_, err2 := s.db.ExecContext(ctx, qpg, string(status), at.UTC(), jobID)
		return err2
	}
	return nil
}

func (s *SQLStore) MarkFinished(ctx context.Context, jobID string, outcome Outcome, status Status, errMsg string, at time.Time) error {
	if s.db == nil {
		return errors.New("nil db")
	}
	var msg *string
	if errMsg != "" {
		msg = &errMsg
	}
	q := `UPDATE beaker_runs SET outcome = ?, status = ?, error_msg = ?, updated_at = ?, finished_at = ? WHERE job_id = ?`
	_, err := s.db.ExecContext(ctx, q, string(outcome), string(status), msg, at.UTC(), at.UTC(), jobID)
	if err != nil {
		qpg := `UPDATE beaker_runs SET outcome = $1, status = $2, error_msg = $3, updated_at = $4, finished_at = $5 WHERE job_id = $6`
		_, err2 := s.db.ExecContext(ctx, qpg, string(outcome), string(status), msg, at.UTC(), at.UTC(), jobID)
		return err2
	}
	return nil
}

func (s *SQLStore) GetByJobID(ctx context.Context, jobID string) (*RunRecord, error) {
	if s.db == nil {
		return nil, errors.New("nil db")
	}
	const cols = `id, job_id, status, outcome, error_msg, submitted_at, updated_at, finished_at`
	row := s.db.QueryRowContext(ctx, `SELECT `+cols+` FROM beaker_runs WHERE job_id = ?`, jobID)
	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		// retry with Postgres placeholders
		row = s.db.QueryRowContext(ctx, `SELECT `+cols+` FROM beaker_runs WHERE job_id = $1`, jobID)
		rec, err = scanRun(row)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		if err != nil {
			return nil, err
		}
	}
	return rec, nil
}

func scanRun(row *sql.Row) (*RunRecord, error) {
	rec := RunRecord{}
	var status string
	var outcome, errorMsg sql.NullString
	var updatedAt, finishedAt sql.NullTime
	if err := row.Scan(&rec.ID, &rec.JobID, &status, &outcome, &errorMsg, &rec.SubmittedAt, &updatedAt, &finishedAt); err != nil {
		return nil, err
	}
	rec.Status = Status(status)
	if outcome.Valid {
		o := Outcome(outcome.String)
		rec.Outcome = &o
	}
	if errorMsg.Valid {
		v := errorMsg.String
		rec.ErrorMsg = &v
	}
	if updatedAt.Valid {
		t := updatedAt.Time
		rec.UpdatedAt = &t
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		rec.FinishedAt = &t
	}
	return &rec, nil
}
