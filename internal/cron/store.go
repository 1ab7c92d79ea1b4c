package cron

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS cron_jobs (
	id          TEXT PRIMARY KEY,
	expression  TEXT NOT NULL,
	command     TEXT NOT NULL,
	description TEXT,
	created_at  TEXT NOT NULL,
	next_run    TEXT NOT NULL,
	last_run    TEXT,
	last_status TEXT,
	last_output TEXT
);
CREATE INDEX IF NOT EXISTS idx_cron_jobs_next_run ON cron_jobs(next_run);
`

// Store persists cron jobs in an embedded SQLite database. All statements
// run under a single mutex around the connection handle.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// OpenStore opens (creating if needed) the cron database at dbPath.
func OpenStore(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create cron data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open cron database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize cron schema: %w", err)
	}
	return &Store{db: db}, nil
}

// AddTask computes the task's next run strictly after now and inserts or
// replaces the job by id.
func (s *Store) AddTask(task Task) error {
	now := time.Now().UTC()
	nextRun, err := NextRun(task.Expression, now)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO cron_jobs (id, expression, command, description, created_at, next_run)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		task.ID, task.Expression, task.Command, nullable(task.Description),
		now.Format(time.RFC3339), nextRun.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert cron job: %w", err)
	}
	return nil
}

// RemoveTask deletes a job; the second removal of the same id returns false.
func (s *Store) RemoveTask(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`DELETE FROM cron_jobs WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete cron job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete cron job: %w", err)
	}
	return n > 0, nil
}

// ListTasks returns every job ordered by next_run ascending.
func (s *Store) ListTasks() ([]Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queryJobs(`SELECT id, expression, command, description, created_at, next_run, last_run, last_status, last_output
		FROM cron_jobs ORDER BY next_run ASC`)
}

// DueTasks returns jobs with next_run at or before now, ascending.
func (s *Store) DueTasks(now time.Time) ([]Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queryJobs(`SELECT id, expression, command, description, created_at, next_run, last_run, last_status, last_output
		FROM cron_jobs WHERE next_run <= ? ORDER BY next_run ASC`, now.UTC().Format(time.RFC3339))
}

// queryJobs must be called with the mutex held.
func (s *Store) queryJobs(query string, args ...any) ([]Job, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query cron jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var (
			job                    Job
			description            sql.NullString
			createdAtRaw, nextRaw  string
			lastRunRaw, lastStatus sql.NullString
			lastOutput             sql.NullString
		)
		if err := rows.Scan(&job.ID, &job.Expression, &job.Command, &description,
			&createdAtRaw, &nextRaw, &lastRunRaw, &lastStatus, &lastOutput); err != nil {
			return nil, fmt.Errorf("scan cron job: %w", err)
		}

		job.Description = description.String
		job.LastStatus = lastStatus.String
		job.LastOutput = lastOutput.String

		if job.CreatedAt, err = parseRFC3339(createdAtRaw); err != nil {
			return nil, err
		}
		if job.NextRun, err = parseRFC3339(nextRaw); err != nil {
			return nil, err
		}
		if lastRunRaw.Valid {
			t, err := parseRFC3339(lastRunRaw.String)
			if err != nil {
				return nil, err
			}
			job.LastRun = &t
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// RescheduleAfterRun recomputes next_run from now (not from the prior
// next_run, so missed recurrences collapse to one) and records the run
// outcome.
func (s *Store) RescheduleAfterRun(job *Job, success bool, output string) error {
	now := time.Now().UTC()
	nextRun, err := NextRun(job.Expression, now)
	if err != nil {
		return err
	}
	status := "error"
	if success {
		status = "ok"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(
		`UPDATE cron_jobs SET next_run = ?, last_run = ?, last_status = ?, last_output = ? WHERE id = ?`,
		nextRun.Format(time.RFC3339), now.Format(time.RFC3339), status, output, job.ID,
	)
	if err != nil {
		return fmt.Errorf("update cron job run state: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func parseRFC3339(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid RFC3339 timestamp %q: %w", raw, err)
	}
	return t.UTC(), nil
}
