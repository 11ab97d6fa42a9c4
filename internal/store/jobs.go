package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/trobanga/enzflow/internal/lib"
	"github.com/trobanga/enzflow/internal/models"
)

const jobColumns = `id, owner_id, source_file_id, status, created_at, started_at, completed_at,
	progress, progress_message, error_message, result_path, pathway_path, fasta_path,
	processing_time, tool_version, stage, stages, pid`

const sourceColumns = `id, owner_id, path, original_name, size, status, description, abundance_path, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.Job, error) {
	var (
		j                    models.Job
		createdAt            string
		startedAt, completed sql.NullString
		stages               string
	)
	err := row.Scan(&j.ID, &j.OwnerID, &j.SourceFileID, &j.Status, &createdAt, &startedAt, &completed,
		&j.Progress, &j.ProgressMessage, &j.ErrorMessage, &j.ResultPath, &j.PathwayPath, &j.FastaPath,
		&j.ProcessingTime, &j.ToolVersion, &j.Stage, &stages, &j.PID)
	if err != nil {
		return nil, err
	}

	if j.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("job %s created_at: %w", j.ID, err)
	}
	if j.StartedAt, err = parseNullTime(startedAt); err != nil {
		return nil, fmt.Errorf("job %s started_at: %w", j.ID, err)
	}
	if j.CompletedAt, err = parseNullTime(completed); err != nil {
		return nil, fmt.Errorf("job %s completed_at: %w", j.ID, err)
	}
	if stages != "" {
		if err := json.Unmarshal([]byte(stages), &j.Stages); err != nil {
			return nil, fmt.Errorf("job %s stages: %w", j.ID, err)
		}
	}
	return &j, nil
}

func scanSource(row rowScanner) (*models.SourceFile, error) {
	var (
		f         models.SourceFile
		createdAt string
	)
	err := row.Scan(&f.ID, &f.OwnerID, &f.Path, &f.OriginalName, &f.Size, &f.Status,
		&f.Description, &f.AbundancePath, &createdAt)
	if err != nil {
		return nil, err
	}
	if f.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("source file %s created_at: %w", f.ID, err)
	}
	return &f, nil
}

func marshalStages(stages []models.StageRecord) (string, error) {
	if stages == nil {
		return "[]", nil
	}
	data, err := json.Marshal(stages)
	if err != nil {
		return "", fmt.Errorf("encode stages: %w", err)
	}
	return string(data), nil
}

// CreateUpload inserts a source file and its pending job together
func (s *Store) CreateUpload(ctx context.Context, f *models.SourceFile, job *models.Job) error {
	if err := f.Validate(); err != nil {
		return fmt.Errorf("invalid source file: %w", err)
	}
	if err := job.Validate(); err != nil {
		return fmt.Errorf("invalid job: %w", err)
	}
	stages, err := marshalStages(job.Stages)
	if err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO source_files (`+sourceColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			f.ID, f.OwnerID, f.Path, f.OriginalName, f.Size, string(f.Status), f.Description, f.AbundancePath,
			formatTime(f.CreatedAt))
		if err != nil {
			return fmt.Errorf("create source file: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO jobs (`+jobColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			job.ID, job.OwnerID, job.SourceFileID, string(job.Status), formatTime(job.CreatedAt),
			nullTime(job.StartedAt), nullTime(job.CompletedAt), job.Progress, job.ProgressMessage,
			job.ErrorMessage, job.ResultPath, job.PathwayPath, job.FastaPath, job.ProcessingTime,
			job.ToolVersion, string(job.Stage), stages, job.PID)
		if err != nil {
			return fmt.Errorf("create job: %w", err)
		}
		return nil
	})
}

// GetJob returns one job
func (s *Store) GetJob(ctx context.Context, id string) (*models.Job, error) {
	job, err := scanJob(s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// GetSourceFile returns one source file
func (s *Store) GetSourceFile(ctx context.Context, id string) (*models.SourceFile, error) {
	f, err := scanSource(s.db.QueryRowContext(ctx, `SELECT `+sourceColumns+` FROM source_files WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get source file: %w", err)
	}
	return f, nil
}

// ListJobs returns the owner's jobs newest first; an empty owner lists all jobs
func (s *Store) ListJobs(ctx context.Context, owner string) ([]models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	var args []any
	if owner != "" {
		query += ` WHERE owner_id = ?`
		args = append(args, owner)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	return s.queryJobs(ctx, query, args...)
}

// ListStuck returns running jobs that started before olderThan
func (s *Store) ListStuck(ctx context.Context, olderThan time.Time) ([]models.Job, error) {
	return s.queryJobs(ctx,
		`SELECT `+jobColumns+` FROM jobs
		 WHERE status = 'running' AND (started_at IS NULL OR started_at < ?)
		 ORDER BY started_at, id`,
		formatTime(olderThan))
}

func (s *Store) queryJobs(ctx context.Context, query string, args ...any) ([]models.Job, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// CountByStatus returns the number of jobs in each status
func (s *Store) CountByStatus(ctx context.Context) (map[models.JobStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[models.JobStatus]int)
	for rows.Next() {
		var status models.JobStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("count jobs: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// UpdateProgress records a checkpoint; stored progress never decreases
func (s *Store) UpdateProgress(ctx context.Context, id string, progress int, message string) error {
	progress = max(0, min(progress, 100))
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET progress = MAX(progress, ?), progress_message = ? WHERE id = ?`,
		progress, message, id)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return expectRow(res)
}

// SaveStages records the stage list and the current stage
func (s *Store) SaveStages(ctx context.Context, id string, current models.StageName, stages []models.StageRecord) error {
	encoded, err := marshalStages(stages)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE jobs SET stage = ?, stages = ? WHERE id = ?`, string(current), encoded, id)
	if err != nil {
		return fmt.Errorf("save stages: %w", err)
	}
	return expectRow(res)
}

// SetPID records the detached process running the job
func (s *Store) SetPID(ctx context.Context, id string, pid int) error {
	res, err := s.db.ExecContext(ctx, `UPDATE jobs SET pid = ? WHERE id = ?`, pid, id)
	if err != nil {
		return fmt.Errorf("set pid: %w", err)
	}
	return expectRow(res)
}

// claimSet is the column list written when a job takes the running slot
const claimSet = `status = 'running', started_at = ?, completed_at = NULL, progress = 0,
	progress_message = '', error_message = '', pid = 0`

// slotFree is true when no job other than the candidate holds the slot.
// Jobs running since before the cutoff are stuck and do not count.
const slotFree = `NOT EXISTS (
	SELECT 1 FROM jobs AS r WHERE r.status = 'running' AND r.started_at > ? AND r.id != jobs.id)`

// ClaimNext moves the oldest pending job to running if the slot is free.
// Admission is one conditional UPDATE, so two concurrent callers can never
// both claim. It returns nil when nothing was admitted.
func (s *Store) ClaimNext(ctx context.Context, now time.Time) (*models.Job, error) {
	var claimed *models.Job
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		job, err := scanJob(tx.QueryRowContext(ctx,
			`UPDATE jobs SET `+claimSet+`
			 WHERE id = (SELECT id FROM jobs WHERE status = 'pending' ORDER BY created_at, id LIMIT 1)
			   AND `+slotFree+`
			 RETURNING `+jobColumns,
			formatTime(now), formatTime(now.Add(-s.stuckAfter))))
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("claim next job: %w", err)
		}
		if err := setSourceStatus(ctx, tx, job.SourceFileID, job.Status); err != nil {
			return err
		}
		claimed = job
		return nil
	})
	return claimed, err
}

// ClaimJob moves one pending or failed job to running for explicit
// processing. The running slot is still honored.
func (s *Store) ClaimJob(ctx context.Context, id string, now time.Time) (*models.Job, error) {
	var claimed *models.Job
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		job, err := scanJob(tx.QueryRowContext(ctx,
			`UPDATE jobs SET `+claimSet+`
			 WHERE id = ? AND status IN ('pending', 'failed') AND `+slotFree+`
			 RETURNING `+jobColumns,
			formatTime(now), id, formatTime(now.Add(-s.stuckAfter))))
		if errors.Is(err, sql.ErrNoRows) {
			return s.claimRefused(ctx, tx, id)
		}
		if err != nil {
			return fmt.Errorf("claim job: %w", err)
		}
		if err := setSourceStatus(ctx, tx, job.SourceFileID, job.Status); err != nil {
			return err
		}
		claimed = job
		return nil
	})
	return claimed, err
}

// claimRefused explains why ClaimJob matched no row
func (s *Store) claimRefused(ctx context.Context, tx *sql.Tx, id string) error {
	var status models.JobStatus
	err := tx.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("claim job: %w", err)
	}
	if status != models.JobStatusPending && status != models.JobStatusFailed {
		return lib.ErrInvalidTransition(id, status, models.JobStatusRunning)
	}
	return ErrSlotBusy
}

// ReleaseClaim puts a claimed job back to pending after a failed launch
func (s *Store) ReleaseClaim(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var sourceID string
		err := tx.QueryRowContext(ctx,
			`UPDATE jobs SET status = 'pending', started_at = NULL, pid = 0
			 WHERE id = ? AND status = 'running'
			 RETURNING source_file_id`, id).Scan(&sourceID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("release claim: %w", err)
		}
		return setSourceStatus(ctx, tx, sourceID, models.JobStatusPending)
	})
}

// CompleteJob persists a job produced by models.CompleteJob
func (s *Store) CompleteJob(ctx context.Context, job models.Job) error {
	if job.Status != models.JobStatusCompleted {
		return fmt.Errorf("complete job: unexpected status %s", job.Status)
	}
	return s.saveTransition(ctx, job, models.JobStatusRunning)
}

// FailJob persists a job produced by models.FailJob
func (s *Store) FailJob(ctx context.Context, job models.Job) error {
	if job.Status != models.JobStatusFailed {
		return fmt.Errorf("fail job: unexpected status %s", job.Status)
	}
	return s.saveTransition(ctx, job, models.JobStatusRunning)
}

// ResetJob persists a job produced by models.ResetJob. Completed jobs are
// never reset.
func (s *Store) ResetJob(ctx context.Context, job models.Job) error {
	if job.Status != models.JobStatusPending {
		return fmt.Errorf("reset job: unexpected status %s", job.Status)
	}
	return s.saveTransition(ctx, job, models.JobStatusPending, models.JobStatusRunning, models.JobStatusFailed)
}

// saveTransition writes every mutable column of job, provided the stored
// status is one of from, and moves the source file along with it
func (s *Store) saveTransition(ctx context.Context, job models.Job, from ...models.JobStatus) error {
	stages, err := marshalStages(job.Stages)
	if err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		var current models.JobStatus
		err := tx.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = ?`, job.ID).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("load job status: %w", err)
		}
		allowed := false
		for _, f := range from {
			if current == f {
				allowed = true
				break
			}
		}
		if !allowed {
			return lib.ErrInvalidTransition(job.ID, current, job.Status)
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE jobs SET status = ?, started_at = ?, completed_at = ?, progress = ?,
			   progress_message = ?, error_message = ?, result_path = ?, pathway_path = ?,
			   fasta_path = ?, processing_time = ?, tool_version = ?, stage = ?, stages = ?, pid = ?
			 WHERE id = ?`,
			string(job.Status), nullTime(job.StartedAt), nullTime(job.CompletedAt), job.Progress,
			job.ProgressMessage, job.ErrorMessage, job.ResultPath, job.PathwayPath,
			job.FastaPath, job.ProcessingTime, job.ToolVersion, string(job.Stage), stages, job.PID,
			job.ID)
		if err != nil {
			return fmt.Errorf("save job: %w", err)
		}
		return setSourceStatus(ctx, tx, job.SourceFileID, job.Status)
	})
}

// DeleteJob removes a job and its source file
func (s *Store) DeleteJob(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var sourceID string
		err := tx.QueryRowContext(ctx, `SELECT source_file_id FROM jobs WHERE id = ?`, id).Scan(&sourceID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("delete job: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete job: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM source_files WHERE id = ?`, sourceID); err != nil {
			return fmt.Errorf("delete source file: %w", err)
		}
		return nil
	})
}

func setSourceStatus(ctx context.Context, tx *sql.Tx, sourceID string, status models.JobStatus) error {
	_, err := tx.ExecContext(ctx, `UPDATE source_files SET status = ? WHERE id = ?`,
		string(models.SourceStatusFor(status)), sourceID)
	if err != nil {
		return fmt.Errorf("update source file status: %w", err)
	}
	return nil
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
