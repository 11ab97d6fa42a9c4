package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trobanga/enzflow/internal/lib"
	"github.com/trobanga/enzflow/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "db", "enzflow.db"), lib.NewNopLogger())
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func addJob(t *testing.T, s *Store, owner string, createdAt time.Time) models.Job {
	t.Helper()
	f := &models.SourceFile{
		ID:           uuid.New().String(),
		OwnerID:      owner,
		Path:         "/data/uploads/x/sample.fasta",
		OriginalName: "sample.fasta",
		Size:         42,
		Status:       models.SourceFileUploaded,
		CreatedAt:    createdAt,
	}
	job := &models.Job{
		ID:           uuid.New().String(),
		OwnerID:      owner,
		SourceFileID: f.ID,
		Status:       models.JobStatusPending,
		CreatedAt:    createdAt,
	}
	require.NoError(t, s.CreateUpload(context.Background(), f, job))
	return *job
}

func sourceStatus(t *testing.T, s *Store, job models.Job) models.SourceFileStatus {
	t.Helper()
	f, err := s.GetSourceFile(context.Background(), job.SourceFileID)
	require.NoError(t, err)
	return f.Status
}

func TestMigrate_Idempotent(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Migrate())
	require.NoError(t, s.Ping(context.Background()))
}

func TestCreateAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	job := addJob(t, s, "alice", epoch)

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, models.JobStatusPending, got.Status)
	assert.True(t, got.CreatedAt.Equal(epoch))
	assert.Nil(t, got.StartedAt)
	assert.Empty(t, got.Stages)

	_, err = s.GetJob(ctx, uuid.New().String())
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetSourceFile(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateUpload_RejectsInvalid(t *testing.T) {
	s := openTestStore(t)
	f := &models.SourceFile{ID: "s", OriginalName: "../escape.fa"}
	job := &models.Job{ID: uuid.New().String(), SourceFileID: "s", Status: models.JobStatusPending}
	assert.Error(t, s.CreateUpload(context.Background(), f, job))
}

func TestListJobs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	a1 := addJob(t, s, "alice", epoch)
	b1 := addJob(t, s, "bob", epoch.Add(time.Minute))
	a2 := addJob(t, s, "alice", epoch.Add(2*time.Minute))

	jobs, err := s.ListJobs(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, a2.ID, jobs[0].ID)
	assert.Equal(t, a1.ID, jobs[1].ID)

	all, err := s.ListJobs(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, b1.ID, all[1].ID)
}

func TestClaimNext_FIFOAndSingleSlot(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	second := addJob(t, s, "alice", epoch.Add(time.Minute))
	first := addJob(t, s, "bob", epoch)

	claimed, err := s.ClaimNext(ctx, epoch.Add(time.Hour))
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, first.ID, claimed.ID)
	assert.Equal(t, models.JobStatusRunning, claimed.Status)
	assert.Equal(t, models.SourceFileProcessing, sourceStatus(t, s, first))

	again, err := s.ClaimNext(ctx, epoch.Add(time.Hour))
	require.NoError(t, err)
	assert.Nil(t, again)

	done := models.CompleteJob(*claimed, models.Artifacts{EnzymesCSV: "/r/e.csv"}, epoch.Add(2*time.Hour))
	require.NoError(t, s.CompleteJob(ctx, done))

	next, err := s.ClaimNext(ctx, epoch.Add(2*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, second.ID, next.ID)
}

func TestClaimNext_IgnoresStuckRunningJob(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	addJob(t, s, "alice", epoch)
	queued := addJob(t, s, "alice", epoch.Add(time.Minute))

	_, err := s.ClaimNext(ctx, epoch)
	require.NoError(t, err)

	blocked, err := s.ClaimNext(ctx, epoch.Add(5*time.Hour))
	require.NoError(t, err)
	assert.Nil(t, blocked)

	admitted, err := s.ClaimNext(ctx, epoch.Add(7*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, admitted)
	assert.Equal(t, queued.ID, admitted.ID)
}

func TestClaimNext_Concurrent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		addJob(t, s, "alice", epoch.Add(time.Duration(i)*time.Second))
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	claims := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			job, err := s.ClaimNext(ctx, epoch.Add(time.Hour))
			assert.NoError(t, err)
			if job != nil {
				mu.Lock()
				claims++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, claims)
	counts, err := s.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[models.JobStatusRunning])
	assert.Equal(t, 4, counts[models.JobStatusPending])
}

func TestClaimJob(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	a := addJob(t, s, "alice", epoch)
	b := addJob(t, s, "alice", epoch.Add(time.Minute))

	claimed, err := s.ClaimJob(ctx, b.ID, epoch.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, b.ID, claimed.ID)

	_, err = s.ClaimJob(ctx, a.ID, epoch.Add(time.Hour))
	assert.ErrorIs(t, err, ErrSlotBusy)

	_, err = s.ClaimJob(ctx, b.ID, epoch.Add(time.Hour))
	var ee *lib.EnzflowError
	assert.ErrorAs(t, err, &ee)

	_, err = s.ClaimJob(ctx, uuid.New().String(), epoch)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClaimJob_RetriesFailedJob(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	job := addJob(t, s, "alice", epoch)

	claimed, err := s.ClaimJob(ctx, job.ID, epoch)
	require.NoError(t, err)
	require.NoError(t, s.FailJob(ctx, models.FailJob(*claimed, "boom", epoch.Add(time.Minute))))
	assert.Equal(t, models.SourceFileFailed, sourceStatus(t, s, job))

	retried, err := s.ClaimJob(ctx, job.ID, epoch.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, retried.Status)
	assert.Empty(t, retried.ErrorMessage)
	assert.Nil(t, retried.CompletedAt)
}

func TestReleaseClaim(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	job := addJob(t, s, "alice", epoch)

	_, err := s.ClaimNext(ctx, epoch)
	require.NoError(t, err)
	require.NoError(t, s.ReleaseClaim(ctx, job.ID))

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, got.Status)
	assert.Nil(t, got.StartedAt)
	assert.Equal(t, models.SourceFileUploaded, sourceStatus(t, s, job))

	assert.ErrorIs(t, s.ReleaseClaim(ctx, job.ID), ErrNotFound)
}

func TestProgressAndStages(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	job := addJob(t, s, "alice", epoch)

	require.NoError(t, s.UpdateProgress(ctx, job.ID, 40, "tier 2"))
	require.NoError(t, s.UpdateProgress(ctx, job.ID, 20, "still tier 2"))
	require.NoError(t, s.UpdateProgress(ctx, job.ID, 150, "over"))

	stages := models.InitializeStages()
	stages[0] = models.CompleteStage(models.StartStage(stages[0], epoch), 3, epoch.Add(time.Second))
	require.NoError(t, s.SaveStages(ctx, job.ID, models.StageHMMSearch, stages))
	require.NoError(t, s.SetPID(ctx, job.ID, 4242))

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, "over", got.ProgressMessage)
	assert.Equal(t, models.StageHMMSearch, got.Stage)
	require.Len(t, got.Stages, len(models.AllStages))
	assert.Equal(t, 3, got.Stages[0].Hits)
	assert.Equal(t, models.StageStatusCompleted, got.Stages[0].Status)
	assert.Equal(t, 4242, got.PID)

	assert.ErrorIs(t, s.UpdateProgress(ctx, "missing", 10, "x"), ErrNotFound)
}

func TestTerminalTransitions(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	job := addJob(t, s, "alice", epoch)

	// Only running jobs complete
	pending, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	err = s.CompleteJob(ctx, models.CompleteJob(*pending, models.Artifacts{}, epoch))
	var ee *lib.EnzflowError
	require.ErrorAs(t, err, &ee)

	claimed, err := s.ClaimNext(ctx, epoch)
	require.NoError(t, err)
	done := models.CompleteJob(*claimed, models.Artifacts{
		EnzymesCSV:  "/r/enzymes.csv",
		PathwaysCSV: "/r/pathways.csv",
		FASTA:       "/r/enzymes.fasta",
	}, epoch.Add(90*time.Second))
	done.ToolVersion = "v1"
	require.NoError(t, s.CompleteJob(ctx, done))

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	assert.Equal(t, "/r/enzymes.csv", got.ResultPath)
	assert.Equal(t, "/r/pathways.csv", got.PathwayPath)
	assert.Equal(t, "/r/enzymes.fasta", got.FastaPath)
	assert.InDelta(t, 90.0, got.ProcessingTime, 0.001)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, "v1", got.ToolVersion)
	assert.Equal(t, models.SourceFileCompleted, sourceStatus(t, s, job))

	err = s.ResetJob(ctx, models.ResetJob(*got, "again"))
	require.ErrorAs(t, err, &ee)
}

func TestResetJob(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	job := addJob(t, s, "alice", epoch)

	claimed, err := s.ClaimNext(ctx, epoch)
	require.NoError(t, err)
	require.NoError(t, s.UpdateProgress(ctx, job.ID, 40, "tier 2"))
	require.NoError(t, s.SetPID(ctx, job.ID, 99))

	current, err := s.GetJob(ctx, claimed.ID)
	require.NoError(t, err)
	require.NoError(t, s.ResetJob(ctx, models.ResetJob(*current, "manual")))

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, got.Status)
	assert.Equal(t, "manual", got.ErrorMessage)
	assert.Nil(t, got.StartedAt)
	assert.Nil(t, got.CompletedAt)
	assert.Zero(t, got.PID)
	assert.Zero(t, got.Progress)
	assert.Equal(t, models.SourceFileUploaded, sourceStatus(t, s, job))
}

func TestListStuck(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	job := addJob(t, s, "alice", epoch)
	addJob(t, s, "alice", epoch.Add(time.Minute))

	_, err := s.ClaimNext(ctx, epoch)
	require.NoError(t, err)

	stuck, err := s.ListStuck(ctx, epoch.Add(-time.Minute))
	require.NoError(t, err)
	assert.Empty(t, stuck)

	stuck, err = s.ListStuck(ctx, epoch.Add(3*time.Hour))
	require.NoError(t, err)
	require.Len(t, stuck, 1)
	assert.Equal(t, job.ID, stuck[0].ID)
}

func TestDeleteJob(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	job := addJob(t, s, "alice", epoch)

	require.NoError(t, s.DeleteJob(ctx, job.ID))
	_, err := s.GetJob(ctx, job.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetSourceFile(ctx, job.SourceFileID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeleteJob(ctx, job.ID), ErrNotFound)
}

func TestTimeRoundTrip(t *testing.T) {
	local := time.Date(2024, 1, 2, 3, 4, 5, 600, time.FixedZone("X", 3600))
	parsed, err := parseTime(formatTime(local))
	require.NoError(t, err)
	assert.True(t, parsed.Equal(local))
	assert.Less(t, formatTime(epoch), formatTime(epoch.Add(time.Nanosecond)))
}
