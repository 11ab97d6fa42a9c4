package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/trobanga/enzflow/internal/lib"
	"github.com/trobanga/enzflow/internal/models"
	"github.com/trobanga/enzflow/internal/runner"
	"github.com/trobanga/enzflow/internal/services"
)

// memStore is an in-memory JobStore
type memStore struct {
	mu       sync.Mutex
	jobs     map[string]models.Job
	sources  map[string]models.SourceFile
	progress []int
	messages []string
}

func newMemStore() *memStore {
	return &memStore{jobs: map[string]models.Job{}, sources: map[string]models.SourceFile{}}
}

func (s *memStore) GetJob(_ context.Context, id string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, lib.ErrJobNotFound(id)
	}
	return &job, nil
}

func (s *memStore) GetSourceFile(_ context.Context, id string) (*models.SourceFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sf, ok := s.sources[id]
	if !ok {
		return nil, lib.ErrFileNotFound(id)
	}
	return &sf, nil
}

func (s *memStore) ClaimJob(_ context.Context, id string, now time.Time) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job := s.jobs[id]
	job.Status = models.JobStatusRunning
	job.StartedAt = &now
	job.CompletedAt = nil
	job.ErrorMessage = ""
	job.Progress = 0
	job.ProgressMessage = ""
	s.save(job)
	return &job, nil
}

func (s *memStore) UpdateProgress(_ context.Context, id string, progress int, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = append(s.progress, progress)
	s.messages = append(s.messages, message)
	s.jobs[id] = models.UpdateProgress(s.jobs[id], progress, message)
	return nil
}

func (s *memStore) SaveStages(_ context.Context, id string, current models.StageName, stages []models.StageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job := s.jobs[id]
	job.Stage = current
	job.Stages = append([]models.StageRecord{}, stages...)
	s.jobs[id] = job
	return nil
}

func (s *memStore) CompleteJob(_ context.Context, job models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.save(job)
	return nil
}

func (s *memStore) FailJob(_ context.Context, job models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.save(job)
	return nil
}

func (s *memStore) save(job models.Job) {
	s.jobs[job.ID] = job
	sf := s.sources[job.SourceFileID]
	sf.Status = models.SourceStatusFor(job.Status)
	s.sources[job.SourceFileID] = sf
}

func (s *memStore) job(t *testing.T, id string) models.Job {
	t.Helper()
	job, err := s.GetJob(context.Background(), id)
	require.NoError(t, err)
	return *job
}

// fakePreparer hands out fixed references and counts repairs
type fakePreparer struct {
	mu        sync.Mutex
	paths     models.PreparedDatabasePaths
	initErr   error
	repairErr error
	repairs   int
}

func (p *fakePreparer) Initialize(context.Context) (models.PreparedDatabasePaths, error) {
	return p.paths, p.initErr
}

func (p *fakePreparer) Repair(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.repairs++
	return p.repairErr
}

func (p *fakePreparer) repaired() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.repairs > 0 && p.repairErr == nil
}

// emapperResult is what one emapper invocation leaves behind
type emapperResult struct {
	code        int
	annotations string
	hits        string
	stderr      string
}

// toolExecutor writes scripted tool outputs instead of running anything
type toolExecutor struct {
	mu       sync.Mutex
	calls    []runner.Command
	hmmOut   string
	tier1Out string
	emapper  func(method string) emapperResult
	onRun    func(cmd runner.Command)
}

func (e *toolExecutor) Run(_ context.Context, cmd runner.Command, _ time.Duration, _ runner.ProgressSink) (int, bool, error) {
	e.mu.Lock()
	e.calls = append(e.calls, cmd)
	e.mu.Unlock()
	if e.onRun != nil {
		e.onRun(cmd)
	}

	switch {
	case cmd.Name == "hmmsearch":
		return 0, false, os.WriteFile(argAfter(cmd.Args, "-o"), []byte(e.hmmOut), 0644)
	case cmd.Name == "diamond" && cmd.Args[0] == "blastp":
		return 0, false, os.WriteFile(argAfter(cmd.Args, "-o"), []byte(e.tier1Out), 0644)
	case cmd.Name == "emapper.py":
		res := emapperResult{}
		if e.emapper != nil {
			res = e.emapper(argAfter(cmd.Args, "-m"))
		}
		prefix := filepath.Join(cmd.Dir, argAfter(cmd.Args, "-o"))
		if res.annotations != "" {
			if err := os.WriteFile(prefix+".emapper.annotations", []byte(res.annotations), 0644); err != nil {
				return -1, false, err
			}
		}
		if res.hits != "" {
			if err := os.WriteFile(prefix+".emapper.hits", []byte(res.hits), 0644); err != nil {
				return -1, false, err
			}
		}
		if err := os.WriteFile(cmd.StderrPath, []byte(res.stderr), 0644); err != nil {
			return -1, false, err
		}
		return res.code, false, nil
	}
	return 0, false, nil
}

func (e *toolExecutor) emapperMethods() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var methods []string
	for _, c := range e.calls {
		if c.Name == "emapper.py" {
			methods = append(methods, argAfter(c.Args, "-m"))
		}
	}
	return methods
}

func argAfter(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

type testEnv struct {
	env   *Env
	store *memStore
	prep  *fakePreparer
	exec  *toolExecutor
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()
	cfg := models.DefaultConfig()
	cfg.DataDir = filepath.Join(root, "data")
	cfg.References.EggnogDir = filepath.Join(root, "eggnog")
	cfg.References.KofamDir = filepath.Join(root, "kofam")
	cfg.Progress.MinInterval = 0

	profiles := filepath.Join(cfg.References.KofamDir, "profiles_gut.hmm")
	require.NoError(t, os.MkdirAll(cfg.References.KofamDir, 0755))
	require.NoError(t, os.WriteFile(profiles, []byte("HMMER3/f\n"), 0644))

	store := newMemStore()
	prep := &fakePreparer{paths: models.PreparedDatabasePaths{
		GutDB:         filepath.Join(root, "gut_db.dmnd"),
		HMMProfiles:   profiles,
		ProfileSubset: true,
		Initialized:   true,
	}}
	exec := &toolExecutor{}

	env := NewEnv(&cfg, store, prep, exec, lib.NewNopLogger())
	return &testEnv{env: env, store: store, prep: prep, exec: exec}
}

// submit stores a pending job whose input holds content
func (te *testEnv) submit(t *testing.T, content string) models.Job {
	t.Helper()
	ws := te.env.Workspace
	source := models.SourceFile{
		ID:           uuid.New().String(),
		OwnerID:      "tester",
		OriginalName: "sample.fasta",
		Status:       models.SourceFileUploaded,
		CreatedAt:    time.Now(),
	}
	source.Path = filepath.Join(ws.UploadDir(source.ID), source.OriginalName)
	require.NoError(t, services.WriteFileAtomic(source.Path, []byte(content)))
	source.Size = int64(len(content))

	job := models.Job{
		ID:           uuid.New().String(),
		OwnerID:      source.OwnerID,
		SourceFileID: source.ID,
		Status:       models.JobStatusPending,
		CreatedAt:    time.Now(),
	}

	te.store.mu.Lock()
	te.store.sources[source.ID] = source
	te.store.jobs[job.ID] = job
	te.store.mu.Unlock()
	return job
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}
