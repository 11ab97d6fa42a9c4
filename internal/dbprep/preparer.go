// Package dbprep builds and caches the tier-1 reference databases: the gut
// protein subset with its diamond index, the HMM profile subset, and their
// indexes.
package dbprep

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/trobanga/enzflow/internal/lib"
	"github.com/trobanga/enzflow/internal/models"
	"github.com/trobanga/enzflow/internal/runner"
	"github.com/trobanga/enzflow/internal/services"
)

const (
	gutDirName       = "gut_kegg_db"
	gutProteinsName  = "gut_proteins.fa"
	ko2GenesName     = "ko2genes.txt"
	koKeysName       = "ko_keys.txt"
	gutDBPrefix      = "gut_db"
	profileSubset    = "profiles_gut.hmm"
	preparedFileName = "prepared.json"
	prepareLockName  = ".prepare.lock"
)

const (
	makeDBTimeout   = time.Hour
	hmmFetchTimeout = 10 * time.Minute
	hmmPressTimeout = 30 * time.Minute
	gunzipTimeout   = 5 * time.Minute
	downloadTimeout = 2 * time.Hour
)

// Preparer owns the process-wide PreparedDatabasePaths cache
type Preparer struct {
	cfg     *models.ProjectConfig
	exec    runner.Executor
	builder runner.Builder
	ws      services.Workspace
	logger  *lib.Logger

	mu    sync.Mutex
	paths *models.PreparedDatabasePaths

	repairMu   sync.Mutex
	repairDone bool
	repairErr  error
}

// New returns a preparer; nothing touches disk until Initialize
func New(cfg *models.ProjectConfig, exec runner.Executor, logger *lib.Logger) *Preparer {
	return &Preparer{
		cfg:     cfg,
		exec:    exec,
		builder: runner.NewBuilder(cfg.Tools),
		ws:      services.NewWorkspace(cfg.DataDir),
		logger:  logger,
	}
}

// Cached returns the prepared paths if Initialize already completed
func (p *Preparer) Cached() (models.PreparedDatabasePaths, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paths == nil {
		return models.PreparedDatabasePaths{}, false
	}
	return *p.paths, true
}

// Initialize prepares the tier-1 references once and caches the result.
// Later calls return the cached paths without touching disk. Individual
// step failures only downgrade the result (no gut DB, full profile set).
func (p *Preparer) Initialize(ctx context.Context) (models.PreparedDatabasePaths, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.paths != nil {
		return *p.paths, nil
	}

	if saved, ok := p.loadSaved(); ok {
		p.logger.Info("Reusing prepared databases", "file", p.savedPath())
		p.paths = &saved
		return saved, nil
	}

	// Other processes (serve and detached jobs) prepare into the same files
	lock, err := services.AcquireLock(p.lockPath(), "prepare", true, p.logger)
	if err != nil {
		return models.PreparedDatabasePaths{}, err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			p.logger.Warn("Failed to release prepare lock", "error", err)
		}
	}()

	if saved, ok := p.loadSaved(); ok {
		p.logger.Info("Reusing databases prepared by another process", "file", p.savedPath())
		p.paths = &saved
		return saved, nil
	}

	var paths models.PreparedDatabasePaths
	err = lib.LogOperation(p.logger, "prepare reference databases", func() error {
		var err error
		paths, err = p.prepare(ctx)
		return err
	})
	if err != nil {
		return models.PreparedDatabasePaths{}, err
	}

	if err := p.save(paths); err != nil {
		p.logger.Warn("Failed to persist prepared paths", "error", err)
	}

	p.paths = &paths
	return paths, nil
}

func (p *Preparer) prepare(ctx context.Context) (models.PreparedDatabasePaths, error) {
	refs := p.cfg.References
	paths := models.PreparedDatabasePaths{}

	kos, err := ReadKOList(refs.KOListPath())
	if err != nil {
		p.logger.Warn("KO list unavailable, tier-1 subset disabled", "path", refs.KOListPath(), "error", err)
	}

	if len(kos) > 0 {
		gut, err := p.ensureGutDatabase(ctx, kos)
		if err != nil {
			p.logger.Warn("Gut database unavailable", "error", err)
		} else {
			paths.GutDB = gut
			paths.KO2Genes = filepath.Join(p.gutDir(), ko2GenesName)
		}
	}

	if paths.GutDB != "" && p.cfg.Ramdisk.Enabled {
		if warmed, err := p.copyToRamdisk(paths.GutDB); err != nil {
			p.logger.Warn("Ramdisk copy skipped", "error", err)
		} else {
			paths.GutDBRamdisk = warmed
		}
	}

	profiles, subset := p.ensureProfileSubset(ctx, kos)
	if err := ctx.Err(); err != nil {
		return paths, err
	}
	paths.HMMProfiles = profiles
	paths.ProfileSubset = subset
	p.ensureHMMPress(ctx, profiles)

	fullDB := refs.FullDiamondDB()
	if services.FileHasData(fullDB) {
		paths.FullDBPresent = true
	} else {
		p.logger.Warn("Full reference database not found; tier-2 search will need repair", "path", fullDB)
	}

	paths.Initialized = true
	return paths, ctx.Err()
}

func (p *Preparer) lockPath() string {
	return filepath.Join(p.cfg.DataDir, prepareLockName)
}

func (p *Preparer) gutDir() string {
	return filepath.Join(p.cfg.References.EggnogDir, gutDirName)
}

func (p *Preparer) logPaths(label string) (string, string) {
	dir := filepath.Join(p.cfg.DataDir, "logs", "dbprep")
	return filepath.Join(dir, label+".stdout.log"), filepath.Join(dir, label+".stderr.log")
}

// run executes a preparation command with logs under <data_dir>/logs/dbprep
func (p *Preparer) run(ctx context.Context, label string, cmd runner.Command, timeout time.Duration) error {
	stdout, stderr := p.logPaths(label)
	if cmd.StdoutPath == "" {
		cmd.StdoutPath = stdout
	}
	cmd.StderrPath = stderr

	code, timedOut, err := p.exec.Run(ctx, cmd, timeout, nil)
	switch {
	case err != nil:
		return err
	case timedOut:
		return fmt.Errorf("%s timed out after %s", label, timeout)
	case code != 0:
		return fmt.Errorf("%s exited with code %d (see %s)", label, code, stderr)
	}
	return nil
}

func (p *Preparer) savedPath() string {
	return filepath.Join(p.cfg.DataDir, preparedFileName)
}

// loadSaved reuses a previous process's result while its files still exist
func (p *Preparer) loadSaved() (models.PreparedDatabasePaths, bool) {
	data, err := os.ReadFile(p.savedPath())
	if err != nil {
		return models.PreparedDatabasePaths{}, false
	}
	var paths models.PreparedDatabasePaths
	if err := json.Unmarshal(data, &paths); err != nil || !paths.Initialized {
		return models.PreparedDatabasePaths{}, false
	}
	for _, f := range []string{paths.GutDB, paths.GutDBRamdisk, paths.HMMProfiles} {
		if f != "" && !services.FileHasData(f) {
			return models.PreparedDatabasePaths{}, false
		}
	}
	paths.FullDBPresent = services.FileHasData(p.cfg.References.FullDiamondDB())
	return paths, true
}

func (p *Preparer) save(paths models.PreparedDatabasePaths) error {
	data, err := json.MarshalIndent(paths, "", "  ")
	if err != nil {
		return err
	}
	return services.WriteFileAtomic(p.savedPath(), data)
}

// Invalidate drops the cached result so the next Initialize rebuilds
func (p *Preparer) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paths = nil
	_ = os.Remove(p.savedPath())
}

// ManualRepairCommand is the command an operator runs when automatic repair fails
func (p *Preparer) ManualRepairCommand() string {
	return strings.Join(p.builder.DownloadEggnog(p.cfg.References.EggnogDir).Argv(), " ")
}
