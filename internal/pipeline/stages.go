package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/trobanga/enzflow/internal/annotate"
	"github.com/trobanga/enzflow/internal/dbprep"
	"github.com/trobanga/enzflow/internal/fasta"
	"github.com/trobanga/enzflow/internal/lib"
	"github.com/trobanga/enzflow/internal/models"
	"github.com/trobanga/enzflow/internal/runner"
	"github.com/trobanga/enzflow/internal/services"
)

// stageResult is how a stage ended. A failed result is recorded on the
// stage but does not stop the job; only a returned error does.
type stageResult struct {
	hits    int
	skipped bool
	failed  bool
	note    string
}

func completed(hits int) stageResult { return stageResult{hits: hits} }

func skipped(reason string) stageResult { return stageResult{skipped: true, note: reason} }

func degraded(note string) stageResult { return stageResult{failed: true, note: note} }

type stageFunc func(r *run, ctx context.Context) (stageResult, error)

// run is the state of one job execution
type run struct {
	env      *Env
	job      models.Job
	source   models.SourceFile
	paths    models.PreparedDatabasePaths
	progress *progressWriter

	input     string
	inputSize int64
	workDir   string
	logsDir   string
	artifacts services.ArtifactPaths

	kofamOut   string
	tier1Out   string
	tier1IDs   map[string]struct{}
	tier1Hit   bool
	filtered   string
	runTier2   bool
	tier2      Tier2Output
	tier2Found bool

	gut, eggnog, kofam *models.SourceTable
	merged             models.AnnotationTable
	produced           models.Artifacts
}

// stages lists the state machine in execution order
var stages = []struct {
	name models.StageName
	fn   stageFunc
}{
	{models.StageHMMSearch, (*run).hmmSearch},
	{models.StageTier1Search, (*run).tier1Search},
	{models.StageDecideTier2, (*run).decideTier2},
	{models.StageTier2Search, (*run).tier2Search},
	{models.StageExtract, (*run).extract},
	{models.StageMerge, (*run).merge},
	{models.StageScore, (*run).score},
	{models.StageFasta, (*run).writeFasta},
}

func (r *run) execute(ctx context.Context) error {
	for _, s := range stages {
		if err := r.runStage(ctx, s.name, s.fn); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) runStage(ctx context.Context, name models.StageName, fn stageFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	logger := r.env.Logger
	stage, _ := models.GetStageByName(r.job, name)
	stage = models.StartStage(stage, r.env.now())
	r.job = models.ReplaceStage(r.job, stage)
	r.saveStages(ctx)
	lib.LogStepStart(logger, string(name), r.job.ID)

	res, err := fn(r, ctx)
	now := r.env.now()
	switch {
	case err != nil:
		stage = models.FailStage(stage, err.Error(), now)
		lib.LogStepFailed(logger, string(name), r.job.ID, err, true)
	case res.skipped:
		stage = models.SkipStage(stage, res.note, now)
		lib.LogStepSkipped(logger, string(name), r.job.ID, res.note)
	case res.failed:
		stage = models.FailStage(stage, res.note, now)
		stage.Hits = res.hits
		lib.LogStepFailed(logger, string(name), r.job.ID, errors.New(res.note), false)
	default:
		stage = models.CompleteStage(stage, res.hits, now)
		stage.Note = res.note
		lib.LogStepComplete(logger, string(name), r.job.ID, res.hits, now.Sub(*stage.StartedAt))
	}
	r.job = models.ReplaceStage(r.job, stage)
	r.saveStages(ctx)
	return err
}

func (r *run) saveStages(ctx context.Context) {
	if err := r.env.Store.SaveStages(ctx, r.job.ID, r.job.Stage, r.job.Stages); err != nil {
		r.env.Logger.Warn("Failed to persist stages", "job_id", r.job.ID, "error", err)
	}
}

func (r *run) logPaths(label string) (string, string) {
	return filepath.Join(r.logsDir, label+".stdout.log"), filepath.Join(r.logsDir, label+".stderr.log")
}

// hmmSearch runs hmmsearch against the prepared profiles
func (r *run) hmmSearch(ctx context.Context) (stageResult, error) {
	r.progress.Checkpoint(ctx, progressHMM, msgHMM+"...")

	profiles := r.paths.HMMProfiles
	if profiles == "" {
		profiles = r.env.Config.References.ProfilesPath()
	}
	if !services.FileHasData(profiles) {
		return degraded("HMM profiles not found: " + profiles), nil
	}

	raw := filepath.Join(r.workDir, "hmmsearch.txt")
	cmd := r.env.Builder.HMMSearch(profiles, r.input, raw)
	cmd.StdoutPath, cmd.StderrPath = r.logPaths("hmmsearch")
	cmd.Label = msgHMM
	cmd.InputSize = r.inputSize

	timeout := runner.Unbounded
	if r.paths.ProfileSubset {
		timeout = runner.KofamTimeout(r.inputSize)
	}

	code, timedOut, err := r.env.Exec.Run(ctx, cmd, timeout, r.progress)
	if err != nil {
		return degraded(err.Error()), nil
	}
	if timedOut {
		return degraded("hmmsearch timed out"), nil
	}
	if !services.FileHasData(raw) {
		return degraded(fmt.Sprintf("hmmsearch produced no output (exit code %d)", code)), nil
	}
	if code != 0 {
		r.env.Logger.Warn("hmmsearch exited non-zero but wrote output, using it", "job_id", r.job.ID, "exit_code", code)
	}

	r.kofamOut = filepath.Join(r.workDir, "kofam.txt")
	rows, err := ConvertHMMSearch(raw, r.kofamOut)
	if err != nil {
		r.kofamOut = ""
		return degraded("failed to convert hmmsearch output: " + err.Error()), nil
	}
	return completed(rows), nil
}

// tier1Search aligns the input against the gut database
func (r *run) tier1Search(ctx context.Context) (stageResult, error) {
	r.progress.Checkpoint(ctx, progressTier1, msgTier1+"...")

	db := r.paths.Tier1DB()
	if db == "" {
		return skipped("tier-1 database not prepared"), nil
	}

	out := filepath.Join(r.workDir, "tier1_hits.tsv")
	cmd := r.env.Builder.DiamondBlastp(db, r.input, out)
	cmd.StdoutPath, cmd.StderrPath = r.logPaths("tier1_diamond")
	cmd.Label = msgTier1
	cmd.InputSize = r.inputSize

	code, timedOut, err := r.env.Exec.Run(ctx, cmd, runner.Tier1Timeout(r.inputSize), r.progress)
	if err != nil {
		return degraded(err.Error()), nil
	}
	if timedOut {
		return degraded("tier-1 search timed out"), nil
	}
	if !services.FileHasData(out) {
		if code != 0 {
			return degraded(fmt.Sprintf("tier-1 search failed (exit code %d)", code)), nil
		}
		return completed(0), nil
	}

	ids, hits, err := HitQueryIDs(out)
	if err != nil {
		return degraded("failed to read tier-1 hits: " + err.Error()), nil
	}
	r.tier1Out = out
	r.tier1IDs = ids
	r.tier1Hit = hits > 0
	return completed(hits), nil
}

// decideTier2 skips the full search on any tier-1 hit; otherwise it removes
// tier-1 matches from the input
func (r *run) decideTier2(ctx context.Context) (stageResult, error) {
	if r.tier1Hit {
		return stageResult{note: "tier-1 hit, full database search skipped"}, nil
	}

	r.progress.Checkpoint(ctx, progressFilter, msgFilter+"...")

	r.filtered = filepath.Join(r.workDir, "tier2_input.fasta")
	var kept int
	err := services.WriteAtomic(r.filtered, func(w io.Writer) error {
		var err error
		kept, err = fasta.Exclude(r.input, w, r.tier1IDs)
		return err
	})
	if err != nil {
		return stageResult{}, fmt.Errorf("failed to filter input FASTA: %w", err)
	}
	if kept == 0 {
		return stageResult{note: "no sequences left for the full database search"}, nil
	}
	r.runTier2 = true
	return completed(kept), nil
}

// tier2Search runs emapper strategies against the filtered input
func (r *run) tier2Search(ctx context.Context) (stageResult, error) {
	if !r.runTier2 {
		if r.tier1Hit {
			return skipped("tier-1 hit"), nil
		}
		return skipped("no sequences to search"), nil
	}

	r.progress.Checkpoint(ctx, progressTier2, msgTier2+"...")

	in := Tier2Input{FASTA: r.filtered, WorkDir: r.workDir, LogsDir: r.logsDir, Size: fileSize(r.filtered)}
	strategies := newTier2Strategies(r.env, r.progress)

	out, failures := runStrategies(ctx, strategies, in)
	if out.Annotations == "" && ctx.Err() == nil && needsRepair(failures) {
		r.env.Logger.Warn("Reference database looks corrupted, attempting repair", "job_id", r.job.ID)
		if err := r.env.Preparer.Repair(ctx); err != nil {
			return stageResult{}, err
		}
		out, failures = runStrategies(ctx, strategies, in)
	}

	if out.Annotations == "" {
		note := "all tier-2 strategies failed"
		if len(failures) > 0 {
			note = failures[len(failures)-1].Error()
		}
		// Some strategies leave raw hits behind even without annotations
		for _, m := range Tier2Methods {
			hits := filepath.Join(r.workDir, "tier2_"+m+".emapper.hits")
			if services.FileHasData(hits) {
				r.tier2 = Tier2Output{Strategy: m, Hits: hits}
				break
			}
		}
		return degraded(note), nil
	}

	r.tier2 = out
	r.tier2Found = true
	return stageResult{note: "strategy " + out.Strategy}, nil
}

func needsRepair(failures []error) bool {
	for _, err := range failures {
		var ae *AttemptError
		if errors.As(err, &ae) && dbprep.NeedsRepair(ae.Output) {
			return true
		}
	}
	return false
}

// extract turns each raw result into a per-source table
func (r *run) extract(ctx context.Context) (stageResult, error) {
	r.progress.Checkpoint(ctx, progressMerge, msgMerge+"...")
	logger := r.env.Logger.With("job_id", r.job.ID)

	if r.kofamOut != "" {
		t, err := ParseKofam(r.kofamOut)
		if err != nil {
			logger.Warn("KofamScan results unavailable", "error", err)
		} else {
			r.kofam = t
		}
	}

	if r.tier1Out != "" {
		var ko2genes map[string]string
		if r.paths.KO2Genes != "" {
			m, err := LoadKO2Genes(r.paths.KO2Genes)
			if err != nil {
				logger.Warn("ko2genes mapping unavailable, using subject IDs", "error", err)
			}
			ko2genes = m
		}
		t, err := ParseOutfmt6(r.tier1Out, models.SourceGut, ko2genes)
		if err != nil {
			logger.Warn("Tier-1 results unavailable", "error", err)
		} else {
			r.gut = t
		}
	}

	switch {
	case r.tier2Found:
		t, err := ParseEmapper(r.tier2.Annotations)
		if err == nil {
			r.eggnog = t
			break
		}
		logger.Warn("Failed to convert emapper annotations, using raw hits", "error", err)
		fallthrough
	case r.tier2.Hits != "":
		if services.FileHasData(r.tier2.Hits) {
			t, err := ParseOutfmt6(r.tier2.Hits, models.SourceEggnog, nil)
			if err != nil {
				logger.Warn("Tier-2 raw hits unavailable", "error", err)
			} else {
				r.eggnog = t
			}
		}
	}

	sources := 0
	for _, t := range []struct {
		name  models.SourceName
		table *models.SourceTable
	}{
		{models.SourceGut, r.gut},
		{models.SourceEggnog, r.eggnog},
		{models.SourceKofam, r.kofam},
	} {
		if t.table.Empty() {
			logger.Info("Annotation source absent", "source", t.name)
			continue
		}
		sources++
	}
	return completed(sources), nil
}

// merge writes the merged annotation table
func (r *run) merge(ctx context.Context) (stageResult, error) {
	r.merged = annotate.Merge(r.gut, r.eggnog, r.kofam)

	if r.source.AbundancePath != "" {
		ab, err := annotate.LoadAbundance(r.source.AbundancePath)
		if err != nil {
			r.env.Logger.Warn("Abundance table ignored", "job_id", r.job.ID, "error", err)
		} else {
			annotate.JoinAbundance(&r.merged, ab)
		}
	}

	err := services.WriteAtomic(r.artifacts.EnzymesCSV, func(w io.Writer) error {
		return annotate.WriteAnnotations(w, r.merged)
	})
	if err != nil {
		return stageResult{}, fmt.Errorf("failed to write annotation table: %w", err)
	}
	r.produced.EnzymesCSV = r.artifacts.EnzymesCSV
	return completed(len(r.merged.Records)), nil
}

// score writes the pathway score table; failures only cost the artifact
func (r *run) score(ctx context.Context) (stageResult, error) {
	r.progress.Checkpoint(ctx, progressScore, msgScore+"...")

	defs, err := annotate.LoadCatalogue(r.env.Config.Scoring.Catalogue)
	if err != nil {
		return degraded(err.Error()), nil
	}
	scorer := annotate.Scorer{Formula: r.env.Config.Scoring.Formula, Logger: r.env.Logger}
	scores := scorer.Score(r.merged, defs)

	err = services.WriteAtomic(r.artifacts.PathwaysCSV, func(w io.Writer) error {
		return annotate.WritePathwayScores(w, scores)
	})
	if err != nil {
		return degraded("failed to write pathway scores: " + err.Error()), nil
	}
	r.produced.PathwaysCSV = r.artifacts.PathwaysCSV
	return completed(len(scores)), nil
}

// writeFasta writes the annotated sequences with their original headers
func (r *run) writeFasta(ctx context.Context) (stageResult, error) {
	r.progress.Checkpoint(ctx, progressFasta, msgFasta+"...")

	ids := annotate.ProteinIDs(r.merged)
	var written int
	err := services.WriteAtomic(r.artifacts.FASTA, func(w io.Writer) error {
		var err error
		written, err = fasta.Subset(r.input, w, ids)
		return err
	})
	if err != nil {
		return degraded("failed to write annotated FASTA: " + err.Error()), nil
	}
	r.produced.FASTA = r.artifacts.FASTA
	return completed(written), nil
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
