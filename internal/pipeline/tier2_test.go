package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trobanga/enzflow/internal/lib"
)

type stubStrategy struct {
	name   string
	err    error
	cancel context.CancelFunc
	calls  int
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Attempt(_ context.Context, _ Tier2Input) (Tier2Output, error) {
	s.calls++
	if s.cancel != nil {
		s.cancel()
	}
	if s.err != nil {
		return Tier2Output{}, s.err
	}
	return Tier2Output{Strategy: s.name, Annotations: s.name + ".emapper.annotations"}, nil
}

func TestRunStrategies(t *testing.T) {
	t.Run("first success wins", func(t *testing.T) {
		a := &stubStrategy{name: "diamond", err: &AttemptError{Strategy: "diamond", ExitCode: 1}}
		b := &stubStrategy{name: "mmseqs"}
		c := &stubStrategy{name: "hmmer"}

		out, failures := runStrategies(context.Background(), []Strategy{a, b, c}, Tier2Input{})
		assert.Equal(t, "mmseqs", out.Strategy)
		assert.Len(t, failures, 1)
		assert.Equal(t, 0, c.calls)
	})

	t.Run("all fail", func(t *testing.T) {
		a := &stubStrategy{name: "diamond", err: errors.New("a")}
		b := &stubStrategy{name: "mmseqs", err: errors.New("b")}

		out, failures := runStrategies(context.Background(), []Strategy{a, b}, Tier2Input{})
		assert.Empty(t, out.Annotations)
		assert.Len(t, failures, 2)
	})

	t.Run("stops when cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		a := &stubStrategy{name: "diamond", err: &AttemptError{Strategy: "diamond", Interrupted: true}, cancel: cancel}
		b := &stubStrategy{name: "mmseqs"}

		_, failures := runStrategies(ctx, []Strategy{a, b}, Tier2Input{})
		assert.Len(t, failures, 1)
		assert.Equal(t, 0, b.calls)
	})
}

func TestAttemptError(t *testing.T) {
	assert.Equal(t, "tier-2 mmseqs search timed out", (&AttemptError{Strategy: "mmseqs", TimedOut: true}).Error())
	assert.Equal(t, "tier-2 hmmer search was interrupted", (&AttemptError{Strategy: "hmmer", Interrupted: true}).Error())
	assert.Equal(t, "tier-2 diamond search produced no annotations (exit code 2)", (&AttemptError{Strategy: "diamond", ExitCode: 2}).Error())
}

func TestNeedsRepair(t *testing.T) {
	assert.False(t, needsRepair(nil))
	assert.False(t, needsRepair([]error{errors.New("Unexpected end of input")}))
	assert.False(t, needsRepair([]error{&AttemptError{Output: "killed"}}))
	assert.True(t, needsRepair([]error{
		&AttemptError{Output: "killed"},
		&AttemptError{Output: "Error: Unexpected end of input while reading eggnog_proteins.dmnd"},
	}))
}

func TestEmapperStrategy_NonZeroExitWithAnnotations(t *testing.T) {
	te := newTestEnv(t)
	te.exec.emapper = func(string) emapperResult {
		return emapperResult{code: 3, annotations: emapperAnnotations}
	}
	dir := t.TempDir()

	strategies := newTier2Strategies(te.env, nil)
	require.Len(t, strategies, 3)

	out, err := strategies[0].Attempt(context.Background(), Tier2Input{FASTA: "in.fa", WorkDir: dir, LogsDir: dir})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "tier2_diamond.emapper.annotations"), out.Annotations)

	cmd := te.exec.calls[0]
	assert.Equal(t, dir, cmd.Dir)
	assert.Equal(t, "tier2_diamond", argAfter(cmd.Args, "-o"))
	assert.Equal(t, te.env.Config.References.EggnogDir, argAfter(cmd.Args, "--data_dir"))
}

func TestEmapperStrategy_FailureCarriesOutputTail(t *testing.T) {
	te := newTestEnv(t)
	long := strings.Repeat("x", 5000) + "No such file"
	te.exec.emapper = func(string) emapperResult {
		return emapperResult{code: 1, stderr: long}
	}
	dir := t.TempDir()

	_, err := newTier2Strategies(te.env, nil)[1].Attempt(context.Background(), Tier2Input{WorkDir: dir, LogsDir: dir})
	var ae *AttemptError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "mmseqs", ae.Strategy)
	assert.Equal(t, 1, ae.ExitCode)
	assert.Len(t, ae.Output, 4096)
	assert.True(t, strings.HasSuffix(ae.Output, "No such file"))
}

func TestTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log")
	require.NoError(t, os.WriteFile(path, []byte("abcdef"), 0644))
	assert.Equal(t, "def", tail(path, 3))
	assert.Equal(t, "abcdef", tail(path, 100))
	assert.Equal(t, "", tail(filepath.Join(t.TempDir(), "missing"), 10))
}

func TestProgressWriter(t *testing.T) {
	store := newMemStore()
	var seen []int
	p := newProgressWriter(store, "job", time.Hour, lib.NewNopLogger(), func(progress int, _ string) {
		seen = append(seen, progress)
	})
	ctx := context.Background()

	p.Checkpoint(ctx, 20, "b")
	p.Checkpoint(ctx, 10, "a")
	require.NoError(t, p.Report(ctx, "running 1"))
	require.NoError(t, p.Report(ctx, "running 2"))

	assert.Equal(t, []int{20, 20, 20}, store.progress)
	assert.Equal(t, []string{"b", "a", "running 1"}, store.messages)
	assert.Equal(t, []int{20, 20, 20}, seen)
}
