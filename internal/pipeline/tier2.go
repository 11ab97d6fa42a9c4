package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/trobanga/enzflow/internal/runner"
	"github.com/trobanga/enzflow/internal/services"
)

// Tier2Methods is the emapper search order
var Tier2Methods = []string{"diamond", "mmseqs", "hmmer"}

// Tier2Input is what every tier-2 strategy searches
type Tier2Input struct {
	FASTA   string
	WorkDir string
	LogsDir string
	Size    int64
}

// Tier2Output locates the files a successful attempt produced
type Tier2Output struct {
	Strategy    string
	Annotations string // <prefix>.emapper.annotations
	Hits        string // <prefix>.emapper.hits, kept for degraded extraction
}

// AttemptError explains why one strategy produced nothing
type AttemptError struct {
	Strategy    string
	ExitCode    int
	TimedOut    bool
	Interrupted bool
	Output      string // Tail of the tool's stderr and stdout
}

func (e *AttemptError) Error() string {
	switch {
	case e.TimedOut:
		return fmt.Sprintf("tier-2 %s search timed out", e.Strategy)
	case e.Interrupted:
		return fmt.Sprintf("tier-2 %s search was interrupted", e.Strategy)
	default:
		return fmt.Sprintf("tier-2 %s search produced no annotations (exit code %d)", e.Strategy, e.ExitCode)
	}
}

// Strategy is one way of running the tier-2 search
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, in Tier2Input) (Tier2Output, error)
}

// emapperStrategy runs emapper with a single search method
type emapperStrategy struct {
	method  string
	exec    runner.Executor
	builder runner.Builder
	dataDir string
	sink    runner.ProgressSink
}

func (s *emapperStrategy) Name() string { return s.method }

func (s *emapperStrategy) Attempt(ctx context.Context, in Tier2Input) (Tier2Output, error) {
	prefix := "tier2_" + s.method
	out := Tier2Output{
		Strategy:    s.method,
		Annotations: filepath.Join(in.WorkDir, prefix+".emapper.annotations"),
		Hits:        filepath.Join(in.WorkDir, prefix+".emapper.hits"),
	}

	cmd := s.builder.Emapper(in.FASTA, prefix, s.dataDir, s.method)
	cmd.Dir = in.WorkDir
	cmd.StdoutPath = filepath.Join(in.LogsDir, prefix+".stdout.log")
	cmd.StderrPath = filepath.Join(in.LogsDir, prefix+".stderr.log")
	cmd.Label = msgTier2
	cmd.InputSize = in.Size

	code, timedOut, err := s.exec.Run(ctx, cmd, runner.Unbounded, s.sink)
	if err != nil {
		return out, err
	}

	// emapper can exit non-zero after writing usable annotations
	if !timedOut && ctx.Err() == nil && services.FileHasData(out.Annotations) {
		return out, nil
	}

	return out, &AttemptError{
		Strategy:    s.method,
		ExitCode:    code,
		TimedOut:    timedOut,
		Interrupted: ctx.Err() != nil,
		Output:      tail(cmd.StderrPath, 4096) + tail(cmd.StdoutPath, 4096),
	}
}

// newTier2Strategies builds the ordered emapper strategy list
func newTier2Strategies(env *Env, sink runner.ProgressSink) []Strategy {
	strategies := make([]Strategy, 0, len(Tier2Methods))
	for _, m := range Tier2Methods {
		strategies = append(strategies, &emapperStrategy{
			method:  m,
			exec:    env.Exec,
			builder: env.Builder,
			dataDir: env.Config.References.EggnogDir,
			sink:    sink,
		})
	}
	return strategies
}

// runStrategies tries each strategy in order until one succeeds. It stops
// early when ctx is cancelled. The failures of every attempt are returned.
func runStrategies(ctx context.Context, strategies []Strategy, in Tier2Input) (Tier2Output, []error) {
	var failures []error
	for _, s := range strategies {
		out, err := s.Attempt(ctx, in)
		if err == nil {
			return out, failures
		}
		failures = append(failures, err)
		if ctx.Err() != nil {
			break
		}
	}
	return Tier2Output{}, failures
}

// tail returns up to n bytes from the end of path
func tail(path string, n int64) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return ""
	}
	if info.Size() > n {
		if _, err := f.Seek(-n, io.SeekEnd); err != nil {
			return ""
		}
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return ""
	}
	return string(data)
}
