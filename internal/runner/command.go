package runner

import (
	"strconv"

	"github.com/trobanga/enzflow/internal/lib"
	"github.com/trobanga/enzflow/internal/models"
)

// Command is a fully typed external invocation
// Args are passed to the process directly; nothing is parsed by a shell.
type Command struct {
	Name       string
	Args       []string
	Dir        string
	Env        []string // Extra KEY=VALUE entries appended to the current environment
	StdoutPath string   // Empty discards stdout
	StderrPath string   // Empty discards stderr
	Label      string   // Progress message prefix, e.g. "Running KofamScan (HMM) (Step 1/5)"
	InputSize  int64    // Bytes, drives the progress check interval
}

// Argv returns the full argument vector including the program name
func (c Command) Argv() []string {
	return append([]string{c.Name}, c.Args...)
}

// Builder constructs tool commands from the tools configuration
type Builder struct {
	Tools models.ToolsConfig
}

// NewBuilder returns a builder for the given tools configuration
func NewBuilder(tools models.ToolsConfig) Builder {
	return Builder{Tools: tools}
}

func (b Builder) path(p string) string {
	return lib.NormalizePath(p, b.Tools.PathStyle)
}

func (b Builder) cpus() string {
	n := b.Tools.CPUCores
	if n < 1 {
		n = 1
	}
	return strconv.Itoa(n)
}

// command prepends the optional launcher prefix (e.g. wsl --) to bin
func (b Builder) command(bin string, args ...string) Command {
	argv := append([]string{}, b.Tools.Launcher...)
	argv = append(argv, bin)
	argv = append(argv, args...)
	return Command{Name: argv[0], Args: argv[1:]}
}

// HMMSearch searches the input sequences against an HMM profile database
func (b Builder) HMMSearch(profiles, input, output string) Command {
	cmd := b.command(b.Tools.HMMSearch,
		"--cpu", b.cpus(),
		"--cut_tc",
		"--max",
		"-o", b.path(output),
		b.path(profiles),
		b.path(input),
	)
	cmd.Env = []string{"HMMER_NCPU=" + b.cpus()}
	return cmd
}

// DiamondOutfmt6 is the tabular column list requested from diamond
var DiamondOutfmt6 = []string{
	"qseqid", "sseqid", "pident", "length", "mismatch", "gapopen",
	"qstart", "qend", "sstart", "send", "evalue", "bitscore", "qcovhsp", "scovhsp",
}

// DiamondBlastp aligns the input against a diamond database in tabular format
func (b Builder) DiamondBlastp(db, input, output string) Command {
	args := []string{
		"blastp",
		"-d", b.path(db),
		"-q", b.path(input),
		"-o", b.path(output),
		"--threads", b.cpus(),
		"--block-size", "4",
		"--index-chunks", "1",
		"--fast",
		"--outfmt", "6",
	}
	args = append(args, DiamondOutfmt6...)
	return b.command(b.Tools.Diamond, args...)
}

// DiamondMakeDB builds a diamond index from a protein FASTA
func (b Builder) DiamondMakeDB(fasta, dbPrefix string) Command {
	return b.command(b.Tools.Diamond,
		"makedb",
		"-p", "4",
		"--in", b.path(fasta),
		"-d", b.path(dbPrefix),
	)
}

// Emapper runs eggNOG-mapper with one search method
func (b Builder) Emapper(input, outputPrefix, dataDir, method string) Command {
	return b.command(b.Tools.Emapper,
		"-i", b.path(input),
		"-o", outputPrefix,
		"--data_dir", b.path(dataDir),
		"-m", method,
		"--cpu", b.cpus(),
		"--override",
	)
}

// HMMFetch extracts the profiles named in koList; the subset goes to stdout
func (b Builder) HMMFetch(profiles, koList, subsetPath string) Command {
	cmd := b.command(b.Tools.HMMFetch, "-f", b.path(profiles), b.path(koList))
	cmd.StdoutPath = subsetPath
	return cmd
}

// HMMPress indexes an HMM profile file
func (b Builder) HMMPress(profiles string) Command {
	return b.command(b.Tools.HMMPress, "-f", b.path(profiles))
}

// DownloadEggnog fetches the eggNOG reference data into dataDir
func (b Builder) DownloadEggnog(dataDir string) Command {
	return b.command(b.Tools.DownloadEggnog,
		"--data_dir", b.path(dataDir),
		"-M", "-H",
		"-d", "2",
		"-y", "-f",
	)
}

// Gunzip decompresses path in place
func (b Builder) Gunzip(path string) Command {
	return b.command(b.Tools.Gunzip, "-f", b.path(path))
}
