package dbprep

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trobanga/enzflow/internal/lib"
	"github.com/trobanga/enzflow/internal/models"
	"github.com/trobanga/enzflow/internal/runner"
	"github.com/trobanga/enzflow/internal/services"
)

// fakeExecutor produces the files each tool would have written
type fakeExecutor struct {
	mu       sync.Mutex
	calls    []runner.Command
	failTool string
	badFetch bool
}

func (f *fakeExecutor) Run(_ context.Context, cmd runner.Command, _ time.Duration, _ runner.ProgressSink) (int, bool, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	f.mu.Unlock()

	if f.failTool != "" && cmd.Name == f.failTool {
		return 1, false, nil
	}

	switch cmd.Name {
	case "diamond":
		prefix := argAfter(cmd.Args, "-d")
		_ = os.WriteFile(prefix+".dmnd", []byte("dmnd"), 0644)
	case "hmmfetch":
		body := "HMMER3/f [3.3]\nNAME K00001\n//\n"
		if f.badFetch {
			body = "Error: no such key\n"
		}
		_ = os.WriteFile(cmd.StdoutPath, []byte(body), 0644)
	case "hmmpress":
		target := cmd.Args[len(cmd.Args)-1]
		_ = os.WriteFile(target+".h3i", []byte("idx"), 0644)
	case "gunzip":
		target := cmd.Args[len(cmd.Args)-1]
		_ = os.WriteFile(strings.TrimSuffix(target, ".gz"), []byte("db"), 0644)
	case "download_eggnog_data.py":
		dir := argAfter(cmd.Args, "--data_dir")
		_ = os.WriteFile(filepath.Join(dir, "eggnog_proteins.dmnd"), []byte("db"), 0644)
	}
	return 0, false, nil
}

func (f *fakeExecutor) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.Name)
	}
	return out
}

func argAfter(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func testConfig(t *testing.T) *models.ProjectConfig {
	t.Helper()
	root := t.TempDir()
	cfg := models.DefaultConfig()
	cfg.DataDir = filepath.Join(root, "data")
	cfg.References.EggnogDir = filepath.Join(root, "eggnog")
	cfg.References.KofamDir = filepath.Join(root, "kofam")
	cfg.Ramdisk.Path = filepath.Join(root, "shm")
	require.NoError(t, os.MkdirAll(cfg.References.EggnogDir, 0755))
	require.NoError(t, os.MkdirAll(cfg.References.KofamDir, 0755))
	return &cfg
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestNormalizeKO(t *testing.T) {
	assert.Equal(t, "K00001", NormalizeKO("K00001"))
	assert.Equal(t, "K00001", NormalizeKO("KO:00001"))
	assert.Equal(t, "K00001", NormalizeKO("KO00001"))
	assert.Equal(t, "", NormalizeKO("knum"))
	assert.Equal(t, "", NormalizeKO("K0001"))
}

func TestReadKOList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ko_list")
	writeFile(t, path, "knum\tthreshold\n# comment\nK00248\t100\nKO:00929\nK00248\n\n")

	kos, err := ReadKOList(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"K00248", "K00929"}, kos)
}

func TestInitialize_BuildsFromKeggCorpus(t *testing.T) {
	cfg := testConfig(t)
	writeFile(t, cfg.References.KOListPath(), "K00248\nK00929\n")
	cfg.References.KeggCorpus = filepath.Join(cfg.References.EggnogDir, "kegg.fa")
	writeFile(t, cfg.References.KeggCorpus,
		">g1 KO:00248 short\nMKV\n>g2 K00248 long\nMKVLLA\nAA\n>g3 KO00929\nMM\n>g4 K99999\nMMMMMMMM\n")
	writeFile(t, cfg.References.ProfilesPath(), "HMMER3/f full\n")
	writeFile(t, cfg.References.FullDiamondDB(), "db")

	exec := &fakeExecutor{}
	p := New(cfg, exec, lib.NewNopLogger())

	paths, err := p.Initialize(context.Background())
	require.NoError(t, err)

	assert.True(t, paths.Initialized)
	assert.True(t, paths.FullDBPresent)
	assert.True(t, paths.ProfileSubset)
	assert.Equal(t, filepath.Join(cfg.References.EggnogDir, "gut_kegg_db", "gut_db.dmnd"), paths.GutDB)
	assert.Equal(t, filepath.Join(cfg.References.KofamDir, "profiles_gut.hmm"), paths.HMMProfiles)
	assert.Empty(t, paths.GutDBRamdisk)

	proteins, err := os.ReadFile(filepath.Join(cfg.References.EggnogDir, "gut_kegg_db", "gut_proteins.fa"))
	require.NoError(t, err)
	assert.Equal(t, ">K00248|g2\nMKVLLA\nAA\n>K00929|g3\nMM\n", string(proteins))

	genes, err := os.ReadFile(paths.KO2Genes)
	require.NoError(t, err)
	assert.Equal(t, "K00248\tK00248|g2\nK00929\tK00929|g3\n", string(genes))

	keys, err := os.ReadFile(filepath.Join(cfg.References.EggnogDir, "gut_kegg_db", "ko_keys.txt"))
	require.NoError(t, err)
	assert.Equal(t, "K00248\nK00929\n", string(keys))

	assert.Equal(t, []string{"diamond", "hmmpress", "hmmfetch", "hmmpress"}, exec.names())

	cached, ok := p.Cached()
	require.True(t, ok)
	assert.Equal(t, paths, cached)
}

func TestInitialize_IsIdempotent(t *testing.T) {
	cfg := testConfig(t)
	writeFile(t, cfg.References.KOListPath(), "K00248\n")
	writeFile(t, cfg.References.EggnogProteinsPath(), ">p1 K00248\nMK\n")
	writeFile(t, cfg.References.ProfilesPath(), "HMMER3/f full\n")

	exec := &fakeExecutor{}
	p := New(cfg, exec, lib.NewNopLogger())

	first, err := p.Initialize(context.Background())
	require.NoError(t, err)
	calls := len(exec.names())

	second, err := p.Initialize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, exec.names(), calls)

	// A fresh preparer reuses the persisted result
	again := New(cfg, exec, lib.NewNopLogger())
	third, err := again.Initialize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.GutDB, third.GutDB)
	assert.Len(t, exec.names(), calls)
}

func TestInitialize_PreparersShareOneBuild(t *testing.T) {
	cfg := testConfig(t)
	writeFile(t, cfg.References.KOListPath(), "K00248\n")
	writeFile(t, cfg.References.EggnogProteinsPath(), ">p1 K00248\nMK\n")
	writeFile(t, cfg.References.ProfilesPath(), "HMMER3/f full\n")

	exec := &fakeExecutor{}
	first := New(cfg, exec, lib.NewNopLogger())
	second := New(cfg, exec, lib.NewNopLogger())

	var wg sync.WaitGroup
	results := make([]models.PreparedDatabasePaths, 2)
	for i, p := range []*Preparer{first, second} {
		wg.Add(1)
		go func(i int, p *Preparer) {
			defer wg.Done()
			paths, err := p.Initialize(context.Background())
			assert.NoError(t, err)
			results[i] = paths
		}(i, p)
	}
	wg.Wait()

	assert.Equal(t, results[0].GutDB, results[1].GutDB)
	diamond := 0
	for _, name := range exec.names() {
		if name == "diamond" {
			diamond++
		}
	}
	assert.Equal(t, 1, diamond)
}

func TestInitialize_WaitsForPrepareLock(t *testing.T) {
	cfg := testConfig(t)
	writeFile(t, cfg.References.ProfilesPath(), "HMMER3/f full\n")

	held, err := services.AcquireLock(filepath.Join(cfg.DataDir, ".prepare.lock"), "prepare", true, lib.NewNopLogger())
	require.NoError(t, err)

	p := New(cfg, &fakeExecutor{}, lib.NewNopLogger())
	done := make(chan error, 1)
	go func() {
		_, err := p.Initialize(context.Background())
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("Initialize ran while another holder had the prepare lock")
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, held.Release())
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Initialize did not resume after the lock was released")
	}
	_, ok := p.Cached()
	assert.True(t, ok)
}

func TestInitialize_FallbackCorpusKeepsHeaders(t *testing.T) {
	cfg := testConfig(t)
	writeFile(t, cfg.References.KOListPath(), "K00248\n")
	writeFile(t, cfg.References.EggnogProteinsPath(), ">p1 desc K00248\nMK\n>p2 other\nQQ\n")

	p := New(cfg, &fakeExecutor{}, lib.NewNopLogger())
	paths, err := p.Initialize(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, paths.GutDB)

	proteins, err := os.ReadFile(filepath.Join(cfg.References.EggnogDir, "gut_kegg_db", "gut_proteins.fa"))
	require.NoError(t, err)
	assert.Equal(t, ">p1 desc K00248\nMK\n", string(proteins))
}

func TestInitialize_MissingKOListSkipsGutDB(t *testing.T) {
	cfg := testConfig(t)
	writeFile(t, cfg.References.ProfilesPath(), "HMMER3/f full\n")

	exec := &fakeExecutor{}
	p := New(cfg, exec, lib.NewNopLogger())
	paths, err := p.Initialize(context.Background())
	require.NoError(t, err)

	assert.True(t, paths.Initialized)
	assert.Empty(t, paths.GutDB)
	assert.False(t, paths.ProfileSubset)
	assert.Equal(t, cfg.References.ProfilesPath(), paths.HMMProfiles)
	assert.False(t, paths.FullDBPresent)
	assert.NotContains(t, exec.names(), "diamond")
}

func TestInitialize_BadSubsetFallsBackToFullProfiles(t *testing.T) {
	cfg := testConfig(t)
	writeFile(t, cfg.References.KOListPath(), "K00248\n")
	writeFile(t, cfg.References.ProfilesPath(), "HMMER3/f full\n")

	p := New(cfg, &fakeExecutor{badFetch: true}, lib.NewNopLogger())
	paths, err := p.Initialize(context.Background())
	require.NoError(t, err)

	assert.False(t, paths.ProfileSubset)
	assert.Equal(t, cfg.References.ProfilesPath(), paths.HMMProfiles)
	_, statErr := os.Stat(filepath.Join(cfg.References.KofamDir, "profiles_gut.hmm"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestInitialize_WarmsRamdisk(t *testing.T) {
	cfg := testConfig(t)
	cfg.Ramdisk.Enabled = true
	writeFile(t, cfg.References.KOListPath(), "K00248\n")
	writeFile(t, cfg.References.EggnogProteinsPath(), ">p1 K00248\nMK\n")

	p := New(cfg, &fakeExecutor{}, lib.NewNopLogger())
	paths, err := p.Initialize(context.Background())
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(cfg.Ramdisk.Path, "gut_db.dmnd"), paths.GutDBRamdisk)
	assert.Equal(t, paths.GutDBRamdisk, paths.Tier1DB())
}

func TestCopyToRamdisk_RefusesOtherFiles(t *testing.T) {
	cfg := testConfig(t)
	cfg.Ramdisk.Enabled = true
	other := filepath.Join(cfg.References.EggnogDir, "eggnog_proteins.dmnd")
	writeFile(t, other, "db")

	p := New(cfg, &fakeExecutor{}, lib.NewNopLogger())
	_, err := p.copyToRamdisk(other)
	assert.Error(t, err)
}

func TestCopyToRamdisk_RefusesOversized(t *testing.T) {
	cfg := testConfig(t)
	cfg.Ramdisk.Enabled = true
	cfg.Ramdisk.SizeMB = 0
	gut := filepath.Join(cfg.References.EggnogDir, "gut_kegg_db", "gut_db.dmnd")
	writeFile(t, gut, "db")

	p := New(cfg, &fakeExecutor{}, lib.NewNopLogger())
	_, err := p.copyToRamdisk(gut)
	assert.Error(t, err)
}

func TestNeedsRepair(t *testing.T) {
	assert.True(t, NeedsRepair("Error: Unexpected end of input"))
	assert.True(t, NeedsRepair("No such file or directory"))
	assert.False(t, NeedsRepair("done"))
}

func TestRepair_PrefersArchive(t *testing.T) {
	cfg := testConfig(t)
	writeFile(t, cfg.References.FullDiamondDB()+".gz", "gz")

	exec := &fakeExecutor{}
	p := New(cfg, exec, lib.NewNopLogger())
	require.NoError(t, p.Repair(context.Background()))
	assert.Equal(t, []string{"gunzip"}, exec.names())
}

func TestRepair_DownloadsAndRunsOnce(t *testing.T) {
	cfg := testConfig(t)
	writeFile(t, cfg.References.FullDiamondDB(), "truncated")

	exec := &fakeExecutor{failTool: "download_eggnog_data.py"}
	p := New(cfg, exec, lib.NewNopLogger())

	err := p.Repair(context.Background())
	require.Error(t, err)
	var ee *lib.EnzflowError
	require.ErrorAs(t, err, &ee)
	assert.Contains(t, strings.Join(ee.Guidance, " "), "download_eggnog_data.py --data_dir")

	_, statErr := os.Stat(cfg.References.FullDiamondDB() + ".corrupted")
	assert.NoError(t, statErr)

	assert.Equal(t, err, p.Repair(context.Background()))
	assert.Equal(t, []string{"download_eggnog_data.py"}, exec.names())
}
