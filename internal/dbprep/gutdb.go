package dbprep

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/trobanga/enzflow/internal/fasta"
	"github.com/trobanga/enzflow/internal/services"
)

// koPattern matches K#####, KO:##### and KO#####
var koPattern = regexp.MustCompile(`\bK(?:O:?)?(\d{5})\b`)

// NormalizeKO returns the canonical K##### form, or "" if s holds no KO
func NormalizeKO(s string) string {
	m := koPattern.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return "K" + m[1]
}

// headerKOs returns every canonical KO mentioned in a FASTA header
func headerKOs(header string) []string {
	matches := koPattern.FindAllStringSubmatch(header, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, "K"+m[1])
	}
	return out
}

// ReadKOList reads a KO allow-list; the first field of each line is the KO.
// Comment lines and lines without a recognizable KO (such as a header) are skipped.
func ReadKOList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	seen := map[string]struct{}{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ko := NormalizeKO(strings.Fields(line)[0])
		if ko == "" {
			continue
		}
		seen[ko] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read KO list: %w", err)
	}

	kos := make([]string, 0, len(seen))
	for ko := range seen {
		kos = append(kos, ko)
	}
	sort.Strings(kos)
	return kos, nil
}

// ensureGutDatabase returns gut_db.dmnd, building it when it does not exist
func (p *Preparer) ensureGutDatabase(ctx context.Context, kos []string) (string, error) {
	dir := p.gutDir()
	dbPath := filepath.Join(dir, gutDBPrefix+".dmnd")
	if services.FileHasData(dbPath) {
		p.logger.Info("Gut database found", "path", dbPath)
		if err := p.writeKeyFile(kos); err != nil {
			p.logger.Warn("Failed to write KO key file", "error", err)
		}
		return dbPath, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create gut database directory: %w", err)
	}
	if err := p.writeKeyFile(kos); err != nil {
		return "", err
	}

	proteins := filepath.Join(dir, gutProteinsName)
	written, err := p.extractGutProteins(kos, proteins)
	if err != nil {
		return "", err
	}
	if written == 0 {
		return "", errors.New("no reference sequences matched the KO list")
	}
	p.logger.Info("Extracted gut reference sequences", "sequences", written, "kos", len(kos))

	cmd := p.builder.DiamondMakeDB(proteins, filepath.Join(dir, gutDBPrefix))
	if err := p.run(ctx, "diamond_makedb", cmd, makeDBTimeout); err != nil {
		return "", err
	}
	if !services.FileHasData(dbPath) {
		return "", fmt.Errorf("diamond makedb did not produce %s", dbPath)
	}
	p.logger.Info("Gut database created", "path", dbPath)
	return dbPath, nil
}

// extractGutProteins writes the tier-1 FASTA and ko2genes mapping. The KEGG
// corpus is preferred; the eggNOG protein FASTA is the fallback.
func (p *Preparer) extractGutProteins(kos []string, out string) (int, error) {
	want := make(map[string]struct{}, len(kos))
	for _, ko := range kos {
		want[ko] = struct{}{}
	}
	mapping := filepath.Join(p.gutDir(), ko2GenesName)

	refs := p.cfg.References
	if refs.KeggCorpus != "" && services.FileHasData(refs.KeggCorpus) {
		written, err := longestPerKO(refs.KeggCorpus, want, out, mapping)
		if err == nil && written > 0 {
			return written, nil
		}
		p.logger.Warn("KEGG corpus extraction failed, falling back to eggNOG proteins",
			"corpus", refs.KeggCorpus, "error", err)
	}

	source := refs.EggnogProteinsPath()
	if !services.FileHasData(source) {
		return 0, fmt.Errorf("no reference corpus available (checked %s)", source)
	}
	return matchingKO(source, want, out, mapping)
}

type candidate struct {
	rec    fasta.Record
	length int
}

// longestPerKO keeps the single longest sequence per wanted KO
func longestPerKO(corpus string, want map[string]struct{}, out, mapping string) (int, error) {
	best := map[string]candidate{}
	err := fasta.ScanFile(corpus, func(rec fasta.Record) error {
		for _, ko := range headerKOs(rec.Header) {
			if _, ok := want[ko]; !ok {
				continue
			}
			n := fasta.SequenceLength(rec)
			if cur, seen := best[ko]; !seen || n > cur.length {
				best[ko] = candidate{rec: rec, length: n}
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	kos := make([]string, 0, len(best))
	for ko := range best {
		kos = append(kos, ko)
	}
	sort.Strings(kos)

	return len(kos), writeGutFiles(out, mapping, func(seqs, genes io.Writer) error {
		for _, ko := range kos {
			c := best[ko]
			gene := ko + "|" + c.rec.ID()
			if err := fasta.WriteRecord(seqs, fasta.Record{Header: gene, Lines: c.rec.Lines}); err != nil {
				return err
			}
			if _, err := fmt.Fprintf(genes, "%s\t%s\n", ko, gene); err != nil {
				return err
			}
		}
		return nil
	})
}

// matchingKO copies every record whose header mentions a wanted KO
func matchingKO(corpus string, want map[string]struct{}, out, mapping string) (int, error) {
	written := 0
	err := writeGutFiles(out, mapping, func(seqs, genes io.Writer) error {
		return fasta.ScanFile(corpus, func(rec fasta.Record) error {
			for _, ko := range headerKOs(rec.Header) {
				if _, ok := want[ko]; !ok {
					continue
				}
				written++
				if err := fasta.WriteRecord(seqs, rec); err != nil {
					return err
				}
				_, err := fmt.Fprintf(genes, "%s\t%s\n", ko, rec.ID())
				return err
			}
			return nil
		})
	})
	return written, err
}

func writeGutFiles(out, mapping string, fn func(seqs, genes io.Writer) error) error {
	return services.WriteAtomic(out, func(seqs io.Writer) error {
		bs := bufio.NewWriter(seqs)
		err := services.WriteAtomic(mapping, func(genes io.Writer) error {
			bg := bufio.NewWriter(genes)
			if err := fn(bs, bg); err != nil {
				return err
			}
			return bg.Flush()
		})
		if err != nil {
			return err
		}
		return bs.Flush()
	})
}

// writeKeyFile writes normalized KO names one per line for hmmfetch -f
func (p *Preparer) writeKeyFile(kos []string) error {
	if err := os.MkdirAll(p.gutDir(), 0755); err != nil {
		return err
	}
	data := strings.Join(kos, "\n") + "\n"
	return services.WriteFileAtomic(p.keyFilePath(), []byte(data))
}

func (p *Preparer) keyFilePath() string {
	return filepath.Join(p.gutDir(), koKeysName)
}
