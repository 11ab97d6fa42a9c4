package pipeline

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/trobanga/enzflow/internal/models"
	"github.com/trobanga/enzflow/internal/services"
)

const unknownEnzyme = "Unknown_enzyme"

var koID = regexp.MustCompile(`K\d{5}`)

func scanLines(path string, fn func(line string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		if err := fn(strings.TrimRight(scanner.Text(), "\r")); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// ConvertHMMSearch rewrites hmmsearch text output into kofam-style lines
// "* <target> <KO> <score>". The KO comes from the preceding Query: line.
func ConvertHMMSearch(in, out string) (int, error) {
	rows := 0
	err := services.WriteAtomic(out, func(w io.Writer) error {
		bw := bufio.NewWriter(w)
		currentKO := ""
		err := scanLines(in, func(line string) error {
			line = strings.TrimSpace(line)
			switch {
			case strings.HasPrefix(line, "Query:"):
				if ko := koID.FindString(line); ko != "" {
					currentKO = ko
				}
				return nil
			case line == "" || strings.HasPrefix(line, "#") || currentKO == "":
				return nil
			}

			parts := strings.Fields(line)
			if len(parts) < 8 {
				return nil
			}
			score := parts[7]
			if _, err := strconv.ParseFloat(score, 64); err != nil {
				score = "0"
			}
			rows++
			_, err := fmt.Fprintf(bw, "* %s %s %s\n", parts[0], currentKO, score)
			return err
		})
		if err != nil {
			return err
		}
		return bw.Flush()
	})
	return rows, err
}

// ParseKofam reads kofam-style output and keeps only confident ("*") hits
func ParseKofam(path string) (*models.SourceTable, error) {
	table := &models.SourceTable{Source: models.SourceKofam}
	err := scanLines(path, func(line string) error {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "*") {
			return nil
		}
		parts := strings.Fields(strings.TrimLeft(line, "* "))
		if len(parts) < 2 {
			return nil
		}
		row := models.SourceRow{ProteinID: parts[0], KeggKO: parts[1]}
		if len(parts) >= 3 {
			if v, err := strconv.ParseFloat(parts[2], 64); err == nil {
				row.HMMScore = strconv.FormatFloat(v, 'f', -1, 64)
			}
		}
		table.Rows = append(table.Rows, row)
		return nil
	})
	return table, err
}

// LoadKO2Genes reads "KO<TAB>gene" lines into gene -> first KO
func LoadKO2Genes(path string) (map[string]string, error) {
	genes := make(map[string]string)
	err := scanLines(path, func(line string) error {
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			return nil
		}
		parts := strings.Split(strings.TrimSpace(line), "\t")
		if len(parts) < 2 {
			return nil
		}
		if _, seen := genes[parts[1]]; !seen {
			genes[parts[1]] = parts[0]
		}
		return nil
	})
	return genes, err
}

// ParseOutfmt6 converts diamond tabular hits into a per-source table. The KO
// comes from ko2genes when given, else from a K##### pattern in the subject.
// Hits without a KO are dropped and duplicate rows collapse.
func ParseOutfmt6(path string, source models.SourceName, ko2genes map[string]string) (*models.SourceTable, error) {
	table := &models.SourceTable{Source: source}
	seen := make(map[models.SourceRow]struct{})
	err := scanLines(path, func(line string) error {
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			return nil
		}
		cols := strings.Split(line, "\t")
		if len(cols) < 2 {
			return nil
		}

		var ko string
		if len(ko2genes) > 0 {
			ko = ko2genes[cols[1]]
		} else {
			ko = koID.FindString(cols[1])
		}
		if ko == "" {
			return nil
		}

		row := models.SourceRow{
			ProteinID:   cols[0],
			EnzymeName:  unknownEnzyme,
			ECNumber:    "-",
			KeggKO:      ko,
			KeggPathway: "-",
		}
		if _, dup := seen[row]; dup {
			return nil
		}
		seen[row] = struct{}{}
		table.Rows = append(table.Rows, row)
		return nil
	})
	return table, err
}

// HitQueryIDs returns the distinct query IDs of a tabular hits file and the hit count
func HitQueryIDs(path string) (map[string]struct{}, int, error) {
	ids := make(map[string]struct{})
	hits := 0
	err := scanLines(path, func(line string) error {
		if strings.TrimSpace(line) == "" {
			return nil
		}
		hits++
		if i := strings.IndexByte(line, '\t'); i > 0 {
			ids[line[:i]] = struct{}{}
		} else {
			ids[strings.TrimSpace(line)] = struct{}{}
		}
		return nil
	})
	return ids, hits, err
}

// ParseEmapper converts an emapper annotations file. Rows without an EC
// number are dropped; multi-EC rows are exploded and deduplicated on
// (protein_id, EC).
func ParseEmapper(path string) (*models.SourceTable, error) {
	table := &models.SourceTable{Source: models.SourceEggnog}
	var index map[string]int
	type key struct{ protein, ec string }
	seen := make(map[key]struct{})

	err := scanLines(path, func(line string) error {
		if strings.HasPrefix(line, "#query") {
			index = make(map[string]int)
			for i, col := range strings.Split(strings.TrimPrefix(line, "#"), "\t") {
				index[strings.TrimSpace(col)] = i
			}
			return nil
		}
		if strings.HasPrefix(line, "#") || strings.TrimSpace(line) == "" {
			return nil
		}
		if index == nil {
			return fmt.Errorf("annotations file has no #query header")
		}

		cols := strings.Split(line, "\t")
		get := func(name string) string {
			i, ok := index[name]
			if !ok || i >= len(cols) {
				return ""
			}
			return strings.TrimSpace(cols[i])
		}

		ecCell := get("EC")
		if ecCell == "" || ecCell == "-" {
			return nil
		}
		name := get("Preferred_name")
		if name == "" {
			name = unknownEnzyme
		}
		protein := get("query")
		ko := strings.ReplaceAll(get("KEGG_ko"), "ko:", "")
		pathway := get("KEGG_Pathway")

		for _, ec := range strings.Split(ecCell, ",") {
			ec = strings.TrimSpace(ec)
			if ec == "" {
				continue
			}
			k := key{protein, ec}
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			table.Rows = append(table.Rows, models.SourceRow{
				ProteinID:   protein,
				EnzymeName:  name,
				ECNumber:    ec,
				KeggKO:      ko,
				KeggPathway: pathway,
			})
		}
		return nil
	})
	return table, err
}
