package annotate

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/trobanga/enzflow/internal/lib"
	"github.com/trobanga/enzflow/internal/models"
)

// Abundance is an expression table keyed by protein_id
type Abundance struct {
	TPM     map[string]float64
	TPMNorm map[string]float64 // Nil unless the table carries TPM_norm
}

// LoadAbundance reads a CSV with protein_id and TPM and/or TPM_norm columns
func LoadAbundance(path string) (*Abundance, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, lib.ErrFileNotFound(path)
	}
	defer func() { _ = f.Close() }()

	rows, err := readTable(f)
	if err != nil {
		return nil, lib.ErrInvalidAbundanceTable(path, err.Error())
	}
	if len(rows) == 0 {
		return nil, lib.ErrInvalidAbundanceTable(path, "no data rows")
	}
	if _, ok := rows[0]["protein_id"]; !ok {
		return nil, lib.ErrInvalidAbundanceTable(path, "missing protein_id column")
	}
	_, hasTPM := rows[0]["TPM"]
	_, hasNorm := rows[0]["TPM_norm"]
	if !hasTPM && !hasNorm {
		return nil, lib.ErrInvalidAbundanceTable(path, "missing TPM or TPM_norm column")
	}

	ab := &Abundance{TPM: make(map[string]float64, len(rows))}
	if hasNorm {
		ab.TPMNorm = make(map[string]float64, len(rows))
	}
	for i, row := range rows {
		id := strings.TrimSpace(row["protein_id"])
		if id == "" {
			continue
		}
		if hasTPM {
			v, err := parseNumber(row["TPM"])
			if err != nil {
				return nil, lib.ErrInvalidAbundanceTable(path, fmt.Sprintf("row %d: invalid TPM", i+2))
			}
			ab.TPM[id] = v
		}
		if hasNorm {
			v, err := parseNumber(row["TPM_norm"])
			if err != nil {
				return nil, lib.ErrInvalidAbundanceTable(path, fmt.Sprintf("row %d: invalid TPM_norm", i+2))
			}
			ab.TPMNorm[id] = v
		}
	}
	return ab, nil
}

func parseNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

// JoinAbundance left-joins ab onto t by protein_id. Unmatched proteins get
// TPM 0. TPM_norm is TPM over the joined column's median unless the table
// supplied it.
func JoinAbundance(t *models.AnnotationTable, ab *Abundance) {
	if ab == nil {
		return
	}
	t.HasAbundance = true

	tpms := make([]float64, len(t.Records))
	for i := range t.Records {
		tpms[i] = ab.TPM[t.Records[i].ProteinID]
	}
	med := median(tpms)

	for i := range t.Records {
		r := &t.Records[i]
		tpm := tpms[i]
		var norm float64
		switch {
		case ab.TPMNorm != nil:
			norm = ab.TPMNorm[r.ProteinID]
		case med > 0:
			norm = tpm / med
		}
		r.TPM = &tpm
		r.TPMNorm = &norm
	}
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64{}, values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
