package annotate

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/trobanga/enzflow/internal/models"
)

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

// AnnotationHeader returns the column list written for t
func AnnotationHeader(t models.AnnotationTable) []string {
	header := append([]string{}, models.AnnotationColumns...)
	if t.HasHMMScore {
		header = append(header, "hmm_score")
	}
	if t.HasAbundance {
		header = append(header, "TPM", "TPM_norm")
	}
	return header
}

// WriteAnnotations writes the merged table as CSV. The header is always
// written, so an empty table yields a header-only file.
func WriteAnnotations(w io.Writer, t models.AnnotationTable) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(AnnotationHeader(t)); err != nil {
		return err
	}
	for _, r := range t.Records {
		row := []string{
			r.ProteinID,
			r.ContigID,
			r.ECNumber,
			r.KeggKO,
			r.EnzymeName,
			r.Pathway,
			string(r.Confidence),
			string(r.Source),
		}
		if t.HasHMMScore {
			row = append(row, r.HMMScore)
		}
		if t.HasAbundance {
			row = append(row, optFloat(r.TPM), optFloat(r.TPMNorm))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func optFloat(v *float64) string {
	if v == nil {
		return "0"
	}
	return formatFloat(*v)
}

// WritePathwayScores writes the score table as CSV, header always included
func WritePathwayScores(w io.Writer, scores []models.PathwayScore) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(models.PathwayColumns); err != nil {
		return err
	}
	for _, s := range scores {
		row := []string{
			s.Group,
			formatFloat(s.Coverage),
			formatFloat(s.Score),
			s.EnzymesDetected,
			strconv.Itoa(s.DetectedCount),
			strconv.Itoa(s.ExpectedCount),
			formatFloat(s.Weight),
			s.DisplayName,
			s.Description,
			string(s.HealthStatus),
			s.StatusColor,
			s.HealthImpact,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadPathwayScores parses a score table written by WritePathwayScores
func ReadPathwayScores(r io.Reader) ([]models.PathwayScore, error) {
	rows, err := readTable(r)
	if err != nil {
		return nil, err
	}

	scores := make([]models.PathwayScore, 0, len(rows))
	for i, row := range rows {
		s := models.PathwayScore{
			Group:           row["pathway_group"],
			EnzymesDetected: row["enzymes_detected"],
			DisplayName:     row["display_name"],
			Description:     row["description"],
			HealthStatus:    models.HealthStatus(row["health_status"]),
			StatusColor:     row["status_color"],
			HealthImpact:    row["health_impact"],
		}
		var perr error
		parse := func(col string, dst *float64) {
			if perr != nil || row[col] == "" {
				return
			}
			*dst, perr = strconv.ParseFloat(row[col], 64)
		}
		parse("coverage", &s.Coverage)
		parse("pathway_score", &s.Score)
		parse("pathway_weight", &s.Weight)
		if perr == nil && row["enzymes_detected_count"] != "" {
			s.DetectedCount, perr = strconv.Atoi(row["enzymes_detected_count"])
		}
		if perr == nil && row["enzymes_expected_count"] != "" {
			s.ExpectedCount, perr = strconv.Atoi(row["enzymes_expected_count"])
		}
		if perr != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, perr)
		}
		scores = append(scores, s)
	}
	return scores, nil
}

// readTable reads a headed CSV into one map per data row
func readTable(r io.Reader) ([]map[string]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	for i := range header {
		header[i] = trimBOM(header[i])
	}

	var rows []map[string]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = rec[i]
			}
		}
		rows = append(rows, row)
	}
}

func trimBOM(s string) string {
	return strings.TrimPrefix(s, "\ufeff")
}
