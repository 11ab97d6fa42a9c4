package annotate

import (
	"sort"
	"strconv"
	"strings"

	"github.com/trobanga/enzflow/internal/lib"
	"github.com/trobanga/enzflow/internal/models"
)

const (
	hmmScoreScale    = 200.0
	maxDetectedShown = 10
)

// confidenceActivity is the activity proxy when no HMM score is available
func confidenceActivity(c models.Confidence) float64 {
	switch c {
	case models.ConfidenceHigh:
		return 1.0
	case models.ConfidenceMedium:
		return 0.7
	case models.ConfidenceLow:
		return 0.3
	default:
		return 0.5
	}
}

// RecordActivity is the per-record activity value in [0, 1]
func RecordActivity(r models.AnnotationRecord) float64 {
	if s := strings.TrimSpace(r.HMMScore); s != "" {
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			if a := v / hmmScoreScale; a < 1.0 {
				return a
			}
			return 1.0
		}
	}
	return confidenceActivity(r.Confidence)
}

// koMax builds KO -> max value over every record naming that KO
func koMax(records []models.AnnotationRecord, value func(models.AnnotationRecord) float64) map[string]float64 {
	out := make(map[string]float64)
	for _, r := range records {
		kos := SplitKOs(r.KeggKO)
		if len(kos) == 0 {
			continue
		}
		v := value(r)
		for _, ko := range kos {
			if cur, ok := out[ko]; !ok || v > cur {
				out[ko] = v
			}
		}
	}
	return out
}

// Scorer computes pathway scores with one of the two formulas
type Scorer struct {
	Formula models.ScoringFormula
	Logger  *lib.Logger
}

// Score scores every definition against the merged table. Pathways with no
// detected KO are left out; the result is sorted by score, highest first.
func (s Scorer) Score(t models.AnnotationTable, defs []models.PathwayDefinition) []models.PathwayScore {
	formula := s.Formula
	if formula == models.FormulaAbundance && !t.HasAbundance {
		if s.Logger != nil {
			s.Logger.Warn("Abundance formula requested without an abundance table, using activity")
		}
		formula = models.FormulaActivity
	}

	var values map[string]float64
	if formula == models.FormulaAbundance {
		values = koMax(t.Records, func(r models.AnnotationRecord) float64 {
			if r.TPMNorm == nil {
				return 0
			}
			return *r.TPMNorm
		})
	} else {
		values = koMax(t.Records, RecordActivity)
	}

	type scored struct {
		row models.PathwayScore
		raw float64
	}
	rows := make([]scored, 0, len(defs))
	for _, def := range defs {
		expected := cleanKOs(def.ExpectedKOs)
		if len(expected) == 0 {
			continue
		}

		var detected []string
		sum := 0.0
		for _, ko := range expected {
			if v, ok := values[ko]; ok {
				detected = append(detected, ko)
				sum += v
			}
		}
		if len(detected) == 0 {
			continue
		}

		coverage := float64(len(detected)) / float64(len(expected))
		if coverage > 1.0 {
			coverage = 1.0
		}

		var score float64
		if formula == models.FormulaAbundance {
			score = sum / float64(len(expected)) * def.Weight
		} else {
			score = sum / float64(len(detected)) * coverage * def.Weight
		}

		status := Health(score, def)
		rows = append(rows, scored{raw: score, row: models.PathwayScore{
			Group:           def.Group,
			Coverage:        round4(coverage),
			Score:           round4(score),
			EnzymesDetected: detectedList(detected),
			DetectedCount:   len(detected),
			ExpectedCount:   len(expected),
			Weight:          def.Weight,
			DisplayName:     def.DisplayName,
			Description:     def.Description,
			HealthStatus:    status,
			StatusColor:     status.Color(),
			HealthImpact:    def.HealthImpact,
		}})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].raw > rows[j].raw
	})
	scores := make([]models.PathwayScore, len(rows))
	for i := range rows {
		scores[i] = rows[i].row
	}
	return scores
}

// Health classifies score against the definition's thresholds
func Health(score float64, def models.PathwayDefinition) models.HealthStatus {
	switch {
	case score < def.LowThreshold:
		return models.HealthCritical
	case score < def.NormalThreshold:
		return models.HealthLow
	case score < def.HighThreshold:
		return models.HealthNormal
	default:
		return models.HealthOptimal
	}
}

func detectedList(kos []string) string {
	sorted := append([]string{}, kos...)
	sort.Strings(sorted)
	if len(sorted) <= maxDetectedShown {
		return strings.Join(sorted, ",")
	}
	return strings.Join(sorted[:maxDetectedShown], ",") + " (+" + strconv.Itoa(len(sorted)-maxDetectedShown) + " more)"
}
