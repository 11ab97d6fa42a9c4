// Package annotate merges per-source annotation tables into the frozen
// annotation schema and scores pathway activity from the result.
package annotate

import (
	"regexp"
	"sort"
	"strings"

	"github.com/trobanga/enzflow/internal/models"
)

// Contig patterns, tried in order
var (
	contigSuffixed = regexp.MustCompile(`(contig[^_]*_[^_]+)`)
	contigNumbered = regexp.MustCompile(`(?i)(contig[0-9]+)`)
	contigBeforeOR = regexp.MustCompile(`(?i)^([^_]+(?:_[^_]+)*?)_orf`)
)

// ContigID derives the contig identifier from a protein identifier
func ContigID(proteinID string) string {
	if m := contigSuffixed.FindStringSubmatch(proteinID); m != nil {
		return m[1]
	}
	if m := contigNumbered.FindStringSubmatch(proteinID); m != nil {
		return m[1]
	}
	if m := contigBeforeOR.FindStringSubmatch(proteinID); m != nil {
		return m[1]
	}
	if i := strings.Index(proteinID, "_"); i >= 0 {
		return proteinID[:i]
	}
	return proteinID
}

// HasKO reports whether a KO cell carries a usable value
func HasKO(cell string) bool {
	v := strings.TrimSpace(cell)
	return v != "" && v != "-"
}

// SplitKOs returns the KOs of a possibly comma-separated KEGG_KO cell
func SplitKOs(cell string) []string {
	if !HasKO(cell) {
		return nil
	}
	var out []string
	for _, k := range strings.Split(cell, ",") {
		if k = strings.TrimSpace(k); k != "" && k != "-" {
			out = append(out, k)
		}
	}
	return out
}

// Merge combines the gut, eggnog and kofam tables. Absent or empty tables
// are ignored. The eggNOG-like side is gut and eggnog together; the
// KofamScan-like side is kofam.
func Merge(gut, eggnog, kofam *models.SourceTable) models.AnnotationTable {
	var present []*models.SourceTable
	for _, t := range []*models.SourceTable{gut, eggnog, kofam} {
		if !t.Empty() {
			present = append(present, t)
		}
	}

	out := models.AnnotationTable{HasHMMScore: !kofam.Empty()}
	switch len(present) {
	case 0:
		return out
	case 1:
		out.Records = single(present[0])
	default:
		var eggSide []models.SourceRow
		for _, t := range []*models.SourceTable{gut, eggnog} {
			if !t.Empty() {
				eggSide = append(eggSide, t.Rows...)
			}
		}
		var kofSide []models.SourceRow
		if !kofam.Empty() {
			kofSide = kofam.Rows
		}
		out.Records = join(eggSide, kofSide)
	}

	sortRecords(out.Records)
	out.Records = dedup(out.Records)
	return out
}

func single(t *models.SourceTable) []models.AnnotationRecord {
	records := make([]models.AnnotationRecord, 0, len(t.Rows))
	for _, r := range t.Rows {
		records = append(records, models.AnnotationRecord{
			ProteinID:  r.ProteinID,
			ContigID:   ContigID(r.ProteinID),
			ECNumber:   r.ECNumber,
			KeggKO:     r.KeggKO,
			EnzymeName: r.EnzymeName,
			Pathway:    r.KeggPathway,
			Confidence: models.ConfidenceMedium,
			Source:     t.Source,
			HMMScore:   r.HMMScore,
		})
	}
	return records
}

// join is a full outer join on protein_id; a protein with several rows on
// both sides yields every pairing.
func join(eggSide, kofSide []models.SourceRow) []models.AnnotationRecord {
	kofByProtein := make(map[string][]models.SourceRow)
	for _, r := range kofSide {
		kofByProtein[r.ProteinID] = append(kofByProtein[r.ProteinID], r)
	}

	var records []models.AnnotationRecord
	matched := make(map[string]bool)
	for _, e := range eggSide {
		kofs := kofByProtein[e.ProteinID]
		if len(kofs) == 0 {
			records = append(records, combine(&e, nil))
			continue
		}
		matched[e.ProteinID] = true
		for i := range kofs {
			records = append(records, combine(&e, &kofs[i]))
		}
	}
	for i := range kofSide {
		if !matched[kofSide[i].ProteinID] {
			records = append(records, combine(nil, &kofSide[i]))
		}
	}
	return records
}

func combine(egg, kof *models.SourceRow) models.AnnotationRecord {
	var rec models.AnnotationRecord
	var eggKO, kofKO string
	if egg != nil {
		rec.ProteinID = egg.ProteinID
		rec.ECNumber = egg.ECNumber
		rec.EnzymeName = egg.EnzymeName
		rec.Pathway = egg.KeggPathway
		eggKO = egg.KeggKO
	}
	if kof != nil {
		rec.ProteinID = kof.ProteinID
		rec.HMMScore = kof.HMMScore
		kofKO = kof.KeggKO
	}
	rec.ContigID = ContigID(rec.ProteinID)

	hasEgg, hasKof := HasKO(eggKO), HasKO(kofKO)
	switch {
	case hasEgg && hasKof:
		rec.KeggKO = eggKO
		rec.Source = models.SourceEggnogKof
		if strings.TrimSpace(eggKO) == strings.TrimSpace(kofKO) {
			rec.Confidence = models.ConfidenceHigh
		} else {
			rec.Confidence = models.ConfidenceMedium
		}
	case hasKof:
		rec.KeggKO = kofKO
		rec.Source = models.SourceKofam
		rec.Confidence = models.ConfidenceMedium
	case hasEgg:
		rec.KeggKO = eggKO
		rec.Source = models.SourceEggnog
		rec.Confidence = models.ConfidenceMedium
	default:
		rec.KeggKO = eggKO
		rec.Source = models.SourceEggnog
		rec.Confidence = models.ConfidenceLow
	}
	return rec
}

func sortRecords(records []models.AnnotationRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		ri, rj := records[i].Confidence.Rank(), records[j].Confidence.Rank()
		if ri != rj {
			return ri < rj
		}
		return records[i].ProteinID < records[j].ProteinID
	})
}

// dedup keeps the first record per (protein_id, EC_number)
func dedup(records []models.AnnotationRecord) []models.AnnotationRecord {
	type key struct{ protein, ec string }
	seen := make(map[key]struct{}, len(records))
	out := records[:0]
	for _, r := range records {
		k := key{r.ProteinID, r.ECNumber}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}

// ProteinIDs returns the distinct annotated protein identifiers
func ProteinIDs(t models.AnnotationTable) map[string]struct{} {
	ids := make(map[string]struct{}, len(t.Records))
	for _, r := range t.Records {
		ids[r.ProteinID] = struct{}{}
	}
	return ids
}
