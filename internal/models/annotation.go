package models

// Confidence is the agreement level between annotation sources
type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
)

// Rank orders confidences HIGH first
func (c Confidence) Rank() int {
	switch c {
	case ConfidenceHigh:
		return 0
	case ConfidenceMedium:
		return 1
	case ConfidenceLow:
		return 2
	default:
		return 3
	}
}

// SourceName identifies where a per-source table came from
type SourceName string

const (
	SourceGut       SourceName = "gut"
	SourceEggnog    SourceName = "eggnog"
	SourceKofam     SourceName = "kofamscan"
	SourceEggnogKof SourceName = "eggnog+kofamscan"
)

// SourceRow is one row of a per-source annotation table
type SourceRow struct {
	ProteinID   string
	EnzymeName  string
	ECNumber    string
	KeggKO      string // kegg_ko, or kegg_ko_kofam for the kofam source
	KeggPathway string
	HMMScore    string // Only populated by the kofam source
}

// SourceTable is a per-source table produced by result extraction
type SourceTable struct {
	Source SourceName
	Rows   []SourceRow
}

// Empty reports whether the table has no data rows
func (t *SourceTable) Empty() bool {
	return t == nil || len(t.Rows) == 0
}

// AnnotationRecord is one row of the merged annotation table
type AnnotationRecord struct {
	ProteinID  string
	ContigID   string
	ECNumber   string
	KeggKO     string
	EnzymeName string
	Pathway    string
	Confidence Confidence
	Source     SourceName
	HMMScore   string // Empty when absent
	TPM        *float64
	TPMNorm    *float64
}

// AnnotationTable is the merged table plus the optional columns it carries
type AnnotationTable struct {
	Records      []AnnotationRecord
	HasHMMScore  bool
	HasAbundance bool
}

// AnnotationColumns is the frozen merged-table header
var AnnotationColumns = []string{
	"protein_id",
	"contig_id",
	"EC_number",
	"KEGG_KO",
	"enzyme_name",
	"pathway",
	"confidence_score",
	"annotation_source",
}
