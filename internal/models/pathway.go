package models

// PathwayDefinition is static catalogue data for one pathway group
type PathwayDefinition struct {
	Group           string   `yaml:"pathway_group" json:"pathway_group"`
	ExpectedKOs     []string `yaml:"expected_kos" json:"expected_kos"`
	Weight          float64  `yaml:"weight" json:"weight"`
	DisplayName     string   `yaml:"display_name" json:"display_name,omitempty"`
	Description     string   `yaml:"description" json:"description,omitempty"`
	HealthImpact    string   `yaml:"health_impact" json:"health_impact,omitempty"`
	LowThreshold    float64  `yaml:"low_threshold" json:"low_threshold"`
	NormalThreshold float64  `yaml:"normal_threshold" json:"normal_threshold"`
	HighThreshold   float64  `yaml:"high_threshold" json:"high_threshold"`
}

// Default health thresholds
const (
	DefaultLowThreshold    = 0.0
	DefaultNormalThreshold = 0.3
	DefaultHighThreshold   = 0.7
)

// HealthStatus classifies a pathway score against its thresholds
type HealthStatus string

const (
	HealthCritical HealthStatus = "CRITICAL"
	HealthLow      HealthStatus = "LOW"
	HealthNormal   HealthStatus = "NORMAL"
	HealthOptimal  HealthStatus = "OPTIMAL"
)

// Color returns the dashboard color for a health status
func (h HealthStatus) Color() string {
	switch h {
	case HealthCritical:
		return "#d32f2f"
	case HealthLow:
		return "#f57c00"
	case HealthNormal:
		return "#388e3c"
	case HealthOptimal:
		return "#1976d2"
	default:
		return ""
	}
}

// PathwayScore is one row of the pathway score table
type PathwayScore struct {
	Group           string       `json:"pathway_group"`
	Coverage        float64      `json:"coverage"`
	Score           float64      `json:"pathway_score"`
	EnzymesDetected string       `json:"enzymes_detected"`
	DetectedCount   int          `json:"enzymes_detected_count"`
	ExpectedCount   int          `json:"enzymes_expected_count"`
	Weight          float64      `json:"pathway_weight"`
	DisplayName     string       `json:"display_name"`
	Description     string       `json:"description"`
	HealthStatus    HealthStatus `json:"health_status"`
	StatusColor     string       `json:"status_color"`
	HealthImpact    string       `json:"health_impact"`
}

// PathwayColumns is the pathway score table header
var PathwayColumns = []string{
	"pathway_group",
	"coverage",
	"pathway_score",
	"enzymes_detected",
	"enzymes_detected_count",
	"enzymes_expected_count",
	"pathway_weight",
	"display_name",
	"description",
	"health_status",
	"status_color",
	"health_impact",
}

// PreparedDatabasePaths is the process-wide tier-1 reference cache
type PreparedDatabasePaths struct {
	GutDB         string `json:"gut_db"`                   // gut_db.dmnd
	GutDBRamdisk  string `json:"gut_db_ramdisk,omitempty"` // Copy on fast storage, if warmed
	KO2Genes      string `json:"ko2genes"`
	HMMProfiles   string `json:"hmm_profiles"` // Subset, or the full set on fallback
	ProfileSubset bool   `json:"profile_subset"`
	FullDBPresent bool   `json:"full_db_present"`
	Initialized   bool   `json:"initialized"`
}

// Tier1DB returns the fastest available tier-1 index
func (p PreparedDatabasePaths) Tier1DB() string {
	if p.GutDBRamdisk != "" {
		return p.GutDBRamdisk
	}
	return p.GutDB
}
