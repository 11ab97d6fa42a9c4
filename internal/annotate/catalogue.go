package annotate

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/trobanga/enzflow/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed default_pathways.csv
var defaultCatalogue []byte

// DefaultCatalogue returns the pathway definitions shipped with the binary
func DefaultCatalogue() ([]models.PathwayDefinition, error) {
	return ParseCatalogueCSV(bytes.NewReader(defaultCatalogue))
}

// LoadCatalogue reads a CSV or YAML catalogue, or the default when path is empty
func LoadCatalogue(path string) ([]models.PathwayDefinition, error) {
	if path == "" {
		return DefaultCatalogue()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pathway catalogue: %w", err)
	}
	defer func() { _ = f.Close() }()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseCatalogueYAML(f)
	default:
		return ParseCatalogueCSV(f)
	}
}

// ParseCatalogueCSV reads pathway_group,expected_kos,weight plus the optional
// display and threshold columns. expected_kos is pipe-delimited.
func ParseCatalogueCSV(r io.Reader) ([]models.PathwayDefinition, error) {
	rows, err := readTable(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read pathway catalogue: %w", err)
	}

	defs := make([]models.PathwayDefinition, 0, len(rows))
	for i, row := range rows {
		def := models.PathwayDefinition{
			Group:        strings.TrimSpace(row["pathway_group"]),
			ExpectedKOs:  splitExpected(row["expected_kos"]),
			DisplayName:  row["display_name"],
			Description:  row["description"],
			HealthImpact: row["health_impact"],
		}
		if def.Group == "" {
			return nil, fmt.Errorf("catalogue row %d: pathway_group is required", i+2)
		}

		fields := []struct {
			col string
			dst *float64
			def float64
		}{
			{"weight", &def.Weight, 1.0},
			{"low_threshold", &def.LowThreshold, models.DefaultLowThreshold},
			{"normal_threshold", &def.NormalThreshold, models.DefaultNormalThreshold},
			{"high_threshold", &def.HighThreshold, models.DefaultHighThreshold},
		}
		for _, f := range fields {
			v := strings.TrimSpace(row[f.col])
			if v == "" {
				*f.dst = f.def
				continue
			}
			n, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("catalogue row %d: invalid %s %q", i+2, f.col, v)
			}
			*f.dst = n
		}
		defs = append(defs, withDisplayDefaults(def))
	}
	return defs, nil
}

type yamlCatalogue struct {
	Pathways []yamlPathway `yaml:"pathways"`
}

type yamlPathway struct {
	Group           string   `yaml:"pathway_group"`
	ExpectedKOs     yamlKOs  `yaml:"expected_kos"`
	Weight          *float64 `yaml:"weight"`
	DisplayName     string   `yaml:"display_name"`
	Description     string   `yaml:"description"`
	HealthImpact    string   `yaml:"health_impact"`
	LowThreshold    *float64 `yaml:"low_threshold"`
	NormalThreshold *float64 `yaml:"normal_threshold"`
	HighThreshold   *float64 `yaml:"high_threshold"`
}

// yamlKOs accepts either a list or a pipe-delimited string
type yamlKOs []string

func (k *yamlKOs) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*k = splitExpected(node.Value)
		return nil
	}
	var list []string
	if err := node.Decode(&list); err != nil {
		return err
	}
	*k = list
	return nil
}

// ParseCatalogueYAML reads a document of the form `pathways: [...]`
func ParseCatalogueYAML(r io.Reader) ([]models.PathwayDefinition, error) {
	var doc yamlCatalogue
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse pathway catalogue: %w", err)
	}

	or := func(v *float64, def float64) float64 {
		if v == nil {
			return def
		}
		return *v
	}

	defs := make([]models.PathwayDefinition, 0, len(doc.Pathways))
	for i, p := range doc.Pathways {
		if strings.TrimSpace(p.Group) == "" {
			return nil, fmt.Errorf("catalogue entry %d: pathway_group is required", i+1)
		}
		defs = append(defs, withDisplayDefaults(models.PathwayDefinition{
			Group:           strings.TrimSpace(p.Group),
			ExpectedKOs:     cleanKOs(p.ExpectedKOs),
			Weight:          or(p.Weight, 1.0),
			DisplayName:     p.DisplayName,
			Description:     p.Description,
			HealthImpact:    p.HealthImpact,
			LowThreshold:    or(p.LowThreshold, models.DefaultLowThreshold),
			NormalThreshold: or(p.NormalThreshold, models.DefaultNormalThreshold),
			HighThreshold:   or(p.HighThreshold, models.DefaultHighThreshold),
		}))
	}
	return defs, nil
}

func splitExpected(s string) []string {
	return cleanKOs(strings.Split(s, "|"))
}

// cleanKOs trims entries and drops blanks and repeats
func cleanKOs(kos []string) []string {
	seen := make(map[string]struct{}, len(kos))
	out := make([]string, 0, len(kos))
	for _, k := range kos {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

func withDisplayDefaults(def models.PathwayDefinition) models.PathwayDefinition {
	if strings.TrimSpace(def.DisplayName) == "" {
		def.DisplayName = DisplayName(def.Group)
	}
	return def
}

// DisplayName title-cases a pathway group, e.g. bile_salt_hydrolase -> Bile Salt Hydrolase
func DisplayName(group string) string {
	words := strings.Fields(strings.ReplaceAll(group, "_", " "))
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + strings.ToLower(w[size:])
	}
	return strings.Join(words, " ")
}
