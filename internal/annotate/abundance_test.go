package annotate

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trobanga/enzflow/internal/lib"
	"github.com/trobanga/enzflow/internal/models"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "abundance.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadAbundance(t *testing.T) {
	ab, err := LoadAbundance(writeCSV(t, "protein_id,TPM\np1,10\np2,\n"))
	require.NoError(t, err)
	assert.Equal(t, 10.0, ab.TPM["p1"])
	assert.Equal(t, 0.0, ab.TPM["p2"])
	assert.Nil(t, ab.TPMNorm)
}

func TestLoadAbundance_Invalid(t *testing.T) {
	testCases := []struct {
		name    string
		content string
	}{
		{"no protein_id", "gene,TPM\ng1,1\n"},
		{"no abundance column", "protein_id,count\np1,1\n"},
		{"non-numeric", "protein_id,TPM\np1,lots\n"},
		{"header only", "protein_id,TPM\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadAbundance(writeCSV(t, tc.content))
			require.Error(t, err)
			var ee *lib.EnzflowError
			assert.ErrorAs(t, err, &ee)
		})
	}
}

func TestJoinAbundance(t *testing.T) {
	table := models.AnnotationTable{Records: []models.AnnotationRecord{
		{ProteinID: "p1"}, {ProteinID: "p2"}, {ProteinID: "p3"},
	}}
	JoinAbundance(&table, &Abundance{TPM: map[string]float64{"p1": 4, "p2": 2}})

	require.True(t, table.HasAbundance)
	assert.Equal(t, 4.0, *table.Records[0].TPM)
	assert.Equal(t, 2.0, *table.Records[0].TPMNorm)
	assert.Equal(t, 0.0, *table.Records[2].TPM)
	assert.Equal(t, 0.0, *table.Records[2].TPMNorm)

	var buf bytes.Buffer
	require.NoError(t, WriteAnnotations(&buf, table))
	assert.Contains(t, buf.String(), "annotation_source,TPM,TPM_norm\n")
	assert.Contains(t, buf.String(), "p1,,,,,,,,4,2\n")
}

func TestJoinAbundance_ZeroMedian(t *testing.T) {
	table := models.AnnotationTable{Records: []models.AnnotationRecord{{ProteinID: "p1"}, {ProteinID: "p2"}, {ProteinID: "p3"}}}
	JoinAbundance(&table, &Abundance{TPM: map[string]float64{"p1": 5}})
	assert.Equal(t, 0.0, *table.Records[0].TPMNorm)
}

func TestJoinAbundance_SuppliedNorm(t *testing.T) {
	table := models.AnnotationTable{Records: []models.AnnotationRecord{{ProteinID: "p1"}}}
	JoinAbundance(&table, &Abundance{TPM: map[string]float64{}, TPMNorm: map[string]float64{"p1": 1.7}})
	assert.Equal(t, 1.7, *table.Records[0].TPMNorm)
}
