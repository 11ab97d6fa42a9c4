package fasta

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trobanga/enzflow/internal/lib"
)

const sample = "junk before header\n" +
	">contig_1_1 # 2 # 100 # 1\r\n" +
	"MKV\n" +
	"\n" +
	"LLA\n" +
	">contig_2_3 hypothetical\n" +
	"MSTQ\n" +
	">contig_1_1 duplicate\n" +
	"MAA\n"

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "in.faa")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestScan(t *testing.T) {
	var recs []Record
	err := Scan(strings.NewReader(sample), func(r Record) error {
		recs = append(recs, r)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, recs, 3)

	assert.Equal(t, "contig_1_1 # 2 # 100 # 1", recs[0].Header)
	assert.Equal(t, []string{"MKV", "LLA"}, recs[0].Lines)
	assert.Equal(t, "contig_1_1", recs[0].ID())
	assert.Equal(t, 6, SequenceLength(recs[0]))
	assert.Equal(t, "contig_2_3", recs[1].ID())
}

func TestHeaderID(t *testing.T) {
	assert.Equal(t, "p1", HeaderID(">p1 desc"))
	assert.Equal(t, "p2", HeaderID("  p2\tdesc"))
	assert.Empty(t, HeaderID(">"))
}

func TestValidate(t *testing.T) {
	n, err := Validate(writeFile(t, sample))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	tests := []struct {
		name    string
		content string
		message string
	}{
		{"Empty file", "", lib.ErrEmptyInput("").Message},
		{"Blank lines only", "\n  \n", lib.ErrEmptyInput("").Message},
		{"No headers", "MKVLLA\nMSTQ\n", lib.ErrNoSequences("").Message},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Validate(writeFile(t, tt.content))
			var enzErr *lib.EnzflowError
			require.ErrorAs(t, err, &enzErr)
			assert.Equal(t, lib.CategoryValidation, enzErr.Category)
			assert.Equal(t, tt.message, enzErr.Message)
		})
	}

	_, err = Validate(filepath.Join(t.TempDir(), "missing.faa"))
	var enzErr *lib.EnzflowError
	require.ErrorAs(t, err, &enzErr)
	assert.Equal(t, lib.CategoryFileSystem, enzErr.Category)
}

func TestExclude(t *testing.T) {
	var buf bytes.Buffer
	kept, err := Exclude(writeFile(t, sample), &buf, map[string]struct{}{"contig_1_1": {}})
	require.NoError(t, err)
	assert.Equal(t, 1, kept)
	assert.Equal(t, ">contig_2_3 hypothetical\nMSTQ\n", buf.String())
}

func TestSubset_FirstOccurrenceWins(t *testing.T) {
	var buf bytes.Buffer
	written, err := Subset(writeFile(t, sample), &buf, map[string]struct{}{"contig_1_1": {}, "absent": {}})
	require.NoError(t, err)
	assert.Equal(t, 1, written)
	assert.Equal(t, ">contig_1_1 # 2 # 100 # 1\nMKV\nLLA\n", buf.String())
}
