package annotate

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trobanga/enzflow/internal/models"
)

func TestContigID(t *testing.T) {
	testCases := []struct {
		name      string
		proteinID string
		expected  string
	}{
		{"suffixed contig", "contig_123_orf_456", "contig_123"},
		{"suffixed contig with prefix", "sampleA_contig7_12_3", "contig7_12"},
		{"numbered contig, mixed case", "Contig42", "Contig42"},
		{"before orf marker", "scaffold_9_orf3", "scaffold_9"},
		{"before ORF marker, case-insensitive", "scaf_1_ORF_2", "scaf_1"},
		{"first underscore fallback", "seq_1", "seq"},
		{"no underscore", "prot1", "prot1"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, ContigID(tc.proteinID))
		})
	}
}

func TestSplitKOs(t *testing.T) {
	assert.Nil(t, SplitKOs("-"))
	assert.Nil(t, SplitKOs(" "))
	assert.Equal(t, []string{"K00001", "K00002"}, SplitKOs("K00001, K00002"))
}

func TestMerge_NoSources(t *testing.T) {
	table := Merge(nil, &models.SourceTable{Source: models.SourceEggnog}, nil)
	assert.Empty(t, table.Records)
	assert.False(t, table.HasHMMScore)

	var buf bytes.Buffer
	require.NoError(t, WriteAnnotations(&buf, table))
	assert.Equal(t, "protein_id,contig_id,EC_number,KEGG_KO,enzyme_name,pathway,confidence_score,annotation_source\n", buf.String())
}

func TestMerge_SingleSource(t *testing.T) {
	gut := &models.SourceTable{Source: models.SourceGut, Rows: []models.SourceRow{
		{ProteinID: "seq_2", EnzymeName: "Unknown_enzyme", ECNumber: "-", KeggKO: "K00002", KeggPathway: "-"},
		{ProteinID: "seq_1", EnzymeName: "Unknown_enzyme", ECNumber: "-", KeggKO: "K00001", KeggPathway: "-"},
	}}

	table := Merge(gut, nil, nil)
	require.Len(t, table.Records, 2)
	assert.Equal(t, "seq_1", table.Records[0].ProteinID)
	for _, r := range table.Records {
		assert.Equal(t, models.ConfidenceMedium, r.Confidence)
		assert.Equal(t, models.SourceGut, r.Source)
		assert.Equal(t, "seq", r.ContigID)
	}
}

func TestMerge_Disagreement(t *testing.T) {
	eggnog := &models.SourceTable{Source: models.SourceEggnog, Rows: []models.SourceRow{
		{ProteinID: "p1", EnzymeName: "buk", ECNumber: "2.7.2.7", KeggKO: "K00929", KeggPathway: "map00650"},
	}}
	kofam := &models.SourceTable{Source: models.SourceKofam, Rows: []models.SourceRow{
		{ProteinID: "p1", KeggKO: "K00248", HMMScore: "120.5"},
	}}

	table := Merge(nil, eggnog, kofam)
	require.Len(t, table.Records, 1)
	r := table.Records[0]
	assert.Equal(t, models.ConfidenceMedium, r.Confidence)
	assert.Equal(t, models.SourceEggnogKof, r.Source)
	assert.Equal(t, "K00929", r.KeggKO)
	assert.Equal(t, "120.5", r.HMMScore)
	assert.True(t, table.HasHMMScore)
}

func TestMerge_OuterJoin(t *testing.T) {
	eggnog := &models.SourceTable{Source: models.SourceEggnog, Rows: []models.SourceRow{
		{ProteinID: "b", ECNumber: "1.1.1.1", KeggKO: "K00001"},
		{ProteinID: "c", ECNumber: "2.2.2.2", KeggKO: "-"},
	}}
	kofam := &models.SourceTable{Source: models.SourceKofam, Rows: []models.SourceRow{
		{ProteinID: "b", KeggKO: "K00001", HMMScore: "300"},
		{ProteinID: "a", KeggKO: "K00002", HMMScore: "50"},
		{ProteinID: "c", KeggKO: "K00003"},
	}}

	table := Merge(nil, eggnog, kofam)
	require.Len(t, table.Records, 3)

	assert.Equal(t, "b", table.Records[0].ProteinID)
	assert.Equal(t, models.ConfidenceHigh, table.Records[0].Confidence)
	assert.Equal(t, models.SourceEggnogKof, table.Records[0].Source)

	assert.Equal(t, "a", table.Records[1].ProteinID)
	assert.Equal(t, models.SourceKofam, table.Records[1].Source)
	assert.Equal(t, "K00002", table.Records[1].KeggKO)

	// eggNOG "-" falls back to the kofam KO
	assert.Equal(t, "c", table.Records[2].ProteinID)
	assert.Equal(t, "K00003", table.Records[2].KeggKO)
	assert.Equal(t, models.SourceKofam, table.Records[2].Source)
}

func TestMerge_LowWhenNoKO(t *testing.T) {
	gut := &models.SourceTable{Source: models.SourceGut, Rows: []models.SourceRow{{ProteinID: "x", ECNumber: "1.1.1.1", KeggKO: "K00001"}}}
	eggnog := &models.SourceTable{Source: models.SourceEggnog, Rows: []models.SourceRow{{ProteinID: "y", ECNumber: "3.5.1.5", KeggKO: "-"}}}

	table := Merge(gut, eggnog, nil)
	require.Len(t, table.Records, 2)
	assert.Equal(t, models.ConfidenceMedium, table.Records[0].Confidence)
	assert.Equal(t, models.ConfidenceLow, table.Records[1].Confidence)
	assert.False(t, table.HasHMMScore)
}

func TestMerge_DedupOnProteinAndEC(t *testing.T) {
	eggnog := &models.SourceTable{Source: models.SourceEggnog, Rows: []models.SourceRow{
		{ProteinID: "p1", ECNumber: "1.1.1.1", KeggKO: "K00001"},
	}}
	kofam := &models.SourceTable{Source: models.SourceKofam, Rows: []models.SourceRow{
		{ProteinID: "p1", KeggKO: "K00009"},
		{ProteinID: "p1", KeggKO: "K00001"},
	}}

	table := Merge(nil, eggnog, kofam)
	require.Len(t, table.Records, 1)
	assert.Equal(t, models.ConfidenceHigh, table.Records[0].Confidence)
}

func TestMerge_Deterministic(t *testing.T) {
	build := func() []byte {
		eggnog := &models.SourceTable{Source: models.SourceEggnog, Rows: []models.SourceRow{
			{ProteinID: "contig_1_orf_2", EnzymeName: "ureA", ECNumber: "3.5.1.5", KeggKO: "K01428", KeggPathway: "map00220"},
			{ProteinID: "contig_1_orf_1", EnzymeName: "tnaA", ECNumber: "4.1.99.1", KeggKO: "K01667", KeggPathway: "map00380"},
		}}
		kofam := &models.SourceTable{Source: models.SourceKofam, Rows: []models.SourceRow{
			{ProteinID: "contig_1_orf_1", KeggKO: "K01667", HMMScore: "412.3"},
		}}
		var buf bytes.Buffer
		require.NoError(t, WriteAnnotations(&buf, Merge(nil, eggnog, kofam)))
		return buf.Bytes()
	}

	first := build()
	assert.Equal(t, first, build())
	assert.Equal(t,
		"protein_id,contig_id,EC_number,KEGG_KO,enzyme_name,pathway,confidence_score,annotation_source,hmm_score\n"+
			"contig_1_orf_1,contig_1,4.1.99.1,K01667,tnaA,map00380,HIGH,eggnog+kofamscan,412.3\n"+
			"contig_1_orf_2,contig_1,3.5.1.5,K01428,ureA,map00220,MEDIUM,eggnog,\n",
		string(first))
}
