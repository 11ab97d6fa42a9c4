package cmd

import (
	"errors"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trobanga/enzflow/internal/lib"
	"github.com/trobanga/enzflow/internal/models"
)

func TestJobIDCandidates(t *testing.T) {
	jobs := []models.Job{
		{ID: "a1", Status: models.JobStatusPending, OwnerID: "alice"},
		{ID: "a2", Status: models.JobStatusCompleted, OwnerID: "bob"},
		{ID: "b1", Status: models.JobStatusFailed, OwnerID: "alice"},
	}

	assert.Equal(t, []string{"a1\tpending alice", "a2\tcompleted bob"}, jobIDCandidates(jobs, "a"))
	assert.Equal(t, []string{"a1\tpending alice", "b1\tfailed alice"},
		jobIDCandidates(jobs, "", models.JobStatusPending, models.JobStatusFailed))
	assert.Empty(t, jobIDCandidates(jobs, "c"))
}

func TestJobCommandsCompleteIDs(t *testing.T) {
	for _, c := range []*cobra.Command{jobProcessCmd, jobResetCmd, jobStatusCmd} {
		assert.NotNil(t, c.ValidArgsFunction, c.Name())
	}

	ids, directive := jobStatusCmd.ValidArgsFunction(jobStatusCmd, []string{"already-given"}, "")
	assert.Empty(t, ids)
	assert.Equal(t, cobra.ShellCompDirectiveNoFileComp, directive)
}

func TestErrorText(t *testing.T) {
	text := errorText(lib.ErrJobNotFound("j1"))
	assert.Contains(t, text, "Error: Job 'j1' not found")
	assert.Contains(t, text, "enzflow job list")

	text = errorText(errors.New("open /data/jobs.db: permission denied"))
	require.Contains(t, text, "Error: Permission denied")
	assert.Contains(t, text, "Check file/directory permissions")
	assert.Contains(t, text, "Technical details: open /data/jobs.db: permission denied")
}
