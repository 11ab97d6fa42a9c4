package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/trobanga/enzflow/internal/lib"
	"github.com/trobanga/enzflow/internal/models"
	"github.com/trobanga/enzflow/internal/services"
)

// completeJobIDs offers the IDs of jobs in one of statuses (any status when
// none are given). Shell completion comes from cobra's built-in completion
// command; this only fills in the <job-id> argument.
func completeJobIDs(statuses ...models.JobStatus) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}

		config, err := services.LoadConfig(cfgFile)
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		// Anything written to stdout here would be taken as a candidate
		st, err := openStore(cmd.Context(), config, lib.NewNopLogger())
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		defer func() { _ = st.Close() }()

		jobs, err := st.ListJobs(cmd.Context(), "")
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		return jobIDCandidates(jobs, toComplete, statuses...), cobra.ShellCompDirectiveNoFileComp
	}
}

// jobIDCandidates formats matching jobs as "id\tstatus owner" completion entries
func jobIDCandidates(jobs []models.Job, prefix string, statuses ...models.JobStatus) []string {
	var out []string
	for _, j := range jobs {
		if !strings.HasPrefix(j.ID, prefix) {
			continue
		}
		if len(statuses) > 0 && !hasStatus(statuses, j.Status) {
			continue
		}
		out = append(out, j.ID+"\t"+string(j.Status)+" "+j.OwnerID)
	}
	return out
}

func hasStatus(statuses []models.JobStatus, status models.JobStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func init() {
	jobProcessCmd.ValidArgsFunction = completeJobIDs(models.JobStatusPending, models.JobStatusFailed)
	jobResetCmd.ValidArgsFunction = completeJobIDs(models.JobStatusPending, models.JobStatusRunning, models.JobStatusFailed)
	jobStatusCmd.ValidArgsFunction = completeJobIDs()
}
