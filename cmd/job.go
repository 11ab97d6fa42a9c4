package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/trobanga/enzflow/internal/dbprep"
	"github.com/trobanga/enzflow/internal/models"
	"github.com/trobanga/enzflow/internal/pipeline"
	"github.com/trobanga/enzflow/internal/registry"
	"github.com/trobanga/enzflow/internal/runner"
	"github.com/trobanga/enzflow/internal/services"
	"github.com/trobanga/enzflow/internal/ui"
)

var (
	submitAbundance   string
	submitDescription string
	submitOwner       string
	submitNoStart     bool

	processDetached   bool
	processNoProgress bool

	listOwner string
)

// jobCmd represents the job command group
var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Manage annotation jobs",
	Long: `Manage annotation jobs: submit, inspect, and control job execution.

Available subcommands:
  submit  - Queue a FASTA file for annotation
  process - Run one job in the foreground
  reset   - Return a job to pending
  list    - List jobs
  status  - Show one job with its stages`,
}

var jobSubmitCmd = &cobra.Command{
	Use:   "submit <fasta>",
	Short: "Queue a FASTA file for annotation",
	Long: `Copy a protein FASTA file into the data directory and queue a job for it.

The job starts right away when no other job is running.

Example:
  enzflow job submit proteins.faa --abundance tpm.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runJobSubmit,
}

var jobProcessCmd = &cobra.Command{
	Use:   "process <job-id>",
	Short: "Run one job",
	Long: `Run one job to completion in this process.

A pending or failed job is claimed first. The queue launches admitted jobs
with --detached, which logs JSON and skips the progress bar. The next
pending job is admitted once this one ends.

Example:
  enzflow job process 7d2c5b1e-...`,
	Args: cobra.ExactArgs(1),
	RunE: runJobProcess,
}

var jobResetCmd = &cobra.Command{
	Use:   "reset <job-id>",
	Short: "Return a running or failed job to pending",
	Long: `Reset a job so it can run again. Completed jobs cannot be reset.

The job waits in the queue until the next admission.

Example:
  enzflow job reset 7d2c5b1e-...`,
	Args: cobra.ExactArgs(1),
	RunE: runJobReset,
}

var jobListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs",
	Long: `List jobs, newest first.

Shows:
  - Job ID
  - Status
  - Current stage
  - Progress
  - Age

Example:
  enzflow job list --owner alice`,
	Args: cobra.NoArgs,
	RunE: runJobList,
}

var jobStatusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show one job with its stages",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobStatus,
}

func init() {
	rootCmd.AddCommand(jobCmd)
	jobCmd.AddCommand(jobSubmitCmd, jobProcessCmd, jobResetCmd, jobListCmd, jobStatusCmd)

	jobSubmitCmd.Flags().StringVar(&submitAbundance, "abundance", "", "optional TPM abundance table (CSV)")
	jobSubmitCmd.Flags().StringVar(&submitDescription, "description", "", "free-text description")
	jobSubmitCmd.Flags().StringVar(&submitOwner, "owner", services.DefaultOwner, "owner recorded on the job")
	jobSubmitCmd.Flags().BoolVar(&submitNoStart, "no-start", false, "queue the job without admitting it")

	jobProcessCmd.Flags().BoolVar(&processDetached, "detached", false, "run as a queue-launched job process")
	jobProcessCmd.Flags().BoolVar(&processNoProgress, "no-progress", false, "disable the progress bar")

	jobListCmd.Flags().StringVar(&listOwner, "owner", "", "only list this owner's jobs")
}

func runJobSubmit(cmd *cobra.Command, args []string) error {
	config, logger, err := loadRuntime(false)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	ctx := cmd.Context()

	st, err := openStore(ctx, config, logger)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	importer := services.NewImporter(services.NewWorkspace(config.DataDir), st, logger)
	source, job, err := importer.ImportLocal(ctx, submitOwner, args[0], submitAbundance, submitDescription)
	if err != nil {
		return err
	}

	fmt.Printf("Job %s queued for %s (%d bytes)\n", job.ID, source.OriginalName, source.Size)
	if submitNoStart {
		return nil
	}

	ctrl, err := newController(config, st, logger)
	if err != nil {
		return err
	}
	ctrl.Kick(ctx)

	if current, err := st.GetJob(ctx, job.ID); err == nil {
		fmt.Printf("Status: %s %s\n", getJobStatusSymbol(current.Status), current.Status)
	}
	return nil
}

func runJobProcess(cmd *cobra.Command, args []string) error {
	jobID := args[0]
	config, logger, err := loadRuntime(processDetached)
	if err != nil {
		return err
	}
	logger = logger.With("job_id", jobID)
	defer func() { _ = logger.Sync() }()

	reg := registry.New(0, logger)
	ctx, stop := reg.HandleSignals(cmd.Context())
	defer stop()

	st, err := openStore(ctx, config, logger)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	exec := runner.New(reg, logger)
	env := pipeline.NewEnv(config, st, dbprep.New(config, exec, logger), exec, logger)

	var bar *ui.JobProgress
	if !processDetached && !processNoProgress {
		bar = ui.NewJobProgress(jobID)
		env.Observer = bar.Observe
	}

	logger.Info("Job process started", "pid", os.Getpid(), "detached", processDetached)
	runErr := jobError(pipeline.ProcessJob(ctx, env, jobID), jobID)
	if bar != nil {
		if runErr == nil {
			_ = bar.Finish()
		} else {
			_ = bar.Clear()
		}
	}

	// The slot is free again whatever the outcome
	ctrl, err := newController(config, st, logger)
	if err != nil {
		logger.Error("Failed to build queue controller", "error", err)
	} else {
		ctrl.Kick(context.WithoutCancel(ctx))
	}

	if runErr != nil {
		return runErr
	}
	if !processDetached {
		job, err := st.GetJob(context.WithoutCancel(ctx), jobID)
		if err == nil {
			printJobSummary(job)
		}
	}
	return nil
}

func runJobReset(cmd *cobra.Command, args []string) error {
	config, logger, err := loadRuntime(false)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	ctx := cmd.Context()

	st, err := openStore(ctx, config, logger)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	ctrl, err := newController(config, st, logger)
	if err != nil {
		return err
	}
	job, err := ctrl.Reset(ctx, args[0])
	if err != nil {
		return jobError(err, args[0])
	}
	fmt.Printf("Job %s reset to %s\n", job.ID, job.Status)
	return nil
}

func runJobList(cmd *cobra.Command, args []string) error {
	config, logger, err := loadRuntime(false)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	ctx := cmd.Context()

	st, err := openStore(ctx, config, logger)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	jobs, err := st.ListJobs(ctx, listOwner)
	if err != nil {
		return fmt.Errorf("failed to list jobs: %w", err)
	}

	if len(jobs) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	// Print table header
	fmt.Printf("%-38s %-11s %-14s %-14s %-9s %s\n", "JOB ID", "STATUS", "OWNER", "STAGE", "PROGRESS", "AGE")
	fmt.Println("----------------------------------------------------------------------------------------------------")

	for _, j := range jobs {
		stage := string(j.Stage)
		if stage == "" {
			stage = "-"
		}
		fmt.Printf("%-38s %s %-9s %-14s %-14s %-9s %s\n",
			j.ID,
			getJobStatusSymbol(j.Status),
			j.Status,
			j.OwnerID,
			stage,
			fmt.Sprintf("%d%%", j.Progress),
			formatDuration(time.Since(j.CreatedAt)),
		)
	}

	fmt.Printf("\nTotal: %d jobs\n", len(jobs))
	return nil
}

func runJobStatus(cmd *cobra.Command, args []string) error {
	config, logger, err := loadRuntime(false)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	ctx := cmd.Context()

	st, err := openStore(ctx, config, logger)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	job, err := st.GetJob(ctx, args[0])
	if err != nil {
		return jobError(err, args[0])
	}
	printJobSummary(job)

	if len(job.Stages) > 0 {
		fmt.Println("\nStages:")
		for _, s := range job.Stages {
			line := fmt.Sprintf("  %-14s %-10s", s.Name, s.Status)
			if s.StartedAt != nil && s.CompletedAt != nil {
				line += fmt.Sprintf(" %-8s", formatDuration(s.CompletedAt.Sub(*s.StartedAt)))
			}
			if s.Hits > 0 {
				line += fmt.Sprintf(" hits=%d", s.Hits)
			}
			if s.Note != "" {
				line += "  " + s.Note
			}
			fmt.Println(line)
		}
	}
	return nil
}

func printJobSummary(job *models.Job) {
	fmt.Printf("Job:      %s\n", job.ID)
	fmt.Printf("Owner:    %s\n", job.OwnerID)
	fmt.Printf("Status:   %s %s\n", getJobStatusSymbol(job.Status), job.Status)
	fmt.Printf("Progress: %d%% %s\n", job.Progress, job.ProgressMessage)
	if job.ErrorMessage != "" {
		fmt.Printf("Error:    %s\n", job.ErrorMessage)
	}
	if job.Status == models.JobStatusCompleted {
		fmt.Printf("Time:     %.1fs\n", job.ProcessingTime)
		fmt.Printf("Enzymes:  %s\n", job.ResultPath)
		fmt.Printf("Pathways: %s\n", job.PathwayPath)
		if job.FastaPath != "" {
			fmt.Printf("FASTA:    %s\n", job.FastaPath)
		}
	}
}

func getJobStatusSymbol(status models.JobStatus) string {
	switch status {
	case models.JobStatusCompleted:
		return "✓"
	case models.JobStatusRunning:
		return "→"
	case models.JobStatusFailed:
		return "✗"
	case models.JobStatusPending:
		return "○"
	default:
		return " "
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	days := int(d.Hours() / 24)
	return fmt.Sprintf("%dd", days)
}
