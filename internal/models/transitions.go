package models

import "time"

// CompleteJob creates a new Job with completed status and artifact paths
// Pure function - returns new instance
func CompleteJob(job Job, artifacts Artifacts, now time.Time) Job {
	job.Status = JobStatusCompleted
	job.CompletedAt = &now
	job.ResultPath = artifacts.EnzymesCSV
	job.PathwayPath = artifacts.PathwaysCSV
	job.FastaPath = artifacts.FASTA
	job.Progress = 100
	job.ProgressMessage = "Completed"
	if job.StartedAt != nil {
		job.ProcessingTime = now.Sub(*job.StartedAt).Seconds()
	}
	return job
}

// FailJob creates a new Job with error message
// Pure function - returns new instance
func FailJob(job Job, errorMsg string, now time.Time) Job {
	job.Status = JobStatusFailed
	job.ErrorMessage = errorMsg
	job.CompletedAt = &now
	if job.StartedAt != nil {
		job.ProcessingTime = now.Sub(*job.StartedAt).Seconds()
	}
	return job
}

// ResetJob creates a new Job back in pending state with the reset reason recorded
// Pure function - returns new instance
func ResetJob(job Job, reason string) Job {
	job.Status = JobStatusPending
	job.ErrorMessage = reason
	job.StartedAt = nil
	job.CompletedAt = nil
	job.Progress = 0
	job.ProgressMessage = ""
	job.PID = 0
	return job
}

// UpdateProgress creates a new Job with a progress checkpoint.
// Progress never decreases.
func UpdateProgress(job Job, progress int, message string) Job {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	if progress > job.Progress {
		job.Progress = progress
	}
	job.ProgressMessage = message
	return job
}

// Artifacts names the persisted outputs of a completed job
type Artifacts struct {
	EnzymesCSV  string `json:"enzymes_csv"`
	PathwaysCSV string `json:"pathways_csv"`
	FASTA       string `json:"fasta,omitempty"`
}

// StartStage creates a new StageRecord with running status
// Pure function - returns new instance
func StartStage(stage StageRecord, now time.Time) StageRecord {
	stage.Status = StageStatusRunning
	stage.StartedAt = &now
	return stage
}

// CompleteStage creates a new StageRecord with completed status
// Pure function - returns new instance
func CompleteStage(stage StageRecord, hits int, now time.Time) StageRecord {
	stage.Status = StageStatusCompleted
	stage.CompletedAt = &now
	stage.Hits = hits
	return stage
}

// SkipStage creates a new StageRecord that was not run
func SkipStage(stage StageRecord, reason string, now time.Time) StageRecord {
	stage.Status = StageStatusSkipped
	stage.CompletedAt = &now
	stage.Note = reason
	return stage
}

// FailStage creates a new StageRecord with failed status and error details
// Pure function - returns new instance
func FailStage(stage StageRecord, errorMsg string, now time.Time) StageRecord {
	stage.Status = StageStatusFailed
	stage.CompletedAt = &now
	stage.Note = errorMsg
	return stage
}

// ReplaceStage replaces a stage in the job's stage list
// Pure function - returns new job instance with updated stages
func ReplaceStage(job Job, updated StageRecord) Job {
	stages := make([]StageRecord, len(job.Stages))
	copy(stages, job.Stages)

	for i, s := range stages {
		if s.Name == updated.Name {
			stages[i] = updated
			break
		}
	}

	job.Stages = stages
	job.Stage = updated.Name
	return job
}

// InitializeStages creates the pending stage list for a fresh run
func InitializeStages() []StageRecord {
	stages := make([]StageRecord, len(AllStages))
	for i, name := range AllStages {
		stages[i] = StageRecord{Name: name, Status: StageStatusPending}
	}
	return stages
}

// GetStageByName finds a stage by name in the job's stage list
// Pure function - returns copy of stage if found
func GetStageByName(job Job, name StageName) (StageRecord, bool) {
	for _, s := range job.Stages {
		if s.Name == name {
			return s, true
		}
	}
	return StageRecord{}, false
}
