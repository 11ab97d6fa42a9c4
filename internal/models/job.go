package models

import "time"

// Job represents one submitted input file's annotation run
type Job struct {
	ID              string        `json:"id"`
	OwnerID         string        `json:"owner_id"`
	SourceFileID    string        `json:"source_file_id"`
	Status          JobStatus     `json:"status"`
	CreatedAt       time.Time     `json:"created_at"`
	StartedAt       *time.Time    `json:"started_at,omitempty"`
	CompletedAt     *time.Time    `json:"completed_at,omitempty"`
	Progress        int           `json:"progress"` // 0-100
	ProgressMessage string        `json:"progress_message"`
	ErrorMessage    string        `json:"error_message,omitempty"`
	ResultPath      string        `json:"result_path,omitempty"`  // Merged annotation table
	PathwayPath     string        `json:"pathway_path,omitempty"` // Pathway score table
	FastaPath       string        `json:"fasta_path,omitempty"`   // Annotated sequences only
	ProcessingTime  float64       `json:"processing_time"`        // Seconds
	ToolVersion     string        `json:"tool_version,omitempty"`
	Stage           StageName     `json:"stage,omitempty"` // Current pipeline stage
	Stages          []StageRecord `json:"stages,omitempty"`
	PID             int           `json:"pid,omitempty"` // Detached job process
}

// JobStatus defines the lifecycle state of a job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// IsValidJobStatus checks if the job status is recognized
func IsValidJobStatus(s JobStatus) bool {
	switch s {
	case JobStatusPending, JobStatusRunning, JobStatusCompleted, JobStatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further automatic transition happens
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// CanTransitionTo checks if state transition is valid
// Valid transitions:
//
//	pending -> running
//	running -> completed | failed | pending (reset)
//	failed -> pending (retry by reset)
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobStatusPending:
		return next == JobStatusRunning
	case JobStatusRunning:
		return next == JobStatusCompleted || next == JobStatusFailed || next == JobStatusPending
	case JobStatusFailed:
		return next == JobStatusPending
	case JobStatusCompleted:
		return false // Terminal state
	default:
		return false
	}
}

// SourceFile is the uploaded FASTA input plus its optional abundance table
type SourceFile struct {
	ID            string           `json:"id"`
	OwnerID       string           `json:"owner_id"`
	Path          string           `json:"path"`
	OriginalName  string           `json:"original_name"`
	Size          int64            `json:"size"`
	Status        SourceFileStatus `json:"status"`
	Description   string           `json:"description,omitempty"`
	AbundancePath string           `json:"abundance_path,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}

// SourceFileStatus loosely mirrors the job status
type SourceFileStatus string

const (
	SourceFileUploaded   SourceFileStatus = "uploaded"
	SourceFileProcessing SourceFileStatus = "processing"
	SourceFileCompleted  SourceFileStatus = "completed"
	SourceFileFailed     SourceFileStatus = "failed"
)

// SourceStatusFor returns the source file status that accompanies a job status
func SourceStatusFor(s JobStatus) SourceFileStatus {
	switch s {
	case JobStatusRunning:
		return SourceFileProcessing
	case JobStatusCompleted:
		return SourceFileCompleted
	case JobStatusFailed:
		return SourceFileFailed
	default:
		return SourceFileUploaded
	}
}
