package models

import "time"

// StageRecord represents one pipeline stage of a job run
type StageRecord struct {
	Name        StageName   `json:"name"`
	Status      StageStatus `json:"status"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	Hits        int         `json:"hits"`
	Note        string      `json:"note,omitempty"` // Skip reason or failure text
}

// StageName defines the pipeline stages in execution order
type StageName string

const (
	StageHMMSearch   StageName = "hmm_search"
	StageTier1Search StageName = "tier1_search"
	StageDecideTier2 StageName = "decide_tier2"
	StageTier2Search StageName = "tier2_search"
	StageExtract     StageName = "extract"
	StageMerge       StageName = "merge"
	StageScore       StageName = "score"
	StageFasta       StageName = "fasta"
)

// AllStages lists every stage in the order the pipeline runs them
var AllStages = []StageName{
	StageHMMSearch,
	StageTier1Search,
	StageDecideTier2,
	StageTier2Search,
	StageExtract,
	StageMerge,
	StageScore,
	StageFasta,
}

// StageStatus defines the execution state of a stage
type StageStatus string

const (
	StageStatusPending   StageStatus = "pending"
	StageStatusRunning   StageStatus = "running"
	StageStatusCompleted StageStatus = "completed"
	StageStatusSkipped   StageStatus = "skipped"
	StageStatusFailed    StageStatus = "failed"
)

// IsValidStageName checks if the stage name is recognized
func IsValidStageName(name StageName) bool {
	for _, s := range AllStages {
		if s == name {
			return true
		}
	}
	return false
}

// CanTransitionTo checks if stage status transition is valid
// Valid transitions:
//
//	pending -> running | skipped
//	running -> completed | failed
func (s StageStatus) CanTransitionTo(next StageStatus) bool {
	switch s {
	case StageStatusPending:
		return next == StageStatusRunning || next == StageStatusSkipped
	case StageStatusRunning:
		return next == StageStatusCompleted || next == StageStatusFailed
	default:
		return false
	}
}
