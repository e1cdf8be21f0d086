package models

import (
	"time"

	"gorm.io/datatypes"
)

// Submission lifecycle states.
const (
	SubmissionStatusPending    = "pending"
	SubmissionStatusHarvesting = "harvesting"
	SubmissionStatusGrading    = "grading"
	SubmissionStatusCompleted  = "completed"
	SubmissionStatusFailed     = "failed"
)

// Submission tracks one builder entry to a challenge and the harvested file
// set backing its evaluation.
type Submission struct {
	ID            uint        `gorm:"primaryKey" json:"id"`
	BuilderID     uint        `gorm:"not null;index" json:"builder_id"`
	ChallengeID   uint        `gorm:"not null;index" json:"challenge_id"`
	RepoOwner     string      `gorm:"size:128" json:"repo_owner"`
	RepoName      string      `gorm:"size:128" json:"repo_name"`
	RepoURL       string      `gorm:"size:512" json:"repo_url"`
	StoragePrefix string      `gorm:"size:256;uniqueIndex" json:"storage_prefix"`
	FileCount     int         `json:"file_count"`
	TotalBytes    int64       `json:"total_bytes"`
	Status        string      `gorm:"size:32;default:pending" json:"status"`
	FailureDetail string      `gorm:"type:text" json:"-"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
	Evaluation    *Evaluation `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"evaluation,omitempty"`
}

// Evaluation captures the grader's report for a submission. Written once;
// never updated after that.
type Evaluation struct {
	ID              uint              `gorm:"primaryKey" json:"id"`
	SubmissionID    uint              `gorm:"not null;uniqueIndex" json:"submission_id"`
	Summary         string            `gorm:"type:text" json:"summary"`
	OverallScore    float64           `gorm:"not null" json:"overall_score"`
	Scores          datatypes.JSONMap `json:"scores"`
	KeyStrengths    datatypes.JSON    `json:"key_strengths"`
	KeyImprovements datatypes.JSON    `json:"key_improvements"`
	Provider        string            `gorm:"size:32" json:"provider"`
	Model           string            `gorm:"size:64" json:"model"`
	CreatedAt       time.Time         `json:"created_at"`
}
