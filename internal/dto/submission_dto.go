package dto

import "time"

// SubmissionRequest runs the full harvest-then-grade pipeline for a builder's
// entry to a challenge. The rubric travels inline; challenge authoring lives
// in a different service.
type SubmissionRequest struct {
	BuilderID   uint           `json:"builderId" validate:"required"`
	ChallengeID uint           `json:"challengeId" validate:"required"`
	RepoURL     string         `json:"repoUrl" validate:"required"`
	Challenge   GradeChallenge `json:"challenge" validate:"required"`
}

// SubmissionResponse is a persisted submission row with its evaluation,
// when one exists.
type SubmissionResponse struct {
	ID            uint               `json:"id"`
	BuilderID     uint               `json:"builderId"`
	ChallengeID   uint               `json:"challengeId"`
	RepoOwner     string             `json:"repoOwner"`
	RepoName      string             `json:"repoName"`
	RepoURL       string             `json:"repoUrl"`
	StoragePrefix string             `json:"storagePrefix"`
	FileCount     int                `json:"fileCount"`
	TotalBytes    int64              `json:"totalBytes"`
	Status        string             `json:"status"`
	CreatedAt     time.Time          `json:"createdAt"`
	Evaluation    *EvaluationPayload `json:"evaluation,omitempty"`
}

// SubmissionStatusResponse reports pipeline progress for polling clients.
type SubmissionStatusResponse struct {
	SubmissionID uint      `json:"submissionId"`
	Status       string    `json:"status"`
	Message      string    `json:"message"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
