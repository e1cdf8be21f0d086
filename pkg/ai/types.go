package ai

import (
	"context"
	"errors"
	"fmt"
)

// Criterion is one weighted evaluation axis from a challenge rubric.
type Criterion struct {
	Name          string
	Description   string
	WeightPercent int
}

// SubmissionFile is one harvested source file fed to the grader.
type SubmissionFile struct {
	Path    string
	Content string
}

// GradingInput contains everything embedded into a single grading prompt.
type GradingInput struct {
	RepoOwner    string
	RepoName     string
	Requirements []string
	Criteria     []Criterion
	Files        []SubmissionFile
}

// EvaluationRecord is the structured report produced for one submission.
// Field names are the wire contract with the model; renaming any of them
// breaks response parsing.
type EvaluationRecord struct {
	Summary         string             `json:"summary"`
	Scores          map[string]float64 `json:"scores"`
	OverallScore    float64            `json:"overallScore"`
	KeyStrengths    []string           `json:"keyStrengths"`
	KeyImprovements []string           `json:"keyImprovements"`
}

// Grader describes a model capable of scoring a harvested repository
// against a challenge rubric.
type Grader interface {
	Grade(ctx context.Context, input GradingInput) (EvaluationRecord, error)
}

// ErrTruncated indicates the model stopped because it hit the output cap;
// the partial text is never parsed.
var ErrTruncated = errors.New("model response truncated by output cap")

// MalformedResponseError reports model output that could not be parsed into
// an EvaluationRecord. Raw carries the offending text for diagnosis.
type MalformedResponseError struct {
	Raw string
	Err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed model response: %v", e.Err)
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}
