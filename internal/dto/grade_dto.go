package dto

import "github.com/noah-isme/arena-go-api/pkg/ai"

// GradeRepository identifies the already-harvested repository to grade.
type GradeRepository struct {
	Name       string `json:"name" validate:"required"`
	Owner      string `json:"owner" validate:"required"`
	FolderName string `json:"folderName" validate:"required"`
}

// EvaluationCriterionPayload is one weighted rubric axis. Weights are
// advisory; the grader does not require them to sum to 100.
type EvaluationCriterionPayload struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
	Weight      int    `json:"weight"`
}

// GradeChallenge carries the challenge rubric supplied by the caller.
type GradeChallenge struct {
	Requirements       []string                     `json:"requirements" validate:"required,min=1"`
	EvaluationCriteria []EvaluationCriterionPayload `json:"evaluationCriteria" validate:"required,min=1,dive"`
}

// GradeRequest asks the service to grade a harvested file set.
type GradeRequest struct {
	Repository GradeRepository `json:"repository" validate:"required"`
	Challenge  GradeChallenge  `json:"challenge" validate:"required"`
}

// EvaluationPayload is the user-facing evaluation report.
type EvaluationPayload struct {
	Summary         string             `json:"summary"`
	Scores          map[string]float64 `json:"scores"`
	OverallScore    float64            `json:"overallScore"`
	KeyStrengths    []string           `json:"keyStrengths"`
	KeyImprovements []string           `json:"keyImprovements"`
}

// GradeResponse wraps a completed evaluation.
type GradeResponse struct {
	Success    bool              `json:"success"`
	Evaluation EvaluationPayload `json:"evaluation"`
}

// NewEvaluationPayload maps a model evaluation record onto the response shape.
func NewEvaluationPayload(record ai.EvaluationRecord) EvaluationPayload {
	return EvaluationPayload{
		Summary:         record.Summary,
		Scores:          record.Scores,
		OverallScore:    record.OverallScore,
		KeyStrengths:    record.KeyStrengths,
		KeyImprovements: record.KeyImprovements,
	}
}

// Criteria converts the rubric payload into grader input values.
func (c GradeChallenge) Criteria() []ai.Criterion {
	criteria := make([]ai.Criterion, 0, len(c.EvaluationCriteria))
	for _, criterion := range c.EvaluationCriteria {
		criteria = append(criteria, ai.Criterion{
			Name:          criterion.Name,
			Description:   criterion.Description,
			WeightPercent: criterion.Weight,
		})
	}
	return criteria
}
