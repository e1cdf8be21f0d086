package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/arena-go-api/internal/dto"
	"github.com/noah-isme/arena-go-api/pkg/ai"
)

// GradeService scores a harvested file set against a challenge rubric.
type GradeService interface {
	Grade(ctx context.Context, req dto.GradeRequest) (dto.EvaluationPayload, error)
}

type gradeService struct {
	store  FileSetStore
	grader ai.Grader
	logger zerolog.Logger
	tracer trace.Tracer
}

// NewGradeService constructs a grade service. A nil grader leaves the
// service up but failing grade requests until a model is configured.
func NewGradeService(store FileSetStore, grader ai.Grader, logger zerolog.Logger) GradeService {
	return &gradeService{
		store:  store,
		grader: grader,
		logger: logger.With().Str("component", "grade_service").Logger(),
		tracer: otel.Tracer("github.com/noah-isme/arena-go-api/internal/service/grade"),
	}
}

// Grade reads every blob under the request's folder, reconstructs the
// original paths, and issues exactly one model call. There is no partial
// evaluation: any contract violation fails the whole attempt.
func (s *gradeService) Grade(parent context.Context, req dto.GradeRequest) (dto.EvaluationPayload, error) {
	if s.grader == nil {
		return dto.EvaluationPayload{}, ErrGraderUnavailable
	}

	ctx, span := s.tracer.Start(parent, "grade.run", trace.WithAttributes(
		attribute.String("repo", req.Repository.Owner+"/"+req.Repository.Name),
		attribute.String("prefix", req.Repository.FolderName),
	))
	defer span.End()

	objects, err := s.store.List(ctx, req.Repository.FolderName)
	if err != nil {
		return dto.EvaluationPayload{}, fmt.Errorf("read harvested file set: %w", err)
	}

	if len(objects) == 0 {
		return dto.EvaluationPayload{}, fmt.Errorf("%w: %s", ErrEmptyFileSet, req.Repository.FolderName)
	}

	files := make([]ai.SubmissionFile, 0, len(objects))
	for _, object := range objects {
		files = append(files, ai.SubmissionFile{
			Path:    object.OriginalPath,
			Content: string(object.Content),
		})
	}

	record, err := s.grader.Grade(ctx, ai.GradingInput{
		RepoOwner:    req.Repository.Owner,
		RepoName:     req.Repository.Name,
		Requirements: req.Challenge.Requirements,
		Criteria:     req.Challenge.Criteria(),
		Files:        files,
	})
	if err != nil {
		var malformed *ai.MalformedResponseError
		switch {
		case errors.Is(err, ai.ErrTruncated):
			return dto.EvaluationPayload{}, err
		case errors.As(err, &malformed):
			s.logger.Error().Str("raw", malformed.Raw).Msg("model returned malformed evaluation")
			return dto.EvaluationPayload{}, err
		default:
			return dto.EvaluationPayload{}, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
		}
	}

	s.logger.Info().
		Str("repo", req.Repository.Owner+"/"+req.Repository.Name).
		Int("files", len(files)).
		Float64("overall_score", record.OverallScore).
		Msg("file set graded")

	return dto.NewEvaluationPayload(record), nil
}
