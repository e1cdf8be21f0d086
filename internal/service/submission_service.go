package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/arena-go-api/internal/dto"
	"github.com/noah-isme/arena-go-api/internal/models"
	"github.com/noah-isme/arena-go-api/internal/observability"
	"github.com/noah-isme/arena-go-api/internal/repository"
	"github.com/noah-isme/arena-go-api/pkg/ai"
	"github.com/noah-isme/arena-go-api/pkg/github"
)

// Generic user-facing failure message; structured details stay in logs and
// the submission row.
const evaluationFailedMessage = "evaluation failed, please try again"

const evaluatedSubject = "arena.submissions.evaluated"

// SubmissionService runs the full harvest-then-grade pipeline for a builder
// entry and owns its persistence.
type SubmissionService interface {
	Submit(ctx context.Context, req dto.SubmissionRequest) (dto.SubmissionResponse, error)
	Get(ctx context.Context, id uint) (dto.SubmissionResponse, error)
	Status(ctx context.Context, id uint) (dto.SubmissionStatusResponse, error)
}

// SubmissionConfig tunes pipeline retry policy and status reporting.
type SubmissionConfig struct {
	RetryAttempts  int
	RetryBaseDelay time.Duration
	StatusTTL      time.Duration
	Provider       string
	Model          string
}

type submissionService struct {
	submissions repository.SubmissionRepository
	harvester   HarvestService
	grader      GradeService
	redis       *redis.Client
	nats        *nats.Conn
	validator   *validator.Validate
	logger      zerolog.Logger
	config      SubmissionConfig
}

// NewSubmissionService constructs the pipeline orchestrator. Redis and NATS
// are optional; without them status polling and event publication degrade to
// no-ops.
func NewSubmissionService(submissionRepo repository.SubmissionRepository, harvester HarvestService, grader GradeService, redisClient *redis.Client, natsConn *nats.Conn, validate *validator.Validate, logger zerolog.Logger, cfg SubmissionConfig) SubmissionService {
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 500 * time.Millisecond
	}
	if cfg.StatusTTL <= 0 {
		cfg.StatusTTL = 24 * time.Hour
	}

	return &submissionService{
		submissions: submissionRepo,
		harvester:   harvester,
		grader:      grader,
		redis:       redisClient,
		nats:        natsConn,
		validator:   validate,
		logger:      logger.With().Str("component", "submission_service").Logger(),
		config:      cfg,
	}
}

func (s *submissionService) Submit(ctx context.Context, req dto.SubmissionRequest) (dto.SubmissionResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.SubmissionResponse{}, err
	}

	ref, err := github.ParseRepoURL(req.RepoURL)
	if err != nil {
		return dto.SubmissionResponse{}, fmt.Errorf("%w: %v", ErrInvalidRepoURL, err)
	}

	// One prefix per (builder, challenge, timestamp); concurrent submissions
	// never share one, so the grader never races a re-harvest.
	prefix := fmt.Sprintf("submissions/%d/%d/%d", req.BuilderID, req.ChallengeID, time.Now().Unix())

	submission := models.Submission{
		BuilderID:     req.BuilderID,
		ChallengeID:   req.ChallengeID,
		RepoOwner:     ref.Owner,
		RepoName:      ref.Name,
		RepoURL:       req.RepoURL,
		StoragePrefix: prefix,
		Status:        models.SubmissionStatusPending,
	}
	if err := s.submissions.Create(ctx, &submission); err != nil {
		return dto.SubmissionResponse{}, fmt.Errorf("create submission: %w", err)
	}

	s.setStatus(ctx, submission.ID, models.SubmissionStatusHarvesting, "collecting repository files")

	var harvested dto.HarvestResponse
	err = s.withRetry(ctx, "harvest", func(ctx context.Context) error {
		var harvestErr error
		harvested, harvestErr = s.harvester.Harvest(ctx, req.RepoURL, prefix)
		return harvestErr
	})
	if err != nil {
		return dto.SubmissionResponse{}, s.fail(ctx, &submission, "harvest", err)
	}

	submission.FileCount = harvested.FileCount
	submission.TotalBytes = harvested.TotalSize
	submission.Status = models.SubmissionStatusGrading
	if err := s.submissions.Update(ctx, &submission); err != nil {
		s.logger.Error().Err(err).Uint("submission_id", submission.ID).Msg("failed to update submission after harvest")
	}
	s.setStatus(ctx, submission.ID, models.SubmissionStatusGrading, "evaluating submission")

	var evaluation dto.EvaluationPayload
	err = s.withRetry(ctx, "grade", func(ctx context.Context) error {
		var gradeErr error
		evaluation, gradeErr = s.grader.Grade(ctx, dto.GradeRequest{
			Repository: dto.GradeRepository{Name: ref.Name, Owner: ref.Owner, FolderName: prefix},
			Challenge:  req.Challenge,
		})
		return gradeErr
	})
	if err != nil {
		return dto.SubmissionResponse{}, s.fail(ctx, &submission, "grade", err)
	}

	record, err := s.saveEvaluation(ctx, submission.ID, evaluation)
	if err != nil {
		return dto.SubmissionResponse{}, s.fail(ctx, &submission, "persist", err)
	}

	submission.Status = models.SubmissionStatusCompleted
	submission.Evaluation = record
	if err := s.submissions.Update(ctx, &submission); err != nil {
		s.logger.Error().Err(err).Uint("submission_id", submission.ID).Msg("failed to mark submission completed")
	}

	s.setStatus(ctx, submission.ID, models.SubmissionStatusCompleted, "evaluation complete")
	s.publishEvaluated(submission, evaluation)

	response := newSubmissionResponse(submission)
	response.Evaluation = &evaluation
	return response, nil
}

func (s *submissionService) Get(ctx context.Context, id uint) (dto.SubmissionResponse, error) {
	submission, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrSubmissionNotFound
		}
		return dto.SubmissionResponse{}, err
	}

	response := newSubmissionResponse(submission)
	if submission.Evaluation != nil {
		payload := evaluationPayloadFromModel(*submission.Evaluation)
		response.Evaluation = &payload
	}
	return response, nil
}

func (s *submissionService) Status(ctx context.Context, id uint) (dto.SubmissionStatusResponse, error) {
	if s.redis != nil {
		raw, err := s.redis.Get(ctx, statusKey(id)).Result()
		if err == nil {
			var entry dto.SubmissionStatusResponse
			if err := json.Unmarshal([]byte(raw), &entry); err == nil {
				return entry, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Uint("submission_id", id).Msg("status lookup failed, falling back to database")
		}
	}

	submission, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionStatusResponse{}, ErrSubmissionNotFound
		}
		return dto.SubmissionStatusResponse{}, err
	}

	return dto.SubmissionStatusResponse{
		SubmissionID: submission.ID,
		Status:       submission.Status,
		UpdatedAt:    submission.UpdatedAt,
	}, nil
}

// withRetry reruns op with exponential backoff for transient upstream and
// model failures; a malformed model response is retried exactly once. Input
// errors, truncation and empty file sets are never retried.
func (s *submissionService) withRetry(ctx context.Context, stage string, op func(context.Context) error) error {
	delay := s.config.RetryBaseDelay
	malformedRetried := false

	for attempt := 1; ; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}

		retry := false
		switch {
		case errors.Is(err, ErrUpstreamUnavailable), errors.Is(err, ErrModelUnavailable):
			retry = attempt < s.config.RetryAttempts
		case isMalformedResponse(err):
			retry = !malformedRetried
			malformedRetried = true
		}

		if !retry {
			return err
		}

		s.logger.Warn().Err(err).Str("stage", stage).Int("attempt", attempt).Msg("stage failed, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}

// fail records the structured failure on the row and in logs, then returns
// the original error for the handler to classify. Users polling status only
// ever see the generic message.
func (s *submissionService) fail(ctx context.Context, submission *models.Submission, stage string, err error) error {
	observability.PipelineFailures().WithLabelValues(stage, errorKind(err)).Inc()

	s.logger.Error().Err(err).
		Uint("submission_id", submission.ID).
		Str("stage", stage).
		Msg("evaluation pipeline failed")

	submission.Status = models.SubmissionStatusFailed
	submission.FailureDetail = fmt.Sprintf("%s: %v", stage, err)
	if updateErr := s.submissions.Update(ctx, submission); updateErr != nil {
		s.logger.Error().Err(updateErr).Uint("submission_id", submission.ID).Msg("failed to mark submission failed")
	}

	s.setStatus(ctx, submission.ID, models.SubmissionStatusFailed, evaluationFailedMessage)
	return err
}

func (s *submissionService) saveEvaluation(ctx context.Context, submissionID uint, payload dto.EvaluationPayload) (*models.Evaluation, error) {
	scores := make(datatypes.JSONMap, len(payload.Scores))
	for name, score := range payload.Scores {
		scores[name] = score
	}

	strengths, err := json.Marshal(payload.KeyStrengths)
	if err != nil {
		return nil, fmt.Errorf("encode strengths: %w", err)
	}
	improvements, err := json.Marshal(payload.KeyImprovements)
	if err != nil {
		return nil, fmt.Errorf("encode improvements: %w", err)
	}

	evaluation := models.Evaluation{
		SubmissionID:    submissionID,
		Summary:         payload.Summary,
		OverallScore:    payload.OverallScore,
		Scores:          scores,
		KeyStrengths:    datatypes.JSON(strengths),
		KeyImprovements: datatypes.JSON(improvements),
		Provider:        s.config.Provider,
		Model:           s.config.Model,
	}

	if err := s.submissions.SaveEvaluation(ctx, &evaluation); err != nil {
		return nil, fmt.Errorf("save evaluation: %w", err)
	}
	return &evaluation, nil
}

func (s *submissionService) setStatus(ctx context.Context, id uint, status, message string) {
	if s.redis == nil {
		return
	}

	entry := dto.SubmissionStatusResponse{
		SubmissionID: id,
		Status:       status,
		Message:      message,
		UpdatedAt:    time.Now().UTC(),
	}

	encoded, err := json.Marshal(entry)
	if err != nil {
		return
	}

	if err := s.redis.Set(ctx, statusKey(id), encoded, s.config.StatusTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Uint("submission_id", id).Msg("failed to publish pipeline status")
	}
}

type evaluatedEvent struct {
	SubmissionID uint      `json:"submission_id"`
	BuilderID    uint      `json:"builder_id"`
	ChallengeID  uint      `json:"challenge_id"`
	OverallScore float64   `json:"overall_score"`
	SentAt       time.Time `json:"sent_at"`
}

func (s *submissionService) publishEvaluated(submission models.Submission, evaluation dto.EvaluationPayload) {
	if s.nats == nil {
		return
	}

	payload, err := json.Marshal(evaluatedEvent{
		SubmissionID: submission.ID,
		BuilderID:    submission.BuilderID,
		ChallengeID:  submission.ChallengeID,
		OverallScore: evaluation.OverallScore,
		SentAt:       time.Now().UTC(),
	})
	if err != nil {
		return
	}

	if err := s.nats.Publish(evaluatedSubject, payload); err != nil {
		s.logger.Warn().Err(err).Uint("submission_id", submission.ID).Msg("failed to publish evaluated event")
	}
}

func newSubmissionResponse(submission models.Submission) dto.SubmissionResponse {
	return dto.SubmissionResponse{
		ID:            submission.ID,
		BuilderID:     submission.BuilderID,
		ChallengeID:   submission.ChallengeID,
		RepoOwner:     submission.RepoOwner,
		RepoName:      submission.RepoName,
		RepoURL:       submission.RepoURL,
		StoragePrefix: submission.StoragePrefix,
		FileCount:     submission.FileCount,
		TotalBytes:    submission.TotalBytes,
		Status:        submission.Status,
		CreatedAt:     submission.CreatedAt,
	}
}

func evaluationPayloadFromModel(evaluation models.Evaluation) dto.EvaluationPayload {
	scores := make(map[string]float64, len(evaluation.Scores))
	for name, value := range evaluation.Scores {
		if number, ok := value.(float64); ok {
			scores[name] = number
		}
	}

	var strengths, improvements []string
	_ = json.Unmarshal(evaluation.KeyStrengths, &strengths)
	_ = json.Unmarshal(evaluation.KeyImprovements, &improvements)

	return dto.EvaluationPayload{
		Summary:         evaluation.Summary,
		Scores:          scores,
		OverallScore:    evaluation.OverallScore,
		KeyStrengths:    strengths,
		KeyImprovements: improvements,
	}
}

func isMalformedResponse(err error) bool {
	var malformed *ai.MalformedResponseError
	return errors.As(err, &malformed)
}

func errorKind(err error) string {
	var malformed *ai.MalformedResponseError
	switch {
	case errors.Is(err, ErrInvalidRepoURL):
		return "invalid_reference"
	case errors.Is(err, ErrUpstreamUnavailable):
		return "upstream_unavailable"
	case errors.Is(err, ErrStorageWrite):
		return "storage_write"
	case errors.Is(err, ErrEmptyFileSet):
		return "empty_file_set"
	case errors.Is(err, ai.ErrTruncated):
		return "response_truncated"
	case errors.As(err, &malformed):
		return "malformed_response"
	case errors.Is(err, ErrModelUnavailable):
		return "model_unavailable"
	case errors.Is(err, ErrGraderUnavailable):
		return "grader_unavailable"
	default:
		return "unknown"
	}
}

func statusKey(id uint) string {
	return fmt.Sprintf("arena:submission:%d:status", id)
}
