package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/arena-go-api/internal/dto"
	"github.com/noah-isme/arena-go-api/internal/models"
	"github.com/noah-isme/arena-go-api/pkg/ai"
)

type stubSubmissionRepo struct {
	created    *models.Submission
	stored     models.Submission
	evaluation *models.Evaluation
	err        error
}

func (s *stubSubmissionRepo) Create(_ context.Context, submission *models.Submission) error {
	if s.err != nil {
		return s.err
	}
	if submission.ID == 0 {
		submission.ID = 1
	}
	clone := *submission
	s.created = &clone
	s.stored = clone
	return nil
}

func (s *stubSubmissionRepo) Update(_ context.Context, submission *models.Submission) error {
	if s.err != nil {
		return s.err
	}
	s.stored = *submission
	return nil
}

func (s *stubSubmissionRepo) GetByID(_ context.Context, id uint) (models.Submission, error) {
	if s.err != nil {
		return models.Submission{}, s.err
	}
	if s.stored.ID == 0 || s.stored.ID != id {
		return models.Submission{}, gorm.ErrRecordNotFound
	}
	return s.stored, nil
}

func (s *stubSubmissionRepo) SaveEvaluation(_ context.Context, evaluation *models.Evaluation) error {
	if s.err != nil {
		return s.err
	}
	if evaluation.ID == 0 {
		evaluation.ID = 1
	}
	clone := *evaluation
	s.evaluation = &clone
	return nil
}

type stubHarvester struct {
	errs  []error
	calls int
}

func (h *stubHarvester) Harvest(_ context.Context, _, destinationPrefix string) (dto.HarvestResponse, error) {
	h.calls++
	if len(h.errs) > 0 {
		err := h.errs[0]
		h.errs = h.errs[1:]
		if err != nil {
			return dto.HarvestResponse{}, err
		}
	}
	return dto.HarvestResponse{
		Success:    true,
		FolderName: destinationPrefix,
		FileCount:  3,
		TotalSize:  4096,
	}, nil
}

type stubGradePipeline struct {
	errs  []error
	calls int
}

func (g *stubGradePipeline) Grade(_ context.Context, _ dto.GradeRequest) (dto.EvaluationPayload, error) {
	g.calls++
	if len(g.errs) > 0 {
		err := g.errs[0]
		g.errs = g.errs[1:]
		if err != nil {
			return dto.EvaluationPayload{}, err
		}
	}
	return dto.EvaluationPayload{
		Summary:         "Strong submission",
		Scores:          map[string]float64{"Architecture": 17},
		OverallScore:    82,
		KeyStrengths:    []string{"clean design", "good docs"},
		KeyImprovements: []string{"add retries", "tighten validation"},
	}, nil
}

func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func newPipeline(repo *stubSubmissionRepo, harvester HarvestService, grader GradeService, redisClient *redis.Client) SubmissionService {
	return NewSubmissionService(
		repo,
		harvester,
		grader,
		redisClient,
		nil,
		validator.New(validator.WithRequiredStructEnabled()),
		zerolog.Nop(),
		SubmissionConfig{RetryAttempts: 3, RetryBaseDelay: time.Millisecond, Provider: "openai", Model: "gpt-4o-mini"},
	)
}

func widgetSubmission() dto.SubmissionRequest {
	return dto.SubmissionRequest{
		BuilderID:   7,
		ChallengeID: 42,
		RepoURL:     "https://github.com/acme/widget",
		Challenge: dto.GradeChallenge{
			Requirements: []string{"Build a RAG pipeline"},
			EvaluationCriteria: []dto.EvaluationCriterionPayload{
				{Name: "Architecture", Description: "Sound boundaries", Weight: 100},
			},
		},
	}
}

func TestSubmitHappyPathPersistsEvaluation(t *testing.T) {
	repo := &stubSubmissionRepo{}
	redisClient := testRedis(t)
	svc := newPipeline(repo, &stubHarvester{}, &stubGradePipeline{}, redisClient)

	response, err := svc.Submit(context.Background(), widgetSubmission())
	require.NoError(t, err)

	require.Equal(t, models.SubmissionStatusCompleted, response.Status)
	require.Equal(t, "acme", response.RepoOwner)
	require.Equal(t, "widget", response.RepoName)
	require.Equal(t, 3, response.FileCount)
	require.Equal(t, int64(4096), response.TotalBytes)
	require.NotNil(t, response.Evaluation)
	require.Equal(t, float64(82), response.Evaluation.OverallScore)

	require.NotNil(t, repo.evaluation)
	require.Equal(t, "Strong submission", repo.evaluation.Summary)
	require.Equal(t, "openai", repo.evaluation.Provider)
	require.Equal(t, models.SubmissionStatusCompleted, repo.stored.Status)

	status, err := svc.Status(context.Background(), response.ID)
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusCompleted, status.Status)
}

func TestSubmitInvalidRepoURLCreatesNothing(t *testing.T) {
	repo := &stubSubmissionRepo{}
	svc := newPipeline(repo, &stubHarvester{}, &stubGradePipeline{}, nil)

	req := widgetSubmission()
	req.RepoURL = "https://bitbucket.org/acme/widget"

	_, err := svc.Submit(context.Background(), req)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrInvalidRepoURL))
	require.Nil(t, repo.created)
}

func TestSubmitRetriesTransientHarvestFailure(t *testing.T) {
	repo := &stubSubmissionRepo{}
	harvester := &stubHarvester{errs: []error{ErrUpstreamUnavailable}}
	svc := newPipeline(repo, harvester, &stubGradePipeline{}, nil)

	_, err := svc.Submit(context.Background(), widgetSubmission())
	require.NoError(t, err)
	require.Equal(t, 2, harvester.calls)
}

func TestSubmitPersistentHarvestFailureMarksFailed(t *testing.T) {
	repo := &stubSubmissionRepo{}
	redisClient := testRedis(t)
	harvester := &stubHarvester{errs: []error{ErrUpstreamUnavailable, ErrUpstreamUnavailable, ErrUpstreamUnavailable}}
	svc := newPipeline(repo, harvester, &stubGradePipeline{}, redisClient)

	_, err := svc.Submit(context.Background(), widgetSubmission())
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrUpstreamUnavailable))
	require.Equal(t, 3, harvester.calls)
	require.Equal(t, models.SubmissionStatusFailed, repo.stored.Status)
	require.NotEmpty(t, repo.stored.FailureDetail)

	// Users polling status only ever see the generic failure message.
	raw, err := redisClient.Get(context.Background(), statusKey(repo.stored.ID)).Result()
	require.NoError(t, err)

	var entry dto.SubmissionStatusResponse
	require.NoError(t, json.Unmarshal([]byte(raw), &entry))
	require.Equal(t, models.SubmissionStatusFailed, entry.Status)
	require.Equal(t, evaluationFailedMessage, entry.Message)
}

func TestSubmitRetriesMalformedResponseOnce(t *testing.T) {
	repo := &stubSubmissionRepo{}
	grader := &stubGradePipeline{errs: []error{&ai.MalformedResponseError{Raw: "oops", Err: errors.New("parse json")}}}
	svc := newPipeline(repo, &stubHarvester{}, grader, nil)

	_, err := svc.Submit(context.Background(), widgetSubmission())
	require.NoError(t, err)
	require.Equal(t, 2, grader.calls)
}

func TestSubmitPersistentMalformedResponseFails(t *testing.T) {
	repo := &stubSubmissionRepo{}
	malformed := &ai.MalformedResponseError{Raw: "oops", Err: errors.New("parse json")}
	grader := &stubGradePipeline{errs: []error{malformed, malformed}}
	svc := newPipeline(repo, &stubHarvester{}, grader, nil)

	_, err := svc.Submit(context.Background(), widgetSubmission())
	require.Error(t, err)
	require.Equal(t, 2, grader.calls)
	require.Equal(t, models.SubmissionStatusFailed, repo.stored.Status)
}

func TestSubmitNeverRetriesTruncatedResponse(t *testing.T) {
	repo := &stubSubmissionRepo{}
	grader := &stubGradePipeline{errs: []error{ai.ErrTruncated}}
	svc := newPipeline(repo, &stubHarvester{}, grader, nil)

	_, err := svc.Submit(context.Background(), widgetSubmission())
	require.Error(t, err)
	require.True(t, errors.Is(err, ai.ErrTruncated))
	require.Equal(t, 1, grader.calls)
}

func TestGetUnknownSubmission(t *testing.T) {
	svc := newPipeline(&stubSubmissionRepo{}, &stubHarvester{}, &stubGradePipeline{}, nil)

	_, err := svc.Get(context.Background(), 99)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrSubmissionNotFound))
}

func TestStatusFallsBackToDatabaseWithoutRedis(t *testing.T) {
	repo := &stubSubmissionRepo{}
	svc := newPipeline(repo, &stubHarvester{}, &stubGradePipeline{}, nil)

	response, err := svc.Submit(context.Background(), widgetSubmission())
	require.NoError(t, err)

	status, err := svc.Status(context.Background(), response.ID)
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusCompleted, status.Status)
	require.Equal(t, response.ID, status.SubmissionID)
}
