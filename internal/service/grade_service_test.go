package service

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/arena-go-api/internal/dto"
	"github.com/noah-isme/arena-go-api/pkg/ai"
)

type stubGrader struct {
	record ai.EvaluationRecord
	err    error
	input  ai.GradingInput
	calls  int
}

func (g *stubGrader) Grade(_ context.Context, input ai.GradingInput) (ai.EvaluationRecord, error) {
	g.calls++
	g.input = input
	if g.err != nil {
		return ai.EvaluationRecord{}, g.err
	}
	return g.record, nil
}

func widgetGradeRequest(folderName string) dto.GradeRequest {
	return dto.GradeRequest{
		Repository: dto.GradeRepository{Name: "widget", Owner: "acme", FolderName: folderName},
		Challenge: dto.GradeChallenge{
			Requirements: []string{"Build a RAG pipeline", "Expose an HTTP API"},
			EvaluationCriteria: []dto.EvaluationCriterionPayload{
				{Name: "Architecture", Description: "Sound module boundaries", Weight: 40},
				{Name: "Code Quality", Description: "Readable, tested code", Weight: 60},
			},
		},
	}
}

func seededStore(t *testing.T, prefix string) *stubStore {
	t.Helper()

	store := newStubStore()
	require.NoError(t, store.Put(context.Background(), prefix, "README.md", "README.md", []byte("# widget")))
	require.NoError(t, store.Put(context.Background(), prefix, "src/index.ts", "index.ts", []byte("export {}")))
	return store
}

func TestGradeEmptyPrefixFails(t *testing.T) {
	svc := NewGradeService(newStubStore(), &stubGrader{}, zerolog.Nop())

	_, err := svc.Grade(context.Background(), widgetGradeRequest("missing/prefix"))
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrEmptyFileSet))
}

func TestGradeWithoutConfiguredGrader(t *testing.T) {
	svc := NewGradeService(seededStore(t, "sub/1"), nil, zerolog.Nop())

	_, err := svc.Grade(context.Background(), widgetGradeRequest("sub/1"))
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrGraderUnavailable))
}

func TestGradeBuildsPromptInputFromStoredFiles(t *testing.T) {
	grader := &stubGrader{
		record: ai.EvaluationRecord{
			Summary:         "Good work",
			Scores:          map[string]float64{"Architecture": 16, "Code Quality": 13},
			OverallScore:    74,
			KeyStrengths:    []string{"clear structure", "tests"},
			KeyImprovements: []string{"error handling", "docs"},
		},
	}
	svc := NewGradeService(seededStore(t, "sub/2"), grader, zerolog.Nop())

	evaluation, err := svc.Grade(context.Background(), widgetGradeRequest("sub/2"))
	require.NoError(t, err)

	require.Equal(t, "acme", grader.input.RepoOwner)
	require.Equal(t, "widget", grader.input.RepoName)
	require.Len(t, grader.input.Requirements, 2)
	require.Len(t, grader.input.Criteria, 2)
	require.Equal(t, 40, grader.input.Criteria[0].WeightPercent)

	inputPaths := make([]string, 0, len(grader.input.Files))
	for _, file := range grader.input.Files {
		inputPaths = append(inputPaths, file.Path)
	}
	require.ElementsMatch(t, []string{"README.md", "src/index.ts"}, inputPaths)

	require.Equal(t, "Good work", evaluation.Summary)
	require.Equal(t, float64(74), evaluation.OverallScore)
	require.Equal(t, map[string]float64{"Architecture": 16, "Code Quality": 13}, evaluation.Scores)
}

func TestGradeTruncatedResponsePassesThrough(t *testing.T) {
	grader := &stubGrader{err: ai.ErrTruncated}
	svc := NewGradeService(seededStore(t, "sub/3"), grader, zerolog.Nop())

	_, err := svc.Grade(context.Background(), widgetGradeRequest("sub/3"))
	require.Error(t, err)
	require.True(t, errors.Is(err, ai.ErrTruncated))
}

func TestGradeMalformedResponseKeepsRawText(t *testing.T) {
	grader := &stubGrader{err: &ai.MalformedResponseError{Raw: "not json at all", Err: errors.New("parse json")}}
	svc := NewGradeService(seededStore(t, "sub/4"), grader, zerolog.Nop())

	_, err := svc.Grade(context.Background(), widgetGradeRequest("sub/4"))
	require.Error(t, err)

	var malformed *ai.MalformedResponseError
	require.True(t, errors.As(err, &malformed))
	require.Equal(t, "not json at all", malformed.Raw)
}

func TestGradeTransportFailureIsModelUnavailable(t *testing.T) {
	grader := &stubGrader{err: errors.New("dial tcp: timeout")}
	svc := NewGradeService(seededStore(t, "sub/5"), grader, zerolog.Nop())

	_, err := svc.Grade(context.Background(), widgetGradeRequest("sub/5"))
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrModelUnavailable))
}
