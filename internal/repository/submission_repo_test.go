package repository_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/arena-go-api/internal/models"
	"github.com/noah-isme/arena-go-api/internal/repository"
)

func setupRepo(t *testing.T) repository.SubmissionRepository {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Submission{}, &models.Evaluation{}))

	return repository.NewSubmissionRepository(db)
}

func TestSubmissionRepositoryLifecycle(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	submission := models.Submission{
		BuilderID:     7,
		ChallengeID:   42,
		RepoOwner:     "acme",
		RepoName:      "widget",
		RepoURL:       "https://github.com/acme/widget",
		StoragePrefix: "submissions/7/42/1700000000",
		Status:        models.SubmissionStatusPending,
	}
	require.NoError(t, repo.Create(ctx, &submission))
	require.NotZero(t, submission.ID)

	submission.Status = models.SubmissionStatusGrading
	submission.FileCount = 9
	submission.TotalBytes = 40960
	require.NoError(t, repo.Update(ctx, &submission))

	loaded, err := repo.GetByID(ctx, submission.ID)
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusGrading, loaded.Status)
	require.Equal(t, 9, loaded.FileCount)
	require.Nil(t, loaded.Evaluation)
}

func TestSubmissionRepositoryPreloadsEvaluation(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	submission := models.Submission{
		BuilderID:     7,
		ChallengeID:   42,
		RepoURL:       "https://github.com/acme/widget",
		StoragePrefix: "submissions/7/42/1700000001",
		Status:        models.SubmissionStatusCompleted,
	}
	require.NoError(t, repo.Create(ctx, &submission))

	evaluation := models.Evaluation{
		SubmissionID: submission.ID,
		Summary:      "Strong submission",
		OverallScore: 82,
		Scores:       datatypes.JSONMap{"Architecture": 17.0},
		KeyStrengths: datatypes.JSON([]byte(`["clean design"]`)),
		Provider:     "openai",
		Model:        "gpt-4o-mini",
	}
	require.NoError(t, repo.SaveEvaluation(ctx, &evaluation))

	loaded, err := repo.GetByID(ctx, submission.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded.Evaluation)
	require.Equal(t, "Strong submission", loaded.Evaluation.Summary)
	require.Equal(t, float64(82), loaded.Evaluation.OverallScore)
}

func TestSubmissionRepositoryGetMissing(t *testing.T) {
	repo := setupRepo(t)

	_, err := repo.GetByID(context.Background(), 999)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
