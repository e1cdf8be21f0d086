package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/arena-go-api/internal/config"
	"github.com/noah-isme/arena-go-api/internal/dto"
	"github.com/noah-isme/arena-go-api/internal/handler"
	"github.com/noah-isme/arena-go-api/internal/router"
	"github.com/noah-isme/arena-go-api/internal/service"
	"github.com/noah-isme/arena-go-api/internal/utils"
)

type stubHarvestService struct {
	response   dto.HarvestResponse
	err        error
	repoURL    string
	folderName string
}

func (s *stubHarvestService) Harvest(_ context.Context, repoURL, destinationPrefix string) (dto.HarvestResponse, error) {
	s.repoURL = repoURL
	s.folderName = destinationPrefix
	if s.err != nil {
		return dto.HarvestResponse{}, s.err
	}
	return s.response, nil
}

func newHarvestApp(svc service.HarvestService) *fiber.App {
	validate := validator.New(validator.WithRequiredStructEnabled())
	logger := zerolog.New(io.Discard)

	app := fiber.New()
	router.Register(app, config.Config{AppName: "arena-test"}, router.Dependencies{
		HarvestHandler: handler.NewHarvestHandler(svc, validate, logger),
	})
	return app
}

func postJSON(t *testing.T, app *fiber.App, path string, payload interface{}) *http.Response {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func decodeResponse(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, json.Unmarshal(body, target))
}

func TestHarvestHandlerSuccess(t *testing.T) {
	svc := &stubHarvestService{response: dto.HarvestResponse{
		Success:    true,
		FolderName: "submissions/7/42/1700000000",
		FileCount:  12,
		TotalSize:  81920,
		Message:    "harvested 12 files",
	}}
	app := newHarvestApp(svc)

	resp := postJSON(t, app, "/api/v1/harvest", dto.HarvestRequest{
		RepoURL:    "https://github.com/acme/widget",
		FolderName: "submissions/7/42/1700000000",
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body dto.HarvestResponse
	decodeResponse(t, resp, &body)
	require.True(t, body.Success)
	require.Equal(t, 12, body.FileCount)
	require.Equal(t, int64(81920), body.TotalSize)
	require.Equal(t, "https://github.com/acme/widget", svc.repoURL)
	require.Equal(t, "submissions/7/42/1700000000", svc.folderName)
}

func TestHarvestHandlerMissingField(t *testing.T) {
	svc := &stubHarvestService{}
	app := newHarvestApp(svc)

	resp := postJSON(t, app, "/api/v1/harvest", dto.HarvestRequest{RepoURL: "https://github.com/acme/widget"})
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	var body utils.ErrorResponse
	decodeResponse(t, resp, &body)
	require.Equal(t, "missing required field", body.Error)
	require.Contains(t, body.Details, "FolderName")
	require.Empty(t, svc.repoURL)
}

func TestHarvestHandlerMalformedBody(t *testing.T) {
	app := newHarvestApp(&stubHarvestService{})

	req := httptest.NewRequest("POST", "/api/v1/harvest", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	var body utils.ErrorResponse
	decodeResponse(t, resp, &body)
	require.Equal(t, "invalid request body", body.Error)
}

func TestHarvestHandlerErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
	}{
		{"invalid url", service.ErrInvalidRepoURL, fiber.StatusBadRequest, "invalid repository url"},
		{"upstream down", service.ErrUpstreamUnavailable, fiber.StatusBadRequest, "repository fetch failed"},
		{"storage write", service.ErrStorageWrite, fiber.StatusBadRequest, "storage write failed"},
		{"unexpected", errors.New("boom"), fiber.StatusInternalServerError, "internal server error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := newHarvestApp(&stubHarvestService{err: tc.err})

			resp := postJSON(t, app, "/api/v1/harvest", dto.HarvestRequest{
				RepoURL:    "https://github.com/acme/widget",
				FolderName: "submissions/7/42/1700000000",
			})
			require.Equal(t, tc.wantStatus, resp.StatusCode)

			var body utils.ErrorResponse
			decodeResponse(t, resp, &body)
			require.Equal(t, tc.wantError, body.Error)
		})
	}
}
