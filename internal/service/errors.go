package service

import "errors"

// ErrInvalidRepoURL indicates the submitted URL does not name a repository
// on the supported hosting service. Input error, never retried.
var ErrInvalidRepoURL = errors.New("invalid repository url")

// ErrUpstreamUnavailable indicates the hosting API rejected a request,
// including auth and rate-limit failures. Retryable with backoff.
var ErrUpstreamUnavailable = errors.New("hosting api unavailable")

// ErrStorageWrite indicates the blob store rejected the harvested file set.
var ErrStorageWrite = errors.New("storage write rejected")

// ErrEmptyFileSet indicates no harvested files exist under the storage
// prefix; the caller must re-harvest.
var ErrEmptyFileSet = errors.New("no harvested files at storage prefix")

// ErrModelUnavailable indicates the grading model call failed or timed out.
// Retryable with backoff by the caller.
var ErrModelUnavailable = errors.New("grading model unavailable")

// ErrGraderUnavailable indicates no grading model is configured.
var ErrGraderUnavailable = errors.New("grader unavailable")

// ErrSubmissionNotFound indicates the submission cannot be located.
var ErrSubmissionNotFound = errors.New("submission not found")
