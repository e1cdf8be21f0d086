package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const defaultBaseURL = "https://api.github.com"

// Entry types reported by the contents API.
const (
	EntryTypeFile = "file"
	EntryTypeDir  = "dir"
)

// RepoRef identifies a repository on the hosting service.
type RepoRef struct {
	Owner string `json:"owner"`
	Name  string `json:"name"`
}

// FullName returns the owner/name form used in API paths and logs.
func (r RepoRef) FullName() string {
	return fmt.Sprintf("%s/%s", r.Owner, r.Name)
}

// Entry is a single item returned by a directory listing.
type Entry struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	Type        string `json:"type"`
	Size        int64  `json:"size"`
	DownloadURL string `json:"download_url"`
}

// UpstreamError reports a non-success response from the hosting API,
// including auth and rate-limit failures.
type UpstreamError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("github api returned %d for %s", e.StatusCode, e.URL)
}

var repoURLPattern = regexp.MustCompile(`^https?://github\.com/([A-Za-z0-9_.-]+)/([A-Za-z0-9_.-]+?)(?:\.git)?/?$`)

// ParseRepoURL extracts the owner and repository name from a github.com URL.
// Anything that does not match the host/owner/repo shape is rejected.
func ParseRepoURL(repoURL string) (RepoRef, error) {
	matches := repoURLPattern.FindStringSubmatch(strings.TrimSpace(repoURL))
	if matches == nil {
		return RepoRef{}, fmt.Errorf("not a valid github repository url: %q", repoURL)
	}

	return RepoRef{Owner: matches[1], Name: matches[2]}, nil
}

// Config defines configuration options for the GitHub contents client.
type Config struct {
	Token   string
	BaseURL string
	Timeout time.Duration
	Logger  zerolog.Logger
}

// Client reads repository trees and raw file contents through the GitHub
// contents API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	logger     zerolog.Logger
}

// New constructs a contents client. The token is optional; unauthenticated
// requests are allowed but rate limited far more aggressively upstream.
func New(cfg Config) *Client {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		token:      cfg.Token,
		logger:     cfg.Logger.With().Str("component", "github_client").Logger(),
	}
}

// ListDirectory returns the entries directly under dirPath in the repository.
// An empty dirPath lists the repository root.
func (c *Client) ListDirectory(ctx context.Context, ref RepoRef, dirPath string) ([]Entry, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/contents", c.baseURL, url.PathEscape(ref.Owner), url.PathEscape(ref.Name))
	if dirPath != "" {
		endpoint = fmt.Sprintf("%s/%s", endpoint, escapePath(dirPath))
	}

	body, err := c.get(ctx, endpoint, "application/vnd.github+json")
	if err != nil {
		return nil, err
	}

	var entries []Entry
	if err := json.Unmarshal(body, &entries); err != nil {
		// A file path returns a single object instead of an array.
		return nil, fmt.Errorf("decode directory listing for %s: %w", dirPath, err)
	}

	return entries, nil
}

// DownloadRaw fetches the raw bytes behind a download URL reported by a
// directory listing.
func (c *Client) DownloadRaw(ctx context.Context, downloadURL string) ([]byte, error) {
	if downloadURL == "" {
		return nil, fmt.Errorf("entry has no download url")
	}

	return c.get(ctx, downloadURL, "")
}

func (c *Client) get(ctx context.Context, endpoint, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("github request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read github response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn().Int("status", resp.StatusCode).Str("url", endpoint).Msg("github api request rejected")
		return nil, &UpstreamError{StatusCode: resp.StatusCode, URL: endpoint, Body: truncate(string(body), 512)}
	}

	return body, nil
}

func escapePath(p string) string {
	segments := strings.Split(p, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.Join(segments, "/")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
