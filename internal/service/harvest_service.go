package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/arena-go-api/internal/dto"
	"github.com/noah-isme/arena-go-api/internal/observability"
	"github.com/noah-isme/arena-go-api/pkg/blobstore"
	"github.com/noah-isme/arena-go-api/pkg/github"
)

// RepoBrowser abstracts the hosting-API reads the harvester needs.
type RepoBrowser interface {
	ListDirectory(ctx context.Context, ref github.RepoRef, dirPath string) ([]github.Entry, error)
	DownloadRaw(ctx context.Context, downloadURL string) ([]byte, error)
}

// FileSetStore abstracts writing harvested files to the blob store.
type FileSetStore interface {
	Put(ctx context.Context, prefix, originalPath, originalName string, content []byte) error
	List(ctx context.Context, prefix string) ([]blobstore.Object, error)
}

// HarvestService ingests a public repository into blob storage.
type HarvestService interface {
	Harvest(ctx context.Context, repoURL, destinationPrefix string) (dto.HarvestResponse, error)
}

// HarvestConfig bounds resource consumption per harvest run.
type HarvestConfig struct {
	// MaxFileBytes drops any file whose reported size exceeds it, before
	// downloading.
	MaxFileBytes int64
	// MaxTotalBytes caps the aggregate plaintext size of the accepted set.
	MaxTotalBytes int64
	// DownloadConcurrency bounds parallel raw downloads within a directory.
	DownloadConcurrency int
}

type harvestService struct {
	browser RepoBrowser
	store   FileSetStore
	config  HarvestConfig
	logger  zerolog.Logger
	tracer  trace.Tracer
}

// NewHarvestService constructs a harvest service.
func NewHarvestService(browser RepoBrowser, store FileSetStore, cfg HarvestConfig, logger zerolog.Logger) HarvestService {
	if cfg.MaxFileBytes <= 0 {
		cfg.MaxFileBytes = 100 * 1024
	}
	if cfg.MaxTotalBytes <= 0 {
		cfg.MaxTotalBytes = 500 * 1024
	}
	if cfg.DownloadConcurrency <= 0 {
		cfg.DownloadConcurrency = 4
	}

	return &harvestService{
		browser: browser,
		store:   store,
		config:  cfg,
		logger:  logger.With().Str("component", "harvest_service").Logger(),
		tracer:  otel.Tracer("github.com/noah-isme/arena-go-api/internal/service/harvest"),
	}
}

// Harvest walks the repository tree, selects a representative size-bounded
// subset of its files and writes them under destinationPrefix. Re-running
// with the same prefix overwrites prior content.
func (s *harvestService) Harvest(parent context.Context, repoURL, destinationPrefix string) (dto.HarvestResponse, error) {
	ref, err := github.ParseRepoURL(repoURL)
	if err != nil {
		return dto.HarvestResponse{}, fmt.Errorf("%w: %v", ErrInvalidRepoURL, err)
	}

	ctx, span := s.tracer.Start(parent, "harvest.run", trace.WithAttributes(
		attribute.String("repo", ref.FullName()),
		attribute.String("prefix", destinationPrefix),
	))
	defer span.End()

	start := time.Now()
	outcome := "ok"
	defer func() {
		observability.HarvestDuration().WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}()

	candidates, err := s.collect(ctx, ref)
	if err != nil {
		outcome = "error"
		return dto.HarvestResponse{}, err
	}

	sortByPriority(candidates)
	accepted, _ := acceptUnderBudget(candidates, s.config.MaxTotalBytes)

	fileCount, totalBytes, err := s.persist(ctx, destinationPrefix, accepted)
	if err != nil {
		outcome = "error"
		return dto.HarvestResponse{}, err
	}

	observability.HarvestFilesAccepted().Add(float64(fileCount))
	observability.HarvestBytesWritten().Add(float64(totalBytes))

	s.logger.Info().
		Str("repo", ref.FullName()).
		Str("prefix", destinationPrefix).
		Int("discovered", len(candidates)).
		Int("stored", fileCount).
		Int64("total_bytes", totalBytes).
		Msg("repository harvested")

	return dto.HarvestResponse{
		Success:    true,
		FolderName: destinationPrefix,
		FileCount:  fileCount,
		TotalSize:  totalBytes,
		Message:    fmt.Sprintf("harvested %d files (%d bytes) from %s", fileCount, totalBytes, ref.FullName()),
	}, nil
}

// collect walks the tree with an explicit work queue, one listing call per
// directory, and downloads candidate contents with bounded fan-out. Results
// keep discovery order so the later priority sort is deterministic per run.
func (s *harvestService) collect(ctx context.Context, ref github.RepoRef) ([]candidateFile, error) {
	var candidates []candidateFile

	pending := []string{""}
	for len(pending) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		dir := pending[0]
		pending = pending[1:]

		entries, err := s.browser.ListDirectory(ctx, ref, dir)
		if err != nil {
			return nil, fmt.Errorf("%w: list %s/%s: %v", ErrUpstreamUnavailable, ref.FullName(), dir, err)
		}

		var files []github.Entry
		for _, entry := range entries {
			if isExcluded(entry.Name, entry.Type == github.EntryTypeDir) {
				continue
			}

			switch entry.Type {
			case github.EntryTypeDir:
				pending = append(pending, entry.Path)
			case github.EntryTypeFile:
				if entry.Size > s.config.MaxFileBytes {
					s.logger.Debug().Str("path", entry.Path).Int64("size", entry.Size).Msg("file exceeds per-file ceiling, skipped")
					continue
				}
				files = append(files, entry)
			}
		}

		downloaded, err := s.download(ctx, files)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, downloaded...)
	}

	return candidates, nil
}

// download fetches raw contents for one directory's files. A failed or
// non-text download drops that file only; the slot buffering keeps the
// directory's discovery order intact regardless of fetch completion order.
func (s *harvestService) download(ctx context.Context, files []github.Entry) ([]candidateFile, error) {
	slots := make([]*candidateFile, len(files))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.config.DownloadConcurrency)

	for i, entry := range files {
		i, entry := i, entry
		group.Go(func() error {
			content, err := s.browser.DownloadRaw(groupCtx, entry.DownloadURL)
			if err != nil {
				s.logger.Warn().Err(err).Str("path", entry.Path).Msg("file download failed, skipped")
				return nil
			}
			if !isTextContent(content) {
				s.logger.Debug().Str("path", entry.Path).Msg("non-text content, skipped")
				return nil
			}

			slots[i] = &candidateFile{
				path:      entry.Path,
				name:      entry.Name,
				priority:  priorityFor(entry.Name),
				content:   content,
				sizeBytes: int64(len(content)),
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	candidates := make([]candidateFile, 0, len(files))
	for _, slot := range slots {
		if slot != nil {
			candidates = append(candidates, *slot)
		}
	}
	return candidates, nil
}

// persist uploads the accepted set. A per-file upload failure is logged and
// does not abort the batch; the returned counts reflect only confirmed
// writes. Only when every upload fails is the run treated as a storage
// failure.
func (s *harvestService) persist(ctx context.Context, prefix string, accepted []candidateFile) (int, int64, error) {
	if len(accepted) == 0 {
		return 0, 0, nil
	}

	var (
		mu         sync.Mutex
		fileCount  int
		totalBytes int64
		lastErr    error
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.config.DownloadConcurrency)

	for _, candidate := range accepted {
		candidate := candidate
		group.Go(func() error {
			if err := s.store.Put(groupCtx, prefix, candidate.path, candidate.name, candidate.content); err != nil {
				s.logger.Warn().Err(err).Str("path", candidate.path).Msg("file upload failed, skipped")
				mu.Lock()
				lastErr = err
				mu.Unlock()
				return nil
			}

			mu.Lock()
			fileCount++
			totalBytes += candidate.sizeBytes
			mu.Unlock()
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return 0, 0, err
	}

	if fileCount == 0 {
		return 0, 0, fmt.Errorf("%w: %v", ErrStorageWrite, lastErr)
	}

	return fileCount, totalBytes, nil
}
