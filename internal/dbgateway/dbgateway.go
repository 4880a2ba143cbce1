// Package dbgateway fetches and parses database manifests in parallel,
// over HTTP or from the local filesystem — spec.md §4.2.
package dbgateway

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"go.uber.org/multierr"

	"github.com/tonurics/downloader-mister/internal/config"
	"github.com/tonurics/downloader-mister/internal/downloader"
	"github.com/tonurics/downloader-mister/internal/fsutil"
	"github.com/tonurics/downloader-mister/internal/model"
)

// Gateway fetches and validates manifests for a set of configured
// databases, per spec.md §4.2.
type Gateway struct {
	fs     fsutil.FileSystem
	dl     downloader.Downloader
	logger *slog.Logger
}

// New creates a Gateway.
func New(fs fsutil.FileSystem, dl downloader.Downloader, logger *slog.Logger) *Gateway {
	return &Gateway{fs: fs, dl: dl, logger: logger}
}

// FetchAll resolves every Description in sections (HTTP download or local
// path), parses the resulting manifest, and validates it against its
// declared section id. Returns the successfully parsed databases and the
// urls/paths that failed, matching spec.md §4.2's `(list<DB>, list<failed_url>)`.
func (g *Gateway) FetchAll(ctx context.Context, sections map[string]config.Description) ([]model.Database, []string, error) {
	type fetchJob struct {
		section string
		desc    config.Description
		source  string
		cleanup func()
	}

	jobs := make([]fetchJob, 0, len(sections))
	requests := make([]downloader.Request, 0, len(sections))

	for section, desc := range sections {
		if strings.HasPrefix(desc.DBURL, "http") {
			tempPath, cleanup, err := g.fs.TempFile()
			if err != nil {
				return nil, nil, fmt.Errorf("dbgateway: reserving temp file for %s: %w", desc.DBURL, err)
			}

			jobs = append(jobs, fetchJob{section: section, desc: desc, source: tempPath, cleanup: cleanup})
			requests = append(requests, downloader.Request{
				URL:          desc.DBURL,
				Target:       tempPath,
				ExpectedHash: downloader.IgnoreHash,
			})

			continue
		}

		jobs = append(jobs, fetchJob{section: section, desc: desc, source: desc.DBURL, cleanup: func() {}})
	}

	results := g.dl.Fetch(ctx, requests)
	failedByURL := make(map[string]error, len(results))

	for _, r := range results {
		if r.Err != nil {
			failedByURL[r.Request.URL] = r.Err
		}
	}

	var (
		dbs      []model.Database
		failed   []string
		mu       sync.Mutex
		wg       sync.WaitGroup
		combined error
	)

	for _, job := range jobs {
		job := job

		if err, isHTTP := failedByURL[job.desc.DBURL]; isHTTP {
			mu.Lock()
			failed = append(failed, job.desc.DBURL)
			combined = multierr.Append(combined, fmt.Errorf("dbgateway: fetching %s: %w", job.desc.DBURL, err))
			mu.Unlock()
			job.cleanup()

			continue
		}

		wg.Add(1)

		go func() {
			defer wg.Done()
			defer job.cleanup()

			db, err := g.loadAndValidate(job.source, job.section)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				failed = append(failed, job.desc.DBURL)
				combined = multierr.Append(combined, fmt.Errorf("dbgateway: %s: %w", job.section, err))

				return
			}

			dbs = append(dbs, db)
		}()
	}

	wg.Wait()

	return dbs, failed, combined
}

func (g *Gateway) loadAndValidate(path, section string) (model.Database, error) {
	db, err := g.fs.LoadDatabase(path)
	if err != nil {
		return model.Database{}, fmt.Errorf("loading manifest: %w", err)
	}

	if err := validate(db, section); err != nil {
		return model.Database{}, fmt.Errorf("validating manifest: %w", err)
	}

	return db, nil
}

// validate checks the minimal schema contract spec.md §4.2 requires:
// db_id must equal the configured section, files/folders must be present
// (possibly empty) maps.
func validate(db model.Database, section string) error {
	if db.DBID != section {
		return fmt.Errorf("db_id %q does not match configured section %q", db.DBID, section)
	}

	if db.Files == nil {
		return fmt.Errorf("db %q: files field missing", section)
	}

	if db.Folders == nil {
		return fmt.Errorf("db %q: folders field missing", section)
	}

	return nil
}
