package downloader

import (
	"context"
	"fmt"
	"sync"
)

// Fake is an in-memory Downloader for tests — mirrors the original
// tool's fake_downloader.py and the teacher's fake-collaborator pattern
// (spec.md §9: "capability sets with variants {production, in-memory-fake}").
type Fake struct {
	mu sync.Mutex

	// Contents seeds what a successful fetch "writes" at a given URL.
	Contents map[string][]byte
	// Failing marks URLs that should fail regardless of Contents.
	Failing map[string]error

	// Requests records every request passed to Fetch, in call order.
	Requests []Request

	write func(target string, data []byte) error
}

// NewFake returns an empty Fake. write is invoked for every successful
// fetch to materialize the downloaded bytes — callers typically pass a
// closure that forwards to an fsutil.Fake's WriteFile.
func NewFake(write func(target string, data []byte) error) *Fake {
	return &Fake{
		Contents: make(map[string][]byte),
		Failing:  make(map[string]error),
		write:    write,
	}
}

func (f *Fake) Fetch(_ context.Context, requests []Request) []Result {
	f.mu.Lock()
	defer f.mu.Unlock()

	results := make([]Result, len(requests))

	for i, req := range requests {
		f.Requests = append(f.Requests, req)

		if err, ok := f.Failing[req.URL]; ok {
			results[i] = Result{Request: req, Err: err}

			continue
		}

		data, ok := f.Contents[req.URL]
		if !ok {
			results[i] = Result{Request: req, Err: fmt.Errorf("fake downloader: no content seeded for %s", req.URL)}

			continue
		}

		if f.write != nil {
			if err := f.write(req.Target, data); err != nil {
				results[i] = Result{Request: req, Err: err}

				continue
			}
		}

		results[i] = Result{Request: req}
	}

	return results
}

var _ Downloader = (*Fake)(nil)
var _ Downloader = (*HTTPDownloader)(nil)
