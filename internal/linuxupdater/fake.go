package linuxupdater

import (
	"context"

	"github.com/tonurics/downloader-mister/internal/model"
)

// LinuxUpdater is the seam fullrun depends on — satisfied by *Updater in
// production and by Fake in tests (spec.md §9: "capability sets with
// variants {production, in-memory-fake}").
type LinuxUpdater interface {
	Run(ctx context.Context, dbs []model.Database) (Result, error)
}

// Fake is an in-memory LinuxUpdater for tests, mirroring the original
// tool's fake_linux_updater.py.
type Fake struct {
	// Result is returned verbatim by Run.
	Result Result
	// Err is returned verbatim by Run.
	Err error
	// Calls records every []model.Database passed to Run, in call order.
	Calls [][]model.Database
}

func (f *Fake) Run(_ context.Context, dbs []model.Database) (Result, error) {
	f.Calls = append(f.Calls, dbs)

	return f.Result, f.Err
}

var (
	_ LinuxUpdater = (*Updater)(nil)
	_ LinuxUpdater = (*Fake)(nil)
)

// FakeRunner is an in-memory Runner for tests — records invocations and
// lets tests script which commands fail.
type FakeRunner struct {
	Calls   []FakeCall
	Failing map[string]error
}

// FakeCall records one invocation of FakeRunner.Run.
type FakeCall struct {
	Name string
	Args []string
}

func NewFakeRunner() *FakeRunner {
	return &FakeRunner{Failing: make(map[string]error)}
}

func (r *FakeRunner) Run(_ context.Context, name string, args ...string) error {
	r.Calls = append(r.Calls, FakeCall{Name: name, Args: args})

	if err, ok := r.Failing[name]; ok {
		return err
	}

	return nil
}

var _ Runner = (*FakeRunner)(nil)
