package dbgateway

import (
	"context"

	"github.com/tonurics/downloader-mister/internal/config"
	"github.com/tonurics/downloader-mister/internal/model"
)

// DBGateway is the seam fullrun depends on — satisfied by *Gateway in
// production and Fake in tests.
type DBGateway interface {
	FetchAll(ctx context.Context, sections map[string]config.Description) ([]model.Database, []string, error)
}

// Fake is an in-memory DBGateway for tests, mirroring the original
// tool's fake_db_gateway.py.
type Fake struct {
	// Databases is returned verbatim by FetchAll.
	Databases []model.Database
	// Failed is returned verbatim by FetchAll.
	Failed []string
	// Err is returned verbatim by FetchAll.
	Err error
	// Calls records every sections map passed to FetchAll, in call order.
	Calls []map[string]config.Description
}

func (f *Fake) FetchAll(_ context.Context, sections map[string]config.Description) ([]model.Database, []string, error) {
	f.Calls = append(f.Calls, sections)

	return f.Databases, f.Failed, f.Err
}

var (
	_ DBGateway = (*Gateway)(nil)
	_ DBGateway = (*Fake)(nil)
)
