package telemetry

import (
	"context"

	"github.com/radangel/radangel/internal/acquisition"
)

// Collector receives capture progress and exposes it for scraping
type Collector interface {
	acquisition.Observer
	Addr() string
	Close(ctx context.Context) error
}
