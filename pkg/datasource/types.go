// Package datasource implements the Composite Contiguous Data Source and
// its tiers: a cascade-until-success fetch across priority-tiered
// candidates, randomized within each tier, adapted from seed-node
// selection to gateway retrieval priority.
package datasource

import (
	"context"
	"io"

	"github.com/weavegate/gateway/pkg/region"
)

// RequestAttributes is forwarded per-request metadata propagated via hop
// headers across upstream requests.
type RequestAttributes struct {
	Hops          uint32
	Origin        string
	OriginRelease string
	ArNSName      string
	ArNSBasename  string
	ArNSRecord    string
}

// Request describes a single retrieval.
type Request struct {
	ID         string
	Region     *region.Region
	Attributes RequestAttributes
}

// ContiguousData is the result of a successful retrieval.
type ContiguousData struct {
	Stream            io.ReadCloser
	Size              uint64
	SourceContentType string
	Verified          bool
	Trusted           bool
	Cached            bool
	Attributes        RequestAttributes
}

// Tier is the polymorphic interface every underlying data source
// implements.
type Tier interface {
	Name() string
	Fetch(ctx context.Context, req Request) (*ContiguousData, error)
}
