// Package gatewaytier is the "trusted-gateways" tier of the composite data
// source: cascades across configured trusted gateway peers grouped into
// priority tiers, randomized within each tier. Grounded on the
// pack's pull-through proxy example for upstream-fallback, range-aware
// request construction, adapted from a single-upstream registry proxy to a
// multi-candidate, priority-grouped cascade.
package gatewaytier

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"

	"github.com/weavegate/gateway/pkg/datasource"
	"github.com/weavegate/gateway/pkg/gatewayerr"
	"github.com/weavegate/gateway/pkg/hopheaders"
)

// Config configures the trusted-gateways tier.
type Config struct {
	// Groups is ordered by priority; Groups[0] is tried first. Each group's
	// base URLs are tried in random order.
	Groups [][]string

	Client  *http.Client
	MaxHops uint32
}

// Tier implements datasource.Tier.
type Tier struct {
	cfg Config
	rng *rand.Rand
}

// New builds a gatewaytier.Tier.
func New(cfg Config) *Tier {
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}
	return &Tier{cfg: cfg, rng: rand.New(rand.NewSource(rand.Int63()))}
}

func (t *Tier) Name() string { return "trusted-gateways" }

func (t *Tier) Fetch(ctx context.Context, req datasource.Request) (*datasource.ContiguousData, error) {
	if t.cfg.MaxHops > 0 && req.Attributes.Hops >= t.cfg.MaxHops {
		return nil, gatewayerr.New(gatewayerr.KindUpstreamTerminal, "hop limit reached, refusing to forward")
	}

	var errs []error
	for _, group := range t.cfg.Groups {
		for _, base := range t.shuffled(group) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			data, err := t.attempt(ctx, base, req)
			if err == nil {
				return data, nil
			}
			if gatewayerr.Is(err, gatewayerr.KindClientDisconnect) {
				return nil, err
			}
			errs = append(errs, err)
		}
	}

	return nil, gatewayerr.Aggregate(gatewayerr.KindUpstreamTerminal, "all trusted gateways failed", errs)
}

func (t *Tier) shuffled(group []string) []string {
	out := make([]string, len(group))
	copy(out, group)
	t.rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

func (t *Tier) attempt(ctx context.Context, base string, req datasource.Request) (*datasource.ContiguousData, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/raw/"+req.ID, nil)
	if err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.KindUpstreamTerminal, "failed to build request", base, err)
	}
	httpReq.Header.Set("Accept-Encoding", "identity")
	if req.Region != nil {
		httpReq.Header.Set("Range", req.Region.RequestHeader())
	}
	httpReq.Header.Set(hopheaders.Hops, strconv.FormatUint(uint64(req.Attributes.Hops+1), 10))
	if req.Attributes.Origin != "" {
		httpReq.Header.Set(hopheaders.Origin, req.Attributes.Origin)
	}
	if req.Attributes.OriginRelease != "" {
		httpReq.Header.Set(hopheaders.OriginRelease, req.Attributes.OriginRelease)
	}
	if req.Attributes.ArNSName != "" {
		httpReq.Header.Set(hopheaders.ArNSName, req.Attributes.ArNSName)
	}
	if req.Attributes.ArNSBasename != "" {
		httpReq.Header.Set(hopheaders.ArNSBasename, req.Attributes.ArNSBasename)
	}
	if req.Attributes.ArNSRecord != "" {
		httpReq.Header.Set(hopheaders.ArNSRecord, req.Attributes.ArNSRecord)
	}

	resp, err := t.cfg.Client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, gatewayerr.Wrap(gatewayerr.KindClientDisconnect, "caller aborted request", base, ctx.Err())
		}
		return nil, gatewayerr.Wrap(gatewayerr.KindUpstreamTransient, "request to gateway failed", base, err)
	}

	wantStatus := http.StatusOK
	if req.Region != nil {
		wantStatus = http.StatusPartialContent
	}
	if resp.StatusCode != wantStatus {
		resp.Body.Close()
		return nil, gatewayerr.Wrap(gatewayerr.KindUpstreamTransient,
			fmt.Sprintf("unexpected status %d", resp.StatusCode), base, nil)
	}

	size := uint64(0)
	if resp.ContentLength >= 0 {
		size = uint64(resp.ContentLength)
	}

	attrs := req.Attributes
	attrs.Hops++

	return &datasource.ContiguousData{
		Stream:            resp.Body,
		Size:              size,
		SourceContentType: resp.Header.Get("Content-Type"),
		Verified:          false,
		Trusted:           true,
		Cached:            false,
		Attributes:        attrs,
	}, nil
}
