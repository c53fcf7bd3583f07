package datasource

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/weavegate/gateway/pkg/gatewayerr"
)

// Composite tries each tier in order until one succeeds.
type Composite struct {
	Tiers []Tier
	Log   *logrus.Entry
}

// NewComposite builds a Composite over tiers, in priority order.
func NewComposite(tiers []Tier, log *logrus.Entry) *Composite {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Composite{Tiers: tiers, Log: log}
}

// Fetch returns the first tier's successful result. A client-disconnect
// classified error stops the cascade immediately and propagates; any other
// classified error is recorded and the next tier is tried.
func (c *Composite) Fetch(ctx context.Context, req Request) (*ContiguousData, error) {
	var errs []error

	for _, tier := range c.Tiers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		data, err := tier.Fetch(ctx, req)
		if err == nil {
			c.Log.WithField("tier", tier.Name()).WithField("id", req.ID).Debug("tier served request")
			return data, nil
		}

		if gatewayerr.Is(err, gatewayerr.KindClientDisconnect) {
			return nil, err
		}

		c.Log.WithField("tier", tier.Name()).WithError(err).Debug("tier failed, trying next")
		errs = append(errs, err)
	}

	return nil, gatewayerr.Aggregate(gatewayerr.KindNotFound, "all data source tiers failed", errs)
}
