package chunk

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/weavegate/gateway/pkg/gatewayerr"
)

// FeedbackSink receives per-attempt success/failure so the peer manager can
// adjust weights.
type FeedbackSink interface {
	ReportSuccess(sourceName string, telemetry FetchTelemetry)
	ReportFailure(sourceName string)
}

// Composite fetches a single chunk from the first successful source among
// Sources, either sequentially (Parallelism==1) or with a bounded in-flight
// cap (Parallelism>1).
type Composite struct {
	Sources     []Source
	Parallelism int
	Feedback    FeedbackSink
	Log         *logrus.Entry
}

// NewComposite builds a Composite with a parallelism clamped to
// [1, len(sources)].
func NewComposite(sources []Source, parallelism int, feedback FeedbackSink, log *logrus.Entry) *Composite {
	if parallelism < 1 {
		parallelism = 1
	}
	if parallelism > len(sources) {
		parallelism = len(sources)
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Composite{Sources: sources, Parallelism: parallelism, Feedback: feedback, Log: log}
}

// GetChunk dispatches loc to the underlying sources, returning the first
// validated success. On total failure it returns an aggregated
// KindUpstreamTerminal error.
func (c *Composite) GetChunk(ctx context.Context, loc Locator) (*Chunk, error) {
	if len(c.Sources) == 0 {
		return nil, gatewayerr.New(gatewayerr.KindUpstreamTerminal, "no chunk sources configured")
	}
	if c.Parallelism <= 1 {
		return c.getSequential(ctx, loc)
	}
	return c.getBoundedParallel(ctx, loc)
}

func (c *Composite) getSequential(ctx context.Context, loc Locator) (*Chunk, error) {
	var errs []error
	for _, src := range c.Sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		chunk, err := src.GetChunk(ctx, loc)
		if err == nil {
			c.reportSuccess(src.Name())
			return chunk, nil
		}
		c.reportFailure(src.Name())
		errs = append(errs, err)
	}
	return nil, gatewayerr.Aggregate(gatewayerr.KindUpstreamTerminal, "all chunk sources failed", errs)
}

// getBoundedParallel dispatches with an in-flight cap of Parallelism. On
// first success it cancels all in-flight siblings; siblings that fail after
// the winner succeeds are ignored.
func (c *Composite) getBoundedParallel(ctx context.Context, loc Locator) (*Chunk, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		chunk *Chunk
		err   error
		name  string
	}

	jobs := make(chan Source, len(c.Sources))
	for _, src := range c.Sources {
		jobs <- src
	}
	close(jobs)

	results := make(chan result, len(c.Sources))
	var wg sync.WaitGroup

	for i := 0; i < c.Parallelism; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for src := range jobs {
				if ctx.Err() != nil {
					return
				}
				chunk, err := src.GetChunk(ctx, loc)
				select {
				case results <- result{chunk: chunk, err: err, name: src.Name()}:
				case <-ctx.Done():
					return
				}
				if err == nil {
					return
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var errs []error
	for r := range results {
		if r.err == nil {
			c.reportSuccess(r.name)
			cancel() // stop remaining in-flight siblings
			return r.chunk, nil
		}
		c.reportFailure(r.name)
		errs = append(errs, r.err)
	}
	return nil, gatewayerr.Aggregate(gatewayerr.KindUpstreamTerminal, "all chunk sources failed", errs)
}

func (c *Composite) reportSuccess(name string) {
	if c.Feedback != nil {
		c.Feedback.ReportSuccess(name, FetchTelemetry{Source: name, Success: true})
	}
}

func (c *Composite) reportFailure(name string) {
	if c.Feedback != nil {
		c.Feedback.ReportFailure(name)
	}
}
