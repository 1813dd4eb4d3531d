package harvest

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/oaiharvest/oaiharvest/pkg/metrics"
	"github.com/oaiharvest/oaiharvest/pkg/oai"
	"github.com/oaiharvest/oaiharvest/pkg/sink"
)

// DispatchFetches fans GetRecord calls for a set's identifiers out over
// a bounded worker pool. All identifiers are queued before any worker
// completes, completion order is unconstrained, and a failing fetch is
// isolated to its own task: it produces no file and never cancels its
// siblings. The transport's connection pool is shared by every worker.
//
// The return values are totals for the run summary only; which
// identifiers failed is not collected.
func (c *Client) DispatchFetches(ctx context.Context, identifiers []string, set string, snk sink.Sink) (persisted, failed int) {
	workers := c.cfg.Performance.GetWorkers()
	if workers > len(identifiers) {
		workers = len(identifiers)
	}

	work := make(chan string, len(identifiers))
	for _, id := range identifiers {
		work <- id
	}
	close(work)

	var ok, bad atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			metrics.ActiveWorkers.Inc()
			defer metrics.ActiveWorkers.Dec()

			for id := range work {
				select {
				case <-ctx.Done():
					return
				default:
				}
				if c.processRecord(ctx, id, set, snk) {
					ok.Add(1)
				} else {
					bad.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	return int(ok.Load()), int(bad.Load())
}

// processRecord fetches one identifier and persists the response body.
// Bodies that still carry a protocol error marker after the fetch retry
// loop are not persisted; storing an error document as a record would be
// worse than storing nothing.
func (c *Client) processRecord(ctx context.Context, identifier, set string, snk sink.Sink) bool {
	logger := c.logger.With(
		zap.String("identifier", identifier),
		zap.String("set", set))
	logger.Debug("processing record")

	body, err := c.GetRecord(ctx, identifier)
	if err != nil {
		logger.Error("record fetch failed", zap.Error(err))
		return false
	}

	if code, found := oai.HasProtocolError(body,
		oai.ErrCodeCannotDisseminateFormat, oai.ErrCodeIDDoesNotExist); found {
		logger.Error("record still erroneous after retries, not persisting",
			zap.String("code", code))
		return false
	}

	if err := snk.Persist(sink.Record{
		Identifier: identifier,
		Set:        set,
		Payload:    body,
	}); err != nil {
		logger.Error("record persist failed", zap.Error(err))
		return false
	}

	return true
}
