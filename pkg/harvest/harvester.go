package harvest

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/oaiharvest/oaiharvest/pkg/clients"
	"github.com/oaiharvest/oaiharvest/pkg/config"
	"github.com/oaiharvest/oaiharvest/pkg/sink"
)

// Harvester runs a full harvest: enumerate sets, paginate each one, and
// persist every record through the sink. Sets are processed one at a
// time; only the identifier-fetch path inside a set is concurrent.
type Harvester struct {
	cfg    *config.Config
	client *Client
	sink   sink.Sink
	logger *zap.Logger
}

// NewHarvester wires a transport, client and sink from the configuration.
func NewHarvester(cfg *config.Config, logger *zap.Logger) (*Harvester, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	transport := clients.NewTransport(cfg.Endpoint, cfg.Timeouts, cfg.Reliability.MaxRetries, logger).
		WithThrottle(cfg.Performance.RequestsPerSecond)
	client := NewClient(cfg, transport, logger)

	var snk sink.Sink
	if cfg.Output.Compress {
		snk = sink.NewCompressedFileSink(cfg.OutputRoot, cfg.Output.CompressionLevel, logger)
	} else {
		snk = sink.NewFileSink(cfg.OutputRoot, logger)
	}

	return &Harvester{
		cfg:    cfg,
		client: client,
		sink:   snk,
		logger: logger.With(zap.String("component", "harvester")),
	}, nil
}

// Run executes the harvest across all sets. Per-set failures in
// identifier mode are logged and the run moves on; an unrecovered
// transport error while paginating aborts the run, matching the strictly
// sequential batch path.
func (h *Harvester) Run(ctx context.Context) error {
	started := time.Now()

	summary := &sink.RunSummary{
		Endpoint:  h.cfg.Endpoint,
		Mode:      string(h.cfg.Mode),
		StartedAt: started,
	}

	sets, err := h.client.ListSets(ctx)
	if err != nil {
		return err
	}
	if len(sets) == 0 {
		h.logger.Warn("no sets to harvest")
		return nil
	}
	h.logger.Info("starting harvest",
		zap.Int("sets", len(sets)),
		zap.String("mode", string(h.cfg.Mode)))

	for _, set := range sets {
		h.logger.Info("processing set", zap.String("set", set))

		setSummary, err := h.harvestSet(ctx, set)
		if setSummary != nil {
			summary.Sets = append(summary.Sets, *setSummary)
			summary.Total += setSummary.Harvested
		}
		if err != nil {
			h.writeSummary(summary, started)
			return err
		}
	}

	h.writeSummary(summary, started)
	h.logger.Info("harvest complete",
		zap.Int("sets", len(summary.Sets)),
		zap.Int("records", summary.Total),
		zap.Duration("duration", time.Since(started)))
	return nil
}

// harvestSet paginates one set and routes its items to the sink, either
// through the concurrent fetch dispatcher or directly.
func (h *Harvester) harvestSet(ctx context.Context, set string) (*sink.SetSummary, error) {
	stream := h.client.Paginate(ctx, set)

	setSummary := &sink.SetSummary{Set: set}

	if h.cfg.Mode == config.ModeRecords {
		// Batch mode: one request in flight at a time, records persisted
		// as they arrive.
		for item := range stream.Items {
			if err := h.sink.Persist(sink.Record{
				Identifier: item.Identifier,
				Set:        set,
				Payload:    item.Payload,
			}); err != nil {
				h.logger.Error("record persist failed",
					zap.String("identifier", item.Identifier),
					zap.String("set", set),
					zap.Error(err))
				setSummary.Failed++
				continue
			}
			setSummary.Harvested++
		}
		if err := <-stream.Errors; err != nil {
			return h.finishSet(setSummary, stream), err
		}
		h.logger.Info("collected records for set",
			zap.String("set", set),
			zap.Int("records", setSummary.Harvested))
		return h.finishSet(setSummary, stream), nil
	}

	// Identifier mode: drain the full identifier list first, then fan
	// the fetches out over the worker pool.
	var identifiers []string
	for item := range stream.Items {
		identifiers = append(identifiers, item.Identifier)
	}
	if err := <-stream.Errors; err != nil {
		return h.finishSet(setSummary, stream), err
	}

	if len(identifiers) == 0 {
		h.logger.Warn("no identifiers found for set", zap.String("set", set))
		return h.finishSet(setSummary, stream), nil
	}
	h.logger.Info("identifiers collected",
		zap.String("set", set),
		zap.Int("count", len(identifiers)))

	persisted, failed := h.client.DispatchFetches(ctx, identifiers, set, h.sink)
	setSummary.Harvested = persisted
	setSummary.Failed = failed

	return h.finishSet(setSummary, stream), nil
}

// finishSet copies the pagination outcome into the set summary. The
// stream's stats are stable once Items has been drained.
func (h *Harvester) finishSet(s *sink.SetSummary, stream *ItemStream) *sink.SetSummary {
	s.Expected = stream.Stats.Expected
	s.Mismatch = stream.Stats.Mismatch
	return s
}

// writeSummary persists the JSON run report when configured.
func (h *Harvester) writeSummary(summary *sink.RunSummary, started time.Time) {
	summary.FinishedAt = time.Now()
	summary.Duration = summary.FinishedAt.Sub(started)

	if h.cfg.Output.SummaryPath == "" {
		return
	}
	if err := sink.WriteSummary(h.cfg.Output.SummaryPath, summary); err != nil {
		h.logger.Warn("failed to write run summary", zap.Error(err))
	}
}

// Close releases the harvester's resources.
func (h *Harvester) Close() error {
	if err := h.sink.Close(); err != nil {
		return err
	}
	return h.client.transport.Close()
}
