package harvest

import (
	"context"
	"net/url"

	"go.uber.org/zap"

	"github.com/oaiharvest/oaiharvest/pkg/config"
	"github.com/oaiharvest/oaiharvest/pkg/errors"
	"github.com/oaiharvest/oaiharvest/pkg/metrics"
	"github.com/oaiharvest/oaiharvest/pkg/oai"
)

// Item is one element of a pagination stream: a bare identifier in
// identifier mode, or an identifier plus its serialized record fragment
// in record mode.
type Item struct {
	Identifier string
	Payload    []byte
}

// SetStats is the terminal state of one set's pagination loop. It is
// safe to read once the Items channel has been closed.
type SetStats struct {
	Expected int
	Seen     int
	Pages    int
	Mismatch bool
}

// ItemStream is a lazy, finite, non-restartable stream of page items.
// Both channels are closed when the loop terminates; at most one error
// is delivered and it ends the stream.
type ItemStream struct {
	Items  <-chan Item
	Errors <-chan error
	Stats  *SetStats
}

// Paginate drives the continuation loop for one set. The first request
// carries verb, metadataPrefix and set; once the server hands out a
// resumption token, follow-up requests carry the verb and the token only.
// The loop terminates exactly when the server returns no token; a token
// decoding to an empty string counts as no token. Pages are never
// revisited and identifiers are not deduplicated.
func (c *Client) Paginate(ctx context.Context, set string) *ItemStream {
	items := make(chan Item)
	errs := make(chan error, 1)
	stats := &SetStats{}

	stream := &ItemStream{
		Items:  items,
		Errors: errs,
		Stats:  stats,
	}

	verb := oai.VerbListIdentifiers
	if c.cfg.Mode == config.ModeRecords {
		verb = oai.VerbListRecords
	}

	go func() {
		defer close(items)
		defer close(errs)

		logger := c.logger.With(zap.String("set", set), zap.String("verb", verb))

		params := url.Values{}
		params.Set("verb", verb)
		params.Set("metadataPrefix", c.cfg.MetadataPrefix)
		params.Set("set", set)

		firstPage := true
		for {
			body, err := c.transport.Fetch(ctx, params)
			if err != nil {
				errs <- err
				return
			}

			doc, err := oai.Parse(body)
			if err != nil {
				errs <- err
				return
			}

			var pageItems []Item
			if c.cfg.Mode == config.ModeRecords {
				pageItems, err = recordItems(doc)
				if err != nil {
					errs <- err
					return
				}
			} else {
				for _, id := range doc.Identifiers() {
					pageItems = append(pageItems, Item{Identifier: id})
				}
			}

			for _, item := range pageItems {
				select {
				case items <- item:
				case <-ctx.Done():
					errs <- errors.Wrap(ctx.Err(), errors.ErrorTypeTransport, "pagination cancelled")
					return
				}
			}

			stats.Seen += len(pageItems)
			stats.Pages++
			metrics.PagesFetched.WithLabelValues(verb).Inc()

			token, size, present := doc.ResumptionToken()

			// The expected total is learned from the first page only;
			// later pages never recompute it. A first page without the
			// attribute pins the expectation to what that page held.
			if firstPage {
				if size > 0 {
					stats.Expected = size
				} else {
					logger.Info("no complete list size advertised")
					stats.Expected = stats.Seen
				}
				firstPage = false
			}

			logger.Info("page consumed",
				zap.Int("page", stats.Pages),
				zap.Int("seen", stats.Seen),
				zap.Int("expected", stats.Expected))

			if !present || token == "" {
				break
			}

			params = url.Values{}
			params.Set("verb", verb)
			params.Set("resumptionToken", token)
		}

		// The advertised total can be approximate or racy under
		// concurrent writes at the source, so a mismatch is a warning,
		// never a failure.
		if stats.Seen != stats.Expected {
			stats.Mismatch = true
			metrics.CountMismatches.Inc()
			logger.Warn("count mismatch after pagination",
				zap.Int("expected", stats.Expected),
				zap.Int("seen", stats.Seen))
		}
	}()

	return stream
}

// recordItems extracts and re-serializes every record fragment of a
// ListRecords page.
func recordItems(doc *oai.Document) ([]Item, error) {
	recs := doc.Records()
	items := make([]Item, 0, len(recs))
	for _, rec := range recs {
		payload, err := oai.Serialize(rec)
		if err != nil {
			return nil, err
		}
		items = append(items, Item{
			Identifier: oai.ElementIdentifier(rec),
			Payload:    []byte(payload),
		})
	}
	return items, nil
}
