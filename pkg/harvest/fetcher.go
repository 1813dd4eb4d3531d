package harvest

import (
	"context"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/oaiharvest/oaiharvest/pkg/errors"
	"github.com/oaiharvest/oaiharvest/pkg/metrics"
	"github.com/oaiharvest/oaiharvest/pkg/oai"
)

// GetRecord resolves one identifier to its full record response body.
//
// Transport failures are handled inside the transport and surface here
// only once its exponential retry is exhausted; that error is returned.
// An HTTP success whose body embeds cannotDisseminateFormat or
// idDoesNotExist is a distinct, retryable application error: the request
// is reissued after a linear backoff of 5*attempt, up to the same
// retry cap. When the cap is exhausted the last body is returned as-is,
// possibly still carrying the error marker; the persisting call site is
// responsible for inspecting it.
func (c *Client) GetRecord(ctx context.Context, identifier string) ([]byte, error) {
	params := url.Values{}
	params.Set("verb", oai.VerbGetRecord)
	params.Set("metadataPrefix", c.cfg.MetadataPrefix)
	params.Set("identifier", identifier)

	logger := c.logger.With(zap.String("identifier", identifier))

	for attempt := 1; ; attempt++ {
		body, err := c.transport.Fetch(ctx, params)
		if err != nil {
			return nil, err
		}

		code, found := oai.HasProtocolError(body,
			oai.ErrCodeCannotDisseminateFormat, oai.ErrCodeIDDoesNotExist)
		if !found {
			return body, nil
		}

		if attempt >= c.cfg.Reliability.MaxRetries {
			logger.Warn("application error retries exhausted, returning last response",
				zap.String("code", code),
				zap.Int("attempts", attempt))
			return body, nil
		}

		wait := time.Duration(attempt) * 5 * c.appBackoffUnit
		logger.Warn("protocol error in response, backing off",
			zap.String("code", code),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait))
		metrics.RetriesTotal.WithLabelValues("application").Inc()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, errors.Wrap(ctx.Err(), errors.ErrorTypeApplication, "retry cancelled")
		case <-timer.C:
		}
	}
}
