// Package clients provides the retrying HTTP transport every protocol
// request passes through.
package clients

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/http2"

	"github.com/oaiharvest/oaiharvest/pkg/config"
	"github.com/oaiharvest/oaiharvest/pkg/errors"
	"github.com/oaiharvest/oaiharvest/pkg/metrics"
)

// Transport issues a single protocol request with transport-level retry.
// The underlying connection pool is goroutine-safe and intentionally
// shared by all concurrent fetch workers; there is no session per worker.
type Transport struct {
	endpoint   string
	maxRetries int
	logger     *zap.Logger
	httpClient *http.Client
	transport  *http.Transport
	throttle   *Throttle

	// backoffUnit scales the wait between attempts. Production value is
	// one second (wait = 2^attempt seconds); tests shrink it.
	backoffUnit time.Duration
}

// NewTransport creates a transport against the given endpoint. Connect
// and read timeouts apply per request; retries use exponential backoff
// with an absolute cap of maxRetries.
func NewTransport(endpoint string, timeouts config.TimeoutConfig, maxRetries int, logger *zap.Logger) *Transport {
	t := &Transport{
		endpoint:    endpoint,
		maxRetries:  maxRetries,
		logger:      logger.With(zap.String("component", "transport")),
		backoffUnit: time.Second,
	}

	t.transport = &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   timeouts.Connect,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeouts.Read,
		ExpectContinueTimeout: 1 * time.Second,
	}

	if err := http2.ConfigureTransport(t.transport); err != nil {
		t.logger.Warn("failed to configure HTTP/2", zap.Error(err))
	}

	t.httpClient = &http.Client{
		Transport: t.transport,
		Timeout:   timeouts.Request,
	}

	return t
}

// WithThrottle caps the request rate. Zero or negative disables the cap.
func (t *Transport) WithThrottle(requestsPerSecond float64) *Transport {
	if requestsPerSecond > 0 {
		t.throttle = NewThrottle(requestsPerSecond, 1)
	}
	return t
}

// Fetch issues one GET against the endpoint with the given query
// parameters and returns the response body. Transport failures (dial or
// timeout errors, any non-2xx status) are retried with exponential
// backoff, wait = 2^attempt * unit, attempt starting at 0. Once the
// retry cap is exceeded the final failure is returned; the cap is
// absolute, never per-partition.
func (t *Transport) Fetch(ctx context.Context, params url.Values) ([]byte, error) {
	verb := params.Get("verb")

	for attempt := 0; ; attempt++ {
		if err := t.throttle.Wait(ctx); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeTransport, "throttle wait cancelled")
		}

		timer := metrics.NewTimer(verb)
		body, err := t.do(ctx, params)
		metrics.ObserveRequest(verb, timer.Stop(), err)
		if err == nil {
			return body, nil
		}

		if attempt >= t.maxRetries {
			t.logger.Error("request failed, retries exhausted",
				zap.String("verb", verb),
				zap.Int("attempts", attempt+1),
				zap.Error(err))
			return nil, err
		}

		wait := t.backoffUnit * (1 << attempt)
		t.logger.Warn("request failed, backing off",
			zap.String("verb", verb),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))
		metrics.RetriesTotal.WithLabelValues("transport").Inc()

		backoffTimer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			backoffTimer.Stop()
			return nil, errors.Wrap(ctx.Err(), errors.ErrorTypeTransport, "retry cancelled")
		case <-backoffTimer.C:
		}
	}
}

// do performs a single request attempt.
func (t *Transport) do(ctx context.Context, params url.Values) ([]byte, error) {
	reqURL := t.endpoint + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeTransport, "failed to create request")
	}
	req.Header.Set("User-Agent", "oaiharvest/"+Version)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeTransport, "request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeTransport, "failed to read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.New(errors.ErrorTypeTransport,
			fmt.Sprintf("unexpected status %d", resp.StatusCode)).
			WithDetail("status", resp.StatusCode).
			WithDetail("verb", params.Get("verb"))
	}

	return body, nil
}

// Close releases idle connections held by the shared pool.
func (t *Transport) Close() error {
	t.transport.CloseIdleConnections()
	return nil
}

// Version is the client version reported in the User-Agent header.
var Version = "0.1.0"
