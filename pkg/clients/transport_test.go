package clients

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/oaiharvest/oaiharvest/pkg/config"
	"github.com/oaiharvest/oaiharvest/pkg/errors"
)

func newTestTransport(t *testing.T, endpoint string, maxRetries int) *Transport {
	t.Helper()
	tr := NewTransport(endpoint, config.NewConfig(endpoint, "oai_dc", t.TempDir()).Timeouts, maxRetries, zap.NewNop())
	tr.backoffUnit = time.Millisecond
	return tr
}

func listSetsParams() url.Values {
	params := url.Values{}
	params.Set("verb", "ListSets")
	return params
}

func TestTransportFetch(t *testing.T) {
	t.Run("success on first attempt", func(t *testing.T) {
		var requests atomic.Int64
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests.Add(1)
			assert.Equal(t, "ListSets", r.URL.Query().Get("verb"))
			w.Write([]byte("<OAI-PMH/>"))
		}))
		defer srv.Close()

		tr := newTestTransport(t, srv.URL, 10)
		body, err := tr.Fetch(context.Background(), listSetsParams())
		require.NoError(t, err)
		assert.Equal(t, "<OAI-PMH/>", string(body))
		assert.Equal(t, int64(1), requests.Load())
	})

	t.Run("retries through transient failures", func(t *testing.T) {
		const failures = 3
		var requests atomic.Int64
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if requests.Add(1) <= failures {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.Write([]byte("<OAI-PMH/>"))
		}))
		defer srv.Close()

		tr := newTestTransport(t, srv.URL, 10)
		start := time.Now()
		body, err := tr.Fetch(context.Background(), listSetsParams())
		require.NoError(t, err)
		assert.Equal(t, "<OAI-PMH/>", string(body))
		assert.Equal(t, int64(failures+1), requests.Load())

		// Backoff is 2^attempt units, so three failures cost at least
		// 1+2+4 units before the fourth attempt succeeds.
		assert.GreaterOrEqual(t, time.Since(start), 7*time.Millisecond)
	})

	t.Run("cap is absolute", func(t *testing.T) {
		var requests atomic.Int64
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		tr := newTestTransport(t, srv.URL, 4)
		_, err := tr.Fetch(context.Background(), listSetsParams())
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeTransport))
		assert.Equal(t, int64(5), requests.Load(), "initial attempt plus the retry cap")
	})

	t.Run("connection refused is a transport error", func(t *testing.T) {
		tr := newTestTransport(t, "http://127.0.0.1:1", 0)
		_, err := tr.Fetch(context.Background(), listSetsParams())
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeTransport))
	})

	t.Run("cancelled context stops the retry loop", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		tr := newTestTransport(t, srv.URL, 10)
		tr.backoffUnit = 50 * time.Millisecond

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()

		_, err := tr.Fetch(ctx, listSetsParams())
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeTransport))
	})

	t.Run("4xx is retried like any non-success", func(t *testing.T) {
		var requests atomic.Int64
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests.Add(1)
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		tr := newTestTransport(t, srv.URL, 2)
		_, err := tr.Fetch(context.Background(), listSetsParams())
		require.Error(t, err)
		assert.Equal(t, int64(3), requests.Load())
	})
}
