package harvest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oaiharvest/oaiharvest/pkg/config"
	"github.com/oaiharvest/oaiharvest/pkg/errors"
)

// drain consumes a stream to completion and returns everything it
// produced.
func drain(t *testing.T, stream *ItemStream) ([]Item, error) {
	t.Helper()
	var items []Item
	for item := range stream.Items {
		items = append(items, item)
	}
	return items, <-stream.Errors
}

func TestPaginate(t *testing.T) {
	t.Run("visits all pages and terminates on missing token", func(t *testing.T) {
		pages := map[string]string{
			"":   identifiersPage([]string{"a", "b", "c"}, "t1", true, 7),
			"t1": identifiersPage([]string{"d", "e", "f"}, "t2", true, 0),
			"t2": identifiersPage([]string{"g"}, "", false, 0),
		}

		var requests int
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests++
			q := r.URL.Query()
			assert.Equal(t, "ListIdentifiers", q.Get("verb"))

			token := q.Get("resumptionToken")
			if token == "" {
				// First request carries the full parameter set.
				assert.Equal(t, "oai_dc", q.Get("metadataPrefix"))
				assert.Equal(t, "news", q.Get("set"))
			} else {
				// Follow-up requests are token-only.
				assert.Empty(t, q.Get("metadataPrefix"))
				assert.Empty(t, q.Get("set"))
			}
			w.Write([]byte(pages[token]))
		}))
		defer srv.Close()

		client := newTestClient(t, srv.URL, config.ModeIdentifiers, 10)
		items, err := drain(t, client.Paginate(context.Background(), "news"))
		require.NoError(t, err)

		ids := make([]string, len(items))
		for i, item := range items {
			ids[i] = item.Identifier
		}
		assert.Equal(t, []string{"a", "b", "c", "d", "e", "f", "g"}, ids)
		assert.Equal(t, 3, requests)
	})

	t.Run("stats reflect the advertised total", func(t *testing.T) {
		pages := map[string]string{
			"":   identifiersPage([]string{"a", "b"}, "t1", true, 3),
			"t1": identifiersPage([]string{"c"}, "", false, 0),
		}
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(pages[r.URL.Query().Get("resumptionToken")]))
		}))
		defer srv.Close()

		client := newTestClient(t, srv.URL, config.ModeIdentifiers, 10)
		stream := client.Paginate(context.Background(), "news")
		_, err := drain(t, stream)
		require.NoError(t, err)

		assert.Equal(t, 3, stream.Stats.Expected)
		assert.Equal(t, 3, stream.Stats.Seen)
		assert.Equal(t, 2, stream.Stats.Pages)
		assert.False(t, stream.Stats.Mismatch)
	})

	t.Run("missing token on first page completes with one page", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(identifiersPage([]string{"a", "b"}, "", false, 0)))
		}))
		defer srv.Close()

		client := newTestClient(t, srv.URL, config.ModeIdentifiers, 10)
		stream := client.Paginate(context.Background(), "news")
		items, err := drain(t, stream)
		require.NoError(t, err)

		assert.Len(t, items, 2)
		assert.Equal(t, 1, stream.Stats.Pages)
		assert.Equal(t, 2, stream.Stats.Expected, "expectation pinned to the single page")
		assert.False(t, stream.Stats.Mismatch)
	})

	t.Run("empty token is treated as termination", func(t *testing.T) {
		var requests int
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests++
			w.Write([]byte(identifiersPage([]string{"a"}, "", true, 1)))
		}))
		defer srv.Close()

		client := newTestClient(t, srv.URL, config.ModeIdentifiers, 10)
		items, err := drain(t, client.Paginate(context.Background(), "news"))
		require.NoError(t, err)

		assert.Len(t, items, 1)
		assert.Equal(t, 1, requests)
	})

	t.Run("count mismatch is a warning not an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(identifiersPage([]string{"a", "b"}, "", true, 10)))
		}))
		defer srv.Close()

		client := newTestClient(t, srv.URL, config.ModeIdentifiers, 10)
		stream := client.Paginate(context.Background(), "news")
		items, err := drain(t, stream)
		require.NoError(t, err)

		assert.Len(t, items, 2)
		assert.Equal(t, 10, stream.Stats.Expected)
		assert.True(t, stream.Stats.Mismatch)
	})

	t.Run("record mode yields serialized fragments", func(t *testing.T) {
		pages := map[string]string{
			"":   recordsPage([]string{"oai:1", "oai:2"}, "t1", true, 3),
			"t1": recordsPage([]string{"oai:3"}, "", false, 0),
		}
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "ListRecords", r.URL.Query().Get("verb"))
			w.Write([]byte(pages[r.URL.Query().Get("resumptionToken")]))
		}))
		defer srv.Close()

		client := newTestClient(t, srv.URL, config.ModeRecords, 10)
		items, err := drain(t, client.Paginate(context.Background(), "news"))
		require.NoError(t, err)

		require.Len(t, items, 3)
		assert.Equal(t, "oai:1", items[0].Identifier)
		assert.Contains(t, string(items[0].Payload), "<record")
		assert.Contains(t, string(items[0].Payload), "oai:1")
		assert.Contains(t, string(items[2].Payload), "<title>oai:3</title>")
	})

	t.Run("exhausted transport surfaces on the error channel", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		client := newTestClient(t, srv.URL, config.ModeIdentifiers, 0)
		_, err := drain(t, client.Paginate(context.Background(), "news"))
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeTransport))
	})

	t.Run("malformed page is a protocol error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<OAI-PMH><broken"))
		}))
		defer srv.Close()

		client := newTestClient(t, srv.URL, config.ModeIdentifiers, 10)
		_, err := drain(t, client.Paginate(context.Background(), "news"))
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeProtocol))
	})
}
