package harvest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oaiharvest/oaiharvest/pkg/config"
)

func TestListSets(t *testing.T) {
	t.Run("filters hierarchical sets", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "ListSets", r.URL.Query().Get("verb"))
			w.Write([]byte(setsPage([]string{"news", "news:images", "maps", "maps:historic:city"})))
		}))
		defer srv.Close()

		client := newTestClient(t, srv.URL, config.ModeIdentifiers, 10)
		sets, err := client.ListSets(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"news", "maps"}, sets)
	})

	t.Run("enumeration failure is non-fatal", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		client := newTestClient(t, srv.URL, config.ModeIdentifiers, 0)
		sets, err := client.ListSets(context.Background())
		require.NoError(t, err)
		assert.Empty(t, sets)
	})

	t.Run("malformed listing is a protocol error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<not-oai"))
		}))
		defer srv.Close()

		client := newTestClient(t, srv.URL, config.ModeIdentifiers, 10)
		_, err := client.ListSets(context.Background())
		assert.Error(t, err)
	})

	t.Run("empty listing", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(setsPage(nil)))
		}))
		defer srv.Close()

		client := newTestClient(t, srv.URL, config.ModeIdentifiers, 10)
		sets, err := client.ListSets(context.Background())
		require.NoError(t, err)
		assert.Empty(t, sets)
	})
}
