package gcs_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storageConfig "github.com/tigerroll/recordbatch/pkg/batch/adapter/storage/config"
	"github.com/tigerroll/recordbatch/pkg/batch/adapter/storage/gcs"
)

// fakeGCS serves the JSON API list and get-metadata calls for bucket "msd".
func fakeGCS(t *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/b/msd/o"):
			q := r.URL.Query()
			assert.Equal(t, "data/", q.Get("prefix"))
			assert.Equal(t, "data/A/a.h5", q.Get("startOffset"))
			if q.Get("pageToken") == "" {
				json.NewEncoder(w).Encode(map[string]interface{}{
					"kind":          "storage#objects",
					"items":         []map[string]string{{"name": "data/A/a.h5"}, {"name": "data/A/b.h5"}},
					"nextPageToken": "page-2",
				})
				return
			}
			json.NewEncoder(w).Encode(map[string]interface{}{
				"kind":  "storage#objects",
				"items": []map[string]string{{"name": "data/B/c.h5"}},
			})
		case r.Method == http.MethodGet && strings.Contains(r.URL.Path, "/b/out/o/"):
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"error": map[string]interface{}{"code": 404, "message": "No such object"},
			})
		default:
			w.WriteHeader(http.StatusNotImplemented)
		}
	}))
}

func TestGCSAdapter(t *testing.T) {
	srv := fakeGCS(t)
	defer srv.Close()

	ctx := context.Background()
	conn, err := gcs.NewGCSAdapter(ctx, storageConfig.StorageConfig{
		Type:     "gcs",
		Endpoint: srv.URL + "/storage/v1/",
	}, "remote")
	require.NoError(t, err)
	defer conn.Close()

	page, err := conn.ListPage(ctx, "msd", "data/", "data/A/a.h5", "", 2)
	require.NoError(t, err)
	// StartOffset is inclusive; the start-after key itself is dropped.
	assert.Equal(t, []string{"data/A/b.h5"}, page.Keys)
	assert.True(t, page.Truncated)
	assert.Equal(t, "page-2", page.NextToken)

	page, err = conn.ListPage(ctx, "msd", "data/", "data/A/a.h5", page.NextToken, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"data/B/c.h5"}, page.Keys)
	assert.False(t, page.Truncated)

	ok, err := conn.Exists(ctx, "out", "rows/part-000000.parquet")
	require.NoError(t, err)
	assert.False(t, ok)
}
