package knowledge

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "orqon-dispatch/internal/common/errors"
)

func init() {
	apperrors.RetryBackoff = time.Millisecond
}

func newESServer(t *testing.T, h http.HandlerFunc) *elasticsearch.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		h(w, r)
	}))
	t.Cleanup(srv.Close)

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return client
}

const churningHits = `{"took":3,"hits":{"total":{"value":1},"max_score":4.2,"hits":[
	{"_id":"kb-7","_score":4.2,"_source":{"title":"Churning","body":"Excessive trading to generate commissions.","category":"conduct","tags":["trading"]}}
]}}`

// ==========================
// Query Builder Tests
// ==========================

func TestBuildSearch(t *testing.T) {
	tests := []struct {
		name     string
		q        SearchQuery
		wantErr  error
		wantSize int
	}{
		{name: "defaults size", q: SearchQuery{Index: "kb", Text: "churning"}, wantSize: defaultSize},
		{name: "caps size", q: SearchQuery{Index: "kb", Text: "churning", Size: 500}, wantSize: maxSize},
		{name: "missing index", q: SearchQuery{Text: "churning"}, wantErr: ErrMissingIndex},
		{name: "empty text", q: SearchQuery{Index: "kb"}, wantErr: ErrEmptyQuery},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := BuildSearch(tt.q)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []string{"kb"}, req.Index)
			assert.Equal(t, tt.wantSize, *req.Size)
		})
	}
}

func TestBuildSearch_CategoryFilter(t *testing.T) {
	req, err := BuildSearch(SearchQuery{Index: "kb", Text: "gifts", Category: "conduct"})
	require.NoError(t, err)

	raw, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &body))

	boolQuery := body["query"].(map[string]interface{})["bool"].(map[string]interface{})
	filter := boolQuery["filter"].([]interface{})
	require.Len(t, filter, 1)
	assert.Equal(t, "conduct", filter[0].(map[string]interface{})["term"].(map[string]interface{})["category"])
}

// ==========================
// Searcher Tests
// ==========================

func TestElasticSearcher_Search(t *testing.T) {
	client := newESServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/compliance-kb/_search", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(raw), `"query":"what is churning"`)
		_, _ = w.Write([]byte(churningHits))
	})

	articles, err := NewElasticSearcher(client, "").Search(context.Background(), "  what is churning ", 3)
	require.NoError(t, err)
	require.Len(t, articles, 1)
	assert.Equal(t, "kb-7", articles[0].ID)
	assert.Equal(t, "Churning", articles[0].Title)
	assert.Equal(t, 4.2, articles[0].Score)
}

func TestElasticSearcher_RetriesOnce(t *testing.T) {
	var calls atomic.Int32
	client := newESServer(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		assert.True(t, strings.Contains(string(raw), "churning"), "body resent on retry")
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"shard failure"}`))
			return
		}
		_, _ = w.Write([]byte(churningHits))
	})

	articles, err := NewElasticSearcher(client, "kb").Search(context.Background(), "churning", 0)
	require.NoError(t, err)
	assert.Len(t, articles, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestElasticSearcher_Failure(t *testing.T) {
	client := newESServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"type":"index_not_found_exception"}}`))
	})

	_, err := NewElasticSearcher(client, "missing").Search(context.Background(), "churning", 3)
	require.Error(t, err)
	assert.True(t, apperrors.IsUpstream(err))
}

func TestElasticSearcher_EmptyText(t *testing.T) {
	_, err := NewElasticSearcher(nil, "").Search(context.Background(), "   ", 3)
	assert.True(t, apperrors.IsValidation(err))
}

func TestElasticSearcher_Index(t *testing.T) {
	var paths []string
	client := newESServer(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		var doc map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&doc))
		assert.NotContains(t, doc, "id")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	})

	n, err := NewElasticSearcher(client, "kb").Index(context.Background(), []Article{
		{ID: "kb-1", Title: "Gifts", Body: "Gifts above 100 USD need approval."},
		{ID: "kb-2", Title: "Churning", Body: "Excessive trading."},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"PUT /kb/_doc/kb-1", "PUT /kb/_doc/kb-2"}, paths)
}
