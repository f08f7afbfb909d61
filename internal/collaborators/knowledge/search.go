// Package knowledge searches the compliance knowledge base.
package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	apperrors "orqon-dispatch/internal/common/errors"
	"orqon-dispatch/internal/common/metrics"
)

const DefaultIndex = "compliance-kb"

// Article is a knowledge base entry.
type Article struct {
	ID       string   `json:"id,omitempty"`
	Title    string   `json:"title"`
	Body     string   `json:"body"`
	Category string   `json:"category,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Source   string   `json:"source,omitempty"`
	Score    float64  `json:"score,omitempty"`
}

// Searcher finds articles relevant to free text.
type Searcher interface {
	Search(ctx context.Context, text string, limit int) ([]Article, error)
}

// ElasticSearcher backs Searcher with an Elasticsearch index.
type ElasticSearcher struct {
	client *elasticsearch.Client
	index  string
}

func NewElasticSearcher(client *elasticsearch.Client, index string) *ElasticSearcher {
	if index == "" {
		index = DefaultIndex
	}
	return &ElasticSearcher{client: client, index: index}
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string  `json:"_id"`
			Score  float64 `json:"_score"`
			Source Article `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Search is an idempotent read and is retried once.
func (s *ElasticSearcher) Search(ctx context.Context, text string, limit int) ([]Article, error) {
	text = strings.TrimSpace(text)
	req, err := BuildSearch(SearchQuery{Index: s.index, Text: text, Size: limit})
	if err != nil {
		return nil, apperrors.NewValidationError(err.Error())
	}
	raw, err := readBody(req)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	var out searchResponse
	err = apperrors.RetryOnce(ctx, func(ctx context.Context) error {
		req.Body = bytes.NewReader(raw)
		err := s.do(ctx, req, &out)
		metrics.ObserveCall("knowledge", err)
		if err != nil {
			return apperrors.NewUpstreamError("knowledge", "search", err).WithMetadata("index", s.index)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	articles := make([]Article, 0, len(out.Hits.Hits))
	for _, hit := range out.Hits.Hits {
		a := hit.Source
		a.ID = hit.ID
		a.Score = hit.Score
		articles = append(articles, a)
	}
	return articles, nil
}

func (s *ElasticSearcher) do(ctx context.Context, req *esapi.SearchRequest, out interface{}) error {
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("search failed: %s", res.String())
	}
	return json.NewDecoder(res.Body).Decode(out)
}

// Index writes articles into the knowledge base, replacing documents with the
// same id.
func (s *ElasticSearcher) Index(ctx context.Context, articles []Article) (int, error) {
	n := 0
	for _, a := range articles {
		id := a.ID
		a.ID, a.Score = "", 0
		body, err := json.Marshal(a)
		if err != nil {
			return n, apperrors.NewInternalError(err)
		}
		req := esapi.IndexRequest{
			Index:      s.index,
			DocumentID: id,
			Body:       bytes.NewReader(body),
			Refresh:    "true",
		}
		res, err := req.Do(ctx, s.client)
		if err == nil {
			if res.IsError() {
				err = fmt.Errorf("index failed: %s", res.String())
			}
			res.Body.Close()
		}
		metrics.ObserveCall("knowledge", err)
		if err != nil {
			return n, apperrors.NewUpstreamError("knowledge", "index", err).WithMetadata("title", a.Title)
		}
		n++
	}
	return n, nil
}

func readBody(req *esapi.SearchRequest) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(req.Body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
