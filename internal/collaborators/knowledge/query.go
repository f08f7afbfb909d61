package knowledge

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8/esapi"
)

var (
	ErrMissingIndex = errors.New("index name is required")
	ErrEmptyQuery   = errors.New("search text is required")
)

const (
	defaultSize = 5
	maxSize     = 25
)

// SearchQuery describes a knowledge base lookup.
type SearchQuery struct {
	Index    string
	Text     string
	Category string
	Size     int
}

// BuildSearch builds the Elasticsearch request for q.
func BuildSearch(q SearchQuery) (*esapi.SearchRequest, error) {
	if q.Index == "" {
		return nil, ErrMissingIndex
	}
	if q.Text == "" {
		return nil, ErrEmptyQuery
	}

	size := q.Size
	if size < 1 {
		size = defaultSize
	}
	if size > maxSize {
		size = maxSize
	}

	body, err := json.Marshal(buildArticleQuery(q))
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}

	return &esapi.SearchRequest{
		Index: []string{q.Index},
		Body:  bytes.NewReader(body),
		Size:  &size,
	}, nil
}

func buildArticleQuery(q SearchQuery) map[string]interface{} {
	boolQuery := map[string]interface{}{
		"must": []interface{}{
			map[string]interface{}{
				"multi_match": map[string]interface{}{
					"query":     q.Text,
					"fields":    []string{"title^3", "tags^2", "body"},
					"type":      "best_fields",
					"fuzziness": "AUTO",
				},
			},
		},
	}
	if q.Category != "" {
		boolQuery["filter"] = []interface{}{
			map[string]interface{}{"term": map[string]interface{}{"category": q.Category}},
		}
	}

	return map[string]interface{}{
		"query": map[string]interface{}{"bool": boolQuery},
		"_source": []string{"title", "body", "category", "tags", "source"},
	}
}
