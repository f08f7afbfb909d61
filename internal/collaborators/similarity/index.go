package similarity

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"orqon-dispatch/internal/common/metrics"
	"orqon-dispatch/internal/models"
	"orqon-dispatch/internal/resolver"
)

const (
	DefaultCollection = "clients"
	metaKey           = "record_key"
)

type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
}

// ChromemIndex answers nearest-name queries over client records.
type ChromemIndex struct {
	mu         sync.RWMutex
	db         *chromem.DB
	name       string
	embed      chromem.EmbeddingFunc
	collection *chromem.Collection
	logger     Logger
}

func NewChromemIndex(embedder Embedder, collection string, log Logger) (*ChromemIndex, error) {
	if collection == "" {
		collection = DefaultCollection
	}
	idx := &ChromemIndex{
		db:     chromem.NewDB(),
		name:   collection,
		embed:  toChromemFunc(embedder),
		logger: log,
	}
	col, err := idx.db.GetOrCreateCollection(collection, nil, idx.embed)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	idx.collection = col
	return idx, nil
}

// Rebuild replaces the indexed documents with one per record, embedding the
// full name.
func (i *ChromemIndex) Rebuild(ctx context.Context, records []models.Record) (int, error) {
	docs := make([]chromem.Document, 0, len(records))
	for _, r := range records {
		if r.FullName == "" {
			continue
		}
		docs = append(docs, chromem.Document{
			ID:       r.Key,
			Content:  r.FullName,
			Metadata: map[string]string{metaKey: r.Key},
		})
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if err := i.db.DeleteCollection(i.name); err != nil {
		return 0, fmt.Errorf("drop collection: %w", err)
	}
	col, err := i.db.GetOrCreateCollection(i.name, nil, i.embed)
	if err != nil {
		return 0, fmt.Errorf("create collection: %w", err)
	}
	i.collection = col

	if len(docs) == 0 {
		return 0, nil
	}
	if err := col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return 0, fmt.Errorf("add documents: %w", err)
	}
	i.logger.Info("similarity index rebuilt", map[string]interface{}{"documents": len(docs)})
	return len(docs), nil
}

// Query returns up to k records nearest to text, best first. Scores are
// cosine similarities clamped to [0,1].
func (i *ChromemIndex) Query(ctx context.Context, text string, k int) ([]resolver.Match, error) {
	i.mu.RLock()
	col := i.collection
	i.mu.RUnlock()

	count := col.Count()
	if count == 0 || k <= 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}

	results, err := col.Query(ctx, text, k, nil, nil)
	metrics.ObserveCall("similarity_index", err)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	out := make([]resolver.Match, 0, len(results))
	for _, r := range results {
		key := r.Metadata[metaKey]
		if key == "" {
			key = r.ID
		}
		out = append(out, resolver.Match{Key: key, Score: clamp(float64(r.Similarity))})
	}
	return out, nil
}

func (i *ChromemIndex) Count() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.collection.Count()
}

// Persist writes the whole database to path, gzip-compressed.
func (i *ChromemIndex) Persist(path string) error {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.db.ExportToFile(path, true, "")
}

// Load replaces the database with the one stored at path. A missing file is
// not an error.
func (i *ChromemIndex) Load(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if err := i.db.ImportFromFile(path, ""); err != nil {
		return fmt.Errorf("import index: %w", err)
	}
	col := i.db.GetCollection(i.name, i.embed)
	if col == nil {
		return fmt.Errorf("collection %q not found after import", i.name)
	}
	i.collection = col
	return nil
}

func clamp(s float64) float64 {
	switch {
	case s < 0:
		return 0
	case s > 1:
		return 1
	}
	return s
}
