// Package resolver turns a free-text name fragment into at most one client
// record, using an exact, partial and gated semantic cascade.
package resolver

import (
	"context"
	"strings"
	"unicode/utf8"

	apperrors "orqon-dispatch/internal/common/errors"
	"orqon-dispatch/internal/common/metrics"
	"orqon-dispatch/internal/models"
)

// DefaultThreshold is the minimum similarity score a semantic hit must exceed.
const DefaultThreshold = 0.75

// ResultKind is the terminal state of one resolution call.
type ResultKind string

const (
	Resolved       ResultKind = "resolved"
	Disambiguation ResultKind = "disambiguation"
	NotFound       ResultKind = "not_found"
)

// Stage names the cascade step that decided the result.
type Stage string

const (
	StageExact    Stage = "exact"
	StagePartial  Stage = "partial"
	StageSemantic Stage = "semantic"
	StageNone     Stage = "none"
)

// Match is one similarity index hit.
type Match struct {
	Key   string
	Score float64
}

// SimilarityIndex returns the k records most similar to text, best first.
type SimilarityIndex interface {
	Query(ctx context.Context, text string, k int) ([]Match, error)
}

// Result is the outcome of Resolve. Entity is set only for Resolved;
// Candidates only for Disambiguation.
type Result struct {
	Kind       ResultKind
	Stage      Stage
	Entity     *models.ResolvedEntity
	Candidates []models.Record
}

type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
}

// Resolver runs the cascade. A nil index disables the semantic stage.
type Resolver struct {
	index     SimilarityIndex
	threshold float64
	logger    Logger
}

func New(index SimilarityIndex, threshold float64, log Logger) *Resolver {
	if threshold <= 0 || threshold >= 1 {
		threshold = DefaultThreshold
	}
	return &Resolver{index: index, threshold: threshold, logger: log}
}

// Threshold returns the semantic acceptance threshold.
func (r *Resolver) Threshold() float64 {
	return r.threshold
}

// Resolve matches fragment against records. It never returns more than one
// entity: several equally good matches at a stage yield Disambiguation. The
// only error is an index failure that persisted through one retry.
func (r *Resolver) Resolve(ctx context.Context, fragment string, records []models.Record) (*Result, error) {
	needle := normalize(fragment)
	if needle == "" || len(records) == 0 {
		return r.finish(&Result{Kind: NotFound, Stage: StageNone}), nil
	}

	if res := exactStage(needle, records); res != nil {
		return r.finish(res), nil
	}
	if res := partialStage(needle, records); res != nil {
		return r.finish(res), nil
	}

	res, err := r.semanticStage(ctx, fragment, records)
	if err != nil {
		metrics.ResolverResults.WithLabelValues(string(StageSemantic), "error").Inc()
		return nil, err
	}
	return r.finish(res), nil
}

func (r *Resolver) finish(res *Result) *Result {
	metrics.ResolverResults.WithLabelValues(string(res.Stage), string(res.Kind)).Inc()
	return res
}

func exactStage(needle string, records []models.Record) *Result {
	var hits []models.Record
	for _, rec := range records {
		if normalize(rec.FullName) == needle {
			hits = append(hits, rec)
		}
	}
	switch len(hits) {
	case 0:
		return nil
	case 1:
		return &Result{
			Kind:   Resolved,
			Stage:  StageExact,
			Entity: &models.ResolvedEntity{Record: hits[0], MatchKind: models.MatchExact, Confidence: 1.0},
		}
	default:
		return &Result{Kind: Disambiguation, Stage: StageExact, Candidates: hits}
	}
}

func partialStage(needle string, records []models.Record) *Result {
	tokens := strings.Fields(needle)

	var hits []models.Record
	var best []int
	for _, rec := range records {
		name := normalize(rec.FullName)
		longest := 0
		for _, tok := range tokens {
			if strings.Contains(name, tok) {
				if n := utf8.RuneCountInString(tok); n > longest {
					longest = n
				}
			}
		}
		if longest > 0 {
			hits = append(hits, rec)
			best = append(best, longest)
		}
	}

	switch len(hits) {
	case 0:
		return nil
	case 1:
		return &Result{
			Kind:  Resolved,
			Stage: StagePartial,
			Entity: &models.ResolvedEntity{
				Record:     hits[0],
				MatchKind:  models.MatchPartial,
				Confidence: partialConfidence(best[0], hits[0].FullName),
			},
		}
	default:
		return &Result{Kind: Disambiguation, Stage: StagePartial, Candidates: hits}
	}
}

// partialConfidence is the matched token length over the full name length,
// kept strictly inside (0,1).
func partialConfidence(matched int, fullName string) float64 {
	total := utf8.RuneCountInString(normalize(fullName))
	if total == 0 {
		return 0.01
	}
	c := float64(matched) / float64(total)
	switch {
	case c >= 1:
		return 0.99
	case c <= 0:
		return 0.01
	}
	return c
}

func (r *Resolver) semanticStage(ctx context.Context, fragment string, records []models.Record) (*Result, error) {
	notFound := &Result{Kind: NotFound, Stage: StageSemantic}
	if r.index == nil {
		notFound.Stage = StageNone
		return notFound, nil
	}

	var matches []Match
	err := apperrors.RetryOnce(ctx, func(ctx context.Context) error {
		var qerr error
		matches, qerr = r.index.Query(ctx, fragment, 1)
		if qerr != nil {
			if _, ok := apperrors.AsStandard(qerr); ok {
				return qerr
			}
			return apperrors.NewUpstreamError("similarity_index", "query", qerr)
		}
		return nil
	})
	if err != nil {
		if r.logger != nil {
			r.logger.Warn("similarity index query failed", map[string]interface{}{"error": err.Error()})
		}
		return nil, err
	}
	if len(matches) == 0 {
		return notFound, nil
	}

	top := matches[0]
	if top.Score <= r.threshold {
		if r.logger != nil {
			r.logger.Debug("semantic hit below threshold", map[string]interface{}{
				"key":       top.Key,
				"score":     top.Score,
				"threshold": r.threshold,
			})
		}
		return notFound, nil
	}

	for _, rec := range records {
		if rec.Key == top.Key {
			return &Result{
				Kind:   Resolved,
				Stage:  StageSemantic,
				Entity: &models.ResolvedEntity{Record: rec, MatchKind: models.MatchSemantic, Confidence: top.Score},
			}, nil
		}
	}
	return notFound, nil
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
