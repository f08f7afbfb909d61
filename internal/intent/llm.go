package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"orqon-dispatch/internal/collaborators/llm"
	"orqon-dispatch/internal/common/validation"
	"orqon-dispatch/internal/models"
)

// maxLLMConfidence caps text-generation signals below keyword certainty.
const maxLLMConfidence = 0.9

var intentValidator = validation.MustSchemaValidator("intent", validation.IntentSchema)

// Completer is the text-generation capability the LLM classifier needs.
type Completer interface {
	Complete(ctx context.Context, prompt, context string) (string, error)
}

type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
}

// LLMClassifier asks a text-generation service for categories. Its signals
// are advisory.
type LLMClassifier struct {
	llm    Completer
	logger Logger
}

func NewLLMClassifier(llm Completer, log Logger) *LLMClassifier {
	return &LLMClassifier{llm: llm, logger: log}
}

type llmIntent struct {
	Categories []struct {
		Category   string  `json:"category"`
		Confidence float64 `json:"confidence"`
	} `json:"categories"`
}

func (c *LLMClassifier) Classify(ctx context.Context, text string) ([]models.Signal, error) {
	raw, err := c.llm.Complete(ctx, classifyPrompt(), text)
	if err != nil {
		return nil, fmt.Errorf("llm classify: %w", err)
	}

	body := llm.ExtractJSON(raw)
	res, err := intentValidator.ValidateBytes([]byte(body))
	if err != nil {
		return nil, fmt.Errorf("llm classify: %w", err)
	}
	if err := res.Err(); err != nil {
		return nil, fmt.Errorf("llm classify: %w", err)
	}

	var parsed llmIntent
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		return nil, fmt.Errorf("llm classify: %w", err)
	}

	var out []models.Signal
	for _, cat := range parsed.Categories {
		category := models.Category(strings.ToLower(strings.TrimSpace(cat.Category)))
		if !IsKnown(category) {
			continue
		}
		conf := cat.Confidence
		if conf <= 0 || conf > maxLLMConfidence {
			conf = maxLLMConfidence
		}
		out = append(out, models.Signal{Category: category, Confidence: conf})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })

	c.logger.Debug("llm classification", map[string]interface{}{"signals": len(out)})
	return out, nil
}

func classifyPrompt() string {
	names := make([]string, len(Known))
	for i, k := range Known {
		names[i] = string(k)
	}
	return "Classify the user's message for a brokerage assistant. Allowed categories: " +
		strings.Join(names, ", ") +
		`. Reply with JSON only: {"categories":[{"category":"<name>","confidence":<0..1>}]}. ` +
		`Return an empty list when none apply.`
}

// Chain consults Primary and, only when it yields nothing, Fallback. A
// Fallback failure is logged and treated as no signal.
type Chain struct {
	Primary  Classifier
	Fallback Classifier
	Logger   Logger
}

func (c *Chain) Classify(ctx context.Context, text string) ([]models.Signal, error) {
	signals, err := c.Primary.Classify(ctx, text)
	if err != nil || len(signals) > 0 || c.Fallback == nil {
		return signals, err
	}

	signals, err = c.Fallback.Classify(ctx, text)
	if err != nil {
		if c.Logger != nil {
			c.Logger.Warn("fallback classifier failed", map[string]interface{}{"error": err.Error()})
		}
		return nil, nil
	}
	return signals, nil
}
