// Package planner turns natural-language dataset requests into
// structured plans using an LLM: a modality, class labels, and search
// queries per class.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/corpusd/internal/config"
	"github.com/fyrsmithlabs/corpusd/internal/docstore"
	"github.com/fyrsmithlabs/corpusd/internal/logging"
	"github.com/fyrsmithlabs/corpusd/internal/modality"
)

const planSystemPrompt = `You are a dataset planning assistant. Given a dataset request,
respond with ONLY a JSON object of this shape:
{"type": "<image|text|news|code|audio|video|3d|numerical|qna>",
 "classes": ["<class label>", ...],
 "queries": {"<class label>": ["<search query>", ...], ...}}
Choose 2-5 classes and 2-4 distinct search queries per class. No prose.`

const intentSystemPrompt = `Extract dataset intent from the user message. Respond with ONLY
a JSON object: {"classes": ["<label>", ...], "total": <int>}.
If the message does not describe a dataset request, respond with {}.`

// Intent is the structured intent extracted from a chat message.
type Intent struct {
	Classes []string `json:"classes"`
	Total   int      `json:"total"`
}

// Planner plans datasets and persists the resulting request documents.
type Planner struct {
	llm    llms.Model
	store  docstore.Store
	logger *logging.Logger
}

// New wires a Planner around an existing model. Use NewFromConfig for
// production wiring.
func New(llm llms.Model, store docstore.Store, logger *logging.Logger) *Planner {
	return &Planner{llm: llm, store: store, logger: logger}
}

// NewFromConfig builds the OpenAI-compatible model from config.
func NewFromConfig(cfg config.LLMConfig, store docstore.Store, logger *logging.Logger) (*Planner, error) {
	llm, err := NewModel(cfg)
	if err != nil {
		return nil, err
	}
	return New(llm, store, logger), nil
}

// NewModel builds an OpenAI-compatible chat model from config. Shared
// with the chat service.
func NewModel(cfg config.LLMConfig) (llms.Model, error) {
	opts := []openai.Option{openai.WithModel(cfg.Model)}
	if cfg.APIKey.IsSet() {
		opts = append(opts, openai.WithToken(cfg.APIKey.Value()))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm: %w", err)
	}
	return llm, nil
}

// PlanDataset asks the LLM for a plan and upserts the request document.
// LLM unavailability is terminal: there is no fallback plan.
func (p *Planner) PlanDataset(ctx context.Context, query string, totalItems int, dataType, requestID string, persist bool) (*docstore.Plan, error) {
	user := fmt.Sprintf("Request: %s\nTotal items wanted: %d", query, totalItems)
	if dataType != "" {
		user += fmt.Sprintf("\nData type hint: %s", dataType)
	}

	raw, err := p.complete(ctx, planSystemPrompt, user)
	if err != nil {
		return nil, fmt.Errorf("failed to generate plan: %w", err)
	}

	var plan docstore.Plan
	if err := json.Unmarshal([]byte(ExtractJSON(raw)), &plan); err != nil {
		return nil, fmt.Errorf("failed to parse plan JSON: %w", err)
	}
	if len(plan.Classes) == 0 {
		return nil, fmt.Errorf("plan has no classes")
	}

	if dataType != "" {
		plan.Modality = modality.Normalize(dataType)
	} else {
		plan.Modality = modality.Normalize(plan.Modality)
	}
	plan.Total = totalItems

	// Drop queries for classes the plan does not declare.
	for class := range plan.Queries {
		known := false
		for _, c := range plan.Classes {
			if c == class {
				known = true
				break
			}
		}
		if !known {
			delete(plan.Queries, class)
		}
	}

	req := &docstore.Request{
		RequestID: requestID,
		Query:     query,
		Plan:      &plan,
		Persist:   persist,
		Status:    docstore.RequestPending,
	}
	if err := p.store.UpsertRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("failed to persist request: %w", err)
	}

	p.logger.Info(ctx, "planned dataset",
		zap.String("request_id", requestID),
		zap.String("modality", plan.Modality),
		zap.Int("classes", len(plan.Classes)))
	return &plan, nil
}

// ParseIntent extracts {classes, total} from a chat message. A message
// that is not a dataset request (or unparseable output) yields nil
// without error; the caller falls back to keyword handling.
func (p *Planner) ParseIntent(ctx context.Context, message string) (*Intent, error) {
	raw, err := p.complete(ctx, intentSystemPrompt, message)
	if err != nil {
		return nil, fmt.Errorf("failed to extract intent: %w", err)
	}

	var intent Intent
	if err := json.Unmarshal([]byte(ExtractJSON(raw)), &intent); err != nil {
		p.logger.Debug(ctx, "intent not parseable", zap.String("raw", raw))
		return nil, nil
	}
	if len(intent.Classes) == 0 {
		return nil, nil
	}
	if intent.Total <= 0 {
		intent.Total = 10
	}
	return &intent, nil
}

func (p *Planner) complete(ctx context.Context, system, user string) (string, error) {
	resp, err := p.llm.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, user),
	}, llms.WithTemperature(0.2))
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm returned no choices")
	}
	return resp.Choices[0].Content, nil
}

// ExtractJSON strips markdown code fences and surrounding prose from an
// LLM response, returning the first balanced JSON object.
func ExtractJSON(s string) string {
	s = strings.TrimSpace(s)

	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		rest = strings.TrimPrefix(rest, "json")
		if j := strings.Index(rest, "```"); j >= 0 {
			s = strings.TrimSpace(rest[:j])
		} else {
			s = strings.TrimSpace(rest)
		}
	}

	start := strings.IndexByte(s, '{')
	if start < 0 {
		return s
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return s[start:]
}
