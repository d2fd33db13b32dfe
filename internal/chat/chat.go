// Package chat is the conversational surface: persisted chats with
// embedded messages, similarity retrieval of prior plan context, and
// LLM replies that may carry a dataset plan.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"
	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/corpusd/internal/config"
	"github.com/fyrsmithlabs/corpusd/internal/docstore"
	"github.com/fyrsmithlabs/corpusd/internal/embeddings"
	"github.com/fyrsmithlabs/corpusd/internal/logging"
	"github.com/fyrsmithlabs/corpusd/internal/planner"
)

const chatSystemPrompt = `You are a dataset curation assistant. Help the user shape dataset
requests: modality, class labels, search queries, item counts. When the
user asks for a dataset, include in your reply a JSON object of this
shape on its own lines:
{"type": "<image|text|news|code|audio|video|3d|numerical|qna>",
 "classes": ["<class label>", ...],
 "queries": {"<class label>": ["<search query>", ...], ...},
 "total_items": <int>}
Otherwise reply in plain prose.`

const titleLimit = 64

// Reply is one assistant turn.
type Reply struct {
	ChatID  string         `json:"chat_id"`
	Content string         `json:"content"`
	Plan    *docstore.Plan `json:"plan,omitempty"`
}

// Service runs chats against the document store and the vector
// collection of prior plans.
type Service struct {
	llm          llms.Model
	store        docstore.Store
	embeds       *embeddings.Service
	collection   *chromem.Collection
	historyLimit int
	logger       *logging.Logger
}

// NewService wires a Service. An empty vector path keeps the plan
// collection in memory.
func NewService(cfg config.ChatConfig, llm llms.Model, store docstore.Store, embeds *embeddings.Service, logger *logging.Logger) (*Service, error) {
	var db *chromem.DB
	var err error
	if cfg.VectorPath != "" {
		db, err = chromem.NewPersistentDB(cfg.VectorPath, false)
		if err != nil {
			return nil, fmt.Errorf("failed to open vector store: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	embedFn := func(ctx context.Context, text string) ([]float32, error) {
		return embeds.Embed(ctx, text)
	}
	collection, err := db.GetOrCreateCollection(cfg.Collection, nil, embedFn)
	if err != nil {
		return nil, fmt.Errorf("failed to open plan collection: %w", err)
	}

	return &Service{
		llm:          llm,
		store:        store,
		embeds:       embeds,
		collection:   collection,
		historyLimit: cfg.HistoryLimit,
		logger:       logger,
	}, nil
}

// SendMessage appends the user's turn, generates the assistant reply
// with prior-plan context, and persists both. An empty chat ID starts a
// new chat titled after this first message. Embedding failures degrade
// the turn, never fail it.
func (s *Service) SendMessage(ctx context.Context, chatID, message string) (*Reply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, fmt.Errorf("message must not be empty")
	}
	if chatID == "" {
		chatID = uuid.NewString()
	}
	ctx = logging.WithChatID(ctx, chatID)

	userMsg := docstore.ChatMessage{
		Role:      "user",
		Content:   message,
		Timestamp: time.Now().UTC(),
		Embedding: s.embed(ctx, message),
	}
	if err := s.store.AppendChatMessage(ctx, chatID, deriveTitle(message), userMsg); err != nil {
		return nil, fmt.Errorf("failed to persist user message: %w", err)
	}

	content, err := s.generate(ctx, chatID, message)
	if err != nil {
		return nil, err
	}

	plan := extractPlan(content)
	if plan != nil {
		s.indexPlan(ctx, chatID, message, plan)
	}

	assistantMsg := docstore.ChatMessage{
		Role:      "assistant",
		Content:   content,
		Timestamp: time.Now().UTC(),
		Embedding: s.embed(ctx, content),
		Plan:      plan,
	}
	if err := s.store.AppendChatMessage(ctx, chatID, deriveTitle(message), assistantMsg); err != nil {
		return nil, fmt.Errorf("failed to persist assistant message: %w", err)
	}

	return &Reply{ChatID: chatID, Content: content, Plan: plan}, nil
}

// generate builds the prompt from retrieved plan context plus recent
// history and calls the model.
func (s *Service) generate(ctx context.Context, chatID, message string) (string, error) {
	msgs := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, chatSystemPrompt),
	}
	if planContext := s.retrievePlanContext(ctx, message); planContext != "" {
		msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeSystem,
			"Plans from earlier conversations that may be relevant:\n"+planContext))
	}
	msgs = append(msgs, s.historyMessages(ctx, chatID)...)
	msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeHuman, message))

	resp, err := s.llm.GenerateContent(ctx, msgs, llms.WithTemperature(0.7))
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Content), nil
}

// historyMessages returns the chat's last turns, oldest first, capped
// at the history limit. The user turn just appended is excluded since
// the caller adds it verbatim.
func (s *Service) historyMessages(ctx context.Context, chatID string) []llms.MessageContent {
	chat, err := s.store.GetChat(ctx, chatID)
	if err != nil {
		if err != docstore.ErrNotFound {
			s.logger.Warn(ctx, "failed to load chat history", zap.Error(err))
		}
		return nil
	}

	history := chat.Messages
	if len(history) > 0 && history[len(history)-1].Role == "user" {
		history = history[:len(history)-1]
	}
	if len(history) > s.historyLimit {
		history = history[len(history)-s.historyLimit:]
	}

	out := make([]llms.MessageContent, 0, len(history))
	for _, m := range history {
		role := llms.ChatMessageTypeHuman
		if m.Role == "assistant" {
			role = llms.ChatMessageTypeAI
		}
		out = append(out, llms.TextParts(role, m.Content))
	}
	return out
}

// retrievePlanContext queries the plan collection for up to three prior
// plans similar to the message. Retrieval failures are tolerated.
func (s *Service) retrievePlanContext(ctx context.Context, message string) string {
	n := s.collection.Count()
	if n == 0 {
		return ""
	}
	if n > 3 {
		n = 3
	}
	results, err := s.collection.Query(ctx, message, n, nil, nil)
	if err != nil {
		s.logger.Warn(ctx, "plan retrieval failed", zap.Error(err))
		return ""
	}

	var sb strings.Builder
	for _, r := range results {
		sb.WriteString(r.Content)
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String())
}

// indexPlan adds the extracted plan to the vector collection, keyed by
// the user query that produced it. Indexing failures are tolerated.
func (s *Service) indexPlan(ctx context.Context, chatID, query string, plan *docstore.Plan) {
	data, err := json.Marshal(plan)
	if err != nil {
		return
	}
	doc := chromem.Document{
		ID:      uuid.NewString(),
		Content: fmt.Sprintf("Request: %s\nPlan: %s", query, data),
		Metadata: map[string]string{
			"chat_id":  chatID,
			"modality": plan.Modality,
		},
	}
	if err := s.collection.AddDocument(ctx, doc); err != nil {
		s.logger.Warn(ctx, "failed to index plan", zap.Error(err))
	}
}

// embed returns the message embedding or nil when the embedding
// service is unavailable.
func (s *Service) embed(ctx context.Context, text string) []float32 {
	vec, err := s.embeds.Embed(ctx, text)
	if err != nil {
		s.logger.Warn(ctx, "message embedding failed", zap.Error(err))
		return nil
	}
	return vec
}

// extractPlan pulls a dataset plan out of the assistant reply, if one
// is present and names at least one class.
func extractPlan(content string) *docstore.Plan {
	raw := planner.ExtractJSON(content)
	if raw == "" {
		return nil
	}
	var plan docstore.Plan
	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		return nil
	}
	if len(plan.Classes) == 0 {
		return nil
	}
	return &plan
}

func deriveTitle(message string) string {
	title := strings.Join(strings.Fields(message), " ")
	if len(title) > titleLimit {
		title = title[:titleLimit]
	}
	return title
}
