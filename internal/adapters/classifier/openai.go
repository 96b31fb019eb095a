package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"reddit-lead-bot/internal/domain"
	openai "reddit-lead-bot/internal/infra/openai"
)

type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAI определяет намерение поста через Chat Completions.
type OpenAI struct {
	client  chatClient
	model   string
	timeout time.Duration
}

// NewOpenAI создаёт классификатор намерений.
func NewOpenAI(client chatClient, model string, timeout time.Duration) *OpenAI {
	if model == "" {
		model = "gpt-4o-mini"
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &OpenAI{client: client, model: model, timeout: timeout}
}

var _ domain.IntentClassifier = (*OpenAI)(nil)

const systemPrompt = `You classify Reddit posts for a lead-generation tool. Given a post and a product, decide the author's intent:
- "pain_point": the author describes a problem or frustration this product could solve
- "recommendation_request": the author asks for tool or service recommendations in this space
- "not_relevant": anything else

Prefer recall over precision: when a post plausibly shows either actionable intent, surface it even with low confidence — a human reviews every result and discards false positives.

Return JSON: {"intent": "...", "confidence": 0-100, "reasoning": "one short sentence"}.`

type intentPayload struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// Classify определяет намерение поста относительно продукта.
// Непарсимый ответ модели — ошибка: оркестратор пропустит пост, а не
// подставит угаданное намерение.
func (c *OpenAI) Classify(ctx context.Context, post domain.PostContent, product domain.ProductContext) (domain.Classification, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	userPrompt := fmt.Sprintf(`Product: %s
Description: %s
Keywords: %s

Post title: %s
Post body:
%s`,
		product.Name,
		product.Description,
		strings.Join(product.Keywords, ", "),
		post.Title,
		clipRunes(post.Content, 4000),
	)

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0.1,
		MaxTokens:   200,
		Messages: []openai.ChatMessage{
			{Role: openai.RoleSystem, Content: systemPrompt},
			{Role: openai.RoleUser, Content: userPrompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ResponseFormatTypeJSONObject},
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return domain.Classification{}, fmt.Errorf("классификация: %w", err)
	}
	if len(resp.Choices) == 0 {
		return domain.Classification{}, fmt.Errorf("классификация: пустой ответ модели")
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	var parsed intentPayload
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return domain.Classification{}, fmt.Errorf("распаковка ответа классификатора: %w", err)
	}

	intent := domain.Intent(parsed.Intent)
	switch intent {
	case domain.IntentPainPoint, domain.IntentRecommendationRequest, domain.IntentNotRelevant:
	default:
		return domain.Classification{}, fmt.Errorf("неизвестное намерение %q", parsed.Intent)
	}

	return domain.Classification{
		Intent:     intent,
		Confidence: clampConfidence(parsed.Confidence),
		Reasoning:  strings.TrimSpace(parsed.Reasoning),
	}, nil
}

func clampConfidence(v float64) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return int(v)
}

func clipRunes(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
