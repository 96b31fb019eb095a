package extractor

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

// OpenAI извлекает данные продукта из нормализованного текста сайта.
type OpenAI struct {
	client  chatClient
	model   string
	timeout time.Duration
}

// NewOpenAI создаёт экстрактор данных продукта.
func NewOpenAI(client chatClient, model string, timeout time.Duration) *OpenAI {
	if model == "" {
		model = "gpt-4o-mini"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OpenAI{client: client, model: model, timeout: timeout}
}

var _ domain.ProductExtractor = (*OpenAI)(nil)

const systemPrompt = `You are an expert at analyzing SaaS products. Given website content, extract:
1. Product name - the official name of the product/service
2. A concise description (2-3 sentences) explaining what the product does
3. Keywords (5-10) that people might use when discussing this type of product or looking for solutions it provides
4. Relevant subreddits (5-10, without r/ prefix) where the target audience might discuss similar products, ask for recommendations, or share pain points

Focus on keywords and subreddits that would help identify people who could benefit from this product.
Return JSON: {"name": "...", "description": "...", "keywords": [...], "subreddits": [...]}.`

// Extract превращает текст сайта в структурированные данные продукта.
func (e *OpenAI) Extract(ctx context.Context, websiteContent string) (domain.ProductDetails, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:       e.model,
		Temperature: 0.2,
		MaxTokens:   600,
		Messages: []openai.ChatMessage{
			{Role: openai.RoleSystem, Content: systemPrompt},
			{Role: openai.RoleUser, Content: "Analyze this website and extract product details:\n\n" + clipRunes(websiteContent, 15000)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ResponseFormatTypeJSONObject},
	}

	resp, err := e.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return domain.ProductDetails{}, fmt.Errorf("извлечение данных продукта: %w", err)
	}
	if len(resp.Choices) == 0 {
		return domain.ProductDetails{}, fmt.Errorf("извлечение данных продукта: пустой ответ модели")
	}
	var details domain.ProductDetails
	if err := json.Unmarshal([]byte(strings.TrimSpace(resp.Choices[0].Message.Content)), &details); err != nil {
		return domain.ProductDetails{}, fmt.Errorf("распаковка ответа экстрактора: %w", err)
	}
	if strings.TrimSpace(details.Name) == "" {
		return domain.ProductDetails{}, fmt.Errorf("экстрактор не нашёл название продукта")
	}
	return details, nil
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
