package drafter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"reddit-lead-bot/internal/domain"
	openai "reddit-lead-bot/internal/infra/openai"
)

type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAI генерирует черновики ответов в голосе персоны пользователя.
type OpenAI struct {
	client  chatClient
	model   string
	timeout time.Duration
}

// NewOpenAI создаёт генератор черновиков.
func NewOpenAI(client chatClient, model string, timeout time.Duration) *OpenAI {
	if model == "" {
		model = "gpt-4o-mini"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OpenAI{client: client, model: model, timeout: timeout}
}

var _ domain.ReplyDrafter = (*OpenAI)(nil)

const defaultTone = "helpful and friendly"

// Порог, после которого пост считается развёрнутым и ответ должен быть детальнее.
const longPostRunes = 600

type replyPayload struct {
	Reply string `json:"reply"`
}

// Draft генерирует черновик ответа на пост. Отсутствующая персона заменяется
// нейтральными значениями; при ошибке черновик не выдумывается.
func (d *OpenAI) Draft(ctx context.Context, post domain.PostContent, product domain.ProductContext, persona domain.Persona) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:       d.model,
		Temperature: 0.7,
		MaxTokens:   500,
		Messages: []openai.ChatMessage{
			{Role: openai.RoleSystem, Content: buildSystemPrompt(post, persona)},
			{Role: openai.RoleUser, Content: buildUserPrompt(post, product)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ResponseFormatTypeJSONObject},
	}

	resp, err := d.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("генерация черновика: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("генерация черновика: пустой ответ модели")
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	var parsed replyPayload
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return "", fmt.Errorf("распаковка ответа генератора: %w", err)
	}
	reply := strings.TrimSpace(parsed.Reply)
	if reply == "" {
		return "", fmt.Errorf("генератор вернул пустой черновик")
	}
	return reply, nil
}

func buildSystemPrompt(post domain.PostContent, persona domain.Persona) string {
	tone := strings.TrimSpace(persona.Tone)
	if tone == "" {
		tone = defaultTone
	}

	var b strings.Builder
	b.WriteString("You write Reddit reply drafts for a founder doing honest community outreach.\n")
	b.WriteString("Rules:\n")
	b.WriteString("- Address the author's actual problem first; the product is mentioned only where it genuinely helps.\n")
	b.WriteString("- Plain prose only: no markdown, no bullet lists, no links other than the product URL if provided.\n")
	b.WriteString(fmt.Sprintf("- Tone: %s.\n", tone))
	if expertise := strings.TrimSpace(persona.Expertise); expertise != "" {
		b.WriteString(fmt.Sprintf("- The author of the reply has this background: %s.\n", expertise))
	}
	if audience := strings.TrimSpace(persona.TargetAudience); audience != "" {
		b.WriteString(fmt.Sprintf("- Typical readers: %s.\n", audience))
	}
	if avoid := strings.TrimSpace(persona.PhrasesToAvoid); avoid != "" {
		b.WriteString(fmt.Sprintf("- Never use these phrases: %s.\n", avoid))
	}
	if utf8.RuneCountInString(post.Content) > longPostRunes {
		b.WriteString("- The post is detailed, so reply with several substantive sentences covering its main points.\n")
	} else {
		b.WriteString("- The post is short, so keep the reply to two or three sentences.\n")
	}
	b.WriteString(`Return JSON: {"reply": "..."}.`)
	return b.String()
}

func buildUserPrompt(post domain.PostContent, product domain.ProductContext) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Product: %s\nDescription: %s\n", product.Name, product.Description))
	if product.URL != "" {
		b.WriteString(fmt.Sprintf("URL: %s\n", product.URL))
	}
	b.WriteString(fmt.Sprintf("\nPost title: %s\nPost body:\n%s", post.Title, clipRunes(post.Content, 6000)))
	return b.String()
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
