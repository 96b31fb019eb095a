package drafter

import (
	"context"
	"strings"
	"testing"

	"reddit-lead-bot/internal/domain"
	openai "reddit-lead-bot/internal/infra/openai"
)

type stubChat struct {
	content string
	lastReq openai.ChatCompletionRequest
}

func (s *stubChat) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.lastReq = req
	return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{{Message: openai.ChatMessage{Content: s.content}}}}, nil
}

func TestDraftReturnsReply(t *testing.T) {
	chat := &stubChat{content: `{"reply":"Have you looked at InvoiceBot? It automates exactly this."}`}
	d := NewOpenAI(chat, "gpt-4o-mini", 0)

	reply, err := d.Draft(context.Background(), domain.PostContent{Title: "help"}, domain.ProductContext{Name: "InvoiceBot"}, domain.Persona{})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !strings.Contains(reply, "InvoiceBot") {
		t.Fatalf("неожиданный черновик: %s", reply)
	}
}

func TestDraftEmptyReplyIsError(t *testing.T) {
	chat := &stubChat{content: `{"reply":"   "}`}
	d := NewOpenAI(chat, "", 0)

	if _, err := d.Draft(context.Background(), domain.PostContent{}, domain.ProductContext{}, domain.Persona{}); err == nil {
		t.Fatal("пустой черновик должен быть ошибкой")
	}
}

func TestDraftMalformedJSONIsError(t *testing.T) {
	chat := &stubChat{content: "Here is your reply: hello!"}
	d := NewOpenAI(chat, "", 0)

	if _, err := d.Draft(context.Background(), domain.PostContent{}, domain.ProductContext{}, domain.Persona{}); err == nil {
		t.Fatal("непарсимый ответ должен быть ошибкой")
	}
}

func TestBuildSystemPromptUsesPersona(t *testing.T) {
	persona := domain.Persona{
		Expertise:      "10 years in accounting",
		Tone:           "dry and direct",
		PhrasesToAvoid: "game changer",
		TargetAudience: "small business owners",
	}
	prompt := buildSystemPrompt(domain.PostContent{Content: "short"}, persona)
	for _, want := range []string{"dry and direct", "10 years in accounting", "game changer", "small business owners"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("промпт должен включать %q: %s", want, prompt)
		}
	}
	if !strings.Contains(prompt, "two or three sentences") {
		t.Fatal("короткий пост должен давать инструкцию про краткий ответ")
	}
}

func TestBuildSystemPromptDefaultsAndLongPost(t *testing.T) {
	long := strings.Repeat("а", longPostRunes+1)
	prompt := buildSystemPrompt(domain.PostContent{Content: long}, domain.Persona{})
	if !strings.Contains(prompt, defaultTone) {
		t.Fatal("без персоны используется нейтральный тон")
	}
	if !strings.Contains(prompt, "several substantive sentences") {
		t.Fatal("развёрнутый пост должен давать инструкцию про детальный ответ")
	}
}

func TestBuildUserPromptIncludesProductURL(t *testing.T) {
	prompt := buildUserPrompt(domain.PostContent{Title: "t"}, domain.ProductContext{Name: "X", URL: "https://x.dev"})
	if !strings.Contains(prompt, "https://x.dev") {
		t.Fatal("URL продукта должен попадать в промпт")
	}
}
