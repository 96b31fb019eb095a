package classifier

import (
	"context"
	"errors"
	"strings"
	"testing"

	"reddit-lead-bot/internal/domain"
	openai "reddit-lead-bot/internal/infra/openai"
)

type stubChat struct {
	content string
	err     error
	lastReq openai.ChatCompletionRequest
}

func (s *stubChat) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.lastReq = req
	if s.err != nil {
		return openai.ChatCompletionResponse{}, s.err
	}
	return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{{Message: openai.ChatMessage{Content: s.content}}}}, nil
}

func TestClassifyParsesResponse(t *testing.T) {
	chat := &stubChat{content: `{"intent":"pain_point","confidence":85,"reasoning":"author complains about invoices"}`}
	c := NewOpenAI(chat, "gpt-4o-mini", 0)

	got, err := c.Classify(context.Background(), domain.PostContent{Title: "help"}, domain.ProductContext{Name: "InvoiceBot"})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if got.Intent != domain.IntentPainPoint || got.Confidence != 85 {
		t.Fatalf("неожиданный результат: %+v", got)
	}
	if chat.lastReq.ResponseFormat == nil || chat.lastReq.ResponseFormat.Type != openai.ResponseFormatTypeJSONObject {
		t.Fatal("классификатор должен требовать json_object")
	}
	if !strings.Contains(chat.lastReq.Messages[1].Content, "InvoiceBot") {
		t.Fatal("контекст продукта должен попадать в промпт")
	}
}

func TestClassifyUnknownIntentIsError(t *testing.T) {
	chat := &stubChat{content: `{"intent":"maybe_relevant","confidence":50}`}
	c := NewOpenAI(chat, "", 0)

	if _, err := c.Classify(context.Background(), domain.PostContent{}, domain.ProductContext{}); err == nil {
		t.Fatal("неизвестное намерение должно быть ошибкой, а не угадываться")
	}
}

func TestClassifyMalformedJSONIsError(t *testing.T) {
	chat := &stubChat{content: "Sure! The intent is pain_point."}
	c := NewOpenAI(chat, "", 0)

	if _, err := c.Classify(context.Background(), domain.PostContent{}, domain.ProductContext{}); err == nil {
		t.Fatal("непарсимый ответ модели должен быть ошибкой")
	}
}

func TestClassifyClampsConfidence(t *testing.T) {
	chat := &stubChat{content: `{"intent":"recommendation_request","confidence":140}`}
	c := NewOpenAI(chat, "", 0)

	got, err := c.Classify(context.Background(), domain.PostContent{}, domain.ProductContext{})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if got.Confidence != 100 {
		t.Fatalf("уверенность должна ограничиваться сотней, получили %d", got.Confidence)
	}
}

func TestClassifyTransportErrorPropagates(t *testing.T) {
	chat := &stubChat{err: errors.New("timeout")}
	c := NewOpenAI(chat, "", 0)

	if _, err := c.Classify(context.Background(), domain.PostContent{}, domain.ProductContext{}); err == nil {
		t.Fatal("ошибка транспорта должна возвращаться вызывающему")
	}
}
