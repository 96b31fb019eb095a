package mentions

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"reddit-lead-bot/internal/domain"
)

// ErrRegenLimit возвращается, когда бюджет перегенераций исчерпан.
var ErrRegenLimit = errors.New("лимит перегенераций исчерпан")

// ErrInvalidStatus возвращается при попытке установить неизвестный статус.
var ErrInvalidStatus = errors.New("недопустимый статус")

// Service управляет жизненным циклом упоминаний. Все операции ограничены
// владельцем: чужое упоминание неотличимо от отсутствующего.
type Service struct {
	mentions domain.MentionRepo
	products domain.ProductRepo
	personas domain.PersonaRepo
	drafter  domain.ReplyDrafter
	log      zerolog.Logger
}

// NewService создаёт сервис упоминаний.
func NewService(mentions domain.MentionRepo, products domain.ProductRepo, personas domain.PersonaRepo, drafter domain.ReplyDrafter, logger zerolog.Logger) *Service {
	return &Service{
		mentions: mentions,
		products: products,
		personas: personas,
		drafter:  drafter,
		log:      logger,
	}
}

// List возвращает упоминания владельца с необязательными фильтрами.
func (s *Service) List(ctx context.Context, ownerID string, filter domain.MentionFilter) ([]domain.Mention, error) {
	if filter.Status != "" && !domain.ValidStatus(filter.Status) {
		return nil, ErrInvalidStatus
	}
	return s.mentions.List(ctx, ownerID, filter)
}

// Get возвращает упоминание владельца.
func (s *Service) Get(ctx context.Context, id, ownerID string) (domain.Mention, error) {
	return s.mentions.GetByID(ctx, id, ownerID)
}

// SetStatus переводит упоминание в указанный статус. Повторная установка того
// же статуса идемпотентна.
func (s *Service) SetStatus(ctx context.Context, id, ownerID string, status domain.MentionStatus) error {
	if !domain.ValidStatus(status) {
		return ErrInvalidStatus
	}
	return s.mentions.UpdateStatus(ctx, id, ownerID, status)
}

// Approve помечает упоминание как одобренное.
func (s *Service) Approve(ctx context.Context, id, ownerID string) error {
	return s.mentions.UpdateStatus(ctx, id, ownerID, domain.MentionStatusApproved)
}

// Discard помечает упоминание как отклонённое.
func (s *Service) Discard(ctx context.Context, id, ownerID string) error {
	return s.mentions.UpdateStatus(ctx, id, ownerID, domain.MentionStatusDiscarded)
}

// Regenerate генерирует новый черновик и увеличивает счётчик попыток.
// Возвращает обновлённое упоминание и номер варианта (счётчик после записи).
// При исчерпанном бюджете возвращает ErrRegenLimit, ничего не меняя.
func (s *Service) Regenerate(ctx context.Context, id, ownerID string) (domain.Mention, int, error) {
	mention, err := s.mentions.GetByID(ctx, id, ownerID)
	if err != nil {
		return domain.Mention{}, 0, err
	}
	if mention.RegenerationCount >= domain.RegenerationLimit {
		return domain.Mention{}, 0, ErrRegenLimit
	}

	product, err := s.products.GetProduct(ctx, mention.ProductID)
	if err != nil {
		return domain.Mention{}, 0, fmt.Errorf("получение продукта: %w", err)
	}
	persona, _, err := s.personas.GetPersona(ctx, ownerID)
	if err != nil {
		s.log.Error().Err(err).Str("user", ownerID).Msg("не удалось получить персону, используем значения по умолчанию")
		persona = domain.Persona{}
	}

	post := domain.PostContent{Title: mention.RedditTitle}
	if mention.RedditContent != nil {
		post.Content = *mention.RedditContent
	}
	draft, err := s.drafter.Draft(ctx, post, domain.ProductContext{
		Name:        product.Name,
		Description: product.Description,
		URL:         product.URL,
		Keywords:    product.Keywords,
	}, persona)
	if err != nil {
		return domain.Mention{}, 0, fmt.Errorf("генерация черновика: %w", err)
	}

	newCount := mention.RegenerationCount + 1
	if err := s.mentions.UpdateDraft(ctx, id, ownerID, draft, newCount); err != nil {
		return domain.Mention{}, 0, err
	}

	updated, err := s.mentions.GetByID(ctx, id, ownerID)
	if err != nil {
		return domain.Mention{}, 0, err
	}
	return updated, newCount, nil
}
