package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"reddit-lead-bot/internal/domain"
	"reddit-lead-bot/internal/infra/metrics"
)

// Service выполняет прогон мониторинга: выгрузка постов, классификация,
// генерация черновиков, сохранение и уведомления.
type Service struct {
	posts      domain.PostSource
	classifier domain.IntentClassifier
	drafter    domain.ReplyDrafter
	mentions   domain.MentionRepo
	products   domain.ProductRepo
	personas   domain.PersonaRepo
	conns      domain.ConnectionRepo
	state      domain.MonitoringStateRepo
	notifier   domain.Notifier
	log        zerolog.Logger
	postLimit  int
	now        func() time.Time
}

// Deps — зависимости сервиса мониторинга.
type Deps struct {
	Posts      domain.PostSource
	Classifier domain.IntentClassifier
	Drafter    domain.ReplyDrafter
	Mentions   domain.MentionRepo
	Products   domain.ProductRepo
	Personas   domain.PersonaRepo
	Conns      domain.ConnectionRepo
	State      domain.MonitoringStateRepo
	Notifier   domain.Notifier
	PostLimit  int
	Now        func() time.Time
}

// NewService создаёт сервис мониторинга.
func NewService(deps Deps, logger zerolog.Logger) *Service {
	if deps.PostLimit <= 0 {
		deps.PostLimit = 25
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Service{
		posts:      deps.Posts,
		classifier: deps.Classifier,
		drafter:    deps.Drafter,
		mentions:   deps.Mentions,
		products:   deps.Products,
		personas:   deps.Personas,
		conns:      deps.Conns,
		state:      deps.State,
		notifier:   deps.Notifier,
		log:        logger,
		postLimit:  deps.PostLimit,
		now:        deps.Now,
	}
}

// Run выполняет один прогон по всем продуктам. Ошибка одного продукта,
// сабреддита или поста не прерывает остальные; прогон падает целиком только
// если не удалось получить список продуктов.
func (s *Service) Run(ctx context.Context) (domain.RunStats, error) {
	started := time.Now()
	defer func() {
		metrics.MonitorRunSeconds.Observe(time.Since(started).Seconds())
		metrics.MonitorRunsTotal.Inc()
	}()

	var stats domain.RunStats

	products, err := s.products.ListProducts(ctx)
	if err != nil {
		return stats, fmt.Errorf("получение списка продуктов: %w", err)
	}
	stats.Products = len(products)

	for _, product := range products {
		if len(product.Subreddits) == 0 {
			s.log.Debug().Str("product", product.ID).Msg("у продукта нет сабреддитов, пропускаем")
			continue
		}
		s.runProduct(ctx, product, &stats)
	}

	if err := s.state.UpsertState(ctx, domain.MonitoringState{
		LastCheckedAt: s.now().UTC(),
		LastRunStats:  stats,
	}); err != nil {
		// Состояние прогона — диагностика, его потеря не отменяет созданные упоминания.
		s.log.Error().Err(err).Msg("не удалось сохранить состояние мониторинга")
	}

	s.log.Info().
		Int("products", stats.Products).
		Int("posts_found", stats.PostsFound).
		Int("mentions_created", stats.MentionsCreated).
		Msg("прогон мониторинга завершён")
	return stats, nil
}

func (s *Service) runProduct(ctx context.Context, product domain.Product, stats *domain.RunStats) {
	persona, _, err := s.personas.GetPersona(ctx, product.UserID)
	if err != nil {
		s.log.Error().Err(err).Str("user", product.UserID).Msg("не удалось получить персону, используем значения по умолчанию")
		persona = domain.Persona{}
	}

	var chatID int64
	conn, err := s.conns.GetConnectionByUser(ctx, product.UserID)
	switch {
	case err == nil:
		chatID = conn.TelegramChatID
	case errors.Is(err, domain.ErrNotFound):
		// Telegram не привязан: упоминания создаются, уведомления не отправляются.
	default:
		s.log.Error().Err(err).Str("user", product.UserID).Msg("не удалось получить привязку Telegram")
	}

	productCtx := domain.ProductContext{
		Name:        product.Name,
		Description: product.Description,
		URL:         product.URL,
		Keywords:    product.Keywords,
	}

	for _, subreddit := range product.Subreddits {
		result, err := s.posts.Fetch(ctx, subreddit, s.postLimit)
		if err != nil {
			s.log.Error().Err(err).Str("product", product.ID).Str("subreddit", subreddit).Msg("не удалось выгрузить посты")
			continue
		}

		matched := domain.FilterByKeywords(result.Posts, product.Keywords)
		stats.PostsFound += len(matched)
		metrics.PostsFoundTotal.Add(float64(len(matched)))

		for _, post := range matched {
			if err := ctx.Err(); err != nil {
				return
			}
			s.processPost(ctx, product, productCtx, persona, chatID, post, stats)
		}
	}
}

// processPost ведёт один пост через дедупликацию, классификацию, черновик и
// сохранение. Любая ошибка пропускает только этот пост.
func (s *Service) processPost(ctx context.Context, product domain.Product, productCtx domain.ProductContext, persona domain.Persona, chatID int64, post domain.RedditPost, stats *domain.RunStats) {
	exists, err := s.mentions.Exists(ctx, product.ID, post.ID)
	if err != nil {
		// Fail-open: при недоступной проверке обрабатываем пост, дубль поймает
		// уникальный индекс при вставке.
		s.log.Error().Err(err).Str("post", post.ID).Msg("проверка дубликата не удалась, продолжаем")
		exists = false
	}
	if exists {
		return
	}

	postCtx := domain.PostContent{Title: post.Title, Content: post.Selftext}
	classification, err := s.classifier.Classify(ctx, postCtx, productCtx)
	if err != nil {
		s.log.Error().Err(err).Str("post", post.ID).Str("product", product.ID).Msg("классификация не удалась, пост пропущен")
		return
	}
	if classification.Intent == domain.IntentNotRelevant {
		return
	}

	var draft *string
	if reply, err := s.drafter.Draft(ctx, postCtx, productCtx, persona); err != nil {
		// Упоминание ценно и без черновика: сохраняем с пустым draft_reply.
		s.log.Error().Err(err).Str("post", post.ID).Msg("генерация черновика не удалась")
	} else {
		draft = &reply
	}

	var content *string
	if post.Selftext != "" {
		content = &post.Selftext
	}
	mention, err := s.mentions.Create(ctx, domain.CreateMentionInput{
		ProductID:       product.ID,
		UserID:          product.UserID,
		RedditPostID:    post.ID,
		RedditPermalink: permalinkURL(post.Permalink),
		RedditTitle:     post.Title,
		RedditContent:   content,
		RedditAuthor:    post.Author,
		RedditSubreddit: post.Subreddit,
		RedditCreatedAt: post.CreatedUTC,
		Intent:          classification.Intent,
		Confidence:      classification.Confidence,
		DraftReply:      draft,
	})
	if err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			s.log.Debug().Str("post", post.ID).Msg("упоминание уже создано параллельно")
			return
		}
		s.log.Error().Err(err).Str("post", post.ID).Msg("не удалось сохранить упоминание")
		return
	}
	stats.MentionsCreated++
	metrics.MentionsCreatedTotal.Inc()

	if chatID == 0 {
		return
	}
	if err := s.notifier.Notify(ctx, chatID, mention); err != nil {
		s.log.Error().Err(err).Str("mention", mention.ID).Int64("chat", chatID).Msg("не удалось отправить уведомление")
	}
}

func permalinkURL(permalink string) string {
	if permalink == "" {
		return permalink
	}
	if permalink[0] == '/' {
		return "https://reddit.com" + permalink
	}
	return permalink
}
