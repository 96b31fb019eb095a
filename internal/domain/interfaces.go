package domain

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound возвращается, когда запись отсутствует или принадлежит другому
// пользователю: для вызывающего эти случаи неразличимы.
var ErrNotFound = errors.New("запись не найдена")

// ErrRegenConflict возвращается, когда условное обновление черновика не прошло:
// счётчик перегенераций изменился параллельно или достиг лимита.
var ErrRegenConflict = errors.New("конфликт обновления черновика")

// ErrDuplicate возвращается при нарушении уникальности (product_id, reddit_post_id):
// страховка от двойной вставки, когда проверка Exists сработала fail-open.
var ErrDuplicate = errors.New("упоминание уже существует")

// FetchResult — результат выгрузки постов сабреддита.
type FetchResult struct {
	Posts  []RedditPost
	Source string
}

// PostSource выгружает свежие посты сабреддита. Несуществующий или закрытый
// сабреддит — не ошибка: возвращается пустой список.
type PostSource interface {
	Fetch(ctx context.Context, subreddit string, limit int) (FetchResult, error)
}

// Classification — структурированный ответ классификатора намерений.
type Classification struct {
	Intent     Intent
	Confidence int
	Reasoning  string
}

// ProductContext — контекст продукта для AI-вызовов.
type ProductContext struct {
	Name        string
	Description string
	URL         string
	Keywords    []string
}

// PostContent — заголовок и тело поста для AI-вызовов.
type PostContent struct {
	Title   string
	Content string
}

// IntentClassifier определяет намерение поста относительно продукта.
type IntentClassifier interface {
	Classify(ctx context.Context, post PostContent, product ProductContext) (Classification, error)
}

// ReplyDrafter генерирует черновик ответа в голосе персоны.
type ReplyDrafter interface {
	Draft(ctx context.Context, post PostContent, product ProductContext, persona Persona) (string, error)
}

// ProductExtractor превращает нормализованный текст сайта в данные продукта.
type ProductExtractor interface {
	Extract(ctx context.Context, websiteContent string) (ProductDetails, error)
}

// WebContentFetcher возвращает нормализованный текст страницы по URL.
// Реализация скрейпинга — внешний коллаборатор.
type WebContentFetcher interface {
	FetchContent(ctx context.Context, url string) (string, error)
}

// MentionRepo управляет упоминаниями. Все операции с ownerID встраивают
// проверку владельца в сам запрос: чужая запись неотличима от отсутствующей.
type MentionRepo interface {
	Exists(ctx context.Context, productID, redditPostID string) (bool, error)
	Create(ctx context.Context, input CreateMentionInput) (Mention, error)
	GetByID(ctx context.Context, id, ownerID string) (Mention, error)
	List(ctx context.Context, ownerID string, filter MentionFilter) ([]Mention, error)
	UpdateStatus(ctx context.Context, id, ownerID string, status MentionStatus) error
	// UpdateDraft выполняет compare-and-swap: обновление проходит только если
	// текущий счётчик равен newCount-1 и не достиг лимита.
	UpdateDraft(ctx context.Context, id, ownerID, draft string, newCount int) error
}

// ProductRepo читает продукты. Создание и редактирование — внешний коллаборатор.
type ProductRepo interface {
	ListProducts(ctx context.Context) ([]Product, error)
	GetProduct(ctx context.Context, id string) (Product, error)
}

// PersonaRepo читает персону пользователя. Отсутствие персоны — не ошибка.
type PersonaRepo interface {
	GetPersona(ctx context.Context, userID string) (Persona, bool, error)
}

// ConnectionRepo управляет привязками Telegram-чатов.
type ConnectionRepo interface {
	UpsertConnection(ctx context.Context, conn TelegramConnection) error
	GetConnectionByUser(ctx context.Context, userID string) (TelegramConnection, error)
	GetConnectionByChat(ctx context.Context, chatID int64) (TelegramConnection, error)
}

// MonitoringStateRepo перезаписывает singleton-состояние мониторинга.
type MonitoringStateRepo interface {
	UpsertState(ctx context.Context, state MonitoringState) error
	GetState(ctx context.Context) (MonitoringState, error)
}

// Notifier доставляет интерактивные уведомления об упоминаниях.
type Notifier interface {
	Notify(ctx context.Context, chatID int64, mention Mention) error
	// NotifyAttempt отправляет новое сообщение с номером попытки перегенерации.
	NotifyAttempt(ctx context.Context, chatID int64, mention Mention, attempt int) error
}

// TokenStore хранит одноразовые токены привязки Telegram.
type TokenStore interface {
	Issue(ctx context.Context, userID string, ttl time.Duration) (string, error)
	// Consume атомарно читает и удаляет токен. Истёкший или неизвестный токен
	// возвращает ErrNotFound.
	Consume(ctx context.Context, token string) (string, error)
}
