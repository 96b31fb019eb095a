package domain

import "time"

// Intent описывает намерение автора поста, определённое классификатором.
type Intent string

const (
	// IntentPainPoint — автор описывает проблему, которую решает продукт.
	IntentPainPoint Intent = "pain_point"
	// IntentRecommendationRequest — автор просит порекомендовать инструмент.
	IntentRecommendationRequest Intent = "recommendation_request"
	// IntentNotRelevant — пост не относится к продукту. В БД не сохраняется.
	IntentNotRelevant Intent = "not_relevant"
)

// MentionStatus описывает состояние упоминания в жизненном цикле одобрения.
type MentionStatus string

const (
	MentionStatusPending   MentionStatus = "pending"
	MentionStatusApproved  MentionStatus = "approved"
	MentionStatusDiscarded MentionStatus = "discarded"
	// MentionStatusRegenerated объявлен в схеме, но живой переход regenerate
	// возвращает упоминание в pending с новым черновиком и счётчиком.
	MentionStatusRegenerated MentionStatus = "regenerated"
)

// ValidStatus сообщает, входит ли значение в допустимый набор статусов.
func ValidStatus(s MentionStatus) bool {
	switch s {
	case MentionStatusPending, MentionStatusApproved, MentionStatusDiscarded, MentionStatusRegenerated:
		return true
	default:
		return false
	}
}

// RegenerationLimit — максимум перегенераций черновика на одно упоминание.
const RegenerationLimit = 3

// Product описывает отслеживаемый продукт пользователя.
type Product struct {
	ID          string
	UserID      string
	Name        string
	Description string
	URL         string
	Keywords    []string
	Subreddits  []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Persona хранит голос пользователя для генерации ответов. Не более одной на пользователя.
type Persona struct {
	Expertise      string
	Tone           string
	PhrasesToAvoid string
	TargetAudience string
}

// RedditPost — пост из выдачи Reddit. Не персистится, превращается в Mention.
type RedditPost struct {
	ID          string
	Title       string
	Selftext    string
	Author      string
	Subreddit   string
	Permalink   string
	CreatedUTC  time.Time
	Score       int
	NumComments int
	IsSelf      bool
}

// Mention — обнаруженная возможность ответить на пост Reddit.
type Mention struct {
	ID                string
	ProductID         string
	UserID            string
	RedditPostID      string
	RedditPermalink   string
	RedditTitle       string
	RedditContent     *string
	RedditAuthor      string
	RedditSubreddit   string
	RedditCreatedAt   time.Time
	Intent            Intent
	Confidence        int
	DraftReply        *string
	Status            MentionStatus
	RegenerationCount int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// CreateMentionInput — данные для вставки нового упоминания.
type CreateMentionInput struct {
	ProductID       string
	UserID          string
	RedditPostID    string
	RedditPermalink string
	RedditTitle     string
	RedditContent   *string
	RedditAuthor    string
	RedditSubreddit string
	RedditCreatedAt time.Time
	Intent          Intent
	Confidence      int
	DraftReply      *string
}

// MentionFilter ограничивает выборку упоминаний.
type MentionFilter struct {
	Status    MentionStatus
	ProductID string
}

// TelegramConnection связывает пользователя с чатом Telegram.
type TelegramConnection struct {
	UserID         string
	TelegramChatID int64
	TelegramUserID int64
	CreatedAt      time.Time
}

// RunStats — статистика одного прогона мониторинга.
type RunStats struct {
	Products        int `json:"products"`
	PostsFound      int `json:"posts_found"`
	MentionsCreated int `json:"mentions_created"`
}

// MonitoringState — singleton-запись о последнем прогоне. Перезаписывается целиком.
type MonitoringState struct {
	LastCheckedAt time.Time
	LastRunStats  RunStats
}

// ProductDetails — результат извлечения данных продукта из текста сайта.
type ProductDetails struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
	Subreddits  []string `json:"subreddits"`
}
