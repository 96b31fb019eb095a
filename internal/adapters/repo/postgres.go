package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"reddit-lead-bot/internal/domain"
	"reddit-lead-bot/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

var (
	_ domain.MentionRepo         = (*Postgres)(nil)
	_ domain.ProductRepo         = (*Postgres)(nil)
	_ domain.PersonaRepo         = (*Postgres)(nil)
	_ domain.ConnectionRepo      = (*Postgres)(nil)
	_ domain.MonitoringStateRepo = (*Postgres)(nil)
)

func (p *Postgres) connCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func (p *Postgres) connCtxWithParent(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return p.connCtx()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

const mentionColumns = `id, product_id, user_id, reddit_post_id, reddit_permalink, reddit_title, reddit_content, reddit_author, reddit_subreddit, reddit_created_at, intent, confidence, draft_reply, status, regeneration_count, created_at, updated_at`

func scanMention(row pgx.Row) (domain.Mention, error) {
	var (
		m       domain.Mention
		content sql.NullString
		draft   sql.NullString
	)
	err := row.Scan(&m.ID, &m.ProductID, &m.UserID, &m.RedditPostID, &m.RedditPermalink, &m.RedditTitle, &content, &m.RedditAuthor, &m.RedditSubreddit, &m.RedditCreatedAt, &m.Intent, &m.Confidence, &draft, &m.Status, &m.RegenerationCount, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return domain.Mention{}, err
	}
	if content.Valid {
		v := content.String
		m.RedditContent = &v
	}
	if draft.Valid {
		v := draft.String
		m.DraftReply = &v
	}
	return m, nil
}

// Exists проверяет наличие упоминания для пары (продукт, пост).
func (p *Postgres) Exists(ctx context.Context, productID, redditPostID string) (bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var exists bool
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT EXISTS (SELECT 1 FROM mentions WHERE product_id=$1 AND reddit_post_id=$2)
`, productID, redditPostID).Scan(&exists)
	metrics.ObserveNetworkRequest("postgres", "mentions_exists", "mentions", start, err)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// Create вставляет упоминание со статусом pending и нулевым счётчиком перегенераций.
func (p *Postgres) Create(ctx context.Context, input domain.CreateMentionInput) (domain.Mention, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var content sql.NullString
	if input.RedditContent != nil {
		content = sql.NullString{String: *input.RedditContent, Valid: true}
	}
	var draft sql.NullString
	if input.DraftReply != nil {
		draft = sql.NullString{String: *input.DraftReply, Valid: true}
	}

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
INSERT INTO mentions (product_id, user_id, reddit_post_id, reddit_permalink, reddit_title, reddit_content, reddit_author, reddit_subreddit, reddit_created_at, intent, confidence, draft_reply, status, regeneration_count)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 'pending', 0)
RETURNING `+mentionColumns+`
`, input.ProductID, input.UserID, input.RedditPostID, input.RedditPermalink, input.RedditTitle, content, input.RedditAuthor, input.RedditSubreddit, input.RedditCreatedAt, input.Intent, input.Confidence, draft)
	mention, err := scanMention(row)
	metrics.ObserveNetworkRequest("postgres", "mentions_insert", "mentions", start, err)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.Mention{}, domain.ErrDuplicate
		}
		return domain.Mention{}, err
	}
	return mention, nil
}

// GetByID возвращает упоминание владельца. Чужая запись неотличима от отсутствующей.
func (p *Postgres) GetByID(ctx context.Context, id, ownerID string) (domain.Mention, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
SELECT `+mentionColumns+` FROM mentions WHERE id=$1 AND user_id=$2
`, id, ownerID)
	mention, err := scanMention(row)
	metrics.ObserveNetworkRequest("postgres", "mentions_get", "mentions", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Mention{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Mention{}, err
	}
	return mention, nil
}

// List возвращает упоминания владельца, новые первыми.
func (p *Postgres) List(ctx context.Context, ownerID string, filter domain.MentionFilter) ([]domain.Mention, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	query := `SELECT ` + mentionColumns + ` FROM mentions WHERE user_id=$1`
	args := []any{ownerID}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status=$%d", len(args))
	}
	if filter.ProductID != "" {
		args = append(args, filter.ProductID)
		query += fmt.Sprintf(" AND product_id=$%d", len(args))
	}
	query += " ORDER BY created_at DESC"

	start := time.Now()
	rows, err := p.pool.Query(ctx, query, args...)
	metrics.ObserveNetworkRequest("postgres", "mentions_list", "mentions", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var mentions []domain.Mention
	for rows.Next() {
		mention, err := scanMention(rows)
		if err != nil {
			return nil, err
		}
		mentions = append(mentions, mention)
	}
	return mentions, rows.Err()
}

// UpdateStatus меняет статус упоминания владельца.
func (p *Postgres) UpdateStatus(ctx context.Context, id, ownerID string, status domain.MentionStatus) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
UPDATE mentions SET status=$3, updated_at=now() WHERE id=$1 AND user_id=$2
`, id, ownerID, status)
	metrics.ObserveNetworkRequest("postgres", "mentions_update_status", "mentions", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateDraft условно записывает новый черновик: обновление проходит только если
// текущий счётчик равен newCount-1 и лимит не достигнут. Это единственное место,
// где требуется атомарность read-modify-write для счётчика.
func (p *Postgres) UpdateDraft(ctx context.Context, id, ownerID, draft string, newCount int) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
UPDATE mentions
SET draft_reply=$3, regeneration_count=$4, status='pending', updated_at=now()
WHERE id=$1 AND user_id=$2 AND regeneration_count=$4-1 AND regeneration_count < $5
`, id, ownerID, draft, newCount, domain.RegenerationLimit)
	metrics.ObserveNetworkRequest("postgres", "mentions_update_draft", "mentions", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRegenConflict
	}
	return nil
}

// ListProducts возвращает все продукты для прогона мониторинга.
func (p *Postgres) ListProducts(ctx context.Context) ([]domain.Product, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, user_id, name, COALESCE(description, ''), COALESCE(url, ''), COALESCE(keywords, '{}'), COALESCE(subreddits, '{}'), created_at, updated_at
FROM products
`)
	metrics.ObserveNetworkRequest("postgres", "products_list", "products", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []domain.Product
	for rows.Next() {
		var product domain.Product
		if err := rows.Scan(&product.ID, &product.UserID, &product.Name, &product.Description, &product.URL, &product.Keywords, &product.Subreddits, &product.CreatedAt, &product.UpdatedAt); err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	return products, rows.Err()
}

// GetProduct возвращает продукт по идентификатору.
func (p *Postgres) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var product domain.Product
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT id, user_id, name, COALESCE(description, ''), COALESCE(url, ''), COALESCE(keywords, '{}'), COALESCE(subreddits, '{}'), created_at, updated_at
FROM products WHERE id=$1
`, id).Scan(&product.ID, &product.UserID, &product.Name, &product.Description, &product.URL, &product.Keywords, &product.Subreddits, &product.CreatedAt, &product.UpdatedAt)
	metrics.ObserveNetworkRequest("postgres", "products_get", "products", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Product{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Product{}, err
	}
	return product, nil
}

// GetPersona возвращает персону пользователя. Её отсутствие — не ошибка.
func (p *Postgres) GetPersona(ctx context.Context, userID string) (domain.Persona, bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var persona domain.Persona
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT COALESCE(expertise, ''), COALESCE(tone, ''), COALESCE(phrases_to_avoid, ''), COALESCE(target_audience, '')
FROM personas WHERE user_id=$1
`, userID).Scan(&persona.Expertise, &persona.Tone, &persona.PhrasesToAvoid, &persona.TargetAudience)
	metrics.ObserveNetworkRequest("postgres", "personas_get", "personas", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Persona{}, false, nil
	}
	if err != nil {
		return domain.Persona{}, false, err
	}
	return persona, true, nil
}

// UpsertConnection сохраняет привязку Telegram-чата пользователя.
func (p *Postgres) UpsertConnection(ctx context.Context, conn domain.TelegramConnection) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO telegram_connections (user_id, telegram_chat_id, telegram_user_id)
VALUES ($1, $2, $3)
ON CONFLICT (user_id) DO UPDATE SET telegram_chat_id = EXCLUDED.telegram_chat_id, telegram_user_id = EXCLUDED.telegram_user_id
`, conn.UserID, conn.TelegramChatID, conn.TelegramUserID)
	metrics.ObserveNetworkRequest("postgres", "connections_upsert", "telegram_connections", start, err)
	return err
}

// GetConnectionByUser возвращает привязку чата по пользователю.
func (p *Postgres) GetConnectionByUser(ctx context.Context, userID string) (domain.TelegramConnection, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var conn domain.TelegramConnection
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT user_id, telegram_chat_id, COALESCE(telegram_user_id, 0), created_at
FROM telegram_connections WHERE user_id=$1
`, userID).Scan(&conn.UserID, &conn.TelegramChatID, &conn.TelegramUserID, &conn.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "connections_get_by_user", "telegram_connections", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.TelegramConnection{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.TelegramConnection{}, err
	}
	return conn, nil
}

// GetConnectionByChat возвращает привязку по идентификатору чата.
func (p *Postgres) GetConnectionByChat(ctx context.Context, chatID int64) (domain.TelegramConnection, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var conn domain.TelegramConnection
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT user_id, telegram_chat_id, COALESCE(telegram_user_id, 0), created_at
FROM telegram_connections WHERE telegram_chat_id=$1
`, chatID).Scan(&conn.UserID, &conn.TelegramChatID, &conn.TelegramUserID, &conn.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "connections_get_by_chat", "telegram_connections", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.TelegramConnection{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.TelegramConnection{}, err
	}
	return conn, nil
}

// UpsertState перезаписывает singleton-состояние мониторинга целиком.
func (p *Postgres) UpsertState(ctx context.Context, state domain.MonitoringState) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	stats, err := json.Marshal(state.LastRunStats)
	if err != nil {
		return fmt.Errorf("marshal run stats: %w", err)
	}

	start := time.Now()
	_, err = p.pool.Exec(ctx, `
INSERT INTO monitoring_state (id, last_checked_at, last_run_stats)
VALUES (1, $1, $2)
ON CONFLICT (id) DO UPDATE SET last_checked_at = EXCLUDED.last_checked_at, last_run_stats = EXCLUDED.last_run_stats
`, state.LastCheckedAt, stats)
	metrics.ObserveNetworkRequest("postgres", "monitoring_state_upsert", "monitoring_state", start, err)
	return err
}

// GetState возвращает состояние последнего прогона.
func (p *Postgres) GetState(ctx context.Context) (domain.MonitoringState, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var (
		state domain.MonitoringState
		stats []byte
	)
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT last_checked_at, last_run_stats FROM monitoring_state WHERE id=1
`).Scan(&state.LastCheckedAt, &stats)
	metrics.ObserveNetworkRequest("postgres", "monitoring_state_get", "monitoring_state", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.MonitoringState{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.MonitoringState{}, err
	}
	if len(stats) > 0 {
		if err := json.Unmarshal(stats, &state.LastRunStats); err != nil {
			return domain.MonitoringState{}, fmt.Errorf("unmarshal run stats: %w", err)
		}
	}
	return state, nil
}
