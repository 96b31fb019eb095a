package monitor

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"reddit-lead-bot/internal/domain"
)

type stubPosts struct {
	results map[string]domain.FetchResult
	errs    map[string]error
	fetched []string
}

func (s *stubPosts) Fetch(_ context.Context, subreddit string, _ int) (domain.FetchResult, error) {
	s.fetched = append(s.fetched, subreddit)
	if err := s.errs[subreddit]; err != nil {
		return domain.FetchResult{}, err
	}
	return s.results[subreddit], nil
}

type stubClassifier struct {
	result domain.Classification
	err    error
	calls  int
}

func (s *stubClassifier) Classify(context.Context, domain.PostContent, domain.ProductContext) (domain.Classification, error) {
	s.calls++
	return s.result, s.err
}

type stubDrafter struct {
	reply string
	err   error
	calls int
}

func (s *stubDrafter) Draft(context.Context, domain.PostContent, domain.ProductContext, domain.Persona) (string, error) {
	s.calls++
	return s.reply, s.err
}

type stubMentions struct {
	existing  map[string]bool
	existsErr error
	createErr error
	created   []domain.CreateMentionInput
}

func (s *stubMentions) Exists(_ context.Context, productID, postID string) (bool, error) {
	if s.existsErr != nil {
		return false, s.existsErr
	}
	return s.existing[productID+"/"+postID], nil
}

func (s *stubMentions) Create(_ context.Context, input domain.CreateMentionInput) (domain.Mention, error) {
	if s.createErr != nil {
		return domain.Mention{}, s.createErr
	}
	s.created = append(s.created, input)
	return domain.Mention{
		ID:           fmt.Sprintf("m-%d", len(s.created)),
		ProductID:    input.ProductID,
		UserID:       input.UserID,
		RedditPostID: input.RedditPostID,
		RedditTitle:  input.RedditTitle,
		DraftReply:   input.DraftReply,
		Status:       domain.MentionStatusPending,
	}, nil
}

func (s *stubMentions) GetByID(context.Context, string, string) (domain.Mention, error) {
	return domain.Mention{}, domain.ErrNotFound
}

func (s *stubMentions) List(context.Context, string, domain.MentionFilter) ([]domain.Mention, error) {
	return nil, nil
}

func (s *stubMentions) UpdateStatus(context.Context, string, string, domain.MentionStatus) error {
	return nil
}

func (s *stubMentions) UpdateDraft(context.Context, string, string, string, int) error { return nil }

type stubProducts struct {
	products []domain.Product
	err      error
}

func (s *stubProducts) ListProducts(context.Context) ([]domain.Product, error) {
	return s.products, s.err
}

func (s *stubProducts) GetProduct(_ context.Context, id string) (domain.Product, error) {
	for _, p := range s.products {
		if p.ID == id {
			return p, nil
		}
	}
	return domain.Product{}, domain.ErrNotFound
}

type stubPersonas struct {
	persona domain.Persona
	found   bool
	err     error
}

func (s *stubPersonas) GetPersona(context.Context, string) (domain.Persona, bool, error) {
	return s.persona, s.found, s.err
}

type stubConns struct {
	conn domain.TelegramConnection
	err  error
}

func (s *stubConns) UpsertConnection(context.Context, domain.TelegramConnection) error { return nil }

func (s *stubConns) GetConnectionByUser(context.Context, string) (domain.TelegramConnection, error) {
	if s.err != nil {
		return domain.TelegramConnection{}, s.err
	}
	return s.conn, nil
}

func (s *stubConns) GetConnectionByChat(context.Context, int64) (domain.TelegramConnection, error) {
	return domain.TelegramConnection{}, domain.ErrNotFound
}

type stubState struct {
	saved []domain.MonitoringState
	err   error
}

func (s *stubState) UpsertState(_ context.Context, state domain.MonitoringState) error {
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, state)
	return nil
}

func (s *stubState) GetState(context.Context) (domain.MonitoringState, error) {
	return domain.MonitoringState{}, domain.ErrNotFound
}

type stubNotifier struct {
	chats    []int64
	mentions []domain.Mention
	err      error
}

func (s *stubNotifier) Notify(_ context.Context, chatID int64, mention domain.Mention) error {
	if s.err != nil {
		return s.err
	}
	s.chats = append(s.chats, chatID)
	s.mentions = append(s.mentions, mention)
	return nil
}

func (s *stubNotifier) NotifyAttempt(ctx context.Context, chatID int64, mention domain.Mention, _ int) error {
	return s.Notify(ctx, chatID, mention)
}

type fixture struct {
	posts      *stubPosts
	classifier *stubClassifier
	drafter    *stubDrafter
	mentions   *stubMentions
	products   *stubProducts
	personas   *stubPersonas
	conns      *stubConns
	state      *stubState
	notifier   *stubNotifier
}

func newFixture() *fixture {
	product := domain.Product{
		ID:         "p-1",
		UserID:     "u-1",
		Name:       "InvoiceBot",
		Keywords:   []string{"invoice"},
		Subreddits: []string{"smallbusiness"},
	}
	post := domain.RedditPost{
		ID:         "post-1",
		Title:      "Drowning in invoice paperwork",
		Selftext:   "any tool recommendations?",
		Subreddit:  "smallbusiness",
		Permalink:  "/r/smallbusiness/comments/post-1/",
		CreatedUTC: time.Now().UTC(),
	}
	return &fixture{
		posts:      &stubPosts{results: map[string]domain.FetchResult{"smallbusiness": {Posts: []domain.RedditPost{post}, Source: "public"}}, errs: map[string]error{}},
		classifier: &stubClassifier{result: domain.Classification{Intent: domain.IntentPainPoint, Confidence: 80}},
		drafter:    &stubDrafter{reply: "try InvoiceBot"},
		mentions:   &stubMentions{existing: map[string]bool{}},
		products:   &stubProducts{products: []domain.Product{product}},
		personas:   &stubPersonas{},
		conns:      &stubConns{conn: domain.TelegramConnection{UserID: "u-1", TelegramChatID: 500}},
		state:      &stubState{},
		notifier:   &stubNotifier{},
	}
}

func (f *fixture) service() *Service {
	return NewService(Deps{
		Posts:      f.posts,
		Classifier: f.classifier,
		Drafter:    f.drafter,
		Mentions:   f.mentions,
		Products:   f.products,
		Personas:   f.personas,
		Conns:      f.conns,
		State:      f.state,
		Notifier:   f.notifier,
	}, zerolog.Nop())
}

func TestRunCreatesMentionAndNotifies(t *testing.T) {
	f := newFixture()
	stats, err := f.service().Run(context.Background())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if stats.Products != 1 || stats.PostsFound != 1 || stats.MentionsCreated != 1 {
		t.Fatalf("неожиданная статистика: %+v", stats)
	}
	if len(f.mentions.created) != 1 {
		t.Fatalf("ожидали 1 упоминание, получили %d", len(f.mentions.created))
	}
	created := f.mentions.created[0]
	if created.DraftReply == nil || *created.DraftReply != "try InvoiceBot" {
		t.Fatal("ожидали черновик в упоминании")
	}
	if created.RedditPermalink != "https://reddit.com/r/smallbusiness/comments/post-1/" {
		t.Fatalf("постоянная ссылка должна быть абсолютной: %s", created.RedditPermalink)
	}
	if len(f.notifier.chats) != 1 || f.notifier.chats[0] != 500 {
		t.Fatalf("ожидали уведомление в чат 500, получили %v", f.notifier.chats)
	}
	if len(f.state.saved) != 1 || f.state.saved[0].LastRunStats != stats {
		t.Fatal("состояние прогона должно перезаписываться статистикой")
	}
}

func TestRunSkipsExistingMention(t *testing.T) {
	f := newFixture()
	f.mentions.existing["p-1/post-1"] = true

	stats, err := f.service().Run(context.Background())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if stats.MentionsCreated != 0 || len(f.mentions.created) != 0 {
		t.Fatal("дубликат не должен создавать упоминание")
	}
	// Пост отсеян до классификации: AI-вызовы на дубликаты не тратятся.
	if f.classifier.calls != 0 {
		t.Fatalf("классификатор не должен вызываться, вызовов: %d", f.classifier.calls)
	}
}

func TestRunFailOpenOnExistsError(t *testing.T) {
	f := newFixture()
	f.mentions.existsErr = errors.New("база недоступна")

	stats, err := f.service().Run(context.Background())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	// Ошибка проверки дубликата не блокирует обработку: дубль поймает индекс.
	if stats.MentionsCreated != 1 {
		t.Fatalf("ожидали создание упоминания, статистика: %+v", stats)
	}
}

func TestRunSkipsNotRelevant(t *testing.T) {
	f := newFixture()
	f.classifier.result = domain.Classification{Intent: domain.IntentNotRelevant}

	stats, err := f.service().Run(context.Background())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if stats.MentionsCreated != 0 || f.drafter.calls != 0 {
		t.Fatal("нерелевантный пост не должен доходить до генерации")
	}
}

func TestRunClassifierErrorSkipsPost(t *testing.T) {
	f := newFixture()
	f.classifier.err = errors.New("модель недоступна")

	stats, err := f.service().Run(context.Background())
	if err != nil {
		t.Fatalf("ошибка классификации не должна валить прогон: %v", err)
	}
	if stats.MentionsCreated != 0 || len(f.mentions.created) != 0 {
		t.Fatal("пост с ошибкой классификации пропускается без упоминания")
	}
}

func TestRunDrafterErrorSavesMentionWithoutDraft(t *testing.T) {
	f := newFixture()
	f.drafter.err = errors.New("модель недоступна")

	stats, err := f.service().Run(context.Background())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if stats.MentionsCreated != 1 || len(f.mentions.created) != 1 {
		t.Fatal("упоминание сохраняется и без черновика")
	}
	if f.mentions.created[0].DraftReply != nil {
		t.Fatal("черновик должен быть пустым при ошибке генерации")
	}
	if len(f.notifier.chats) != 1 {
		t.Fatal("уведомление отправляется и без черновика")
	}
}

func TestRunWithoutConnectionSkipsNotification(t *testing.T) {
	f := newFixture()
	f.conns.err = domain.ErrNotFound

	stats, err := f.service().Run(context.Background())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if stats.MentionsCreated != 1 {
		t.Fatal("упоминание создаётся независимо от привязки Telegram")
	}
	if len(f.notifier.chats) != 0 {
		t.Fatal("без привязки уведомления не отправляются")
	}
}

func TestRunProductsErrorAborts(t *testing.T) {
	f := newFixture()
	f.products.err = errors.New("база недоступна")

	if _, err := f.service().Run(context.Background()); err == nil {
		t.Fatal("без списка продуктов прогон должен падать")
	}
}

func TestRunFetchErrorIsolatedPerSubreddit(t *testing.T) {
	f := newFixture()
	f.products.products[0].Subreddits = []string{"broken", "smallbusiness"}
	f.posts.errs["broken"] = errors.New("все источники недоступны")

	stats, err := f.service().Run(context.Background())
	if err != nil {
		t.Fatalf("ошибка одного сабреддита не должна валить прогон: %v", err)
	}
	if stats.MentionsCreated != 1 {
		t.Fatalf("второй сабреддит должен обработаться, статистика: %+v", stats)
	}
	if len(f.posts.fetched) != 2 {
		t.Fatalf("ожидали обход обоих сабреддитов, был %v", f.posts.fetched)
	}
}

func TestRunDuplicateInsertBackstop(t *testing.T) {
	f := newFixture()
	f.mentions.createErr = domain.ErrDuplicate

	stats, err := f.service().Run(context.Background())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if stats.MentionsCreated != 0 || len(f.notifier.chats) != 0 {
		t.Fatal("гонка вставки не должна давать упоминание и уведомление")
	}
}

func TestRunSkipsProductWithoutSubreddits(t *testing.T) {
	f := newFixture()
	f.products.products[0].Subreddits = nil

	stats, err := f.service().Run(context.Background())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(f.posts.fetched) != 0 {
		t.Fatal("продукт без сабреддитов не должен опрашивать Reddit")
	}
	if stats.Products != 1 {
		t.Fatalf("продукт учитывается в статистике: %+v", stats)
	}
}

func TestRunFiltersPostsByKeywords(t *testing.T) {
	f := newFixture()
	f.posts.results["smallbusiness"] = domain.FetchResult{Posts: []domain.RedditPost{
		{ID: "post-1", Title: "Drowning in invoice paperwork"},
		{ID: "post-2", Title: "Totally unrelated rant"},
	}, Source: "public"}

	stats, err := f.service().Run(context.Background())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if stats.PostsFound != 1 {
		t.Fatalf("в статистику попадают только посты после фильтра: %+v", stats)
	}
	if f.classifier.calls != 1 {
		t.Fatalf("классифицируется только отфильтрованный пост, вызовов: %d", f.classifier.calls)
	}
}
