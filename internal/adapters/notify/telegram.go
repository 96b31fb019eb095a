package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"reddit-lead-bot/internal/domain"
	"reddit-lead-bot/internal/infra/metrics"
)

// SendDelay — обязательная пауза между последовательными отправками:
// жёсткое требование лимитов Telegram, а не оптимизация.
const SendDelay = 1500 * time.Millisecond

// Telegram-сообщение не может превышать 4096 символов; черновик режем раньше,
// чтобы оставить место заголовку и ссылке.
const draftDisplayLimit = 3000

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Dispatcher отправляет интерактивные уведомления об упоминаниях.
type Dispatcher struct {
	bot      sender
	log      zerolog.Logger
	sleep    func(time.Duration)
	now      func() time.Time
	lastSend time.Time
}

// NewDispatcher создаёт диспетчер уведомлений.
func NewDispatcher(bot sender, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{bot: bot, log: logger, sleep: time.Sleep, now: time.Now}
}

// NewDispatcherWithClock создаёт диспетчер с внедрёнными часами для тестов.
func NewDispatcherWithClock(bot sender, logger zerolog.Logger, now func() time.Time, sleep func(time.Duration)) *Dispatcher {
	return &Dispatcher{bot: bot, log: logger, sleep: sleep, now: now}
}

var _ domain.Notifier = (*Dispatcher)(nil)

// Notify отправляет одно уведомление, выдерживая паузу после предыдущей отправки.
func (d *Dispatcher) Notify(ctx context.Context, chatID int64, mention domain.Mention) error {
	return d.send(ctx, chatID, FormatMention(mention, 0), mention.ID)
}

// NotifyAttempt отправляет новое уведомление с номером попытки перегенерации.
func (d *Dispatcher) NotifyAttempt(ctx context.Context, chatID int64, mention domain.Mention, attempt int) error {
	return d.send(ctx, chatID, FormatMention(mention, attempt), mention.ID)
}

// SendBatch отправляет уведомления последовательно. Ошибка отправки логируется
// и не прерывает остальные: доставка best-effort, без очереди повторов.
func (d *Dispatcher) SendBatch(ctx context.Context, chatID int64, mentions []domain.Mention) (sent, failed int) {
	for _, mention := range mentions {
		if err := d.Notify(ctx, chatID, mention); err != nil {
			failed++
			d.log.Error().Err(err).Str("mention", mention.ID).Int64("chat", chatID).Msg("не удалось отправить уведомление")
			continue
		}
		sent++
	}
	return sent, failed
}

func (d *Dispatcher) send(ctx context.Context, chatID int64, text, mentionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.pace()

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	msg.ReplyMarkup = MentionKeyboard(mentionID)

	start := time.Now()
	_, err := d.bot.Send(msg)
	metrics.ObserveNetworkRequest("telegram_bot", "send_mention", fmt.Sprintf("%d", chatID), start, err)
	if err != nil {
		metrics.NotifySendErrors.Inc()
		return fmt.Errorf("отправка уведомления: %w", err)
	}
	d.lastSend = d.now()
	return nil
}

// pace выдерживает не менее SendDelay между последовательными отправками.
func (d *Dispatcher) pace() {
	if d.lastSend.IsZero() {
		return
	}
	elapsed := d.now().Sub(d.lastSend)
	if elapsed < SendDelay {
		d.sleep(SendDelay - elapsed)
	}
}

// FormatMention строит HTML-текст уведомления. attempt > 0 добавляет номер
// варианта после перегенерации.
func FormatMention(mention domain.Mention, attempt int) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("<b>Новая возможность в r/%s</b>\n\n", EscapeHTML(mention.RedditSubreddit)))
	if attempt > 0 {
		b.WriteString(fmt.Sprintf("🔄 Вариант %d из %d\n\n", attempt, domain.RegenerationLimit+1))
	}
	b.WriteString(fmt.Sprintf("<b>%s</b>\n\n", EscapeHTML(mention.RedditTitle)))
	b.WriteString("<b>Предлагаемый ответ:</b>\n")
	if mention.DraftReply != nil && strings.TrimSpace(*mention.DraftReply) != "" {
		b.WriteString(EscapeHTML(clipRunes(*mention.DraftReply, draftDisplayLimit)))
	} else {
		b.WriteString("<i>Черновик не сгенерирован</i>")
	}
	b.WriteString(fmt.Sprintf("\n\n<a href=\"%s\">Открыть на Reddit</a>", mention.RedditPermalink))
	return b.String()
}

// MentionKeyboard возвращает кнопки действий для упоминания.
func MentionKeyboard(mentionID string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Одобрить", "approve:"+mentionID),
			tgbotapi.NewInlineKeyboardButtonData("🔄 Перегенерировать", "regen:"+mentionID),
			tgbotapi.NewInlineKeyboardButtonData("🗑 Отклонить", "discard:"+mentionID),
		),
	)
}

// EscapeHTML экранирует спецсимволы для HTML parse mode Telegram.
func EscapeHTML(text string) string {
	replacer := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return replacer.Replace(text)
}

func clipRunes(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "…"
}
