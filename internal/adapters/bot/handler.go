package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"reddit-lead-bot/internal/domain"
	"reddit-lead-bot/internal/infra/metrics"
	"reddit-lead-bot/internal/usecase/connect"
	"reddit-lead-bot/internal/usecase/mentions"
)

type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Handler обслуживает вебхук бота: привязку аккаунта и кнопки упоминаний.
type Handler struct {
	bot       botAPI
	log       zerolog.Logger
	connectUC *connect.Service
	mentionUC *mentions.Service
	conns     domain.ConnectionRepo
	notifier  domain.Notifier
}

// NewHandler создаёт обработчик.
func NewHandler(bot botAPI, log zerolog.Logger, connectUC *connect.Service, mentionUC *mentions.Service, conns domain.ConnectionRepo, notifier domain.Notifier) *Handler {
	return &Handler{
		bot:       bot,
		log:       log,
		connectUC: connectUC,
		mentionUC: mentionUC,
		conns:     conns,
		notifier:  notifier,
	}
}

// HandleUpdate обрабатывает входящий апдейт.
func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message != nil {
		h.handleMessage(ctx, upd.Message)
	} else if upd.CallbackQuery != nil {
		h.handleCallback(ctx, upd.CallbackQuery)
	}
}

func (h *Handler) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	text := strings.TrimSpace(msg.Text)
	switch {
	case strings.HasPrefix(text, "/start"):
		payload := strings.TrimSpace(strings.TrimPrefix(text, "/start"))
		h.handleStart(ctx, msg, payload)
	case strings.HasPrefix(text, "/help"):
		h.reply(msg.Chat.ID, h.buildHelpMessage())
	default:
		h.reply(msg.Chat.ID, "Неизвестная команда. Используйте /help")
	}
}

// handleStart завершает привязку по одноразовому токену из deep link.
func (h *Handler) handleStart(ctx context.Context, msg *tgbotapi.Message, token string) {
	if msg.From == nil {
		h.reply(msg.Chat.ID, "Не удалось определить пользователя")
		return
	}
	if token == "" {
		h.reply(msg.Chat.ID, h.buildWelcomeMessage())
		return
	}
	_, err := h.connectUC.Complete(ctx, token, msg.Chat.ID, msg.From.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			h.reply(msg.Chat.ID, "Ссылка недействительна или истекла. Запросите новую в настройках приложения.")
			return
		}
		h.log.Error().Err(err).Int64("chat", msg.Chat.ID).Msg("не удалось завершить привязку")
		h.reply(msg.Chat.ID, "Не удалось завершить привязку, попробуйте ещё раз")
		return
	}
	h.reply(msg.Chat.ID, strings.Join([]string{
		"✅ Telegram подключён!",
		"",
		"Теперь сюда будут приходить уведомления о новых возможностях ответить на Reddit.",
		"Под каждым уведомлением — кнопки: одобрить черновик, перегенерировать его или отклонить упоминание.",
	}, "\n"))
}

func (h *Handler) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	action, mentionID, ok := parseCallback(cb.Data)
	if ok && cb.Message != nil {
		h.dispatchAction(ctx, cb, action, mentionID)
	}
	// На callback отвечаем всегда, иначе кнопка «зависает» у пользователя.
	start := time.Now()
	_, err := h.bot.Request(tgbotapi.NewCallback(cb.ID, ""))
	metrics.ObserveNetworkRequest("telegram_bot", "answer_callback", strconv.FormatInt(cb.From.ID, 10), start, err)
	if err != nil {
		h.log.Error().Err(err).Msg("не удалось ответить на callback")
	}
}

func (h *Handler) dispatchAction(ctx context.Context, cb *tgbotapi.CallbackQuery, action, mentionID string) {
	chatID := cb.Message.Chat.ID

	// Владельца определяем по привязке чата: callback не несёт идентификатор
	// пользователя приложения.
	conn, err := h.conns.GetConnectionByChat(ctx, chatID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			h.reply(chatID, "Чат не привязан к аккаунту. Отправьте /start из настроек приложения.")
			return
		}
		h.log.Error().Err(err).Int64("chat", chatID).Msg("не удалось получить привязку чата")
		h.reply(chatID, "Не удалось обработать действие, попробуйте ещё раз")
		return
	}

	switch action {
	case "approve":
		h.handleApprove(ctx, chatID, cb.Message.MessageID, conn.UserID, mentionID)
	case "regen":
		h.handleRegenerate(ctx, chatID, conn.UserID, mentionID)
	case "discard":
		h.handleDiscard(ctx, chatID, cb.Message.MessageID, conn.UserID, mentionID)
	default:
		h.log.Warn().Str("action", action).Msg("неизвестное действие callback")
	}
}

func (h *Handler) handleApprove(ctx context.Context, chatID int64, messageID int, ownerID, mentionID string) {
	if err := h.mentionUC.Approve(ctx, mentionID, ownerID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			h.reply(chatID, "Упоминание не найдено")
			return
		}
		h.log.Error().Err(err).Str("mention", mentionID).Msg("не удалось одобрить упоминание")
		h.reply(chatID, "Не удалось одобрить, попробуйте ещё раз")
		return
	}
	h.removeKeyboard(chatID, messageID)
	h.reply(chatID, "✅ Черновик одобрен. Скопируйте ответ и опубликуйте его на Reddit.")
}

func (h *Handler) handleDiscard(ctx context.Context, chatID int64, messageID int, ownerID, mentionID string) {
	if err := h.mentionUC.Discard(ctx, mentionID, ownerID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			h.reply(chatID, "Упоминание не найдено")
			return
		}
		h.log.Error().Err(err).Str("mention", mentionID).Msg("не удалось отклонить упоминание")
		h.reply(chatID, "Не удалось отклонить, попробуйте ещё раз")
		return
	}
	h.removeKeyboard(chatID, messageID)
	h.reply(chatID, "🗑 Упоминание отклонено")
}

func (h *Handler) handleRegenerate(ctx context.Context, chatID int64, ownerID, mentionID string) {
	mention, attempt, err := h.mentionUC.Regenerate(ctx, mentionID, ownerID)
	if err != nil {
		switch {
		case errors.Is(err, mentions.ErrRegenLimit):
			h.reply(chatID, fmt.Sprintf("Лимит перегенераций (%d) исчерпан. Одобрите или отклоните текущий вариант.", domain.RegenerationLimit))
		case errors.Is(err, domain.ErrNotFound):
			h.reply(chatID, "Упоминание не найдено")
		case errors.Is(err, domain.ErrRegenConflict):
			h.reply(chatID, "Черновик уже обновляется, попробуйте ещё раз")
		default:
			h.log.Error().Err(err).Str("mention", mentionID).Msg("не удалось перегенерировать черновик")
			h.reply(chatID, "Не удалось перегенерировать черновик, попробуйте ещё раз")
		}
		return
	}
	// Новый вариант приходит отдельным сообщением со своими кнопками.
	if err := h.notifier.NotifyAttempt(ctx, chatID, mention, attempt); err != nil {
		h.log.Error().Err(err).Str("mention", mentionID).Msg("не удалось отправить новый вариант")
		h.reply(chatID, "Черновик обновлён, но сообщение не дошло. Откройте упоминание в приложении.")
	}
}

// removeKeyboard убирает кнопки у обработанного сообщения, чтобы исключить
// повторные нажатия.
func (h *Handler) removeKeyboard(chatID int64, messageID int) {
	edit := tgbotapi.NewEditMessageReplyMarkup(chatID, messageID, tgbotapi.InlineKeyboardMarkup{
		InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{},
	})
	start := time.Now()
	_, err := h.bot.Request(edit)
	metrics.ObserveNetworkRequest("telegram_bot", "remove_keyboard", strconv.FormatInt(chatID, 10), start, err)
	if err != nil {
		h.log.Error().Err(err).Int64("chat", chatID).Msg("не удалось убрать клавиатуру")
	}
}

// parseCallback разбирает данные кнопки формата action:mentionID.
func parseCallback(data string) (action, mentionID string, ok bool) {
	parts := strings.SplitN(data, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func (h *Handler) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	start := time.Now()
	_, err := h.bot.Send(msg)
	metrics.ObserveNetworkRequest("telegram_bot", "send_message", strconv.FormatInt(chatID, 10), start, err)
	if err != nil {
		h.log.Error().Err(err).Msg("не удалось отправить сообщение")
	}
}

func (h *Handler) buildWelcomeMessage() string {
	return strings.Join([]string{
		"👋 Это бот уведомлений о возможностях ответить на Reddit.",
		"",
		"Чтобы получать уведомления, привяжите аккаунт:",
		"1. Откройте настройки приложения.",
		"2. Нажмите «Подключить Telegram».",
		"3. Перейдите по ссылке — привязка завершится автоматически.",
	}, "\n")
}

func (h *Handler) buildHelpMessage() string {
	return strings.Join([]string{
		"📖 Как это работает:",
		"",
		"Бот присылает найденные посты Reddit, где уместно рассказать о вашем продукте, вместе с черновиком ответа.",
		"",
		"Кнопки под уведомлением:",
		"• ✅ Одобрить — черновик готов к публикации.",
		"• 🔄 Перегенерировать — запросить новый вариант (до 3 раз).",
		"• 🗑 Отклонить — скрыть упоминание.",
		"",
		"Привязка аккаунта выполняется по ссылке из настроек приложения.",
	}, "\n")
}
