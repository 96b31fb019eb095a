package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"reddit-lead-bot/internal/domain"
	apphttp "reddit-lead-bot/internal/infra/http"
	"reddit-lead-bot/internal/usecase/connect"
	"reddit-lead-bot/internal/usecase/mentions"
	"reddit-lead-bot/internal/usecase/monitor"
)

type api struct {
	log       zerolog.Logger
	monitorUC *monitor.Service
	mentionUC *mentions.Service
	connectUC *connect.Service
	extractor domain.ProductExtractor
	fetcher   domain.WebContentFetcher
	state     domain.MonitoringStateRepo
}

type mentionDTO struct {
	ID                string               `json:"id"`
	ProductID         string               `json:"product_id"`
	RedditPostID      string               `json:"reddit_post_id"`
	RedditPermalink   string               `json:"reddit_permalink"`
	RedditTitle       string               `json:"reddit_title"`
	RedditContent     *string              `json:"reddit_content"`
	RedditAuthor      string               `json:"reddit_author"`
	RedditSubreddit   string               `json:"reddit_subreddit"`
	RedditCreatedAt   time.Time            `json:"reddit_created_at"`
	Intent            domain.Intent        `json:"intent"`
	Confidence        int                  `json:"confidence"`
	DraftReply        *string              `json:"draft_reply"`
	Status            domain.MentionStatus `json:"status"`
	RegenerationCount int                  `json:"regeneration_count"`
	CreatedAt         time.Time            `json:"created_at"`
	UpdatedAt         time.Time            `json:"updated_at"`
}

func toMentionDTO(m domain.Mention) mentionDTO {
	return mentionDTO{
		ID:                m.ID,
		ProductID:         m.ProductID,
		RedditPostID:      m.RedditPostID,
		RedditPermalink:   m.RedditPermalink,
		RedditTitle:       m.RedditTitle,
		RedditContent:     m.RedditContent,
		RedditAuthor:      m.RedditAuthor,
		RedditSubreddit:   m.RedditSubreddit,
		RedditCreatedAt:   m.RedditCreatedAt,
		Intent:            m.Intent,
		Confidence:        m.Confidence,
		DraftReply:        m.DraftReply,
		Status:            m.Status,
		RegenerationCount: m.RegenerationCount,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

// handleMonitorRun запускает прогон мониторинга. Вызывается планировщиком
// по общему секрету.
func (a *api) handleMonitorRun(w http.ResponseWriter, r *http.Request) {
	stats, err := a.monitorUC.Run(r.Context())
	if err != nil {
		a.log.Error().Err(err).Msg("прогон мониторинга провалился")
		apphttp.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	apphttp.WriteJSON(w, map[string]any{"success": true, "stats": stats})
}

func (a *api) handleListMentions(w http.ResponseWriter, r *http.Request) {
	filter := domain.MentionFilter{
		Status:    domain.MentionStatus(r.URL.Query().Get("status")),
		ProductID: r.URL.Query().Get("product_id"),
	}
	list, err := a.mentionUC.List(r.Context(), apphttp.UserID(r), filter)
	if err != nil {
		if errors.Is(err, mentions.ErrInvalidStatus) {
			apphttp.WriteError(w, http.StatusBadRequest, "недопустимый статус")
			return
		}
		a.log.Error().Err(err).Msg("не удалось получить упоминания")
		apphttp.WriteError(w, http.StatusInternalServerError, "внутренняя ошибка")
		return
	}
	dtos := make([]mentionDTO, 0, len(list))
	for _, m := range list {
		dtos = append(dtos, toMentionDTO(m))
	}
	apphttp.WriteJSON(w, map[string]any{"success": true, "mentions": dtos})
}

func (a *api) handleGetMention(w http.ResponseWriter, r *http.Request) {
	mention, err := a.mentionUC.Get(r.Context(), chi.URLParam(r, "id"), apphttp.UserID(r))
	if err != nil {
		a.writeMentionError(w, err, "не удалось получить упоминание")
		return
	}
	apphttp.WriteJSON(w, map[string]any{"success": true, "mention": toMentionDTO(mention)})
}

func (a *api) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status domain.MentionStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apphttp.WriteError(w, http.StatusBadRequest, "некорректное тело запроса")
		return
	}
	err := a.mentionUC.SetStatus(r.Context(), chi.URLParam(r, "id"), apphttp.UserID(r), body.Status)
	if err != nil {
		if errors.Is(err, mentions.ErrInvalidStatus) {
			apphttp.WriteError(w, http.StatusBadRequest, "недопустимый статус")
			return
		}
		a.writeMentionError(w, err, "не удалось обновить статус")
		return
	}
	apphttp.WriteJSON(w, map[string]any{"success": true})
}

func (a *api) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	mention, attempt, err := a.mentionUC.Regenerate(r.Context(), chi.URLParam(r, "id"), apphttp.UserID(r))
	if err != nil {
		switch {
		case errors.Is(err, mentions.ErrRegenLimit):
			apphttp.WriteError(w, http.StatusConflict, "лимит перегенераций исчерпан")
		case errors.Is(err, domain.ErrRegenConflict):
			apphttp.WriteError(w, http.StatusConflict, "черновик уже обновляется")
		default:
			a.writeMentionError(w, err, "не удалось перегенерировать черновик")
		}
		return
	}
	apphttp.WriteJSON(w, map[string]any{"success": true, "mention": toMentionDTO(mention), "attempt": attempt})
}

func (a *api) handleConnectToken(w http.ResponseWriter, r *http.Request) {
	link, err := a.connectUC.IssueLink(r.Context(), apphttp.UserID(r))
	if err != nil {
		a.log.Error().Err(err).Msg("не удалось выдать токен привязки")
		apphttp.WriteError(w, http.StatusInternalServerError, "внутренняя ошибка")
		return
	}
	apphttp.WriteJSON(w, map[string]any{"success": true, "connect": link})
}

// handleExtract скачивает сайт и извлекает из него данные продукта для
// автозаполнения формы.
func (a *api) handleExtract(w http.ResponseWriter, r *http.Request) {
	var body struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.URL == "" {
		apphttp.WriteError(w, http.StatusBadRequest, "не передан url")
		return
	}
	if parsed, err := url.Parse(body.URL); err != nil || parsed.Scheme == "" || parsed.Host == "" {
		apphttp.WriteError(w, http.StatusBadRequest, "некорректный url")
		return
	}

	content, err := a.fetcher.FetchContent(r.Context(), body.URL)
	if err != nil {
		a.log.Error().Err(err).Str("url", body.URL).Msg("не удалось скачать сайт")
		apphttp.WriteError(w, http.StatusBadGateway, "не удалось получить содержимое сайта")
		return
	}
	details, err := a.extractor.Extract(r.Context(), content)
	if err != nil {
		a.log.Error().Err(err).Str("url", body.URL).Msg("не удалось извлечь данные продукта")
		apphttp.WriteError(w, http.StatusBadGateway, "не удалось извлечь данные продукта")
		return
	}
	apphttp.WriteJSON(w, map[string]any{"success": true, "product": details})
}

func (a *api) handleMonitoringState(w http.ResponseWriter, r *http.Request) {
	state, err := a.state.GetState(r.Context())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			apphttp.WriteJSON(w, map[string]any{"success": true, "state": nil})
			return
		}
		a.log.Error().Err(err).Msg("не удалось получить состояние мониторинга")
		apphttp.WriteError(w, http.StatusInternalServerError, "внутренняя ошибка")
		return
	}
	apphttp.WriteJSON(w, map[string]any{"success": true, "state": map[string]any{
		"last_checked_at": state.LastCheckedAt,
		"last_run_stats":  state.LastRunStats,
	}})
}

func (a *api) writeMentionError(w http.ResponseWriter, err error, logMsg string) {
	if errors.Is(err, domain.ErrNotFound) {
		apphttp.WriteError(w, http.StatusNotFound, "упоминание не найдено")
		return
	}
	a.log.Error().Err(err).Msg(logMsg)
	apphttp.WriteError(w, http.StatusInternalServerError, "внутренняя ошибка")
}
