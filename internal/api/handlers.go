package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/akarpov/gametrade/internal/chat"
	"github.com/akarpov/gametrade/internal/media"
	"github.com/akarpov/gametrade/internal/presence"
	"github.com/akarpov/gametrade/internal/types"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type CreateConversationRequest struct {
	PeerUserId int `json:"peer_user_id"`
}

type CreateConversationResponse struct {
	ConversationId int    `json:"conversation_id"`
	ExternalId     string `json:"external_id"`
	IsNew          bool   `json:"is_new"`
}

type SendMessageRequest struct {
	Content string `json:"content"`
}

type NewMessagesResponse struct {
	Messages      []types.Message `json:"messages"`
	IsTyping      bool            `json:"is_typing"`
	CurrentUserId int             `json:"current_user_id"`
}

func (s *App) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *App) healthCheck(w http.ResponseWriter, _ *http.Request) {
	if err := s.db.Ping(); err != nil {
		s.log.Println("health check:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// heartbeat applies a presence action for the caller. Storage failures are
// logged but still answered with 204: a failed heartbeat must never surface
// to the client.
func (s *App) heartbeat(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	action, err := presence.ParseAction(r.URL.Query().Get("action"))
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.tracker.Touch(userId, time.Now().UTC(), action); err != nil {
		s.log.Println("heartbeat touch:", err)
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *App) createConversation(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if _, err := s.db.GetAccountById(req.PeerUserId); err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	conv, isNew, err := s.chat.GetOrCreate(userId, req.PeerUserId)
	if err != nil {
		errResp := chatError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	status := http.StatusOK
	if isNew {
		status = http.StatusCreated
	}

	s.writeJson(w, status, CreateConversationResponse{
		ConversationId: conv.Id,
		ExternalId:     conv.ExternalId,
		IsNew:          isNew,
	})
}

func (s *App) listConversations(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	convs, err := s.chat.ListForUser(userId)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, convs)
}

func (s *App) conversationId(r *http.Request) (int, error) {
	return strconv.Atoi(r.PathValue("id"))
}

func (s *App) getMessages(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	convId, err := s.conversationId(r)
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	unreadOnly := r.URL.Query().Get("unread_only") == "true"

	messages, err := s.chat.FetchMessages(convId, userId, unreadOnly)
	if err != nil {
		errResp := chatError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	apiMessages := make([]types.Message, 0, len(messages))
	for _, msg := range messages {
		apiMessages = append(apiMessages, chat.MessageToAPI(msg))
	}

	s.writeJson(w, http.StatusOK, apiMessages)
}

func (s *App) getNewMessages(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	convId, err := s.conversationId(r)
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var sinceId int
	if sinceStr := r.URL.Query().Get("last_message_id"); sinceStr != "" {
		sinceId, err = strconv.Atoi(sinceStr)
		if err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	messages, err := s.chat.PollNew(convId, userId, sinceId)
	if err != nil {
		errResp := chatError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	resp := NewMessagesResponse{
		Messages:      make([]types.Message, 0, len(messages)),
		IsTyping:      false, // typing state has no transport yet
		CurrentUserId: userId,
	}
	for _, msg := range messages {
		resp.Messages = append(resp.Messages, chat.MessageToAPI(msg))
	}

	s.writeJson(w, http.StatusOK, resp)
}

func (s *App) sendMessage(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	convId, err := s.conversationId(r)
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if strings.TrimSpace(req.Content) == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	msg, err := s.chat.PostMessage(convId, userId, req.Content)
	if err != nil {
		errResp := chatError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, chat.MessageToAPI(msg))
}

func (s *App) sendVoiceMessage(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	convId, err := s.conversationId(r)
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, media.MaxVoicePayloadBytes)
	if err := r.ParseMultipartForm(media.MaxVoicePayloadBytes); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	file, header, err := r.FormFile("voice")
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	defer file.Close()

	duration, err := strconv.Atoi(r.FormValue("duration"))
	if err != nil || duration <= 0 {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	name, err := s.media.Save(file, filepath.Ext(header.Filename))
	if err != nil {
		s.log.Println("save voice payload:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	msg, err := s.chat.PostVoiceMessage(convId, userId, name, duration)
	if err != nil {
		errResp := chatError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, chat.MessageToAPI(msg))
}

func (s *App) messageStatuses(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	convId, err := s.conversationId(r)
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	statuses, err := s.chat.MessageStatuses(convId, userId)
	if err != nil {
		errResp := chatError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, statuses)
}

func (s *App) markAllRead(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	convId, err := s.conversationId(r)
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	count, err := s.chat.MarkAllRead(convId, userId)
	if err != nil {
		errResp := chatError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, map[string]int{"marked_read": count})
}

func (s *App) markMessageRead(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	msgId, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.chat.MarkMessageRead(msgId, userId); err != nil {
		errResp := chatError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *App) globalUnread(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	count, err := s.chat.GlobalUnread(userId)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, map[string]int{"unread_count": count})
}

// usersStatus re-evaluates each requested presence against the inactivity
// threshold before reporting it, so a stale online row is not reported as
// online.
func (s *App) usersStatus(w http.ResponseWriter, r *http.Request) {
	idsParam := r.URL.Query().Get("ids")
	if idsParam == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var ids []int
	for _, idStr := range strings.Split(idsParam, ",") {
		id, err := strconv.Atoi(strings.TrimSpace(idStr))
		if err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
		ids = append(ids, id)
	}

	presences, err := s.tracker.RefreshAll(ids, time.Now().UTC())
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	statuses := make([]types.PresenceStatus, 0, len(presences))
	for _, p := range presences {
		statuses = append(statuses, types.PresenceStatus{
			UserId:     p.AccountId,
			Online:     p.Online,
			LastSeenAt: p.LastSeenAt,
		})
	}

	s.writeJson(w, http.StatusOK, statuses)
}

func (s *App) onlineCount(w http.ResponseWriter, _ *http.Request) {
	count, err := s.db.CountOnline()
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, map[string]int{"online_count": count})
}

func (s *App) serveMedia(w http.ResponseWriter, r *http.Request) {
	f, err := s.media.Open(r.PathValue("name"))
	if err != nil {
		errResp := NewNotFoundError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := io.Copy(w, f); err != nil {
		s.log.Println("serve media:", err)
	}
}
