package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/vietbevis/clothes-shop-chat/internal/auth"
	"github.com/vietbevis/clothes-shop-chat/internal/errs"
	"github.com/vietbevis/clothes-shop-chat/internal/model"
	"github.com/vietbevis/clothes-shop-chat/internal/service"
)

// Chat is the slice of the chat service the HTTP layer needs.
type Chat interface {
	SendMessage(ctx context.Context, senderID, receiverID int64, content string, images []string) (*model.Message, error)
	EditMessage(ctx context.Context, userID, msgID int64, patch model.MessagePatch) (*model.Message, error)
	DeleteMessage(ctx context.Context, userID, msgID int64) error
	MarkAsRead(ctx context.Context, userID, partnerID int64) (int, error)
	GetMessages(ctx context.Context, userID, partnerID int64, opt service.PageOptions) (*service.Messages, error)
	GetConversations(ctx context.Context, userID int64, search string, opt service.PageOptions) (*service.Conversations, error)
}

type PageDefaults struct {
	DefaultLimit int
	MaxLimit     int
}

type Server struct {
	chat     Chat
	validate *validator.Validate
	page     PageDefaults
	log      *zap.Logger
}

func New(chat Chat, page PageDefaults, log *zap.Logger) *Server {
	if page.DefaultLimit <= 0 {
		page.DefaultLimit = 24
	}
	if page.MaxLimit <= 0 {
		page.MaxLimit = 100
	}
	return &Server{
		chat:     chat,
		validate: validator.New(),
		page:     page,
		log:      log,
	}
}

// Register wires the chat routes onto mux. Auth middleware is applied by the
// caller around the whole mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /chat/messages", s.handleSend)
	mux.HandleFunc("GET /chat/messages/{partnerId}", s.handleHistory)
	mux.HandleFunc("PUT /chat/messages/{id}", s.handleEdit)
	mux.HandleFunc("DELETE /chat/messages/{id}", s.handleDelete)
	mux.HandleFunc("POST /chat/messages/{partnerId}/read", s.handleMarkRead)
	mux.HandleFunc("GET /chat/conversations", s.handleConversations)
}

type sendMessageRequest struct {
	Content    string   `json:"content" validate:"required,max=1000"`
	ReceiverID int64    `json:"receiverId" validate:"required,gt=0"`
	Images     []string `json:"images" validate:"omitempty,dive,url"`
}

type editMessageRequest struct {
	Content *string   `json:"content" validate:"omitempty,min=1,max=1000"`
	Images  *[]string `json:"images" validate:"omitempty,dive,url"`
}

// userID pulls the authenticated id set by the middleware. Every chat route
// requires one; a missing id is rejected here rather than trusted downstream.
func (s *Server) userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	uid := auth.UIDFromContext(r.Context())
	if uid <= 0 {
		s.writeError(w, errs.Unauthorized("missing identity"))
		return 0, false
	}
	return uid, true
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.userID(w, r)
	if !ok {
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errs.Validation("malformed body", nil))
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, validationError(err))
		return
	}

	m, err := s.chat.SendMessage(r.Context(), uid, req.ReceiverID, req.Content, req.Images)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, m)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.userID(w, r)
	if !ok {
		return
	}
	partnerID, err := pathID(r, "partnerId")
	if err != nil {
		s.writeError(w, err)
		return
	}

	opt, err := s.pageOptions(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	res, err := s.chat.GetMessages(r.Context(), uid, partnerID, opt)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.userID(w, r)
	if !ok {
		return
	}
	msgID, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}

	var req editMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errs.Validation("malformed body", nil))
		return
	}
	if req.Content == nil && req.Images == nil {
		s.writeError(w, errs.Validation("nothing to update", nil))
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, validationError(err))
		return
	}

	m, err := s.chat.EditMessage(r.Context(), uid, msgID, model.MessagePatch{Content: req.Content, Images: req.Images})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.userID(w, r)
	if !ok {
		return
	}
	msgID, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}

	if err := s.chat.DeleteMessage(r.Context(), uid, msgID); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.userID(w, r)
	if !ok {
		return
	}
	partnerID, err := pathID(r, "partnerId")
	if err != nil {
		s.writeError(w, err)
		return
	}

	count, err := s.chat.MarkAsRead(r.Context(), uid, partnerID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"count": count})
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.userID(w, r)
	if !ok {
		return
	}
	opt, err := s.pageOptions(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	search := strings.TrimSpace(r.URL.Query().Get("search"))

	res, err := s.chat.GetConversations(r.Context(), uid, search, opt)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func pathID(r *http.Request, name string) (int64, error) {
	v, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || v <= 0 {
		return 0, errs.Validation("invalid id", map[string]string{name: "must be a positive integer"})
	}
	return v, nil
}

// pageOptions parses page/limit/sortBy/sortDirection: page>=1 (default 1),
// limit 1..max (default configured), ASC|DESC. Results are always keyed on
// msgId (ids are time-sortable), so that is the only sortBy accepted.
func (s *Server) pageOptions(r *http.Request) (service.PageOptions, error) {
	q := r.URL.Query()
	opt := service.PageOptions{Page: 1, Limit: s.page.DefaultLimit}

	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return opt, errs.Validation("invalid page", map[string]string{"page": "must be >= 1"})
		}
		opt.Page = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > s.page.MaxLimit {
			return opt, errs.Validation("invalid limit", map[string]string{"limit": "must be between 1 and " + strconv.Itoa(s.page.MaxLimit)})
		}
		opt.Limit = n
	}
	switch q.Get("sortBy") {
	case "", "msgId":
	default:
		return opt, errs.Validation("invalid sortBy", map[string]string{"sortBy": "must be msgId"})
	}
	switch strings.ToUpper(q.Get("sortDirection")) {
	case "", "DESC":
	case "ASC":
		opt.SortAsc = true
	default:
		return opt, errs.Validation("invalid sortDirection", map[string]string{"sortDirection": "must be ASC or DESC"})
	}
	return opt, nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errs.Validation("invalid request", nil)
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = "failed " + fe.Tag() + " validation"
	}
	return errs.Validation("invalid request", fields)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Kind    errs.Kind         `json:"kind"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var e *errs.Error
	if !errors.As(err, &e) {
		e = errs.Internal(err)
	}

	status := http.StatusInternalServerError
	switch e.Kind {
	case errs.KindValidation:
		status = http.StatusBadRequest
	case errs.KindNotFoundForbidden:
		status = http.StatusNotFound
	case errs.KindUnauthorized:
		status = http.StatusUnauthorized
	case errs.KindBrokerUnavailable:
		status = http.StatusServiceUnavailable
	}
	if status >= 500 {
		s.log.Error("request failed", zap.Error(err))
	}

	s.writeJSON(w, status, map[string]errorBody{"error": {Kind: e.Kind, Message: e.Message, Fields: e.Fields}})
}
