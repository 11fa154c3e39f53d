package service

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/sony/sonyflake"
	"go.uber.org/zap"

	"github.com/vietbevis/clothes-shop-chat/internal/errs"
	"github.com/vietbevis/clothes-shop-chat/internal/event"
	"github.com/vietbevis/clothes-shop-chat/internal/metrics"
	"github.com/vietbevis/clothes-shop-chat/internal/model"
)

const maxContentLen = 1000

// MessageStore is the single source of truth for message rows.
type MessageStore interface {
	Insert(ctx context.Context, m *model.Message) error
	GetByID(ctx context.Context, msgID int64) (*model.Message, error)
	UpdatePatch(ctx context.Context, msgID int64, patch model.MessagePatch) error
	Delete(ctx context.Context, msgID int64) error
	MarkRead(ctx context.Context, userID, partnerID int64) (int, error)
	ListPair(ctx context.Context, userID, partnerID int64, page, limit int) ([]*model.Message, int64, error)
	Conversations(ctx context.Context, userID int64, search string, page, limit int, sortAsc bool) ([]*model.Conversation, int64, error)
}

// UserDirectory is the read-only contract onto user management.
type UserDirectory interface {
	GetByID(ctx context.Context, uid int64) (*model.User, error)
}

// Publisher relays lifecycle events to the broker. Publishes are awaited:
// a broker fault fails the originating request.
type Publisher interface {
	Publish(ctx context.Context, evt *event.Envelope) error
}

type PageOptions struct {
	Page    int
	Limit   int
	SortAsc bool
}

type Messages struct {
	Items []*model.Message `json:"items"`
	Meta  model.PageMeta   `json:"meta"`
}

type Conversations struct {
	Items []*model.Conversation `json:"items"`
	Meta  model.PageMeta        `json:"meta"`
}

type ChatService struct {
	store   MessageStore
	users   UserDirectory
	pub     Publisher
	sf      *sonyflake.Sonyflake
	timeout time.Duration
	log     *zap.Logger
}

func NewChatService(store MessageStore, users UserDirectory, pub Publisher, sf *sonyflake.Sonyflake, timeout time.Duration, log *zap.Logger) *ChatService {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &ChatService{store: store, users: users, pub: pub, sf: sf, timeout: timeout, log: log}
}

func (s *ChatService) nextID() (int64, error) {
	id, err := s.sf.NextID()
	if err != nil {
		return 0, errs.Internal(err)
	}
	return int64(id), nil
}

func (s *ChatService) publish(ctx context.Context, kind event.Kind, convID string, payload any) error {
	eventID, err := s.nextID()
	if err != nil {
		return err
	}
	if convID == "" {
		convID = event.FallbackConvKey(eventID)
	}
	evt, err := event.NewEnvelope(eventID, kind, time.Now().Unix(), convID, payload)
	if err != nil {
		return errs.Internal(err)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.pub.Publish(ctx, evt)
}

// SendMessage persists the message, catches the sender up on anything unread
// from the receiver, then publishes the hydrated MESSAGE_CREATED event.
func (s *ChatService) SendMessage(ctx context.Context, senderID, receiverID int64, content string, images []string) (*model.Message, error) {
	if err := validateContent(content); err != nil {
		return nil, err
	}
	if senderID == receiverID {
		return nil, errs.Validation("cannot message yourself", map[string]string{"receiverId": "must differ from sender"})
	}

	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	receiver, err := s.users.GetByID(opCtx, receiverID)
	if err != nil {
		return nil, errs.Internal(err)
	}
	if receiver == nil {
		return nil, errs.Validation("receiver does not exist", map[string]string{"receiverId": "unknown user"})
	}
	sender, err := s.users.GetByID(opCtx, senderID)
	if err != nil {
		return nil, errs.Internal(err)
	}
	if sender == nil {
		return nil, errs.Unauthorized("sender does not exist")
	}

	msgID, err := s.nextID()
	if err != nil {
		return nil, err
	}
	m := &model.Message{
		MsgID:            msgID,
		SenderID:         senderID,
		ReceiverID:       receiverID,
		Content:          content,
		Images:           images,
		Status:           model.StatusSent,
		SenderName:       sender.Nickname,
		SenderPortrait:   sender.Portrait,
		ReceiverName:     receiver.Nickname,
		ReceiverPortrait: receiver.Portrait,
	}
	if err := s.store.Insert(opCtx, m); err != nil {
		return nil, errs.Internal(err)
	}
	metrics.MessagesSent.Inc()

	// Replying implies having read the conversation: flip anything still
	// unread from the receiver before announcing the new message.
	if _, err := s.store.MarkRead(opCtx, senderID, receiverID); err != nil {
		return nil, errs.Internal(err)
	}

	if err := s.publish(ctx, event.MessageCreated, event.ConvKey(senderID, receiverID), event.CreatedPayload{Message: *m}); err != nil {
		return nil, err
	}
	return m, nil
}

// EditMessage applies a partial update; only the sender may edit.
func (s *ChatService) EditMessage(ctx context.Context, userID, msgID int64, patch model.MessagePatch) (*model.Message, error) {
	if patch.Content != nil {
		if err := validateContent(*patch.Content); err != nil {
			return nil, err
		}
	}

	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	m, err := s.store.GetByID(opCtx, msgID)
	if err != nil {
		return nil, errs.Internal(err)
	}
	if m == nil || m.SenderID != userID {
		return nil, errs.NotFoundOrForbidden("message")
	}

	if err := s.store.UpdatePatch(opCtx, msgID, patch); err != nil {
		return nil, errs.Internal(err)
	}
	updated, err := s.store.GetByID(opCtx, msgID)
	if err != nil {
		return nil, errs.Internal(err)
	}
	if updated == nil {
		return nil, errs.NotFoundOrForbidden("message")
	}

	if err := s.publish(ctx, event.MessageUpdated, event.ConvKey(updated.SenderID, updated.ReceiverID), event.UpdatedPayload{Message: *updated}); err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteMessage removes the row; only the sender may delete. The event
// carries ids only, the payload is gone.
func (s *ChatService) DeleteMessage(ctx context.Context, userID, msgID int64) error {
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	m, err := s.store.GetByID(opCtx, msgID)
	if err != nil {
		return errs.Internal(err)
	}
	if m == nil || m.SenderID != userID {
		return errs.NotFoundOrForbidden("message")
	}

	if err := s.store.Delete(opCtx, msgID); err != nil {
		return errs.Internal(err)
	}

	return s.publish(ctx, event.MessageDeleted, event.ConvKey(m.SenderID, m.ReceiverID), event.DeletedPayload{
		MsgID:      m.MsgID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
	})
}

// MarkAsRead flips every SENT message from partner to user to READ and
// returns the count; zero pending is a successful no-op. A status event lets
// the partner (and the reader's other sessions) render read receipts.
func (s *ChatService) MarkAsRead(ctx context.Context, userID, partnerID int64) (int, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	count, err := s.store.MarkRead(opCtx, userID, partnerID)
	if err != nil {
		return 0, errs.Internal(err)
	}
	if count == 0 {
		return 0, nil
	}

	err = s.publish(ctx, event.MessageStatusUpdated, event.ConvKey(userID, partnerID), event.StatusPayload{
		ReaderID:  userID,
		PartnerID: partnerID,
		Status:    model.StatusRead,
		Count:     count,
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// GetMessages pages the two-way history with partner, oldest-first within
// the page.
func (s *ChatService) GetMessages(ctx context.Context, userID, partnerID int64, opt PageOptions) (*Messages, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	items, total, err := s.store.ListPair(opCtx, userID, partnerID, opt.Page, opt.Limit)
	if err != nil {
		return nil, errs.Internal(err)
	}
	return &Messages{Items: items, Meta: model.NewPageMeta(opt.Page, opt.Limit, total)}, nil
}

// GetConversations derives the per-partner summary list; search filters on
// partner display name.
func (s *ChatService) GetConversations(ctx context.Context, userID int64, search string, opt PageOptions) (*Conversations, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	items, total, err := s.store.Conversations(opCtx, userID, search, opt.Page, opt.Limit, opt.SortAsc)
	if err != nil {
		return nil, errs.Internal(err)
	}
	return &Conversations{Items: items, Meta: model.NewPageMeta(opt.Page, opt.Limit, total)}, nil
}

func validateContent(content string) error {
	n := utf8.RuneCountInString(content)
	if n == 0 {
		return errs.Validation("content is required", map[string]string{"content": "must not be empty"})
	}
	if n > maxContentLen {
		return errs.Validation("content too long", map[string]string{"content": "must be at most 1000 characters"})
	}
	return nil
}
