package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sony/sonyflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vietbevis/clothes-shop-chat/internal/errs"
	"github.com/vietbevis/clothes-shop-chat/internal/event"
	"github.com/vietbevis/clothes-shop-chat/internal/model"
)

type fakeStore struct {
	messages map[int64]*model.Message

	markReadCount int
	markReadCalls [][2]int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{messages: map[int64]*model.Message{}}
}

func (f *fakeStore) Insert(_ context.Context, m *model.Message) error {
	cp := *m
	f.messages[m.MsgID] = &cp
	return nil
}

func (f *fakeStore) GetByID(_ context.Context, msgID int64) (*model.Message, error) {
	m, ok := f.messages[msgID]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (f *fakeStore) UpdatePatch(_ context.Context, msgID int64, patch model.MessagePatch) error {
	m := f.messages[msgID]
	if patch.Content != nil {
		m.Content = *patch.Content
	}
	if patch.Images != nil {
		m.Images = *patch.Images
	}
	return nil
}

func (f *fakeStore) Delete(_ context.Context, msgID int64) error {
	delete(f.messages, msgID)
	return nil
}

func (f *fakeStore) MarkRead(_ context.Context, userID, partnerID int64) (int, error) {
	f.markReadCalls = append(f.markReadCalls, [2]int64{userID, partnerID})
	return f.markReadCount, nil
}

func (f *fakeStore) ListPair(_ context.Context, _, _ int64, _, _ int) ([]*model.Message, int64, error) {
	out := make([]*model.Message, 0, len(f.messages))
	for _, m := range f.messages {
		out = append(out, m)
	}
	return out, int64(len(out)), nil
}

func (f *fakeStore) Conversations(_ context.Context, _ int64, _ string, _, _ int, _ bool) ([]*model.Conversation, int64, error) {
	return nil, 0, nil
}

type fakeUsers struct {
	users map[int64]*model.User
}

func (f *fakeUsers) GetByID(_ context.Context, uid int64) (*model.User, error) {
	return f.users[uid], nil
}

type fakePub struct {
	events []*event.Envelope
	err    error
}

func (f *fakePub) Publish(_ context.Context, evt *event.Envelope) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, evt)
	return nil
}

func newTestService(t *testing.T) (*ChatService, *fakeStore, *fakePub) {
	t.Helper()
	store := newFakeStore()
	users := &fakeUsers{users: map[int64]*model.User{
		1001: {UserID: 1001, Nickname: "Alice", Portrait: "a.png"},
		2002: {UserID: 2002, Nickname: "Bob", Portrait: "b.png"},
	}}
	pub := &fakePub{}
	sf := sonyflake.NewSonyflake(sonyflake.Settings{
		MachineID: func() (uint16, error) { return 1, nil },
	})
	svc := NewChatService(store, users, pub, sf, time.Second, zap.NewNop())
	return svc, store, pub
}

func Test_SendMessage_PersistsAndPublishes(t *testing.T) {
	req := require.New(t)
	svc, store, pub := newTestService(t)

	m, err := svc.SendMessage(context.Background(), 1001, 2002, "hello", nil)
	req.NoError(err)
	req.NotZero(m.MsgID)
	req.Equal(model.StatusSent, m.Status)
	req.Equal("Alice", m.SenderName)
	req.Equal("Bob", m.ReceiverName)
	req.Contains(store.messages, m.MsgID)

	req.Len(pub.events, 1)
	evt := pub.events[0]
	req.Equal(event.MessageCreated, evt.Kind)
	req.Equal(event.ConvKey(1001, 2002), evt.ConvID)
	req.NotZero(evt.EventID)

	p, err := evt.Decode()
	req.NoError(err)
	req.Equal("hello", p.(*event.CreatedPayload).Message.Content)
}

func Test_SendMessage_CatchesSenderUp(t *testing.T) {
	req := require.New(t)
	svc, store, _ := newTestService(t)

	_, err := svc.SendMessage(context.Background(), 1001, 2002, "reply", nil)
	req.NoError(err)
	req.Equal([][2]int64{{1001, 2002}}, store.markReadCalls)
}

func Test_SendMessage_Validation(t *testing.T) {
	req := require.New(t)
	svc, _, pub := newTestService(t)
	ctx := context.Background()

	_, err := svc.SendMessage(ctx, 1001, 2002, "", nil)
	req.Equal(errs.KindValidation, errs.KindOf(err))

	_, err = svc.SendMessage(ctx, 1001, 2002, strings.Repeat("x", 1001), nil)
	req.Equal(errs.KindValidation, errs.KindOf(err))

	// exactly at the limit is fine
	_, err = svc.SendMessage(ctx, 1001, 2002, strings.Repeat("x", 1000), nil)
	req.NoError(err)

	_, err = svc.SendMessage(ctx, 1001, 1001, "self", nil)
	req.Equal(errs.KindValidation, errs.KindOf(err))

	_, err = svc.SendMessage(ctx, 1001, 9999, "ghost", nil)
	req.Equal(errs.KindValidation, errs.KindOf(err))

	req.Len(pub.events, 1)
}

func Test_SendMessage_MultibyteContentLength(t *testing.T) {
	req := require.New(t)
	svc, _, _ := newTestService(t)

	// 1000 runes, well over 1000 bytes: counted as runes, accepted.
	_, err := svc.SendMessage(context.Background(), 1001, 2002, strings.Repeat("é", 1000), nil)
	req.NoError(err)
}

func Test_SendMessage_PublishFailureFailsRequest(t *testing.T) {
	req := require.New(t)
	svc, _, pub := newTestService(t)
	pub.err = errs.BrokerUnavailable(errors.New("no brokers"))

	_, err := svc.SendMessage(context.Background(), 1001, 2002, "hello", nil)
	req.Error(err)
	req.Equal(errs.KindBrokerUnavailable, errs.KindOf(err))
}

func Test_EditMessage_OwnerOnly(t *testing.T) {
	req := require.New(t)
	svc, _, pub := newTestService(t)
	ctx := context.Background()

	m, err := svc.SendMessage(ctx, 1001, 2002, "original", nil)
	req.NoError(err)

	newContent := "edited"
	_, err = svc.EditMessage(ctx, 2002, m.MsgID, model.MessagePatch{Content: &newContent})
	req.Equal(errs.KindNotFoundForbidden, errs.KindOf(err))

	_, err = svc.EditMessage(ctx, 1001, 99999, model.MessagePatch{Content: &newContent})
	req.Equal(errs.KindNotFoundForbidden, errs.KindOf(err))

	updated, err := svc.EditMessage(ctx, 1001, m.MsgID, model.MessagePatch{Content: &newContent})
	req.NoError(err)
	req.Equal("edited", updated.Content)

	req.Len(pub.events, 2)
	req.Equal(event.MessageUpdated, pub.events[1].Kind)
}

func Test_DeleteMessage_OwnerOnly(t *testing.T) {
	req := require.New(t)
	svc, store, pub := newTestService(t)
	ctx := context.Background()

	m, err := svc.SendMessage(ctx, 1001, 2002, "doomed", nil)
	req.NoError(err)

	err = svc.DeleteMessage(ctx, 2002, m.MsgID)
	req.Equal(errs.KindNotFoundForbidden, errs.KindOf(err))

	req.NoError(svc.DeleteMessage(ctx, 1001, m.MsgID))
	req.NotContains(store.messages, m.MsgID)

	req.Len(pub.events, 2)
	evt := pub.events[1]
	req.Equal(event.MessageDeleted, evt.Kind)
	p, err := evt.Decode()
	req.NoError(err)
	dp := p.(*event.DeletedPayload)
	req.Equal(m.MsgID, dp.MsgID)
	req.Equal(int64(1001), dp.SenderID)
	req.Equal(int64(2002), dp.ReceiverID)
}

func Test_MarkAsRead_PublishesStatus(t *testing.T) {
	req := require.New(t)
	svc, store, pub := newTestService(t)
	store.markReadCount = 3

	count, err := svc.MarkAsRead(context.Background(), 2002, 1001)
	req.NoError(err)
	req.Equal(3, count)

	req.Len(pub.events, 1)
	evt := pub.events[0]
	req.Equal(event.MessageStatusUpdated, evt.Kind)
	p, err := evt.Decode()
	req.NoError(err)
	sp := p.(*event.StatusPayload)
	req.Equal(int64(2002), sp.ReaderID)
	req.Equal(int64(1001), sp.PartnerID)
	req.Equal(model.StatusRead, sp.Status)
	req.Equal(3, sp.Count)
}

func Test_MarkAsRead_NothingPending_NoEvent(t *testing.T) {
	req := require.New(t)
	svc, store, pub := newTestService(t)
	store.markReadCount = 0

	count, err := svc.MarkAsRead(context.Background(), 2002, 1001)
	req.NoError(err)
	req.Zero(count)
	req.Empty(pub.events)
}

func Test_GetMessages_ReturnsMeta(t *testing.T) {
	req := require.New(t)
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.SendMessage(ctx, 1001, 2002, "one", nil)
	req.NoError(err)
	_, err = svc.SendMessage(ctx, 1001, 2002, "two", nil)
	req.NoError(err)

	res, err := svc.GetMessages(ctx, 1001, 2002, PageOptions{Page: 1, Limit: 24})
	req.NoError(err)
	req.Len(res.Items, 2)
	req.Equal(int64(2), res.Meta.Total)
	req.Equal(1, res.Meta.Page)
}
