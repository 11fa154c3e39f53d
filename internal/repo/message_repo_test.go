package repo

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/require"

	"github.com/vietbevis/clothes-shop-chat/internal/model"
)

// Repo tests run against a real MySQL. Set TEST_MYSQL_DSN to enable, e.g.
// TEST_MYSQL_DSN="root:root@tcp(127.0.0.1:3306)/clothes_shop_test?parseTime=true"
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("TEST_MYSQL_DSN not set")
	}
	db, err := sql.Open("mysql", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	require.NoError(t, db.PingContext(ctx))
	require.NoError(t, EnsureSchema(ctx, db))
	for _, stmt := range []string{`DELETE FROM im_message`, `DELETE FROM im_user`} {
		_, err := db.ExecContext(ctx, stmt)
		require.NoError(t, err)
	}
	return db
}

func seedUsers(t *testing.T, db *sql.DB, users ...model.User) {
	t.Helper()
	for _, u := range users {
		_, err := db.Exec(
			`INSERT INTO im_user (user_id, nickname, portrait) VALUES (?, ?, ?)`,
			u.UserID, u.Nickname, u.Portrait)
		require.NoError(t, err)
	}
}

func mustInsert(t *testing.T, r *MessageRepo, id, sender, receiver int64, content string) {
	t.Helper()
	m := &model.Message{
		MsgID: id, SenderID: sender, ReceiverID: receiver,
		Content: content, Status: model.StatusSent,
	}
	require.NoError(t, r.Insert(context.Background(), m))
}

// Alice(1)↔Bob(2): 101 A→B, 102 B→A, 103 A→B, 104 B→A. Carol(3)→Alice: 105.
func seedConversations(t *testing.T, db *sql.DB) *MessageRepo {
	t.Helper()
	seedUsers(t, db,
		model.User{UserID: 1, Nickname: "Alice", Portrait: "a.png"},
		model.User{UserID: 2, Nickname: "Bob", Portrait: "b.png"},
		model.User{UserID: 3, Nickname: "Carol", Portrait: "c.png"},
	)
	r := NewMessageRepo(db)
	mustInsert(t, r, 101, 1, 2, "a to b 1")
	mustInsert(t, r, 102, 2, 1, "b to a 1")
	mustInsert(t, r, 103, 1, 2, "a to b 2")
	mustInsert(t, r, 104, 2, 1, "b to a 2")
	mustInsert(t, r, 105, 3, 1, "c to a 1")
	return r
}

func Test_Conversations_OneRowPerPair_LatestAndUnread(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	r := seedConversations(t, db)
	ctx := context.Background()

	items, total, err := r.Conversations(ctx, 1, "", 1, 24, false)
	req.NoError(err)
	req.Equal(int64(2), total)
	req.Len(items, 2)

	// newest pair first: Carol (105) then Bob (104)
	req.Equal(int64(3), items[0].PartnerID)
	req.Equal("Carol", items[0].PartnerName)
	req.Equal(int64(105), items[0].LastMessage.MsgID)
	req.Equal(1, items[0].UnreadCount)

	req.Equal(int64(2), items[1].PartnerID)
	req.Equal("Bob", items[1].PartnerName)
	req.Equal(int64(104), items[1].LastMessage.MsgID)
	req.Equal("b to a 2", items[1].LastMessage.Content)
	req.Equal("Bob", items[1].LastMessage.SenderName)
	req.Equal(2, items[1].UnreadCount)

	// sum of unread counts == SENT rows addressed to the user
	var pending int
	req.NoError(db.QueryRow(
		`SELECT COUNT(*) FROM im_message WHERE receiver_id = 1 AND status = ?`,
		model.StatusSent).Scan(&pending))
	req.Equal(pending, items[0].UnreadCount+items[1].UnreadCount)

	// the other side of the A↔B pair sees one row with A's unread
	items, total, err = r.Conversations(ctx, 2, "", 1, 24, false)
	req.NoError(err)
	req.Equal(int64(1), total)
	req.Equal(int64(1), items[0].PartnerID)
	req.Equal(int64(104), items[0].LastMessage.MsgID)
	req.Equal(2, items[0].UnreadCount)
}

func Test_Conversations_SearchAndPaging(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	r := seedConversations(t, db)
	ctx := context.Background()

	items, total, err := r.Conversations(ctx, 1, "bo", 1, 24, false)
	req.NoError(err)
	req.Equal(int64(1), total)
	req.Len(items, 1)
	req.Equal("Bob", items[0].PartnerName)

	items, total, err = r.Conversations(ctx, 1, "nobody", 1, 24, false)
	req.NoError(err)
	req.Zero(total)
	req.Empty(items)

	// ascending flips the page order
	items, _, err = r.Conversations(ctx, 1, "", 1, 24, true)
	req.NoError(err)
	req.Equal(int64(2), items[0].PartnerID)
	req.Equal(int64(3), items[1].PartnerID)

	// limit 1, page 2 reaches the second pair
	items, total, err = r.Conversations(ctx, 1, "", 2, 1, false)
	req.NoError(err)
	req.Equal(int64(2), total)
	req.Len(items, 1)
	req.Equal(int64(2), items[0].PartnerID)
}

func Test_MarkRead_UpdatesUnreadCounts(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	r := seedConversations(t, db)
	ctx := context.Background()

	n, err := r.MarkRead(ctx, 1, 2)
	req.NoError(err)
	req.Equal(2, n)

	// idempotent: nothing left to flip
	n, err = r.MarkRead(ctx, 1, 2)
	req.NoError(err)
	req.Zero(n)

	items, _, err := r.Conversations(ctx, 1, "", 1, 24, false)
	req.NoError(err)
	req.Equal(1, items[0].UnreadCount) // Carol untouched
	req.Zero(items[1].UnreadCount)     // Bob cleared

	m, err := r.GetByID(ctx, 104)
	req.NoError(err)
	req.Equal(model.StatusRead, m.Status)
}

func Test_ListPair_OldestFirstWithinPage(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	r := seedConversations(t, db)
	ctx := context.Background()

	items, total, err := r.ListPair(ctx, 1, 2, 1, 2)
	req.NoError(err)
	req.Equal(int64(4), total)
	req.Len(items, 2)
	// newest page, rendered oldest-first
	req.Equal(int64(103), items[0].MsgID)
	req.Equal(int64(104), items[1].MsgID)

	items, _, err = r.ListPair(ctx, 1, 2, 2, 2)
	req.NoError(err)
	req.Equal(int64(101), items[0].MsgID)
	req.Equal(int64(102), items[1].MsgID)

	// Carol's message stays out of the A↔B pair
	for _, m := range items {
		req.NotEqual(int64(105), m.MsgID)
	}
}

func Test_GetByID_UpdatePatch_Delete(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	r := seedConversations(t, db)
	ctx := context.Background()

	m, err := r.GetByID(ctx, 999)
	req.NoError(err)
	req.Nil(m)

	content := "edited"
	images := []string{"https://cdn.example.com/x.png"}
	req.NoError(r.UpdatePatch(ctx, 101, model.MessagePatch{Content: &content, Images: &images}))

	m, err = r.GetByID(ctx, 101)
	req.NoError(err)
	req.Equal("edited", m.Content)
	req.Equal(images, m.Images)
	req.Equal("Alice", m.SenderName)
	req.Equal("Bob", m.ReceiverName)

	req.NoError(r.Delete(ctx, 101))
	m, err = r.GetByID(ctx, 101)
	req.NoError(err)
	req.Nil(m)
}
