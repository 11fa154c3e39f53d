package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/vietbevis/clothes-shop-chat/internal/model"
)

// MessageRepo is the single component allowed to mutate message rows.
type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo { return &MessageRepo{db: db} }

const hydratedSelect = `
SELECT m.msg_id, m.sender_id, m.receiver_id, m.content, m.images, m.status,
       m.create_time, m.update_time,
       su.nickname, su.portrait, ru.nickname, ru.portrait
FROM im_message m
JOIN im_user su ON su.user_id = m.sender_id
JOIN im_user ru ON ru.user_id = m.receiver_id`

func scanHydrated(sc interface{ Scan(...any) error }) (*model.Message, error) {
	var m model.Message
	var images sql.NullString
	err := sc.Scan(
		&m.MsgID, &m.SenderID, &m.ReceiverID, &m.Content, &images, &m.Status,
		&m.CreateTime, &m.UpdateTime,
		&m.SenderName, &m.SenderPortrait, &m.ReceiverName, &m.ReceiverPortrait,
	)
	if err != nil {
		return nil, err
	}
	if images.Valid && images.String != "" {
		if err := json.Unmarshal([]byte(images.String), &m.Images); err != nil {
			return nil, err
		}
	}
	return &m, nil
}

func imagesJSON(images []string) sql.NullString {
	if len(images) == 0 {
		return sql.NullString{}
	}
	b, _ := json.Marshal(images)
	return sql.NullString{String: string(b), Valid: true}
}

func (r *MessageRepo) Insert(ctx context.Context, m *model.Message) error {
	now := time.Now()
	m.CreateTime = now
	m.UpdateTime = now
	_, err := r.db.ExecContext(ctx, `
INSERT INTO im_message (msg_id, sender_id, receiver_id, content, images, status, create_time, update_time)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`, m.MsgID, m.SenderID, m.ReceiverID, m.Content, imagesJSON(m.Images), m.Status, now, now)
	return err
}

// GetByID returns the hydrated message, or (nil, nil) when absent.
func (r *MessageRepo) GetByID(ctx context.Context, msgID int64) (*model.Message, error) {
	row := r.db.QueryRowContext(ctx, hydratedSelect+` WHERE m.msg_id = ?`, msgID)
	m, err := scanHydrated(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// UpdatePatch applies a partial content/images update.
func (r *MessageRepo) UpdatePatch(ctx context.Context, msgID int64, patch model.MessagePatch) error {
	sets := make([]string, 0, 3)
	args := make([]any, 0, 4)
	if patch.Content != nil {
		sets = append(sets, "content = ?")
		args = append(args, *patch.Content)
	}
	if patch.Images != nil {
		sets = append(sets, "images = ?")
		args = append(args, imagesJSON(*patch.Images))
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "update_time = NOW()")
	args = append(args, msgID)
	_, err := r.db.ExecContext(ctx,
		"UPDATE im_message SET "+strings.Join(sets, ", ")+" WHERE msg_id = ?", args...)
	return err
}

func (r *MessageRepo) Delete(ctx context.Context, msgID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM im_message WHERE msg_id = ?`, msgID)
	return err
}

// MarkRead bulk-updates partner→user messages still in SENT to READ and
// returns how many rows changed. Calling it with nothing pending returns 0.
func (r *MessageRepo) MarkRead(ctx context.Context, userID, partnerID int64) (int, error) {
	res, err := r.db.ExecContext(ctx, `
UPDATE im_message
SET status = ?, update_time = NOW()
WHERE sender_id = ? AND receiver_id = ? AND status = ?
`, model.StatusRead, partnerID, userID, model.StatusSent)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// ListPair pages the two-way history between user and partner. Storage order
// is newest-first; the page is reversed so clients render oldest-first.
func (r *MessageRepo) ListPair(ctx context.Context, userID, partnerID int64, page, limit int) ([]*model.Message, int64, error) {
	var total int64
	err := r.db.QueryRowContext(ctx, `
SELECT COUNT(*)
FROM im_message
WHERE (sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)
`, userID, partnerID, partnerID, userID).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx, hydratedSelect+`
WHERE (m.sender_id = ? AND m.receiver_id = ?) OR (m.sender_id = ? AND m.receiver_id = ?)
ORDER BY m.msg_id DESC
LIMIT ? OFFSET ?
`, userID, partnerID, partnerID, userID, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]*model.Message, 0, limit)
	for rows.Next() {
		m, err := scanHydrated(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	// oldest-first within the page
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, total, nil
}

// Conversations derives one row per distinct partner: the latest message of
// each unordered pair (max msg_id; ids are time-sortable) plus the unread
// count of SENT messages addressed to the user, fetched with one grouped
// query for the whole page.
func (r *MessageRepo) Conversations(ctx context.Context, userID int64, search string, page, limit int, sortAsc bool) ([]*model.Conversation, int64, error) {
	like := "%" + search + "%"

	var total int64
	err := r.db.QueryRowContext(ctx, `
SELECT COUNT(*)
FROM (
	SELECT MAX(msg_id) AS msg_id
	FROM im_message
	WHERE sender_id = ? OR receiver_id = ?
	GROUP BY LEAST(sender_id, receiver_id), GREATEST(sender_id, receiver_id)
) latest
JOIN im_message m ON m.msg_id = latest.msg_id
JOIN im_user p ON p.user_id = IF(m.sender_id = ?, m.receiver_id, m.sender_id)
WHERE ? = '' OR p.nickname LIKE ?
`, userID, userID, userID, search, like).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	order := "DESC"
	if sortAsc {
		order = "ASC"
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT m.msg_id, m.sender_id, m.receiver_id, m.content, m.images, m.status,
       m.create_time, m.update_time,
       su.nickname, su.portrait, ru.nickname, ru.portrait,
       p.user_id, p.nickname, p.portrait
FROM (
	SELECT MAX(msg_id) AS msg_id
	FROM im_message
	WHERE sender_id = ? OR receiver_id = ?
	GROUP BY LEAST(sender_id, receiver_id), GREATEST(sender_id, receiver_id)
) latest
JOIN im_message m ON m.msg_id = latest.msg_id
JOIN im_user su ON su.user_id = m.sender_id
JOIN im_user ru ON ru.user_id = m.receiver_id
JOIN im_user p ON p.user_id = IF(m.sender_id = ?, m.receiver_id, m.sender_id)
WHERE ? = '' OR p.nickname LIKE ?
ORDER BY m.msg_id `+order+`
LIMIT ? OFFSET ?
`, userID, userID, userID, search, like, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]*model.Conversation, 0, limit)
	for rows.Next() {
		var m model.Message
		var images sql.NullString
		var c model.Conversation
		err := rows.Scan(
			&m.MsgID, &m.SenderID, &m.ReceiverID, &m.Content, &images, &m.Status,
			&m.CreateTime, &m.UpdateTime,
			&m.SenderName, &m.SenderPortrait, &m.ReceiverName, &m.ReceiverPortrait,
			&c.PartnerID, &c.PartnerName, &c.PartnerPortrait,
		)
		if err != nil {
			return nil, 0, err
		}
		if images.Valid && images.String != "" {
			if err := json.Unmarshal([]byte(images.String), &m.Images); err != nil {
				return nil, 0, err
			}
		}
		c.LastMessage = &m
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if len(out) == 0 {
		return out, total, nil
	}

	unread, err := r.unreadBySender(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	for _, c := range out {
		c.UnreadCount = unread[c.PartnerID]
	}
	return out, total, nil
}

func (r *MessageRepo) unreadBySender(ctx context.Context, userID int64) (map[int64]int, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT sender_id, COUNT(*)
FROM im_message
WHERE receiver_id = ? AND status = ?
GROUP BY sender_id
`, userID, model.StatusSent)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]int)
	for rows.Next() {
		var sender int64
		var n int
		if err := rows.Scan(&sender, &n); err != nil {
			return nil, err
		}
		out[sender] = n
	}
	return out, rows.Err()
}
