package repo

import (
	"context"
	"database/sql"
)

// EnsureSchema creates the chat tables when absent. Statements are
// idempotent; schema migration tooling stays with the main API.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS im_user (
			user_id     BIGINT NOT NULL,
			nickname    VARCHAR(64) NOT NULL DEFAULT '',
			portrait    VARCHAR(255) NOT NULL DEFAULT '',
			deleted     TINYINT NOT NULL DEFAULT 0,
			create_time DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS im_message (
			msg_id      BIGINT NOT NULL,
			sender_id   BIGINT NOT NULL,
			receiver_id BIGINT NOT NULL,
			content     TEXT NOT NULL,
			images      TEXT NULL,
			status      VARCHAR(16) NOT NULL DEFAULT 'SENT',
			create_time DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			update_time DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			PRIMARY KEY (msg_id),
			KEY idx_msg_pair (sender_id, receiver_id),
			KEY idx_msg_unread (receiver_id, status)
		)`,
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}
