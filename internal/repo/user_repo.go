package repo

import (
	"context"
	"database/sql"

	"github.com/vietbevis/clothes-shop-chat/internal/model"
)

// UserRepo is the narrow read-only contract onto the user directory owned by
// the main API: existence checks and display-field hydration only.
type UserRepo struct {
	db *sql.DB
}

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{db: db} }

// GetByID returns the user, or (nil, nil) when absent or soft-deleted.
func (r *UserRepo) GetByID(ctx context.Context, uid int64) (*model.User, error) {
	var u model.User
	err := r.db.QueryRowContext(ctx, `
SELECT user_id, nickname, portrait
FROM im_user
WHERE user_id = ? AND deleted = 0
`, uid).Scan(&u.UserID, &u.Nickname, &u.Portrait)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
