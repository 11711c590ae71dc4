package database

import (
	"database/sql"
	"fmt"
)

var _ UserRepository = (*userRepository)(nil)

type userRepository struct {
	db *DB
}

func NewUserRepository(db *DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetUser(id int64) (*User, error) {
	var u User
	err := r.db.QueryRow(`SELECT id, username, roles, created_at FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Username, &u.Roles, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

func (r *userRepository) UpsertUser(user *User) error {
	err := r.db.QueryRow(`
		INSERT INTO users (username, roles)
		VALUES (?, ?)
		ON CONFLICT (username) DO UPDATE SET roles = excluded.roles
		RETURNING id`,
		user.Username, user.Roles,
	).Scan(&user.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

var _ HookRepository = (*hookRepository)(nil)

type hookRepository struct {
	db *DB
}

func NewHookRepository(db *DB) HookRepository {
	return &hookRepository{db: db}
}

func (r *hookRepository) UpsertHook(hook *Hook) error {
	config := string(hook.Config)
	if config == "" {
		config = "{}"
	}
	filter := string(hook.Filter)
	if filter == "" {
		filter = "{}"
	}
	err := r.db.QueryRow(`
		INSERT INTO hooks (user_id, name, type, config, filter, is_reversed, proxy_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, name) DO UPDATE SET
			type = excluded.type,
			config = excluded.config,
			filter = excluded.filter,
			is_reversed = excluded.is_reversed,
			proxy_id = excluded.proxy_id,
			updated_at = CURRENT_TIMESTAMP
		RETURNING id`,
		hook.UserID, hook.Name, hook.Type, config, filter, boolToInt(hook.IsReversed), hook.ProxyID,
	).Scan(&hook.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert hook: %w", err)
	}
	return nil
}

func (r *hookRepository) LinkFeedHook(feedID, hookID int64) error {
	_, err := r.db.Exec(`INSERT OR IGNORE INTO feed_hooks (feed_id, hook_id) VALUES (?, ?)`, feedID, hookID)
	if err != nil {
		return fmt.Errorf("failed to link feed and hook: %w", err)
	}
	return nil
}
