package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/meddy-health/meddy/internal/config"
	"github.com/meddy-health/meddy/internal/core"
	"github.com/meddy-health/meddy/internal/models"
)

type DatabaseClient struct {
	db *sql.DB
}

var _ core.DbClient = (*DatabaseClient)(nil)

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (*DatabaseClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	dsn, err := buildDSN(cfg.DatabaseURL, cfg.SslCertPath)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

// buildDSN appends SSL verification params when a root cert is configured.
func buildDSN(databaseURL, sslCertPath string) (string, error) {
	if databaseURL == "" {
		return "", fmt.Errorf("DATABASE_URL is empty")
	}
	if sslCertPath == "" {
		return databaseURL, nil
	}
	if _, err := os.Stat(sslCertPath); err != nil {
		return "", fmt.Errorf("ssl cert not accessible at %q: %w", sslCertPath, err)
	}
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	q := u.Query()
	q.Set("sslmode", "verify-ca")
	q.Set("sslrootcert", sslCertPath)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// withTx runs fn in a transaction and rolls back on error.
func (c *DatabaseClient) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Users

func (c *DatabaseClient) CreateUser(ctx context.Context, user *models.User) error {
	if user == nil {
		return errors.New("nil user")
	}
	const q = `
		INSERT INTO users (id, email, password_hash, name, age, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
	`
	_, err := c.db.ExecContext(ctx, q, user.ID, user.Email, user.PasswordHash, user.Name, user.Age)
	return err
}

const userColumns = `id, email, password_hash, name, age, created_at, updated_at`

func scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Age, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *DatabaseClient) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(c.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

func (c *DatabaseClient) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return scanUser(c.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// UpdateUserInfo changes only the fields that are non-nil.
func (c *DatabaseClient) UpdateUserInfo(ctx context.Context, userID string, name, age *string) error {
	const q = `
		UPDATE users
		SET name = COALESCE($2, name), age = COALESCE($3, age), updated_at = now()
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, userID, name, age)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user not found: %s", userID)
	}
	return nil
}

// Chats

func (c *DatabaseClient) SaveChat(ctx context.Context, chat *models.Chat) error {
	if chat == nil {
		return errors.New("nil chat")
	}
	if chat.Visibility == "" {
		chat.Visibility = models.VisibilityPrivate
	}
	const q = `
		INSERT INTO chats (id, created_at, title, user_id, visibility)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := c.db.ExecContext(ctx, q, chat.ID, nowIfZero(chat.CreatedAt), chat.Title, chat.UserID, chat.Visibility)
	return err
}

func (c *DatabaseClient) GetChatByID(ctx context.Context, id string) (*models.Chat, error) {
	const q = `SELECT id, created_at, title, user_id, visibility FROM chats WHERE id = $1`
	var ch models.Chat
	err := c.db.QueryRowContext(ctx, q, id).Scan(&ch.ID, &ch.CreatedAt, &ch.Title, &ch.UserID, &ch.Visibility)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

func (c *DatabaseClient) GetChatsByUserID(ctx context.Context, userID string) ([]models.Chat, error) {
	const q = `
		SELECT id, created_at, title, user_id, visibility
		FROM chats
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := c.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Chat
	for rows.Next() {
		var ch models.Chat
		if err := rows.Scan(&ch.ID, &ch.CreatedAt, &ch.Title, &ch.UserID, &ch.Visibility); err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

// DeleteChatByID removes the chat together with its messages and attachment rows.
func (c *DatabaseClient) DeleteChatByID(ctx context.Context, id string) error {
	return c.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM attachments WHERE chat_id = $1`, id); err != nil {
			return fmt.Errorf("delete attachments: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE chat_id = $1`, id); err != nil {
			return fmt.Errorf("delete messages: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM chats WHERE id = $1`, id); err != nil {
			return fmt.Errorf("delete chat: %w", err)
		}
		return nil
	})
}

func (c *DatabaseClient) UpdateChatVisibilityByID(ctx context.Context, id, visibility string) error {
	res, err := c.db.ExecContext(ctx, `UPDATE chats SET visibility = $2 WHERE id = $1`, id, visibility)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("chat not found: %s", id)
	}
	return nil
}

// Messages

func (c *DatabaseClient) SaveMessages(ctx context.Context, msgs []models.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	return c.withTx(ctx, func(tx *sql.Tx) error {
		const q = `
			INSERT INTO messages (id, chat_id, role, content, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`
		stmt, err := tx.PrepareContext(ctx, q)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i := range msgs {
			m := &msgs[i]
			if _, err := stmt.ExecContext(ctx, m.ID, m.ChatID, m.Role, []byte(m.Content), nowIfZero(m.CreatedAt)); err != nil {
				return fmt.Errorf("insert message %s: %w", m.ID, err)
			}
		}
		return nil
	})
}

func (c *DatabaseClient) GetMessageByID(ctx context.Context, id string) (*models.Message, error) {
	const q = `SELECT id, chat_id, role, content, created_at FROM messages WHERE id = $1`
	var m models.Message
	var content []byte
	err := c.db.QueryRowContext(ctx, q, id).Scan(&m.ID, &m.ChatID, &m.Role, &content, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m.Content = content
	return &m, nil
}

func (c *DatabaseClient) GetMessagesByChatID(ctx context.Context, chatID string) ([]models.Message, error) {
	const q = `
		SELECT id, chat_id, role, content, created_at
		FROM messages
		WHERE chat_id = $1
		ORDER BY created_at ASC
	`
	rows, err := c.db.QueryContext(ctx, q, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Message
	for rows.Next() {
		var m models.Message
		var content []byte
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Role, &content, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Content = content
		out = append(out, m)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) DeleteMessagesByChatIDAfterTimestamp(ctx context.Context, chatID string, ts time.Time) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM messages WHERE chat_id = $1 AND created_at >= $2`, chatID, ts)
	return err
}

func nowIfZero(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}
