package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/meddy-health/meddy/internal/models"
)

func (c *DatabaseClient) CreateAttachment(ctx context.Context, a *models.Attachment) error {
	if a == nil {
		return errors.New("nil attachment")
	}
	if a.Status == "" {
		a.Status = models.AttachmentUploaded
	}
	const q = `
		INSERT INTO attachments (id, user_id, chat_id, file_name, storage_url, content_type, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
	`
	_, err := c.db.ExecContext(ctx, q, a.ID, a.UserID, a.ChatID, a.FileName, a.StorageURL, a.ContentType, a.Status)
	return err
}

const attachmentColumns = `id, user_id, chat_id, file_name, storage_url, content_type, status, created_at, updated_at`

func scanAttachment(s interface{ Scan(...any) error }) (models.Attachment, error) {
	var a models.Attachment
	err := s.Scan(&a.ID, &a.UserID, &a.ChatID, &a.FileName, &a.StorageURL, &a.ContentType, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (c *DatabaseClient) GetAttachmentByID(ctx context.Context, id string) (*models.Attachment, error) {
	a, err := scanAttachment(c.db.QueryRowContext(ctx, `SELECT `+attachmentColumns+` FROM attachments WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAttachmentsByChat lists the user's attachments; an empty chatID lists all of them.
func (c *DatabaseClient) ListAttachmentsByChat(ctx context.Context, userID, chatID string) ([]models.Attachment, error) {
	q := `
		SELECT ` + attachmentColumns + `
		FROM attachments
		WHERE user_id = $1 AND ($2 = '' OR chat_id::text = $2)
		ORDER BY created_at DESC
	`
	rows, err := c.db.QueryContext(ctx, q, userID, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Attachment
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) UpdateAttachmentStatus(ctx context.Context, id, status string) error {
	const q = `UPDATE attachments SET status = $2, updated_at = now() WHERE id = $1`
	res, err := c.db.ExecContext(ctx, q, id, status)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("attachment not found: %s", id)
	}
	return nil
}

// InsertAttachmentChunks inserts chunks in a single transaction.
func (c *DatabaseClient) InsertAttachmentChunks(ctx context.Context, chunks []models.AttachmentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	return c.withTx(ctx, func(tx *sql.Tx) error {
		const q = `
			INSERT INTO attachment_chunks
				(id, attachment_id, position, text, embedding, token_count, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`
		stmt, err := tx.PrepareContext(ctx, q)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i := range chunks {
			ch := &chunks[i]
			vec := pgvector.NewVector(ch.Embedding)
			if _, err := stmt.ExecContext(ctx,
				ch.ID, ch.AttachmentID, ch.Position, ch.Text, vec, ch.TokenCount, nowIfZero(ch.CreatedAt),
			); err != nil {
				return fmt.Errorf("insert chunk %d: %w", ch.Position, err)
			}
		}
		return nil
	})
}

// SearchAttachmentChunks returns the nearest chunks from the user's ready
// attachments in a chat.
func (c *DatabaseClient) SearchAttachmentChunks(ctx context.Context, userID, chatID string, queryVec []float32, limit int) ([]models.AttachmentChunk, error) {
	const q = `
		SELECT ac.id, ac.attachment_id, ac.position, ac.text, ac.embedding, ac.token_count, ac.created_at
		FROM attachment_chunks ac
		JOIN attachments a ON a.id = ac.attachment_id
		WHERE a.user_id = $1
		  AND ($2 = '' OR a.chat_id::text = $2)
		  AND a.status = 'ready'
		ORDER BY ac.embedding <-> $3
		LIMIT $4
	`
	vec := pgvector.NewVector(queryVec)
	rows, err := c.db.QueryContext(ctx, q, userID, chatID, vec, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.AttachmentChunk
	for rows.Next() {
		var (
			ch  models.AttachmentChunk
			emb pgvector.Vector
		)
		if err := rows.Scan(&ch.ID, &ch.AttachmentID, &ch.Position, &ch.Text, &emb, &ch.TokenCount, &ch.CreatedAt); err != nil {
			return nil, err
		}
		ch.Embedding = emb.Slice()
		out = append(out, ch)
	}
	return out, rows.Err()
}
