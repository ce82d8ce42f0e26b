package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/meddy-health/meddy/internal/models"
)

// Documents

// SaveDocument stores a new revision; revisions share the document ID.
func (c *DatabaseClient) SaveDocument(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return errors.New("nil document")
	}
	if doc.Kind == "" {
		doc.Kind = models.DocumentKindText
	}
	doc.CreatedAt = nowIfZero(doc.CreatedAt)
	const q = `
		INSERT INTO documents (id, created_at, title, content, kind, user_id, chat_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := c.db.ExecContext(ctx, q, doc.ID, doc.CreatedAt, doc.Title, doc.Content, doc.Kind, doc.UserID, doc.ChatID)
	return err
}

const documentColumns = `id, created_at, title, content, kind, user_id, chat_id`

func scanDocument(s interface{ Scan(...any) error }) (models.Document, error) {
	var d models.Document
	err := s.Scan(&d.ID, &d.CreatedAt, &d.Title, &d.Content, &d.Kind, &d.UserID, &d.ChatID)
	return d, err
}

// GetDocumentsByID returns every revision, oldest first.
func (c *DatabaseClient) GetDocumentsByID(ctx context.Context, id string) ([]models.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1 ORDER BY created_at ASC`
	rows, err := c.db.QueryContext(ctx, q, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// GetDocumentByID returns the latest revision or nil.
func (c *DatabaseClient) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1 ORDER BY created_at DESC LIMIT 1`
	d, err := scanDocument(c.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// DeleteDocumentsByIDAfterTimestamp drops revisions newer than ts along with
// their suggestions.
func (c *DatabaseClient) DeleteDocumentsByIDAfterTimestamp(ctx context.Context, id string, ts time.Time) error {
	return c.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM suggestions WHERE document_id = $1 AND document_created_at > $2`, id, ts,
		); err != nil {
			return fmt.Errorf("delete suggestions: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM documents WHERE id = $1 AND created_at > $2`, id, ts,
		); err != nil {
			return fmt.Errorf("delete documents: %w", err)
		}
		return nil
	})
}

// Suggestions

func (c *DatabaseClient) SaveSuggestions(ctx context.Context, suggestions []models.Suggestion) error {
	if len(suggestions) == 0 {
		return nil
	}
	return c.withTx(ctx, func(tx *sql.Tx) error {
		const q = `
			INSERT INTO suggestions
				(id, document_id, document_created_at, original_text, suggested_text,
				 description, is_resolved, user_id, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`
		stmt, err := tx.PrepareContext(ctx, q)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i := range suggestions {
			s := &suggestions[i]
			if _, err := stmt.ExecContext(ctx,
				s.ID, s.DocumentID, s.DocumentCreatedAt, s.OriginalText, s.SuggestedText,
				s.Description, s.IsResolved, s.UserID, nowIfZero(s.CreatedAt),
			); err != nil {
				return fmt.Errorf("insert suggestion %s: %w", s.ID, err)
			}
		}
		return nil
	})
}

func (c *DatabaseClient) GetSuggestionsByDocumentID(ctx context.Context, documentID string) ([]models.Suggestion, error) {
	const q = `
		SELECT id, document_id, document_created_at, original_text, suggested_text,
		       description, is_resolved, user_id, created_at
		FROM suggestions
		WHERE document_id = $1
		ORDER BY created_at ASC
	`
	rows, err := c.db.QueryContext(ctx, q, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Suggestion
	for rows.Next() {
		var s models.Suggestion
		if err := rows.Scan(
			&s.ID, &s.DocumentID, &s.DocumentCreatedAt, &s.OriginalText, &s.SuggestedText,
			&s.Description, &s.IsResolved, &s.UserID, &s.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Doctors

// GetDoctorsBySpeciality matches any of the candidate names case-insensitively.
func (c *DatabaseClient) GetDoctorsBySpeciality(ctx context.Context, specialities []string) ([]models.Doctor, error) {
	if len(specialities) == 0 {
		return nil, nil
	}
	const q = `
		SELECT id, name, degree, yoe, location, city, speciality, consult_fee
		FROM doctors
		WHERE lower(speciality) = ANY($1::text[])
		ORDER BY name
	`
	rows, err := c.db.QueryContext(ctx, q, pq.Array(specialities))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Doctor
	for rows.Next() {
		var d models.Doctor
		if err := rows.Scan(&d.ID, &d.Name, &d.Degree, &d.YOE, &d.Location, &d.City, &d.Speciality, &d.ConsultFee); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
