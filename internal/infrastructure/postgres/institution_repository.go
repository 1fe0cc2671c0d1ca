package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"budgetwatch/internal/domain/institution"
	"budgetwatch/internal/infrastructure/crypto"
)

// InstitutionRepository implements institution.Repository. Access tokens
// are encrypted before they reach the database.
type InstitutionRepository struct {
	db        *DB
	encryptor *crypto.Encryptor
}

// NewInstitutionRepository creates a new PostgreSQL institution link repository
func NewInstitutionRepository(db *DB, encryptor *crypto.Encryptor) *InstitutionRepository {
	return &InstitutionRepository{db: db, encryptor: encryptor}
}

func (r *InstitutionRepository) scanLink(row rowScanner) (*institution.Link, error) {
	var link institution.Link
	var sealed string

	if err := row.Scan(&link.ID, &link.UserID, &link.Name, &link.ItemID, &sealed, &link.CreatedAt); err != nil {
		return nil, err
	}

	token, err := r.encryptor.Decrypt(sealed)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt access token for link %d: %w", link.ID, err)
	}
	link.AccessToken = token

	return &link, nil
}

// Create stores a new link
func (r *InstitutionRepository) Create(ctx context.Context, params institution.CreateParams) (*institution.Link, error) {
	sealed, err := r.encryptor.Encrypt(params.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt access token: %w", err)
	}

	query := `
		INSERT INTO institution_links (user_id, name, item_id, access_token)
		VALUES ($1, $2, $3, $4)
		RETURNING id, user_id, name, item_id, access_token, created_at
	`

	link, err := r.scanLink(r.db.QueryRowContext(ctx, query, params.UserID, params.Name, params.ItemID, sealed))
	if err != nil {
		return nil, fmt.Errorf("failed to create institution link: %w", err)
	}

	return link, nil
}

// GetByID retrieves a link by its ID
func (r *InstitutionRepository) GetByID(ctx context.Context, id int64) (*institution.Link, error) {
	query := `
		SELECT id, user_id, name, item_id, access_token, created_at
		FROM institution_links
		WHERE id = $1
	`

	link, err := r.scanLink(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, institution.ErrLinkNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get institution link: %w", err)
	}

	return link, nil
}

// ListByUserID retrieves the links of one user
func (r *InstitutionRepository) ListByUserID(ctx context.Context, userID int64) ([]*institution.Link, error) {
	return r.list(ctx, `
		SELECT id, user_id, name, item_id, access_token, created_at
		FROM institution_links
		WHERE user_id = $1
		ORDER BY id
	`, userID)
}

// List retrieves every link
func (r *InstitutionRepository) List(ctx context.Context) ([]*institution.Link, error) {
	return r.list(ctx, `
		SELECT id, user_id, name, item_id, access_token, created_at
		FROM institution_links
		ORDER BY id
	`)
}

func (r *InstitutionRepository) list(ctx context.Context, query string, args ...any) ([]*institution.Link, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list institution links: %w", err)
	}
	defer rows.Close()

	var links []*institution.Link
	for rows.Next() {
		link, err := r.scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan institution link: %w", err)
		}
		links = append(links, link)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating institution links: %w", err)
	}

	return links, nil
}

// Delete removes a link. Accounts and trackers go with it by cascade.
func (r *InstitutionRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM institution_links WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete institution link: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if rows == 0 {
		return institution.ErrLinkNotFound
	}

	return nil
}
