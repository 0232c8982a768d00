package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sipdeck/sipdeck/internal/database/models"
)

// contactRepo implements ContactRepository.
type contactRepo struct {
	db *DB
}

// NewContactRepository creates a new ContactRepository.
func NewContactRepository(db *DB) ContactRepository {
	return &contactRepo{db: db}
}

// Create inserts a new contact.
func (r *contactRepo) Create(ctx context.Context, contact *models.Contact) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO contacts (name, uri, phone, email, notes, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, datetime('now'), datetime('now'))`,
		contact.Name, contact.URI, contact.Phone, contact.Email, contact.Notes,
	)
	if err != nil {
		return fmt.Errorf("inserting contact: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	contact.ID = id
	return nil
}

// GetByID returns a contact by ID, or nil if not found.
func (r *contactRepo) GetByID(ctx context.Context, id int64) (*models.Contact, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT id, name, uri, phone, email, notes, created_at, updated_at
		 FROM contacts WHERE id = ?`, id,
	))
}

// GetByURI returns a contact by SIP URI, or nil if not found.
func (r *contactRepo) GetByURI(ctx context.Context, uri string) (*models.Contact, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT id, name, uri, phone, email, notes, created_at, updated_at
		 FROM contacts WHERE uri = ?`, uri,
	))
}

// List returns all contacts ordered by name.
func (r *contactRepo) List(ctx context.Context) ([]models.Contact, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, uri, phone, email, notes, created_at, updated_at
		 FROM contacts ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying contacts: %w", err)
	}
	defer rows.Close()

	var contacts []models.Contact
	for rows.Next() {
		var c models.Contact
		if err := rows.Scan(&c.ID, &c.Name, &c.URI, &c.Phone, &c.Email, &c.Notes,
			&c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning contact row: %w", err)
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

// Update modifies an existing contact.
func (r *contactRepo) Update(ctx context.Context, contact *models.Contact) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE contacts SET name = ?, uri = ?, phone = ?, email = ?, notes = ?,
		 updated_at = datetime('now')
		 WHERE id = ?`,
		contact.Name, contact.URI, contact.Phone, contact.Email, contact.Notes,
		contact.ID,
	)
	if err != nil {
		return fmt.Errorf("updating contact: %w", err)
	}
	return nil
}

// Delete removes a contact by ID.
func (r *contactRepo) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM contacts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting contact: %w", err)
	}
	return nil
}

func (r *contactRepo) scanOne(row *sql.Row) (*models.Contact, error) {
	var c models.Contact
	err := row.Scan(&c.ID, &c.Name, &c.URI, &c.Phone, &c.Email, &c.Notes,
		&c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning contact: %w", err)
	}
	return &c, nil
}
