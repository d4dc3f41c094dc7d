package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"identity-reconciliation/internal/models"
)

// ErrNotFound is returned when a lookup by id finds no live contact.
var ErrNotFound = errors.New("contact not found")

const contactColumns = `id, phone_number, email, linked_id, link_precedence, created_at, updated_at, deleted_at`

// ContactStore persists contacts in the SQL database.
type ContactStore struct {
	db *DB
}

// NewContactStore creates a store over db.
func NewContactStore(db *DB) *ContactStore {
	return &ContactStore{db: db}
}

// FindByEmailOrPhone returns live contacts whose email or phone number equals
// the supplied values. Absent values do not participate.
func (s *ContactStore) FindByEmailOrPhone(ctx context.Context, email, phoneNumber *string) ([]*models.Contact, error) {
	var conditions []string
	var args []any

	if email != nil {
		args = append(args, *email)
		conditions = append(conditions, "email = $"+strconv.Itoa(len(args)))
	}
	if phoneNumber != nil {
		args = append(args, *phoneNumber)
		conditions = append(conditions, "phone_number = $"+strconv.Itoa(len(args)))
	}
	if len(conditions) == 0 {
		return nil, nil
	}

	query := `SELECT ` + contactColumns + ` FROM contacts
			  WHERE (` + strings.Join(conditions, " OR ") + `) AND deleted_at IS NULL
			  ORDER BY created_at ASC, id ASC`
	contacts, err := s.queryContacts(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query contacts by email or phone: %w", err)
	}
	return contacts, nil
}

// FindByIDsOrLinkedIDs returns live contacts whose id or linked_id is in ids.
func (s *ContactStore) FindByIDsOrLinkedIDs(ctx context.Context, ids []int64) ([]*models.Contact, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "$" + strconv.Itoa(i+1)
		args[i] = id
	}
	in := strings.Join(placeholders, ", ")

	query := `SELECT ` + contactColumns + ` FROM contacts
			  WHERE (id IN (` + in + `) OR linked_id IN (` + in + `)) AND deleted_at IS NULL
			  ORDER BY created_at ASC, id ASC`
	contacts, err := s.queryContacts(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query contacts by ids: %w", err)
	}
	return contacts, nil
}

// FindByLinkedID returns the live secondaries of a primary, oldest first.
func (s *ContactStore) FindByLinkedID(ctx context.Context, linkedID int64) ([]*models.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts
			  WHERE linked_id = $1 AND deleted_at IS NULL
			  ORDER BY created_at ASC, id ASC`
	contacts, err := s.queryContacts(ctx, query, linkedID)
	if err != nil {
		return nil, fmt.Errorf("query contacts by linked id: %w", err)
	}
	return contacts, nil
}

// GetByID returns a live contact or ErrNotFound.
func (s *ContactStore) GetByID(ctx context.Context, id int64) (*models.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE id = $1 AND deleted_at IS NULL`
	contacts, err := s.queryContacts(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("query contact %d: %w", id, err)
	}
	if len(contacts) == 0 {
		return nil, fmt.Errorf("contact %d: %w", id, ErrNotFound)
	}
	return contacts[0], nil
}

// InsertPrimary creates a new primary contact
func (s *ContactStore) InsertPrimary(ctx context.Context, email, phoneNumber *string) (*models.Contact, error) {
	query := `INSERT INTO contacts (phone_number, email, link_precedence, created_at, updated_at)
			  VALUES ($1, $2, 'primary', $3, $4) RETURNING id`

	now := s.db.now()
	var id int64
	err := s.db.querier(ctx).QueryRowContext(ctx, query, phoneNumber, email, now, now).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("insert primary contact: %w", err)
	}

	return &models.Contact{
		ID:             id,
		PhoneNumber:    phoneNumber,
		Email:          email,
		LinkPrecedence: models.PrecedencePrimary,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// InsertSecondary creates a new secondary contact linked to linkedID
func (s *ContactStore) InsertSecondary(ctx context.Context, linkedID int64, email, phoneNumber *string) (*models.Contact, error) {
	query := `INSERT INTO contacts (phone_number, email, linked_id, link_precedence, created_at, updated_at)
			  VALUES ($1, $2, $3, 'secondary', $4, $5) RETURNING id`

	now := s.db.now()
	var id int64
	err := s.db.querier(ctx).QueryRowContext(ctx, query, phoneNumber, email, linkedID, now, now).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("insert secondary contact: %w", err)
	}

	return &models.Contact{
		ID:             id,
		PhoneNumber:    phoneNumber,
		Email:          email,
		LinkedID:       &linkedID,
		LinkPrecedence: models.PrecedenceSecondary,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Relink points a contact at a new primary and sets its precedence.
func (s *ContactStore) Relink(ctx context.Context, id, linkedID int64, precedence models.LinkPrecedence) error {
	query := `UPDATE contacts SET link_precedence = $1, linked_id = $2, updated_at = $3 WHERE id = $4`
	res, err := s.db.querier(ctx).ExecContext(ctx, query, string(precedence), linkedID, s.db.now(), id)
	if err != nil {
		return fmt.Errorf("relink contact %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("relink contact %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("relink contact %d: %w", id, ErrNotFound)
	}
	return nil
}

// Promote turns a live contact into a primary with no link.
func (s *ContactStore) Promote(ctx context.Context, id int64) error {
	query := `UPDATE contacts SET link_precedence = $1, linked_id = NULL, updated_at = $2 WHERE id = $3 AND deleted_at IS NULL`
	res, err := s.db.querier(ctx).ExecContext(ctx, query, string(models.PrecedencePrimary), s.db.now(), id)
	if err != nil {
		return fmt.Errorf("promote contact %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("promote contact %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("promote contact %d: %w", id, ErrNotFound)
	}
	return nil
}

// SoftDelete tombstones a contact so every read path ignores it.
func (s *ContactStore) SoftDelete(ctx context.Context, id int64) error {
	query := `UPDATE contacts SET deleted_at = $1 WHERE id = $2 AND deleted_at IS NULL`
	res, err := s.db.querier(ctx).ExecContext(ctx, query, s.db.now(), id)
	if err != nil {
		return fmt.Errorf("soft delete contact %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("soft delete contact %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("soft delete contact %d: %w", id, ErrNotFound)
	}
	return nil
}

// queryContacts executes a query and returns contacts
func (s *ContactStore) queryContacts(ctx context.Context, query string, args ...any) ([]*models.Contact, error) {
	rows, err := s.db.querier(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contacts []*models.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}

	return contacts, rows.Err()
}

func scanContact(rows *sql.Rows) (*models.Contact, error) {
	c := &models.Contact{}
	var phone, email sql.NullString
	var linkedID sql.NullInt64
	var precedence string
	var deletedAt sql.NullTime

	err := rows.Scan(&c.ID, &phone, &email, &linkedID, &precedence, &c.CreatedAt, &c.UpdatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}

	if phone.Valid {
		c.PhoneNumber = &phone.String
	}
	if email.Valid {
		c.Email = &email.String
	}
	if linkedID.Valid {
		c.LinkedID = &linkedID.Int64
	}
	if deletedAt.Valid {
		c.DeletedAt = &deletedAt.Time
	}
	c.LinkPrecedence = models.LinkPrecedence(precedence)
	if !c.LinkPrecedence.Valid() {
		return nil, fmt.Errorf("contact %d has unknown link precedence %q", c.ID, precedence)
	}

	return c, nil
}
