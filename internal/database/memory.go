package database

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"identity-reconciliation/internal/models"
)

// MemoryStore keeps contacts in process memory. It satisfies the same
// contract as ContactStore plus WithinTx, and favours clarity over speed.
// A unit of work holds the store lock for its whole duration and is rolled
// back to its starting snapshot when it fails.
type MemoryStore struct {
	mu       sync.Mutex
	contacts map[int64]*models.Contact
	nextID   int64
	clock    func() time.Time
}

type memoryTxKey struct{}

// NewMemoryStore creates an empty store. clock may be nil.
func NewMemoryStore(clock func() time.Time) *MemoryStore {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryStore{
		contacts: make(map[int64]*models.Contact),
		nextID:   1,
		clock:    clock,
	}
}

// WithinTx runs fn with the store locked, restoring prior state if fn fails.
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.cloneLocked()
	nextID := s.nextID
	if err := fn(context.WithValue(ctx, memoryTxKey{}, s)); err != nil {
		s.contacts = snapshot
		s.nextID = nextID
		return err
	}
	return nil
}

func (s *MemoryStore) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(memoryTxKey{}).(*MemoryStore)
	return owner == s
}

// lock acquires the store unless ctx already belongs to a unit of work on it.
func (s *MemoryStore) lock(ctx context.Context) func() {
	if s.inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// FindByEmailOrPhone returns live contacts holding email or phoneNumber, oldest first.
func (s *MemoryStore) FindByEmailOrPhone(ctx context.Context, email, phoneNumber *string) ([]*models.Contact, error) {
	if email == nil && phoneNumber == nil {
		return nil, nil
	}
	defer s.lock(ctx)()

	return s.selectLocked(func(c *models.Contact) bool {
		return (email != nil && c.HasEmail(*email)) || (phoneNumber != nil && c.HasPhoneNumber(*phoneNumber))
	}), nil
}

// FindByIDsOrLinkedIDs returns live contacts whose id or linked id is in ids.
func (s *MemoryStore) FindByIDsOrLinkedIDs(ctx context.Context, ids []int64) ([]*models.Contact, error) {
	defer s.lock(ctx)()

	return s.selectLocked(func(c *models.Contact) bool {
		return slices.Contains(ids, c.ID) || (c.LinkedID != nil && slices.Contains(ids, *c.LinkedID))
	}), nil
}

// FindByLinkedID returns the live contacts linked to linkedID.
func (s *MemoryStore) FindByLinkedID(ctx context.Context, linkedID int64) ([]*models.Contact, error) {
	defer s.lock(ctx)()

	return s.selectLocked(func(c *models.Contact) bool {
		return c.LinkedID != nil && *c.LinkedID == linkedID
	}), nil
}

// GetByID returns a live contact or ErrNotFound.
func (s *MemoryStore) GetByID(ctx context.Context, id int64) (*models.Contact, error) {
	defer s.lock(ctx)()

	c, ok := s.contacts[id]
	if !ok || c.DeletedAt != nil {
		return nil, fmt.Errorf("contact %d: %w", id, ErrNotFound)
	}
	return cloneContact(c), nil
}

// InsertPrimary stores a new primary contact.
func (s *MemoryStore) InsertPrimary(ctx context.Context, email, phoneNumber *string) (*models.Contact, error) {
	defer s.lock(ctx)()

	return s.insertLocked(&models.Contact{
		Email:          copyString(email),
		PhoneNumber:    copyString(phoneNumber),
		LinkPrecedence: models.PrecedencePrimary,
	}), nil
}

// InsertSecondary stores a new contact linked to linkedID.
func (s *MemoryStore) InsertSecondary(ctx context.Context, linkedID int64, email, phoneNumber *string) (*models.Contact, error) {
	defer s.lock(ctx)()

	if _, ok := s.contacts[linkedID]; !ok {
		return nil, fmt.Errorf("insert secondary for %d: %w", linkedID, ErrNotFound)
	}
	return s.insertLocked(&models.Contact{
		Email:          copyString(email),
		PhoneNumber:    copyString(phoneNumber),
		LinkedID:       &linkedID,
		LinkPrecedence: models.PrecedenceSecondary,
	}), nil
}

// Relink points a contact at a new primary and sets its precedence.
func (s *MemoryStore) Relink(ctx context.Context, id, linkedID int64, precedence models.LinkPrecedence) error {
	defer s.lock(ctx)()

	c, ok := s.contacts[id]
	if !ok {
		return fmt.Errorf("relink contact %d: %w", id, ErrNotFound)
	}
	c.LinkedID = &linkedID
	c.LinkPrecedence = precedence
	c.UpdatedAt = s.clock().UTC()
	return nil
}

// Promote turns a live contact into a primary with no link.
func (s *MemoryStore) Promote(ctx context.Context, id int64) error {
	defer s.lock(ctx)()

	c, ok := s.contacts[id]
	if !ok || c.DeletedAt != nil {
		return fmt.Errorf("promote contact %d: %w", id, ErrNotFound)
	}
	c.LinkedID = nil
	c.LinkPrecedence = models.PrecedencePrimary
	c.UpdatedAt = s.clock().UTC()
	return nil
}

// Put stores c verbatim, assigning an id when c.ID is zero. It bypasses every
// invariant so tests can seed corrupted data.
func (s *MemoryStore) Put(c *models.Contact) *models.Contact {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := cloneContact(c)
	if stored.ID == 0 {
		stored.ID = s.nextID
	}
	if stored.ID >= s.nextID {
		s.nextID = stored.ID + 1
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.clock().UTC()
		stored.UpdatedAt = stored.CreatedAt
	}
	s.contacts[stored.ID] = stored
	return cloneContact(stored)
}

// SoftDelete tombstones a contact.
func (s *MemoryStore) SoftDelete(ctx context.Context, id int64) error {
	defer s.lock(ctx)()

	c, ok := s.contacts[id]
	if !ok || c.DeletedAt != nil {
		return fmt.Errorf("soft delete contact %d: %w", id, ErrNotFound)
	}
	now := s.clock().UTC()
	c.DeletedAt = &now
	return nil
}

// All returns every stored contact, tombstoned ones included, by id.
func (s *MemoryStore) All() []*models.Contact {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*models.Contact, 0, len(s.contacts))
	for _, c := range s.contacts {
		out = append(out, cloneContact(c))
	}
	slices.SortFunc(out, func(a, b *models.Contact) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

func (s *MemoryStore) insertLocked(c *models.Contact) *models.Contact {
	now := s.clock().UTC()
	c.ID = s.nextID
	c.CreatedAt = now
	c.UpdatedAt = now
	s.nextID++
	s.contacts[c.ID] = c
	return cloneContact(c)
}

func (s *MemoryStore) selectLocked(match func(*models.Contact) bool) []*models.Contact {
	var out []*models.Contact
	for _, c := range s.contacts {
		if c.DeletedAt == nil && match(c) {
			out = append(out, cloneContact(c))
		}
	}
	slices.SortFunc(out, func(a, b *models.Contact) int {
		if a.CreatedBefore(b) {
			return -1
		}
		if b.CreatedBefore(a) {
			return 1
		}
		return 0
	})
	return out
}

func (s *MemoryStore) cloneLocked() map[int64]*models.Contact {
	out := make(map[int64]*models.Contact, len(s.contacts))
	for id, c := range s.contacts {
		out[id] = cloneContact(c)
	}
	return out
}

func cloneContact(c *models.Contact) *models.Contact {
	out := *c
	out.Email = copyString(c.Email)
	out.PhoneNumber = copyString(c.PhoneNumber)
	if c.LinkedID != nil {
		id := *c.LinkedID
		out.LinkedID = &id
	}
	if c.DeletedAt != nil {
		t := *c.DeletedAt
		out.DeletedAt = &t
	}
	return &out
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
