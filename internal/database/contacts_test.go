package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"identity-reconciliation/internal/logger"
	"identity-reconciliation/internal/models"
)

// contactStore is the surface shared by ContactStore and MemoryStore.
type contactStore interface {
	FindByEmailOrPhone(ctx context.Context, email, phoneNumber *string) ([]*models.Contact, error)
	FindByIDsOrLinkedIDs(ctx context.Context, ids []int64) ([]*models.Contact, error)
	FindByLinkedID(ctx context.Context, linkedID int64) ([]*models.Contact, error)
	GetByID(ctx context.Context, id int64) (*models.Contact, error)
	InsertPrimary(ctx context.Context, email, phoneNumber *string) (*models.Contact, error)
	InsertSecondary(ctx context.Context, linkedID int64, email, phoneNumber *string) (*models.Contact, error)
	Relink(ctx context.Context, id, linkedID int64, precedence models.LinkPrecedence) error
	Promote(ctx context.Context, id int64) error
	SoftDelete(ctx context.Context, id int64) error
}

type txRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type ContactStoreSuite struct {
	suite.Suite
	newStore func() (contactStore, txRunner, func())

	ctx     context.Context
	store   contactStore
	tx      txRunner
	cleanup func()
}

func TestSQLiteContactStore(t *testing.T) {
	suite.Run(t, &ContactStoreSuite{newStore: func() (contactStore, txRunner, func()) {
		db, err := New(":memory:", WithLogger(logger.Discard()), WithClock(steppingClock()))
		if err != nil {
			t.Fatalf("open sqlite: %v", err)
		}
		return NewContactStore(db), db, func() { db.Close() }
	}})
}

func TestMemoryContactStore(t *testing.T) {
	suite.Run(t, &ContactStoreSuite{newStore: func() (contactStore, txRunner, func()) {
		s := NewMemoryStore(steppingClock())
		return s, s, func() {}
	}})
}

func steppingClock() func() time.Time {
	t := time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func str(s string) *string { return &s }

func ids(contacts []*models.Contact) []int64 {
	out := make([]int64, 0, len(contacts))
	for _, c := range contacts {
		out = append(out, c.ID)
	}
	return out
}

func (s *ContactStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.store, s.tx, s.cleanup = s.newStore()
}

func (s *ContactStoreSuite) TearDownTest() {
	s.cleanup()
}

func (s *ContactStoreSuite) TestInsertAndGet() {
	primary, err := s.store.InsertPrimary(s.ctx, str("doc@hillvalley.edu"), str("123456"))
	s.Require().NoError(err)
	s.Equal(models.PrecedencePrimary, primary.LinkPrecedence)
	s.Nil(primary.LinkedID)

	secondary, err := s.store.InsertSecondary(s.ctx, primary.ID, str("emmett@hillvalley.edu"), nil)
	s.Require().NoError(err)
	s.Greater(secondary.ID, primary.ID)

	got, err := s.store.GetByID(s.ctx, secondary.ID)
	s.Require().NoError(err)
	s.Equal("emmett@hillvalley.edu", *got.Email)
	s.Nil(got.PhoneNumber)
	s.Equal(primary.ID, *got.LinkedID)
	s.Equal(models.PrecedenceSecondary, got.LinkPrecedence)
	s.Nil(got.DeletedAt)
}

func (s *ContactStoreSuite) TestGetByIDMissing() {
	_, err := s.store.GetByID(s.ctx, 404)
	s.Require().ErrorIs(err, ErrNotFound)
}

func (s *ContactStoreSuite) TestFindByEmailOrPhone() {
	a, err := s.store.InsertPrimary(s.ctx, str("a@x.io"), str("1"))
	s.Require().NoError(err)
	b, err := s.store.InsertPrimary(s.ctx, str("b@x.io"), str("2"))
	s.Require().NoError(err)
	c, err := s.store.InsertSecondary(s.ctx, a.ID, str("b@x.io"), str("3"))
	s.Require().NoError(err)

	s.Run("either field matches", func() {
		got, err := s.store.FindByEmailOrPhone(s.ctx, str("b@x.io"), str("1"))
		s.Require().NoError(err)
		s.Equal([]int64{a.ID, b.ID, c.ID}, ids(got))
	})

	s.Run("absent fields do not participate", func() {
		got, err := s.store.FindByEmailOrPhone(s.ctx, nil, str("3"))
		s.Require().NoError(err)
		s.Equal([]int64{c.ID}, ids(got))
	})

	s.Run("no match is empty", func() {
		got, err := s.store.FindByEmailOrPhone(s.ctx, str("nobody@x.io"), nil)
		s.Require().NoError(err)
		s.Empty(got)
	})

	s.Run("nothing supplied is empty", func() {
		got, err := s.store.FindByEmailOrPhone(s.ctx, nil, nil)
		s.Require().NoError(err)
		s.Empty(got)
	})
}

func (s *ContactStoreSuite) TestFindByIDsOrLinkedIDs() {
	a, _ := s.store.InsertPrimary(s.ctx, str("a@x.io"), nil)
	b, _ := s.store.InsertPrimary(s.ctx, str("b@x.io"), nil)
	a2, _ := s.store.InsertSecondary(s.ctx, a.ID, nil, str("1"))
	b2, _ := s.store.InsertSecondary(s.ctx, b.ID, nil, str("2"))

	got, err := s.store.FindByIDsOrLinkedIDs(s.ctx, []int64{a.ID, b2.ID})
	s.Require().NoError(err)
	s.Equal([]int64{a.ID, a2.ID, b2.ID}, ids(got))

	got, err = s.store.FindByIDsOrLinkedIDs(s.ctx, nil)
	s.Require().NoError(err)
	s.Empty(got)
}

func (s *ContactStoreSuite) TestRelink() {
	a, _ := s.store.InsertPrimary(s.ctx, str("a@x.io"), nil)
	b, _ := s.store.InsertPrimary(s.ctx, str("b@x.io"), nil)
	b2, _ := s.store.InsertSecondary(s.ctx, b.ID, str("c@x.io"), nil)

	s.Require().NoError(s.store.Relink(s.ctx, b.ID, a.ID, models.PrecedenceSecondary))
	s.Require().NoError(s.store.Relink(s.ctx, b2.ID, a.ID, models.PrecedenceSecondary))

	demoted, err := s.store.GetByID(s.ctx, b.ID)
	s.Require().NoError(err)
	s.Equal(models.PrecedenceSecondary, demoted.LinkPrecedence)
	s.Equal(a.ID, *demoted.LinkedID)
	s.True(demoted.UpdatedAt.After(demoted.CreatedAt))

	linked, err := s.store.FindByLinkedID(s.ctx, a.ID)
	s.Require().NoError(err)
	s.Equal([]int64{b.ID, b2.ID}, ids(linked))

	s.Require().ErrorIs(s.store.Relink(s.ctx, 404, a.ID, models.PrecedenceSecondary), ErrNotFound)
}

func (s *ContactStoreSuite) TestPromote() {
	a, _ := s.store.InsertPrimary(s.ctx, str("a@x.io"), nil)
	a2, _ := s.store.InsertSecondary(s.ctx, a.ID, str("b@x.io"), nil)

	s.Require().NoError(s.store.Promote(s.ctx, a2.ID))

	promoted, err := s.store.GetByID(s.ctx, a2.ID)
	s.Require().NoError(err)
	s.Equal(models.PrecedencePrimary, promoted.LinkPrecedence)
	s.Nil(promoted.LinkedID)

	linked, err := s.store.FindByLinkedID(s.ctx, a.ID)
	s.Require().NoError(err)
	s.Empty(linked)

	s.Require().NoError(s.store.SoftDelete(s.ctx, a.ID))
	s.Require().ErrorIs(s.store.Promote(s.ctx, a.ID), ErrNotFound)
	s.Require().ErrorIs(s.store.Promote(s.ctx, 404), ErrNotFound)
}

func (s *ContactStoreSuite) TestSoftDeleteMissingContact() {
	a, _ := s.store.InsertPrimary(s.ctx, str("a@x.io"), nil)
	s.Require().NoError(s.store.SoftDelete(s.ctx, a.ID))

	s.Require().ErrorIs(s.store.SoftDelete(s.ctx, a.ID), ErrNotFound)
	s.Require().ErrorIs(s.store.SoftDelete(s.ctx, 404), ErrNotFound)
}

func (s *ContactStoreSuite) TestSoftDeletedContactsAreHidden() {
	a, _ := s.store.InsertPrimary(s.ctx, str("a@x.io"), str("1"))
	a2, _ := s.store.InsertSecondary(s.ctx, a.ID, str("b@x.io"), str("1"))
	s.Require().NoError(s.store.SoftDelete(s.ctx, a2.ID))

	got, err := s.store.FindByEmailOrPhone(s.ctx, str("b@x.io"), str("1"))
	s.Require().NoError(err)
	s.Equal([]int64{a.ID}, ids(got))

	got, err = s.store.FindByIDsOrLinkedIDs(s.ctx, []int64{a.ID})
	s.Require().NoError(err)
	s.Equal([]int64{a.ID}, ids(got))

	linked, err := s.store.FindByLinkedID(s.ctx, a.ID)
	s.Require().NoError(err)
	s.Empty(linked)

	_, err = s.store.GetByID(s.ctx, a2.ID)
	s.Require().ErrorIs(err, ErrNotFound)
}

func (s *ContactStoreSuite) TestWithinTxRollsBackOnError() {
	boom := errors.New("boom")
	err := s.tx.WithinTx(s.ctx, func(ctx context.Context) error {
		if _, err := s.store.InsertPrimary(ctx, str("ghost@x.io"), nil); err != nil {
			return err
		}
		return boom
	})
	s.Require().ErrorIs(err, boom)

	got, err := s.store.FindByEmailOrPhone(s.ctx, str("ghost@x.io"), nil)
	s.Require().NoError(err)
	s.Empty(got)
}

func (s *ContactStoreSuite) TestWithinTxCommits() {
	err := s.tx.WithinTx(s.ctx, func(ctx context.Context) error {
		a, err := s.store.InsertPrimary(ctx, str("a@x.io"), nil)
		if err != nil {
			return err
		}
		// Nested units join the outer one.
		return s.tx.WithinTx(ctx, func(ctx context.Context) error {
			_, err := s.store.InsertSecondary(ctx, a.ID, str("b@x.io"), nil)
			return err
		})
	})
	s.Require().NoError(err)

	got, err := s.store.FindByEmailOrPhone(s.ctx, str("b@x.io"), nil)
	s.Require().NoError(err)
	s.Len(got, 1)
}
