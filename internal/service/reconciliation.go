package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"identity-reconciliation/internal/metrics"
	"identity-reconciliation/internal/models"
)

// ReconciliationService handles identity reconciliation logic
type ReconciliationService struct {
	store   ContactStore
	tx      Transactor
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a ReconciliationService.
type Option func(*ReconciliationService)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *ReconciliationService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records identify outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *ReconciliationService) {
		s.metrics = m
	}
}

// NewReconciliationService creates a new reconciliation service
func NewReconciliationService(store ContactStore, tx Transactor, opts ...Option) *ReconciliationService {
	s := &ReconciliationService{
		store:  store,
		tx:     tx,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Identify resolves the submitted email and/or phone number to one
// consolidated identity, creating or merging contacts as needed. All store
// access happens inside a single unit of work.
func (s *ReconciliationService) Identify(ctx context.Context, req models.IdentifyRequest) (*models.IdentifyResponse, error) {
	if err := ValidateRequest(req.Email, req.PhoneNumber); err != nil {
		return nil, err
	}

	start := time.Now()
	var (
		group   *IdentityGroup
		outcome string
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		group, outcome, err = s.consolidate(ctx, req.Email, req.PhoneNumber)
		return err
	})
	if err != nil {
		s.metrics.ObserveIdentify(metrics.OutcomeError, time.Since(start))
		return nil, err
	}
	s.metrics.ObserveIdentify(outcome, time.Since(start))

	s.logger.InfoContext(ctx, "identity resolved",
		"primary_id", group.Primary.ID,
		"secondaries", len(group.Secondaries),
		"outcome", outcome,
	)

	resp := BuildResponse(group.Primary, group.Secondaries)
	return &resp, nil
}

// consolidate decides between creating a primary, attaching a secondary and
// merging identities.
func (s *ReconciliationService) consolidate(ctx context.Context, email, phoneNumber *string) (*IdentityGroup, string, error) {
	matches, err := s.findMatches(ctx, email, phoneNumber)
	if err != nil {
		return nil, "", err
	}

	groups, err := s.resolveGroups(ctx, matches)
	if err != nil {
		return nil, "", err
	}
	if len(groups) > 0 {
		if err := s.ensureRoot(ctx, groups[0]); err != nil {
			return nil, "", err
		}
	}

	switch len(groups) {
	case 0:
		primary, err := s.store.InsertPrimary(ctx, email, phoneNumber)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create primary contact: %w", err)
		}
		return &IdentityGroup{Primary: primary}, metrics.OutcomeCreatedPrimary, nil

	case 1:
		group := groups[0]
		created, err := s.attachIfNew(ctx, group, email, phoneNumber)
		if err != nil {
			return nil, "", err
		}
		if created {
			return group, metrics.OutcomeCreatedSecondary, nil
		}
		return group, metrics.OutcomeUnchanged, nil

	default:
		group, err := s.mergeGroups(ctx, groups, email, phoneNumber)
		if err != nil {
			return nil, "", err
		}
		return group, metrics.OutcomeMerged, nil
	}
}

// ensureRoot promotes a group root that was only treated as primary because
// its own link was broken. Nothing may be linked to a secondary.
func (s *ReconciliationService) ensureRoot(ctx context.Context, group *IdentityGroup) error {
	root := group.Primary
	if root.IsPrimary() && root.LinkedID == nil {
		return nil
	}
	if err := s.store.Promote(ctx, root.ID); err != nil {
		return fmt.Errorf("failed to promote contact: %w", err)
	}
	s.logger.InfoContext(ctx, "promoted contact with broken link to primary",
		"contact_id", root.ID,
	)
	root.LinkedID = nil
	root.LinkPrecedence = models.PrecedencePrimary
	return nil
}

// attachIfNew adds a secondary to group when the submission carries an
// email or phone number the group does not hold yet.
func (s *ReconciliationService) attachIfNew(ctx context.Context, group *IdentityGroup, email, phoneNumber *string) (bool, error) {
	if !needsSecondary(group, email, phoneNumber) {
		return false, nil
	}

	secondary, err := s.store.InsertSecondary(ctx, group.Primary.ID, email, phoneNumber)
	if err != nil {
		return false, fmt.Errorf("failed to create secondary contact: %w", err)
	}
	group.Secondaries = append(group.Secondaries, secondary)
	return true, nil
}

// mergeGroups folds every group into the one with the oldest primary.
// groups must already be ordered oldest primary first.
func (s *ReconciliationService) mergeGroups(ctx context.Context, groups []*IdentityGroup, email, phoneNumber *string) (*IdentityGroup, error) {
	survivor := groups[0]
	merged := &IdentityGroup{
		Primary:     survivor.Primary,
		Secondaries: append([]*models.Contact(nil), survivor.Secondaries...),
	}

	relinked := 0
	for _, loser := range groups[1:] {
		if err := s.store.Relink(ctx, loser.Primary.ID, survivor.Primary.ID, models.PrecedenceSecondary); err != nil {
			return nil, fmt.Errorf("failed to demote primary contact: %w", err)
		}
		relinked++
		for _, secondary := range loser.Secondaries {
			if err := s.store.Relink(ctx, secondary.ID, survivor.Primary.ID, models.PrecedenceSecondary); err != nil {
				return nil, fmt.Errorf("failed to relink secondary contact: %w", err)
			}
			relinked++
		}

		s.logger.InfoContext(ctx, "merged identity",
			"surviving_primary_id", survivor.Primary.ID,
			"demoted_primary_id", loser.Primary.ID,
			"relinked_secondaries", len(loser.Secondaries),
		)
		merged.Secondaries = append(merged.Secondaries, loser.Primary)
		merged.Secondaries = append(merged.Secondaries, loser.Secondaries...)
	}
	s.metrics.AddRelinked(relinked)

	// Judged against the merged membership so a value contributed by a
	// demoted identity does not produce a redundant secondary.
	if needsSecondary(merged, email, phoneNumber) {
		if _, err := s.store.InsertSecondary(ctx, survivor.Primary.ID, email, phoneNumber); err != nil {
			return nil, fmt.Errorf("failed to create secondary contact: %w", err)
		}
	}

	return s.loadGroup(ctx, survivor.Primary.ID)
}

// loadGroup re-reads a primary and all of its secondaries.
func (s *ReconciliationService) loadGroup(ctx context.Context, primaryID int64) (*IdentityGroup, error) {
	primary, err := s.store.GetByID(ctx, primaryID)
	if err != nil {
		return nil, fmt.Errorf("failed to load primary contact: %w", err)
	}
	secondaries, err := s.store.FindByLinkedID(ctx, primaryID)
	if err != nil {
		return nil, fmt.Errorf("failed to load secondary contacts: %w", err)
	}
	sortContacts(secondaries)
	return &IdentityGroup{Primary: primary, Secondaries: secondaries}, nil
}

// needsSecondary reports whether email or phone number is absent from the
// whole group.
func needsSecondary(group *IdentityGroup, email, phoneNumber *string) bool {
	return (email != nil && !groupHasEmail(group, *email)) ||
		(phoneNumber != nil && !groupHasPhoneNumber(group, *phoneNumber))
}

func groupHasEmail(group *IdentityGroup, email string) bool {
	if group.Primary.HasEmail(email) {
		return true
	}
	for _, c := range group.Secondaries {
		if c.HasEmail(email) {
			return true
		}
	}
	return false
}

func groupHasPhoneNumber(group *IdentityGroup, phone string) bool {
	if group.Primary.HasPhoneNumber(phone) {
		return true
	}
	for _, c := range group.Secondaries {
		if c.HasPhoneNumber(phone) {
			return true
		}
	}
	return false
}
