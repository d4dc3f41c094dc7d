package service

import (
	"context"
	"fmt"
	"slices"

	"identity-reconciliation/internal/models"
)

// IdentityGroup is a primary contact and every live contact linked to it,
// secondaries oldest first.
type IdentityGroup struct {
	Primary     *models.Contact
	Secondaries []*models.Contact
}

// resolveGroups expands matched contacts to the complete identities they
// belong to and partitions them by primary. Groups come back oldest primary
// first.
func (s *ReconciliationService) resolveGroups(ctx context.Context, matches []contactMatch) ([]*IdentityGroup, error) {
	if len(matches) == 0 {
		return nil, nil
	}

	// A match may land on a secondary only; its primary pulls in the rest.
	seen := make(map[int64]bool)
	var ids []int64
	addID := func(id int64) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, m := range matches {
		addID(m.contact.ID)
		if !m.contact.IsPrimary() && m.contact.LinkedID != nil {
			addID(*m.contact.LinkedID)
		}
	}

	related, err := s.store.FindByIDsOrLinkedIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to expand contact groups: %w", err)
	}

	index := make(map[int64]*models.Contact, len(related))
	for _, c := range related {
		index[c.ID] = c
	}

	groups := make(map[int64]*IdentityGroup)
	for _, c := range related {
		primaryID := s.resolvePrimaryID(ctx, c, index)
		g, ok := groups[primaryID]
		if !ok {
			g = &IdentityGroup{Primary: index[primaryID]}
			groups[primaryID] = g
		}
		if c.ID != primaryID {
			g.Secondaries = append(g.Secondaries, c)
		}
	}

	out := make([]*IdentityGroup, 0, len(groups))
	for _, g := range groups {
		sortContacts(g.Secondaries)
		out = append(out, g)
	}
	slices.SortFunc(out, func(a, b *IdentityGroup) int {
		return compareCreated(a.Primary, b.Primary)
	})
	return out, nil
}

// resolvePrimaryID walks the linked_id chain of c through index until it
// reaches a primary. A revisited id or a link to a contact outside index is
// corrupted data: the walk stops and c is treated as its own primary.
func (s *ReconciliationService) resolvePrimaryID(ctx context.Context, c *models.Contact, index map[int64]*models.Contact) int64 {
	visited := make(map[int64]bool)
	cur := c
	for !cur.IsPrimary() {
		if visited[cur.ID] {
			s.logger.WarnContext(ctx, "circular contact link detected, treating contact as its own primary",
				"contact_id", c.ID,
				"revisited_id", cur.ID,
			)
			s.metrics.IncLinkAnomaly("cycle")
			return c.ID
		}
		visited[cur.ID] = true

		if cur.LinkedID == nil {
			s.logger.WarnContext(ctx, "secondary contact without linked id, treating contact as its own primary",
				"contact_id", c.ID,
			)
			s.metrics.IncLinkAnomaly("dangling")
			return c.ID
		}
		next, ok := index[*cur.LinkedID]
		if !ok {
			s.logger.WarnContext(ctx, "linked contact not found, treating contact as its own primary",
				"contact_id", c.ID,
				"linked_id", *cur.LinkedID,
			)
			s.metrics.IncLinkAnomaly("dangling")
			return c.ID
		}
		cur = next
	}
	return cur.ID
}

func sortContacts(contacts []*models.Contact) {
	slices.SortFunc(contacts, compareCreated)
}

// compareCreated orders contacts oldest first, ties broken by id.
func compareCreated(a, b *models.Contact) int {
	switch {
	case a.CreatedBefore(b):
		return -1
	case b.CreatedBefore(a):
		return 1
	default:
		return 0
	}
}
