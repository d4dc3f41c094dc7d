package service

import (
	"context"
	"fmt"
)

// Lookup returns the consolidated identity that contact id belongs to
// without writing anything. A secondary id resolves to its primary's group.
func (s *ReconciliationService) Lookup(ctx context.Context, id int64) (*IdentityGroup, error) {
	var group *IdentityGroup
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		c, err := s.store.GetByID(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to load contact %d: %w", id, err)
		}
		primaryID := c.ID
		if !c.IsPrimary() && c.LinkedID != nil {
			primaryID = *c.LinkedID
		}
		group, err = s.loadGroup(ctx, primaryID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return group, nil
}
