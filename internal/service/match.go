package service

import (
	"context"
	"fmt"

	"identity-reconciliation/internal/models"
)

// MatchType says which submitted field a stored contact matched on.
type MatchType string

const (
	MatchEmail MatchType = "email"
	MatchPhone MatchType = "phone"
	MatchBoth  MatchType = "both"
)

type contactMatch struct {
	contact   *models.Contact
	matchType MatchType
}

// findMatches returns every live contact sharing the email or the phone
// number, oldest first. No match is an empty result, not an error.
func (s *ReconciliationService) findMatches(ctx context.Context, email, phoneNumber *string) ([]contactMatch, error) {
	contacts, err := s.store.FindByEmailOrPhone(ctx, email, phoneNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to find matching contacts: %w", err)
	}

	matches := make([]contactMatch, 0, len(contacts))
	for _, c := range contacts {
		m := contactMatch{contact: c, matchType: matchTypeOf(c, email, phoneNumber)}
		s.logger.DebugContext(ctx, "contact matched",
			"contact_id", c.ID,
			"match_type", string(m.matchType),
			"link_precedence", string(c.LinkPrecedence),
		)
		matches = append(matches, m)
	}
	return matches, nil
}

func matchTypeOf(c *models.Contact, email, phoneNumber *string) MatchType {
	byEmail := email != nil && c.HasEmail(*email)
	byPhone := phoneNumber != nil && c.HasPhoneNumber(*phoneNumber)
	switch {
	case byEmail && byPhone:
		return MatchBoth
	case byEmail:
		return MatchEmail
	default:
		return MatchPhone
	}
}
