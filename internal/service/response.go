package service

import "identity-reconciliation/internal/models"

// BuildResponse flattens a primary and its ordered secondaries into the
// public identity shape. Emails and phone numbers are deduplicated keeping
// first occurrence, primary first.
func BuildResponse(primary *models.Contact, secondaries []*models.Contact) models.IdentifyResponse {
	emails := []string{}
	phoneNumbers := []string{}
	secondaryContactIDs := []int64{}
	seenEmail := make(map[string]bool)
	seenPhone := make(map[string]bool)

	add := func(c *models.Contact) {
		if c.Email != nil && !seenEmail[*c.Email] {
			seenEmail[*c.Email] = true
			emails = append(emails, *c.Email)
		}
		if c.PhoneNumber != nil && !seenPhone[*c.PhoneNumber] {
			seenPhone[*c.PhoneNumber] = true
			phoneNumbers = append(phoneNumbers, *c.PhoneNumber)
		}
	}

	add(primary)
	for _, c := range secondaries {
		add(c)
		secondaryContactIDs = append(secondaryContactIDs, c.ID)
	}

	return models.IdentifyResponse{
		Contact: models.ContactResponse{
			PrimaryContactID:    primary.ID,
			Emails:              emails,
			PhoneNumbers:        phoneNumbers,
			SecondaryContactIDs: secondaryContactIDs,
		},
	}
}
