// Package ids issues identifiers for rooms, transactions and users.
package ids

import "github.com/google/uuid"

// Provider issues unique identifiers.
type Provider interface {
	NewID() (string, error)
}

type uuidProvider struct{}

// NewUUIDProvider constructs a Provider that issues UUIDv7 identifiers, which
// sort by creation time.
func NewUUIDProvider() Provider {
	return &uuidProvider{}
}

func (p *uuidProvider) NewID() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}
