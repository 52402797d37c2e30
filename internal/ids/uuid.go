package ids

import "github.com/google/uuid"

// Provider issues opaque record identifiers.
type Provider interface {
	NewID() (string, error)
}

type uuidProvider struct{}

// NewUUIDProvider constructs a Provider that issues UUIDv7 identifiers, which sort by creation time.
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

// Sequence returns fixed identifiers in order; used by tests and seeding tools.
type Sequence struct {
	values []string
	index  int
}

// NewSequence builds a Sequence over values.
func NewSequence(values ...string) *Sequence {
	return &Sequence{values: values}
}

func (s *Sequence) NewID() (string, error) {
	if s.index >= len(s.values) {
		return "", errExhausted
	}
	value := s.values[s.index]
	s.index++
	return value, nil
}
