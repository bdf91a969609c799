package models

import "github.com/google/uuid"

// NewLocalID returns a client-generated opaque token used as the
// deduplication key for pushed records. UUIDv7 keeps ids roughly
// time-ordered, which helps server-side index locality; falls back to v4 if
// the system clock refuses to cooperate.
func NewLocalID() string {
	v7, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return v7.String()
}
