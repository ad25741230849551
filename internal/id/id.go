package id

import (
	"github.com/gofrs/uuid/v5"
)

// New returns a time-ordered job id, falling back to a random one if the
// clock source fails.
func New() string {
	u, err := uuid.NewV7()
	if err != nil {
		u = uuid.Must(uuid.NewV4())
	}
	return u.String()
}

// Valid reports whether s looks like an id produced by New.
func Valid(s string) bool {
	_, err := uuid.FromString(s)
	return err == nil
}
