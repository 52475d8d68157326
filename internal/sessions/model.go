package sessions

import (
	"errors"
	"time"

	"variance-backend/internal/commentary"
)

var (
	ErrNotFound     = errors.New("session not found")
	ErrInvalidInput = errors.New("invalid input")
)

// Record is the persisted form of a session.
type Record struct {
	ID             string
	IdentityID     string
	IdentitySource string
	Snapshot       commentary.Snapshot
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ExpiresAt      time.Time
}
