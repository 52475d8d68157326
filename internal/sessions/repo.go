package sessions

import (
	"context"
	"time"
)

// Repo persists session snapshots so a session survives a process restart
// until it expires.
type Repo interface {
	Save(ctx context.Context, rec Record) error
	Get(ctx context.Context, id string) (Record, error)
	Delete(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
