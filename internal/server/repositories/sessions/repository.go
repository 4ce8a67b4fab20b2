package sessions

import (
	"context"

	"github.com/infinex-exchange/account.account/internal/server/models"
)

// Filter narrows session queries by owner and/or origin. Callers that scope
// by uid get the same not-found answer for "absent" and "owned by someone
// else", so existence of other users' sessions never leaks.
type Filter struct {
	UID    *int64
	Origin *models.Origin
}

type Repository interface {
	// Insert persists a new session and returns the assigned sid.
	Insert(ctx context.Context, s *models.Session) (int64, error)

	// TouchByToken updates the last-activity timestamp and returns the
	// owning identity in one statement. common.ErrorNotFound when no row
	// carries the token.
	TouchByToken(ctx context.Context, token string) (*models.Auth, error)

	// List returns sessions matching the filter ordered by sid descending.
	List(ctx context.Context, f Filter, offset, limit int) ([]models.Session, error)

	Get(ctx context.Context, sid int64, f Filter) (*models.Session, error)
	Delete(ctx context.Context, sid int64, f Filter) error

	// LockByDescription locks the API key row owning (uid, description)
	// and returns its sid, or common.ErrorNotFound when the name is free.
	// Call inside a transaction.
	LockByDescription(ctx context.Context, uid int64, description string) (int64, error)

	SetDescription(ctx context.Context, sid, uid int64, description string) error
}
