package users

import (
	"context"

	"github.com/infinex-exchange/account.account/internal/server/models"
)

type Repository interface {
	// Create inserts a new unverified user and returns the row with its uid.
	Create(ctx context.Context, email, passwordHash string) (*models.User, error)

	GetByUID(ctx context.Context, uid int64) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// LockByEmail probes for an existing row under FOR UPDATE so a
	// check-then-insert sequence cannot race. Call inside a transaction.
	LockByEmail(ctx context.Context, email string) (bool, error)

	SetVerified(ctx context.Context, uid int64) error
	SetPassword(ctx context.Context, uid int64, passwordHash string) error
	SetEmail(ctx context.Context, uid int64, email string) error

	// SetMFACases updates only the gate flags passed non-nil.
	SetMFACases(ctx context.Context, uid int64, forLogin, forWithdraw *bool) error
	SetProvider2FA(ctx context.Context, uid int64, provider models.Provider, totpSecret *string) error
}
