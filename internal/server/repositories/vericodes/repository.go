package vericodes

import (
	"context"

	"github.com/infinex-exchange/account.account/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, uid int64, codeContext models.CodeContext, code string, contextData *string) error

	// Consume atomically deletes the row matching (uid, context, code) and,
	// when contextData is non-nil, the stored context data too, returning
	// the stored context data. A single delete-returning statement, so two
	// concurrent submissions of the same code cannot both succeed. Returns
	// common.ErrorNotFound when nothing matched.
	Consume(ctx context.Context, uid int64, codeContext models.CodeContext, code string, contextData *string) (*string, error)

	// DeleteAll cancels any pending codes for (uid, context) and reports
	// whether at least one existed.
	DeleteAll(ctx context.Context, uid int64, codeContext models.CodeContext) (bool, error)

	// Pending returns the live code for (uid, context), or common.ErrorNotFound.
	Pending(ctx context.Context, uid int64, codeContext models.CodeContext) (*models.VerificationCode, error)
}
