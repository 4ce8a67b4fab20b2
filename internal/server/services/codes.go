// Package services implements the business logic of the account service on
// top of the repositories: registration, login, credential recovery, e-mail
// change, MFA and session management.
package services

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math/big"

	"github.com/infinex-exchange/account.account/internal/common"
	"github.com/infinex-exchange/account.account/internal/dbx"
	"github.com/infinex-exchange/account.account/internal/logging"
	"github.com/infinex-exchange/account.account/internal/server/models"
	"github.com/infinex-exchange/account.account/internal/server/repositories/repomanager"
	"github.com/infinex-exchange/account.account/internal/validate"
)

var codeLimit = big.NewInt(1000000)

// generateCode returns a fresh six-digit verification code, zero-padded.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeLimit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// CodeStore issues and redeems verification codes. At most one live code
// exists per (uid, context): issuing with deletePrevious replaces any
// earlier code, and redeeming deletes the row, so a code works once.
type CodeStore struct {
	db     *sql.DB
	rm     repomanager.RepositoryManager
	logger logging.Logger
}

func NewCodeStore(db *sql.DB, rm repomanager.RepositoryManager, logger logging.Logger) *CodeStore {
	return &CodeStore{db: db, rm: rm, logger: logger}
}

// Issue creates a new code for (uid, context). With deletePrevious the old
// code is removed in the same transaction, so the store never holds two live
// codes for one purpose.
func (s *CodeStore) Issue(ctx context.Context, uid int64, codeContext models.CodeContext, contextData *string, deletePrevious bool) (string, error) {
	code, err := generateCode()
	if err != nil {
		return "", fmt.Errorf("error generating code: %w", err)
	}

	if !deletePrevious {
		if err := s.rm.VeriCodes(s.db).Create(ctx, uid, codeContext, code, contextData); err != nil {
			return "", err
		}
		return code, nil
	}

	err = dbx.WithTx(ctx, s.db, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.rm.VeriCodes(tx)
		if _, err := repo.DeleteAll(ctx, uid, codeContext); err != nil {
			return err
		}
		return repo.Create(ctx, uid, codeContext, code, contextData)
	})
	if err != nil {
		return "", err
	}
	return code, nil
}

// Redeem validates the submitted code shape, then atomically consumes the
// matching row. Wrong, expired or replayed codes all come back as
// common.ErrInvalidCode; contextData, when non-nil, must match the stored
// payload too. Run inside a transaction (pass tx) when the redemption is
// followed by a dependent mutation.
func (s *CodeStore) Redeem(ctx context.Context, db dbx.DBTX, uid int64, codeContext models.CodeContext, code string, contextData *string) (*string, error) {
	if code == "" {
		return nil, common.MissingField("code")
	}
	if !validate.VeriCode(code) {
		return nil, common.InvalidField("code")
	}

	data, err := s.rm.VeriCodes(db).Consume(ctx, uid, codeContext, code, contextData)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidCode
		}
		return nil, err
	}
	return data, nil
}

// Cancel removes any pending code for (uid, context) and reports whether one
// existed.
func (s *CodeStore) Cancel(ctx context.Context, uid int64, codeContext models.CodeContext) (bool, error) {
	return s.rm.VeriCodes(s.db).DeleteAll(ctx, uid, codeContext)
}

// Pending returns the live code for (uid, context), or common.ErrorNotFound.
func (s *CodeStore) Pending(ctx context.Context, uid int64, codeContext models.CodeContext) (*models.VerificationCode, error) {
	return s.rm.VeriCodes(s.db).Pending(ctx, uid, codeContext)
}
