// Package vericodes provides a PostgreSQL-backed repository for one-time
// verification codes. Consumption is deletion: there is no "used" flag to
// race on.
package vericodes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/infinex-exchange/account.account/internal/common"
	"github.com/infinex-exchange/account.account/internal/dbx"
	"github.com/infinex-exchange/account.account/internal/server/models"
)

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, uid int64, codeContext models.CodeContext, code string, contextData *string) error {
	query := `
		INSERT INTO email_codes (uid, context, code, context_data)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := r.db.ExecContext(ctx, query, uid, string(codeContext), code, contextData); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Consume(ctx context.Context, uid int64, codeContext models.CodeContext, code string, contextData *string) (*string, error) {
	query := `
		DELETE FROM email_codes
		WHERE uid = $1
		AND context = $2
		AND code = $3
	`
	args := []any{uid, string(codeContext), code}
	if contextData != nil {
		query += ` AND context_data = $4`
		args = append(args, *contextData)
	}
	query += ` RETURNING context_data`

	var stored sql.NullString
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&stored)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if !stored.Valid {
		return nil, nil
	}
	return &stored.String, nil
}

func (r *PostgresRepository) DeleteAll(ctx context.Context, uid int64, codeContext models.CodeContext) (bool, error) {
	query := `
		DELETE FROM email_codes
		WHERE uid = $1
		AND context = $2
	`
	res, err := r.db.ExecContext(ctx, query, uid, string(codeContext))
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return affected > 0, nil
}

func (r *PostgresRepository) Pending(ctx context.Context, uid int64, codeContext models.CodeContext) (*models.VerificationCode, error) {
	query := `
		SELECT codeid, uid, context, code, context_data
		FROM email_codes
		WHERE uid = $1
		AND context = $2
	`
	vc := &models.VerificationCode{}
	var contextData sql.NullString
	err := r.db.QueryRowContext(ctx, query, uid, string(codeContext)).
		Scan(&vc.CodeID, &vc.UID, &vc.Context, &vc.Code, &contextData)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if contextData.Valid {
		vc.ContextData = &contextData.String
	}
	return vc, nil
}
