package users

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

const userColumns = `uid, email, password, verified, register_time,
	       provider_2fa, totp_secret_2fa, for_login_2fa, for_withdraw_2fa`

func (r *PostgresRepository) Create(ctx context.Context, email, passwordHash string) (*models.User, error) {
	query := `
		INSERT INTO users (email, password, verified, register_time)
		VALUES ($1, $2, FALSE, CURRENT_TIMESTAMP)
		RETURNING uid, register_time
	`
	user := &models.User{Email: email, Password: passwordHash, Provider2FA: models.ProviderEmail}
	err := r.db.QueryRowContext(ctx, query, email, passwordHash).
		Scan(&user.UID, &user.RegisterTime)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, common.ErrConflict
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return user, nil
}

func (r *PostgresRepository) GetByUID(ctx context.Context, uid int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE uid = $1`
	return r.scanUser(r.db.QueryRowContext(ctx, query, uid))
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.scanUser(r.db.QueryRowContext(ctx, query, email))
}

func (r *PostgresRepository) LockByEmail(ctx context.Context, email string) (bool, error) {
	query := `SELECT uid FROM users WHERE email = $1 FOR UPDATE`

	var uid int64
	err := r.db.QueryRowContext(ctx, query, email).Scan(&uid)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("db error: %w", err)
	}
	return true, nil
}

func (r *PostgresRepository) SetVerified(ctx context.Context, uid int64) error {
	return r.exec(ctx, `UPDATE users SET verified = TRUE WHERE uid = $1`, uid)
}

func (r *PostgresRepository) SetPassword(ctx context.Context, uid int64, passwordHash string) error {
	return r.exec(ctx, `UPDATE users SET password = $2 WHERE uid = $1`, uid, passwordHash)
}

func (r *PostgresRepository) SetEmail(ctx context.Context, uid int64, email string) error {
	err := r.exec(ctx, `UPDATE users SET email = $2 WHERE uid = $1`, uid, email)
	if dbx.IsUniqueViolation(err) {
		return common.ErrConflict
	}
	return err
}

func (r *PostgresRepository) SetMFACases(ctx context.Context, uid int64, forLogin, forWithdraw *bool) error {
	query := `
		UPDATE users
		SET for_login_2fa = COALESCE($2, for_login_2fa),
		    for_withdraw_2fa = COALESCE($3, for_withdraw_2fa)
		WHERE uid = $1
	`
	return r.exec(ctx, query, uid, forLogin, forWithdraw)
}

func (r *PostgresRepository) SetProvider2FA(ctx context.Context, uid int64, provider models.Provider, totpSecret *string) error {
	query := `UPDATE users SET provider_2fa = $2, totp_secret_2fa = $3 WHERE uid = $1`
	return r.exec(ctx, query, uid, string(provider), totpSecret)
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if affected == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) scanUser(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	var totpSecret sql.NullString
	err := row.Scan(&user.UID, &user.Email, &user.Password, &user.Verified,
		&user.RegisterTime, &user.Provider2FA, &totpSecret,
		&user.ForLogin2FA, &user.ForWithdraw2FA)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if totpSecret.Valid {
		user.TOTPSecret = &totpSecret.String
	}
	return user, nil
}
