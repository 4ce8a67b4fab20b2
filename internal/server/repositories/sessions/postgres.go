// Package sessions provides a PostgreSQL-backed repository for bearer
// credentials: browser sessions and named API keys share one table split by
// origin.
package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

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

func (r *PostgresRepository) Insert(ctx context.Context, s *models.Session) (int64, error) {
	var query string
	var args []any

	switch s.Origin {
	case models.OriginWebapp:
		query = `
			INSERT INTO sessions (uid, api_key, origin, wa_remember, wa_lastact,
			                      wa_browser, wa_os, wa_device)
			VALUES ($1, $2, 'WEBAPP', $3, CURRENT_TIMESTAMP, $4, $5, $6)
			RETURNING sid
		`
		args = []any{s.UID, s.Token, s.Remember, s.Browser, s.OS, s.Device}
	case models.OriginAPI:
		query = `
			INSERT INTO sessions (uid, api_key, origin, ak_description)
			VALUES ($1, $2, 'API', $3)
			RETURNING sid
		`
		args = []any{s.UID, s.Token, s.Description}
	default:
		return 0, fmt.Errorf("unknown origin: %q", s.Origin)
	}

	var sid int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&sid); err != nil {
		if dbx.IsUniqueViolation(err) {
			return 0, common.ErrConflict
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return sid, nil
}

func (r *PostgresRepository) TouchByToken(ctx context.Context, token string) (*models.Auth, error) {
	query := `
		UPDATE sessions
		SET wa_lastact = CURRENT_TIMESTAMP
		WHERE api_key = $1
		RETURNING sid, uid, origin
	`
	auth := &models.Auth{}
	err := r.db.QueryRowContext(ctx, query, token).Scan(&auth.SID, &auth.UID, &auth.Origin)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return auth, nil
}

const sessionColumns = `sid, uid, api_key, origin, wa_remember, wa_lastact,
	       wa_browser, wa_os, wa_device, ak_description`

func (r *PostgresRepository) List(ctx context.Context, f Filter, offset, limit int) ([]models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions`
	where, args := filterClause(f, nil)
	query += where
	query += ` ORDER BY sid DESC`
	query += ` LIMIT $` + strconv.Itoa(len(args)+1) + ` OFFSET $` + strconv.Itoa(len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) Get(ctx context.Context, sid int64, f Filter) (*models.Session, error) {
	args := []any{sid}
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE sid = $1`
	where, args := filterClause(f, args)
	query += where

	s, err := scanSession(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, err
	}
	return s, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, sid int64, f Filter) error {
	args := []any{sid}
	query := `DELETE FROM sessions WHERE sid = $1`
	where, args := filterClause(f, args)
	query += where

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

func (r *PostgresRepository) LockByDescription(ctx context.Context, uid int64, description string) (int64, error) {
	query := `
		SELECT sid FROM sessions
		WHERE uid = $1
		AND ak_description = $2
		AND origin = 'API'
		FOR UPDATE
	`
	var sid int64
	err := r.db.QueryRowContext(ctx, query, uid, description).Scan(&sid)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrorNotFound
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return sid, nil
}

func (r *PostgresRepository) SetDescription(ctx context.Context, sid, uid int64, description string) error {
	query := `
		UPDATE sessions
		SET ak_description = $3
		WHERE sid = $1
		AND uid = $2
		AND origin = 'API'
	`
	res, err := r.db.ExecContext(ctx, query, sid, uid, description)
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

// filterClause appends AND/WHERE conditions for the optional filter fields,
// numbering placeholders after the already-collected args.
func filterClause(f Filter, args []any) (string, []any) {
	clause := ""
	next := func() string {
		return "$" + strconv.Itoa(len(args)+1)
	}
	sep := func() string {
		if len(clause) == 0 && len(args) == 0 {
			return " WHERE "
		}
		return " AND "
	}

	if f.UID != nil {
		cond := sep() + "uid = " + next()
		args = append(args, *f.UID)
		clause += cond
	}
	if f.Origin != nil {
		cond := sep() + "origin = " + next()
		args = append(args, string(*f.Origin))
		clause += cond
	}
	return clause, args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	s := &models.Session{}
	var remember sql.NullBool
	var lastAct sql.NullTime
	var browser, os, device, description sql.NullString

	err := row.Scan(&s.SID, &s.UID, &s.Token, &s.Origin, &remember, &lastAct,
		&browser, &os, &device, &description)
	if err != nil {
		return nil, err
	}

	s.Remember = remember.Valid && remember.Bool
	if lastAct.Valid {
		s.LastAct = &lastAct.Time
	}
	if browser.Valid {
		s.Browser = &browser.String
	}
	if os.Valid {
		s.OS = &os.String
	}
	if device.Valid {
		s.Device = &device.String
	}
	if description.Valid {
		s.Description = &description.String
	}
	return s, nil
}
