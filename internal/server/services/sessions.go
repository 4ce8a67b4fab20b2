package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/infinex-exchange/account.account/internal/common"
	"github.com/infinex-exchange/account.account/internal/dbx"
	"github.com/infinex-exchange/account.account/internal/logging"
	"github.com/infinex-exchange/account.account/internal/server/models"
	"github.com/infinex-exchange/account.account/internal/server/repositories/repomanager"
	"github.com/infinex-exchange/account.account/internal/server/repositories/sessions"
	"github.com/infinex-exchange/account.account/internal/validate"
)

// maxPageSize caps List page sizes; larger requests are clamped, not
// rejected.
const maxPageSize = 50

// tokenBytes of randomness go into each bearer token (64 hex chars on the
// wire).
const tokenBytes = 32

// DeviceMeta carries optional client hints recorded on webapp logins.
type DeviceMeta struct {
	Browser *string
	OS      *string
	Device  *string
}

// CreateParams describes the session to mint. Description is required for
// API keys and ignored for webapp sessions.
type CreateParams struct {
	UID         int64
	Origin      models.Origin
	Remember    bool
	Description string
	Device      DeviceMeta
}

// SessionPage is one page of a session listing. More reports whether rows
// beyond this page exist.
type SessionPage struct {
	Sessions []models.Session
	More     bool
}

// SessionManager mints, validates and revokes bearer credentials: webapp
// sessions and API keys.
type SessionManager struct {
	db     *sql.DB
	rm     repomanager.RepositoryManager
	logger logging.Logger
}

func NewSessionManager(db *sql.DB, rm repomanager.RepositoryManager, logger logging.Logger) *SessionManager {
	return &SessionManager{db: db, rm: rm, logger: logger}
}

// Create mints a session and returns it with the plaintext token set. This
// is the only moment the token is observable; afterwards only its holder
// knows it. API key descriptions are claimed under a row lock so two
// concurrent creations with the same name cannot both succeed.
func (s *SessionManager) Create(ctx context.Context, p CreateParams) (*models.Session, error) {
	token, err := common.MakeRandHexString(tokenBytes)
	if err != nil {
		return nil, fmt.Errorf("error generating token: %w", err)
	}

	sess := &models.Session{
		UID:    p.UID,
		Token:  token,
		Origin: p.Origin,
	}

	switch p.Origin {
	case models.OriginWebapp:
		sess.Remember = p.Remember
		sess.Browser = p.Device.Browser
		sess.OS = p.Device.OS
		sess.Device = p.Device.Device

		sid, err := s.rm.Sessions(s.db).Insert(ctx, sess)
		if err != nil {
			return nil, err
		}
		sess.SID = sid

	case models.OriginAPI:
		if p.Description == "" {
			return nil, common.MissingField("description")
		}
		if !validate.APIKeyDescription(p.Description) {
			return nil, common.InvalidField("description")
		}
		sess.Description = &p.Description

		err = dbx.WithTx(ctx, s.db, func(ctx context.Context, tx dbx.DBTX) error {
			repo := s.rm.Sessions(tx)
			_, err := repo.LockByDescription(ctx, p.UID, p.Description)
			if err == nil {
				return common.ErrConflict
			}
			if !errors.Is(err, common.ErrorNotFound) {
				return err
			}
			sid, err := repo.Insert(ctx, sess)
			if err != nil {
				return err
			}
			sess.SID = sid
			return nil
		})
		if err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("unknown origin: %q", p.Origin)
	}

	s.logger.Info(ctx, "session created",
		"uid", p.UID, "sid", sess.SID, "origin", sess.Origin)
	return sess, nil
}

// CheckToken resolves a bearer token to its owning identity and refreshes the
// last-activity timestamp in the same statement. Unknown tokens come back as
// common.ErrUnauthorized.
func (s *SessionManager) CheckToken(ctx context.Context, token string) (*models.Auth, error) {
	if token == "" {
		return nil, common.MissingField("token")
	}
	if !validate.Token(token) {
		return nil, common.InvalidField("token")
	}

	auth, err := s.rm.Sessions(s.db).TouchByToken(ctx, token)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrUnauthorized
		}
		return nil, err
	}
	return auth, nil
}

// List returns one page of the caller's sessions, newest first. limit is
// clamped to maxPageSize; the page carries a More flag instead of a total
// count.
func (s *SessionManager) List(ctx context.Context, f sessions.Filter, offset, limit int) (*SessionPage, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 || limit > maxPageSize {
		limit = maxPageSize
	}

	// Fetch one extra row to learn whether a next page exists.
	rows, err := s.rm.Sessions(s.db).List(ctx, f, offset, limit+1)
	if err != nil {
		return nil, err
	}

	page := &SessionPage{Sessions: rows}
	if len(rows) > limit {
		page.Sessions = rows[:limit]
		page.More = true
	}
	return page, nil
}

// Get returns a single session visible under the filter.
func (s *SessionManager) Get(ctx context.Context, sid int64, f sessions.Filter) (*models.Session, error) {
	if !validate.SID(sid) {
		return nil, common.InvalidField("sid")
	}
	return s.rm.Sessions(s.db).Get(ctx, sid, f)
}

// Kill revokes a session visible under the filter. The token stops working
// immediately.
func (s *SessionManager) Kill(ctx context.Context, sid int64, f sessions.Filter) error {
	if !validate.SID(sid) {
		return common.InvalidField("sid")
	}
	if err := s.rm.Sessions(s.db).Delete(ctx, sid, f); err != nil {
		return err
	}
	s.logger.Info(ctx, "session killed", "sid", sid)
	return nil
}

// EditDescription renames an API key. Renaming a key to its own current name
// is a no-op; any other key of the same user already holding the name is a
// conflict.
func (s *SessionManager) EditDescription(ctx context.Context, sid, uid int64, description string) error {
	if !validate.SID(sid) {
		return common.InvalidField("sid")
	}
	if description == "" {
		return common.MissingField("description")
	}
	if !validate.APIKeyDescription(description) {
		return common.InvalidField("description")
	}

	return dbx.WithTx(ctx, s.db, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.rm.Sessions(tx)

		holder, err := repo.LockByDescription(ctx, uid, description)
		switch {
		case err == nil && holder == sid:
			return nil
		case err == nil:
			return common.ErrConflict
		case !errors.Is(err, common.ErrorNotFound):
			return err
		}

		return repo.SetDescription(ctx, sid, uid, description)
	})
}
