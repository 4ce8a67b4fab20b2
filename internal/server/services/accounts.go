package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/infinex-exchange/account.account/internal/common"
	"github.com/infinex-exchange/account.account/internal/dbx"
	"github.com/infinex-exchange/account.account/internal/logging"
	"github.com/infinex-exchange/account.account/internal/server/mailer"
	"github.com/infinex-exchange/account.account/internal/server/models"
	"github.com/infinex-exchange/account.account/internal/server/repositories/repomanager"
	"github.com/infinex-exchange/account.account/internal/validate"
)

// AccountService implements registration, authentication, password recovery
// and e-mail change flows.
type AccountService struct {
	db       *sql.DB
	rm       repomanager.RepositoryManager
	codes    *CodeStore
	mfa      *MFAService
	sessions *SessionManager
	mail     mailer.Mailer
	logger   logging.Logger
}

func NewAccountService(db *sql.DB, rm repomanager.RepositoryManager, codes *CodeStore, mfa *MFAService, sessions *SessionManager, mail mailer.Mailer, logger logging.Logger) *AccountService {
	return &AccountService{
		db:       db,
		rm:       rm,
		codes:    codes,
		mfa:      mfa,
		sessions: sessions,
		mail:     mail,
		logger:   logger,
	}
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("error hashing password: %w", err)
	}
	return string(hash), nil
}

func checkPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Register creates an unverified account and mails the activation code. The
// e-mail is normalized to lower case and claimed under a row lock, so two
// concurrent registrations of one address cannot both succeed.
func (s *AccountService) Register(ctx context.Context, email, password string) (int64, error) {
	if email == "" {
		return 0, common.MissingField("email")
	}
	if password == "" {
		return 0, common.MissingField("password")
	}
	email = strings.ToLower(email)
	if !validate.Email(email) {
		return 0, common.InvalidField("email")
	}
	if !validate.Password(password) {
		return 0, common.InvalidField("password")
	}

	hash, err := hashPassword(password)
	if err != nil {
		return 0, err
	}

	code, err := generateCode()
	if err != nil {
		return 0, fmt.Errorf("error generating code: %w", err)
	}

	var user *models.User
	err = dbx.WithTx(ctx, s.db, func(ctx context.Context, tx dbx.DBTX) error {
		taken, err := s.rm.Users(tx).LockByEmail(ctx, email)
		if err != nil {
			return err
		}
		if taken {
			return common.ErrConflict
		}

		user, err = s.rm.Users(tx).Create(ctx, email, hash)
		if err != nil {
			return err
		}

		return s.rm.VeriCodes(tx).Create(ctx, user.UID, models.ContextRegisterUser, code, nil)
	})
	if err != nil {
		return 0, err
	}

	err = s.mail.Send(ctx, &mailer.Message{
		UID:      user.UID,
		Email:    email,
		Template: "register_user",
		Context:  map[string]any{"code": code},
	})
	if err != nil {
		s.logger.Error(ctx, "error sending registration mail", "uid", user.UID, "error", err)
	}

	s.logger.Info(ctx, "user registered", "uid", user.UID)
	return user.UID, nil
}

// VerifyRegistration activates the account named by email using the mailed
// code. An unknown address reports the same invalid-code error as a wrong
// code.
func (s *AccountService) VerifyRegistration(ctx context.Context, email, code string) error {
	if email == "" {
		return common.MissingField("email")
	}
	email = strings.ToLower(email)
	if !validate.Email(email) {
		return common.InvalidField("email")
	}

	return dbx.WithTx(ctx, s.db, func(ctx context.Context, tx dbx.DBTX) error {
		user, err := s.rm.Users(tx).GetByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrInvalidCode
			}
			return err
		}

		if _, err := s.codes.Redeem(ctx, tx, user.UID, models.ContextRegisterUser, code, nil); err != nil {
			return err
		}

		if err := s.rm.Users(tx).SetVerified(ctx, user.UID); err != nil {
			return err
		}
		s.logger.Info(ctx, "user verified", "uid", user.UID)
		return nil
	})
}

// LoginResult reports the outcome of a login attempt. When MFAProvider is
// set the credentials were correct but a second factor is still required;
// otherwise Token carries the new session's bearer token.
type LoginResult struct {
	UID         int64
	SID         int64
	Token       string
	MFAProvider string
}

// Login authenticates by e-mail and password and mints a webapp session.
// Wrong address and wrong password produce the same error. When the user's
// MFA configuration gates logins, the first call (code2fa nil) issues a
// challenge and returns the provider descriptor; the retry carries the
// answer.
func (s *AccountService) Login(ctx context.Context, email, password string, code2fa *string, remember bool, device DeviceMeta) (*LoginResult, error) {
	if email == "" {
		return nil, common.MissingField("email")
	}
	if password == "" {
		return nil, common.MissingField("password")
	}
	email = strings.ToLower(email)
	if !validate.Email(email) {
		return nil, common.InvalidField("email")
	}

	user, err := s.rm.Users(s.db).GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrLoginFailed
		}
		return nil, err
	}
	if !checkPassword(user.Password, password) {
		return nil, common.ErrLoginFailed
	}
	if !user.Verified {
		return nil, common.ErrAccountInactive
	}

	gated, err := gate(user, GroupLogin)
	if err != nil {
		return nil, err
	}
	if gated {
		if code2fa == nil {
			provider, err := s.mfa.Challenge(ctx, user, GroupLogin, "login", nil)
			if err != nil {
				return nil, err
			}
			return &LoginResult{UID: user.UID, MFAProvider: provider}, nil
		}

		ok, err := s.mfa.Respond(ctx, user, GroupLogin, "login", nil, *code2fa)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, common.ErrInvalid2FA
		}
	}

	sess, err := s.sessions.Create(ctx, CreateParams{
		UID:      user.UID,
		Origin:   models.OriginWebapp,
		Remember: remember,
		Device:   device,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "user logged in", "uid", user.UID, "sid", sess.SID)
	return &LoginResult{UID: user.UID, SID: sess.SID, Token: sess.Token}, nil
}

// ChangePassword replaces the caller's password after re-proving the old one.
// Setting the same password again succeeds without touching the stored hash.
func (s *AccountService) ChangePassword(ctx context.Context, uid int64, oldPassword, newPassword string) error {
	if oldPassword == "" {
		return common.MissingField("oldPassword")
	}
	if newPassword == "" {
		return common.MissingField("password")
	}
	if !validate.Password(newPassword) {
		return common.InvalidField("password")
	}

	user, err := s.rm.Users(s.db).GetByUID(ctx, uid)
	if err != nil {
		return err
	}
	if !checkPassword(user.Password, oldPassword) {
		return common.ErrInvalidPassword
	}
	if oldPassword == newPassword {
		return nil
	}

	hash, err := hashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.rm.Users(s.db).SetPassword(ctx, uid, hash); err != nil {
		return err
	}
	s.logger.Info(ctx, "password changed", "uid", uid)
	return nil
}

// ResetPassword starts password recovery for email. To keep account
// existence private the call reports success whether or not the address is
// registered; a code is only actually issued (replacing any earlier one) and
// mailed when it is.
func (s *AccountService) ResetPassword(ctx context.Context, email string) error {
	if email == "" {
		return common.MissingField("email")
	}
	email = strings.ToLower(email)
	if !validate.Email(email) {
		return common.InvalidField("email")
	}

	user, err := s.rm.Users(s.db).GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil
		}
		return err
	}

	code, err := s.codes.Issue(ctx, user.UID, models.ContextPasswordReset, nil, true)
	if err != nil {
		return err
	}

	err = s.mail.Send(ctx, &mailer.Message{
		UID:      user.UID,
		Email:    user.Email,
		Template: "password_reset",
		Context:  map[string]any{"code": code},
	})
	if err != nil {
		s.logger.Error(ctx, "error sending reset mail", "uid", user.UID, "error", err)
	}
	return nil
}

// ConfirmResetPassword completes recovery: redeems the mailed code and sets
// the new password in one transaction.
func (s *AccountService) ConfirmResetPassword(ctx context.Context, email, code, password string) error {
	if email == "" {
		return common.MissingField("email")
	}
	if password == "" {
		return common.MissingField("password")
	}
	email = strings.ToLower(email)
	if !validate.Email(email) {
		return common.InvalidField("email")
	}
	if !validate.Password(password) {
		return common.InvalidField("password")
	}

	hash, err := hashPassword(password)
	if err != nil {
		return err
	}

	return dbx.WithTx(ctx, s.db, func(ctx context.Context, tx dbx.DBTX) error {
		user, err := s.rm.Users(tx).GetByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrInvalidCode
			}
			return err
		}

		if _, err := s.codes.Redeem(ctx, tx, user.UID, models.ContextPasswordReset, code, nil); err != nil {
			return err
		}

		if err := s.rm.Users(tx).SetPassword(ctx, user.UID, hash); err != nil {
			return err
		}
		s.logger.Info(ctx, "password reset", "uid", user.UID)
		return nil
	})
}

// EmailState is the caller's current address plus the pending new address
// when a change awaits confirmation.
type EmailState struct {
	Email        string
	PendingEmail *string
}

// GetEmail returns the caller's e-mail state.
func (s *AccountService) GetEmail(ctx context.Context, uid int64) (*EmailState, error) {
	user, err := s.rm.Users(s.db).GetByUID(ctx, uid)
	if err != nil {
		return nil, err
	}

	state := &EmailState{Email: user.Email}
	vc, err := s.codes.Pending(ctx, uid, models.ContextChangeEmail)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return state, nil
		}
		return nil, err
	}
	state.PendingEmail = vc.ContextData
	return state, nil
}

// ChangeEmail starts an address change after re-proving the password. The
// confirmation code goes to the OLD address with the new one bound as
// context data, so a hijacked session cannot silently steal the account.
// Restarting a change replaces the previous pending one.
func (s *AccountService) ChangeEmail(ctx context.Context, uid int64, newEmail, password string) error {
	if newEmail == "" {
		return common.MissingField("email")
	}
	if password == "" {
		return common.MissingField("password")
	}
	newEmail = strings.ToLower(newEmail)
	if !validate.Email(newEmail) {
		return common.InvalidField("email")
	}

	user, err := s.rm.Users(s.db).GetByUID(ctx, uid)
	if err != nil {
		return err
	}
	if !checkPassword(user.Password, password) {
		return common.ErrInvalidPassword
	}
	if user.Email == newEmail {
		return common.ErrAlreadySatisfied
	}

	other, err := s.rm.Users(s.db).GetByEmail(ctx, newEmail)
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		return err
	}
	if other != nil {
		return common.ErrConflict
	}

	code, err := s.codes.Issue(ctx, uid, models.ContextChangeEmail, &newEmail, true)
	if err != nil {
		return err
	}

	err = s.mail.Send(ctx, &mailer.Message{
		UID:      uid,
		Email:    user.Email,
		Template: "change_email",
		Context:  map[string]any{"code": code, "new_email": newEmail},
	})
	if err != nil {
		s.logger.Error(ctx, "error sending change-email mail", "uid", uid, "error", err)
	}
	return nil
}

// ConfirmChangeEmail completes the address change. The new address is the
// code's bound context data, re-checked for availability under a row lock in
// the same transaction that applies it.
func (s *AccountService) ConfirmChangeEmail(ctx context.Context, uid int64, code string) error {
	return dbx.WithTx(ctx, s.db, func(ctx context.Context, tx dbx.DBTX) error {
		data, err := s.codes.Redeem(ctx, tx, uid, models.ContextChangeEmail, code, nil)
		if err != nil {
			return err
		}
		if data == nil {
			return fmt.Errorf("%w: change-email code without bound address", common.ErrorInternal)
		}

		taken, err := s.rm.Users(tx).LockByEmail(ctx, *data)
		if err != nil {
			return err
		}
		if taken {
			return common.ErrConflict
		}

		if err := s.rm.Users(tx).SetEmail(ctx, uid, *data); err != nil {
			return err
		}
		s.logger.Info(ctx, "email changed", "uid", uid)
		return nil
	})
}

// CancelChangeEmail drops the pending address change. Not-found when none is
// pending.
func (s *AccountService) CancelChangeEmail(ctx context.Context, uid int64) error {
	existed, err := s.codes.Cancel(ctx, uid, models.ContextChangeEmail)
	if err != nil {
		return err
	}
	if !existed {
		return common.ErrorNotFound
	}
	return nil
}

// UIDToEmail resolves a user id to its address, for sibling services.
func (s *AccountService) UIDToEmail(ctx context.Context, uid int64) (string, error) {
	if !validate.UID(uid) {
		return "", common.InvalidField("uid")
	}
	user, err := s.rm.Users(s.db).GetByUID(ctx, uid)
	if err != nil {
		return "", err
	}
	return user.Email, nil
}
