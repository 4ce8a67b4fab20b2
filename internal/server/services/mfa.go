package services

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/infinex-exchange/account.account/internal/common"
	"github.com/infinex-exchange/account.account/internal/logging"
	"github.com/infinex-exchange/account.account/internal/server/mailer"
	"github.com/infinex-exchange/account.account/internal/server/models"
	"github.com/infinex-exchange/account.account/internal/server/repositories/repomanager"
	"github.com/infinex-exchange/account.account/internal/totp"
)

// Protected action groups and actions. config2fa covers every change to the
// MFA configuration itself and is always gated, regardless of per-case flags.
const (
	GroupLogin    = "login"
	GroupWithdraw = "withdraw"
	GroupConfig   = "config2fa"
)

// Gate flag keys accepted by UpdateCases.
const (
	CaseLogin    = "login"
	CaseWithdraw = "withdraw"
)

// actionFingerprint binds an issued challenge code to the exact action and
// payload it was requested for. A code issued for one action (or one payload)
// never redeems for another.
func actionFingerprint(actionGroup, action string, context any) (string, error) {
	payload, err := json.Marshal(context)
	if err != nil {
		return "", fmt.Errorf("error encoding action context: %w", err)
	}
	sum := sha256.Sum256([]byte(actionGroup + "|" + action + "|" + string(payload)))
	return hex.EncodeToString(sum[:]), nil
}

// MFAService evaluates second-factor gates and drives the challenge/response
// cycle for protected actions.
type MFAService struct {
	db     *sql.DB
	rm     repomanager.RepositoryManager
	codes  *CodeStore
	mail   mailer.Mailer
	logger logging.Logger

	// Issuer names this deployment in otpauth enrollment URIs.
	Issuer string
}

func NewMFAService(db *sql.DB, rm repomanager.RepositoryManager, codes *CodeStore, mail mailer.Mailer, logger logging.Logger, issuer string) *MFAService {
	return &MFAService{db: db, rm: rm, codes: codes, mail: mail, logger: logger, Issuer: issuer}
}

// gate reports whether the action group requires a second factor for this
// user. config2fa is unconditionally gated.
func gate(user *models.User, actionGroup string) (bool, error) {
	switch actionGroup {
	case GroupConfig:
		return true, nil
	case GroupLogin:
		return user.ForLogin2FA, nil
	case GroupWithdraw:
		return user.ForWithdraw2FA, nil
	default:
		return false, common.InvalidField("actionGroup")
	}
}

// Challenge prepares the second factor for a gated action and returns a
// provider descriptor for the client: "EMAIL:<address>" when a code was
// mailed, "TOTP" when the user should read their authenticator app.
//
// config2fa actions always take the e-mail path, even for TOTP users, so a
// stolen phone alone cannot reconfigure MFA.
func (s *MFAService) Challenge(ctx context.Context, user *models.User, actionGroup, action string, actionContext any) (string, error) {
	if user.Provider2FA == models.ProviderTOTP && actionGroup != GroupConfig {
		return "TOTP", nil
	}

	fp, err := actionFingerprint(actionGroup, action, actionContext)
	if err != nil {
		return "", err
	}

	code, err := s.codes.Issue(ctx, user.UID, models.Context2FA, &fp, true)
	if err != nil {
		return "", err
	}

	err = s.mail.Send(ctx, &mailer.Message{
		UID:      user.UID,
		Email:    user.Email,
		Template: "2fa_" + action,
		Context:  map[string]any{"code": code},
	})
	if err != nil {
		s.logger.Error(ctx, "error sending 2fa mail", "uid", user.UID, "error", err)
	}

	return "EMAIL:" + user.Email, nil
}

// Respond checks a submitted second-factor answer for a gated action. The
// answer must match the exact action and payload the challenge was issued
// for. Returns ok=false for any wrong or replayed answer; err only for
// infrastructure failures.
func (s *MFAService) Respond(ctx context.Context, user *models.User, actionGroup, action string, actionContext any, code string) (bool, error) {
	if user.Provider2FA == models.ProviderTOTP && actionGroup != GroupConfig {
		if user.TOTPSecret == nil {
			return false, nil
		}
		return totp.Verify(*user.TOTPSecret, code, time.Now()), nil
	}

	fp, err := actionFingerprint(actionGroup, action, actionContext)
	if err != nil {
		return false, err
	}

	_, err = s.codes.Redeem(ctx, s.db, user.UID, models.Context2FA, code, &fp)
	if err != nil {
		if errors.Is(err, common.ErrInvalidCode) ||
			errors.Is(err, common.ErrMissingInput) ||
			errors.Is(err, common.ErrInvalidFormat) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Config is the user-visible MFA configuration.
type Config struct {
	Provider    models.Provider
	ForLogin    bool
	ForWithdraw bool
}

// Cases returns the current MFA configuration for uid.
func (s *MFAService) Cases(ctx context.Context, uid int64) (*Config, error) {
	user, err := s.rm.Users(s.db).GetByUID(ctx, uid)
	if err != nil {
		return nil, err
	}
	return &Config{
		Provider:    user.Provider2FA,
		ForLogin:    user.ForLogin2FA,
		ForWithdraw: user.ForWithdraw2FA,
	}, nil
}

// UpdateCases toggles per-action gate flags. The change itself is a config2fa
// action: without code it issues a challenge and returns the provider
// descriptor; with a valid code it applies the flags. Unknown case keys are
// rejected, an empty set is missing input.
func (s *MFAService) UpdateCases(ctx context.Context, uid int64, cases map[string]bool, code *string) (string, error) {
	if len(cases) == 0 {
		return "", common.MissingField("cases")
	}

	var forLogin, forWithdraw *bool
	for name, enabled := range cases {
		enabled := enabled
		switch name {
		case CaseLogin:
			forLogin = &enabled
		case CaseWithdraw:
			forWithdraw = &enabled
		default:
			return "", common.InvalidField("cases")
		}
	}

	user, err := s.rm.Users(s.db).GetByUID(ctx, uid)
	if err != nil {
		return "", err
	}

	actionContext := map[string]any{"cases": cases}
	if code == nil {
		return s.Challenge(ctx, user, GroupConfig, "update_cases", actionContext)
	}

	ok, err := s.Respond(ctx, user, GroupConfig, "update_cases", actionContext, *code)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", common.ErrInvalid2FA
	}

	if err := s.rm.Users(s.db).SetMFACases(ctx, uid, forLogin, forWithdraw); err != nil {
		return "", err
	}
	s.logger.Info(ctx, "2fa cases updated", "uid", uid)
	return "", nil
}

// EnrollmentOffer is a freshly minted TOTP secret plus its otpauth URI for
// display as a QR code. The secret is not active until confirmed through
// SetProvider.
type EnrollmentOffer struct {
	Secret string
	URI    string
}

// NewTOTPSecret mints an enrollment offer for uid. Nothing is persisted;
// switching to the offered secret happens in SetProvider once the user proves
// possession.
func (s *MFAService) NewTOTPSecret(ctx context.Context, uid int64) (*EnrollmentOffer, error) {
	user, err := s.rm.Users(s.db).GetByUID(ctx, uid)
	if err != nil {
		return nil, err
	}

	secret, err := totp.GenerateSecret()
	if err != nil {
		return nil, fmt.Errorf("error generating totp secret: %w", err)
	}

	return &EnrollmentOffer{
		Secret: secret,
		URI:    totp.ProvisionURI(secret, user.Email, s.Issuer),
	}, nil
}

// SetProvider switches the user's second-factor method. The switch is a
// config2fa action and always verifies over e-mail.
//
// Switching to TOTP additionally requires totpCode to prove the candidate
// secret was enrolled; the e-mail challenge fingerprint binds the secret, so
// the confirmed secret is exactly the offered one. Switching to EMAIL while
// already on EMAIL is a silent no-op.
func (s *MFAService) SetProvider(ctx context.Context, uid int64, provider models.Provider, totpSecret, totpCode, code *string) (string, error) {
	user, err := s.rm.Users(s.db).GetByUID(ctx, uid)
	if err != nil {
		return "", err
	}

	var secret *string
	switch provider {
	case models.ProviderEmail:
		if user.Provider2FA == models.ProviderEmail {
			return "", nil
		}
	case models.ProviderTOTP:
		if totpSecret == nil {
			return "", common.MissingField("totpSecret")
		}
		if totpCode == nil {
			return "", common.MissingField("totpCode")
		}
		if !totp.Verify(*totpSecret, *totpCode, time.Now()) {
			return "", common.ErrInvalid2FA
		}
		secret = totpSecret
	default:
		return "", common.InvalidField("provider")
	}

	actionContext := map[string]any{"provider": string(provider)}
	if secret != nil {
		actionContext["secret"] = *secret
	}

	if code == nil {
		return s.Challenge(ctx, user, GroupConfig, "set_provider", actionContext)
	}

	ok, err := s.Respond(ctx, user, GroupConfig, "set_provider", actionContext, *code)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", common.ErrInvalid2FA
	}

	if err := s.rm.Users(s.db).SetProvider2FA(ctx, uid, provider, secret); err != nil {
		return "", err
	}
	s.logger.Info(ctx, "2fa provider changed", "uid", uid, "provider", provider)
	return "", nil
}
