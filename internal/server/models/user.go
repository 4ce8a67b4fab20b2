// Package models defines server-side data models persisted in the database.
package models

import "time"

// Provider selects the second-factor method in effect for a user.
type Provider string

const (
	ProviderEmail Provider = "EMAIL"
	ProviderTOTP  Provider = "TOTP"
)

// User is an identity row. Email is stored lowercase and unique; Password is
// a bcrypt hash. Users are never physically deleted by this service.
type User struct {
	UID          int64
	Email        string
	Password     string
	Verified     bool
	RegisterTime time.Time

	// MFA configuration.
	Provider2FA    Provider
	TOTPSecret     *string
	ForLogin2FA    bool
	ForWithdraw2FA bool
}
