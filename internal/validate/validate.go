// Package validate holds the shape checks applied to request fields before
// any store access: e-mail and password format, verification and 2FA codes,
// session tokens and API key descriptions.
package validate

import "regexp"

var (
	emailRe       = regexp.MustCompile(`^\w+([.+-]?\w+)*@\w+([.-]?\w+)*(\.\w{2,24})+$`)
	upperRe       = regexp.MustCompile(`[A-Z]`)
	lowerRe       = regexp.MustCompile(`[a-z]`)
	digitRe       = regexp.MustCompile(`[0-9]`)
	veriCodeRe    = regexp.MustCompile(`^[0-9]{6}$`)
	tokenRe       = regexp.MustCompile(`^[a-f0-9]{64}$`)
	descriptionRe = regexp.MustCompile(`^[a-zA-Z0-9 ]{1,255}$`)
)

// Email reports whether s looks like a deliverable address. The check is a
// coarse shape filter; real deliverability is proven by the verification code.
func Email(s string) bool {
	if len(s) > 254 {
		return false
	}
	return emailRe.MatchString(s)
}

// Password enforces the minimum complexity policy: 8-254 characters with at
// least one upper-case letter, one lower-case letter and one digit.
func Password(s string) bool {
	if len(s) < 8 || len(s) > 254 {
		return false
	}
	return upperRe.MatchString(s) && lowerRe.MatchString(s) && digitRe.MatchString(s)
}

// VeriCode reports whether s is exactly six decimal digits. 2FA answer codes
// share the same shape.
func VeriCode(s string) bool {
	return veriCodeRe.MatchString(s)
}

// Token reports whether s is a well-formed session token: 64 lower-case hex
// characters (32 random bytes).
func Token(s string) bool {
	return tokenRe.MatchString(s)
}

// APIKeyDescription reports whether s is a valid API key name: 1-255
// alphanumeric characters or spaces.
func APIKeyDescription(s string) bool {
	return descriptionRe.MatchString(s)
}

// UID reports whether id is a plausible user id.
func UID(id int64) bool {
	return id >= 1
}

// SID reports whether id is a plausible session id.
func SID(id int64) bool {
	return id >= 1
}
