package models

// CodeContext tags a verification code with the operation it belongs to.
// At most one live code exists per (uid, context).
type CodeContext string

const (
	ContextRegisterUser  CodeContext = "REGISTER_USER"
	ContextPasswordReset CodeContext = "PASSWORD_RESET"
	ContextChangeEmail   CodeContext = "CHANGE_EMAIL"
	Context2FA           CodeContext = "2FA"
)

// VerificationCode is an ephemeral one-time token. Consumption deletes the
// row, so a code can never be used twice.
type VerificationCode struct {
	CodeID  int64
	UID     int64
	Context CodeContext
	Code    string

	// ContextData is an opaque payload bound to the code: the pending new
	// e-mail for CHANGE_EMAIL, or the action fingerprint for 2FA.
	ContextData *string
}
