package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/infinex-exchange/account.account/internal/common"
)

// StatusRequire2FA signals that credentials were accepted but a second
// factor is still required. Non-standard on purpose: no proxy or middleware
// generates it, so a client seeing it knows it came from us.
const StatusRequire2FA = 511

type errorBody struct {
	Error string `json:"error"`
	Msg   string `json:"msg"`
	Field string `json:"field,omitempty"`
}

var errorStatus = map[error]struct {
	status int
	code   string
}{
	common.ErrMissingInput:     {http.StatusBadRequest, "MISSING_DATA"},
	common.ErrInvalidFormat:    {http.StatusBadRequest, "VALIDATION_ERROR"},
	common.ErrUnauthorized:     {http.StatusUnauthorized, "UNAUTHORIZED"},
	common.ErrLoginFailed:      {http.StatusUnauthorized, "LOGIN_FAILED"},
	common.ErrAccountInactive:  {http.StatusUnauthorized, "ACCOUNT_INACTIVE"},
	common.ErrInvalidPassword:  {http.StatusUnauthorized, "INVALID_PASSWORD"},
	common.ErrInvalidCode:      {http.StatusUnauthorized, "INVALID_VERIFICATION_CODE"},
	common.ErrInvalid2FA:       {http.StatusUnauthorized, "INVALID_2FA"},
	common.ErrorNotFound:       {http.StatusNotFound, "NOT_FOUND"},
	common.ErrConflict:         {http.StatusConflict, "ALREADY_EXISTS"},
	common.ErrAlreadySatisfied: {http.StatusBadRequest, "NOTHING_CHANGED"},
}

// fail translates a service error into the wire error shape. Unknown errors
// are logged by the request logger and reported as a bare 500.
func (s *Server) fail(c *gin.Context, err error) {
	var fieldErr *common.FieldError
	field := ""
	if errors.As(err, &fieldErr) {
		field = fieldErr.Field
	}

	for sentinel, m := range errorStatus {
		if errors.Is(err, sentinel) {
			c.AbortWithStatusJSON(m.status, errorBody{
				Error: m.code,
				Msg:   sentinel.Error(),
				Field: field,
			})
			return
		}
	}

	s.logger.Error(c.Request.Context(), "internal error",
		"path", c.FullPath(), "error", err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody{
		Error: "INTERNAL_ERROR",
		Msg:   "internal error",
	})
}

// require2FA reports that the operation needs a second-factor answer, naming
// the provider the client should collect it from.
func require2FA(c *gin.Context, provider string) {
	c.JSON(StatusRequire2FA, gin.H{
		"error":    "REQUIRE_2FA",
		"provider": provider,
	})
}
