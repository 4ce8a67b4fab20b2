package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/infinex-exchange/account.account/internal/server/models"
)

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	Password    string `json:"password"`
}

func (s *Server) handleChangePassword(c *gin.Context, auth *models.Auth) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, s.badBody(c, err))
		return
	}

	if err := s.accounts.ChangePassword(c.Request.Context(), auth.UID, req.OldPassword, req.Password); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type resetPasswordRequest struct {
	Email string `json:"email"`
}

func (s *Server) handleResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, s.badBody(c, err))
		return
	}

	if err := s.accounts.ResetPassword(c.Request.Context(), req.Email); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type confirmResetPasswordRequest struct {
	Email    string `json:"email"`
	Code     string `json:"code"`
	Password string `json:"password"`
}

func (s *Server) handleConfirmResetPassword(c *gin.Context) {
	var req confirmResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, s.badBody(c, err))
		return
	}

	if err := s.accounts.ConfirmResetPassword(c.Request.Context(), req.Email, req.Code, req.Password); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
