package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/infinex-exchange/account.account/internal/server/models"
)

func (s *Server) handleGetEmail(c *gin.Context, auth *models.Auth) {
	state, err := s.accounts.GetEmail(c.Request.Context(), auth.UID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"email":         state.Email,
		"pending_email": state.PendingEmail,
	})
}

type changeEmailRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleChangeEmail(c *gin.Context, auth *models.Auth) {
	var req changeEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, s.badBody(c, err))
		return
	}

	if err := s.accounts.ChangeEmail(c.Request.Context(), auth.UID, req.Email, req.Password); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type confirmChangeEmailRequest struct {
	Code string `json:"code"`
}

func (s *Server) handleConfirmChangeEmail(c *gin.Context, auth *models.Auth) {
	var req confirmChangeEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, s.badBody(c, err))
		return
	}

	if err := s.accounts.ConfirmChangeEmail(c.Request.Context(), auth.UID, req.Code); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleCancelChangeEmail(c *gin.Context, auth *models.Auth) {
	if err := s.accounts.CancelChangeEmail(c.Request.Context(), auth.UID); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
