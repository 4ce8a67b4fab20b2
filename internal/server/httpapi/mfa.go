package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/infinex-exchange/account.account/internal/server/models"
)

func (s *Server) handleGet2FA(c *gin.Context, auth *models.Auth) {
	cfg, err := s.mfa.Cases(c.Request.Context(), auth.UID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"provider": string(cfg.Provider),
		"cases": gin.H{
			"login":    cfg.ForLogin,
			"withdraw": cfg.ForWithdraw,
		},
	})
}

type update2FACasesRequest struct {
	Cases   map[string]bool `json:"cases"`
	Code2FA *string         `json:"code_2fa"`
}

func (s *Server) handleUpdate2FACases(c *gin.Context, auth *models.Auth) {
	var req update2FACasesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, s.badBody(c, err))
		return
	}

	provider, err := s.mfa.UpdateCases(c.Request.Context(), auth.UID, req.Cases, req.Code2FA)
	if err != nil {
		s.fail(c, err)
		return
	}
	if provider != "" {
		require2FA(c, provider)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type set2FAProviderRequest struct {
	Provider   string  `json:"provider"`
	TOTPSecret *string `json:"totp_secret"`
	TOTPCode   *string `json:"totp_code"`
	Code2FA    *string `json:"code_2fa"`
}

func (s *Server) handleSet2FAProvider(c *gin.Context, auth *models.Auth) {
	var req set2FAProviderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, s.badBody(c, err))
		return
	}

	provider, err := s.mfa.SetProvider(c.Request.Context(), auth.UID,
		models.Provider(req.Provider), req.TOTPSecret, req.TOTPCode, req.Code2FA)
	if err != nil {
		s.fail(c, err)
		return
	}
	if provider != "" {
		require2FA(c, provider)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleNewTOTPSecret(c *gin.Context, auth *models.Auth) {
	offer, err := s.mfa.NewTOTPSecret(c.Request.Context(), auth.UID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"secret": offer.Secret,
		"uri":    offer.URI,
	})
}
