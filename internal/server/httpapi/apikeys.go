package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/infinex-exchange/account.account/internal/server/models"
	sessionsrepo "github.com/infinex-exchange/account.account/internal/server/repositories/sessions"
	"github.com/infinex-exchange/account.account/internal/server/services"
)

type apiKeyJSON struct {
	SID         int64   `json:"sid"`
	Description string  `json:"description"`
	LastAct     *string `json:"last_act,omitempty"`
}

func toAPIKeyJSON(s models.Session) apiKeyJSON {
	out := apiKeyJSON{SID: s.SID}
	if s.Description != nil {
		out.Description = *s.Description
	}
	if s.LastAct != nil {
		t := s.LastAct.UTC().Format("2006-01-02 15:04:05")
		out.LastAct = &t
	}
	return out
}

func apiFilter(uid int64) sessionsrepo.Filter {
	origin := models.OriginAPI
	return sessionsrepo.Filter{UID: &uid, Origin: &origin}
}

type createAPIKeyRequest struct {
	Description string `json:"description"`
}

func (s *Server) handleCreateAPIKey(c *gin.Context, auth *models.Auth) {
	var req createAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, s.badBody(c, err))
		return
	}

	key, err := s.sessions.Create(c.Request.Context(), services.CreateParams{
		UID:         auth.UID,
		Origin:      models.OriginAPI,
		Description: req.Description,
	})
	if err != nil {
		s.fail(c, err)
		return
	}

	// The plaintext key appears in this response only.
	c.JSON(http.StatusOK, gin.H{
		"sid":         key.SID,
		"api_key":     key.Token,
		"description": req.Description,
	})
}

func (s *Server) handleListAPIKeys(c *gin.Context, auth *models.Auth) {
	offset, limit, err := pageParams(c)
	if err != nil {
		s.fail(c, err)
		return
	}

	page, err := s.sessions.List(c.Request.Context(), apiFilter(auth.UID), offset, limit)
	if err != nil {
		s.fail(c, err)
		return
	}

	out := make([]apiKeyJSON, 0, len(page.Sessions))
	for _, sess := range page.Sessions {
		out = append(out, toAPIKeyJSON(sess))
	}
	c.JSON(http.StatusOK, gin.H{"api_keys": out, "more": page.More})
}

func (s *Server) handleGetAPIKey(c *gin.Context, auth *models.Auth) {
	sid, err := sidParam(c, auth)
	if err != nil {
		s.fail(c, err)
		return
	}

	key, err := s.sessions.Get(c.Request.Context(), sid, apiFilter(auth.UID))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toAPIKeyJSON(*key))
}

type editAPIKeyRequest struct {
	Description string `json:"description"`
}

func (s *Server) handleEditAPIKey(c *gin.Context, auth *models.Auth) {
	sid, err := sidParam(c, auth)
	if err != nil {
		s.fail(c, err)
		return
	}

	var req editAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, s.badBody(c, err))
		return
	}

	if err := s.sessions.EditDescription(c.Request.Context(), sid, auth.UID, req.Description); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleDeleteAPIKey(c *gin.Context, auth *models.Auth) {
	sid, err := sidParam(c, auth)
	if err != nil {
		s.fail(c, err)
		return
	}

	if err := s.sessions.Kill(c.Request.Context(), sid, apiFilter(auth.UID)); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
