package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/infinex-exchange/account.account/internal/common"
	"github.com/infinex-exchange/account.account/internal/server/models"
	sessionsrepo "github.com/infinex-exchange/account.account/internal/server/repositories/sessions"
	"github.com/infinex-exchange/account.account/internal/server/services"
)

// badBody maps an undecodable request body to the missing-data error. The
// decode error itself is a client artifact, logged at debug only.
func (s *Server) badBody(c *gin.Context, err error) error {
	s.logger.Debug(c.Request.Context(), "undecodable request body", "error", err)
	return common.MissingField("body")
}

type loginRequest struct {
	Email    string  `json:"email"`
	Password string  `json:"password"`
	Code2FA  *string `json:"code_2fa"`
	Remember bool    `json:"remember"`
	Browser  *string `json:"browser"`
	OS       *string `json:"os"`
	Device   *string `json:"device"`
}

func (s *Server) handleLogin(c *gin.Context) {
	if _, ok := c.Get(authKey); ok {
		c.JSON(http.StatusForbidden, errorBody{
			Error: "ALREADY_LOGGED_IN",
			Msg:   "already logged in",
		})
		return
	}

	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, s.badBody(c, err))
		return
	}

	res, err := s.accounts.Login(c.Request.Context(), req.Email, req.Password, req.Code2FA, req.Remember, services.DeviceMeta{
		Browser: req.Browser,
		OS:      req.OS,
		Device:  req.Device,
	})
	if err != nil {
		s.fail(c, err)
		return
	}

	if res.MFAProvider != "" {
		require2FA(c, res.MFAProvider)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"uid":     res.UID,
		"sid":     res.SID,
		"api_key": res.Token,
	})
}

type sessionJSON struct {
	SID      int64      `json:"sid"`
	Origin   string     `json:"origin"`
	Remember bool       `json:"remember,omitempty"`
	LastAct  *time.Time `json:"last_act,omitempty"`
	Browser  *string    `json:"browser,omitempty"`
	OS       *string    `json:"os,omitempty"`
	Device   *string    `json:"device,omitempty"`
	Current  bool       `json:"current,omitempty"`
}

func toSessionJSON(s models.Session, currentSID int64) sessionJSON {
	return sessionJSON{
		SID:      s.SID,
		Origin:   string(s.Origin),
		Remember: s.Remember,
		LastAct:  s.LastAct,
		Browser:  s.Browser,
		OS:       s.OS,
		Device:   s.Device,
		Current:  s.SID == currentSID,
	}
}

// pageParams decodes offset/limit query parameters, tolerating absence.
func pageParams(c *gin.Context) (offset, limit int, err error) {
	offset, err = intQuery(c, "offset", 0)
	if err != nil {
		return 0, 0, common.InvalidField("offset")
	}
	limit, err = intQuery(c, "limit", 50)
	if err != nil {
		return 0, 0, common.InvalidField("limit")
	}
	return offset, limit, nil
}

func intQuery(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

// sidParam resolves the :sid path segment; "current" names the caller's own
// session.
func sidParam(c *gin.Context, auth *models.Auth) (int64, error) {
	raw := c.Param("sid")
	if raw == "current" {
		return auth.SID, nil
	}
	sid, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, common.InvalidField("sid")
	}
	return sid, nil
}

func webappFilter(uid int64) sessionsrepo.Filter {
	origin := models.OriginWebapp
	return sessionsrepo.Filter{UID: &uid, Origin: &origin}
}

func (s *Server) handleListSessions(c *gin.Context, auth *models.Auth) {
	offset, limit, err := pageParams(c)
	if err != nil {
		s.fail(c, err)
		return
	}

	page, err := s.sessions.List(c.Request.Context(), webappFilter(auth.UID), offset, limit)
	if err != nil {
		s.fail(c, err)
		return
	}

	out := make([]sessionJSON, 0, len(page.Sessions))
	for _, sess := range page.Sessions {
		out = append(out, toSessionJSON(sess, auth.SID))
	}
	c.JSON(http.StatusOK, gin.H{"sessions": out, "more": page.More})
}

func (s *Server) handleGetSession(c *gin.Context, auth *models.Auth) {
	sid, err := sidParam(c, auth)
	if err != nil {
		s.fail(c, err)
		return
	}

	sess, err := s.sessions.Get(c.Request.Context(), sid, webappFilter(auth.UID))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toSessionJSON(*sess, auth.SID))
}

func (s *Server) handleKillSession(c *gin.Context, auth *models.Auth) {
	sid, err := sidParam(c, auth)
	if err != nil {
		s.fail(c, err)
		return
	}

	if err := s.sessions.Kill(c.Request.Context(), sid, webappFilter(auth.UID)); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
