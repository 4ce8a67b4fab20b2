package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/infinex-exchange/account.account/internal/common"
)

// rpcRequest is the envelope for internal calls from sibling services:
// a method name plus a free-form JSON payload.
type rpcRequest struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

func (s *Server) handleRPC(c *gin.Context) {
	var req rpcRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, s.badBody(c, err))
		return
	}
	if req.Method == "" {
		s.fail(c, common.MissingField("method"))
		return
	}

	result, err := s.dispatchRPC(c.Request.Context(), req.Method, req.Params)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}

func (s *Server) dispatchRPC(ctx context.Context, method string, params json.RawMessage) (any, error) {
	switch method {
	case "uidToEmail":
		var p struct {
			UID int64 `json:"uid"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, common.InvalidField("params")
		}
		email, err := s.accounts.UIDToEmail(ctx, p.UID)
		if err != nil {
			return nil, err
		}
		return gin.H{"email": email}, nil

	case "checkToken":
		var p struct {
			Token string `json:"token"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, common.InvalidField("params")
		}
		auth, err := s.sessions.CheckToken(ctx, p.Token)
		if err != nil {
			return nil, err
		}
		return gin.H{
			"uid":    auth.UID,
			"sid":    auth.SID,
			"origin": string(auth.Origin),
		}, nil

	default:
		return nil, common.InvalidField("method")
	}
}
