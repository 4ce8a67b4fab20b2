// Package httpapi exposes the account service over REST. Handlers decode and
// re-encode only; all semantics live in the services layer.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/infinex-exchange/account.account/internal/logging"
	"github.com/infinex-exchange/account.account/internal/server/services"
)

// Server carries the HTTP surface: public endpoints (signup, login, password
// recovery), authenticated endpoints (sessions, API keys, e-mail, 2FA) and
// the internal /rpc entrypoint for sibling services.
type Server struct {
	addr     string
	logger   logging.Logger
	accounts *services.AccountService
	sessions *services.SessionManager
	mfa      *services.MFAService
	engine   *gin.Engine
}

func NewServer(addr string, logger logging.Logger, accounts *services.AccountService, sessions *services.SessionManager, mfa *services.MFAService) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.HandleMethodNotAllowed = true

	s := &Server{
		addr:     addr,
		logger:   logger,
		accounts: accounts,
		sessions: sessions,
		mfa:      mfa,
		engine:   engine,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	r := s.engine
	r.Use(gin.Recovery(), s.requestID(), s.requestLog(), s.authenticate())

	r.POST("/signup", s.handleSignup)
	r.PATCH("/signup", s.handleVerifySignup)

	r.POST("/sessions", s.handleLogin)
	r.GET("/sessions", s.requireAuth(s.handleListSessions))
	r.GET("/sessions/:sid", s.requireAuth(s.handleGetSession))
	r.DELETE("/sessions/:sid", s.requireAuth(s.handleKillSession))

	r.POST("/api-keys", s.requireAuth(s.handleCreateAPIKey))
	r.GET("/api-keys", s.requireAuth(s.handleListAPIKeys))
	r.GET("/api-keys/:sid", s.requireAuth(s.handleGetAPIKey))
	r.PATCH("/api-keys/:sid", s.requireAuth(s.handleEditAPIKey))
	r.DELETE("/api-keys/:sid", s.requireAuth(s.handleDeleteAPIKey))

	r.PUT("/password", s.requireAuth(s.handleChangePassword))
	r.DELETE("/password", s.handleResetPassword)
	r.PATCH("/password", s.handleConfirmResetPassword)

	r.GET("/email", s.requireAuth(s.handleGetEmail))
	r.PUT("/email", s.requireAuth(s.handleChangeEmail))
	r.PATCH("/email", s.requireAuth(s.handleConfirmChangeEmail))
	r.DELETE("/email", s.requireAuth(s.handleCancelChangeEmail))

	r.GET("/2fa", s.requireAuth(s.handleGet2FA))
	r.PATCH("/2fa/cases", s.requireAuth(s.handleUpdate2FACases))
	r.PUT("/2fa/provider", s.requireAuth(s.handleSet2FAProvider))
	r.POST("/2fa/totp", s.requireAuth(s.handleNewTOTPSecret))

	r.POST("/rpc", s.handleRPC)
}

// Handler exposes the router, for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.addr,
		Handler: s.engine,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info(ctx, "http server listening", "addr", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}
