// Package server initializes and runs the account service: database,
// migrations, mail queue, business services and the REST endpoint, with
// graceful shutdown on OS signals.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/infinex-exchange/account.account/internal/logging"
	"github.com/infinex-exchange/account.account/internal/server/config"
	"github.com/infinex-exchange/account.account/internal/server/httpapi"
	"github.com/infinex-exchange/account.account/internal/server/mailer"
	"github.com/infinex-exchange/account.account/internal/server/repositories/repomanager"
	"github.com/infinex-exchange/account.account/internal/server/services"
)

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	redis  *redis.Client
	server *httpapi.Server
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	zl, err := zap.NewProduction()
	if err != nil {
		return nil, fmt.Errorf("logger init error: %w", err)
	}
	logger := logging.NewZapLogger(zl)

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	mail := mailer.NewRedisMailer(rdb, cfg.MailStream, logger)

	codes := services.NewCodeStore(db, rm, logger)
	sessions := services.NewSessionManager(db, rm, logger)
	mfa := services.NewMFAService(db, rm, codes, mail, logger, cfg.TOTPIssuer)
	accounts := services.NewAccountService(db, rm, codes, mfa, sessions, mail, logger)

	srv := httpapi.NewServer(cfg.EndpointAddrHTTP, logger, accounts, sessions, mfa)

	return &App{
		config: cfg,
		logger: logger,
		db:     db,
		redis:  rdb,
		server: srv,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "starting app")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := app.server.Run(ctx); err != nil {
			app.logger.Error(ctx, err.Error())
			cancelFunc()
		}
	}()

	wg.Wait()

	if err := app.redis.Close(); err != nil {
		app.logger.Error(ctx, err.Error())
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, err.Error())
	}
	app.logger.Info(ctx, "app stopped")
}
