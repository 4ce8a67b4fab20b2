package repomanager

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/infinex-exchange/account.account/internal/dbx"
	"github.com/infinex-exchange/account.account/internal/server/migrations"
	"github.com/infinex-exchange/account.account/internal/server/repositories/sessions"
	"github.com/infinex-exchange/account.account/internal/server/repositories/users"
	"github.com/infinex-exchange/account.account/internal/server/repositories/vericodes"
)

type PostgresRepositoryManager struct{}

func NewPostgresRepositoryManager() *PostgresRepositoryManager {
	return &PostgresRepositoryManager{}
}

func (m *PostgresRepositoryManager) Users(db dbx.DBTX) users.Repository {
	return users.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) VeriCodes(db dbx.DBTX) vericodes.Repository {
	return vericodes.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Sessions(db dbx.DBTX) sessions.Repository {
	return sessions.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("error setting dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("error running migrations: %w", err)
	}

	return nil
}
