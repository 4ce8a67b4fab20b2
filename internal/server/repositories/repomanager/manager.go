// Package repomanager constructs repositories bound to a particular database
// handle, so a service can scope a whole unit of work to one transaction.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/infinex-exchange/account.account/internal/dbx"
	"github.com/infinex-exchange/account.account/internal/server/repositories/sessions"
	"github.com/infinex-exchange/account.account/internal/server/repositories/users"
	"github.com/infinex-exchange/account.account/internal/server/repositories/vericodes"
)

type RepositoryManager interface {
	Users(db dbx.DBTX) users.Repository
	VeriCodes(db dbx.DBTX) vericodes.Repository
	Sessions(db dbx.DBTX) sessions.Repository
	RunMigrations(ctx context.Context, db *sql.DB) error
}
