package services

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/infinex-exchange/account.account/internal/common"
	"github.com/infinex-exchange/account.account/internal/dbx"
	"github.com/infinex-exchange/account.account/internal/logging"
	"github.com/infinex-exchange/account.account/internal/server/mailer"
	"github.com/infinex-exchange/account.account/internal/server/models"
	sessionsrepo "github.com/infinex-exchange/account.account/internal/server/repositories/sessions"
	usersrepo "github.com/infinex-exchange/account.account/internal/server/repositories/users"
	vericodesrepo "github.com/infinex-exchange/account.account/internal/server/repositories/vericodes"
)

// --- in-memory repository fakes ---

type fakeUsersRepo struct {
	mu      sync.Mutex
	nextUID int64
	users   map[int64]*models.User
}

func newFakeUsersRepo() *fakeUsersRepo {
	return &fakeUsersRepo{nextUID: 1, users: map[int64]*models.User{}}
}

func (f *fakeUsersRepo) add(u *models.User) *models.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u.UID == 0 {
		u.UID = f.nextUID
	}
	if u.UID >= f.nextUID {
		f.nextUID = u.UID + 1
	}
	if u.Provider2FA == "" {
		u.Provider2FA = models.ProviderEmail
	}
	f.users[u.UID] = u
	return u
}

func (f *fakeUsersRepo) Create(ctx context.Context, email, passwordHash string) (*models.User, error) {
	return f.add(&models.User{Email: email, Password: passwordHash}), nil
}

func (f *fakeUsersRepo) GetByUID(ctx context.Context, uid int64) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[uid]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsersRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeUsersRepo) LockByEmail(ctx context.Context, email string) (bool, error) {
	_, err := f.GetByEmail(ctx, email)
	if err != nil {
		return false, nil
	}
	return true, nil
}

func (f *fakeUsersRepo) SetVerified(ctx context.Context, uid int64) error {
	return f.mutate(uid, func(u *models.User) { u.Verified = true })
}

func (f *fakeUsersRepo) SetPassword(ctx context.Context, uid int64, passwordHash string) error {
	return f.mutate(uid, func(u *models.User) { u.Password = passwordHash })
}

func (f *fakeUsersRepo) SetEmail(ctx context.Context, uid int64, email string) error {
	return f.mutate(uid, func(u *models.User) { u.Email = email })
}

func (f *fakeUsersRepo) SetMFACases(ctx context.Context, uid int64, forLogin, forWithdraw *bool) error {
	return f.mutate(uid, func(u *models.User) {
		if forLogin != nil {
			u.ForLogin2FA = *forLogin
		}
		if forWithdraw != nil {
			u.ForWithdraw2FA = *forWithdraw
		}
	})
}

func (f *fakeUsersRepo) SetProvider2FA(ctx context.Context, uid int64, provider models.Provider, totpSecret *string) error {
	return f.mutate(uid, func(u *models.User) {
		u.Provider2FA = provider
		u.TOTPSecret = totpSecret
	})
}

func (f *fakeUsersRepo) mutate(uid int64, fn func(*models.User)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[uid]
	if !ok {
		return common.ErrorNotFound
	}
	fn(u)
	return nil
}

type fakeVeriCodesRepo struct {
	mu     sync.Mutex
	nextID int64
	codes  []*models.VerificationCode
}

func newFakeVeriCodesRepo() *fakeVeriCodesRepo {
	return &fakeVeriCodesRepo{nextID: 1}
}

func (f *fakeVeriCodesRepo) Create(ctx context.Context, uid int64, codeContext models.CodeContext, code string, contextData *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.codes = append(f.codes, &models.VerificationCode{
		CodeID:      f.nextID,
		UID:         uid,
		Context:     codeContext,
		Code:        code,
		ContextData: contextData,
	})
	f.nextID++
	return nil
}

func (f *fakeVeriCodesRepo) Consume(ctx context.Context, uid int64, codeContext models.CodeContext, code string, contextData *string) (*string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, vc := range f.codes {
		if vc.UID != uid || vc.Context != codeContext || vc.Code != code {
			continue
		}
		if contextData != nil && (vc.ContextData == nil || *vc.ContextData != *contextData) {
			continue
		}
		f.codes = append(f.codes[:i], f.codes[i+1:]...)
		return vc.ContextData, nil
	}
	return nil, common.ErrorNotFound
}

func (f *fakeVeriCodesRepo) DeleteAll(ctx context.Context, uid int64, codeContext models.CodeContext) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.codes[:0]
	existed := false
	for _, vc := range f.codes {
		if vc.UID == uid && vc.Context == codeContext {
			existed = true
			continue
		}
		kept = append(kept, vc)
	}
	f.codes = kept
	return existed, nil
}

func (f *fakeVeriCodesRepo) Pending(ctx context.Context, uid int64, codeContext models.CodeContext) (*models.VerificationCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, vc := range f.codes {
		if vc.UID == uid && vc.Context == codeContext {
			cp := *vc
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

// live returns the single live code for (uid, context), for assertions.
func (f *fakeVeriCodesRepo) live(t *testing.T, uid int64, codeContext models.CodeContext) *models.VerificationCode {
	t.Helper()
	vc, err := f.Pending(context.Background(), uid, codeContext)
	if err != nil {
		t.Fatalf("no live code for uid=%d context=%s", uid, codeContext)
	}
	return vc
}

type fakeSessionsRepo struct {
	mu       sync.Mutex
	nextSID  int64
	sessions map[int64]*models.Session
}

func newFakeSessionsRepo() *fakeSessionsRepo {
	return &fakeSessionsRepo{nextSID: 1, sessions: map[int64]*models.Session{}}
}

func (f *fakeSessionsRepo) Insert(ctx context.Context, s *models.Session) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *s
	cp.SID = f.nextSID
	f.nextSID++
	f.sessions[cp.SID] = &cp
	return cp.SID, nil
}

func (f *fakeSessionsRepo) TouchByToken(ctx context.Context, token string) (*models.Auth, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.Token == token {
			return &models.Auth{UID: s.UID, SID: s.SID, Origin: s.Origin}, nil
		}
	}
	return nil, common.ErrorNotFound
}

func matches(s *models.Session, fl sessionsrepo.Filter) bool {
	if fl.UID != nil && s.UID != *fl.UID {
		return false
	}
	if fl.Origin != nil && s.Origin != *fl.Origin {
		return false
	}
	return true
}

func (f *fakeSessionsRepo) List(ctx context.Context, fl sessionsrepo.Filter, offset, limit int) ([]models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []models.Session
	for _, s := range f.sessions {
		if matches(s, fl) {
			all = append(all, *s)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].SID > all[j].SID })
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (f *fakeSessionsRepo) Get(ctx context.Context, sid int64, fl sessionsrepo.Filter) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sid]
	if !ok || !matches(s, fl) {
		return nil, common.ErrorNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSessionsRepo) Delete(ctx context.Context, sid int64, fl sessionsrepo.Filter) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sid]
	if !ok || !matches(s, fl) {
		return common.ErrorNotFound
	}
	delete(f.sessions, sid)
	return nil
}

func (f *fakeSessionsRepo) LockByDescription(ctx context.Context, uid int64, description string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.UID == uid && s.Origin == models.OriginAPI &&
			s.Description != nil && *s.Description == description {
			return s.SID, nil
		}
	}
	return 0, common.ErrorNotFound
}

func (f *fakeSessionsRepo) SetDescription(ctx context.Context, sid, uid int64, description string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sid]
	if !ok || s.UID != uid || s.Origin != models.OriginAPI {
		return common.ErrorNotFound
	}
	s.Description = &description
	return nil
}

type fakeRepoManager struct {
	u *fakeUsersRepo
	v *fakeVeriCodesRepo
	s *fakeSessionsRepo
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{
		u: newFakeUsersRepo(),
		v: newFakeVeriCodesRepo(),
		s: newFakeSessionsRepo(),
	}
}

func (m *fakeRepoManager) Users(db dbx.DBTX) usersrepo.Repository         { return m.u }
func (m *fakeRepoManager) VeriCodes(db dbx.DBTX) vericodesrepo.Repository { return m.v }
func (m *fakeRepoManager) Sessions(db dbx.DBTX) sessionsrepo.Repository   { return m.s }
func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error   { return nil }

// --- mailer fake ---

type fakeMailer struct {
	mu   sync.Mutex
	sent []*mailer.Message
}

func (f *fakeMailer) Send(ctx context.Context, msg *mailer.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeMailer) last(t *testing.T) *mailer.Message {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatalf("no mail sent")
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeMailer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// --- wiring helpers ---

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return db, mock
}

// expectTx queues n Begin/Commit pairs; repository work inside the
// transactions runs against the fakes.
func expectTx(mock sqlmock.Sqlmock, n int) {
	for i := 0; i < n; i++ {
		mock.ExpectBegin()
		mock.ExpectCommit()
	}
}

// expectTxRollback queues a Begin/Rollback pair for a transaction expected
// to abort.
func expectTxRollback(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectRollback()
}

type testEnv struct {
	db       *sql.DB
	mock     sqlmock.Sqlmock
	rm       *fakeRepoManager
	mail     *fakeMailer
	codes    *CodeStore
	sessions *SessionManager
	mfa      *MFAService
	accounts *AccountService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, mock := newSQLMockDB(t)
	t.Cleanup(func() { db.Close() })

	rm := newFakeRepoManager()
	mail := &fakeMailer{}
	logger := testLogger()

	codes := NewCodeStore(db, rm, logger)
	sessions := NewSessionManager(db, rm, logger)
	mfa := NewMFAService(db, rm, codes, mail, logger, "Infinex")
	accounts := NewAccountService(db, rm, codes, mfa, sessions, mail, logger)

	return &testEnv{
		db:       db,
		mock:     mock,
		rm:       rm,
		mail:     mail,
		codes:    codes,
		sessions: sessions,
		mfa:      mfa,
		accounts: accounts,
	}
}

// addVerifiedUser seeds a user with the given plaintext password.
func (e *testEnv) addVerifiedUser(t *testing.T, email, password string) *models.User {
	t.Helper()
	hash, err := hashPassword(password)
	if err != nil {
		t.Fatalf("hashPassword error: %v", err)
	}
	return e.rm.u.add(&models.User{Email: email, Password: hash, Verified: true})
}
