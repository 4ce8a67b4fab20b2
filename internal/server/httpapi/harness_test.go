package httpapi

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/infinex-exchange/account.account/internal/common"
	"github.com/infinex-exchange/account.account/internal/dbx"
	"github.com/infinex-exchange/account.account/internal/logging"
	"github.com/infinex-exchange/account.account/internal/server/mailer"
	"github.com/infinex-exchange/account.account/internal/server/models"
	sessionsrepo "github.com/infinex-exchange/account.account/internal/server/repositories/sessions"
	usersrepo "github.com/infinex-exchange/account.account/internal/server/repositories/users"
	vericodesrepo "github.com/infinex-exchange/account.account/internal/server/repositories/vericodes"
	"github.com/infinex-exchange/account.account/internal/server/services"
)

// The harness runs the full stack behind the router: real services over
// in-memory repositories, with an sqlite handle carrying the transaction
// boundaries.

type memUsers struct {
	nextUID int64
	users   map[int64]*models.User
}

func (f *memUsers) Create(ctx context.Context, email, passwordHash string) (*models.User, error) {
	u := &models.User{UID: f.nextUID, Email: email, Password: passwordHash, Provider2FA: models.ProviderEmail}
	f.users[u.UID] = u
	f.nextUID++
	return u, nil
}

func (f *memUsers) GetByUID(ctx context.Context, uid int64) (*models.User, error) {
	u, ok := f.users[uid]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *memUsers) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *memUsers) LockByEmail(ctx context.Context, email string) (bool, error) {
	_, err := f.GetByEmail(ctx, email)
	return err == nil, nil
}

func (f *memUsers) SetVerified(ctx context.Context, uid int64) error {
	return f.mutate(uid, func(u *models.User) { u.Verified = true })
}

func (f *memUsers) SetPassword(ctx context.Context, uid int64, passwordHash string) error {
	return f.mutate(uid, func(u *models.User) { u.Password = passwordHash })
}

func (f *memUsers) SetEmail(ctx context.Context, uid int64, email string) error {
	return f.mutate(uid, func(u *models.User) { u.Email = email })
}

func (f *memUsers) SetMFACases(ctx context.Context, uid int64, forLogin, forWithdraw *bool) error {
	return f.mutate(uid, func(u *models.User) {
		if forLogin != nil {
			u.ForLogin2FA = *forLogin
		}
		if forWithdraw != nil {
			u.ForWithdraw2FA = *forWithdraw
		}
	})
}

func (f *memUsers) SetProvider2FA(ctx context.Context, uid int64, provider models.Provider, totpSecret *string) error {
	return f.mutate(uid, func(u *models.User) {
		u.Provider2FA = provider
		u.TOTPSecret = totpSecret
	})
}

func (f *memUsers) mutate(uid int64, fn func(*models.User)) error {
	u, ok := f.users[uid]
	if !ok {
		return common.ErrorNotFound
	}
	fn(u)
	return nil
}

type memVeriCodes struct {
	nextID int64
	codes  []*models.VerificationCode
}

func (f *memVeriCodes) Create(ctx context.Context, uid int64, codeContext models.CodeContext, code string, contextData *string) error {
	f.codes = append(f.codes, &models.VerificationCode{
		CodeID: f.nextID, UID: uid, Context: codeContext, Code: code, ContextData: contextData,
	})
	f.nextID++
	return nil
}

func (f *memVeriCodes) Consume(ctx context.Context, uid int64, codeContext models.CodeContext, code string, contextData *string) (*string, error) {
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

func (f *memVeriCodes) DeleteAll(ctx context.Context, uid int64, codeContext models.CodeContext) (bool, error) {
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

func (f *memVeriCodes) Pending(ctx context.Context, uid int64, codeContext models.CodeContext) (*models.VerificationCode, error) {
	for _, vc := range f.codes {
		if vc.UID == uid && vc.Context == codeContext {
			cp := *vc
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

type memSessions struct {
	nextSID  int64
	sessions map[int64]*models.Session
}

func sessionMatch(s *models.Session, fl sessionsrepo.Filter) bool {
	if fl.UID != nil && s.UID != *fl.UID {
		return false
	}
	if fl.Origin != nil && s.Origin != *fl.Origin {
		return false
	}
	return true
}

func (f *memSessions) Insert(ctx context.Context, s *models.Session) (int64, error) {
	cp := *s
	cp.SID = f.nextSID
	f.nextSID++
	f.sessions[cp.SID] = &cp
	return cp.SID, nil
}

func (f *memSessions) TouchByToken(ctx context.Context, token string) (*models.Auth, error) {
	for _, s := range f.sessions {
		if s.Token == token {
			return &models.Auth{UID: s.UID, SID: s.SID, Origin: s.Origin}, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *memSessions) List(ctx context.Context, fl sessionsrepo.Filter, offset, limit int) ([]models.Session, error) {
	var all []models.Session
	for _, s := range f.sessions {
		if sessionMatch(s, fl) {
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

func (f *memSessions) Get(ctx context.Context, sid int64, fl sessionsrepo.Filter) (*models.Session, error) {
	s, ok := f.sessions[sid]
	if !ok || !sessionMatch(s, fl) {
		return nil, common.ErrorNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *memSessions) Delete(ctx context.Context, sid int64, fl sessionsrepo.Filter) error {
	s, ok := f.sessions[sid]
	if !ok || !sessionMatch(s, fl) {
		return common.ErrorNotFound
	}
	delete(f.sessions, sid)
	return nil
}

func (f *memSessions) LockByDescription(ctx context.Context, uid int64, description string) (int64, error) {
	for _, s := range f.sessions {
		if s.UID == uid && s.Origin == models.OriginAPI &&
			s.Description != nil && *s.Description == description {
			return s.SID, nil
		}
	}
	return 0, common.ErrorNotFound
}

func (f *memSessions) SetDescription(ctx context.Context, sid, uid int64, description string) error {
	s, ok := f.sessions[sid]
	if !ok || s.UID != uid || s.Origin != models.OriginAPI {
		return common.ErrorNotFound
	}
	s.Description = &description
	return nil
}

type memRepoManager struct {
	u *memUsers
	v *memVeriCodes
	s *memSessions
}

func (m *memRepoManager) Users(db dbx.DBTX) usersrepo.Repository         { return m.u }
func (m *memRepoManager) VeriCodes(db dbx.DBTX) vericodesrepo.Repository { return m.v }
func (m *memRepoManager) Sessions(db dbx.DBTX) sessionsrepo.Repository   { return m.s }
func (m *memRepoManager) RunMigrations(context.Context, *sql.DB) error   { return nil }

type memMailer struct {
	sent []*mailer.Message
}

func (f *memMailer) Send(ctx context.Context, msg *mailer.Message) error {
	f.sent = append(f.sent, msg)
	return nil
}

func (f *memMailer) lastCode(t *testing.T) string {
	t.Helper()
	if len(f.sent) == 0 {
		t.Fatalf("no mail sent")
	}
	code, _ := f.sent[len(f.sent)-1].Context["code"].(string)
	if code == "" {
		t.Fatalf("mail without code: %+v", f.sent[len(f.sent)-1])
	}
	return code
}

type env struct {
	srv  *Server
	rm   *memRepoManager
	mail *memMailer
}

func newEnv(t *testing.T) *env {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("sql.Open error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	rm := &memRepoManager{
		u: &memUsers{nextUID: 1, users: map[int64]*models.User{}},
		v: &memVeriCodes{nextID: 1},
		s: &memSessions{nextSID: 1, sessions: map[int64]*models.Session{}},
	}
	mail := &memMailer{}
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))

	codes := services.NewCodeStore(db, rm, logger)
	sessionMgr := services.NewSessionManager(db, rm, logger)
	mfa := services.NewMFAService(db, rm, codes, mail, logger, "Infinex")
	accounts := services.NewAccountService(db, rm, codes, mfa, sessionMgr, mail, logger)

	srv := NewServer(":0", logger, accounts, sessionMgr, mfa)
	return &env{srv: srv, rm: rm, mail: mail}
}

// do performs one request against the router and decodes the JSON response.
func (e *env) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)

	out := map[string]any{}
	if len(rec.Body.Bytes()) > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("undecodable response %q: %v", rec.Body.String(), err)
		}
	}
	return rec.Code, out
}

// signupAndLogin provisions a verified account and returns its bearer token.
func (e *env) signupAndLogin(t *testing.T, email, password string) string {
	t.Helper()

	status, _ := e.do(t, http.MethodPost, "/signup", "", map[string]any{
		"email": email, "password": password,
	})
	if status != http.StatusOK {
		t.Fatalf("signup status %d", status)
	}

	status, _ = e.do(t, http.MethodPatch, "/signup", "", map[string]any{
		"email": email, "code": e.mail.lastCode(t),
	})
	if status != http.StatusOK {
		t.Fatalf("verify status %d", status)
	}

	status, out := e.do(t, http.MethodPost, "/sessions", "", map[string]any{
		"email": email, "password": password,
	})
	if status != http.StatusOK {
		t.Fatalf("login status %d: %v", status, out)
	}
	token, _ := out["api_key"].(string)
	if token == "" {
		t.Fatalf("login returned no token: %v", out)
	}
	return token
}
