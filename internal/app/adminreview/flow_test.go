package adminreview

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	memclaimrepo "github.com/kominfo-unma/canva-claim-api/internal/adapters/memory/claimrepo"
	memclock "github.com/kominfo-unma/canva-claim-api/internal/adapters/memory/clock"
	"github.com/kominfo-unma/canva-claim-api/internal/app/claims"
	"github.com/kominfo-unma/canva-claim-api/internal/app/export"
	"github.com/kominfo-unma/canva-claim-api/internal/app/sessions"
	"github.com/kominfo-unma/canva-claim-api/internal/domain"
	"github.com/kominfo-unma/canva-claim-api/internal/ports/out/claimrepo"
	"github.com/kominfo-unma/canva-claim-api/internal/ports/out/identity"
)

type fakeIdentity struct {
	mu         sync.Mutex
	session    *identity.Session
	signOutErr error
	listeners  map[int]func(identity.Session, bool)
	next       int
}

func newFakeIdentity() *fakeIdentity {
	return &fakeIdentity{listeners: map[int]func(identity.Session, bool){}}
}

func (f *fakeIdentity) Session(ctx context.Context) (identity.Session, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session == nil {
		return identity.Session{}, false, nil
	}
	return *f.session, true, nil
}

func (f *fakeIdentity) SignIn(ctx context.Context, email, password string) (identity.Session, error) {
	if email != "admin@example.com" || password != "rahasia" {
		return identity.Session{}, &sessions.Error{Code: sessions.CodeAuth, Message: "Invalid login credentials"}
	}
	s := identity.Session{AccessToken: "tok", User: identity.User{ID: "u1", Email: email}}
	f.mu.Lock()
	f.session = &s
	f.mu.Unlock()
	f.notify(s, true)
	return s, nil
}

func (f *fakeIdentity) SignOut(ctx context.Context) error {
	f.mu.Lock()
	if f.signOutErr != nil {
		err := f.signOutErr
		f.mu.Unlock()
		return err
	}
	f.session = nil
	f.mu.Unlock()
	f.notify(identity.Session{}, false)
	return nil
}

func (f *fakeIdentity) Subscribe(fn func(identity.Session, bool)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next
	f.next++
	f.listeners[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.listeners, id)
	}
}

func (f *fakeIdentity) notify(s identity.Session, ok bool) {
	f.mu.Lock()
	fns := make([]func(identity.Session, bool), 0, len(f.listeners))
	for _, fn := range f.listeners {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(s, ok)
	}
}

func (f *fakeIdentity) listenerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners)
}

type failingDeletes struct {
	*claims.Service
	err error
}

func (g failingDeletes) Delete(ctx context.Context, id domain.ClaimID) error { return g.err }

type fixture struct {
	flow *Flow
	idp  *fakeIdentity
	svc  *claims.Service
	repo *memclaimrepo.Repo
}

func newFixture(t *testing.T, seed ...claimrepo.NewClaim) fixture {
	t.Helper()
	clk := memclock.NewManualClock(time.Date(2026, 10, 17, 7, 0, 0, 0, time.UTC))
	repo := memclaimrepo.NewRepo(clk)
	for _, c := range seed {
		if err := repo.Insert(context.Background(), c); err != nil {
			t.Fatalf("seed %q: %v", c.Organization, err)
		}
		clk.Advance(time.Minute)
	}
	svc := claims.NewService(repo, nil, clk)
	idp := newFakeIdentity()
	f := New(idp, svc, export.NewExporter("", time.UTC, clk))
	t.Cleanup(f.Close)
	return fixture{flow: f, idp: idp, svc: svc, repo: repo}
}

func signIn(t *testing.T, fx fixture) {
	t.Helper()
	if err := fx.flow.Login(context.Background(), "admin@example.com", "rahasia"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if fx.flow.State() != StateLoaded {
		t.Fatalf("state=%v want=loaded", fx.flow.State())
	}
}

var threeDivisions = []claimrepo.NewClaim{
	{Organization: "HR", Email: "a@x.id"},
	{Organization: "IT", Email: "b@x.id"},
	{Organization: "Keuangan", Email: "c@x.id"},
}

func TestFlow_CheckSessionWithoutSession(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	if fx.flow.State() != StateCheckingSession {
		t.Fatalf("initial state=%v", fx.flow.State())
	}
	if err := fx.flow.CheckSession(context.Background()); err != nil {
		t.Fatalf("CheckSession: %v", err)
	}
	if fx.flow.State() != StateUnauthenticated {
		t.Fatalf("state=%v want=unauthenticated", fx.flow.State())
	}
	if err := fx.flow.Refresh(context.Background()); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("Refresh err=%v", err)
	}
}

func TestFlow_CheckSessionWithExistingSessionLoads(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, threeDivisions...)
	fx.idp.session = &identity.Session{AccessToken: "tok"}
	if err := fx.flow.CheckSession(context.Background()); err != nil {
		t.Fatalf("CheckSession: %v", err)
	}
	if fx.flow.State() != StateLoaded || len(fx.flow.Rows()) != 3 {
		t.Fatalf("state=%v rows=%d", fx.flow.State(), len(fx.flow.Rows()))
	}
}

func TestFlow_LoginFailureKeepsUnauthenticated(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	_ = fx.flow.CheckSession(context.Background())
	if err := fx.flow.Login(context.Background(), "admin@example.com", "salah"); err == nil {
		t.Fatalf("expected error")
	}
	if fx.flow.State() != StateUnauthenticated {
		t.Fatalf("state=%v", fx.flow.State())
	}
	if got := fx.flow.AuthError(); got != "Invalid login credentials" {
		t.Fatalf("authErr=%q", got)
	}
}

func TestFlow_LoginLoadsNewestFirstAndStats(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, threeDivisions...)
	_ = fx.flow.CheckSession(context.Background())
	signIn(t, fx)

	rows := fx.flow.Rows()
	if len(rows) != 3 || rows[0].Organization != "Keuangan" || rows[2].Organization != "HR" {
		t.Fatalf("rows=%+v", rows)
	}
	if s := fx.flow.Stats(); s.Total != 3 || s.Organizations != 3 {
		t.Fatalf("stats=%+v", s)
	}
	if s, ok := fx.flow.Session(); !ok || s.AccessToken != "tok" {
		t.Fatalf("session=%+v ok=%v", s, ok)
	}
}

func TestFlow_SearchFiltersWithoutStateChange(t *testing.T) {
	t.Parallel()

	fx := newFixture(t,
		claimrepo.NewClaim{Organization: "HR", Email: "a@x.id"},
		claimrepo.NewClaim{Organization: "IT", Email: "b@x.id"},
	)
	_ = fx.flow.CheckSession(context.Background())
	signIn(t, fx)

	fx.flow.Search("h")
	rows := fx.flow.Rows()
	if len(rows) != 1 || rows[0].Organization != "HR" {
		t.Fatalf("rows=%+v", rows)
	}
	if fx.flow.State() != StateLoaded {
		t.Fatalf("state=%v", fx.flow.State())
	}
	if s := fx.flow.Stats(); s.Total != 2 {
		t.Fatalf("stats use unfiltered rows: %+v", s)
	}
}

func TestFlow_DeleteRequiresConfirmationAndRemovesOneRow(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, threeDivisions...)
	_ = fx.flow.CheckSession(context.Background())
	signIn(t, fx)
	target := fx.flow.Rows()[1]

	var prompt string
	if err := fx.flow.Delete(context.Background(), target.ID, func(p string, _ domain.Claim) bool {
		prompt = p
		return false
	}); err != nil {
		t.Fatalf("declined Delete: %v", err)
	}
	if prompt != "Hapus email b@x.id dari divisi IT?" {
		t.Fatalf("prompt=%q", prompt)
	}
	if len(fx.flow.Rows()) != 3 {
		t.Fatalf("declined delete removed a row")
	}
	stored, _ := fx.repo.List(context.Background())
	if len(stored) != 3 {
		t.Fatalf("declined delete reached the store")
	}

	if err := fx.flow.Delete(context.Background(), target.ID, func(string, domain.Claim) bool { return true }); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	rows := fx.flow.Rows()
	if len(rows) != 2 || rows[0].Organization != "Keuangan" || rows[1].Organization != "HR" {
		t.Fatalf("rows=%+v", rows)
	}
	if fx.flow.DeletingID() != "" {
		t.Fatalf("deleting id not cleared")
	}
}

func TestFlow_DeleteFailureKeepsRow(t *testing.T) {
	t.Parallel()

	clk := memclock.NewManualClock(time.Date(2026, 10, 17, 7, 0, 0, 0, time.UTC))
	repo := memclaimrepo.NewRepo(clk)
	_ = repo.Insert(context.Background(), claimrepo.NewClaim{Organization: "HR", Email: "a@x.id"})
	svc := claims.NewService(repo, nil, clk)
	gw := failingDeletes{Service: svc, err: &claims.Error{Code: claims.CodeStore, Message: claims.MsgDeleteFailed}}
	idp := newFakeIdentity()
	f := New(idp, gw, export.NewExporter("", time.UTC, clk))
	defer f.Close()

	_ = f.CheckSession(context.Background())
	if err := f.Login(context.Background(), "admin@example.com", "rahasia"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	id := f.Rows()[0].ID
	if err := f.Delete(context.Background(), id, func(string, domain.Claim) bool { return true }); err == nil {
		t.Fatalf("expected error")
	}
	if len(f.Rows()) != 1 {
		t.Fatalf("row removed despite failure")
	}
	if f.ErrorMessage() != claims.MsgDeleteFailed {
		t.Fatalf("msg=%q", f.ErrorMessage())
	}
}

func TestFlow_ExportUsesFilteredRows(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, threeDivisions...)
	_ = fx.flow.CheckSession(context.Background())
	signIn(t, fx)

	fx.flow.Search("tidak-ada")
	var empty bytes.Buffer
	name, ok, err := fx.flow.Export(&empty)
	if err != nil || ok || name != "" || empty.Len() != 0 {
		t.Fatalf("empty export name=%q ok=%v err=%v len=%d", name, ok, err, empty.Len())
	}

	fx.flow.Search("it")
	var buf bytes.Buffer
	name, ok, err = fx.flow.Export(&buf)
	if err != nil || !ok {
		t.Fatalf("export ok=%v err=%v", ok, err)
	}
	if name != "claim-canva-2026-10-17.xlsx" {
		t.Fatalf("name=%q", name)
	}
	if buf.Len() == 0 {
		t.Fatalf("empty workbook")
	}
}

func TestFlow_LogoutClearsState(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, threeDivisions...)
	_ = fx.flow.CheckSession(context.Background())
	signIn(t, fx)
	fx.flow.Search("hr")

	fx.idp.signOutErr = &sessions.Error{Code: sessions.CodeAuth, Message: "network down"}
	if err := fx.flow.Logout(context.Background()); err == nil {
		t.Fatalf("expected logout error")
	}
	if fx.flow.State() != StateLoaded || fx.flow.AuthError() != "network down" {
		t.Fatalf("state=%v authErr=%q", fx.flow.State(), fx.flow.AuthError())
	}

	fx.idp.signOutErr = nil
	if err := fx.flow.Logout(context.Background()); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if fx.flow.State() != StateUnauthenticated || len(fx.flow.Rows()) != 0 || fx.flow.Query() != "" {
		t.Fatalf("state=%v rows=%d query=%q", fx.flow.State(), len(fx.flow.Rows()), fx.flow.Query())
	}
	if _, ok := fx.flow.Session(); ok {
		t.Fatalf("session not cleared")
	}
}

func TestFlow_NotConfiguredStore(t *testing.T) {
	t.Parallel()

	idp := newFakeIdentity()
	idp.session = &identity.Session{AccessToken: "tok"}
	f := New(idp, claims.NewService(nil, nil, nil), export.NewExporter("", time.UTC, nil))
	defer f.Close()

	if err := f.CheckSession(context.Background()); !claims.IsCode(err, claims.CodeConfiguration) {
		t.Fatalf("err=%v", err)
	}
	if f.State() != StateError || !f.NotConfigured() {
		t.Fatalf("state=%v notConfigured=%v", f.State(), f.NotConfigured())
	}
	if !strings.Contains(f.ErrorMessage(), "Supabase") {
		t.Fatalf("msg=%q", f.ErrorMessage())
	}
}

func TestFlow_CloseUnsubscribes(t *testing.T) {
	t.Parallel()

	idp := newFakeIdentity()
	f := New(idp, claims.NewService(nil, nil, nil), export.NewExporter("", time.UTC, nil))
	if idp.listenerCount() != 1 {
		t.Fatalf("listeners=%d want=1", idp.listenerCount())
	}
	f.Close()
	if idp.listenerCount() != 0 {
		t.Fatalf("listeners=%d want=0", idp.listenerCount())
	}
}

func TestFlow_SessionEndedElsewhereSignsOut(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, threeDivisions...)
	_ = fx.flow.CheckSession(context.Background())
	signIn(t, fx)

	fx.idp.notify(identity.Session{}, false)
	if fx.flow.State() != StateUnauthenticated || len(fx.flow.Rows()) != 0 {
		t.Fatalf("state=%v rows=%d", fx.flow.State(), len(fx.flow.Rows()))
	}
}
