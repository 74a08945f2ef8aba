package apiclient_test

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/kominfo-unma/canva-claim-api/internal/adapters/apiclient"
	"github.com/kominfo-unma/canva-claim-api/internal/adapters/httpapi"
	memclaimrepo "github.com/kominfo-unma/canva-claim-api/internal/adapters/memory/claimrepo"
	memclock "github.com/kominfo-unma/canva-claim-api/internal/adapters/memory/clock"
	memidempotency "github.com/kominfo-unma/canva-claim-api/internal/adapters/memory/idempotency"
	memidentity "github.com/kominfo-unma/canva-claim-api/internal/adapters/memory/identity"
	"github.com/kominfo-unma/canva-claim-api/internal/app/adminreview"
	"github.com/kominfo-unma/canva-claim-api/internal/app/claimform"
	"github.com/kominfo-unma/canva-claim-api/internal/app/claims"
	"github.com/kominfo-unma/canva-claim-api/internal/app/export"
	"github.com/kominfo-unma/canva-claim-api/internal/app/sessions"
	"github.com/kominfo-unma/canva-claim-api/internal/domain"
	"github.com/kominfo-unma/canva-claim-api/internal/platform/config"
	"github.com/kominfo-unma/canva-claim-api/internal/ports/out/identity"
)

const (
	adminEmail    = "admin@example.com"
	adminPassword = "pa55word"
	adminPath     = "/panel"
)

var organizations = []string{"Divisi Humas", "Divisi Keuangan", "Divisi TI"}

func newAPI(t *testing.T, withStore bool) (*httptest.Server, *memclock.ManualClock) {
	t.Helper()
	clk := memclock.NewManualClock(time.Date(2026, 10, 17, 1, 0, 0, 0, time.UTC))

	var repo *memclaimrepo.Repo
	claimSvc := claims.NewService(nil, nil, clk)
	if withStore {
		repo = memclaimrepo.NewRepo(clk)
		claimSvc = claims.NewService(repo, nil, clk)
	}
	idp := memidentity.NewProvider(clk, time.Hour)
	if err := idp.AddAccount(adminEmail, adminPassword); err != nil {
		t.Fatalf("AddAccount: %v", err)
	}
	sessSvc := sessions.NewService(idp)

	api := httpapi.NewServer(claimSvc, sessSvc, export.NewExporter("", nil, clk), memidempotency.NewStore(), clk, zerolog.Nop())
	api.Organizations = organizations
	api.AdminPath = adminPath
	srv := httptest.NewServer(httpapi.NewRouter(api, httpapi.RouterOptions{
		AuthMiddleware: httpapi.NewAuthMiddleware(httpapi.VerifierFunc(sessSvc.Current)),
	}))
	t.Cleanup(srv.Close)
	return srv, clk
}

func newClient(t *testing.T, srv *httptest.Server, store apiclient.SessionStore) *apiclient.Client {
	t.Helper()
	c, err := apiclient.New(srv.URL, apiclient.WithHTTPClient(srv.Client()), apiclient.WithAdminPath(adminPath), apiclient.WithSessionStore(store))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNew_RequiresBaseURL(t *testing.T) {
	t.Parallel()
	if _, err := apiclient.New("  "); err == nil {
		t.Fatalf("expected error for empty base URL")
	}
}

func TestClaimFormOverAPI(t *testing.T) {
	t.Parallel()
	srv, _ := newAPI(t, true)
	c := newClient(t, srv, nil)
	ctx := context.Background()

	f := claimform.New(c, organizations)
	defer f.Close()
	if err := f.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := f.Available(); len(got) != 3 {
		t.Fatalf("available=%v", got)
	}
	if !f.SetOrganization("divisi ti") {
		t.Fatalf("SetOrganization rejected an available organization")
	}
	f.SetEmail("ti@example.com")
	if err := f.Submit(ctx); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if f.State() != claimform.StateSuccess || f.Confirmation() == nil {
		t.Fatalf("state=%v confirmation=%v", f.State(), f.Confirmation())
	}

	// A fresh form sees the claim from the server.
	g := claimform.New(c, organizations)
	defer g.Close()
	if err := g.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	for _, org := range g.Available() {
		if org == "Divisi TI" {
			t.Fatalf("claimed organization still offered: %v", g.Available())
		}
	}

	err := c.Submit(ctx, "Divisi TI", "again@example.com")
	var ce *claims.Error
	if !errors.As(err, &ce) || ce.Code != claims.CodeDuplicate || ce.Message != claims.MsgDuplicate {
		t.Fatalf("duplicate err=%v", err)
	}

	view, err := c.View(ctx, "panel/")
	if err != nil || view != config.ViewAdmin {
		t.Fatalf("view=%q err=%v", view, err)
	}
}

func TestSubmit_NotConfigured(t *testing.T) {
	t.Parallel()
	srv, _ := newAPI(t, false)
	c := newClient(t, srv, nil)

	err := c.Submit(context.Background(), "Divisi TI", "ti@example.com")
	var ce *claims.Error
	if !errors.As(err, &ce) || ce.Code != claims.CodeConfiguration {
		t.Fatalf("err=%v", err)
	}
	if ce.Details["required"] == nil {
		t.Fatalf("details=%v", ce.Details)
	}
}

func TestAdminReviewOverAPI(t *testing.T) {
	t.Parallel()
	srv, clk := newAPI(t, true)
	ctx := context.Background()
	storePath := filepath.Join(t.TempDir(), "session.json")
	c := newClient(t, srv, apiclient.NewFileSessionStore(storePath))

	for _, org := range organizations {
		if err := c.Submit(ctx, org, "x@example.com"); err != nil {
			t.Fatalf("Submit %q: %v", org, err)
		}
		clk.Advance(time.Minute)
	}

	f := adminreview.New(c.Sessions(), c, export.NewExporter("", nil, clk))
	defer f.Close()

	if err := f.CheckSession(ctx); err != nil {
		t.Fatalf("CheckSession: %v", err)
	}
	if f.State() != adminreview.StateUnauthenticated {
		t.Fatalf("state=%v", f.State())
	}

	if err := f.Login(ctx, adminEmail, "nope"); err == nil {
		t.Fatalf("expected login failure")
	}
	if f.AuthError() == "" {
		t.Fatalf("expected auth error message")
	}

	if err := f.Login(ctx, adminEmail, adminPassword); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if f.State() != adminreview.StateLoaded || len(f.Rows()) != 3 {
		t.Fatalf("state=%v rows=%d", f.State(), len(f.Rows()))
	}
	if f.Rows()[0].Organization != "Divisi TI" {
		t.Fatalf("newest first: %+v", f.Rows())
	}
	if _, err := os.Stat(storePath); err != nil {
		t.Fatalf("session file not written: %v", err)
	}

	// A second client sharing the session file is already signed in.
	c2 := newClient(t, srv, apiclient.NewFileSessionStore(storePath))
	rows, stats, err := c2.List(ctx, "keu")
	if err != nil || len(rows) != 1 || stats.Total != 3 {
		t.Fatalf("rows=%v stats=%+v err=%v", rows, stats, err)
	}

	target := f.Rows()[1]
	if err := f.Delete(ctx, target.ID, func(string, domain.Claim) bool { return true }); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(f.Rows()) != 2 {
		t.Fatalf("rows after delete=%d", len(f.Rows()))
	}

	var buf bytes.Buffer
	name, ok, err := c.Export(ctx, "", &buf)
	if err != nil || !ok || name != "claim-canva-2026-10-17.xlsx" || buf.Len() == 0 {
		t.Fatalf("export name=%q ok=%v err=%v len=%d", name, ok, err, buf.Len())
	}
	buf.Reset()
	if _, ok, err := c.Export(ctx, "nothing-matches", &buf); err != nil || ok {
		t.Fatalf("empty export ok=%v err=%v", ok, err)
	}

	if err := f.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if f.State() != adminreview.StateUnauthenticated {
		t.Fatalf("state after logout=%v", f.State())
	}
	if _, err := os.Stat(storePath); !os.IsNotExist(err) {
		t.Fatalf("session file should be removed, stat err=%v", err)
	}
}

func TestRejectedTokenEndsSession(t *testing.T) {
	t.Parallel()
	srv, _ := newAPI(t, true)
	store := apiclient.NewMemorySessionStore()
	_ = store.Save(identity.Session{AccessToken: "stale"})
	c := newClient(t, srv, store)

	ended := make(chan bool, 1)
	unsub := c.Sessions().Subscribe(func(_ identity.Session, ok bool) { ended <- ok })
	defer unsub()

	_, err := c.ListAll(context.Background())
	var se *sessions.Error
	if !errors.As(err, &se) || se.Code != sessions.CodeAuth {
		t.Fatalf("err=%v", err)
	}
	select {
	case ok := <-ended:
		if ok {
			t.Fatalf("expected session-ended notification")
		}
	default:
		t.Fatalf("no notification")
	}
	if _, ok, _ := store.Load(); ok {
		t.Fatalf("stale token should be cleared")
	}

	if _, err := c.ListAll(context.Background()); !errors.Is(err, apiclient.ErrNotSignedIn) {
		t.Fatalf("err=%v want ErrNotSignedIn", err)
	}
}
