package itest

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/kominfo-unma/canva-claim-api/internal/adapters/httpapi"
	memclaimrepo "github.com/kominfo-unma/canva-claim-api/internal/adapters/memory/claimrepo"
	memclock "github.com/kominfo-unma/canva-claim-api/internal/adapters/memory/clock"
	memevents "github.com/kominfo-unma/canva-claim-api/internal/adapters/memory/events"
	memidempotency "github.com/kominfo-unma/canva-claim-api/internal/adapters/memory/idempotency"
	memidentity "github.com/kominfo-unma/canva-claim-api/internal/adapters/memory/identity"
	pgclaimrepo "github.com/kominfo-unma/canva-claim-api/internal/adapters/postgres/claimrepo"
	pgidempotency "github.com/kominfo-unma/canva-claim-api/internal/adapters/postgres/idempotency"
	postgres_testutil "github.com/kominfo-unma/canva-claim-api/internal/adapters/postgres/testutil"
	"github.com/kominfo-unma/canva-claim-api/internal/app/claims"
	"github.com/kominfo-unma/canva-claim-api/internal/app/export"
	"github.com/kominfo-unma/canva-claim-api/internal/app/sessions"
	claimrepoport "github.com/kominfo-unma/canva-claim-api/internal/ports/out/claimrepo"
	idempotencyport "github.com/kominfo-unma/canva-claim-api/internal/ports/out/idempotency"
)

type backend string

const (
	backendMemory   backend = "memory"
	backendPostgres backend = "postgres"
)

const (
	adminEmail    = "admin@itest.local"
	adminPassword = "itest-password"
)

func backendsFromEnv(t *testing.T) []backend {
	t.Helper()
	switch strings.ToLower(strings.TrimSpace(os.Getenv("ITEST_BACKEND"))) {
	case "", "memory":
		return []backend{backendMemory}
	case "postgres":
		return []backend{backendPostgres}
	case "all":
		return []backend{backendMemory, backendPostgres}
	default:
		t.Fatalf("unknown ITEST_BACKEND value (expected memory|postgres|all)")
		return nil
	}
}

type testServer struct {
	baseURL string
	client  *http.Client
	events  *memevents.Recorder
}

func newTestServer(t *testing.T, b backend) *testServer {
	t.Helper()

	clk := memclock.NewManualClock(time.Date(2026, 10, 17, 3, 0, 0, 0, time.UTC))

	var (
		repo      claimrepoport.Repository
		idemStore idempotencyport.Store
	)

	switch b {
	case backendPostgres:
		pool, table := postgres_testutil.OpenMigratedPool(t)
		repo = pgclaimrepo.NewRepo(pool, table)
		idemStore = pgidempotency.NewStore(pool, time.Hour)
	case backendMemory:
		repo = memclaimrepo.NewRepo(clk)
		idemStore = memidempotency.NewStore()
	default:
		t.Fatalf("unknown backend: %s", b)
	}

	// Identity stays local so the suite is deterministic on every backend.
	idp := memidentity.NewProvider(clk, time.Hour)
	if err := idp.AddAccount(adminEmail, adminPassword); err != nil {
		t.Fatalf("AddAccount: %v", err)
	}
	sessSvc := sessions.NewService(idp)

	rec := memevents.NewRecorder()
	api := httpapi.NewServer(
		claims.NewService(repo, rec, clk),
		sessSvc,
		export.NewExporter("", nil, clk),
		idemStore,
		clk,
		zerolog.Nop(),
	)
	api.Organizations = []string{"Divisi Humas", "Divisi Keuangan", "Divisi TI"}

	handler := httpapi.NewRouter(api, httpapi.RouterOptions{
		AuthMiddleware: httpapi.NewAuthMiddleware(httpapi.VerifierFunc(sessSvc.Current)),
		SubmitLimiter:  httpapi.NewRateLimiter(600, 50, time.Minute),
	})

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return &testServer{
		baseURL: srv.URL,
		client:  srv.Client(),
		events:  rec,
	}
}

func (s *testServer) url(path string) string {
	if strings.HasPrefix(path, "/") {
		return s.baseURL + path
	}
	return s.baseURL + "/" + path
}

func (s *testServer) doJSON(t *testing.T, method string, path string, token string, body any, headers ...string) (int, []byte, http.Header) {
	t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, s.url(path), r)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := s.client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, out, resp.Header
}

type errorResponse struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"requestId"`
	} `json:"error"`
}

func mustUnmarshal[T any](t *testing.T, b []byte) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v\nbody=%s", err, string(b))
	}
	return out
}

func requireErrorCode(t *testing.T, status int, body []byte, wantStatus int, wantCode string) errorResponse {
	t.Helper()
	if status != wantStatus {
		t.Fatalf("status=%d want=%d body=%s", status, wantStatus, string(body))
	}
	got := mustUnmarshal[errorResponse](t, body)
	if got.Error.Code != wantCode {
		t.Fatalf("error.code=%q want=%q body=%s", got.Error.Code, wantCode, string(body))
	}
	return got
}

func requireHeaderPresent(t *testing.T, h http.Header, key string) {
	t.Helper()
	if strings.TrimSpace(h.Get(key)) == "" {
		t.Fatalf("expected header %q to be present", key)
	}
}
