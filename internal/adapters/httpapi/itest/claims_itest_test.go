package itest

import (
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
)

type claimRow struct {
	ID           string     `json:"id"`
	Organization string     `json:"organization"`
	Email        string     `json:"email"`
	CreatedAt    *time.Time `json:"createdAt"`
}

type claimList struct {
	Claims []claimRow `json:"claims"`
	Stats  struct {
		Total         int `json:"total"`
		Organizations int `json:"organizations"`
	} `json:"stats"`
}

func TestClaims_ITest(t *testing.T) {
	for _, b := range backendsFromEnv(t) {
		t.Run(string(b), func(t *testing.T) {
			srv := newTestServer(t, b)

			// Nothing claimed yet.
			{
				status, body, _ := srv.doJSON(t, http.MethodGet, "/api/organizations", "", nil)
				if status != http.StatusOK {
					t.Fatalf("status=%d body=%s", status, string(body))
				}
				got := mustUnmarshal[struct {
					Organizations []string `json:"organizations"`
					Claimed       []string `json:"claimed"`
				}](t, body)
				if len(got.Organizations) != 3 || len(got.Claimed) != 0 {
					t.Fatalf("organizations=%+v", got)
				}
			}

			// Submit two claims; the first with an idempotency key and a retry.
			key := uuid.NewString()
			for i := 0; i < 2; i++ {
				status, body, _ := srv.doJSON(t, http.MethodPost, "/api/claims", "", map[string]string{
					"organization": "Divisi Humas",
					"email":        "humas@example.com",
				}, "Idempotency-Key", key)
				if status != http.StatusCreated {
					t.Fatalf("attempt %d status=%d body=%s", i, status, string(body))
				}
			}
			time.Sleep(5 * time.Millisecond)
			{
				status, body, _ := srv.doJSON(t, http.MethodPost, "/api/claims", "", map[string]string{
					"organization": "Divisi TI",
					"email":        "ti@example.com",
				})
				if status != http.StatusCreated {
					t.Fatalf("status=%d body=%s", status, string(body))
				}
			}
			if n := len(srv.events.Events()); n != 2 {
				t.Fatalf("events=%d want=2", n)
			}

			// A second claim for the same organization is refused.
			{
				status, body, hdr := srv.doJSON(t, http.MethodPost, "/api/claims", "", map[string]string{
					"organization": "Divisi Humas",
					"email":        "other@example.com",
				})
				got := requireErrorCode(t, status, body, http.StatusConflict, "DUPLICATE_CLAIM")
				if got.Error.Message != "Divisi ini sudah pernah claim. Silakan hubungi admin." {
					t.Fatalf("message=%q", got.Error.Message)
				}
				if got.Error.RequestID == "" {
					t.Fatalf("expected requestId in error body")
				}
				_ = hdr
			}

			// Admin routes require a session.
			{
				status, body, _ := srv.doJSON(t, http.MethodGet, "/api/admin/claims", "", nil)
				requireErrorCode(t, status, body, http.StatusUnauthorized, "UNAUTHORIZED")
			}

			var token string
			{
				status, body, _ := srv.doJSON(t, http.MethodPost, "/api/auth/login", "", map[string]string{
					"email":    adminEmail,
					"password": adminPassword,
				})
				if status != http.StatusOK {
					t.Fatalf("login status=%d body=%s", status, string(body))
				}
				token = mustUnmarshal[struct {
					AccessToken string `json:"accessToken"`
				}](t, body).AccessToken
			}

			var rows claimList
			{
				status, body, _ := srv.doJSON(t, http.MethodGet, "/api/admin/claims", token, nil)
				if status != http.StatusOK {
					t.Fatalf("list status=%d body=%s", status, string(body))
				}
				rows = mustUnmarshal[claimList](t, body)
				if len(rows.Claims) != 2 || rows.Claims[0].Organization != "Divisi TI" {
					t.Fatalf("rows=%+v", rows.Claims)
				}
				if rows.Stats.Total != 2 || rows.Stats.Organizations != 2 {
					t.Fatalf("stats=%+v", rows.Stats)
				}
			}

			// Export carries the workbook.
			{
				status, body, hdr := srv.doJSON(t, http.MethodGet, "/api/admin/claims/export?q=humas", token, nil)
				if status != http.StatusOK || len(body) == 0 {
					t.Fatalf("export status=%d len=%d", status, len(body))
				}
				requireHeaderPresent(t, hdr, "Content-Disposition")
			}

			// Delete one row.
			{
				status, body, _ := srv.doJSON(t, http.MethodDelete, "/api/admin/claims/"+rows.Claims[1].ID, token, nil)
				if status != http.StatusNoContent {
					t.Fatalf("delete status=%d body=%s", status, string(body))
				}
				status, body, _ = srv.doJSON(t, http.MethodGet, "/api/admin/claims", token, nil)
				after := mustUnmarshal[claimList](t, body)
				if status != http.StatusOK || len(after.Claims) != 1 || after.Claims[0].ID != rows.Claims[0].ID {
					t.Fatalf("after delete=%+v", after.Claims)
				}
			}

			// The deleted organization is available again.
			{
				status, body, _ := srv.doJSON(t, http.MethodGet, "/api/organizations", "", nil)
				got := mustUnmarshal[struct {
					Claimed []string `json:"claimed"`
				}](t, body)
				if status != http.StatusOK || len(got.Claimed) != 1 || got.Claimed[0] != "Divisi TI" {
					t.Fatalf("claimed=%v", got.Claimed)
				}
			}

			// Logout ends the session.
			{
				status, _, _ := srv.doJSON(t, http.MethodPost, "/api/auth/logout", token, nil)
				if status != http.StatusNoContent {
					t.Fatalf("logout status=%d", status)
				}
				status, body, _ := srv.doJSON(t, http.MethodGet, "/api/auth/session", token, nil)
				requireErrorCode(t, status, body, http.StatusUnauthorized, "UNAUTHORIZED")
			}
		})
	}
}
