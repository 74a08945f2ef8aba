package httpapi

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/oapi-codegen/nullable"
	"github.com/rs/zerolog"

	"github.com/kominfo-unma/canva-claim-api/internal/app/claims"
	"github.com/kominfo-unma/canva-claim-api/internal/app/export"
	"github.com/kominfo-unma/canva-claim-api/internal/app/sessions"
	"github.com/kominfo-unma/canva-claim-api/internal/domain"
	"github.com/kominfo-unma/canva-claim-api/internal/platform/config"
	clockport "github.com/kominfo-unma/canva-claim-api/internal/ports/out/clock"
	"github.com/kominfo-unma/canva-claim-api/internal/ports/out/idempotency"
)

// IdempotencyKeyHeader carries the caller's retry key for submissions.
const IdempotencyKeyHeader = "Idempotency-Key"

const claimsRoute = "/api/claims"

// Server is the HTTP adapter over the claim and session services.
type Server struct {
	Claims   *claims.Service
	Sessions *sessions.Service
	Export   *export.Exporter
	Idem     idempotency.Store
	Clock    clockport.Clock
	Log      zerolog.Logger

	// Organizations is the configured list offered by the claim form.
	Organizations []string
	AdminPath     string
}

func NewServer(claimsSvc *claims.Service, sessionsSvc *sessions.Service, exp *export.Exporter, idem idempotency.Store, clk clockport.Clock, log zerolog.Logger) *Server {
	return &Server{
		Claims:    claimsSvc,
		Sessions:  sessionsSvc,
		Export:    exp,
		Idem:      idem,
		Clock:     clk,
		Log:       log,
		AdminPath: config.DefaultAdminPath,
	}
}

type ClaimRequest struct {
	Organization string `json:"organization"`
	Email        string `json:"email"`
}

type ClaimCreated struct {
	Organization string `json:"organization"`
}

// OrganizationsResponse is served even when the claimed set cannot be read; in that case
// Claimed is empty and ClaimedError says why.
type OrganizationsResponse struct {
	Organizations []string   `json:"organizations"`
	Claimed       []string   `json:"claimed"`
	ClaimedError  *ErrorBody `json:"claimedError,omitempty"`
}

type ViewResponse struct {
	Path string      `json:"path"`
	View config.View `json:"view"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type UserView struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type LoginResponse struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
	User        UserView  `json:"user"`
}

type SessionResponse struct {
	User UserView `json:"user"`
}

type ClaimView struct {
	ID           string                       `json:"id"`
	Organization string                       `json:"organization"`
	Email        string                       `json:"email"`
	CreatedAt    nullable.Nullable[time.Time] `json:"createdAt"`
}

type StatsView struct {
	Total         int `json:"total"`
	Organizations int `json:"organizations"`
}

type ClaimListResponse struct {
	Claims []ClaimView `json:"claims"`
	Stats  StatsView   `json:"stats"`
	Query  string      `json:"query"`
}

func (s *Server) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) GetView(w http.ResponseWriter, r *http.Request) {
	p := config.NormalizePath(r.URL.Query().Get("path"))
	writeJSON(w, http.StatusOK, ViewResponse{Path: p, View: config.ViewFor(p, s.AdminPath)})
}

// ListOrganizations serves the configured organizations with the claimed subset. A store
// read failure does not hide the configured list; the form stays usable and the store's
// uniqueness constraint still rejects a second claim.
func (s *Server) ListOrganizations(w http.ResponseWriter, r *http.Request) {
	resp := OrganizationsResponse{Organizations: s.Organizations, Claimed: []string{}}
	if resp.Organizations == nil {
		resp.Organizations = []string{}
	}

	claimed, err := s.Claims.ClaimedOrganizations(r.Context())
	switch {
	case claims.IsCode(err, claims.CodeConfiguration):
		writeAppError(w, r, s.Log, err)
		return
	case err != nil:
		body := &ErrorBody{Code: claims.CodeStore, Message: claims.MsgListFailed}
		var ce *claims.Error
		if errors.As(err, &ce) {
			body.Code, body.Message = ce.Code, ce.Message
		}
		if rid := middleware.GetReqID(r.Context()); rid != "" {
			body.RequestId = nullable.NewNullableWithValue(rid)
		}
		s.Log.Warn().Err(err).Str("requestId", middleware.GetReqID(r.Context())).Msg("claimed organizations unavailable")
		resp.ClaimedError = body
	case claimed != nil:
		resp.Claimed = claimed
	}
	writeJSON(w, http.StatusOK, resp)
}

// SubmitClaim records a claim. With an Idempotency-Key, a retry carrying the same body
// from the same client replays the first 201; the same key with a different body is 409.
func (s *Server) SubmitClaim(w http.ResponseWriter, r *http.Request) {
	var req ClaimRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, CodeBadRequest, "invalid JSON body", nil)
		return
	}
	ctx := r.Context()

	key := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
	var respFP idempotency.Fingerprint
	if key != "" && s.Idem != nil {
		bodyHash, err := hashClaimRequest(req)
		if err != nil {
			writeAppError(w, r, s.Log, err)
			return
		}
		metaFP := idempotency.Fingerprint{
			Key:    idempotency.Key(key),
			Client: clientAddr(r),
			Method: http.MethodPost,
			Route:  claimsRoute,
		}
		if meta, ok, err := s.Idem.Get(ctx, metaFP); err != nil {
			writeAppError(w, r, s.Log, err)
			return
		} else if ok {
			if string(meta.Body) != bodyHash {
				writeError(w, r, http.StatusConflict, CodeIdempotencyKey, "idempotency key reuse with different payload", nil)
				return
			}
		} else {
			if err := s.Idem.Put(ctx, metaFP, idempotency.Record{
				ContentType: "text/plain",
				Body:        []byte(bodyHash),
				CreatedAt:   s.now(),
			}); err != nil {
				s.logIdemFailure(r, err)
			}
		}

		respFP = metaFP
		respFP.BodyHash = bodyHash
		if rec, ok, err := s.Idem.Get(ctx, respFP); err != nil {
			writeAppError(w, r, s.Log, err)
			return
		} else if ok && rec.StatusCode == http.StatusCreated && strings.HasPrefix(rec.ContentType, "application/json") {
			w.Header().Set("Content-Type", rec.ContentType)
			w.Header().Set("Idempotent-Replayed", "true")
			w.WriteHeader(rec.StatusCode)
			_, _ = w.Write(rec.Body)
			return
		}
	}

	if err := s.Claims.Submit(ctx, req.Organization, req.Email); err != nil {
		writeAppError(w, r, s.Log, err)
		return
	}

	resp := ClaimCreated{Organization: domain.NormalizeOrganization(req.Organization)}
	if respFP.Key != "" {
		if b, err := json.Marshal(resp); err == nil {
			if err := s.Idem.Put(ctx, respFP, idempotency.Record{
				StatusCode:  http.StatusCreated,
				ContentType: "application/json",
				Body:        b,
				CreatedAt:   s.now(),
			}); err != nil {
				s.logIdemFailure(r, err)
			}
		}
	}
	s.Log.Info().Str("organization", resp.Organization).Msg("claim submitted")
	writeJSON(w, http.StatusCreated, resp)
}

// logIdemFailure records a replay-cache write that failed. The submission itself is not
// affected; a retry with the same key is then treated as new.
func (s *Server) logIdemFailure(r *http.Request, err error) {
	s.Log.Warn().Err(err).
		Str("requestId", middleware.GetReqID(r.Context())).
		Str("idempotencyKey", r.Header.Get(IdempotencyKeyHeader)).
		Msg("idempotency record not stored")
}

func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, CodeBadRequest, "invalid JSON body", nil)
		return
	}
	sess, err := s.Sessions.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		writeAppError(w, r, s.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, LoginResponse{
		AccessToken: sess.AccessToken,
		ExpiresAt:   sess.ExpiresAt.UTC(),
		User:        UserView{ID: sess.User.ID, Email: sess.User.Email},
	})
}

func (s *Server) Logout(w http.ResponseWriter, r *http.Request) {
	token, ok := AccessTokenFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, CodeUnauthorized, "missing bearer token", nil)
		return
	}
	if err := s.Sessions.SignOut(r.Context(), token); err != nil {
		writeAppError(w, r, s.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	u, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, CodeUnauthorized, "missing user", nil)
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{User: UserView{ID: u.ID, Email: u.Email}})
}

func (s *Server) ListClaims(w http.ResponseWriter, r *http.Request) {
	rows, err := s.Claims.ListAll(r.Context())
	if err != nil {
		writeAppError(w, r, s.Log, err)
		return
	}
	q := r.URL.Query().Get("q")
	// Counters always cover the whole table; only the listing is filtered.
	stats := claims.ComputeStats(rows)
	filtered := claims.Filter(rows, q)

	out := make([]ClaimView, 0, len(filtered))
	for _, c := range filtered {
		out = append(out, toClaimView(c))
	}
	writeJSON(w, http.StatusOK, ClaimListResponse{
		Claims: out,
		Stats:  StatsView{Total: stats.Total, Organizations: stats.Organizations},
		Query:  q,
	})
}

func (s *Server) DeleteClaim(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "claimId")
	if err := s.Claims.Delete(r.Context(), domain.ClaimID(id)); err != nil {
		writeAppError(w, r, s.Log, err)
		return
	}
	if u, ok := UserFromContext(r.Context()); ok {
		s.Log.Info().Str("claimId", id).Str("admin", u.Email).Msg("claim deleted")
	}
	w.WriteHeader(http.StatusNoContent)
}

// ExportClaims streams the filtered listing as a workbook. An empty selection is 204.
func (s *Server) ExportClaims(w http.ResponseWriter, r *http.Request) {
	rows, err := s.Claims.ListAll(r.Context())
	if err != nil {
		writeAppError(w, r, s.Log, err)
		return
	}
	rows = claims.Filter(rows, r.URL.Query().Get("q"))

	var buf bytes.Buffer
	name, err := s.Export.Write(&buf, rows)
	if errors.Is(err, export.ErrNothingToExport) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		writeAppError(w, r, s.Log, err)
		return
	}
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func toClaimView(c domain.Claim) ClaimView {
	v := ClaimView{ID: string(c.ID), Organization: c.Organization, Email: c.Email}
	if c.CreatedAt != nil {
		v.CreatedAt = nullable.NewNullableWithValue(c.CreatedAt.UTC())
	} else {
		v.CreatedAt = nullable.NewNullNullable[time.Time]()
	}
	return v
}

// hashClaimRequest hashes the normalized submission, so whitespace-only differences
// count as the same payload.
func hashClaimRequest(req ClaimRequest) (string, error) {
	b, err := json.Marshal(ClaimRequest{
		Organization: domain.NormalizeOrganization(req.Organization),
		Email:        domain.NormalizeEmail(req.Email),
	})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

func (s *Server) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock.Now()
}
