// Package apiclient talks to the claim API over HTTP. It backs claimctl and gives the
// claim form and admin review flows a remote gateway.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kominfo-unma/canva-claim-api/internal/adapters/httpapi"
	"github.com/kominfo-unma/canva-claim-api/internal/app/claims"
	"github.com/kominfo-unma/canva-claim-api/internal/app/sessions"
	"github.com/kominfo-unma/canva-claim-api/internal/domain"
	"github.com/kominfo-unma/canva-claim-api/internal/platform/config"
)

// ErrNotSignedIn is returned by admin calls when no session token is stored.
var ErrNotSignedIn = &sessions.Error{Status: http.StatusUnauthorized, Code: sessions.CodeAuth, Message: "Silakan login terlebih dahulu."}

type Client struct {
	base      string
	http      *http.Client
	adminPath string
	store     SessionStore
	sessions  *Sessions
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithAdminPath sets the server's ADMIN_PATH; admin routes live under /api<adminPath>.
func WithAdminPath(p string) Option {
	return func(c *Client) { c.adminPath = config.NormalizePath(p) }
}

func WithSessionStore(s SessionStore) Option {
	return func(c *Client) {
		if s != nil {
			c.store = s
		}
	}
}

func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("apiclient: base URL is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("apiclient: invalid base URL: %w", err)
	}
	c := &Client{
		base:      baseURL,
		http:      &http.Client{Timeout: 15 * time.Second},
		adminPath: config.DefaultAdminPath,
		store:     NewMemorySessionStore(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.sessions = newSessions(c)
	return c, nil
}

// Sessions is the client's session handle for the admin review flow.
func (c *Client) Sessions() *Sessions { return c.sessions }

// Submit posts a claim. Every call carries a fresh Idempotency-Key, so a transport-level
// retry of the same request is answered from the server's replay cache.
func (c *Client) Submit(ctx context.Context, organization, email string) error {
	body := httpapi.ClaimRequest{Organization: organization, Email: email}
	hdr := http.Header{}
	hdr.Set(httpapi.IdempotencyKeyHeader, uuid.NewString())
	resp, err := c.do(ctx, http.MethodPost, "/api/claims", nil, body, "", hdr)
	if err != nil {
		return transportError(claims.MsgSubmitFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return decodeError(resp, claims.MsgSubmitFailed)
	}
	return nil
}

// Organizations returns the configured organization list and the claimed subset. When the
// server could not read the claimed subset the list is still returned with ClaimedError set.
func (c *Client) Organizations(ctx context.Context) (httpapi.OrganizationsResponse, error) {
	var out httpapi.OrganizationsResponse
	resp, err := c.do(ctx, http.MethodGet, "/api/organizations", nil, nil, "", nil)
	if err != nil {
		return out, transportError(claims.MsgListFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return out, decodeError(resp, claims.MsgListFailed)
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, transportError(claims.MsgListFailed, err)
	}
	return out, nil
}

// ClaimedOrganizations reports a failed claimed-set read as an error even though the
// server answered 200.
func (c *Client) ClaimedOrganizations(ctx context.Context) ([]string, error) {
	out, err := c.Organizations(ctx)
	if err != nil {
		return nil, err
	}
	if e := out.ClaimedError; e != nil {
		return nil, &claims.Error{Status: http.StatusBadGateway, Code: e.Code, Message: e.Message}
	}
	return out.Claimed, nil
}

// View asks the server which screen serves path.
func (c *Client) View(ctx context.Context, path string) (config.View, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/view", url.Values{"path": {path}}, nil, "", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", decodeError(resp, "")
	}
	var out httpapi.ViewResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.View, nil
}

// List fetches the admin listing filtered by query, with whole-table counters.
func (c *Client) List(ctx context.Context, query string) ([]domain.Claim, claims.Stats, error) {
	token, err := c.token()
	if err != nil {
		return nil, claims.Stats{}, err
	}
	var q url.Values
	if strings.TrimSpace(query) != "" {
		q = url.Values{"q": {query}}
	}
	resp, err := c.do(ctx, http.MethodGet, c.adminRoute("/claims"), q, nil, token, nil)
	if err != nil {
		return nil, claims.Stats{}, transportError(claims.MsgListFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, claims.Stats{}, c.adminError(resp, claims.MsgListFailed)
	}
	var out httpapi.ClaimListResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, claims.Stats{}, transportError(claims.MsgListFailed, err)
	}
	rows := make([]domain.Claim, 0, len(out.Claims))
	for _, v := range out.Claims {
		row := domain.Claim{ID: domain.ClaimID(v.ID), Organization: v.Organization, Email: v.Email}
		if ts, err := v.CreatedAt.Get(); err == nil {
			row.CreatedAt = &ts
		}
		rows = append(rows, row)
	}
	return rows, claims.Stats{Total: out.Stats.Total, Organizations: out.Stats.Organizations}, nil
}

// ListAll returns every claim, newest first.
func (c *Client) ListAll(ctx context.Context) ([]domain.Claim, error) {
	rows, _, err := c.List(ctx, "")
	return rows, err
}

func (c *Client) Delete(ctx context.Context, id domain.ClaimID) error {
	token, err := c.token()
	if err != nil {
		return err
	}
	resp, err := c.do(ctx, http.MethodDelete, c.adminRoute("/claims/"+url.PathEscape(string(id))), nil, nil, token, nil)
	if err != nil {
		return transportError(claims.MsgDeleteFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return c.adminError(resp, claims.MsgDeleteFailed)
	}
	return nil
}

// Export downloads the server-rendered workbook for query into w. ok is false when the
// selection was empty and nothing was written.
func (c *Client) Export(ctx context.Context, query string, w io.Writer) (filename string, ok bool, err error) {
	token, err := c.token()
	if err != nil {
		return "", false, err
	}
	var q url.Values
	if strings.TrimSpace(query) != "" {
		q = url.Values{"q": {query}}
	}
	resp, err := c.do(ctx, http.MethodGet, c.adminRoute("/claims/export"), q, nil, token, nil)
	if err != nil {
		return "", false, transportError(claims.MsgListFailed, err)
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusNoContent:
		return "", false, nil
	case http.StatusOK:
	default:
		return "", false, c.adminError(resp, claims.MsgListFailed)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return "", false, err
	}
	filename = "claim-canva.xlsx"
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		filename = params["filename"]
	}
	return filename, true, nil
}

func (c *Client) adminRoute(suffix string) string {
	return "/api" + c.adminPath + suffix
}

func (c *Client) token() (string, error) {
	s, ok, err := c.store.Load()
	if err != nil {
		return "", err
	}
	if !ok || s.AccessToken == "" {
		return "", ErrNotSignedIn
	}
	return s.AccessToken, nil
}

// adminError decodes a failed admin response. A rejected token means the session is
// over, so it is cleared and listeners are told.
func (c *Client) adminError(resp *http.Response, fallback string) error {
	err := decodeError(resp, fallback)
	if resp.StatusCode == http.StatusUnauthorized {
		c.sessions.ended()
	}
	return err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, token string, hdr http.Header) (*http.Response, error) {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, r)
	if err != nil {
		return nil, err
	}
	for k, vs := range hdr {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return c.http.Do(req)
}
