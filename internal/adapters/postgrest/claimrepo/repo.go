// Package claimrepo implements claimrepo.Repository against a hosted REST table
// (PostgREST under /rest/v1) using the postgrest-go client.
package claimrepo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/supabase-community/postgrest-go"

	"github.com/kominfo-unma/canva-claim-api/internal/domain"
	"github.com/kominfo-unma/canva-claim-api/internal/platform/httpctx"
	"github.com/kominfo-unma/canva-claim-api/internal/ports/out/claimrepo"
)

const (
	DefaultTable   = "email_submissions"
	DefaultTimeout = 10 * time.Second

	listColumns = "id,organization,email,created_at"

	// invalidTextCode is the SQLSTATE for a malformed literal such as a bad uuid.
	invalidTextCode = "22P02"
)

var ErrNotConfigured = errors.New("postgrest: url, key and table are required")

type Config struct {
	URL   string
	Key   string
	Table string

	// Transport defaults to http.DefaultTransport.
	Transport http.RoundTripper
	// Timeout bounds each call; zero means DefaultTimeout.
	Timeout time.Duration
}

// Repo talks to one table of the hosted store.
type Repo struct {
	restURL   string
	key       string
	table     string
	transport http.RoundTripper
	timeout   time.Duration
}

func NewRepo(cfg Config) (*Repo, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	key := strings.TrimSpace(cfg.Key)
	table := strings.TrimSpace(cfg.Table)
	if base == "" || key == "" || table == "" {
		return nil, ErrNotConfigured
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("postgrest: parse url: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Repo{
		restURL:   base + "/rest/v1",
		key:       key,
		table:     table,
		transport: cfg.Transport,
		timeout:   timeout,
	}, nil
}

// APIError is an error reported by the REST layer with its SQLSTATE or PGRST code.
type APIError struct {
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("postgrest: code=%s: %s", e.Code, e.Message)
	}
	return "postgrest: " + e.Message
}

// The client reports REST errors as "(<code>) <message>".
var executeErrorPattern = regexp.MustCompile(`(?s)^\(([^)]*)\) (.*)$`)

// classify turns the client's error text back into an *APIError. Errors that are not REST
// rejections (transport failures, unparseable bodies) are wrapped unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if m := executeErrorPattern.FindStringSubmatch(err.Error()); m != nil {
		return &APIError{Code: m[1], Message: m[2]}
	}
	return fmt.Errorf("postgrest: %w", err)
}

// client builds a client bound to ctx. postgrest-go has no context support of its own.
func (r *Repo) client(ctx context.Context) (*postgrest.Client, context.CancelFunc, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	c := postgrest.NewClient(r.restURL, "", nil)
	if c.ClientError != nil {
		cancel()
		return nil, nil, fmt.Errorf("postgrest: %w", c.ClientError)
	}
	c.SetApiKey(r.key).SetAuthToken(r.key)
	c.Transport.Parent = httpctx.Transport(ctx, r.transport)
	return c, cancel, nil
}

func (r *Repo) Insert(ctx context.Context, c claimrepo.NewClaim) error {
	client, cancel, err := r.client(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	_, _, err = client.From(r.table).
		Insert(map[string]string{"organization": c.Organization, "email": c.Email}, false, "", "minimal", "").
		Execute()
	err = classify(err)
	var ae *APIError
	if errors.As(err, &ae) && claimrepo.IsDuplicate(ae.Code, ae.Message) {
		return fmt.Errorf("%w: %s", claimrepo.ErrOrganizationClaimed, ae.Message)
	}
	return err
}

type row struct {
	ID           json.RawMessage `json:"id"`
	Organization *string         `json:"organization"`
	Email        *string         `json:"email"`
	CreatedAt    *string         `json:"created_at"`
}

func (r *Repo) List(ctx context.Context) ([]domain.Claim, error) {
	client, cancel, err := r.client(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	var rows []row
	_, err = client.From(r.table).
		Select(listColumns, "", false).
		Order("created_at", &postgrest.OrderOpts{Ascending: false}).
		ExecuteTo(&rows)
	if err != nil {
		return nil, classify(err)
	}

	out := make([]domain.Claim, 0, len(rows))
	for _, rw := range rows {
		c := domain.Claim{ID: domain.ClaimID(rawID(rw.ID))}
		if rw.Organization != nil {
			c.Organization = *rw.Organization
		}
		if rw.Email != nil {
			c.Email = *rw.Email
		}
		if rw.CreatedAt != nil {
			if t, ok := parseTimestamp(*rw.CreatedAt); ok {
				c.CreatedAt = &t
			}
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *Repo) Delete(ctx context.Context, id domain.ClaimID) error {
	trimmed := strings.TrimSpace(string(id))
	if trimmed == "" {
		return claimrepo.ErrInvalidID
	}
	client, cancel, err := r.client(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	_, _, err = client.From(r.table).Delete("minimal", "").Eq("id", trimmed).Execute()
	err = classify(err)
	var ae *APIError
	if errors.As(err, &ae) && ae.Code == invalidTextCode {
		return fmt.Errorf("%w: %s", claimrepo.ErrInvalidID, ae.Message)
	}
	return err
}

// rawID renders a JSON id (string or number) as a string.
func rawID(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return ""
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str
	}
	return s
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z07",
	"2006-01-02 15:04:05.999999999",
}

// parseTimestamp accepts timestamptz and timestamp renderings. Values without an offset
// are taken as UTC.
func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
