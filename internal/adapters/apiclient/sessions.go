package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/kominfo-unma/canva-claim-api/internal/adapters/httpapi"
	"github.com/kominfo-unma/canva-claim-api/internal/app/sessions"
	"github.com/kominfo-unma/canva-claim-api/internal/ports/out/identity"
)

// Sessions signs the operator in and out against the API and tells subscribers when the
// session starts or ends. The token lives in the client's SessionStore.
type Sessions struct {
	c *Client

	mu        sync.Mutex
	next      int
	listeners map[int]func(identity.Session, bool)
}

func newSessions(c *Client) *Sessions {
	return &Sessions{c: c, listeners: make(map[int]func(identity.Session, bool))}
}

// Session reports the stored session if the server still accepts its token. A rejected
// token is cleared and reported as no session.
func (s *Sessions) Session(ctx context.Context) (identity.Session, bool, error) {
	stored, ok, err := s.c.store.Load()
	if err != nil {
		return identity.Session{}, false, err
	}
	if !ok || stored.AccessToken == "" {
		return identity.Session{}, false, nil
	}

	resp, err := s.c.do(ctx, http.MethodGet, "/api/auth/session", nil, nil, stored.AccessToken, nil)
	if err != nil {
		return identity.Session{}, false, &sessions.Error{Status: http.StatusBadGateway, Code: sessions.CodeAuth, Message: sessions.MsgSessionCheckFailed, Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var out httpapi.SessionResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return identity.Session{}, false, &sessions.Error{Status: http.StatusBadGateway, Code: sessions.CodeAuth, Message: sessions.MsgSessionCheckFailed, Err: err}
		}
		stored.User = identity.User{ID: out.User.ID, Email: out.User.Email}
		return stored, true, nil
	case http.StatusUnauthorized:
		_ = s.c.store.Clear()
		return identity.Session{}, false, nil
	default:
		return identity.Session{}, false, decodeError(resp, sessions.MsgSessionCheckFailed)
	}
}

func (s *Sessions) SignIn(ctx context.Context, email, password string) (identity.Session, error) {
	resp, err := s.c.do(ctx, http.MethodPost, "/api/auth/login", nil, httpapi.LoginRequest{Email: email, Password: password}, "", nil)
	if err != nil {
		return identity.Session{}, &sessions.Error{Status: http.StatusBadGateway, Code: sessions.CodeAuth, Message: sessions.MsgSessionCheckFailed, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return identity.Session{}, decodeError(resp, sessions.MsgSessionCheckFailed)
	}
	var out httpapi.LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return identity.Session{}, &sessions.Error{Status: http.StatusBadGateway, Code: sessions.CodeAuth, Message: sessions.MsgSessionCheckFailed, Err: err}
	}
	sess := identity.Session{
		AccessToken: out.AccessToken,
		ExpiresAt:   out.ExpiresAt,
		User:        identity.User{ID: out.User.ID, Email: out.User.Email},
	}
	if err := s.c.store.Save(sess); err != nil {
		return identity.Session{}, err
	}
	s.notify(sess, true)
	return sess, nil
}

// SignOut revokes the stored token. A token the server no longer knows counts as signed out.
func (s *Sessions) SignOut(ctx context.Context) error {
	stored, ok, err := s.c.store.Load()
	if err != nil {
		return err
	}
	if !ok || stored.AccessToken == "" {
		s.notify(identity.Session{}, false)
		return nil
	}

	resp, err := s.c.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil, stored.AccessToken, nil)
	if err != nil {
		return &sessions.Error{Status: http.StatusBadGateway, Code: sessions.CodeAuth, Message: sessions.MsgSessionCheckFailed, Err: err}
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusUnauthorized:
	default:
		return decodeError(resp, sessions.MsgSessionCheckFailed)
	}
	s.ended()
	return nil
}

// Subscribe registers fn for session changes. Callbacks run on the goroutine that caused
// the change, outside any lock held by Sessions.
func (s *Sessions) Subscribe(fn func(identity.Session, bool)) func() {
	s.mu.Lock()
	id := s.next
	s.next++
	s.listeners[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

func (s *Sessions) ended() {
	_ = s.c.store.Clear()
	s.notify(identity.Session{}, false)
}

func (s *Sessions) notify(sess identity.Session, ok bool) {
	s.mu.Lock()
	fns := make([]func(identity.Session, bool), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(sess, ok)
	}
}
