// Package adminreview drives the administrator dashboard: session check, sign-in,
// claim listing with search, deletion, export and sign-out.
package adminreview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/kominfo-unma/canva-claim-api/internal/app/claims"
	"github.com/kominfo-unma/canva-claim-api/internal/app/export"
	"github.com/kominfo-unma/canva-claim-api/internal/app/sessions"
	"github.com/kominfo-unma/canva-claim-api/internal/domain"
	"github.com/kominfo-unma/canva-claim-api/internal/ports/out/identity"
)

type State int

const (
	StateCheckingSession State = iota
	StateUnauthenticated
	StateAuthenticated
	StateLoading
	StateLoaded
	StateError
)

func (s State) String() string {
	switch s {
	case StateCheckingSession:
		return "checkingSession"
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

var (
	ErrNotAuthenticated = errors.New("admin review: not signed in")
	ErrBusy             = errors.New("admin review: request in flight")
)

// Identity is the client-side view of the identity provider.
type Identity interface {
	Session(ctx context.Context) (identity.Session, bool, error)
	SignIn(ctx context.Context, email, password string) (identity.Session, error)
	SignOut(ctx context.Context) error
	// Subscribe registers fn for session changes; ok is false when the session ended.
	Subscribe(fn func(s identity.Session, ok bool)) (unsubscribe func())
}

type Gateway interface {
	ListAll(ctx context.Context) ([]domain.Claim, error)
	Delete(ctx context.Context, id domain.ClaimID) error
}

type Exporter interface {
	Write(w io.Writer, rows []domain.Claim) (string, error)
}

// ConfirmFunc asks the operator to confirm a deletion.
type ConfirmFunc func(prompt string, row domain.Claim) bool

// DeletePrompt is the confirmation question for deleting row.
func DeletePrompt(row domain.Claim) string {
	return fmt.Sprintf("Hapus email %s dari divisi %s?", row.Email, row.Organization)
}

type Flow struct {
	id       Identity
	gw       Gateway
	exporter Exporter

	mu          sync.Mutex
	state       State
	session     *identity.Session
	rows        []domain.Claim
	query       string
	authErr     string
	errMsg      string
	notConfig   bool
	deletingID  domain.ClaimID
	gen         uint64
	closed      bool
	unsubscribe func()
}

func New(id Identity, gw Gateway, exporter Exporter) *Flow {
	f := &Flow{
		id:       id,
		gw:       gw,
		exporter: exporter,
		state:    StateCheckingSession,
	}
	f.unsubscribe = id.Subscribe(f.onSessionChange)
	return f
}

func (f *Flow) onSessionChange(s identity.Session, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	if !ok {
		f.signedOutLocked()
		return
	}
	f.session = &s
	if f.state == StateUnauthenticated || f.state == StateCheckingSession {
		f.state = StateAuthenticated
	}
}

// CheckSession resolves whether an admin session exists and loads claims if so.
func (f *Flow) CheckSession(ctx context.Context) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.state = StateCheckingSession
	f.gen++
	gen := f.gen
	f.mu.Unlock()

	s, ok, err := f.id.Session(ctx)

	f.mu.Lock()
	if f.closed || gen != f.gen {
		f.mu.Unlock()
		return nil
	}
	if err != nil || !ok {
		if err != nil {
			f.authErr = messageOf(err, sessions.MsgSessionCheckFailed)
		}
		f.signedOutLocked()
		f.mu.Unlock()
		return err
	}
	f.session = &s
	f.state = StateAuthenticated
	f.mu.Unlock()

	return f.load(ctx)
}

// Login signs in and, on success, loads claims.
func (f *Flow) Login(ctx context.Context, email, password string) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	if f.state == StateCheckingSession {
		f.mu.Unlock()
		return ErrBusy
	}
	f.authErr = ""
	f.gen++
	gen := f.gen
	f.mu.Unlock()

	s, err := f.id.SignIn(ctx, email, password)

	f.mu.Lock()
	if f.closed || gen != f.gen {
		f.mu.Unlock()
		return err
	}
	if err != nil {
		f.authErr = messageOf(err, sessions.MsgSessionCheckFailed)
		f.mu.Unlock()
		return err
	}
	f.session = &s
	f.state = StateAuthenticated
	f.mu.Unlock()

	return f.load(ctx)
}

// Refresh reloads the claim list.
func (f *Flow) Refresh(ctx context.Context) error {
	f.mu.Lock()
	if f.session == nil {
		f.mu.Unlock()
		return ErrNotAuthenticated
	}
	f.mu.Unlock()
	return f.load(ctx)
}

func (f *Flow) load(ctx context.Context) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.state = StateLoading
	f.errMsg = ""
	f.gen++
	gen := f.gen
	f.mu.Unlock()

	rows, err := f.gw.ListAll(ctx)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || gen != f.gen {
		return nil
	}
	if err != nil {
		f.state = StateError
		f.rows = nil
		f.errMsg = messageOf(err, claims.MsgListFailed)
		f.notConfig = claims.IsCode(err, claims.CodeConfiguration)
		return err
	}
	f.notConfig = false
	f.rows = rows
	f.state = StateLoaded
	return nil
}

// Search sets the filter query. The stored rows are untouched.
func (f *Flow) Search(query string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.query = query
}

func (f *Flow) Query() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.query
}

// Rows returns the loaded claims matching the current query, in list order.
func (f *Flow) Rows() []domain.Claim {
	f.mu.Lock()
	defer f.mu.Unlock()
	return claims.Filter(f.rows, f.query)
}

// Stats counts the unfiltered rows.
func (f *Flow) Stats() claims.Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return claims.ComputeStats(f.rows)
}

// Delete removes one claim after confirmation. A declined confirmation or an id that is
// not in the list does nothing. On failure the row stays and ErrorMessage is set.
func (f *Flow) Delete(ctx context.Context, id domain.ClaimID, confirm ConfirmFunc) error {
	f.mu.Lock()
	if f.session == nil {
		f.mu.Unlock()
		return ErrNotAuthenticated
	}
	if f.deletingID != "" {
		f.mu.Unlock()
		return ErrBusy
	}
	var row domain.Claim
	found := false
	for _, r := range f.rows {
		if r.ID == id {
			row, found = r, true
			break
		}
	}
	f.mu.Unlock()

	if !found || id == "" {
		return nil
	}
	if confirm == nil || !confirm(DeletePrompt(row), row) {
		return nil
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.deletingID = id
	f.errMsg = ""
	f.mu.Unlock()

	err := f.gw.Delete(ctx, id)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletingID = ""
	if f.closed {
		return err
	}
	if err != nil {
		f.errMsg = messageOf(err, claims.MsgDeleteFailed)
		return err
	}
	kept := f.rows[:0:0]
	for _, r := range f.rows {
		if r.ID != id {
			kept = append(kept, r)
		}
	}
	f.rows = kept
	return nil
}

// DeletingID is the id of the row being deleted, if any.
func (f *Flow) DeletingID() domain.ClaimID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deletingID
}

// Export writes the currently filtered rows to w. An empty filtered set is a no-op
// reported with ok == false.
func (f *Flow) Export(w io.Writer) (filename string, ok bool, err error) {
	rows := f.Rows()
	if len(rows) == 0 {
		return "", false, nil
	}
	name, err := f.exporter.Write(w, rows)
	if errors.Is(err, export.ErrNothingToExport) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return name, true, nil
}

// Logout ends the session. On failure the flow stays signed in and AuthError is set.
func (f *Flow) Logout(ctx context.Context) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.authErr = ""
	f.mu.Unlock()

	err := f.id.SignOut(ctx)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return err
	}
	if err != nil {
		f.authErr = messageOf(err, sessions.MsgSessionCheckFailed)
		return err
	}
	f.signedOutLocked()
	return nil
}

func (f *Flow) signedOutLocked() {
	f.gen++
	f.session = nil
	f.rows = nil
	f.query = ""
	f.errMsg = ""
	f.state = StateUnauthenticated
}

func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Session is the current session, if any.
func (f *Flow) Session() (identity.Session, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session == nil {
		return identity.Session{}, false
	}
	return *f.session, true
}

func (f *Flow) AuthError() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.authErr
}

func (f *Flow) ErrorMessage() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.errMsg
}

// NotConfigured reports that the last load failed because the store is not configured.
func (f *Flow) NotConfigured() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.notConfig
}

// Close unsubscribes from session changes and discards results still in flight.
func (f *Flow) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	unsub := f.unsubscribe
	f.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

func messageOf(err error, fallback string) string {
	var ce *claims.Error
	if errors.As(err, &ce) && ce.Message != "" {
		return ce.Message
	}
	var se *sessions.Error
	if errors.As(err, &se) && se.Message != "" {
		return se.Message
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return fallback
}
