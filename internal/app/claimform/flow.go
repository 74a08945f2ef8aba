// Package claimform drives the public claim form: availability loading, input,
// submission and the confirmation shown after a successful claim.
package claimform

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/kominfo-unma/canva-claim-api/internal/app/claims"
	"github.com/kominfo-unma/canva-claim-api/internal/domain"
)

type State int

const (
	StateIdle State = iota
	StateLoadingAvailability
	StateReady
	StateSubmitting
	StateSuccess
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoadingAvailability:
		return "loadingAvailability"
	case StateReady:
		return "ready"
	case StateSubmitting:
		return "submitting"
	case StateSuccess:
		return "success"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// ErrBusy is returned when an operation is attempted while a request is in flight.
var ErrBusy = errors.New("claim form: request in flight")

// Gateway is the part of the submission gateway the form needs.
type Gateway interface {
	ClaimedOrganizations(ctx context.Context) ([]string, error)
	Submit(ctx context.Context, organization, email string) error
}

// View is a consistent snapshot of the form for rendering.
type View struct {
	State        State
	Organization string
	Email        string
	Available    []string
	ErrorMessage string
	Confirmation *Confirmation
}

// Flow is the claim form state machine. Its methods are safe to call from multiple
// goroutines; remote calls run without holding the lock so the form can be rendered
// while a request is in flight.
type Flow struct {
	gw            Gateway
	organizations []string

	mu           sync.Mutex
	state        State
	claimed      map[string]struct{}
	organization string
	email        string
	errMsg       string
	loadErr      error
	confirmation *Confirmation
	closed       bool
	gen          uint64
}

// New builds a form offering organizations (in the given order) minus those already claimed.
func New(gw Gateway, organizations []string) *Flow {
	orgs := make([]string, 0, len(organizations))
	for _, o := range organizations {
		if o = strings.TrimSpace(o); o != "" {
			orgs = append(orgs, o)
		}
	}
	return &Flow{
		gw:            gw,
		organizations: orgs,
		state:         StateIdle,
		claimed:       map[string]struct{}{},
	}
}

// Load fetches existing claims and computes availability. A failed fetch still leaves the
// form usable with nothing excluded; the store's uniqueness constraint stays authoritative.
func (f *Flow) Load(ctx context.Context) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	if f.state == StateSubmitting || f.state == StateLoadingAvailability {
		f.mu.Unlock()
		return ErrBusy
	}
	f.state = StateLoadingAvailability
	f.gen++
	gen := f.gen
	f.mu.Unlock()

	orgs, err := f.gw.ClaimedOrganizations(ctx)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || gen != f.gen {
		return nil
	}
	f.loadErr = err
	if err == nil {
		claimed := make(map[string]struct{}, len(orgs))
		for _, o := range orgs {
			if k := domain.OrganizationKey(o); k != "" {
				claimed[k] = struct{}{}
			}
		}
		f.claimed = claimed
	}
	f.state = StateReady
	f.reconcileSelectionLocked()
	return err
}

// LoadError is the error of the last availability fetch, if any.
func (f *Flow) LoadError() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loadErr
}

// Available lists the organizations that can still be selected.
func (f *Flow) Available() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.availableLocked()
}

func (f *Flow) availableLocked() []string {
	out := make([]string, 0, len(f.organizations))
	for _, o := range f.organizations {
		if _, taken := f.claimed[domain.OrganizationKey(o)]; !taken {
			out = append(out, o)
		}
	}
	return out
}

// SetOrganization selects an organization. Selecting one that is not available clears the
// selection and reports false.
func (f *Flow) SetOrganization(org string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputChangedLocked()

	key := domain.OrganizationKey(org)
	if key == "" {
		f.organization = ""
		return true
	}
	for _, o := range f.availableLocked() {
		if domain.OrganizationKey(o) == key {
			f.organization = o
			return true
		}
	}
	f.organization = ""
	return false
}

func (f *Flow) SetEmail(email string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputChangedLocked()
	f.email = email
}

// Submit sends the current input. Empty fields are rejected without calling the gateway.
// On success the organization is excluded immediately and the form resets; on failure the
// gateway's message is kept verbatim and the input is retained.
func (f *Flow) Submit(ctx context.Context) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	if f.state == StateSubmitting || f.state == StateLoadingAvailability {
		f.mu.Unlock()
		return ErrBusy
	}
	org := strings.TrimSpace(f.organization)
	email := strings.TrimSpace(f.email)
	if org == "" || email == "" {
		f.state = StateError
		f.errMsg = claims.MsgFieldsRequired
		f.mu.Unlock()
		return &claims.Error{Status: http.StatusUnprocessableEntity, Code: claims.CodeValidation, Message: claims.MsgFieldsRequired}
	}
	f.state = StateSubmitting
	f.errMsg = ""
	f.confirmation = nil
	f.gen++
	gen := f.gen
	f.mu.Unlock()

	err := f.gw.Submit(ctx, org, email)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || gen != f.gen {
		return err
	}
	if err != nil {
		f.state = StateError
		f.errMsg = userMessage(err)
		return err
	}

	f.claimed[domain.OrganizationKey(org)] = struct{}{}
	f.organization = ""
	f.email = ""
	f.state = StateSuccess
	c := DefaultConfirmation()
	f.confirmation = &c
	return nil
}

// DismissConfirmation closes the success confirmation.
func (f *Flow) DismissConfirmation() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == StateSuccess {
		f.state = StateReady
	}
	f.confirmation = nil
}

func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Flow) ErrorMessage() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.errMsg
}

// Confirmation is non-nil while the success confirmation is shown.
func (f *Flow) Confirmation() *Confirmation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.confirmation
}

func (f *Flow) View() View {
	f.mu.Lock()
	defer f.mu.Unlock()
	return View{
		State:        f.state,
		Organization: f.organization,
		Email:        f.email,
		Available:    f.availableLocked(),
		ErrorMessage: f.errMsg,
		Confirmation: f.confirmation,
	}
}

// Close detaches the flow; results of requests still in flight are discarded.
func (f *Flow) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *Flow) inputChangedLocked() {
	switch f.state {
	case StateError:
		f.state = StateReady
		f.errMsg = ""
	case StateSuccess:
		f.state = StateReady
		f.confirmation = nil
	}
}

// reconcileSelectionLocked clears a selection that is no longer available.
func (f *Flow) reconcileSelectionLocked() {
	if f.organization == "" {
		return
	}
	if _, taken := f.claimed[domain.OrganizationKey(f.organization)]; taken {
		f.organization = ""
	}
}

func userMessage(err error) string {
	var ae *claims.Error
	if errors.As(err, &ae) && ae.Message != "" {
		return ae.Message
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return claims.MsgSubmitFailed
}
