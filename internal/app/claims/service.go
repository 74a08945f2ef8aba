package claims

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/kominfo-unma/canva-claim-api/internal/domain"
	"github.com/kominfo-unma/canva-claim-api/internal/ports/out/claimrepo"
	clockport "github.com/kominfo-unma/canva-claim-api/internal/ports/out/clock"
	"github.com/kominfo-unma/canva-claim-api/internal/ports/out/events"
)

// Service is the submission gateway: it translates claim operations into store calls.
//
// A Service built without a repository reports CONFIGURATION_ERROR from every operation
// without attempting any I/O.
type Service struct {
	repo   claimrepo.Repository
	events events.Publisher
	clk    clockport.Clock
	log    zerolog.Logger
}

// NewService builds the gateway. repo may be nil when the store is not configured;
// pub may be nil to disable claim events.
func NewService(repo claimrepo.Repository, pub events.Publisher, clk clockport.Clock) *Service {
	return &Service{repo: repo, events: pub, clk: clk, log: zerolog.Nop()}
}

// WithLogger sets the logger used for faults that do not fail the operation.
func (s *Service) WithLogger(log zerolog.Logger) *Service {
	s.log = log
	return s
}

// Configured reports whether a store is wired.
func (s *Service) Configured() bool {
	return s.repo != nil
}

func (s *Service) Submit(ctx context.Context, organization, email string) error {
	if s.repo == nil {
		return configurationError()
	}

	org := domain.NormalizeOrganization(organization)
	addr := domain.NormalizeEmail(email)
	if org == "" || addr == "" {
		details := map[string]any{}
		if org == "" {
			details["organization"] = "must be non-empty"
		}
		if addr == "" {
			details["email"] = "must be non-empty"
		}
		return validationError(MsgFieldsRequired, details)
	}

	if err := s.repo.Insert(ctx, claimrepo.NewClaim{Organization: org, Email: addr}); err != nil {
		if errors.Is(err, claimrepo.ErrOrganizationClaimed) {
			return &Error{Status: http.StatusConflict, Code: CodeDuplicate, Message: MsgDuplicate, Err: err}
		}
		return storeError(MsgSubmitFailed, err)
	}

	s.publish(ctx, events.ClaimEvent{
		Type:         events.TypeClaimSubmitted,
		Organization: org,
		Email:        addr,
	})
	return nil
}

// ListAll returns every claim, newest first.
func (s *Service) ListAll(ctx context.Context) ([]domain.Claim, error) {
	if s.repo == nil {
		return nil, configurationError()
	}
	rows, err := s.repo.List(ctx)
	if err != nil {
		return nil, storeError(MsgListFailed, err)
	}
	if rows == nil {
		rows = []domain.Claim{}
	}
	return rows, nil
}

// ClaimedOrganizations returns the trimmed, non-empty organization of every claim.
// It is the public read used by the claim form; emails are not exposed.
func (s *Service) ClaimedOrganizations(ctx context.Context) ([]string, error) {
	rows, err := s.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		if org := strings.TrimSpace(r.Organization); org != "" {
			out = append(out, org)
		}
	}
	return out, nil
}

func (s *Service) Delete(ctx context.Context, id domain.ClaimID) error {
	if s.repo == nil {
		return configurationError()
	}
	trimmed := domain.ClaimID(strings.TrimSpace(string(id)))
	if trimmed == "" {
		return validationError(MsgInvalidID, map[string]any{"id": "must be non-empty"})
	}
	if err := s.repo.Delete(ctx, trimmed); err != nil {
		if errors.Is(err, claimrepo.ErrInvalidID) {
			return validationError(MsgInvalidID, map[string]any{"id": "malformed"})
		}
		return storeError(MsgDeleteFailed, err)
	}

	s.publish(ctx, events.ClaimEvent{Type: events.TypeClaimDeleted, ClaimID: trimmed})
	return nil
}

func (s *Service) publish(ctx context.Context, e events.ClaimEvent) {
	if s.events == nil {
		return
	}
	if s.clk != nil {
		e.OccurredAt = s.clk.Now().UTC()
	}
	// The claim is already committed; a lost event is only logged.
	if err := s.events.Publish(ctx, e); err != nil {
		s.log.Warn().Err(err).Str("type", string(e.Type)).Str("organization", e.Organization).Str("claimId", string(e.ClaimID)).Msg("claim event not published")
	}
}
