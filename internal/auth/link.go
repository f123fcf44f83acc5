package auth

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/authgate-io/authgate/internal/domain"
	"github.com/authgate-io/authgate/internal/metrics"
)

// ProviderLink runs the provider leg of the identity link flow for the
// calling user. Identities already linked to any account are dropped; if
// exactly one candidate remains and the provider is not configured to force
// a choice, it is linked immediately. Otherwise the candidates, possibly
// none, are stored under a temporary token and the flow continues with
// GetLinkState, which is where an empty candidate set is reported.
func (a *Authentication) ProviderLink(ctx context.Context, token domain.IncomingToken,
	provider, authcode string) (*domain.LinkToken, error) {
	u, err := a.getUser(ctx, token)
	if err != nil {
		return nil, err
	}
	if u.IsLocal() {
		return nil, domain.NewError(domain.ErrLinkFailed,
			"Cannot link identities to local accounts")
	}
	idp, err := a.getIdentityProvider(ctx, provider)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(authcode) == "" {
		return nil, domain.NewError(domain.ErrMissingParameter, "authorization code")
	}
	ris, err := idp.GetIdentities(ctx, authcode, true)
	if err != nil {
		a.metrics.ProviderCalls.WithLabelValues(provider, metrics.OutcomeFailure).Inc()
		return nil, err
	}
	a.metrics.ProviderCalls.WithLabelValues(provider, metrics.OutcomeSuccess).Inc()

	candidates, err := a.filterLinkCandidates(ctx, mintLocalIDs(ris))
	if err != nil {
		return nil, err
	}
	cfg, err := a.cfg.appConfig(ctx)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 1 && !cfg.ProviderConfig(provider).ForceLinkChoice {
		if err := a.storage.Link(ctx, u.UserName, candidates[0]); err != nil {
			return nil, err
		}
		a.log.Info("linked identity", zapUser(u.UserName), zapProvider(provider))
		return &domain.LinkToken{}, nil
	}
	tt, err := a.storeTempIdentities(ctx, candidates, linkStateLifetime)
	if err != nil {
		return nil, err
	}
	return &domain.LinkToken{TempToken: tt}, nil
}

// filterLinkCandidates drops identities that are already linked to an
// account.
func (a *Authentication) filterLinkCandidates(ctx context.Context,
	ids []domain.RemoteIdentityWithLocalID) ([]domain.RemoteIdentityWithLocalID, error) {
	var out []domain.RemoteIdentityWithLocalID
	for _, ri := range ids {
		_, linked, err := a.storage.GetUserByIdentity(ctx, ri.RemoteIdentity)
		if err != nil {
			return nil, err
		}
		if !linked {
			out = append(out, ri)
		}
	}
	return out, nil
}

// GetLinkState returns the identities a deferred link flow may still link.
// Identities that became linked since the flow started are dropped; if none
// remain the flow has nothing left to do and fails.
func (a *Authentication) GetLinkState(ctx context.Context, token, linkToken domain.IncomingToken) (*domain.LinkIdentities, error) {
	u, err := a.getUser(ctx, token)
	if err != nil {
		return nil, err
	}
	if u.IsLocal() {
		return nil, domain.NewError(domain.ErrLinkFailed,
			"Cannot link identities to local accounts")
	}
	ids, err := a.getTempIdentities(ctx, linkToken)
	if err != nil {
		return nil, err
	}
	candidates, err := a.filterLinkCandidates(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, domain.NewError(domain.ErrLinkFailed,
			"All provided identities are already linked")
	}
	return &domain.LinkIdentities{User: u, Identities: candidates}, nil
}

// CompleteLink links one identity from deferred link state to the calling
// user.
func (a *Authentication) CompleteLink(ctx context.Context, token, linkToken domain.IncomingToken,
	identityID uuid.UUID) error {
	u, err := a.getUser(ctx, token)
	if err != nil {
		return err
	}
	if u.IsLocal() {
		return domain.NewError(domain.ErrLinkFailed,
			"Cannot link identities to local accounts")
	}
	ids, err := a.getTempIdentities(ctx, linkToken)
	if err != nil {
		return err
	}
	ri, ok := domain.TempIdentities{Identities: ids}.FindIdentity(identityID)
	if !ok {
		return domain.Errorf(domain.ErrUnauthorized,
			"Not authorized to link identity %s", identityID)
	}
	if err := a.storage.Link(ctx, u.UserName, ri); err != nil {
		return err
	}
	a.log.Info("linked identity", zapUser(u.UserName), zapProvider(ri.RemoteID.Provider))
	return nil
}

// Unlink removes the identity with the given local id from the calling
// user. A standard user's last identity cannot be removed.
func (a *Authentication) Unlink(ctx context.Context, token domain.IncomingToken,
	identityID uuid.UUID) error {
	u, err := a.getUser(ctx, token)
	if err != nil {
		return err
	}
	if u.IsLocal() {
		return domain.NewError(domain.ErrUnlinkFailed,
			"Local users don't have remote identities")
	}
	if err := a.storage.Unlink(ctx, u.UserName, identityID); err != nil {
		return err
	}
	a.log.Info("unlinked identity", zapUser(u.UserName),
		zap.String("identity_id", identityID.String()))
	return nil
}
