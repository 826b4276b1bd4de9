package linking

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/bank-bridge/internal/actualbudget"
	"github.com/dvloznov/bank-bridge/internal/apperr"
	"github.com/dvloznov/bank-bridge/internal/gocardless"
	"github.com/dvloznov/bank-bridge/internal/plaid"
)

// AggregatorAPI is the slice of the aggregator surface the flow needs.
type AggregatorAPI interface {
	GenerateToken(ctx context.Context) (gocardless.TokenPair, error)
	Institutions(ctx context.Context, access, country string) ([]gocardless.Institution, error)
	Institution(ctx context.Context, access, id string) (gocardless.Institution, error)
	CreateRequisition(ctx context.Context, access, redirect, institutionID, reference string) (gocardless.Requisition, error)
	Requisition(ctx context.Context, access, id string) (gocardless.Requisition, error)
}

// ContextStore delivers linking results to the finance-tracking backend.
type ContextStore interface {
	SetBankContext(ctx context.Context, contextID, externalID string, bankCtx actualbudget.BankContext) error
	PutWebTokenContent(ctx context.Context, tokenID, publicToken string, institution plaid.Institution, accounts []plaid.Account) error
}

// AccountMapper normalizes a batch of aggregator account ids.
type AccountMapper interface {
	Accounts(ctx context.Context, access string, ids []string) ([]plaid.Account, error)
}

// Flow is the linking state machine. One instance serves all sessions; the
// per-attempt state lives in the session store.
type Flow struct {
	api         AggregatorAPI
	contexts    ContextStore
	mapper      AccountMapper
	sessions    Store
	country     string
	redirectURL string
	log         zerolog.Logger
}

// NewFlow wires the state machine to its collaborators. country selects the
// institution list; redirectURL is where the aggregator returns the user
// agent after bank authorization.
func NewFlow(api AggregatorAPI, contexts ContextStore, mapper AccountMapper, sessions Store, country, redirectURL string, log zerolog.Logger) *Flow {
	return &Flow{
		api:         api,
		contexts:    contexts,
		mapper:      mapper,
		sessions:    sessions,
		country:     country,
		redirectURL: redirectURL,
		log:         log,
	}
}

// Result is what the terminal step produced: the narrowed institution and
// the normalized accounts delivered to the backend.
type Result struct {
	Institution plaid.Institution
	Accounts    []plaid.Account
}

// Install starts a linking attempt: decodes the caller options, obtains a
// handshake token, mints a fresh reference id, stores the session and
// returns the institutions available in the configured country. Calling it
// again replaces any previous state under the same session id.
func (f *Flow) Install(ctx context.Context, sessionID, encodedOptions string) ([]gocardless.Institution, error) {
	opts, err := DecodeOptions(encodedOptions)
	if err != nil {
		return nil, err
	}

	pair, err := f.api.GenerateToken(ctx)
	if err != nil {
		return nil, apperr.Upstream(fmt.Errorf("generating handshake token: %w", err))
	}

	sess := Session{
		Options:        opts,
		HandshakeToken: pair,
		ReferenceID:    uuid.NewString(),
	}
	if err := f.sessions.Put(ctx, sessionID, sess); err != nil {
		return nil, fmt.Errorf("saving session: %w", err)
	}

	institutions, err := f.api.Institutions(ctx, pair.Access, f.country)
	if err != nil {
		return nil, apperr.Upstream(fmt.Errorf("listing institutions: %w", err))
	}

	f.log.Info().
		Str("reference_id", sess.ReferenceID).
		Str("bank_ctx_id", opts.BankCtxID).
		Int("institutions", len(institutions)).
		Msg("Linking session installed")
	return institutions, nil
}

// SelectInstitution asks the aggregator to open an authorization session for
// the chosen institution and returns the link the user agent must follow.
// An empty return link with no error means there was nothing to do (missing
// institution or stale session) and the caller should show the start view
// again; the aggregator is never contacted in that case. The session is
// persisted before the link is handed back so a storage failure cannot leave
// an authorization nothing refers to.
func (f *Flow) SelectInstitution(ctx context.Context, sessionID, institutionID string) (string, error) {
	if institutionID == "" {
		return "", nil
	}

	sess, ok, err := f.sessions.Get(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("loading session: %w", err)
	}
	if !ok || sess.ReferenceID == "" {
		return "", nil
	}

	requisition, err := f.api.CreateRequisition(ctx, sess.HandshakeToken.Access, f.redirectURL, institutionID, sess.ReferenceID)
	if err != nil {
		return "", apperr.Upstream(fmt.Errorf("initializing authorization session: %w", err))
	}

	sess.RequisitionID = requisition.ID
	sess.InstitutionID = institutionID
	if err := f.sessions.Put(ctx, sessionID, sess); err != nil {
		return "", fmt.Errorf("saving session: %w", err)
	}

	f.log.Info().
		Str("reference_id", sess.ReferenceID).
		Str("institution_id", institutionID).
		Str("requisition_id", requisition.ID).
		Msg("Authorization session initialized")
	return requisition.Link, nil
}

// Finalize resolves the authorized requisition, normalizes every linked
// account in input order, writes the encrypted bank context to the backend
// and delivers the web token content. Nothing is written before the whole
// account batch has mapped cleanly. The session is discarded on success.
func (f *Flow) Finalize(ctx context.Context, sessionID string) (Result, error) {
	sess, ok, err := f.sessions.Get(ctx, sessionID)
	if err != nil {
		return Result{}, fmt.Errorf("loading session: %w", err)
	}
	if !ok || sess.RequisitionID == "" || sess.InstitutionID == "" {
		return Result{}, apperr.MissingLinkState("bank authorization has not completed for this session")
	}

	access := sess.HandshakeToken.Access

	requisition, err := f.api.Requisition(ctx, access, sess.RequisitionID)
	if err != nil {
		return Result{}, apperr.Upstream(fmt.Errorf("resolving requisition %s: %w", sess.RequisitionID, err))
	}

	accounts, err := f.mapper.Accounts(ctx, access, requisition.Accounts)
	if err != nil {
		return Result{}, err
	}

	upstream, err := f.api.Institution(ctx, access, sess.InstitutionID)
	if err != nil {
		return Result{}, apperr.Upstream(fmt.Errorf("fetching institution %s: %w", sess.InstitutionID, err))
	}
	institution := plaid.Institution{InstitutionID: upstream.ID, Name: upstream.Name}

	bankCtx := actualbudget.BankContext{
		TokenPair: sess.HandshakeToken,
		Accounts:  requisition.Accounts,
	}
	if err := f.contexts.SetBankContext(ctx, sess.Options.BankCtxID, sess.ReferenceID, bankCtx); err != nil {
		return Result{}, err
	}
	if err := f.contexts.PutWebTokenContent(ctx, sess.Options.TokenID, sess.ReferenceID, institution, accounts); err != nil {
		// The context write already landed; this is the accepted
		// inconsistency called out in the design notes.
		return Result{}, err
	}

	if err := f.sessions.Delete(ctx, sessionID); err != nil {
		f.log.Warn().Err(err).Str("reference_id", sess.ReferenceID).Msg("Failed to discard completed session")
	}

	f.log.Info().
		Str("reference_id", sess.ReferenceID).
		Str("institution_id", institution.InstitutionID).
		Int("accounts", len(accounts)).
		Msg("Bank link completed")
	return Result{Institution: institution, Accounts: accounts}, nil
}
